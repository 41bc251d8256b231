package taskfiles

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"regexp"
	"strings"

	"grid_monitor/internal/transport"
)

// Format selects which task file is printed. A trailing "p" prints the path
// instead of the content.
type Format string

const (
	FormatNone       Format = ""
	FormatScript     Format = "sh"
	FormatScriptPath Format = "shp"
	FormatStdout     Format = "o"
	FormatStdoutPath Format = "op"
	FormatStderr     Format = "e"
	FormatStderrPath Format = "ep"
)

// exit status of the remote read when the file is missing
const missingFileStatus = 3

var ErrUnknownFormat = errors.New("format must be one of sh, shp, o, op, e, ep")

func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.TrimSpace(s)); f {
	case FormatNone, FormatScript, FormatScriptPath, FormatStdout, FormatStdoutPath, FormatStderr, FormatStderrPath:
		return f, nil
	default:
		return "", fmt.Errorf("%q: %w", s, ErrUnknownFormat)
	}
}

func (f Format) pathOnly() bool {
	return strings.HasSuffix(string(f), "p")
}

type Task struct {
	ID     string
	Script string
	Stdout string
	Stderr string
}

// Job is what qstat -j reports about one job's files.
type Job struct {
	WorkDir    string
	Prefix     string
	ScriptFile string
	IsArray    bool
	Tasks      []Task
}

var (
	whitespace  = regexp.MustCompile(`\s+`)
	pathListSep = regexp.MustCompile(`[:$]`)
)

// Parse reads qstat -j output. Task file names are built from the stdout
// path prefix, so array jobs must have been submitted with -o
// <dir>/<name>_$TASK_ID.o.
func Parse(output string) Job {
	var job Job
	for _, line := range strings.Split(output, "\n") {
		switch {
		case strings.HasPrefix(line, "sge_o_workdir"):
			job.WorkDir = lastField(line)
		case strings.HasPrefix(line, "stdout_path_list"):
			if parts := pathListSep.Split(line, -1); len(parts) > 3 {
				job.Prefix = strings.TrimSpace(parts[3])
			}
		case strings.HasPrefix(line, "script_file"):
			job.ScriptFile = joinPath(job.WorkDir, lastField(line))
		case strings.HasPrefix(line, "job-array"):
			job.IsArray = true
		case strings.HasPrefix(line, "usage") && job.IsArray:
			fields := whitespace.Split(line, -1)
			if len(fields) < 2 {
				continue
			}
			id := strings.TrimSuffix(fields[1], ":")
			base := joinPath(job.WorkDir, job.Prefix) + id
			job.Tasks = append(job.Tasks, Task{
				ID:     id,
				Script: base + ".sh",
				Stdout: base + ".o",
				Stderr: base + ".e",
			})
		}
	}
	return job
}

// Paths lists the files selected by format. A plain job only has its
// script file whatever the format.
func (j Job) Paths(format Format) []string {
	if !j.IsArray {
		return []string{j.ScriptFile}
	}
	out := make([]string, 0, len(j.Tasks))
	for _, task := range j.Tasks {
		switch format {
		case FormatStdout, FormatStdoutPath:
			out = append(out, task.Stdout)
		case FormatStderr, FormatStderrPath:
			out = append(out, task.Stderr)
		default:
			out = append(out, task.Script)
		}
	}
	return out
}

// Lookup runs qstat -j for jobID through tr.
func Lookup(ctx context.Context, tr transport.Transport, jobID string) (Job, error) {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return Job{}, errors.New("job id must not be empty")
	}
	res, err := tr.Run(ctx, "qstat -j "+transport.ShellQuote(jobID))
	if err != nil {
		return Job{}, fmt.Errorf("query job %s: %w", jobID, err)
	}
	return Parse(res.Stdout), nil
}

// Print writes the selected paths, or their contents when format asks for
// them. Files are read on the transport's host.
func Print(ctx context.Context, w io.Writer, tr transport.Transport, job Job, format Format) error {
	for _, p := range job.Paths(format) {
		if format == FormatNone || format.pathOnly() {
			fmt.Fprintln(w, p)
			continue
		}
		content, ok, err := readFile(ctx, tr, p)
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintf(w, "%s does not exist!\n", p)
			continue
		}
		fmt.Fprintln(w, strings.TrimRight(content, " \t\r\n"))
	}
	return nil
}

func readFile(ctx context.Context, tr transport.Transport, p string) (string, bool, error) {
	q := transport.ShellQuote(p)
	res, err := tr.Run(ctx, fmt.Sprintf("test -f %s || exit %d; cat %s", q, missingFileStatus, q))
	if err != nil {
		var runErr *transport.RunError
		if errors.As(err, &runErr) && runErr.ExitCode == missingFileStatus {
			return "", false, nil
		}
		return "", false, fmt.Errorf("read %s: %w", p, err)
	}
	return res.Stdout, true, nil
}

func lastField(line string) string {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return ""
	}
	return fields[len(fields)-1]
}

func joinPath(dir, name string) string {
	if path.IsAbs(name) || dir == "" {
		return name
	}
	return path.Join(dir, name)
}

