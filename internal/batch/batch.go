package batch

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"grid_monitor/internal/transport"
	"grid_monitor/internal/units"
)

type Scheduler string

const (
	SchedulerSGE   Scheduler = "sge"
	SchedulerSlurm Scheduler = "slurm"
)

const (
	nameTimeLayout = "20060102150405"
	logDirSuffix   = "_array-job"
	scriptMode     = 0o744
)

var (
	// vf=<memory>,p=<num_proc>
	resourcePattern = regexp.MustCompile(`^vf=([\d.]+\w),p=(\d+)`)
	leadingDigit    = regexp.MustCompile(`^\d`)
)

type Options struct {
	Scheduler   Scheduler
	JobName     string
	LinesPerJob int
	LogDir      string

	// sge
	Queue    string
	Project  string
	Resource string

	// slurm
	Partition string
	Nodes     string
	Threads   string
}

func DefaultOptions() Options {
	return Options{
		Scheduler:   SchedulerSlurm,
		JobName:     "job",
		LinesPerJob: 1,
		Queue:       "st.q",
		Project:     "st.m",
		Resource:    "vf=50M,p=1",
		Partition:   "intel",
		Nodes:       "1",
		Threads:     "1",
	}
}

func (o Options) Validate() error {
	if o.LinesPerJob < 1 {
		return fmt.Errorf("lines per job must be >= 1, got %d", o.LinesPerJob)
	}
	if strings.TrimSpace(o.JobName) == "" {
		return errors.New("job name must not be empty")
	}
	switch o.Scheduler {
	case SchedulerSGE:
		if _, _, err := parseResource(o.Resource); err != nil {
			return err
		}
		if leadingDigit.MatchString(o.JobName) {
			return fmt.Errorf("array job name %q cannot start with a digit", o.JobName)
		}
	case SchedulerSlurm:
	default:
		return fmt.Errorf("unsupported scheduler %q: use sge or slurm", o.Scheduler)
	}
	return nil
}

// parseResource checks an SGE resource string and returns its memory and
// processor count.
func parseResource(resource string) (units.ByteQuantity, string, error) {
	m := resourcePattern.FindStringSubmatch(resource)
	if m == nil {
		return 0, "", fmt.Errorf("resource %q must look like vf=<memory>,p=<processors>", resource)
	}
	mem, err := units.ParseByteQuantity(m[1])
	if err != nil {
		return 0, "", fmt.Errorf("resource %q: %w", resource, err)
	}
	return mem, m[2], nil
}

// ReadCommands collects the non-blank lines of every reader in order.
func ReadCommands(readers ...io.Reader) ([]string, error) {
	var lines []string
	for _, r := range readers {
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := strings.TrimRight(scanner.Text(), "\r")
			if strings.TrimSpace(line) == "" {
				continue
			}
			lines = append(lines, line)
		}
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("read commands: %w", err)
		}
	}
	return lines, nil
}

// Plan is an array job laid out on disk: one chunk file per task and a
// submit script next to the log directory.
type Plan struct {
	Options
	Name       string
	LogDir     string
	ScriptPath string
	Chunks     [][]string
}

// NewPlan stamps the job name with now and resolves the log directory. A
// log directory of ".", "~" or home gets a per-job subdirectory.
func NewPlan(opts Options, commands []string, now time.Time, home string) (*Plan, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if len(commands) == 0 {
		return nil, errors.New("no commands to submit")
	}

	name := opts.JobName + "_" + now.Format(nameTimeLayout)
	logDir := strings.TrimRight(opts.LogDir, "/")
	switch {
	case opts.LogDir == "":
		logDir = name + logDirSuffix
	case logDir == "." || logDir == "~" || (home != "" && logDir == strings.TrimRight(home, "/")):
		if logDir == "~" && home != "" {
			logDir = home
		}
		logDir = filepath.Join(logDir, name+logDirSuffix)
	}

	return &Plan{
		Options:    opts,
		Name:       name,
		LogDir:     logDir,
		ScriptPath: filepath.Join(filepath.Dir(logDir), name+"_submit.sh"),
		Chunks:     lo.Chunk(commands, opts.LinesPerJob),
	}, nil
}

func (p *Plan) Tasks() int {
	return len(p.Chunks)
}

func (p *Plan) ChunkPath(task int) string {
	return filepath.Join(p.LogDir, fmt.Sprintf("%s_%d.sh", p.Name, task))
}

// Write creates the log directory, the chunk files and the submit script.
func (p *Plan) Write() error {
	if err := os.MkdirAll(p.LogDir, 0o755); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}
	for i, chunk := range p.Chunks {
		path := p.ChunkPath(i + 1)
		if err := os.WriteFile(path, []byte(strings.Join(chunk, "\n")+"\n"), 0o644); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
	}

	f, err := os.Create(p.ScriptPath)
	if err != nil {
		return fmt.Errorf("create submit script: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	if err := p.WriteScript(w); err != nil {
		return err
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("write submit script: %w", err)
	}
	if err := os.Chmod(p.ScriptPath, scriptMode); err != nil {
		return fmt.Errorf("chmod submit script: %w", err)
	}
	log.Debug().Str("script", p.ScriptPath).Int("tasks", p.Tasks()).Msg("wrote array job")
	return nil
}

func (p *Plan) arrayRange() string {
	return fmt.Sprintf("1-%d:1", p.Tasks())
}

// WriteScript renders the submit script for the plan's scheduler.
func (p *Plan) WriteScript(w io.Writer) error {
	var err error
	switch p.Scheduler {
	case SchedulerSGE:
		err = p.writeSGEScript(w)
	default:
		err = p.writeSlurmScript(w)
	}
	if err != nil {
		return fmt.Errorf("render submit script: %w", err)
	}
	return nil
}

func (p *Plan) writeSGEScript(w io.Writer) error {
	_, numProc, err := parseResource(p.Resource)
	if err != nil {
		return err
	}
	jobScript := filepath.Join(p.LogDir, p.Name+"_$SGE_TASK_ID.sh")
	_, err = fmt.Fprintf(w, `#!/bin/bash
#$ -clear
#$ -S /bin/bash
#$ -V
#$ -N %s
#$ -cwd
#$ -l %s
#$ -binding linear:%s
#$ -q %s
#$ -P %s
#$ -t %s
jobscript=%s
bash $jobscript
`, p.Name, p.Resource, numProc, p.Queue, p.Project, p.arrayRange(), jobScript)
	return err
}

// Slurm expands %a in -o/-e to the array index; the job script path uses
// the environment variable instead.
func (p *Plan) writeSlurmScript(w io.Writer) error {
	_, err := fmt.Fprintf(w, `#!/bin/bash
#SBATCH -J %s
#SBATCH -p %s
#SBATCH -N %s
#SBATCH --cpus-per-task=%s
#SBATCH -o %s
#SBATCH -e %s
#SBATCH -a %s
bash %s
`,
		p.Name, p.Partition, p.Nodes, p.Threads,
		filepath.Join(p.LogDir, p.Name+"_%a.o"),
		filepath.Join(p.LogDir, p.Name+"_%a.e"),
		p.arrayRange(),
		filepath.Join(p.LogDir, p.Name+"_${SLURM_ARRAY_TASK_ID}.sh"),
	)
	return err
}

// SubmitCommand is the shell command that submits the written script. SGE
// task output goes to <logdir>/<name>_<task>.o and .e.
func (p *Plan) SubmitCommand() string {
	if p.Scheduler == SchedulerSGE {
		errPath := filepath.Join(p.LogDir, p.Name+`_\$TASK_ID.e`)
		outPath := filepath.Join(p.LogDir, p.Name+`_\$TASK_ID.o`)
		return fmt.Sprintf("qsub -e %s -o %s %s", errPath, outPath, p.ScriptPath)
	}
	return "sbatch " + p.ScriptPath
}

// Submit runs the submit command through tr and returns the scheduler's
// reply.
func Submit(ctx context.Context, tr transport.Transport, p *Plan) (string, error) {
	command := p.SubmitCommand()
	res, err := tr.Run(ctx, command)
	if err != nil {
		return "", fmt.Errorf("submit %s: %w", p.Name, err)
	}
	return strings.TrimSpace(res.Stdout), nil
}
