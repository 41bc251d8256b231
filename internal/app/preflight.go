package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"grid_monitor/internal/config"
	"grid_monitor/internal/sge"
	"grid_monitor/internal/transport"
)

type doctorCheck struct {
	name   string
	detail string
	err    error
}

type doctorDeps struct {
	lookPath          func(string) (string, error)
	stat              func(string) (os.FileInfo, error)
	buildTransport    func(config.Config) (transport.Transport, error)
	checkAvailability func(context.Context, transport.Transport, time.Duration) error
	collectHosts      func(context.Context, config.Config, transport.Transport) (sge.HostTable, error)
}

func defaultDoctorDeps() doctorDeps {
	return doctorDeps{
		lookPath:          exec.LookPath,
		stat:              os.Stat,
		buildTransport:    BuildTransport,
		checkAvailability: checkSchedulerAvailability,
		collectHosts: func(ctx context.Context, cfg config.Config, tr transport.Transport) (sge.HostTable, error) {
			return NewCollector(cfg, tr).Hosts(ctx)
		},
	}
}

func RunDoctor(cfg config.Config, out io.Writer) error {
	return runDoctorWithDeps(cfg, out, defaultDoctorDeps())
}

func runDoctorWithDeps(cfg config.Config, out io.Writer, deps doctorDeps) error {
	target := "local"
	if cfg.Mode == config.ModeRemote {
		target = cfg.Target
	}

	fmt.Fprintln(out, "grid-monitor doctor")
	fmt.Fprintf(out, "mode: %s\n", cfg.Mode)
	fmt.Fprintf(out, "target: %s\n\n", target)

	checks := buildDoctorChecks(cfg, deps)
	failed := false
	for _, check := range checks {
		if check.err != nil {
			failed = true
			fmt.Fprintf(out, "[fail] %s: %v\n", check.name, check.err)
			continue
		}
		fmt.Fprintf(out, "[ok] %s: %s\n", check.name, check.detail)
	}

	if failed {
		fmt.Fprintln(out, "\ndoctor result: FAIL")
		return errors.New("doctor checks failed")
	}

	fmt.Fprintln(out, "\ndoctor result: PASS")
	return nil
}

func buildDoctorChecks(cfg config.Config, deps doctorDeps) []doctorCheck {
	checks := make([]doctorCheck, 0, 8)

	appendToolCheck := func(scope string, tool string) {
		if path, err := deps.lookPath(tool); err != nil {
			checks = append(checks, doctorCheck{
				name: scope + " tool " + tool,
				err:  fmt.Errorf("not found in PATH"),
			})
		} else {
			checks = append(checks, doctorCheck{
				name:   scope + " tool " + tool,
				detail: path,
			})
		}
	}

	appendFileCheck := func(name string, path string) {
		if strings.TrimSpace(path) == "" {
			return
		}
		resolved := resolveHomePath(path)
		info, err := deps.stat(resolved)
		if err != nil {
			checks = append(checks, doctorCheck{
				name: name,
				err:  fmt.Errorf("path is not readable: %s", resolved),
			})
			return
		}
		if info.IsDir() {
			checks = append(checks, doctorCheck{
				name: name,
				err:  fmt.Errorf("expected a file but found a directory: %s", resolved),
			})
			return
		}
		checks = append(checks, doctorCheck{
			name:   name,
			detail: resolved,
		})
	}

	if cfg.Mode == config.ModeLocal {
		for _, tool := range []string{"bash", "qstat", "qhost", "qsub"} {
			appendToolCheck("local", tool)
		}
		appendFileCheck("sge settings file", cfg.SGESettings)
	} else {
		appendToolCheck("local", "ssh")
		appendFileCheck("ssh config file", cfg.SSHConfig)
		appendFileCheck("ssh identity file", cfg.IdentityFile)
	}

	tr, err := deps.buildTransport(cfg)
	if err != nil {
		checks = append(checks, doctorCheck{
			name: "transport initialization",
			err:  err,
		})
		return checks
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.CommandTimeout)
	defer cancel()

	if err := deps.checkAvailability(ctx, tr, cfg.CommandTimeout); err != nil {
		if isMissingSchedulerCommandError(err) {
			err = fmt.Errorf("%w (is the SGE environment sourced in the login shell?)", err)
		}
		checks = append(checks, doctorCheck{
			name: "sge preflight",
			err:  err,
		})
		return checks
	}
	checks = append(checks, doctorCheck{
		name:   "sge preflight",
		detail: "required SGE commands are reachable on " + tr.Describe(),
	})

	hosts, err := deps.collectHosts(ctx, cfg, tr)
	switch {
	case err != nil:
		checks = append(checks, doctorCheck{name: "qhost parse", err: err})
	case len(hosts.Rows) == 0:
		checks = append(checks, doctorCheck{
			name: "qhost parse",
			err:  fmt.Errorf("no node rows in %q output", cfg.HostCommand),
		})
	default:
		_, health := sge.Fold(hosts.Rows)
		checks = append(checks, doctorCheck{
			name:   "qhost parse",
			detail: fmt.Sprintf("%d nodes, %d dead, %d dangerous", health.Nodes, len(health.Dead), len(health.Dangerous)),
		})
	}
	return checks
}

func RunDryRun(cfg config.Config, out io.Writer) error {
	target := "local"
	if cfg.Mode == config.ModeRemote {
		target = cfg.Target
	}

	duration := "unbounded"
	if cfg.Duration > 0 {
		duration = cfg.Duration.String()
	}

	fmt.Fprintln(out, "grid-monitor dry-run")
	fmt.Fprintf(out, "mode: %s\n", cfg.Mode)
	fmt.Fprintf(out, "target: %s\n", target)
	fmt.Fprintf(out, "refresh: %s\n", cfg.Refresh)
	fmt.Fprintf(out, "connect-timeout: %s\n", cfg.ConnectTimeout)
	fmt.Fprintf(out, "command-timeout: %s\n", cfg.CommandTimeout)
	fmt.Fprintf(out, "duration: %s\n", duration)
	fmt.Fprintf(out, "once: %t\n", cfg.Once)
	fmt.Fprintf(out, "compact: %t\n", cfg.Compact)
	fmt.Fprintf(out, "no-color: %t\n", cfg.NoColor)
	fmt.Fprintf(out, "sentinels: %s\n", strings.Join(cfg.Sentinels, ","))
	fmt.Fprintf(out, "headroom-warn: %s\n", humanize.IBytes(cfg.HeadroomWarn.Bytes()))
	if cfg.SGESettings != "" {
		fmt.Fprintf(out, "sge-settings: %s\n", cfg.SGESettings)
	}
	if cfg.ConfigFile != "" {
		fmt.Fprintf(out, "config: %s\n", cfg.ConfigFile)
	}
	fmt.Fprintln(out)

	collector := NewCollector(cfg, nil)
	fmt.Fprintln(out, "planned sequence:")
	fmt.Fprintln(out, "1. Parse flags and build the configured transport.")
	if cfg.Mode == config.ModeLocal {
		fmt.Fprintln(out, "2. Run a local preflight check for qstat and qhost.")
	} else {
		fmt.Fprintln(out, "2. Connect over OpenSSH to the target and validate qstat and qhost remotely.")
	}
	fmt.Fprintf(out, "3. Poll with: %s\n", collector.CombinedCommand())
	if cfg.Once {
		fmt.Fprintln(out, "4. Collect one snapshot, print the node summary and top users, and exit.")
	} else {
		fmt.Fprintln(out, "4. Start the polling loop and render the live TUI until interrupted or duration is reached.")
	}
	fmt.Fprintln(out, "5. Exit without mutating any SGE queue or cluster state.")
	fmt.Fprintln(out, "\ndry-run only: no local or remote commands were executed.")

	return nil
}

func resolveHomePath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil && strings.TrimSpace(home) != "" {
			return filepath.Join(home, strings.TrimPrefix(path, "~/"))
		}
	}
	return path
}
