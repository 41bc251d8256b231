package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"grid_monitor/internal/app"
	"grid_monitor/internal/batch"
	"grid_monitor/internal/config"
	"grid_monitor/internal/logger"
	"grid_monitor/internal/taskfiles"
)

// usageError marks bad arguments; they exit 2 like the other argument errors.
type usageError struct{ err error }

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "grid-monitor error: %v\n", err)
		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	var uerr usageError
	if errors.As(err, &uerr) {
		return 2
	}
	return 1
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "grid-monitor [target]",
		Short: "Monitor SGE node health and per-user usage",
		Long: `grid-monitor reads qhost and qstat output, locally or over OpenSSH, and
reports node health, per-user usage and queue resources. Without a
subcommand it starts the live monitor.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runMonitor,
	}
	bindMonitor(root.Flags())
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError{err}
	})

	root.AddCommand(
		newMonitorCmd(),
		newReportCmd(),
		newUsersCmd(),
		newQueueResourcesCmd(),
		newSubmitCmd(),
		newTaskFilesCmd(),
		newExportCmd(),
		newDoctorCmd(),
		newDryRunCmd(),
	)
	return root
}

func bindMonitor(fs *pflag.FlagSet) {
	config.BindFlags(fs)
	config.BindMonitorFlags(fs)
}

// loadConfig resolves flags, env and config file for one command and routes
// logging to the command's stderr.
func loadConfig(cmd *cobra.Command, command config.Command, args []string) (config.Config, error) {
	cfg, err := config.Load(viper.New(), cmd.Flags(), command, args)
	if err != nil {
		return config.Config{}, usageError{err}
	}
	if err := logger.Configure(cfg.LogLevel, cfg.LogType, cmd.ErrOrStderr()); err != nil {
		return config.Config{}, usageError{err}
	}
	return cfg, nil
}

func runMonitor(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, config.CommandMonitor, args)
	if err != nil {
		return err
	}
	return app.Run(cmd.Context(), cfg)
}

func newMonitorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "monitor [target]",
		Short: "Start live monitoring (default)",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runMonitor,
	}
	bindMonitor(cmd.Flags())
	return cmd
}

// newSnapshotCmd builds a one-shot command that prints to stdout through the
// configured transport.
func newSnapshotCmd(
	use, short string,
	command config.Command,
	run func(context.Context, config.Config, io.Writer) error,
) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, command, args)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg, cmd.OutOrStdout())
		},
	}
	config.BindFlags(cmd.Flags())
	return cmd
}

func newReportCmd() *cobra.Command {
	return newSnapshotCmd("report [target]", "Print the per-node report, summary and dead/dangerous lists",
		config.CommandReport,
		func(ctx context.Context, cfg config.Config, out io.Writer) error {
			tr, err := app.BuildTransport(cfg)
			if err != nil {
				return err
			}
			return app.RunReport(ctx, cfg, tr, out)
		})
}

func newUsersCmd() *cobra.Command {
	cmd := newSnapshotCmd("users [target]", "Print per-user usage of running jobs",
		config.CommandUsers,
		func(ctx context.Context, cfg config.Config, out io.Writer) error {
			tr, err := app.BuildTransport(cfg)
			if err != nil {
				return err
			}
			return app.RunUsers(ctx, cfg, tr, out)
		})
	cmd.Flags().StringP(config.FlagOutput, "o", "table", "output format: table, csv or tsv")
	return cmd
}

func newQueueResourcesCmd() *cobra.Command {
	return newSnapshotCmd("queue-resources [target]", "Print num_proc and virtual_free for every instance of --queue",
		config.CommandQueueResources,
		func(ctx context.Context, cfg config.Config, out io.Writer) error {
			tr, err := app.BuildTransport(cfg)
			if err != nil {
				return err
			}
			return app.RunQueueResources(ctx, cfg, tr, out)
		})
}

func newExportCmd() *cobra.Command {
	cmd := newSnapshotCmd("export [target]", "Serve node and user metrics for Prometheus",
		config.CommandExport,
		func(ctx context.Context, cfg config.Config, _ io.Writer) error {
			tr, err := app.BuildTransport(cfg)
			if err != nil {
				return err
			}
			return app.RunExport(ctx, cfg, tr)
		})
	cmd.Flags().String(config.FlagListen, ":9465", "address serving /metrics")
	return cmd
}

func newTaskFilesCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "task-files <job-id> [target]",
		Short: "Print the scripts or logs of every task of a job",
		Long: `task-files looks up a job with qstat -j and prints, per task, one of:
sh, o, e (file contents) or shp, op, ep (paths only). Without --format the
script, stdout and stderr paths are printed.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, config.CommandTaskFiles, args[1:])
			if err != nil {
				return err
			}
			if _, err := taskfiles.ParseFormat(format); err != nil {
				return usageError{err}
			}
			tr, err := app.BuildTransport(cfg)
			if err != nil {
				return err
			}
			return app.RunTaskFiles(cmd.Context(), cfg, tr, cmd.OutOrStdout(), args[0], format)
		},
	}
	config.BindFlags(cmd.Flags())
	cmd.Flags().StringVarP(&format, "format", "f", "", "sh, shp, o, op, e or ep")
	return cmd
}

func newSubmitCmd() *cobra.Command {
	opts := batch.DefaultOptions()
	var (
		scheduler string
		jobFiles  []string
		submit    bool
	)
	cmd := &cobra.Command{
		Use:   "submit [target]",
		Short: "Split a command file into an SGE or Slurm array job",
		Long: `submit writes every --jobline lines of the job files (or stdin) into one
task script under --logdir, writes the array submit script next to it and,
with --submit, hands the script to qsub or sbatch.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, config.CommandSubmit, args)
			if err != nil {
				return err
			}
			opts.Scheduler = batch.Scheduler(scheduler)
			opts.Queue = cfg.Queue
			if err := opts.Validate(); err != nil {
				return usageError{err}
			}

			commands, err := readJobFiles(cmd.InOrStdin(), jobFiles)
			if err != nil {
				return err
			}
			tr, err := app.BuildTransport(cfg)
			if err != nil {
				return err
			}
			return app.RunSubmit(cmd.Context(), tr, cmd.OutOrStdout(), app.SubmitRequest{
				Options:  opts,
				Commands: commands,
				Submit:   submit,
			})
		},
	}
	config.BindFlags(cmd.Flags())
	fs := cmd.Flags()
	fs.StringVarP(&scheduler, "scheduler", "s", string(opts.Scheduler), "sge or slurm")
	fs.StringSliceVarP(&jobFiles, "jobfile", "i", nil, "command files, one command per line (default stdin)")
	fs.StringVarP(&opts.JobName, "jobname", "n", opts.JobName, "array job name prefix")
	fs.IntVarP(&opts.LinesPerJob, "jobline", "l", opts.LinesPerJob, "command lines per task")
	fs.StringVarP(&opts.LogDir, "logdir", "d", opts.LogDir, "directory for task scripts and logs (default <name>_array-job)")
	fs.StringVarP(&opts.Project, "project", "P", opts.Project, "SGE project")
	fs.StringVarP(&opts.Resource, "resource", "r", opts.Resource, "SGE resource request vf=<memory>,p=<processors>")
	fs.StringVarP(&opts.Partition, "partition", "p", opts.Partition, "Slurm partition")
	fs.StringVarP(&opts.Nodes, "nodes", "N", opts.Nodes, "Slurm nodes per task")
	fs.StringVarP(&opts.Threads, "threads", "t", opts.Threads, "Slurm cpus per task")
	fs.BoolVar(&submit, "submit", false, "submit the written script instead of printing the submit command")
	return cmd
}

func readJobFiles(stdin io.Reader, paths []string) ([]string, error) {
	if len(paths) == 0 {
		return batch.ReadCommands(stdin)
	}
	readers := make([]io.Reader, 0, len(paths))
	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open job file: %w", err)
		}
		defer f.Close()
		readers = append(readers, f)
	}
	return batch.ReadCommands(readers...)
}

func newDoctorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor [target]",
		Short: "Run non-mutating preflight checks",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, config.CommandDoctor, args)
			if err != nil {
				return err
			}
			return app.RunDoctor(cfg, cmd.OutOrStdout())
		},
	}
	bindMonitor(cmd.Flags())
	return cmd
}

func newDryRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dry-run [target]",
		Short: "Print the planned execution order without running anything",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, config.CommandDryRun, args)
			if err != nil {
				return err
			}
			return app.RunDryRun(cfg, cmd.OutOrStdout())
		},
	}
	bindMonitor(cmd.Flags())
	return cmd
}
