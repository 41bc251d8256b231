package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"grid_monitor/internal/batch"
	"grid_monitor/internal/config"
	"grid_monitor/internal/exporter"
	"grid_monitor/internal/report"
	"grid_monitor/internal/sge"
	"grid_monitor/internal/taskfiles"
	"grid_monitor/internal/transport"
)

// RunReport prints the qhost node report labelled with the configured queue.
func RunReport(ctx context.Context, cfg config.Config, tr transport.Transport, out io.Writer) error {
	hosts, err := NewCollector(cfg, tr).Hosts(ctx)
	if err != nil {
		return err
	}
	reports, health := sge.Fold(hosts.Rows)
	return report.NodeReport(out, cfg.Queue, hosts.Header, reports, health)
}

// RunUsers prints the per-user usage of running jobs.
func RunUsers(ctx context.Context, cfg config.Config, tr transport.Transport, out io.Writer) error {
	table, err := NewCollector(cfg, tr).Jobs(ctx, sge.QueryJobList)
	if err != nil {
		return err
	}
	jobs := sge.RunningJobsFromTable(table)
	log.Debug().Int("rows", table.Len()).Int("running", len(jobs)).Msg("read job listing")
	return report.Users(out, sge.SummarizeUsers(jobs), report.Format(cfg.Output))
}

// RunQueueResources prints num_proc and virtual_free per queue instance,
// followed by the health summary of those instances.
func RunQueueResources(ctx context.Context, cfg config.Config, tr transport.Transport, out io.Writer) error {
	listing, err := NewCollector(cfg, tr).QueueResources(ctx, cfg.Queue)
	if err != nil {
		return err
	}
	if err := report.QueueResources(out, listing); err != nil {
		return err
	}
	_, health := sge.Fold(listing.StatusRows())
	fmt.Fprintln(out)
	return report.Summary(out, cfg.Queue, health)
}

func RunTaskFiles(ctx context.Context, cfg config.Config, tr transport.Transport, out io.Writer, jobID, format string) error {
	f, err := taskfiles.ParseFormat(format)
	if err != nil {
		return err
	}
	lookupCtx, cancel := context.WithTimeout(ctx, cfg.CommandTimeout)
	defer cancel()

	job, err := taskfiles.Lookup(lookupCtx, tr, jobID)
	if err != nil {
		return err
	}
	return taskfiles.Print(ctx, out, tr, job, f)
}

// SubmitRequest is one array-job submission.
type SubmitRequest struct {
	Options  batch.Options
	Commands []string
	// Submit hands the script to qsub or sbatch; otherwise the files are
	// only written.
	Submit bool
}

func RunSubmit(ctx context.Context, tr transport.Transport, out io.Writer, req SubmitRequest) error {
	home, _ := os.UserHomeDir()
	plan, err := batch.NewPlan(req.Options, req.Commands, time.Now(), home)
	if err != nil {
		return err
	}
	if err := plan.Write(); err != nil {
		return err
	}
	fmt.Fprintf(out, "wrote %d task files to %s\n", plan.Tasks(), plan.LogDir)
	fmt.Fprintf(out, "submit script: %s\n", plan.ScriptPath)
	if !req.Submit {
		fmt.Fprintf(out, "submit with: %s\n", plan.SubmitCommand())
		return nil
	}

	reply, err := batch.Submit(ctx, tr, plan)
	if err != nil {
		return err
	}
	if reply != "" {
		fmt.Fprintln(out, reply)
	}
	return nil
}

// RunExport serves scheduler metrics until ctx is cancelled.
func RunExport(ctx context.Context, cfg config.Config, tr transport.Transport) error {
	if err := checkSchedulerAvailability(ctx, tr, cfg.CommandTimeout); err != nil {
		return err
	}
	reg := prometheus.NewRegistry()
	if err := reg.Register(exporter.NewCollector(NewCollector(cfg, tr), cfg.CommandTimeout)); err != nil {
		return fmt.Errorf("register collector: %w", err)
	}
	return exporter.Serve(ctx, cfg.ListenAddress, reg)
}
