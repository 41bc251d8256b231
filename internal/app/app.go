package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/dustin/go-humanize"

	"grid_monitor/internal/config"
	"grid_monitor/internal/logger"
	"grid_monitor/internal/monitor"
	"grid_monitor/internal/report"
	"grid_monitor/internal/sge"
	"grid_monitor/internal/transport"
	"grid_monitor/internal/tui"
	"grid_monitor/internal/units"
)

// scheduler tools every command needs on the submit host
var requiredCommands = []string{"qstat", "qhost"}

// missingSchedulerCommandsError is typed so callers can tell a host without
// SGE apart from a connection failure.
type missingSchedulerCommandsError struct {
	source  string
	missing string
}

func (e *missingSchedulerCommandsError) Error() string {
	return fmt.Sprintf("missing required SGE commands on %s: %s", e.source, e.missing)
}

func isMissingSchedulerCommandError(err error) bool {
	var missingErr *missingSchedulerCommandsError
	return errors.As(err, &missingErr)
}

// Run starts the live monitor, or prints one snapshot when cfg.Once is set.
func Run(ctx context.Context, cfg config.Config) error {
	tr, err := BuildTransport(cfg)
	if err != nil {
		return err
	}

	var cancel context.CancelFunc
	if cfg.Duration > 0 {
		ctx, cancel = context.WithTimeout(ctx, cfg.Duration)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	if err := checkSchedulerAvailability(ctx, tr, cfg.CommandTimeout); err != nil {
		return err
	}

	collector := NewCollector(cfg, tr)
	if cfg.Once {
		return runOnce(ctx, os.Stdout, collector, tr.Describe(), cfg.Queue)
	}

	// the alternate screen owns the terminal while the TUI runs
	if err := logger.Configure(cfg.LogLevel, cfg.LogType, io.Discard); err != nil {
		return err
	}

	updates := make(chan monitor.Update, 8)
	loop := monitor.NewLoop(collector, cfg.Refresh)
	go loop.Run(ctx, updates)

	model := tui.NewModel(tui.Options{
		Source:       tr.Describe(),
		Compact:      cfg.Compact,
		NoColor:      cfg.NoColor,
		Refresh:      cfg.Refresh,
		MaxDuration:  cfg.Duration,
		HeadroomWarn: units.ByteQuantity(cfg.HeadroomWarn.Bytes()),
		Updates:      updates,
	})

	prog := tea.NewProgram(model, tea.WithAltScreen())
	if _, err := prog.Run(); err != nil {
		return err
	}
	return nil
}

func BuildTransport(cfg config.Config) (transport.Transport, error) {
	switch cfg.Mode {
	case config.ModeLocal:
		return transport.NewLocalTransport(cfg.SGESettings), nil
	case config.ModeRemote:
		return transport.NewSSHTransport(transport.SSHOptions{
			Target:         cfg.Target,
			ConfigPath:     cfg.SSHConfig,
			IdentityFile:   cfg.IdentityFile,
			Port:           cfg.Port,
			ConnectTimeout: cfg.ConnectTimeout,
			Settings:       cfg.SGESettings,
		}), nil
	default:
		return nil, fmt.Errorf("unsupported mode: %s", cfg.Mode)
	}
}

func NewCollector(cfg config.Config, tr transport.Transport) *sge.Collector {
	return sge.NewCollector(tr, sge.CollectorOptions{
		HostCommand:    cfg.HostCommand,
		QstatCommand:   cfg.QstatCommand,
		Sentinels:      cfg.Sentinels,
		CommandTimeout: cfg.CommandTimeout,
	})
}

// checkSchedulerAvailability makes one attempt; a failure is returned as is.
func checkSchedulerAvailability(ctx context.Context, tr transport.Transport, timeout time.Duration) error {
	checkCmd := fmt.Sprintf(
		`missing=""; for c in %s; do if ! command -v "$c" >/dev/null 2>&1; then missing="$missing $c"; fi; done; if [ -n "$missing" ]; then echo "$missing"; exit 7; fi`,
		strings.Join(requiredCommands, " "),
	)

	checkCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	res, err := tr.Run(checkCtx, checkCmd)
	if err != nil {
		if missing := strings.TrimSpace(res.Stdout); missing != "" {
			return &missingSchedulerCommandsError{
				source:  tr.Describe(),
				missing: missing,
			}
		}
		var runErr *transport.RunError
		if errors.As(err, &runErr) && runErr.Timeout {
			return fmt.Errorf("SGE capability check timed out on %s; consider increasing --command-timeout", tr.Describe())
		}
		return fmt.Errorf("failed SGE capability check on %s: %w", tr.Describe(), err)
	}
	return nil
}

func runOnce(ctx context.Context, out io.Writer, collector monitor.Collector, source, label string) error {
	collectCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	snapshot, err := collector.Collect(collectCtx)
	if err != nil {
		return err
	}

	t := snapshot.Totals()
	fmt.Fprintf(out, "source: %s\n", source)
	fmt.Fprintf(out, "collected_at: %s\n", snapshot.CollectedAt.Format(time.RFC3339))
	fmt.Fprintf(out, "running jobs: %s across %s users\n", humanize.Comma(int64(len(snapshot.Jobs))), humanize.Comma(int64(t.Users)))
	fmt.Fprintln(out)
	if err := report.Summary(out, label, snapshot.Cluster); err != nil {
		return err
	}

	users := snapshot.Users
	if len(users) > 10 {
		users = users[:10]
	}
	fmt.Fprintln(out, "\nusers:")
	return report.Users(out, users, report.TableFormat)
}
