package sge

import (
	"context"
	"fmt"
	"strings"
	"time"

	"grid_monitor/internal/transport"
)

const (
	splitMarker = "__GRID_MONITOR_SPLIT__"

	DefaultHostCommand  = "qhost"
	DefaultQstatCommand = `qstat -u "*"`
)

type CollectorOptions struct {
	HostCommand    string
	QstatCommand   string
	Sentinels      Sentinels
	CommandTimeout time.Duration
}

type Collector struct {
	transport transport.Transport
	opts      CollectorOptions
}

func NewCollector(t transport.Transport, opts CollectorOptions) *Collector {
	if opts.HostCommand == "" {
		opts.HostCommand = DefaultHostCommand
	}
	if opts.QstatCommand == "" {
		opts.QstatCommand = DefaultQstatCommand
	}
	if opts.Sentinels == nil {
		opts.Sentinels = DefaultSentinels
	}
	return &Collector{transport: t, opts: opts}
}

// CombinedCommand runs qhost and the XML job query in one round trip. A
// failing host command ends the shell with its status, so neither half is
// returned on its own.
func (c *Collector) CombinedCommand() string {
	qstat := AppendFlags(c.opts.QstatCommand, DefaultXMLFlags)
	return fmt.Sprintf("{ %s; } || exit $?; echo %q; %s", c.opts.HostCommand, splitMarker, qstat)
}

func (c *Collector) Collect(ctx context.Context) (Snapshot, error) {
	raw, err := c.runWithTimeout(ctx, c.CombinedCommand(), nil)
	if err != nil {
		return Snapshot{}, fmt.Errorf("collect snapshot: %w", err)
	}

	hostRaw, jobRaw, err := splitCombinedOutput(raw)
	if err != nil {
		return Snapshot{}, err
	}

	hosts := ParseHostTable(hostRaw, c.opts.Sentinels)
	reports, cluster := Fold(hosts.Rows)

	table, err := ParseJobInfo([]byte(jobRaw), QueryJobList)
	if err != nil {
		return Snapshot{}, fmt.Errorf("parse jobs: %w", err)
	}
	jobs := RunningJobsFromTable(table)

	return Snapshot{
		HostHeader:  hosts.Header,
		Nodes:       reports,
		Cluster:     cluster,
		Jobs:        jobs,
		Users:       SummarizeUsers(jobs),
		CollectedAt: time.Now(),
	}, nil
}

// Hosts fetches and parses qhost alone.
func (c *Collector) Hosts(ctx context.Context) (HostTable, error) {
	raw, err := c.runWithTimeout(ctx, c.opts.HostCommand, nil)
	if err != nil {
		return HostTable{}, fmt.Errorf("collect hosts: %w", err)
	}
	return ParseHostTable(raw, c.opts.Sentinels), nil
}

// Jobs fetches the XML job listing and returns its rows for query.
func (c *Collector) Jobs(ctx context.Context, query QueryKey) (*Table, error) {
	raw, err := c.runWithTimeout(ctx, c.opts.QstatCommand, DefaultXMLFlags)
	if err != nil {
		return nil, fmt.Errorf("collect jobs: %w", err)
	}
	table, err := ParseJobInfo([]byte(raw), query)
	if err != nil {
		return nil, fmt.Errorf("parse jobs: %w", err)
	}
	return table, nil
}

// QueueResources lists num_proc and virtual_free of every instance of queue.
func (c *Collector) QueueResources(ctx context.Context, queue string) (QueueResourceListing, error) {
	base := "qstat -F vf,p"
	if queue != "" {
		base += " -q " + queue
	}
	raw, err := c.runWithTimeout(ctx, base, nil)
	if err != nil {
		return QueueResourceListing{}, fmt.Errorf("collect queue resources: %w", err)
	}
	return ParseQueueResources(raw, c.opts.Sentinels), nil
}

func (c *Collector) runWithTimeout(ctx context.Context, base string, flags []string) (string, error) {
	cmdCtx := ctx
	if c.opts.CommandTimeout > 0 {
		var cancel context.CancelFunc
		cmdCtx, cancel = context.WithTimeout(ctx, c.opts.CommandTimeout)
		defer cancel()
	}

	out, err := Fetch(cmdCtx, c.transport, base, flags)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(out, "\n"), nil
}

func splitCombinedOutput(raw string) (hosts string, jobs string, err error) {
	parts := strings.SplitN(raw, splitMarker, 2)
	if len(parts) != 2 {
		return "", "", fmt.Errorf("unexpected collector output format: split marker missing")
	}
	hosts = strings.TrimSpace(parts[0])
	jobs = strings.TrimSpace(parts[1])
	return hosts, jobs, nil
}
