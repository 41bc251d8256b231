package exporter

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"grid_monitor/internal/sge"
)

const namespace = "grid_monitor"

type Source interface {
	Collect(ctx context.Context) (sge.Snapshot, error)
}

// Collector takes a fresh snapshot on every scrape. Nothing is cached
// between scrapes.
type Collector struct {
	source  Source
	timeout time.Duration

	up *prometheus.Desc

	nodeDead         *prometheus.Desc
	nodeDangerous    *prometheus.Desc
	nodeCores        *prometheus.Desc
	nodeMemTotal     *prometheus.Desc
	nodeMemUsed      *prometheus.Desc
	nodeMemUsable    *prometheus.Desc
	nodeSwapTotal    *prometheus.Desc
	nodeSwapUsed     *prometheus.Desc
	clusterNodes     *prometheus.Desc
	clusterDead      *prometheus.Desc
	clusterDangerous *prometheus.Desc
	clusterTierNodes *prometheus.Desc
	clusterMemUsable *prometheus.Desc
	userSlots        *prometheus.Desc
	userCPUHours     *prometheus.Desc
	userMemUsage     *prometheus.Desc
	userMemRequest   *prometheus.Desc
	userCoreRequest  *prometheus.Desc
	userUnboundSlots *prometheus.Desc
	userPriorityAvg  *prometheus.Desc
}

func NewCollector(source Source, timeout time.Duration) *Collector {
	node := []string{"node"}
	owner := []string{"owner"}
	return &Collector{
		source:  source,
		timeout: timeout,

		up: desc("up", "Whether the last scheduler query succeeded.", nil),

		nodeDead:      desc("node_dead", "1 when a required node field is unavailable.", node),
		nodeDangerous: desc("node_dangerous", "1 when swap use exceeds a third of swap capacity.", node),
		nodeCores:     desc("node_cores", "Cores reported for the node.", node),
		nodeMemTotal:  desc("node_memory_total_bytes", "Total memory of the node.", node),
		nodeMemUsed:   desc("node_memory_used_bytes", "Used memory of the node.", node),
		nodeMemUsable: desc("node_memory_usable_bytes", "Total minus used memory, floored at zero.", node),
		nodeSwapTotal: desc("node_swap_total_bytes", "Swap capacity of the node.", node),
		nodeSwapUsed:  desc("node_swap_used_bytes", "Swap in use on the node.", node),

		clusterNodes:     desc("cluster_nodes", "Nodes listed by qhost.", nil),
		clusterDead:      desc("cluster_dead_nodes", "Nodes classified dead.", nil),
		clusterDangerous: desc("cluster_dangerous_nodes", "Nodes classified dangerous.", nil),
		clusterTierNodes: desc("cluster_tier_nodes", "Nodes per total-memory tier.", []string{"tier"}),
		clusterMemUsable: desc("cluster_memory_usable_bytes", "Usable memory summed over nodes.", nil),

		userSlots:        desc("user_running_slots", "Running job slots per owner.", owner),
		userCPUHours:     desc("user_cpu_hours", "CPU hours consumed by running jobs per owner.", owner),
		userMemUsage:     desc("user_memory_usage", "Summed mem usage reported by qstat per owner.", owner),
		userMemRequest:   desc("user_memory_request_bytes", "Requested virtual_free per owner.", owner),
		userCoreRequest:  desc("user_core_request", "Requested num_proc per owner.", owner),
		userUnboundSlots: desc("user_unbound_slots", "Slots without a readable core binding per owner.", owner),
		userPriorityAvg:  desc("user_priority_average", "Average job priority per owner.", owner),
	}
}

func desc(name, help string, labels []string) *prometheus.Desc {
	return prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name), help, labels, nil)
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		c.up,
		c.nodeDead, c.nodeDangerous, c.nodeCores, c.nodeMemTotal, c.nodeMemUsed, c.nodeMemUsable, c.nodeSwapTotal, c.nodeSwapUsed,
		c.clusterNodes, c.clusterDead, c.clusterDangerous, c.clusterTierNodes, c.clusterMemUsable,
		c.userSlots, c.userCPUHours, c.userMemUsage, c.userMemRequest, c.userCoreRequest, c.userUnboundSlots, c.userPriorityAvg,
	} {
		ch <- d
	}
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	ctx := context.Background()
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	snap, err := c.source.Collect(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("scrape failed")
		ch <- gauge(c.up, 0)
		return
	}
	ch <- gauge(c.up, 1)

	for _, rep := range snap.Nodes {
		name := rep.Row.Name
		ch <- gauge(c.nodeDead, boolValue(rep.Dead), name)
		ch <- gauge(c.nodeDangerous, boolValue(rep.Dangerous), name)
		ch <- gauge(c.nodeCores, float64(rep.Cores), name)
		ch <- gauge(c.nodeMemTotal, float64(rep.TotalMemory), name)
		ch <- gauge(c.nodeMemUsed, float64(rep.UsedMemory), name)
		ch <- gauge(c.nodeMemUsable, float64(rep.UsableMemory), name)
		ch <- gauge(c.nodeSwapTotal, float64(rep.SwapTotal), name)
		ch <- gauge(c.nodeSwapUsed, float64(rep.SwapUsed), name)
	}

	h := snap.Cluster
	ch <- gauge(c.clusterNodes, float64(h.Nodes))
	ch <- gauge(c.clusterDead, float64(len(h.Dead)))
	ch <- gauge(c.clusterDangerous, float64(len(h.Dangerous)))
	ch <- gauge(c.clusterMemUsable, float64(h.UsableMemory))
	for _, tier := range []struct {
		label string
		count int
	}{
		{"500G+", h.Tiers.Over500G},
		{"300G-500G", h.Tiers.From300To500G},
		{"200G-300G", h.Tiers.From200To300G},
		{"100G-200G", h.Tiers.From100To200G},
		{"0G-100G", h.Tiers.Under100G},
	} {
		ch <- gauge(c.clusterTierNodes, float64(tier.count), tier.label)
	}

	for _, u := range snap.Users {
		ch <- gauge(c.userSlots, u.JobCount, u.Owner)
		ch <- gauge(c.userCPUHours, u.TotalCPUHours, u.Owner)
		ch <- gauge(c.userMemUsage, u.MemUsage, u.Owner)
		ch <- gauge(c.userMemRequest, u.MemRequest, u.Owner)
		ch <- gauge(c.userCoreRequest, u.CoreRequest, u.Owner)
		ch <- gauge(c.userUnboundSlots, u.CoreBinding, u.Owner)
		ch <- gauge(c.userPriorityAvg, u.PriorityAverage, u.Owner)
	}
}

func gauge(d *prometheus.Desc, v float64, labels ...string) prometheus.Metric {
	return prometheus.MustNewConstMetric(d, prometheus.GaugeValue, v, labels...)
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// Serve exposes reg on /metrics until ctx is cancelled.
func Serve(ctx context.Context, addr string, reg *prometheus.Registry) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("serving metrics")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve metrics on %s: %w", addr, err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown metrics server: %w", err)
		}
		return nil
	}
}
