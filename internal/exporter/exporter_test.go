package exporter

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"grid_monitor/internal/logger"
	"grid_monitor/internal/sge"
)

type fakeSource struct {
	snap  sge.Snapshot
	err   error
	calls int
}

func (f *fakeSource) Collect(context.Context) (sge.Snapshot, error) {
	f.calls++
	return f.snap, f.err
}

func sampleSnapshot() sge.Snapshot {
	reports, cluster := sge.Fold([]sge.NodeStatusRow{
		{
			Name:        "node-a",
			Cores:       sge.PresentField("24"),
			Threads:     sge.PresentField("48"),
			TotalMemory: sge.PresentField("503.8G"),
			UsedMemory:  sge.PresentField("20.0G"),
			SwapTotal:   sge.PresentField("30.0G"),
			SwapUsed:    sge.PresentField("1.0G"),
		},
		{
			Name:        "node-c",
			Cores:       sge.UnavailableField("-"),
			Threads:     sge.UnavailableField("-"),
			TotalMemory: sge.UnavailableField("-"),
			UsedMemory:  sge.UnavailableField("-"),
			SwapTotal:   sge.UnavailableField("-"),
			SwapUsed:    sge.UnavailableField("-"),
		},
	})
	jobs := []sge.RunningJobRecord{
		{Owner: "alice", JobNumber: "1", Slots: 2, CPUUsage: 7200, Priority: 0.5, HasBinding: true, CoreBinding: "1,0:2"},
	}
	return sge.Snapshot{Nodes: reports, Cluster: cluster, Jobs: jobs, Users: sge.SummarizeUsers(jobs)}
}

func TestCollectorEmitsSnapshotGauges(t *testing.T) {
	logger.ConfigureTestLogging(t)
	src := &fakeSource{snap: sampleSnapshot()}
	c := NewCollector(src, 0)

	require.Equal(t, 2, testutil.CollectAndCount(c, "grid_monitor_node_dead"))
	require.Equal(t, 5, testutil.CollectAndCount(c, "grid_monitor_cluster_tier_nodes"))

	expected := `
# HELP grid_monitor_up Whether the last scheduler query succeeded.
# TYPE grid_monitor_up gauge
grid_monitor_up 1
# HELP grid_monitor_node_dead 1 when a required node field is unavailable.
# TYPE grid_monitor_node_dead gauge
grid_monitor_node_dead{node="node-a"} 0
grid_monitor_node_dead{node="node-c"} 1
# HELP grid_monitor_user_running_slots Running job slots per owner.
# TYPE grid_monitor_user_running_slots gauge
grid_monitor_user_running_slots{owner="alice"} 2
# HELP grid_monitor_user_cpu_hours CPU hours consumed by running jobs per owner.
# TYPE grid_monitor_user_cpu_hours gauge
grid_monitor_user_cpu_hours{owner="alice"} 2
`
	require.NoError(t, testutil.CollectAndCompare(c, strings.NewReader(expected),
		"grid_monitor_up", "grid_monitor_node_dead", "grid_monitor_user_running_slots", "grid_monitor_user_cpu_hours"))
}

func TestCollectorQueriesOnEveryScrape(t *testing.T) {
	logger.ConfigureTestLogging(t)
	src := &fakeSource{snap: sampleSnapshot()}
	c := NewCollector(src, 0)

	testutil.CollectAndCount(c)
	testutil.CollectAndCount(c)
	require.Equal(t, 2, src.calls)
}

func TestCollectorReportsDownOnFailure(t *testing.T) {
	logger.ConfigureTestLogging(t)
	c := NewCollector(&fakeSource{err: errors.New("qhost: exit status 1")}, 0)

	require.Equal(t, 1, testutil.CollectAndCount(c))
	expected := `
# HELP grid_monitor_up Whether the last scheduler query succeeded.
# TYPE grid_monitor_up gauge
grid_monitor_up 0
`
	require.NoError(t, testutil.CollectAndCompare(c, strings.NewReader(expected), "grid_monitor_up"))
}

func TestServeStopsOnCancel(t *testing.T) {
	logger.ConfigureTestLogging(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, Serve(ctx, "127.0.0.1:0", prometheus.NewRegistry()))
}
