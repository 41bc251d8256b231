package sge

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grid_monitor/internal/transport"
)

func TestCombinedCommandCarriesXMLFlags(t *testing.T) {
	c := NewCollector(&fakeTransport{}, CollectorOptions{})
	cmd := c.CombinedCommand()
	assert.True(t, strings.HasPrefix(cmd, "{ qhost; } || exit $?; echo \"__GRID_MONITOR_SPLIT__\"; "), cmd)
	assert.True(t, strings.HasSuffix(cmd, `qstat -u "*" -xml -ext -r -t -pri`), cmd)
}

func TestSplitCombinedOutput(t *testing.T) {
	raw := "node-a\n__GRID_MONITOR_SPLIT__\n<job_info/>"
	hosts, jobs, err := splitCombinedOutput(raw)
	require.NoError(t, err)
	assert.Equal(t, "node-a", hosts)
	assert.Equal(t, "<job_info/>", jobs)

	_, _, err = splitCombinedOutput("node-a")
	require.Error(t, err)
}

func TestCollectBuildsSnapshot(t *testing.T) {
	tr := &fakeTransport{fallback: transport.RunResult{
		Stdout: qhostOutput + "__GRID_MONITOR_SPLIT__\n" + runningJobsXML,
	}}
	c := NewCollector(tr, CollectorOptions{})

	snap, err := c.Collect(context.Background())
	require.NoError(t, err)
	require.Len(t, tr.commands, 1)

	assert.Len(t, snap.Nodes, 4)
	assert.Equal(t, []string{"node-c"}, snap.Cluster.Dead)
	assert.Len(t, snap.Jobs, 3)
	require.Len(t, snap.Users, 2)
	assert.Equal(t, "alice", snap.Users[0].Owner)
	assert.False(t, snap.CollectedAt.IsZero())

	totals := snap.Totals()
	assert.Equal(t, 2, totals.Users)
	assert.Equal(t, 4.0, totals.Slots)
}

func TestCollectPropagatesRunError(t *testing.T) {
	c := NewCollector(nil, CollectorOptions{})
	tr := &fakeTransport{errs: map[string]error{
		c.CombinedCommand(): &transport.RunError{Target: "fake", ExitCode: 2, Stderr: "qhost: not found"},
	}}
	c = NewCollector(tr, CollectorOptions{})

	_, err := c.Collect(context.Background())
	var runErr *transport.RunError
	require.True(t, errors.As(err, &runErr))
	assert.Equal(t, 2, runErr.ExitCode)
}

func TestCollectFailsWhenOnlyHostCommandFails(t *testing.T) {
	c := NewCollector(transport.NewLocalTransport(""), CollectorOptions{
		HostCommand:  "sh -c 'echo unable to contact qmaster >&2; exit 3'",
		QstatCommand: "printf '<job_info/>'; true",
	})

	snap, err := c.Collect(context.Background())
	require.Error(t, err)
	var runErr *transport.RunError
	require.True(t, errors.As(err, &runErr), "got %T: %v", err, err)
	assert.Equal(t, 3, runErr.ExitCode)
	assert.Contains(t, runErr.Stderr, "unable to contact qmaster")
	assert.NotContains(t, runErr.Stdout, splitMarker)
	assert.Empty(t, snap.Nodes)
	assert.Empty(t, snap.Jobs)
}

func TestCollectFailsWhenOnlyQstatFails(t *testing.T) {
	c := NewCollector(transport.NewLocalTransport(""), CollectorOptions{
		HostCommand:  "printf 'HOSTNAME ARCH\\n'",
		QstatCommand: "sh -c 'echo denied >&2; exit 4'",
	})

	_, err := c.Collect(context.Background())
	var runErr *transport.RunError
	require.True(t, errors.As(err, &runErr), "got %T: %v", err, err)
	assert.Equal(t, 4, runErr.ExitCode)
}

func TestQueueResourcesCommand(t *testing.T) {
	tr := &fakeTransport{fallback: transport.RunResult{Stdout: queueResourcesOutput}}
	c := NewCollector(tr, CollectorOptions{})

	listing, err := c.QueueResources(context.Background(), "st.q")
	require.NoError(t, err)
	assert.Equal(t, []string{"qstat -F vf,p -q st.q"}, tr.commands)
	assert.Len(t, listing.Instances, 3)
}

func TestJobsAppendsFlagsOnce(t *testing.T) {
	tr := &fakeTransport{fallback: transport.RunResult{Stdout: singleJobXML}}
	c := NewCollector(tr, CollectorOptions{QstatCommand: "qstat -u alice -xml"})

	table, err := c.Jobs(context.Background(), QueryJobList)
	require.NoError(t, err)
	assert.Equal(t, 1, table.Len())
	assert.Equal(t, []string{"qstat -u alice -xml -ext -r -t -pri"}, tr.commands)
}
