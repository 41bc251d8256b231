package sge

import (
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureLogs routes the global logger into a buffer for the test.
func captureLogs(t *testing.T) *strings.Builder {
	t.Helper()
	var buf strings.Builder
	old := log.Logger
	log.Logger = zerolog.New(&buf)
	t.Cleanup(func() { log.Logger = old })
	return &buf
}

func TestParseJobInfoConcatenatesGroups(t *testing.T) {
	table, err := ParseJobInfo([]byte(runningJobsXML), QueryJobList)
	require.NoError(t, err)
	require.Equal(t, 4, table.Len())

	first := table.Rows[0]
	state, ok := first.String("@state")
	require.True(t, ok)
	assert.Equal(t, "running", state)

	cpu, ok := first.Float("cpu_usage")
	require.True(t, ok)
	assert.Equal(t, 7200.0, cpu)

	prio, ok := first.Float("JAT_prio")
	require.True(t, ok)
	assert.InDelta(t, 0.55, prio, 1e-9)

	requests := first.Entries("hard_request")
	require.Len(t, requests, 2)
	assert.Equal(t, "num_proc", requests[0].Attrs["name"])
	assert.Equal(t, "5g", requests[1].Text)

	last := table.Rows[3]
	state, _ = last.String("@state")
	assert.Equal(t, "pending", state)
	assert.Contains(t, table.Columns, "JB_department")
}

func TestParseJobInfoDropsValuesThatFailCoercion(t *testing.T) {
	logs := captureLogs(t)

	table, err := ParseJobInfo([]byte(runningJobsXML), QueryJobList)
	require.NoError(t, err)

	bob := table.Rows[2]
	owner, _ := bob.String("JB_owner")
	require.Equal(t, "bob", owner)
	assert.False(t, bob.Has("cpu_usage"))
	_, ok := bob.Float("cpu_usage")
	assert.False(t, ok)

	slots, ok := bob.Float("slots")
	require.True(t, ok)
	assert.Equal(t, 2.0, slots)

	assert.Contains(t, logs.String(), `"column":"cpu_usage"`)
	assert.Contains(t, logs.String(), `"value":"n/a"`)
}

func TestParseJobInfoSingleChildMatchesListShape(t *testing.T) {
	single, err := ParseJobInfo([]byte(singleJobXML), QueryJobList)
	require.NoError(t, err)
	many, err := ParseJobInfo([]byte(twoJobXML), QueryJobList)
	require.NoError(t, err)

	require.Equal(t, 1, single.Len())
	require.Equal(t, 2, many.Len())

	assert.ElementsMatch(t, many.Rows[0].Columns(), single.Rows[0].Columns())
	assert.Equal(t, many.Columns, single.Columns)

	cpuSingle, _ := single.Rows[0].Float("cpu_usage")
	cpuMany, _ := many.Rows[0].Float("cpu_usage")
	assert.Equal(t, cpuMany, cpuSingle)
}

func TestParseJobInfoMissingGroupsYieldEmptyTable(t *testing.T) {
	logs := captureLogs(t)

	table, err := ParseJobInfo([]byte(`<job_info><queue_info/><job_info></job_info></job_info>`), QueryJobList)
	require.NoError(t, err)
	assert.Equal(t, 0, table.Len())
	assert.Empty(t, logs.String())

	table, err = ParseJobInfo([]byte(`<job_info/>`), QueryJobList)
	require.NoError(t, err)
	assert.Equal(t, 0, table.Len())
}

func TestParseJobInfoWarnsWhenGroupAbsent(t *testing.T) {
	logs := captureLogs(t)

	payload := `<job_info><queue_info><job_list state="running"><JB_owner>alice</JB_owner></job_list></queue_info></job_info>`
	table, err := ParseJobInfo([]byte(payload), QueryJobList)
	require.NoError(t, err)
	assert.Equal(t, 1, table.Len())

	out := logs.String()
	assert.Contains(t, out, "record group is not in qstat xml output")
	assert.Contains(t, out, `"group":"job_info"`)
	assert.NotContains(t, out, `"group":"queue_info"`)
}

func TestParseJobInfoWarnsWhenQueryKeyAbsent(t *testing.T) {
	logs := captureLogs(t)

	table, err := ParseJobInfo([]byte(runningJobsXML), QueryQueueList)
	require.NoError(t, err)
	assert.Equal(t, 0, table.Len())
	assert.Contains(t, logs.String(), "query key is not in qstat xml output")
}

func TestParseJobInfoUnexpectedRoot(t *testing.T) {
	logs := captureLogs(t)

	table, err := ParseJobInfo([]byte(`<detailed_job_info><djob_info/></detailed_job_info>`), QueryJobList)
	require.NoError(t, err)
	assert.Equal(t, 0, table.Len())
	assert.Contains(t, logs.String(), "unexpected document root")
}

func TestParseJobInfoMalformed(t *testing.T) {
	_, err := ParseJobInfo([]byte(`<job_info><queue_info>`), QueryJobList)
	require.Error(t, err)

	_, err = ParseJobInfo([]byte(``), QueryJobList)
	require.Error(t, err)
}

func TestParseJobInfoQueueList(t *testing.T) {
	table, err := ParseJobInfo([]byte(queueListXML), QueryQueueList)
	require.NoError(t, err)
	require.Equal(t, 1, table.Len())

	row := table.Rows[0]
	name, _ := row.String("name")
	assert.Equal(t, "st.q@node-a", name)

	req := RequestFromItems(row.Entries("resource"))
	mem, core, err := ExtractMemCore(req)
	require.NoError(t, err)
	assert.Equal(t, 20, core)
	assert.Equal(t, "200.0 G", mem.String())

	jobs := row.Entries("job_list")
	require.Len(t, jobs, 1)
	assert.Equal(t, "alice", jobs[0].Fields["JB_owner"])
	assert.Equal(t, "running", jobs[0].Attrs["state"])
}

func TestRunningJobsFromTable(t *testing.T) {
	table, err := ParseJobInfo([]byte(runningJobsXML), QueryJobList)
	require.NoError(t, err)

	jobs := RunningJobsFromTable(table)
	require.Len(t, jobs, 3)

	assert.Equal(t, "alice", jobs[0].Owner)
	assert.Equal(t, "1001", jobs[0].JobNumber)
	assert.Equal(t, "st.q@node-a", jobs[0].QueueName)
	assert.True(t, jobs[0].HasBinding)
	assert.Equal(t, "linear:8", jobs[0].CoreBinding)
	assert.Len(t, jobs[0].HardRequest, 2)

	assert.Equal(t, "bob", jobs[2].Owner)
	assert.Equal(t, 0.0, jobs[2].CPUUsage)
	assert.False(t, jobs[2].HasBinding)

	assert.Nil(t, RunningJobsFromTable(nil))
}
