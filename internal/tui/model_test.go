package tui

import (
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"grid_monitor/internal/monitor"
	"grid_monitor/internal/sge"
	"grid_monitor/internal/units"
)

const sampleQhost = `HOSTNAME                ARCH         NCPU NSOC NCOR NTHR  LOAD  MEMTOT  MEMUSE  SWAPTO  SWAPUS
----------------------------------------------------------------------------------------------
global                  -               -    -    -    -     -       -       -       -       -
node-a                  lx-amd64       48    2   24   48  3.10  503.8G   20.0G   30.0G    1.0G
node-b                  lx-amd64       24    2   12   24  0.50  251.9G  100.0G   30.0G   11.0G
node-c                  lx-amd64        -    -    -    -     -       -       -       -       -
node-d                  lx-amd64       16    2    8   16  0.10   62.9G   60.0G    8.0G    0.5G
`

func TestViewFitsViewportAcrossSizes(t *testing.T) {
	sizes := []struct {
		width  int
		height int
	}{
		{width: 72, height: 20},
		{width: 90, height: 24},
		{width: 110, height: 30},
		{width: 150, height: 42},
	}

	for _, size := range sizes {
		t.Run(strconv.Itoa(size.width)+"x"+strconv.Itoa(size.height), func(t *testing.T) {
			m := seededModel()
			m.width = size.width
			m.height = size.height
			out := m.View()
			assertViewportBounds(t, out, size.width, size.height)
		})
	}
}

func TestUpdateStoresLatestSnapshot(t *testing.T) {
	m := NewModel(Options{
		Source:  "ssh:test",
		Refresh: 2 * time.Second,
		Updates: make(chan monitor.Update),
	})
	m.lastError = "previous failure"
	snap := sampleSnapshot()

	next, _ := m.Update(updateMsg{update: monitor.Update{
		Snapshot:    &snap,
		State:       monitor.StateConnected,
		LastSuccess: snap.CollectedAt,
	}})
	got := next.(Model)
	if got.snapshot == nil {
		t.Fatalf("expected snapshot to be stored")
	}
	if got.lastError != "" {
		t.Fatalf("expected lastError cleared after successful snapshot")
	}
	if got.state != monitor.StateConnected {
		t.Fatalf("expected connected state, got %q", got.state)
	}
}

func TestFailedUpdateKeepsLastSnapshot(t *testing.T) {
	m := seededModel()
	next, _ := m.Update(updateMsg{update: monitor.Update{
		State:     monitor.StateDisconnected,
		LastError: "run qhost: exit status 255",
		NextPoll:  m.now.Add(5 * time.Second),
	}})
	got := next.(Model)
	if got.snapshot == nil {
		t.Fatalf("expected previous snapshot to survive a failed poll")
	}
	header := got.renderHeader(got.now)
	if !strings.Contains(header, "disconnected") {
		t.Fatalf("expected disconnected status, got %q", header)
	}
	if !strings.Contains(header, "error: run qhost") {
		t.Fatalf("expected error line, got %q", header)
	}
	if !strings.Contains(header, "from now") {
		t.Fatalf("expected next poll time, got %q", header)
	}
}

func TestHeaderContainsLiveClock(t *testing.T) {
	m := seededModel()
	t1 := time.Date(2026, 2, 25, 10, 0, 0, 0, time.UTC)
	t2 := t1.Add(1 * time.Second)

	h1 := m.renderHeader(t1)
	h2 := m.renderHeader(t2)
	if !strings.Contains(h1, "clock: 10:00:00") {
		t.Fatalf("expected header to include first clock value")
	}
	if !strings.Contains(h2, "clock: 10:00:01") {
		t.Fatalf("expected header to include second clock value")
	}
	if !strings.Contains(h2, "refresh: 1 second ago") {
		t.Fatalf("expected relative refresh age, got %q", h2)
	}
}

func TestNodePanelOrdersUnhealthyFirst(t *testing.T) {
	m := seededModel()
	out := m.renderNodePanel(20, false, 200)
	lines := strings.Split(out, "\n")

	if !strings.Contains(out, "node alert: dead=1 dangerous=1") {
		t.Fatalf("expected alert line, got %q", out)
	}
	var order []string
	for _, line := range lines {
		fields := strings.Fields(ansi.Strip(line))
		if len(fields) > 0 && strings.HasPrefix(fields[0], "node-") {
			order = append(order, fields[0])
		}
	}
	want := []string{"node-c", "node-b", "node-a", "node-d"}
	if strings.Join(order, ",") != strings.Join(want, ",") {
		t.Fatalf("expected node order %v, got %v", want, order)
	}
	if !strings.Contains(out, "TOTAL (4)") {
		t.Fatalf("expected total line, got %q", out)
	}
	if !strings.Contains(out, "3/4") {
		t.Fatalf("expected live node ratio in total line, got %q", out)
	}
}

func TestNodeStatusLabels(t *testing.T) {
	m := seededModel()
	byName := map[string]sge.NodeReport{}
	for _, rep := range m.snapshot.Nodes {
		byName[rep.Row.Name] = rep
	}

	cases := map[string]string{
		"node-a": "ok",
		"node-b": "swap",
		"node-c": "dead",
		"node-d": "low",
	}
	for name, want := range cases {
		got, _ := m.nodeStatus(byName[name])
		if got != want {
			t.Fatalf("%s: expected status %q, got %q", name, want, got)
		}
	}

	m.headroomWarn = 0
	if got, _ := m.nodeStatus(byName["node-d"]); got != "ok" {
		t.Fatalf("expected headroom check disabled at 0, got %q", got)
	}
}

func TestUserPanelShowsTopUsersAndTotals(t *testing.T) {
	m := seededModel()
	out := ansi.Strip(m.renderUserPanel(10, false, 200))
	if !strings.Contains(out, "users 2") || !strings.Contains(out, "slots 3") {
		t.Fatalf("expected totals line, got %q", out)
	}
	alice := strings.Index(out, "alice")
	bob := strings.Index(out, "bob")
	if alice < 0 || bob < 0 || alice > bob {
		t.Fatalf("expected alice listed before bob, got %q", out)
	}

	clipped := m.renderUserPanel(4, false, 200)
	if !strings.Contains(clipped, "user usage (top 1/2, +1 hidden)") {
		t.Fatalf("expected hidden user count, got %q", clipped)
	}
}

func TestCompactViewDropsWideColumns(t *testing.T) {
	m := seededModel()
	m.compact = true
	m.width = 90
	m.height = 36

	out := m.View()
	if strings.Contains(out, "threads") || strings.Contains(out, "unbound") {
		t.Fatalf("expected compact view without wide columns, got: %q", out)
	}
	if !strings.Contains(out, "usable") || !strings.Contains(out, "mem_req") {
		t.Fatalf("expected compact columns, got: %q", out)
	}
}

func TestClipToViewportPadsToFullFrame(t *testing.T) {
	out := clipToViewport("abc\ndef", 6, 4)
	lines := strings.Split(out, "\n")
	if len(lines) != 4 {
		t.Fatalf("expected exactly 4 lines, got %d", len(lines))
	}
	for i, line := range lines {
		if lipgloss.Width(line) != 6 {
			t.Fatalf("expected line %d width 6, got %d", i+1, lipgloss.Width(line))
		}
	}
}

func TestClipToViewportMarksClippedOutput(t *testing.T) {
	out := clipToViewport("1\n2\n3\n4", 60, 2)
	if !strings.Contains(out, "output clipped") {
		t.Fatalf("expected clip marker, got %q", out)
	}
}

func seededModel() Model {
	now := time.Date(2026, 2, 25, 10, 0, 0, 0, time.UTC)
	snap := sampleSnapshot()
	m := NewModel(Options{
		Source:       "ssh:head_node",
		Refresh:      2 * time.Second,
		NoColor:      true,
		HeadroomWarn: 16 * units.ByteQuantity(1<<30),
		Updates:      make(chan monitor.Update),
	})
	m.state = monitor.StateConnected
	m.now = now
	m.lastSuccess = now
	m.snapshot = &snap
	m.width = 180
	m.height = 40
	return m
}

func sampleSnapshot() sge.Snapshot {
	hosts := sge.ParseHostTable(sampleQhost, sge.DefaultSentinels)
	reports, cluster := sge.Fold(hosts.Rows)
	jobs := []sge.RunningJobRecord{
		{Owner: "alice", JobNumber: "1001", Slots: 1, QueueName: "st.q@node-a", CPUUsage: 7200, HardRequest: sge.RequestFromTexts([]string{"num_proc=4", "virtual_free=8G"}), CoreBinding: "1,0:4", HasBinding: true},
		{Owner: "alice", JobNumber: "1002", Slots: 1, QueueName: "st.q@node-b", CPUUsage: 3600, HardRequest: sge.RequestFromTexts([]string{"num_proc=2", "virtual_free=4G"})},
		{Owner: "bob", JobNumber: "2001", Slots: 1, QueueName: "st.q@node-d", CPUUsage: 360, HardRequest: sge.RequestFromTexts([]string{"num_proc=1", "virtual_free=1G"}), CoreBinding: "NONE", HasBinding: true},
	}
	return sge.Snapshot{
		HostHeader:  hosts.Header,
		Nodes:       reports,
		Cluster:     cluster,
		Jobs:        jobs,
		Users:       sge.SummarizeUsers(jobs),
		CollectedAt: time.Date(2026, 2, 25, 10, 0, 0, 0, time.UTC),
	}
}

func assertViewportBounds(t *testing.T, s string, width int, height int) {
	t.Helper()
	lines := strings.Split(s, "\n")
	if len(lines) > height {
		t.Fatalf("render exceeded height: got %d lines, max %d", len(lines), height)
	}
	for i, line := range lines {
		if lipgloss.Width(line) > width {
			t.Fatalf("line %d exceeded width: got %d, max %d", i+1, lipgloss.Width(line), width)
		}
	}
}
