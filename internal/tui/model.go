package tui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/dustin/go-humanize"

	"grid_monitor/internal/monitor"
	"grid_monitor/internal/sge"
	"grid_monitor/internal/uifmt"
	"grid_monitor/internal/units"
)

type Options struct {
	Source      string
	Compact     bool
	NoColor     bool
	Refresh     time.Duration
	MaxDuration time.Duration
	// HeadroomWarn highlights live nodes whose usable memory is below it.
	HeadroomWarn units.ByteQuantity
	Updates      <-chan monitor.Update
}

type Model struct {
	source       string
	compact      bool
	noColor      bool
	refresh      time.Duration
	maxDuration  time.Duration
	headroomWarn units.ByteQuantity
	updates      <-chan monitor.Update

	width  int
	height int

	started time.Time
	now     time.Time

	state       monitor.State
	lastError   string
	lastSuccess time.Time
	nextPoll    time.Time
	pulseIndex  int
	snapshot    *sge.Snapshot

	styles styles
}

type styles struct {
	title      lipgloss.Style
	dim        lipgloss.Style
	panel      lipgloss.Style
	tableHdr   lipgloss.Style
	label      lipgloss.Style
	value      lipgloss.Style
	ok         lipgloss.Style
	warn       lipgloss.Style
	bad        lipgloss.Style
	chip       lipgloss.Style
	chipOK     lipgloss.Style
	chipWarn   lipgloss.Style
	chipBad    lipgloss.Style
	errorLabel lipgloss.Style
	accent     lipgloss.Style
}

type updateMsg struct {
	update monitor.Update
}

type tickMsg struct {
	now time.Time
}

type channelClosedMsg struct{}

var pulseFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

const (
	frameRightGutter = 1
	viewportClipText = "... output clipped to terminal height ..."

	compactNodeFmt = "%-14s %5s %-15s %-8s %-6s"
	wideNodeFmt    = "%-16s %5s %7s %-15s %-8s %-15s %-6s"

	compactUserFmt = "%-12s %6s %9s %9s"
	wideUserFmt    = "%-12s %6s %9s %9s %9s %9s %7s %7s"
)

func NewModel(opts Options) Model {
	return Model{
		source:       opts.Source,
		compact:      opts.Compact,
		noColor:      opts.NoColor,
		refresh:      opts.Refresh,
		maxDuration:  opts.MaxDuration,
		headroomWarn: opts.HeadroomWarn,
		updates:      opts.Updates,
		started:      time.Now(),
		now:          time.Now(),
		state:        monitor.StateDegraded,
		styles:       defaultStyles(opts.NoColor),
	}
}

func defaultStyles(noColor bool) styles {
	basePanel := lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	if noColor {
		bold := lipgloss.NewStyle().Bold(true)
		return styles{
			title:      bold,
			dim:        lipgloss.NewStyle(),
			panel:      basePanel,
			tableHdr:   bold,
			label:      bold,
			value:      bold,
			ok:         bold,
			warn:       bold,
			bad:        bold,
			chip:       bold,
			chipOK:     bold,
			chipWarn:   bold,
			chipBad:    bold,
			errorLabel: bold,
			accent:     bold,
		}
	}

	return styles{
		title:      lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("230")).Background(lipgloss.Color("22")).Padding(0, 1),
		dim:        lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		panel:      basePanel.BorderForeground(lipgloss.Color("65")),
		tableHdr:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("230")).Background(lipgloss.Color("59")).Padding(0, 1),
		label:      lipgloss.NewStyle().Foreground(lipgloss.Color("109")),
		value:      lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("255")),
		ok:         lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42")),
		warn:       lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("214")),
		bad:        lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196")),
		chip:       lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("230")).Background(lipgloss.Color("238")).Padding(0, 1),
		chipOK:     lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("230")).Background(lipgloss.Color("28")).Padding(0, 1),
		chipWarn:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("232")).Background(lipgloss.Color("220")).Padding(0, 1),
		chipBad:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("230")).Background(lipgloss.Color("160")).Padding(0, 1),
		errorLabel: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("203")),
		accent:     lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("81")),
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(waitForUpdate(m.updates), tickCmd())
}

func waitForUpdate(ch <-chan monitor.Update) tea.Cmd {
	return func() tea.Msg {
		update, ok := <-ch
		if !ok {
			return channelClosedMsg{}
		}
		return updateMsg{update: update}
	}
}

func tickCmd() tea.Cmd {
	return tea.Tick(1*time.Second, func(t time.Time) tea.Msg {
		return tickMsg{now: t}
	})
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case updateMsg:
		m.state = msg.update.State
		m.lastError = msg.update.LastError
		m.lastSuccess = msg.update.LastSuccess
		m.nextPoll = msg.update.NextPoll
		if msg.update.Snapshot != nil {
			snap := *msg.update.Snapshot
			m.snapshot = &snap
			m.lastError = ""
		}
		return m, waitForUpdate(m.updates)
	case tickMsg:
		m.now = msg.now
		m.pulseIndex = (m.pulseIndex + 1) % len(pulseFrames)
		if m.maxDuration > 0 && m.now.Sub(m.started) >= m.maxDuration {
			return m, tea.Quit
		}
		return m, tickCmd()
	case channelClosedMsg:
		return m, tea.Quit
	}
	return m, nil
}

func (m Model) View() string {
	viewWidth := stabilizedFrameWidth(m.width)
	if viewWidth <= 0 || m.height <= 0 {
		return "initializing..."
	}
	m.width = viewWidth

	now := m.now
	if now.IsZero() {
		now = time.Now()
	}

	header := m.renderHeader(now)
	footer := m.styles.dim.Render("q or Ctrl+C to exit")
	headerLines := lineCount(header)
	footerLines := lineCount(footer)
	separatorLines := 1
	if m.height <= headerLines+footerLines+4 {
		separatorLines = 0
	}
	bodyHeight := max(1, m.height-headerLines-footerLines-separatorLines)

	var body string
	if m.snapshot == nil {
		body = m.styles.panel.Width(max(20, m.width-6)).Render("waiting for first successful snapshot...")
		body = clipToHeight(body, bodyHeight)
	} else {
		body = m.renderMain(bodyHeight)
	}

	parts := []string{header}
	if separatorLines > 0 {
		parts = append(parts, "")
	}
	parts = append(parts, body)
	top := lipgloss.JoinVertical(lipgloss.Left, parts...)
	joined := pinFooterToBottom(top, footer, m.height)
	return clipToViewport(joined, viewWidth, m.height)
}

func (m Model) renderHeader(now time.Time) string {
	statusText, statusChip := m.renderStatusText(now)
	statusText = pulseFrames[m.pulseIndex%len(pulseFrames)] + " " + statusText
	ageText := "refresh: never"
	if !m.lastSuccess.IsZero() {
		ageText = "refresh: " + humanize.RelTime(m.lastSuccess, now, "ago", "from now")
	}

	left := m.styles.title.Render(" GRID MONITOR ") + "  " +
		m.styles.label.Render("source: ") + m.styles.value.Render(m.source) + "  " +
		m.styles.chip.Render("clock: "+now.Format("15:04:05")) + " " +
		m.styles.chip.Render(ageText)
	right := statusChip.Render(statusText)
	line1 := joinWithPaddingKeepRight(left, right, m.width)
	if m.lastError == "" {
		return line1
	}
	line2 := truncateRunes(m.styles.errorLabel.Render("error: "+m.lastError), m.width)
	return line1 + "\n" + line2
}

func (m Model) renderStatusText(now time.Time) (string, lipgloss.Style) {
	if m.snapshot == nil && strings.TrimSpace(m.lastError) == "" {
		return "loading", m.styles.chipWarn
	}

	next := ""
	if !m.nextPoll.IsZero() && m.nextPoll.After(now) {
		next = fmt.Sprintf(" (next poll %s)", humanize.RelTime(m.nextPoll, now, "ago", "from now"))
	}
	switch m.state {
	case monitor.StateConnected:
		return "connected", m.styles.chipOK
	case monitor.StateDisconnected:
		return "disconnected" + next, m.styles.chipBad
	default:
		return "degraded" + next, m.styles.chipWarn
	}
}

func (m Model) renderMain(maxHeight int) string {
	if m.snapshot == nil {
		return ""
	}
	inner := max(20, m.width-6)
	contentWidth := panelContentWidth(inner)
	compactLayout := m.compact || m.width < 110 || maxHeight < 18

	userTarget := max(8, maxHeight/2)
	nodeTarget := maxHeight - userTarget
	if nodeTarget < 6 {
		nodeTarget = 6
		userTarget = maxHeight - nodeTarget
	}
	if userTarget < 5 {
		userTarget = 5
		nodeTarget = max(3, maxHeight-userTarget)
	}

	nodeBody := m.renderNodePanel(panelContentHeight(nodeTarget), compactLayout, contentWidth)
	nodePanel := m.styles.panel.Width(inner).Render(nodeBody)

	userBody := m.renderUserPanel(panelContentHeight(userTarget), compactLayout, contentWidth)
	userPanel := m.styles.panel.Width(inner).Render(userBody)

	body := lipgloss.JoinVertical(lipgloss.Left, nodePanel, userPanel)
	return clipToHeight(body, maxHeight)
}

// renderNodePanel lists nodes with the unhealthy ones first so they stay
// visible when the panel is clipped.
func (m Model) renderNodePanel(contentHeight int, compact bool, contentWidth int) string {
	if m.snapshot == nil || contentHeight <= 0 {
		return ""
	}
	nodes := orderedNodes(m.snapshot.Nodes)
	totalNodes := len(nodes)

	alert, hasAlert := clusterAlert(m.snapshot.Cluster)
	mandatory := 2 // title and total
	if hasAlert {
		mandatory++
	}
	remaining := contentHeight - mandatory
	showHeader := remaining > 0
	visibleRows := 0
	if showHeader {
		visibleRows = min(totalNodes, remaining-1)
	}
	hidden := totalNodes - visibleRows

	title := "node health"
	if hidden > 0 {
		title = fmt.Sprintf("node health (top %d/%d, +%d hidden)", visibleRows, totalNodes, hidden)
	}
	lines := []string{m.sectionTitle(title)}
	if hasAlert {
		lines = append(lines, m.styles.bad.Render(alert))
	}

	if showHeader {
		if compact {
			lines = append(lines, fmt.Sprintf(compactNodeFmt, "node", "cores", "mem", "usable", "status"))
		} else {
			lines = append(lines, fmt.Sprintf(wideNodeFmt, "node", "cores", "threads", "mem", "usable", "swap", "status"))
		}
	}
	for _, rep := range nodes[:visibleRows] {
		lines = append(lines, m.nodeLine(rep, compact))
	}

	h := m.snapshot.Cluster
	// nodes that are not dead, out of all nodes
	live := uifmt.Ratio(h.Nodes-len(h.Dead), h.Nodes)
	var totalLine string
	if compact {
		totalLine = fmt.Sprintf(compactNodeFmt,
			fmt.Sprintf("TOTAL (%d)", h.Nodes),
			fmt.Sprint(h.Cores),
			uifmt.MemPair(h.UsedMemory, h.TotalMemory),
			uifmt.Bytes(h.UsableMemory),
			live,
		)
	} else {
		totalLine = fmt.Sprintf(wideNodeFmt,
			fmt.Sprintf("TOTAL (%d)", h.Nodes),
			fmt.Sprint(h.Cores),
			fmt.Sprint(h.Threads),
			uifmt.MemPair(h.UsedMemory, h.TotalMemory),
			uifmt.Bytes(h.UsableMemory),
			uifmt.MemPair(h.SwapUsed, h.SwapTotal),
			live,
		)
	}
	lines = append(lines, m.styles.accent.Render(totalLine))
	lines = clipLines(lines, contentHeight)
	return strings.Join(fitLinesToWidth(lines, contentWidth), "\n")
}

func (m Model) nodeLine(rep sge.NodeReport, compact bool) string {
	status, style := m.nodeStatus(rep)
	var line string
	if compact {
		line = fmt.Sprintf(compactNodeFmt,
			truncateRunes(rep.Row.Name, 14),
			fmt.Sprint(rep.Cores),
			uifmt.MemPair(rep.UsedMemory, rep.TotalMemory),
			uifmt.Bytes(rep.UsableMemory),
			status,
		)
	} else {
		line = fmt.Sprintf(wideNodeFmt,
			truncateRunes(rep.Row.Name, 16),
			fmt.Sprint(rep.Cores),
			fmt.Sprint(rep.Threads),
			uifmt.MemPair(rep.UsedMemory, rep.TotalMemory),
			uifmt.Bytes(rep.UsableMemory),
			uifmt.MemPair(rep.SwapUsed, rep.SwapTotal),
			status,
		)
	}
	if style == nil {
		return line
	}
	return style.Render(line)
}

// nodeStatus picks the label and highlight of a row. Dead wins over
// dangerous, which wins over low headroom.
func (m Model) nodeStatus(rep sge.NodeReport) (string, *lipgloss.Style) {
	switch {
	case rep.Dead:
		return "dead", &m.styles.bad
	case rep.Dangerous:
		return "swap", &m.styles.warn
	case m.lowHeadroom(rep):
		return "low", &m.styles.warn
	default:
		return "ok", nil
	}
}

func (m Model) lowHeadroom(rep sge.NodeReport) bool {
	return m.headroomWarn > 0 && rep.TotalMemory > 0 && rep.UsableMemory < m.headroomWarn
}

func orderedNodes(nodes []sge.NodeReport) []sge.NodeReport {
	out := make([]sge.NodeReport, 0, len(nodes))
	for _, rep := range nodes {
		if rep.Dead {
			out = append(out, rep)
		}
	}
	for _, rep := range nodes {
		if !rep.Dead && rep.Dangerous {
			out = append(out, rep)
		}
	}
	for _, rep := range nodes {
		if !rep.Dead && !rep.Dangerous {
			out = append(out, rep)
		}
	}
	return out
}

func clusterAlert(h sge.ClusterHealth) (string, bool) {
	dead, dangerous := len(h.Dead), len(h.Dangerous)
	switch {
	case dead > 0 && dangerous > 0:
		return fmt.Sprintf("node alert: dead=%d dangerous=%d", dead, dangerous), true
	case dead > 0:
		return fmt.Sprintf("node alert: dead=%d", dead), true
	case dangerous > 0:
		return fmt.Sprintf("node alert: dangerous=%d", dangerous), true
	default:
		return "", false
	}
}

func (m Model) renderUserPanel(contentHeight int, compact bool, contentWidth int) string {
	if m.snapshot == nil || contentHeight <= 0 {
		return ""
	}
	users := append([]sge.UserUsageSummary(nil), m.snapshot.Users...)
	sge.SortUsersByJobCount(users)
	t := m.snapshot.Totals()

	lines := []string{
		"",
		m.totalsLine(t),
	}
	rowBudget := contentHeight - len(lines)
	visibleRows := 0
	if rowBudget > 1 {
		visibleRows = min(len(users), rowBudget-1)
	}
	hidden := len(users) - visibleRows

	title := "user usage"
	if hidden > 0 {
		if visibleRows == 0 {
			title = fmt.Sprintf("user usage (+%d hidden)", hidden)
		} else {
			title = fmt.Sprintf("user usage (top %d/%d, +%d hidden)", visibleRows, len(users), hidden)
		}
	}
	lines[0] = m.sectionTitle(title)

	if rowBudget > 1 {
		if compact {
			lines = append(lines, fmt.Sprintf(compactUserFmt, "user", "slots", "cpu(h)", "mem_req"))
		} else {
			lines = append(lines, fmt.Sprintf(wideUserFmt, "user", "slots", "cpu(h)", "cpu/core", "mem_avg", "mem_req", "cores", "unbound"))
		}
	}
	for _, u := range users[:visibleRows] {
		if compact {
			lines = append(lines, fmt.Sprintf(compactUserFmt,
				truncateRunes(u.Owner, 12),
				uifmt.Count(u.JobCount),
				uifmt.Hours(u.TotalCPUHours),
				uifmt.Mem(u.MemRequest),
			))
			continue
		}
		lines = append(lines, fmt.Sprintf(wideUserFmt,
			truncateRunes(u.Owner, 12),
			uifmt.Count(u.JobCount),
			uifmt.Hours(u.TotalCPUHours),
			uifmt.Hours(u.PerJobPerCoreCPUHours),
			uifmt.Mem(u.MemUsageAverage),
			uifmt.Mem(u.MemRequest),
			uifmt.Count(u.CoreRequest),
			uifmt.Count(u.CoreBinding),
		))
	}
	lines = clipLines(lines, contentHeight)
	return strings.Join(fitLinesToWidth(lines, contentWidth), "\n")
}

func (m Model) totalsLine(t sge.Totals) string {
	return m.styles.label.Render("users ") + m.styles.value.Render(fmt.Sprint(t.Users)) + "  " +
		m.styles.label.Render("slots ") + m.styles.value.Render(uifmt.Count(t.Slots)) + "  " +
		m.styles.label.Render("cores requested ") + m.styles.value.Render(uifmt.Count(t.CoreRequest)) + "  " +
		m.styles.label.Render("memory requested ") + m.styles.value.Render(uifmt.Mem(t.MemRequest))
}

func (m Model) sectionTitle(label string) string {
	icon := "•"
	switch {
	case strings.HasPrefix(label, "node health"):
		icon = "◌"
	case strings.HasPrefix(label, "user usage"):
		icon = "◒"
	}
	return m.styles.tableHdr.Render(icon + " " + label)
}

func stabilizedFrameWidth(width int) int {
	if width <= 0 {
		return 0
	}
	if width <= frameRightGutter {
		return width
	}
	return width - frameRightGutter
}

func truncateRunes(s string, maxRunes int) string {
	if maxRunes <= 0 {
		return ""
	}
	return ansi.Truncate(s, maxRunes, "…")
}

func joinWithPaddingKeepRight(left, right string, width int) string {
	if width <= 0 {
		return ""
	}
	rightWidth := lipgloss.Width(right)
	if rightWidth >= width {
		return truncateRunes(right, width)
	}
	left = truncateRunes(left, max(0, width-rightWidth-1))
	padding := max(1, width-lipgloss.Width(left)-rightWidth)
	return left + strings.Repeat(" ", padding) + right
}

func clipToViewport(s string, width, height int) string {
	if width <= 0 || height <= 0 {
		return ""
	}
	lines := strings.Split(s, "\n")
	clipped := len(lines) > height
	if clipped {
		lines = lines[:height]
		lines[len(lines)-1] = truncateRunes(viewportClipText, width)
	}
	for i := range lines {
		lines[i] = truncateRunes(lines[i], width)
		if pad := width - lipgloss.Width(lines[i]); pad > 0 {
			lines[i] += strings.Repeat(" ", pad)
		}
	}
	for len(lines) < height {
		lines = append(lines, strings.Repeat(" ", width))
	}
	return strings.Join(lines, "\n")
}

func clipToHeight(s string, maxLines int) string {
	if maxLines <= 0 {
		return ""
	}
	lines := strings.Split(s, "\n")
	if len(lines) <= maxLines {
		return s
	}
	return strings.Join(lines[:maxLines], "\n")
}

func pinFooterToBottom(top, footer string, height int) string {
	if height <= 0 {
		return ""
	}
	var footerLines, topLines []string
	if footer != "" {
		footerLines = strings.Split(footer, "\n")
	}
	if top != "" {
		topLines = strings.Split(top, "\n")
	}

	maxTopLines := max(0, height-len(footerLines))
	if len(topLines) > maxTopLines {
		topLines = topLines[:maxTopLines]
	}
	for len(topLines) < maxTopLines {
		topLines = append(topLines, "")
	}
	return strings.Join(append(topLines, footerLines...), "\n")
}

func lineCount(s string) int {
	if s == "" {
		return 0
	}
	return strings.Count(s, "\n") + 1
}

func panelContentHeight(panelHeight int) int {
	return max(1, panelHeight-2)
}

func panelContentWidth(panelWidth int) int {
	return max(1, panelWidth-4)
}

func fitLinesToWidth(lines []string, width int) []string {
	if width <= 0 {
		return lines
	}
	out := make([]string, len(lines))
	for i, line := range lines {
		out[i] = truncateRunes(line, width)
	}
	return out
}

func clipLines(lines []string, maxLines int) []string {
	if maxLines <= 0 || len(lines) == 0 {
		return nil
	}
	if len(lines) <= maxLines {
		return lines
	}
	return lines[:maxLines]
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
