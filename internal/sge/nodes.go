package sge

import (
	"math"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"grid_monitor/internal/units"
)

type FieldState int

const (
	// NotReported marks a column the feed does not carry at all.
	NotReported FieldState = iota
	Present
	// Unavailable marks a sentinel value; the node is dead.
	Unavailable
)

type Field struct {
	Raw   string
	State FieldState
}

func PresentField(raw string) Field { return Field{Raw: raw, State: Present} }

func UnavailableField(raw string) Field { return Field{Raw: raw, State: Unavailable} }

// Sentinels are the raw values a feed prints for a field it cannot report.
type Sentinels []string

// DefaultSentinels match qhost output.
var DefaultSentinels = Sentinels{"-", "0.0"}

// Field classifies a raw column value.
func (s Sentinels) Field(raw string) Field {
	raw = strings.TrimSpace(raw)
	if raw == "" || lo.Contains(s, raw) {
		return UnavailableField(raw)
	}
	return PresentField(raw)
}

// NodeStatusRow is one node of a status feed. Line keeps the source text for
// reports that echo it.
type NodeStatusRow struct {
	Name        string
	Line        string
	Cores       Field
	Threads     Field
	TotalMemory Field
	UsedMemory  Field
	SwapTotal   Field
	SwapUsed    Field
}

type Tier int

const (
	TierNone Tier = iota
	TierUnder100G
	Tier100To200G
	Tier200To300G
	Tier300To500G
	TierOver500G
)

func (t Tier) String() string {
	switch t {
	case TierOver500G:
		return "500G ~ "
	case Tier300To500G:
		return "300G ~ 500G"
	case Tier200To300G:
		return "200G ~ 300G"
	case Tier100To200G:
		return "100G ~ 200G"
	case TierUnder100G:
		return "0G   ~ 100G"
	default:
		return "none"
	}
}

// TierFor buckets a total memory figure on its decimal gigabytes.
func TierFor(total units.ByteQuantity) Tier {
	gb := total.DecimalGB()
	switch {
	case gb >= 500:
		return TierOver500G
	case gb >= 300:
		return Tier300To500G
	case gb >= 200:
		return Tier200To300G
	case gb >= 100:
		return Tier100To200G
	default:
		return TierUnder100G
	}
}

type TierCounts struct {
	Over500G      int
	From300To500G int
	From200To300G int
	From100To200G int
	Under100G     int
}

func (c *TierCounts) add(t Tier) {
	switch t {
	case TierOver500G:
		c.Over500G++
	case Tier300To500G:
		c.From300To500G++
	case Tier200To300G:
		c.From200To300G++
	case Tier100To200G:
		c.From100To200G++
	case TierUnder100G:
		c.Under100G++
	}
}

func (c TierCounts) Total() int {
	return c.Over500G + c.From300To500G + c.From200To300G + c.From100To200G + c.Under100G
}

// NodeReport is the classification of one row.
type NodeReport struct {
	Row       NodeStatusRow
	Dead      bool
	Dangerous bool
	// DeadFields names the fields that made the node dead.
	DeadFields []string
	Tier       Tier

	Cores        int
	Threads      int
	TotalMemory  units.ByteQuantity
	UsedMemory   units.ByteQuantity
	UsableMemory units.ByteQuantity
	SwapTotal    units.ByteQuantity
	SwapUsed     units.ByteQuantity
}

// ClassifyNode evaluates one row. Unavailable fields mark the node dead and
// contribute 0; a node whose swap use exceeds a third of its swap capacity
// is dangerous.
func ClassifyNode(row NodeStatusRow) NodeReport {
	rep := NodeReport{Row: row}

	swapTotal, _ := rep.memory("swap_total", row.SwapTotal)
	swapUsed, _ := rep.memory("swap_used", row.SwapUsed)
	rep.SwapTotal, rep.SwapUsed = swapTotal, swapUsed
	if float64(swapTotal)/3 < float64(swapUsed) {
		rep.Dangerous = true
	}

	total, totalOK := rep.memory("total_memory", row.TotalMemory)
	rep.TotalMemory = total
	if totalOK {
		rep.Tier = TierFor(total)
	}

	used, usedOK := rep.memory("used_memory", row.UsedMemory)
	rep.UsedMemory = used
	if totalOK && usedOK && total > used {
		rep.UsableMemory = total - used
	}

	rep.Cores = rep.count("cores", row.Cores)
	rep.Threads = rep.count("threads", row.Threads)
	return rep
}

func (r *NodeReport) markDead(field string) {
	r.Dead = true
	r.DeadFields = append(r.DeadFields, field)
}

// memory reports the parsed value and whether it was present.
func (r *NodeReport) memory(name string, f Field) (units.ByteQuantity, bool) {
	switch f.State {
	case Unavailable:
		r.markDead(name)
		return 0, false
	case NotReported:
		return 0, false
	}
	v, err := ParseMemory(f.Raw)
	if err != nil {
		log.Warn().Err(err).Str("node", r.Row.Name).Str("column", name).Str("value", f.Raw).Msg("cannot parse node memory figure")
		r.markDead(name)
		return 0, false
	}
	return v, true
}

func (r *NodeReport) count(name string, f Field) int {
	switch f.State {
	case Unavailable:
		r.markDead(name)
		return 0
	case NotReported:
		return 0
	}
	// some feeds print counts as "24.000000"
	n, err := strconv.ParseFloat(strings.TrimSpace(f.Raw), 64)
	if err != nil || n < 0 || n != math.Trunc(n) {
		log.Warn().Str("node", r.Row.Name).Str("column", name).Str("value", f.Raw).Msg("cannot parse node count")
		r.markDead(name)
		return 0
	}
	return int(n)
}

// ClusterHealth accumulates node reports. The zero value is ready to use.
type ClusterHealth struct {
	Nodes        int
	Tiers        TierCounts
	Cores        int
	Threads      int
	TotalMemory  units.ByteQuantity
	UsedMemory   units.ByteQuantity
	UsableMemory units.ByteQuantity
	SwapTotal    units.ByteQuantity
	SwapUsed     units.ByteQuantity
	// Dead and Dangerous keep first-seen order without duplicates.
	Dead      []string
	Dangerous []string
}

func (h *ClusterHealth) Add(rep NodeReport) {
	h.Nodes++
	h.Tiers.add(rep.Tier)
	h.Cores += rep.Cores
	h.Threads += rep.Threads
	h.TotalMemory += rep.TotalMemory
	h.UsedMemory += rep.UsedMemory
	h.UsableMemory += rep.UsableMemory
	h.SwapTotal += rep.SwapTotal
	h.SwapUsed += rep.SwapUsed
	if rep.Dead {
		h.Dead = appendUnique(h.Dead, rep.Row.Name)
	}
	if rep.Dangerous {
		h.Dangerous = appendUnique(h.Dangerous, rep.Row.Name)
	}
}

// Fold classifies every row and accumulates the cluster view.
func Fold(rows []NodeStatusRow) ([]NodeReport, ClusterHealth) {
	var health ClusterHealth
	reports := make([]NodeReport, 0, len(rows))
	for _, row := range rows {
		rep := ClassifyNode(row)
		health.Add(rep)
		reports = append(reports, rep)
	}
	return reports, health
}

func appendUnique(list []string, name string) []string {
	if lo.Contains(list, name) {
		return list
	}
	return append(list, name)
}
