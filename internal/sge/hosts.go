package sge

import (
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"
)

// qhost column positions
const (
	hostColName   = 0
	hostColNCor   = 4
	hostColNThr   = 5
	hostColMemTot = 7
	hostColMemUse = 8
	hostColSwapTo = 9
	hostColSwapUs = 10
	hostColumns   = 11
)

var ruleLine = regexp.MustCompile(`^-{3,}$`)

// HostTable is a parsed qhost listing.
type HostTable struct {
	Header string
	Rows   []NodeStatusRow
}

// ParseHostTable reads qhost output. The header, dashed rules and the
// "global" pseudo host are skipped; every other line needs all eleven
// columns.
func ParseHostTable(raw string, sentinels Sentinels) HostTable {
	var table HostTable
	for _, line := range strings.Split(raw, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || ruleLine.MatchString(trimmed) {
			continue
		}
		fields := strings.Fields(trimmed)
		if fields[0] == "HOSTNAME" {
			table.Header = trimmed
			continue
		}
		if fields[0] == "global" {
			continue
		}
		if len(fields) < hostColumns {
			log.Warn().Str("line", trimmed).Int("fields", len(fields)).Msg("skipping short qhost line")
			continue
		}
		table.Rows = append(table.Rows, NodeStatusRow{
			Name:        fields[hostColName],
			Line:        trimmed,
			Cores:       sentinels.Field(fields[hostColNCor]),
			Threads:     sentinels.Field(fields[hostColNThr]),
			TotalMemory: sentinels.Field(fields[hostColMemTot]),
			UsedMemory:  sentinels.Field(fields[hostColMemUse]),
			SwapTotal:   sentinels.Field(fields[hostColSwapTo]),
			SwapUsed:    sentinels.Field(fields[hostColSwapUs]),
		})
	}
	return table
}

var blockSeparator = regexp.MustCompile(`-{3,}`)

// QueueInstance is one block of qstat -F vf,p output.
type QueueInstance struct {
	// Fields is the whitespace-split identity line: queuename, qtype,
	// resv/used/tot, load_avg, arch and, when set, states.
	Fields      []string
	NumProc     Field
	VirtualFree Field
}

func (q QueueInstance) QueueName() string {
	if len(q.Fields) == 0 {
		return ""
	}
	return q.Fields[0]
}

// Host is the part of the queue instance name after '@'.
func (q QueueInstance) Host() string {
	name := q.QueueName()
	if idx := strings.LastIndex(name, "@"); idx >= 0 {
		return name[idx+1:]
	}
	return name
}

// States is the states column, empty when the instance has none.
func (q QueueInstance) States() string {
	if len(q.Fields) < 6 {
		return ""
	}
	return q.Fields[5]
}

// StatusRow maps the instance onto the node health model: num_proc as cores
// and virtual_free as total memory. Swap, threads and used memory are not
// carried by this feed.
func (q QueueInstance) StatusRow() NodeStatusRow {
	return NodeStatusRow{
		Name:        q.Host(),
		Line:        strings.Join(q.Fields, "\t"),
		Cores:       q.NumProc,
		TotalMemory: q.VirtualFree,
	}
}

type QueueResourceListing struct {
	Header    []string
	Instances []QueueInstance
}

func (l QueueResourceListing) StatusRows() []NodeStatusRow {
	rows := make([]NodeStatusRow, 0, len(l.Instances))
	for _, inst := range l.Instances {
		rows = append(rows, inst.StatusRow())
	}
	return rows
}

// ParseQueueResources reads qstat -F vf,p output. Blocks are separated by
// dashed rules; the first block is the column header. A block without a
// num_proc or virtual_free line reports that resource as unavailable.
func ParseQueueResources(raw string, sentinels Sentinels) QueueResourceListing {
	blocks := blockSeparator.Split(raw, -1)
	var listing QueueResourceListing
	if len(blocks) == 0 {
		return listing
	}
	listing.Header = strings.Fields(blocks[0])

	for _, block := range blocks[1:] {
		lines := nonEmptyLines(block)
		if len(lines) == 0 {
			continue
		}
		identity := strings.Fields(lines[0])
		if len(identity) != 5 && len(identity) != 6 {
			log.Debug().Str("line", lines[0]).Msg("skipping non queue-instance block")
			continue
		}
		inst := QueueInstance{
			Fields:      identity,
			NumProc:     UnavailableField(""),
			VirtualFree: UnavailableField(""),
		}
		req := RequestFromTexts(lines[1:])
		if entry, ok := req.Last(ResourceNumProc); ok {
			inst.NumProc = sentinels.Field(entry.Text)
		}
		if entry, ok := req.Last(ResourceVirtualFree); ok {
			inst.VirtualFree = sentinels.Field(entry.Text)
		}
		if inst.NumProc.State != Present || inst.VirtualFree.State != Present {
			log.Warn().Str("node", inst.Host()).Msg("queue instance is missing num_proc or virtual_free")
		}
		listing.Instances = append(listing.Instances, inst)
	}
	return listing
}

func nonEmptyLines(block string) []string {
	var out []string
	for _, line := range strings.Split(block, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}
