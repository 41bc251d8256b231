package report

import (
	"fmt"
	"io"
	"strings"

	"grid_monitor/internal/sge"
	"grid_monitor/internal/units"
)

const usableColumn = "MEM_CAN_USE"

// NodeReport writes the per-node TSV (source columns plus usable memory),
// the summary block and the dead and dangerous node lists.
func NodeReport(w io.Writer, label, header string, reports []sge.NodeReport, health sge.ClusterHealth) error {
	var b strings.Builder
	if header != "" {
		b.WriteString(strings.Join(strings.Fields(header), "\t") + "\t" + usableColumn + "\n")
	}
	for _, rep := range reports {
		line := rep.Row.Line
		if line == "" {
			line = rep.Row.Name
		}
		b.WriteString(strings.Join(strings.Fields(line), "\t"))
		b.WriteString("\t" + units.FormatBytes(rep.UsableMemory) + "\n")
	}

	b.WriteString("\n")
	writeSummary(&b, label, health)
	b.WriteString("\n")
	writeNodeList(&b, "dead "+label+" nodes:", health.Dead)
	b.WriteString("\n")
	writeNodeList(&b, "dangerous "+label+" nodes:", health.Dangerous)

	_, err := io.WriteString(w, b.String())
	return err
}

// Summary writes only the cluster summary block.
func Summary(w io.Writer, label string, health sge.ClusterHealth) error {
	var b strings.Builder
	writeSummary(&b, label, health)
	_, err := io.WriteString(w, b.String())
	return err
}

func writeSummary(b *strings.Builder, label string, h sge.ClusterHealth) {
	b.WriteString("summary:\n")
	fmt.Fprintf(b, "total %s nodes: %d\n", label, h.Nodes)
	tiers := []struct {
		tier  sge.Tier
		count int
	}{
		{sge.TierOver500G, h.Tiers.Over500G},
		{sge.Tier300To500G, h.Tiers.From300To500G},
		{sge.Tier200To300G, h.Tiers.From200To300G},
		{sge.Tier100To200G, h.Tiers.From100To200G},
		{sge.TierUnder100G, h.Tiers.Under100G},
	}
	for _, t := range tiers {
		fmt.Fprintf(b, "total %s nodes (%s): %d\n", label, t.tier, t.count)
	}
	fmt.Fprintf(b, "total %s cpu cores: %d\n", label, h.Cores)
	fmt.Fprintf(b, "total %s cpu threads: %d\n", label, h.Threads)
	fmt.Fprintf(b, "total %s memory: %s\n", label, units.FormatBytes(h.TotalMemory))
	fmt.Fprintf(b, "total %s memory used: %s\n", label, units.FormatBytes(h.UsedMemory))
	fmt.Fprintf(b, "total %s memory can be used: %s\n", label, units.FormatBytes(h.UsableMemory))
	fmt.Fprintf(b, "total %s swap memory: %s\n", label, units.FormatBytes(h.SwapTotal))
	fmt.Fprintf(b, "total %s swap memory used: %s\n", label, units.FormatBytes(h.SwapUsed))
}

func writeNodeList(b *strings.Builder, title string, names []string) {
	b.WriteString(title + "\n")
	for _, name := range names {
		b.WriteString(name + "\n")
	}
}

// QueueResources writes the qstat -F listing as TSV with num_proc and
// virtual_free columns.
func QueueResources(w io.Writer, listing sge.QueueResourceListing) error {
	var b strings.Builder
	if len(listing.Header) > 0 {
		b.WriteString(strings.Join(append(append([]string(nil), listing.Header...), sge.ResourceNumProc, sge.ResourceVirtualFree), "\t") + "\n")
	}
	for _, inst := range listing.Instances {
		fields := append([]string(nil), inst.Fields...)
		if len(fields) == 5 {
			fields = append(fields, "")
		}
		fields = append(fields, inst.NumProc.Raw, inst.VirtualFree.Raw)
		b.WriteString(strings.Join(fields, "\t") + "\n")
	}
	_, err := io.WriteString(w, b.String())
	return err
}
