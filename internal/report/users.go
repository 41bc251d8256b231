package report

import (
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/text"

	"grid_monitor/internal/sge"
	"grid_monitor/internal/uifmt"
)

func userColumn(name string, alignRight bool, value func(sge.UserUsageSummary) string) Column[sge.UserUsageSummary] {
	c := Column[sge.UserUsageSummary]{Value: value}
	c.Name = name
	if alignRight {
		c.Align = text.AlignRight
	}
	return c
}

// UserColumns are the per-user usage columns in display order.
var UserColumns = []Column[sge.UserUsageSummary]{
	userColumn("OWNER", false, func(u sge.UserUsageSummary) string { return u.Owner }),
	userColumn("SLOTS", true, func(u sge.UserUsageSummary) string { return uifmt.Count(u.JobCount) }),
	userColumn("PRIO_AVG", true, func(u sge.UserUsageSummary) string { return uifmt.Average(u.PriorityAverage, 4) }),
	userColumn("CPU_TOTAL(h)", true, func(u sge.UserUsageSummary) string { return uifmt.Hours(u.TotalCPUHours) }),
	userColumn("CPU_PER_JOB(h)", true, func(u sge.UserUsageSummary) string { return uifmt.Hours(u.PerJobCPUHours) }),
	userColumn("CPU_PER_CORE(h)", true, func(u sge.UserUsageSummary) string { return uifmt.Hours(u.PerJobPerCoreCPUHours) }),
	userColumn("MEM_USAGE", true, func(u sge.UserUsageSummary) string { return uifmt.Mem(u.MemUsage) }),
	userColumn("MEM_USAGE_AVG", true, func(u sge.UserUsageSummary) string { return uifmt.Mem(u.MemUsageAverage) }),
	userColumn("MEM_REQ", true, func(u sge.UserUsageSummary) string { return uifmt.Mem(u.MemRequest) }),
	userColumn("MEM_REQ_AVG", true, func(u sge.UserUsageSummary) string { return uifmt.Mem(u.MemRequestAverage) }),
	userColumn("CORE_REQ", true, func(u sge.UserUsageSummary) string { return uifmt.Count(u.CoreRequest) }),
	userColumn("CORE_REQ_AVG", true, func(u sge.UserUsageSummary) string { return uifmt.Average(u.CoreRequestAverage, 2) }),
	userColumn("UNBOUND", true, func(u sge.UserUsageSummary) string { return uifmt.Count(u.CoreBinding) }),
	userColumn("UNBOUND_AVG", true, func(u sge.UserUsageSummary) string { return uifmt.Average(u.CoreBindingAverage, 2) }),
	userColumn("IO", true, func(u sge.UserUsageSummary) string { return uifmt.Average(u.IOUsage, 2) }),
	userColumn("IO_AVG", true, func(u sge.UserUsageSummary) string { return uifmt.Average(u.IOUsageAverage, 2) }),
	userColumn("QUEUES", false, func(u sge.UserUsageSummary) string { return strings.Join(u.Queues, ",") }),
}

func Users(w io.Writer, users []sge.UserUsageSummary, format Format) error {
	return Output(w, UserColumns, format, users)
}
