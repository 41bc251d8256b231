package sge

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

const (
	secondsPerHour = 3600
	// Per-job CPU hours use a tenfold larger divisor than the total.
	perJobCPUDivisor = 10 * secondsPerHour
)

// Undefined is the value of an average whose denominator is zero.
var Undefined = math.NaN()

func IsUndefined(v float64) bool {
	return math.IsNaN(v)
}

// RunningJobRecord is one running job-slot row.
type RunningJobRecord struct {
	Owner       string
	JobNumber   string
	Slots       float64
	QueueName   string
	CPUUsage    float64
	MemUsage    float64
	IOUsage     float64
	Priority    float64
	HardRequest ResourceRequest
	CoreBinding string
	HasBinding  bool
}

// UserUsageSummary aggregates the running jobs of one owner. Every Average
// field is Undefined when JobCount is 0.
type UserUsageSummary struct {
	Owner    string
	JobCount float64
	Queues   []string

	PriorityAverage float64

	CPUUsage              float64
	CPUUsageAverage       float64
	TotalCPUHours         float64
	PerJobCPUHours        float64
	PerJobPerCoreCPUHours float64

	MemUsage          float64
	MemUsageAverage   float64
	MemRequest        float64
	MemRequestAverage float64

	CoreRequest        float64
	CoreRequestAverage float64

	// CoreBinding counts slots whose binding is absent or unreadable.
	CoreBinding        float64
	CoreBindingAverage float64

	IOUsage        float64
	IOUsageAverage float64
}

// SummarizeUser folds the jobs of owner into one summary.
func SummarizeUser(owner string, jobs []RunningJobRecord) UserUsageSummary {
	s := UserUsageSummary{Owner: owner}
	var prio float64
	for _, job := range jobs {
		s.JobCount += job.Slots
		s.Queues = append(s.Queues, job.QueueName)
		prio += job.Priority
		s.CPUUsage += job.CPUUsage
		s.MemUsage += job.MemUsage
		s.IOUsage += job.IOUsage

		mem, core, err := ExtractMemCore(job.HardRequest)
		if err != nil {
			log.Warn().Err(err).Str("owner", owner).Str("job", job.JobNumber).Msg("cannot read memory request")
		}
		s.MemRequest += float64(mem)
		s.CoreRequest += float64(core)

		s.CoreBinding += bindingMismatch(owner, job)
	}
	s.Queues = lo.Uniq(lo.Compact(s.Queues))
	sort.Strings(s.Queues)

	s.PriorityAverage = average(prio, s.JobCount)
	s.CPUUsageAverage = average(s.CPUUsage, s.JobCount)
	s.MemUsageAverage = average(s.MemUsage, s.JobCount)
	s.IOUsageAverage = average(s.IOUsage, s.JobCount)
	s.MemRequestAverage = average(s.MemRequest, s.JobCount)
	s.CoreRequestAverage = average(s.CoreRequest, s.JobCount)
	s.CoreBindingAverage = average(s.CoreBinding, s.JobCount)

	s.TotalCPUHours = s.CPUUsage / secondsPerHour
	s.PerJobCPUHours = s.CPUUsageAverage / perJobCPUDivisor
	s.PerJobPerCoreCPUHours = average(s.CPUUsageAverage, s.CoreRequestAverage) / secondsPerHour
	return s
}

// SummarizeUsers groups jobs by owner and orders the summaries by job count,
// largest first, then by owner.
func SummarizeUsers(jobs []RunningJobRecord) []UserUsageSummary {
	byOwner := lo.GroupBy(jobs, func(job RunningJobRecord) string {
		return job.Owner
	})
	out := make([]UserUsageSummary, 0, len(byOwner))
	for owner, ownerJobs := range byOwner {
		out = append(out, SummarizeUser(owner, ownerJobs))
	}
	SortUsersByJobCount(out)
	return out
}

// SortUsersByJobCount orders users by running slots first, then by stable
// identity to keep rendering deterministic.
func SortUsersByJobCount(users []UserUsageSummary) {
	sort.Slice(users, func(i, j int) bool {
		if users[i].JobCount != users[j].JobCount {
			return users[i].JobCount > users[j].JobCount
		}
		if users[i].CPUUsage != users[j].CPUUsage {
			return users[i].CPUUsage > users[j].CPUUsage
		}
		return users[i].Owner < users[j].Owner
	})
}

// bindingMismatch is 1 when the job's binding is missing or its last
// colon-separated token is not a core count.
func bindingMismatch(owner string, job RunningJobRecord) float64 {
	if !job.HasBinding {
		return 1
	}
	parts := strings.Split(job.CoreBinding, ":")
	last := strings.TrimSpace(parts[len(parts)-1])
	if _, err := strconv.ParseFloat(last, 64); err != nil {
		log.Warn().Str("owner", owner).Str("job", job.JobNumber).Str("value", job.CoreBinding).Msg("cannot read core binding")
		return 1
	}
	return 0
}

func average(sum, count float64) float64 {
	if count == 0 || math.IsNaN(count) {
		return Undefined
	}
	return sum / count
}
