package sge

import "time"

// Snapshot is one poll of the cluster: qhost node health plus the running
// jobs of every user.
type Snapshot struct {
	HostHeader  string
	Nodes       []NodeReport
	Cluster     ClusterHealth
	Jobs        []RunningJobRecord
	Users       []UserUsageSummary
	CollectedAt time.Time
}

// Totals is the slot and core view across users.
type Totals struct {
	Users       int
	Slots       float64
	CoreRequest float64
	MemRequest  float64
}

func (s Snapshot) Totals() Totals {
	out := Totals{Users: len(s.Users)}
	for _, u := range s.Users {
		out.Slots += u.JobCount
		out.CoreRequest += u.CoreRequest
		out.MemRequest += u.MemRequest
	}
	return out
}
