package monitor

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"grid_monitor/internal/sge"
)

type State string

const (
	StateConnected    State = "connected"
	StateDegraded     State = "degraded"
	StateDisconnected State = "disconnected"
)

type Update struct {
	Snapshot    *sge.Snapshot
	State       State
	LastError   string
	LastSuccess time.Time
	NextPoll    time.Time
}

type Collector interface {
	Collect(ctx context.Context) (sge.Snapshot, error)
}

// Loop polls the collector on a fixed interval. A failed poll is reported
// and the next poll happens on the regular schedule.
type Loop struct {
	Collector        Collector
	Refresh          time.Duration
	FailureThreshold int
}

func NewLoop(collector Collector, refresh time.Duration) *Loop {
	return &Loop{
		Collector:        collector,
		Refresh:          refresh,
		FailureThreshold: 3,
	}
}

func (l *Loop) Run(ctx context.Context, updates chan<- Update) {
	defer close(updates)

	failures := 0
	var lastSuccess time.Time

	for {
		snapshot, err := l.Collector.Collect(ctx)
		next := time.Now().Add(l.Refresh)
		if err == nil {
			failures = 0
			lastSuccess = snapshot.CollectedAt
			if !sendUpdate(ctx, updates, Update{
				Snapshot:    &snapshot,
				State:       StateConnected,
				LastSuccess: lastSuccess,
				NextPoll:    next,
			}) {
				return
			}
		} else {
			failures++
			state := StateDegraded
			if failures >= l.FailureThreshold {
				state = StateDisconnected
			}
			log.Debug().Err(err).Int("failures", failures).Str("state", string(state)).Msg("snapshot collection failed")

			if !sendUpdate(ctx, updates, Update{
				State:       state,
				LastError:   err.Error(),
				LastSuccess: lastSuccess,
				NextPoll:    next,
			}) {
				return
			}
		}

		if !wait(ctx, time.Until(next)) {
			return
		}
	}
}

func sendUpdate(ctx context.Context, updates chan<- Update, update Update) bool {
	select {
	case <-ctx.Done():
		return false
	case updates <- update:
		return true
	}
}

func wait(ctx context.Context, d time.Duration) bool {
	if d < 0 {
		d = 0
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
