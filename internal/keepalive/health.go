// internal/keepalive/health.go
package keepalive

import (
	"time"

	"printer-service/internal/model"
)

const (
	reconnectPenalty    = 10
	maxReconnectPenalty = 50
	stalePenalty        = 20
	veryStalePenalty    = 40
	failedProbePenalty  = 30
)

// healthInput is everything the score depends on
type healthInput struct {
	now              time.Time
	interval         time.Duration
	connected        bool
	connectedAt      time.Time
	lastKeepAlive    time.Time
	lastProbeFailed  bool
	recentReconnects int
}

// score computes the 0..100 health score
func score(in healthInput) int {
	s := 100

	penalty := in.recentReconnects * reconnectPenalty
	if penalty > maxReconnectPenalty {
		penalty = maxReconnectPenalty
	}
	s -= penalty

	// a fresh connection counts as a keep-alive until the first probe lands
	ref := in.lastKeepAlive
	if in.connected && in.connectedAt.After(ref) {
		ref = in.connectedAt
	}
	if !ref.IsZero() && in.interval > 0 {
		age := in.now.Sub(ref)
		switch {
		case age > 4*in.interval:
			s -= veryStalePenalty
		case age > 2*in.interval:
			s -= stalePenalty
		}
	}

	if in.lastProbeFailed {
		s -= failedProbePenalty
	}

	if s < 0 {
		s = 0
	}
	if s > 100 {
		s = 100
	}
	return s
}

// pruneBefore drops timestamps older than cutoff; stamps are in ascending order
func pruneBefore(stamps []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(stamps) && stamps[i].Before(cutoff) {
		i++
	}
	return stamps[i:]
}

func health(in healthInput, state model.ConnectionState) model.DeviceHealth {
	h := model.DeviceHealth{
		HealthScore:      score(in),
		State:            state,
		RecentReconnects: in.recentReconnects,
		LastProbeFailed:  in.lastProbeFailed,
		RecordedAt:       in.now,
	}
	if in.connected && !in.connectedAt.IsZero() {
		h.UptimeSeconds = in.now.Sub(in.connectedAt).Seconds()
	}
	if !in.lastKeepAlive.IsZero() {
		t := in.lastKeepAlive
		h.LastKeepAlive = &t
	}
	return h
}
