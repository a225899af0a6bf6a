package usecase

import (
	"time"

	"voicelink/internal/domain"
)

// responseState tracks the AI's utterance-in-progress. At most one response is
// non-terminal at a time; a create while another response is active is a peer
// protocol anomaly and the newer response wins.
type responseState struct {
	id        string
	status    domain.ResponseStatus
	startedAt time.Time
}

func (r *responseState) Idle() bool {
	return r.id == ""
}

// Create records a response start. Returns the id of the response that was
// still non-terminal, if any, so the caller can log the anomaly.
func (r *responseState) Create(id string, at time.Time) (displaced string) {
	displaced = r.id
	r.id = id
	r.status = domain.ResponseStatusActive
	r.startedAt = at
	return displaced
}

// Finish transitions the active response to a terminal status. Returns false
// when no response was active, which the caller logs as an anomaly.
func (r *responseState) Finish(status domain.ResponseStatus) bool {
	if r.Idle() {
		return false
	}
	r.id = ""
	r.status = status
	r.startedAt = time.Time{}
	return true
}

func (r *responseState) Elapsed(now time.Time) time.Duration {
	return now.Sub(r.startedAt)
}
