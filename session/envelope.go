package session

import (
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/vitwit/balancerail/types"
)

// Status is an envelope's lifecycle state.
type Status string

const (
	StatusInitiated  Status = "INITIATED"
	StatusAuthorized Status = "AUTHORIZED"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
)

var transitions = map[Status][]Status{
	StatusInitiated:  {StatusAuthorized, StatusFailed},
	StatusAuthorized: {StatusCompleted, StatusFailed},
}

// Terminal reports whether no transition leaves s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransition reports whether s may move to next.
func (s Status) CanTransition(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Envelope records one purchase attempt.
type Envelope struct {
	ID        string
	AttemptID uuid.UUID
	Tier      types.TierID
	Label     string
	Amount    decimal.Decimal
	CreatedAt time.Time
	Status    Status
}

func newEnvelope(attempt uuid.UUID, tier types.Tier, amount decimal.Decimal, now time.Time) *Envelope {
	return &Envelope{
		ID:        tier.ID.String() + "-" + strconv.FormatInt(now.UnixMilli(), 10),
		AttemptID: attempt,
		Tier:      tier.ID,
		Label:     tier.Label,
		Amount:    amount,
		CreatedAt: now,
		Status:    StatusInitiated,
	}
}

func (e *Envelope) advance(next Status) error {
	if !e.Status.CanTransition(next) {
		return fmt.Errorf("envelope %s: illegal transition %s -> %s", e.ID, e.Status, next)
	}
	e.Status = next
	return nil
}

// NewestFirst returns a copy of envs in display order.
func NewestFirst(envs []Envelope) []Envelope {
	out := make([]Envelope, 0, len(envs))
	for i := len(envs) - 1; i >= 0; i-- {
		out = append(out, envs[i])
	}
	return out
}
