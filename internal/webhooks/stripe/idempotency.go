package stripewebhook

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/quillwork/worksheets-backend/pkg/instance"
	"github.com/quillwork/worksheets-backend/pkg/redis"
)

// DefaultClaimTTL outlives Stripe's retry schedule for a single event.
const DefaultClaimTTL = 72 * time.Hour

// EventGuard records which Stripe event ids have been claimed for processing
// so redelivered events are acknowledged without being applied twice.
type EventGuard struct {
	store redis.IdempotencyStore
	ttl   time.Duration
	scope string
	now   func() time.Time
}

func NewEventGuard(store redis.IdempotencyStore, ttl time.Duration, scope string) (*EventGuard, error) {
	switch {
	case store == nil:
		return nil, errors.New("idempotency store is required")
	case scope == "":
		return nil, errors.New("scope is required")
	case ttl < 0:
		return nil, errors.New("ttl must be non-negative")
	}
	if ttl == 0 {
		ttl = DefaultClaimTTL
	}
	return &EventGuard{store: store, ttl: ttl, scope: scope, now: time.Now}, nil
}

// Claim marks eventID as owned by this process. It returns false when another
// delivery already holds the claim.
func (g *EventGuard) Claim(ctx context.Context, eventID string) (bool, error) {
	if eventID == "" {
		return false, errors.New("event id is required")
	}
	marker := fmt.Sprintf("%s@%d", instance.GetID(), g.now().UTC().Unix())
	ok, err := g.store.SetNX(ctx, g.key(eventID), marker, g.ttl)
	if err != nil {
		return false, fmt.Errorf("claim event %s: %w", eventID, err)
	}
	return ok, nil
}

// ClaimedBy returns the marker stored by the delivery that holds the claim,
// or "" when the event is unclaimed.
func (g *EventGuard) ClaimedBy(ctx context.Context, eventID string) (string, error) {
	if eventID == "" {
		return "", errors.New("event id is required")
	}
	return g.store.Get(ctx, g.key(eventID))
}

// Release drops the claim so Stripe's next retry is processed.
func (g *EventGuard) Release(ctx context.Context, eventID string) error {
	if eventID == "" {
		return errors.New("event id is required")
	}
	return g.store.Del(ctx, g.key(eventID))
}

func (g *EventGuard) key(eventID string) string {
	return g.store.IdempotencyKey(g.scope, eventID)
}
