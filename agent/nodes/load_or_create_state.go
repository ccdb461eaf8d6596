package orchestratornode

import (
	"context"
	"errors"
	"time"

	statex "github.com/tanpawarit/reservation-concierge/agent/state"
)

// LoadOrCreateState returns the persisted state of the session or a fresh one.
func LoadOrCreateState(
	ctx context.Context,
	store statex.Store,
	sessionID string,
	ownerID string,
	now time.Time,
) (*statex.SharedState, error) {
	st, err := store.Load(ctx, sessionID)
	if err == nil {
		return st, nil
	}
	if !errors.Is(err, statex.ErrStateNotFound) {
		return nil, err
	}
	return statex.NewSharedState(sessionID, ownerID, now), nil
}
