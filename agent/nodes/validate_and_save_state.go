package orchestratornode

import (
	"context"
	"fmt"
	"time"

	contractx "github.com/tanpawarit/reservation-concierge/agent/contract"
	statex "github.com/tanpawarit/reservation-concierge/agent/state"
)

// ValidateAndSaveState persists next after checking it only appended to
// prev's history.
func ValidateAndSaveState(
	ctx context.Context,
	store statex.Store,
	prev *statex.SharedState,
	next *statex.SharedState,
	now time.Time,
) error {
	if next == nil {
		return fmt.Errorf("%w: state is nil", contractx.ErrValidation)
	}
	if prev != nil {
		if err := statex.CheckAppendOnly(prev.Messages, next.Messages); err != nil {
			return err
		}
	}
	next.Touch(now)
	if err := next.Validate(); err != nil {
		return fmt.Errorf("state validation failed: %w", err)
	}
	return store.Save(ctx, next)
}
