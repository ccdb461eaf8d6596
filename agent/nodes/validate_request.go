package orchestratornode

import (
	"errors"
	"fmt"
	"strings"
	"time"

	contractx "github.com/tanpawarit/reservation-concierge/agent/contract"
	statex "github.com/tanpawarit/reservation-concierge/agent/state"
)

var (
	ErrInvalidMessage = errors.New("message is empty")
	ErrInvalidSession = statex.ErrInvalidSession
)

type GraphInput struct {
	SessionID string
	OwnerID   string
	Text      string
	// Prior is the persisted state of the previous turn; it is cloned, never
	// mutated.
	Prior *statex.SharedState

	Agents   map[contractx.AgentType]contractx.Agent
	MaxSteps int
}

type GraphOutput struct {
	State *statex.SharedState
	Reply string
	Trace []StepTrace
}

// GraphState is private to one run.
type GraphState struct {
	State  *statex.SharedState
	Agents map[contractx.AgentType]contractx.Agent
	Now    time.Time

	Steps    int
	MaxSteps int
	Trace    []StepTrace
}

// ValidateRequest checks the request, clones or creates the session state and
// ingests the utterance as the turn's user message.
func ValidateRequest(in GraphInput, nowFn func() time.Time) (*GraphState, error) {
	sessionID := strings.TrimSpace(in.SessionID)
	if sessionID == "" {
		return nil, ErrInvalidSession
	}
	text := strings.TrimSpace(in.Text)
	if text == "" {
		return nil, ErrInvalidMessage
	}
	now := nowFn().UTC()

	var st *statex.SharedState
	if in.Prior != nil {
		if in.Prior.SessionID != "" && in.Prior.SessionID != sessionID {
			return nil, fmt.Errorf("%w: prior state belongs to session %s", contractx.ErrValidation, in.Prior.SessionID)
		}
		st = in.Prior.Clone()
		st.SessionID = sessionID
	} else {
		st = statex.NewSharedState(sessionID, "", now)
	}
	if owner := strings.TrimSpace(in.OwnerID); owner != "" {
		st.OwnerID = owner
	}
	if st.OwnerID == "" {
		st.OwnerID = sessionID
	}
	if err := st.Ingest(text); err != nil {
		return nil, err
	}
	st.Touch(now)

	gs := &GraphState{
		State:    st,
		Agents:   in.Agents,
		Now:      now,
		MaxSteps: in.MaxSteps,
	}
	if err := gs.Step("validate_request", nil); err != nil {
		return nil, err
	}
	return gs, nil
}
