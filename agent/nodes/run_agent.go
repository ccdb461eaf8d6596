package orchestratornode

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/reservation-concierge/agent/contract"
	statex "github.com/tanpawarit/reservation-concierge/agent/state"
)

// RunAgent invokes one agent on the run's state. The step is counted before the
// agent runs, so a run past its ceiling makes no model or tool calls. Only
// fatal agent errors stop the pipeline; everything else is already in the
// agent's result slot.
func RunAgent(ctx context.Context, in *GraphState, agentType contractx.AgentType) (*GraphState, error) {
	if in == nil || in.State == nil {
		return nil, fmt.Errorf("%w: graph state is incomplete", contractx.ErrValidation)
	}
	agent, ok := in.Agents[agentType]
	if !ok || agent == nil {
		return nil, fmt.Errorf("%w: no agent registered for %s", contractx.ErrValidation, agentType)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := in.Step(string(agentType), nil); err != nil {
		return nil, err
	}
	trace := &in.Trace[len(in.Trace)-1]

	started := time.Now()
	before := len(in.State.Messages)
	err := agent.Invoke(ctx, in.State)
	trace.Duration = time.Since(started)
	if err != nil {
		log.Error().Err(err).Str("node", string(agentType)).Str("session_id", in.State.SessionID).Msg("agent aborted the run")
		return nil, err
	}
	if n := len(in.State.Messages) - before; n != 1 {
		log.Warn().Str("node", string(agentType)).Int("appended", n).Msg("agent did not append exactly one message")
	}
	trace.Result = latestKind(in.State, agentType)
	return in, nil
}

func latestKind(st *statex.SharedState, agentType contractx.AgentType) statex.ResultKind {
	var slot []statex.AgentResult
	switch agentType {
	case contractx.AgentTypeMemoryExtraction:
		slot = st.MemoryExtractionResult
	case contractx.AgentTypeMemoryInjection:
		slot = st.MemoryInjectionResult
	case contractx.AgentTypeReservation:
		slot = st.ReservationResult
	}
	if r, ok := statex.Latest(slot); ok {
		return r.Kind
	}
	return ""
}
