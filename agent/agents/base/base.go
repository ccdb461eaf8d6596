package base

import (
	"context"
	"errors"
	"fmt"
	"time"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/reservation-concierge/agent/contract"
	"github.com/tanpawarit/reservation-concierge/agent/llm"
	statex "github.com/tanpawarit/reservation-concierge/agent/state"
)

// Base carries what every agent needs to reach its model. Nothing is checked
// until Model is called.
type Base struct {
	Type          contractx.AgentType
	Config        llm.AgentConfig
	Factory       llm.ModelFactory
	MaxToolRounds int
	Now           func() time.Time
}

func (b *Base) now() time.Time {
	if b.Now != nil {
		return b.Now()
	}
	return time.Now()
}

// Model builds the configured backend. On failure it falls back exactly once
// to the default backend with its default model and endpoint.
func (b *Base) Model(ctx context.Context) (einomodel.ToolCallingChatModel, error) {
	if b.Factory == nil {
		return nil, fmt.Errorf("%w: no model factory for agent=%s", contractx.ErrBackendUnavailable, b.Type)
	}
	m, err := b.Factory.NewChatModel(ctx, b.Config)
	if err == nil {
		return m, nil
	}
	log.Warn().Err(err).
		Str("agent", string(b.Type)).
		Str("backend", string(b.Config.Backend)).
		Str("fallback", string(llm.FallbackBackend)).
		Msg("backend unavailable, falling back")

	fallback := b.Config
	fallback.Backend = llm.FallbackBackend
	fallback.Model = ""
	fallback.Endpoint = ""
	m, ferr := b.Factory.NewChatModel(ctx, fallback)
	if ferr != nil {
		return nil, fmt.Errorf("%w: agent=%s: %v; fallback %s: %v",
			contractx.ErrBackendUnavailable, b.Type, err, llm.FallbackBackend, ferr)
	}
	return m, nil
}

// Adapter wraps Model with the agent's executor and tool set.
func (b *Base) Adapter(ctx context.Context) (*llm.Adapter, error) {
	m, err := b.Model(ctx)
	if err != nil {
		return nil, err
	}
	return llm.NewAdapter(ctx, m, b.Config.Executor, b.Config.ToolSet, b.MaxToolRounds)
}

func (b *Base) slot(st *statex.SharedState) (*[]statex.AgentResult, error) {
	switch b.Type {
	case contractx.AgentTypeMemoryExtraction:
		return &st.MemoryExtractionResult, nil
	case contractx.AgentTypeMemoryInjection:
		return &st.MemoryInjectionResult, nil
	case contractx.AgentTypeReservation:
		return &st.ReservationResult, nil
	case contractx.AgentTypeSupport:
		return &st.SupportResult, nil
	default:
		return nil, fmt.Errorf("%w: no result slot for agent=%s", contractx.ErrValidation, b.Type)
	}
}

// Record appends the result's content as one assistant message and the result
// to the agent's own slot.
func (b *Base) Record(st *statex.SharedState, res statex.AgentResult) error {
	if st == nil {
		return statex.ErrNilState
	}
	slot, err := b.slot(st)
	if err != nil {
		return err
	}
	if err := st.AppendMessage(statex.RoleAssistant, res.Content); err != nil {
		return err
	}
	*slot = append(*slot, res)
	st.Touch(b.now())
	return nil
}

func (b *Base) Succeeded(content string) statex.AgentResult {
	return statex.Succeeded(content, b.now())
}

func (b *Base) Degraded(content, raw, reason string) statex.AgentResult {
	return statex.Degraded(content, raw, reason, b.now())
}

// Failed classifies err and pairs it with the user-safe content.
func (b *Base) Failed(content string, err error) statex.AgentResult {
	detail := ""
	if err != nil {
		detail = err.Error()
	}
	return statex.Failed(ErrorKindOf(err), content, detail, b.now())
}

func ErrorKindOf(err error) statex.ErrorKind {
	switch {
	case err == nil:
		return statex.ErrorKindUnknown
	case errors.Is(err, contractx.ErrBackendUnavailable), errors.Is(err, contractx.ErrModelInvoke):
		return statex.ErrorKindBackend
	case errors.Is(err, contractx.ErrToolCall):
		return statex.ErrorKindTool
	case errors.Is(err, contractx.ErrSchemaViolation):
		return statex.ErrorKindParse
	case errors.Is(err, contractx.ErrMemoryStore):
		return statex.ErrorKindMemory
	default:
		return statex.ErrorKindUnknown
	}
}
