package reservationagent

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/tanpawarit/reservation-concierge/agent/agents/base"
	contractx "github.com/tanpawarit/reservation-concierge/agent/contract"
	"github.com/tanpawarit/reservation-concierge/agent/prompt"
	reservationx "github.com/tanpawarit/reservation-concierge/agent/reservation"
	statex "github.com/tanpawarit/reservation-concierge/agent/state"
	toolx "github.com/tanpawarit/reservation-concierge/agent/tool"
)

const (
	userTemplate         = "{message}"
	defaultHistoryWindow = 10

	Apology = "Üzgünüm, isteğinizi şu anda işleyemiyorum. Lütfen biraz sonra tekrar deneyin."
)

var toolKinds = map[string]statex.ToolResultKind{
	reservationx.ToolList:   statex.ToolResultList,
	reservationx.ToolAdd:    statex.ToolResultAdd,
	reservationx.ToolUpdate: statex.ToolResultUpdate,
	reservationx.ToolDelete: statex.ToolResultDelete,
}

// Agent answers reservation requests, calling tools when needed.
type Agent struct {
	base.Base
	Prompt        string
	HistoryWindow int
	// Feedback is evaluated on every invocation. When nil, the previous
	// successful reply in the session is fed back instead.
	Feedback func() string
}

var _ contractx.Agent = (*Agent)(nil)

// StaticFeedback wraps a fixed value as a feedback thunk.
func StaticFeedback(s string) func() string {
	return func() string { return s }
}

func (a *Agent) Invoke(ctx context.Context, st *statex.SharedState) error {
	if st == nil {
		return statex.ErrNilState
	}
	logger := log.With().Str("agent", string(a.Type)).Str("session_id", st.SessionID).Logger()

	adapter, err := a.Adapter(ctx)
	if err != nil {
		if contractx.IsFatal(err) {
			return err
		}
		return a.apologize(st, err)
	}

	window := a.HistoryWindow
	if window <= 0 {
		window = defaultHistoryWindow
	}
	msgs, err := prompt.Render(ctx, a.Prompt, userTemplate, map[string]any{
		"tools_description": toolx.Describe(adapter.Tools()),
		"tool_results":      formatToolResults(st),
		"chat_history":      st.HistoryText(window),
		"memory_context":    orNone(st.MemoryContext),
		"feedback":          a.feedback(st),
		"message":           st.LatestUtterance(),
	})
	if err != nil {
		return a.apologize(st, err)
	}

	out, err := adapter.Run(ctx, msgs)
	for _, call := range out.Calls {
		if kind, ok := toolKinds[call.Tool]; ok {
			st.SetToolResult(kind, call.Text())
		}
	}
	if err != nil {
		return a.apologize(st, err)
	}

	text := strings.TrimSpace(out.Message.Content)
	if text == "" {
		return a.apologize(st, fmt.Errorf("%w: empty reply", contractx.ErrSchemaViolation))
	}
	if IsToolResult(text) {
		logger.Debug().Msg("reply classified as tool result")
		text = Normalize(text)
	}
	logger.Info().Int("tool_calls", len(out.Calls)).Msg("reservation reply ready")
	return a.Record(st, a.Succeeded(text))
}

func (a *Agent) apologize(st *statex.SharedState, err error) error {
	log.Error().Err(err).Str("agent", string(a.Type)).Str("session_id", st.SessionID).Msg("reservation agent failed")
	return a.Record(st, a.Failed(Apology, err))
}

func (a *Agent) feedback(st *statex.SharedState) string {
	var fb string
	if a.Feedback != nil {
		fb = a.Feedback()
	} else if prev, ok := statex.Latest(st.ReservationResult); ok && !prev.IsFailure() {
		fb = prev.Text()
	}
	fb = strings.TrimSpace(fb)
	if fb == "" {
		return ""
	}
	return "\nFeedback on your previous answer:\n" + fb
}

func formatToolResults(st *statex.SharedState) string {
	if len(st.ToolResults) == 0 {
		return "(none)"
	}
	kinds := make([]string, 0, len(st.ToolResults))
	for k := range st.ToolResults {
		kinds = append(kinds, string(k))
	}
	sort.Strings(kinds)
	var b strings.Builder
	for _, k := range kinds {
		fmt.Fprintf(&b, "[%s]\n%s\n", k, st.ToolResults[statex.ToolResultKind(k)])
	}
	return strings.TrimRight(b.String(), "\n")
}

func orNone(s string) string {
	if strings.TrimSpace(s) == "" {
		return "(none)"
	}
	return s
}
