package memoryagent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/tanpawarit/reservation-concierge/agent/agents/base"
	contractx "github.com/tanpawarit/reservation-concierge/agent/contract"
	"github.com/tanpawarit/reservation-concierge/agent/memory"
	"github.com/tanpawarit/reservation-concierge/agent/prompt"
	statex "github.com/tanpawarit/reservation-concierge/agent/state"
	toolx "github.com/tanpawarit/reservation-concierge/agent/tool"
)

const (
	extractionUserTemplate = "Message: {message}\nOutput:"
	defaultHistoryWindow   = 10
)

// ExtractionAgent decides whether the latest utterance holds a durable fact
// and stores it.
type ExtractionAgent struct {
	base.Base
	Prompt        string
	Writer        contractx.MemoryWriter
	HistoryWindow int
}

var _ contractx.Agent = (*ExtractionAgent)(nil)

func (a *ExtractionAgent) Invoke(ctx context.Context, st *statex.SharedState) error {
	if st == nil {
		return statex.ErrNilState
	}
	logger := log.With().Str("agent", string(a.Type)).Str("session_id", st.SessionID).Logger()

	chatModel, err := a.Model(ctx)
	if err != nil {
		return err
	}

	window := a.HistoryWindow
	if window <= 0 {
		window = defaultHistoryWindow
	}
	msgs, err := prompt.Render(ctx, a.Prompt, extractionUserTemplate, map[string]any{
		"tools_description": a.toolsDescription(ctx),
		"chat_history":      st.HistoryText(window),
		"message":           st.LatestUtterance(),
	})
	if err != nil {
		return a.fail(st, contractx.MemoryExtraction{}, err)
	}

	resp, err := chatModel.Generate(ctx, msgs)
	if err != nil {
		return a.fail(st, contractx.MemoryExtraction{}, fmt.Errorf("%w: %v", contractx.ErrModelInvoke, err))
	}
	raw := ""
	if resp != nil {
		raw = resp.Content
	}

	out, ok := ParseExtraction(raw)
	if !ok {
		logger.Warn().Str("raw", raw).Msg("memory analysis was not valid json")
		out = contractx.MemoryExtraction{RawText: raw}
		return a.Record(st, a.Degraded(encode(out), raw, "unparseable"))
	}

	if out.ShouldStore() && a.Writer != nil {
		written, err := a.Writer.Upsert(ctx, contractx.MemoryInput{
			Text:                out.Memory(),
			OwnerID:             st.OwnerID,
			Source:              memory.SourceConversation,
			OriginalUserMessage: st.LatestUtterance(),
		})
		if err != nil {
			return a.fail(st, out, err)
		}
		out.MemoryID = written.ID
		out.Updated = written.Updated
		out.OwnerLabel = st.OwnerID
		logger.Info().Str("memory_id", written.ID).Bool("updated", written.Updated).Msg("memory saved")
	}
	return a.Record(st, a.Succeeded(encode(out)))
}

// fail records a failed extraction that is never important.
func (a *ExtractionAgent) fail(st *statex.SharedState, out contractx.MemoryExtraction, err error) error {
	log.Error().Err(err).Str("agent", string(a.Type)).Str("session_id", st.SessionID).Msg("memory extraction failed")
	out.IsImportant = false
	out.Error = err.Error()
	return a.Record(st, a.Failed(encode(out), err))
}

func (a *ExtractionAgent) toolsDescription(ctx context.Context) string {
	if a.Config.Executor == nil {
		return toolx.Describe(nil)
	}
	infos, err := a.Config.Executor.ListTools(ctx)
	if err != nil {
		log.Warn().Err(err).Str("agent", string(a.Type)).Msg("list tools failed")
		return toolx.Describe(nil)
	}
	return toolx.Describe(toolx.Filter(infos, a.Config.ToolSet))
}

// ParseExtraction reads the model's JSON answer, tolerating code fences and
// prose around the object. is_important must be present.
func ParseExtraction(raw string) (contractx.MemoryExtraction, bool) {
	text := base.StripCodeFence(raw)
	if i, j := strings.IndexByte(text, '{'), strings.LastIndexByte(text, '}'); i >= 0 && j > i {
		text = text[i : j+1]
	}
	var reply struct {
		IsImportant     *bool   `json:"is_important"`
		FormattedMemory *string `json:"formatted_memory"`
	}
	if err := json.Unmarshal([]byte(text), &reply); err != nil || reply.IsImportant == nil {
		return contractx.MemoryExtraction{}, false
	}
	return contractx.MemoryExtraction{IsImportant: *reply.IsImportant, FormattedMemory: reply.FormattedMemory}, true
}

func encode(v any) string {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(raw)
}
