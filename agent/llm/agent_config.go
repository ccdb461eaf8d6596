package llm

import (
	"context"
	"fmt"
	"strings"

	einomodel "github.com/cloudwego/eino/components/model"

	contractx "github.com/tanpawarit/reservation-concierge/agent/contract"
	toolx "github.com/tanpawarit/reservation-concierge/agent/tool"
)

// Backend is the closed set of supported text-generation services.
type Backend string

const (
	BackendGemini     Backend = "gemini"
	BackendGroq       Backend = "groq"
	BackendOpenRouter Backend = "openrouter"
	BackendAnthropic  Backend = "anthropic"

	// FallbackBackend is tried once when the configured backend cannot be built.
	FallbackBackend = BackendGemini
)

func ParseBackend(raw string) (Backend, error) {
	switch b := Backend(strings.ToLower(strings.TrimSpace(raw))); b {
	case BackendGemini, BackendGroq, BackendOpenRouter, BackendAnthropic:
		return b, nil
	case "":
		return FallbackBackend, nil
	default:
		return "", fmt.Errorf("%w: unknown backend %q", contractx.ErrValidation, raw)
	}
}

// AgentConfig is the fully resolved configuration of one agent invocation.
type AgentConfig struct {
	Backend     Backend
	Model       string
	Endpoint    string
	Temperature float32
	Stop        []string
	MaxTokens   int
	// ToolSet restricts the tools offered to the model; empty means all.
	ToolSet  []string
	Executor toolx.Executor
}

// AgentOverride holds per-call overrides. A nil field is absent.
type AgentOverride struct {
	Backend     *Backend       `json:"backend,omitempty"`
	Model       *string        `json:"model,omitempty"`
	Endpoint    *string        `json:"endpoint,omitempty"`
	Temperature *float32       `json:"temperature,omitempty"`
	Stop        []string       `json:"stop,omitempty"`
	MaxTokens   *int           `json:"max_tokens,omitempty"`
	ToolSet     []string       `json:"tool_set,omitempty"`
	Executor    toolx.Executor `json:"-"`
}

// Overrides maps agent names to overrides. Names that match no agent are kept
// and ignored.
type Overrides map[string]AgentOverride

func (o Overrides) For(agentType contractx.AgentType) (AgentOverride, bool) {
	if o == nil {
		return AgentOverride{}, false
	}
	ov, ok := o[string(agentType)]
	return ov, ok
}

// Merge returns def with every present override field applied. Neither
// argument is modified.
func Merge(def AgentConfig, ov AgentOverride) AgentConfig {
	out := def
	out.Stop = append([]string(nil), def.Stop...)
	out.ToolSet = append([]string(nil), def.ToolSet...)

	if ov.Backend != nil {
		out.Backend = *ov.Backend
	}
	if ov.Model != nil {
		out.Model = *ov.Model
	}
	if ov.Endpoint != nil {
		out.Endpoint = *ov.Endpoint
	}
	if ov.Temperature != nil {
		out.Temperature = *ov.Temperature
	}
	if ov.Stop != nil {
		out.Stop = append([]string(nil), ov.Stop...)
	}
	if ov.MaxTokens != nil {
		out.MaxTokens = *ov.MaxTokens
	}
	if ov.ToolSet != nil {
		out.ToolSet = append([]string(nil), ov.ToolSet...)
	}
	if ov.Executor != nil {
		out.Executor = ov.Executor
	}
	return out
}

// ModelFactory constructs a chat model for a resolved AgentConfig.
type ModelFactory interface {
	NewChatModel(ctx context.Context, ac AgentConfig) (einomodel.ToolCallingChatModel, error)
}

var _ ModelFactory = Config{}

func (c Config) NewChatModel(ctx context.Context, ac AgentConfig) (einomodel.ToolCallingChatModel, error) {
	builder, err := c.Builder(ac)
	if err != nil {
		return nil, err
	}
	return builder.New(ctx)
}
