package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/reservation-concierge/agent/contract"
	toolx "github.com/tanpawarit/reservation-concierge/agent/tool"
)

const defaultMaxToolRounds = 4

// Adapter wraps a chat model with an optional tool executor and runs the
// call-tools-then-answer loop.
type Adapter struct {
	model     einomodel.ToolCallingChatModel
	tools     []*schema.ToolInfo
	executor  toolx.Executor
	maxRounds int
}

// Outcome is the final assistant message plus every tool result produced on
// the way there, in call order.
type Outcome struct {
	Message *schema.Message
	Calls   []toolx.Result
}

// NewAdapter binds the executor's tools, narrowed to toolSet, to the model.
// A nil executor yields a plain text adapter.
func NewAdapter(
	ctx context.Context,
	chatModel einomodel.ToolCallingChatModel,
	executor toolx.Executor,
	toolSet []string,
	maxRounds int,
) (*Adapter, error) {
	if chatModel == nil {
		return nil, fmt.Errorf("%w: chat model is nil", contractx.ErrValidation)
	}
	if maxRounds <= 0 {
		maxRounds = defaultMaxToolRounds
	}
	a := &Adapter{model: chatModel, executor: executor, maxRounds: maxRounds}
	if executor == nil {
		return a, nil
	}

	infos, err := executor.ListTools(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: list tools: %v", contractx.ErrToolCall, err)
	}
	a.tools = toolx.Filter(infos, toolSet)
	if len(a.tools) == 0 {
		return a, nil
	}
	bound, err := chatModel.WithTools(a.tools)
	if err != nil {
		return nil, fmt.Errorf("%w: bind tools: %v", contractx.ErrModelInvoke, err)
	}
	a.model = bound
	return a, nil
}

// Tools returns the tool infos offered to the model.
func (a *Adapter) Tools() []*schema.ToolInfo {
	return a.tools
}

// Invoke returns only the final assistant message of Run.
func (a *Adapter) Invoke(ctx context.Context, msgs []*schema.Message) (*schema.Message, error) {
	out, err := a.Run(ctx, msgs)
	if err != nil {
		return nil, err
	}
	return out.Message, nil
}

// Run generates until the model answers without tool calls. Each tool call is
// validated and executed; its result, error or not, is fed back as a tool
// message.
func (a *Adapter) Run(ctx context.Context, msgs []*schema.Message) (Outcome, error) {
	history := append([]*schema.Message(nil), msgs...)
	query := lastUserContent(msgs)
	var calls []toolx.Result

	for round := 0; ; round++ {
		msg, err := a.model.Generate(ctx, history)
		if err != nil {
			return Outcome{Calls: calls}, fmt.Errorf("%w: %v", contractx.ErrModelInvoke, err)
		}
		if msg == nil {
			return Outcome{Calls: calls}, fmt.Errorf("%w: empty model response", contractx.ErrSchemaViolation)
		}
		if len(msg.ToolCalls) == 0 {
			return Outcome{Message: msg, Calls: calls}, nil
		}
		if round >= a.maxRounds {
			return Outcome{Calls: calls}, fmt.Errorf("%w: still calling tools after %d rounds", contractx.ErrToolCall, a.maxRounds)
		}

		history = append(history, msg)
		for _, call := range msg.ToolCalls {
			res := a.HandleFunctionCall(ctx, call, query, a.tools)
			calls = append(calls, res)
			history = append(history, schema.ToolMessage(res.Text(), call.ID))
		}
	}
}

// HandleFunctionCall validates one tool call against the offered tools and
// executes it. Every failure is returned as an error result.
func (a *Adapter) HandleFunctionCall(
	ctx context.Context,
	call schema.ToolCall,
	query string,
	tools []*schema.ToolInfo,
) toolx.Result {
	name := strings.TrimSpace(call.Function.Name)
	if name == "" {
		return toolx.Errorf("", "function name is empty")
	}
	info, ok := toolx.Lookup(tools, name)
	if !ok {
		return toolx.Errorf(name, "unknown function: %s", name)
	}

	args := map[string]any{}
	if raw := strings.TrimSpace(call.Function.Arguments); raw != "" {
		if err := json.Unmarshal([]byte(raw), &args); err != nil {
			return toolx.Errorf(name, "invalid arguments for %s: %v", name, err)
		}
	}
	var missing []string
	for _, req := range toolx.Required(info) {
		if v, ok := args[req]; !ok || v == nil || v == "" {
			missing = append(missing, req)
		}
	}
	if len(missing) > 0 {
		return toolx.Errorf(name, "missing required parameters: %s", strings.Join(missing, ", "))
	}
	if a.executor == nil {
		return toolx.Errorf(name, "no tool executor configured")
	}

	log.Debug().Str("tool", name).Str("query", query).Msg("calling tool")
	res, err := a.executor.CallTool(ctx, name, args)
	if err != nil {
		return toolx.Errorf(name, "%s failed: %v", name, err)
	}
	if res.Tool == "" {
		res.Tool = name
	}
	return res
}

func lastUserContent(msgs []*schema.Message) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i] != nil && msgs[i].Role == schema.User {
			return msgs[i].Content
		}
	}
	return ""
}
