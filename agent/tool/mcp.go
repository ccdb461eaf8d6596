package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog/log"
)

// MCPConfig selects one MCP server: a stdio command or an SSE endpoint.
type MCPConfig struct {
	Command string        `envconfig:"COMMAND" split_words:"true"`
	Args    []string      `envconfig:"ARGS" split_words:"true"`
	Env     []string      `envconfig:"ENV" split_words:"true"`
	SSEURL  string        `envconfig:"SSE_URL" split_words:"true"`
	Token   string        `envconfig:"TOKEN" split_words:"true"`
	Timeout time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"60s"`
}

func (c MCPConfig) Enabled() bool {
	return strings.TrimSpace(c.Command) != "" || strings.TrimSpace(c.SSEURL) != ""
}

// MCPExecutor runs tools exposed by an MCP server session.
type MCPExecutor struct {
	session *mcp.ClientSession
}

var _ Executor = (*MCPExecutor)(nil)

// ConnectMCP starts or dials the configured server and opens a session.
func ConnectMCP(ctx context.Context, cfg MCPConfig) (*MCPExecutor, error) {
	var transport mcp.Transport
	switch {
	case strings.TrimSpace(cfg.SSEURL) != "":
		httpClient := &http.Client{
			Timeout:   cfg.Timeout,
			Transport: bearerTransport{token: strings.TrimSpace(cfg.Token), base: http.DefaultTransport},
		}
		transport = &mcp.SSEClientTransport{HTTPClient: httpClient, Endpoint: strings.TrimSpace(cfg.SSEURL)}
	case strings.TrimSpace(cfg.Command) != "":
		command := exec.Command(strings.TrimSpace(cfg.Command), cfg.Args...)
		command.Env = append(os.Environ(), cfg.Env...)
		transport = &mcp.CommandTransport{Command: command}
	default:
		return nil, errors.New("mcp: command or sse url is required")
	}
	return ConnectMCPTransport(ctx, transport)
}

// ConnectMCPTransport opens a session over an arbitrary transport.
func ConnectMCPTransport(ctx context.Context, transport mcp.Transport) (*MCPExecutor, error) {
	client := mcp.NewClient(&mcp.Implementation{Name: "reservation-concierge", Version: "v1.0.0"}, nil)
	session, err := client.Connect(ctx, transport, nil)
	if err != nil {
		return nil, fmt.Errorf("mcp: connect: %w", err)
	}
	return &MCPExecutor{session: session}, nil
}

func (e *MCPExecutor) Close() error {
	if e == nil || e.session == nil {
		return nil
	}
	return e.session.Close()
}

func (e *MCPExecutor) ListTools(ctx context.Context) ([]*schema.ToolInfo, error) {
	res, err := e.session.ListTools(ctx, &mcp.ListToolsParams{})
	if err != nil {
		return nil, fmt.Errorf("mcp: list tools: %w", err)
	}
	infos := make([]*schema.ToolInfo, 0, len(res.Tools))
	for _, t := range res.Tools {
		if t == nil || strings.TrimSpace(t.Name) == "" {
			continue
		}
		params, err := paramsFromJSONSchema(t.InputSchema)
		if err != nil {
			log.Warn().Err(err).Str("tool", t.Name).Msg("mcp tool schema ignored")
		}
		info := &schema.ToolInfo{Name: t.Name, Desc: t.Description}
		if len(params) > 0 {
			info.ParamsOneOf = schema.NewParamsOneOfByParams(params)
		}
		infos = append(infos, info)
	}
	return infos, nil
}

func (e *MCPExecutor) CallTool(ctx context.Context, name string, args map[string]any) (Result, error) {
	res, err := e.session.CallTool(ctx, &mcp.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		return Errorf(name, "tool call failed: %v", err), nil
	}
	text := contentText(res.Content)
	if res.IsError {
		if text == "" {
			text = "tool reported an error"
		}
		return Result{Tool: name, Error: text}, nil
	}
	return Result{Tool: name, Content: text}, nil
}

func contentText(contents []mcp.Content) string {
	parts := make([]string, 0, len(contents))
	for _, c := range contents {
		switch v := c.(type) {
		case *mcp.TextContent:
			parts = append(parts, v.Text)
		default:
			if raw, err := json.Marshal(v); err == nil {
				parts = append(parts, string(raw))
			}
		}
	}
	return strings.Join(parts, "\n")
}

type jsonSchema struct {
	Type        any                    `json:"type"`
	Description string                 `json:"description"`
	Properties  map[string]*jsonSchema `json:"properties"`
	Required    []string               `json:"required"`
	Items       *jsonSchema            `json:"items"`
	Enum        []any                  `json:"enum"`
}

func paramsFromJSONSchema(raw any) (map[string]*schema.ParameterInfo, error) {
	if raw == nil {
		return nil, nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	var root jsonSchema
	if err := json.Unmarshal(data, &root); err != nil {
		return nil, err
	}
	return propertiesToParams(&root), nil
}

func propertiesToParams(s *jsonSchema) map[string]*schema.ParameterInfo {
	if s == nil || len(s.Properties) == 0 {
		return nil
	}
	required := make(map[string]bool, len(s.Required))
	for _, name := range s.Required {
		required[name] = true
	}
	out := make(map[string]*schema.ParameterInfo, len(s.Properties))
	for name, prop := range s.Properties {
		p := toParameterInfo(prop)
		p.Required = required[name]
		out[name] = p
	}
	return out
}

func toParameterInfo(s *jsonSchema) *schema.ParameterInfo {
	if s == nil {
		return &schema.ParameterInfo{Type: schema.String}
	}
	p := &schema.ParameterInfo{Type: dataType(s.Type), Desc: s.Description}
	for _, v := range s.Enum {
		p.Enum = append(p.Enum, fmt.Sprint(v))
	}
	switch p.Type {
	case schema.Array:
		p.ElemInfo = toParameterInfo(s.Items)
	case schema.Object:
		p.SubParams = propertiesToParams(s)
	}
	return p
}

func dataType(raw any) schema.DataType {
	name, _ := raw.(string)
	if list, ok := raw.([]any); ok {
		// ["string","null"] style unions
		for _, v := range list {
			if s, ok := v.(string); ok && s != "null" {
				name = s
				break
			}
		}
	}
	switch name {
	case "object":
		return schema.Object
	case "array":
		return schema.Array
	case "integer":
		return schema.Integer
	case "number":
		return schema.Number
	case "boolean":
		return schema.Boolean
	default:
		return schema.String
	}
}

type bearerTransport struct {
	token string
	base  http.RoundTripper
}

func (t bearerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.token != "" {
		req = req.Clone(req.Context())
		req.Header.Set("Authorization", "Bearer "+t.token)
	}
	return t.base.RoundTrip(req)
}
