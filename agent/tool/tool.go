package tool

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cloudwego/eino/schema"
)

// Result is the outcome of one tool call. Failures are carried in Error and
// never raised to the caller.
type Result struct {
	Tool    string `json:"tool"`
	Content string `json:"content,omitempty"`
	Error   string `json:"error,omitempty"`
}

func (r Result) Failed() bool {
	return r.Error != ""
}

// Text is what the model sees: the content, or {"error": ...} on failure.
func (r Result) Text() string {
	if !r.Failed() {
		return r.Content
	}
	raw, err := json.Marshal(map[string]string{"error": r.Error})
	if err != nil {
		return fmt.Sprintf(`{"error":%q}`, r.Error)
	}
	return string(raw)
}

func Errorf(tool, format string, args ...any) Result {
	return Result{Tool: tool, Error: fmt.Sprintf(format, args...)}
}

// Executor lists and runs named side-effecting operations.
type Executor interface {
	ListTools(ctx context.Context) ([]*schema.ToolInfo, error)
	CallTool(ctx context.Context, name string, args map[string]any) (Result, error)
}
