package state

import "time"

// ResultKind discriminates an agent's output.
type ResultKind string

const (
	ResultSuccess  ResultKind = "success"
	ResultDegraded ResultKind = "degraded"
	ResultFailure  ResultKind = "failure"
)

// ErrorKind classifies a failed agent invocation.
type ErrorKind string

const (
	ErrorKindBackend ErrorKind = "backend"
	ErrorKindTool    ErrorKind = "tool"
	ErrorKindParse   ErrorKind = "parse"
	ErrorKindMemory  ErrorKind = "memory_store"
	ErrorKindUnknown ErrorKind = "unknown"
)

// AgentResult is one agent output: Success(content), Degraded(raw, reason)
// or Failure(kind, detail). Content always carries the text that was appended
// to the message history.
type AgentResult struct {
	Kind      ResultKind `json:"kind"`
	Content   string     `json:"content"`
	Raw       string     `json:"raw,omitempty"`
	Reason    string     `json:"reason,omitempty"`
	ErrorKind ErrorKind  `json:"error_kind,omitempty"`
	Detail    string     `json:"detail,omitempty"`
	At        time.Time  `json:"at"`
}

func Succeeded(content string, now time.Time) AgentResult {
	return AgentResult{Kind: ResultSuccess, Content: content, At: now.UTC()}
}

// Degraded records usable output produced from a fallback path.
func Degraded(content, raw, reason string, now time.Time) AgentResult {
	return AgentResult{Kind: ResultDegraded, Content: content, Raw: raw, Reason: reason, At: now.UTC()}
}

// Failed records a failure; content is the user-safe message shown in history.
func Failed(kind ErrorKind, content, detail string, now time.Time) AgentResult {
	return AgentResult{Kind: ResultFailure, Content: content, ErrorKind: kind, Detail: detail, At: now.UTC()}
}

func (r AgentResult) Text() string {
	return r.Content
}

func (r AgentResult) IsFailure() bool {
	return r.Kind == ResultFailure
}

// Latest returns the current (last) element of a result slot.
func Latest(results []AgentResult) (AgentResult, bool) {
	if len(results) == 0 {
		return AgentResult{}, false
	}
	return results[len(results)-1], true
}
