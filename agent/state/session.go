package state

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// SharedState is the single record threaded through the pipeline for one
// conversation turn. It is persisted per session and carried into the next
// turn as prior state.
//   - Messages is append-only: agents never remove or reorder entries.
//   - Each agent appends to its own result slot only; the last element is current.
type SharedState struct {
	// Identity
	SessionID string `json:"session_id"`
	OwnerID   string `json:"owner_id"`

	Utterance []string  `json:"utterance"`
	Messages  []Message `json:"messages"`

	MemoryExtractionResult []AgentResult `json:"memory_extraction_result"`
	MemoryInjectionResult  []AgentResult `json:"memory_injection_result"`
	ReservationResult      []AgentResult `json:"reservation_result"`
	SupportResult          []AgentResult `json:"support_result"`

	// MemoryContext is staged by the injection agent for the reservation prompt.
	MemoryContext string `json:"memory_context,omitempty"`

	// ToolResults holds the latest reservation tool output per kind.
	ToolResults map[ToolResultKind]string `json:"tool_results,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
}

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

type ToolResultKind string

const (
	ToolResultList   ToolResultKind = "list"
	ToolResultAdd    ToolResultKind = "add"
	ToolResultUpdate ToolResultKind = "update"
	ToolResultDelete ToolResultKind = "delete"
)

var (
	ErrNilState      = errors.New("shared state is nil")
	ErrEmptyMessage  = errors.New("message content is empty")
	ErrUnknownRole   = errors.New("unknown message role")
	ErrHistoryShrunk = errors.New("message history shrank")
)

func NewSharedState(sessionID, ownerID string, now time.Time) *SharedState {
	return &SharedState{
		SessionID: sessionID,
		OwnerID:   ownerID,
		UpdatedAt: now.UTC(),
	}
}

func (s *SharedState) Touch(now time.Time) {
	s.UpdatedAt = now.UTC()
}

// LatestUtterance returns the last inbound utterance or "".
func (s *SharedState) LatestUtterance() string {
	if s == nil || len(s.Utterance) == 0 {
		return ""
	}
	return s.Utterance[len(s.Utterance)-1]
}

// Ingest records a new inbound user turn: it becomes the current utterance and
// is appended to the history as a user message.
func (s *SharedState) Ingest(text string) error {
	if s == nil {
		return ErrNilState
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}
	s.Utterance = append(s.Utterance, text)
	return s.AppendMessage(RoleUser, text)
}

func (s *SharedState) AppendMessage(role Role, content string) error {
	if s == nil {
		return ErrNilState
	}
	switch role {
	case RoleSystem, RoleUser, RoleAssistant:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownRole, role)
	}
	s.Messages = append(s.Messages, Message{Role: role, Content: content})
	return nil
}

// RecentMessages returns up to n of the most recent messages (all when n <= 0).
func (s *SharedState) RecentMessages(n int) []Message {
	if s == nil {
		return nil
	}
	if n <= 0 || n >= len(s.Messages) {
		return s.Messages
	}
	return s.Messages[len(s.Messages)-n:]
}

// RecentUserMessages returns up to n of the most recent user messages, oldest first.
func (s *SharedState) RecentUserMessages(n int) []string {
	if s == nil {
		return nil
	}
	out := make([]string, 0, n)
	for i := len(s.Messages) - 1; i >= 0 && len(out) < n; i-- {
		if s.Messages[i].Role == RoleUser {
			out = append(out, s.Messages[i].Content)
		}
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// HistoryText renders the history as "role: content" lines for prompts.
func (s *SharedState) HistoryText(n int) string {
	msgs := s.RecentMessages(n)
	if len(msgs) == 0 {
		return "(empty)"
	}
	var b strings.Builder
	for _, m := range msgs {
		b.WriteString(string(m.Role))
		b.WriteString(": ")
		b.WriteString(m.Content)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func (s *SharedState) SetToolResult(kind ToolResultKind, content string) {
	if s.ToolResults == nil {
		s.ToolResults = make(map[ToolResultKind]string, 4)
	}
	s.ToolResults[kind] = content
}

func (s *SharedState) ToolResult(kind ToolResultKind) string {
	if s == nil || s.ToolResults == nil {
		return ""
	}
	return s.ToolResults[kind]
}

// LatestReply returns the content of the current reservation result, which is
// the user-facing reply of the turn.
func (s *SharedState) LatestReply() string {
	if s == nil {
		return ""
	}
	if r, ok := Latest(s.ReservationResult); ok {
		return r.Text()
	}
	return ""
}

// Clone returns a deep copy so a run can mutate state without the caller
// observing a partially updated record.
func (s *SharedState) Clone() *SharedState {
	if s == nil {
		return nil
	}
	out := *s
	out.Utterance = append([]string(nil), s.Utterance...)
	out.Messages = append([]Message(nil), s.Messages...)
	out.MemoryExtractionResult = append([]AgentResult(nil), s.MemoryExtractionResult...)
	out.MemoryInjectionResult = append([]AgentResult(nil), s.MemoryInjectionResult...)
	out.ReservationResult = append([]AgentResult(nil), s.ReservationResult...)
	out.SupportResult = append([]AgentResult(nil), s.SupportResult...)
	if s.ToolResults != nil {
		out.ToolResults = make(map[ToolResultKind]string, len(s.ToolResults))
		for k, v := range s.ToolResults {
			out.ToolResults[k] = v
		}
	}
	return &out
}

func (s *SharedState) Validate() error {
	if s == nil {
		return ErrNilState
	}
	if strings.TrimSpace(s.SessionID) == "" {
		return ErrInvalidSession
	}
	for i, m := range s.Messages {
		switch m.Role {
		case RoleSystem, RoleUser, RoleAssistant:
		default:
			return fmt.Errorf("%w: message[%d] role=%q", ErrUnknownRole, i, m.Role)
		}
	}
	return nil
}

// CheckAppendOnly verifies that next extends prev without rewriting it.
func CheckAppendOnly(prev, next []Message) error {
	if len(next) < len(prev) {
		return fmt.Errorf("%w: %d -> %d", ErrHistoryShrunk, len(prev), len(next))
	}
	for i := range prev {
		if prev[i] != next[i] {
			return fmt.Errorf("%w: message[%d] was rewritten", ErrHistoryShrunk, i)
		}
	}
	return nil
}
