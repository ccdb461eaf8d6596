package prompt

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/cloudwego/eino/schema"

	contractx "github.com/tanpawarit/reservation-concierge/agent/contract"
)

func TestLoadPromptSetNonEmpty(t *testing.T) {
	t.Parallel()

	set := LoadPromptSet()
	if set.MemoryAnalysis == "" || set.Reservation == "" {
		t.Fatalf("prompts must be embedded: %+v", set)
	}
}

func TestRenderMemoryAnalysis(t *testing.T) {
	t.Parallel()

	msgs, err := Render(context.Background(), LoadPromptSet().MemoryAnalysis, "Message: {message}\nOutput:", map[string]any{
		"tools_description": "- list_reservations: list",
		"chat_history":      "user: hi",
		"message":           "I live in Madrid",
	})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if len(msgs) != 2 || msgs[0].Role != schema.System || msgs[1].Role != schema.User {
		t.Fatalf("unexpected messages: %+v", msgs)
	}
	if !strings.Contains(msgs[0].Content, `{"is_important": true, "formatted_memory": "Lives in Madrid"}`) {
		t.Fatal("escaped braces must render as literal JSON")
	}
	if !strings.Contains(msgs[1].Content, "I live in Madrid") {
		t.Fatalf("unexpected user message: %q", msgs[1].Content)
	}
}

func TestRenderReservation(t *testing.T) {
	t.Parallel()

	msgs, err := Render(context.Background(), LoadPromptSet().Reservation, "{message}", map[string]any{
		"tools_description": "(no tools available)",
		"tool_results":      `REZERVASYON KAYITLARI {"count": 0}`,
		"chat_history":      "(empty)",
		"memory_context":    "- Lives in Madrid",
		"feedback":          "",
		"message":           "nerede yaşıyorum",
	})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(msgs[0].Content, "- Lives in Madrid") || !strings.Contains(msgs[0].Content, `{"count": 0}`) {
		t.Fatalf("values must be substituted verbatim: %s", msgs[0].Content)
	}
}

func TestRenderMissingVariable(t *testing.T) {
	t.Parallel()

	_, err := Render(context.Background(), LoadPromptSet().Reservation, "{message}", map[string]any{"message": "x"})
	if !errors.Is(err, contractx.ErrPromptMissing) {
		t.Fatalf("expected ErrPromptMissing, got %v", err)
	}
	if _, err := Render(context.Background(), " ", "{message}", nil); !errors.Is(err, contractx.ErrPromptMissing) {
		t.Fatalf("expected ErrPromptMissing for empty template, got %v", err)
	}
}
