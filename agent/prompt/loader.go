package prompt

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	einoprompt "github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"

	contractx "github.com/tanpawarit/reservation-concierge/agent/contract"
)

var (
	//go:embed template/memory_analysis.txt
	memoryAnalysisRaw string

	//go:embed template/reservation.txt
	reservationRaw string
)

// PromptSet holds loaded prompt content.
type PromptSet struct {
	MemoryAnalysis string
	Reservation    string
}

// LoadPromptSet returns a PromptSet with trimmed prompt strings.
func LoadPromptSet() PromptSet {
	return PromptSet{
		MemoryAnalysis: strings.TrimSpace(memoryAnalysisRaw),
		Reservation:    strings.TrimSpace(reservationRaw),
	}
}

// Render formats a system template and a user template with the same vars.
// Both use FString placeholders; literal braces are written doubled.
func Render(ctx context.Context, system, user string, vars map[string]any) ([]*schema.Message, error) {
	if strings.TrimSpace(system) == "" {
		return nil, fmt.Errorf("%w: system template is empty", contractx.ErrPromptMissing)
	}
	tpl := einoprompt.FromMessages(schema.FString,
		schema.SystemMessage(system),
		schema.UserMessage(user),
	)
	msgs, err := tpl.Format(ctx, vars)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", contractx.ErrPromptMissing, err)
	}
	return msgs, nil
}
