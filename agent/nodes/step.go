package orchestratornode

import (
	"fmt"
	"time"

	contractx "github.com/tanpawarit/reservation-concierge/agent/contract"
	statex "github.com/tanpawarit/reservation-concierge/agent/state"
)

type StepTrace struct {
	Node     string            `json:"node"`
	Result   statex.ResultKind `json:"result,omitempty"`
	Duration time.Duration     `json:"duration"`
}

// Step counts one node execution against the run's ceiling.
func (g *GraphState) Step(node string, started *time.Time) error {
	g.Steps++
	if g.MaxSteps > 0 && g.Steps > g.MaxSteps {
		return fmt.Errorf("%w: node=%s step=%d max=%d", contractx.ErrStepLimit, node, g.Steps, g.MaxSteps)
	}
	tr := StepTrace{Node: node}
	if started != nil {
		tr.Duration = time.Since(*started)
	}
	g.Trace = append(g.Trace, tr)
	return nil
}
