package orchestratornode

import (
	"fmt"

	contractx "github.com/tanpawarit/reservation-concierge/agent/contract"
)

// FinalizeReply is the terminal node. It reads the state and changes nothing.
func FinalizeReply(in *GraphState) (GraphOutput, error) {
	if in == nil || in.State == nil {
		return GraphOutput{}, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}
	if err := in.Step("terminal", nil); err != nil {
		return GraphOutput{}, err
	}
	return GraphOutput{
		State: in.State,
		Reply: in.State.LatestReply(),
		Trace: in.Trace,
	}, nil
}
