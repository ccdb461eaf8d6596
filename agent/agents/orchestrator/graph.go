package orchestrator

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/compose"

	contractx "github.com/tanpawarit/reservation-concierge/agent/contract"
	nodex "github.com/tanpawarit/reservation-concierge/agent/nodes"
)

const nodeTerminal = "terminal"

// pipeline is the fixed agent order between validate_request and terminal.
var pipeline = []contractx.AgentType{
	contractx.AgentTypeMemoryExtraction,
	contractx.AgentTypeMemoryInjection,
	contractx.AgentTypeReservation,
}

func (o *Orchestrator) compileRunGraph(
	ctx context.Context,
) (compose.Runnable[nodex.GraphInput, nodex.GraphOutput], error) {
	graph := compose.NewGraph[nodex.GraphInput, nodex.GraphOutput]()

	if err := graph.AddLambdaNode("validate_request",
		compose.InvokableLambda(func(ctx context.Context, in nodex.GraphInput) (*nodex.GraphState, error) {
			return nodex.ValidateRequest(in, o.now)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node validate_request: %w", err)
	}

	for _, agentType := range pipeline {
		agentType := agentType
		if err := graph.AddLambdaNode(string(agentType),
			compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
				return nodex.RunAgent(ctx, in, agentType)
			}),
		); err != nil {
			return nil, fmt.Errorf("add node %s: %w", agentType, err)
		}
	}

	if err := graph.AddLambdaNode(nodeTerminal,
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (nodex.GraphOutput, error) {
			return nodex.FinalizeReply(in)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node %s: %w", nodeTerminal, err)
	}

	edges := [][2]string{
		{compose.START, "validate_request"},
		{"validate_request", string(contractx.AgentTypeMemoryExtraction)},
		{string(contractx.AgentTypeMemoryExtraction), string(contractx.AgentTypeMemoryInjection)},
		{string(contractx.AgentTypeMemoryInjection), string(contractx.AgentTypeReservation)},
		{string(contractx.AgentTypeReservation), nodeTerminal},
		{nodeTerminal, compose.END},
	}

	for _, edge := range edges {
		if err := graph.AddEdge(edge[0], edge[1]); err != nil {
			return nil, fmt.Errorf("add edge %s->%s: %w", edge[0], edge[1], err)
		}
	}

	runner, err := graph.Compile(ctx, compose.WithGraphName("orchestrator.run"))
	if err != nil {
		return nil, fmt.Errorf("compile orchestrator graph: %w", err)
	}
	return runner, nil
}
