package orchestrator

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cloudwego/eino/compose"
	"github.com/rs/zerolog/log"

	"github.com/tanpawarit/reservation-concierge/agent/agents/base"
	memoryagent "github.com/tanpawarit/reservation-concierge/agent/agents/memory"
	reservationagent "github.com/tanpawarit/reservation-concierge/agent/agents/reservation"
	contractx "github.com/tanpawarit/reservation-concierge/agent/contract"
	"github.com/tanpawarit/reservation-concierge/agent/llm"
	nodex "github.com/tanpawarit/reservation-concierge/agent/nodes"
	"github.com/tanpawarit/reservation-concierge/agent/prompt"
	statex "github.com/tanpawarit/reservation-concierge/agent/state"
	toolx "github.com/tanpawarit/reservation-concierge/agent/tool"
)

var (
	ErrInvalidMessage = nodex.ErrInvalidMessage
	ErrInvalidSession = nodex.ErrInvalidSession
)

// Defaults yields the baseline config of each agent. llm.Config satisfies it.
type Defaults interface {
	DefaultsFor(agentType contractx.AgentType) llm.AgentConfig
}

// Deps are the collaborators shared by every run.
type Deps struct {
	Defaults Defaults
	Factory  llm.ModelFactory
	Prompts  prompt.PromptSet

	// Writer and Searcher are usually the same memory.Store. Either may be
	// nil, which disables that half of long-term memory.
	Writer   contractx.MemoryWriter
	Searcher contractx.MemorySearcher
	TopK     int

	// Executor is offered to the extraction and reservation agents unless an
	// override supplies another one. Extraction only lists its tools.
	Executor      toolx.Executor
	MaxToolRounds int

	// Store is only needed by HandleMessage and HandleRequest.
	Store statex.Store

	// Feedback is handed to the reservation agent; nil means none.
	Feedback func() string
}

// Request is one inbound turn.
type Request struct {
	Utterance  string
	SessionID  string
	OwnerID    string
	PriorState *statex.SharedState
	Overrides  llm.Overrides
}

type Response struct {
	State *statex.SharedState
	Reply string
	Trace []nodex.StepTrace
}

// Orchestrator runs the fixed memory_extraction, memory_injection,
// reservation, terminal pipeline. It keeps no per-run state.
type Orchestrator struct {
	deps Deps
	cfg  Config

	graphRunner compose.Runnable[nodex.GraphInput, nodex.GraphOutput]

	sessionMu sync.Mutex
	sessions  map[string]*sessionLock

	now func() time.Time
}

type sessionLock struct {
	mu   sync.Mutex
	refs int
}

func New(deps Deps, cfg Config) (*Orchestrator, error) {
	if deps.Defaults == nil {
		return nil, errors.New("agent defaults are required")
	}
	if deps.Factory == nil {
		return nil, errors.New("model factory is required")
	}
	if deps.Prompts.MemoryAnalysis == "" || deps.Prompts.Reservation == "" {
		return nil, contractx.ErrPromptMissing
	}

	o := &Orchestrator{
		deps:     deps,
		cfg:      cfg.withDefaults(),
		sessions: make(map[string]*sessionLock),
		now:      time.Now,
	}

	graphRunner, err := o.compileRunGraph(context.Background())
	if err != nil {
		return nil, err
	}
	o.graphRunner = graphRunner

	return o, nil
}

// Run executes one turn on a clone of req.PriorState. The prior state is
// never modified, so an aborted run leaves it as it was.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*Response, error) {
	out, err := o.graphRunner.Invoke(ctx, nodex.GraphInput{
		SessionID: req.SessionID,
		OwnerID:   req.OwnerID,
		Text:      req.Utterance,
		Prior:     req.PriorState,
		Agents:    o.agents(req.Overrides),
		MaxSteps:  o.cfg.MaxSteps,
	})
	if err != nil {
		log.Error().Err(err).Str("session_id", req.SessionID).Msg("pipeline run aborted")
		return nil, err
	}
	return &Response{State: out.State, Reply: out.Reply, Trace: out.Trace}, nil
}

// HandleMessage runs one turn of a persisted session and returns the reply.
func (o *Orchestrator) HandleMessage(ctx context.Context, sessionID, ownerID, text string) (string, error) {
	resp, err := o.HandleRequest(ctx, Request{Utterance: text, SessionID: sessionID, OwnerID: ownerID})
	if err != nil {
		return "", err
	}
	return resp.Reply, nil
}

// HandleRequest loads the session from the store as the prior state, runs one
// turn and saves the result. req.PriorState is ignored. Turns of the same
// session are serialized.
func (o *Orchestrator) HandleRequest(ctx context.Context, req Request) (*Response, error) {
	if o.deps.Store == nil {
		return nil, errors.New("state store is required")
	}
	unlock := o.lockSession(req.SessionID)
	defer unlock()

	prior, err := nodex.LoadOrCreateState(ctx, o.deps.Store, req.SessionID, req.OwnerID, o.now())
	if err != nil {
		return nil, err
	}
	req.PriorState = prior
	resp, err := o.Run(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := nodex.ValidateAndSaveState(ctx, o.deps.Store, prior, resp.State, o.now()); err != nil {
		return nil, err
	}
	return resp, nil
}

func (o *Orchestrator) lockSession(sessionID string) func() {
	o.sessionMu.Lock()
	l, ok := o.sessions[sessionID]
	if !ok {
		l = &sessionLock{}
		o.sessions[sessionID] = l
	}
	l.refs++
	o.sessionMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		o.sessionMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(o.sessions, sessionID)
		}
		o.sessionMu.Unlock()
	}
}

// agents builds this run's agents from the defaults merged with overrides.
func (o *Orchestrator) agents(overrides llm.Overrides) map[contractx.AgentType]contractx.Agent {
	newBase := func(agentType contractx.AgentType) base.Base {
		ac := o.deps.Defaults.DefaultsFor(agentType)
		// Extraction only describes the tools; reservation calls them.
		if agentType != contractx.AgentTypeMemoryInjection && ac.Executor == nil {
			ac.Executor = o.deps.Executor
		}
		ov, _ := overrides.For(agentType)
		return base.Base{
			Type:          agentType,
			Config:        llm.Merge(ac, ov),
			Factory:       o.deps.Factory,
			MaxToolRounds: o.deps.MaxToolRounds,
			Now:           o.now,
		}
	}

	topK := o.deps.TopK
	return map[contractx.AgentType]contractx.Agent{
		contractx.AgentTypeMemoryExtraction: &memoryagent.ExtractionAgent{
			Base:          newBase(contractx.AgentTypeMemoryExtraction),
			Prompt:        o.deps.Prompts.MemoryAnalysis,
			Writer:        o.deps.Writer,
			HistoryWindow: o.cfg.HistoryWindow,
		},
		contractx.AgentTypeMemoryInjection: &memoryagent.InjectionAgent{
			Base:            newBase(contractx.AgentTypeMemoryInjection),
			Searcher:        o.deps.Searcher,
			TopK:            topK,
			RecentUserTurns: o.cfg.RecentUserTurns,
		},
		contractx.AgentTypeReservation: &reservationagent.Agent{
			Base:          newBase(contractx.AgentTypeReservation),
			Prompt:        o.deps.Prompts.Reservation,
			HistoryWindow: o.cfg.HistoryWindow,
			Feedback:      o.deps.Feedback,
		},
	}
}
