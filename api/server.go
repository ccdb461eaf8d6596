package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/tanpawarit/reservation-concierge/agent/agents/orchestrator"
	contractx "github.com/tanpawarit/reservation-concierge/agent/contract"
	"github.com/tanpawarit/reservation-concierge/agent/llm"
	"github.com/tanpawarit/reservation-concierge/agent/memory"
)

// Conversation runs one persisted turn. *orchestrator.Orchestrator satisfies it.
type Conversation interface {
	HandleRequest(ctx context.Context, req orchestrator.Request) (*orchestrator.Response, error)
}

// MemoryLister is satisfied by *memory.Store.
type MemoryLister interface {
	ListByOwner(ctx context.Context, ownerID string) ([]memory.MemoryRecord, error)
}

type Server struct {
	cfg      Config
	conv     Conversation
	memories MemoryLister
	whatsapp *WhatsAppHandler
}

func NewServer(cfg Config, conv Conversation, memories MemoryLister, whatsapp *WhatsAppHandler) (*Server, error) {
	if conv == nil {
		return nil, errors.New("conversation is required")
	}
	return &Server{cfg: cfg, conv: conv, memories: memories, whatsapp: whatsapp}, nil
}

// Router mounts every route on a chi router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(accessLog)
	r.Use(chiMiddleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Route("/v1", func(r chi.Router) {
		r.Post("/chat", s.handleChat)
		if s.memories != nil {
			r.Get("/memories/{ownerID}", s.handleListMemories)
		}
	})
	if s.whatsapp != nil {
		s.whatsapp.RegisterRoutes(r)
	}
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type chatRequest struct {
	SessionID string        `json:"session_id"`
	OwnerID   string        `json:"owner_id"`
	Message   string        `json:"message"`
	Overrides llm.Overrides `json:"overrides,omitempty"`
}

type traceEntry struct {
	Node       string `json:"node"`
	Result     string `json:"result,omitempty"`
	DurationMS int64  `json:"duration_ms"`
}

type chatResponse struct {
	SessionID string       `json:"session_id"`
	Reply     string       `json:"reply"`
	Trace     []traceEntry `json:"trace"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.maxBody())

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	resp, err := s.conv.HandleRequest(r.Context(), orchestrator.Request{
		Utterance: req.Message,
		SessionID: req.SessionID,
		OwnerID:   req.OwnerID,
		Overrides: req.Overrides,
	})
	if err != nil {
		status := statusFor(err)
		log.Error().Err(err).Str("session_id", req.SessionID).Int("status", status).Msg("chat turn failed")
		writeError(w, status, err.Error())
		return
	}

	out := chatResponse{SessionID: req.SessionID, Reply: resp.Reply, Trace: make([]traceEntry, 0, len(resp.Trace))}
	for _, tr := range resp.Trace {
		out.Trace = append(out.Trace, traceEntry{Node: tr.Node, Result: string(tr.Result), DurationMS: tr.Duration.Milliseconds()})
	}
	writeJSON(w, http.StatusOK, out)
}

type memoryView struct {
	ID                  string `json:"id"`
	Text                string `json:"text"`
	Source              string `json:"source"`
	Timestamp           string `json:"timestamp"`
	OriginalUserMessage string `json:"original_user_message,omitempty"`
}

func (s *Server) handleListMemories(w http.ResponseWriter, r *http.Request) {
	owner := strings.TrimSpace(chi.URLParam(r, "ownerID"))
	if owner == "" {
		writeError(w, http.StatusBadRequest, "owner id is required")
		return
	}
	recs, err := s.memories.ListByOwner(r.Context(), owner)
	if err != nil {
		log.Error().Err(err).Str("owner_id", owner).Msg("list memories failed")
		writeError(w, http.StatusInternalServerError, "memory store unavailable")
		return
	}
	views := make([]memoryView, 0, len(recs))
	for _, rec := range recs {
		views = append(views, memoryView{
			ID:                  rec.ID,
			Text:                rec.Text,
			Source:              rec.Source,
			Timestamp:           rec.Timestamp.UTC().Format(time.RFC3339),
			OriginalUserMessage: rec.OriginalUserMessage,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"owner_id": owner, "memories": views})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, orchestrator.ErrInvalidMessage),
		errors.Is(err, orchestrator.ErrInvalidSession),
		errors.Is(err, contractx.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, contractx.ErrBackendUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Warn().Err(err).Msg("write response failed")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
