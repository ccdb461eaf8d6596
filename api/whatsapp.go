package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog/log"

	"github.com/tanpawarit/reservation-concierge/agent/agents/orchestrator"
	reservationagent "github.com/tanpawarit/reservation-concierge/agent/agents/reservation"
	qstashx "github.com/tanpawarit/reservation-concierge/pkg/qstash"
)

const (
	webhookPath = "/whatsapp_response"
	jobPath     = "/v1/jobs/whatsapp"

	unsupportedTypeReply = "Sadece metin mesajları destekleniyor"
)

// Sender delivers a text reply to a WhatsApp number.
type Sender interface {
	SendText(ctx context.Context, to, body string) error
}

// Queue defers webhook work. *qstash.Client satisfies it.
type Queue interface {
	PublishJSON(ctx context.Context, destination string, payload any) (string, error)
	Verify(signature string, body []byte, destination string) error
}

// WhatsAppHandler serves the Cloud API webhook. With a Queue, inbound text
// messages are published and processed on delivery; without one they are
// processed inline.
type WhatsAppHandler struct {
	cfg     WhatsAppConfig
	apiCfg  Config
	conv    Conversation
	sender  Sender
	queue   Queue
	handled *lru.Cache[string, struct{}]
}

func NewWhatsAppHandler(cfg WhatsAppConfig, apiCfg Config, conv Conversation, sender Sender, queue Queue) (*WhatsAppHandler, error) {
	if conv == nil {
		return nil, errors.New("conversation is required")
	}
	if sender == nil {
		return nil, errors.New("whatsapp sender is required")
	}
	if queue != nil && strings.TrimSpace(apiCfg.PublicURL) == "" {
		return nil, errors.New("public url is required to queue whatsapp jobs")
	}
	size := cfg.DedupeSize
	if size <= 0 {
		size = 1024
	}
	handled, err := lru.New[string, struct{}](size)
	if err != nil {
		return nil, fmt.Errorf("create dedupe cache: %w", err)
	}
	return &WhatsAppHandler{cfg: cfg, apiCfg: apiCfg, conv: conv, sender: sender, queue: queue, handled: handled}, nil
}

func (h *WhatsAppHandler) RegisterRoutes(r chi.Router) {
	r.Get(webhookPath, h.handleVerify)
	r.Post(webhookPath, h.handleWebhook)
	if h.queue != nil {
		r.Post(jobPath, h.handleJob)
	}
}

type webhookPayload struct {
	Object string `json:"object"`
	Entry  []struct {
		Changes []struct {
			Value changeValue `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

type changeValue struct {
	Messages []inboundMessage `json:"messages"`
	Statuses []json.RawMessage `json:"statuses"`
}

type inboundMessage struct {
	ID   string `json:"id"`
	From string `json:"from"`
	Type string `json:"type"`
	Text *struct {
		Body string `json:"body"`
	} `json:"text"`
}

// whatsAppJob is one text message ready for the pipeline.
type whatsAppJob struct {
	MessageID string `json:"message_id"`
	From      string `json:"from"`
	Text      string `json:"text"`
}

func (h *WhatsAppHandler) handleVerify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("hub.verify_token") != h.cfg.VerifyToken {
		http.Error(w, "Verification token mismatch", http.StatusForbidden)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, q.Get("hub.challenge"))
}

func (h *WhatsAppHandler) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.apiCfg.maxBody()))
	if err != nil {
		http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
		return
	}
	if len(bytes.TrimSpace(body)) <= 2 {
		plain(w, http.StatusOK, "Empty request")
		return
	}

	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		plain(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if payload.Object != "whatsapp_business_account" || payload.Entry == nil {
		log.Warn().Str("object", payload.Object).Msg("unexpected webhook format")
		plain(w, http.StatusOK, "Unexpected request format")
		return
	}
	if len(payload.Entry) == 0 || len(payload.Entry[0].Changes) == 0 {
		plain(w, http.StatusOK, "No changes")
		return
	}

	value := payload.Entry[0].Changes[0].Value
	switch {
	case len(value.Messages) > 0:
		h.handleInbound(w, r, value.Messages[0])
	case len(value.Statuses) > 0:
		plain(w, http.StatusOK, "Status update received")
	default:
		plain(w, http.StatusBadRequest, "Unknown event type")
	}
}

func (h *WhatsAppHandler) handleInbound(w http.ResponseWriter, r *http.Request, msg inboundMessage) {
	ctx := r.Context()
	logger := log.With().Str("message_id", msg.ID).Str("from", msg.From).Logger()

	if msg.ID != "" {
		if seen, _ := h.handled.ContainsOrAdd(msg.ID, struct{}{}); seen {
			logger.Info().Msg("message already processed")
			plain(w, http.StatusOK, "Message already processed")
			return
		}
	}
	if msg.Type != "text" {
		logger.Warn().Str("type", msg.Type).Msg("unsupported message type")
		if err := h.sender.SendText(ctx, msg.From, unsupportedTypeReply); err != nil {
			logger.Error().Err(err).Msg("send unsupported type reply failed")
		}
		plain(w, http.StatusOK, "Unsupported message type")
		return
	}
	if msg.Text == nil || strings.TrimSpace(msg.Text.Body) == "" {
		plain(w, http.StatusBadRequest, "Message content not found")
		return
	}

	job := whatsAppJob{MessageID: msg.ID, From: msg.From, Text: msg.Text.Body}
	if h.queue != nil {
		id, err := h.queue.PublishJSON(ctx, h.apiCfg.jobURL(jobPath), job)
		if err != nil {
			h.handled.Remove(msg.ID)
			logger.Error().Err(err).Msg("queue whatsapp job failed")
			plain(w, http.StatusInternalServerError, "Failed to queue message")
			return
		}
		logger.Info().Str("qstash_message_id", id).Msg("whatsapp job queued")
		plain(w, http.StatusAccepted, "Message queued")
		return
	}

	if err := h.process(ctx, job); err != nil {
		plain(w, http.StatusInternalServerError, "Failed to process message")
		return
	}
	plain(w, http.StatusOK, "Message processed")
}

func (h *WhatsAppHandler) handleJob(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.apiCfg.maxBody()))
	if err != nil {
		http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
		return
	}
	if err := h.queue.Verify(r.Header.Get(qstashx.SignatureHeader), body, h.apiCfg.jobURL(jobPath)); err != nil {
		log.Warn().Err(err).Msg("rejected whatsapp job")
		plain(w, http.StatusUnauthorized, "Invalid signature")
		return
	}
	var job whatsAppJob
	if err := json.Unmarshal(body, &job); err != nil || job.From == "" || strings.TrimSpace(job.Text) == "" {
		// A malformed job will never succeed, so it is acknowledged.
		plain(w, http.StatusOK, "Malformed job")
		return
	}
	if err := h.process(r.Context(), job); err != nil {
		plain(w, http.StatusInternalServerError, "Failed to process message")
		return
	}
	plain(w, http.StatusOK, "Message processed")
}

// process runs the sender's session for one text and replies. The sender
// number is both the session and the memory owner.
func (h *WhatsAppHandler) process(ctx context.Context, job whatsAppJob) error {
	logger := log.With().Str("message_id", job.MessageID).Str("from", job.From).Logger()

	reply := reservationagent.Apology
	resp, runErr := h.conv.HandleRequest(ctx, orchestrator.Request{
		Utterance: job.Text,
		SessionID: job.From,
		OwnerID:   job.From,
	})
	if runErr != nil {
		logger.Error().Err(runErr).Msg("pipeline run failed")
	} else if strings.TrimSpace(resp.Reply) != "" {
		reply = resp.Reply
	}

	if err := h.sender.SendText(ctx, job.From, reply); err != nil {
		logger.Error().Err(err).Msg("send whatsapp reply failed")
		return err
	}
	return runErr
}

func plain(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, msg)
}
