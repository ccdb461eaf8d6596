package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tanpawarit/reservation-concierge/agent/agents/orchestrator"
	contractx "github.com/tanpawarit/reservation-concierge/agent/contract"
	"github.com/tanpawarit/reservation-concierge/agent/llm"
	"github.com/tanpawarit/reservation-concierge/agent/memory"
	nodex "github.com/tanpawarit/reservation-concierge/agent/nodes"
)

type fakeConversation struct {
	mu    sync.Mutex
	reqs  []orchestrator.Request
	reply string
	err   error
}

func (f *fakeConversation) HandleRequest(_ context.Context, req orchestrator.Request) (*orchestrator.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return nil, f.err
	}
	return &orchestrator.Response{
		Reply: f.reply,
		Trace: []nodex.StepTrace{{Node: "validate_request"}, {Node: "reservation", Result: "success", Duration: 3 * time.Millisecond}},
	}, nil
}

func (f *fakeConversation) requests() []orchestrator.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]orchestrator.Request(nil), f.reqs...)
}

type fakeLister struct {
	recs []memory.MemoryRecord
	err  error
}

func (f fakeLister) ListByOwner(context.Context, string) ([]memory.MemoryRecord, error) {
	return f.recs, f.err
}

func newTestServer(t *testing.T, conv Conversation, lister MemoryLister) http.Handler {
	t.Helper()
	s, err := NewServer(Config{MaxBodyBytes: 1 << 10}, conv, lister, nil)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	return s.Router()
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	newTestServer(t, &fakeConversation{}, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Fatalf("unexpected health response %d %s", rec.Code, rec.Body.String())
	}
}

func TestChatRunsTurnWithOverrides(t *testing.T) {
	t.Parallel()

	conv := &fakeConversation{reply: "Deluxe oda gecelik 1500 TL."}
	body := `{"session_id":"s1","owner_id":"o1","message":"deluxe ne kadar?","overrides":{"reservation":{"backend":"groq","temperature":0.2}}}`
	rec := httptest.NewRecorder()
	newTestServer(t, conv, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/chat", strings.NewReader(body)))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var out chatResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Reply != "Deluxe oda gecelik 1500 TL." || out.SessionID != "s1" || len(out.Trace) != 2 {
		t.Fatalf("unexpected response %+v", out)
	}
	if out.Trace[1].DurationMS != 3 {
		t.Fatalf("unexpected trace duration %+v", out.Trace[1])
	}

	reqs := conv.requests()
	if len(reqs) != 1 {
		t.Fatalf("expected 1 request, got %d", len(reqs))
	}
	ov, ok := reqs[0].Overrides.For(contractx.AgentTypeReservation)
	if !ok || ov.Backend == nil || *ov.Backend != llm.BackendGroq || ov.Temperature == nil || *ov.Temperature != 0.2 {
		t.Fatalf("overrides not decoded: %+v", reqs[0].Overrides)
	}
	if reqs[0].Utterance != "deluxe ne kadar?" || reqs[0].OwnerID != "o1" {
		t.Fatalf("unexpected request %+v", reqs[0])
	}
}

func TestChatErrorStatuses(t *testing.T) {
	t.Parallel()

	cases := []struct {
		err  error
		want int
	}{
		{orchestrator.ErrInvalidMessage, http.StatusBadRequest},
		{fmt.Errorf("wrapped: %w", orchestrator.ErrInvalidSession), http.StatusBadRequest},
		{fmt.Errorf("%w: gemini down", contractx.ErrBackendUnavailable), http.StatusServiceUnavailable},
		{fmt.Errorf("%w: node=reservation", contractx.ErrStepLimit), http.StatusInternalServerError},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		newTestServer(t, &fakeConversation{err: tc.err}, nil).ServeHTTP(rec,
			httptest.NewRequest(http.MethodPost, "/v1/chat", strings.NewReader(`{"session_id":"s","message":"x"}`)))
		if rec.Code != tc.want {
			t.Fatalf("%v: expected %d, got %d", tc.err, tc.want, rec.Code)
		}
	}
}

func TestChatRejectsBadBodies(t *testing.T) {
	t.Parallel()

	h := newTestServer(t, &fakeConversation{}, nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/chat", strings.NewReader("{not json")))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}

	big := `{"message":"` + strings.Repeat("a", 2048) + `"}`
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/chat", strings.NewReader(big)))
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", rec.Code)
	}
}

func TestListMemories(t *testing.T) {
	t.Parallel()

	ts := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	lister := fakeLister{recs: []memory.MemoryRecord{{ID: "m1", Text: "Madrid'de yaşıyor", Source: "conversation", Timestamp: ts}}}
	rec := httptest.NewRecorder()
	newTestServer(t, &fakeConversation{}, lister).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/memories/device-1", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Madrid") || !strings.Contains(rec.Body.String(), "2025-06-01T08:00:00Z") {
		t.Fatalf("unexpected body %s", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	newTestServer(t, &fakeConversation{}, fakeLister{err: errors.New("down")}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/memories/device-1", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}

func TestNewServerRequiresConversation(t *testing.T) {
	t.Parallel()

	if _, err := NewServer(Config{}, nil, nil, nil); err == nil {
		t.Fatal("expected error")
	}
}
