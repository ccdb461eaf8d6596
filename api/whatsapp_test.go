package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	reservationagent "github.com/tanpawarit/reservation-concierge/agent/agents/reservation"
	qstashx "github.com/tanpawarit/reservation-concierge/pkg/qstash"
)

type sentMessage struct {
	to   string
	body string
}

type fakeSender struct {
	mu   sync.Mutex
	sent []sentMessage
	err  error
}

func (f *fakeSender) SendText(_ context.Context, to, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMessage{to: to, body: body})
	return f.err
}

func (f *fakeSender) messages() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMessage(nil), f.sent...)
}

type fakeQueue struct {
	published []any
	dest      string
	err       error
	verifyErr error
}

func (q *fakeQueue) PublishJSON(_ context.Context, destination string, payload any) (string, error) {
	q.dest = destination
	if q.err != nil {
		return "", q.err
	}
	q.published = append(q.published, payload)
	return "msg_1", nil
}

func (q *fakeQueue) Verify(signature string, _ []byte, destination string) error {
	q.dest = destination
	if signature == "" {
		return qstashx.ErrInvalidSignature
	}
	return q.verifyErr
}

const textWebhook = `{"object":"whatsapp_business_account","entry":[{"changes":[{"value":{"messages":[{"id":"wamid.1","from":"905551112233","type":"text","text":{"body":"Suite oda boş mu?"}}]}}]}]}`

func newWhatsApp(t *testing.T, conv Conversation, sender Sender, queue Queue) http.Handler {
	t.Helper()
	apiCfg := Config{PublicURL: "https://hotel.example/"}
	wa, err := NewWhatsAppHandler(WhatsAppConfig{VerifyToken: "secret", DedupeSize: 8}, apiCfg, conv, sender, queue)
	if err != nil {
		t.Fatalf("new whatsapp handler: %v", err)
	}
	s, err := NewServer(apiCfg, conv, nil, wa)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	return s.Router()
}

func post(h http.Handler, path, body string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestWhatsAppVerifyChallenge(t *testing.T) {
	t.Parallel()

	h := newWhatsApp(t, &fakeConversation{}, &fakeSender{}, nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/whatsapp_response?hub.verify_token=secret&hub.challenge=1234", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "1234" {
		t.Fatalf("unexpected verify response %d %q", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/whatsapp_response?hub.verify_token=nope&hub.challenge=1234", nil))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestWhatsAppProcessesTextInlineOnce(t *testing.T) {
	t.Parallel()

	conv := &fakeConversation{reply: "Evet, Suite oda müsait."}
	sender := &fakeSender{}
	h := newWhatsApp(t, conv, sender, nil)

	rec := post(h, "/whatsapp_response", textWebhook, nil)
	if rec.Code != http.StatusOK || rec.Body.String() != "Message processed" {
		t.Fatalf("unexpected response %d %q", rec.Code, rec.Body.String())
	}
	reqs := conv.requests()
	if len(reqs) != 1 || reqs[0].SessionID != "905551112233" || reqs[0].OwnerID != "905551112233" {
		t.Fatalf("expected the sender number as session and owner, got %+v", reqs)
	}
	sent := sender.messages()
	if len(sent) != 1 || sent[0].to != "905551112233" || sent[0].body != "Evet, Suite oda müsait." {
		t.Fatalf("unexpected sent messages %+v", sent)
	}

	rec = post(h, "/whatsapp_response", textWebhook, nil)
	if rec.Body.String() != "Message already processed" {
		t.Fatalf("expected duplicate to be skipped, got %q", rec.Body.String())
	}
	if len(conv.requests()) != 1 {
		t.Fatal("duplicate message ran the pipeline again")
	}
}

func TestWhatsAppRejectsNonText(t *testing.T) {
	t.Parallel()

	conv := &fakeConversation{}
	sender := &fakeSender{}
	h := newWhatsApp(t, conv, sender, nil)

	body := `{"object":"whatsapp_business_account","entry":[{"changes":[{"value":{"messages":[{"id":"wamid.2","from":"905","type":"image"}]}}]}]}`
	rec := post(h, "/whatsapp_response", body, nil)
	if rec.Code != http.StatusOK || rec.Body.String() != "Unsupported message type" {
		t.Fatalf("unexpected response %d %q", rec.Code, rec.Body.String())
	}
	if len(conv.requests()) != 0 {
		t.Fatal("non-text message must not reach the pipeline")
	}
	if sent := sender.messages(); len(sent) != 1 || sent[0].body != unsupportedTypeReply {
		t.Fatalf("expected unsupported type notice, got %+v", sent)
	}
}

func TestWhatsAppIgnoresNoise(t *testing.T) {
	t.Parallel()

	h := newWhatsApp(t, &fakeConversation{}, &fakeSender{}, nil)
	cases := map[string]struct {
		body   string
		status int
		text   string
	}{
		"empty":    {"{}", http.StatusOK, "Empty request"},
		"bad json": {"{oops", http.StatusBadRequest, "Invalid JSON"},
		"other":    {`{"object":"page","entry":[]}`, http.StatusOK, "Unexpected request format"},
		"no changes": {`{"object":"whatsapp_business_account","entry":[{"changes":[]}]}`,
			http.StatusOK, "No changes"},
		"status": {`{"object":"whatsapp_business_account","entry":[{"changes":[{"value":{"statuses":[{"id":"x"}]}}]}]}`,
			http.StatusOK, "Status update received"},
		"unknown": {`{"object":"whatsapp_business_account","entry":[{"changes":[{"value":{}}]}]}`,
			http.StatusBadRequest, "Unknown event type"},
		"no body": {`{"object":"whatsapp_business_account","entry":[{"changes":[{"value":{"messages":[{"id":"wamid.9","from":"905","type":"text"}]}}]}]}`,
			http.StatusBadRequest, "Message content not found"},
	}
	for name, tc := range cases {
		rec := post(h, "/whatsapp_response", tc.body, nil)
		if rec.Code != tc.status || rec.Body.String() != tc.text {
			t.Fatalf("%s: got %d %q", name, rec.Code, rec.Body.String())
		}
	}
}

func TestWhatsAppSendsApologyWhenRunFails(t *testing.T) {
	t.Parallel()

	sender := &fakeSender{}
	h := newWhatsApp(t, &fakeConversation{err: errors.New("backend down")}, sender, nil)

	rec := post(h, "/whatsapp_response", textWebhook, nil)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if sent := sender.messages(); len(sent) != 1 || sent[0].body != reservationagent.Apology {
		t.Fatalf("expected apology, got %+v", sent)
	}
}

func TestWhatsAppQueuesAndProcessesJobs(t *testing.T) {
	t.Parallel()

	conv := &fakeConversation{reply: "Tamam."}
	sender := &fakeSender{}
	queue := &fakeQueue{}
	h := newWhatsApp(t, conv, sender, queue)

	rec := post(h, "/whatsapp_response", textWebhook, nil)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d %q", rec.Code, rec.Body.String())
	}
	if queue.dest != "https://hotel.example/v1/jobs/whatsapp" || len(queue.published) != 1 {
		t.Fatalf("unexpected publish dest=%q n=%d", queue.dest, len(queue.published))
	}
	if len(conv.requests()) != 0 {
		t.Fatal("queued message must not run inline")
	}

	job, err := json.Marshal(queue.published[0])
	if err != nil {
		t.Fatalf("marshal job: %v", err)
	}

	rec = post(h, "/v1/jobs/whatsapp", string(job), nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("unsigned job must be rejected, got %d", rec.Code)
	}

	rec = post(h, "/v1/jobs/whatsapp", string(job), http.Header{qstashx.SignatureHeader: {"signed"}})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d %q", rec.Code, rec.Body.String())
	}
	if sent := sender.messages(); len(sent) != 1 || sent[0].body != "Tamam." {
		t.Fatalf("unexpected sent messages %+v", sent)
	}
}

func TestWhatsAppQueueFailureAllowsRetry(t *testing.T) {
	t.Parallel()

	queue := &fakeQueue{err: errors.New("qstash down")}
	h := newWhatsApp(t, &fakeConversation{}, &fakeSender{}, queue)

	if rec := post(h, "/whatsapp_response", textWebhook, nil); rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	queue.err = nil
	if rec := post(h, "/whatsapp_response", textWebhook, nil); rec.Code != http.StatusAccepted {
		t.Fatalf("retried delivery must be queued, got %d", rec.Code)
	}
}

func TestGraphClientSendText(t *testing.T) {
	t.Parallel()

	var gotPath, gotAuth string
	var got textMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &got)
		if got.To == "fail" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":{"message":"bad number"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"messages":[{"id":"wamid.x"}]}`))
	}))
	defer srv.Close()

	c, err := NewGraphClient(WhatsAppConfig{AccessToken: "tok", PhoneNumberID: "123", GraphURL: srv.URL})
	if err != nil {
		t.Fatalf("new graph client: %v", err)
	}
	if err := c.SendText(context.Background(), "905551112233", "Merhaba"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if gotPath != "/123/messages" || gotAuth != "Bearer tok" {
		t.Fatalf("unexpected request path=%q auth=%q", gotPath, gotAuth)
	}
	if got.MessagingProduct != "whatsapp" || got.Type != "text" || got.Text.Body != "Merhaba" {
		t.Fatalf("unexpected payload %+v", got)
	}
	if err := c.SendText(context.Background(), "fail", "x"); err == nil || !strings.Contains(err.Error(), "bad number") {
		t.Fatalf("expected send error, got %v", err)
	}

	if _, err := NewGraphClient(WhatsAppConfig{PhoneNumberID: "1"}); err == nil {
		t.Fatal("expected error without access token")
	}
}
