package state

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakeUpstash answers Upstash REST commands from an in-memory map and records
// every command it receives.
type fakeUpstash struct {
	mu       sync.Mutex
	data     map[string]string
	commands [][]any
	failWith string
}

func (f *fakeUpstash) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Authorization") != "Bearer token" {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"WRONGPASS invalid token"}`))
		return
	}
	var cmd []any
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil || len(cmd) < 2 {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"ERR bad command"}`))
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands = append(f.commands, cmd)
	if f.failWith != "" {
		_, _ = w.Write([]byte(`{"error":"` + f.failWith + `"}`))
		return
	}

	key, _ := cmd[1].(string)
	var result any
	switch cmd[0] {
	case "GET":
		if v, ok := f.data[key]; ok {
			result = v
		}
	case "SET":
		f.data[key], _ = cmd[2].(string)
		result = "OK"
	case "DEL":
		delete(f.data, key)
		result = 1
	}
	_ = json.NewEncoder(w).Encode(map[string]any{"result": result})
}

func (f *fakeUpstash) last() []any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.commands[len(f.commands)-1]
}

func newUpstashStore(t *testing.T, fake *fakeUpstash, token string, opts ...StoreOption) *UpstashRedisStore {
	t.Helper()
	if fake.data == nil {
		fake.data = map[string]string{}
	}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	store, err := NewUpstashRedisStore(UpstashRedisConfig{URL: srv.URL + "/", Token: token, HTTPClient: srv.Client()}, opts...)
	if err != nil {
		t.Fatalf("new upstash store: %v", err)
	}
	return store
}

func TestNewUpstashRedisStoreValidation(t *testing.T) {
	t.Parallel()

	cases := map[string]UpstashRedisConfig{
		"missing url":   {Token: "token"},
		"relative url":  {URL: "redis.local", Token: "token"},
		"missing token": {URL: "https://redis.upstash.io"},
	}
	for name, cfg := range cases {
		if _, err := NewUpstashRedisStore(cfg); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
	if _, err := NewUpstashRedisStore(UpstashRedisConfig{URL: "https://redis.upstash.io", Token: "token"}, WithTTL(-time.Second)); err == nil {
		t.Fatal("negative ttl: expected error")
	}
}

func TestUpstashRedisStoreRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	fake := &fakeUpstash{}
	store := newUpstashStore(t, fake, "token", WithKeyPrefix("hotel:"), WithTTL(90*time.Second))

	st := NewSharedState("905551112233", "905551112233", time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC))
	if err := st.Ingest("Cuma için oda ayırtmak istiyorum"); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	st.ReservationResult = append(st.ReservationResult, Succeeded("Kaç kişi kalacaksınız?", st.UpdatedAt))
	if err := store.Save(ctx, st); err != nil {
		t.Fatalf("save: %v", err)
	}
	set := fake.last()
	if set[0] != "SET" || set[1] != "hotel:905551112233" || set[3] != "PX" || set[4] != float64(90000) {
		t.Fatalf("unexpected SET command: %v", set)
	}

	loaded, err := store.Load(ctx, " 905551112233 ")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.LatestUtterance() != "Cuma için oda ayırtmak istiyorum" || loaded.LatestReply() != "Kaç kişi kalacaksınız?" {
		t.Fatalf("unexpected loaded state: %+v", loaded)
	}

	if err := store.Delete(ctx, "905551112233"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.Load(ctx, "905551112233"); !errors.Is(err, ErrStateNotFound) {
		t.Fatalf("load after delete: expected ErrStateNotFound, got %v", err)
	}
}

func TestUpstashRedisStoreZeroTTLKeepsSession(t *testing.T) {
	t.Parallel()

	fake := &fakeUpstash{}
	store := newUpstashStore(t, fake, "token", WithTTL(0))
	if err := store.Save(context.Background(), NewSharedState("s1", "o1", time.Now())); err != nil {
		t.Fatalf("save: %v", err)
	}
	if set := fake.last(); len(set) != 3 || set[1] != defaultStoreKeyPrefix+"s1" {
		t.Fatalf("expected SET without expiry under the default prefix, got %v", set)
	}
}

func TestUpstashRedisStoreRejectsInvalidSessions(t *testing.T) {
	t.Parallel()

	fake := &fakeUpstash{}
	store := newUpstashStore(t, fake, "token")
	ctx := context.Background()
	if _, err := store.Load(ctx, "  "); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("load: expected ErrInvalidSession, got %v", err)
	}
	if err := store.Save(ctx, &SharedState{}); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("save: expected ErrInvalidSession, got %v", err)
	}
	if err := store.Save(ctx, nil); !errors.Is(err, ErrNilState) {
		t.Fatalf("save nil: expected ErrNilState, got %v", err)
	}
	if len(fake.commands) != 0 {
		t.Fatalf("invalid sessions must not reach upstash, sent %v", fake.commands)
	}
}

func TestUpstashRedisStoreSurfacesErrors(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newUpstashStore(t, &fakeUpstash{}, "wrong")
	if err := store.Delete(ctx, "s1"); err == nil || !strings.Contains(err.Error(), "WRONGPASS") {
		t.Fatalf("expected auth error, got %v", err)
	}

	store = newUpstashStore(t, &fakeUpstash{failWith: "OOM command not allowed"}, "token")
	if _, err := store.Load(ctx, "s1"); err == nil || !strings.Contains(err.Error(), "OOM") {
		t.Fatalf("expected command error, got %v", err)
	}

	fake := &fakeUpstash{data: map[string]string{defaultStoreKeyPrefix + "s1": `{"session_id":""}`}}
	store = newUpstashStore(t, fake, "token")
	if _, err := store.Load(ctx, "s1"); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("expected stored invalid state to be rejected, got %v", err)
	}
}
