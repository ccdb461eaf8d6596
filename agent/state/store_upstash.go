package state

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const maxUpstashResponseBytes = 2 << 20

type UpstashRedisConfig struct {
	URL     string        `envconfig:"URL" split_words:"true"`
	Token   string        `envconfig:"TOKEN" split_words:"true"`
	Timeout time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"10s"`

	// HTTPClient replaces the default client built from Timeout.
	HTTPClient *http.Client `ignored:"true"`
}

// UpstashRedisStore keeps sessions in Upstash Redis through its REST API.
type UpstashRedisStore struct {
	keyspace
	endpoint string
	token    string
	client   *http.Client
}

var _ Store = (*UpstashRedisStore)(nil)

func NewUpstashRedisStore(cfg UpstashRedisConfig, opts ...StoreOption) (*UpstashRedisStore, error) {
	endpoint := strings.TrimRight(strings.TrimSpace(cfg.URL), "/")
	if endpoint == "" {
		return nil, errors.New("upstash redis url is required")
	}
	if _, err := url.ParseRequestURI(endpoint); err != nil {
		return nil, fmt.Errorf("upstash redis url: %w", err)
	}
	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, errors.New("upstash redis token is required")
	}
	ks, err := newKeyspace(opts)
	if err != nil {
		return nil, err
	}

	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return &UpstashRedisStore{keyspace: ks, endpoint: endpoint, token: token, client: client}, nil
}

func (s *UpstashRedisStore) Load(ctx context.Context, sessionID string) (*SharedState, error) {
	key, err := s.key(sessionID)
	if err != nil {
		return nil, err
	}
	result, err := s.do(ctx, "GET", key)
	if err != nil {
		return nil, err
	}
	var payload *string
	if err := json.Unmarshal(result, &payload); err != nil {
		return nil, fmt.Errorf("upstash get session: %w", err)
	}
	if payload == nil {
		return nil, ErrStateNotFound
	}
	return decodeState([]byte(*payload))
}

func (s *UpstashRedisStore) Save(ctx context.Context, st *SharedState) error {
	payload, err := encodeState(st)
	if err != nil {
		return err
	}
	key, err := s.key(st.SessionID)
	if err != nil {
		return err
	}
	args := []any{"SET", key, string(payload)}
	if s.ttl > 0 {
		args = append(args, "PX", s.ttl.Milliseconds())
	}
	_, err = s.do(ctx, args...)
	return err
}

func (s *UpstashRedisStore) Delete(ctx context.Context, sessionID string) error {
	key, err := s.key(sessionID)
	if err != nil {
		return err
	}
	_, err = s.do(ctx, "DEL", key)
	return err
}

// do runs one Redis command and returns its raw result. Upstash reports
// command failures as {"error": ...}, sometimes with a 4xx status.
func (s *UpstashRedisStore) do(ctx context.Context, args ...any) (json.RawMessage, error) {
	body, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("encode upstash command: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+s.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upstash %v: %w", args[0], err)
	}
	defer resp.Body.Close()

	var out struct {
		Result json.RawMessage `json:"result"`
		Error  string          `json:"error"`
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxUpstashResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("upstash %v: read response: %w", args[0], err)
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("upstash %v: status=%d body=%q", args[0], resp.StatusCode, raw)
	}
	if out.Error != "" {
		return nil, fmt.Errorf("upstash %v: %s", args[0], out.Error)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("upstash %v: status=%d", args[0], resp.StatusCode)
	}
	if len(out.Result) == 0 {
		out.Result = json.RawMessage("null")
	}
	return out.Result, nil
}
