package qstash

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt"
)

// SignatureHeader carries the JWT QStash signs every delivery with.
const SignatureHeader = "Upstash-Signature"

var (
	ErrNotConfigured    = errors.New("qstash is not configured")
	ErrInvalidSignature = errors.New("invalid qstash signature")
)

type Config struct {
	URL               string        `split_words:"true" default:"https://qstash.upstash.io"`
	Token             string        `split_words:"true"`
	CurrentSigningKey string        `split_words:"true"`
	NextSigningKey    string        `split_words:"true"`
	Retries           int           `split_words:"true" default:"3"`
	Timeout           time.Duration `split_words:"true" default:"10s"`
}

// Enabled reports whether publishing can be attempted.
func (c Config) Enabled() bool {
	return strings.TrimSpace(c.Token) != ""
}

// Client publishes messages to QStash and verifies the deliveries it makes.
type Client struct {
	baseURL           string
	token             string
	currentSigningKey string
	nextSigningKey    string
	retries           int
	httpClient        *http.Client
	now               func() time.Time
}

func NewClient(cfg Config) (*Client, error) {
	baseURL := strings.TrimSpace(cfg.URL)
	if baseURL == "" {
		return nil, errors.New("qstash url is required")
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("qstash token is required")
	}
	if strings.TrimSpace(cfg.CurrentSigningKey) == "" {
		return nil, errors.New("qstash current signing key is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Client{
		baseURL:           strings.TrimRight(baseURL, "/"),
		token:             strings.TrimSpace(cfg.Token),
		currentSigningKey: strings.TrimSpace(cfg.CurrentSigningKey),
		nextSigningKey:    strings.TrimSpace(cfg.NextSigningKey),
		retries:           cfg.Retries,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		now: time.Now,
	}, nil
}

func MustNew(cfg Config) *Client {
	client, err := NewClient(cfg)
	if err != nil {
		panic(err)
	}
	return client
}

type publishResponse struct {
	MessageID string `json:"messageId"`
	Error     string `json:"error"`
}

// PublishJSON asks QStash to deliver payload to destination, retrying on its
// side until destination answers 2xx. It returns the QStash message id.
func (c *Client) PublishJSON(ctx context.Context, destination string, payload any) (string, error) {
	if c == nil {
		return "", ErrNotConfigured
	}
	if _, err := url.ParseRequestURI(destination); err != nil {
		return "", fmt.Errorf("invalid destination %q: %w", destination, err)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode qstash payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v2/publish/"+destination, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build qstash request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")
	if c.retries >= 0 {
		req.Header.Set("Upstash-Retries", fmt.Sprint(c.retries))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("qstash request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read qstash response: %w", err)
	}
	var out publishResponse
	_ = json.Unmarshal(raw, &out)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := strings.TrimSpace(out.Error)
		if msg == "" {
			msg = strings.TrimSpace(string(raw))
		}
		return "", fmt.Errorf("qstash publish failed: status=%d: %s", resp.StatusCode, msg)
	}
	return out.MessageID, nil
}

type claims struct {
	jwt.StandardClaims
	Body string `json:"body"`
}

// Verify checks a delivery signature against the current key, then the next
// one. destination is the URL the message was published to.
func (c *Client) Verify(signature string, body []byte, destination string) error {
	if c == nil {
		return ErrNotConfigured
	}
	err := verifyWithKey(c.currentSigningKey, signature, body, destination, c.now())
	if err == nil || c.nextSigningKey == "" {
		return err
	}
	return verifyWithKey(c.nextSigningKey, signature, body, destination, c.now())
}

func verifyWithKey(key, token string, body []byte, destination string, now time.Time) error {
	parser := &jwt.Parser{
		ValidMethods:         []string{jwt.SigningMethodHS256.Alg()},
		SkipClaimsValidation: true,
	}
	var cl claims
	_, err := parser.ParseWithClaims(strings.TrimSpace(token), &cl, func(*jwt.Token) (interface{}, error) {
		return []byte(key), nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	if !cl.VerifyIssuer("Upstash", true) {
		return fmt.Errorf("%w: issuer %q", ErrInvalidSignature, cl.Issuer)
	}
	if destination != "" && cl.Subject != destination {
		return fmt.Errorf("%w: subject %q", ErrInvalidSignature, cl.Subject)
	}
	if !cl.VerifyExpiresAt(now.Unix(), false) {
		return fmt.Errorf("%w: token expired", ErrInvalidSignature)
	}
	if !cl.VerifyNotBefore(now.Unix(), false) {
		return fmt.Errorf("%w: token not yet valid", ErrInvalidSignature)
	}
	sum := sha256.Sum256(body)
	if strings.TrimRight(cl.Body, "=") != base64.RawURLEncoding.EncodeToString(sum[:]) {
		return fmt.Errorf("%w: body hash mismatch", ErrInvalidSignature)
	}
	return nil
}
