package api

import (
	"strings"
	"time"
)

type Config struct {
	Addr            string        `split_words:"true" default:":8080"`
	ReadTimeout     time.Duration `split_words:"true" default:"30s"`
	WriteTimeout    time.Duration `split_words:"true" default:"120s"`
	ShutdownTimeout time.Duration `split_words:"true" default:"10s"`
	MaxBodyBytes    int64         `split_words:"true" default:"1048576"`
	// PublicURL is where QStash delivers queued jobs, e.g. https://hotel.example.
	PublicURL string `split_words:"true"`
}

func (c Config) maxBody() int64 {
	if c.MaxBodyBytes <= 0 {
		return 1 << 20
	}
	return c.MaxBodyBytes
}

func (c Config) jobURL(path string) string {
	return strings.TrimRight(strings.TrimSpace(c.PublicURL), "/") + path
}

type WhatsAppConfig struct {
	VerifyToken   string        `split_words:"true"`
	AccessToken   string        `split_words:"true"`
	PhoneNumberID string        `split_words:"true"`
	GraphURL      string        `split_words:"true" default:"https://graph.facebook.com/v21.0"`
	Timeout       time.Duration `split_words:"true" default:"30s"`
	DedupeSize    int           `split_words:"true" default:"1024"`
}

// Enabled reports whether the webhook should be mounted.
func (c WhatsAppConfig) Enabled() bool {
	return strings.TrimSpace(c.VerifyToken) != ""
}
