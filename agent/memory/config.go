package memory

import (
	"fmt"
	"strings"

	contractx "github.com/tanpawarit/reservation-concierge/agent/contract"
)

const (
	EmbedderHash   = "hash"
	EmbedderOpenAI = "openai"
)

// Config is loaded with the MEMORY prefix, e.g. MEMORY_SIMILARITY_THRESHOLD.
type Config struct {
	SimilarityThreshold float32 `envconfig:"SIMILARITY_THRESHOLD" split_words:"true" default:"0.9"`
	TopK                int     `envconfig:"TOP_K" split_words:"true" default:"3"`
	Collection          string  `envconfig:"COLLECTION" split_words:"true" default:"long_term_memory"`
	PersistPath         string  `envconfig:"PERSIST_PATH" split_words:"true"`
	Compress            bool    `envconfig:"COMPRESS" split_words:"true" default:"true"`

	Embedder         string `envconfig:"EMBEDDER" split_words:"true" default:"hash"`
	HashDimensions   int    `envconfig:"HASH_DIMENSIONS" split_words:"true" default:"512"`
	EmbeddingModel   string `envconfig:"EMBEDDING_MODEL" split_words:"true" default:"text-embedding-3-small"`
	EmbeddingAPIKey  string `envconfig:"EMBEDDING_API_KEY" split_words:"true"`
	EmbeddingBaseURL string `envconfig:"EMBEDDING_BASE_URL" split_words:"true"`
}

func DefaultConfig() Config {
	return Config{
		SimilarityThreshold: 0.9,
		TopK:                3,
		Collection:          "long_term_memory",
		Embedder:            EmbedderHash,
		HashDimensions:      512,
	}
}

func (c Config) Validate() error {
	if c.SimilarityThreshold <= 0 || c.SimilarityThreshold > 1 {
		return fmt.Errorf("%w: similarity threshold must be in (0,1], got %v", contractx.ErrValidation, c.SimilarityThreshold)
	}
	if c.TopK <= 0 {
		return fmt.Errorf("%w: top k must be > 0", contractx.ErrValidation)
	}
	switch strings.ToLower(strings.TrimSpace(c.Embedder)) {
	case EmbedderHash, "":
	case EmbedderOpenAI:
		if strings.TrimSpace(c.EmbeddingAPIKey) == "" {
			return fmt.Errorf("%w: embedding api key is required for the openai embedder", contractx.ErrValidation)
		}
	default:
		return fmt.Errorf("%w: unknown embedder %q", contractx.ErrValidation, c.Embedder)
	}
	return nil
}
