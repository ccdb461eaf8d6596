package memory

import (
	"context"
	"fmt"
	"math"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"
	"github.com/philippgille/chromem-go"

	backendx "github.com/tanpawarit/reservation-concierge/pkg/backend"
)

// HashEmbedding maps text to a normalized bag of hashed words and character
// trigrams. It needs no network and gives near-identical phrasings a cosine
// similarity close to 1.
func HashEmbedding(dims int) chromem.EmbeddingFunc {
	if dims <= 0 {
		dims = 512
	}
	return func(_ context.Context, text string) ([]float32, error) {
		vec := make([]float32, dims)
		words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsNumber(r)
		})
		for _, w := range words {
			vec[xxhash.Sum64String("w:"+w)%uint64(dims)] += 2
			padded := []rune(" " + w + " ")
			for i := 0; i+3 <= len(padded); i++ {
				vec[xxhash.Sum64String("t:"+string(padded[i:i+3]))%uint64(dims)]++
			}
		}
		var norm float64
		for _, v := range vec {
			norm += float64(v) * float64(v)
		}
		if norm == 0 {
			// chromem cannot normalize a zero vector
			vec[0] = 1
			return vec, nil
		}
		scale := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= scale
		}
		return vec, nil
	}
}

// NewEmbeddingFunc picks the embedder named by cfg.
func NewEmbeddingFunc(cfg Config) (chromem.EmbeddingFunc, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Embedder)) {
	case EmbedderHash, "":
		return HashEmbedding(cfg.HashDimensions), nil
	case EmbedderOpenAI:
		e, err := backendx.NewEmbedderFromConfig(backendx.OpenAICompatConfig{
			Name:    "embeddings",
			BaseURL: strings.TrimSpace(cfg.EmbeddingBaseURL),
			APIKey:  cfg.EmbeddingAPIKey,
			Model:   cfg.EmbeddingModel,
		})
		if err != nil {
			return nil, err
		}
		return e.Embed, nil
	default:
		return nil, fmt.Errorf("unknown embedder %q", cfg.Embedder)
	}
}
