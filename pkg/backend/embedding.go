package backend

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// EmbeddingsClient is the subset of the OpenAI SDK used for embeddings. It is
// satisfied by *openaisdk.EmbeddingService.
type EmbeddingsClient interface {
	New(ctx context.Context, body openaisdk.EmbeddingNewParams, opts ...option.RequestOption) (*openaisdk.CreateEmbeddingResponse, error)
}

// Embedder turns text into a dense vector through an OpenAI-compatible
// embeddings endpoint.
type Embedder struct {
	client EmbeddingsClient
	model  string
}

func NewEmbedder(client EmbeddingsClient, modelName string) (*Embedder, error) {
	if client == nil {
		return nil, errors.New("embeddings client is required")
	}
	modelName = strings.TrimSpace(modelName)
	if modelName == "" {
		return nil, errors.New("embedding model is required")
	}
	return &Embedder{client: client, model: modelName}, nil
}

// NewEmbedderFromConfig builds an Embedder on top of NewClient.
func NewEmbedderFromConfig(cfg OpenAICompatConfig) (*Embedder, error) {
	client := NewClient(cfg)
	if client == nil {
		return nil, fmt.Errorf("%s: api key is required for embeddings", cfg.label())
	}
	return NewEmbedder(&client.Embeddings, cfg.Model)
}

func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.client.New(ctx, openaisdk.EmbeddingNewParams{
		Input: openaisdk.EmbeddingNewParamsInputUnion{OfString: openaisdk.String(text)},
		Model: openaisdk.EmbeddingModel(e.model),
	})
	if err != nil {
		return nil, fmt.Errorf("create embedding: %w", err)
	}
	if resp == nil || len(resp.Data) == 0 {
		return nil, errors.New("create embedding: empty response")
	}
	src := resp.Data[0].Embedding
	out := make([]float32, len(src))
	for i, v := range src {
		out[i] = float32(v)
	}
	return out, nil
}
