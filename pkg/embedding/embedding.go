// Package embedding turns text into vectors through an OpenAI-compatible
// embeddings endpoint. Ollama exposes one at /v1, which is the default.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/philippgille/chromem-go"
)

type Config struct {
	BaseURL string        `envconfig:"BASE_URL" split_words:"true" default:"http://localhost:11434/v1"`
	APIKey  string        `envconfig:"API_KEY" split_words:"true" default:"ollama"`
	Model   string        `envconfig:"MODEL" split_words:"true" default:"qwen3-embedding"`
	Timeout time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"30s"`
}

var ErrEmptyEmbedding = errors.New("embedding response is empty")

type Embedder struct {
	client *openaisdk.Client
	model  string
}

// NewClient creates an OpenAI SDK client for the configured endpoint.
func NewClient(cfg Config) *openaisdk.Client {
	opts := []option.RequestOption{
		option.WithAPIKey(strings.TrimSpace(cfg.APIKey)),
	}
	if trimmed := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"); trimmed != "" {
		opts = append(opts, option.WithBaseURL(trimmed))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}

	client := openaisdk.NewClient(opts...)
	return &client
}

func New(cfg Config) (*Embedder, error) {
	modelName := strings.TrimSpace(cfg.Model)
	if modelName == "" {
		return nil, errors.New("embedding model is required")
	}
	return &Embedder{
		client: NewClient(cfg),
		model:  modelName,
	}, nil
}

func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.client.Embeddings.New(ctx, openaisdk.EmbeddingNewParams{
		Input: openaisdk.EmbeddingNewParamsInputUnion{
			OfString: openaisdk.String(text),
		},
		Model: openaisdk.EmbeddingModel(e.model),
	})
	if err != nil {
		return nil, fmt.Errorf("embed with model=%s: %w", e.model, err)
	}
	if resp == nil || len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, ErrEmptyEmbedding
	}

	raw := resp.Data[0].Embedding
	out := make([]float32, len(raw))
	for i, v := range raw {
		out[i] = float32(v)
	}
	return out, nil
}

// Func adapts the embedder to the vector index.
func (e *Embedder) Func() chromem.EmbeddingFunc {
	return e.Embed
}
