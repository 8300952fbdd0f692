package embedding

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"sort"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"lecture-rag/internal/domain"
)

// Client is an OpenAI-compatible embeddings client implementing
// domain.Embedder.
type Client struct {
	api        *openai.Client
	model      string
	maxRetries int
}

// Config configures the embeddings client. The API key is read from
// the environment variable named by APIKeyEnv.
type Config struct {
	BaseURL    string
	APIKeyEnv  string
	Model      string
	Timeout    time.Duration
	MaxRetries int
}

// NewClient creates an embeddings client. A missing API key is a
// configuration error, surfaced before any network call.
func NewClient(cfg Config) (*Client, error) {
	keyEnv := cfg.APIKeyEnv
	if keyEnv == "" {
		keyEnv = "OPENAI_API_KEY"
	}
	key := os.Getenv(keyEnv)
	if key == "" {
		return nil, fmt.Errorf("%w: missing API key in env %s", domain.ErrConfiguration, keyEnv)
	}
	model := cfg.Model
	if model == "" {
		model = "text-embedding-3-small"
	}
	oc := openai.DefaultConfig(key)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	if cfg.Timeout > 0 {
		oc.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	retries := cfg.MaxRetries
	if retries <= 0 {
		retries = 3
	}
	return &Client{
		api:        openai.NewClientWithConfig(oc),
		model:      model,
		maxRetries: retries,
	}, nil
}

// ModelID returns the embedding model identity used to tag records.
func (c *Client) ModelID() string { return c.model }

// EmbedBatch embeds all texts in one request, retrying transient
// failures with exponential backoff.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(retryDelay(attempt - 1)):
			}
		}
		vectors, err := c.embedOnce(ctx, texts)
		if err == nil {
			return vectors, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	return nil, fmt.Errorf("embeddings failed after %d attempts: %w", c.maxRetries+1, lastErr)
}

func (c *Client) embedOnce(ctx context.Context, texts []string) ([][]float64, error) {
	resp, err := c.api.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(c.model),
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(resp.Data))
	}
	data := resp.Data
	sort.Slice(data, func(i, j int) bool { return data[i].Index < data[j].Index })
	vectors := make([][]float64, len(data))
	for i, item := range data {
		v := make([]float64, len(item.Embedding))
		for j, f := range item.Embedding {
			v[j] = float64(f)
		}
		vectors[i] = v
	}
	return vectors, nil
}

func retryDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	base := 200 * time.Millisecond
	d := base << attempt
	if d > 5*time.Second {
		d = 5 * time.Second
	}
	return d
}
