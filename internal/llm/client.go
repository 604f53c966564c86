// Package llm talks to an Ollama server for page summarization and
// embedding generation. Both operations degrade gracefully: callers treat
// errors as "enrichment unavailable", never as page failures.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/crawlforge/deepcrawl/internal/crawler"
)

// DefaultSystemPrompt seeds summarization when the job supplies none.
const DefaultSystemPrompt = "Summarize the key points of this page"

// inputCharLimit caps text sent to the model, bounding cost and latency.
const inputCharLimit = 8000

// Config controls the Ollama client.
type Config struct {
	// BaseURL of the Ollama server, e.g. http://localhost:11434.
	BaseURL string
	// Model used for summarization.
	Model string
	// EmbeddingModel used for embeddings.
	EmbeddingModel string
	// SystemPrompt prefixes every summarization request.
	SystemPrompt string
	// TargetDim is the dimensionality embeddings are normalized to.
	TargetDim int
	Timeout   time.Duration
	Logger    *zap.Logger
}

const (
	defaultTimeout   = 120 * time.Second
	defaultTargetDim = 1536
)

// Client implements crawler.Summarizer and crawler.Embedder against Ollama.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *zap.Logger

	// Normalizer adjusts embedding vectors to TargetDim. The default
	// zero-pads short vectors and truncates long ones; swap it to change
	// the padding policy without touching the pipeline.
	Normalizer func(vec []float32, target int) []float32
}

// NewClient builds a Client.
func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.TargetDim <= 0 {
		cfg.TargetDim = defaultTargetDim
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = DefaultSystemPrompt
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
		Normalizer: NormalizeDim,
	}
}

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type generateResponse struct {
	Response string `json:"response"`
}

// Summarize implements crawler.Summarizer: the prompt is the system prompt
// plus the title and the leading chunks, capped at the input limit.
func (c *Client) Summarize(ctx context.Context, title string, chunks []crawler.Chunk) (string, error) {
	var combined strings.Builder
	combined.WriteString(title + "\n\n")
	for _, chunk := range chunks {
		combined.WriteString(chunk.Content + "\n\n")
	}
	text := truncate(combined.String(), inputCharLimit)

	prompt := fmt.Sprintf("%s:\n\n%s\n\nSummary:", c.cfg.SystemPrompt, text)
	var out generateResponse
	err := c.post(ctx, "/api/generate", generateRequest{
		Model:  c.cfg.Model,
		Prompt: prompt,
		Stream: false,
	}, &out)
	if err != nil {
		return "", fmt.Errorf("summarize: %w", err)
	}
	return strings.TrimSpace(out.Response), nil
}

type embeddingRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embeddingResponse struct {
	Embedding []float32 `json:"embedding"`
}

// Embed implements crawler.Embedder. The returned vector always has exactly
// TargetDim values.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	var out embeddingResponse
	err := c.post(ctx, "/api/embeddings", embeddingRequest{
		Model:  c.cfg.EmbeddingModel,
		Prompt: truncate(text, inputCharLimit),
	}, &out)
	if err != nil {
		return nil, fmt.Errorf("embed: %w", err)
	}
	if len(out.Embedding) == 0 {
		return nil, nil
	}
	if len(out.Embedding) != c.cfg.TargetDim {
		c.logger.Debug("normalizing embedding dimension",
			zap.Int("got", len(out.Embedding)),
			zap.Int("target", c.cfg.TargetDim))
	}
	return c.Normalizer(out.Embedding, c.cfg.TargetDim), nil
}

func (c *Client) post(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(c.cfg.BaseURL, "/")+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("call %s: %w", path, err)
	}
	defer resp.Body.Close() //nolint:errcheck
	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("call %s: status %d: %s", path, resp.StatusCode, string(snippet))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

// NormalizeDim zero-pads vec to target values or truncates it; the first
// min(len(vec), target) values always equal the source prefix.
func NormalizeDim(vec []float32, target int) []float32 {
	if target <= 0 || len(vec) == target {
		return vec
	}
	if len(vec) > target {
		return vec[:target]
	}
	out := make([]float32, target)
	copy(out, vec)
	return out
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}
