// Package embed provides text-to-vector embedding via OpenAI-compatible
// APIs. Every supported provider speaks the /v1/embeddings format:
// ollama, openai, deepseek, openrouter, or a custom endpoint.
package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
)

// Embedder generates embedding vectors from text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
}

// Config holds embedding provider configuration.
type Config struct {
	Provider    string // "ollama", "openai", "deepseek", "openrouter", "custom"
	Model       string
	Endpoint    string // full API URL
	APIKey      string
	MaxRetries  int // default 3
	TimeoutSecs int // per-request timeout, default 60

	dimensions int // learned from the first response
}

// request/response types for the OpenAI-compatible embeddings endpoint.
type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

// HTTPError carries the status and Retry-After hint of a failed call.
type HTTPError struct {
	StatusCode int
	Message    string
	RetryAfter time.Duration
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// ParseEmbedFlag parses "provider/model". Model names may themselves
// contain slashes (e.g. "openrouter/sentence-transformers/all-MiniLM-L6-v2").
func ParseEmbedFlag(flag string) (*Config, error) {
	if flag == "" {
		return nil, fmt.Errorf("empty embedding flag")
	}
	slashIdx := strings.Index(flag, "/")
	if slashIdx == -1 {
		return nil, fmt.Errorf("invalid embed format: expected 'provider/model', got %q", flag)
	}
	provider, model := flag[:slashIdx], flag[slashIdx+1:]
	if provider == "" || model == "" {
		return nil, fmt.Errorf("invalid embed flag %q: provider and model are both required", flag)
	}

	cfg := &Config{
		Provider:    provider,
		Model:       model,
		MaxRetries:  3,
		TimeoutSecs: 60,
	}
	switch provider {
	case "ollama":
		cfg.Endpoint = "http://localhost:11434/v1/embeddings"
	case "openai":
		cfg.Endpoint = "https://api.openai.com/v1/embeddings"
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	case "deepseek":
		cfg.Endpoint = "https://api.deepseek.com/v1/embeddings"
		cfg.APIKey = os.Getenv("DEEPSEEK_API_KEY")
	case "openrouter":
		cfg.Endpoint = "https://openrouter.ai/api/v1/embeddings"
		cfg.APIKey = os.Getenv("OPENROUTER_API_KEY")
	case "custom":
		cfg.Endpoint = os.Getenv("SKEIN_EMBED_ENDPOINT")
		cfg.APIKey = os.Getenv("SKEIN_EMBED_API_KEY")
	default:
		return nil, fmt.Errorf("unknown provider %q (supported: ollama, openai, deepseek, openrouter, custom)", provider)
	}

	// Env overrides win over provider defaults.
	if endpoint := os.Getenv("SKEIN_EMBED_ENDPOINT"); endpoint != "" {
		cfg.Endpoint = endpoint
	}
	if apiKey := os.Getenv("SKEIN_EMBED_API_KEY"); apiKey != "" {
		cfg.APIKey = apiKey
	}
	return cfg, nil
}

// ResolveEmbedConfig resolves configuration from CLI flag first, then
// the SKEIN_EMBED env var. Returns nil when neither is set.
func ResolveEmbedConfig(cliFlag string) (*Config, error) {
	if cliFlag != "" {
		return ParseEmbedFlag(cliFlag)
	}
	if envEmbed := os.Getenv("SKEIN_EMBED"); envEmbed != "" {
		cfg, err := ParseEmbedFlag(envEmbed)
		if err != nil {
			return nil, fmt.Errorf("parsing SKEIN_EMBED env var: %w", err)
		}
		return cfg, nil
	}
	return nil, nil
}

// Validate checks that the configuration is complete.
func (c *Config) Validate() error {
	if c.Provider == "" {
		return fmt.Errorf("provider is required")
	}
	if c.Model == "" {
		return fmt.Errorf("model is required")
	}
	if c.Endpoint == "" {
		return fmt.Errorf("endpoint is required")
	}
	// Ollama runs locally without a key.
	if c.Provider != "ollama" && c.Provider != "test" && c.APIKey == "" {
		return fmt.Errorf("API key is required for provider %q", c.Provider)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}
	if c.TimeoutSecs <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	return nil
}

// Client implements Embedder over HTTP.
type Client struct {
	config Config
	http   *http.Client
}

// NewClient creates an embedding client.
func NewClient(config *Config) (*Client, error) {
	if config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &Client{
		config: *config,
		http: &http.Client{
			Timeout: time.Duration(config.TimeoutSecs) * time.Second,
		},
	}, nil
}

// Embed generates an embedding vector for a single text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("empty text")
	}
	embeddings, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(embeddings) != 1 {
		return nil, fmt.Errorf("expected 1 embedding, got %d", len(embeddings))
	}
	return embeddings[0], nil
}

// EmbedBatch generates embedding vectors for multiple texts in one API
// call, retrying with exponential backoff. Empty texts come back as nil
// vectors at their original positions.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	nonEmpty := make([]string, 0, len(texts))
	indexMap := make([]int, 0, len(texts))
	for i, text := range texts {
		if strings.TrimSpace(text) != "" {
			nonEmpty = append(nonEmpty, text)
			indexMap = append(indexMap, i)
		}
	}
	if len(nonEmpty) == 0 {
		return make([][]float32, len(texts)), nil
	}

	var lastErr error
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		embeddings, err := c.attemptEmbedBatch(ctx, nonEmpty)
		if err == nil {
			result := make([][]float32, len(texts))
			for i, embedding := range embeddings {
				result[indexMap[i]] = embedding
			}
			for _, emb := range embeddings {
				if len(emb) > 0 {
					c.config.dimensions = len(emb)
					break
				}
			}
			return result, nil
		}

		lastErr = err
		if attempt == c.config.MaxRetries {
			break
		}

		// 1s, 2s, 4s; rate limits honor Retry-After.
		backoff := time.Duration(1<<attempt) * time.Second
		if httpErr, ok := err.(*HTTPError); ok && httpErr.StatusCode == 429 && httpErr.RetryAfter > 0 {
			backoff = httpErr.RetryAfter
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}
	return nil, fmt.Errorf("embedding failed after %d attempts: %w", c.config.MaxRetries+1, lastErr)
}

// Dimensions returns the embedding dimensionality, or 0 before the
// first successful call.
func (c *Client) Dimensions() int {
	return c.config.dimensions
}

func (c *Client) attemptEmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	requestBody, err := json.Marshal(embedRequest{Model: c.config.Model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.config.Endpoint, bytes.NewBuffer(requestBody))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.config.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}
	if c.config.Provider == "openrouter" {
		httpReq.Header.Set("HTTP-Referer", "https://github.com/skeinlabs/skein")
		httpReq.Header.Set("X-Title", "Skein")
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != 200 {
		var retryAfter time.Duration
		if header := resp.Header.Get("Retry-After"); header != "" {
			if seconds, err := strconv.Atoi(header); err == nil {
				retryAfter = time.Duration(seconds) * time.Second
			}
		}
		return nil, &HTTPError{
			StatusCode: resp.StatusCode,
			Message:    string(body),
			RetryAfter: retryAfter,
		}
	}

	var parsed embedResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("parsing response JSON: %w", err)
	}
	if len(parsed.Data) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(parsed.Data))
	}

	embeddings := make([][]float32, len(texts))
	for _, data := range parsed.Data {
		if data.Index < 0 || data.Index >= len(embeddings) {
			return nil, fmt.Errorf("invalid embedding index: %d", data.Index)
		}
		embeddings[data.Index] = data.Embedding
	}
	return embeddings, nil
}
