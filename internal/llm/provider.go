// Package llm provides a provider-agnostic completion client. The
// relationship classifier is its only hard consumer; everything else in
// the pipeline works without a model configured.
package llm

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// Default models per provider.
const (
	defaultGoogleModel     = "gemini-2.5-flash"
	defaultOpenRouterModel = "openai/gpt-4o-mini"
)

// Provider is the interface for LLM completions.
type Provider interface {
	// Complete sends a prompt and returns the response text.
	Complete(ctx context.Context, prompt string, opts CompletionOpts) (string, error)
	// Name returns a human-readable provider name (e.g., "google/gemini-2.5-flash").
	Name() string
}

// CompletionOpts configures a single completion request.
type CompletionOpts struct {
	MaxTokens   int     // max tokens to generate (0 = provider default)
	Temperature float64 // 0.0-2.0 (0 = deterministic)
	Model       string  // override model for this request (empty = provider default)
	Format      string  // "json" for structured output, empty for plain text
	System      string  // optional system prompt
}

// Config holds provider configuration.
type Config struct {
	Provider string // "google" or "openrouter"
	Model    string // e.g., "gemini-2.5-flash", "openai/gpt-4o-mini"
	APIKey   string // empty = read from env
	BaseURL  string // optional URL override
}

// NewProvider creates an LLM provider from the given config.
func NewProvider(cfg Config) (Provider, error) {
	switch strings.ToLower(cfg.Provider) {
	case "google":
		key := firstEnv(cfg.APIKey, "GEMINI_API_KEY", "GOOGLE_API_KEY")
		if key == "" {
			return nil, fmt.Errorf("google provider requires GEMINI_API_KEY or GOOGLE_API_KEY")
		}
		return &googleProvider{
			apiKey:  key,
			model:   fallback(cfg.Model, defaultGoogleModel),
			baseURL: fallback(cfg.BaseURL, "https://generativelanguage.googleapis.com/v1beta"),
		}, nil

	case "openrouter":
		key := firstEnv(cfg.APIKey, "OPENROUTER_API_KEY")
		if key == "" {
			return nil, fmt.Errorf("openrouter provider requires OPENROUTER_API_KEY")
		}
		return &openrouterProvider{
			apiKey:  key,
			model:   fallback(cfg.Model, defaultOpenRouterModel),
			baseURL: fallback(cfg.BaseURL, "https://openrouter.ai/api/v1"),
		}, nil

	default:
		return nil, fmt.Errorf("unknown LLM provider: %q (supported: google, openrouter)", cfg.Provider)
	}
}

// ParseModelFlag parses a provider/model flag value into a Config.
// Format: "provider/model" e.g., "google/gemini-2.5-flash",
// "openrouter/openai/gpt-4o-mini". Empty means the google default.
func ParseModelFlag(flag string) (Config, error) {
	if flag == "" {
		return Config{Provider: "google", Model: defaultGoogleModel}, nil
	}

	parts := strings.SplitN(flag, "/", 2)
	if len(parts) < 2 {
		return Config{}, fmt.Errorf("invalid model flag %q: expected provider/model", flag)
	}

	provider := strings.ToLower(parts[0])
	switch provider {
	case "google", "openrouter":
		return Config{Provider: provider, Model: parts[1]}, nil
	default:
		return Config{}, fmt.Errorf("unknown provider %q (supported: google, openrouter)", provider)
	}
}

// StripFences removes a surrounding markdown code fence from a model
// response. Models often wrap JSON in ```json blocks even when asked
// not to.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		s = s[idx+1:] // drop the language tag line
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func fallback(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// firstEnv returns explicit if non-empty, else the first set env var.
func firstEnv(explicit string, envVars ...string) string {
	if explicit != "" {
		return explicit
	}
	for _, name := range envVars {
		if v := os.Getenv(name); v != "" {
			return v
		}
	}
	return ""
}
