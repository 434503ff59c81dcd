package embed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestParseEmbedFlag(t *testing.T) {
	tests := []struct {
		name    string
		flag    string
		want    *Config
		wantErr bool
	}{
		{
			name: "ollama simple",
			flag: "ollama/all-minilm",
			want: &Config{
				Provider:    "ollama",
				Model:       "all-minilm",
				Endpoint:    "http://localhost:11434/v1/embeddings",
				MaxRetries:  3,
				TimeoutSecs: 60,
			},
		},
		{
			name: "openai simple",
			flag: "openai/text-embedding-3-small",
			want: &Config{
				Provider:    "openai",
				Model:       "text-embedding-3-small",
				Endpoint:    "https://api.openai.com/v1/embeddings",
				MaxRetries:  3,
				TimeoutSecs: 60,
			},
		},
		{
			name: "openrouter complex model",
			flag: "openrouter/sentence-transformers/all-MiniLM-L6-v2",
			want: &Config{
				Provider:    "openrouter",
				Model:       "sentence-transformers/all-MiniLM-L6-v2",
				Endpoint:    "https://openrouter.ai/api/v1/embeddings",
				MaxRetries:  3,
				TimeoutSecs: 60,
			},
		},
		{
			name:    "empty flag",
			flag:    "",
			wantErr: true,
		},
		{
			name:    "no slash",
			flag:    "ollama",
			wantErr: true,
		},
		{
			name:    "empty provider",
			flag:    "/model",
			wantErr: true,
		},
		{
			name:    "empty model",
			flag:    "provider/",
			wantErr: true,
		},
		{
			name:    "unknown provider",
			flag:    "unknown/model",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseEmbedFlag(tt.flag)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseEmbedFlag() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if tt.wantErr {
				return
			}

			if got.Provider != tt.want.Provider {
				t.Errorf("Provider = %v, want %v", got.Provider, tt.want.Provider)
			}
			if got.Model != tt.want.Model {
				t.Errorf("Model = %v, want %v", got.Model, tt.want.Model)
			}
			if got.Endpoint != tt.want.Endpoint {
				t.Errorf("Endpoint = %v, want %v", got.Endpoint, tt.want.Endpoint)
			}
			if got.MaxRetries != tt.want.MaxRetries {
				t.Errorf("MaxRetries = %v, want %v", got.MaxRetries, tt.want.MaxRetries)
			}
			if got.TimeoutSecs != tt.want.TimeoutSecs {
				t.Errorf("TimeoutSecs = %v, want %v", got.TimeoutSecs, tt.want.TimeoutSecs)
			}
		})
	}
}

func TestParseEmbedFlagEnvOverrides(t *testing.T) {
	t.Setenv("SKEIN_EMBED_ENDPOINT", "http://embed.internal:8080/v1/embeddings")
	t.Setenv("SKEIN_EMBED_API_KEY", "sk-env")

	got, err := ParseEmbedFlag("custom/my-model")
	if err != nil {
		t.Fatalf("ParseEmbedFlag failed: %v", err)
	}
	if got.Endpoint != "http://embed.internal:8080/v1/embeddings" {
		t.Errorf("Endpoint = %v, want env override", got.Endpoint)
	}
	if got.APIKey != "sk-env" {
		t.Errorf("APIKey = %v, want sk-env", got.APIKey)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		config Config
		want   bool
	}{
		{
			name: "valid ollama",
			config: Config{
				Provider:    "ollama",
				Model:       "all-minilm",
				Endpoint:    "http://localhost:11434/v1/embeddings",
				MaxRetries:  3,
				TimeoutSecs: 60,
			},
			want: true,
		},
		{
			name: "valid openai",
			config: Config{
				Provider:    "openai",
				Model:       "text-embedding-3-small",
				Endpoint:    "https://api.openai.com/v1/embeddings",
				APIKey:      "sk-test",
				MaxRetries:  3,
				TimeoutSecs: 60,
			},
			want: true,
		},
		{
			name: "missing provider",
			config: Config{
				Model:       "all-minilm",
				Endpoint:    "http://localhost:11434/v1/embeddings",
				MaxRetries:  3,
				TimeoutSecs: 60,
			},
			want: false,
		},
		{
			name: "missing model",
			config: Config{
				Provider:    "ollama",
				Endpoint:    "http://localhost:11434/v1/embeddings",
				MaxRetries:  3,
				TimeoutSecs: 60,
			},
			want: false,
		},
		{
			name: "missing endpoint",
			config: Config{
				Provider:    "ollama",
				Model:       "all-minilm",
				MaxRetries:  3,
				TimeoutSecs: 60,
			},
			want: false,
		},
		{
			name: "missing api key for openai",
			config: Config{
				Provider:    "openai",
				Model:       "text-embedding-3-small",
				Endpoint:    "https://api.openai.com/v1/embeddings",
				MaxRetries:  3,
				TimeoutSecs: 60,
			},
			want: false,
		},
		{
			name: "negative retries",
			config: Config{
				Provider:    "ollama",
				Model:       "all-minilm",
				Endpoint:    "http://localhost:11434/v1/embeddings",
				MaxRetries:  -1,
				TimeoutSecs: 60,
			},
			want: false,
		},
		{
			name: "zero timeout",
			config: Config{
				Provider:    "ollama",
				Model:       "all-minilm",
				Endpoint:    "http://localhost:11434/v1/embeddings",
				MaxRetries:  3,
				TimeoutSecs: 0,
			},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			got := err == nil
			if got != tt.want {
				t.Errorf("Validate() = %v, want %v, error: %v", got, tt.want, err)
			}
		})
	}
}

func mockEmbeddingServer(t *testing.T) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" {
			t.Errorf("Expected POST request, got %s", r.Method)
		}

		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("Expected Content-Type: application/json, got %s", r.Header.Get("Content-Type"))
		}

		var req embedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("Failed to decode request: %v", err)
		}

		resp := embedResponse{
			Data: make([]struct {
				Embedding []float32 `json:"embedding"`
				Index     int       `json:"index"`
			}, len(req.Input)),
		}

		for i, text := range req.Input {
			embedding := make([]float32, 384)
			for j := range embedding {
				embedding[j] = float32(len(text)+j) * 0.001
			}

			resp.Data[i] = struct {
				Embedding []float32 `json:"embedding"`
				Index     int       `json:"index"`
			}{
				Embedding: embedding,
				Index:     i,
			}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
}

func singleVectorServer(t *testing.T, before func(w http.ResponseWriter, r *http.Request) bool) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if before != nil && !before(w, r) {
			return
		}

		resp := embedResponse{
			Data: []struct {
				Embedding []float32 `json:"embedding"`
				Index     int       `json:"index"`
			}{
				{
					Embedding: []float32{0.1, 0.2, 0.3},
					Index:     0,
				},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
}

func TestEmbedSingleText(t *testing.T) {
	server := mockEmbeddingServer(t)
	defer server.Close()

	config := &Config{
		Provider:    "test",
		Model:       "test-model",
		Endpoint:    server.URL,
		MaxRetries:  1,
		TimeoutSecs: 5,
	}

	client, err := NewClient(config)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}

	ctx := context.Background()
	embedding, err := client.Embed(ctx, "test text")
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}

	if len(embedding) != 384 {
		t.Errorf("Expected embedding length 384, got %d", len(embedding))
	}

	if client.Dimensions() != 384 {
		t.Errorf("Expected dimensions 384, got %d", client.Dimensions())
	}
}

func TestEmbedBatch(t *testing.T) {
	server := mockEmbeddingServer(t)
	defer server.Close()

	config := &Config{
		Provider:    "test",
		Model:       "test-model",
		Endpoint:    server.URL,
		MaxRetries:  1,
		TimeoutSecs: 5,
	}

	client, err := NewClient(config)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}

	ctx := context.Background()
	texts := []string{"text one", "text two", "text three"}
	embeddings, err := client.EmbedBatch(ctx, texts)
	if err != nil {
		t.Fatalf("EmbedBatch failed: %v", err)
	}

	if len(embeddings) != len(texts) {
		t.Errorf("Expected %d embeddings, got %d", len(texts), len(embeddings))
	}

	for i, embedding := range embeddings {
		if len(embedding) != 384 {
			t.Errorf("Embedding %d: expected length 384, got %d", i, len(embedding))
		}
	}
}

func TestEmbedEmptyTexts(t *testing.T) {
	server := mockEmbeddingServer(t)
	defer server.Close()

	config := &Config{
		Provider:    "test",
		Model:       "test-model",
		Endpoint:    server.URL,
		MaxRetries:  1,
		TimeoutSecs: 5,
	}

	client, err := NewClient(config)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}

	ctx := context.Background()

	_, err = client.Embed(ctx, "")
	if err == nil {
		t.Error("Expected error for empty text")
	}

	embeddings, err := client.EmbedBatch(ctx, []string{})
	if err != nil {
		t.Fatalf("EmbedBatch failed with empty slice: %v", err)
	}
	if embeddings != nil {
		t.Error("Expected nil result for empty batch")
	}

	texts := []string{"", "  ", "valid text", ""}
	embeddings, err = client.EmbedBatch(ctx, texts)
	if err != nil {
		t.Fatalf("EmbedBatch failed: %v", err)
	}

	if len(embeddings) != len(texts) {
		t.Errorf("Expected %d embeddings, got %d", len(texts), len(embeddings))
	}

	for i, embedding := range embeddings {
		if texts[i] == "valid text" {
			if len(embedding) == 0 {
				t.Errorf("Expected non-empty embedding for valid text at index %d", i)
			}
		} else {
			if len(embedding) != 0 {
				t.Errorf("Expected empty embedding for empty text at index %d", i)
			}
		}
	}
}

func TestEmbedRetryOnError(t *testing.T) {
	retryCount := 0
	server := singleVectorServer(t, func(w http.ResponseWriter, r *http.Request) bool {
		retryCount++
		if retryCount <= 2 {
			w.WriteHeader(500)
			w.Write([]byte("internal server error"))
			return false
		}
		return true
	})
	defer server.Close()

	config := &Config{
		Provider:    "test",
		Model:       "test-model",
		Endpoint:    server.URL,
		MaxRetries:  3,
		TimeoutSecs: 5,
	}

	client, err := NewClient(config)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}

	ctx := context.Background()
	embedding, err := client.Embed(ctx, "test")
	if err != nil {
		t.Fatalf("Embed failed after retries: %v", err)
	}

	if !reflect.DeepEqual(embedding, []float32{0.1, 0.2, 0.3}) {
		t.Errorf("Unexpected embedding: got %v, want [0.1, 0.2, 0.3]", embedding)
	}

	if retryCount != 3 {
		t.Errorf("Expected 3 attempts, got %d", retryCount)
	}
}

func TestEmbedRateLimitBackoff(t *testing.T) {
	retryCount := 0
	start := time.Now()

	server := singleVectorServer(t, func(w http.ResponseWriter, r *http.Request) bool {
		retryCount++
		if retryCount == 1 {
			w.Header().Set("Retry-After", "2")
			w.WriteHeader(429)
			w.Write([]byte("rate limited"))
			return false
		}
		return true
	})
	defer server.Close()

	config := &Config{
		Provider:    "test",
		Model:       "test-model",
		Endpoint:    server.URL,
		MaxRetries:  3,
		TimeoutSecs: 10,
	}

	client, err := NewClient(config)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}

	ctx := context.Background()
	_, err = client.Embed(ctx, "test")
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}

	elapsed := time.Since(start)
	if elapsed < 2*time.Second {
		t.Errorf("Expected at least 2 second delay for rate limit, got %v", elapsed)
	}

	if retryCount != 2 {
		t.Errorf("Expected 2 attempts, got %d", retryCount)
	}
}

func TestEmbedInvalidResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"invalid": "json structure"}`))
	}))
	defer server.Close()

	config := &Config{
		Provider:    "test",
		Model:       "test-model",
		Endpoint:    server.URL,
		MaxRetries:  1,
		TimeoutSecs: 5,
	}

	client, err := NewClient(config)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}

	ctx := context.Background()
	_, err = client.Embed(ctx, "test")
	if err == nil {
		t.Error("Expected error for invalid response")
	}
	if !strings.Contains(err.Error(), "expected 1 embeddings") {
		t.Errorf("Unexpected error message: %v", err)
	}
}

func TestEmbedOpenAIProvider(t *testing.T) {
	server := singleVectorServer(t, func(w http.ResponseWriter, r *http.Request) bool {
		auth := r.Header.Get("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") {
			t.Errorf("Expected Bearer authorization, got %s", auth)
		}
		return true
	})
	defer server.Close()

	config, err := ParseEmbedFlag("openai/text-embedding-3-small")
	if err != nil {
		t.Fatalf("ParseEmbedFlag failed: %v", err)
	}

	config.Endpoint = server.URL
	config.APIKey = "test-key"

	client, err := NewClient(config)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}

	ctx := context.Background()
	_, err = client.Embed(ctx, "test text")
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
}
