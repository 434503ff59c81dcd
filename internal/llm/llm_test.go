package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestParseModelFlag(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantProv string
		wantMod  string
		wantErr  bool
	}{
		{"empty defaults to google", "", "google", "gemini-2.5-flash", false},
		{"google flash", "google/gemini-2.5-flash", "google", "gemini-2.5-flash", false},
		{"openrouter nested model", "openrouter/openai/gpt-4o-mini", "openrouter", "openai/gpt-4o-mini", false},
		{"unknown provider", "acme/some-model", "", "", true},
		{"no slash", "gemini-2.5-flash", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := ParseModelFlag(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if cfg.Provider != tt.wantProv {
				t.Errorf("provider: got %q, want %q", cfg.Provider, tt.wantProv)
			}
			if cfg.Model != tt.wantMod {
				t.Errorf("model: got %q, want %q", cfg.Model, tt.wantMod)
			}
		})
	}
}

func TestStripFences(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{`["PARENT","SIBLING"]`, `["PARENT","SIBLING"]`},
		{"```json\n[\"PARENT\"]\n```", `["PARENT"]`},
		{"```\n{\"a\":1}\n```", `{"a":1}`},
		{"  ```json\n[]\n```  ", `[]`},
	}
	for _, tt := range tests {
		if got := StripFences(tt.in); got != tt.want {
			t.Errorf("StripFences(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNewProviderErrors(t *testing.T) {
	_, err := NewProvider(Config{Provider: "unknown"})
	if err == nil {
		t.Fatal("expected error for unknown provider")
	}

	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "")
	_, err = NewProvider(Config{Provider: "google"})
	if err == nil {
		t.Fatal("expected error for google without API key")
	}

	t.Setenv("OPENROUTER_API_KEY", "")
	_, err = NewProvider(Config{Provider: "openrouter"})
	if err == nil {
		t.Fatal("expected error for openrouter without API key")
	}
}

func googleTextResponse(text string) geminiReply {
	return geminiReply{
		Candidates: []geminiCandidate{
			{Content: geminiTurn{Parts: []geminiText{{Text: text}}}},
		},
	}
}

func TestGoogleProviderComplete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" {
			t.Errorf("expected POST, got %s", r.Method)
		}

		var req geminiPayload
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decoding request: %v", err)
		}
		if len(req.Contents) == 0 || len(req.Contents[0].Parts) == 0 {
			t.Fatal("empty request contents")
		}
		if req.Contents[0].Parts[0].Text != "classify these" {
			t.Errorf("unexpected prompt: %q", req.Contents[0].Parts[0].Text)
		}
		if req.GenConfig == nil || req.GenConfig.ResponseMimeType != "application/json" {
			t.Error("json format not requested")
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(googleTextResponse(`["PARENT","UNRELATED"]`))
	}))
	defer server.Close()

	p := &googleProvider{apiKey: "test-key", model: "gemini-2.5-flash", baseURL: server.URL}
	result, err := p.Complete(context.Background(), "classify these", CompletionOpts{
		MaxTokens:   200,
		Temperature: 0,
		Format:      "json",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != `["PARENT","UNRELATED"]` {
		t.Errorf("unexpected result: %q", result)
	}
}

func TestGoogleProviderSystemPrompt(t *testing.T) {
	var gotSystem bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req geminiPayload
		json.NewDecoder(r.Body).Decode(&req)
		if req.System != nil && len(req.System.Parts) > 0 {
			gotSystem = req.System.Parts[0].Text == "you are a taxonomist"
		}
		json.NewEncoder(w).Encode(googleTextResponse("ok"))
	}))
	defer server.Close()

	p := &googleProvider{apiKey: "test", model: "test", baseURL: server.URL}
	p.Complete(context.Background(), "hello", CompletionOpts{System: "you are a taxonomist"})
	if !gotSystem {
		t.Error("system instruction not sent")
	}
}

func TestGoogleProviderError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"code":400,"message":"bad request","status":"INVALID_ARGUMENT"}}`))
	}))
	defer server.Close()

	p := &googleProvider{apiKey: "test", model: "test", baseURL: server.URL}
	if _, err := p.Complete(context.Background(), "test", CompletionOpts{}); err == nil {
		t.Fatal("expected error")
	}
}

func TestGoogleProviderErrorBody(t *testing.T) {
	// Gemini can answer 200 with an error object in the body.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(geminiReply{
			Error: &geminiAPIError{Code: 429, Message: "quota exceeded"},
		})
	}))
	defer server.Close()

	p := &googleProvider{apiKey: "test", model: "test", baseURL: server.URL}
	_, err := p.Complete(context.Background(), "test", CompletionOpts{})
	if err == nil || !strings.Contains(err.Error(), "quota exceeded") {
		t.Fatalf("expected quota error, got %v", err)
	}
}

func TestOpenRouterProviderComplete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("bad auth header: %q", r.Header.Get("Authorization"))
		}

		var req chatPayload
		json.NewDecoder(r.Body).Decode(&req)
		if req.Model != "openai/gpt-4o-mini" {
			t.Errorf("unexpected model: %q", req.Model)
		}
		if req.ResponseFormat == nil || req.ResponseFormat.Type != "json_object" {
			t.Error("json format not requested")
		}

		json.NewEncoder(w).Encode(chatReply{
			Choices: []chatChoice{{Message: chatMessage{Role: "assistant", Content: `["SIBLING"]`}}},
		})
	}))
	defer server.Close()

	p := &openrouterProvider{apiKey: "test-key", model: "openai/gpt-4o-mini", baseURL: server.URL}
	result, err := p.Complete(context.Background(), "test", CompletionOpts{Format: "json"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != `["SIBLING"]` {
		t.Errorf("unexpected result: %q", result)
	}
}

func TestProviderNames(t *testing.T) {
	g := &googleProvider{model: "gemini-2.5-flash"}
	if g.Name() != "google/gemini-2.5-flash" {
		t.Errorf("unexpected google name: %q", g.Name())
	}
	o := &openrouterProvider{model: "openai/gpt-4o-mini"}
	if o.Name() != "openrouter/openai/gpt-4o-mini" {
		t.Errorf("unexpected openrouter name: %q", o.Name())
	}
}

func TestContextCancellation(t *testing.T) {
	serverDone := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(5 * time.Second):
		case <-serverDone:
		}
	}))
	defer func() {
		close(serverDone)
		server.Close()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	p := &googleProvider{apiKey: "test", model: "test", baseURL: server.URL}
	if _, err := p.Complete(ctx, "test", CompletionOpts{}); err == nil {
		t.Fatal("expected context cancellation error")
	}
}
