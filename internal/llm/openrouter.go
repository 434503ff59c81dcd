package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// openrouterProvider speaks the OpenAI-compatible chat completions
// endpoint behind OpenRouter's model routing.
type openrouterProvider struct {
	apiKey  string
	model   string
	baseURL string
	client  http.Client
}

// Chat wire types, pared down to the fields the pipeline reads.
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatFormat struct {
	Type string `json:"type"`
}

type chatPayload struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	Temperature    float64       `json:"temperature"`
	MaxTokens      int           `json:"max_tokens,omitempty"`
	ResponseFormat *chatFormat   `json:"response_format,omitempty"`
}

type chatChoice struct {
	Message chatMessage `json:"message"`
}

type chatAPIError struct {
	Message string `json:"message"`
}

type chatReply struct {
	Choices []chatChoice  `json:"choices"`
	Error   *chatAPIError `json:"error,omitempty"`
}

func (o *openrouterProvider) Name() string {
	return "openrouter/" + o.model
}

func (o *openrouterProvider) Complete(ctx context.Context, prompt string, opts CompletionOpts) (string, error) {
	messages := make([]chatMessage, 0, 2)
	if opts.System != "" {
		messages = append(messages, chatMessage{Role: "system", Content: opts.System})
	}
	messages = append(messages, chatMessage{Role: "user", Content: prompt})

	payload := chatPayload{
		Model:       fallback(opts.Model, o.model),
		Messages:    messages,
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
	}
	if strings.EqualFold(opts.Format, "json") {
		payload.ResponseFormat = &chatFormat{Type: "json_object"}
	}

	headers := map[string]string{
		"Authorization": "Bearer " + o.apiKey,
		"HTTP-Referer":  "https://github.com/skeinlabs/skein",
		"X-Title":       "Skein",
	}
	raw, err := postJSON(ctx, &o.client, o.baseURL+"/chat/completions", headers, payload)
	if err != nil {
		return "", fmt.Errorf("openrouter completion: %w", err)
	}

	var reply chatReply
	if err := json.Unmarshal(raw, &reply); err != nil {
		return "", fmt.Errorf("decoding openrouter response: %w", err)
	}
	if reply.Error != nil {
		return "", fmt.Errorf("openrouter completion: %s", reply.Error.Message)
	}
	if len(reply.Choices) == 0 {
		return "", fmt.Errorf("openrouter completion: no choices returned")
	}
	return strings.TrimSpace(reply.Choices[0].Message.Content), nil
}
