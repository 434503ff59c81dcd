package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// googleProvider speaks the Gemini generateContent REST endpoint.
type googleProvider struct {
	apiKey  string
	model   string
	baseURL string
	client  http.Client
}

// Gemini wire types, pared down to the fields the pipeline reads.
type geminiText struct {
	Text string `json:"text"`
}

type geminiTurn struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiText `json:"parts"`
}

type geminiGenOpts struct {
	Temperature      float64 `json:"temperature"`
	MaxOutputTokens  int     `json:"maxOutputTokens,omitempty"`
	ResponseMimeType string  `json:"responseMimeType,omitempty"`
}

type geminiPayload struct {
	Contents  []geminiTurn   `json:"contents"`
	System    *geminiTurn    `json:"systemInstruction,omitempty"`
	GenConfig *geminiGenOpts `json:"generationConfig,omitempty"`
}

type geminiCandidate struct {
	Content geminiTurn `json:"content"`
}

type geminiAPIError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type geminiReply struct {
	Candidates []geminiCandidate `json:"candidates"`
	Error      *geminiAPIError   `json:"error,omitempty"`
}

func (g *googleProvider) Name() string {
	return "google/" + g.model
}

func (g *googleProvider) Complete(ctx context.Context, prompt string, opts CompletionOpts) (string, error) {
	payload := geminiPayload{
		Contents: []geminiTurn{{Role: "user", Parts: []geminiText{{Text: prompt}}}},
		GenConfig: &geminiGenOpts{
			Temperature:     opts.Temperature,
			MaxOutputTokens: opts.MaxTokens,
		},
	}
	if opts.System != "" {
		payload.System = &geminiTurn{Parts: []geminiText{{Text: opts.System}}}
	}
	if strings.EqualFold(opts.Format, "json") {
		payload.GenConfig.ResponseMimeType = "application/json"
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s",
		g.baseURL, fallback(opts.Model, g.model), g.apiKey)
	raw, err := postJSON(ctx, &g.client, url, nil, payload)
	if err != nil {
		return "", fmt.Errorf("google completion: %w", err)
	}

	var reply geminiReply
	if err := json.Unmarshal(raw, &reply); err != nil {
		return "", fmt.Errorf("decoding google response: %w", err)
	}
	if reply.Error != nil {
		return "", fmt.Errorf("google completion: %s (code %d)", reply.Error.Message, reply.Error.Code)
	}
	if len(reply.Candidates) == 0 || len(reply.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("google completion: no candidates returned")
	}
	return strings.TrimSpace(reply.Candidates[0].Content.Parts[0].Text), nil
}
