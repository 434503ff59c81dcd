// Package link builds typed relationships between a newly minted topic
// and its nearest semantic neighbors. A relationship classifier decides
// the edge direction; the builder enforces acyclicity and degree caps.
package link

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/skeinlabs/skein/internal/llm"
	"github.com/skeinlabs/skein/internal/metrics"
)

// Relation is a classifier verdict for one candidate relative to the
// subject topic.
type Relation string

const (
	RelParent    Relation = "PARENT"  // candidate is broader than the subject
	RelChild     Relation = "CHILD"   // candidate is narrower than the subject
	RelSibling   Relation = "SIBLING" // same level, related
	RelUnrelated Relation = "UNRELATED"
)

// Classifier assigns a Relation to each candidate label, preserving
// order. The returned slice must have the same length as candidates;
// implementations that cannot comply should return an error, which the
// builder degrades to "no edges".
type Classifier interface {
	Classify(ctx context.Context, subject string, candidates []string) ([]Relation, error)
}

const classifySystemPrompt = `You are a taxonomy assistant. Given a subject topic and a list of candidate topics, classify each candidate's relationship to the subject.

For each candidate, answer exactly one of:
- PARENT: the candidate is a broader category that contains the subject
- CHILD: the candidate is a narrower specialization of the subject
- SIBLING: the candidate is related at a similar level of generality
- UNRELATED: no meaningful relationship

Respond with a JSON array of strings, one per candidate, in the same order. No other text.`

// LLMClassifier classifies candidate relationships with a completion
// model. Any malformed response is reported as an error so the caller
// can fall back.
type LLMClassifier struct {
	provider llm.Provider
}

// NewLLMClassifier wraps a provider as a relationship classifier.
func NewLLMClassifier(provider llm.Provider) *LLMClassifier {
	return &LLMClassifier{provider: provider}
}

func (c *LLMClassifier) Classify(ctx context.Context, subject string, candidates []string) ([]Relation, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Subject topic: %q\n\nCandidates:\n", subject)
	for i, label := range candidates {
		fmt.Fprintf(&b, "%d. %q\n", i+1, label)
	}

	raw, err := c.provider.Complete(ctx, b.String(), llm.CompletionOpts{
		System:      classifySystemPrompt,
		Format:      "json",
		Temperature: 0,
		MaxTokens:   256,
	})
	if err != nil {
		metrics.ClassifierCalls.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("classifying relationships: %w", err)
	}

	relations, err := parseRelations(raw, len(candidates))
	if err != nil {
		metrics.ClassifierCalls.WithLabelValues("malformed").Inc()
		return nil, err
	}
	metrics.ClassifierCalls.WithLabelValues("ok").Inc()
	return relations, nil
}

// parseRelations decodes a JSON array of relation strings. Anything the
// model got wrong (bad JSON, wrong length, unknown value) is an error.
func parseRelations(raw string, want int) ([]Relation, error) {
	var labels []string
	if err := json.Unmarshal([]byte(llm.StripFences(raw)), &labels); err != nil {
		return nil, fmt.Errorf("parsing classifier response: %w", err)
	}
	if len(labels) != want {
		return nil, fmt.Errorf("classifier returned %d labels, want %d", len(labels), want)
	}

	out := make([]Relation, len(labels))
	for i, label := range labels {
		switch rel := Relation(strings.ToUpper(strings.TrimSpace(label))); rel {
		case RelParent, RelChild, RelSibling, RelUnrelated:
			out[i] = rel
		default:
			return nil, fmt.Errorf("unknown relation %q at index %d", label, i)
		}
	}
	return out, nil
}

// ThresholdClassifier is the no-model fallback: every candidate is a
// sibling. The builder's similarity floor and caps still apply, so this
// yields a flat related_to neighborhood rather than a hierarchy.
type ThresholdClassifier struct{}

func (ThresholdClassifier) Classify(_ context.Context, _ string, candidates []string) ([]Relation, error) {
	out := make([]Relation, len(candidates))
	for i := range out {
		out[i] = RelSibling
	}
	return out, nil
}
