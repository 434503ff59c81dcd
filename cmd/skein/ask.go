package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/skeinlabs/skein/internal/answer"
	"github.com/skeinlabs/skein/internal/llm"
)

func runAsk(args []string) error {
	a, err := newApp(args)
	if err != nil {
		return err
	}
	defer a.close()

	if len(a.flags.rest) == 0 {
		return fmt.Errorf("usage: skein ask <question>")
	}
	question := strings.Join(a.flags.rest, " ")

	embedder, err := a.embedder()
	if err != nil {
		return err
	}

	ctx := context.Background()
	graphID, err := a.graphID(ctx)
	if err != nil {
		return err
	}

	vec, err := embedder.Embed(ctx, question)
	if err != nil {
		return fmt.Errorf("embedding question: %w", err)
	}

	eng := a.searcher()
	t := a.cfg.Tuning
	topics, err := eng.FindSimilarTopics(ctx, a.store, graphID, vec, t.TopicResultCount, t.SimilarityThreshold)
	if err != nil {
		return err
	}
	items, err := eng.FindSimilarItems(ctx, a.store, graphID, vec, t.ItemResultCount, t.SimilarityThreshold)
	if err != nil {
		return err
	}

	res, err := answer.New(a.answerProvider(), a.cfg.EffectiveClassifyModel("").Value).Answer(ctx, answer.Options{
		Query:  question,
		Items:  items,
		Topics: topics,
	})
	if err != nil {
		return err
	}

	fmt.Println(res.Answer)
	if res.Degraded {
		fmt.Printf("(degraded: %s)\n", res.Reason)
	}
	if len(res.Citations) > 0 {
		fmt.Println("\nSources:")
		for _, c := range res.Citations {
			fmt.Printf("  [%d] %s (%s)\n", c.Index, c.Title, c.Link)
		}
	}
	return nil
}

// answerProvider resolves the LLM for the ask command, returning nil
// when none is configured so the answer engine degrades.
func (a *app) answerProvider() llm.Provider {
	model := a.cfg.EffectiveClassifyModel("")
	if strings.TrimSpace(model.Value) == "" {
		return nil
	}
	cfg, err := llm.ParseModelFlag(model.Value)
	if err != nil {
		return nil
	}
	if key := a.cfg.APIKeyForProvider(model.Value); key.Value != "" {
		cfg.APIKey = key.Value
	}
	provider, err := llm.NewProvider(cfg)
	if err != nil {
		return nil
	}
	return provider
}
