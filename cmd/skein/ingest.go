package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/skeinlabs/skein/internal/embed"
	"github.com/skeinlabs/skein/internal/ingest"
)

// extractionEvent is the JSON shape of one ingested item. Files may
// hold a single event or an array of events.
type extractionEvent struct {
	Title   string   `json:"title"`
	Summary string   `json:"summary"`
	Link    string   `json:"link"`
	Topics  []string `json:"topics"`
}

// parseEvents decodes one file's worth of events, accepting either a
// single object or an array.
func parseEvents(data []byte) ([]extractionEvent, error) {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" {
		return nil, fmt.Errorf("empty input")
	}
	if strings.HasPrefix(trimmed, "[") {
		var events []extractionEvent
		if err := json.Unmarshal(data, &events); err != nil {
			return nil, fmt.Errorf("parsing event array: %w", err)
		}
		return events, nil
	}
	var ev extractionEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, fmt.Errorf("parsing event: %w", err)
	}
	return []extractionEvent{ev}, nil
}

func (e extractionEvent) validate() error {
	if strings.TrimSpace(e.Link) == "" {
		return fmt.Errorf("event %q: link is required", e.Title)
	}
	if strings.TrimSpace(e.Title) == "" {
		return fmt.Errorf("event %s: title is required", e.Link)
	}
	return nil
}

func runIngest(args []string) error {
	a, err := newApp(args)
	if err != nil {
		return err
	}
	defer a.close()

	if len(a.flags.rest) == 0 {
		return fmt.Errorf("usage: skein ingest <events.json> [more.json ...] (use - for stdin)")
	}

	embedder, err := a.embedder()
	if err != nil {
		return err
	}

	p, err := ingest.New(ingest.Config{
		Store:     a.store,
		Resolver:  a.resolver(),
		Builder:   a.builder(),
		Projector: a.projector(),
		Logger:    a.logger,
	})
	if err != nil {
		return err
	}
	defer p.Wait()

	ctx := context.Background()
	graphID, err := a.graphID(ctx)
	if err != nil {
		return err
	}

	var ingested, skipped, failed int
	for _, path := range a.flags.rest {
		data, err := readInput(path)
		if err != nil {
			return err
		}
		events, err := parseEvents(data)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}

		for _, ev := range events {
			if err := ev.validate(); err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}

			input, err := embedEvent(ctx, embedder, ev)
			if err != nil {
				failed++
				a.logger.Warn("embedding failed, skipping event",
					zap.String("link", ev.Link), zap.Error(err))
				continue
			}

			res, err := p.Ingest(ctx, graphID, input)
			if err != nil {
				failed++
				a.logger.Warn("ingest failed",
					zap.String("link", ev.Link), zap.Error(err))
				continue
			}
			if res.SkippedDuplicate {
				skipped++
				fmt.Printf("skipped (duplicate): %s\n", ev.Link)
				continue
			}
			ingested++
			fmt.Printf("ingested: %s (%d topics, %d new, %d merged, %d edges)\n",
				ev.Title, len(res.Topics), res.NewTopics, res.MergedTopics, len(res.Edges))
		}
	}

	fmt.Printf("\ndone: %d ingested, %d duplicates, %d failed\n", ingested, skipped, failed)
	if failed > 0 {
		return fmt.Errorf("%d events failed", failed)
	}
	return nil
}

// embedEvent computes the topic and content embeddings for one event.
func embedEvent(ctx context.Context, embedder embed.Embedder, ev extractionEvent) (ingest.Input, error) {
	input := ingest.Input{
		Title:   ev.Title,
		Summary: ev.Summary,
		Link:    ev.Link,
		Topics:  ev.Topics,
	}

	if len(ev.Topics) > 0 {
		vecs, err := embedder.EmbedBatch(ctx, ev.Topics)
		if err != nil {
			return ingest.Input{}, fmt.Errorf("embedding topics: %w", err)
		}
		input.TopicEmbeddings = vecs
	}

	content := strings.TrimSpace(ev.Title + ". " + ev.Summary)
	vec, err := embedder.Embed(ctx, content)
	if err != nil {
		return ingest.Input{}, fmt.Errorf("embedding content: %w", err)
	}
	input.ContentEmbedding = vec

	return input, nil
}

func readInput(path string) ([]byte, error) {
	if path == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("reading stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return data, nil
}
