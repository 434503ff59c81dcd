package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/skeinlabs/skein/internal/config"
)

func runSearch(args []string) error {
	a, err := newApp(args)
	if err != nil {
		return err
	}
	defer a.close()

	if len(a.flags.rest) == 0 {
		return fmt.Errorf("usage: skein search <query>")
	}
	query := strings.Join(a.flags.rest, " ")

	embedder, err := a.embedder()
	if err != nil {
		return err
	}

	ctx := context.Background()
	graphID, err := a.graphID(ctx)
	if err != nil {
		return err
	}

	vec, err := embedder.Embed(ctx, query)
	if err != nil {
		return fmt.Errorf("embedding query: %w", err)
	}

	eng := a.searcher()
	t := a.cfg.Tuning

	topics, err := eng.FindSimilarTopics(ctx, a.store, graphID, vec, t.TopicResultCount, t.SimilarityThreshold)
	if err != nil {
		return err
	}
	topics, err = eng.ExpandWithNeighbors(ctx, a.store, graphID, topics)
	if err != nil {
		return err
	}
	items, err := eng.FindSimilarItems(ctx, a.store, graphID, vec, t.ItemResultCount, t.SimilarityThreshold)
	if err != nil {
		return err
	}

	if len(topics) == 0 && len(items) == 0 {
		fmt.Println("no results")
		return nil
	}

	if len(topics) > 0 {
		fmt.Println("Topics:")
		for _, r := range topics {
			fmt.Printf("  %.3f  %s (%d uses)\n", r.Similarity, r.Topic.Label, r.Topic.Uses)
		}
	}
	if len(items) > 0 {
		fmt.Println("Items:")
		for _, r := range items {
			fmt.Printf("  %.3f  %s\n         %s\n", r.Similarity, r.Item.Title, r.Item.Link)
		}
	}
	return nil
}

func runProject(args []string) error {
	a, err := newApp(args)
	if err != nil {
		return err
	}
	defer a.close()

	ctx := context.Background()
	graphID, err := a.graphID(ctx)
	if err != nil {
		return err
	}

	if err := a.projector().ProjectGraph(ctx, a.store, graphID); err != nil {
		return fmt.Errorf("projecting graph: %w", err)
	}

	topics, err := a.store.ListTopics(ctx, graphID)
	if err != nil {
		return err
	}
	positioned := 0
	for _, t := range topics {
		if t.HasPosition {
			positioned++
		}
	}
	fmt.Printf("projected %d/%d topics\n", positioned, len(topics))
	return nil
}

func runClusters(args []string) error {
	a, err := newApp(args)
	if err != nil {
		return err
	}
	defer a.close()

	ctx := context.Background()
	graphID, err := a.graphID(ctx)
	if err != nil {
		return err
	}

	clusters, err := a.clusterer().Clusters(ctx, a.store, graphID)
	if err != nil {
		return err
	}
	if len(clusters) == 0 {
		fmt.Println("no clusters (need at least two connected topics)")
		return nil
	}

	labels := make(map[string]string)
	topics, err := a.store.ListTopics(ctx, graphID)
	if err != nil {
		return err
	}
	for _, t := range topics {
		labels[t.ID] = t.Label
	}

	for _, c := range clusters {
		fmt.Printf("cluster %d  %s  centroid=%s  (%d members)\n",
			c.ID, c.Color, labels[c.CentroidID], len(c.MemberIDs))
		members := make([]string, 0, len(c.MemberIDs))
		for _, id := range c.MemberIDs {
			members = append(members, labels[id])
		}
		sort.Strings(members)
		fmt.Printf("  %s\n", strings.Join(members, ", "))
	}
	return nil
}

func runTopics(args []string) error {
	a, err := newApp(args)
	if err != nil {
		return err
	}
	defer a.close()

	ctx := context.Background()
	graphID, err := a.graphID(ctx)
	if err != nil {
		return err
	}

	topics, err := a.store.ListTopics(ctx, graphID)
	if err != nil {
		return err
	}
	if len(topics) == 0 {
		fmt.Println("no topics")
		return nil
	}

	sort.Slice(topics, func(i, j int) bool {
		if topics[i].Uses != topics[j].Uses {
			return topics[i].Uses > topics[j].Uses
		}
		return topics[i].Label < topics[j].Label
	})

	w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
	fmt.Fprintln(w, "USES\tLABEL\tPOSITION")
	for _, t := range topics {
		pos := "-"
		if t.HasPosition {
			pos = fmt.Sprintf("(%.2f, %.2f, %.2f)", t.X, t.Y, t.Z)
		}
		fmt.Fprintf(w, "%d\t%s\t%s\n", t.Uses, t.Label, pos)
	}
	return w.Flush()
}

func runGraphs(args []string) error {
	a, err := newApp(args)
	if err != nil {
		return err
	}
	defer a.close()

	ctx := context.Background()

	if len(a.flags.rest) >= 1 && a.flags.rest[0] == "create" {
		if len(a.flags.rest) < 2 {
			return fmt.Errorf("usage: skein graphs create <name>")
		}
		g, err := a.store.CreateGraph(ctx, a.flags.rest[1], false)
		if err != nil {
			return fmt.Errorf("creating graph: %w", err)
		}
		fmt.Printf("created graph %s (%s)\n", g.Name, g.ID)
		return nil
	}

	graphs, err := a.store.ListGraphs(ctx)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tDEFAULT")
	for _, g := range graphs {
		def := ""
		if g.IsDefault {
			def = "*"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", g.ID, g.Name, def)
	}
	return w.Flush()
}

func runStats(args []string) error {
	a, err := newApp(args)
	if err != nil {
		return err
	}
	defer a.close()

	stats, err := a.store.Stats(context.Background())
	if err != nil {
		return err
	}

	fmt.Printf("graphs:  %d\n", stats.GraphCount)
	fmt.Printf("topics:  %d\n", stats.TopicCount)
	fmt.Printf("items:   %d\n", stats.ItemCount)
	fmt.Printf("edges:   %d\n", stats.EdgeCount)
	fmt.Printf("vectors: %d\n", stats.VectorCount)
	fmt.Printf("db size: %s\n", formatBytes(stats.DBSizeBytes))

	fmt.Println("\nconfig:")
	printResolved("db", a.cfg.DBPath)
	printResolved("llm", a.cfg.LLMProvider)
	printResolved("classify model", a.cfg.EffectiveClassifyModel(""))
	printResolved("embed", a.cfg.EmbedProvider)
	return nil
}

func printResolved(name string, v config.ResolvedValue) {
	if v.Value == "" {
		fmt.Printf("  %-16s (unset)\n", name)
		return
	}
	src := string(v.Source)
	if v.From != "" {
		src += ":" + v.From
	}
	fmt.Printf("  %-16s %s  [%s]\n", name, v.Value, src)
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGT"[exp])
}
