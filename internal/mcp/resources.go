package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/skeinlabs/skein/internal/store"
)

func registerStatsResource(s *server.MCPServer, st store.Store) {
	resource := mcp.NewResource(
		"skein://stats",
		"Graph Statistics",
		mcp.WithResourceDescription("Counts of graphs, topics, items, edges, and vectors plus database size."),
		mcp.WithMIMEType("application/json"),
	)

	s.AddResource(resource, func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		stats, err := st.Stats(ctx)
		if err != nil {
			return nil, fmt.Errorf("reading stats resource: %w", err)
		}

		payload := map[string]interface{}{
			"graphs":        stats.GraphCount,
			"topics":        stats.TopicCount,
			"items":         stats.ItemCount,
			"edges":         stats.EdgeCount,
			"vectors":       stats.VectorCount,
			"db_size_bytes": stats.DBSizeBytes,
		}
		data, _ := json.MarshalIndent(payload, "", "  ")
		return []mcp.ResourceContents{
			mcp.TextResourceContents{URI: req.Params.URI, MIMEType: "application/json", Text: string(data)},
		}, nil
	})
}

func registerRecentItemsResource(s *server.MCPServer, st store.Store) {
	resource := mcp.NewResource(
		"skein://recent",
		"Recent Items",
		mcp.WithResourceDescription("The most recently ingested items of the default graph."),
		mcp.WithMIMEType("application/json"),
	)

	s.AddResource(resource, func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		g, err := st.DefaultGraph(ctx)
		if err != nil {
			return nil, fmt.Errorf("resolving default graph: %w", err)
		}
		items, err := st.ListItems(ctx, g.ID, 20)
		if err != nil {
			return nil, fmt.Errorf("listing recent items: %w", err)
		}

		type itemInfo struct {
			ID      string `json:"id"`
			Title   string `json:"title"`
			Summary string `json:"summary"`
			Link    string `json:"link"`
		}
		recent := make([]itemInfo, 0, len(items))
		for _, it := range items {
			recent = append(recent, itemInfo{ID: it.ID, Title: it.Title, Summary: it.Summary, Link: it.Link})
		}

		payload := map[string]interface{}{
			"graph_id": g.ID,
			"items":    recent,
			"count":    len(recent),
		}
		data, _ := json.MarshalIndent(payload, "", "  ")
		return []mcp.ResourceContents{
			mcp.TextResourceContents{URI: req.Params.URI, MIMEType: "application/json", Text: string(data)},
		}, nil
	})
}
