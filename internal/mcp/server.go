// Package mcp provides a Model Context Protocol server for Skein.
//
// It exposes the knowledge graph read-only (search, clusters, graph
// export, stats) as MCP tools, plus stats and recent items as MCP
// resources. Stdio transport is handled by the caller.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/skeinlabs/skein/internal/cluster"
	"github.com/skeinlabs/skein/internal/embed"
	"github.com/skeinlabs/skein/internal/graph"
	"github.com/skeinlabs/skein/internal/search"
	"github.com/skeinlabs/skein/internal/store"
)

// ServerConfig holds configuration for the MCP server.
type ServerConfig struct {
	Store     store.Store
	Searcher  *search.Engine
	Clusterer *cluster.Engine
	Embedder  embed.Embedder // optional, required only for skein_search
	Version   string
}

// dbMu serializes MCP tool calls that touch the database. The mcp-go
// library dispatches handlers concurrently via goroutines, and SQLite
// supports only one writer at a time.
var dbMu sync.Mutex

// NewServer creates a configured MCP server with all Skein tools and
// resources.
func NewServer(cfg ServerConfig) *server.MCPServer {
	ver := cfg.Version
	if ver == "" {
		ver = "dev"
	}
	if cfg.Searcher == nil {
		cfg.Searcher = search.New(search.Config{}, nil)
	}
	if cfg.Clusterer == nil {
		cfg.Clusterer = cluster.New(cluster.Config{}, nil)
	}

	s := server.NewMCPServer(
		"Skein",
		ver,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(true, false),
	)

	registerSearchTool(s, cfg)
	registerClustersTool(s, cfg)
	registerGraphTool(s, cfg)
	registerStatsTool(s, cfg)

	registerStatsResource(s, cfg.Store)
	registerRecentItemsResource(s, cfg.Store)

	return s
}

// resolveGraphArg maps an optional graph argument to a graph id,
// defaulting to the default graph.
func resolveGraphArg(ctx context.Context, st store.Store, req mcp.CallToolRequest) (string, error) {
	if id, err := req.RequireString("graph"); err == nil && strings.TrimSpace(id) != "" {
		g, err := st.GetGraph(ctx, strings.TrimSpace(id))
		if err != nil {
			return "", err
		}
		if g == nil {
			return "", fmt.Errorf("graph %q not found", id)
		}
		return g.ID, nil
	}
	g, err := st.DefaultGraph(ctx)
	if err != nil {
		return "", err
	}
	return g.ID, nil
}

func registerSearchTool(s *server.MCPServer, cfg ServerConfig) {
	tool := mcp.NewTool("skein_search",
		mcp.WithDescription("Semantic search over the knowledge graph. Returns ranked topics with their neighbors, ranked items, and the edges between highlighted topics."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Search query text, embedded before matching"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum topic results (default 5, max 50)"),
		),
		mcp.WithString("graph",
			mcp.Description("Graph id to search. Empty = default graph."),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		if cfg.Embedder == nil {
			return mcp.NewToolResultError("search requires an embedding provider"), nil
		}

		query, err := req.RequireString("query")
		if err != nil || strings.TrimSpace(query) == "" {
			return mcp.NewToolResultError("query is required"), nil
		}

		topK := 0
		if limitVal, err := req.RequireFloat("limit"); err == nil {
			topK = int(limitVal)
			if topK > 50 {
				topK = 50
			}
		}

		graphID, err := resolveGraphArg(ctx, cfg.Store, req)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("resolving graph: %v", err)), nil
		}

		embedding, err := cfg.Embedder.Embed(ctx, query)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("embedding query: %v", err)), nil
		}

		topics, err := cfg.Searcher.FindSimilarTopics(ctx, cfg.Store, graphID, embedding, topK, 0)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("search error: %v", err)), nil
		}
		topics, err = cfg.Searcher.ExpandWithNeighbors(ctx, cfg.Store, graphID, topics)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("expanding neighbors: %v", err)), nil
		}
		items, err := cfg.Searcher.FindSimilarItems(ctx, cfg.Store, graphID, embedding, 0, 0)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("item search error: %v", err)), nil
		}

		payload := map[string]interface{}{
			"graph_id": graphID,
			"query":    query,
			"topics":   topics,
			"items":    items,
		}
		data, _ := json.MarshalIndent(payload, "", "  ")
		return mcp.NewToolResultText(string(data)), nil
	})
}

func registerClustersTool(s *server.MCPServer, cfg ServerConfig) {
	tool := mcp.NewTool("skein_clusters",
		mcp.WithDescription("Detect topic communities in the graph. Each cluster carries its centroid topic, member ids, color, and a spanning structure rooted at the centroid."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("graph",
			mcp.Description("Graph id to cluster. Empty = default graph."),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		graphID, err := resolveGraphArg(ctx, cfg.Store, req)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("resolving graph: %v", err)), nil
		}

		clusters, err := cfg.Clusterer.Clusters(ctx, cfg.Store, graphID)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("clustering error: %v", err)), nil
		}
		if clusters == nil {
			clusters = []*cluster.WithEdges{}
		}

		payload := map[string]interface{}{
			"graph_id": graphID,
			"clusters": clusters,
			"count":    len(clusters),
		}
		data, _ := json.MarshalIndent(payload, "", "  ")
		return mcp.NewToolResultText(string(data)), nil
	})
}

func registerGraphTool(s *server.MCPServer, cfg ServerConfig) {
	tool := mcp.NewTool("skein_graph",
		mcp.WithDescription("Export the full graph for visualization: every topic with its 3D position and every typed edge."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("graph",
			mcp.Description("Graph id to export. Empty = default graph."),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		graphID, err := resolveGraphArg(ctx, cfg.Store, req)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("resolving graph: %v", err)), nil
		}

		payload, err := graph.BuildPayload(ctx, cfg.Store, graphID)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("building graph payload: %v", err)), nil
		}
		data, _ := json.MarshalIndent(payload, "", "  ")
		return mcp.NewToolResultText(string(data)), nil
	})
}

func registerStatsTool(s *server.MCPServer, cfg ServerConfig) {
	tool := mcp.NewTool("skein_stats",
		mcp.WithDescription("Database statistics: graph, topic, item, edge, and vector counts plus database size."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		stats, err := cfg.Store.Stats(ctx)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("stats error: %v", err)), nil
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
		return mcp.NewToolResultText(string(data)), nil
	})
}
