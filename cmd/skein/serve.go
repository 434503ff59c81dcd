package main

import (
	"fmt"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/skeinlabs/skein/internal/graph"
	"github.com/skeinlabs/skein/internal/mcp"
)

func runServe(args []string) error {
	a, err := newApp(args)
	if err != nil {
		return err
	}
	defer a.close()

	// Search stays available without an embedder; the endpoint answers
	// 503 instead.
	embedder, err := a.embedder()
	if err != nil {
		a.logger.Info("no embedder configured, /api/search disabled")
		embedder = nil
	}

	srv := graph.NewServer(graph.ServerConfig{
		Store:     a.store,
		Searcher:  a.searcher(),
		Clusterer: a.clusterer(),
		Embedder:  embedder,
		Logger:    a.logger,
	})
	fmt.Printf("serving graph API on http://localhost:%d\n", a.flags.port)
	return srv.Serve(a.flags.port)
}

func runMCP(args []string) error {
	a, err := newApp(args)
	if err != nil {
		return err
	}
	defer a.close()

	embedder, err := a.embedder()
	if err != nil {
		a.logger.Info("no embedder configured, skein_search disabled")
		embedder = nil
	}

	srv := mcp.NewServer(mcp.ServerConfig{
		Store:     a.store,
		Searcher:  a.searcher(),
		Clusterer: a.clusterer(),
		Embedder:  embedder,
		Version:   version,
	})
	if err := mcpserver.ServeStdio(srv); err != nil {
		return fmt.Errorf("mcp server: %w", err)
	}
	return nil
}
