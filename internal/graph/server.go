package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/skeinlabs/skein/internal/cluster"
	"github.com/skeinlabs/skein/internal/embed"
	"github.com/skeinlabs/skein/internal/search"
	"github.com/skeinlabs/skein/internal/store"
)

// ServerConfig wires the HTTP surface. The embedder is optional; without
// it /api/search answers 503.
type ServerConfig struct {
	Store     store.Store
	Searcher  *search.Engine
	Clusterer *cluster.Engine
	Embedder  embed.Embedder
	Logger    *zap.Logger
}

// Server exposes the graph read API.
type Server struct {
	store     store.Store
	searcher  *search.Engine
	clusterer *cluster.Engine
	embedder  embed.Embedder
	logger    *zap.Logger
}

// NewServer creates a Server. Nil engines fall back to defaults.
func NewServer(cfg ServerConfig) *Server {
	if cfg.Searcher == nil {
		cfg.Searcher = search.New(search.Config{}, cfg.Logger)
	}
	if cfg.Clusterer == nil {
		cfg.Clusterer = cluster.New(cluster.Config{}, cfg.Logger)
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Server{
		store:     cfg.Store,
		searcher:  cfg.Searcher,
		clusterer: cfg.Clusterer,
		embedder:  cfg.Embedder,
		logger:    cfg.Logger,
	}
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/graph", s.handleGraph)
	mux.HandleFunc("/api/clusters", s.handleClusters)
	mux.HandleFunc("/api/search", s.handleSearch)
	mux.HandleFunc("/api/stats", s.handleStats)
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

// Serve blocks on ListenAndServe.
func (s *Server) Serve(port int) error {
	addr := fmt.Sprintf(":%d", port)
	s.logger.Info("graph server listening", zap.String("addr", addr))
	return http.ListenAndServe(addr, s.Handler())
}

// resolveGraph maps the optional graph query parameter to a graph id,
// defaulting to the default graph.
func (s *Server) resolveGraph(ctx context.Context, r *http.Request) (string, error) {
	if id := strings.TrimSpace(r.URL.Query().Get("graph")); id != "" {
		g, err := s.store.GetGraph(ctx, id)
		if err != nil {
			return "", err
		}
		if g == nil {
			return "", fmt.Errorf("graph %q not found", id)
		}
		return g.ID, nil
	}
	g, err := s.store.DefaultGraph(ctx)
	if err != nil {
		return "", err
	}
	return g.ID, nil
}

func (s *Server) handleGraph(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	graphID, err := s.resolveGraph(ctx, r)
	if err != nil {
		writeJSON(w, 400, map[string]string{"error": err.Error()})
		return
	}

	payload, err := BuildPayload(ctx, s.store, graphID)
	if err != nil {
		s.logger.Error("building graph payload", zap.Error(err))
		writeJSON(w, 500, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, 200, payload)
}

func (s *Server) handleClusters(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	graphID, err := s.resolveGraph(ctx, r)
	if err != nil {
		writeJSON(w, 400, map[string]string{"error": err.Error()})
		return
	}

	clusters, err := s.clusterer.Clusters(ctx, s.store, graphID)
	if err != nil {
		s.logger.Error("clustering graph", zap.Error(err))
		writeJSON(w, 500, map[string]string{"error": err.Error()})
		return
	}
	if clusters == nil {
		clusters = []*cluster.WithEdges{}
	}
	writeJSON(w, 200, map[string]interface{}{
		"graph_id": graphID,
		"clusters": clusters,
		"count":    len(clusters),
	})
}

// SearchResponse bundles ranked topics, items, and the edges connecting
// highlighted topics.
type SearchResponse struct {
	GraphID string               `json:"graph_id"`
	Query   string               `json:"query"`
	Topics  []search.TopicResult `json:"topics"`
	Items   []search.ItemResult  `json:"items"`
	Edges   []EdgeView           `json:"edges"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if s.embedder == nil {
		writeJSON(w, 503, map[string]string{"error": "search requires an embedding provider"})
		return
	}

	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		writeJSON(w, 400, map[string]string{"error": "q parameter required"})
		return
	}
	graphID, err := s.resolveGraph(ctx, r)
	if err != nil {
		writeJSON(w, 400, map[string]string{"error": err.Error()})
		return
	}

	topK := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			topK = n
		}
	}

	embedding, err := s.embedder.Embed(ctx, query)
	if err != nil {
		s.logger.Error("embedding query", zap.Error(err))
		writeJSON(w, 502, map[string]string{"error": fmt.Sprintf("embedding query: %v", err)})
		return
	}

	topics, err := s.searcher.FindSimilarTopics(ctx, s.store, graphID, embedding, topK, 0)
	if err != nil {
		writeJSON(w, 500, map[string]string{"error": err.Error()})
		return
	}
	topics, err = s.searcher.ExpandWithNeighbors(ctx, s.store, graphID, topics)
	if err != nil {
		writeJSON(w, 500, map[string]string{"error": err.Error()})
		return
	}
	items, err := s.searcher.FindSimilarItems(ctx, s.store, graphID, embedding, topK, 0)
	if err != nil {
		writeJSON(w, 500, map[string]string{"error": err.Error()})
		return
	}

	highlighted := make(map[string]bool, len(topics))
	for _, t := range topics {
		highlighted[t.Topic.ID] = true
	}
	edges, err := s.collectEdges(ctx, graphID, topics)
	if err != nil {
		writeJSON(w, 500, map[string]string{"error": err.Error()})
		return
	}
	relevant := s.searcher.FilterRelevantEdges(edges, highlighted, 0)

	resp := SearchResponse{
		GraphID: graphID,
		Query:   query,
		Topics:  topics,
		Items:   items,
		Edges:   make([]EdgeView, 0, len(relevant)),
	}
	for _, e := range relevant {
		resp.Edges = append(resp.Edges, edgeView(e))
	}
	writeJSON(w, 200, resp)
}

// collectEdges gathers the edges touching each highlighted topic,
// deduplicated by edge id.
func (s *Server) collectEdges(ctx context.Context, graphID string, topics []search.TopicResult) ([]*store.TopicEdge, error) {
	seen := map[string]bool{}
	var edges []*store.TopicEdge
	for _, t := range topics {
		incident, err := s.store.EdgesForTopic(ctx, graphID, t.Topic.ID)
		if err != nil {
			return nil, fmt.Errorf("listing edges for topic %q: %w", t.Topic.Label, err)
		}
		for _, e := range incident {
			if seen[e.ID] {
				continue
			}
			seen[e.ID] = true
			edges = append(edges, e)
		}
	}
	return edges, nil
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.Stats(r.Context())
	if err != nil {
		writeJSON(w, 500, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, 200, map[string]interface{}{
		"graphs":        stats.GraphCount,
		"topics":        stats.TopicCount,
		"items":         stats.ItemCount,
		"edges":         stats.EdgeCount,
		"vectors":       stats.VectorCount,
		"db_size_bytes": stats.DBSizeBytes,
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
