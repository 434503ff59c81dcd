package main

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/skeinlabs/skein/internal/cluster"
	"github.com/skeinlabs/skein/internal/config"
	"github.com/skeinlabs/skein/internal/embed"
	"github.com/skeinlabs/skein/internal/link"
	"github.com/skeinlabs/skein/internal/llm"
	"github.com/skeinlabs/skein/internal/logging"
	"github.com/skeinlabs/skein/internal/project"
	"github.com/skeinlabs/skein/internal/resolve"
	"github.com/skeinlabs/skein/internal/search"
	"github.com/skeinlabs/skein/internal/store"
)

// cliFlags are the global flags shared by every command.
type cliFlags struct {
	db       string
	config   string
	graph    string
	embed    string
	llm      string
	logLevel string
	port     int
	rest     []string
}

// parseFlags splits global flags from positional arguments. Commands
// read their positionals from rest.
func parseFlags(args []string) (cliFlags, error) {
	f := cliFlags{port: 7466}

	takeValue := func(i int, name string) (string, error) {
		if i+1 >= len(args) {
			return "", fmt.Errorf("flag %s requires a value", name)
		}
		return args[i+1], nil
	}

	for i := 0; i < len(args); i++ {
		arg := args[i]
		var err error
		switch arg {
		case "--db":
			f.db, err = takeValue(i, arg)
			i++
		case "--config":
			f.config, err = takeValue(i, arg)
			i++
		case "--graph":
			f.graph, err = takeValue(i, arg)
			i++
		case "--embed":
			f.embed, err = takeValue(i, arg)
			i++
		case "--llm":
			f.llm, err = takeValue(i, arg)
			i++
		case "--log-level":
			f.logLevel, err = takeValue(i, arg)
			i++
		case "--port":
			var v string
			v, err = takeValue(i, arg)
			if err == nil {
				if _, perr := fmt.Sscanf(v, "%d", &f.port); perr != nil {
					err = fmt.Errorf("invalid port %q", v)
				}
			}
			i++
		default:
			if strings.HasPrefix(arg, "-") {
				return f, fmt.Errorf("unknown flag: %s", arg)
			}
			f.rest = append(f.rest, arg)
		}
		if err != nil {
			return f, err
		}
	}
	return f, nil
}

// app bundles the resolved config, open store, and shared collaborators.
type app struct {
	flags  cliFlags
	cfg    config.ResolvedConfig
	store  *store.SQLiteStore
	logger *zap.Logger
}

func newApp(args []string) (*app, error) {
	flags, err := parseFlags(args)
	if err != nil {
		return nil, err
	}

	cfg, err := config.ResolveConfig(config.ResolveOptions{
		ConfigPath: flags.config,
		CLILLM:     flags.llm,
		CLIEmbed:   flags.embed,
		CLIDBPath:  flags.db,
	})
	if err != nil {
		return nil, err
	}

	logger, err := logging.New("dev", flags.logLevel)
	if err != nil {
		return nil, err
	}

	s, err := store.NewStore(store.StoreConfig{DBPath: cfg.DBPath.Value})
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	return &app{flags: flags, cfg: cfg, store: s, logger: logger}, nil
}

func (a *app) close() {
	a.store.Close()
	_ = a.logger.Sync()
}

// graphID resolves the --graph flag, defaulting to the default graph.
func (a *app) graphID(ctx context.Context) (string, error) {
	if a.flags.graph != "" {
		g, err := a.store.GetGraph(ctx, a.flags.graph)
		if err != nil {
			return "", err
		}
		if g == nil {
			return "", fmt.Errorf("graph %q not found", a.flags.graph)
		}
		return g.ID, nil
	}
	g, err := a.store.DefaultGraph(ctx)
	if err != nil {
		return "", err
	}
	return g.ID, nil
}

// embedder builds the embedding client, or errors when none is
// configured.
func (a *app) embedder() (embed.Embedder, error) {
	cfg, err := embed.ResolveEmbedConfig(a.cfg.EmbedProvider.Value)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, fmt.Errorf("no embedding provider configured (set --embed or SKEIN_EMBED, e.g. ollama/nomic-embed-text)")
	}
	if a.cfg.EmbedAPIKey.Value != "" {
		cfg.APIKey = a.cfg.EmbedAPIKey.Value
	}
	if a.cfg.EmbedEndpoint.Value != "" {
		cfg.Endpoint = a.cfg.EmbedEndpoint.Value
	}
	return embed.NewClient(cfg)
}

// classifier builds the relationship classifier: the configured LLM when
// one resolves, else the similarity-threshold fallback.
func (a *app) classifier() link.Classifier {
	model := a.cfg.EffectiveClassifyModel("")
	if strings.TrimSpace(model.Value) == "" {
		a.logger.Info("no classifier model configured, using similarity fallback")
		return link.ThresholdClassifier{}
	}

	llmCfg, err := llm.ParseModelFlag(model.Value)
	if err != nil {
		a.logger.Warn("invalid classifier model, using similarity fallback",
			zap.String("model", model.Value), zap.Error(err))
		return link.ThresholdClassifier{}
	}
	if key := a.cfg.APIKeyForProvider(model.Value); key.Value != "" {
		llmCfg.APIKey = key.Value
	}

	provider, err := llm.NewProvider(llmCfg)
	if err != nil {
		a.logger.Warn("classifier provider unavailable, using similarity fallback",
			zap.String("model", model.Value), zap.Error(err))
		return link.ThresholdClassifier{}
	}
	return link.NewLLMClassifier(provider)
}

// Engine constructors derived from the resolved tuning.

func (a *app) resolver() *resolve.Resolver {
	return resolve.New(a.cfg.Tuning.TopicMergeThreshold, a.logger)
}

func (a *app) builder() *link.Builder {
	t := a.cfg.Tuning
	return link.New(link.Config{
		CandidateCount:  t.EdgeCandidateCount,
		ClassifyCount:   t.EdgeClassifyCount,
		SimilarityFloor: t.ClassificationFloor,
		HierarchyFloor:  t.HierarchyFloor,
		MaxParents:      t.MaxParentsPerRound,
		MaxChildren:     t.MaxChildrenPerRound,
		MaxSiblings:     t.MaxSiblingsPerRound,
		Caps: store.DegreeCaps{
			MaxParents:  t.MaxParentDegree,
			MaxChildren: t.MaxChildDegree,
			MaxRelated:  t.MaxRelatedDegree,
		},
	}, a.classifier(), a.logger)
}

func (a *app) projector() *project.Projector {
	t := a.cfg.Tuning
	return project.New(project.Config{
		IntermediateDim: t.IntermediateDim,
		NNeighbors:      t.UMAPNeighbors,
		MinDist:         t.UMAPMinDist,
		Spread:          t.UMAPSpread,
		Epochs:          t.UMAPEpochs,
	}, a.logger)
}

func (a *app) clusterer() *cluster.Engine {
	t := a.cfg.Tuning
	return cluster.New(cluster.Config{
		Resolution:     t.ClusterResolution,
		MinClusterSize: t.MinClusterSize,
	}, a.logger)
}

func (a *app) searcher() *search.Engine {
	t := a.cfg.Tuning
	return search.New(search.Config{
		TopicResultCount:    t.TopicResultCount,
		ItemResultCount:     t.ItemResultCount,
		SimilarityThreshold: t.SimilarityThreshold,
		MaxEdgesInResults:   t.MaxEdgesInResults,
	}, a.logger)
}
