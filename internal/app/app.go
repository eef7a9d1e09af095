// Package app assembles the ingestion and query components from an AppConfig.
package app

import (
	"context"
	"fmt"
	"time"

	"wikirag/internal/config"
	"wikirag/internal/convert"
	"wikirag/internal/domain"
	embopenai "wikirag/internal/embedding/openai"
	genopenai "wikirag/internal/generation/openai"
	"wikirag/internal/ingest"
	"wikirag/internal/logger"
	"wikirag/internal/manifest"
	"wikirag/internal/regroup"
	"wikirag/internal/router"
	"wikirag/internal/service"
	"wikirag/internal/vectorstore/memory"
	"wikirag/internal/vectorstore/qdrant"
)

// App holds the wired components of one process.
type App struct {
	Config     *config.AppConfig
	Router     *router.Router
	Store      domain.FingerprintStore
	Embedder   domain.Embedder
	Index      domain.VectorIndex
	Controller *ingest.Controller
	Query      *service.QueryService
}

// Build constructs every component. The caller owns the returned App and
// must Close it.
func Build(cfg *config.AppConfig) (*App, error) {
	emb, err := newEmbedder(cfg.Embedder)
	if err != nil {
		return nil, err
	}
	idx, err := newIndex(cfg.VectorStore)
	if err != nil {
		return nil, err
	}
	conv, err := newConverter(cfg.Converter)
	if err != nil {
		return nil, err
	}
	store, err := manifest.Open(cfg.Manifest.Driver, cfg.Manifest.Path)
	if err != nil {
		return nil, err
	}

	rt := router.FromConfig(cfg.Routing)
	legacy := cfg.Converter.Legacy
	ctrl := ingest.NewController(ingest.Deps{
		Router:       rt,
		Store:        store,
		Converter:    conv,
		PreConverter: convert.NewOffice(legacy.Command, seconds(legacy.TimeoutSecs)),
		Embedder:     emb,
		Index:        idx,
	}, ingest.Options{Bounds: regroup.Bounds{
		MinWords: cfg.Regroup.MinWords,
		MaxWords: cfg.Regroup.MaxWords,
		Slack:    cfg.Regroup.SlackWords(),
	}})

	gen := genopenai.NewClient(genopenai.Config{
		BaseURL:   cfg.Generator.BaseURL,
		APIKeyEnv: cfg.Generator.APIKeyEnv,
		Model:     cfg.Generator.Model,
		Timeout:   seconds(cfg.Generator.TimeoutSecs),
	})
	q := cfg.Query
	qs := service.NewQueryService(emb, idx, gen, service.Options{
		Collection:     q.Collection,
		TopK:           q.TopK,
		SystemPrompt:   q.SystemPrompt,
		NoResultAnswer: q.NoResultAnswer,
		Refusal:        q.Refusal,
		Temperature:    cfg.Generator.SamplingTemperature(),
		MaxTokens:      cfg.Generator.MaxTokens,
	})

	return &App{
		Config:     cfg,
		Router:     rt,
		Store:      store,
		Embedder:   emb,
		Index:      idx,
		Controller: ctrl,
		Query:      qs,
	}, nil
}

// Bootstrap creates every routed collection, sized from the embedder.
func (a *App) Bootstrap(ctx context.Context) error {
	dim, err := a.Embedder.Dimension(ctx)
	if err != nil {
		return err
	}
	for _, name := range a.Router.Collections() {
		if err := a.Index.EnsureCollection(ctx, name, dim); err != nil {
			return err
		}
	}
	logger.L().Info("collections ready", "embedder", a.Embedder.Name(), "dimension", dim, "collections", a.Router.Collections())
	return nil
}

// Source is the document tree described by the configuration.
func (a *App) Source() ingest.Source {
	s := a.Config.Source
	return ingest.Source{Root: s.Root, Extensions: s.Extensions, IgnorePrefixes: s.IgnorePrefixes}
}

// Close releases the fingerprint store.
func (a *App) Close() error { return a.Store.Close() }

func newEmbedder(cfg config.EmbedderConfig) (domain.Embedder, error) {
	switch cfg.Type {
	case "openai", "":
		if cfg.OpenAI == nil {
			return nil, fmt.Errorf("%w: openai embedder config missing", domain.ErrInvalidConfig)
		}
		o := cfg.OpenAI
		return embopenai.NewClient(embopenai.Config{
			BaseURL:           o.BaseURL,
			APIKeyEnv:         o.APIKeyEnv,
			Model:             o.Model,
			Timeout:           seconds(o.TimeoutSecs),
			BatchSize:         o.BatchSize,
			RequestsPerSecond: o.RequestsPerSecond,
			TaskMode:          o.TaskMode,
			Dimensions:        o.Dimensions,
		})
	default:
		return nil, fmt.Errorf("%w: unknown embedder %q", domain.ErrInvalidConfig, cfg.Type)
	}
}

func newIndex(cfg config.VectorStoreConfig) (domain.VectorIndex, error) {
	switch cfg.Type {
	case "memory":
		return memory.NewStorage(), nil
	case "qdrant", "":
		if cfg.Qdrant == nil {
			return nil, fmt.Errorf("%w: qdrant config missing", domain.ErrInvalidConfig)
		}
		return qdrant.NewStorage(qdrant.Config{
			URL:             cfg.Qdrant.URL,
			APIKey:          cfg.Qdrant.APIKey,
			Timeout:         seconds(cfg.Qdrant.TimeoutSecs),
			UpsertBatchSize: cfg.Qdrant.UpsertBatchSize,
		}), nil
	default:
		return nil, fmt.Errorf("%w: unknown vector store %q", domain.ErrInvalidConfig, cfg.Type)
	}
}

func newConverter(cfg config.ConverterConfig) (domain.Converter, error) {
	local := convert.NewLocal(cfg.MaxTokens)
	var remote domain.Converter
	if cfg.Remote != nil && cfg.Remote.URL != "" {
		remote = convert.NewRemote(convert.RemoteConfig{
			URL:       cfg.Remote.URL,
			MaxTokens: cfg.MaxTokens,
			Timeout:   seconds(cfg.Remote.TimeoutSecs),
		})
	}
	switch cfg.Type {
	case "local", "":
		return convert.NewMulti(local, remote, false), nil
	case "remote":
		if remote == nil {
			return nil, fmt.Errorf("%w: remote converter needs converter.remote.url", domain.ErrInvalidConfig)
		}
		return convert.NewMulti(local, remote, true), nil
	default:
		return nil, fmt.Errorf("%w: unknown converter %q", domain.ErrInvalidConfig, cfg.Type)
	}
}

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }
