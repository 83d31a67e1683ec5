package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jjckrbbt/phoenix/internal/config"
	"github.com/jjckrbbt/phoenix/internal/dispatch"
	"github.com/jjckrbbt/phoenix/internal/elk"
	"github.com/jjckrbbt/phoenix/internal/endpoint"
	"github.com/jjckrbbt/phoenix/internal/metrics"
	"github.com/jjckrbbt/phoenix/internal/rag"
	"github.com/jjckrbbt/phoenix/internal/tools"
)

// app holds the process-wide components. Both front ends share core, and
// through it the one registry.
type app struct {
	core    *dispatch.Dispatcher
	metrics *metrics.Metrics
	indexes *rag.IndexCache
}

func newApp(_ context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	registry := endpoint.NewRegistry()
	if cfg.EndpointsFile != "" {
		records, err := endpoint.LoadFile(cfg.EndpointsFile)
		if err != nil {
			return nil, fmt.Errorf("loading endpoint seed file: %w", err)
		}
		for _, rec := range records {
			registry.Add(rec)
		}
		logger.Info("Endpoints loaded from seed file", "path", cfg.EndpointsFile, "count", len(records))
	}

	elkClient, err := elk.New(elk.Config{
		BaseURL: cfg.ELKBaseURL,
		Index:   cfg.ELKIndex,
		APIKey:  cfg.ELKAPIKey,
	}, logger)
	if err != nil {
		return nil, err
	}

	m := metrics.New(registry.Len)
	indexes := rag.NewIndexCache(cfg.IndexCacheTTL, logger)

	core := dispatch.New(registry,
		dispatch.WithAnswerer(endpoint.KindRAG, rag.NewEngine(indexes, logger)),
		dispatch.WithTools(tools.NewRunner(logger)),
		dispatch.WithLogSearcher(elkClient),
		dispatch.WithTimeouts(dispatch.Timeouts{
			RAG:       cfg.RAGTimeout,
			Tool:      cfg.ToolTimeout,
			LogSearch: cfg.ELKTimeout,
		}),
		dispatch.WithRecorder(m),
		dispatch.WithLogger(logger),
	)

	return &app{core: core, metrics: m, indexes: indexes}, nil
}

// Close releases index connections.
func (a *app) Close() {
	a.indexes.Close()
}
