package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/rand/memento/internal/agent"
	"github.com/rand/memento/internal/batch"
	"github.com/rand/memento/internal/dispatch"
	"github.com/rand/memento/internal/judge"
	"github.com/rand/memento/internal/llm"
	"github.com/rand/memento/internal/memory/casebank"
	"github.com/rand/memento/internal/memory/embeddings"
	"github.com/rand/memento/internal/memory/retrieval"
	"github.com/rand/memento/internal/trace"
)

const embeddingCacheSize = 4096

// app holds the wired agent and everything that needs shutting down.
type app struct {
	orchestrator *agent.Orchestrator
	judge        *judge.Judge
	store        *casebank.Store
	servers      []*dispatch.StdioServer
	traceStore   *trace.Store
}

// setupApp connects tool servers, loads memory and builds the agent.
func setupApp(ctx context.Context) (*app, error) {
	store, err := casebank.NewStore(cfg.Memory.Dir)
	if err != nil {
		return nil, fmt.Errorf("open case bank: %w", err)
	}

	servers, err := dispatch.ConnectAll(ctx, cfg.Tools)
	if err != nil {
		return nil, fmt.Errorf("connect tool servers: %w", err)
	}

	a := &app{store: store, servers: servers}

	dispatcher := dispatch.NewDispatcher()
	for _, srv := range servers {
		if err := dispatcher.Register(ctx, srv); err != nil {
			a.Shutdown()
			return nil, fmt.Errorf("register tool server: %w", err)
		}
	}

	memory, err := buildMemorySource(store, cfg.Memory.TopK)
	if err != nil {
		a.Shutdown()
		return nil, err
	}

	var recorder agent.Recorder
	if cfg.Trace.Path != "" {
		ts, err := trace.Open(cfg.Trace.Path)
		if err != nil {
			a.Shutdown()
			return nil, fmt.Errorf("open trace store: %w", err)
		}
		a.traceStore = ts
		recorder = ts
	}

	meta := llm.NewOpenAIBackend(cfg.Meta, cfg.Retry)
	exec := llm.NewOpenAIBackend(cfg.Exec, cfg.Retry)

	a.orchestrator = agent.New(meta, exec, dispatcher, memory, recorder, llm.EstimatorForModel(cfg.Exec.Model), agent.Options{
		MaxCycles:            cfg.Agent.MaxCycles,
		MaxContextTokens:     cfg.Agent.MaxContextTokens,
		MaxToolRounds:        cfg.Agent.MaxToolRounds,
		MetaCompletionTokens: cfg.Meta.MaxCompletionTokens,
		ExecCompletionTokens: cfg.Exec.MaxCompletionTokens,
		MaxPositive:          cfg.Memory.MaxPositive,
		MaxNegative:          cfg.Memory.MaxNegative,
	})
	a.judge = judge.New(llm.NewOpenAIBackend(cfg.Judge, cfg.Retry))
	return a, nil
}

// buildMemorySource wires learned retrieval. Without a head checkpoint
// the agent runs memoryless.
func buildMemorySource(store *casebank.Store, topK int) (agent.CaseSource, error) {
	if cfg.Memory.HeadPath == "" {
		slog.Info("no relevance head configured, running without case memory")
		return nil, nil
	}

	head, err := retrieval.LoadHead(cfg.Memory.HeadPath)
	if err != nil {
		return nil, fmt.Errorf("load relevance head: %w", err)
	}

	provider, err := buildProvider()
	if err != nil {
		return nil, err
	}

	retriever := retrieval.NewRetriever(provider, head)
	return batch.NewMemorySource(store, retriever, topK), nil
}

func buildProvider() (embeddings.Provider, error) {
	var provider embeddings.Provider
	switch cfg.Memory.Embeddings {
	case "voyage":
		p, err := embeddings.NewVoyageProvider(embeddings.VoyageConfig{})
		if err != nil {
			return nil, fmt.Errorf("voyage embeddings: %w", err)
		}
		provider = p
	default:
		provider = embeddings.NewLocalProvider(embeddings.LocalConfig{BaseURL: cfg.Memory.EmbeddingsURL})
	}
	return embeddings.NewCachedProvider(provider, embeddingCacheSize), nil
}

func (a *app) Shutdown() {
	for _, srv := range a.servers {
		if err := srv.Close(); err != nil {
			slog.Warn("tool server close failed", "server", srv.Name(), "error", err)
		}
	}
	if a.traceStore != nil {
		if err := a.traceStore.Close(); err != nil {
			slog.Warn("trace store close failed", "error", err)
		}
	}
}
