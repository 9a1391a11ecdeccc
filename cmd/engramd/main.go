// cmd/engramd runs the Engram memory engine as a long-lived process: it
// opens the persisted stores, starts background consolidation and periodic
// conversation summarization, watches for backup-restore events, and
// guarantees a full flush before exit.
//
// The hosting agent embeds the engine packages directly; engramd exists for
// deployments where memory maintenance runs beside the agent rather than
// inside it.
//
// Startup sequence:
//  1. Load configuration (YAML file, then ENGRAM_ env overrides).
//  2. Open the graph, vector, skill, and history stores.
//  3. Wire the memory engine with the Ollama client.
//  4. Start the consolidator and the restore watcher.
//  5. Wait for SIGINT/SIGTERM; quiesce, flush all stores, exit.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/halcyon-agents/engram/internal/config"
	"github.com/halcyon-agents/engram/internal/consolidate"
	"github.com/halcyon-agents/engram/internal/engine"
	"github.com/halcyon-agents/engram/internal/evidence"
	"github.com/halcyon-agents/engram/internal/graph"
	"github.com/halcyon-agents/engram/internal/llm"
	"github.com/halcyon-agents/engram/internal/notify"
	"github.com/halcyon-agents/engram/internal/situation"
	"github.com/halcyon-agents/engram/internal/skills"
	"github.com/halcyon-agents/engram/internal/storage"
	"github.com/halcyon-agents/engram/internal/vector"
	"github.com/halcyon-agents/engram/internal/vector/pgvector"
)

func main() {
	log.SetOutput(os.Stderr)
	log.SetPrefix("engramd: ")

	configPath := flag.String("config", "engram.yaml", "path to the optional YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	dataPath := cfg.Storage.DataPath
	if err := os.MkdirAll(dataPath, 0o700); err != nil {
		log.Fatalf("failed to create data directory: %v", err)
	}

	llmClient := llm.NewOllamaClient(llm.OllamaConfig{
		BaseURL:           cfg.LLM.OllamaURL,
		Model:             cfg.LLM.Model,
		EmbeddingModel:    cfg.LLM.EmbeddingModel,
		Timeout:           time.Duration(cfg.LLM.TimeoutSeconds) * time.Second,
		RequestsPerSecond: cfg.LLM.RequestsPerSecond,
	})
	embedder, err := llm.NewCachedEmbedder(llmClient, cfg.LLM.EmbedCacheSize)
	if err != nil {
		log.Fatalf("failed to create embedding cache: %v", err)
	}

	graphDoc, err := storage.NewDocument(filepath.Join(dataPath, "graph.json"))
	if err != nil {
		log.Fatalf("failed to open graph document: %v", err)
	}
	scorer := evidence.NewScorer(
		time.Duration(cfg.Evidence.HalfLifeDays)*24*time.Hour,
		cfg.Evidence.Saturation,
		cfg.Evidence.WeightSaturation,
	)
	g, err := graph.Open(graphDoc, graph.WithScorer(scorer))
	if err != nil {
		log.Fatalf("failed to open knowledge graph: %v", err)
	}

	vectors, err := openVectorStore(cfg, dataPath, embedder)
	if err != nil {
		log.Fatalf("failed to open vector store: %v", err)
	}
	defer vectors.Close()

	skillDoc, err := storage.NewDocument(filepath.Join(dataPath, "skills.json"))
	if err != nil {
		log.Fatalf("failed to open skills document: %v", err)
	}
	skillStore, err := skills.Open(skillDoc)
	if err != nil {
		log.Fatalf("failed to open skill store: %v", err)
	}

	history, err := storage.NewHistoryStore(filepath.Join(dataPath, "history.db"))
	if err != nil {
		log.Fatalf("failed to open history store: %v", err)
	}
	defer history.Close()

	eng, err := engine.New(engine.Options{
		OwnerName:           cfg.Engine.OwnerName,
		RecentWindowSize:    cfg.Engine.RecentWindowSize,
		RelevantMemoryLimit: cfg.Engine.RelevantMemoryLimit,
		ContextBudget:       cfg.Engine.ContextBudget,
	}, g, vectors, skillStore, history, situation.NewClassifier(), llmClient, embedder)
	if err != nil {
		log.Fatalf("failed to create engine: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	consolidator := consolidate.New(g, consolidate.Config{
		MutationThreshold: cfg.Consolidation.MutationThreshold,
		Interval:          time.Duration(cfg.Consolidation.IntervalMinutes) * time.Minute,
		Policy: graph.ConsolidationPolicy{
			ReinforceAt: cfg.Consolidation.ReinforceAt,
			EstablishAt: cfg.Consolidation.EstablishAt,
			StaleAfter:  time.Duration(cfg.Consolidation.StaleAfterDays) * 24 * time.Hour,
		},
	})
	consolidator.Start(ctx)

	watcher := notify.NewRestoreWatcher(dataPath, func(store string) {
		var err error
		switch store {
		case "graph":
			err = g.Reload()
		case "skills":
			err = skillStore.Reload()
		case "vector":
			ds, ok := vectors.(*vector.DocumentStore)
			if !ok {
				log.Printf("vector store restored, but the %s backend does not reload in place", cfg.Vector.Backend)
				return
			}
			err = ds.Reload()
		default:
			log.Printf("ignoring restore marker for unknown store %q", store)
			return
		}
		if err != nil {
			log.Printf("failed to reload store %q after restore: %v", store, err)
			return
		}
		log.Printf("store %q reloaded from restored document", store)
	})
	if err := watcher.Start(); err != nil {
		log.Printf("restore watcher unavailable: %v", err)
		watcher = nil
	}

	go summarizeLoop(ctx, eng)

	log.Printf("ready (data=%s, owner=%s, backend=%s)", dataPath, cfg.Engine.OwnerName, cfg.Vector.Backend)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Printf("shutting down")
	cancel()
	<-consolidator.Done()
	if watcher != nil {
		watcher.Stop()
	}
	if err := eng.Flush(); err != nil {
		log.Printf("flush failed: %v", err)
		os.Exit(1)
	}
	log.Printf("all stores flushed")
}

// openVectorStore selects the recall backend from configuration.
func openVectorStore(cfg *config.Config, dataPath string, embedder vector.Embedder) (vector.Store, error) {
	if cfg.Vector.Backend == "pgvector" {
		return pgvector.Open(cfg.Vector.PostgresDSN, cfg.Vector.EmbeddingDim, embedder)
	}
	doc, err := storage.NewDocument(filepath.Join(dataPath, "vector.json"))
	if err != nil {
		return nil, err
	}
	return vector.Open(doc, embedder)
}

// summarizeLoop periodically drains conversation turns older than a day
// into the vector store.
func summarizeLoop(ctx context.Context, eng *engine.Engine) {
	ticker := time.NewTicker(6 * time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-24 * time.Hour)
			if err := eng.SummarizeHistory(ctx, cutoff, 200); err != nil {
				log.Printf("history summarization skipped: %v", err)
			}
		}
	}
}
