package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/scrypster/mnemo/internal/association"
	"github.com/scrypster/mnemo/internal/config"
	"github.com/scrypster/mnemo/internal/consolidation"
	"github.com/scrypster/mnemo/internal/llm"
	"github.com/scrypster/mnemo/internal/memory"
	"github.com/scrypster/mnemo/internal/quality"
	"github.com/scrypster/mnemo/internal/storage"
	"github.com/scrypster/mnemo/internal/storage/postgres"
	"github.com/scrypster/mnemo/internal/storage/sqlite"
)

func main() {
	// Optional .env file for local development.
	if err := godotenv.Load(); err == nil {
		log.Println("mnemod: loaded .env")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("mnemod: load config: %v", err)
	}

	store, err := openStore(cfg)
	if err != nil {
		log.Fatalf("mnemod: open storage: %v", err)
	}
	defer store.Close()

	embedder, err := llm.NewEmbeddingGenerator(embeddingProvider(cfg))
	if err != nil {
		log.Fatalf("mnemod: embedding provider: %v", err)
	}
	evaluator, err := llm.NewTextGenerator(textProvider(cfg))
	if err != nil {
		log.Fatalf("mnemod: text provider: %v", err)
	}

	scorer := memory.NewRelevanceScorer(memory.Weights{
		Vector:      cfg.Retrieval.VectorWeight,
		Temporal:    cfg.Retrieval.TemporalWeight,
		Access:      cfg.Retrieval.AccessWeight,
		Association: cfg.Retrieval.AssociationWeight,
	})
	engine := memory.NewEngine(store, embedder, scorer, nil, memory.Options{
		CandidatePool: cfg.Retrieval.CandidatePool,
		TopK:          cfg.Retrieval.TopK,
	})
	weights := engine.Scorer().Weights()
	log.Printf("mnemod: retrieval weights vector=%.2f temporal=%.2f access=%.2f association=%.2f",
		weights.Vector, weights.Temporal, weights.Access, weights.Association)

	graph := association.NewEngine(store, associationConfig(cfg))

	consolidator := consolidation.New(store, graph, consolidationConfig(cfg))
	scheduler := consolidation.NewScheduler(consolidator, cfg.Consolidation.Interval)

	pipeline, err := quality.NewPipeline(store, evaluator, quality.Config{
		BatchSize:     cfg.Quality.BatchSize,
		EvaluatorRate: cfg.Quality.EvaluatorRate,
		CacheSize:     cfg.Quality.CacheSize,
		HumanWeight:   cfg.Quality.HumanWeight,
	})
	if err != nil {
		log.Fatalf("mnemod: quality pipeline: %v", err)
	}
	qualityService := quality.NewService(pipeline, store, quality.ServiceConfig{
		Interval:     cfg.Quality.Interval,
		StartupDelay: cfg.Quality.StartupDelay,
		ErrorBackoff: cfg.Quality.ErrorBackoff,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	scheduler.Start(ctx)
	qualityService.Start(ctx)
	log.Printf("mnemod: running, storage=%s evaluator=%s embedder=%s",
		cfg.Storage.Engine, evaluator.GetModel(), embedder.GetModel())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Println("mnemod: shutting down")
	qualityService.Stop()
	scheduler.Stop()
	cancel()
}

func openStore(cfg *config.Config) (storage.Store, error) {
	switch cfg.Storage.Engine {
	case "postgres":
		return postgres.New(cfg.Storage.PostgresDSN)
	default:
		return sqlite.New(cfg.Storage.SQLitePath)
	}
}

func textProvider(cfg *config.Config) llm.ProviderConfig {
	if cfg.LLM.Provider == "openai" {
		return llm.ProviderConfig{
			Provider: "openai",
			APIKey:   cfg.LLM.OpenAIAPIKey,
			Model:    cfg.LLM.OpenAIModel,
		}
	}
	return llm.ProviderConfig{
		Provider: "ollama",
		Model:    cfg.LLM.OllamaModel,
		BaseURL:  cfg.LLM.OllamaURL,
	}
}

func embeddingProvider(cfg *config.Config) llm.ProviderConfig {
	if cfg.LLM.Provider == "openai" {
		return llm.ProviderConfig{
			Provider: "openai",
			APIKey:   cfg.LLM.OpenAIAPIKey,
			Model:    cfg.LLM.EmbeddingModel,
		}
	}
	return llm.ProviderConfig{
		Provider: "ollama",
		Model:    cfg.LLM.EmbeddingModel,
		BaseURL:  cfg.LLM.OllamaURL,
	}
}

func associationConfig(cfg *config.Config) association.Config {
	return association.Config{
		DecayRate:         cfg.Association.DecayRate,
		WeakFloor:         cfg.Association.WeakFloor,
		AutoLinkThreshold: cfg.Association.AutoLinkThreshold,
		CoAccessWindow:    cfg.Association.CoAccessWindow(),
		CoAccessInitial:   cfg.Association.CoAccessInitial,
		CoAccessIncrement: cfg.Association.CoAccessIncrement,
		MaxHops:           cfg.Association.MaxHops,
		MinPathStrength:   cfg.Association.MinPathStrength,
		MinHopStrength:    cfg.Association.MinHopStrength,
		ClusterThreshold:  cfg.Association.ClusterThreshold,
		ClusterMinSize:    cfg.Association.ClusterMinSize,
		OptimizeThreshold: cfg.Association.OptimizeThreshold,
	}
}

func consolidationConfig(cfg *config.Config) consolidation.Config {
	return consolidation.Config{
		Interval:            cfg.Consolidation.Interval,
		BatchSize:           cfg.Consolidation.BatchSize,
		StrengthenThreshold: cfg.Consolidation.StrengthenThreshold,
		PruneAge:            cfg.Consolidation.PruneAge,
		PruneMaxAccess:      cfg.Consolidation.PruneMaxAccess,
		PruneMaxConfidence:  cfg.Consolidation.PruneMaxConfidence,
	}
}
