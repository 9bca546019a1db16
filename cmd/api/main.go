// Package main implements the Gridwatch research API server.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/GridwatchAI/gridwatch-mvp/engine/chunk"
	"github.com/GridwatchAI/gridwatch-mvp/engine/index"
	"github.com/GridwatchAI/gridwatch-mvp/engine/rank"
	"github.com/GridwatchAI/gridwatch-mvp/engine/relations"
	"github.com/GridwatchAI/gridwatch-mvp/engine/retrieval"
	"github.com/GridwatchAI/gridwatch-mvp/pkg/artifact"
	"github.com/GridwatchAI/gridwatch-mvp/pkg/bedrock"
	"github.com/GridwatchAI/gridwatch-mvp/pkg/metrics"
	"github.com/GridwatchAI/gridwatch-mvp/pkg/mid"
)

// Config holds all environment-based configuration.
type Config struct {
	Port           string
	DataDir        string
	EmbedDim       int
	EmbedModel     string
	EmbedRPS       float64
	ArtifactBucket string
	ArtifactPrefix string
	Neo4jURL       string
	Neo4jUser      string
	Neo4jPass      string
	CORSOrigin     string
}

func loadConfig() Config {
	return Config{
		Port:           envOr("PORT", "8080"),
		DataDir:        envOr("DATA_DIR", "./artifacts"),
		EmbedDim:       envIntOr("EMBED_DIM", index.DefaultDimension),
		EmbedModel:     envOr("EMBED_MODEL", bedrock.DefaultModelID),
		EmbedRPS:       envFloatOr("EMBED_RPS", 10),
		ArtifactBucket: os.Getenv("ARTIFACT_BUCKET"),
		ArtifactPrefix: envOr("ARTIFACT_PREFIX", "artifacts/"),
		Neo4jURL:       envOr("NEO4J_URL", "neo4j://localhost:7687"),
		Neo4jUser:      envOr("NEO4J_USER", "neo4j"),
		Neo4jPass:      envOr("NEO4J_PASS", "password"),
		CORSOrigin:     envOr("CORS_ORIGIN", "*"),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg := loadConfig()

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- AWS clients (Bedrock embeddings, S3 artifacts) ---
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return fmt.Errorf("aws config: %w", err)
	}
	embedder := bedrock.NewEmbedClient(bedrockruntime.NewFromConfig(awsCfg), bedrock.Options{
		ModelID:    cfg.EmbedModel,
		Dimensions: cfg.EmbedDim,
		RPS:        cfg.EmbedRPS,
		Burst:      4,
	})

	var syncer retrieval.ArtifactSyncer
	if cfg.ArtifactBucket != "" {
		syncer = artifact.NewSyncer(s3.NewFromConfig(awsCfg), cfg.ArtifactBucket, cfg.ArtifactPrefix, logger)
	}

	// --- Connect to Neo4j ---
	neo4jDriver, err := neo4j.NewDriverWithContext(cfg.Neo4jURL, neo4j.BasicAuth(cfg.Neo4jUser, cfg.Neo4jPass, ""))
	if err != nil {
		return fmt.Errorf("neo4j driver: %w", err)
	}
	defer neo4jDriver.Close(ctx)

	graph := relations.New(neo4jDriver)

	// --- Serving snapshot: index + pipeline, hot-swapped on reload ---
	modelPath := filepath.Join(cfg.DataDir, artifact.ModelArtifact)
	var predictor atomic.Pointer[rank.Predictor]

	build := func(flat *index.Flat) *retrieval.Pipeline {
		retriever := retrieval.NewHybridRetriever(embedder, flat, retrieval.Options{}, logger)
		pred, err := rank.LoadPredictor(modelPath)
		if err != nil {
			logger.Warn("ranking model unavailable, serving vector order", "path", modelPath, "err", err)
			pred = rank.NewPredictor(nil)
		}
		predictor.Store(pred)
		var reranker retrieval.Reranker = retrieval.NoopReranker{}
		if pred.Loaded() {
			reranker = retrieval.NewModelReranker(pred)
		}
		return retrieval.NewPipeline(retriever, reranker, logger)
	}

	manager := retrieval.NewReloadManager(cfg.DataDir, cfg.EmbedDim, syncer, build, logger)
	if err := manager.Init(ctx); err != nil {
		return fmt.Errorf("initial index load: %w", err)
	}

	// --- Metrics ---
	met := metrics.New()
	app := &app{
		manager:   manager,
		graph:     graph,
		embedder:  embedder,
		predictor: &predictor,
		chunker:   chunk.New(chunk.DefaultChunkSize, chunk.DefaultOverlap),
		logger:    logger,

		queries:      met.Counter("gridwatch_queries_total", "Queries served"),
		queryErrors:  met.Counter(metrics.WithLabels("gridwatch_queries_total", "status", "error"), "Queries failed"),
		queryLatency: met.Histogram("gridwatch_query_seconds", "Query pipeline latency", nil),
		ingested:     met.Counter("gridwatch_ingested_chunks_total", "Chunks ingested via API"),
		reloads:      met.Counter("gridwatch_reloads_total", "Index snapshot reloads"),
		indexSize:    met.Gauge("gridwatch_index_chunks", "Chunks in the serving index"),
	}
	if snap := manager.Current(); snap != nil {
		app.indexSize.Set(int64(snap.Count))
	}

	// --- Build HTTP server ---
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", app.handleHealth)
	mux.HandleFunc("POST /api/query", app.handleQuery)
	mux.HandleFunc("POST /api/ingest", app.handleIngest)
	mux.HandleFunc("POST /api/reload", app.handleReload)
	mux.HandleFunc("GET /api/recommend/{user_id}", app.handleRecommend)
	mux.HandleFunc("POST /api/interactions", app.handleInteraction)
	mux.HandleFunc("GET /metrics", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		fmt.Fprint(w, met.Render())
	})

	handler := mid.Chain(mux,
		mid.Recover(logger),
		mid.Logger(logger),
		mid.CORS(cfg.CORSOrigin),
		mid.OTel("gridwatch-api"),
	)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// --- Graceful shutdown ---
	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server starting", "port", cfg.Port, "chunks", app.indexSize.Value())
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutCtx)
}
