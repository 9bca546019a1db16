// Command ingest-worker consumes document envelopes from NATS and runs them
// through the ingestion pipeline into Qdrant and Neo4j.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/nats-io/nats.go"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/GridwatchAI/gridwatch-mvp/engine/index"
	"github.com/GridwatchAI/gridwatch-mvp/engine/indexer"
	"github.com/GridwatchAI/gridwatch-mvp/engine/ingest"
	"github.com/GridwatchAI/gridwatch-mvp/engine/relations"
	"github.com/GridwatchAI/gridwatch-mvp/pkg/bedrock"
)

func main() {
	var (
		natsURL    = flag.String("nats", nats.DefaultURL, "NATS server URL")
		neo4jURL   = flag.String("neo4j", "neo4j://localhost:7687", "Neo4j bolt URL")
		neo4jUser  = flag.String("neo4j-user", "neo4j", "Neo4j username")
		neo4jPass  = flag.String("neo4j-pass", "password", "Neo4j password")
		qdrantAddr = flag.String("qdrant", "localhost:6334", "Qdrant gRPC address")
		collection = flag.String("collection", "gridwatch", "Qdrant collection name")
		dim        = flag.Int("dim", index.DefaultDimension, "embedding dimension")
		model      = flag.String("model", bedrock.DefaultModelID, "Bedrock embedding model")
		rps        = flag.Float64("rps", 10, "embedding requests per second")
	)
	flag.Parse()

	log := slog.Default()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, workerConfig{
		natsURL: *natsURL, neo4jURL: *neo4jURL, neo4jUser: *neo4jUser,
		neo4jPass: *neo4jPass, qdrantAddr: *qdrantAddr, collection: *collection,
		dim: *dim, model: *model, rps: *rps,
	}, log); err != nil {
		log.Error("worker exited with error", "err", err)
		os.Exit(1)
	}
}

type workerConfig struct {
	natsURL, neo4jURL      string
	neo4jUser, neo4jPass   string
	qdrantAddr, collection string
	dim                    int
	model                  string
	rps                    float64
}

func run(ctx context.Context, cfg workerConfig, log *slog.Logger) error {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return fmt.Errorf("aws config: %w", err)
	}
	embedder := bedrock.NewEmbedClient(bedrockruntime.NewFromConfig(awsCfg), bedrock.Options{
		ModelID:    cfg.model,
		Dimensions: cfg.dim,
		RPS:        cfg.rps,
		Burst:      4,
	})

	driver, err := neo4j.NewDriverWithContext(cfg.neo4jURL, neo4j.BasicAuth(cfg.neo4jUser, cfg.neo4jPass, ""))
	if err != nil {
		return fmt.Errorf("neo4j driver: %w", err)
	}
	defer driver.Close(ctx)
	graph := relations.New(driver)

	qd, err := index.NewQdrant(cfg.qdrantAddr, cfg.collection)
	if err != nil {
		return fmt.Errorf("qdrant connect: %w", err)
	}
	defer qd.Close()
	if err := qd.EnsureCollection(ctx, cfg.dim); err != nil {
		return fmt.Errorf("qdrant collection: %w", err)
	}

	nc, err := nats.Connect(cfg.natsURL, nats.Name("gridwatch-ingest-worker"))
	if err != nil {
		return fmt.Errorf("nats connect: %w", err)
	}
	defer nc.Close()

	sub, err := ingest.StartConsumer(nc, ingest.Deps{
		Indexer:      indexer.New(embedder, qd, log),
		Graph:        graph,
		DeduplicateF: dedupAgainstGraph(graph),
		Logger:       log,
	})
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	defer sub.Unsubscribe()

	log.Info("ingest worker started", "subject", ingest.Subject, "qdrant", cfg.qdrantAddr)
	<-ctx.Done()
	log.Info("shutdown signal received")
	return nil
}

// dedupAgainstGraph treats a document that already has a graph node as
// ingested. Lookup failures count as not-seen so ingestion stays
// at-least-once when the graph is unreachable.
func dedupAgainstGraph(graph *relations.Store) func(context.Context, string) (bool, error) {
	return func(ctx context.Context, sourceID string) (bool, error) {
		id := sourceID
		if i := strings.Index(sourceID, ":"); i >= 0 {
			id = sourceID[i+1:]
		}
		if id == "" {
			return false, nil
		}
		if _, err := graph.Document(ctx, id); err != nil {
			return false, nil
		}
		return true, nil
	}
}
