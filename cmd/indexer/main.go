// Command indexer chunks and embeds a document corpus and writes the index
// artifacts the API serves from. With -bucket the artifacts are uploaded to
// S3 for the API's reload endpoint to pick up.
package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/GridwatchAI/gridwatch-mvp/engine/chunk"
	"github.com/GridwatchAI/gridwatch-mvp/engine/domain"
	"github.com/GridwatchAI/gridwatch-mvp/engine/index"
	"github.com/GridwatchAI/gridwatch-mvp/engine/indexer"
	"github.com/GridwatchAI/gridwatch-mvp/engine/ingest"
	"github.com/GridwatchAI/gridwatch-mvp/pkg/artifact"
	"github.com/GridwatchAI/gridwatch-mvp/pkg/bedrock"
	"github.com/GridwatchAI/gridwatch-mvp/pkg/metrics"
)

var met = metrics.New()

var (
	mDocs = func(source string) *metrics.Counter {
		return met.Counter(metrics.WithLabels("gridwatch_indexer_docs_total", "source", source), "Documents indexed")
	}
	mChunks   = met.Counter("gridwatch_indexer_chunks_total", "Chunks embedded and indexed")
	mEmbedDur = met.Histogram("gridwatch_indexer_embed_seconds", "Corpus embedding time", nil)
)

func main() {
	var (
		dataDir   = flag.String("data", "./data", "corpus directory (advisories/, threat_reports/, incidents/)")
		outDir    = flag.String("out", "./artifacts", "output directory for index artifacts")
		dim       = flag.Int("dim", index.DefaultDimension, "embedding dimension")
		model     = flag.String("model", bedrock.DefaultModelID, "Bedrock embedding model")
		rps       = flag.Float64("rps", 10, "embedding requests per second")
		batch     = flag.Int("batch", ingest.DefaultEmbedBatchSize, "embedding batch size")
		generate  = flag.Int("generate", 0, "generate a synthetic corpus of N advisories first")
		seed      = flag.Int64("seed", 42, "synthetic corpus seed")
		bucket    = flag.String("bucket", "", "S3 bucket to upload artifacts to")
		prefix    = flag.String("prefix", "artifacts/", "S3 key prefix")
		qdrantURL = flag.String("qdrant", "", "also index into Qdrant at this gRPC address")
	)
	flag.Parse()

	log := slog.Default()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	met.ServeAsync(9092)

	if err := run(ctx, config{
		dataDir: *dataDir, outDir: *outDir, dim: *dim, model: *model,
		rps: *rps, batch: *batch, generate: *generate, seed: *seed,
		bucket: *bucket, prefix: *prefix, qdrantURL: *qdrantURL,
	}, log); err != nil {
		log.Error("indexer failed", "err", err)
		os.Exit(1)
	}
}

type config struct {
	dataDir, outDir string
	dim, batch      int
	model           string
	rps             float64
	generate        int
	seed            int64
	bucket, prefix  string
	qdrantURL       string
}

func run(ctx context.Context, cfg config, log *slog.Logger) error {
	if cfg.generate > 0 {
		gen := ingest.NewCorpusGenerator(cfg.seed)
		if err := gen.WriteAll(cfg.dataDir, cfg.generate, cfg.generate/2, cfg.generate/3); err != nil {
			return fmt.Errorf("generate corpus: %w", err)
		}
		log.Info("synthetic corpus written", "dir", cfg.dataDir, "advisories", cfg.generate)
	}

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

	chunks, err := chunkCorpus(cfg.dataDir, log)
	if err != nil {
		return err
	}
	if len(chunks) == 0 {
		return fmt.Errorf("no documents found under %s", cfg.dataDir)
	}

	flat := index.NewFlat(cfg.dim)
	ix := indexer.New(embedder, flat, log)

	start := time.Now()
	added, err := ix.IndexChunks(ctx, chunks, cfg.batch)
	if err != nil {
		return fmt.Errorf("index corpus: %w", err)
	}
	mEmbedDur.Since(start)
	mChunks.Add(int64(added))
	log.Info("corpus indexed", "chunks", added, "elapsed", time.Since(start))

	if err := flat.Save(cfg.outDir); err != nil {
		return fmt.Errorf("save artifacts: %w", err)
	}
	log.Info("artifacts written", "dir", cfg.outDir)

	if cfg.qdrantURL != "" {
		if err := mirrorToQdrant(ctx, cfg, flat, log); err != nil {
			return err
		}
	}

	if cfg.bucket != "" {
		client := s3.NewFromConfig(awsCfg)
		if err := uploadArtifacts(ctx, client, cfg, log); err != nil {
			return err
		}
	}
	return nil
}

// chunkCorpus loads and chunks every document under dataDir.
func chunkCorpus(dataDir string, log *slog.Logger) ([]domain.Chunk, error) {
	loader := ingest.NewLoader(dataDir, nil, log)
	parser := ingest.Parser{}
	chunker := chunk.New(chunk.DefaultChunkSize, chunk.DefaultOverlap)

	var chunks []domain.Chunk

	rawAdvisories, err := loader.LoadAdvisories()
	if err != nil {
		return nil, fmt.Errorf("load advisories: %w", err)
	}
	advisories, err := parser.ParseAdvisories(rawAdvisories)
	if err != nil {
		return nil, fmt.Errorf("parse advisories: %w", err)
	}
	for _, a := range advisories {
		chunks = append(chunks, chunker.ChunkAdvisory(a)...)
		mDocs("advisory").Inc()
	}

	rawReports, err := loader.LoadThreatReports()
	if err != nil {
		return nil, fmt.Errorf("load threat reports: %w", err)
	}
	reports, err := parser.ParseThreatReports(rawReports)
	if err != nil {
		return nil, fmt.Errorf("parse threat reports: %w", err)
	}
	for _, r := range reports {
		chunks = append(chunks, chunker.ChunkThreatReport(r)...)
		mDocs("threat_report").Inc()
	}

	rawIncidents, err := loader.LoadIncidents()
	if err != nil {
		return nil, fmt.Errorf("load incidents: %w", err)
	}
	incidents, err := parser.ParseIncidents(rawIncidents)
	if err != nil {
		return nil, fmt.Errorf("parse incidents: %w", err)
	}
	for _, in := range incidents {
		chunks = append(chunks, chunker.ChunkIncident(in)...)
		mDocs("incident").Inc()
	}

	log.Info("corpus loaded",
		"advisories", len(advisories),
		"threat_reports", len(reports),
		"incidents", len(incidents),
		"chunks", len(chunks))
	return chunks, nil
}

func mirrorToQdrant(ctx context.Context, cfg config, flat *index.Flat, log *slog.Logger) error {
	qd, err := index.NewQdrant(cfg.qdrantURL, "gridwatch")
	if err != nil {
		return fmt.Errorf("qdrant connect: %w", err)
	}
	defer qd.Close()

	if err := qd.EnsureCollection(ctx, cfg.dim); err != nil {
		return fmt.Errorf("qdrant collection: %w", err)
	}
	if err := qd.Add(ctx, flat.Chunks()); err != nil {
		return fmt.Errorf("qdrant mirror: %w", err)
	}
	log.Info("chunks mirrored to qdrant", "addr", cfg.qdrantURL)
	return nil
}

func uploadArtifacts(ctx context.Context, client *s3.Client, cfg config, log *slog.Logger) error {
	for _, name := range []string{artifact.IndexArtifact, artifact.MetadataArtifact} {
		data, err := os.ReadFile(filepath.Join(cfg.outDir, name))
		if err != nil {
			return err
		}
		key := cfg.prefix + name
		_, err = client.PutObject(ctx, &s3.PutObjectInput{
			Bucket: aws.String(cfg.bucket),
			Key:    aws.String(key),
			Body:   bytes.NewReader(data),
		})
		if err != nil {
			return fmt.Errorf("upload s3://%s/%s: %w", cfg.bucket, key, err)
		}
		log.Info("artifact uploaded", "key", key, "bytes", len(data))
	}
	return nil
}
