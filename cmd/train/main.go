// Command train fits the ranking model on synthetic interaction data and
// writes the model artifact the API's reranker loads.
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

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/GridwatchAI/gridwatch-mvp/engine/rank"
	"github.com/GridwatchAI/gridwatch-mvp/pkg/artifact"
)

func main() {
	var (
		queries = flag.Int("queries", 200, "synthetic training queries")
		docs    = flag.Int("docs", 20, "documents per query")
		seed    = flag.Int64("seed", 42, "training data seed")
		trees   = flag.Int("trees", 100, "boosting rounds")
		lr      = flag.Float64("lr", 0.1, "learning rate")
		depth   = flag.Int("depth", 4, "max tree depth")
		minLeaf = flag.Int("min-leaf", 5, "min samples per leaf")
		outDir  = flag.String("out", "./artifacts", "output directory for the model artifact")
		bucket  = flag.String("bucket", "", "S3 bucket to upload the model to")
		prefix  = flag.String("prefix", "artifacts/", "S3 key prefix")
	)
	flag.Parse()

	log := slog.Default()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, *queries, *docs, *seed, rank.TrainOptions{
		NumTrees:     *trees,
		LearningRate: *lr,
		MaxDepth:     *depth,
		MinLeaf:      *minLeaf,
	}, *outDir, *bucket, *prefix, log); err != nil {
		log.Error("training failed", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, queries, docs int, seed int64, opts rank.TrainOptions, outDir, bucket, prefix string, log *slog.Logger) error {
	gen := rank.NewGenerator(seed)
	features, labels, groups := gen.Generate(queries, docs, rank.DefaultSyntheticDim)
	log.Info("training data generated", "queries", queries, "samples", len(labels))

	trainer := rank.NewTrainer(opts)
	model, err := trainer.Train(features, labels, groups)
	if err != nil {
		return fmt.Errorf("train: %w", err)
	}

	// Training-set NDCG is an optimistic sanity signal, not an evaluation.
	scores := make([]float64, len(labels))
	for i, f := range features {
		scores[i] = model.PredictOne(f)
	}
	log.Info("model trained",
		"trees", len(model.Trees),
		"ndcg@5", meanGroupNDCG(labels, scores, groups, 5))

	for name, weight := range model.FeatureImportance() {
		log.Info("feature importance", "feature", name, "weight", fmt.Sprintf("%.4f", weight))
	}

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return err
	}
	path := filepath.Join(outDir, artifact.ModelArtifact)
	if err := model.Save(path); err != nil {
		return fmt.Errorf("save model: %w", err)
	}
	log.Info("model artifact written", "path", path)

	if bucket != "" {
		if err := upload(ctx, path, bucket, prefix); err != nil {
			return err
		}
		log.Info("model artifact uploaded", "bucket", bucket)
	}
	return nil
}

func meanGroupNDCG(labels []int, scores []float64, groups []int, k int) float64 {
	var sum float64
	var n int
	offset := 0
	for _, size := range groups {
		sum += rank.NDCGAt(labels[offset:offset+size], scores[offset:offset+size], k)
		n++
		offset += size
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

func upload(ctx context.Context, path, bucket, prefix string) error {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return fmt.Errorf("aws config: %w", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	client := s3.NewFromConfig(awsCfg)
	key := prefix + artifact.ModelArtifact
	_, err = client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return fmt.Errorf("upload s3://%s/%s: %w", bucket, key, err)
	}
	return nil
}
