// Package artifact syncs serving artifacts (vector index, ranking model)
// from S3 to local disk for reload.
package artifact

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/GridwatchAI/gridwatch-mvp/pkg/fn"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// S3API is the slice of the S3 client the syncer uses.
type S3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Names of the artifacts published by the indexer and trainer.
const (
	IndexArtifact    = "index.bin"
	MetadataArtifact = "metadata.json"
	ModelArtifact    = "ranker.gob"
)

// requiredArtifacts must exist in the bucket for a sync to succeed.
// The ranking model is optional so the API can serve unreranked results.
var requiredArtifacts = []string{IndexArtifact, MetadataArtifact}

// Syncer downloads artifacts from an S3 bucket prefix into a local dir.
type Syncer struct {
	client S3API
	bucket string
	prefix string
	logger *slog.Logger
}

// NewSyncer creates an artifact syncer.
func NewSyncer(client S3API, bucket, prefix string, logger *slog.Logger) *Syncer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Syncer{client: client, bucket: bucket, prefix: prefix, logger: logger}
}

// downloadRetry bounds transient S3 failures during a sync. Waits are kept
// short; a reload holds the manager lock while it syncs.
var downloadRetry = fn.RetryOpts{
	MaxAttempts: 3,
	InitialWait: 200 * time.Millisecond,
	MaxWait:     2 * time.Second,
	Jitter:      true,
}

// Sync fetches each artifact into dir. The index matrix and its metadata
// sidecar are staged to temp files and renamed together only after both
// downloads succeed, so a partial sync never leaves the matrix of one
// generation next to the sidecar of another.
func (s *Syncer) Sync(ctx context.Context, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("artifact dir: %w", err)
	}

	staged := make([]string, 0, len(requiredArtifacts))
	for _, name := range requiredArtifacts {
		tmp, err := s.stage(ctx, dir, name)
		if err != nil {
			for _, old := range staged {
				os.Remove(old)
			}
			return err
		}
		staged = append(staged, tmp)
	}
	for i, tmp := range staged {
		if err := os.Rename(tmp, filepath.Join(dir, requiredArtifacts[i])); err != nil {
			return err
		}
	}

	tmp, err := s.stage(ctx, dir, ModelArtifact)
	if err != nil {
		if isNotFound(err) {
			s.logger.Warn("ranking model artifact missing, serving without reranker", "bucket", s.bucket)
			return nil
		}
		return err
	}
	return os.Rename(tmp, filepath.Join(dir, ModelArtifact))
}

// isNotFound matches both the typed NoSuchKey error and the generic
// NotFound code some S3-compatible stores return.
func isNotFound(err error) bool {
	var noKey *types.NoSuchKey
	if errors.As(err, &noKey) {
		return true
	}
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode() == "NotFound"
}

// stage downloads one artifact to a temp file beside its final path and
// returns the temp path. The caller commits the rename.
func (s *Syncer) stage(ctx context.Context, dir, name string) (string, error) {
	key := s.prefix + name
	out, err := fn.Retry(ctx, downloadRetry, func(ctx context.Context) fn.Result[*s3.GetObjectOutput] {
		return fn.FromPair(s.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		}))
	}).Unwrap()
	if err != nil {
		return "", fmt.Errorf("fetch s3://%s/%s: %w", s.bucket, key, err)
	}
	defer out.Body.Close()

	tmp := filepath.Join(dir, name+".tmp")
	file, err := os.Create(tmp)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(file, out.Body); err != nil {
		file.Close()
		os.Remove(tmp)
		return "", fmt.Errorf("write %s: %w", name, err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmp)
		return "", err
	}
	s.logger.Debug("artifact staged", "key", key, "dir", dir)
	return tmp, nil
}
