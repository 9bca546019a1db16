package ingest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3API is the slice of the S3 client the loader needs.
type S3API interface {
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Loader reads raw JSON documents from the local data directory or S3.
type Loader struct {
	dataDir string
	s3      S3API // nil disables S3 loading
	logger  *slog.Logger
}

// NewLoader creates a Loader rooted at dataDir. s3c may be nil.
func NewLoader(dataDir string, s3c S3API, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{dataDir: dataDir, s3: s3c, logger: logger}
}

// LoadDirectory reads every .json file in dir, sorted by name. A missing
// directory yields an empty slice, not an error.
func (l *Loader) LoadDirectory(dir string) ([][]byte, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("ingest: read dir %s: %w", dir, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".json") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	docs := make([][]byte, 0, len(names))
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("ingest: read %s: %w", name, err)
		}
		docs = append(docs, data)
	}
	return docs, nil
}

// LoadAdvisories reads raw advisories from the data directory.
func (l *Loader) LoadAdvisories() ([][]byte, error) {
	return l.LoadDirectory(filepath.Join(l.dataDir, "advisories"))
}

// LoadThreatReports reads raw threat reports from the data directory.
func (l *Loader) LoadThreatReports() ([][]byte, error) {
	return l.LoadDirectory(filepath.Join(l.dataDir, "threat_reports"))
}

// LoadIncidents reads raw incidents from the data directory.
func (l *Loader) LoadIncidents() ([][]byte, error) {
	return l.LoadDirectory(filepath.Join(l.dataDir, "incidents"))
}

// LoadFromS3 reads every .json object under the prefix.
func (l *Loader) LoadFromS3(ctx context.Context, bucket, prefix string) ([][]byte, error) {
	if l.s3 == nil {
		return nil, fmt.Errorf("ingest: s3 loading not configured")
	}

	var docs [][]byte
	var continuation *string
	for {
		page, err := l.s3.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(bucket),
			Prefix:            aws.String(prefix),
			ContinuationToken: continuation,
		})
		if err != nil {
			return nil, fmt.Errorf("ingest: list s3://%s/%s: %w", bucket, prefix, err)
		}

		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if !strings.HasSuffix(key, ".json") {
				continue
			}
			data, err := l.getObject(ctx, bucket, key)
			if err != nil {
				return nil, err
			}
			docs = append(docs, data)
		}

		if !aws.ToBool(page.IsTruncated) {
			break
		}
		continuation = page.NextContinuationToken
	}

	l.logger.Info("loaded documents from s3", "bucket", bucket, "prefix", prefix, "count", len(docs))
	return docs, nil
}

func (l *Loader) getObject(ctx context.Context, bucket, key string) ([]byte, error) {
	out, err := l.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("ingest: get s3://%s/%s: %w", bucket, key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("ingest: read s3://%s/%s: %w", bucket, key, err)
	}
	return data, nil
}
