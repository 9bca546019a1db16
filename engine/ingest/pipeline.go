package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/GridwatchAI/gridwatch-mvp/engine/chunk"
	"github.com/GridwatchAI/gridwatch-mvp/engine/domain"
	"github.com/GridwatchAI/gridwatch-mvp/pkg/fn"
)

// Document is the ingestion envelope: a source kind plus the raw JSON
// payload. It is what travels over NATS and what the inline API accepts.
type Document struct {
	Kind domain.SourceType `json:"kind"`
	Data json.RawMessage   `json:"data"`
}

// ParsedDocument holds exactly one decoded domain model, discriminated by
// Kind.
type ParsedDocument struct {
	Kind     domain.SourceType
	Advisory *domain.Advisory
	Report   *domain.ThreatReport
	Incident *domain.Incident
}

// SourceID returns the ID of the underlying document.
func (p ParsedDocument) SourceID() string {
	switch p.Kind {
	case domain.SourceAdvisory:
		return p.Advisory.ID
	case domain.SourceThreatReport:
		return p.Report.ID
	case domain.SourceIncident:
		return p.Incident.ID
	}
	return ""
}

// ChunkedDocument pairs a parsed document with its chunks.
type ChunkedDocument struct {
	ParsedDocument
	Chunks []domain.Chunk
}

// ChunkIndexer embeds and stores chunks.
type ChunkIndexer interface {
	IndexChunks(ctx context.Context, chunks []domain.Chunk, batchSize int) (int, error)
}

// DocumentGraph persists documents and their relations to the graph store.
type DocumentGraph interface {
	SaveAdvisory(ctx context.Context, a domain.Advisory) error
	SaveThreatReport(ctx context.Context, r domain.ThreatReport) error
	SaveIncident(ctx context.Context, in domain.Incident) error
}

// Deps holds the external dependencies of the ingestion pipeline.
type Deps struct {
	Indexer        ChunkIndexer
	Graph          DocumentGraph                                         // nil skips graph persistence
	DeduplicateF   func(ctx context.Context, sourceID string) (bool, error) // returns true if already ingested
	EmbedBatchSize int
	Logger         *slog.Logger
}

// DefaultEmbedBatchSize is the max chunks per embedding request.
const DefaultEmbedBatchSize = 10

// Parse decodes the envelope into a validated domain model.
var Parse fn.Stage[Document, ParsedDocument] = func(_ context.Context, doc Document) fn.Result[ParsedDocument] {
	var parser Parser
	switch doc.Kind {
	case domain.SourceAdvisory:
		a, err := parser.ParseAdvisory(doc.Data)
		if err != nil {
			return fn.Err[ParsedDocument](err)
		}
		return fn.Ok(ParsedDocument{Kind: doc.Kind, Advisory: &a})
	case domain.SourceThreatReport:
		r, err := parser.ParseThreatReport(doc.Data)
		if err != nil {
			return fn.Err[ParsedDocument](err)
		}
		return fn.Ok(ParsedDocument{Kind: doc.Kind, Report: &r})
	case domain.SourceIncident:
		in, err := parser.ParseIncident(doc.Data)
		if err != nil {
			return fn.Err[ParsedDocument](err)
		}
		return fn.Ok(ParsedDocument{Kind: doc.Kind, Incident: &in})
	default:
		return fn.Errf[ParsedDocument]("ingest: unknown document kind %q", doc.Kind)
	}
}

// NewChunkStage splits the parsed document into metadata-tagged chunks.
func NewChunkStage(chunker *chunk.Chunker) fn.Stage[ParsedDocument, ChunkedDocument] {
	return func(_ context.Context, parsed ParsedDocument) fn.Result[ChunkedDocument] {
		var chunks []domain.Chunk
		switch parsed.Kind {
		case domain.SourceAdvisory:
			chunks = chunker.ChunkAdvisory(*parsed.Advisory)
		case domain.SourceThreatReport:
			chunks = chunker.ChunkThreatReport(*parsed.Report)
		case domain.SourceIncident:
			chunks = chunker.ChunkIncident(*parsed.Incident)
		}
		if len(chunks) == 0 {
			return fn.Errf[ChunkedDocument]("ingest: document %s produced no chunks", parsed.SourceID())
		}
		return fn.Ok(ChunkedDocument{ParsedDocument: parsed, Chunks: chunks})
	}
}

// NewIndexStage embeds and stores chunks through the indexer.
func NewIndexStage(indexer ChunkIndexer, batchSize int) fn.Stage[ChunkedDocument, ChunkedDocument] {
	return func(ctx context.Context, doc ChunkedDocument) fn.Result[ChunkedDocument] {
		if _, err := indexer.IndexChunks(ctx, doc.Chunks, batchSize); err != nil {
			return fn.Err[ChunkedDocument](fmt.Errorf("ingest: index %s: %w", doc.SourceID(), err))
		}
		return fn.Ok(doc)
	}
}

// NewGraphStage persists the document and its relations. A nil graph makes
// this a pass-through.
func NewGraphStage(graph DocumentGraph) fn.Stage[ChunkedDocument, string] {
	return func(ctx context.Context, doc ChunkedDocument) fn.Result[string] {
		if graph == nil {
			return fn.Ok(doc.SourceID())
		}
		var err error
		switch doc.Kind {
		case domain.SourceAdvisory:
			err = graph.SaveAdvisory(ctx, *doc.Advisory)
		case domain.SourceThreatReport:
			err = graph.SaveThreatReport(ctx, *doc.Report)
		case domain.SourceIncident:
			err = graph.SaveIncident(ctx, *doc.Incident)
		}
		if err != nil {
			return fn.Err[string](fmt.Errorf("ingest: graph save %s: %w", doc.SourceID(), err))
		}
		return fn.Ok(doc.SourceID())
	}
}

// LoggedTap returns a pass-through stage that logs entry and exit with
// duration.
func LoggedTap[T any](name string, log *slog.Logger) fn.Stage[T, T] {
	return func(ctx context.Context, t T) fn.Result[T] {
		log.Info("stage.enter", "stage", name)
		start := time.Now()
		defer func() {
			log.Info("stage.exit", "stage", name, "duration", time.Since(start))
		}()
		return fn.Ok(t)
	}
}

// NewPipeline composes parse, chunk, index and graph stages into the full
// ingestion pipeline. The result value is the ingested document's ID.
func NewPipeline(deps Deps) fn.Stage[Document, string] {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	batch := deps.EmbedBatchSize
	if batch <= 0 {
		batch = DefaultEmbedBatchSize
	}

	chunker := chunk.New(chunk.DefaultChunkSize, chunk.DefaultOverlap)

	parsed := fn.Then(LoggedTap[Document]("parse", log), Parse)
	chunked := fn.Then(parsed, fn.Then(LoggedTap[ParsedDocument]("chunk", log), NewChunkStage(chunker)))
	indexed := fn.Then(chunked, fn.Then(LoggedTap[ChunkedDocument]("index", log), NewIndexStage(deps.Indexer, batch)))
	stored := fn.Then(indexed, fn.Then(LoggedTap[ChunkedDocument]("graph", log), NewGraphStage(deps.Graph)))

	return stored
}
