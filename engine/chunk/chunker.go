// Package chunk splits source documents into overlapping word-window chunks
// for embedding. Chunk IDs are deterministic, so re-chunking identical input
// is idempotent.
package chunk

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/GridwatchAI/gridwatch-mvp/engine/domain"
)

const (
	// DefaultChunkSize is the number of words per chunk.
	DefaultChunkSize = 512
	// DefaultOverlap is the number of words repeated between consecutive chunks.
	DefaultOverlap = 64
)

// Chunker splits text into overlapping fixed-size word windows.
type Chunker struct {
	size    int
	overlap int
}

// New creates a Chunker. Non-positive size falls back to the default;
// negative overlap is treated as zero.
func New(size, overlap int) *Chunker {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = 0
	}
	return &Chunker{size: size, overlap: overlap}
}

// ChunkText splits text on whitespace into sliding windows of the configured
// size, advancing by size-overlap words per step (clamped so an overlap >=
// size cannot stall). Empty or whitespace-only text yields no chunks. The
// final window may be shorter than the configured size.
func (c *Chunker) ChunkText(text, sourceID string, sourceType domain.SourceType, meta domain.Metadata) []domain.Chunk {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	step := c.size - c.overlap
	if step < 1 {
		step = 1
	}

	var chunks []domain.Chunk
	start := 0
	index := 0
	for start < len(words) {
		end := start + c.size
		if end > len(words) {
			end = len(words)
		}

		m := meta
		m.ChunkIndex = index
		chunks = append(chunks, domain.Chunk{
			ID:         ID(sourceID, index),
			SourceID:   sourceID,
			SourceType: sourceType,
			Content:    strings.Join(words[start:end], " "),
			Metadata:   m,
		})
		index++

		if end >= len(words) {
			break
		}
		start += step
	}
	return chunks
}

// ChunkAdvisory flattens an advisory into text and chunks it.
func (c *Chunker) ChunkAdvisory(a domain.Advisory) []domain.Chunk {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\n%s\n\nMitigations:\n", a.Title, a.Description)
	for _, m := range a.Mitigations {
		fmt.Fprintf(&b, "- %s\n", m)
	}

	meta := domain.Metadata{
		Severity:  string(a.Severity),
		Protocols: protocolStrings(a.Protocols),
		CVEIDs:    a.CVEIDs,
		Source:    a.Source,
		Published: a.Published,
	}
	return c.ChunkText(b.String(), a.ID, domain.SourceAdvisory, meta)
}

// ChunkThreatReport flattens a threat report into text and chunks it.
func (c *Chunker) ChunkThreatReport(r domain.ThreatReport) []domain.Chunk {
	text := fmt.Sprintf("%s\n\n%s\n\n%s", r.Title, r.Summary, r.Content)

	meta := domain.Metadata{
		ThreatCategory: string(r.ThreatCategory),
		Actor:          r.Actor,
		Targets:        assetStrings(r.Targets),
		Protocols:      protocolStrings(r.Protocols),
		TTPs:           r.TTPs,
		Published:      r.Published,
	}
	return c.ChunkText(text, r.ID, domain.SourceThreatReport, meta)
}

// ChunkIncident flattens an incident record into text and chunks it.
func (c *Chunker) ChunkIncident(in domain.Incident) []domain.Chunk {
	text := fmt.Sprintf("Incident in %s sector\n\n%s\n\nImpact: %s", in.Sector, in.Description, in.Impact)

	meta := domain.Metadata{
		Sector:     in.Sector,
		AssetTypes: assetStrings(in.AssetTypes),
		Protocols:  protocolStrings(in.Protocols),
		Published:  in.Reported,
	}
	return c.ChunkText(text, in.ID, domain.SourceIncident, meta)
}

// ID derives the deterministic chunk ID for a source document and chunk
// index: the first 16 hex characters of SHA-256("{source_id}::{index}").
func ID(sourceID string, index int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s::%d", sourceID, index)))
	return hex.EncodeToString(sum[:])[:16]
}

func protocolStrings(ps []domain.Protocol) []string {
	if len(ps) == 0 {
		return nil
	}
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = string(p)
	}
	return out
}

func assetStrings(as []domain.AssetType) []string {
	if len(as) == 0 {
		return nil
	}
	out := make([]string, len(as))
	for i, a := range as {
		out[i] = string(a)
	}
	return out
}
