package relations

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/GridwatchAI/gridwatch-mvp/engine/domain"
	"github.com/GridwatchAI/gridwatch-mvp/engine/ingest"
	"github.com/GridwatchAI/gridwatch-mvp/pkg/repo"
)

// result is the minimal interface needed from a neo4j result.
type result interface {
	Next(ctx context.Context) bool
	Record() *neo4j.Record
}

// runner is the minimal interface needed from a neo4j session.
type runner interface {
	Run(ctx context.Context, cypher string, params map[string]any) (result, error)
	Close(ctx context.Context) error
}

// Store persists document relations and user interactions in Neo4j.
type Store struct {
	driver     neo4j.DriverWithContext
	docs       *repo.Neo4jRepo[DocumentNode, string]
	newSession func(ctx context.Context) runner // for testing
	now        func() time.Time
}

// Compile-time check that Store satisfies the ingestion graph sink.
var _ ingest.DocumentGraph = (*Store)(nil)

// New creates a Store on top of a Neo4j driver.
func New(driver neo4j.DriverWithContext) *Store {
	return &Store{
		driver: driver,
		docs: repo.NewNeo4jRepo[DocumentNode, string](
			driver,
			"Document",
			documentToMap,
			documentFromRecord,
		),
		now: time.Now,
	}
}

type neo4jSessionAdapter struct {
	sess neo4j.SessionWithContext
}

func (a *neo4jSessionAdapter) Run(ctx context.Context, cypher string, params map[string]any) (result, error) {
	return a.sess.Run(ctx, cypher, params)
}

func (a *neo4jSessionAdapter) Close(ctx context.Context) error {
	return a.sess.Close(ctx)
}

func (s *Store) session(ctx context.Context) runner {
	if s.newSession != nil {
		return s.newSession(ctx)
	}
	return &neo4jSessionAdapter{sess: s.driver.NewSession(ctx, neo4j.SessionConfig{})}
}

// Document returns a document node by ID.
func (s *Store) Document(ctx context.Context, id string) (DocumentNode, error) {
	return s.docs.Get(ctx, id)
}

// Documents lists document nodes with pagination.
func (s *Store) Documents(ctx context.Context, opts repo.ListOpts) ([]DocumentNode, error) {
	return s.docs.List(ctx, opts)
}

// SaveAdvisory upserts an advisory document node.
func (s *Store) SaveAdvisory(ctx context.Context, a domain.Advisory) error {
	return s.saveDocument(ctx, DocumentNode{
		ID:        a.ID,
		Kind:      string(domain.SourceAdvisory),
		Title:     a.Title,
		Published: a.Published,
		Protocols: asStrings(a.Protocols),
	})
}

// SaveThreatReport upserts a threat report document node.
func (s *Store) SaveThreatReport(ctx context.Context, r domain.ThreatReport) error {
	return s.saveDocument(ctx, DocumentNode{
		ID:         r.ID,
		Kind:       string(domain.SourceThreatReport),
		Title:      r.Title,
		Published:  r.Published,
		Protocols:  asStrings(r.Protocols),
		AssetTypes: asStrings(r.Targets),
	})
}

// SaveIncident upserts an incident document node and links it to the
// advisories it references. Referenced advisories are merged as bare nodes
// so the edge survives out-of-order ingestion.
func (s *Store) SaveIncident(ctx context.Context, in domain.Incident) error {
	err := s.saveDocument(ctx, DocumentNode{
		ID:         in.ID,
		Kind:       string(domain.SourceIncident),
		Sector:     in.Sector,
		Published:  in.Reported,
		Protocols:  asStrings(in.Protocols),
		AssetTypes: asStrings(in.AssetTypes),
	})
	if err != nil {
		return err
	}
	for _, advID := range in.RelatedAdvisoryIDs {
		if err := s.RelateDocuments(ctx, in.ID, advID); err != nil {
			return fmt.Errorf("relate %s -> %s: %w", in.ID, advID, err)
		}
	}
	return nil
}

func (s *Store) saveDocument(ctx context.Context, d DocumentNode) error {
	sess := s.session(ctx)
	defer sess.Close(ctx)

	cypher := `MERGE (n:Document {id: $id}) SET n += $props`
	_, err := sess.Run(ctx, cypher, map[string]any{
		"id":    d.ID,
		"props": documentToMap(d),
	})
	return err
}

// RelateDocuments creates a RELATED_TO edge between two documents.
func (s *Store) RelateDocuments(ctx context.Context, fromID, toID string) error {
	sess := s.session(ctx)
	defer sess.Close(ctx)

	cypher := `MERGE (a:Document {id: $from})
	 MERGE (b:Document {id: $to})
	 MERGE (a)-[:RELATED_TO]->(b)`
	_, err := sess.Run(ctx, cypher, map[string]any{
		"from": fromID,
		"to":   toID,
	})
	return err
}

// Related returns documents within the given traversal depth from a document.
func (s *Store) Related(ctx context.Context, docID string, depth int) ([]DocumentNode, error) {
	if depth <= 0 {
		depth = 1
	}
	sess := s.session(ctx)
	defer sess.Close(ctx)

	cypher := fmt.Sprintf(
		`MATCH (start:Document {id: $id})-[:RELATED_TO*1..%d]-(n:Document)
		 WHERE n.id <> $id
		 RETURN DISTINCT n`, depth)
	res, err := sess.Run(ctx, cypher, map[string]any{"id": docID})
	if err != nil {
		return nil, err
	}
	return collectDocuments(ctx, res)
}

// RecordInteraction registers that a user viewed or acted on a document and
// bumps the document's interaction counter.
func (s *Store) RecordInteraction(ctx context.Context, userID, docID string) error {
	sess := s.session(ctx)
	defer sess.Close(ctx)

	cypher := `MERGE (u:User {id: $user})
	 MERGE (d:Document {id: $doc})
	 MERGE (u)-[r:INTERACTED]->(d)
	 ON CREATE SET r.count = 1
	 ON MATCH SET r.count = coalesce(r.count, 0) + 1
	 SET r.at = $at, d.interactions = coalesce(d.interactions, 0) + 1`
	_, err := sess.Run(ctx, cypher, map[string]any{
		"user": userID,
		"doc":  docID,
		"at":   s.now().UTC().Format(time.RFC3339),
	})
	return err
}

// RecentDocuments returns IDs of the documents a user interacted with,
// most recent first.
func (s *Store) RecentDocuments(ctx context.Context, userID string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 10
	}
	sess := s.session(ctx)
	defer sess.Close(ctx)

	cypher := `MATCH (u:User {id: $user})-[r:INTERACTED]->(d:Document)
	 RETURN d.id AS id
	 ORDER BY r.at DESC
	 LIMIT $limit`
	res, err := sess.Run(ctx, cypher, map[string]any{
		"user":  userID,
		"limit": limit,
	})
	if err != nil {
		return nil, err
	}
	var ids []string
	for res.Next(ctx) {
		if v, ok := res.Record().Get("id"); ok {
			if id, ok := v.(string); ok {
				ids = append(ids, id)
			}
		}
	}
	return ids, nil
}

// InteractionCounts returns interaction counters keyed by document ID. An
// empty id list returns counters for every document.
func (s *Store) InteractionCounts(ctx context.Context, ids []string) (map[string]int, error) {
	sess := s.session(ctx)
	defer sess.Close(ctx)

	if ids == nil {
		ids = []string{}
	}
	cypher := `MATCH (d:Document)
	 WHERE size($ids) = 0 OR d.id IN $ids
	 RETURN d.id AS id, coalesce(d.interactions, 0) AS count`
	res, err := sess.Run(ctx, cypher, map[string]any{"ids": ids})
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int)
	for res.Next(ctx) {
		rec := res.Record()
		idVal, ok := rec.Get("id")
		if !ok {
			continue
		}
		id, ok := idVal.(string)
		if !ok {
			continue
		}
		countVal, _ := rec.Get("count")
		switch c := countVal.(type) {
		case int64:
			counts[id] = int(c)
		case int:
			counts[id] = c
		}
	}
	return counts, nil
}

func collectDocuments(ctx context.Context, res result) ([]DocumentNode, error) {
	var docs []DocumentNode
	for res.Next(ctx) {
		d, err := documentFromRecord(res.Record())
		if err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	return docs, nil
}

func asStrings[T ~string](values []T) []string {
	if len(values) == 0 {
		return nil
	}
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = string(v)
	}
	return out
}
