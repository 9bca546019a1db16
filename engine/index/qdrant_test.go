package index

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"

	"github.com/GridwatchAI/gridwatch-mvp/engine/domain"
)

// --- mocks ---

type mockPoints struct {
	upsertReq  *pb.UpsertPoints
	upsertErr  error
	deleteReq  *pb.DeletePoints
	deleteErr  error
	searchResp *pb.SearchResponse
	searchErr  error
	countResp  *pb.CountResponse
	countErr   error
}

func (m *mockPoints) Upsert(_ context.Context, in *pb.UpsertPoints, _ ...grpc.CallOption) (*pb.PointsOperationResponse, error) {
	m.upsertReq = in
	return &pb.PointsOperationResponse{}, m.upsertErr
}

func (m *mockPoints) Delete(_ context.Context, in *pb.DeletePoints, _ ...grpc.CallOption) (*pb.PointsOperationResponse, error) {
	m.deleteReq = in
	return &pb.PointsOperationResponse{}, m.deleteErr
}

func (m *mockPoints) Search(_ context.Context, _ *pb.SearchPoints, _ ...grpc.CallOption) (*pb.SearchResponse, error) {
	return m.searchResp, m.searchErr
}

func (m *mockPoints) Count(_ context.Context, _ *pb.CountPoints, _ ...grpc.CallOption) (*pb.CountResponse, error) {
	return m.countResp, m.countErr
}

type mockCollections struct {
	listResp  *pb.ListCollectionsResponse
	listErr   error
	created   *pb.CreateCollection
	createErr error
}

func (m *mockCollections) List(_ context.Context, _ *pb.ListCollectionsRequest, _ ...grpc.CallOption) (*pb.ListCollectionsResponse, error) {
	return m.listResp, m.listErr
}

func (m *mockCollections) Create(_ context.Context, in *pb.CreateCollection, _ ...grpc.CallOption) (*pb.CollectionOperationResponse, error) {
	m.created = in
	return &pb.CollectionOperationResponse{}, m.createErr
}

// --- tests ---

func TestQdrant_EnsureCollection(t *testing.T) {
	cols := &mockCollections{
		listResp: &pb.ListCollectionsResponse{
			Collections: []*pb.CollectionDescription{{Name: "other"}},
		},
	}
	q := NewQdrantWithClients(&mockPoints{}, cols, "threat-chunks")

	if err := q.EnsureCollection(context.Background(), 8); err != nil {
		t.Fatalf("EnsureCollection: %v", err)
	}
	if cols.created == nil {
		t.Fatal("expected collection create")
	}
	if cols.created.GetCollectionName() != "threat-chunks" {
		t.Fatalf("created %q", cols.created.GetCollectionName())
	}

	// Existing collection: no create.
	cols.created = nil
	cols.listResp = &pb.ListCollectionsResponse{
		Collections: []*pb.CollectionDescription{{Name: "threat-chunks"}},
	}
	if err := q.EnsureCollection(context.Background(), 8); err != nil {
		t.Fatalf("EnsureCollection existing: %v", err)
	}
	if cols.created != nil {
		t.Fatal("created collection that already exists")
	}
}

func TestQdrant_AddRequiresEmbedding(t *testing.T) {
	q := NewQdrantWithClients(&mockPoints{}, &mockCollections{}, "c")
	err := q.Add(context.Background(), []domain.Chunk{{ID: "x"}})
	if !errors.Is(err, domain.ErrUnembeddedChunk) {
		t.Fatalf("got %v, want ErrUnembeddedChunk", err)
	}
}

func TestQdrant_AddBuildsPayload(t *testing.T) {
	points := &mockPoints{}
	q := NewQdrantWithClients(points, &mockCollections{}, "c")

	ch := domain.Chunk{
		ID:         "abcd1234abcd1234",
		SourceID:   "ICSA-24-001-01",
		SourceType: domain.SourceAdvisory,
		Content:    "advisory body",
		Metadata:   domain.Metadata{Severity: "high", Protocols: []string{"modbus"}},
		Embedding:  []float32{0.1, 0.2},
	}
	if err := q.Add(context.Background(), []domain.Chunk{ch}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if points.upsertReq == nil || len(points.upsertReq.GetPoints()) != 1 {
		t.Fatal("expected one upserted point")
	}
	payload := points.upsertReq.GetPoints()[0].GetPayload()
	if payload["chunk_id"].GetStringValue() != ch.ID {
		t.Fatalf("chunk_id payload = %q", payload["chunk_id"].GetStringValue())
	}
	var meta domain.Metadata
	if err := json.Unmarshal([]byte(payload["metadata"].GetStringValue()), &meta); err != nil {
		t.Fatalf("metadata payload: %v", err)
	}
	if meta.Severity != "high" {
		t.Fatalf("metadata severity = %q", meta.Severity)
	}
}

func TestQdrant_SearchRebuildsChunks(t *testing.T) {
	meta, _ := json.Marshal(domain.Metadata{Severity: "critical"})
	points := &mockPoints{
		searchResp: &pb.SearchResponse{
			Result: []*pb.ScoredPoint{
				{
					Score: 0.91,
					Payload: map[string]*pb.Value{
						"chunk_id":    stringValue("id-1"),
						"source_id":   stringValue("src-1"),
						"source_type": stringValue("advisory"),
						"content":     stringValue("text"),
						"metadata":    stringValue(string(meta)),
					},
				},
			},
		},
	}
	q := NewQdrantWithClients(points, &mockCollections{}, "c")

	results, err := q.Search(context.Background(), []float32{1, 0}, 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results", len(results))
	}
	got := results[0]
	if got.Chunk.ID != "id-1" || got.Chunk.SourceType != domain.SourceAdvisory {
		t.Fatalf("chunk = %+v", got.Chunk)
	}
	if got.Chunk.Metadata.Severity != "critical" {
		t.Fatalf("metadata = %+v", got.Chunk.Metadata)
	}
	if got.Score != 0.91 {
		t.Fatalf("score = %f", got.Score)
	}
}

func TestQdrant_DeleteByChunkID(t *testing.T) {
	points := &mockPoints{}
	q := NewQdrantWithClients(points, &mockCollections{}, "c")

	if err := q.Delete(context.Background(), []string{"a", "b"}); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	filter := points.deleteReq.GetPoints().GetFilter()
	if len(filter.GetShould()) != 2 {
		t.Fatalf("filter conditions = %d, want 2", len(filter.GetShould()))
	}

	// Empty id set is a no-op.
	points.deleteReq = nil
	if err := q.Delete(context.Background(), nil); err != nil {
		t.Fatalf("Delete empty: %v", err)
	}
	if points.deleteReq != nil {
		t.Fatal("delete issued for empty id set")
	}
}

func TestQdrant_Count(t *testing.T) {
	count := uint64(7)
	points := &mockPoints{
		countResp: &pb.CountResponse{Result: &pb.CountResult{Count: count}},
	}
	q := NewQdrantWithClients(points, &mockCollections{}, "c")

	n, err := q.Count(context.Background())
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 7 {
		t.Fatalf("count = %d, want 7", n)
	}
}

func TestQdrant_SearchError(t *testing.T) {
	points := &mockPoints{searchErr: errors.New("unavailable")}
	q := NewQdrantWithClients(points, &mockCollections{}, "c")
	if _, err := q.Search(context.Background(), []float32{1}, 5); err == nil {
		t.Fatal("expected error")
	}
}
