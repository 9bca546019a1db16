package index

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/GridwatchAI/gridwatch-mvp/engine/domain"
)

// PointsAPI is the subset of the Qdrant points service this backend uses.
type PointsAPI interface {
	Upsert(ctx context.Context, in *pb.UpsertPoints, opts ...grpc.CallOption) (*pb.PointsOperationResponse, error)
	Delete(ctx context.Context, in *pb.DeletePoints, opts ...grpc.CallOption) (*pb.PointsOperationResponse, error)
	Search(ctx context.Context, in *pb.SearchPoints, opts ...grpc.CallOption) (*pb.SearchResponse, error)
	Count(ctx context.Context, in *pb.CountPoints, opts ...grpc.CallOption) (*pb.CountResponse, error)
}

// CollectionsAPI is the subset of the Qdrant collections service this
// backend uses.
type CollectionsAPI interface {
	List(ctx context.Context, in *pb.ListCollectionsRequest, opts ...grpc.CallOption) (*pb.ListCollectionsResponse, error)
	Create(ctx context.Context, in *pb.CreateCollection, opts ...grpc.CallOption) (*pb.CollectionOperationResponse, error)
}

// Qdrant is a Backend backed by a remote Qdrant collection. It exists for
// deployments where the corpus outgrows a single process; persistence is the
// server's concern, so it has no Save/Load.
type Qdrant struct {
	conn        *grpc.ClientConn
	points      PointsAPI
	collections CollectionsAPI
	collection  string
}

// NewQdrant creates a Qdrant backend connected at the given gRPC address.
func NewQdrant(addr, collection string) (*Qdrant, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("index: dial qdrant %s: %w", addr, err)
	}
	return &Qdrant{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		collection:  collection,
	}, nil
}

// NewQdrantWithClients creates a Qdrant backend from pre-built clients.
// Used by tests.
func NewQdrantWithClients(points PointsAPI, collections CollectionsAPI, collection string) *Qdrant {
	return &Qdrant{points: points, collections: collections, collection: collection}
}

// Close closes the underlying gRPC connection.
func (q *Qdrant) Close() error {
	if q.conn == nil {
		return nil
	}
	return q.conn.Close()
}

// EnsureCollection creates the cosine-distance collection if absent.
func (q *Qdrant) EnsureCollection(ctx context.Context, dim int) error {
	list, err := q.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("index: list collections: %w", err)
	}
	for _, c := range list.GetCollections() {
		if c.GetName() == q.collection {
			return nil
		}
	}

	_, err = q.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: q.collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(dim),
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("index: create collection %s: %w", q.collection, err)
	}
	return nil
}

// Add upserts chunks as points. Chunk identity lives in the payload; the
// point id is a UUID derived from the chunk id so re-adds overwrite.
func (q *Qdrant) Add(ctx context.Context, chunks []domain.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	points := make([]*pb.PointStruct, len(chunks))
	for i, c := range chunks {
		if c.Embedding == nil {
			return fmt.Errorf("index: chunk %s: %w", c.ID, domain.ErrUnembeddedChunk)
		}
		meta, err := json.Marshal(c.Metadata)
		if err != nil {
			return fmt.Errorf("index: marshal metadata for %s: %w", c.ID, err)
		}
		points[i] = &pb.PointStruct{
			Id: &pb.PointId{
				PointIdOptions: &pb.PointId_Uuid{Uuid: pointUUID(c.ID)},
			},
			Vectors: &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vector{
					Vector: &pb.Vector{Data: c.Embedding},
				},
			},
			Payload: map[string]*pb.Value{
				"chunk_id":    stringValue(c.ID),
				"source_id":   stringValue(c.SourceID),
				"source_type": stringValue(string(c.SourceType)),
				"content":     stringValue(c.Content),
				"metadata":    stringValue(string(meta)),
			},
		}
	}

	wait := true
	_, err := q.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: q.collection,
		Wait:           &wait,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("index: upsert %d points: %w", len(points), err)
	}
	return nil
}

// Search performs k-NN search and rebuilds chunk records from payloads.
func (q *Qdrant) Search(ctx context.Context, query []float32, topK int) ([]domain.ScoredChunk, error) {
	if topK <= 0 {
		return []domain.ScoredChunk{}, nil
	}
	resp, err := q.points.Search(ctx, &pb.SearchPoints{
		CollectionName: q.collection,
		Vector:         query,
		Limit:          uint64(topK),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, fmt.Errorf("index: qdrant search: %w", err)
	}

	results := make([]domain.ScoredChunk, 0, len(resp.GetResult()))
	for _, r := range resp.GetResult() {
		payload := r.GetPayload()
		c := domain.Chunk{
			ID:         payload["chunk_id"].GetStringValue(),
			SourceID:   payload["source_id"].GetStringValue(),
			SourceType: domain.SourceType(payload["source_type"].GetStringValue()),
			Content:    payload["content"].GetStringValue(),
		}
		if raw := payload["metadata"].GetStringValue(); raw != "" {
			if err := json.Unmarshal([]byte(raw), &c.Metadata); err != nil {
				return nil, fmt.Errorf("index: malformed payload metadata for %s: %w", c.ID, err)
			}
		}
		results = append(results, domain.ScoredChunk{Chunk: c, Score: r.GetScore()})
	}
	return results, nil
}

// Delete removes points whose chunk_id payload matches any of the ids.
func (q *Qdrant) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	should := make([]*pb.Condition, len(ids))
	for i, id := range ids {
		should[i] = fieldMatch("chunk_id", id)
	}

	wait := true
	_, err := q.points.Delete(ctx, &pb.DeletePoints{
		CollectionName: q.collection,
		Wait:           &wait,
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Filter{
				Filter: &pb.Filter{Should: should},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("index: delete %d points: %w", len(ids), err)
	}
	return nil
}

// Count returns the number of points in the collection.
func (q *Qdrant) Count(ctx context.Context) (int, error) {
	resp, err := q.points.Count(ctx, &pb.CountPoints{CollectionName: q.collection})
	if err != nil {
		return 0, fmt.Errorf("index: count points: %w", err)
	}
	return int(resp.GetResult().GetCount()), nil
}

// pointUUID derives a stable UUID for a chunk id. Qdrant point ids must be
// UUIDs or integers; chunk ids are 16 hex chars.
func pointUUID(chunkID string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(chunkID)).String()
}

func stringValue(s string) *pb.Value {
	return &pb.Value{Kind: &pb.Value_StringValue{StringValue: s}}
}

func fieldMatch(key, value string) *pb.Condition {
	return &pb.Condition{
		ConditionOneOf: &pb.Condition_Field{
			Field: &pb.FieldCondition{
				Key: key,
				Match: &pb.Match{
					MatchValue: &pb.Match_Keyword{Keyword: value},
				},
			},
		},
	}
}
