package retrieval

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/GridwatchAI/gridwatch-mvp/engine/domain"
	"github.com/GridwatchAI/gridwatch-mvp/engine/index"
)

type mockEmbedder struct {
	vec []float32
	err error
}

func (m *mockEmbedder) EmbedText(_ context.Context, _ string) ([]float32, error) {
	return m.vec, m.err
}

func seededIndex(t *testing.T) *index.Flat {
	t.Helper()
	flat := index.NewFlat(4)
	chunks := []domain.Chunk{
		{
			ID: "adv-high", SourceID: "adv-1", SourceType: "advisory",
			Content:   "Critical Modbus advisory",
			Embedding: []float32{1, 0, 0, 0},
			Metadata: domain.Metadata{
				Severity:   "critical",
				Protocols:  []string{"modbus"},
				AssetTypes: []string{"plc"},
				Published:  time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
			},
		},
		{
			ID: "rep-mal", SourceID: "rep-1", SourceType: "threat_report",
			Content:   "Malware targeting DNP3",
			Embedding: []float32{0.9, 0.1, 0, 0},
			Metadata: domain.Metadata{
				Severity:       "high",
				Protocols:      []string{"dnp3"},
				ThreatCategory: "malware",
				Published:      time.Date(2023, 2, 1, 0, 0, 0, 0, time.UTC),
			},
		},
		{
			ID: "inc-old", SourceID: "inc-1", SourceType: "incident",
			Content:   "Legacy SCADA incident",
			Embedding: []float32{0.5, 0.5, 0, 0},
			Metadata: domain.Metadata{
				AssetTypes: []string{"scada"},
				Published:  time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
			},
		},
		{
			ID: "untagged", SourceID: "misc-1", SourceType: "advisory",
			Content:   "Sparse advisory with no tags",
			Embedding: []float32{0.2, 0.8, 0, 0},
			Metadata:  domain.Metadata{},
		},
	}
	if err := flat.Add(context.Background(), chunks); err != nil {
		t.Fatalf("seed index: %v", err)
	}
	return flat
}

func TestRetrieveNoFilters(t *testing.T) {
	flat := seededIndex(t)
	r := NewHybridRetriever(&mockEmbedder{vec: []float32{1, 0, 0, 0}}, flat, DefaultOptions(), nil)

	got, err := r.Retrieve(context.Background(), "modbus exploit", 2, domain.QueryFilters{})
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d results, want 2", len(got))
	}
	if got[0].Chunk.ID != "adv-high" {
		t.Errorf("top result = %q, want adv-high", got[0].Chunk.ID)
	}
	if got[0].Score < got[1].Score {
		t.Errorf("scores not descending: %v >= %v expected", got[0].Score, got[1].Score)
	}
}

func TestRetrieveEmbedError(t *testing.T) {
	flat := seededIndex(t)
	wantErr := errors.New("bedrock unavailable")
	r := NewHybridRetriever(&mockEmbedder{err: wantErr}, flat, DefaultOptions(), nil)

	if _, err := r.Retrieve(context.Background(), "q", 3, domain.QueryFilters{}); !errors.Is(err, wantErr) {
		t.Errorf("Retrieve() error = %v, want wrapped %v", err, wantErr)
	}
}

func TestApplyFilters(t *testing.T) {
	flat := seededIndex(t)
	r := NewHybridRetriever(&mockEmbedder{vec: []float32{1, 0, 0, 0}}, flat, DefaultOptions(), nil)

	tests := []struct {
		name    string
		filters domain.QueryFilters
		wantIDs []string
	}{
		{
			name:    "severity keeps untagged",
			filters: domain.QueryFilters{Severity: []domain.Severity{"critical"}},
			wantIDs: []string{"adv-high", "inc-old", "untagged"},
		},
		{
			name:    "protocol overlap keeps untagged",
			filters: domain.QueryFilters{Protocols: []domain.Protocol{"modbus"}},
			wantIDs: []string{"adv-high", "inc-old", "untagged"},
		},
		{
			name:    "asset type overlap keeps untagged",
			filters: domain.QueryFilters{AssetTypes: []domain.AssetType{"scada"}},
			wantIDs: []string{"rep-mal", "inc-old", "untagged"},
		},
		{
			name:    "threat category is strict",
			filters: domain.QueryFilters{ThreatCategories: []domain.ThreatCategory{"malware"}},
			wantIDs: []string{"rep-mal"},
		},
		{
			name: "date range passes undated chunks",
			filters: domain.QueryFilters{
				DateFrom: time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
				DateTo:   time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC),
			},
			wantIDs: []string{"adv-high", "rep-mal", "untagged"},
		},
		{
			name: "combined",
			filters: domain.QueryFilters{
				Severity:  []domain.Severity{"high", "critical"},
				Protocols: []domain.Protocol{"dnp3"},
			},
			wantIDs: []string{"rep-mal", "inc-old", "untagged"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Retrieve(context.Background(), "q", 10, tt.filters)
			if err != nil {
				t.Fatalf("Retrieve() error = %v", err)
			}
			ids := make(map[string]bool, len(got))
			for _, sc := range got {
				ids[sc.Chunk.ID] = true
			}
			if len(got) != len(tt.wantIDs) {
				t.Fatalf("got %d results %v, want %d", len(got), ids, len(tt.wantIDs))
			}
			for _, id := range tt.wantIDs {
				if !ids[id] {
					t.Errorf("missing %q in results", id)
				}
			}
		})
	}
}

func TestRetrieveAssetFilterExcludes(t *testing.T) {
	flat := seededIndex(t)
	r := NewHybridRetriever(&mockEmbedder{vec: []float32{1, 0, 0, 0}}, flat, DefaultOptions(), nil)

	got, err := r.Retrieve(context.Background(), "q", 10, domain.QueryFilters{
		AssetTypes: []domain.AssetType{"plc"},
	})
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	for _, sc := range got {
		if sc.Chunk.ID == "inc-old" {
			t.Error("inc-old has asset types without plc and must be filtered out")
		}
	}
}

func TestDocumentCount(t *testing.T) {
	flat := seededIndex(t)
	r := NewHybridRetriever(&mockEmbedder{vec: []float32{1, 0, 0, 0}}, flat, Options{}, nil)

	n, err := r.DocumentCount(context.Background())
	if err != nil {
		t.Fatalf("DocumentCount() error = %v", err)
	}
	if n != 4 {
		t.Errorf("DocumentCount() = %d, want 4", n)
	}
}
