package rank

import (
	"math"
	"testing"
	"time"
)

func fixedExtractor(now time.Time) *Extractor {
	return NewExtractorAt(func() time.Time { return now })
}

func TestEmbeddingSimilarity(t *testing.T) {
	tests := []struct {
		name string
		q, d []float32
		want float64
	}{
		{"identical", []float32{1, 0, 0}, []float32{1, 0, 0}, 1.0},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0.0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1.0},
		{"zero query", []float32{0, 0}, []float32{1, 0}, 0.0},
		{"zero doc", []float32{1, 0}, []float32{0, 0}, 0.0},
		{"scale invariant", []float32{2, 0}, []float32{5, 0}, 1.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EmbeddingSimilarity(tt.q, tt.d)
			if math.Abs(got-tt.want) > 1e-6 {
				t.Errorf("EmbeddingSimilarity() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTemporalDecay(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	e := fixedExtractor(now)

	if got := e.TemporalDecay(now, DefaultHalfLifeDays); math.Abs(got-1.0) > 0.01 {
		t.Errorf("decay at publication = %v, want ~1.0", got)
	}
	if got := e.TemporalDecay(now.AddDate(0, 0, -180), 180); math.Abs(got-0.5) > 0.001 {
		t.Errorf("decay at half-life = %v, want 0.5", got)
	}
	if got := e.TemporalDecay(now.AddDate(0, 0, -365), 180); got <= 0 || got >= 0.5 {
		t.Errorf("decay past half-life = %v, want in (0, 0.5)", got)
	}
	if got := e.TemporalDecay(now.AddDate(0, 0, 10), DefaultHalfLifeDays); got != 1.0 {
		t.Errorf("decay for future date = %v, want 1.0", got)
	}
}

func TestMetadataMatch(t *testing.T) {
	tests := []struct {
		name string
		a, b []string
		want float64
	}{
		{"identical", []string{"modbus", "dnp3"}, []string{"modbus", "dnp3"}, 1.0},
		{"disjoint", []string{"modbus"}, []string{"dnp3"}, 0.0},
		{"partial", []string{"modbus", "dnp3"}, []string{"modbus", "opc-ua"}, 1.0 / 3.0},
		{"both empty", nil, nil, 0.0},
		{"one empty", []string{"modbus"}, nil, 0.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MetadataMatch(tt.a, tt.b)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("MetadataMatch(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestPopularityScore(t *testing.T) {
	if got := PopularityScore(0, 100); got != 0.0 {
		t.Errorf("score for zero interactions = %v, want 0.0", got)
	}
	if got := PopularityScore(-3, 100); got != 0.0 {
		t.Errorf("score for negative interactions = %v, want 0.0", got)
	}
	if got := PopularityScore(100, 100); math.Abs(got-1.0) > 1e-9 {
		t.Errorf("score at cap = %v, want 1.0", got)
	}
	if got := PopularityScore(10, 100); got <= 0 || got >= 1 {
		t.Errorf("mid-range score = %v, want in (0, 1)", got)
	}
	if got := PopularityScore(500, 100); math.Abs(got-1.0) > 1e-9 {
		t.Errorf("score beyond cap = %v, want clamped to 1.0", got)
	}
}

func TestRecencyBoost(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	e := fixedExtractor(now)

	if got := e.RecencyBoost(now, DefaultBoostDays); math.Abs(got-1.0) > 0.05 {
		t.Errorf("boost for fresh doc = %v, want ~1.0", got)
	}
	if got := e.RecencyBoost(now.AddDate(0, 0, -60), 30); got != 0.0 {
		t.Errorf("boost beyond window = %v, want 0.0", got)
	}
	if got := e.RecencyBoost(now.AddDate(0, 0, 5), DefaultBoostDays); got != 1.0 {
		t.Errorf("boost for future doc = %v, want 1.0", got)
	}
	if got := e.RecencyBoost(now.AddDate(0, 0, -15), 30); math.Abs(got-0.5) > 0.001 {
		t.Errorf("boost mid-window = %v, want 0.5", got)
	}
}

func TestExtract(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	e := fixedExtractor(now)

	f := e.Extract(
		[]float32{0.1, 0.2}, []float32{0.1, 0.2},
		now,
		[]string{"modbus"}, []string{"modbus", "dnp3"},
		[]string{"plc"}, []string{"plc"},
		5,
	)
	if len(f) != NumFeatures {
		t.Fatalf("Extract() returned %d features, want %d", len(f), NumFeatures)
	}
	if math.Abs(f[FeatEmbeddingSimilarity]-1.0) > 1e-6 {
		t.Errorf("similarity = %v, want 1.0", f[FeatEmbeddingSimilarity])
	}
	if math.Abs(f[FeatProtocolMatch]-0.5) > 1e-9 {
		t.Errorf("protocol match = %v, want 0.5", f[FeatProtocolMatch])
	}
	if f[FeatAssetTypeMatch] != 1.0 {
		t.Errorf("asset match = %v, want 1.0", f[FeatAssetTypeMatch])
	}
	for i, v := range f {
		if v < -1.0 || v > 1.0 {
			t.Errorf("feature %s = %v, out of expected range", FeatureNames[i], v)
		}
	}
}
