package index

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/GridwatchAI/gridwatch-mvp/engine/domain"
)

func TestFlat_SaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	f := NewFlat(8)
	if err := f.Add(ctx, fiveChunks()); err != nil {
		t.Fatalf("Add: %v", err)
	}
	want, err := f.Search(ctx, []float32{0, 0, 1, 0, 0, 0, 0, 0}, 1)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}

	if err := f.Save(dir); err != nil {
		t.Fatalf("Save: %v", err)
	}
	for _, name := range []string{MatrixFile, SidecarFile} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Fatalf("artifact %s missing after Save: %v", name, err)
		}
	}

	fresh := NewFlat(4) // deliberately wrong dimension; Load is authoritative
	if err := fresh.Load(dir); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if fresh.Dimension() != 8 {
		t.Fatalf("dimension = %d, want 8", fresh.Dimension())
	}
	if n, _ := fresh.Count(ctx); n != 5 {
		t.Fatalf("count = %d, want 5", n)
	}

	got, err := fresh.Search(ctx, []float32{0, 0, 1, 0, 0, 0, 0, 0}, 1)
	if err != nil {
		t.Fatalf("Search after Load: %v", err)
	}
	if got[0].Chunk.ID != want[0].Chunk.ID {
		t.Fatalf("top-1 after round trip = %s, want %s", got[0].Chunk.ID, want[0].Chunk.ID)
	}
	if got[0].Score != want[0].Score {
		t.Fatalf("top-1 score after round trip = %f, want %f", got[0].Score, want[0].Score)
	}
}

func TestFlat_LoadMissingArtifacts(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	// Nothing there at all.
	f := NewFlat(8)
	if err := f.Load(dir); !errors.Is(err, domain.ErrIndexNotFound) {
		t.Fatalf("got %v, want ErrIndexNotFound", err)
	}

	// One artifact of the pair missing.
	full := NewFlat(8)
	if err := full.Add(ctx, fiveChunks()); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := full.Save(dir); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := os.Remove(filepath.Join(dir, SidecarFile)); err != nil {
		t.Fatalf("remove sidecar: %v", err)
	}
	if err := f.Load(dir); !errors.Is(err, domain.ErrIndexNotFound) {
		t.Fatalf("got %v, want ErrIndexNotFound", err)
	}
}

func TestFlat_LoadFailureLeavesStateUntouched(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	f := NewFlat(8)
	if err := f.Add(ctx, fiveChunks()); err != nil {
		t.Fatalf("Add: %v", err)
	}

	if err := f.Load(t.TempDir()); !errors.Is(err, domain.ErrIndexNotFound) {
		t.Fatalf("got %v, want ErrIndexNotFound", err)
	}
	if n, _ := f.Count(ctx); n != 5 {
		t.Fatalf("count = %d after failed Load, want 5", n)
	}

	// Malformed sidecar must also fail atomically.
	if err := f.Save(dir); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, SidecarFile), []byte("{not json"), 0o644); err != nil {
		t.Fatalf("corrupt sidecar: %v", err)
	}
	if err := f.Load(dir); err == nil {
		t.Fatal("expected error loading malformed sidecar")
	}
	if n, _ := f.Count(ctx); n != 5 {
		t.Fatalf("count = %d after malformed Load, want 5", n)
	}
}

func TestFlat_LoadRowCountMismatch(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	f := NewFlat(8)
	if err := f.Add(ctx, fiveChunks()); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := f.Save(dir); err != nil {
		t.Fatalf("Save: %v", err)
	}

	// Sidecar with fewer records than matrix rows.
	if err := os.WriteFile(filepath.Join(dir, SidecarFile), []byte("[]"), 0o644); err != nil {
		t.Fatalf("truncate sidecar: %v", err)
	}
	fresh := NewFlat(8)
	if err := fresh.Load(dir); err == nil {
		t.Fatal("expected row count mismatch error")
	}
	if n, _ := fresh.Count(ctx); n != 0 {
		t.Fatalf("count = %d after failed Load, want 0", n)
	}
}

func TestFlat_SaveLoadEmptyIndex(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	f := NewFlat(8)
	if err := f.Save(dir); err != nil {
		t.Fatalf("Save empty: %v", err)
	}
	fresh := NewFlat(8)
	if err := fresh.Load(dir); err != nil {
		t.Fatalf("Load empty: %v", err)
	}
	if n, _ := fresh.Count(ctx); n != 0 {
		t.Fatalf("count = %d, want 0", n)
	}
}
