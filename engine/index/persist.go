package index

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/GridwatchAI/gridwatch-mvp/engine/domain"
)

const (
	// MatrixFile is the serialized flat inner-product matrix artifact.
	MatrixFile = "index.bin"
	// SidecarFile is the chunk-record sidecar artifact.
	SidecarFile = "metadata.json"

	matrixMagic   = uint32(0x47574658) // "GWFX"
	matrixVersion = uint32(1)
)

// Save writes both index artifacts into dir: the normalised embedding matrix
// and the chunk-record sidecar. The pair must be read together by Load.
func (f *Flat) Save(dir string) error {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("index: create %s: %w", dir, err)
	}
	if err := f.saveMatrix(filepath.Join(dir, MatrixFile)); err != nil {
		return err
	}
	return f.saveSidecar(filepath.Join(dir, SidecarFile))
}

func (f *Flat) saveMatrix(path string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("index: create %s: %w", path, err)
	}
	defer file.Close()

	w := bufio.NewWriter(file)
	header := []uint32{matrixMagic, matrixVersion, uint32(f.dim), uint32(len(f.chunks))}
	for _, h := range header {
		if err := binary.Write(w, binary.LittleEndian, h); err != nil {
			return fmt.Errorf("index: write %s: %w", path, err)
		}
	}
	if err := binary.Write(w, binary.LittleEndian, f.matrix); err != nil {
		return fmt.Errorf("index: write %s: %w", path, err)
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("index: write %s: %w", path, err)
	}
	return file.Sync()
}

func (f *Flat) saveSidecar(path string) error {
	data, err := json.Marshal(f.chunks)
	if err != nil {
		return fmt.Errorf("index: marshal sidecar: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("index: write %s: %w", path, err)
	}
	return nil
}

// Load replaces the index contents from the artifact pair in dir. If either
// artifact is missing it fails with domain.ErrIndexNotFound; on any failure
// the prior in-memory state is left untouched. The loaded dimension is
// authoritative.
func (f *Flat) Load(dir string) error {
	matrixPath := filepath.Join(dir, MatrixFile)
	sidecarPath := filepath.Join(dir, SidecarFile)
	for _, p := range []string{matrixPath, sidecarPath} {
		if _, err := os.Stat(p); err != nil {
			return fmt.Errorf("index: %s: %w", p, domain.ErrIndexNotFound)
		}
	}

	dim, rows, matrix, err := readMatrix(matrixPath)
	if err != nil {
		return err
	}

	raw, err := os.ReadFile(sidecarPath)
	if err != nil {
		return fmt.Errorf("index: read %s: %w", sidecarPath, err)
	}
	var chunks []domain.Chunk
	if err := json.Unmarshal(raw, &chunks); err != nil {
		return fmt.Errorf("index: malformed sidecar %s: %w", sidecarPath, err)
	}
	if len(chunks) != rows {
		return fmt.Errorf("index: sidecar has %d records, matrix has %d rows", len(chunks), rows)
	}
	pos := make(map[string]int, len(chunks))
	for i, c := range chunks {
		if c.ID == "" {
			return fmt.Errorf("index: sidecar record %d has no id", i)
		}
		pos[c.ID] = i
	}
	if len(pos) != len(chunks) {
		return fmt.Errorf("index: sidecar contains duplicate chunk ids")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.dim = dim
	f.chunks = chunks
	f.matrix = matrix
	f.pos = pos
	return nil
}

func readMatrix(path string) (dim, rows int, matrix []float32, err error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, 0, nil, fmt.Errorf("index: open %s: %w", path, err)
	}
	defer file.Close()

	r := bufio.NewReader(file)
	var header [4]uint32
	for i := range header {
		if err := binary.Read(r, binary.LittleEndian, &header[i]); err != nil {
			return 0, 0, nil, fmt.Errorf("index: read %s header: %w", path, err)
		}
	}
	if header[0] != matrixMagic {
		return 0, 0, nil, fmt.Errorf("index: %s: bad magic %#x", path, header[0])
	}
	if header[1] != matrixVersion {
		return 0, 0, nil, fmt.Errorf("index: %s: unsupported version %d", path, header[1])
	}
	dim, rows = int(header[2]), int(header[3])
	if dim <= 0 {
		return 0, 0, nil, fmt.Errorf("index: %s: invalid dimension %d", path, dim)
	}

	matrix = make([]float32, dim*rows)
	if err := binary.Read(r, binary.LittleEndian, matrix); err != nil {
		return 0, 0, nil, fmt.Errorf("index: read %s matrix: %w", path, err)
	}
	return dim, rows, matrix, nil
}
