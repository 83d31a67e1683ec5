package rag

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"sort"
)

// Chunk is one retrievable passage of a knowledge base.
type Chunk struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Source    string    `json:"source"`
	Embedding []float32 `json:"embedding"`
}

// ScoredChunk is a Chunk ranked against a query; higher Score is closer.
type ScoredChunk struct {
	Chunk
	Score float64
}

// Index finds the chunks nearest to a query embedding.
type Index interface {
	Search(ctx context.Context, query []float32, k int) ([]ScoredChunk, error)
}

// memoryIndex is a decoded index file searched by brute-force cosine
// similarity.
type memoryIndex struct {
	location string
	chunks   []Chunk
}

type indexFile struct {
	Chunks []Chunk `json:"chunks"`
}

func decodeIndex(r io.Reader, location string) (*memoryIndex, error) {
	var f indexFile
	if err := json.NewDecoder(r).Decode(&f); err != nil {
		return nil, fmt.Errorf("failed to decode index %s: %w", location, err)
	}
	if len(f.Chunks) == 0 {
		return nil, fmt.Errorf("index %s contains no chunks", location)
	}
	dim := len(f.Chunks[0].Embedding)
	for i, c := range f.Chunks {
		if len(c.Embedding) == 0 || len(c.Embedding) != dim {
			return nil, fmt.Errorf("chunk #%d in %s has embedding of length %d, want %d", i+1, location, len(c.Embedding), dim)
		}
	}
	return &memoryIndex{location: location, chunks: f.Chunks}, nil
}

func (m *memoryIndex) Search(_ context.Context, query []float32, k int) ([]ScoredChunk, error) {
	if len(m.chunks) > 0 && len(query) != len(m.chunks[0].Embedding) {
		return nil, fmt.Errorf("query embedding has %d dimensions but index %s has %d", len(query), m.location, len(m.chunks[0].Embedding))
	}

	scored := make([]ScoredChunk, len(m.chunks))
	for i, c := range m.chunks {
		scored[i] = ScoredChunk{Chunk: c, Score: cosine(query, c.Embedding)}
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })

	if k < len(scored) {
		scored = scored[:k]
	}
	return scored, nil
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
