package vector

import (
	"context"
	"fmt"
	"math"
	"reflect"
	"sort"
	"sync"
)

// MemoryIndex is a brute-force cosine index held in memory. It suits tests
// and the embedded backend; every search scans all documents.
type MemoryIndex struct {
	embedder Embedder

	mu   sync.RWMutex
	docs map[string]document
	// order keeps results deterministic when scores tie.
	order []string
}

type document struct {
	content   string
	metadata  map[string]any
	embedding []float32
}

var (
	_ Searcher = (*MemoryIndex)(nil)
	_ Indexer  = (*MemoryIndex)(nil)
)

// NewMemoryIndex creates an empty index.
func NewMemoryIndex(embedder Embedder) *MemoryIndex {
	return &MemoryIndex{embedder: embedder, docs: make(map[string]document)}
}

// Upsert embeds content and stores it under id, replacing any previous
// document with that id.
func (m *MemoryIndex) Upsert(ctx context.Context, id, content string, metadata map[string]any) error {
	emb, err := m.embedder.Embed(ctx, content)
	if err != nil {
		return fmt.Errorf("embedding document %s: %w", id, err)
	}

	md := make(map[string]any, len(metadata))
	for k, v := range metadata {
		md[k] = v
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[id]; !ok {
		m.order = append(m.order, id)
	}
	m.docs[id] = document{content: content, metadata: md, embedding: emb}
	return nil
}

// Delete removes a document. It reports whether one was removed.
func (m *MemoryIndex) Delete(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[id]; !ok {
		return false
	}
	delete(m.docs, id)
	for i, o := range m.order {
		if o == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return true
}

// Len returns the number of documents.
func (m *MemoryIndex) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.docs)
}

// Search returns the k documents most similar to text. Negative cosine
// similarities are clamped to 0.
func (m *MemoryIndex) Search(ctx context.Context, text string, k int, filters map[string]any) ([]Result, error) {
	if k <= 0 {
		return nil, nil
	}
	query, err := m.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	m.mu.RLock()
	results := make([]Result, 0, len(m.docs))
	for _, id := range m.order {
		doc := m.docs[id]
		if !matchFilters(doc.metadata, filters) {
			continue
		}
		md := make(map[string]any, len(doc.metadata))
		for k, v := range doc.metadata {
			md[k] = v
		}
		results = append(results, Result{
			Content:  doc.content,
			Metadata: md,
			Score:    math.Max(0, cosineSimilarity(query, doc.embedding)),
		})
	}
	m.mu.RUnlock()

	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

func matchFilters(metadata, filters map[string]any) bool {
	for k, want := range filters {
		got, ok := metadata[k]
		if !ok || !reflect.DeepEqual(got, want) {
			return false
		}
	}
	return true
}

// cosineSimilarity returns 0 for empty, mismatched or zero vectors.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, magA, magB float64
	for i := range a {
		ai, bi := float64(a[i]), float64(b[i])
		dot += ai * bi
		magA += ai * ai
		magB += bi * bi
	}

	mag := math.Sqrt(magA * magB)
	if mag == 0 {
		return 0
	}
	return dot / mag
}
