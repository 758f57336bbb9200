package memory

import (
	"errors"
	"math"
	"sort"
	"sync"
)

// ErrDimensionMismatch is returned when an embedding's length differs from
// the dimension the index was initialized with.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// VectorStore is an exact nearest-neighbor index over remembered Q&A pairs.
// Vectors are L2-normalized on insert so inner product equals cosine
// similarity. The index lives in process memory and starts empty on
// restart.
type VectorStore struct {
	mu      sync.RWMutex
	dim     int
	vectors [][]float32
	pairs   []QA
}

func NewVectorStore() *VectorStore {
	return &VectorStore{}
}

// Add indexes one Q&A exchange under the question's embedding. The first
// insert fixes the index dimension.
func (s *VectorStore) Add(question, answer string, embedding []float32) error {
	if len(embedding) == 0 {
		return ErrDimensionMismatch
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dim == 0 {
		s.dim = len(embedding)
	} else if len(embedding) != s.dim {
		return ErrDimensionMismatch
	}

	s.vectors = append(s.vectors, normalize(embedding))
	s.pairs = append(s.pairs, QA{Question: question, Answer: answer})
	return nil
}

// Len returns the number of indexed pairs.
func (s *VectorStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.pairs)
}

// Search returns up to topK pairs most similar to the query embedding, best
// first. An empty index yields no results.
func (s *VectorStore) Search(embedding []float32, topK int) []QA {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.pairs) == 0 || len(embedding) != s.dim || topK <= 0 {
		return nil
	}

	q := normalize(embedding)
	type scored struct {
		idx   int
		score float32
	}
	scores := make([]scored, len(s.vectors))
	for i, v := range s.vectors {
		scores[i] = scored{idx: i, score: dot(q, v)}
	}
	sort.SliceStable(scores, func(i, j int) bool {
		return scores[i].score > scores[j].score
	})

	if topK > len(scores) {
		topK = len(scores)
	}
	results := make([]QA, 0, topK)
	for _, sc := range scores[:topK] {
		results = append(results, s.pairs[sc.idx])
	}
	return results
}

func normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	norm := math.Sqrt(sum)
	out := make([]float32, len(v))
	if norm == 0 {
		copy(out, v)
		return out
	}
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

func dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}
