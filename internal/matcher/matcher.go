package matcher

import (
	"context"
	"fmt"
	"math"
	"sort"

	"lecture-rag/internal/domain"
)

// excerptRunes bounds the chunk text preview attached to a match.
const excerptRunes = 200

// Matcher ranks cached chunk embeddings by cosine similarity to an
// answer. It matches the provider's generated answer rather than the
// user's short question: answers are longer and topically denser, so
// they separate much better in embedding space.
type Matcher struct {
	embedder   domain.Embedder
	candidates []domain.CachedChunk
	// Skipped counts cached chunks whose vectors were produced under a
	// different model identity and therefore cannot be compared.
	Skipped int
}

// New builds a matcher over a set of cached chunks. Chunks embedded
// under a model identity other than the embedder's are rejected from
// comparison and counted in Skipped.
func New(embedder domain.Embedder, candidates []domain.CachedChunk) *Matcher {
	m := &Matcher{embedder: embedder}
	modelID := embedder.ModelID()
	for _, c := range candidates {
		if c.ModelID != modelID {
			m.Skipped++
			continue
		}
		m.candidates = append(m.candidates, c)
	}
	return m
}

// CandidateCount returns how many comparable chunks the matcher holds.
func (m *Matcher) CandidateCount() int { return len(m.candidates) }

// Match embeds the answer and returns up to topK chunks whose cosine
// similarity clears the threshold, sorted by similarity descending.
// Exact ties are ordered by earliest chunk start time, then lecture
// id, so the result is deterministic.
func (m *Matcher) Match(ctx context.Context, answer string, topK int, threshold float64) ([]domain.ChunkMatch, error) {
	if len(m.candidates) == 0 {
		return nil, nil
	}
	if topK <= 0 {
		topK = 3
	}
	vectors, err := m.embedder.EmbedBatch(ctx, []string{answer})
	if err != nil {
		return nil, fmt.Errorf("%w: embedding answer: %v", domain.ErrMatching, err)
	}
	if len(vectors) != 1 || len(vectors[0]) == 0 {
		return nil, fmt.Errorf("%w: embedding service returned no usable vector", domain.ErrMatching)
	}
	answerVec := vectors[0]

	matches := make([]domain.ChunkMatch, 0, len(m.candidates))
	for _, c := range m.candidates {
		sim := cosine(answerVec, c.Vector)
		if sim < threshold {
			continue
		}
		matches = append(matches, domain.ChunkMatch{
			Chunk:      c.Chunk,
			Similarity: sim,
			Excerpt:    excerpt(c.Chunk.Text),
		})
	}
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Similarity != matches[j].Similarity {
			return matches[i].Similarity > matches[j].Similarity
		}
		if matches[i].Chunk.Start != matches[j].Chunk.Start {
			return matches[i].Chunk.Start < matches[j].Chunk.Start
		}
		return matches[i].Chunk.LectureID < matches[j].Chunk.LectureID
	})
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

func cosine(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func excerpt(text string) string {
	runes := []rune(text)
	if len(runes) <= excerptRunes {
		return text
	}
	return string(runes[:excerptRunes]) + "..."
}
