package embedding

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"lecture-rag/internal/domain"
	"lecture-rag/internal/logging"
)

type fakeEmbedder struct {
	model string
	calls int
	// failOn marks call ordinals (1-based) that return an error
	failOn map[int]bool
}

func (f *fakeEmbedder) ModelID() string { return f.model }

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	f.calls++
	if f.failOn[f.calls] {
		return nil, errors.New("embedding service unavailable")
	}
	out := make([][]float64, len(texts))
	for i := range texts {
		out[i] = []float64{float64(len(texts[i])), 1}
	}
	return out, nil
}

func makeChunks(n int) []domain.Chunk {
	chunks := make([]domain.Chunk, n)
	for i := range chunks {
		chunks[i] = domain.Chunk{
			ID:        fmt.Sprintf("lec1_%d", i),
			LectureID: "lec1",
			Window:    i,
			Start:     i * 30,
			End:       (i + 1) * 30,
			Text:      fmt.Sprintf("window %d text", i),
		}
	}
	return chunks
}

func TestEnsureEmbedded_ComputesAndPersists(t *testing.T) {
	dir := t.TempDir()
	emb := &fakeEmbedder{model: "m1"}
	store := NewStore(dir, emb, 2, logging.Nop())
	chunks := makeChunks(3)

	vectors, err := store.EnsureEmbedded(context.Background(), chunks)
	require.NoError(t, err)
	require.Len(t, vectors, 3)
	require.Equal(t, 2, emb.calls)

	cached, err := LoadCollection(dir)
	require.NoError(t, err)
	require.Len(t, cached, 3)
	require.Equal(t, "m1", cached[0].ModelID)
	require.Equal(t, chunks[0].ID, cached[0].Chunk.ID)
}

func TestEnsureEmbedded_ReusesCache(t *testing.T) {
	dir := t.TempDir()
	chunks := makeChunks(3)

	first := &fakeEmbedder{model: "m1"}
	_, err := NewStore(dir, first, 10, logging.Nop()).EnsureEmbedded(context.Background(), chunks)
	require.NoError(t, err)

	second := &fakeEmbedder{model: "m1"}
	vectors, err := NewStore(dir, second, 10, logging.Nop()).EnsureEmbedded(context.Background(), chunks)
	require.NoError(t, err)
	require.Len(t, vectors, 3)
	require.Equal(t, 0, second.calls)
}

func TestEnsureEmbedded_ModelChangeRecomputes(t *testing.T) {
	dir := t.TempDir()
	chunks := makeChunks(2)

	old := &fakeEmbedder{model: "m1"}
	_, err := NewStore(dir, old, 10, logging.Nop()).EnsureEmbedded(context.Background(), chunks)
	require.NoError(t, err)

	next := &fakeEmbedder{model: "m2"}
	vectors, err := NewStore(dir, next, 10, logging.Nop()).EnsureEmbedded(context.Background(), chunks)
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	require.Equal(t, 1, next.calls)

	cached, err := LoadCollection(dir)
	require.NoError(t, err)
	for _, cc := range cached {
		require.Equal(t, "m2", cc.ModelID)
	}
}

func TestEnsureEmbedded_PartialFailureKeepsSuccesses(t *testing.T) {
	dir := t.TempDir()
	chunks := makeChunks(4)

	emb := &fakeEmbedder{model: "m1", failOn: map[int]bool{2: true}}
	vectors, err := NewStore(dir, emb, 2, logging.Nop()).EnsureEmbedded(context.Background(), chunks)
	require.Error(t, err)
	require.Len(t, vectors, 2)

	// the first batch survived the second batch's failure
	cached, err := LoadCollection(dir)
	require.NoError(t, err)
	require.Len(t, cached, 2)

	// a retry only needs to embed what is missing
	retry := &fakeEmbedder{model: "m1"}
	vectors, err = NewStore(dir, retry, 2, logging.Nop()).EnsureEmbedded(context.Background(), chunks)
	require.NoError(t, err)
	require.Len(t, vectors, 4)
	require.Equal(t, 1, retry.calls)
}

func TestLoadCollection_Missing(t *testing.T) {
	cached, err := LoadCollection(filepath.Join(t.TempDir(), "nope"))
	require.NoError(t, err)
	require.Nil(t, cached)
}

func TestLoadCourse_GathersAllLectures(t *testing.T) {
	base := t.TempDir()
	for _, lec := range []string{"lec1", "lec2"} {
		dir := filepath.Join(base, lec+"_chunks")
		emb := &fakeEmbedder{model: "m1"}
		chunks := []domain.Chunk{{ID: lec + "_0", LectureID: lec, Start: 0, End: 30, Text: "t"}}
		_, err := NewStore(dir, emb, 10, logging.Nop()).EnsureEmbedded(context.Background(), chunks)
		require.NoError(t, err)
	}
	// unrelated directories are ignored
	require.NoError(t, os.MkdirAll(filepath.Join(base, "notes"), 0o755))

	all, err := LoadCourse(base)
	require.NoError(t, err)
	require.Len(t, all, 2)
}

func TestLoadCourse_MissingBaseDir(t *testing.T) {
	all, err := LoadCourse(filepath.Join(t.TempDir(), "absent"))
	require.NoError(t, err)
	require.Nil(t, all)
}
