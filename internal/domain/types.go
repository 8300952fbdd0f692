package domain

import (
	"fmt"
	"strings"
	"time"
)

// Utterance is a single timed line of a transcript. Times are whole
// seconds from the start of the lecture.
type Utterance struct {
	Start int
	End   int
	Text  string
}

// Chunk is a fixed-duration slice of a lecture transcript, the atomic
// unit of retrieval. Immutable once produced by the chunker.
type Chunk struct {
	ID        string `json:"chunk_id"`
	LectureID string `json:"lecture_id"`
	Window    int    `json:"window_index"`
	Start     int    `json:"start_time"`
	End       int    `json:"end_time"`
	Text      string `json:"text"`
}

// DocumentName returns the remote document name for this chunk:
// {lecture_id}_{start_HH-MM-SS}_to_{end_HH-MM-SS}.txt
func (c Chunk) DocumentName() string {
	start := strings.ReplaceAll(FormatTime(c.Start), ":", "-")
	end := strings.ReplaceAll(FormatTime(c.End), ":", "-")
	return fmt.Sprintf("%s_%s_to_%s.txt", c.LectureID, start, end)
}

// TimeRange returns the chunk's span as "HH:MM:SS - HH:MM:SS".
func (c Chunk) TimeRange() string {
	return FormatTime(c.Start) + " - " + FormatTime(c.End)
}

// FormatTime converts total seconds to HH:MM:SS.
func FormatTime(totalSeconds int) string {
	if totalSeconds < 0 {
		totalSeconds = 0
	}
	h := totalSeconds / 3600
	m := (totalSeconds % 3600) / 60
	s := totalSeconds % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// EmbeddingRecord is one persisted chunk vector, tagged with the model
// identity that produced it.
type EmbeddingRecord struct {
	ChunkID string    `json:"chunk_id"`
	Vector  []float64 `json:"vector"`
	ModelID string    `json:"model_id"`
}

// CachedChunk pairs a chunk with its cached embedding. This is what a
// lecture-scoped embedding collection is made of.
type CachedChunk struct {
	Chunk   Chunk     `json:"chunk"`
	Vector  []float64 `json:"vector"`
	ModelID string    `json:"model_id"`
}

// StoreRecord maps an (institute, course) pair to a remote document
// store. Exactly one record exists per pair.
type StoreRecord struct {
	Institute string    `json:"institute"`
	Course    string    `json:"course"`
	StoreID   string    `json:"store_id"`
	CreatedAt time.Time `json:"created_at"`
}

// ChunkMatch is one chunk cited for an answer, with its similarity
// score and a short excerpt of the chunk text.
type ChunkMatch struct {
	Chunk      Chunk   `json:"chunk"`
	Similarity float64 `json:"similarity"`
	Excerpt    string  `json:"excerpt"`
}

// GroundingRef is a native source attribution returned by the provider
// alongside an answer.
type GroundingRef struct {
	Title string `json:"title,omitempty"`
	URI   string `json:"uri,omitempty"`
	Text  string `json:"text,omitempty"`
}

// Answer is the provider's response to a query. Grounding is nil when
// the provider returned no grounding metadata; callers branch on
// IsGrounded rather than probing fields.
type Answer struct {
	Text      string
	Grounding []GroundingRef
}

// IsGrounded reports whether the provider attached native grounding
// references to the answer.
func (a Answer) IsGrounded() bool { return len(a.Grounding) > 0 }

// QueryRecord is one append-only query log entry. Never mutated after
// being written.
type QueryRecord struct {
	Timestamp       time.Time      `json:"timestamp"`
	Institute       string         `json:"institute"`
	Course          string         `json:"course"`
	Query           string         `json:"query"`
	Answer          string         `json:"answer"`
	Model           string         `json:"model"`
	StoreID         string         `json:"store_id"`
	ResponseSeconds float64        `json:"response_time_seconds"`
	MatchedChunks   []ChunkMatch   `json:"matched_chunks,omitempty"`
	Grounding       []GroundingRef `json:"grounding,omitempty"`
	Degraded        bool           `json:"degraded,omitempty"`
}

// StoreInfo describes a remote document store.
type StoreInfo struct {
	ID              string
	DisplayName     string
	ActiveDocuments int
}

// DocumentInfo describes one document inside a remote store.
type DocumentInfo struct {
	Name  string
	State string
}

// Operation is a handle to an asynchronous remote upload. A handle can
// report Done with a non-empty Error; that is a terminal failure, not
// success.
type Operation struct {
	ID    string
	Done  bool
	Error string
}
