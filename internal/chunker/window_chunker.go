package chunker

import (
	"fmt"
	"strings"

	"lecture-rag/internal/domain"
)

// WindowChunker groups utterances into fixed-duration, non-overlapping
// time windows. Windows are anchored at the prior window's end rather
// than at the triggering utterance's own start, so boundaries never
// drift.
type WindowChunker struct {
	interval int
}

// NewWindowChunker creates a chunker with the given window length in
// seconds.
func NewWindowChunker(intervalSeconds int) *WindowChunker {
	if intervalSeconds <= 0 {
		intervalSeconds = 30
	}
	return &WindowChunker{interval: intervalSeconds}
}

// Interval returns the configured window length in seconds.
func (c *WindowChunker) Interval() int { return c.interval }

// Chunk splits an ordered utterance sequence into chunks for the given
// lecture. An empty sequence yields an empty result. An utterance
// spanning a window boundary belongs entirely to the window containing
// its start. The trailing partial window is always emitted.
func (c *WindowChunker) Chunk(utterances []domain.Utterance, lectureID string) []domain.Chunk {
	if len(utterances) == 0 {
		return nil
	}

	windowStart := utterances[0].Start
	var chunks []domain.Chunk
	var current []domain.Utterance

	flush := func(end int) {
		if len(current) == 0 {
			return
		}
		idx := len(chunks)
		chunks = append(chunks, domain.Chunk{
			ID:        fmt.Sprintf("%s_%d", lectureID, idx),
			LectureID: lectureID,
			Window:    idx,
			Start:     windowStart,
			End:       end,
			Text:      joinTexts(current),
		})
		current = current[:0]
	}

	for _, u := range utterances {
		for u.Start >= windowStart+c.interval {
			flush(windowStart + c.interval)
			// advance in whole intervals; gaps produce no empty chunks
			windowStart += c.interval
		}
		current = append(current, u)
	}

	// trailing partial window, bounded by the last utterance's end
	last := utterances[len(utterances)-1].End
	if last < windowStart {
		last = windowStart
	}
	flush(last)

	return chunks
}

func joinTexts(utts []domain.Utterance) string {
	parts := make([]string, 0, len(utts))
	for _, u := range utts {
		if t := strings.TrimSpace(u.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " ")
}
