package query

import (
	"context"
	"errors"
	"fmt"
	"time"

	"lecture-rag/internal/domain"
	"lecture-rag/internal/logging"
	"lecture-rag/internal/registry"
)

// Engine orchestrates a query: resolve the course's store through the
// registry, ask the provider, then attach chunk references: native
// grounding when the provider returns it, answer-similarity matching
// otherwise.
type Engine struct {
	registry *registry.Registry
	provider domain.Provider
	// matcher may be nil when no embedding collections are available;
	// queries then degrade to answers without chunk references.
	matcher   domain.Matcher
	queryLog  *Logger
	log       *logging.Logger
	institute string
	course    string
	model     string
	topK      int
	threshold float64
	timeout   time.Duration
}

// Config assembles an Engine.
type Config struct {
	Registry  *registry.Registry
	Provider  domain.Provider
	Matcher   domain.Matcher
	QueryLog  *Logger
	Log       *logging.Logger
	Institute string
	Course    string
	Model     string
	TopK      int
	Threshold float64
	Timeout   time.Duration
}

// Result is one answered query with its citations.
type Result struct {
	Query           string
	Answer          string
	StoreID         string
	ResponseSeconds float64
	Matches         []domain.ChunkMatch
	Grounding       []domain.GroundingRef
	// Degraded is set when chunk matching was attempted but failed;
	// the answer is still valid, it just carries no references.
	Degraded bool
}

// NewEngine builds a query engine.
func NewEngine(cfg Config) *Engine {
	topK := cfg.TopK
	if topK <= 0 {
		topK = 3
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	log := cfg.Log
	if log == nil {
		log = logging.Nop()
	}
	return &Engine{
		registry:  cfg.Registry,
		provider:  cfg.Provider,
		matcher:   cfg.Matcher,
		queryLog:  cfg.QueryLog,
		log:       log,
		institute: cfg.Institute,
		course:    cfg.Course,
		model:     cfg.Model,
		topK:      topK,
		threshold: cfg.Threshold,
		timeout:   timeout,
	}
}

// Ask answers a single user query and appends a record to the query
// log. Matching failures never fail the query; they degrade it to an
// answer without chunk references.
func (e *Engine) Ask(ctx context.Context, userQuery string) (Result, error) {
	rec, err := e.registry.Lookup(e.institute, e.course)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return Result{}, fmt.Errorf("%w: no store registered for %s / %s; run an upload first",
				domain.ErrConfiguration, e.institute, e.course)
		}
		return Result{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := time.Now()
	answer, err := e.provider.GenerateAnswer(ctx, rec.StoreID, userQuery)
	if err != nil {
		return Result{}, fmt.Errorf("provider query against store %s: %w", rec.StoreID, err)
	}
	elapsed := time.Since(start)

	result := Result{
		Query:           userQuery,
		Answer:          answer.Text,
		StoreID:         rec.StoreID,
		ResponseSeconds: elapsed.Seconds(),
	}

	if answer.IsGrounded() {
		result.Grounding = answer.Grounding
		e.log.Debug("provider returned native grounding", "refs", len(answer.Grounding))
	} else if e.matcher != nil {
		matches, err := e.matcher.Match(ctx, answer.Text, e.topK, e.threshold)
		if err != nil {
			result.Degraded = true
			e.log.Warn("chunk matching degraded, answer returned without references",
				"store", rec.StoreID, "error", err)
		} else {
			result.Matches = matches
		}
	}

	if e.queryLog != nil {
		logErr := e.queryLog.Append(domain.QueryRecord{
			Timestamp:       time.Now().UTC(),
			Institute:       e.institute,
			Course:          e.course,
			Query:           userQuery,
			Answer:          answer.Text,
			Model:           e.model,
			StoreID:         rec.StoreID,
			ResponseSeconds: round2(elapsed.Seconds()),
			MatchedChunks:   result.Matches,
			Grounding:       result.Grounding,
			Degraded:        result.Degraded,
		})
		if logErr != nil {
			e.log.Warn("query log append failed", "error", logErr)
		}
	}
	return result, nil
}

func round2(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}
