package storemanager

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"lecture-rag/internal/domain"
	"lecture-rag/internal/logging"
)

// State is the upload lifecycle position of one chunk document.
type State string

const (
	StatePending   State = "PENDING"
	StateUploading State = "UPLOADING"
	StateVerifying State = "VERIFYING"
	StateActive    State = "ACTIVE"
	StateFailed    State = "FAILED"
)

// Document is one chunk document to upload.
type Document struct {
	Name    string
	Content []byte
}

// UploadResult reports the terminal state of one document upload.
type UploadResult struct {
	Document string
	State    State
	Attempts int
	Err      error
}

// Options tune the upload lifecycle. Zero values get sensible
// defaults; tests inject a fast sleep and a zero-delay backoff.
type Options struct {
	// PollInterval is the pause between status re-fetches while an
	// operation is VERIFYING.
	PollInterval time.Duration
	// MaxWait bounds the wall-clock time one upload attempt may spend
	// in VERIFYING before it is declared failed.
	MaxWait time.Duration
	// MaxAttempts bounds how many times a failed upload is retried
	// before the failure is terminal.
	MaxAttempts int
	// NewBackoff builds the delay schedule applied between attempts.
	NewBackoff func() backoff.BackOff
	// Sleep is the injectable time source for poll pauses.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Manager drives the provider's asynchronous upload lifecycle:
// PENDING → UPLOADING → VERIFYING → {ACTIVE | FAILED}.
type Manager struct {
	provider domain.Provider
	log      *logging.Logger
	opts     Options
}

// New creates a store manager over the given provider.
func New(p domain.Provider, log *logging.Logger, opts Options) *Manager {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Second
	}
	if opts.MaxWait <= 0 {
		opts.MaxWait = 5 * time.Minute
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 4
	}
	if opts.NewBackoff == nil {
		opts.NewBackoff = func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = time.Second
			b.MaxInterval = 30 * time.Second
			return b
		}
	}
	if opts.Sleep == nil {
		opts.Sleep = func(ctx context.Context, d time.Duration) error {
			timer := time.NewTimer(d)
			defer timer.Stop()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-timer.C:
				return nil
			}
		}
	}
	return &Manager{provider: p, log: log, opts: opts}
}

// EnsureStore returns the store carrying the given display name,
// creating one only when no existing store matches. Reuse keeps a
// retried upload run converging on one remote store instead of
// leaking a new store per attempt. The second return reports whether
// the store was created by this call.
func (m *Manager) EnsureStore(ctx context.Context, displayName string) (domain.StoreInfo, bool, error) {
	stores, err := m.provider.ListStores(ctx)
	if err != nil {
		return domain.StoreInfo{}, false, fmt.Errorf("listing stores: %w", err)
	}
	for _, s := range stores {
		if s.DisplayName == displayName {
			m.log.Info("reusing existing store", "store_id", s.ID, "display_name", displayName)
			return s, false, nil
		}
	}
	info, err := m.provider.CreateStore(ctx, displayName)
	if err != nil {
		return domain.StoreInfo{}, false, fmt.Errorf("creating store %q: %w", displayName, err)
	}
	m.log.Info("created store", "store_id", info.ID, "display_name", displayName)
	return info, true, nil
}

// UploadDocuments uploads every document to the store and drives each
// to a terminal state. Failures are reported per document; a failed
// document never blocks the others and is safe to retry later because
// uploads are idempotent by document name.
func (m *Manager) UploadDocuments(ctx context.Context, storeID string, docs []Document) []UploadResult {
	results := make([]UploadResult, 0, len(docs))
	for _, doc := range docs {
		results = append(results, m.UploadDocument(ctx, storeID, doc))
	}
	return results
}

// UploadDocument drives a single document to ACTIVE or FAILED,
// retrying transient failures with exponential backoff up to the
// configured attempt bound.
func (m *Manager) UploadDocument(ctx context.Context, storeID string, doc Document) UploadResult {
	result := UploadResult{Document: doc.Name, State: StatePending}
	policy := backoff.WithContext(backoff.WithMaxRetries(m.opts.NewBackoff(), uint64(m.opts.MaxAttempts-1)), ctx)

	err := backoff.Retry(func() error {
		result.Attempts++
		return m.attempt(ctx, storeID, doc, &result)
	}, policy)

	if err != nil {
		result.State = StateFailed
		result.Err = fmt.Errorf("%w: document %s after %d attempts: %v", domain.ErrUpload, doc.Name, result.Attempts, err)
		m.log.Error("upload failed", "document", doc.Name, "attempts", result.Attempts, "error", err)
		return result
	}
	result.State = StateActive
	result.Err = nil
	m.log.Info("upload active", "document", doc.Name, "attempts", result.Attempts)
	return result
}

// attempt performs one UPLOADING → VERIFYING pass. Any returned error
// is retryable by the backoff policy; the chunk stays unregistered
// until a pass completes cleanly.
func (m *Manager) attempt(ctx context.Context, storeID string, doc Document, result *UploadResult) error {
	result.State = StateUploading
	op, err := m.provider.UploadDocument(ctx, storeID, doc.Name, doc.Content)
	if err != nil {
		return fmt.Errorf("submit: %w", err)
	}
	opID := op.ID
	m.log.Debug("upload submitted", "document", doc.Name, "operation", opID)

	result.State = StateVerifying
	deadline := time.Now().Add(m.opts.MaxWait)
	for {
		// a handle does not self-update; re-fetch status every poll
		op, err = m.provider.GetOperation(ctx, opID)
		if err != nil {
			return fmt.Errorf("poll operation %s: %w", opID, err)
		}
		if op.Done {
			// done without success is still a failure
			if op.Error != "" {
				return fmt.Errorf("operation %s reported error: %s", opID, op.Error)
			}
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("operation %s did not complete within %s", opID, m.opts.MaxWait)
		}
		if err := m.opts.Sleep(ctx, m.opts.PollInterval); err != nil {
			return err
		}
	}
}
