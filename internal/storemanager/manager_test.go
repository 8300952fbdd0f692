package storemanager

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/require"

	"lecture-rag/internal/domain"
	"lecture-rag/internal/logging"
)

// fakeProvider scripts upload submissions and operation polls.
type fakeProvider struct {
	uploadErrs []error
	uploads    int

	// ops maps an operation id to its scripted poll responses; each
	// poll consumes one entry, the last entry repeats.
	ops   map[string][]domain.Operation
	polls map[string]int
	// pollErrs fails GetOperation for the given operation id.
	pollErrs map[string]error

	stores  []domain.StoreInfo
	listErr error
	created []string
}

func (f *fakeProvider) UploadDocument(ctx context.Context, storeID, name string, content []byte) (domain.Operation, error) {
	call := f.uploads
	f.uploads++
	if call < len(f.uploadErrs) && f.uploadErrs[call] != nil {
		return domain.Operation{}, f.uploadErrs[call]
	}
	return domain.Operation{ID: "op-" + name}, nil
}

func (f *fakeProvider) GetOperation(ctx context.Context, operationID string) (domain.Operation, error) {
	if err := f.pollErrs[operationID]; err != nil {
		return domain.Operation{}, err
	}
	if f.polls == nil {
		f.polls = map[string]int{}
	}
	script := f.ops[operationID]
	if len(script) == 0 {
		return domain.Operation{}, errors.New("unknown operation")
	}
	i := f.polls[operationID]
	f.polls[operationID]++
	if i >= len(script) {
		i = len(script) - 1
	}
	return script[i], nil
}

func (f *fakeProvider) CreateStore(ctx context.Context, displayName string) (domain.StoreInfo, error) {
	f.created = append(f.created, displayName)
	info := domain.StoreInfo{ID: fmt.Sprintf("store-%d", len(f.created)), DisplayName: displayName}
	f.stores = append(f.stores, info)
	return info, nil
}
func (f *fakeProvider) GetStore(ctx context.Context, storeID string) (domain.StoreInfo, error) {
	return domain.StoreInfo{}, errors.New("not implemented")
}
func (f *fakeProvider) ListStores(ctx context.Context) ([]domain.StoreInfo, error) {
	return f.stores, f.listErr
}
func (f *fakeProvider) DeleteStore(ctx context.Context, storeID string) error {
	return errors.New("not implemented")
}
func (f *fakeProvider) ListDocuments(ctx context.Context, storeID string) ([]domain.DocumentInfo, error) {
	return nil, errors.New("not implemented")
}
func (f *fakeProvider) GenerateAnswer(ctx context.Context, storeID, query string) (domain.Answer, error) {
	return domain.Answer{}, errors.New("not implemented")
}

func fastOptions() Options {
	return Options{
		PollInterval: time.Millisecond,
		MaxWait:      time.Second,
		MaxAttempts:  3,
		NewBackoff:   func() backoff.BackOff { return &backoff.ZeroBackOff{} },
		Sleep:        func(ctx context.Context, d time.Duration) error { return nil },
	}
}

func TestUploadDocument_ActiveAfterPolling(t *testing.T) {
	prov := &fakeProvider{
		ops: map[string][]domain.Operation{
			"op-doc1": {
				{ID: "op-doc1", Done: false},
				{ID: "op-doc1", Done: false},
				{ID: "op-doc1", Done: true},
			},
		},
	}
	m := New(prov, logging.Nop(), fastOptions())

	res := m.UploadDocument(context.Background(), "store1", Document{Name: "doc1", Content: []byte("x")})
	require.Equal(t, StateActive, res.State)
	require.NoError(t, res.Err)
	require.Equal(t, 1, res.Attempts)
	require.Equal(t, 3, prov.polls["op-doc1"])
}

func TestUploadDocument_TransientSubmitFailureRetries(t *testing.T) {
	prov := &fakeProvider{
		uploadErrs: []error{errors.New("connection reset")},
		ops: map[string][]domain.Operation{
			"op-doc1": {{ID: "op-doc1", Done: true}},
		},
	}
	m := New(prov, logging.Nop(), fastOptions())

	res := m.UploadDocument(context.Background(), "store1", Document{Name: "doc1"})
	require.Equal(t, StateActive, res.State)
	require.Equal(t, 2, res.Attempts)
}

func TestUploadDocument_DoneWithErrorIsFailure(t *testing.T) {
	prov := &fakeProvider{
		ops: map[string][]domain.Operation{
			"op-doc1": {{ID: "op-doc1", Done: true, Error: "file rejected"}},
		},
	}
	m := New(prov, logging.Nop(), fastOptions())

	res := m.UploadDocument(context.Background(), "store1", Document{Name: "doc1"})
	require.Equal(t, StateFailed, res.State)
	require.ErrorIs(t, res.Err, domain.ErrUpload)
	require.Contains(t, res.Err.Error(), "file rejected")
	require.Equal(t, 3, res.Attempts)
}

func TestUploadDocument_DeadlineExceeded(t *testing.T) {
	prov := &fakeProvider{
		ops: map[string][]domain.Operation{
			"op-doc1": {{ID: "op-doc1", Done: false}},
		},
	}
	opts := fastOptions()
	opts.MaxAttempts = 1
	opts.MaxWait = time.Nanosecond
	m := New(prov, logging.Nop(), opts)

	res := m.UploadDocument(context.Background(), "store1", Document{Name: "doc1"})
	require.Equal(t, StateFailed, res.State)
	require.ErrorIs(t, res.Err, domain.ErrUpload)
}

func TestUploadDocument_AttemptsExhausted(t *testing.T) {
	prov := &fakeProvider{
		uploadErrs: []error{
			errors.New("boom"), errors.New("boom"), errors.New("boom"),
		},
	}
	m := New(prov, logging.Nop(), fastOptions())

	res := m.UploadDocument(context.Background(), "store1", Document{Name: "doc1"})
	require.Equal(t, StateFailed, res.State)
	require.Equal(t, 3, res.Attempts)
	require.Equal(t, 3, prov.uploads)
}

func TestEnsureStore_ReusesExistingDisplayName(t *testing.T) {
	prov := &fakeProvider{
		stores: []domain.StoreInfo{
			{ID: "store-old", DisplayName: "MIT_CS101_RAG"},
			{ID: "store-other", DisplayName: "ETH_PHYS1_RAG"},
		},
	}
	m := New(prov, logging.Nop(), fastOptions())

	info, created, err := m.EnsureStore(context.Background(), "MIT_CS101_RAG")
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, "store-old", info.ID)
	require.Empty(t, prov.created)
}

func TestEnsureStore_CreatesWhenMissing(t *testing.T) {
	prov := &fakeProvider{}
	m := New(prov, logging.Nop(), fastOptions())

	info, created, err := m.EnsureStore(context.Background(), "MIT_CS101_RAG")
	require.NoError(t, err)
	require.True(t, created)
	require.NotEmpty(t, info.ID)

	// a retried run resolves to the store the first run created
	again, created, err := m.EnsureStore(context.Background(), "MIT_CS101_RAG")
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, info.ID, again.ID)
	require.Len(t, prov.created, 1)
}

func TestEnsureStore_ListFailure(t *testing.T) {
	prov := &fakeProvider{listErr: errors.New("service unavailable")}
	m := New(prov, logging.Nop(), fastOptions())

	_, _, err := m.EnsureStore(context.Background(), "MIT_CS101_RAG")
	require.Error(t, err)
	require.Empty(t, prov.created)
}

func TestUploadDocument_PollFailureMentionsOperation(t *testing.T) {
	prov := &fakeProvider{
		pollErrs: map[string]error{"op-doc1": errors.New("status endpoint unavailable")},
	}
	opts := fastOptions()
	opts.MaxAttempts = 1
	m := New(prov, logging.Nop(), opts)

	res := m.UploadDocument(context.Background(), "store1", Document{Name: "doc1"})
	require.Equal(t, StateFailed, res.State)
	require.Contains(t, res.Err.Error(), "op-doc1")
}

func TestUploadDocuments_FailureDoesNotBlockOthers(t *testing.T) {
	prov := &fakeProvider{
		ops: map[string][]domain.Operation{
			"op-good": {{ID: "op-good", Done: true}},
			"op-bad":  {{ID: "op-bad", Done: true, Error: "rejected"}},
		},
	}
	m := New(prov, logging.Nop(), fastOptions())

	results := m.UploadDocuments(context.Background(), "store1", []Document{
		{Name: "bad"}, {Name: "good"},
	})
	require.Len(t, results, 2)
	require.Equal(t, StateFailed, results[0].State)
	require.Equal(t, StateActive, results[1].State)
}
