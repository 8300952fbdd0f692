package domain

import "context"

// Embedder converts texts into vectors using an external embedding
// service. ModelID identifies the embedding model; vectors produced
// under different model identities are not comparable.
type Embedder interface {
	ModelID() string
	EmbedBatch(ctx context.Context, texts []string) ([][]float64, error)
}

// Matcher ranks cached chunks by semantic similarity to an answer.
type Matcher interface {
	Match(ctx context.Context, answer string, topK int, threshold float64) ([]ChunkMatch, error)
}

// Provider is the external RAG service: it owns document stores, runs
// asynchronous uploads, and generates answers scoped to a store.
type Provider interface {
	CreateStore(ctx context.Context, displayName string) (StoreInfo, error)
	GetStore(ctx context.Context, storeID string) (StoreInfo, error)
	ListStores(ctx context.Context) ([]StoreInfo, error)
	DeleteStore(ctx context.Context, storeID string) error
	ListDocuments(ctx context.Context, storeID string) ([]DocumentInfo, error)
	UploadDocument(ctx context.Context, storeID, name string, content []byte) (Operation, error)
	GetOperation(ctx context.Context, operationID string) (Operation, error)
	GenerateAnswer(ctx context.Context, storeID, query string) (Answer, error)
}
