package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"lecture-rag/internal/domain"
)

// Client is a REST client to the remote RAG provider's document-store
// and answer-generation API, implementing domain.Provider.
type Client struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

// Config configures the provider client. The API key is read from the
// environment variable named by APIKeyEnv.
type Config struct {
	BaseURL   string
	APIKeyEnv string
	Model     string
	Timeout   time.Duration
}

// NewClient creates a provider client. A missing API key is a
// configuration error, surfaced before any network call.
func NewClient(cfg Config) (*Client, error) {
	keyEnv := cfg.APIKeyEnv
	if keyEnv == "" {
		keyEnv = "RAG_PROVIDER_API_KEY"
	}
	key := os.Getenv(keyEnv)
	if key == "" {
		return nil, fmt.Errorf("%w: missing API key in env %s", domain.ErrConfiguration, keyEnv)
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("%w: provider base URL not configured", domain.ErrConfiguration)
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  key,
		model:   cfg.Model,
		client:  &http.Client{Timeout: timeout},
	}, nil
}

type storePayload struct {
	ID              string `json:"id"`
	DisplayName     string `json:"display_name"`
	ActiveDocuments int    `json:"active_documents"`
}

type operationPayload struct {
	ID    string `json:"id"`
	Done  bool   `json:"done"`
	Error string `json:"error,omitempty"`
}

// CreateStore creates a new document store with the given display name.
func (c *Client) CreateStore(ctx context.Context, displayName string) (domain.StoreInfo, error) {
	var out storePayload
	err := c.do(ctx, http.MethodPost, "/v1/stores", map[string]any{"display_name": displayName}, &out)
	if err != nil {
		return domain.StoreInfo{}, err
	}
	return storeInfo(out), nil
}

// GetStore re-fetches a store's current state, including its active
// document count.
func (c *Client) GetStore(ctx context.Context, storeID string) (domain.StoreInfo, error) {
	var out storePayload
	err := c.do(ctx, http.MethodGet, "/v1/stores/"+url.PathEscape(storeID), nil, &out)
	if err != nil {
		return domain.StoreInfo{}, err
	}
	return storeInfo(out), nil
}

// ListStores returns every store owned by this account.
func (c *Client) ListStores(ctx context.Context) ([]domain.StoreInfo, error) {
	var out struct {
		Stores []storePayload `json:"stores"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/stores", nil, &out); err != nil {
		return nil, err
	}
	stores := make([]domain.StoreInfo, 0, len(out.Stores))
	for _, s := range out.Stores {
		stores = append(stores, storeInfo(s))
	}
	return stores, nil
}

// DeleteStore deletes a store and its documents.
func (c *Client) DeleteStore(ctx context.Context, storeID string) error {
	return c.do(ctx, http.MethodDelete, "/v1/stores/"+url.PathEscape(storeID), nil, nil)
}

// ListDocuments returns the documents currently held in a store.
func (c *Client) ListDocuments(ctx context.Context, storeID string) ([]domain.DocumentInfo, error) {
	var out struct {
		Documents []struct {
			Name  string `json:"name"`
			State string `json:"state"`
		} `json:"documents"`
	}
	path := "/v1/stores/" + url.PathEscape(storeID) + "/documents"
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	docs := make([]domain.DocumentInfo, 0, len(out.Documents))
	for _, d := range out.Documents {
		docs = append(docs, domain.DocumentInfo{Name: d.Name, State: d.State})
	}
	return docs, nil
}

// UploadDocument submits a document and returns the asynchronous
// operation handle tracking its ingestion. Uploads are idempotent by
// document name: re-submitting the same name replaces, not duplicates.
func (c *Client) UploadDocument(ctx context.Context, storeID, name string, content []byte) (domain.Operation, error) {
	var out operationPayload
	path := "/v1/stores/" + url.PathEscape(storeID) + "/documents"
	body := map[string]any{"name": name, "content": string(content)}
	if err := c.do(ctx, http.MethodPost, path, body, &out); err != nil {
		return domain.Operation{}, err
	}
	return operation(out), nil
}

// GetOperation re-fetches an operation's status from the provider.
// Handles do not self-update; every poll must go through here.
func (c *Client) GetOperation(ctx context.Context, operationID string) (domain.Operation, error) {
	var out operationPayload
	err := c.do(ctx, http.MethodGet, "/v1/operations/"+url.PathEscape(operationID), nil, &out)
	if err != nil {
		return domain.Operation{}, err
	}
	return operation(out), nil
}

// GenerateAnswer asks the provider to answer a query grounded in the
// given store. Grounding metadata is optional in the response.
func (c *Client) GenerateAnswer(ctx context.Context, storeID, query string) (domain.Answer, error) {
	var out struct {
		Answer    string `json:"answer"`
		Grounding []struct {
			Title string `json:"title"`
			URI   string `json:"uri"`
			Text  string `json:"text"`
		} `json:"grounding,omitempty"`
	}
	body := map[string]any{"store_id": storeID, "query": query, "model": c.model}
	if err := c.do(ctx, http.MethodPost, "/v1/answers", body, &out); err != nil {
		return domain.Answer{}, err
	}
	answer := domain.Answer{Text: out.Answer}
	for _, g := range out.Grounding {
		answer.Grounding = append(answer.Grounding, domain.GroundingRef{Title: g.Title, URI: g.URI, Text: g.Text})
	}
	return answer, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("provider %s %s failed: %s: %s", method, path, resp.Status, bytes.TrimSpace(payload))
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func storeInfo(p storePayload) domain.StoreInfo {
	return domain.StoreInfo{ID: p.ID, DisplayName: p.DisplayName, ActiveDocuments: p.ActiveDocuments}
}

func operation(p operationPayload) domain.Operation {
	return domain.Operation{ID: p.ID, Done: p.Done, Error: p.Error}
}
