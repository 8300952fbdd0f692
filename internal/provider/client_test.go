package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"lecture-rag/internal/domain"
)

func testClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	t.Setenv("TEST_PROVIDER_KEY", "secret")
	c, err := NewClient(Config{
		BaseURL:   srv.URL,
		APIKeyEnv: "TEST_PROVIDER_KEY",
		Model:     "rag-answer-1",
		Timeout:   5 * time.Second,
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func TestNewClient_MissingAPIKey(t *testing.T) {
	t.Setenv("TEST_PROVIDER_KEY", "")
	_, err := NewClient(Config{BaseURL: "http://localhost", APIKeyEnv: "TEST_PROVIDER_KEY"})
	if !errors.Is(err, domain.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
}

func TestCreateStore(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/stores" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("unexpected auth header %q", got)
		}
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if body["display_name"] != "MIT_CS101_RAG" {
			t.Errorf("unexpected display name %q", body["display_name"])
		}
		json.NewEncoder(w).Encode(map[string]any{"id": "store-1", "display_name": "MIT_CS101_RAG"})
	}))

	info, err := c.CreateStore(context.Background(), "MIT_CS101_RAG")
	if err != nil {
		t.Fatalf("CreateStore: %v", err)
	}
	if info.ID != "store-1" {
		t.Fatalf("expected store-1, got %q", info.ID)
	}
}

func TestUploadDocument_ReturnsOperation(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/stores/store-1/documents" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]any{"id": "op-9", "done": false})
	}))

	op, err := c.UploadDocument(context.Background(), "store-1", "chunk.txt", []byte("text"))
	if err != nil {
		t.Fatalf("UploadDocument: %v", err)
	}
	if op.ID != "op-9" || op.Done {
		t.Fatalf("unexpected operation %+v", op)
	}
}

func TestGetOperation_DoneWithError(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"id": "op-9", "done": true, "error": "ingestion failed"})
	}))

	op, err := c.GetOperation(context.Background(), "op-9")
	if err != nil {
		t.Fatalf("GetOperation: %v", err)
	}
	if !op.Done || op.Error != "ingestion failed" {
		t.Fatalf("unexpected operation %+v", op)
	}
}

func TestGenerateAnswer_WithGrounding(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		if body["store_id"] != "store-1" || body["model"] != "rag-answer-1" {
			t.Errorf("unexpected request body %v", body)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"answer": "Derivatives measure rates of change.",
			"grounding": []map[string]string{
				{"title": "lec1_00-00-30_to_00-01-00.txt"},
			},
		})
	}))

	answer, err := c.GenerateAnswer(context.Background(), "store-1", "what is a derivative?")
	if err != nil {
		t.Fatalf("GenerateAnswer: %v", err)
	}
	if !answer.IsGrounded() {
		t.Fatal("expected grounded answer")
	}
	if answer.Grounding[0].Title != "lec1_00-00-30_to_00-01-00.txt" {
		t.Fatalf("unexpected grounding %+v", answer.Grounding[0])
	}
}

func TestGenerateAnswer_WithoutGrounding(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"answer": "plain"})
	}))

	answer, err := c.GenerateAnswer(context.Background(), "store-1", "q")
	if err != nil {
		t.Fatalf("GenerateAnswer: %v", err)
	}
	if answer.IsGrounded() {
		t.Fatal("expected no grounding")
	}
}

func TestDo_ErrorStatusIncludesBody(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "store not found", http.StatusNotFound)
	}))

	_, err := c.GetStore(context.Background(), "missing")
	if err == nil {
		t.Fatal("expected error on 404")
	}
	if want := "store not found"; !strings.Contains(err.Error(), want) {
		t.Fatalf("expected error to mention %q, got %v", want, err)
	}
}
