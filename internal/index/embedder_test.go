package index

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func embedServer(t *testing.T, calls *atomic.Int32) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)

		var req embedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		embeddings := make([][]float32, len(req.Texts))
		for i := range req.Texts {
			embeddings[i] = []float32{0.1, 0.2, 0.3}
		}
		json.NewEncoder(w).Encode(embedResponse{Embeddings: embeddings})
	}))
}

func TestHTTPEmbedder(t *testing.T) {
	var calls atomic.Int32
	server := embedServer(t, &calls)
	defer server.Close()

	embedder, err := NewHTTPEmbedder(EmbedderConfig{URL: server.URL, Model: "test-model"})
	if err != nil {
		t.Fatalf("NewHTTPEmbedder() error = %v", err)
	}

	emb, err := embedder.Embed(context.Background(), "Marriott Frankfurt")
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if len(emb) != 3 {
		t.Errorf("Embed() returned %d dims, want 3", len(emb))
	}
}

func TestHTTPEmbedderServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	embedder, err := NewHTTPEmbedder(EmbedderConfig{URL: server.URL})
	if err != nil {
		t.Fatalf("NewHTTPEmbedder() error = %v", err)
	}

	if _, err := embedder.Embed(context.Background(), "anything"); err == nil {
		t.Error("Embed() did not fail on server error")
	}
}

func TestNewHTTPEmbedderRequiresURL(t *testing.T) {
	if _, err := NewHTTPEmbedder(EmbedderConfig{}); err == nil {
		t.Error("NewHTTPEmbedder() without URL did not fail")
	}
}

func TestCachedEmbedder(t *testing.T) {
	var calls atomic.Int32
	server := embedServer(t, &calls)
	defer server.Close()

	inner, err := NewHTTPEmbedder(EmbedderConfig{URL: server.URL, Model: "test-model"})
	if err != nil {
		t.Fatalf("NewHTTPEmbedder() error = %v", err)
	}

	embedder := NewCachedEmbedder(inner, NewEmbeddingCache(100), "test-model")

	for i := 0; i < 3; i++ {
		if _, err := embedder.Embed(context.Background(), "Marriott Frankfurt"); err != nil {
			t.Fatalf("Embed() error = %v", err)
		}
	}

	if got := calls.Load(); got != 1 {
		t.Errorf("embedding service called %d times, want 1", got)
	}

	if _, err := embedder.Embed(context.Background(), "Marriott Berlin"); err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("embedding service called %d times, want 2", got)
	}
}

func TestEmbeddingCacheEviction(t *testing.T) {
	cache := NewEmbeddingCache(2)

	cache.Set("m", "a", []float32{1})
	cache.Set("m", "b", []float32{2})
	cache.Set("m", "c", []float32{3})

	if cache.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", cache.Len())
	}
	if _, ok := cache.Get("m", "a"); ok {
		t.Error("oldest entry not evicted")
	}
	if _, ok := cache.Get("m", "c"); !ok {
		t.Error("newest entry missing")
	}
}

func TestEmbeddingCacheCopies(t *testing.T) {
	cache := NewEmbeddingCache(10)

	original := []float32{1, 2, 3}
	cache.Set("m", "a", original)
	original[0] = 99

	got, ok := cache.Get("m", "a")
	if !ok {
		t.Fatal("entry missing")
	}
	if got[0] != 1 {
		t.Errorf("cached value mutated: %v", got)
	}

	got[1] = 99
	again, _ := cache.Get("m", "a")
	if again[1] != 2 {
		t.Errorf("cache returned aliased slice: %v", again)
	}
}
