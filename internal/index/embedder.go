package index

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	apperrors "github.com/tablefill/table-fill/internal/pkg/errors"
	"github.com/tablefill/table-fill/internal/pkg/hash"
)

// EmbedderConfig holds the embedding service connection settings.
type EmbedderConfig struct {
	// URL is the embedding endpoint, e.g. http://localhost:8090/embed.
	URL string

	// Model names the embedding model, sent with every request and part
	// of the cache key.
	Model string

	// Timeout bounds one embedding call, defaults to 30s.
	Timeout time.Duration

	// CacheSize bounds the in-process embedding cache, 0 disables it.
	CacheSize int
}

// HTTPEmbedder embeds entity labels through an external embedding
// service speaking JSON over HTTP.
type HTTPEmbedder struct {
	config EmbedderConfig
	client *http.Client
}

type embedRequest struct {
	Model string   `json:"model,omitempty"`
	Texts []string `json:"texts"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// NewHTTPEmbedder creates an embedder talking to an embedding service.
func NewHTTPEmbedder(cfg EmbedderConfig) (*HTTPEmbedder, error) {
	if cfg.URL == "" {
		return nil, apperrors.ValidationError("embedder URL cannot be empty")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	return &HTTPEmbedder{
		config: cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// Embed returns the dense vector for one text.
func (e *HTTPEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(embedRequest{Model: e.config.Model, Texts: []string{text}})
	if err != nil {
		return nil, apperrors.IndexError("marshaling embed request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.config.URL, bytes.NewReader(body))
	if err != nil {
		return nil, apperrors.IndexError("building embed request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, apperrors.IndexError("calling embedding service", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, apperrors.IndexError(
			fmt.Sprintf("embedding service returned %d: %s", resp.StatusCode, string(payload)), nil)
	}

	var parsed embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, apperrors.IndexError("decoding embed response", err)
	}
	if len(parsed.Embeddings) != 1 || len(parsed.Embeddings[0]) == 0 {
		return nil, apperrors.IndexError("embedding service returned no embedding", nil)
	}

	return parsed.Embeddings[0], nil
}

// EmbeddingCache is an LRU cache of embeddings keyed by model and text
// hash. Labels of query-table entities repeat heavily across pipelines,
// so most index queries hit the cache.
type EmbeddingCache struct {
	mu      sync.Mutex
	cache   map[string][]float32
	order   []string
	maxSize int
}

// NewEmbeddingCache creates an embedding cache holding up to maxSize
// vectors.
func NewEmbeddingCache(maxSize int) *EmbeddingCache {
	if maxSize <= 0 {
		maxSize = 10000
	}

	return &EmbeddingCache{
		cache:   make(map[string][]float32),
		order:   make([]string, 0, maxSize),
		maxSize: maxSize,
	}
}

// Get retrieves a cached embedding.
func (c *EmbeddingCache) Get(model, text string) ([]float32, bool) {
	key := hash.EmbeddingKey(model, text)

	c.mu.Lock()
	defer c.mu.Unlock()

	emb, ok := c.cache[key]
	if !ok {
		return nil, false
	}

	c.moveToEnd(key)

	out := make([]float32, len(emb))
	copy(out, emb)
	return out, true
}

// Set stores an embedding, evicting the least recently used entries at
// capacity.
func (c *EmbeddingCache) Set(model, text string, embedding []float32) {
	key := hash.EmbeddingKey(model, text)

	stored := make([]float32, len(embedding))
	copy(stored, embedding)

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.cache[key]; exists {
		c.cache[key] = stored
		c.moveToEnd(key)
		return
	}

	for len(c.cache) >= c.maxSize && len(c.order) > 0 {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.cache, oldest)
	}

	c.cache[key] = stored
	c.order = append(c.order, key)
}

// Len returns the number of cached embeddings.
func (c *EmbeddingCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.cache)
}

func (c *EmbeddingCache) moveToEnd(key string) {
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			c.order = append(c.order, key)
			return
		}
	}
}

// CachedEmbedder wraps an Embedder with an EmbeddingCache.
type CachedEmbedder struct {
	inner Embedder
	cache *EmbeddingCache
	model string
}

// NewCachedEmbedder decorates an embedder with a cache.
func NewCachedEmbedder(inner Embedder, cache *EmbeddingCache, model string) *CachedEmbedder {
	return &CachedEmbedder{
		inner: inner,
		cache: cache,
		model: model,
	}
}

// Embed serves from the cache when possible.
func (e *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if emb, ok := e.cache.Get(e.model, text); ok {
		return emb, nil
	}

	emb, err := e.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	e.cache.Set(e.model, text, emb)
	return emb, nil
}
