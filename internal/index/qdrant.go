package index

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/qdrant/go-client/qdrant"
	"golang.org/x/time/rate"

	apperrors "github.com/tablefill/table-fill/internal/pkg/errors"
)

const (
	// CollectionPrefix is prepended to all collection names.
	CollectionPrefix = "tf_"

	// DefaultCollection holds the row-per-point corpus.
	DefaultCollection = "entity_rows"

	// DefaultHost is the default Qdrant host.
	DefaultHost = "localhost"

	// DefaultPort is the default Qdrant gRPC port.
	DefaultPort = 6334

	// DefaultTimeout is the default operation timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultRequestsPerSecond caps query throughput per client.
	DefaultRequestsPerSecond = 20
)

// ClientConfig holds configuration for the Qdrant-backed index.
type ClientConfig struct {
	// Host is the Qdrant server host.
	Host string

	// Port is the Qdrant gRPC port.
	Port int

	// APIKey for authentication (optional).
	APIKey string

	// UseTLS enables TLS connection.
	UseTLS bool

	// Collection is the unprefixed collection name.
	Collection string

	// Timeout for operations.
	Timeout time.Duration

	// RequestsPerSecond limits query throughput. Zero uses the default.
	RequestsPerSecond int
}

// DefaultClientConfig returns sensible defaults for local development.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Host:              DefaultHost,
		Port:              DefaultPort,
		Collection:        DefaultCollection,
		Timeout:           DefaultTimeout,
		RequestsPerSecond: DefaultRequestsPerSecond,
	}
}

// QdrantIndex is an EntityIndex backed by a Qdrant collection holding one
// point per source-table row.
type QdrantIndex struct {
	client   *qdrant.Client
	embedder Embedder
	config   ClientConfig
	limiter  *rate.Limiter

	mu     sync.RWMutex
	closed bool
}

// NewQdrantIndex connects to Qdrant and returns an index over the configured
// collection. The embedder is used to vectorize entity labels for search.
func NewQdrantIndex(cfg ClientConfig, embedder Embedder) (*QdrantIndex, error) {
	if cfg.Host == "" {
		cfg.Host = DefaultHost
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.Collection == "" {
		cfg.Collection = DefaultCollection
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.RequestsPerSecond == 0 {
		cfg.RequestsPerSecond = DefaultRequestsPerSecond
	}
	if embedder == nil {
		return nil, apperrors.ValidationError("embedder must not be nil")
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, apperrors.IndexError("failed to create qdrant client", err)
	}

	return &QdrantIndex{
		client:   client,
		embedder: embedder,
		config:   cfg,
		limiter:  rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.RequestsPerSecond),
	}, nil
}

// Close closes the underlying connection.
func (q *QdrantIndex) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}

	q.closed = true
	return q.client.Close()
}

// HealthCheck verifies the Qdrant server is reachable.
func (q *QdrantIndex) HealthCheck(ctx context.Context) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return apperrors.IndexError("index client is closed", nil)
	}

	ctx, cancel := context.WithTimeout(ctx, q.config.Timeout)
	defer cancel()

	reply, err := q.client.HealthCheck(ctx)
	if err != nil {
		return apperrors.IndexError("health check failed", err)
	}
	if reply.GetTitle() == "" {
		return apperrors.IndexError("unexpected health check response", nil)
	}

	return nil
}

// QueryByEntity embeds the entity label and runs a dense similarity search,
// optionally filtered to tables of one schema.org class.
func (q *QdrantIndex) QueryByEntity(ctx context.Context, label, schemaOrgClass string, limit int) ([]EntityRecord, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return nil, apperrors.IndexError("index client is closed", nil)
	}
	if limit <= 0 {
		return nil, apperrors.ValidationError("limit must be positive")
	}

	if err := q.limiter.Wait(ctx); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeTimeout, "rate limit wait aborted", err)
	}

	vector, err := q.embedder.Embed(ctx, label)
	if err != nil {
		return nil, apperrors.IndexError("failed to embed entity label", err)
	}

	ctx, cancel := context.WithTimeout(ctx, q.config.Timeout)
	defer cancel()

	req := &qdrant.QueryPoints{
		CollectionName: q.collectionName(),
		Query:          qdrant.NewQueryDense(vector),
		Limit:          qdrant.PtrOf(uint64(limit)),
		WithPayload:    qdrant.NewWithPayload(true),
	}
	if schemaOrgClass != "" {
		req.Filter = &qdrant.Filter{
			Must: []*qdrant.Condition{keywordCondition("class", schemaOrgClass)},
		}
	}

	points, err := q.client.Query(ctx, req)
	if err != nil {
		return nil, apperrors.IndexError("entity query failed", err)
	}

	records := make([]EntityRecord, 0, len(points))
	for _, p := range points {
		records = append(records, recordFromPayload(p.Payload, float64(p.Score)))
	}

	return records, nil
}

// ByTableRowID scrolls for the single point matching table name and row
// position.
func (q *QdrantIndex) ByTableRowID(ctx context.Context, table string, rowID int) (*EntityRecord, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return nil, apperrors.IndexError("index client is closed", nil)
	}

	if err := q.limiter.Wait(ctx); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeTimeout, "rate limit wait aborted", err)
	}

	ctx, cancel := context.WithTimeout(ctx, q.config.Timeout)
	defer cancel()

	points, err := q.client.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: q.collectionName(),
		Filter: &qdrant.Filter{
			Must: []*qdrant.Condition{
				keywordCondition("table", table),
				integerCondition("row_id", int64(rowID)),
			},
		},
		Limit:       qdrant.PtrOf(uint32(1)),
		WithPayload: qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, apperrors.IndexError("row lookup failed", err)
	}
	if len(points) == 0 {
		return nil, apperrors.NotFoundError(fmt.Sprintf("no indexed row %d in table %s", rowID, table))
	}

	record := recordFromPayload(points[0].Payload, 0)
	return &record, nil
}

// collectionName returns the full collection name with prefix.
func (q *QdrantIndex) collectionName() string {
	return CollectionPrefix + q.config.Collection
}

func keywordCondition(key, value string) *qdrant.Condition {
	return &qdrant.Condition{
		ConditionOneOf: &qdrant.Condition_Field{
			Field: &qdrant.FieldCondition{
				Key: key,
				Match: &qdrant.Match{
					MatchValue: &qdrant.Match_Keyword{Keyword: value},
				},
			},
		},
	}
}

func integerCondition(key string, value int64) *qdrant.Condition {
	return &qdrant.Condition{
		ConditionOneOf: &qdrant.Condition_Field{
			Field: &qdrant.FieldCondition{
				Key: key,
				Match: &qdrant.Match{
					MatchValue: &qdrant.Match_Integer{Integer: value},
				},
			},
		},
	}
}

// recordFromPayload converts a Qdrant payload map to an EntityRecord.
func recordFromPayload(payload map[string]*qdrant.Value, score float64) EntityRecord {
	record := EntityRecord{Score: score}

	record.Table = getStringValue(payload, "table")
	record.EntityLabel = getStringValue(payload, "entity_label")
	record.RowID = getIntValue(payload, "row_id")
	record.Attributes = getStringMapValue(payload, "attributes")

	return record
}

func getStringValue(payload map[string]*qdrant.Value, key string) string {
	if v, ok := payload[key]; ok {
		if sv, ok := v.Kind.(*qdrant.Value_StringValue); ok {
			return sv.StringValue
		}
	}
	return ""
}

func getIntValue(payload map[string]*qdrant.Value, key string) int {
	if v, ok := payload[key]; ok {
		if iv, ok := v.Kind.(*qdrant.Value_IntegerValue); ok {
			return int(iv.IntegerValue)
		}
	}
	return 0
}

func getStringMapValue(payload map[string]*qdrant.Value, key string) map[string]string {
	v, ok := payload[key]
	if !ok {
		return nil
	}
	sv, ok := v.Kind.(*qdrant.Value_StructValue)
	if !ok || sv.StructValue == nil {
		return nil
	}

	result := make(map[string]string, len(sv.StructValue.Fields))
	for name, field := range sv.StructValue.Fields {
		if fv, ok := field.Kind.(*qdrant.Value_StringValue); ok {
			result[name] = fv.StringValue
		}
	}

	return result
}
