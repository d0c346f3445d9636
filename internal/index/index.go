// Package index provides read access to the corpus of source tables from
// which evidence is retrieved. Each indexed point represents one row of one
// source table, keyed by the entity it describes.
package index

import "context"

// EntityRecord is one row of a source table as stored in the index.
type EntityRecord struct {
	// Table is the name of the source table the row belongs to.
	Table string

	// RowID is the position of the row within its source table.
	RowID int

	// EntityLabel is the name of the entity the row describes.
	EntityLabel string

	// Attributes maps attribute names to their raw string values.
	Attributes map[string]string

	// Score is the retrieval score assigned by the index, if any.
	Score float64
}

// Embedder turns entity text into a dense vector for similarity search.
// Implementations call out to an external embedding service.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// EntityIndex answers retrieval queries against the source-table corpus.
type EntityIndex interface {
	// QueryByEntity returns up to limit rows whose entity matches the given
	// label, optionally restricted to tables of one schema.org class.
	QueryByEntity(ctx context.Context, label, schemaOrgClass string, limit int) ([]EntityRecord, error)

	// ByTableRowID returns the indexed row with the given table name and
	// row position, or a not-found error.
	ByTableRowID(ctx context.Context, table string, rowID int) (*EntityRecord, error)
}
