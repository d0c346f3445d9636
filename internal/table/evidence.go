// Package table holds the query-table and evidence data model used by the
// retrieval, ranking, and evaluation pipeline.
package table

import (
	apperrors "github.com/tablefill/table-fill/internal/pkg/errors"
)

// Relevance scales assigned during annotation.
const (
	// ScaleIrrelevant marks an evidence pointing at the wrong entity.
	ScaleIrrelevant = 0

	// ScaleCorrectEntity marks an evidence for the correct entity.
	ScaleCorrectEntity = 1

	// ScaleRelevantValue marks a correct entity with a relevant or
	// partial attribute value.
	ScaleRelevantValue = 2

	// ScaleCorrectValue marks a correct entity with the correct value.
	ScaleCorrectValue = 3
)

// Evidence links a query-table entity to a corroborating row of a source
// table, optionally carrying a candidate value for a target attribute.
type Evidence struct {
	// ID is unique within the owning query table.
	ID int

	// QueryTableID identifies the owning query table.
	QueryTableID int

	// EntityID is the query-table row this evidence supports.
	EntityID int

	// Value is the candidate attribute value, nil for entity-only evidence.
	Value *Value

	// Table is the source table name.
	Table string

	// RowID is the row within the source table.
	RowID int

	// Attribute is the target attribute name, empty for retrieval-only
	// evidence.
	Attribute string

	// Context is the full source row, kept for analysis and coordinate
	// resolution. Absent in the lean persisted form.
	Context map[string]any

	// Signal is the relevance verification, nil while unjudged.
	Signal *bool

	// Scale is the ordinal relevance judgement (0-3), nil while unjudged.
	Scale *int

	// CornerCase flags evidences whose judgement was ambiguous or hard.
	CornerCase bool

	// SeenTraining reports whether the source row was part of a model's
	// fine-tuning set. Diagnostic only, nil when unknown.
	SeenTraining *bool

	// Scores accumulates one score per re-ranker name.
	Scores map[string]float64

	// SimilarityScore is the scalar aggregated from Scores used for
	// final ranking.
	SimilarityScore float64
}

// NewEvidence creates a candidate evidence with an empty score map.
func NewEvidence(id, queryTableID, entityID int, value *Value, tableName string, rowID int, attribute string) *Evidence {
	return &Evidence{
		ID:           id,
		QueryTableID: queryTableID,
		EntityID:     entityID,
		Value:        value,
		Table:        tableName,
		RowID:        rowID,
		Attribute:    attribute,
		Scores:       make(map[string]float64),
	}
}

// Key identifies an evidence independently of computed scores. Candidate
// evidences from a retrieval run are matched against verified evidences
// by this identity.
type Key struct {
	QueryTableID int
	EntityID     int
	Table        string
	RowID        int
	Attribute    string
}

// Key returns the identity of the evidence.
func (e *Evidence) Key() Key {
	return Key{
		QueryTableID: e.QueryTableID,
		EntityID:     e.EntityID,
		Table:        e.Table,
		RowID:        e.RowID,
		Attribute:    e.Attribute,
	}
}

// Equal reports identity equality, ignoring scores and judgements.
func (e *Evidence) Equal(other *Evidence) bool {
	if other == nil {
		return false
	}
	return e.Key() == other.Key()
}

// Verify records a relevance judgement. A nil signal is a caller bug and
// is rejected with a validation error.
func (e *Evidence) Verify(signal *bool) error {
	if signal == nil {
		return apperrors.ValidationError("the value of signal must be defined (true/false)")
	}
	e.Signal = signal
	return nil
}

// DetermineScale derives the ordinal relevance from the signal and the
// owning table's rows. A negative signal is scale 0, a positive signal is
// at least scale 1 and scale 3 when the evidence value matches the row's
// target-attribute value. Scale 2 stays a manual judgement.
func (e *Evidence) DetermineScale(rows []Row) {
	if e.Signal == nil {
		return
	}
	if !*e.Signal {
		e.setScale(ScaleIrrelevant)
		return
	}

	scale := ScaleCorrectEntity
	if e.Attribute != "" && e.Value != nil {
		for _, row := range rows {
			if row.EntityID != e.EntityID {
				continue
			}
			if target, ok := row.Get(e.Attribute); ok && target.Equal(*e.Value) {
				scale = ScaleCorrectValue
			}
			break
		}
	}
	e.setScale(scale)
}

func (e *Evidence) setScale(scale int) {
	e.Scale = &scale
}

// HasScaleIn reports whether the evidence's scale is one of the given
// relevance levels. Unjudged evidences match nothing.
func (e *Evidence) HasScaleIn(levels []int) bool {
	if e.Scale == nil {
		return false
	}
	for _, level := range levels {
		if *e.Scale == level {
			return true
		}
	}
	return false
}

// AggregateScores folds the per-re-ranker scores into SimilarityScore.
// The rule is the arithmetic mean, which is independent of map iteration
// order and idempotent: calling it twice yields the same score. An empty
// score map aggregates to 0.
func (e *Evidence) AggregateScores() {
	if len(e.Scores) == 0 {
		e.SimilarityScore = 0
		return
	}
	var sum float64
	for _, score := range e.Scores {
		sum += score
	}
	e.SimilarityScore = sum / float64(len(e.Scores))
}

// SetScore records a re-ranker score under the given name.
func (e *Evidence) SetScore(name string, score float64) {
	if e.Scores == nil {
		e.Scores = make(map[string]float64)
	}
	e.Scores[name] = score
}

// evidenceJSON is the persisted camelCase form of an evidence.
type evidenceJSON struct {
	ID           int            `json:"id"`
	QueryTableID int            `json:"queryTableId"`
	EntityID     int            `json:"entityId"`
	Value        *Value         `json:"value"`
	Table        string         `json:"table"`
	RowID        int            `json:"rowId"`
	Attribute    string         `json:"attribute,omitempty"`
	Context      map[string]any `json:"context,omitempty"`
	Scale        *int           `json:"scale,omitempty"`
	Signal       *bool          `json:"signal,omitempty"`
	CornerCase   *bool          `json:"cornerCase,omitempty"`
	SeenTraining *bool          `json:"seenTraining,omitempty"`
}

func (e *Evidence) encode(withContext bool) evidenceJSON {
	enc := evidenceJSON{
		ID:           e.ID,
		QueryTableID: e.QueryTableID,
		EntityID:     e.EntityID,
		Value:        e.Value,
		Table:        e.Table,
		RowID:        e.RowID,
		Attribute:    e.Attribute,
		Scale:        e.Scale,
		Signal:       e.Signal,
		SeenTraining: e.SeenTraining,
	}
	if e.CornerCase {
		cc := true
		enc.CornerCase = &cc
	}
	if withContext {
		enc.Context = e.Context
	}
	return enc
}

func (enc evidenceJSON) decode() *Evidence {
	e := NewEvidence(enc.ID, enc.QueryTableID, enc.EntityID, enc.Value, enc.Table, enc.RowID, enc.Attribute)
	e.Context = enc.Context
	e.Scale = enc.Scale
	e.Signal = enc.Signal
	e.SeenTraining = enc.SeenTraining
	if enc.CornerCase != nil {
		e.CornerCase = *enc.CornerCase
	}
	return e
}
