package strategy

import (
	"context"
	"strings"

	"github.com/tablefill/table-fill/internal/index"
	"github.com/tablefill/table-fill/internal/pkg/logger"
	"github.com/tablefill/table-fill/internal/table"
)

// EntityQueryStrategy retrieves candidate evidences from the entity index
// by querying with the serialized context attributes of each row.
type EntityQueryStrategy struct {
	base
	index index.EntityIndex
}

// NewEntityQueryStrategy creates the index-backed retrieval strategy.
func NewEntityQueryStrategy(idx index.EntityIndex, groundTruthTables []string, log *logger.Logger) *EntityQueryStrategy {
	return &EntityQueryStrategy{
		base:  newBase(NameQueryByEntity, groundTruthTables, log),
		index: idx,
	}
}

// RetrieveEvidence queries the index once per row. Rows without a usable
// name attribute are skipped with a warning; index failures propagate.
func (s *EntityQueryStrategy) RetrieveEvidence(ctx context.Context, qt *table.QueryTable, evidenceCount int, entityID *int) ([]*table.Evidence, error) {
	attribute := targetAttribute(qt)

	var evidences []*table.Evidence
	for _, row := range rowsToQuery(qt, entityID) {
		label := serializeRow(qt, row)
		if label == "" {
			s.log.WithTable(qt.ID).Warn("skipping row without name attribute",
				"entity_id", row.EntityID)
			continue
		}

		records, err := s.index.QueryByEntity(ctx, label, qt.SchemaOrgClass, evidenceCount)
		if err != nil {
			return nil, err
		}

		for _, record := range records {
			evidence := table.NewEvidence(len(evidences)+1, qt.ID, row.EntityID,
				candidateValue(record, attribute), record.Table, record.RowID, attribute)
			evidence.Context = recordContext(record)
			evidence.SetScore(retrievalScore, record.Score)

			evidences = append(evidences, evidence)
		}
	}

	return evidences, nil
}

// serializeRow joins the row's context attribute values in attribute order,
// name first. Returns empty if the name attribute is missing.
func serializeRow(qt *table.QueryTable, row table.Row) string {
	name, ok := row.Get(table.NameAttribute)
	if !ok || name.IsMissing() {
		return ""
	}

	parts := []string{name.Text()}
	for _, attribute := range qt.ContextAttributes {
		if attribute == table.NameAttribute || attribute == qt.TargetAttribute {
			continue
		}
		if value, ok := row.Get(attribute); ok && !value.IsMissing() {
			parts = append(parts, value.Text())
		}
	}

	return strings.Join(parts, " ")
}

func candidateValue(record index.EntityRecord, attribute string) *table.Value {
	if attribute == "" {
		return nil
	}
	raw, ok := record.Attributes[attribute]
	if !ok || raw == "" {
		return nil
	}

	value := table.String(raw)
	return &value
}

func recordContext(record index.EntityRecord) map[string]any {
	if len(record.Attributes) == 0 {
		return nil
	}

	context := make(map[string]any, len(record.Attributes))
	for k, v := range record.Attributes {
		context[k] = v
	}

	return context
}
