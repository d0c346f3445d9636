package table

import (
	"encoding/json"
	"fmt"

	apperrors "github.com/tablefill/table-fill/internal/pkg/errors"
	"github.com/tablefill/table-fill/internal/pkg/logger"
)

// Type distinguishes the two experiment flavours of a query table.
type Type string

const (
	// TypeRetrieval tables evaluate evidence retrieval only.
	TypeRetrieval Type = "retrieval"

	// TypeAugmentation tables additionally predict a target attribute.
	TypeAugmentation Type = "augmentation"
)

// NameAttribute is the mandatory minimal identifying attribute of every
// query table. It can never be removed from the context attributes.
const NameAttribute = "name"

// QueryTable is a gold-standard table of entities with attributes to
// predict, plus the verified evidences annotated against it.
type QueryTable struct {
	// ID identifies the query table.
	ID int

	// Type is retrieval or augmentation.
	Type Type

	// AssemblingStrategy describes how the entities were sampled.
	AssemblingStrategy string

	// UseCase is free text, set for augmentation tables only.
	UseCase string

	// Category is the ground-truth table grouping.
	Category string

	// SchemaOrgClass is the entity type being modeled (movie, hotel, ...).
	SchemaOrgClass string

	// Requirements lists annotation requirements for the table.
	Requirements []string

	// ContextAttributes are the attribute names visible to a retrieval
	// strategy, in order.
	ContextAttributes []string

	// TargetAttribute is the attribute being predicted, set for
	// augmentation tables only.
	TargetAttribute string

	// Rows is the ordered sequence of entity rows.
	Rows []Row

	// VerifiedEvidences is the annotated ground truth for this table.
	VerifiedEvidences []*Evidence
}

// queryTableJSON is the persisted camelCase form of a query table.
type queryTableJSON struct {
	ID                 int            `json:"id"`
	AssemblingStrategy string         `json:"assemblingStrategy"`
	UseCase            string         `json:"useCase,omitempty"`
	Category           string         `json:"category"`
	SchemaOrgClass     string         `json:"schemaOrgClass"`
	Requirements       []string       `json:"requirements"`
	ContextAttributes  []string       `json:"contextAttributes"`
	TargetAttribute    string         `json:"targetAttribute,omitempty"`
	Table              []Row          `json:"table"`
	VerifiedEvidences  []evidenceJSON `json:"verifiedEvidences"`
}

// Decode parses a persisted query table. Verified evidences that do not
// belong to the table or duplicate an earlier evidence are dropped with a
// warning; evidences carrying a signal but no scale get their scale
// derived from the table rows.
func Decode(data []byte, log *logger.Logger) (*QueryTable, error) {
	if log == nil {
		log = logger.Default()
	}

	var raw queryTableJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, apperrors.StorageError("decoding query table", err)
	}

	qt := &QueryTable{
		ID:                 raw.ID,
		Type:               TypeRetrieval,
		AssemblingStrategy: raw.AssemblingStrategy,
		UseCase:            raw.UseCase,
		Category:           raw.Category,
		SchemaOrgClass:     raw.SchemaOrgClass,
		Requirements:       raw.Requirements,
		ContextAttributes:  raw.ContextAttributes,
		TargetAttribute:    raw.TargetAttribute,
		Rows:               raw.Table,
	}
	if raw.TargetAttribute != "" {
		qt.Type = TypeAugmentation
	}

	seen := make(map[Key]struct{}, len(raw.VerifiedEvidences))
	for _, rawEvidence := range raw.VerifiedEvidences {
		evidence := rawEvidence.decode()

		if evidence.Signal != nil && evidence.Scale == nil {
			evidence.DetermineScale(qt.Rows)
		}

		if evidence.QueryTableID != qt.ID {
			log.Warn("evidence does not belong to query table",
				"evidence", evidence.ID, "query_table", qt.ID)
			continue
		}
		if _, dup := seen[evidence.Key()]; dup {
			log.Warn("evidence already contained in query table",
				"evidence", evidence.ID, "query_table", qt.ID)
			continue
		}
		seen[evidence.Key()] = struct{}{}
		qt.VerifiedEvidences = append(qt.VerifiedEvidences, evidence)
	}

	return qt, nil
}

// Encode serializes the query table in its persisted camelCase form.
// Evidence contexts are included only when withEvidenceContext is set.
func (qt *QueryTable) Encode(withEvidenceContext bool) ([]byte, error) {
	raw := queryTableJSON{
		ID:                 qt.ID,
		AssemblingStrategy: qt.AssemblingStrategy,
		UseCase:            qt.UseCase,
		Category:           qt.Category,
		SchemaOrgClass:     qt.SchemaOrgClass,
		Requirements:       qt.Requirements,
		ContextAttributes:  qt.ContextAttributes,
		TargetAttribute:    qt.TargetAttribute,
		Table:              qt.Rows,
		VerifiedEvidences:  make([]evidenceJSON, 0, len(qt.VerifiedEvidences)),
	}
	for _, evidence := range qt.VerifiedEvidences {
		raw.VerifiedEvidences = append(raw.VerifiedEvidences, evidence.encode(withEvidenceContext))
	}
	return json.MarshalIndent(raw, "", "  ")
}

// HasVerifiedEvidences reports whether any ground truth exists.
func (qt *QueryTable) HasVerifiedEvidences() bool {
	return len(qt.VerifiedEvidences) > 0
}

// Row returns the row with the given entity id.
func (qt *QueryTable) Row(entityID int) (Row, bool) {
	for _, row := range qt.Rows {
		if row.EntityID == entityID {
			return row, true
		}
	}
	return Row{}, false
}

// KnownPositiveEvidences counts verified evidences with a positive signal
// for the given entity.
func (qt *QueryTable) KnownPositiveEvidences(entityID int) int {
	count := 0
	for _, evidence := range qt.VerifiedEvidences {
		if evidence.EntityID == entityID && evidence.Signal != nil && *evidence.Signal {
			count++
		}
	}
	return count
}

// EvidenceStatistics summarizes the verified evidences of one entity by
// relevance scale.
type EvidenceStatistics struct {
	Evidences        int
	CorrectValue     int
	RelevantValue    int
	CorrectEntity    int
	NotCorrectEntity int
}

// EvidenceStatisticsOfRow counts the verified evidences of the given
// entity per scale.
func (qt *QueryTable) EvidenceStatisticsOfRow(entityID int) EvidenceStatistics {
	var stats EvidenceStatistics
	for _, evidence := range qt.VerifiedEvidences {
		if evidence.EntityID != entityID {
			continue
		}
		stats.Evidences++
		if evidence.Scale == nil {
			continue
		}
		switch *evidence.Scale {
		case ScaleCorrectValue:
			stats.CorrectValue++
		case ScaleRelevantValue:
			stats.RelevantValue++
		case ScaleCorrectEntity:
			stats.CorrectEntity++
		case ScaleIrrelevant:
			stats.NotCorrectEntity++
		}
	}
	return stats
}

// RemoveContextAttribute deletes the attribute from every row and from the
// context attribute list. Removing the name attribute or an attribute the
// table does not carry is a validation error.
func (qt *QueryTable) RemoveContextAttribute(attribute string) error {
	if attribute == NameAttribute {
		return apperrors.ValidationError("it is not allowed to remove the name attribute from the query table")
	}

	idx := -1
	for i, attr := range qt.ContextAttributes {
		if attr == attribute {
			idx = i
			break
		}
	}
	if idx < 0 {
		return apperrors.ValidationErrorf("context attribute %s not found in query table %d", attribute, qt.ID)
	}

	for _, row := range qt.Rows {
		row.Delete(attribute)
	}
	qt.ContextAttributes = append(qt.ContextAttributes[:idx], qt.ContextAttributes[idx+1:]...)
	return nil
}

// AddVerifiedEvidence appends an evidence to the ground truth. Evidences
// of a different query table are dropped with a warning.
func (qt *QueryTable) AddVerifiedEvidence(evidence *Evidence, log *logger.Logger) {
	if evidence.QueryTableID != qt.ID {
		if log != nil {
			log.Warn("evidence does not belong to query table",
				"evidence", evidence.ID, "query_table", qt.ID)
		}
		return
	}
	qt.VerifiedEvidences = append(qt.VerifiedEvidences, evidence)
}

// NormalizeNumbering renumbers rows and evidences densely from zero,
// closing the gaps left by row removal. Evidence entity references follow
// their rows.
func (qt *QueryTable) NormalizeNumbering() {
	for i, row := range qt.Rows {
		if row.EntityID != i {
			for _, evidence := range qt.VerifiedEvidences {
				if evidence.EntityID == row.EntityID {
					evidence.EntityID = i
				}
			}
			qt.Rows[i].EntityID = i
		}
	}

	for i, evidence := range qt.VerifiedEvidences {
		if evidence.ID != i {
			evidence.ID = i
		}
	}
}

// ContextAttributePermutations builds one copy of the query table per
// proper subset of the context attributes that still contains the name
// attribute. Used for attribute-ablation experiments.
func (qt *QueryTable) ContextAttributePermutations() ([]*QueryTable, error) {
	subsets := attributeSubsets(qt.ContextAttributes)

	var permutations []*QueryTable
	for _, subset := range subsets {
		keep := make(map[string]struct{}, len(subset))
		hasName := false
		for _, attr := range subset {
			keep[attr] = struct{}{}
			if attr == NameAttribute {
				hasName = true
			}
		}
		if !hasName || len(subset) == len(qt.ContextAttributes) {
			continue
		}

		clone, err := qt.clone()
		if err != nil {
			return nil, err
		}
		for _, attr := range qt.ContextAttributes {
			if _, ok := keep[attr]; ok {
				continue
			}
			if err := clone.RemoveContextAttribute(attr); err != nil {
				return nil, err
			}
		}
		permutations = append(permutations, clone)
	}

	return permutations, nil
}

func (qt *QueryTable) clone() (*QueryTable, error) {
	data, err := qt.Encode(true)
	if err != nil {
		return nil, fmt.Errorf("cloning query table %d: %w", qt.ID, err)
	}
	clone, err := Decode(data, nil)
	if err != nil {
		return nil, fmt.Errorf("cloning query table %d: %w", qt.ID, err)
	}
	clone.Type = qt.Type
	return clone, nil
}

func attributeSubsets(attributes []string) [][]string {
	var subsets [][]string
	n := len(attributes)
	for mask := 1; mask < (1 << n); mask++ {
		var subset []string
		for i := 0; i < n; i++ {
			if mask&(1<<i) != 0 {
				subset = append(subset, attributes[i])
			}
		}
		subsets = append(subsets, subset)
	}
	return subsets
}
