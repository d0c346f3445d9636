package table

import (
	"encoding/json"
	"fmt"
)

// Row is one entity of a query table: a fixed identity plus an open
// attribute map. Attribute sets vary per schema.org class.
type Row struct {
	// EntityID is unique within the owning query table.
	EntityID int

	// Attributes maps attribute name to value. A missing key and the
	// MissingValue sentinel both mean the value is unknown.
	Attributes map[string]Value
}

// NewRow creates a row with an empty attribute map.
func NewRow(entityID int) Row {
	return Row{
		EntityID:   entityID,
		Attributes: make(map[string]Value),
	}
}

// Get returns the attribute value if present and not the missing sentinel.
func (r Row) Get(attribute string) (Value, bool) {
	v, ok := r.Attributes[attribute]
	if !ok || v.IsMissing() {
		return Value{}, false
	}
	return v, true
}

// Set stores an attribute value.
func (r Row) Set(attribute string, v Value) {
	r.Attributes[attribute] = v
}

// Delete removes an attribute from the row.
func (r Row) Delete(attribute string) {
	delete(r.Attributes, attribute)
}

// MarshalJSON encodes the row as a flat object with an entityId key.
func (r Row) MarshalJSON() ([]byte, error) {
	obj := make(map[string]any, len(r.Attributes)+1)
	obj["entityId"] = r.EntityID
	for name, v := range r.Attributes {
		obj[name] = v
	}
	return json.Marshal(obj)
}

// UnmarshalJSON decodes a flat row object, splitting entityId from the
// open attribute map.
func (r *Row) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	id, ok := raw["entityId"]
	if !ok {
		return fmt.Errorf("row is missing entityId")
	}
	idNum, ok := id.(float64)
	if !ok {
		return fmt.Errorf("entityId must be a number, got %T", id)
	}

	row := NewRow(int(idNum))
	for name, value := range raw {
		if name == "entityId" {
			continue
		}
		v, err := valueFromAny(value)
		if err != nil {
			return fmt.Errorf("attribute %s: %w", name, err)
		}
		row.Attributes[name] = v
	}

	*r = row
	return nil
}
