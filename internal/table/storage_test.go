package table

import (
	"os"
	"path/filepath"
	"testing"

	apperrors "github.com/tablefill/table-fill/internal/pkg/errors"
)

func TestMemoryStorage(t *testing.T) {
	storage := NewMemoryStorage()
	qt := decodeTestTable(t)

	if storage.Exists(qt.ID) {
		t.Error("table should not exist before save")
	}

	if err := storage.Save(qt); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if !storage.Exists(qt.ID) {
		t.Error("table should exist after save")
	}

	loaded, err := storage.Load(qt.ID)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.ID != qt.ID || loaded.Category != qt.Category {
		t.Error("loaded table differs from saved table")
	}

	// Mutating the loaded copy must not affect the stored table
	loaded.Category = "changed"
	again, err := storage.Load(qt.ID)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if again.Category != qt.Category {
		t.Error("storage leaked a mutable reference")
	}

	if err := storage.Delete(qt.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := storage.Load(qt.ID); !apperrors.IsNotFound(err) {
		t.Errorf("Load after delete should return not found, got %v", err)
	}
	if err := storage.Delete(qt.ID); !apperrors.IsNotFound(err) {
		t.Errorf("second delete should return not found, got %v", err)
	}
}

func TestFileStorage(t *testing.T) {
	dir := t.TempDir()
	storage, err := NewFileStorage(dir, false, nil)
	if err != nil {
		t.Fatalf("NewFileStorage failed: %v", err)
	}

	qt := decodeTestTable(t)
	if err := storage.Save(qt); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	// Layout: <root>/<class>/<category>/gs_querytable_<category>_<attr>_<id>.json
	expected := filepath.Join(dir, "movie", "harry_potter", "gs_querytable_harry_potter_director_10.json")
	if _, err := os.Stat(expected); err != nil {
		t.Fatalf("expected file at %s: %v", expected, err)
	}

	if !storage.Exists(10) {
		t.Error("Exists(10) = false after save")
	}

	loaded, err := storage.Load(10)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.SchemaOrgClass != "movie" || len(loaded.VerifiedEvidences) != 3 {
		t.Error("loaded table does not match saved table")
	}

	tables, err := storage.LoadAll(Filter{SchemaOrgClass: "movie"})
	if err != nil {
		t.Fatalf("LoadAll failed: %v", err)
	}
	if len(tables) != 1 {
		t.Errorf("LoadAll returned %d tables, want 1", len(tables))
	}

	tables, err = storage.LoadAll(Filter{SchemaOrgClass: "hotel"})
	if err != nil {
		t.Fatalf("LoadAll failed: %v", err)
	}
	if len(tables) != 0 {
		t.Errorf("LoadAll(hotel) returned %d tables, want 0", len(tables))
	}

	if err := storage.Delete(10); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if storage.Exists(10) {
		t.Error("Exists(10) = true after delete")
	}
}

func TestFileStorage_LoadMissing(t *testing.T) {
	storage, err := NewFileStorage(t.TempDir(), false, nil)
	if err != nil {
		t.Fatalf("NewFileStorage failed: %v", err)
	}

	if _, err := storage.Load(404); !apperrors.IsNotFound(err) {
		t.Errorf("Load of a missing table should return not found, got %v", err)
	}
}

func TestFilter_Matches(t *testing.T) {
	qt := decodeTestTable(t)

	tests := []struct {
		name   string
		filter Filter
		want   bool
	}{
		{"empty filter", Filter{}, true},
		{"matching class", Filter{SchemaOrgClass: "movie"}, true},
		{"other class", Filter{SchemaOrgClass: "hotel"}, false},
		{"matching category", Filter{Category: "harry potter"}, true},
		{"matching type", Filter{Type: TypeAugmentation}, true},
		{"other type", Filter{Type: TypeRetrieval}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.filter.matches(qt); got != tt.want {
				t.Errorf("matches = %v, want %v", got, tt.want)
			}
		})
	}
}
