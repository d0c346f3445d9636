package table

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	apperrors "github.com/tablefill/table-fill/internal/pkg/errors"
	"github.com/tablefill/table-fill/internal/pkg/logger"
)

// Filter narrows storage listings.
type Filter struct {
	// SchemaOrgClass restricts to one entity class, empty matches all.
	SchemaOrgClass string

	// Category restricts to one ground-truth grouping, empty matches all.
	Category string

	// Type restricts to retrieval or augmentation tables, empty matches all.
	Type Type
}

func (f Filter) matches(qt *QueryTable) bool {
	if f.SchemaOrgClass != "" && qt.SchemaOrgClass != f.SchemaOrgClass {
		return false
	}
	if f.Category != "" && qt.Category != f.Category {
		return false
	}
	if f.Type != "" && qt.Type != f.Type {
		return false
	}
	return true
}

// Storage is the interface for query-table persistence.
type Storage interface {
	// Save persists a query table.
	Save(qt *QueryTable) error

	// Load loads a query table by id.
	Load(id int) (*QueryTable, error)

	// LoadAll loads all query tables matching the filter.
	LoadAll(filter Filter) ([]*QueryTable, error)

	// Delete removes a query table.
	Delete(id int) error

	// Exists checks whether a query table is stored.
	Exists(id int) bool
}

// MemoryStorage keeps query tables in memory (for tests).
type MemoryStorage struct {
	tables map[int]*QueryTable
	mu     sync.RWMutex
}

// NewMemoryStorage creates a new in-memory storage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		tables: make(map[int]*QueryTable),
	}
}

func (m *MemoryStorage) Save(qt *QueryTable) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Deep copy via the persisted form to avoid shared mutations
	clone, err := qt.clone()
	if err != nil {
		return err
	}
	m.tables[qt.ID] = clone
	return nil
}

func (m *MemoryStorage) Load(id int) (*QueryTable, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	qt, ok := m.tables[id]
	if !ok {
		return nil, apperrors.NotFoundError(fmt.Sprintf("query table %d", id))
	}
	return qt.clone()
}

func (m *MemoryStorage) LoadAll(filter Filter) ([]*QueryTable, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var tables []*QueryTable
	for _, qt := range m.tables {
		if !filter.matches(qt) {
			continue
		}
		clone, err := qt.clone()
		if err != nil {
			return nil, err
		}
		tables = append(tables, clone)
	}
	return tables, nil
}

func (m *MemoryStorage) Delete(id int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.tables[id]; !ok {
		return apperrors.NotFoundError(fmt.Sprintf("query table %d", id))
	}
	delete(m.tables, id)
	return nil
}

func (m *MemoryStorage) Exists(id int) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.tables[id]
	return ok
}

// FileStorage persists query tables as one JSON file per table, laid out
// as <root>/<schemaOrgClass>/<category>/gs_querytable_<category>_<attr>_<id>.json.
type FileStorage struct {
	root        string
	withContext bool
	log         *logger.Logger
	mu          sync.RWMutex
}

// NewFileStorage creates a file-backed storage rooted at the given
// directory. withContext controls whether evidence contexts are persisted.
func NewFileStorage(root string, withContext bool, log *logger.Logger) (*FileStorage, error) {
	if log == nil {
		log = logger.Default()
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, apperrors.StorageError("creating query table directory", err)
	}
	return &FileStorage{
		root:        root,
		withContext: withContext,
		log:         log,
	}, nil
}

func (f *FileStorage) path(qt *QueryTable) string {
	category := strings.ToLower(strings.ReplaceAll(qt.Category, " ", "_"))
	attribute := qt.TargetAttribute
	if attribute == "" {
		attribute = string(TypeRetrieval)
	}
	name := fmt.Sprintf("gs_querytable_%s_%s_%d.json", category, attribute, qt.ID)
	return filepath.Join(f.root, qt.SchemaOrgClass, category, name)
}

func (f *FileStorage) Save(qt *QueryTable) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := qt.Encode(f.withContext)
	if err != nil {
		return apperrors.StorageError("encoding query table", err)
	}

	path := f.path(qt)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return apperrors.StorageError("creating category directory", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return apperrors.StorageError("writing query table", err)
	}

	f.log.Info("saved query table", "path", path)
	return nil
}

func (f *FileStorage) Load(id int) (*QueryTable, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	path, err := f.find(id)
	if err != nil {
		return nil, err
	}
	return f.loadFile(path)
}

func (f *FileStorage) LoadAll(filter Filter) ([]*QueryTable, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	var tables []*QueryTable
	err := f.walk(func(path string) error {
		qt, err := f.loadFile(path)
		if err != nil {
			// A single unreadable table should not abort a batch load
			f.log.Warn("skipping unreadable query table", "path", path, "error", err)
			return nil
		}
		if filter.matches(qt) {
			tables = append(tables, qt)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tables, nil
}

func (f *FileStorage) Delete(id int) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	path, err := f.find(id)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		return apperrors.StorageError("deleting query table", err)
	}
	return nil
}

func (f *FileStorage) Exists(id int) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()

	_, err := f.find(id)
	return err == nil
}

func (f *FileStorage) loadFile(path string) (*QueryTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.StorageError("reading query table", err)
	}
	return Decode(data, f.log)
}

func (f *FileStorage) find(id int) (string, error) {
	suffix := fmt.Sprintf("_%d.json", id)
	var found string
	err := f.walk(func(path string) error {
		if strings.HasSuffix(path, suffix) {
			found = path
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	if found == "" {
		return "", apperrors.NotFoundError(fmt.Sprintf("query table %d", id))
	}
	return found, nil
}

func (f *FileStorage) walk(fn func(path string) error) error {
	err := filepath.WalkDir(f.root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".json") {
			return nil
		}
		return fn(path)
	})
	if err != nil {
		return apperrors.StorageError("walking query table directory", err)
	}
	return nil
}
