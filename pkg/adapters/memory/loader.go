package memory

import (
	"fmt"
	"sort"

	"github.com/aretw0/xrlt/pkg/domain"
)

// Loader implements ports.SheetLoader using an in-memory map.
type Loader struct {
	sheets map[string][]byte
}

// NewLoader creates a new Loader with the provided raw requestsheets.
func NewLoader(data map[string]string) *Loader {
	sheets := make(map[string][]byte)
	for k, v := range data {
		sheets[k] = []byte(v)
	}
	return &Loader{
		sheets: sheets,
	}
}

// GetSheet retrieves the raw definition of a sheet by name.
func (l *Loader) GetSheet(name string) ([]byte, error) {
	content, ok := l.sheets[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrSheetNotFound, name)
	}
	return content, nil
}

// ListSheets returns all available sheet names.
func (l *Loader) ListSheets() ([]string, error) {
	keys := make([]string, 0, len(l.sheets))
	for k := range l.sheets {
		keys = append(keys, k)
	}
	sort.Strings(keys) // Deterministic order
	return keys, nil
}
