package dhdm

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/taigrr/dhdmgen/pkg/fileio"
)

// ErrMissingTranslation reports a refined vertex with no entry in the
// translation table, or too few tables for the subdivision level.
var ErrMissingTranslation = errors.New("missing vertex translation")

// TranslationTable maps refined vertex indices to hd mesh vertex indices
// for meshes whose vertex order differs from the refiner's.
type TranslationTable struct {
	Source string
	Index  map[int]int
}

// LoadTranslationTable reads a matching file: a plain or gzip-compressed
// JSON object whose keys are refined vertex indices and whose values are hd
// vertex indices.
func LoadTranslationTable(path string) (*TranslationTable, error) {
	var raw map[string]int
	if err := fileio.LoadJSON(path, &raw); err != nil {
		return nil, fmt.Errorf("load translation table: %w", err)
	}

	t := &TranslationTable{Source: path, Index: make(map[int]int, len(raw))}
	for k, v := range raw {
		i, err := strconv.Atoi(k)
		if err != nil {
			return nil, fmt.Errorf("load translation table %s: key %q: %w", path, k, err)
		}
		t.Index[i] = v
	}
	return t, nil
}

// Lookup returns the hd index of refined vertex i.
func (t *TranslationTable) Lookup(i int) (int, error) {
	j, ok := t.Index[i]
	if !ok {
		return 0, fmt.Errorf("%w: vertex index %d not found in %s", ErrMissingTranslation, i, t.Source)
	}
	return j, nil
}

// Save writes t as a gzip-compressed matching file.
func (t *TranslationTable) Save(path string) error {
	raw := make(map[string]int, len(t.Index))
	for k, v := range t.Index {
		raw[strconv.Itoa(k)] = v
	}
	if err := fileio.SaveJSON(path, raw, true); err != nil {
		return fmt.Errorf("save translation table: %w", err)
	}
	return nil
}
