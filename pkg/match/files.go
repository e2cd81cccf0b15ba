package match

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"

	"github.com/taigrr/dhdmgen/pkg/dhdm"
)

// Subdivision methods a matching file can be generated for.
const (
	MethodMultires    = "mr"
	MethodMultiresRec = "mrr"
)

var fileNameRE = regexp.MustCompile(`^f(\d+-\d+-\d+)_div(\d)_(mr|mrr)\.json$`)

// FileName returns the name of the matching file for a base mesh
// fingerprint, a level and a method.
func FileName(fingerprint string, level int, method string) string {
	return fmt.Sprintf("f%s_div%d_%s.json", fingerprint, level, method)
}

// ParseFileName is the inverse of FileName. ok is false for names that are
// not matching files.
func ParseFileName(name string) (fingerprint string, level int, method string, ok bool) {
	m := fileNameRE.FindStringSubmatch(name)
	if m == nil {
		return "", 0, "", false
	}
	level, _ = strconv.Atoi(m[2])
	return m[1], level, m[3], true
}

// Catalog lists the matching files of one base mesh found in a directory.
type Catalog struct {
	Fingerprint string
	files       map[string]map[int]string // method -> level -> path
}

// Scan collects the matching files for fingerprint in dir. Subdirectories
// are not searched.
func Scan(dir, fingerprint string) (*Catalog, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("scan matching files: %w", err)
	}

	c := &Catalog{Fingerprint: fingerprint, files: make(map[string]map[int]string)}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		fp, level, method, ok := ParseFileName(e.Name())
		if !ok || fp != fingerprint {
			continue
		}
		if c.files[method] == nil {
			c.files[method] = make(map[int]string)
		}
		c.files[method][level] = filepath.Join(dir, e.Name())
	}
	return c, nil
}

// Paths returns the files for levels 1 to maxLevel of method.
func (c *Catalog) Paths(maxLevel int, method string) ([]string, error) {
	paths := make([]string, 0, maxLevel)
	for level := 1; level <= maxLevel; level++ {
		p, ok := c.files[method][level]
		if !ok {
			return nil, fmt.Errorf("%w: no %s file for %s at level %d",
				dhdm.ErrMissingTranslation, method, c.Fingerprint, level)
		}
		paths = append(paths, p)
	}
	return paths, nil
}

// MissingLevels returns the levels up to maxLevel without a file for method.
func (c *Catalog) MissingLevels(maxLevel int, method string) []int {
	var missing []int
	for level := 1; level <= maxLevel; level++ {
		if _, ok := c.files[method][level]; !ok {
			missing = append(missing, level)
		}
	}
	return missing
}

// LoadTables loads the translation tables at paths, in order.
func LoadTables(paths []string) ([]*dhdm.TranslationTable, error) {
	tables := make([]*dhdm.TranslationTable, 0, len(paths))
	for _, p := range paths {
		t, err := dhdm.LoadTranslationTable(p)
		if err != nil {
			return nil, err
		}
		tables = append(tables, t)
	}
	return tables, nil
}
