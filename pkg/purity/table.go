// Package purity decides whether a called method may change the state of the
// object it is called on. Field method calls are categorized as uses when the
// callee is pure and as definitions otherwise.
package purity

import (
	_ "embed"
	"fmt"
	"io"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed jdk_pure_methods.yaml
var jdkPureMethods []byte

// Oracle answers purity questions for methods whose code is not available,
// keyed by fully qualified signature such as java.util.List.size().
type Oracle interface {
	CheckPurity(signature string) bool
}

// Table is an Oracle backed by an explicit list of pure signatures.
type Table struct {
	mu   sync.RWMutex
	pure map[string]struct{}
}

type tableDocument struct {
	Pure []string `yaml:"pure"`
}

// NewTable creates a table holding the given signatures.
func NewTable(signatures ...string) *Table {
	t := &Table{pure: make(map[string]struct{}, len(signatures))}
	for _, s := range signatures {
		t.pure[s] = struct{}{}
	}
	return t
}

// LoadTable reads a YAML document with a top-level "pure" list.
func LoadTable(r io.Reader) (*Table, error) {
	var doc tableDocument
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to decode purity table: %w", err)
	}
	return NewTable(doc.Pure...), nil
}

// LoadTableFile reads a purity table from path.
func LoadTableFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open purity table %s: %w", path, err)
	}
	defer f.Close()
	return LoadTable(f)
}

var (
	jdkTable     *Table
	jdkTableOnce sync.Once
)

// JDKTable returns a copy of the built-in standard library table.
func JDKTable() *Table {
	jdkTableOnce.Do(func() {
		var doc tableDocument
		if err := yaml.Unmarshal(jdkPureMethods, &doc); err != nil {
			panic(fmt.Sprintf("purity: embedded table is malformed: %v", err))
		}
		jdkTable = NewTable(doc.Pure...)
	})
	return NewTable(jdkTable.Signatures()...)
}

// CheckPurity reports whether signature is listed as pure.
func (t *Table) CheckPurity(signature string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.pure[signature]
	return ok
}

// Merge adds every signature of other to t.
func (t *Table) Merge(other *Table) {
	sigs := other.Signatures()
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, s := range sigs {
		t.pure[s] = struct{}{}
	}
}

// Signatures returns the listed signatures in no particular order.
func (t *Table) Signatures() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	r := make([]string, 0, len(t.pure))
	for s := range t.pure {
		r = append(r, s)
	}
	return r
}

// Len returns the number of listed signatures.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.pure)
}

var _ Oracle = (*Table)(nil)
