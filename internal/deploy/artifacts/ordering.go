package artifacts

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/compose-network/singleton-deployer/internal/deploy/domain"
)

// Ordering ranks artifact names. Callers are responsible for topological
// correctness; the table only fixes the sequence. Unranked names sort
// lexicographically and go after every ranked one.
type Ordering struct {
	ranks map[string]int
}

type orderingFile struct {
	Order []string `yaml:"order"`
}

// NewOrdering builds an ordering table from an explicit name list.
func NewOrdering(names []string) Ordering {
	ranks := make(map[string]int, len(names))
	for i, name := range names {
		if _, exists := ranks[name]; !exists {
			ranks[name] = i
		}
	}
	return Ordering{ranks: ranks}
}

// LoadOrdering reads the ordering table from a YAML file with a single
// `order:` list. A missing path yields an empty table, which sorts the whole
// batch lexicographically.
func LoadOrdering(path string) (Ordering, error) {
	if path == "" {
		return NewOrdering(nil), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewOrdering(nil), nil
		}
		return Ordering{}, fmt.Errorf("failed to read ordering file %s: %w", path, err)
	}

	var file orderingFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return Ordering{}, fmt.Errorf("failed to parse ordering file %s: %w", path, err)
	}

	return NewOrdering(file.Order), nil
}

// Sort orders artifacts in place: ranked names first in table order, then
// unranked names lexicographically.
func (o Ordering) Sort(artifacts []domain.Artifact) {
	sort.SliceStable(artifacts, func(i, j int) bool {
		return o.less(artifacts[i].Name, artifacts[j].Name)
	})
}

func (o Ordering) less(a, b string) bool {
	rankA, okA := o.ranks[a]
	rankB, okB := o.ranks[b]

	switch {
	case okA && okB:
		return rankA < rankB
	case okA:
		return true
	case okB:
		return false
	default:
		return a < b
	}
}
