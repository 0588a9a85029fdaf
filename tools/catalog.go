package tools

import (
	"encoding/json"
	"fmt"
	"slices"
	"sort"
	"strconv"
	"strings"

	"github.com/petasbytes/recagent/internal/fsops"
)

// DefaultCatalog is the catalog file read when a call does not name one.
const DefaultCatalog = "catalog.json"

// Item is one recommendable catalog entry.
type Item struct {
	ID         int      `json:"id"`
	Title      string   `json:"title"`
	Genres     []string `json:"genres"`
	Year       int      `json:"year,omitempty"`
	Popularity float64  `json:"popularity"`
}

// Catalog is the demo data set: items plus the ids each user has already seen.
type Catalog struct {
	Items   []Item           `json:"items"`
	History map[string][]int `json:"history,omitempty"`
}

// Filters narrows a recommendation query.
type Filters struct {
	Genres  []string `json:"genres,omitempty" jsonschema_description:"Keep only items having at least one of these genres (case-insensitive)."`
	MinYear int      `json:"min_year,omitempty" jsonschema_description:"Earliest release year, inclusive."`
	MaxYear int      `json:"max_year,omitempty" jsonschema_description:"Latest release year, inclusive."`
}

// LoadCatalog reads and decodes a catalog under the data root.
func LoadCatalog(relPath string) (*Catalog, error) {
	if relPath == "" {
		relPath = DefaultCatalog
	}
	b, err := fsops.ReadFile(relPath)
	if err != nil {
		return nil, err
	}
	var c Catalog
	if err := json.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("decode catalog %s: %w", relPath, err)
	}
	return &c, nil
}

// TopK returns up to k unseen items for user matching f, most popular first.
// Ties break on id so results are stable.
func (c *Catalog) TopK(user, k int, f Filters) []Item {
	seen := make(map[int]bool)
	for _, id := range c.History[strconv.Itoa(user)] {
		seen[id] = true
	}
	var out []Item
	for _, it := range c.Items {
		if seen[it.ID] || !f.match(it) {
			continue
		}
		out = append(out, it)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Popularity != out[j].Popularity {
			return out[i].Popularity > out[j].Popularity
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > k {
		out = out[:k]
	}
	return out
}

// ByIDs returns the items with the given ids in request order, plus the ids not found.
func (c *Catalog) ByIDs(ids []int) (found []Item, missing []int) {
	index := make(map[int]Item, len(c.Items))
	for _, it := range c.Items {
		index[it.ID] = it
	}
	for _, id := range ids {
		if it, ok := index[id]; ok {
			found = append(found, it)
		} else {
			missing = append(missing, id)
		}
	}
	return found, missing
}

func (f Filters) match(it Item) bool {
	if f.MinYear > 0 && it.Year < f.MinYear {
		return false
	}
	if f.MaxYear > 0 && it.Year > f.MaxYear {
		return false
	}
	if len(f.Genres) == 0 {
		return true
	}
	for _, g := range f.Genres {
		if slices.ContainsFunc(it.Genres, func(ig string) bool { return strings.EqualFold(ig, g) }) {
			return true
		}
	}
	return false
}
