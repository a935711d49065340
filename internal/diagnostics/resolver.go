package diagnostics

import (
	"fmt"

	"github.com/agnivade/levenshtein"

	"obd-diagnostics/internal/models"
)

// maxHintDistance bounds how different a header may be and still be suggested
const maxHintDistance = 3

// Resolver maps logical parameters to the headers of one dataset
type Resolver struct {
	ds        *models.Dataset
	canonical map[string]string
}

// NewResolver indexes the dataset header. When two headers share a
// canonical key the first one in header order is kept for fallback matching.
func NewResolver(ds *models.Dataset) *Resolver {
	r := &Resolver{ds: ds, canonical: make(map[string]string)}
	if ds == nil {
		return r
	}
	for _, c := range ds.Columns {
		key := models.CanonicalKey(c)
		if _, ok := r.canonical[key]; !ok {
			r.canonical[key] = c
		}
	}
	return r
}

// Resolve returns the first candidate header present in the dataset, in
// the parameter's alias priority order. Exact matches are tried for every
// candidate before falling back to canonical-key matching, which absorbs
// encoding and unit-notation variants.
func (r *Resolver) Resolve(p models.LogicalParameter) (string, error) {
	candidates := p.Candidates()
	for _, c := range candidates {
		if r.ds.HasColumn(c) {
			return c, nil
		}
	}
	for _, c := range candidates {
		if col, ok := r.canonical[models.CanonicalKey(c)]; ok {
			return col, nil
		}
	}
	return "", fmt.Errorf("%s: %w", p.Name, models.ErrColumnAbsent)
}

// ClosestHeader suggests the dataset header nearest to the parameter's
// canonical key, or "" when nothing is close.
func (r *Resolver) ClosestHeader(p models.LogicalParameter) string {
	best, bestDist := "", maxHintDistance+1
	for _, cand := range p.Candidates() {
		want := models.CanonicalKey(cand)
		for key, col := range r.canonical {
			d := levenshtein.ComputeDistance(want, key)
			if d < bestDist || (d == bestDist && col < best) {
				best, bestDist = col, d
			}
		}
	}
	return best
}
