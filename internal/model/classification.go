package model

import "sort"

// ScopeClassification is the scope classify stage's output: a per-scope
// confidence map plus the derived set of scopes that are in for estimation.
type ScopeClassification struct {
	Confidence    map[Scope]float64 `json:"confidence"`
	PrimaryScopes []Scope           `json:"primary_scopes"`
	MissingInfo   []string          `json:"missing_info"`
}

// ComputePrimaryScopes derives the primary scope set from a confidence map:
// every scope at or above threshold, ordered by descending confidence (name
// ascending on ties, so the result is deterministic). An empty qualifying
// set yields exactly ["general"]. PrimaryScopes must always be recomputed
// through this function after any correction to the confidence map; it is
// never accepted verbatim from the generator.
func ComputePrimaryScopes(confidence map[Scope]float64, threshold float64) []Scope {
	var primary []Scope
	for s, c := range confidence {
		if c >= threshold {
			primary = append(primary, s)
		}
	}
	if len(primary) == 0 {
		return []Scope{ScopeGeneral}
	}
	sort.Slice(primary, func(i, j int) bool {
		ci, cj := confidence[primary[i]], confidence[primary[j]]
		if ci != cj {
			return ci > cj
		}
		return primary[i] < primary[j]
	})
	return primary
}

// HasPrimaryScope reports whether s is a member of the primary scope set.
func (c *ScopeClassification) HasPrimaryScope(s Scope) bool {
	for _, p := range c.PrimaryScopes {
		if p == s {
			return true
		}
	}
	return false
}

// IsGeneralOnly reports whether the classification fell back to the
// ["general"] catch-all because no scope cleared the threshold.
func (c *ScopeClassification) IsGeneralOnly() bool {
	return len(c.PrimaryScopes) == 1 && c.PrimaryScopes[0] == ScopeGeneral
}
