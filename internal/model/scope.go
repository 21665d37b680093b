package model

// Scope is a named category of repair work used to partition estimate line
// items. Findings use the five-value finding enum; estimates draw from the
// six-value candidate universe plus the "general" fallback.
type Scope string

const (
	ScopeInterior   Scope = "interior"
	ScopeRoof       Scope = "roof"
	ScopeSiding     Scope = "siding"
	ScopeGutters    Scope = "gutters"
	ScopeStructural Scope = "structural"
	ScopeExterior   Scope = "exterior"
	ScopeOther      Scope = "other"
	ScopeGeneral    Scope = "general"
)

// FindingScopes returns the closed set of scopes a DamageFinding may carry.
func FindingScopes() []Scope {
	return []Scope{ScopeInterior, ScopeRoof, ScopeSiding, ScopeGutters, ScopeOther}
}

// EstimateScopeUniverse returns the full candidate scope set for estimation.
func EstimateScopeUniverse() []Scope {
	return []Scope{ScopeInterior, ScopeRoof, ScopeSiding, ScopeGutters, ScopeStructural, ScopeExterior}
}

// ValidFindingScope reports whether s is a member of the finding scope enum.
func ValidFindingScope(s Scope) bool {
	for _, v := range FindingScopes() {
		if v == s {
			return true
		}
	}
	return false
}

// ValidEstimateScope reports whether s may appear on an estimate scope group.
func ValidEstimateScope(s Scope) bool {
	if s == ScopeGeneral {
		return true
	}
	for _, v := range EstimateScopeUniverse() {
		if v == s {
			return true
		}
	}
	return false
}
