package model

// Severity grades how bad an individual damage finding is.
type Severity string

const (
	SeverityMinor    Severity = "minor"
	SeverityModerate Severity = "moderate"
	SeveritySevere   Severity = "severe"
)

// ValidSeverity reports whether s is a member of the severity enum.
func ValidSeverity(s Severity) bool {
	switch s {
	case SeverityMinor, SeverityModerate, SeveritySevere:
		return true
	}
	return false
}

// RecommendedAction is the repair action suggested for a finding.
type RecommendedAction string

const (
	ActionRepair      RecommendedAction = "repair"
	ActionReplace     RecommendedAction = "replace"
	ActionDetachReset RecommendedAction = "detach_reset"
	ActionClean       RecommendedAction = "clean"
	ActionInspect     RecommendedAction = "inspect"
)

// ValidRecommendedAction reports whether a is a member of the action enum.
func ValidRecommendedAction(a RecommendedAction) bool {
	switch a {
	case ActionRepair, ActionReplace, ActionDetachReset, ActionClean, ActionInspect:
		return true
	}
	return false
}

// DamageFinding is one typed damage observation derived from claim photos
// and description. Produced once per pipeline run and immutable after that.
type DamageFinding struct {
	Area              string            `json:"area"`
	Scope             Scope             `json:"scope"`
	Material          string            `json:"material,omitempty"`
	Damage            string            `json:"damage"`
	Severity          Severity          `json:"severity"`
	RecommendedAction RecommendedAction `json:"recommended_action"`
	Confidence        float64           `json:"confidence"`
}

// PhotoAnalysis carries prior per-photo analysis attached to a photo
// reference by an upstream collaborator.
type PhotoAnalysis struct {
	Material        string   `json:"material,omitempty"`
	ConditionRating string   `json:"condition_rating,omitempty"`
	DetectedDamages []string `json:"detected_damages,omitempty"`
	Summary         string   `json:"summary,omitempty"`
}

// PhotoRef identifies one claim photo, optionally with prior analysis.
type PhotoRef struct {
	ID       string         `json:"id"`
	Label    string         `json:"label,omitempty"`
	Analysis *PhotoAnalysis `json:"analysis,omitempty"`
}
