package model

// QtyBasis records whether a line item quantity came from hard measurement
// data or is an inferred allowance.
type QtyBasis string

const (
	QtyBasisMeasured  QtyBasis = "measured"
	QtyBasisAllowance QtyBasis = "allowance"
)

// ValidQtyBasis reports whether b is a member of the basis enum.
func ValidQtyBasis(b QtyBasis) bool {
	return b == QtyBasisMeasured || b == QtyBasisAllowance
}

// EstimateLineItem is the leaf unit of an estimate. A "measured" basis is
// only permitted when the corresponding measurement section has nonzero
// data; allowance items must carry an explanatory assumption.
type EstimateLineItem struct {
	LineCode    string   `json:"line_code,omitempty"`
	Description string   `json:"description"`
	Unit        string   `json:"unit"`
	Qty         float64  `json:"qty"`
	QtyBasis    QtyBasis `json:"qty_basis"`
	Assumptions string   `json:"assumptions,omitempty"`
}

// EstimateScopeGroup collects the line items for one repair scope.
type EstimateScopeGroup struct {
	Scope     Scope              `json:"scope"`
	LineItems []EstimateLineItem `json:"line_items"`
}

// EstimateResult is the estimate stage's full output.
type EstimateResult struct {
	Estimate              []EstimateScopeGroup `json:"estimate"`
	MissingInfoToFinalize []string             `json:"missing_info_to_finalize"`
	QuestionsForUser      []string             `json:"questions_for_user"`
}

// Scopes returns the distinct scopes present in the estimate, in order.
func (r *EstimateResult) Scopes() []Scope {
	seen := make(map[Scope]bool)
	var scopes []Scope
	for _, g := range r.Estimate {
		if !seen[g.Scope] {
			seen[g.Scope] = true
			scopes = append(scopes, g.Scope)
		}
	}
	return scopes
}

// LineItemCount returns the total number of line items across all groups.
func (r *EstimateResult) LineItemCount() int {
	n := 0
	for _, g := range r.Estimate {
		n += len(g.LineItems)
	}
	return n
}
