package model

// MeasurementSource identifies the vendor that produced a measurement report.
type MeasurementSource string

const (
	SourceEagleView MeasurementSource = "eagleview"
	SourceHover     MeasurementSource = "hover"
	SourceSymbility MeasurementSource = "symbility"
	SourceOther     MeasurementSource = "other"
)

// ValidMeasurementSource reports whether s is a recognized vendor.
func ValidMeasurementSource(s MeasurementSource) bool {
	switch s {
	case SourceEagleView, SourceHover, SourceSymbility, SourceOther:
		return true
	}
	return false
}

// MeasurementReport is the normalized output of the measurement parse stage.
// Every section is always present (zero-valued when the source document had
// nothing for it) so downstream consumers never need existence checks.
type MeasurementReport struct {
	Source   MeasurementSource   `json:"source"`
	Sections MeasurementSections `json:"sections"`
	Notes    string              `json:"notes"`
}

// MeasurementSections holds the five per-domain measurement records.
type MeasurementSections struct {
	Roof     RoofSection     `json:"roof"`
	Gutters  GuttersSection  `json:"gutters"`
	Siding   SidingSection   `json:"siding"`
	Interior InteriorSection `json:"interior"`
	Openings OpeningsSection `json:"openings"`
}

// RoofSection holds roof measurements in squares and linear feet.
type RoofSection struct {
	TotalSquares float64     `json:"total_squares"`
	Planes       []RoofPlane `json:"planes"`
	Pitch        string      `json:"pitch"`
	RidgesLF     float64     `json:"ridges_lf"`
	HipsLF       float64     `json:"hips_lf"`
	ValleysLF    float64     `json:"valleys_lf"`
	DripEdgeLF   float64     `json:"drip_edge_lf"`
	EavesLF      float64     `json:"eaves_lf"`
	RakesLF      float64     `json:"rakes_lf"`
	Vents        int         `json:"vents"`
	PipeBoots    int         `json:"pipe_boots"`
}

// RoofPlane is one facet of the roof.
type RoofPlane struct {
	Label   string  `json:"label"`
	Squares float64 `json:"squares"`
	Pitch   string  `json:"pitch"`
}

// GuttersSection holds gutter and downspout measurements.
type GuttersSection struct {
	GuttersLF    float64 `json:"gutters_lf"`
	DownspoutsLF float64 `json:"downspouts_lf"`
	Downspouts   int     `json:"downspouts"`
}

// SidingSection holds wall cladding measurements.
type SidingSection struct {
	TotalSF          float64 `json:"total_sf"`
	InsideCornersLF  float64 `json:"inside_corners_lf"`
	OutsideCornersLF float64 `json:"outside_corners_lf"`
}

// InteriorSection holds per-room interior measurements.
type InteriorSection struct {
	TotalFloorSF float64           `json:"total_floor_sf"`
	Rooms        []RoomMeasurement `json:"rooms"`
}

// RoomMeasurement is one measured interior room.
type RoomMeasurement struct {
	Name        string  `json:"name"`
	FloorSF     float64 `json:"floor_sf"`
	WallSF      float64 `json:"wall_sf"`
	CeilingSF   float64 `json:"ceiling_sf"`
	PerimeterLF float64 `json:"perimeter_lf"`
}

// OpeningsSection counts exterior openings.
type OpeningsSection struct {
	Windows   int `json:"windows"`
	Doors     int `json:"doors"`
	Skylights int `json:"skylights"`
}

// NewMeasurementReport returns a report with all sections present and
// zero-valued, source set to "other".
func NewMeasurementReport() *MeasurementReport {
	r := &MeasurementReport{Source: SourceOther}
	r.EnsureDefaults()
	return r
}

// EnsureDefaults replaces nil slices with empty ones and coerces an
// unrecognized source to "other", so serialized reports never carry null
// lists or out-of-enum values.
func (m *MeasurementReport) EnsureDefaults() {
	if !ValidMeasurementSource(m.Source) {
		m.Source = SourceOther
	}
	if m.Sections.Roof.Planes == nil {
		m.Sections.Roof.Planes = []RoofPlane{}
	}
	if m.Sections.Interior.Rooms == nil {
		m.Sections.Interior.Rooms = []RoomMeasurement{}
	}
}

// HasData reports whether any roof field is nonzero.
func (s RoofSection) HasData() bool {
	return s.TotalSquares > 0 || len(s.Planes) > 0 || s.RidgesLF > 0 ||
		s.HipsLF > 0 || s.ValleysLF > 0 || s.DripEdgeLF > 0 ||
		s.EavesLF > 0 || s.RakesLF > 0 || s.Vents > 0 || s.PipeBoots > 0
}

// HasData reports whether any gutter field is nonzero.
func (s GuttersSection) HasData() bool {
	return s.GuttersLF > 0 || s.DownspoutsLF > 0 || s.Downspouts > 0
}

// HasData reports whether any siding field is nonzero.
func (s SidingSection) HasData() bool {
	return s.TotalSF > 0 || s.InsideCornersLF > 0 || s.OutsideCornersLF > 0
}

// HasData reports whether any interior field is nonzero.
func (s InteriorSection) HasData() bool {
	return s.TotalFloorSF > 0 || len(s.Rooms) > 0
}

// HasData reports whether any opening count is nonzero.
func (s OpeningsSection) HasData() bool {
	return s.Windows > 0 || s.Doors > 0 || s.Skylights > 0
}

// HasAnyData reports whether any section carries nonzero measurements.
func (m *MeasurementReport) HasAnyData() bool {
	if m == nil {
		return false
	}
	return m.Sections.Roof.HasData() || m.Sections.Gutters.HasData() ||
		m.Sections.Siding.HasData() || m.Sections.Interior.HasData() ||
		m.Sections.Openings.HasData()
}

// SectionHasData reports whether the measurement section backing the given
// scope carries nonzero data. Scopes without a backing section (structural,
// exterior, other, general) always return false, which forces the allowance
// quantity basis for their line items.
func (m *MeasurementReport) SectionHasData(scope Scope) bool {
	if m == nil {
		return false
	}
	switch scope {
	case ScopeRoof:
		return m.Sections.Roof.HasData()
	case ScopeGutters:
		return m.Sections.Gutters.HasData()
	case ScopeSiding:
		return m.Sections.Siding.HasData()
	case ScopeInterior:
		return m.Sections.Interior.HasData()
	default:
		return false
	}
}
