package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMeasurementReport_AllSectionsPresent(t *testing.T) {
	r := NewMeasurementReport()

	data, err := json.Marshal(r)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))

	sections, ok := raw["sections"].(map[string]any)
	require.True(t, ok)
	for _, key := range []string{"roof", "gutters", "siding", "interior", "openings"} {
		assert.Contains(t, sections, key)
	}
}

func TestNewMeasurementReport_EmptyListsNotNull(t *testing.T) {
	r := NewMeasurementReport()

	data, err := json.Marshal(r)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"planes":[]`)
	assert.Contains(t, string(data), `"rooms":[]`)
}

func TestEnsureDefaults_CoercesUnknownSource(t *testing.T) {
	r := &MeasurementReport{Source: "roofsnap"}
	r.EnsureDefaults()
	assert.Equal(t, SourceOther, r.Source)
}

func TestHasAnyData(t *testing.T) {
	r := NewMeasurementReport()
	assert.False(t, r.HasAnyData())

	r.Sections.Roof.TotalSquares = 22
	assert.True(t, r.HasAnyData())

	var nilReport *MeasurementReport
	assert.False(t, nilReport.HasAnyData())
}

func TestSectionHasData_ScopeMapping(t *testing.T) {
	r := NewMeasurementReport()
	r.Sections.Roof.TotalSquares = 22
	r.Sections.Interior.Rooms = []RoomMeasurement{{Name: "Kitchen", FloorSF: 120}}

	assert.True(t, r.SectionHasData(ScopeRoof))
	assert.True(t, r.SectionHasData(ScopeInterior))
	assert.False(t, r.SectionHasData(ScopeSiding))
	assert.False(t, r.SectionHasData(ScopeGutters))

	// Scopes without a backing section never report data.
	assert.False(t, r.SectionHasData(ScopeStructural))
	assert.False(t, r.SectionHasData(ScopeExterior))
	assert.False(t, r.SectionHasData(ScopeGeneral))
}

func TestRoofSection_HasData_AllFields(t *testing.T) {
	assert.False(t, RoofSection{}.HasData())
	assert.True(t, RoofSection{RidgesLF: 40}.HasData())
	assert.True(t, RoofSection{PipeBoots: 2}.HasData())
	assert.True(t, RoofSection{Planes: []RoofPlane{{Label: "A", Squares: 10}}}.HasData())
}
