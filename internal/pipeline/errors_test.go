package pipeline

import (
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
)

func TestIsMalformedOutput(t *testing.T) {
	base := &MalformedOutputError{Stage: "classify_scope", Err: eris.New("no JSON in response")}

	assert.True(t, IsMalformedOutput(base))
	assert.Contains(t, base.Error(), "classify_scope")
	assert.Contains(t, base.Error(), "no JSON in response")

	// Survives wrapping.
	wrapped := eris.Wrap(base, "pipeline: stage classify_scope")
	assert.True(t, IsMalformedOutput(wrapped))

	assert.False(t, IsMalformedOutput(nil))
	assert.False(t, IsMalformedOutput(eris.New("something else")))
}

func TestMalformedOutputError_Unwrap(t *testing.T) {
	inner := eris.New("schema violation")
	err := &MalformedOutputError{Stage: "parse_measurement", Err: inner}
	assert.Equal(t, inner, err.Unwrap())
}

func TestIsInsufficientEvidence(t *testing.T) {
	base := &InsufficientEvidenceError{Msg: "no findings and no measurement data"}

	assert.True(t, IsInsufficientEvidence(base))
	assert.Equal(t, "no findings and no measurement data", base.Error())

	wrapped := eris.Wrap(base, "pipeline: stage generate_estimate")
	assert.True(t, IsInsufficientEvidence(wrapped))

	assert.False(t, IsInsufficientEvidence(nil))
	assert.False(t, IsInsufficientEvidence(&MalformedOutputError{Stage: "x", Err: eris.New("y")}))
}
