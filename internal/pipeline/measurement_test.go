package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ridgepoint-claims/claimflow/internal/config"
	"github.com/ridgepoint-claims/claimflow/internal/model"
)

var testAICfg = config.AnthropicConfig{
	HaikuModel:  "claude-haiku-4-5-20251001",
	SonnetModel: "claude-sonnet-4-5-20250929",
}

const eagleViewJSON = `{"source":"eagleview","sections":{` +
	`"roof":{"total_squares":22.5,"planes":[{"label":"A","squares":12,"pitch":"6/12"}],"pitch":"6/12","ridges_lf":40,"hips_lf":0,"valleys_lf":12,"drip_edge_lf":0,"eaves_lf":120,"rakes_lf":80,"vents":4,"pipe_boots":2},` +
	`"gutters":{"gutters_lf":140,"downspouts_lf":60,"downspouts":6},` +
	`"siding":{"total_sf":0,"inside_corners_lf":0,"outside_corners_lf":0},` +
	`"interior":{"total_floor_sf":0,"rooms":[]},` +
	`"openings":{"windows":0,"doors":0,"skylights":0}},"notes":""}`

func TestParseMeasurement_Success(t *testing.T) {
	ctx := context.Background()

	extractor := &mockExtractor{}
	extractor.On("ExtractText", ctx, []byte("pdf-bytes")).
		Return("EagleView Report\nTotal: 22.5 squares\nRidges: 40 LF", nil)

	aiClient := &mockAnthropicClient{}
	aiClient.On("CreateMessage", ctx, mock.AnythingOfType("anthropic.MessageRequest")).
		Return(textResponse(eagleViewJSON, 800, 300), nil).Once()

	report, usage, err := ParseMeasurement(ctx, []byte("pdf-bytes"), "eagleview_report.pdf", extractor, aiClient, testAICfg)

	require.NoError(t, err)
	assert.Equal(t, model.SourceEagleView, report.Source)
	assert.InDelta(t, 22.5, report.Sections.Roof.TotalSquares, 0.001)
	assert.Equal(t, "6/12", report.Sections.Roof.Pitch)
	assert.Equal(t, 6, report.Sections.Gutters.Downspouts)
	assert.True(t, report.HasAnyData())
	assert.Equal(t, 800, usage.InputTokens)
	assert.Equal(t, 300, usage.OutputTokens)
	aiClient.AssertExpectations(t)
}

func TestParseMeasurement_EmptyText_SoftFails(t *testing.T) {
	ctx := context.Background()

	extractor := &mockExtractor{}
	extractor.On("ExtractText", ctx, mock.Anything).Return("   \n ", nil)

	aiClient := &mockAnthropicClient{}

	report, usage, err := ParseMeasurement(ctx, []byte("scan"), "blank.pdf", extractor, aiClient, testAICfg)

	require.NoError(t, err)
	assert.False(t, report.HasAnyData())
	assert.NotEmpty(t, report.Notes)
	assert.NotNil(t, report.Sections.Roof.Planes)
	assert.Equal(t, 0, usage.Total())
	aiClient.AssertNotCalled(t, "CreateMessage", mock.Anything, mock.Anything)
}

func TestParseMeasurement_OCRError(t *testing.T) {
	ctx := context.Background()

	extractor := &mockExtractor{}
	extractor.On("ExtractText", ctx, mock.Anything).Return("", errors.New("pdftotext: exit status 1"))

	aiClient := &mockAnthropicClient{}

	_, _, err := ParseMeasurement(ctx, []byte("bad"), "corrupt.pdf", extractor, aiClient, testAICfg)
	assert.Error(t, err)
}

func TestParseMeasurement_MalformedOutput(t *testing.T) {
	ctx := context.Background()

	extractor := &mockExtractor{}
	extractor.On("ExtractText", ctx, mock.Anything).Return("some measurement text", nil)

	aiClient := &mockAnthropicClient{}
	aiClient.On("CreateMessage", ctx, mock.AnythingOfType("anthropic.MessageRequest")).
		Return(textResponse("I could not parse this document, sorry.", 100, 20), nil).Once()

	_, _, err := ParseMeasurement(ctx, []byte("pdf"), "doc.pdf", extractor, aiClient, testAICfg)
	require.Error(t, err)
	assert.True(t, IsMalformedOutput(err))
}

func TestParseMeasurement_SchemaViolation(t *testing.T) {
	ctx := context.Background()

	extractor := &mockExtractor{}
	extractor.On("ExtractText", ctx, mock.Anything).Return("measurement text", nil)

	aiClient := &mockAnthropicClient{}
	aiClient.On("CreateMessage", ctx, mock.AnythingOfType("anthropic.MessageRequest")).
		Return(textResponse(`{"sections":{"roof":{"total_squares":-5}}}`, 100, 20), nil).Once()

	_, _, err := ParseMeasurement(ctx, []byte("pdf"), "doc.pdf", extractor, aiClient, testAICfg)
	require.Error(t, err)
	assert.True(t, IsMalformedOutput(err))
}

func TestParseMeasurement_AllZeroReport_GetsNotes(t *testing.T) {
	ctx := context.Background()

	extractor := &mockExtractor{}
	extractor.On("ExtractText", ctx, mock.Anything).Return("a letter about something else entirely", nil)

	aiClient := &mockAnthropicClient{}
	aiClient.On("CreateMessage", ctx, mock.AnythingOfType("anthropic.MessageRequest")).
		Return(textResponse(`{"source":"other","sections":{},"notes":""}`, 100, 20), nil).Once()

	report, _, err := ParseMeasurement(ctx, []byte("pdf"), "letter.pdf", extractor, aiClient, testAICfg)
	require.NoError(t, err)
	assert.False(t, report.HasAnyData())
	assert.NotEmpty(t, report.Notes)
}

func TestParseMeasurement_SourceFallbackFromName(t *testing.T) {
	ctx := context.Background()

	extractor := &mockExtractor{}
	extractor.On("ExtractText", ctx, mock.Anything).Return("roof measurements 10 squares", nil)

	// Generator could not identify the vendor; document name carries it.
	payload := `{"source":"other","sections":{"roof":{"total_squares":10}},"notes":"vendor not stated"}`
	aiClient := &mockAnthropicClient{}
	aiClient.On("CreateMessage", ctx, mock.AnythingOfType("anthropic.MessageRequest")).
		Return(textResponse(payload, 100, 20), nil).Once()

	report, _, err := ParseMeasurement(ctx, []byte("pdf"), "Hover_Measurements.pdf", extractor, aiClient, testAICfg)
	require.NoError(t, err)
	assert.Equal(t, model.SourceHover, report.Source)
}

func TestDetectSource(t *testing.T) {
	assert.Equal(t, model.SourceEagleView, detectSource("EagleView_123.pdf", ""))
	assert.Equal(t, model.SourceSymbility, detectSource("report.pdf", "Generated by Symbility Solutions"))
	assert.Equal(t, model.SourceOther, detectSource("report.pdf", "unbranded measurements"))
}
