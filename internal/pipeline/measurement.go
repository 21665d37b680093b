package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ridgepoint-claims/claimflow/internal/config"
	"github.com/ridgepoint-claims/claimflow/internal/model"
	"github.com/ridgepoint-claims/claimflow/internal/ocr"
	"github.com/ridgepoint-claims/claimflow/internal/schema"
	"github.com/ridgepoint-claims/claimflow/pkg/anthropic"
)

// maxMeasurementTextChars caps the OCR text sent to the structuring call.
const maxMeasurementTextChars = 24000

const measurementSystemPrompt = `You normalize property measurement reports (EagleView, Hover, Symbility and similar) into structured JSON. Respond with a single JSON object:
{"source": "eagleview"|"hover"|"symbility"|"other",
 "sections": {
   "roof": {"total_squares": <number>, "planes": [{"label": "<string>", "squares": <number>, "pitch": "<string>"}], "pitch": "<string>", "ridges_lf": <number>, "hips_lf": <number>, "valleys_lf": <number>, "drip_edge_lf": <number>, "eaves_lf": <number>, "rakes_lf": <number>, "vents": <int>, "pipe_boots": <int>},
   "gutters": {"gutters_lf": <number>, "downspouts_lf": <number>, "downspouts": <int>},
   "siding": {"total_sf": <number>, "inside_corners_lf": <number>, "outside_corners_lf": <number>},
   "interior": {"total_floor_sf": <number>, "rooms": [{"name": "<string>", "floor_sf": <number>, "wall_sf": <number>, "ceiling_sf": <number>, "perimeter_lf": <number>}]},
   "openings": {"windows": <int>, "doors": <int>, "skylights": <int>}
 },
 "notes": "<string>"}
Include every section key. Use 0 or empty lists for measurements the document does not contain. Do not invent values. If the document is not a measurement report, return all-zero sections and explain why in notes.`

const measurementUserPrompt = `Document name: %s

Document text:
%s`

// sourceKeywords maps vendor markers found in document names or text to
// the source enum.
var sourceKeywords = map[string]model.MeasurementSource{
	"eagleview":  model.SourceEagleView,
	"eagle view": model.SourceEagleView,
	"hover":      model.SourceHover,
	"symbility":  model.SourceSymbility,
}

// detectSource infers the report vendor from the document name and text.
func detectSource(documentName, text string) model.MeasurementSource {
	haystack := strings.ToLower(documentName + " " + text)
	for kw, src := range sourceKeywords {
		if strings.Contains(haystack, kw) {
			return src
		}
	}
	return model.SourceOther
}

// ParseMeasurement implements stage 1: normalize an uploaded measurement
// report document into a MeasurementReport. Every section key is always
// present in the output. A document with no parseable structure soft-fails
// to an all-zero report with explanatory notes rather than erroring;
// downstream stages tolerate an all-zero report.
func ParseMeasurement(ctx context.Context, pdf []byte, documentName string, extractor ocr.Extractor, aiClient anthropic.Client, aiCfg config.AnthropicConfig) (*model.MeasurementReport, *model.TokenUsage, error) {
	usage := &model.TokenUsage{}
	log := zap.L().With(zap.String("stage", model.StageParseMeasurement), zap.String("document", documentName))

	text, err := extractor.ExtractText(ctx, pdf)
	if err != nil {
		return nil, usage, err
	}

	if strings.TrimSpace(text) == "" {
		log.Warn("measurement: no text extracted, returning zero report")
		report := model.NewMeasurementReport()
		report.Source = detectSource(documentName, "")
		report.Notes = fmt.Sprintf("no text content could be extracted from %q; all sections zeroed", documentName)
		return report, usage, nil
	}

	if len(text) > maxMeasurementTextChars {
		text = text[:maxMeasurementTextChars]
	}

	resp, err := aiClient.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     aiCfg.HaikuModel,
		MaxTokens: 2048,
		System:    anthropic.BuildCachedSystemBlocks(measurementSystemPrompt),
		Messages: []anthropic.Message{
			{Role: "user", Content: fmt.Sprintf(measurementUserPrompt, documentName, text)},
		},
	})
	if err != nil {
		return nil, usage, err
	}

	usage.Add(model.TokenUsage{
		InputTokens:         int(resp.Usage.InputTokens),
		OutputTokens:        int(resp.Usage.OutputTokens),
		CacheCreationTokens: int(resp.Usage.CacheCreationInputTokens),
		CacheReadTokens:     int(resp.Usage.CacheReadInputTokens),
	})
	resp.Usage.LogCost(aiCfg.HaikuModel, model.StageParseMeasurement)

	payload, ok := extractJSON(extractText(resp))
	if !ok {
		return nil, usage, &MalformedOutputError{Stage: model.StageParseMeasurement, Err: fmt.Errorf("no JSON object in generation output")}
	}
	if err := schema.Validate(schema.MeasurementReport, []byte(payload)); err != nil {
		return nil, usage, &MalformedOutputError{Stage: model.StageParseMeasurement, Err: err}
	}

	var report model.MeasurementReport
	if err := json.Unmarshal([]byte(payload), &report); err != nil {
		return nil, usage, &MalformedOutputError{Stage: model.StageParseMeasurement, Err: err}
	}
	report.EnsureDefaults()

	if report.Source == model.SourceOther {
		report.Source = detectSource(documentName, text)
	}

	// Soft-fail contract: an all-zero report must explain itself.
	if !report.HasAnyData() && strings.TrimSpace(report.Notes) == "" {
		report.Notes = fmt.Sprintf("document %q contained no recognizable measurement structure", documentName)
	}

	log.Info("measurement: parsed report",
		zap.String("source", string(report.Source)),
		zap.Bool("has_data", report.HasAnyData()),
	)

	return &report, usage, nil
}
