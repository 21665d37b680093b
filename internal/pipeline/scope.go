package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ridgepoint-claims/claimflow/internal/config"
	"github.com/ridgepoint-claims/claimflow/internal/model"
	"github.com/ridgepoint-claims/claimflow/internal/schema"
	"github.com/ridgepoint-claims/claimflow/pkg/anthropic"
)

const scopeSystemPrompt = `You are a claims triage analyst. Given a claim's description, damage findings and measurement data, rate how confident you are that each scope of work is needed. Respond with a single JSON object:
{"confidence": {"interior": <0.0-1.0>, "roof": <0.0-1.0>, "siding": <0.0-1.0>, "gutters": <0.0-1.0>, "structural": <0.0-1.0>, "exterior": <0.0-1.0>},
 "missing_info": ["<information that would raise or settle a scope decision>"]}
Base confidence on damage evidence only. The mere presence of measurement data for a section is not evidence that the section is damaged.`

const scopeUserPrompt = `Claim description: %s
Cause of loss: %s

Damage findings:
%s

Measurement data:
%s`

// roofEvidenceKeywords are loss-description markers that count as roof
// evidence for the confidence guardrail.
var roofEvidenceKeywords = []string{"roof", "shingle", "hail", "ridge", "flashing"}

// ClassifyScope implements stage 3: map accumulated evidence to a per-scope
// confidence map and the derived primary scope set. The primary set is
// always recomputed locally from the corrected confidence map; the
// generator's own primary_scopes, if any, is ignored.
func ClassifyScope(ctx context.Context, clm model.ClaimContext, aiClient anthropic.Client, aiCfg config.AnthropicConfig, pipeCfg config.PipelineConfig) (*model.ScopeClassification, *model.TokenUsage, error) {
	usage := &model.TokenUsage{}
	log := zap.L().With(zap.String("stage", model.StageClassifyScope))

	if !hasClassificationSignal(clm) {
		log.Info("scope: no classifiable signal, defaulting to general")
		cls := &model.ScopeClassification{
			Confidence:  zeroConfidence(),
			MissingInfo: []string{"no damage findings, measurement data or claim description available; provide photos or a loss description to classify scopes"},
		}
		cls.PrimaryScopes = model.ComputePrimaryScopes(cls.Confidence, pipeCfg.PrimaryScopeThreshold)
		return cls, usage, nil
	}

	resp, err := aiClient.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     aiCfg.HaikuModel,
		MaxTokens: 1024,
		System:    anthropic.BuildCachedSystemBlocks(scopeSystemPrompt),
		Messages: []anthropic.Message{
			{Role: "user", Content: fmt.Sprintf(scopeUserPrompt,
				clm.Description, clm.LossCause,
				formatFindingsBlock(clm.PhotoFindings),
				formatMeasurementBlock(clm.MeasurementReport),
			)},
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
	resp.Usage.LogCost(aiCfg.HaikuModel, model.StageClassifyScope)

	payload, ok := extractJSON(extractText(resp))
	if !ok {
		return nil, usage, &MalformedOutputError{Stage: model.StageClassifyScope, Err: fmt.Errorf("no JSON object in generation output")}
	}
	if err := schema.Validate(schema.Classification, []byte(payload)); err != nil {
		return nil, usage, &MalformedOutputError{Stage: model.StageClassifyScope, Err: err}
	}

	var raw struct {
		Confidence  map[string]float64 `json:"confidence"`
		MissingInfo []string           `json:"missing_info"`
	}
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		return nil, usage, &MalformedOutputError{Stage: model.StageClassifyScope, Err: err}
	}

	cls := &model.ScopeClassification{
		Confidence:  normalizeConfidence(raw.Confidence, log),
		MissingInfo: raw.MissingInfo,
	}
	if cls.MissingInfo == nil {
		cls.MissingInfo = []string{}
	}

	applyRoofGuardrail(cls, clm, pipeCfg.RoofConfidenceCap, log)

	cls.PrimaryScopes = model.ComputePrimaryScopes(cls.Confidence, pipeCfg.PrimaryScopeThreshold)

	log.Info("scope: classified",
		zap.Any("confidence", cls.Confidence),
		zap.Any("primary_scopes", cls.PrimaryScopes),
	)

	return cls, usage, nil
}

// hasClassificationSignal reports whether the claim carries anything worth
// sending to the classifier.
func hasClassificationSignal(clm model.ClaimContext) bool {
	if len(clm.PhotoFindings) > 0 {
		return true
	}
	if clm.MeasurementReport.HasAnyData() {
		return true
	}
	return strings.TrimSpace(clm.Description) != "" || strings.TrimSpace(clm.LossCause) != ""
}

// zeroConfidence returns an all-zero map over the candidate scope universe.
func zeroConfidence() map[model.Scope]float64 {
	conf := make(map[model.Scope]float64, len(model.EstimateScopeUniverse()))
	for _, s := range model.EstimateScopeUniverse() {
		conf[s] = 0
	}
	return conf
}

// normalizeConfidence projects the generator's map onto the fixed scope
// universe: unknown keys are dropped with a guardrail log, missing keys get
// zero, values clamp to [0,1].
func normalizeConfidence(raw map[string]float64, log *zap.Logger) map[model.Scope]float64 {
	conf := zeroConfidence()
	for key, val := range raw {
		s := model.Scope(strings.ToLower(strings.TrimSpace(key)))
		if _, ok := conf[s]; !ok {
			log.Warn("scope: guardrail dropped unknown confidence key",
				zap.String("raw_scope", key),
				zap.Bool("guardrail_applied", true),
			)
			continue
		}
		if val < 0 {
			val = 0
		}
		if val > 1 {
			val = 1
		}
		conf[s] = val
	}
	return conf
}

// applyRoofGuardrail caps roof confidence when the claim shows no roof
// evidence. A roof-scope finding or a roof keyword in the description or
// loss cause counts as evidence; roof measurement data alone does not,
// since an intact roof is measured just the same as a damaged one.
func applyRoofGuardrail(cls *model.ScopeClassification, clm model.ClaimContext, limit float64, log *zap.Logger) {
	current := cls.Confidence[model.ScopeRoof]
	if current <= limit {
		return
	}
	if hasRoofEvidence(clm) {
		return
	}

	log.Warn("scope: guardrail capped roof confidence without roof evidence",
		zap.Float64("raw_confidence", current),
		zap.Float64("capped_confidence", limit),
		zap.Bool("guardrail_applied", true),
	)
	cls.Confidence[model.ScopeRoof] = limit
	cls.MissingInfo = append(cls.MissingInfo,
		"roof confidence was capped: no roof damage findings or roof-related loss description; add roof photos or confirm roof damage")
}

// hasRoofEvidence reports whether any finding targets the roof or the
// narrative mentions it.
func hasRoofEvidence(clm model.ClaimContext) bool {
	for _, f := range clm.PhotoFindings {
		if f.Scope == model.ScopeRoof {
			return true
		}
	}
	narrative := strings.ToLower(clm.Description + " " + clm.LossCause)
	for _, kw := range roofEvidenceKeywords {
		if strings.Contains(narrative, kw) {
			return true
		}
	}
	return false
}

// formatFindingsBlock renders findings as prompt text.
func formatFindingsBlock(findings []model.DamageFinding) string {
	if len(findings) == 0 {
		return "(none)"
	}
	var b strings.Builder
	for i, f := range findings {
		fmt.Fprintf(&b, "%d. [%s] %s: %s (severity: %s, action: %s, confidence: %.2f)\n",
			i+1, f.Scope, f.Area, f.Damage, f.Severity, f.RecommendedAction, f.Confidence)
	}
	return strings.TrimRight(b.String(), "\n")
}

// formatMeasurementBlock summarizes which measurement sections carry data.
func formatMeasurementBlock(report *model.MeasurementReport) string {
	if report == nil || !report.HasAnyData() {
		return "(none)"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Source: %s\n", report.Source)
	s := report.Sections
	if s.Roof.HasData() {
		fmt.Fprintf(&b, "Roof: %.1f squares, pitch %s, ridges %.0f lf, valleys %.0f lf\n",
			s.Roof.TotalSquares, s.Roof.Pitch, s.Roof.RidgesLF, s.Roof.ValleysLF)
	}
	if s.Gutters.HasData() {
		fmt.Fprintf(&b, "Gutters: %.0f lf, %d downspouts\n", s.Gutters.GuttersLF, s.Gutters.Downspouts)
	}
	if s.Siding.HasData() {
		fmt.Fprintf(&b, "Siding: %.0f sf\n", s.Siding.TotalSF)
	}
	if s.Interior.HasData() {
		fmt.Fprintf(&b, "Interior: %.0f floor sf, %d rooms\n", s.Interior.TotalFloorSF, len(s.Interior.Rooms))
	}
	if s.Openings.HasData() {
		fmt.Fprintf(&b, "Openings: %d windows, %d doors, %d skylights\n",
			s.Openings.Windows, s.Openings.Doors, s.Openings.Skylights)
	}
	if report.Notes != "" {
		fmt.Fprintf(&b, "Notes: %s\n", report.Notes)
	}
	return strings.TrimRight(b.String(), "\n")
}
