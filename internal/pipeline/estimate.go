package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ridgepoint-claims/claimflow/internal/catalog"
	"github.com/ridgepoint-claims/claimflow/internal/config"
	"github.com/ridgepoint-claims/claimflow/internal/model"
	"github.com/ridgepoint-claims/claimflow/internal/schema"
	"github.com/ridgepoint-claims/claimflow/pkg/anthropic"
)

// minScopesForOP is the minimum count of distinct trades before an
// overhead-and-profit line is warranted.
const minScopesForOP = 3

const estimateSystemPrompt = `You are a senior property claims estimator. Produce a draft repair estimate as a single JSON object:
{"estimate": [{"scope": "<scope name>",
   "line_items": [{"line_code": "<catalog code or empty>",
     "description": "<work description>",
     "unit": "SF"|"LF"|"SQ"|"EA"|"HR"|"DAY",
     "qty": <number>,
     "qty_basis": "measured"|"allowance",
     "assumptions": "<string, required when qty_basis is allowance>"}]}],
 "missing_info_to_finalize": ["<string>"],
 "questions_for_user": ["<string>"]}
Rules:
- Only produce scope groups for the allowed scopes you are given. Never add groups for other scopes.
- Use "measured" qty_basis only when the quantity comes directly from the measurement data provided. Everything else is an "allowance" and must state its assumption.
- Use line_code values from the catalog excerpt when one fits; leave line_code empty otherwise.
- List anything that blocks finalizing the estimate in missing_info_to_finalize, and direct questions in questions_for_user.`

const estimateUserPrompt = `Claim description: %s
Cause of loss: %s

Damage findings:
%s

Measurement data:
%s

Scope classification (confidence): %s
Allowed scopes: %s
Excluded scopes (do not estimate these): %s

Catalog excerpt:
%s

Estimation preferences:
%s`

// GenerateEstimate implements stage 4: turn the accumulated claim context
// into a draft estimate of scope groups and line items. The generator's
// output is treated as untrusted: scope groups outside the allowed set are
// dropped, measured quantities without backing data are downgraded to
// allowances, and unknown line codes are cleared. Corrections are logged,
// never silent.
func GenerateEstimate(ctx context.Context, clm model.ClaimContext, cat *catalog.Catalog, aiClient anthropic.Client, aiCfg config.AnthropicConfig) (*model.EstimateResult, *model.TokenUsage, error) {
	usage := &model.TokenUsage{}
	log := zap.L().With(zap.String("stage", model.StageGenerateEstimate))

	cls := clm.ScopeClassification
	if cls == nil {
		return nil, usage, &InsufficientEvidenceError{Msg: "cannot generate estimate: scope classification has not been run"}
	}
	if len(clm.PhotoFindings) == 0 && strings.TrimSpace(clm.Description) == "" && !clm.MeasurementReport.HasAnyData() {
		return nil, usage, &InsufficientEvidenceError{Msg: "cannot generate estimate: no claim description, no damage findings and no measurement data; provide a loss description, photos or a measurement report first"}
	}

	allowed := cls.PrimaryScopes
	excluded := excludedScopes(allowed)

	resp, err := aiClient.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     aiCfg.SonnetModel,
		MaxTokens: 4096,
		System:    anthropic.BuildCachedSystemBlocks(estimateSystemPrompt),
		Messages: []anthropic.Message{
			{Role: "user", Content: fmt.Sprintf(estimateUserPrompt,
				clm.Description, clm.LossCause,
				formatFindingsBlock(clm.PhotoFindings),
				formatMeasurementBlock(clm.MeasurementReport),
				formatConfidence(cls.Confidence),
				joinScopes(allowed),
				joinScopes(excluded),
				cat.PromptContext(allowed),
				formatOverrides(clm.UserOverrides, cat),
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
	resp.Usage.LogCost(aiCfg.SonnetModel, model.StageGenerateEstimate)

	payload, ok := extractJSON(extractText(resp))
	if !ok {
		return nil, usage, &MalformedOutputError{Stage: model.StageGenerateEstimate, Err: fmt.Errorf("no JSON object in generation output")}
	}
	if err := schema.Validate(schema.Estimate, []byte(payload)); err != nil {
		return nil, usage, &MalformedOutputError{Stage: model.StageGenerateEstimate, Err: err}
	}

	var result model.EstimateResult
	if err := json.Unmarshal([]byte(payload), &result); err != nil {
		return nil, usage, &MalformedOutputError{Stage: model.StageGenerateEstimate, Err: err}
	}

	sanitizeEstimate(&result, clm, cat, log)

	log.Info("estimate: generated",
		zap.Int("scope_groups", len(result.Estimate)),
		zap.Int("line_items", result.LineItemCount()),
	)

	return &result, usage, nil
}

// sanitizeEstimate applies the post-generation guardrails in order: scope
// filtering, quantity-basis downgrades, line-code verification, then the
// overhead-and-profit rule and the empty-estimate note.
func sanitizeEstimate(result *model.EstimateResult, clm model.ClaimContext, cat *catalog.Catalog, log *zap.Logger) {
	cls := clm.ScopeClassification

	filtered := make([]model.EstimateScopeGroup, 0, len(result.Estimate))
	for _, group := range result.Estimate {
		group.Scope = model.Scope(strings.ToLower(strings.TrimSpace(string(group.Scope))))
		if !cls.HasPrimaryScope(group.Scope) {
			log.Warn("estimate: guardrail dropped out-of-scope group",
				zap.String("scope", string(group.Scope)),
				zap.Int("line_items", len(group.LineItems)),
				zap.Bool("guardrail_applied", true),
			)
			continue
		}

		items := make([]model.EstimateLineItem, 0, len(group.LineItems))
		for _, item := range group.LineItems {
			item = sanitizeLineItem(item, group.Scope, clm, cat, log)
			if isOPLine(item) {
				// O&P is handled as a whole-estimate rule below, not per
				// group; generator-emitted O&P lines are always stripped.
				log.Warn("estimate: guardrail stripped inline overhead-and-profit line",
					zap.String("scope", string(group.Scope)),
					zap.String("description", item.Description),
					zap.Bool("guardrail_applied", true),
				)
				continue
			}
			items = append(items, item)
		}
		group.LineItems = items
		filtered = append(filtered, group)
	}
	result.Estimate = filtered

	if result.MissingInfoToFinalize == nil {
		result.MissingInfoToFinalize = []string{}
	}
	if result.QuestionsForUser == nil {
		result.QuestionsForUser = []string{}
	}

	applyOPRule(result, clm, cat)

	if result.LineItemCount() == 0 {
		result.MissingInfoToFinalize = append(result.MissingInfoToFinalize,
			"no estimate line items survived scope filtering; the claim evidence does not support work in the classified scopes")
	}
}

// sanitizeLineItem normalizes one line item: enum coercion for qty_basis,
// the measured-to-allowance downgrade when the scope's measurement section
// is empty, a synthesized assumption for any allowance missing one, and
// clearing of line codes the catalog does not know.
func sanitizeLineItem(item model.EstimateLineItem, scope model.Scope, clm model.ClaimContext, cat *catalog.Catalog, log *zap.Logger) model.EstimateLineItem {
	item.QtyBasis = model.QtyBasis(strings.ToLower(string(item.QtyBasis)))
	if !model.ValidQtyBasis(item.QtyBasis) {
		log.Warn("estimate: guardrail coerced out-of-enum qty_basis",
			zap.String("description", item.Description),
			zap.String("raw_basis", string(item.QtyBasis)),
			zap.Bool("guardrail_applied", true),
		)
		item.QtyBasis = model.QtyBasisAllowance
	}

	if item.QtyBasis == model.QtyBasisMeasured && !clm.MeasurementReport.SectionHasData(scope) {
		log.Warn("estimate: guardrail downgraded measured quantity without section data",
			zap.String("scope", string(scope)),
			zap.String("description", item.Description),
			zap.Bool("guardrail_applied", true),
		)
		item.QtyBasis = model.QtyBasisAllowance
		if item.Assumptions == "" {
			item.Assumptions = "quantity is an allowance; no measurement data covers this scope"
		}
	}

	// Every allowance must state its assumption, whichever path produced it.
	if item.QtyBasis == model.QtyBasisAllowance && strings.TrimSpace(item.Assumptions) == "" {
		log.Warn("estimate: guardrail synthesized missing allowance assumption",
			zap.String("scope", string(scope)),
			zap.String("description", item.Description),
			zap.Bool("guardrail_applied", true),
		)
		item.Assumptions = "allowance quantity; the generator stated no assumption, adjuster to verify"
	}

	if item.Qty < 0 {
		item.Qty = 0
	}

	if item.LineCode != "" && !cat.KnownCode(item.LineCode) {
		log.Warn("estimate: guardrail cleared unknown line code",
			zap.String("line_code", item.LineCode),
			zap.String("description", item.Description),
			zap.Bool("guardrail_applied", true),
		)
		item.LineCode = ""
	}

	return item
}

// applyOPRule appends a single overhead-and-profit line when the adjuster
// asked for it and the estimate spans enough distinct trades, or records
// why it was withheld.
func applyOPRule(result *model.EstimateResult, clm model.ClaimContext, cat *catalog.Catalog) {
	if !clm.UserOverrides.IncludeOP {
		return
	}
	scopes := result.Scopes()
	if len(scopes) < minScopesForOP {
		result.MissingInfoToFinalize = append(result.MissingInfoToFinalize,
			fmt.Sprintf("overhead and profit was requested but withheld: estimate spans %d trade(s), %d required", len(scopes), minScopesForOP))
		return
	}

	last := len(result.Estimate) - 1
	result.Estimate[last].LineItems = append(result.Estimate[last].LineItems, model.EstimateLineItem{
		Description: fmt.Sprintf("General contractor overhead and profit (%.0f%%)", cat.OPRate*100),
		Unit:        "EA",
		Qty:         1,
		QtyBasis:    model.QtyBasisAllowance,
		Assumptions: fmt.Sprintf("applied at the %.0f%% catalog rate across %d trades", cat.OPRate*100, len(scopes)),
	})
}

// isOPLine reports whether a line item is an overhead-and-profit charge.
func isOPLine(item model.EstimateLineItem) bool {
	d := strings.ToLower(item.Description)
	if strings.Contains(d, "overhead") && strings.Contains(d, "profit") {
		return true
	}
	return strings.Contains(d, "o&p")
}

// excludedScopes returns the candidate universe minus the allowed set.
func excludedScopes(allowed []model.Scope) []model.Scope {
	in := make(map[model.Scope]bool, len(allowed))
	for _, s := range allowed {
		in[s] = true
	}
	var out []model.Scope
	for _, s := range model.EstimateScopeUniverse() {
		if !in[s] {
			out = append(out, s)
		}
	}
	return out
}

func joinScopes(scopes []model.Scope) string {
	if len(scopes) == 0 {
		return "(none)"
	}
	parts := make([]string, len(scopes))
	for i, s := range scopes {
		parts[i] = string(s)
	}
	return strings.Join(parts, ", ")
}

func formatConfidence(conf map[model.Scope]float64) string {
	var parts []string
	for _, s := range model.EstimateScopeUniverse() {
		parts = append(parts, fmt.Sprintf("%s=%.2f", s, conf[s]))
	}
	return strings.Join(parts, ", ")
}

// formatOverrides renders the adjuster's estimation preferences for the
// prompt, resolving the quality grade to its catalog multiplier.
func formatOverrides(o model.UserOverrides, cat *catalog.Catalog) string {
	var b strings.Builder
	grade := o.QualityGrade
	if grade == "" {
		grade = "standard"
	}
	fmt.Fprintf(&b, "Quality grade: %s (pricing multiplier %.2f)\n", grade, cat.GradeMultiplier(grade))
	fmt.Fprintf(&b, "Include overhead and profit: %t\n", o.IncludeOP)
	if o.TaxRate > 0 {
		fmt.Fprintf(&b, "Tax rate: %.2f%%\n", o.TaxRate*100)
	}
	if o.PriceList != "" {
		fmt.Fprintf(&b, "Price list: %s\n", o.PriceList)
	}
	return strings.TrimRight(b.String(), "\n")
}
