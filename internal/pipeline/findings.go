package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ridgepoint-claims/claimflow/internal/config"
	"github.com/ridgepoint-claims/claimflow/internal/model"
	"github.com/ridgepoint-claims/claimflow/internal/schema"
	"github.com/ridgepoint-claims/claimflow/pkg/anthropic"
)

// maxChunkConcurrency limits concurrent CreateMessage calls when photos
// are split across multiple requests.
const maxChunkConcurrency = 4

const findingsSystemPrompt = `You are a property damage adjuster reviewing claim photos. For each photo, identify 1-3 distinct damage findings. Respond with a JSON array:
[{"area": "<location, e.g. Kitchen ceiling>",
  "scope": "interior"|"roof"|"siding"|"gutters"|"other",
  "material": "<material, optional>",
  "damage": "<what is damaged and how>",
  "severity": "minor"|"moderate"|"severe",
  "recommended_action": "repair"|"replace"|"detach_reset"|"clean"|"inspect",
  "confidence": <0.0-1.0>}]
Only report damage supported by the photo analysis or claim description. Return [] if no damage is identifiable.`

const findingsUserPrompt = `Claim description: %s
Cause of loss: %s

Photos:
%s`

// ExtractFindings implements stage 2: derive a flat list of typed damage
// findings from claim photos and their prior per-photo analysis. Zero
// photos yields an empty list without a generation call. Large photo sets
// are chunked across concurrent requests and merged in order; any chunk
// failure fails the whole stage (no partial success).
func ExtractFindings(ctx context.Context, clm model.ClaimContext, aiClient anthropic.Client, aiCfg config.AnthropicConfig, pipeCfg config.PipelineConfig) ([]model.DamageFinding, *model.TokenUsage, error) {
	usage := &model.TokenUsage{}

	if len(clm.Photos) == 0 {
		return []model.DamageFinding{}, usage, nil
	}

	chunkSize := pipeCfg.PhotoChunkSize
	if chunkSize <= 0 {
		chunkSize = 8
	}
	chunks := chunkPhotos(clm.Photos, chunkSize)

	systemBlocks := anthropic.BuildCachedSystemBlocks(findingsSystemPrompt)

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(maxChunkConcurrency)

	chunkFindings := make([][]model.DamageFinding, len(chunks))
	chunkUsages := make([]model.TokenUsage, len(chunks))

	for i, chunk := range chunks {
		g.Go(func() error {
			prompt := fmt.Sprintf(findingsUserPrompt, clm.Description, clm.LossCause, formatPhotoBlock(chunk))

			resp, err := aiClient.CreateMessage(gCtx, anthropic.MessageRequest{
				Model:     aiCfg.HaikuModel,
				MaxTokens: 2048,
				System:    systemBlocks,
				Messages:  []anthropic.Message{{Role: "user", Content: prompt}},
			})
			if err != nil {
				return err
			}

			chunkUsages[i] = model.TokenUsage{
				InputTokens:         int(resp.Usage.InputTokens),
				OutputTokens:        int(resp.Usage.OutputTokens),
				CacheCreationTokens: int(resp.Usage.CacheCreationInputTokens),
				CacheReadTokens:     int(resp.Usage.CacheReadInputTokens),
			}

			findings, err := parseFindings(extractText(resp))
			if err != nil {
				return err
			}
			chunkFindings[i] = findings
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, usage, err
	}

	findings := []model.DamageFinding{}
	for i := range chunks {
		usage.Add(chunkUsages[i])
		findings = append(findings, chunkFindings[i]...)
	}

	anthropic.TokenUsage{
		InputTokens:              int64(usage.InputTokens),
		OutputTokens:             int64(usage.OutputTokens),
		CacheCreationInputTokens: int64(usage.CacheCreationTokens),
		CacheReadInputTokens:     int64(usage.CacheReadTokens),
	}.LogCost(aiCfg.HaikuModel, model.StageExtractFindings)

	zap.L().Info("findings: extracted damage findings",
		zap.Int("photos", len(clm.Photos)),
		zap.Int("chunks", len(chunks)),
		zap.Int("findings", len(findings)),
	)

	return findings, usage, nil
}

// chunkPhotos splits photos into groups of at most size.
func chunkPhotos(photos []model.PhotoRef, size int) [][]model.PhotoRef {
	var chunks [][]model.PhotoRef
	for start := 0; start < len(photos); start += size {
		end := start + size
		if end > len(photos) {
			end = len(photos)
		}
		chunks = append(chunks, photos[start:end])
	}
	return chunks
}

// formatPhotoBlock renders photo references and any prior analysis as a
// text block for the extraction prompt.
func formatPhotoBlock(photos []model.PhotoRef) string {
	var b strings.Builder
	for i, p := range photos {
		fmt.Fprintf(&b, "--- Photo %d (id: %s)", i+1, p.ID)
		if p.Label != "" {
			fmt.Fprintf(&b, " [%s]", p.Label)
		}
		b.WriteString(" ---\n")
		if a := p.Analysis; a != nil {
			if a.Material != "" {
				fmt.Fprintf(&b, "Material: %s\n", a.Material)
			}
			if a.ConditionRating != "" {
				fmt.Fprintf(&b, "Condition: %s\n", a.ConditionRating)
			}
			if len(a.DetectedDamages) > 0 {
				fmt.Fprintf(&b, "Detected damages: %s\n", strings.Join(a.DetectedDamages, "; "))
			}
			if a.Summary != "" {
				fmt.Fprintf(&b, "Summary: %s\n", a.Summary)
			}
		} else {
			b.WriteString("No prior analysis available.\n")
		}
	}
	return b.String()
}

// parseFindings validates and normalizes one chunk's generation output.
// Out-of-enum values are a contract violation by the generator: scope is
// coerced to "other", severity to "moderate", action to "inspect", each
// with a logged guardrail correction rather than a silent pass-through.
func parseFindings(text string) ([]model.DamageFinding, error) {
	payload, ok := extractJSON(text)
	if !ok {
		return nil, &MalformedOutputError{Stage: model.StageExtractFindings, Err: fmt.Errorf("no JSON array in generation output")}
	}
	if err := schema.Validate(schema.DamageFindings, []byte(payload)); err != nil {
		return nil, &MalformedOutputError{Stage: model.StageExtractFindings, Err: err}
	}

	var raw []model.DamageFinding
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		return nil, &MalformedOutputError{Stage: model.StageExtractFindings, Err: err}
	}

	findings := make([]model.DamageFinding, 0, len(raw))
	for _, f := range raw {
		f.Area = strings.TrimSpace(f.Area)
		f.Damage = strings.TrimSpace(f.Damage)
		f.Scope = model.Scope(strings.ToLower(string(f.Scope)))
		f.Severity = model.Severity(strings.ToLower(string(f.Severity)))
		f.RecommendedAction = model.RecommendedAction(strings.ToLower(string(f.RecommendedAction)))

		if !model.ValidFindingScope(f.Scope) {
			zap.L().Warn("findings: guardrail coerced out-of-enum scope",
				zap.String("stage", model.StageExtractFindings),
				zap.String("area", f.Area),
				zap.String("raw_scope", string(f.Scope)),
				zap.Bool("guardrail_applied", true),
			)
			f.Scope = model.ScopeOther
		}
		if !model.ValidSeverity(f.Severity) {
			zap.L().Warn("findings: guardrail coerced out-of-enum severity",
				zap.String("area", f.Area),
				zap.String("raw_severity", string(f.Severity)),
				zap.Bool("guardrail_applied", true),
			)
			f.Severity = model.SeverityModerate
		}
		if !model.ValidRecommendedAction(f.RecommendedAction) {
			zap.L().Warn("findings: guardrail coerced out-of-enum action",
				zap.String("area", f.Area),
				zap.String("raw_action", string(f.RecommendedAction)),
				zap.Bool("guardrail_applied", true),
			)
			f.RecommendedAction = model.ActionInspect
		}
		if f.Confidence < 0 {
			f.Confidence = 0
		}
		if f.Confidence > 1 {
			f.Confidence = 1
		}

		findings = append(findings, f)
	}

	return findings, nil
}
