package model

import "time"

// UserOverrides carries adjuster-supplied estimation preferences.
type UserOverrides struct {
	QualityGrade string  `json:"quality_grade,omitempty"` // economy, standard, premium
	IncludeOP    bool    `json:"include_op"`
	TaxRate      float64 `json:"tax_rate,omitempty"`
	PriceList    string  `json:"price_list,omitempty"`
}

// ClaimContext is the accumulating envelope threaded through the four
// pipeline stages. Each stage reads a prefix of its fields and writes
// exactly one new field; stages never mutate fields they did not produce.
// Persistence between stage invocations is the orchestrator's concern.
type ClaimContext struct {
	ClaimRef            string               `json:"claim_ref,omitempty"`
	Description         string               `json:"description"`
	LossCause           string               `json:"loss_cause"`
	Photos              []PhotoRef           `json:"photos"`
	MeasurementReport   *MeasurementReport   `json:"measurement_report,omitempty"`
	PhotoFindings       []DamageFinding      `json:"photo_findings,omitempty"`
	ScopeClassification *ScopeClassification `json:"scope_classification,omitempty"`
	UserOverrides       UserOverrides        `json:"user_overrides"`
}

// RunStatus represents the current state of a pipeline run.
type RunStatus string

const (
	RunStatusQueued      RunStatus = "queued"
	RunStatusParsing     RunStatus = "parsing"
	RunStatusExtracting  RunStatus = "extracting"
	RunStatusClassifying RunStatus = "classifying"
	RunStatusEstimating  RunStatus = "estimating"
	RunStatusComplete    RunStatus = "complete"
	RunStatusFailed      RunStatus = "failed"
)

// Stage names, in execution order.
const (
	StageParseMeasurement = "1_parse_measurement"
	StageExtractFindings  = "2_extract_findings"
	StageClassifyScope    = "3_classify_scope"
	StageGenerateEstimate = "4_generate_estimate"
)

// StageStatus represents the outcome of one pipeline stage.
type StageStatus string

const (
	StageStatusRunning  StageStatus = "running"
	StageStatusComplete StageStatus = "complete"
	StageStatusFailed   StageStatus = "failed"
	StageStatusSkipped  StageStatus = "skipped"
)

// StageResult holds the outcome of a single stage invocation.
type StageResult struct {
	Name       string      `json:"name"`
	Status     StageStatus `json:"status"`
	Duration   int64       `json:"duration_ms"`
	TokenUsage TokenUsage  `json:"token_usage"`
	Error      string      `json:"error,omitempty"`
}

// PipelineRun is the persisted record of one pipeline execution.
type PipelineRun struct {
	ID        string          `json:"id"`
	ClaimRef  string          `json:"claim_ref"`
	Status    RunStatus       `json:"status"`
	Stage     string          `json:"stage,omitempty"` // last completed stage
	Context   ClaimContext    `json:"claim_context"`
	Result    *EstimateResult `json:"estimate_result,omitempty"`
	Stages    []StageResult   `json:"stages,omitempty"`
	Error     string          `json:"error,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// TokenUsage tracks token consumption across generation calls.
type TokenUsage struct {
	InputTokens         int `json:"input_tokens"`
	OutputTokens        int `json:"output_tokens"`
	CacheCreationTokens int `json:"cache_creation_tokens"`
	CacheReadTokens     int `json:"cache_read_tokens"`
}

// Add accumulates another usage into u.
func (u *TokenUsage) Add(other TokenUsage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.CacheCreationTokens += other.CacheCreationTokens
	u.CacheReadTokens += other.CacheReadTokens
}

// Total returns combined input and output tokens.
func (u TokenUsage) Total() int {
	return u.InputTokens + u.OutputTokens
}
