package models

import "time"

// Decision is the outcome of matching one requirement.
type Decision string

const (
	DecisionMeets   Decision = "meets"
	DecisionPartial Decision = "partial"
	DecisionUnmet   Decision = "unmet"
)

// RejectReason explains why a candidate service was discarded for a
// requirement. Kept in the trace for audit.
type RejectReason string

const (
	RejectUnit           RejectReason = "unit"
	RejectActivity       RejectReason = "activity"
	RejectMandatoryTerm  RejectReason = "mandatory_term"
	RejectBelowThreshold RejectReason = "below_threshold"
)

// Contribution is one service's share of a requirement's coverage.
type Contribution struct {
	AttestationID string  `json:"attestation_id"`
	ServiceIndex  int     `json:"service_index"`
	Quantity      float64 `json:"quantity"`
	Similarity    float64 `json:"similarity"`
}

// CandidateTrace records how a single candidate service scored, including
// rejected candidates and the reason they were dropped.
type CandidateTrace struct {
	AttestationID string       `json:"attestation_id"`
	ServiceIndex  int          `json:"service_index"`
	Description   string       `json:"description"`
	Unit          string       `json:"unit"`
	Quantity      float64      `json:"quantity"`
	Similarity    float64      `json:"similarity"`
	CommonWords   int          `json:"common_words"`
	Selected      bool         `json:"selected"`
	Reject        RejectReason `json:"reject,omitempty"`
}

// RequirementResult is the matcher's verdict for one requirement.
type RequirementResult struct {
	Requirement   Requirement      `json:"requirement"`
	Decision      Decision         `json:"decision"`
	Covered       float64          `json:"covered"`
	CoveragePct   float64          `json:"coverage_pct"`
	Contributions []Contribution   `json:"contributions,omitempty"`
	Trace         []CandidateTrace `json:"trace,omitempty"`
}

// AnalysisResult is the full matcher output over all requirements.
type AnalysisResult struct {
	Requirements []RequirementResult `json:"requirements"`
	GeneratedAt  time.Time           `json:"generated_at"`
}

// Analysis is a stored tender analysis: the parsed requirements of a tender
// notice plus, after matching, the result. Attestation references inside the
// result are lookup-only and never block attestation deletion.
type Analysis struct {
	ID           string          `json:"id" badgerhold:"key"`
	UserID       string          `json:"user_id" badgerhold:"index"`
	Name         string          `json:"name"`
	FilePath     string          `json:"file_path,omitempty"`
	Requirements []Requirement   `json:"requirements"`
	Result       *AnalysisResult `json:"result,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}
