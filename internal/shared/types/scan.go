package types

// ScanRequest describes one due-diligence run: a company, its website, and
// the investment thesis the analysis is scored against.
type ScanRequest struct {
	RequestID string   `json:"request_id"`
	Company   string   `json:"company" binding:"required"`
	Website   string   `json:"website" binding:"required"`
	Thesis    string   `json:"thesis" binding:"required"`
	Models    []string `json:"models,omitempty"`
}

// ScanResult is the outcome of a completed (or degraded) run
type ScanResult struct {
	RequestID string `json:"request_id"`
	ReportID  string `json:"report_id"`
	Partial   bool   `json:"partial"`
}

// Claim is one analysis assertion linked back to supporting evidence
type Claim struct {
	Text       string  `json:"text"`
	EvidenceID string  `json:"evidence_id,omitempty"`
	Confidence float64 `json:"confidence"`
}

// Analysis is the validated structured output of one model's assessment
type Analysis struct {
	Model     string   `json:"model"`
	Score     float64  `json:"score"`
	Summary   string   `json:"summary"`
	Strengths []string `json:"strengths,omitempty"`
	Risks     []string `json:"risks,omitempty"`
}
