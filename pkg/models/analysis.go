package models

// Quality grades an analyzed test.
type Quality string

const (
	QualityExcellent        Quality = "excellent"
	QualityGood             Quality = "good"
	QualityNeedsImprovement Quality = "needs_improvement"
)

// Coverage estimates how much behavior an analyzed test exercises.
type Coverage string

const (
	CoverageHigh   Coverage = "high"
	CoverageMedium Coverage = "medium"
	CoverageLow    Coverage = "low"
)

// AnalysisRequest asks a backend to review test source.
type AnalysisRequest struct {
	TestCode string `json:"test_code" validate:"required,notblank"`
	TestName string `json:"test_name,omitempty"`
}

// Analysis is the structured review of a test.
type Analysis struct {
	Quality      Quality  `json:"quality"`
	Coverage     Coverage `json:"coverage"`
	Suggestions  []string `json:"suggestions"`
	Improvements []string `json:"improvements"`
	Score        int      `json:"score,omitempty"`
}

// AnalysisResult is returned by the analyze operation.
type AnalysisResult struct {
	Success  bool      `json:"success"`
	Analysis *Analysis `json:"analysis,omitempty"`
	Error    string    `json:"error,omitempty"`
	Backend  string    `json:"backend,omitempty"`
}

// OK reports whether the analysis succeeded.
func (r *AnalysisResult) OK() bool {
	return r != nil && r.Success
}
