package models

// DefaultOutputDir is where tests are saved when no directory is given.
const DefaultOutputDir = "tests"

// SaveRequest persists generated test source.
type SaveRequest struct {
	Code      string `json:"code" validate:"required,notblank"`
	TestName  string `json:"test_name" validate:"required,notblank"`
	OutputDir string `json:"output_dir,omitempty"`
}

// Dir returns the output directory, applying the default.
func (r SaveRequest) Dir() string {
	if r.OutputDir == "" {
		return DefaultOutputDir
	}
	return r.OutputDir
}

// SaveOutcome reports where a test was written.
type SaveOutcome struct {
	Success  bool   `json:"success"`
	FilePath string `json:"file_path,omitempty"`
	Error    string `json:"error,omitempty"`
	Backend  string `json:"backend,omitempty"`
}

// OK reports whether the save succeeded.
func (o *SaveOutcome) OK() bool {
	return o != nil && o.Success
}
