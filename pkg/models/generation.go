package models

// GenerationRequest asks a backend to write a new test from natural language.
type GenerationRequest struct {
	Requirements  string `json:"requirements" validate:"required,notblank"`
	Context       string `json:"context,omitempty"`
	PageURL       string `json:"page_url,omitempty" validate:"omitempty,url"`
	ExistingTests string `json:"existing_tests,omitempty"`
}

// ModifyRequest asks a backend to rewrite an existing test file.
type ModifyRequest struct {
	FilePath            string `json:"file_path" validate:"required,notblank"`
	ModificationRequest string `json:"modification_request" validate:"required,notblank"`
}

// Validation is the structural check of a generated test.
type Validation struct {
	Valid    bool     `json:"valid"`
	Issues   []string `json:"issues"`
	Warnings []string `json:"warnings"`
}

// ContextSnippet is a piece of codebase context the backend used.
type ContextSnippet struct {
	SourcePath string `json:"source_path"`
	Snippet    string `json:"snippet"`
}

// GenerationResult is returned by generate and modify operations.
// A successful result always carries non-empty Code; a failed one carries Error.
type GenerationResult struct {
	Success     bool             `json:"success"`
	Code        string           `json:"code,omitempty"`
	Error       string           `json:"error,omitempty"`
	Validation  *Validation      `json:"validation,omitempty"`
	ContextUsed []ContextSnippet `json:"context_used,omitempty"`
	Backend     string           `json:"backend,omitempty"`
}

// OK reports whether the result honors the success invariant.
func (r *GenerationResult) OK() bool {
	return r != nil && r.Success && r.Code != ""
}
