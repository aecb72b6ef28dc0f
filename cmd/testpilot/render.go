package testpilot

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/kamilpajak/testpilot/internal/database"
	"github.com/kamilpajak/testpilot/pkg/models"
)

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printBackend(w io.Writer, backend string) {
	dim := color.New(color.FgHiBlack)
	if backend == models.BackendSimulator {
		yellow := color.New(color.FgYellow)
		_, _ = yellow.Fprintln(w, "  Backend: simulator (AI service unavailable or mock mode)")
		return
	}
	_, _ = dim.Fprintf(w, "  Backend: %s\n", backend)
}

func printFailure(w io.Writer, what, message string) {
	red := color.New(color.FgRed, color.Bold)
	_, _ = red.Fprintf(w, "✗ %s failed: %s\n", what, message)
}

// printGeneration writes the code to stdout and everything else to stderr
// so the test can be piped straight into a file.
func printGeneration(stderr, stdout io.Writer, r *models.GenerationResult) {
	if !r.OK() {
		printFailure(stderr, "Generation", r.Error)
		return
	}

	green := color.New(color.FgGreen, color.Bold)
	_, _ = green.Fprintln(stderr, "✓ Test generated")
	printBackend(stderr, r.Backend)
	fmt.Fprintln(stderr)

	fmt.Fprintln(stdout, r.Code)

	if v := r.Validation; v != nil {
		printValidation(stderr, v)
	}

	if len(r.ContextUsed) > 0 {
		dim := color.New(color.FgHiBlack)
		fmt.Fprintln(stderr)
		_, _ = dim.Fprintln(stderr, "  Context used:")
		for _, c := range r.ContextUsed {
			_, _ = dim.Fprintf(stderr, "    - %s\n", c.SourcePath)
		}
	}
}

func printValidation(w io.Writer, v *models.Validation) {
	if v.Valid && len(v.Warnings) == 0 {
		return
	}
	fmt.Fprintln(w)
	if !v.Valid {
		red := color.New(color.FgRed)
		_, _ = red.Fprintln(w, "  Validation issues:")
		for _, issue := range v.Issues {
			_, _ = red.Fprintf(w, "    - %s\n", issue)
		}
	}
	if len(v.Warnings) > 0 {
		yellow := color.New(color.FgYellow)
		_, _ = yellow.Fprintln(w, "  Warnings:")
		for _, warning := range v.Warnings {
			_, _ = yellow.Fprintf(w, "    - %s\n", warning)
		}
	}
}

func printAnalysis(stderr, stdout io.Writer, r *models.AnalysisResult) {
	if !r.OK() || r.Analysis == nil {
		printFailure(stderr, "Analysis", r.Error)
		return
	}
	a := r.Analysis
	bold := color.New(color.Bold)

	fmt.Fprintln(stderr)
	dim := color.New(color.FgHiBlack)
	_, _ = dim.Fprintln(stderr, "  "+strings.Repeat("━", 50))
	if a.Score > 0 {
		printScoreBar(stderr, a.Score)
	}
	printBackend(stderr, r.Backend)
	fmt.Fprintln(stderr)

	fmt.Fprintf(stdout, "Quality:  %s\n", strings.ToUpper(strings.ReplaceAll(string(a.Quality), "_", " ")))
	fmt.Fprintf(stdout, "Coverage: %s\n", strings.ToUpper(string(a.Coverage)))

	if len(a.Suggestions) > 0 {
		fmt.Fprintln(stdout)
		_, _ = bold.Fprintln(stdout, "SUGGESTIONS")
		for _, s := range a.Suggestions {
			fmt.Fprintf(stdout, "- %s\n", s)
		}
	}
	if len(a.Improvements) > 0 {
		fmt.Fprintln(stdout)
		_, _ = bold.Fprintln(stdout, "IMPROVEMENTS")
		for _, s := range a.Improvements {
			fmt.Fprintf(stdout, "- %s\n", s)
		}
	}
}

func printScoreBar(w io.Writer, score int) {
	const barWidth = 24
	filled := min(max(score, 0)*barWidth/100, barWidth)

	var barColor *color.Color
	switch {
	case score >= 80:
		barColor = color.New(color.FgGreen)
	case score >= 60:
		barColor = color.New(color.FgYellow)
	default:
		barColor = color.New(color.FgRed)
	}

	bar := strings.Repeat("█", filled) + strings.Repeat("░", barWidth-filled)

	fmt.Fprintf(w, "  Score: %d/100 ", score)
	_, _ = barColor.Fprintln(w, bar)
}

func printSearch(stderr, stdout io.Writer, r *models.SearchResult) {
	if !r.OK() {
		printFailure(stderr, "Search", r.Error)
		return
	}
	printBackend(stderr, r.Backend)
	if len(r.Results) == 0 {
		fmt.Fprintln(stdout, "No matching tests found.")
		return
	}

	bold := color.New(color.Bold)
	dim := color.New(color.FgHiBlack)
	for i, e := range r.Results {
		if i > 0 {
			fmt.Fprintln(stdout)
		}
		_, _ = bold.Fprintf(stdout, "%.2f  %s\n", e.RelevanceScore, e.SourcePath)
		for _, line := range strings.Split(strings.TrimSpace(e.SnippetPreview), "\n") {
			_, _ = dim.Fprintf(stdout, "      %s\n", line)
		}
	}
}

func printSaved(stderr, stdout io.Writer, r *models.SaveOutcome) {
	if !r.OK() {
		printFailure(stderr, "Save", r.Error)
		return
	}
	green := color.New(color.FgGreen, color.Bold)
	_, _ = green.Fprint(stderr, "✓ Saved ")
	fmt.Fprintln(stdout, r.FilePath)
	printBackend(stderr, r.Backend)
}

func printStatus(w io.Writer, s models.ServiceStatus) {
	bold := color.New(color.Bold)
	_, _ = bold.Fprintf(w, "Mode: %s\n", s.CurrentMode)
	fmt.Fprintf(w, "  AI service:    %s\n", healthLabel(s.RealBackendHealthy))
	fmt.Fprintf(w, "  Simulator:     %s\n", healthLabel(s.SimulatorHealthy))
	fmt.Fprintf(w, "  Auto fallback: %s\n", onOff(s.AutoFallbackEnabled))
}

func healthLabel(healthy bool) string {
	if healthy {
		return color.GreenString("healthy")
	}
	return color.RedString("unhealthy")
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

func printHistory(w io.Writer, tests []database.SavedTest, total int) {
	if len(tests) == 0 {
		fmt.Fprintln(w, "No saved tests recorded.")
		return
	}
	dim := color.New(color.FgHiBlack)
	for _, t := range tests {
		fmt.Fprintf(w, "%s  %-40s %s\n", t.SavedAt.Local().Format("2006-01-02 15:04"), t.FilePath, t.Backend)
		_, _ = dim.Fprintf(w, "                  %s  %d bytes  %s\n", t.TestName, t.Bytes, t.SHA256[:min(12, len(t.SHA256))])
	}
	if total > len(tests) {
		_, _ = dim.Fprintf(w, "\nShowing %d of %d saved tests.\n", len(tests), total)
	}
}
