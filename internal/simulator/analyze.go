package simulator

import (
	"fmt"
	"regexp"

	"github.com/kamilpajak/testpilot/pkg/models"
)

const (
	missingMarkerPenalty = 10
	riskyPatternPenalty  = 5

	// noAssertionCeiling keeps a test that asserts nothing out of the top grade.
	noAssertionCeiling = 75
)

var (
	testDeclPattern    = regexp.MustCompile(`\b(test|it)(\.(only|skip|describe|fixme))?\s*\(`)
	navigationPattern  = regexp.MustCompile(`\.goto\s*\(`)
	assertionPattern   = regexp.MustCompile(`\bexpect\s*\(|\bassert\w*\s*\(`)
	interactionPattern = regexp.MustCompile(`\.(click|dblclick|fill|type|press|check|uncheck|selectOption|hover|setInputFiles)\s*\(`)
)

// Review scores test source starting from 100: each missing expected marker
// costs 10 points and each interaction without a later assertion costs 5.
func Review(code string) models.Analysis {
	score := 100
	suggestions := []string{}
	improvements := []string{}

	if !testDeclPattern.MatchString(code) {
		suggestions = append(suggestions, "Declare the scenario with test() so the runner can discover it")
		score -= missingMarkerPenalty
	}
	if !navigationPattern.MatchString(code) {
		suggestions = append(suggestions, "Navigate to the page under test with page.goto() before interacting with it")
		score -= missingMarkerPenalty
	}
	hasAssertion := assertionPattern.MatchString(code)
	if !hasAssertion {
		suggestions = append(suggestions, "Add expect() assertions that verify the expected behavior")
		score -= missingMarkerPenalty
	}

	for _, loc := range interactionPattern.FindAllStringSubmatchIndex(code, -1) {
		if assertionPattern.MatchString(code[loc[1]:]) {
			continue
		}
		action := code[loc[2]:loc[3]]
		improvements = append(improvements, fmt.Sprintf("Add an assertion after the %s() interaction to verify its effect", action))
		score -= riskyPatternPenalty
	}

	if !hasAssertion {
		score = min(score, noAssertionCeiling)
	}
	score = max(score, 0)

	quality, coverage := Grade(score)
	return models.Analysis{
		Quality:      quality,
		Coverage:     coverage,
		Suggestions:  suggestions,
		Improvements: improvements,
		Score:        score,
	}
}

// Grade maps a review score to quality and coverage bands.
func Grade(score int) (models.Quality, models.Coverage) {
	switch {
	case score >= 80:
		return models.QualityExcellent, models.CoverageHigh
	case score >= 60:
		return models.QualityGood, models.CoverageMedium
	default:
		return models.QualityNeedsImprovement, models.CoverageLow
	}
}
