// Package testcode holds structural checks and naming rules for generated
// Playwright test source.
package testcode

import (
	"strings"
	"unicode"

	"github.com/kamilpajak/testpilot/pkg/models"
)

// Validate runs the structural checks applied to every generated test.
// Issues make the code invalid; warnings do not.
func Validate(code string) models.Validation {
	v := models.Validation{Valid: true, Issues: []string{}, Warnings: []string{}}

	if !strings.Contains(code, "import") && !strings.Contains(code, "require") {
		v.Warnings = append(v.Warnings, "No imports found - may need Playwright imports")
	}

	if !strings.Contains(code, "test(") && !strings.Contains(code, "it(") {
		v.Issues = append(v.Issues, "No test function found")
		v.Valid = false
	}

	if !strings.Contains(code, "expect(") && !strings.Contains(code, "assert(") {
		v.Warnings = append(v.Warnings, "No assertions found")
	}

	if !strings.Contains(code, "page.") {
		v.Warnings = append(v.Warnings, "No page interactions found")
	}

	stripped := stripLiterals(code)
	if strings.Count(stripped, "{") != strings.Count(stripped, "}") {
		v.Issues = append(v.Issues, "Mismatched braces")
		v.Valid = false
	}

	if strings.Count(stripped, "(") != strings.Count(stripped, ")") {
		v.Issues = append(v.Issues, "Mismatched parentheses")
		v.Valid = false
	}

	return v
}

// stripLiterals blanks out string literals and comments so delimiters inside
// them are not counted. Template literal interpolations are dropped with the
// rest of the literal.
func stripLiterals(code string) string {
	var b strings.Builder
	b.Grow(len(code))
	for i := 0; i < len(code); i++ {
		c := code[i]
		switch {
		case c == '/' && i+1 < len(code) && code[i+1] == '/':
			for i < len(code) && code[i] != '\n' {
				i++
			}
			b.WriteByte('\n')
		case c == '/' && i+1 < len(code) && code[i+1] == '*':
			end := strings.Index(code[i+2:], "*/")
			if end < 0 {
				return b.String()
			}
			i += end + 3
		case c == '\'' || c == '"' || c == '`':
			i++
			for i < len(code) && code[i] != c {
				if code[i] == '\\' {
					i++
				}
				i++
			}
			b.WriteString("\"\"")
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// FileSuffix is appended to every saved test file name.
const FileSuffix = ".spec.ts"

// FileName derives a saved test's file name from its human-readable name:
// only letters, digits, spaces, dashes and underscores survive, spaces become
// dashes and the result is lower-cased.
func FileName(testName string) string {
	var b strings.Builder
	for _, r := range testName {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == ' ' || r == '-' || r == '_' {
			b.WriteRune(r)
		}
	}

	slug := strings.TrimRight(b.String(), " ")
	slug = strings.ToLower(strings.ReplaceAll(slug, " ", "-"))
	if slug == "" {
		slug = "generated-test"
	}
	return slug + FileSuffix
}
