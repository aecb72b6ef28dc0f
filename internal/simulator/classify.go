package simulator

import "strings"

// Category is the template family a requirement is classified into.
type Category string

const (
	CategoryAuthentication Category = "authentication"
	CategoryNavigation     Category = "navigation"
	CategoryFormSubmission Category = "form_submission"
	CategoryCommerce       Category = "commerce"
	CategoryGeneric        Category = "generic"
)

// classificationRules is checked in order; the first rule with a matching
// keyword wins.
var classificationRules = []struct {
	category Category
	keywords []string
}{
	{CategoryAuthentication, []string{"login", "auth"}},
	{CategoryNavigation, []string{"nav", "menu"}},
	{CategoryFormSubmission, []string{"form", "submit"}},
	{CategoryCommerce, []string{"shop", "cart", "store"}},
}

// Classify maps free-text requirements to a template category by
// case-insensitive substring match.
func Classify(requirements string) Category {
	text := strings.ToLower(requirements)
	for _, rule := range classificationRules {
		for _, kw := range rule.keywords {
			if strings.Contains(text, kw) {
				return rule.category
			}
		}
	}
	return CategoryGeneric
}
