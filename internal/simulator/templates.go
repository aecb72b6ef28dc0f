package simulator

import (
	"strings"

	"github.com/kamilpajak/testpilot/pkg/models"
)

const authenticationTemplate = `import { test, expect } from '@playwright/test';

test.describe('Authentication', () => {
  test('{{TITLE}}', async ({ page }) => {
    await page.goto('/login');
    await page.fill('[data-testid="email"]', 'user@example.com');
    await page.fill('[data-testid="password"]', 'CorrectHorse42!');
    await page.click('[data-testid="login-button"]');

    await expect(page).toHaveURL(/dashboard/);
    await expect(page.locator('[data-testid="user-menu"]')).toBeVisible();
  });

  test('rejects invalid credentials', async ({ page }) => {
    await page.goto('/login');
    await page.fill('[data-testid="email"]', 'user@example.com');
    await page.fill('[data-testid="password"]', 'wrong-password');
    await page.click('[data-testid="login-button"]');

    await expect(page.locator('[data-testid="login-error"]')).toBeVisible();
    await expect(page).toHaveURL(/login/);
  });
});
`

const navigationTemplate = `import { test, expect } from '@playwright/test';

test.describe('Navigation', () => {
  test('{{TITLE}}', async ({ page }) => {
    await page.goto('/');
    await expect(page.locator('nav')).toBeVisible();

    const links = page.locator('nav a');
    const count = await links.count();
    expect(count).toBeGreaterThan(0);

    await links.first().click();
    await expect(page).not.toHaveURL(/\/$/);
  });

  test('menu toggles on small screens', async ({ page }) => {
    await page.setViewportSize({ width: 375, height: 812 });
    await page.goto('/');
    await page.click('[data-testid="menu-toggle"]');

    await expect(page.locator('[data-testid="mobile-menu"]')).toBeVisible();
  });
});
`

const formSubmissionTemplate = `import { test, expect } from '@playwright/test';

test.describe('Form submission', () => {
  test('{{TITLE}}', async ({ page }) => {
    await page.goto('/contact');
    await page.fill('[name="name"]', 'Jane Tester');
    await page.fill('[name="email"]', 'jane@example.com');
    await page.fill('[name="message"]', 'Hello from an automated test');
    await page.click('button[type="submit"]');

    await expect(page.locator('[data-testid="form-success"]')).toBeVisible();
  });

  test('shows validation errors for empty fields', async ({ page }) => {
    await page.goto('/contact');
    await page.click('button[type="submit"]');

    await expect(page.locator('[data-testid="field-error"]').first()).toBeVisible();
  });
});
`

const commerceTemplate = `import { test, expect } from '@playwright/test';

test.describe('Shopping cart', () => {
  test('{{TITLE}}', async ({ page }) => {
    await page.goto('/shop');
    await page.click('[data-testid="product-card"] >> nth=0');
    await page.click('[data-testid="add-to-cart"]');

    await expect(page.locator('[data-testid="cart-count"]')).toHaveText('1');

    await page.click('[data-testid="cart-link"]');
    await expect(page).toHaveURL(/cart/);
    await expect(page.locator('[data-testid="cart-item"]')).toHaveCount(1);
  });

  test('removes an item from the cart', async ({ page }) => {
    await page.goto('/cart');
    await page.click('[data-testid="remove-item"] >> nth=0');

    await expect(page.locator('[data-testid="empty-cart"]')).toBeVisible();
  });
});
`

const genericTemplate = `import { test, expect } from '@playwright/test';

// Context:
{{CONTEXT}}

test.describe('Generated scenario', () => {
  test('{{TITLE}}', async ({ page }) => {
    await page.goto('/');
    await expect(page).toHaveTitle(/.+/);
    await expect(page.locator('body')).toBeVisible();
  });
});
`

var templates = map[Category]string{
	CategoryAuthentication: authenticationTemplate,
	CategoryNavigation:     navigationTemplate,
	CategoryFormSubmission: formSubmissionTemplate,
	CategoryCommerce:       commerceTemplate,
	CategoryGeneric:        genericTemplate,
}

var templateSummaries = map[Category]string{
	CategoryAuthentication: "Login flow with valid and invalid credentials",
	CategoryNavigation:     "Primary navigation and responsive menu",
	CategoryFormSubmission: "Contact form submission and field validation",
	CategoryCommerce:       "Add to cart and cart management",
	CategoryGeneric:        "Page load smoke check",
}

// Synthesize renders the template for category. The output depends only on
// its arguments.
func Synthesize(category Category, requirements, context string) string {
	tmpl, ok := templates[category]
	if !ok {
		tmpl = genericTemplate
	}
	r := strings.NewReplacer(
		"{{TITLE}}", escapeTitle(requirements),
		"{{CONTEXT}}", commentLines(context),
	)
	return r.Replace(tmpl)
}

func templateContext(category Category) []models.ContextSnippet {
	return []models.ContextSnippet{{
		SourcePath: "simulator/templates/" + string(category) + ".spec.ts",
		Snippet:    templateSummaries[category],
	}}
}

// escapeTitle makes requirements safe inside a single-quoted TS string.
func escapeTitle(s string) string {
	s = strings.TrimSpace(s)
	r := strings.NewReplacer(`\`, `\\`, `'`, `\'`, "\r\n", " ", "\n", " ", "\r", " ")
	return r.Replace(s)
}

// commentLines renders context as TS line comments, one per input line.
func commentLines(context string) string {
	if strings.TrimSpace(context) == "" {
		return "// (none provided)"
	}
	lines := strings.Split(strings.TrimRight(context, "\n"), "\n")
	for i, l := range lines {
		lines[i] = "// " + l
	}
	return strings.Join(lines, "\n")
}
