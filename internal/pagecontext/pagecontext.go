// Package pagecontext captures live pages in a headless browser so test
// generation can see the page it is writing a test for.
package pagecontext

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"
)

const (
	DefaultTimeout  = 30 * time.Second
	DefaultMaxChars = 20000

	// maxElements caps how many test-id elements are listed per snapshot.
	maxElements = 50
)

// Browser snapshots pages with a fresh headless Chromium per call.
type Browser struct {
	timeout  time.Duration
	maxChars int
	logger   *zap.Logger
}

// Option configures a Browser.
type Option func(*Browser)

// WithTimeout bounds one snapshot, navigation included.
func WithTimeout(d time.Duration) Option {
	return func(b *Browser) {
		if d > 0 {
			b.timeout = d
		}
	}
}

// WithMaxChars truncates the captured page text.
func WithMaxChars(n int) Option {
	return func(b *Browser) {
		if n > 0 {
			b.maxChars = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(b *Browser) { b.logger = l.Named("pagecontext") }
}

// New creates a Browser.
func New(opts ...Option) *Browser {
	b := &Browser{timeout: DefaultTimeout, maxChars: DefaultMaxChars, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

type snapshotResult struct {
	text string
	err  error
}

// Snapshot opens url and returns its visible text followed by the elements
// that carry a data-testid. The browser is torn down when ctx ends.
func (b *Browser) Snapshot(ctx context.Context, url string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	done := make(chan snapshotResult, 1)
	go func() {
		text, err := b.capture(url)
		done <- snapshotResult{text: text, err: err}
	}()

	select {
	case <-ctx.Done():
		return "", fmt.Errorf("snapshot of %s: %w", url, ctx.Err())
	case res := <-done:
		if res.err != nil {
			return "", res.err
		}
		b.logger.Debug("Captured page", zap.String("url", url), zap.Int("chars", len(res.text)))
		return res.text, nil
	}
}

func (b *Browser) capture(url string) (string, error) {
	pw, err := playwright.Run()
	if err != nil {
		return "", fmt.Errorf("could not start playwright: %w", err)
	}
	defer pw.Stop()

	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(true),
	})
	if err != nil {
		return "", fmt.Errorf("could not launch browser: %w", err)
	}
	defer browser.Close()

	page, err := browser.NewPage()
	if err != nil {
		return "", fmt.Errorf("could not create page: %w", err)
	}

	if _, err = page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateNetworkidle,
		Timeout:   playwright.Float(float64(b.timeout.Milliseconds())),
	}); err != nil {
		return "", fmt.Errorf("could not navigate: %w", err)
	}

	content, err := page.Locator("body").InnerText()
	if err != nil {
		return "", fmt.Errorf("could not get page content: %w", err)
	}

	var elements []Element
	entries, _ := page.Locator("[data-testid]").All()
	for i, entry := range entries {
		if i >= maxElements {
			break
		}
		id, err := entry.GetAttribute("data-testid")
		if err != nil || id == "" {
			continue
		}
		tag, _ := entry.Evaluate("el => el.tagName.toLowerCase()", nil)
		tagName, _ := tag.(string)
		elements = append(elements, Element{TestID: id, Tag: tagName})
	}

	return Format(content, elements, b.maxChars), nil
}

// Element is a page element addressable by data-testid.
type Element struct {
	TestID string
	Tag    string
}

// Format renders captured text and elements as prompt context. Text is cut
// to maxChars after blank lines are dropped; elements are sorted by test id.
func Format(text string, elements []Element, maxChars int) string {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			lines = append(lines, line)
		}
	}
	body := strings.Join(lines, "\n")
	if maxChars > 0 && len(body) > maxChars {
		cut := maxChars
		for cut > 0 && !utf8.RuneStart(body[cut]) {
			cut--
		}
		body = body[:cut]
	}

	if len(elements) == 0 {
		return body
	}

	sorted := append([]Element(nil), elements...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].TestID < sorted[j].TestID })

	var sb strings.Builder
	sb.WriteString(body)
	sb.WriteString("\n\nElements:\n")
	for _, el := range sorted {
		if el.Tag != "" {
			fmt.Fprintf(&sb, "- %s [data-testid=%q]\n", el.Tag, el.TestID)
		} else {
			fmt.Fprintf(&sb, "- [data-testid=%q]\n", el.TestID)
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

// SnapshotFile snapshots a page saved on disk. Its directory is served over
// loopback HTTP for the duration of the call.
func (b *Browser) SnapshotFile(ctx context.Context, path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", path, err)
	}
	if _, err := os.Stat(abs); err != nil {
		return "", fmt.Errorf("failed to open page: %w", err)
	}

	srv, err := servePageDir(filepath.Dir(abs))
	if err != nil {
		return "", err
	}
	defer srv.stop()

	return b.Snapshot(ctx, srv.url(filepath.Base(abs)))
}

// Install downloads the playwright driver and Chromium.
func Install() error {
	return playwright.Install(&playwright.RunOptions{Browsers: []string{"chromium"}})
}

// IsAvailable checks if playwright browsers are installed.
func IsAvailable() bool {
	pw, err := playwright.Run()
	if err != nil {
		return false
	}
	_ = pw.Stop()
	return true
}
