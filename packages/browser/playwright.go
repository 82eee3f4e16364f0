package browser

import (
	"context"
	"fmt"
	"sync"

	"github.com/playwright-community/playwright-go"

	"github.com/mohammed-a-khan/ptf/packages/core/results"
)

// PlaywrightBackend implements Backend on playwright-go. One instance owns at
// most one driver, one browser and one context at a time; the runner decides
// when contexts are recycled.
type PlaywrightBackend struct {
	opts  Options
	namer *Namer

	mu        sync.Mutex
	pw        *playwright.Playwright
	browser   playwright.Browser
	bctx      playwright.BrowserContext
	page      playwright.Page
	harPath   string
	artifacts results.Artifacts
}

// NewPlaywright returns an unlaunched backend.
func NewPlaywright(opts Options) *PlaywrightBackend {
	return &PlaywrightBackend{
		opts:  opts,
		namer: NewNamer(opts.ResultsDir, opts.WorkerID),
	}
}

// Launch starts the driver and browser. Safe to call more than once.
func (b *PlaywrightBackend) Launch(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.browser != nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	pw, err := playwright.Run()
	if err != nil {
		return fmt.Errorf("starting playwright driver: %w", err)
	}
	b.pw = pw

	var bt playwright.BrowserType
	switch b.opts.Browser {
	case "firefox":
		bt = pw.Firefox
	case "webkit":
		bt = pw.WebKit
	default:
		bt = pw.Chromium
	}

	browser, err := bt.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(b.opts.Headless),
	})
	if err != nil {
		_ = pw.Stop()
		b.pw = nil
		return fmt.Errorf("launching %s: %w", b.opts.Browser, err)
	}
	b.browser = browser
	return nil
}

func (b *PlaywrightBackend) ensureContext() error {
	if b.browser == nil {
		return fmt.Errorf("browser not launched")
	}
	if b.bctx != nil {
		return nil
	}

	opts := playwright.BrowserNewContextOptions{}
	if b.opts.BaseURL != "" {
		opts.BaseURL = playwright.String(b.opts.BaseURL)
	}
	if b.opts.RecordVideo {
		opts.RecordVideo = &playwright.RecordVideo{Dir: b.opts.ResultsDir}
	}
	if b.opts.RecordHAR {
		b.harPath = b.namer.Name("session", ".har")
		opts.RecordHarPath = playwright.String(b.harPath)
	}

	bctx, err := b.browser.NewContext(opts)
	if err != nil {
		return fmt.Errorf("creating browser context: %w", err)
	}
	b.bctx = bctx
	b.artifacts = results.Artifacts{}

	if b.opts.RecordTrace {
		err = bctx.Tracing().Start(playwright.TracingStartOptions{
			Screenshots: playwright.Bool(true),
			Snapshots:   playwright.Bool(true),
		})
		if err != nil {
			return fmt.Errorf("starting trace: %w", err)
		}
	}
	return nil
}

// GetPage returns the active page, creating context and page on first use.
func (b *PlaywrightBackend) GetPage() (Page, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.ensureContext(); err != nil {
		return nil, err
	}
	if b.page == nil {
		page, err := b.bctx.NewPage()
		if err != nil {
			return nil, fmt.Errorf("creating page: %w", err)
		}
		b.page = page
	}
	return &pwPage{page: b.page}, nil
}

// GetContext returns the state-clearing view of the active context.
func (b *PlaywrightBackend) GetContext() (Context, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.ensureContext(); err != nil {
		return nil, err
	}
	return &pwContext{bctx: b.bctx}, nil
}

// Screenshot captures the current page into the results directory.
func (b *PlaywrightBackend) Screenshot(testName string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.page == nil {
		return "", fmt.Errorf("no active page")
	}
	path := b.namer.Name(testName, ".png")
	_, err := b.page.Screenshot(playwright.PageScreenshotOptions{
		Path:     playwright.String(path),
		FullPage: playwright.Bool(true),
	})
	if err != nil {
		return "", fmt.Errorf("capturing screenshot: %w", err)
	}
	b.artifacts.Screenshots = append(b.artifacts.Screenshots, path)
	return path, nil
}

// SessionArtifacts returns what the current context accumulated so far.
func (b *PlaywrightBackend) SessionArtifacts() results.Artifacts {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.artifacts
}

// ClearState resets cookies, permissions and web storage but keeps the
// context alive. Used between tests when session reuse is enabled.
func (b *PlaywrightBackend) ClearState() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.bctx == nil {
		return nil
	}
	if err := b.bctx.ClearCookies(); err != nil {
		return fmt.Errorf("clearing cookies: %w", err)
	}
	if err := b.bctx.ClearPermissions(); err != nil {
		return fmt.Errorf("clearing permissions: %w", err)
	}
	if b.page != nil {
		// Storage is origin-scoped; best effort on the current origin.
		_, _ = b.page.Evaluate("() => { try { localStorage.clear(); sessionStorage.clear(); } catch (e) {} }")
	}
	return nil
}

// CloseContext tears down the active context and returns its artifacts.
func (b *PlaywrightBackend) CloseContext(failed bool) (results.Artifacts, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closeContextLocked(failed)
}

func (b *PlaywrightBackend) closeContextLocked(failed bool) (results.Artifacts, error) {
	arts := b.artifacts
	if b.bctx == nil {
		return arts, nil
	}

	if b.opts.RecordTrace {
		if failed {
			tracePath := b.namer.Name("trace", ".zip")
			if err := b.bctx.Tracing().Stop(tracePath); err == nil {
				arts.Trace = tracePath
			}
		} else {
			_ = b.bctx.Tracing().Stop()
		}
	}

	var video playwright.Video
	if b.page != nil && b.opts.RecordVideo {
		video = b.page.Video()
	}

	err := b.bctx.Close()
	b.bctx = nil
	b.page = nil

	if video != nil {
		if path, verr := video.Path(); verr == nil {
			arts.Video = path
		}
	}
	if b.opts.RecordHAR {
		arts.HAR = b.harPath
	}

	b.artifacts = results.Artifacts{}
	if err != nil {
		return arts, fmt.Errorf("closing context: %w", err)
	}
	return arts, nil
}

// Close shuts down the browser, keeping the driver for a relaunch.
func (b *PlaywrightBackend) Close(failed bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, err := b.closeContextLocked(failed); err != nil {
		return err
	}
	if b.browser != nil {
		if err := b.browser.Close(); err != nil {
			return fmt.Errorf("closing browser: %w", err)
		}
		b.browser = nil
	}
	return nil
}

// CloseAll tears everything down including the driver process.
func (b *PlaywrightBackend) CloseAll(failed bool) error {
	if err := b.Close(failed); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pw != nil {
		if err := b.pw.Stop(); err != nil {
			return fmt.Errorf("stopping playwright driver: %w", err)
		}
		b.pw = nil
	}
	return nil
}

type pwPage struct {
	page playwright.Page
}

func (p *pwPage) Goto(url string) error {
	_, err := p.page.Goto(url)
	return err
}

func (p *pwPage) Click(selector string) error {
	return p.page.Click(selector)
}

func (p *pwPage) Fill(selector, value string) error {
	return p.page.Fill(selector, value)
}

func (p *pwPage) Text(selector string) (string, error) {
	return p.page.TextContent(selector)
}

func (p *pwPage) Title() (string, error) {
	return p.page.Title()
}

func (p *pwPage) URL() string {
	return p.page.URL()
}

func (p *pwPage) WaitFor(selector string) error {
	_, err := p.page.WaitForSelector(selector)
	return err
}

func (p *pwPage) Evaluate(expression string) (any, error) {
	return p.page.Evaluate(expression)
}

type pwContext struct {
	bctx playwright.BrowserContext
}

func (c *pwContext) ClearCookies() error {
	return c.bctx.ClearCookies()
}

func (c *pwContext) ClearPermissions() error {
	return c.bctx.ClearPermissions()
}
