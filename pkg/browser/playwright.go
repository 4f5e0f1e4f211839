package browser

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"
)

// PlaywrightDriver implements Driver on top of the Playwright runtime.
type PlaywrightDriver struct {
	mu          sync.Mutex
	pw          *playwright.Playwright
	initialized bool
}

// NewPlaywrightDriver creates an unstarted driver. Start must be called
// before launching browsers.
func NewPlaywrightDriver() *PlaywrightDriver {
	return &PlaywrightDriver{}
}

// Start installs (if needed) and runs the Playwright runtime.
func (d *PlaywrightDriver) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.initialized {
		return nil
	}

	// Discard driver output so it does not interleave with service logs
	opts := &playwright.RunOptions{
		Verbose: false,
		Stdout:  io.Discard,
		Stderr:  io.Discard,
	}

	if err := playwright.Install(opts); err != nil {
		return fmt.Errorf("failed to install playwright: %w", err)
	}

	pw, err := playwright.Run(opts)
	if err != nil {
		return fmt.Errorf("failed to start playwright: %w", err)
	}

	d.pw = pw
	d.initialized = true
	return nil
}

// Launch starts a new Chromium process.
func (d *PlaywrightDriver) Launch(opts LaunchOptions) (Browser, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.initialized {
		return nil, fmt.Errorf("playwright driver not started")
	}

	b, err := d.pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	return &playwrightBrowser{browser: b}, nil
}

// Stop shuts down the Playwright runtime.
func (d *PlaywrightDriver) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.initialized || d.pw == nil {
		return nil
	}
	if err := d.pw.Stop(); err != nil {
		return fmt.Errorf("failed to stop playwright: %w", err)
	}
	d.initialized = false
	return nil
}

type playwrightBrowser struct {
	browser playwright.Browser
}

func (b *playwrightBrowser) NewContext(sessionState []byte) (Context, error) {
	opts := playwright.BrowserNewContextOptions{}

	if len(sessionState) > 0 {
		// Playwright seeds storage state from a file; stage the opaque
		// blob through a temp file without inspecting it.
		tmp, err := os.CreateTemp("", "ridewire-state-*.json")
		if err != nil {
			return nil, fmt.Errorf("failed to stage session state: %w", err)
		}
		defer os.Remove(tmp.Name())

		if _, err := tmp.Write(sessionState); err != nil {
			tmp.Close()
			return nil, fmt.Errorf("failed to stage session state: %w", err)
		}
		if err := tmp.Close(); err != nil {
			return nil, fmt.Errorf("failed to stage session state: %w", err)
		}
		opts.StorageStatePath = playwright.String(tmp.Name())
	}

	ctx, err := b.browser.NewContext(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create context: %w", err)
	}
	return &playwrightContext{ctx: ctx}, nil
}

func (b *playwrightBrowser) Close() error {
	return b.browser.Close()
}

type playwrightContext struct {
	ctx playwright.BrowserContext
}

func (c *playwrightContext) NewPage() (Page, error) {
	page, err := c.ctx.NewPage()
	if err != nil {
		return nil, fmt.Errorf("failed to create page: %w", err)
	}
	return &playwrightPage{page: page}, nil
}

func (c *playwrightContext) ExportState() ([]byte, error) {
	state, err := c.ctx.StorageState()
	if err != nil {
		return nil, fmt.Errorf("failed to export storage state: %w", err)
	}
	data, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("failed to encode storage state: %w", err)
	}
	return data, nil
}

func (c *playwrightContext) Close() error {
	return c.ctx.Close()
}

type playwrightPage struct {
	page playwright.Page
}

func timeoutMillis(d time.Duration) *float64 {
	if d <= 0 {
		return nil
	}
	return playwright.Float(float64(d) / float64(time.Millisecond))
}

func (p *playwrightPage) Navigate(url string, opts NavigateOptions) error {
	gotoOpts := playwright.PageGotoOptions{Timeout: timeoutMillis(opts.Timeout)}
	if opts.WaitUntil != "" {
		waitUntil := playwright.WaitUntilState(opts.WaitUntil)
		gotoOpts.WaitUntil = &waitUntil
	}

	if _, err := p.page.Goto(url, gotoOpts); err != nil {
		return fmt.Errorf("navigation failed: %w", err)
	}
	return nil
}

func (p *playwrightPage) Reload(opts NavigateOptions) error {
	reloadOpts := playwright.PageReloadOptions{Timeout: timeoutMillis(opts.Timeout)}
	if opts.WaitUntil != "" {
		waitUntil := playwright.WaitUntilState(opts.WaitUntil)
		reloadOpts.WaitUntil = &waitUntil
	}

	if _, err := p.page.Reload(reloadOpts); err != nil {
		return fmt.Errorf("reload failed: %w", err)
	}
	return nil
}

func (p *playwrightPage) URL() string {
	return p.page.URL()
}

func (p *playwrightPage) Query(selector string) (Element, error) {
	handle, err := p.page.QuerySelector(selector)
	if err != nil {
		return nil, fmt.Errorf("selector query failed: %w", err)
	}
	if handle == nil {
		return nil, nil
	}
	return &playwrightElement{handle: handle}, nil
}

func (p *playwrightPage) QueryAll(selector string) ([]Element, error) {
	handles, err := p.page.QuerySelectorAll(selector)
	if err != nil {
		return nil, fmt.Errorf("selector query failed: %w", err)
	}

	elements := make([]Element, 0, len(handles))
	for _, h := range handles {
		elements = append(elements, &playwrightElement{handle: h})
	}
	return elements, nil
}

func (p *playwrightPage) WaitFor(selector string, timeout time.Duration) (Element, error) {
	handle, err := p.page.WaitForSelector(selector, playwright.PageWaitForSelectorOptions{
		Timeout: timeoutMillis(timeout),
	})
	if err != nil {
		return nil, fmt.Errorf("wait failed: %w", err)
	}
	if handle == nil {
		return nil, nil
	}
	return &playwrightElement{handle: handle}, nil
}

func (p *playwrightPage) WaitForLoad(state string, timeout time.Duration) error {
	opts := playwright.PageWaitForLoadStateOptions{Timeout: timeoutMillis(timeout)}
	if state != "" {
		loadState := playwright.LoadState(state)
		opts.State = &loadState
	}

	if err := p.page.WaitForLoadState(opts); err != nil {
		return fmt.Errorf("wait for load state failed: %w", err)
	}
	return nil
}

func (p *playwrightPage) TextContent(selector string) (string, error) {
	text, err := p.page.TextContent(selector)
	if err != nil {
		return "", fmt.Errorf("text extraction failed: %w", err)
	}
	return text, nil
}

func (p *playwrightPage) InnerHTML(selector string) (string, error) {
	html, err := p.page.InnerHTML(selector)
	if err != nil {
		return "", fmt.Errorf("html extraction failed: %w", err)
	}
	return html, nil
}

func (p *playwrightPage) Screenshot(path string) error {
	_, err := p.page.Screenshot(playwright.PageScreenshotOptions{
		Path: playwright.String(path),
	})
	if err != nil {
		return fmt.Errorf("screenshot failed: %w", err)
	}
	return nil
}

func (p *playwrightPage) IsClosed() bool {
	return p.page.IsClosed()
}

func (p *playwrightPage) Close() error {
	return p.page.Close()
}

type playwrightElement struct {
	handle playwright.ElementHandle
}

func (e *playwrightElement) IsVisible() (bool, error) {
	return e.handle.IsVisible()
}

func (e *playwrightElement) Click() error {
	// Dispatch the click in-page; overlays intercept pointer-based clicks
	// on the target site.
	if _, err := e.handle.Evaluate("el => el.click()"); err != nil {
		if clickErr := e.handle.Click(); clickErr != nil {
			return fmt.Errorf("click failed: %w", clickErr)
		}
	}
	return nil
}

func (e *playwrightElement) Fill(value string) error {
	if err := e.handle.Fill(value); err != nil {
		return fmt.Errorf("fill failed: %w", err)
	}
	return nil
}

func (e *playwrightElement) TextContent() (string, error) {
	return e.handle.TextContent()
}
