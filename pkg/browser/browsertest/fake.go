// Package browsertest provides a scripted in-memory implementation of the
// browser driver boundary for tests. Pages are configured with the elements
// and content a scenario needs; no real browser is involved.
package browsertest

import (
	"fmt"
	"sync"
	"time"

	"github.com/omilabs/ridewire/pkg/browser"
)

// Driver is a scripted browser.Driver. Pages queued with NewDriver or Queue
// are handed out by successive NewPage calls; once the queue is empty, fresh
// empty pages are returned.
type Driver struct {
	mu       sync.Mutex
	queue    []*Page
	browsers []*Browser
	launches int
	stopped  bool

	// LaunchErr, when set, is returned by every Launch call.
	LaunchErr error

	// StateExport is returned by every context's ExportState. Defaults to
	// a minimal storage-state document.
	StateExport []byte
}

// NewDriver creates a driver that will serve the given pages in order.
func NewDriver(pages ...*Page) *Driver {
	return &Driver{queue: pages}
}

// Queue appends pages to the hand-out queue.
func (d *Driver) Queue(pages ...*Page) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.queue = append(d.queue, pages...)
}

// Launch implements browser.Driver.
func (d *Driver) Launch(opts browser.LaunchOptions) (browser.Browser, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.LaunchErr != nil {
		return nil, d.LaunchErr
	}
	if d.stopped {
		return nil, fmt.Errorf("driver stopped")
	}

	d.launches++
	b := &Browser{driver: d, Headless: opts.Headless}
	d.browsers = append(d.browsers, b)
	return b, nil
}

// Stop implements browser.Driver.
func (d *Driver) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	return nil
}

// Launches returns the number of Launch calls that succeeded.
func (d *Driver) Launches() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.launches
}

// Stopped reports whether Stop has been called.
func (d *Driver) Stopped() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stopped
}

// Browsers returns every browser this driver has launched.
func (d *Driver) Browsers() []*Browser {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*Browser, len(d.browsers))
	copy(out, d.browsers)
	return out
}

func (d *Driver) nextPage() *Page {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.queue) > 0 {
		p := d.queue[0]
		d.queue = d.queue[1:]
		return p
	}
	return NewPage()
}

func (d *Driver) stateExport() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.StateExport != nil {
		return d.StateExport
	}
	return []byte(`{"cookies":[],"origins":[]}`)
}

// Browser is a fake browser process.
type Browser struct {
	driver   *Driver
	Headless bool

	mu       sync.Mutex
	contexts []*Context
	closed   bool
}

// NewContext implements browser.Browser.
func (b *Browser) NewContext(sessionState []byte) (browser.Context, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ctx := &Context{driver: b.driver, seeded: sessionState}
	b.contexts = append(b.contexts, ctx)
	return ctx, nil
}

// Close implements browser.Browser. Idempotent.
func (b *Browser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

// Closed reports whether the browser has been closed.
func (b *Browser) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// Contexts returns every context created on this browser.
func (b *Browser) Contexts() []*Context {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*Context, len(b.contexts))
	copy(out, b.contexts)
	return out
}

// Context is a fake browser context.
type Context struct {
	driver *Driver

	mu     sync.Mutex
	seeded []byte
	pages  []*Page
	closed bool
}

// NewPage implements browser.Context, handing out the next scripted page.
func (c *Context) NewPage() (browser.Page, error) {
	page := c.driver.nextPage()

	c.mu.Lock()
	c.pages = append(c.pages, page)
	c.mu.Unlock()

	return page, nil
}

// ExportState implements browser.Context.
func (c *Context) ExportState() ([]byte, error) {
	return c.driver.stateExport(), nil
}

// Close implements browser.Context. Idempotent.
func (c *Context) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// Closed reports whether the context has been closed.
func (c *Context) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Seeded returns the session state blob the context was created with.
func (c *Context) Seeded() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seeded
}

// Page is a scripted fake page. All mutators are safe to call from a test
// goroutine while the code under test polls the page.
type Page struct {
	mu          sync.Mutex
	url         string
	navigations []string
	reloads     int
	navigateErr error
	reloadErr   error
	elements    map[string][]*Element
	texts       map[string]string
	htmls       map[string]string
	screenshots []string
	closed      bool
	onNavigate  func(p *Page, url string)
}

// NewPage creates an empty page at about:blank.
func NewPage() *Page {
	return &Page{
		url:      "about:blank",
		elements: make(map[string][]*Element),
		texts:    make(map[string]string),
		htmls:    make(map[string]string),
	}
}

// Navigate implements browser.Page.
func (p *Page) Navigate(url string, opts browser.NavigateOptions) error {
	p.mu.Lock()
	p.navigations = append(p.navigations, url)
	err := p.navigateErr
	hook := p.onNavigate
	if err == nil {
		p.url = url
	}
	p.mu.Unlock()

	if err != nil {
		return err
	}
	if hook != nil {
		hook(p, url)
	}
	return nil
}

// Reload implements browser.Page.
func (p *Page) Reload(opts browser.NavigateOptions) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reloads++
	return p.reloadErr
}

// URL implements browser.Page.
func (p *Page) URL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url
}

// Query implements browser.Page.
func (p *Page) Query(selector string) (browser.Element, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	els := p.elements[selector]
	if len(els) == 0 {
		return nil, nil
	}
	return els[0], nil
}

// QueryAll implements browser.Page.
func (p *Page) QueryAll(selector string) ([]browser.Element, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	els := p.elements[selector]
	out := make([]browser.Element, 0, len(els))
	for _, el := range els {
		out = append(out, el)
	}
	return out, nil
}

// WaitFor implements browser.Page, polling the scripted elements until the
// timeout elapses.
func (p *Page) WaitFor(selector string, timeout time.Duration) (browser.Element, error) {
	deadline := time.Now().Add(timeout)
	for {
		el, _ := p.Query(selector)
		if el != nil {
			return el, nil
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("wait failed: timeout waiting for %s", selector)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

// WaitForLoad implements browser.Page.
func (p *Page) WaitForLoad(state string, timeout time.Duration) error {
	return nil
}

// TextContent implements browser.Page. Unconfigured selectors return "".
func (p *Page) TextContent(selector string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.texts[selector], nil
}

// InnerHTML implements browser.Page. Unconfigured selectors return "".
func (p *Page) InnerHTML(selector string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.htmls[selector], nil
}

// Screenshot implements browser.Page, recording the path only.
func (p *Page) Screenshot(path string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.screenshots = append(p.screenshots, path)
	return nil
}

// IsClosed implements browser.Page.
func (p *Page) IsClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Close implements browser.Page. Idempotent.
func (p *Page) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// SetURL scripts the page's current URL.
func (p *Page) SetURL(url string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.url = url
}

// AddElement scripts elements for a selector, appending to any already set.
func (p *Page) AddElement(selector string, els ...*Element) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.elements[selector] = append(p.elements[selector], els...)
}

// RemoveElements clears all elements scripted for a selector.
func (p *Page) RemoveElements(selector string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.elements, selector)
}

// SetText scripts the text content returned for a selector.
func (p *Page) SetText(selector, text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.texts[selector] = text
}

// SetHTML scripts the inner HTML returned for a selector.
func (p *Page) SetHTML(selector, html string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.htmls[selector] = html
}

// SetNavigateErr makes subsequent Navigate calls fail.
func (p *Page) SetNavigateErr(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.navigateErr = err
}

// SetReloadErr makes subsequent Reload calls fail.
func (p *Page) SetReloadErr(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reloadErr = err
}

// OnNavigate installs a hook invoked after each successful navigation.
func (p *Page) OnNavigate(fn func(p *Page, url string)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onNavigate = fn
}

// Navigations returns every URL passed to Navigate.
func (p *Page) Navigations() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.navigations))
	copy(out, p.navigations)
	return out
}

// Reloads returns the number of Reload calls.
func (p *Page) Reloads() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reloads
}

// Screenshots returns every path passed to Screenshot.
func (p *Page) Screenshots() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.screenshots))
	copy(out, p.screenshots)
	return out
}

// Element is a scripted fake element.
type Element struct {
	mu      sync.Mutex
	visible bool
	text    string
	clicks  int
	fills   []string

	// ClickErr and FillErr, when set, are returned by Click and Fill.
	ClickErr error
	FillErr  error

	onClick func()
}

// NewElement creates a visible element.
func NewElement() *Element {
	return &Element{visible: true}
}

// NewHiddenElement creates an element that reports itself not visible.
func NewHiddenElement() *Element {
	return &Element{}
}

// WithText sets the element's text content and returns it.
func (e *Element) WithText(text string) *Element {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.text = text
	return e
}

// OnClick installs a hook invoked on each successful click.
func (e *Element) OnClick(fn func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onClick = fn
}

// IsVisible implements browser.Element.
func (e *Element) IsVisible() (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.visible, nil
}

// Click implements browser.Element.
func (e *Element) Click() error {
	e.mu.Lock()
	if e.ClickErr != nil {
		defer e.mu.Unlock()
		return e.ClickErr
	}
	e.clicks++
	hook := e.onClick
	e.mu.Unlock()

	if hook != nil {
		hook()
	}
	return nil
}

// Fill implements browser.Element.
func (e *Element) Fill(value string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.FillErr != nil {
		return e.FillErr
	}
	e.fills = append(e.fills, value)
	return nil
}

// TextContent implements browser.Element.
func (e *Element) TextContent() (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.text, nil
}

// Clicks returns the number of successful clicks.
func (e *Element) Clicks() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.clicks
}

// Fills returns every value passed to Fill.
func (e *Element) Fills() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, len(e.fills))
	copy(out, e.fills)
	return out
}
