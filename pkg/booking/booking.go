// Package booking drives the multi-step ride request flow against the
// provider's web app: fill pickup and dropoff, open the price page, pick a
// ride option, and optionally click the final request button. Each UI
// interaction probes a fallback locator chain so markup drift degrades the
// flow instead of breaking it outright.
package booking

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/omilabs/ridewire/pkg/browser"
	"github.com/omilabs/ridewire/pkg/config"
	"github.com/omilabs/ridewire/pkg/locators"
	"github.com/omilabs/ridewire/pkg/logging"
	"github.com/omilabs/ridewire/pkg/store"
)

var (
	// ErrSessionExpired is returned when the user has no usable session
	// and must re-authenticate.
	ErrSessionExpired = errors.New("session expired, authentication required")

	// ErrElementNotFound is returned when a required element's whole
	// locator chain comes up empty.
	ErrElementNotFound = errors.New("required page element not found")
)

// Result describes a finished booking attempt.
type Result struct {
	// Requested is true when the final request button was clicked, false
	// when the flow stopped at a ready-to-request state.
	Requested  bool
	Message    string
	DriverName string
	ETA        string
}

// Pipeline books rides on pooled per-user browser sessions.
type Pipeline struct {
	pool         *browser.Pool
	store        store.Store
	locs         *locators.Set
	log          *logging.Logger
	cfg          config.BookingConfig
	bookingURL   string
	snapshotsDir string
}

// NewPipeline creates a booking pipeline.
func NewPipeline(pool *browser.Pool, st store.Store, cfg *config.Config, locs *locators.Set, log *logging.Logger) *Pipeline {
	return &Pipeline{
		pool:         pool,
		store:        st,
		locs:         locs,
		log:          log,
		cfg:          cfg.Booking,
		bookingURL:   cfg.BookingURL,
		snapshotsDir: cfg.SnapshotsDir,
	}
}

// BookRide runs the booking flow for uid from start to end. When autoRequest
// is false the flow stops once ride options are on screen, leaving the final
// request click to the user. The pooled browser is left open for the next
// request. ctx bounds the whole attempt.
func (p *Pipeline) BookRide(ctx context.Context, uid, start, end string, autoRequest bool) (*Result, error) {
	record, err := p.store.Load(ctx, uid)
	if err != nil {
		return nil, fmt.Errorf("failed to load user record: %w", err)
	}
	if !record.Authenticated || len(record.SessionBlob) == 0 {
		return nil, ErrSessionExpired
	}

	page, err := p.pool.GetOrCreate(uid, record.SessionBlob)
	if err != nil {
		return nil, err
	}

	if err := p.navigate(ctx, page); err != nil {
		return nil, err
	}

	if strings.Contains(strings.ToLower(page.URL()), "auth.") {
		p.log.Warnf("booking page for %s bounced to auth, session is stale", uid)
		p.pool.Close(uid)
		return nil, ErrSessionExpired
	}

	if err := p.clearSecurityChallenge(ctx, page); err != nil {
		return nil, err
	}

	if err := p.fillPickup(ctx, page, uid, start); err != nil {
		return nil, err
	}
	p.fillDropoff(ctx, page, uid, end)

	if err := sleep(ctx, p.cfg.PageSettle()); err != nil {
		return nil, err
	}
	p.snapshot(page, uid, "05_ride_details")

	seePrices, selector, ok := browser.FirstVisible(page, p.locs.SeePrices)
	if !ok {
		// The price page never materialized but both fields are filled.
		// Leave the browser where the user can finish by hand.
		p.log.Infof("price button not found for %s, stopping at filled details", uid)
		return &Result{
			Requested: false,
			Message:   fmt.Sprintf("Ride details ready: %s to %s, awaiting price options", start, end),
		}, nil
	}

	p.log.Debugf("clicking price button via %s", selector)
	if err := seePrices.Click(); err != nil {
		return nil, fmt.Errorf("failed to open price page: %w", err)
	}
	if err := page.WaitForLoad("networkidle", p.cfg.OptionsSettle()); err != nil {
		p.log.Warnf("price page load timeout for %s, proceeding", uid)
	}

	p.dismissCookieBanner(ctx, page)

	if err := p.recoverBlankPage(ctx, page); err != nil {
		return nil, err
	}

	if err := sleep(ctx, p.cfg.OptionsSettle()); err != nil {
		return nil, err
	}
	p.snapshot(page, uid, "06_ride_options")

	if !autoRequest {
		p.log.Infof("ride options ready for %s, auto-request disabled", uid)
		return &Result{
			Requested: false,
			Message:   fmt.Sprintf("Ride ready: %s to %s, awaiting confirmation", start, end),
		}, nil
	}

	return p.requestRide(ctx, page, uid, start, end)
}

// navigate opens the booking page, retrying once with a reload. Navigation
// errors are not fatal on their own: a page that truly never loaded fails on
// the pickup probe.
func (p *Pipeline) navigate(ctx context.Context, page browser.Page) error {
	opts := browser.NavigateOptions{WaitUntil: "domcontentloaded", Timeout: p.cfg.NavigationTimeout()}
	if err := page.Navigate(p.bookingURL, opts); err != nil {
		p.log.Warnf("navigation failed: %v, reloading", err)
		if err := page.Reload(opts); err != nil {
			p.log.Warnf("reload failed: %v, proceeding anyway", err)
		}
	}
	return sleep(ctx, p.cfg.PageSettle())
}

// clearSecurityChallenge waits out a device verification interstitial. The
// challenge usually self-resolves for a seeded session, so after the settle
// wait the flow continues either way.
func (p *Pipeline) clearSecurityChallenge(ctx context.Context, page browser.Page) error {
	if !browser.AnyPresent(page, p.locs.SecurityChallenge) {
		return nil
	}
	p.log.Infof("security challenge detected, waiting for it to clear")
	return sleep(ctx, p.cfg.ChallengeSettle())
}

// fillPickup locates the pickup input, fills it, and picks the first
// autocomplete suggestion. The pickup input is required.
func (p *Pipeline) fillPickup(ctx context.Context, page browser.Page, uid, start string) error {
	// Give the client-rendered form a chance to appear.
	for _, sel := range p.locs.PickupWait {
		if _, err := page.WaitFor(sel, p.cfg.PickupWait()); err == nil {
			break
		}
	}

	input, selector, ok := browser.FirstVisible(page, p.locs.PickupInput)
	if !ok {
		return fmt.Errorf("%w: pickup input", ErrElementNotFound)
	}
	p.log.Debugf("found pickup input via %s", selector)

	if err := input.Click(); err != nil {
		p.log.Debugf("pickup input click failed: %v", err)
	}
	if err := sleep(ctx, p.cfg.FieldClickSettle()); err != nil {
		return err
	}
	if err := input.Fill(start); err != nil {
		return fmt.Errorf("failed to fill pickup: %w", err)
	}
	if err := sleep(ctx, p.cfg.SuggestSettle()); err != nil {
		return err
	}
	p.snapshot(page, uid, "01_pickup_filled")

	if p.selectSuggestion(ctx, page) {
		p.snapshot(page, uid, "02_pickup_selected")
	}
	return ctx.Err()
}

// fillDropoff fills the dropoff field. A missing dropoff input degrades the
// flow rather than failing it: the pickup alone still leaves the page in a
// usable state.
func (p *Pipeline) fillDropoff(ctx context.Context, page browser.Page, uid, end string) {
	// Let the pickup suggestion dropdown close first.
	if sleep(ctx, p.cfg.FieldClickSettle()) != nil {
		return
	}

	input, selector, ok := browser.FirstPresent(page, p.locs.DropoffInput)
	if !ok {
		// Structural fallback: the dropoff field is the second combobox.
		inputs, err := page.QueryAll(p.locs.DropoffStructural)
		if err == nil && len(inputs) > 1 {
			input, selector, ok = inputs[1], p.locs.DropoffStructural, true
		}
	}
	if !ok {
		p.log.Warnf("dropoff input not found for %s, continuing without it", uid)
		return
	}
	p.log.Debugf("found dropoff input via %s", selector)

	if err := input.Fill(end); err != nil {
		p.log.Warnf("failed to fill dropoff for %s: %v", uid, err)
		return
	}
	if sleep(ctx, p.cfg.SuggestSettle()) != nil {
		return
	}
	p.snapshot(page, uid, "03_dropoff_filled")

	if p.selectSuggestion(ctx, page) {
		p.snapshot(page, uid, "04_dropoff_selected")
	}
}

// selectSuggestion waits for the autocomplete list and clicks its first
// entry. Reports whether a suggestion was clicked.
func (p *Pipeline) selectSuggestion(ctx context.Context, page browser.Page) bool {
	for _, sel := range p.locs.SuggestionList {
		if _, err := page.WaitFor(sel, p.cfg.SuggestWait()); err == nil {
			break
		}
	}

	var items []browser.Element
	for _, sel := range p.locs.SuggestionItem {
		found, err := page.QueryAll(sel)
		if err == nil && len(found) > 0 {
			items = found
			break
		}
	}
	if len(items) == 0 {
		p.log.Debugf("no autocomplete suggestions found")
		return false
	}
	if err := items[0].Click(); err != nil {
		p.log.Warnf("failed to click suggestion: %v", err)
		return false
	}
	_ = sleep(ctx, p.cfg.SuggestSettle())
	return true
}

// dismissCookieBanner closes the consent dialog when present.
func (p *Pipeline) dismissCookieBanner(ctx context.Context, page browser.Page) {
	btn, selector, ok := browser.FirstVisible(page, p.locs.CookieConsent)
	if !ok {
		return
	}
	p.log.Debugf("dismissing cookie dialog via %s", selector)
	if err := btn.Click(); err != nil {
		p.log.Debugf("cookie dialog click failed: %v", err)
		return
	}
	_ = sleep(ctx, p.cfg.PageSettle())
}

// recoverBlankPage reloads once when the price page rendered without
// meaningful content.
func (p *Pipeline) recoverBlankPage(ctx context.Context, page browser.Page) error {
	body, err := page.InnerHTML("body")
	if err != nil {
		return nil
	}
	if len(visibleText(body)) >= p.cfg.BlankBodyThreshold {
		return nil
	}

	p.log.Warnf("price page appears blank, reloading once")
	if err := sleep(ctx, p.cfg.BlankPageWait()); err != nil {
		return err
	}
	if err := page.Reload(browser.NavigateOptions{WaitUntil: "networkidle", Timeout: p.cfg.NavigationTimeout()}); err != nil {
		p.log.Warnf("blank page reload failed: %v, proceeding anyway", err)
	}
	return sleep(ctx, p.cfg.PageSettle())
}

// requestRide selects a ride option and clicks through to the final request
// button. The option and the pickup confirmation are best effort; the
// request button itself is required.
func (p *Pipeline) requestRide(ctx context.Context, page browser.Page, uid, start, end string) (*Result, error) {
	if option, selector, ok := browser.FirstPresent(page, p.locs.RideOption); ok {
		text, _ := option.TextContent()
		p.log.Infof("selecting ride option %q via %s", strings.TrimSpace(text), selector)
		if err := option.Click(); err != nil {
			p.log.Warnf("ride option click failed: %v", err)
		} else {
			p.snapshot(page, uid, "07_ride_selected")
			if err := sleep(ctx, p.cfg.OptionSelectSettle()); err != nil {
				return nil, err
			}
		}
	} else {
		p.log.Infof("no ride options found, proceeding to request button")
	}

	// Some flows interpose a pickup confirmation page.
	if confirm, _, ok := browser.FirstVisible(page, p.locs.ConfirmRequest); ok {
		p.log.Infof("confirming pickup for %s", uid)
		if err := confirm.Click(); err != nil {
			p.log.Warnf("pickup confirmation click failed: %v", err)
		} else {
			if err := sleep(ctx, p.cfg.ConfirmSettle()); err != nil {
				return nil, err
			}
			p.snapshot(page, uid, "08_confirm_and_request")
		}
	}

	request, selector, ok := browser.FirstPresent(page, p.locs.RequestButton)
	if !ok {
		return nil, fmt.Errorf("%w: request button", ErrElementNotFound)
	}
	text, _ := request.TextContent()
	p.log.Infof("clicking request button %q via %s", strings.TrimSpace(text), selector)
	if err := request.Click(); err != nil {
		return nil, fmt.Errorf("failed to click request button: %w", err)
	}
	if err := sleep(ctx, p.cfg.RequestSettle()); err != nil {
		return nil, err
	}
	p.snapshot(page, uid, "08_booking_confirmation")

	driverName, eta := p.extractRideDetails(page)

	route := fmt.Sprintf("%s → %s", start, end)
	if err := store.RecordBooking(ctx, p.store, uid, route, driverName, eta); err != nil {
		p.log.Errorf("failed to record booking for %s: %v", uid, err)
	}

	message := fmt.Sprintf("Ride booked from %s to %s", start, end)
	if driverName != "" {
		message += ", driver " + driverName
	}
	if eta != "" {
		message += ", ETA " + eta
	}
	return &Result{
		Requested:  true,
		Message:    message,
		DriverName: driverName,
		ETA:        eta,
	}, nil
}

// extractRideDetails pulls the driver name and ETA off the confirmation
// page. Both are optional.
func (p *Pipeline) extractRideDetails(page browser.Page) (driverName, eta string) {
	if el, _, ok := browser.FirstPresent(page, p.locs.DriverName); ok {
		if text, err := el.TextContent(); err == nil {
			driverName = strings.TrimSpace(text)
		}
	}
	if el, _, ok := browser.FirstPresent(page, p.locs.ETA); ok {
		if text, err := el.TextContent(); err == nil {
			eta = strings.TrimSpace(text)
		}
	}
	return driverName, eta
}

// snapshot saves a per-step screenshot under <snapshotsDir>/<uid>/. Best
// effort: a failed screenshot never affects the flow.
func (p *Pipeline) snapshot(page browser.Page, uid, step string) {
	dir := filepath.Join(p.snapshotsDir, uid)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		p.log.Debugf("failed to create snapshot dir: %v", err)
		return
	}
	path := filepath.Join(dir, step+".png")
	if err := page.Screenshot(path); err != nil {
		p.log.Debugf("failed to capture %s: %v", step, err)
		return
	}
	p.log.Debugf("screenshot saved: %s", path)
}

// sleep blocks for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
