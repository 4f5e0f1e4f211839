// Package auth runs the interactive login flow: it opens a visible browser
// for the user to sign in, watches the page to classify the outcome, accepts
// a 2FA code submitted out of band, and persists the resulting browser
// session state for later headless reuse.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/omilabs/ridewire/pkg/browser"
	"github.com/omilabs/ridewire/pkg/config"
	"github.com/omilabs/ridewire/pkg/locators"
	"github.com/omilabs/ridewire/pkg/logging"
	"github.com/omilabs/ridewire/pkg/store"
)

var (
	// ErrSessionActive is returned when a login flow is already running
	// for the uid.
	ErrSessionActive = errors.New("login session already active")

	// ErrTwoFactorTimeout is returned when no verification code arrives
	// within the 2FA budget.
	ErrTwoFactorTimeout = errors.New("timed out waiting for verification code")

	// ErrVerificationFailed is returned when a submitted code does not get
	// the user past the verification screen.
	ErrVerificationFailed = errors.New("verification code was not accepted")
)

// Controller owns at most one interactive login session per uid. All flows
// share the one browser driver; each flow gets its own browser process so a
// visible window can be handed to the user.
type Controller struct {
	driver      browser.Driver
	store       store.Store
	locs        *locators.Set
	log         *logging.Logger
	cfg         config.AuthConfig
	loginURL    string
	validateURL string
	headful     bool

	mu       sync.Mutex
	sessions map[string]*loginSession
}

// loginSession tracks one in-flight interactive login.
type loginSession struct {
	uid     string
	browser browser.Browser
	context browser.Context
	page    browser.Page

	codeMu sync.Mutex
	code   string
}

// NewController creates a login controller.
func NewController(driver browser.Driver, st store.Store, cfg *config.Config, locs *locators.Set, log *logging.Logger) *Controller {
	return &Controller{
		driver:      driver,
		store:       st,
		locs:        locs,
		log:         log,
		cfg:         cfg.Auth,
		loginURL:    cfg.LoginURL,
		validateURL: cfg.ValidateURL,
		headful:     cfg.AuthHeadful,
		sessions:    make(map[string]*loginSession),
	}
}

// StartLogin opens a login window for uid and blocks until the flow resolves:
// login detected and session saved, 2FA resolved or timed out, or the overall
// budget exhausted. The returned status is also persisted to the store. A
// second StartLogin for the same uid while one is running fails with
// ErrSessionActive.
func (c *Controller) StartLogin(ctx context.Context, uid string) (store.AuthStatus, error) {
	c.mu.Lock()
	if _, exists := c.sessions[uid]; exists {
		c.mu.Unlock()
		return "", ErrSessionActive
	}
	sess := &loginSession{uid: uid}
	c.sessions[uid] = sess
	c.mu.Unlock()

	status, err := c.runLogin(ctx, sess)
	c.Cleanup(uid)

	c.persistStatus(ctx, uid, status)
	return status, err
}

func (c *Controller) runLogin(ctx context.Context, sess *loginSession) (store.AuthStatus, error) {
	c.log.Infof("starting login flow for %s", sess.uid)

	b, err := c.driver.Launch(browser.LaunchOptions{Headless: !c.headful})
	if err != nil {
		return store.StatusFailed, fmt.Errorf("failed to launch login browser: %w", err)
	}
	sess.browser = b

	bctx, err := b.NewContext(nil)
	if err != nil {
		return store.StatusFailed, fmt.Errorf("failed to create login context: %w", err)
	}
	sess.context = bctx

	page, err := bctx.NewPage()
	if err != nil {
		return store.StatusFailed, fmt.Errorf("failed to open login page: %w", err)
	}
	sess.page = page

	if err := page.Navigate(c.loginURL, browser.NavigateOptions{WaitUntil: "domcontentloaded"}); err != nil {
		return store.StatusFailed, fmt.Errorf("failed to navigate to login page: %w", err)
	}

	c.persistStatus(ctx, sess.uid, store.StatusWaitingLogin)

	deadline := time.Now().Add(c.cfg.LoginTimeout())
	for time.Now().Before(deadline) {
		if err := sleep(ctx, c.cfg.PollInterval()); err != nil {
			return store.StatusFailed, err
		}
		if sess.page.IsClosed() {
			c.log.Warnf("login window for %s closed before completion", sess.uid)
			return store.StatusFailed, errors.New("login window closed")
		}

		// A 2FA prompt wins over a dashboard marker: some dashboards
		// render behind the verification overlay.
		if browser.AnyPresent(sess.page, c.locs.TwoFactorPrompt) {
			return c.runTwoFactor(ctx, sess)
		}

		if c.loginResolved(sess.page) {
			return c.completeLogin(ctx, sess)
		}
	}

	c.log.Warnf("login flow for %s exhausted its budget", sess.uid)
	return store.StatusFailed, errors.New("login not completed in time")
}

func (c *Controller) runTwoFactor(ctx context.Context, sess *loginSession) (store.AuthStatus, error) {
	c.log.Infof("2FA prompt detected for %s, waiting for code", sess.uid)
	c.persistStatus(ctx, sess.uid, store.StatusWaitingTwoFactor)

	code, err := c.waitForCode(ctx, sess)
	if err != nil {
		return store.StatusFailed, err
	}

	c.log.Infof("submitting verification code for %s", sess.uid)
	if err := c.enterCode(sess, code); err != nil {
		return store.StatusFailed, err
	}

	if err := sleep(ctx, c.cfg.VerifySettle()); err != nil {
		return store.StatusFailed, err
	}

	if !c.loginResolved(sess.page) {
		c.log.Warnf("verification code for %s did not reach the dashboard", sess.uid)
		return store.StatusFailed, ErrVerificationFailed
	}
	return c.completeLogin(ctx, sess)
}

// waitForCode polls for a code submitted via SubmitCode until the 2FA budget
// runs out.
func (c *Controller) waitForCode(ctx context.Context, sess *loginSession) (string, error) {
	deadline := time.Now().Add(c.cfg.TwoFactorTimeout())
	for time.Now().Before(deadline) {
		sess.codeMu.Lock()
		code := sess.code
		sess.codeMu.Unlock()
		if code != "" {
			return code, nil
		}
		if err := sleep(ctx, c.cfg.CodePollInterval()); err != nil {
			return "", err
		}
	}
	return "", ErrTwoFactorTimeout
}

// enterCode fills the verification input and clicks the verify button. The
// input is required; the button is best effort since some variants submit on
// fill.
func (c *Controller) enterCode(sess *loginSession, code string) error {
	input, selector, ok := browser.FirstPresent(sess.page, c.locs.TwoFactorInput)
	if !ok {
		return errors.New("verification input not found")
	}
	if err := input.Fill(code); err != nil {
		return fmt.Errorf("failed to fill verification code: %w", err)
	}
	c.log.Debugf("filled verification code via %s", selector)

	if btn, _, ok := browser.FirstPresent(sess.page, c.locs.VerifyButton); ok {
		if err := btn.Click(); err != nil {
			c.log.Warnf("verify button click failed for %s: %v", sess.uid, err)
		}
	}
	return nil
}

// completeLogin exports the browser session state, persists it, and tears the
// login window down.
func (c *Controller) completeLogin(ctx context.Context, sess *loginSession) (store.AuthStatus, error) {
	c.log.Infof("login detected for %s, capturing session", sess.uid)

	// Keep the session alive across browser restarts when the site offers
	// the option.
	if remember, _, ok := browser.FirstPresent(sess.page, c.locs.RememberDevice); ok {
		if err := remember.Click(); err != nil {
			c.log.Debugf("remember-device click failed for %s: %v", sess.uid, err)
		}
	}

	blob, err := sess.context.ExportState()
	if err != nil {
		return store.StatusFailed, fmt.Errorf("failed to export session state: %w", err)
	}

	if err := store.SaveSession(ctx, c.store, sess.uid, blob); err != nil {
		return store.StatusFailed, fmt.Errorf("failed to persist session: %w", err)
	}

	c.log.Infof("session captured for %s (%d bytes)", sess.uid, len(blob))
	return store.StatusCompleted, nil
}

// loginResolved reports whether the page looks signed in: the URL left the
// auth domain, or a dashboard marker is on the page.
func (c *Controller) loginResolved(page browser.Page) bool {
	url := strings.ToLower(page.URL())
	if url != "" && !strings.Contains(url, "login") && !strings.Contains(url, "auth") {
		return true
	}
	return browser.AnyPresent(page, c.locs.DashboardMarker)
}

// Active reports whether a login flow is currently running for uid.
func (c *Controller) Active(uid string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.sessions[uid]
	return ok
}

// SubmitCode hands a verification code to the in-flight login session for
// uid. Returns false when no session is waiting. Repeat submissions
// overwrite: the last code submitted before the flow consumes one wins.
func (c *Controller) SubmitCode(uid, code string) bool {
	c.mu.Lock()
	sess := c.sessions[uid]
	c.mu.Unlock()

	if sess == nil {
		return false
	}
	sess.codeMu.Lock()
	sess.code = code
	sess.codeMu.Unlock()
	return true
}

// Cleanup tears down the login session for uid, if any. Safe to call twice.
func (c *Controller) Cleanup(uid string) {
	c.mu.Lock()
	sess := c.sessions[uid]
	delete(c.sessions, uid)
	c.mu.Unlock()

	if sess == nil {
		return
	}
	if sess.page != nil {
		_ = sess.page.Close()
	}
	if sess.context != nil {
		_ = sess.context.Close()
	}
	if sess.browser != nil {
		_ = sess.browser.Close()
	}
}

// Shutdown tears down every in-flight login session.
func (c *Controller) Shutdown() {
	c.mu.Lock()
	uids := make([]string, 0, len(c.sessions))
	for uid := range c.sessions {
		uids = append(uids, uid)
	}
	c.mu.Unlock()

	for _, uid := range uids {
		c.Cleanup(uid)
	}
}

// ValidateSession checks whether uid's stored session still signs in, using a
// throwaway headless browser. The session is judged live when navigating to
// the validation URL does not bounce to a login page.
func (c *Controller) ValidateSession(ctx context.Context, uid string) (bool, error) {
	record, err := c.store.Load(ctx, uid)
	if err != nil {
		return false, err
	}
	if len(record.SessionBlob) == 0 {
		return false, nil
	}

	b, err := c.driver.Launch(browser.LaunchOptions{Headless: true})
	if err != nil {
		return false, fmt.Errorf("failed to launch validation browser: %w", err)
	}
	defer b.Close()

	bctx, err := b.NewContext(record.SessionBlob)
	if err != nil {
		return false, fmt.Errorf("failed to seed validation context: %w", err)
	}
	defer bctx.Close()

	page, err := bctx.NewPage()
	if err != nil {
		return false, fmt.Errorf("failed to open validation page: %w", err)
	}
	defer page.Close()

	if err := page.Navigate(c.validateURL, browser.NavigateOptions{WaitUntil: "domcontentloaded"}); err != nil {
		return false, nil
	}

	valid := !containsLogin(page.URL())
	c.log.Infof("session validation for %s: valid=%v (url=%s)", uid, valid, page.URL())
	return valid, nil
}

func (c *Controller) persistStatus(ctx context.Context, uid string, status store.AuthStatus) {
	if status == store.StatusCompleted {
		// completeLogin already wrote the terminal record together with
		// the session blob.
		return
	}
	if err := store.UpdateStatus(ctx, c.store, uid, status, nil); err != nil {
		c.log.Errorf("failed to persist auth status %s for %s: %v", status, uid, err)
	}
}

// containsLogin reports whether a URL looks like a login redirect.
func containsLogin(url string) bool {
	return strings.Contains(strings.ToLower(url), "login")
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
