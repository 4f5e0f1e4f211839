package auth_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omilabs/ridewire/pkg/auth"
	"github.com/omilabs/ridewire/pkg/browser/browsertest"
	"github.com/omilabs/ridewire/pkg/config"
	"github.com/omilabs/ridewire/pkg/locators"
	"github.com/omilabs/ridewire/pkg/logging"
	"github.com/omilabs/ridewire/pkg/store"
)

func testConfig() *config.Config {
	return &config.Config{
		LoginURL:    "https://auth.example.com/v2",
		ValidateURL: "https://m.example.com",
		AuthHeadful: true,
		Auth: config.AuthConfig{
			LoginTimeoutSeconds:     2,
			TwoFactorTimeoutSeconds: 1,
			PollIntervalMillis:      5,
			CodePollIntervalMillis:  5,
			VerifySettleMillis:      1,
		},
	}
}

func newController(t *testing.T, driver *browsertest.Driver) (*auth.Controller, store.Store) {
	t.Helper()
	st, err := store.NewFileStore(t.TempDir())
	require.NoError(t, err)
	return auth.NewController(driver, st, testConfig(), locators.Default(), logging.Discard()), st
}

func TestStartLogin_NoTwoFactor(t *testing.T) {
	page := browsertest.NewPage()
	page.AddElement(`text="Where to?"`, browsertest.NewElement())
	driver := browsertest.NewDriver(page)
	driver.StateExport = []byte(`{"cookies":[{"name":"sid"}],"origins":[]}`)

	ctrl, st := newController(t, driver)

	status, err := ctrl.StartLogin(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, store.StatusCompleted, status)

	rec, err := st.Load(context.Background(), "alice")
	require.NoError(t, err)
	assert.True(t, rec.Authenticated)
	assert.Equal(t, store.StatusCompleted, rec.AuthStatus)
	assert.Equal(t, driver.StateExport, rec.SessionBlob)

	// The login window opens visibly and is torn down afterwards.
	browsers := driver.Browsers()
	require.Len(t, browsers, 1)
	assert.False(t, browsers[0].Headless)
	assert.True(t, browsers[0].Closed())
}

func TestStartLogin_TwoFactorResolved(t *testing.T) {
	page := browsertest.NewPage()
	input := browsertest.NewElement()
	page.AddElement(`input[type="tel"]`, input)
	verify := browsertest.NewElement()
	page.AddElement(`button:has-text("Verify")`, verify)
	verify.OnClick(func() {
		// Verification succeeds: prompt goes away, dashboard appears.
		page.RemoveElements(`input[type="tel"]`)
		page.AddElement(`text="Where to?"`, browsertest.NewElement())
	})
	driver := browsertest.NewDriver(page)

	ctrl, st := newController(t, driver)

	done := make(chan struct{})
	var status store.AuthStatus
	var loginErr error
	go func() {
		defer close(done)
		status, loginErr = ctrl.StartLogin(context.Background(), "bob")
	}()

	// Wait for the flow to reach the 2FA wait, then hand it a code.
	require.Eventually(t, func() bool {
		rec, err := st.Load(context.Background(), "bob")
		return err == nil && rec.AuthStatus == store.StatusWaitingTwoFactor
	}, 2*time.Second, 5*time.Millisecond)

	assert.True(t, ctrl.SubmitCode("bob", "123456"))

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("login flow did not finish")
	}

	require.NoError(t, loginErr)
	assert.Equal(t, store.StatusCompleted, status)
	assert.Equal(t, []string{"123456"}, input.Fills())

	rec, err := st.Load(context.Background(), "bob")
	require.NoError(t, err)
	assert.True(t, rec.Authenticated)
	assert.NotEmpty(t, rec.SessionBlob)
}

func TestStartLogin_TwoFactorTimeout(t *testing.T) {
	page := browsertest.NewPage()
	page.AddElement(`input[type="tel"]`, browsertest.NewElement())
	driver := browsertest.NewDriver(page)

	ctrl, st := newController(t, driver)

	status, err := ctrl.StartLogin(context.Background(), "carol")
	assert.ErrorIs(t, err, auth.ErrTwoFactorTimeout)
	assert.Equal(t, store.StatusFailed, status)

	rec, loadErr := st.Load(context.Background(), "carol")
	require.NoError(t, loadErr)
	assert.Equal(t, store.StatusFailed, rec.AuthStatus)
	assert.False(t, rec.Authenticated)
	assert.Empty(t, rec.SessionBlob)
}

func TestStartLogin_VerificationRejected(t *testing.T) {
	page := browsertest.NewPage()
	page.AddElement(`input[type="tel"]`, browsertest.NewElement())
	driver := browsertest.NewDriver(page)

	ctrl, st := newController(t, driver)

	done := make(chan struct{})
	var status store.AuthStatus
	var loginErr error
	go func() {
		defer close(done)
		status, loginErr = ctrl.StartLogin(context.Background(), "dave")
	}()

	require.Eventually(t, func() bool {
		return ctrl.SubmitCode("dave", "000000")
	}, 2*time.Second, 5*time.Millisecond)

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("login flow did not finish")
	}

	// The code is consumed but the dashboard never appears.
	assert.ErrorIs(t, loginErr, auth.ErrVerificationFailed)
	assert.Equal(t, store.StatusFailed, status)

	rec, err := st.Load(context.Background(), "dave")
	require.NoError(t, err)
	assert.False(t, rec.Authenticated)
}

func TestStartLogin_RejectsConcurrentFlow(t *testing.T) {
	page := browsertest.NewPage()
	page.AddElement(`input[type="tel"]`, browsertest.NewElement())
	driver := browsertest.NewDriver(page)

	ctrl, st := newController(t, driver)

	done := make(chan struct{})
	go func() {
		defer close(done)
		ctrl.StartLogin(context.Background(), "erin")
	}()

	require.Eventually(t, func() bool {
		rec, err := st.Load(context.Background(), "erin")
		return err == nil && rec.AuthStatus != store.StatusNotAuthenticated
	}, 2*time.Second, 5*time.Millisecond)

	_, err := ctrl.StartLogin(context.Background(), "erin")
	assert.ErrorIs(t, err, auth.ErrSessionActive)

	ctrl.SubmitCode("erin", "123456")
	<-done
}

func TestSubmitCode_NoActiveSession(t *testing.T) {
	ctrl, _ := newController(t, browsertest.NewDriver())
	assert.False(t, ctrl.SubmitCode("nobody", "123456"))
}

func TestCleanup_Idempotent(t *testing.T) {
	ctrl, _ := newController(t, browsertest.NewDriver())
	ctrl.Cleanup("ghost")
	ctrl.Cleanup("ghost")
}

func TestValidateSession(t *testing.T) {
	t.Run("no stored session", func(t *testing.T) {
		driver := browsertest.NewDriver()
		ctrl, _ := newController(t, driver)

		valid, err := ctrl.ValidateSession(context.Background(), "alice")
		require.NoError(t, err)
		assert.False(t, valid)
		assert.Zero(t, driver.Launches())
	})

	t.Run("live session", func(t *testing.T) {
		page := browsertest.NewPage()
		page.OnNavigate(func(p *browsertest.Page, url string) {
			p.SetURL("https://m.example.com/go/home")
		})
		driver := browsertest.NewDriver(page)
		ctrl, st := newController(t, driver)
		require.NoError(t, store.SaveSession(context.Background(), st, "alice", []byte(`{"cookies":[]}`)))

		valid, err := ctrl.ValidateSession(context.Background(), "alice")
		require.NoError(t, err)
		assert.True(t, valid)

		// The throwaway browser is headless and torn down.
		browsers := driver.Browsers()
		require.Len(t, browsers, 1)
		assert.True(t, browsers[0].Headless)
		assert.True(t, browsers[0].Closed())
	})

	t.Run("bounced to login", func(t *testing.T) {
		page := browsertest.NewPage()
		page.OnNavigate(func(p *browsertest.Page, url string) {
			p.SetURL("https://auth.example.com/login?next=home")
		})
		driver := browsertest.NewDriver(page)
		ctrl, st := newController(t, driver)
		require.NoError(t, store.SaveSession(context.Background(), st, "bob", []byte(`{"cookies":[]}`)))

		valid, err := ctrl.ValidateSession(context.Background(), "bob")
		require.NoError(t, err)
		assert.False(t, valid)
	})
}
