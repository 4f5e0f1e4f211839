package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omilabs/ridewire/pkg/booking"
	"github.com/omilabs/ridewire/pkg/config"
	"github.com/omilabs/ridewire/pkg/detect"
	"github.com/omilabs/ridewire/pkg/logging"
	"github.com/omilabs/ridewire/pkg/server"
	"github.com/omilabs/ridewire/pkg/store"
)

type stubAuth struct {
	mu        sync.Mutex
	active    map[string]bool
	started   []string
	submitted map[string]string
}

func newStubAuth() *stubAuth {
	return &stubAuth{active: make(map[string]bool), submitted: make(map[string]string)}
}

func (a *stubAuth) StartLogin(ctx context.Context, uid string) (store.AuthStatus, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.started = append(a.started, uid)
	return store.StatusCompleted, nil
}

func (a *stubAuth) SubmitCode(uid, code string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.active[uid] {
		return false
	}
	a.submitted[uid] = code
	return true
}

func (a *stubAuth) Active(uid string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.active[uid]
}

func (a *stubAuth) startedLogins() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, len(a.started))
	copy(out, a.started)
	return out
}

type bookCall struct {
	uid, start, end string
	autoRequest     bool
}

type stubBooker struct {
	mu    sync.Mutex
	calls []bookCall
	err   error
}

func (b *stubBooker) BookRide(ctx context.Context, uid, start, end string, autoRequest bool) (*booking.Result, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, bookCall{uid, start, end, autoRequest})
	if b.err != nil {
		return nil, b.err
	}
	return &booking.Result{Requested: autoRequest, Message: "ok"}, nil
}

func (b *stubBooker) bookCalls() []bookCall {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]bookCall, len(b.calls))
	copy(out, b.calls)
	return out
}

type stubExtractor struct{ start, end string }

func (s *stubExtractor) ExtractRoute(ctx context.Context, text string) (string, string, error) {
	return s.start, s.end, nil
}

type fixture struct {
	server *server.Server
	auth   *stubAuth
	booker *stubBooker
	store  store.Store
}

func newFixture(t *testing.T, extractor detect.Extractor) *fixture {
	t.Helper()
	st, err := store.NewFileStore(t.TempDir())
	require.NoError(t, err)

	cfg := &config.Config{
		Host:                      "127.0.0.1",
		Port:                      0,
		AutoRequest:               true,
		MinBookingIntervalSeconds: 30,
		Booking:                   config.BookingConfig{DeadlineSeconds: 5},
	}

	a := newStubAuth()
	b := &stubBooker{}
	d := detect.NewDetector(extractor, detect.NewStaticGeolocator("Current Location"), logging.Discard())

	return &fixture{
		server: server.New(a, b, d, st, cfg, logging.Discard()),
		auth:   a,
		booker: b,
		store:  st,
	}
}

func (f *fixture) request(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestHealth(t *testing.T) {
	f := newFixture(t, &stubExtractor{})

	w := f.request(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "ridewire", body["service"])
}

func TestAuthStart(t *testing.T) {
	t.Run("missing uid", func(t *testing.T) {
		f := newFixture(t, &stubExtractor{})
		w := f.request(t, http.MethodPost, "/auth/start", map[string]string{})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("starts login in background", func(t *testing.T) {
		f := newFixture(t, &stubExtractor{})
		w := f.request(t, http.MethodPost, "/auth/start", map[string]string{"uid": "alice"})
		require.Equal(t, http.StatusAccepted, w.Code)

		assert.Eventually(t, func() bool {
			started := f.auth.startedLogins()
			return len(started) == 1 && started[0] == "alice"
		}, time.Second, 5*time.Millisecond)
	})

	t.Run("conflict while active", func(t *testing.T) {
		f := newFixture(t, &stubExtractor{})
		f.auth.active["alice"] = true

		w := f.request(t, http.MethodPost, "/auth/start", map[string]string{"uid": "alice"})
		assert.Equal(t, http.StatusConflict, w.Code)
	})
}

func TestAuthStatus(t *testing.T) {
	f := newFixture(t, &stubExtractor{})
	require.NoError(t, store.UpdateStatus(context.Background(), f.store, "alice", store.StatusWaitingTwoFactor, nil))

	w := f.request(t, http.MethodGet, "/auth/status?uid=alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "waiting_2fa", body["status"])
	assert.Equal(t, "2FA code required", body["message"])

	w = f.request(t, http.MethodGet, "/auth/status", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTwoFactor(t *testing.T) {
	tests := []struct {
		name    string
		active  bool
		code    string
		success bool
		message string
	}{
		{"valid code", true, "123456", true, "Code submitted"},
		{"code too short", true, "123", false, "Invalid code format"},
		{"code too long", true, "123456789", false, "Invalid code format"},
		{"no active session", false, "123456", false, "No active authentication session"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, &stubExtractor{})
			f.auth.active["alice"] = tt.active

			w := f.request(t, http.MethodPost, "/auth/2fa", map[string]string{"uid": "alice", "code": tt.code})
			require.Equal(t, http.StatusOK, w.Code)
			body := decode(t, w)
			assert.Equal(t, tt.success, body["success"])
			assert.Equal(t, tt.message, body["message"])
		})
	}
}

func TestSetupCompleted(t *testing.T) {
	f := newFixture(t, &stubExtractor{})
	require.NoError(t, store.SaveSession(context.Background(), f.store, "alice", []byte("{}")))

	w := f.request(t, http.MethodGet, "/setup-completed?uid=alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, true, body["is_setup_completed"])
	assert.Equal(t, "completed", body["auth_status"])

	w = f.request(t, http.MethodGet, "/setup-completed?uid=bob", nil)
	body = decode(t, w)
	assert.Equal(t, false, body["is_setup_completed"])
	assert.Equal(t, "not_authenticated", body["auth_status"])
}

func webhookBody(uid, text string) map[string]any {
	return map[string]any{
		"uid":      uid,
		"segments": []map[string]string{{"text": text, "speaker": "SPEAKER_0"}},
	}
}

func TestWebhook(t *testing.T) {
	t.Run("no trigger", func(t *testing.T) {
		f := newFixture(t, &stubExtractor{})
		w := f.request(t, http.MethodPost, "/webhook", webhookBody("alice", "lovely day"))
		require.Equal(t, http.StatusOK, w.Code)
		body := decode(t, w)
		assert.Equal(t, false, body["booked"])
		assert.Equal(t, "No trigger phrase detected", body["message"])
		assert.Empty(t, f.booker.bookCalls())
	})

	t.Run("trigger without destination", func(t *testing.T) {
		f := newFixture(t, &stubExtractor{})
		w := f.request(t, http.MethodPost, "/webhook", webhookBody("alice", "book an uber"))
		body := decode(t, w)
		assert.Equal(t, false, body["booked"])
		assert.Contains(t, body["message"], "Could not extract")
	})

	t.Run("unauthenticated", func(t *testing.T) {
		f := newFixture(t, &stubExtractor{start: "Home", end: "Airport"})
		w := f.request(t, http.MethodPost, "/webhook", webhookBody("alice", "book an uber to the airport"))
		body := decode(t, w)
		assert.Equal(t, false, body["booked"])
		assert.Contains(t, body["message"], "authenticate")
		assert.Empty(t, f.booker.bookCalls())
	})

	t.Run("books in background", func(t *testing.T) {
		f := newFixture(t, &stubExtractor{start: "Home", end: "Airport"})
		require.NoError(t, store.SaveSession(context.Background(), f.store, "alice", []byte("{}")))

		w := f.request(t, http.MethodPost, "/webhook", webhookBody("alice", "book an uber to the airport"))
		require.Equal(t, http.StatusOK, w.Code)
		body := decode(t, w)
		assert.Equal(t, true, body["booked"])
		assert.Equal(t, "Home", body["start_location"])
		assert.Equal(t, "Airport", body["end_location"])

		require.Eventually(t, func() bool {
			return len(f.booker.bookCalls()) == 1
		}, time.Second, 5*time.Millisecond)

		call := f.booker.bookCalls()[0]
		assert.Equal(t, "alice", call.uid)
		assert.Equal(t, "Home", call.start)
		assert.Equal(t, "Airport", call.end)
		assert.True(t, call.autoRequest)
	})

	t.Run("rate limited", func(t *testing.T) {
		f := newFixture(t, &stubExtractor{start: "Home", end: "Airport"})
		require.NoError(t, store.SaveSession(context.Background(), f.store, "alice", []byte("{}")))

		first := f.request(t, http.MethodPost, "/webhook", webhookBody("alice", "book an uber to the airport"))
		assert.Equal(t, true, decode(t, first)["booked"])

		second := f.request(t, http.MethodPost, "/webhook", webhookBody("alice", "book an uber to the airport"))
		body := decode(t, second)
		assert.Equal(t, false, body["booked"])
		assert.Contains(t, body["message"], "wait")

		// A different user is not limited.
		require.NoError(t, store.SaveSession(context.Background(), f.store, "bob", []byte("{}")))
		third := f.request(t, http.MethodPost, "/webhook", webhookBody("bob", "book an uber to the airport"))
		assert.Equal(t, true, decode(t, third)["booked"])

		require.Eventually(t, func() bool {
			return len(f.booker.bookCalls()) == 2
		}, time.Second, 5*time.Millisecond)
	})

	t.Run("missing uid", func(t *testing.T) {
		f := newFixture(t, &stubExtractor{})
		w := f.request(t, http.MethodPost, "/webhook", map[string]any{"segments": []map[string]string{}})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestShutdown_WaitsForBookings(t *testing.T) {
	f := newFixture(t, &stubExtractor{start: "Home", end: "Airport"})
	require.NoError(t, store.SaveSession(context.Background(), f.store, "alice", []byte("{}")))

	f.request(t, http.MethodPost, "/webhook", webhookBody("alice", "book an uber to the airport"))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, f.server.Shutdown(ctx))

	assert.Len(t, f.booker.bookCalls(), 1)
}
