// Package server exposes the HTTP surface: auth lifecycle endpoints, the
// voice transcript webhook, and health. All responses are JSON.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/omilabs/ridewire/pkg/auth"
	"github.com/omilabs/ridewire/pkg/booking"
	"github.com/omilabs/ridewire/pkg/config"
	"github.com/omilabs/ridewire/pkg/detect"
	"github.com/omilabs/ridewire/pkg/logging"
	"github.com/omilabs/ridewire/pkg/store"
)

// Authenticator is the slice of the auth controller the server drives.
type Authenticator interface {
	StartLogin(ctx context.Context, uid string) (store.AuthStatus, error)
	SubmitCode(uid, code string) bool
	Active(uid string) bool
}

// Booker runs the booking flow.
type Booker interface {
	BookRide(ctx context.Context, uid, start, end string, autoRequest bool) (*booking.Result, error)
}

// statusMessages maps auth statuses to user-facing text.
var statusMessages = map[store.AuthStatus]string{
	store.StatusNotAuthenticated: "Please authenticate your account",
	store.StatusWaitingLogin:     "Logging in...",
	store.StatusWaitingTwoFactor: "2FA code required",
	store.StatusCompleted:        "Authentication successful",
	store.StatusFailed:           "Authentication failed",
}

// Server wires the HTTP endpoints to the auth controller, booking pipeline,
// and intent detector.
type Server struct {
	engine     *gin.Engine
	httpServer *http.Server
	auth       Authenticator
	booker     Booker
	detector   *detect.Detector
	store      store.Store
	log        *logging.Logger

	autoRequest     bool
	bookingDeadline time.Duration
	minInterval     time.Duration

	mu          sync.Mutex
	lastBooking map[string]time.Time

	// bookings tracks in-flight background booking goroutines so shutdown
	// can wait them out.
	bookings sync.WaitGroup
}

// New creates a server. The engine is configured but not listening.
func New(a Authenticator, b Booker, d *detect.Detector, st store.Store, cfg *config.Config, log *logging.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	engine.Use(cors.New(corsConfig))

	s := &Server{
		engine:          engine,
		auth:            a,
		booker:          b,
		detector:        d,
		store:           st,
		log:             log,
		autoRequest:     cfg.AutoRequest,
		bookingDeadline: cfg.Booking.Deadline(),
		minInterval:     cfg.MinBookingInterval(),
		lastBooking:     make(map[string]time.Time),
	}
	s.routes()

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) routes() {
	s.engine.GET("/health", s.handleHealth)
	s.engine.POST("/auth/start", s.handleAuthStart)
	s.engine.GET("/auth/status", s.handleAuthStatus)
	s.engine.POST("/auth/2fa", s.handleTwoFactor)
	s.engine.GET("/setup-completed", s.handleSetupCompleted)
	s.engine.POST("/webhook", s.handleWebhook)
}

// Handler returns the HTTP handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// ListenAndServe blocks serving HTTP until Shutdown or a listener error.
func (s *Server) ListenAndServe() error {
	s.log.Infof("listening on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops accepting connections and waits for in-flight background
// bookings, bounded by ctx.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)

	done := make(chan struct{})
	go func() {
		s.bookings.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.log.Warnf("shutdown deadline reached with bookings still in flight")
	}
	return err
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "ridewire"})
}

type authStartRequest struct {
	UID string `json:"uid" binding:"required"`
}

// handleAuthStart kicks off the interactive login flow in the background.
func (s *Server) handleAuthStart(c *gin.Context) {
	var req authStartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "uid is required"})
		return
	}

	if s.auth.Active(req.UID) {
		c.JSON(http.StatusConflict, gin.H{"error": "login already in progress"})
		return
	}

	go func() {
		status, err := s.auth.StartLogin(context.Background(), req.UID)
		if err != nil {
			s.log.Warnf("login flow for %s ended: %v", req.UID, err)
			return
		}
		s.log.Infof("login flow for %s finished with status %s", req.UID, status)
	}()

	c.JSON(http.StatusAccepted, gin.H{"message": "login started", "uid": req.UID})
}

func (s *Server) handleAuthStatus(c *gin.Context) {
	uid := c.Query("uid")
	if uid == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "uid is required"})
		return
	}

	rec, err := s.store.Load(c.Request.Context(), uid)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	message, ok := statusMessages[rec.AuthStatus]
	if !ok {
		message = "Unknown status"
	}
	c.JSON(http.StatusOK, gin.H{"status": rec.AuthStatus, "message": message})
}

type twoFactorRequest struct {
	UID  string `json:"uid" binding:"required"`
	Code string `json:"code" binding:"required"`
}

func (s *Server) handleTwoFactor(c *gin.Context) {
	var req twoFactorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "uid and code are required"})
		return
	}

	if len(req.Code) < 4 || len(req.Code) > 8 {
		c.JSON(http.StatusOK, gin.H{"success": false, "message": "Invalid code format"})
		return
	}

	if !s.auth.SubmitCode(req.UID, req.Code) {
		c.JSON(http.StatusOK, gin.H{"success": false, "message": "No active authentication session"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Code submitted"})
}

func (s *Server) handleSetupCompleted(c *gin.Context) {
	uid := c.Query("uid")
	if uid == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "uid is required"})
		return
	}

	rec, err := s.store.Load(c.Request.Context(), uid)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"is_setup_completed": rec.Authenticated,
		"auth_status":        rec.AuthStatus,
	})
}

type webhookRequest struct {
	UID      string           `json:"uid" binding:"required"`
	Segments []detect.Segment `json:"segments"`
}

// handleWebhook receives transcript segments, detects a booking intent, and
// starts the booking in the background. Per-uid rate limiting keeps repeat
// triggers from hammering the provider.
func (s *Server) handleWebhook(c *gin.Context) {
	var req webhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "uid is required"})
		return
	}

	if wait, limited := s.rateLimited(req.UID); limited {
		c.JSON(http.StatusOK, gin.H{
			"message": fmt.Sprintf("Please wait %ds before booking another ride", wait),
			"booked":  false,
		})
		return
	}

	intent, err := s.detector.Detect(c.Request.Context(), req.Segments)
	if err != nil {
		s.log.Errorf("intent detection failed for %s: %v", req.UID, err)
		c.JSON(http.StatusOK, gin.H{
			"message": "Could not extract start and end locations from voice command",
			"booked":  false,
		})
		return
	}
	if intent == nil {
		if detect.IsTrigger(detect.CombineSegments(req.Segments)) {
			c.JSON(http.StatusOK, gin.H{
				"message": "Could not extract start and end locations from voice command",
				"booked":  false,
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "No trigger phrase detected", "booked": false})
		return
	}

	rec, err := s.store.Load(c.Request.Context(), req.UID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if !rec.Authenticated {
		c.JSON(http.StatusOK, gin.H{
			"message": "Please authenticate your account first",
			"booked":  false,
		})
		return
	}

	s.recordBookingTime(req.UID)
	s.startBooking(req.UID, intent.Start, intent.End)

	c.JSON(http.StatusOK, gin.H{
		"message":        fmt.Sprintf("Booking ride from %s to %s...", intent.Start, intent.End),
		"booked":         true,
		"start_location": intent.Start,
		"end_location":   intent.End,
	})
}

// rateLimited reports whether uid booked too recently, and how many seconds
// remain in the window.
func (s *Server) rateLimited(uid string) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	last, ok := s.lastBooking[uid]
	if !ok {
		return 0, false
	}
	elapsed := time.Since(last)
	if elapsed >= s.minInterval {
		return 0, false
	}
	return int((s.minInterval - elapsed).Seconds()), true
}

func (s *Server) recordBookingTime(uid string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastBooking[uid] = time.Now()
}

// startBooking runs the booking flow in the background under its own
// deadline.
func (s *Server) startBooking(uid, start, end string) {
	s.bookings.Add(1)
	go func() {
		defer s.bookings.Done()

		ctx, cancel := context.WithTimeout(context.Background(), s.bookingDeadline)
		defer cancel()

		s.log.Infof("starting booking for %s: %s to %s", uid, start, end)
		result, err := s.booker.BookRide(ctx, uid, start, end, s.autoRequest)
		if err != nil {
			s.log.Warnf("booking for %s failed: %v", uid, err)
			return
		}
		s.log.Infof("booking for %s finished: requested=%v, %s", uid, result.Requested, result.Message)
	}()
}

var _ Authenticator = (*auth.Controller)(nil)
var _ Booker = (*booking.Pipeline)(nil)
