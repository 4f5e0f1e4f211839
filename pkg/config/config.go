// Package config loads the ridewire service configuration from the
// environment. A .env file in the working directory is honored when present.
//
// The delay values under Delays are not tunable backoff policy: they model the
// observed render/settle timing of the target site and changing them changes
// booking reliability.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config is the root service configuration.
type Config struct {
	// HTTP server bind address.
	Host string `env:"HOST" envDefault:"0.0.0.0"`
	Port int    `env:"PORT" envDefault:"8000"`

	// Provider entry points driven by the automation.
	LoginURL    string `env:"RIDE_LOGIN_URL" envDefault:"https://auth.uber.com/v2"`
	BookingURL  string `env:"RIDE_BOOKING_URL" envDefault:"https://www.uber.com"`
	ValidateURL string `env:"RIDE_VALIDATE_URL" envDefault:"https://m.uber.com"`

	// AutoRequest controls whether the pipeline presses the final request
	// control or stops at the ready checkpoint.
	AutoRequest bool `env:"AUTO_REQUEST" envDefault:"false"`

	// AuthHeadful runs the login browser with a visible window so the user
	// can type their credentials. Booking browsers are always headless.
	AuthHeadful bool `env:"AUTH_HEADFUL" envDefault:"true"`

	// SnapshotsDir receives per-uid diagnostic screenshots.
	SnapshotsDir string `env:"SNAPSHOTS_DIR" envDefault:"snapshots"`

	// SelectorsFile optionally points at a YAML file overriding the built-in
	// locator fallback chains, so selector drift on the target site can be
	// absorbed without a rebuild.
	SelectorsFile string `env:"SELECTORS_FILE"`

	// MinBookingIntervalSeconds is the per-uid webhook rate limit.
	MinBookingIntervalSeconds int `env:"MIN_BOOKING_INTERVAL" envDefault:"30"`

	Auth    AuthConfig    `envPrefix:"AUTH_"`
	Booking BookingConfig `envPrefix:"BOOKING_"`
	Pool    PoolConfig    `envPrefix:"POOL_"`
	Store   StoreConfig   `envPrefix:"STORE_"`
	Detect  DetectConfig  `envPrefix:"DETECT_"`
}

// AuthConfig carries the login flow wall-clock budgets.
type AuthConfig struct {
	// LoginTimeoutSeconds bounds the whole login flow.
	LoginTimeoutSeconds int `env:"LOGIN_TIMEOUT" envDefault:"300"`

	// TwoFactorTimeoutSeconds bounds the wait for a submitted 2FA code.
	TwoFactorTimeoutSeconds int `env:"2FA_TIMEOUT" envDefault:"300"`

	// PollIntervalMillis is the granularity of the login detection loop.
	PollIntervalMillis int `env:"POLL_INTERVAL_MS" envDefault:"1000"`

	// CodePollIntervalMillis is the granularity of the 2FA code wait.
	CodePollIntervalMillis int `env:"CODE_POLL_INTERVAL_MS" envDefault:"500"`

	// VerifySettleMillis is the fixed wait after submitting a 2FA code
	// before re-probing for login success.
	VerifySettleMillis int `env:"VERIFY_SETTLE_MS" envDefault:"2000"`
}

// BookingConfig carries the booking pipeline deadline and settle delays.
// Every *Millis field is a fixed wait for the target site's client-side
// rendering, preserved from observed timing rather than derived.
type BookingConfig struct {
	// DeadlineSeconds is the overall per-call budget imposed on BookRide.
	DeadlineSeconds int `env:"DEADLINE" envDefault:"300"`

	// NavigationTimeoutMillis bounds individual page navigations.
	NavigationTimeoutMillis int `env:"NAV_TIMEOUT_MS" envDefault:"30000"`

	// PickupWaitMillis bounds the wait for the booking form inputs to
	// render after navigation.
	PickupWaitMillis int `env:"PICKUP_WAIT_MS" envDefault:"10000"`

	PageSettleMillis       int `env:"PAGE_SETTLE_MS" envDefault:"2000"`
	FieldClickSettleMillis int `env:"FIELD_CLICK_SETTLE_MS" envDefault:"1000"`
	SuggestSettleMillis    int `env:"SUGGEST_SETTLE_MS" envDefault:"2000"`
	SuggestWaitMillis      int `env:"SUGGEST_WAIT_MS" envDefault:"3000"`
	ChallengeSettleMillis  int `env:"CHALLENGE_SETTLE_MS" envDefault:"3000"`

	// OptionsSettleMillis is the long wait after the price-options page
	// loads; the options list keeps repainting well after load.
	OptionsSettleMillis int `env:"OPTIONS_SETTLE_MS" envDefault:"15000"`

	// OptionSelectSettleMillis is the wait after selecting a ride option
	// while prices/ETAs recompute.
	OptionSelectSettleMillis int `env:"OPTION_SELECT_SETTLE_MS" envDefault:"15000"`

	ConfirmSettleMillis int `env:"CONFIRM_SETTLE_MS" envDefault:"5000"`
	RequestSettleMillis int `env:"REQUEST_SETTLE_MS" envDefault:"5000"`

	// BlankPageWaitMillis is the one-shot wait before reloading a page
	// whose body came back suspiciously short.
	BlankPageWaitMillis int `env:"BLANK_PAGE_WAIT_MS" envDefault:"5000"`

	// BlankBodyThreshold is the visible-text length below which a page is
	// treated as blank.
	BlankBodyThreshold int `env:"BLANK_BODY_THRESHOLD" envDefault:"100"`
}

// PoolConfig configures the per-uid browser session pool.
type PoolConfig struct {
	// TTLSeconds is the maximum age of a pooled browser context.
	TTLSeconds int `env:"TTL" envDefault:"3600"`

	// EvictIntervalSeconds is how often expired entries are swept.
	EvictIntervalSeconds int `env:"EVICT_INTERVAL" envDefault:"300"`
}

// StoreConfig selects and configures the persisted user store backend.
type StoreConfig struct {
	// Backend is "file" or "redis".
	Backend string `env:"BACKEND" envDefault:"file"`

	// DataDir is the root for the file backend's users/ directory.
	DataDir string `env:"DATA_DIR" envDefault:"."`

	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`
}

// DetectConfig configures trigger detection and location extraction.
type DetectConfig struct {
	// Model is the chat model used for location extraction.
	Model string `env:"MODEL" envDefault:"gpt-3.5-turbo"`

	// DefaultPickup is the implied pickup landmark for destination-only
	// requests.
	DefaultPickup string `env:"DEFAULT_PICKUP" envDefault:"Current Location"`
}

// Load reads configuration from the environment, honoring a .env file in the
// working directory when one exists.
func Load() (*Config, error) {
	// Missing .env is the normal case in production.
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	switch c.Store.Backend {
	case "file", "redis":
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	if c.Auth.LoginTimeoutSeconds <= 0 || c.Auth.TwoFactorTimeoutSeconds <= 0 {
		return fmt.Errorf("auth timeouts must be positive")
	}
	return nil
}
