package config

import "time"

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }
func millis(n int) time.Duration  { return time.Duration(n) * time.Millisecond }

// MinBookingInterval returns the per-uid webhook rate limit window.
func (c *Config) MinBookingInterval() time.Duration {
	return seconds(c.MinBookingIntervalSeconds)
}

// LoginTimeout returns the overall login flow budget.
func (a AuthConfig) LoginTimeout() time.Duration { return seconds(a.LoginTimeoutSeconds) }

// TwoFactorTimeout returns the 2FA code wait budget.
func (a AuthConfig) TwoFactorTimeout() time.Duration { return seconds(a.TwoFactorTimeoutSeconds) }

// PollInterval returns the login detection loop granularity.
func (a AuthConfig) PollInterval() time.Duration { return millis(a.PollIntervalMillis) }

// CodePollInterval returns the 2FA code wait granularity.
func (a AuthConfig) CodePollInterval() time.Duration { return millis(a.CodePollIntervalMillis) }

// VerifySettle returns the post-verification settle delay.
func (a AuthConfig) VerifySettle() time.Duration { return millis(a.VerifySettleMillis) }

// Deadline returns the overall per-call booking budget.
func (b BookingConfig) Deadline() time.Duration { return seconds(b.DeadlineSeconds) }

// NavigationTimeout bounds individual page navigations.
func (b BookingConfig) NavigationTimeout() time.Duration { return millis(b.NavigationTimeoutMillis) }

func (b BookingConfig) PickupWait() time.Duration       { return millis(b.PickupWaitMillis) }
func (b BookingConfig) PageSettle() time.Duration       { return millis(b.PageSettleMillis) }
func (b BookingConfig) FieldClickSettle() time.Duration { return millis(b.FieldClickSettleMillis) }
func (b BookingConfig) SuggestSettle() time.Duration    { return millis(b.SuggestSettleMillis) }
func (b BookingConfig) SuggestWait() time.Duration      { return millis(b.SuggestWaitMillis) }
func (b BookingConfig) ChallengeSettle() time.Duration  { return millis(b.ChallengeSettleMillis) }
func (b BookingConfig) OptionsSettle() time.Duration    { return millis(b.OptionsSettleMillis) }
func (b BookingConfig) OptionSelectSettle() time.Duration {
	return millis(b.OptionSelectSettleMillis)
}
func (b BookingConfig) ConfirmSettle() time.Duration { return millis(b.ConfirmSettleMillis) }
func (b BookingConfig) RequestSettle() time.Duration { return millis(b.RequestSettleMillis) }
func (b BookingConfig) BlankPageWait() time.Duration { return millis(b.BlankPageWaitMillis) }

// TTL returns the maximum pooled browser context age.
func (p PoolConfig) TTL() time.Duration { return seconds(p.TTLSeconds) }

// EvictInterval returns the expired-entry sweep period.
func (p PoolConfig) EvictInterval() time.Duration { return seconds(p.EvictIntervalSeconds) }
