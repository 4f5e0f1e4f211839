// Package locators holds the ordered fallback-locator chains for every UI
// interaction point the automation touches. The target site's markup is not
// contractually stable, so each interaction carries several candidate
// selectors tried in priority order; the built-in chains can be overridden
// from a YAML file when selectors drift.
package locators

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Chain is an ordered list of candidate selectors. Earlier entries are more
// specific; later entries are structural last resorts.
type Chain []string

// Set carries every chain the auth and booking flows probe.
type Set struct {
	// Login flow.
	TwoFactorPrompt Chain `yaml:"two_factor_prompt"`
	TwoFactorInput  Chain `yaml:"two_factor_input"`
	VerifyButton    Chain `yaml:"verify_button"`
	DashboardMarker Chain `yaml:"dashboard_marker"`
	RememberDevice  Chain `yaml:"remember_device"`

	// Booking flow.
	SecurityChallenge Chain `yaml:"security_challenge"`
	PickupWait        Chain `yaml:"pickup_wait"`
	PickupInput       Chain `yaml:"pickup_input"`
	DropoffInput      Chain `yaml:"dropoff_input"`
	DropoffStructural string `yaml:"dropoff_structural"`
	SuggestionList    Chain `yaml:"suggestion_list"`
	SuggestionItem    Chain `yaml:"suggestion_item"`
	SeePrices         Chain `yaml:"see_prices"`
	CookieConsent     Chain `yaml:"cookie_consent"`
	RideOption        Chain `yaml:"ride_option"`
	ConfirmRequest    Chain `yaml:"confirm_request"`
	RequestButton     Chain `yaml:"request_button"`
	DriverName        Chain `yaml:"driver_name"`
	ETA               Chain `yaml:"eta"`
}

// Default returns the built-in chains, tuned against the provider's current
// markup.
func Default() *Set {
	return &Set{
		TwoFactorPrompt: Chain{
			`input[type="tel"]`,
			`input[placeholder*="code"]`,
			`input[placeholder*="verification"]`,
			`input[placeholder*="Code"]`,
			`button:has-text("Verify")`,
			`text="Enter the code"`,
		},
		TwoFactorInput: Chain{
			`input[type="tel"]`,
			`input[placeholder*="code"]`,
			`input[placeholder*="verification"]`,
		},
		VerifyButton: Chain{
			`button:has-text("Verify")`,
			`button:has-text("Submit")`,
			`button:has-text("Confirm")`,
		},
		DashboardMarker: Chain{
			`text="Where to?"`,
			`text="Request a ride"`,
			`button:has-text("Request")`,
		},
		RememberDevice: Chain{
			`input[type="checkbox"]`,
			`text="Remember this device"`,
			`text="Stay signed in"`,
		},
		SecurityChallenge: Chain{
			`text="Verify it's you"`,
			`text="Verify your identity"`,
			`text="Unusual activity"`,
			`button:has-text("Verify")`,
		},
		PickupWait: Chain{
			`input[placeholder*="Where"]`,
			`input[type="text"]`,
		},
		PickupInput: Chain{
			`input[placeholder*="Where"]`,
			`input[placeholder*="where"]`,
			`input[placeholder*="pickup"]`,
			`input[placeholder*="Pickup"]`,
			`input[data-testid*="pickup"]`,
			`input[type="text"]`,
		},
		DropoffInput: Chain{
			`input[data-testid*="destination.drop"]`,
			`input[data-testid*="destination"]`,
		},
		// Structural last resort: the second element matching this
		// selector is taken as the dropoff field.
		DropoffStructural: `input[role="combobox"]`,
		SuggestionList: Chain{
			`[role="option"]`,
		},
		SuggestionItem: Chain{
			`[data-tracking-name="list-item"]`,
		},
		SeePrices: Chain{
			`a[aria-label="See prices"]`,
			`button:has-text("See prices")`,
			`a:has-text("See prices")`,
			`[data-testid="button"]:has-text("See prices")`,
		},
		CookieConsent: Chain{
			`button:has-text("Got it")`,
			`button:has-text("Opt out")`,
			`[aria-label*="cookie"]`,
		},
		RideOption: Chain{
			`[data-testid*="ride_option"]`,
			`[role="button"]:has-text("UberX")`,
			`div[role="button"]:has-text("Uber")`,
			`[aria-label*="UberX"]`,
			`li:has-text("UberX")`,
			`[data-testid*="product"]`,
		},
		ConfirmRequest: Chain{
			`button:has-text("Confirm and request")`,
		},
		RequestButton: Chain{
			`button[data-testid="request_trip_button"]`,
			`button[aria-label*="Request"]`,
			`button:has-text("Request")`,
		},
		DriverName: Chain{
			`text=/Driver.*/`,
			`text=/Your driver/`,
			`[data-testid="driver-name"]`,
		},
		ETA: Chain{
			`text=/ETA.*/`,
			`text=/Arriving/`,
			`[data-testid="eta"]`,
		},
	}
}

// Load returns the default set overlaid with any chains present in the YAML
// file at path. An empty path returns the defaults unchanged; chains absent
// from the file keep their built-in values.
func Load(path string) (*Set, error) {
	set := Default()
	if path == "" {
		return set, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read selectors file: %w", err)
	}

	override := &Set{}
	if err := yaml.Unmarshal(data, override); err != nil {
		return nil, fmt.Errorf("failed to parse selectors file: %w", err)
	}

	set.merge(override)
	return set, nil
}

func (s *Set) merge(o *Set) {
	chains := []struct {
		dst *Chain
		src Chain
	}{
		{&s.TwoFactorPrompt, o.TwoFactorPrompt},
		{&s.TwoFactorInput, o.TwoFactorInput},
		{&s.VerifyButton, o.VerifyButton},
		{&s.DashboardMarker, o.DashboardMarker},
		{&s.RememberDevice, o.RememberDevice},
		{&s.SecurityChallenge, o.SecurityChallenge},
		{&s.PickupWait, o.PickupWait},
		{&s.PickupInput, o.PickupInput},
		{&s.DropoffInput, o.DropoffInput},
		{&s.SuggestionList, o.SuggestionList},
		{&s.SuggestionItem, o.SuggestionItem},
		{&s.SeePrices, o.SeePrices},
		{&s.CookieConsent, o.CookieConsent},
		{&s.RideOption, o.RideOption},
		{&s.ConfirmRequest, o.ConfirmRequest},
		{&s.RequestButton, o.RequestButton},
		{&s.DriverName, o.DriverName},
		{&s.ETA, o.ETA},
	}
	for _, c := range chains {
		if len(c.src) > 0 {
			*c.dst = c.src
		}
	}
	if o.DropoffStructural != "" {
		s.DropoffStructural = o.DropoffStructural
	}
}
