package locators

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_ChainsPopulated(t *testing.T) {
	set := Default()

	assert.NotEmpty(t, set.TwoFactorPrompt)
	assert.NotEmpty(t, set.TwoFactorInput)
	assert.NotEmpty(t, set.DashboardMarker)
	assert.NotEmpty(t, set.PickupInput)
	assert.NotEmpty(t, set.DropoffInput)
	assert.NotEmpty(t, set.RequestButton)
	assert.NotEmpty(t, set.DropoffStructural)

	// The most specific selector leads each chain.
	assert.Equal(t, `input[type="tel"]`, set.TwoFactorInput[0])
	assert.Equal(t, `button[data-testid="request_trip_button"]`, set.RequestButton[0])
}

func TestLoad_EmptyPathReturnsDefaults(t *testing.T) {
	set, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), set)
}

func TestLoad_OverlaysChains(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "selectors.yaml")
	content := `
pickup_input:
  - "#custom-pickup"
request_button:
  - "button.request"
  - "button#go"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	set, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, Chain{"#custom-pickup"}, set.PickupInput)
	assert.Equal(t, Chain{"button.request", "button#go"}, set.RequestButton)

	// Chains absent from the file keep their defaults.
	assert.Equal(t, Default().DropoffInput, set.DropoffInput)
	assert.Equal(t, Default().TwoFactorPrompt, set.TwoFactorPrompt)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoad_MalformedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("pickup_input: {not: [a, chain"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}
