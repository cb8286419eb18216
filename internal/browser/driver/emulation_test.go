// internal/browser/driver/emulation_test.go
package driver

import (
	"testing"

	"github.com/playwright-community/playwright-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/wardrunner/internal/config"
)

func TestEmulationFromConfig(t *testing.T) {
	opts := OptionsFromConfig(config.BrowserConfig{
		Emulation: config.EmulationConfig{Timezone: "America/Chicago", Locale: "en-US"},
	})
	assert.Equal(t, Emulation{Timezone: "America/Chicago", Locale: "en-US"}, opts.Emulation)
}

func TestEmulationCDPTasks(t *testing.T) {
	assert.Empty(t, Emulation{}.cdpTasks(), "no overrides by default")
	assert.Len(t, Emulation{Timezone: "UTC"}.cdpTasks(), 1)
	// Locale sets both the JS locale and the Accept-Language header.
	assert.Len(t, Emulation{UserAgent: "wardrunner", Timezone: "UTC", Locale: "de-DE"}.cdpTasks(), 4)
}

func TestEmulationPlaywright(t *testing.T) {
	var o playwright.BrowserNewContextOptions
	Emulation{Timezone: "Europe/Berlin", Locale: "de-DE"}.applyPlaywright(&o)

	require.NotNil(t, o.TimezoneId)
	assert.Equal(t, "Europe/Berlin", *o.TimezoneId)
	require.NotNil(t, o.Locale)
	assert.Equal(t, "de-DE", *o.Locale)
	assert.Nil(t, o.UserAgent)
}

func TestAcceptLanguage(t *testing.T) {
	assert.Equal(t, "en-US,en;q=0.9", acceptLanguage("en-US"))
	assert.Equal(t, "fr", acceptLanguage("fr"))
}
