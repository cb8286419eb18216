// internal/browser/driver/emulation.go
package driver

import (
	"strings"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/playwright-community/playwright-go"

	"github.com/xkilldash9x/wardrunner/internal/config"
)

// Emulation pins the page environment so rendered dates, numbers and
// language negotiation do not depend on the host running the suite. Empty
// fields leave the browser default in place.
type Emulation struct {
	UserAgent string
	Timezone  string
	Locale    string
}

func emulationFromConfig(cfg config.EmulationConfig) Emulation {
	return Emulation{UserAgent: cfg.UserAgent, Timezone: cfg.Timezone, Locale: cfg.Locale}
}

// cdpTasks returns the overrides to run on every new chromedp tab.
func (e Emulation) cdpTasks() chromedp.Tasks {
	var tasks chromedp.Tasks
	if e.UserAgent != "" {
		tasks = append(tasks, emulation.SetUserAgentOverride(e.UserAgent))
	}
	if e.Timezone != "" {
		tasks = append(tasks, emulation.SetTimezoneOverride(e.Timezone))
	}
	if e.Locale != "" {
		tasks = append(tasks,
			emulation.SetLocaleOverride().WithLocale(e.Locale),
			network.SetExtraHTTPHeaders(network.Headers{"Accept-Language": acceptLanguage(e.Locale)}),
		)
	}
	return tasks
}

// applyPlaywright sets the same overrides on a browser context.
func (e Emulation) applyPlaywright(o *playwright.BrowserNewContextOptions) {
	if e.UserAgent != "" {
		o.UserAgent = playwright.String(e.UserAgent)
	}
	if e.Timezone != "" {
		o.TimezoneId = playwright.String(e.Timezone)
	}
	if e.Locale != "" {
		o.Locale = playwright.String(e.Locale)
	}
}

// acceptLanguage expands "en-US" to "en-US,en;q=0.9".
func acceptLanguage(locale string) string {
	lang, _, found := strings.Cut(locale, "-")
	if !found || lang == "" {
		return locale
	}
	return locale + "," + lang + ";q=0.9"
}
