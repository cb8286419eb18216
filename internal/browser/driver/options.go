// internal/browser/driver/options.go
package driver

import (
	"context"
	"strings"
	"time"

	"github.com/xkilldash9x/wardrunner/internal/config"
)

const (
	defaultStartupTimeout    = 30 * time.Second
	defaultNavigationTimeout = 60 * time.Second
	defaultCommandTimeout    = 10 * time.Second
)

// Options configures how an engine launches or attaches to a browser.
type Options struct {
	Headless          bool
	IgnoreTLSErrors   bool
	Args              []string
	WindowWidth       int
	WindowHeight      int
	StartupTimeout    time.Duration
	NavigationTimeout time.Duration
	Emulation         Emulation
}

// OptionsFromConfig maps the browser section of the harness configuration.
func OptionsFromConfig(cfg config.BrowserConfig) Options {
	o := Options{
		Headless:          cfg.Headless,
		IgnoreTLSErrors:   cfg.IgnoreTLSErrors,
		Args:              cfg.Args,
		WindowWidth:       cfg.WindowWidth,
		WindowHeight:      cfg.WindowHeight,
		StartupTimeout:    cfg.StartupTimeout,
		NavigationTimeout: cfg.NavigationTimeout,
		Emulation:         emulationFromConfig(cfg.Emulation),
	}
	return o.withDefaults()
}

func (o Options) withDefaults() Options {
	if o.StartupTimeout <= 0 {
		o.StartupTimeout = defaultStartupTimeout
	}
	if o.NavigationTimeout <= 0 {
		o.NavigationTimeout = defaultNavigationTimeout
	}
	if o.WindowWidth <= 0 || o.WindowHeight <= 0 {
		o.WindowWidth, o.WindowHeight = 1920, 1080
	}
	return o
}

// splitArg turns "--flag=value" or "flag" into a name and value. A bare flag
// yields the boolean true.
func splitArg(arg string) (string, interface{}) {
	parts := strings.SplitN(strings.TrimPrefix(arg, "--"), "=", 2)
	if len(parts) == 2 {
		return parts[0], parts[1]
	}
	return parts[0], true
}

// remaining returns the time left before ctx's deadline, or fallback when ctx
// has none. It never returns less than a millisecond.
func remaining(ctx context.Context, fallback time.Duration) time.Duration {
	d := fallback
	if deadline, ok := ctx.Deadline(); ok {
		d = time.Until(deadline)
	}
	if d < time.Millisecond {
		d = time.Millisecond
	}
	return d
}
