// internal/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/xkilldash9x/wardrunner/api/schemas"
)

// Config holds the entire harness configuration. It is built once at startup
// and handed to constructors by value; nothing in the harness mutates it after
// NewConfigFromViper returns.
type Config struct {
	Logger       LoggerConfig                 `mapstructure:"logger" yaml:"logger"`
	Browser      BrowserConfig                `mapstructure:"browser" yaml:"browser"`
	Wait         WaitConfig                   `mapstructure:"wait" yaml:"wait"`
	Retry        RetryConfig                  `mapstructure:"retry" yaml:"retry"`
	Login        LoginConfig                  `mapstructure:"login" yaml:"login"`
	Report       ReportConfig                 `mapstructure:"report" yaml:"report"`
	Environment  string                       `mapstructure:"environment" yaml:"environment"`
	Environments map[string]EnvironmentConfig `mapstructure:"environments" yaml:"environments"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color settings for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// Browser engines understood by the session backends.
const (
	EngineChromedp   = "chromedp"
	EnginePlaywright = "playwright"
)

// BrowserConfig controls how browser sessions are launched or attached.
type BrowserConfig struct {
	// Engine selects the automation library: "chromedp" or "playwright".
	Engine string `mapstructure:"engine" yaml:"engine"`
	// Backend selects local, remote or hybrid session construction.
	Backend           schemas.BackendKind `mapstructure:"backend" yaml:"backend"`
	Headless          bool                `mapstructure:"headless" yaml:"headless"`
	IgnoreTLSErrors   bool                `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	RemoteURL         string              `mapstructure:"remote_url" yaml:"remote_url"`
	Args              []string            `mapstructure:"args" yaml:"args"`
	WindowWidth       int                 `mapstructure:"window_width" yaml:"window_width"`
	WindowHeight      int                 `mapstructure:"window_height" yaml:"window_height"`
	StartupTimeout    time.Duration       `mapstructure:"startup_timeout" yaml:"startup_timeout"`
	NavigationTimeout time.Duration       `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	QuitTimeout       time.Duration       `mapstructure:"quit_timeout" yaml:"quit_timeout"`
	Emulation         EmulationConfig     `mapstructure:"emulation" yaml:"emulation"`
}

// EmulationConfig pins timezone, locale and user agent for every tab.
type EmulationConfig struct {
	UserAgent string `mapstructure:"user_agent" yaml:"user_agent"`
	Timezone  string `mapstructure:"timezone" yaml:"timezone"`
	Locale    string `mapstructure:"locale" yaml:"locale"`
}

// WaitConfig tunes the polling waits used before and between interactions.
type WaitConfig struct {
	PollInterval        time.Duration     `mapstructure:"poll_interval" yaml:"poll_interval"`
	SettleDelay         time.Duration     `mapstructure:"settle_delay" yaml:"settle_delay"`
	ProbeTimeout        time.Duration     `mapstructure:"probe_timeout" yaml:"probe_timeout"`
	LoaderTimeout       time.Duration     `mapstructure:"loader_timeout" yaml:"loader_timeout"`
	DocumentTimeout     time.Duration     `mapstructure:"document_timeout" yaml:"document_timeout"`
	PreconditionTimeout time.Duration     `mapstructure:"precondition_timeout" yaml:"precondition_timeout"`
	Loaders             []schemas.Locator `mapstructure:"loaders" yaml:"loaders"`
}

// RetryConfig sets the default retry policy for element operations.
type RetryConfig struct {
	MaxAttempts   int           `mapstructure:"max_attempts" yaml:"max_attempts"`
	SettleDelay   time.Duration `mapstructure:"settle_delay" yaml:"settle_delay"`
	AllowFallback bool          `mapstructure:"allow_fallback" yaml:"allow_fallback"`
}

// LoginConfig describes the authentication form and how success is verified.
type LoginConfig struct {
	MaxRetries      int               `mapstructure:"max_retries" yaml:"max_retries"`
	VerifyTimeout   time.Duration     `mapstructure:"verify_timeout" yaml:"verify_timeout"`
	Username        schemas.Locator   `mapstructure:"username" yaml:"username"`
	Password        schemas.Locator   `mapstructure:"password" yaml:"password"`
	Submit          schemas.Locator   `mapstructure:"submit" yaml:"submit"`
	SuccessLocators []schemas.Locator `mapstructure:"success_locators" yaml:"success_locators"`
	// CredentialsFile optionally points at a YAML file of per-environment,
	// per-role credentials. A leading "~" is expanded.
	CredentialsFile string `mapstructure:"credentials_file" yaml:"credentials_file"`
}

// ReportConfig controls where failure attachments are written.
type ReportConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Dir     string `mapstructure:"dir" yaml:"dir"`
}

// EnvironmentConfig is one deployment of the application under test.
type EnvironmentConfig struct {
	BaseURL   string                        `mapstructure:"base_url" yaml:"base_url"`
	LoginPath string                        `mapstructure:"login_path" yaml:"login_path"`
	Roles     map[string]schemas.Credential `mapstructure:"roles" yaml:"roles"`
}

// LoginURL joins the base URL and the login path.
func (e EnvironmentConfig) LoginURL() string {
	return strings.TrimRight(e.BaseURL, "/") + "/" + strings.TrimLeft(e.LoginPath, "/")
}

// ActiveEnvironment returns the environment selected by Environment.
func (c Config) ActiveEnvironment() (EnvironmentConfig, error) {
	env, ok := c.Environments[strings.ToLower(c.Environment)]
	if !ok {
		return EnvironmentConfig{}, fmt.Errorf("environment %q is not configured", c.Environment)
	}
	return env, nil
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// Defaults are static; a failure here is a programming error.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "wardrunner")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")

	// -- Browser --
	v.SetDefault("browser.engine", EngineChromedp)
	v.SetDefault("browser.backend", string(schemas.BackendLocal))
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.ignore_tls_errors", false)
	v.SetDefault("browser.window_width", 1920)
	v.SetDefault("browser.window_height", 1080)
	v.SetDefault("browser.startup_timeout", "30s")
	v.SetDefault("browser.navigation_timeout", "60s")
	v.SetDefault("browser.quit_timeout", "10s")

	// -- Wait --
	v.SetDefault("wait.poll_interval", "200ms")
	v.SetDefault("wait.settle_delay", "500ms")
	v.SetDefault("wait.probe_timeout", "2s")
	v.SetDefault("wait.loader_timeout", "30s")
	v.SetDefault("wait.document_timeout", "30s")
	v.SetDefault("wait.precondition_timeout", "10s")

	// -- Retry --
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.settle_delay", "1s")
	v.SetDefault("retry.allow_fallback", true)

	// -- Login --
	v.SetDefault("login.max_retries", 3)
	v.SetDefault("login.verify_timeout", "20s")
	v.SetDefault("login.username", map[string]string{"strategy": "css", "query": "input[name='username']"})
	v.SetDefault("login.password", map[string]string{"strategy": "css", "query": "input[name='password']"})
	v.SetDefault("login.submit", map[string]string{"strategy": "css", "query": "button[type='submit']"})

	// -- Report --
	v.SetDefault("report.enabled", true)
	v.SetDefault("report.dir", "reports")

	// -- Environment --
	v.SetDefault("environment", "qa")
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// The grid URL is commonly injected by CI rather than committed.
	_ = v.BindEnv("browser.remote_url", "WARDRUNNER_REMOTE_URL")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if err := c.Browser.Validate(); err != nil {
		return fmt.Errorf("browser configuration invalid: %w", err)
	}
	if err := c.Wait.Validate(); err != nil {
		return fmt.Errorf("wait configuration invalid: %w", err)
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.max_attempts must be at least 1")
	}
	if c.Retry.SettleDelay < 0 {
		return fmt.Errorf("retry.settle_delay must not be negative")
	}
	if err := c.Login.Validate(); err != nil {
		return fmt.Errorf("login configuration invalid: %w", err)
	}
	if c.Report.Enabled && c.Report.Dir == "" {
		return fmt.Errorf("report.dir is required when reporting is enabled")
	}
	for name, env := range c.Environments {
		if env.BaseURL == "" {
			return fmt.Errorf("environments.%s.base_url is required", name)
		}
		for role := range env.Roles {
			if _, err := schemas.ParseRole(role); err != nil {
				return fmt.Errorf("environments.%s.roles: %w", name, err)
			}
		}
	}
	return nil
}

// Validate checks the browser settings.
func (b *BrowserConfig) Validate() error {
	switch b.Engine {
	case EngineChromedp, EnginePlaywright:
	default:
		return fmt.Errorf("engine must be %q or %q, got %q", EngineChromedp, EnginePlaywright, b.Engine)
	}
	kind, err := schemas.ParseBackendKind(string(b.Backend))
	if err != nil {
		return err
	}
	if kind != schemas.BackendLocal && b.RemoteURL == "" {
		return fmt.Errorf("remote_url is required for the %q backend", kind)
	}
	if b.StartupTimeout <= 0 {
		return fmt.Errorf("startup_timeout must be a positive duration")
	}
	return nil
}

// Validate checks the wait settings.
func (w *WaitConfig) Validate() error {
	if w.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be a positive duration")
	}
	if w.ProbeTimeout <= 0 {
		return fmt.Errorf("probe_timeout must be a positive duration")
	}
	for _, l := range w.Loaders {
		if err := l.Validate(); err != nil {
			return fmt.Errorf("loaders: %w", err)
		}
	}
	return nil
}

// Validate checks the login form description.
func (l *LoginConfig) Validate() error {
	if l.MaxRetries < 1 {
		return fmt.Errorf("max_retries must be at least 1")
	}
	for name, loc := range map[string]schemas.Locator{"username": l.Username, "password": l.Password, "submit": l.Submit} {
		if err := loc.Validate(); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	for _, loc := range l.SuccessLocators {
		if err := loc.Validate(); err != nil {
			return fmt.Errorf("success_locators: %w", err)
		}
	}
	return nil
}
