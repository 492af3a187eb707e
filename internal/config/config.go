// File: internal/config/config.go
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Scan strategies accepted by scanner.strategy.
const (
	ScanStrategyNarrowThenBroad = "narrow_then_broad"
	ScanStrategyBroadOnly       = "broad_only"
)

// MaxScanElements is the hard ceiling on broad-pass enumeration.
const MaxScanElements = 200

// DefaultUserAgent is presented by every browsing context the engine opens.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) Chrome/120.0.0.0 Safari/537.36"

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Browser() BrowserConfig
	Scanner() ScannerConfig
	Action() ActionConfig
	Navigation() NavigationConfig
	Server() ServerConfig
	Observability() ObservabilityConfig

	// Setters used by CLI flag overrides.
	SetBrowserHeadless(bool)
	SetScannerThreshold(float64)
	SetScannerStrategy(string)
	SetServerListenAddr(string)
}

// Config holds the entire application configuration.
type Config struct {
	LoggerCfg        LoggerConfig        `mapstructure:"logger" yaml:"logger"`
	BrowserCfg       BrowserConfig       `mapstructure:"browser" yaml:"browser"`
	ScannerCfg       ScannerConfig       `mapstructure:"scanner" yaml:"scanner"`
	ActionCfg        ActionConfig        `mapstructure:"action" yaml:"action"`
	NavigationCfg    NavigationConfig    `mapstructure:"navigation" yaml:"navigation"`
	ServerCfg        ServerConfig        `mapstructure:"server" yaml:"server"`
	ObservabilityCfg ObservabilityConfig `mapstructure:"observability" yaml:"observability"`
}

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig               { return c.LoggerCfg }
func (c *Config) Browser() BrowserConfig             { return c.BrowserCfg }
func (c *Config) Scanner() ScannerConfig             { return c.ScannerCfg }
func (c *Config) Action() ActionConfig               { return c.ActionCfg }
func (c *Config) Navigation() NavigationConfig       { return c.NavigationCfg }
func (c *Config) Server() ServerConfig               { return c.ServerCfg }
func (c *Config) Observability() ObservabilityConfig { return c.ObservabilityCfg }

// --- Interface Method Implementations (Setters) ---

func (c *Config) SetBrowserHeadless(b bool)     { c.BrowserCfg.Headless = b }
func (c *Config) SetScannerThreshold(t float64) { c.ScannerCfg.Threshold = t }
func (c *Config) SetScannerStrategy(s string)   { c.ScannerCfg.Strategy = s }
func (c *Config) SetServerListenAddr(a string)  { c.ServerCfg.ListenAddr = a }

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

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// BrowserConfig holds settings for the single headless browser session.
type BrowserConfig struct {
	Headless        bool          `mapstructure:"headless" yaml:"headless"`
	IgnoreTLSErrors bool          `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	UserAgent       string        `mapstructure:"user_agent" yaml:"user_agent"`
	// ExecPath overrides Chrome discovery. Empty means chromedp's lookup.
	ExecPath        string        `mapstructure:"exec_path" yaml:"exec_path"`
	Args            []string      `mapstructure:"args" yaml:"args"`
	LaunchTimeout   time.Duration `mapstructure:"launch_timeout" yaml:"launch_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	// IdleQuietPeriod is how long the network must stay silent to count as idle.
	IdleQuietPeriod time.Duration `mapstructure:"idle_quiet_period" yaml:"idle_quiet_period"`
}

// ScannerConfig tunes element resolution.
type ScannerConfig struct {
	Strategy          string  `mapstructure:"strategy" yaml:"strategy"`
	Threshold         float64 `mapstructure:"threshold" yaml:"threshold"`
	MaxElements       int     `mapstructure:"max_elements" yaml:"max_elements"`
	ExtendedSelectors bool    `mapstructure:"extended_selectors" yaml:"extended_selectors"`
}

// ActionConfig bounds the waits around a single action.
type ActionConfig struct {
	VisibilityTimeout  time.Duration `mapstructure:"visibility_timeout" yaml:"visibility_timeout"`
	NetworkIdleTimeout time.Duration `mapstructure:"network_idle_timeout" yaml:"network_idle_timeout"`
	SettleDelay        time.Duration `mapstructure:"settle_delay" yaml:"settle_delay"`
}

// NavigationConfig controls page loads and the abort retry.
type NavigationConfig struct {
	Timeout       time.Duration `mapstructure:"timeout" yaml:"timeout"`
	RetryBackoff  time.Duration `mapstructure:"retry_backoff" yaml:"retry_backoff"`
	ReloadTimeout time.Duration `mapstructure:"reload_timeout" yaml:"reload_timeout"`
}

// ServerConfig configures the HTTP tool server.
type ServerConfig struct {
	ListenAddr     string        `mapstructure:"listen_addr" yaml:"listen_addr"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
	RateLimit      float64       `mapstructure:"rate_limit" yaml:"rate_limit"`
	RateBurst      int           `mapstructure:"rate_burst" yaml:"rate_burst"`
}

// ObservabilityConfig toggles metrics and tracing.
type ObservabilityConfig struct {
	MetricsEnabled bool `mapstructure:"metrics_enabled" yaml:"metrics_enabled"`
	TracingEnabled bool `mapstructure:"tracing_enabled" yaml:"tracing_enabled"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
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
	v.SetDefault("logger.service_name", "domscout")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.ignore_tls_errors", true)
	v.SetDefault("browser.user_agent", DefaultUserAgent)
	v.SetDefault("browser.exec_path", "")
	v.SetDefault("browser.launch_timeout", "30s")
	v.SetDefault("browser.shutdown_timeout", "10s")
	v.SetDefault("browser.idle_quiet_period", "500ms")

	// -- Scanner --
	v.SetDefault("scanner.strategy", ScanStrategyNarrowThenBroad)
	v.SetDefault("scanner.threshold", 50.0)
	v.SetDefault("scanner.max_elements", MaxScanElements)
	v.SetDefault("scanner.extended_selectors", false)

	// -- Action --
	v.SetDefault("action.visibility_timeout", "5s")
	v.SetDefault("action.network_idle_timeout", "5s")
	v.SetDefault("action.settle_delay", "1s")

	// -- Navigation --
	v.SetDefault("navigation.timeout", "30s")
	v.SetDefault("navigation.retry_backoff", "1s")
	v.SetDefault("navigation.reload_timeout", "20s")

	// -- Server --
	v.SetDefault("server.listen_addr", "127.0.0.1:8089")
	v.SetDefault("server.request_timeout", "120s")
	v.SetDefault("server.rate_limit", 2.0)
	v.SetDefault("server.rate_burst", 4)

	// -- Observability --
	v.SetDefault("observability.metrics_enabled", true)
	v.SetDefault("observability.tracing_enabled", false)
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	v.BindEnv("browser.exec_path", "DOMSCOUT_CHROME_PATH")

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
	if c.BrowserCfg.LaunchTimeout <= 0 {
		return fmt.Errorf("browser.launch_timeout must be a positive duration")
	}
	if c.BrowserCfg.IdleQuietPeriod <= 0 {
		return fmt.Errorf("browser.idle_quiet_period must be a positive duration")
	}
	if err := c.ScannerCfg.Validate(); err != nil {
		return fmt.Errorf("scanner configuration invalid: %w", err)
	}
	if err := c.ActionCfg.Validate(); err != nil {
		return fmt.Errorf("action configuration invalid: %w", err)
	}
	if c.NavigationCfg.Timeout <= 0 || c.NavigationCfg.ReloadTimeout <= 0 {
		return fmt.Errorf("navigation.timeout and navigation.reload_timeout must be positive durations")
	}
	if c.NavigationCfg.RetryBackoff < 0 {
		return fmt.Errorf("navigation.retry_backoff cannot be negative")
	}
	if c.ServerCfg.RateLimit <= 0 || c.ServerCfg.RateBurst <= 0 {
		return fmt.Errorf("server.rate_limit and server.rate_burst must be positive")
	}
	if c.ServerCfg.RequestTimeout <= 0 {
		return fmt.Errorf("server.request_timeout must be a positive duration")
	}
	return nil
}

// Validate checks the scanner settings.
func (s *ScannerConfig) Validate() error {
	switch s.Strategy {
	case ScanStrategyNarrowThenBroad, ScanStrategyBroadOnly:
	default:
		return fmt.Errorf("strategy must be %q or %q, got %q", ScanStrategyNarrowThenBroad, ScanStrategyBroadOnly, s.Strategy)
	}
	if s.Threshold < 0 || s.Threshold > 100 {
		return fmt.Errorf("threshold must be between 0 and 100")
	}
	if s.MaxElements <= 0 || s.MaxElements > MaxScanElements {
		return fmt.Errorf("max_elements must be between 1 and %d", MaxScanElements)
	}
	return nil
}

// Validate checks the action wait bounds.
func (a *ActionConfig) Validate() error {
	if a.VisibilityTimeout <= 0 || a.NetworkIdleTimeout <= 0 {
		return fmt.Errorf("visibility_timeout and network_idle_timeout must be positive durations")
	}
	if a.SettleDelay < 0 {
		return fmt.Errorf("settle_delay cannot be negative")
	}
	return nil
}
