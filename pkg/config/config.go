package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable read by LoadFromEnv.
const EnvPrefix = "IGHARVEST_"

// Config holds all configuration options for igharvest
type Config struct {
	Instagram     InstagramConfig    `yaml:"instagram" json:"instagram"`
	Browser       BrowserConfig      `yaml:"browser" json:"browser"`
	Pacing        PacingConfig       `yaml:"pacing" json:"pacing"`
	Session       SessionConfig      `yaml:"session" json:"session"`
	Scrape        ScrapeConfig       `yaml:"scrape" json:"scrape"`
	Output        OutputConfig       `yaml:"output" json:"output"`
	Notifications NotificationConfig `yaml:"notifications" json:"notifications"`
	Logging       LoggingConfig      `yaml:"logging" json:"logging"`
	TUI           TUIConfig          `yaml:"tui" json:"tui"`
}

// InstagramConfig configures the authenticated HTTP client
type InstagramConfig struct {
	BaseURL   string        `yaml:"base_url" json:"base_url"`
	UserAgent string        `yaml:"user_agent" json:"user_agent"`
	AppID     string        `yaml:"app_id" json:"app_id"`
	Timeout   time.Duration `yaml:"timeout" json:"timeout"`
	// PageSize is the number of posts requested per timeline page.
	PageSize int `yaml:"page_size" json:"page_size"`
}

// BrowserConfig configures the headless login
type BrowserConfig struct {
	Headless bool          `yaml:"headless" json:"headless"`
	LoginURL string        `yaml:"login_url" json:"login_url"`
	Timeout  time.Duration `yaml:"timeout" json:"timeout"`
	// SettleDelay is waited after the login page loads.
	SettleDelay time.Duration `yaml:"settle_delay" json:"settle_delay"`
	// SubmitDelay is waited after the network goes idle post-submit.
	SubmitDelay time.Duration `yaml:"submit_delay" json:"submit_delay"`
	SlowMo      float64       `yaml:"slow_mo" json:"slow_mo"`
	Locale      string        `yaml:"locale" json:"locale"`
}

// RangeConfig is an inclusive [min, max] delay range.
type RangeConfig struct {
	Min time.Duration `yaml:"min" json:"min"`
	Max time.Duration `yaml:"max" json:"max"`
}

// PacingConfig holds request pacing and retry configuration
type PacingConfig struct {
	// Default applies to any request kind without an entry in Ranges.
	Default RangeConfig            `yaml:"default" json:"default"`
	Ranges  map[string]RangeConfig `yaml:"ranges" json:"ranges"`
	// Floor is the minimum gap between two requests of the same kind.
	Floor time.Duration `yaml:"floor" json:"floor"`

	Cooldown     time.Duration `yaml:"cooldown" json:"cooldown"`
	ItemCooldown time.Duration `yaml:"item_cooldown" json:"item_cooldown"`

	ProgressEvery int           `yaml:"progress_every" json:"progress_every"`
	PauseEvery    int           `yaml:"pause_every" json:"pause_every"`
	PauseDuration time.Duration `yaml:"pause_duration" json:"pause_duration"`

	LoginAttempts int `yaml:"login_attempts" json:"login_attempts"`
	FetchAttempts int `yaml:"fetch_attempts" json:"fetch_attempts"`

	// Adaptive grows the retry cooldown exponentially up to MaxCooldown.
	Adaptive    bool          `yaml:"adaptive" json:"adaptive"`
	MaxCooldown time.Duration `yaml:"max_cooldown" json:"max_cooldown"`
}

// SessionConfig locates the login artifacts
type SessionConfig struct {
	Username   string `yaml:"username" json:"username"`
	CookieFile string `yaml:"cookie_file" json:"cookie_file"`
	// SessionFile defaults to session-<username> when empty.
	SessionFile string `yaml:"session_file" json:"session_file"`
}

// ScrapeConfig selects what the scrape step collects
type ScrapeConfig struct {
	Targets    []string `yaml:"targets" json:"targets"`
	MaxPosts   int      `yaml:"max_posts" json:"max_posts"`
	ProbePosts int      `yaml:"probe_posts" json:"probe_posts"`
	Resume     bool     `yaml:"resume" json:"resume"`
	// FetchDetails requests every post's own page instead of using the
	// timeline node alone.
	FetchDetails bool `yaml:"fetch_details" json:"fetch_details"`
}

// OutputConfig holds output directory configuration
type OutputConfig struct {
	BaseDirectory  string `yaml:"base_directory" json:"base_directory"`
	ProbeDirectory string `yaml:"probe_directory" json:"probe_directory"`
	WriteJSON      bool   `yaml:"write_json" json:"write_json"`
	WriteCSV       bool   `yaml:"write_csv" json:"write_csv"`
}

// NotificationConfig holds notification preferences
type NotificationConfig struct {
	Enabled          bool   `yaml:"enabled" json:"enabled"`
	OnComplete       bool   `yaml:"on_complete" json:"on_complete"`
	OnError          bool   `yaml:"on_error" json:"on_error"`
	NotificationType string `yaml:"notification_type" json:"notification_type"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level      string `yaml:"level" json:"level"`
	File       string `yaml:"file" json:"file"`
	MaxSize    int    `yaml:"max_size" json:"max_size"`
	MaxBackups int    `yaml:"max_backups" json:"max_backups"`
	MaxAge     int    `yaml:"max_age" json:"max_age"`
	Compress   bool   `yaml:"compress" json:"compress"`
}

// TUIConfig toggles the interactive dashboard
type TUIConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
}

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Instagram: InstagramConfig{
			BaseURL:   "https://www.instagram.com",
			UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
			AppID:     "936619743392459",
			Timeout:   30 * time.Second,
			PageSize:  12,
		},
		Browser: BrowserConfig{
			Headless:    true,
			LoginURL:    "https://www.instagram.com/accounts/login/",
			Timeout:     60 * time.Second,
			SettleDelay: 2 * time.Second,
			SubmitDelay: 5 * time.Second,
			Locale:      "en-US",
		},
		Pacing: PacingConfig{
			Default: RangeConfig{Min: 8 * time.Second, Max: 15 * time.Second},
			Ranges: map[string]RangeConfig{
				"post_detail": {Min: 3 * time.Second, Max: 5 * time.Second},
				"account":     {Min: 15 * time.Second, Max: 30 * time.Second},
				"login":       {Min: 0, Max: 0},
			},
			Floor:         3 * time.Second,
			Cooldown:      60 * time.Second,
			ItemCooldown:  30 * time.Second,
			ProgressEvery: 25,
			PauseEvery:    100,
			PauseDuration: 60 * time.Second,
			LoginAttempts: 3,
			FetchAttempts: 3,
			Adaptive:      false,
			MaxCooldown:   10 * time.Minute,
		},
		Session: SessionConfig{
			CookieFile: "playwright_ig_cookies.json",
		},
		Scrape: ScrapeConfig{
			MaxPosts:   0,
			ProbePosts: 50,
		},
		Output: OutputConfig{
			BaseDirectory:  "./scraped_data",
			ProbeDirectory: "probe",
			WriteJSON:      true,
			WriteCSV:       true,
		},
		Notifications: NotificationConfig{
			Enabled:          false,
			OnComplete:       true,
			OnError:          true,
			NotificationType: "terminal",
		},
		Logging: LoggingConfig{
			Level:      "info",
			MaxSize:    100,
			MaxBackups: 3,
			MaxAge:     7,
		},
	}
}

// LoadFromEnv loads configuration from IGHARVEST_* environment variables
func (c *Config) LoadFromEnv() error {
	var errs []error

	if v := env("USERNAME"); v != "" {
		c.Session.Username = v
	}
	if v := env("COOKIE_FILE"); v != "" {
		c.Session.CookieFile = v
	}
	if v := env("SESSION_FILE"); v != "" {
		c.Session.SessionFile = v
	}
	if v := env("USER_AGENT"); v != "" {
		c.Instagram.UserAgent = v
	}
	if v := env("TARGETS"); v != "" {
		c.Scrape.Targets = splitList(v)
	}
	if v := env("OUTPUT_DIR"); v != "" {
		c.Output.BaseDirectory = v
	}
	if v := env("LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := env("LOG_FILE"); v != "" {
		c.Logging.File = v
	}

	parseInt := func(name string, dst *int) {
		if v := env(name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = n
		}
	}
	parseBool := func(name string, dst *bool) {
		if v := env(name); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = b
		}
	}
	parseDuration := func(name string, dst *time.Duration) {
		if v := env(name); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = d
		}
	}

	parseInt("MAX_POSTS", &c.Scrape.MaxPosts)
	parseInt("PROBE_POSTS", &c.Scrape.ProbePosts)
	parseInt("LOGIN_ATTEMPTS", &c.Pacing.LoginAttempts)
	parseInt("FETCH_ATTEMPTS", &c.Pacing.FetchAttempts)
	parseBool("FETCH_DETAILS", &c.Scrape.FetchDetails)
	parseBool("HEADLESS", &c.Browser.Headless)
	parseBool("ADAPTIVE", &c.Pacing.Adaptive)
	parseBool("NOTIFICATIONS_ENABLED", &c.Notifications.Enabled)
	parseBool("TUI", &c.TUI.Enabled)
	parseDuration("COOLDOWN", &c.Pacing.Cooldown)
	parseDuration("ITEM_COOLDOWN", &c.Pacing.ItemCooldown)
	parseDuration("FLOOR", &c.Pacing.Floor)

	return errors.Join(errs...)
}

func env(name string) string {
	return strings.TrimSpace(os.Getenv(EnvPrefix + name))
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.FieldsFunc(v, func(r rune) bool { return r == ',' || r == ' ' }) {
		if part = strings.TrimPrefix(strings.TrimSpace(part), "@"); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// LoadFromFile loads configuration from a YAML file. An empty path searches
// the default locations and is not an error when nothing is found.
func (c *Config) LoadFromFile(path string) error {
	if path == "" {
		path = findConfigFile()
		if path == "" {
			return nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

// DefaultPath is where `config init` writes when no path is given.
func DefaultPath() string {
	return filepath.Join(userConfigDir(), "igharvest", "config.yaml")
}

func userConfigDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return dir
	}
	return filepath.Join(os.Getenv("HOME"), ".config")
}

func findConfigFile() string {
	locations := []string{
		".igharvest.yaml",
		".igharvest.yml",
		DefaultPath(),
		filepath.Join(os.Getenv("HOME"), ".igharvest.yaml"),
	}
	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}
	return ""
}

// SessionPath returns the session file for username.
func (c *Config) SessionPath(username string) string {
	if c.Session.SessionFile != "" {
		return c.Session.SessionFile
	}
	return "session-" + username
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	if c.Instagram.BaseURL == "" {
		errs = append(errs, errors.New("instagram base url is required"))
	}
	if c.Instagram.Timeout <= 0 {
		errs = append(errs, errors.New("instagram timeout must be positive"))
	}
	if c.Instagram.PageSize <= 0 || c.Instagram.PageSize > 50 {
		errs = append(errs, errors.New("instagram page size must be between 1 and 50"))
	}

	p := c.Pacing
	if err := validateRange("default", p.Default); err != nil {
		errs = append(errs, err)
	}
	for kind, r := range p.Ranges {
		if err := validateRange(kind, r); err != nil {
			errs = append(errs, err)
		}
	}
	if p.Floor < 0 {
		errs = append(errs, errors.New("pacing floor cannot be negative"))
	}
	if p.Cooldown < 0 || p.ItemCooldown < 0 || p.PauseDuration < 0 {
		errs = append(errs, errors.New("pacing cooldowns cannot be negative"))
	}
	if p.ProgressEvery < 0 || p.PauseEvery < 0 {
		errs = append(errs, errors.New("pacing batch intervals cannot be negative"))
	}
	if p.LoginAttempts < 1 || p.FetchAttempts < 1 {
		errs = append(errs, errors.New("attempt limits must be at least 1"))
	}
	if p.Adaptive && p.MaxCooldown < p.Cooldown {
		errs = append(errs, errors.New("max cooldown must not be below cooldown"))
	}

	if c.Scrape.MaxPosts < 0 || c.Scrape.ProbePosts < 0 {
		errs = append(errs, errors.New("post limits cannot be negative"))
	}
	if c.Output.BaseDirectory == "" {
		errs = append(errs, errors.New("output directory is required"))
	}
	if !c.Output.WriteJSON && !c.Output.WriteCSV {
		errs = append(errs, errors.New("at least one of write_json or write_csv must be enabled"))
	}
	if c.Session.CookieFile == "" {
		errs = append(errs, errors.New("cookie file is required"))
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, fmt.Errorf("invalid log level %q", c.Logging.Level))
	}
	validNotifTypes := map[string]bool{"terminal": true, "desktop": true, "none": true}
	if !validNotifTypes[strings.ToLower(c.Notifications.NotificationType)] {
		errs = append(errs, fmt.Errorf("invalid notification type %q", c.Notifications.NotificationType))
	}

	return errors.Join(errs...)
}

func validateRange(name string, r RangeConfig) error {
	if r.Min < 0 || r.Max < r.Min {
		return fmt.Errorf("pacing range %q is invalid: min=%s max=%s", name, r.Min, r.Max)
	}
	return nil
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// MergeCommandLineFlags applies flags that were explicitly set on the
// command line. Keys match the cobra flag names.
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if v, ok := flags["log-level"].(string); ok && v != "" {
		c.Logging.Level = v
	}
	if v, ok := flags["output"].(string); ok && v != "" {
		c.Output.BaseDirectory = v
	}
	if v, ok := flags["cookie-file"].(string); ok && v != "" {
		c.Session.CookieFile = v
	}
	if v, ok := flags["max-posts"].(int); ok && v >= 0 {
		c.Scrape.MaxPosts = v
	}
	if v, ok := flags["probe"].(int); ok && v >= 0 {
		c.Scrape.ProbePosts = v
	}
	if v, ok := flags["resume"].(bool); ok {
		c.Scrape.Resume = v
	}
	if v, ok := flags["details"].(bool); ok {
		c.Scrape.FetchDetails = v
	}
	if v, ok := flags["headless"].(bool); ok {
		c.Browser.Headless = v
	}
	if v, ok := flags["adaptive"].(bool); ok {
		c.Pacing.Adaptive = v
	}
	if v, ok := flags["tui"].(bool); ok {
		c.TUI.Enabled = v
	}
	if v, ok := flags["notify"].(bool); ok {
		c.Notifications.Enabled = v
	}
}

// Load loads configuration from all sources with proper precedence:
// flags > environment (.env included) > config file > defaults.
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".igharvest.env"))

	cfg := DefaultConfig()
	if err := cfg.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}
	cfg.MergeCommandLineFlags(flags)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}
