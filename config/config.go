package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Known retrieval strategies
const (
	StrategyHTTP     = "http"
	StrategyRod      = "rod"
	StrategyChromedp = "chromedp"
)

// Configuration validation errors
var (
	ErrNoStrategies     = errors.New("fetch.strategies must list at least one strategy")
	ErrUnknownStrategy  = errors.New("fetch.strategies contains an unknown strategy")
	ErrNegativeDelay    = errors.New("fetch.min_delay_ms and fetch.max_delay_ms must be non-negative")
	ErrDelayRange       = errors.New("fetch.min_delay_ms cannot exceed fetch.max_delay_ms")
	ErrInvalidTimeout   = errors.New("fetch.timeout_sec must be at least 1")
	ErrMissingOutputDir = errors.New("output.dir is required")
	ErrMissingLogFile   = errors.New("log.file is required")
	ErrInvalidLogLevel  = errors.New("log.level must be one of: debug, info, warn, error")
)

// Config is the complete application configuration
type Config struct {
	Source   SourceConfig   `yaml:"source"`
	Fetch    FetchConfig    `yaml:"fetch"`
	Output   OutputConfig   `yaml:"output"`
	Log      LogConfig      `yaml:"log"`
	Database DatabaseConfig `yaml:"database"`
	Sheets   SheetsConfig   `yaml:"sheets"`
	Telegram TelegramConfig `yaml:"telegram"`
}

// SourceConfig overrides where the rate page lives. Empty values use the production page.
type SourceConfig struct {
	BaseURL string `yaml:"base_url"`
	Block   string `yaml:"block"`
	Address string `yaml:"address"`
}

// FetchConfig controls the retrieval strategies
type FetchConfig struct {
	Strategies       []string          `yaml:"strategies"`
	TimeoutSec       int               `yaml:"timeout_sec"`
	UserAgent        string            `yaml:"user_agent"`
	RotateUserAgent  bool              `yaml:"rotate_user_agent"`
	Headers          map[string]string `yaml:"headers"`
	MinDelayMs       int               `yaml:"min_delay_ms"`
	MaxDelayMs       int               `yaml:"max_delay_ms"`
	CloudflareBypass bool              `yaml:"cloudflare_bypass"`
	Browser          BrowserConfig     `yaml:"browser"`
}

// BrowserConfig is shared by the headless strategies
type BrowserConfig struct {
	Bin         string `yaml:"bin"`
	Headless    bool   `yaml:"headless"`
	UserDataDir string `yaml:"user_data_dir"`
	SettleMs    int    `yaml:"settle_ms"`
}

// OutputConfig controls where CSV files are written
type OutputConfig struct {
	Dir string `yaml:"dir"`
}

// LogConfig controls the console log and the run log file
type LogConfig struct {
	Level     string `yaml:"level"`
	File      string `yaml:"file"`
	MaxSizeMB int    `yaml:"max_size_mb"`
}

// DatabaseConfig enables the Postgres request queue and rate storage when URL is set
type DatabaseConfig struct {
	URL string `yaml:"url"`
}

// SheetsConfig enables the Google Sheets sink when SpreadsheetURL is set
type SheetsConfig struct {
	SpreadsheetURL  string `yaml:"spreadsheet_url"`
	CredentialsPath string `yaml:"credentials_path"`
}

// TelegramConfig configures the bot front end
type TelegramConfig struct {
	Token          string  `yaml:"token"`
	AllowedUsers   []int64 `yaml:"allowed_users"`
	PollIntervalMs int     `yaml:"poll_interval_ms"`
	MinRunGapMs    int     `yaml:"min_run_gap_ms"`
	LogTailLines   int     `yaml:"log_tail_lines"`
}

// Timeout returns the per-strategy timeout
func (f FetchConfig) Timeout() time.Duration {
	return time.Duration(f.TimeoutSec) * time.Second
}

// MinDelay returns the lower bound of the pre-request delay
func (f FetchConfig) MinDelay() time.Duration {
	return time.Duration(f.MinDelayMs) * time.Millisecond
}

// MaxDelay returns the upper bound of the pre-request delay
func (f FetchConfig) MaxDelay() time.Duration {
	return time.Duration(f.MaxDelayMs) * time.Millisecond
}

// Settle returns how long the headless strategies wait after the page is ready
func (b BrowserConfig) Settle() time.Duration {
	return time.Duration(b.SettleMs) * time.Millisecond
}

// PollInterval returns how often the scheduler looks for queued requests
func (t TelegramConfig) PollInterval() time.Duration {
	return time.Duration(t.PollIntervalMs) * time.Millisecond
}

// MinRunGap returns the minimum spacing between two pipeline runs started by the bot
func (t TelegramConfig) MinRunGap() time.Duration {
	return time.Duration(t.MinRunGapMs) * time.Millisecond
}

// GetDefaultConfig returns a default configuration
func GetDefaultConfig() *Config {
	return &Config{
		Fetch: FetchConfig{
			Strategies: []string{StrategyHTTP, StrategyRod, StrategyChromedp},
			TimeoutSec: 30,
			UserAgent:  "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			Headers: map[string]string{
				"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
				"Accept-Language": "fr-FR,fr;q=0.9,en-US;q=0.8,en;q=0.7",
			},
			Browser: BrowserConfig{
				Headless: true,
				SettleMs: 2000,
			},
		},
		Output: OutputConfig{Dir: "downloads"},
		Log: LogConfig{
			Level: "info",
			File:  "error_log.txt",
		},
		Telegram: TelegramConfig{
			PollIntervalMs: 5000,
			MinRunGapMs:    10000,
			LogTailLines:   20,
		},
	}
}

// LoadConfig loads configuration from a YAML file
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := GetDefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return cfg, nil
}

// Load builds the effective configuration: defaults, then the YAML file if it
// exists, then environment variables (a .env file is loaded first if present).
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("[config] No .env file found, falling back to system env vars")
	}

	cfg := GetDefaultConfig()
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			cfg, err = LoadConfig(path)
			if err != nil {
				return nil, err
			}
		}
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overlays environment variables on c
func (c *Config) ApplyEnv() error {
	c.Output.Dir = getEnv("BKAM_OUTPUT_DIR", c.Output.Dir)
	c.Log.File = getEnv("BKAM_LOG_FILE", c.Log.File)
	c.Log.Level = getEnv("BKAM_LOG_LEVEL", c.Log.Level)
	c.Source.BaseURL = getEnv("BKAM_BASE_URL", c.Source.BaseURL)
	c.Fetch.Browser.Bin = getEnv("BKAM_CHROME_BIN", c.Fetch.Browser.Bin)
	c.Fetch.Browser.UserDataDir = getEnv("BOT_DATA_DIR", c.Fetch.Browser.UserDataDir)
	c.Database.URL = getEnv("DATABASE_URL", c.Database.URL)
	c.Telegram.Token = getEnv("TELEGRAM_TOKEN", c.Telegram.Token)
	c.Sheets.SpreadsheetURL = getEnv("BKAM_SPREADSHEET_URL", c.Sheets.SpreadsheetURL)
	c.Sheets.CredentialsPath = getEnv("GOOGLE_SHEETS_CREDENTIALS_FILE", c.Sheets.CredentialsPath)

	if v := os.Getenv("BKAM_STRATEGIES"); v != "" {
		c.Fetch.Strategies = splitList(v)
	}

	if v := os.Getenv("TELEGRAM_ALLOWED_USERS"); v != "" {
		var ids []int64
		for _, s := range splitList(v) {
			id, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid TELEGRAM_ALLOWED_USERS entry %q: %w", s, err)
			}
			ids = append(ids, id)
		}
		c.Telegram.AllowedUsers = ids
	}

	return nil
}

// Validate checks the configuration for consistency
func (c *Config) Validate() error {
	if len(c.Fetch.Strategies) == 0 {
		return ErrNoStrategies
	}
	for _, s := range c.Fetch.Strategies {
		switch s {
		case StrategyHTTP, StrategyRod, StrategyChromedp:
		default:
			return fmt.Errorf("%w: %q", ErrUnknownStrategy, s)
		}
	}
	if c.Fetch.MinDelayMs < 0 || c.Fetch.MaxDelayMs < 0 {
		return ErrNegativeDelay
	}
	if c.Fetch.MinDelayMs > c.Fetch.MaxDelayMs {
		return ErrDelayRange
	}
	if c.Fetch.TimeoutSec < 1 {
		return ErrInvalidTimeout
	}
	if strings.TrimSpace(c.Output.Dir) == "" {
		return ErrMissingOutputDir
	}
	if strings.TrimSpace(c.Log.File) == "" {
		return ErrMissingLogFile
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return ErrInvalidLogLevel
	}
	return nil
}

// IsAllowedUser reports whether a Telegram user may use the bot. An empty
// allow-list admits everyone.
func (t TelegramConfig) IsAllowedUser(id int64) bool {
	if len(t.AllowedUsers) == 0 {
		return true
	}
	for _, allowed := range t.AllowedUsers {
		if allowed == id {
			return true
		}
	}
	return false
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
