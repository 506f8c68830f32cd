package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration options for the daily task runner
type Config struct {
	// Forum connection settings
	Forum ForumConfig `yaml:"forum" json:"forum"`

	// Session acquisition policy
	Login LoginConfig `yaml:"login" json:"login"`

	// Feed scanner bounds and pacing
	Feed FeedConfig `yaml:"feed" json:"feed"`

	// One-shot task settings
	Tasks TasksConfig `yaml:"tasks" json:"tasks"`

	// Captcha recognizer endpoint
	Captcha CaptchaConfig `yaml:"captcha" json:"captcha"`

	// Request rate limiting
	RateLimit RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`

	// Accounts processed in order
	Accounts []AccountConfig `yaml:"accounts" json:"accounts"`

	// Notification preferences
	Notification NotificationConfig `yaml:"notification" json:"notification"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// ForumConfig holds forum-specific configuration
type ForumConfig struct {
	BaseURL          string        `yaml:"base_url" json:"base_url"`
	UserAgent        string        `yaml:"user_agent" json:"user_agent"`
	Timeout          time.Duration `yaml:"timeout" json:"timeout"`
	CloudflareBypass bool          `yaml:"cloudflare_bypass" json:"cloudflare_bypass"`
	// Attempts bounds how often a read-only request is sent on transient failures
	Attempts int `yaml:"attempts" json:"attempts"`
}

// LoginConfig controls the password-login retry loop
type LoginConfig struct {
	RetryBudget int           `yaml:"retry_budget" json:"retry_budget"`
	MinDelay    time.Duration `yaml:"min_delay" json:"min_delay"`
	MaxDelay    time.Duration `yaml:"max_delay" json:"max_delay"`
}

// FeedConfig bounds the feed scan
type FeedConfig struct {
	TargetSuccess int           `yaml:"target_success" json:"target_success"`
	MaxPages      int           `yaml:"max_pages" json:"max_pages"`
	MinDelay      time.Duration `yaml:"min_delay" json:"min_delay"`
	MaxDelay      time.Duration `yaml:"max_delay" json:"max_delay"`
}

// TasksConfig holds settings for the one-shot reward actions
type TasksConfig struct {
	CheckIn           bool          `yaml:"check_in" json:"check_in"`
	Lottery           bool          `yaml:"lottery" json:"lottery"`
	Greet             bool          `yaml:"greet" json:"greet"`
	GreetCount        int           `yaml:"greet_count" json:"greet_count"`
	AutoExchange      bool          `yaml:"auto_exchange_enabled" json:"auto_exchange_enabled"`
	ExchangeThreshold int           `yaml:"exchange_threshold" json:"exchange_threshold"`
	Summary           bool          `yaml:"summary" json:"summary"`
	Pause             time.Duration `yaml:"pause" json:"pause"`
}

// CaptchaConfig points at an external OCR service
type CaptchaConfig struct {
	Endpoint string        `yaml:"endpoint" json:"endpoint"`
	Token    string        `yaml:"token" json:"token"`
	Timeout  time.Duration `yaml:"timeout" json:"timeout"`
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute" json:"requests_per_minute"`
	BurstSize         int `yaml:"burst_size" json:"burst_size"`
}

// AccountConfig holds credentials for one forum account. Cookie is the raw
// "name=value; name2=value2" string copied from a browser session.
type AccountConfig struct {
	Name       string `yaml:"name" json:"name"`
	Cookie     string `yaml:"cookie" json:"cookie"`
	Username   string `yaml:"username" json:"username"`
	Password   string `yaml:"password" json:"password"`
	QuestionID int    `yaml:"question_id" json:"question_id"`
	Answer     string `yaml:"answer" json:"answer"`
}

// HasCredentials reports whether the account can attempt any login path.
func (a AccountConfig) HasCredentials() bool {
	return a.Cookie != "" || (a.Username != "" && a.Password != "")
}

// NotificationConfig holds notification preferences
type NotificationConfig struct {
	Enabled  bool           `yaml:"enabled" json:"enabled"`
	Type     string         `yaml:"type" json:"type"`
	Telegram TelegramConfig `yaml:"telegram" json:"telegram"`
	Wechat   WechatConfig   `yaml:"wechat" json:"wechat"`
	Email    EmailConfig    `yaml:"email" json:"email"`
}

// TelegramConfig holds bot credentials
type TelegramConfig struct {
	BotToken string `yaml:"bot_token" json:"bot_token"`
	ChatID   string `yaml:"chat_id" json:"chat_id"`
}

// WechatConfig holds the work-wechat robot webhook
type WechatConfig struct {
	Webhook string `yaml:"webhook" json:"webhook"`
}

// EmailConfig holds SMTP relay settings
type EmailConfig struct {
	SMTPServer string `yaml:"smtp_server" json:"smtp_server"`
	SMTPPort   int    `yaml:"smtp_port" json:"smtp_port"`
	Username   string `yaml:"username" json:"username"`
	Password   string `yaml:"password" json:"password"`
	From       string `yaml:"from" json:"from"`
	To         string `yaml:"to" json:"to"`
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

// DefaultUserAgent is sent on every forum request unless overridden
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Forum: ForumConfig{
			BaseURL:   "https://www.gamemale.com",
			UserAgent: DefaultUserAgent,
			Timeout:   30 * time.Second,
			Attempts:  3,
		},
		Login: LoginConfig{
			RetryBudget: 5,
			MinDelay:    2 * time.Second,
			MaxDelay:    5 * time.Second,
		},
		Feed: FeedConfig{
			TargetSuccess: 10,
			MaxPages:      10,
			MinDelay:      2 * time.Second,
			MaxDelay:      5 * time.Second,
		},
		Tasks: TasksConfig{
			CheckIn:           true,
			Lottery:           true,
			Greet:             true,
			GreetCount:        3,
			AutoExchange:      true,
			ExchangeThreshold: 34,
			Summary:           true,
			Pause:             time.Second,
		},
		Captcha: CaptchaConfig{
			Timeout: 15 * time.Second,
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: 40,
			BurstSize:         5,
		},
		Notification: NotificationConfig{
			Enabled: false,
			Type:    "console",
			Email: EmailConfig{
				SMTPPort: 587,
			},
		},
		Logging: LoggingConfig{
			Level:      "info",
			File:       "",
			MaxSize:    20,
			MaxBackups: 3,
			MaxAge:     14,
			Compress:   false,
		},
	}
}

// envInt reads a positive integer from the environment
func envInt(name string) (int, bool) {
	raw := os.Getenv(name)
	if raw == "" {
		return 0, false
	}
	val, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || val <= 0 {
		return 0, false
	}
	return val, true
}

// LoadFromEnv loads configuration from environment variables
func (c *Config) LoadFromEnv() error {
	if baseURL := os.Getenv("GMDAILY_BASE_URL"); baseURL != "" {
		c.Forum.BaseURL = baseURL
	}
	if userAgent := os.Getenv("GMDAILY_USER_AGENT"); userAgent != "" {
		c.Forum.UserAgent = userAgent
	}

	// A single account may be supplied entirely through the environment
	cookie := os.Getenv("GMDAILY_COOKIE")
	username := os.Getenv("GMDAILY_USERNAME")
	password := os.Getenv("GMDAILY_PASSWORD")
	if cookie != "" || username != "" {
		acct := AccountConfig{
			Name:     "env",
			Cookie:   cookie,
			Username: username,
			Password: password,
			Answer:   os.Getenv("GMDAILY_ANSWER"),
		}
		if qid, ok := envInt("GMDAILY_QUESTION_ID"); ok {
			acct.QuestionID = qid
		}
		c.upsertAccount(acct)
	}

	if val, ok := envInt("GMDAILY_ATTEMPTS"); ok {
		c.Forum.Attempts = val
	}
	if val, ok := envInt("GMDAILY_RETRY_BUDGET"); ok {
		c.Login.RetryBudget = val
	}
	if val, ok := envInt("GMDAILY_TARGET_SUCCESS"); ok {
		c.Feed.TargetSuccess = val
	}
	if val, ok := envInt("GMDAILY_MAX_PAGES"); ok {
		c.Feed.MaxPages = val
	}
	if endpoint := os.Getenv("GMDAILY_CAPTCHA_ENDPOINT"); endpoint != "" {
		c.Captcha.Endpoint = endpoint
	}

	if notifEnabled := os.Getenv("GMDAILY_NOTIFICATIONS_ENABLED"); notifEnabled != "" {
		c.Notification.Enabled = strings.ToLower(notifEnabled) == "true"
	}
	if logLevel := os.Getenv("GMDAILY_LOG_LEVEL"); logLevel != "" {
		c.Logging.Level = logLevel
	}

	return nil
}

// upsertAccount replaces an account with the same name or appends it
func (c *Config) upsertAccount(acct AccountConfig) {
	for i := range c.Accounts {
		if c.Accounts[i].Name == acct.Name {
			c.Accounts[i] = acct
			return
		}
	}
	c.Accounts = append(c.Accounts, acct)
}

// legacyAccount is the single-account block of the older config.json layout:
// {"gamemale": {"cookie": ..., "auto_exchange_enabled": ...}, "notification": {...}}
type legacyAccount struct {
	Cookie       string `yaml:"cookie"`
	Username     string `yaml:"username"`
	Password     string `yaml:"password"`
	QuestionID   int    `yaml:"question_id"`
	Answer       string `yaml:"answer"`
	AutoExchange *bool  `yaml:"auto_exchange_enabled"`
}

// LegacyAccountName names the account taken from a "gamemale" block
const LegacyAccountName = "gamemale"

// decode merges a YAML or JSON document into c. JSON is a subset of YAML so
// the same decoder handles both. A top-level "gamemale" block becomes the
// account named LegacyAccountName.
func (c *Config) decode(data []byte) error {
	if err := yaml.Unmarshal(data, c); err != nil {
		return err
	}

	var legacy struct {
		Gamemale *legacyAccount `yaml:"gamemale"`
	}
	if err := yaml.Unmarshal(data, &legacy); err != nil {
		return err
	}
	if g := legacy.Gamemale; g != nil {
		c.upsertAccount(AccountConfig{
			Name:       LegacyAccountName,
			Cookie:     g.Cookie,
			Username:   g.Username,
			Password:   g.Password,
			QuestionID: g.QuestionID,
			Answer:     g.Answer,
		})
		if g.AutoExchange != nil {
			c.Tasks.AutoExchange = *g.AutoExchange
		}
	}
	return nil
}

// LoadFromJSONEnv decodes the APP_CONFIG_JSON variable when present
func (c *Config) LoadFromJSONEnv() error {
	raw := os.Getenv("APP_CONFIG_JSON")
	if raw == "" {
		return nil
	}
	if err := c.decode([]byte(raw)); err != nil {
		return fmt.Errorf("APP_CONFIG_JSON is not valid JSON: %w", err)
	}
	return nil
}

// LoadFromFile loads configuration from a YAML (or JSON) file
func (c *Config) LoadFromFile(path string) error {
	// If path is empty, try default locations
	if path == "" {
		path = c.findConfigFile()
		if path == "" {
			return nil // No config file found, not an error
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := c.decode(data); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// findConfigFile searches for config file in standard locations
func (c *Config) findConfigFile() string {
	home := os.Getenv("HOME")
	locations := []string{
		".gmdaily.yaml",
		".gmdaily.yml",
		"config.json",
		filepath.Join(home, ".config", "gmdaily", "config.yaml"),
		filepath.Join(home, ".config", "gmdaily", "config.yml"),
		filepath.Join(home, ".gmdaily.yaml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	if c.Forum.BaseURL == "" {
		errs = append(errs, errors.New("forum base URL is required"))
	} else if u, err := url.Parse(c.Forum.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("forum base URL %q is not absolute", c.Forum.BaseURL))
	}
	if c.Forum.Timeout <= 0 {
		errs = append(errs, errors.New("forum timeout must be positive"))
	}
	if c.Forum.Attempts < 1 || c.Forum.Attempts > 10 {
		errs = append(errs, errors.New("forum request attempts must be between 1 and 10"))
	}

	if c.Login.RetryBudget < 1 || c.Login.RetryBudget > 10 {
		errs = append(errs, errors.New("login retry budget must be between 1 and 10"))
	}
	if c.Login.MaxDelay < c.Login.MinDelay {
		errs = append(errs, errors.New("login max delay must not be below min delay"))
	}

	if c.Feed.TargetSuccess <= 0 {
		errs = append(errs, errors.New("feed target success count must be positive"))
	}
	if c.Feed.MaxPages <= 0 {
		errs = append(errs, errors.New("feed max pages must be positive"))
	}
	if c.Feed.MaxDelay < c.Feed.MinDelay {
		errs = append(errs, errors.New("feed max delay must not be below min delay"))
	}

	if c.Tasks.GreetCount < 0 {
		errs = append(errs, errors.New("greet count cannot be negative"))
	}

	if c.RateLimit.RequestsPerMinute < 0 || c.RateLimit.BurstSize < 0 {
		errs = append(errs, errors.New("rate limit values cannot be negative"))
	}

	seen := make(map[string]bool)
	for i, acct := range c.Accounts {
		if acct.Name == "" {
			errs = append(errs, fmt.Errorf("account #%d has no name", i+1))
			continue
		}
		if seen[acct.Name] {
			errs = append(errs, fmt.Errorf("account %q is listed twice", acct.Name))
		}
		seen[acct.Name] = true
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
	}

	validNotifTypes := map[string]bool{
		"console": true, "telegram": true, "wechat": true, "email": true, "desktop": true,
	}
	if !validNotifTypes[strings.ToLower(c.Notification.Type)] {
		errs = append(errs, fmt.Errorf("invalid notification type %q", c.Notification.Type))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// Account returns the configured account with the given name
func (c *Config) Account(name string) (AccountConfig, bool) {
	for _, acct := range c.Accounts {
		if acct.Name == name {
			return acct, true
		}
	}
	return AccountConfig{}, false
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// MergeCommandLineFlags merges command line flags into the configuration
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if target, ok := flags["target"].(int); ok && target > 0 {
		c.Feed.TargetSuccess = target
	}
	if maxPages, ok := flags["max-pages"].(int); ok && maxPages > 0 {
		c.Feed.MaxPages = maxPages
	}
	if budget, ok := flags["retry-budget"].(int); ok && budget > 0 {
		c.Login.RetryBudget = budget
	}
	if logLevel, ok := flags["log-level"].(string); ok && logLevel != "" {
		c.Logging.Level = logLevel
	}
	if notify, ok := flags["notifications-enabled"].(bool); ok {
		c.Notification.Enabled = notify
	}
}

// Load loads configuration from all sources with proper precedence
// Precedence order: Command line flags > Environment variables > .env file > APP_CONFIG_JSON > Config file > Defaults
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	// Try to load .env files (don't fail if they don't exist)
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".gmdaily.env"))

	config := DefaultConfig()

	if err := config.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	if err := config.LoadFromJSONEnv(); err != nil {
		return nil, err
	}

	if err := config.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	config.MergeCommandLineFlags(flags)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}
