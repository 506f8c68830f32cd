package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"gmdaily/pkg/config"
	"gmdaily/pkg/ui"
)

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration files",
	Long: `Manage gmdaily configuration files.

Configuration is loaded from, highest priority first:
  - Command line flags
  - Environment variables (GMDAILY_*)
  - APP_CONFIG_JSON
  - Configuration file
  - Default values`,
}

// initCmd represents the config init command
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create an example configuration file",
	Long: `Create an example configuration file with all available options.

The file is written to .gmdaily.yaml in the current directory unless a
different path is given with --config.`,
	Run: runConfigInit,
}

// showCmd represents the config show command
var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration with secrets masked",
	Run:   runConfigShow,
}

// validateCmd represents the config validate command
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration",
	Run:   runConfigValidate,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(initCmd)
	configCmd.AddCommand(showCmd)
	configCmd.AddCommand(validateCmd)
}

const exampleConfig = `# gmdaily configuration
#
# Every value can be overridden with GMDAILY_* environment variables, e.g.
# GMDAILY_COOKIE, GMDAILY_USERNAME, GMDAILY_PASSWORD, GMDAILY_TARGET_SUCCESS.

forum:
  base_url: "https://www.gamemale.com"
  timeout: 30s
  # wrap the HTTP transport with a browser-like TLS fingerprint
  cloudflare_bypass: false

login:
  # password login attempts before giving up
  retry_budget: 5
  min_delay: 2s
  max_delay: 5s

feed:
  # stop once this many blog entries were reacted to
  target_success: 10
  max_pages: 10
  min_delay: 2s
  max_delay: 5s

tasks:
  check_in: true
  lottery: true
  # visit and poke the owners of reacted entries
  greet: true
  greet_count: 3
  # exchange blood for gold when blood is above the threshold
  auto_exchange_enabled: true
  exchange_threshold: 34
  summary: true
  pause: 1s

captcha:
  # OCR service receiving the captcha image; leave empty to submit blank answers
  endpoint: ""
  token: ""
  timeout: 15s

rate_limit:
  requests_per_minute: 40
  burst_size: 5

# Accounts run one after another. An entry with only a name takes its
# credentials from 'gmdaily auth add'.
accounts:
  - name: main
    cookie: ""
    username: ""
    password: ""
    # security question id (0 = none) and its answer
    question_id: 0
    answer: ""

notification:
  enabled: false
  # console, telegram, wechat, email or desktop
  type: "console"
  telegram:
    bot_token: ""
    chat_id: ""
  wechat:
    webhook: ""
  email:
    smtp_server: ""
    smtp_port: 587
    username: ""
    password: ""
    from: ""
    to: ""

logging:
  level: "info"
  # rotated log file; leave empty to log to the console only
  file: ""
  max_size: 20
  max_backups: 3
  max_age: 14
  compress: false
`

func runConfigInit(cmd *cobra.Command, args []string) {
	path := configFile
	if path == "" {
		path = ".gmdaily.yaml"
	}

	if _, err := os.Stat(path); err == nil {
		fail("Configuration file already exists", fmt.Errorf("%s", path))
	}

	if err := os.WriteFile(path, []byte(exampleConfig), 0600); err != nil {
		fail("Failed to create configuration file", err)
	}

	ui.PrintSuccess("Configuration file created: " + path)
	fmt.Fprintln(ui.Out, "\nNext steps:")
	fmt.Fprintln(ui.Out, "1. Add a cookie or username/password, or run 'gmdaily auth add main'")
	fmt.Fprintln(ui.Out, "2. Run 'gmdaily config validate' to check the configuration")
	fmt.Fprintln(ui.Out, "3. Run 'gmdaily login' and then 'gmdaily run'")
}

func mask(s string) string {
	switch {
	case s == "":
		return ""
	case len(s) > 8:
		return s[:4] + "..." + s[len(s)-4:]
	default:
		return "***"
	}
}

// masked returns a copy of cfg safe to print
func masked(cfg *config.Config) config.Config {
	out := *cfg
	out.Accounts = make([]config.AccountConfig, len(cfg.Accounts))
	for i, acct := range cfg.Accounts {
		acct.Cookie = mask(acct.Cookie)
		acct.Password = mask(acct.Password)
		acct.Answer = mask(acct.Answer)
		out.Accounts[i] = acct
	}
	out.Captcha.Token = mask(out.Captcha.Token)
	out.Notification.Telegram.BotToken = mask(out.Notification.Telegram.BotToken)
	out.Notification.Wechat.Webhook = mask(out.Notification.Wechat.Webhook)
	out.Notification.Email.Password = mask(out.Notification.Email.Password)
	return out
}

func runConfigShow(cmd *cobra.Command, args []string) {
	cfg, err := config.Load(configFile, nil)
	if err != nil {
		fail("Failed to load configuration", err)
	}

	display := masked(cfg)
	data, err := yaml.Marshal(&display)
	if err != nil {
		fail("Failed to format configuration", err)
	}

	ui.PrintHighlight("Current Configuration")
	fmt.Fprint(ui.Out, string(data))
}

func runConfigValidate(cmd *cobra.Command, args []string) {
	cfg, err := config.Load(configFile, nil)
	if err != nil {
		fail("Configuration validation failed", err)
	}

	var warnings []string
	if len(cfg.Accounts) == 0 {
		warnings = append(warnings, "no accounts configured; stored accounts will be used")
	}
	for _, acct := range cfg.Accounts {
		if !acct.HasCredentials() {
			warnings = append(warnings, fmt.Sprintf("account %q has no credentials in the config; they must be stored with 'gmdaily auth add'", acct.Name))
		}
		if acct.Cookie == "" && acct.Username != "" && cfg.Captcha.Endpoint == "" {
			warnings = append(warnings, fmt.Sprintf("account %q relies on password login but no captcha endpoint is set", acct.Name))
		}
	}

	if len(warnings) > 0 {
		ui.PrintWarning("Configuration warnings:")
		for _, w := range warnings {
			fmt.Fprintf(ui.Out, "  - %s\n", w)
		}
	}

	ui.PrintSuccess("Configuration is valid")
	fmt.Fprintln(ui.Out, "\nConfiguration summary:")
	fmt.Fprintf(ui.Out, "  Forum: %s\n", cfg.Forum.BaseURL)
	fmt.Fprintf(ui.Out, "  Accounts: %d\n", len(cfg.Accounts))
	fmt.Fprintf(ui.Out, "  Feed target: %d reactions within %d pages\n", cfg.Feed.TargetSuccess, cfg.Feed.MaxPages)
	fmt.Fprintf(ui.Out, "  Rate limit: %d requests/minute\n", cfg.RateLimit.RequestsPerMinute)
	fmt.Fprintf(ui.Out, "  Notifications: %v (%s)\n", cfg.Notification.Enabled, cfg.Notification.Type)
	fmt.Fprintf(ui.Out, "  Log level: %s\n", cfg.Logging.Level)
}
