package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/spf13/cobra"

	"gmdaily/pkg/auth"
	"gmdaily/pkg/checkpoint"
	"gmdaily/pkg/config"
	"gmdaily/pkg/logger"
	"gmdaily/pkg/notify"
	"gmdaily/pkg/runner"
	"gmdaily/pkg/ui"
)

var (
	// Version information
	version   = "1.0.0"
	gitCommit = "unknown"
	buildDate = "unknown"

	// Global flags
	configFile string
	logLevel   string
	quiet      bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "gmdaily",
	Short: "Daily reward automation for the GameMale forum",
	Long: `gmdaily logs into GameMale and collects the daily rewards for each
configured account: check-in, lottery, blog reactions, member greetings and
blood-to-gold exchange. A report is sent through the configured notifier.

Credentials can come from the config file, environment variables
(GMDAILY_COOKIE, GMDAILY_USERNAME, GMDAILY_PASSWORD) or the credential store
managed with 'gmdaily auth'.`,
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildDate),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if quiet {
			ui.Out = io.Discard
			logLevel = "error"
		}
		if cmd.Name() != "version" && cmd.Name() != "help" {
			ui.PrintBanner()
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// Commands return their failure so deferred cleanup runs before the exit.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		var cmdErr *commandError
		if errors.As(err, &cmdErr) {
			cmdErr.print()
		} else {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default is ./.gmdaily.yaml or ~/.config/gmdaily/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress all output except errors")

	rootCmd.SetVersionTemplate(`gmdaily {{.Version}}
Go Version: ` + runtime.Version() + `
OS/Arch: ` + runtime.GOOS + `/` + runtime.GOARCH + `
`)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// loadConfig loads the configuration and installs the global logger
func loadConfig(flags map[string]interface{}) (*config.Config, error) {
	if flags == nil {
		flags = make(map[string]interface{})
	}
	if logLevel != "" {
		flags["log-level"] = logLevel
	}

	cfg, err := config.Load(configFile, flags)
	if err != nil {
		return nil, err
	}
	if err := logger.Initialize(&cfg.Logging); err != nil {
		return nil, fmt.Errorf("initialize logger: %w", err)
	}
	return cfg, nil
}

// signalContext is cancelled on SIGINT or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// newRunner wires the runner with the notifier, checkpoints and credential
// store the config asks for.
func newRunner(cfg *config.Config) (*runner.Runner, error) {
	log := logger.GetLogger()

	sender, err := notify.New(&cfg.Notification, log)
	if err != nil {
		return nil, fmt.Errorf("notifier: %w", err)
	}

	checkpoints, err := checkpoint.NewManager("", log)
	if err != nil {
		return nil, fmt.Errorf("checkpoints: %w", err)
	}

	opts := []runner.Option{
		runner.WithLogger(log),
		runner.WithNotifier(sender),
		runner.WithCheckpoints(checkpoints),
	}

	if dir, err := auth.DefaultDir(); err == nil {
		if store, err := auth.NewManager(dir); err == nil {
			opts = append(opts, runner.WithAccountStore(store))
		} else {
			log.WithError(err).Warn("credential store unavailable")
		}
	}

	return runner.New(cfg, opts...), nil
}

// commandError is a user-facing failure returned from a RunE command
type commandError struct {
	msg   string
	cause error
}

func (e *commandError) Error() string {
	if e.cause == nil {
		return e.msg
	}
	return e.msg + ": " + e.cause.Error()
}

func (e *commandError) Unwrap() error { return e.cause }

func (e *commandError) print() {
	if e.cause != nil {
		ui.PrintError(e.msg, e.cause)
	} else {
		ui.PrintError(e.msg)
	}
}

// failure wraps msg and an optional cause for Execute to print
func failure(msg string, cause error) error {
	return &commandError{msg: msg, cause: cause}
}

// fail prints msg with an optional cause and exits non-zero. Only for
// commands that hold nothing needing cleanup.
func fail(msg string, err error) {
	failure(msg, err).(*commandError).print()
	os.Exit(1)
}
