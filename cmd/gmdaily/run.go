package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"gmdaily/pkg/config"
	"gmdaily/pkg/runner"
	"gmdaily/pkg/ui"
)

var (
	accountName string
	forceRun    bool
	scanTarget  int
	scanPages   int
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the daily tasks for every configured account",
	Long: `Run the daily tasks for every configured account, one account at a time.

Accounts that already completed today are skipped unless --force is given.
An account that cannot log in is reported and the run moves on to the next
one; the exit code is non-zero when any account failed to authenticate.`,
	Example: `  # Run every account
  gmdaily run

  # Run one account again even if it finished today
  gmdaily run --account main --force`,
	Args: cobra.NoArgs,
	RunE: runDaily,
}

// loginCmd represents the login command
var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Check that an account can log in",
	Long: `Acquire a session for one account and report which login path worked.
No reward task is run.`,
	Args: cobra.NoArgs,
	RunE: runLogin,
}

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Only react to blog entries from the feed",
	Example: `  # React to up to 5 entries, looking at no more than 3 pages
  gmdaily scan --target 5 --max-pages 3`,
	Args: cobra.NoArgs,
	RunE: runScan,
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(scanCmd)

	for _, cmd := range []*cobra.Command{runCmd, loginCmd, scanCmd} {
		cmd.Flags().StringVarP(&accountName, "account", "a", "", "only process this account")
	}
	runCmd.Flags().BoolVarP(&forceRun, "force", "f", false, "ignore today's checkpoints")
	scanCmd.Flags().IntVarP(&scanTarget, "target", "t", 0, "number of successful reactions to aim for")
	scanCmd.Flags().IntVar(&scanPages, "max-pages", 0, "maximum number of feed pages to read")
}

func runDaily(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(nil)
	if err != nil {
		return failure("Failed to load configuration", err)
	}

	r, err := newRunner(cfg)
	if err != nil {
		return failure("Failed to initialize", err)
	}

	ctx, stop := signalContext()
	defer stop()

	tracker := ui.NewRunTracker()
	summary, err := r.Run(ctx, runner.Options{Account: accountName, Force: forceRun})
	if summary == nil {
		return failure("Run failed", err)
	}

	ui.PrintInfo("Run", summary.RunID)
	for _, out := range summary.Outcomes {
		switch {
		case out.Skipped:
			tracker.Skipped++
			ui.PrintInfo(out.Account, "already done today")
		case out.Err != nil:
			tracker.Fail(out.Account)
		default:
			tracker.Succeeded++
			ui.PrintInfo(out.Account, ui.QuotaBar(len(out.Feed.Successful), cfg.Feed.TargetSuccess))
		}
	}
	tracker.PrintSummary()

	if err != nil {
		return failure("Run interrupted", err)
	}
	if err := summary.Err(); err != nil {
		return failure("Some accounts could not log in", err)
	}
	return nil
}

func runLogin(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(nil)
	if err != nil {
		return failure("Failed to load configuration", err)
	}
	r, err := newRunner(cfg)
	if err != nil {
		return failure("Failed to initialize", err)
	}
	acct, err := selectAccount(r, accountName)
	if err != nil {
		return failure("No account to log in with", err)
	}

	ctx, stop := signalContext()
	defer stop()

	rep, err := r.Login(ctx, acct)
	if err != nil {
		return failure("Login failed for "+acct.Name, err)
	}
	ui.PrintSuccess("Logged in as " + acct.Name)
	ui.PrintInfo("Path", rep.Path.String())
	ui.PrintInfo("Password attempts", strconv.Itoa(rep.Attempts))
	return nil
}

func runScan(cmd *cobra.Command, args []string) error {
	flags := map[string]interface{}{
		"target":    scanTarget,
		"max-pages": scanPages,
	}
	cfg, err := loadConfig(flags)
	if err != nil {
		return failure("Failed to load configuration", err)
	}
	r, err := newRunner(cfg)
	if err != nil {
		return failure("Failed to initialize", err)
	}
	acct, err := selectAccount(r, accountName)
	if err != nil {
		return failure("No account to scan with", err)
	}

	ctx, stop := signalContext()
	defer stop()

	res, err := r.Scan(ctx, acct, cfg.Feed.TargetSuccess, cfg.Feed.MaxPages)
	if err != nil {
		return failure("Login failed for "+acct.Name, err)
	}

	ui.PrintInfo("Reactions", ui.QuotaBar(len(res.Successful), cfg.Feed.TargetSuccess))
	ui.PrintInfo("Pages read", strconv.Itoa(res.PagesScanned))
	ui.PrintInfo("Stopped", string(res.Stop))
	for _, uid := range res.Successful {
		fmt.Fprintln(ui.Out, "  reacted to an entry by uid "+uid)
	}
	if res.Err != nil {
		ui.PrintWarning("Scan ended early", res.Err)
	}
	if len(res.Successful) == 0 {
		return failure("No entry was reacted to", nil)
	}
	return nil
}

// selectAccount picks the named account, or the first one available
func selectAccount(r *runner.Runner, name string) (config.AccountConfig, error) {
	accounts, err := r.Accounts(name)
	if err != nil {
		return config.AccountConfig{}, err
	}
	return accounts[0], nil
}
