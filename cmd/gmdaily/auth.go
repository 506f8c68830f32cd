package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"gmdaily/pkg/auth"
	"gmdaily/pkg/ui"
)

// authCmd represents the auth command
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage stored forum credentials",
	Long: `Manage stored GameMale credentials.

Credentials are stored using:
  - System keychain (when available)
  - Encrypted file with PBKDF2 key derivation
  - Environment variables (read only)

An account listed in the config file by name only picks up its cookie or
password from here. Never share your credentials or config files!`,
}

// addCmd represents the auth add command
var addCmd = &cobra.Command{
	Use:   "add [name]",
	Short: "Store credentials for an account",
	Long: `Store a browser cookie and/or a username and password for an account.

A cookie is tried first on every run; the password is the fallback when the
cookie has expired.`,
	Example: `  # Interactive
  gmdaily auth add

  # Store under a name used in the config file
  gmdaily auth add main`,
	Args: cobra.MaximumNArgs(1),
	Run:  runAuthAdd,
}

// listCmd represents the auth list command
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored accounts",
	Run:   runAuthList,
}

// removeCmd represents the auth remove command
var removeCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Remove stored credentials",
	Args:  cobra.ExactArgs(1),
	Run:   runAuthRemove,
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(addCmd)
	authCmd.AddCommand(listCmd)
	authCmd.AddCommand(removeCmd)
}

func credentialManager() *auth.Manager {
	dir, err := auth.DefaultDir()
	if err != nil {
		fail("Cannot locate the credential directory", err)
	}
	manager, err := auth.NewManager(dir)
	if err != nil {
		fail("Failed to initialize credential manager", err)
	}
	return manager
}

func runAuthAdd(cmd *cobra.Command, args []string) {
	manager := credentialManager()
	reader := bufio.NewReader(os.Stdin)

	var name string
	if len(args) > 0 {
		name = args[0]
	} else {
		name = prompt(reader, "Account name: ")
	}
	if name == "" {
		fail("Account name is required", nil)
	}

	if existing, _ := manager.Retrieve(name); existing != nil {
		answer := prompt(reader, fmt.Sprintf("Account '%s' already exists. Update credentials? (y/N): ", name))
		if !strings.HasPrefix(strings.ToLower(answer), "y") {
			return
		}
	}

	auth.ShowCookieGuide(ui.Out)

	account := &auth.Account{Name: name, LastModified: time.Now()}

	fmt.Print("Cookie (press Enter to skip, input is hidden): ")
	cookie, err := readPassword(reader)
	if err != nil {
		fail("Failed to read cookie", err)
	}
	account.Cookie = cookie

	account.Username = prompt(reader, "Username (press Enter to skip): ")
	if account.Username != "" {
		fmt.Print("Password (hidden): ")
		if account.Password, err = readPassword(reader); err != nil {
			fail("Failed to read password", err)
		}

		if q := prompt(reader, "Security question id (0-7, Enter for none): "); q != "" {
			id, err := strconv.Atoi(q)
			if err != nil || id < 0 || id > 7 {
				fail("Security question id must be a number between 0 and 7", err)
			}
			account.QuestionID = id
		}
		if account.QuestionID > 0 {
			fmt.Print("Security answer (hidden): ")
			if account.Answer, err = readPassword(reader); err != nil {
				fail("Failed to read answer", err)
			}
		}
	}

	if err := manager.Store(account); err != nil {
		fail("Failed to store credentials", err)
	}
	ui.PrintSuccess("Account saved: " + name)
	fmt.Fprintf(ui.Out, "\nAdd it to your config as:\n  accounts:\n    - name: %s\n", name)
}

func runAuthList(cmd *cobra.Command, args []string) {
	accounts, err := credentialManager().List()
	if err != nil {
		fail("Failed to list accounts", err)
	}

	if len(accounts) == 0 {
		ui.PrintInfo("No stored accounts", "Use 'gmdaily auth add' to add one")
		return
	}

	ui.PrintHighlight("Stored Accounts")
	for i, account := range accounts {
		s := auth.SanitizeAccount(account)
		fmt.Fprintf(ui.Out, "%d. %s\n", i+1, s.Name)
		if s.Cookie != "" {
			fmt.Fprintf(ui.Out, "   Cookie: %s\n", s.Cookie)
		}
		if s.Username != "" {
			fmt.Fprintf(ui.Out, "   Username: %s\n", s.Username)
			fmt.Fprintf(ui.Out, "   Password: %s\n", s.Password)
		}
		if !s.LastModified.IsZero() {
			fmt.Fprintf(ui.Out, "   Last Modified: %s\n", s.LastModified.Format("2006-01-02 15:04:05"))
		}
	}
}

func runAuthRemove(cmd *cobra.Command, args []string) {
	if err := credentialManager().Delete(args[0]); err != nil {
		fail("Failed to remove account", err)
	}
	ui.PrintSuccess("Account removed: " + args[0])
}

func prompt(reader *bufio.Reader, label string) string {
	fmt.Print(label)
	input, _ := reader.ReadString('\n')
	return strings.TrimSpace(input)
}

// readPassword reads a secret from stdin without echoing when possible
func readPassword(reader *bufio.Reader) (string, error) {
	if term.IsTerminal(int(syscall.Stdin)) {
		secret, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Println()
		if err == nil {
			return strings.TrimSpace(string(secret)), nil
		}
	}

	input, err := reader.ReadString('\n')
	if err != nil && input == "" {
		return "", err
	}
	return strings.TrimSpace(input), nil
}
