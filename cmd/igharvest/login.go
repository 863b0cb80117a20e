package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"igharvest/internal/pipeline"
	"igharvest/pkg/auth"
	"igharvest/pkg/browser"
	"igharvest/pkg/pacing"
	"igharvest/pkg/ui"
)

// loginCmd represents the login command
var loginCmd = &cobra.Command{
	Use:   "login <username> [password]",
	Short: "Log in with a headless browser and save the cookies",
	Long: `Log into Instagram through the real login form and write every cookie
the browser holds afterwards to the cookie file.

Without a password argument the password is taken from the stored
accounts (see 'igharvest accounts'), then IGHARVEST_PASSWORD, and finally
prompted for.

Verification challenges stop the login at once. Other failures are
retried after the configured cooldown.`,
	Example: `  igharvest login myaccount
  igharvest login myaccount --headless=false --cookie-file cookies.json`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runLogin,
}

// convertCmd represents the convert command
var convertCmd = &cobra.Command{
	Use:   "convert <username> [cookie-file] [session-file]",
	Short: "Turn a cookie file into a verified session file",
	Long: `Keep the Instagram cookies of a cookie file, check that sessionid,
ds_user_id and csrftoken are present, verify the session against
Instagram and save it as a session file for the scrape step.`,
	Example: `  igharvest convert myaccount
  igharvest convert myaccount cookies.json session-myaccount`,
	Args: cobra.RangeArgs(1, 3),
	RunE: runConvert,
}

var rememberPassword bool

func init() {
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(convertCmd)

	loginCmd.Flags().Bool("headless", true, "run the browser without a window")
	loginCmd.Flags().String("cookie-file", "", "where to write the cookies")
	loginCmd.Flags().Bool("adaptive", false, "grow the retry cooldown after consecutive failures")
	loginCmd.Flags().BoolVar(&rememberPassword, "remember", false, "store the password for later logins")
}

func runLogin(cmd *cobra.Command, args []string) error {
	rt, err := setup(cmd)
	if err != nil {
		return err
	}

	username := args[0]
	password := ""
	if len(args) > 1 {
		password = args[1]
	}
	password, err = resolvePassword(username, password)
	if err != nil {
		return err
	}

	policy := pipeline.NewPolicy(rt.cfg, rt.log)
	if err := loginStep(cmd.Context(), rt, policy, username, password); err != nil {
		return err
	}

	if rememberPassword {
		if err := storePassword(username, password); err != nil {
			ui.PrintWarning("Could not store the password", err)
		}
	}
	return nil
}

func loginStep(ctx context.Context, rt *runtimeEnv, policy *pacing.Policy, username, password string) error {
	ui.PrintInfo("Logging in", username)

	authenticator := browser.NewPlaywrightLogin(rt.cfg, rt.log)
	creds := browser.Credentials{Username: username, Password: password}
	cookies, err := pipeline.Login(ctx, authenticator, policy, creds, rt.cfg.Pacing.LoginAttempts, rt.cfg.Session.CookieFile, rt.log)
	if err != nil {
		notifyFailure(rt, username, err)
		return err
	}

	ui.PrintSuccess(fmt.Sprintf("Saved %d cookies to %s", len(cookies), rt.cfg.Session.CookieFile))
	return nil
}

func runConvert(cmd *cobra.Command, args []string) error {
	rt, err := setup(cmd)
	if err != nil {
		return err
	}

	username := args[0]
	cookieFile := rt.cfg.Session.CookieFile
	if len(args) > 1 {
		cookieFile = args[1]
	}
	sessionFile := rt.cfg.SessionPath(username)
	if len(args) > 2 {
		sessionFile = args[2]
	}

	policy := pipeline.NewPolicy(rt.cfg, rt.log)
	return convertStep(cmd.Context(), rt, policy, username, cookieFile, sessionFile)
}

func convertStep(ctx context.Context, rt *runtimeEnv, policy *pacing.Policy, username, cookieFile, sessionFile string) error {
	client, err := pipeline.NewClient(rt.cfg, policy, rt.log)
	if err != nil {
		return err
	}

	s, err := pipeline.Convert(ctx, client, username, cookieFile, sessionFile, rt.log)
	if err != nil {
		notifyFailure(rt, username, err)
		return err
	}

	ui.PrintSuccess(fmt.Sprintf("Session for %s (user id %s) saved to %s", s.Username, s.UserID, sessionFile))
	return nil
}

// resolvePassword returns password when set, else the stored password for
// username, else prompts on the terminal.
func resolvePassword(username, password string) (string, error) {
	if password != "" {
		return password, nil
	}

	if manager, err := auth.NewManager(); err == nil {
		if account, err := manager.Retrieve(username); err == nil && account.Password != "" {
			return account.Password, nil
		}
	}

	return promptPassword(username)
}

// promptPassword reads a password from the terminal without echo.
func promptPassword(username string) (string, error) {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return "", fmt.Errorf("no password for %s: pass it as an argument or store it with 'igharvest accounts add'", username)
	}
	fmt.Fprintf(os.Stderr, "Password for %s: ", username)
	raw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	password := strings.TrimSpace(string(raw))
	if password == "" {
		return "", errors.New("password is required")
	}
	return password, nil
}

func storePassword(username, password string) error {
	manager, err := auth.NewManager()
	if err != nil {
		return err
	}
	return manager.Store(&auth.Account{Username: username, Password: password})
}
