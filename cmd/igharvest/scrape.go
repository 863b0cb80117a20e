package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"igharvest/internal/pipeline"
	"igharvest/pkg/auth"
	errs "igharvest/pkg/errors"
	"igharvest/pkg/models"
	"igharvest/pkg/pacing"
	"igharvest/pkg/scraper"
	"igharvest/pkg/ui"
	"igharvest/pkg/ui/tui"
)

// scrapeCmd represents the scrape command
var scrapeCmd = &cobra.Command{
	Use:   "scrape <session-file> <target>...",
	Short: "Scrape profiles and posts of the target accounts",
	Long: `Scrape the profile and post metadata of every target, one account at a
time, with the session saved by 'convert'.

For every target a <user>_complete_<ts>.json export and a
<user>_posts_<ts>.csv are written, and the run ends with a
FINAL_SUMMARY_<ts>.csv. A checkpoint stops the run: the remaining
targets are recorded as skipped.

Before the full run the first target is scraped with 50 posts into the
probe directory; a failed probe stops the run. --probe 0 skips it.`,
	Example: `  igharvest scrape session-myaccount natgeo nasa
  igharvest scrape session-myaccount natgeo --probe 10 --max-posts 200
  igharvest scrape session-myaccount natgeo --resume --tui`,
	Args: cobra.MinimumNArgs(2),
	RunE: runScrape,
}

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run [username]",
	Short: "Login, convert and scrape in one go",
	Long: `Run the whole pipeline for the configured targets:

  1. remove the stale cookie file
  2. log in as username (default: session.username from the config)
  3. convert the cookies into a session file
  4. scrape every target in scrape.targets or --targets

The pipeline stops at the first failing step.`,
	Example: `  igharvest run myaccount --targets natgeo,nasa
  IGHARVEST_TARGETS=natgeo,nasa igharvest run`,
	Args: cobra.MaximumNArgs(1),
	RunE: runPipeline,
}

var runTargets []string

func init() {
	rootCmd.AddCommand(scrapeCmd)
	rootCmd.AddCommand(runCmd)

	for _, c := range []*cobra.Command{scrapeCmd, runCmd} {
		c.Flags().Int("probe", 50, "probe the first target with this many posts before the full run (0 to skip)")
		c.Flags().Int("max-posts", 0, "stop each account after this many posts (0 for all)")
		c.Flags().Bool("resume", false, "continue from saved checkpoints")
		c.Flags().Bool("details", false, "fetch every post's own page")
		c.Flags().Bool("tui", false, "show the interactive dashboard")
		c.Flags().Bool("notify", false, "desktop notifications on checkpoint and completion")
		c.Flags().Bool("adaptive", false, "grow the retry cooldown after consecutive failures")
		c.Flags().StringP("output", "o", "", "output directory")
	}
	runCmd.Flags().StringSliceVar(&runTargets, "targets", nil, "accounts to scrape")
	runCmd.Flags().Bool("headless", true, "run the login browser without a window")
	runCmd.Flags().String("cookie-file", "", "where to write the cookies")
}

func runScrape(cmd *cobra.Command, args []string) error {
	rt, err := setup(cmd)
	if err != nil {
		return err
	}

	targets := args[1:]
	_, err = scrapeStep(cmd.Context(), rt, args[0], targets, nil)
	return err
}

func runPipeline(cmd *cobra.Command, args []string) error {
	rt, err := setup(cmd)
	if err != nil {
		return err
	}

	username := rt.cfg.Session.Username
	if len(args) > 0 {
		username = args[0]
	}
	if username == "" {
		if account, err := auth.NewEnvironmentStore().Retrieve(""); err == nil {
			username = account.Username
		}
	}
	if username == "" {
		return errors.New("no username: pass one or set session.username")
	}

	targets := rt.cfg.Scrape.Targets
	if len(runTargets) > 0 {
		targets = runTargets
	}
	if len(targets) == 0 {
		return errors.New("no targets: use --targets or scrape.targets")
	}

	password, err := resolvePassword(username, "")
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	policy := pipeline.NewPolicy(rt.cfg, rt.log)
	cookieFile := rt.cfg.Session.CookieFile
	sessionFile := rt.cfg.SessionPath(username)

	ui.PrintHighlight("[1/3] LOGIN")
	if err := pipeline.RemoveStaleCookies(cookieFile); err != nil {
		return err
	}
	if err := loginStep(ctx, rt, policy, username, password); err != nil {
		return fmt.Errorf("login step failed: %w", err)
	}

	ui.PrintHighlight("[2/3] CONVERT")
	if err := convertStep(ctx, rt, policy, username, cookieFile, sessionFile); err != nil {
		return fmt.Errorf("convert step failed: %w", err)
	}

	ui.PrintHighlight("[3/3] SCRAPE")
	if _, err := scrapeStep(ctx, rt, sessionFile, targets, policy); err != nil {
		return fmt.Errorf("scrape step failed: %w", err)
	}
	return nil
}

// scrapeStep scrapes targets and prints the summary table. A nil policy is
// built from the config; run passes the one its login used so the pacing
// state carries over.
func scrapeStep(ctx context.Context, rt *runtimeEnv, sessionFile string, targets []string, policy *pacing.Policy) (models.RunSummary, error) {
	if policy == nil {
		policy = pipeline.NewPolicy(rt.cfg, rt.log)
	}

	var summary models.RunSummary
	var err error
	if rt.cfg.TUI.Enabled {
		summary, err = scrapeWithDashboard(ctx, rt, policy, sessionFile, targets)
	} else {
		progress := ui.NewProgress(verbose)
		policy.SetObserver(progress.Pacing)
		summary, err = scrape(ctx, rt, policy, progress, sessionFile, targets)
	}
	policy.SetObserver(nil)

	if len(summary.Accounts) > 0 {
		fmt.Println()
		if rerr := ui.RenderSummary(os.Stdout, summary); rerr != nil {
			rt.log.WithError(rerr).Warn("failed to render summary")
		}
	}

	if rt.cfg.Notifications.Enabled {
		notifier := ui.NewNotifier()
		if err != nil && errs.IsCheckpoint(err) && rt.cfg.Notifications.OnError {
			notifier.Checkpoint(checkpointAccount(summary))
		} else if len(summary.Accounts) > 0 && rt.cfg.Notifications.OnComplete {
			notifier.RunFinished(summary)
		}
	}

	if err != nil {
		return summary, err
	}
	ui.PrintSuccess(fmt.Sprintf("[RUN %s COMPLETE] %d posts from %d accounts", shortID(summary.RunID), summary.TotalPosts(), len(summary.Accounts)))
	return summary, nil
}

func scrape(ctx context.Context, rt *runtimeEnv, policy *pacing.Policy, observer scraper.Observer, sessionFile string, targets []string) (models.RunSummary, error) {
	client, err := pipeline.NewClient(rt.cfg, policy, rt.log)
	if err != nil {
		return models.RunSummary{}, err
	}
	return pipeline.Scrape(ctx, pipeline.ScrapeOptions{
		Config:      rt.cfg,
		Logger:      rt.log,
		Client:      client,
		Policy:      policy,
		Observer:    observer,
		SessionFile: sessionFile,
		Targets:     targets,
	})
}

type scrapeResult struct {
	summary models.RunSummary
	err     error
}

// scrapeWithDashboard runs the scrape behind the TUI. Quitting the
// dashboard cancels the scrape.
func scrapeWithDashboard(ctx context.Context, rt *runtimeEnv, policy *pacing.Policy, sessionFile string, targets []string) (models.RunSummary, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	dashboard := tui.NewTUI(targets, cancel)
	policy.SetObserver(dashboard.Pacing)

	done := make(chan scrapeResult, 1)
	go func() {
		summary, err := scrape(ctx, rt, policy, dashboard, sessionFile, targets)
		if err != nil {
			dashboard.LogError("%v", err)
		}
		dashboard.Finish(summary)
		dashboard.Stop()
		done <- scrapeResult{summary: summary, err: err}
	}()

	if err := dashboard.Start(); err != nil {
		cancel()
		res := <-done
		return res.summary, errors.Join(fmt.Errorf("dashboard failed: %w", err), res.err)
	}
	cancel()
	res := <-done
	return res.summary, res.err
}

// checkpointAccount names the account the checkpoint hit.
func checkpointAccount(s models.RunSummary) string {
	for _, a := range s.Accounts {
		if a.Status == models.StatusAborted {
			return a.Username
		}
	}
	return "the session account"
}

func shortID(id string) string {
	if i := strings.IndexByte(id, '-'); i > 0 {
		return id[:i]
	}
	return id
}

// notifyFailure raises a desktop notification when a login or session check
// runs into a checkpoint.
func notifyFailure(rt *runtimeEnv, username string, err error) {
	if !rt.cfg.Notifications.Enabled || !rt.cfg.Notifications.OnError || !errs.IsCheckpoint(err) {
		return
	}
	ui.NewNotifier().Checkpoint(username)
}
