// Package pipeline implements the three steps of a harvest: browser login
// to a cookie file, conversion of the cookies into a verified session file,
// and the paced scrape of the configured targets.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"

	"igharvest/pkg/browser"
	"igharvest/pkg/config"
	errs "igharvest/pkg/errors"
	"igharvest/pkg/instagram"
	"igharvest/pkg/logger"
	"igharvest/pkg/models"
	"igharvest/pkg/pacing"
	"igharvest/pkg/scraper"
	"igharvest/pkg/session"
)

// NewPolicy builds the pacing policy for one run from cfg.
func NewPolicy(cfg *config.Config, log logger.Logger, opts ...pacing.Option) *pacing.Policy {
	all := append([]pacing.Option{pacing.WithLogger(log)}, opts...)
	return pacing.New(pacing.FromConfig(cfg.Pacing), all...)
}

// NewClient builds an Instagram client that paces through policy.
func NewClient(cfg *config.Config, policy *pacing.Policy, log logger.Logger) (*instagram.Client, error) {
	return instagram.NewClient(instagram.Options{
		BaseURL:   cfg.Instagram.BaseURL,
		UserAgent: cfg.Instagram.UserAgent,
		AppID:     cfg.Instagram.AppID,
		Timeout:   cfg.Instagram.Timeout,
		PageSize:  cfg.Instagram.PageSize,
		Pacer:     policy,
		Logger:    log,
	})
}

// Login signs in through a and writes every cookie the browser holds to
// cookieFile.
func Login(ctx context.Context, a browser.Authenticator, policy *pacing.Policy, creds browser.Credentials, attempts int, cookieFile string, log logger.Logger) ([]session.Cookie, error) {
	if creds.Username == "" || creds.Password == "" {
		return nil, errors.New("username and password are required")
	}

	cookies, outcome, err := browser.AcquireCookies(ctx, a, policy, creds, attempts)
	if err != nil {
		return nil, fmt.Errorf("login %s: %w", outcome, err)
	}
	if err := session.SaveCookies(cookieFile, cookies); err != nil {
		return nil, err
	}

	log.InfoWithFields("cookies saved", map[string]interface{}{
		"username": creds.Username,
		"file":     cookieFile,
		"cookies":  len(cookies),
	})
	return cookies, nil
}

// RemoveStaleCookies deletes a cookie file left by an earlier login so a
// failed login cannot be mistaken for a fresh one.
func RemoveStaleCookies(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove stale cookie file: %w", err)
	}
	return nil
}

// Convert turns a cookie file into a session file. The session is checked
// against the current user endpoint. A fatal answer (checkpoint, rejected
// login) fails the conversion; any other failure falls back to the
// ds_user_id cookie.
func Convert(ctx context.Context, client *instagram.Client, username, cookieFile, sessionFile string, log logger.Logger) (*session.Session, error) {
	cookies, err := session.LoadCookies(cookieFile)
	if err != nil {
		return nil, err
	}

	values := session.Filter(cookies)
	s, err := session.New(username, values)
	if err != nil {
		return nil, fmt.Errorf("cookie file %s: %w", cookieFile, err)
	}
	if err := client.UseSession(s); err != nil {
		return nil, err
	}

	account, err := client.CurrentUser(ctx)
	switch {
	case err != nil && errs.IsFatal(err):
		return nil, fmt.Errorf("session rejected: %w", err)
	case err != nil:
		log.WithError(err).WarnWithFields("could not verify session, using ds_user_id", map[string]interface{}{
			"user_id": s.UserID,
		})
	default:
		if account.ID != "" {
			s.UserID = account.ID
		}
		if account.Username != "" && account.Username != username {
			log.WarnWithFields("session belongs to another account", map[string]interface{}{
				"requested": username,
				"actual":    account.Username,
			})
			s.Username = account.Username
		}
	}

	if err := s.Save(sessionFile); err != nil {
		return nil, err
	}
	log.InfoWithFields("session saved", map[string]interface{}{
		"username": s.Username,
		"user_id":  s.UserID,
		"cookies":  len(values),
		"file":     sessionFile,
	})
	return s, nil
}

// ScrapeOptions configures Scrape.
type ScrapeOptions struct {
	Config      *config.Config
	Logger      logger.Logger
	Client      *instagram.Client
	Policy      *pacing.Policy
	Observer    scraper.Observer
	SessionFile string
	Targets     []string
	// CheckpointDir is passed through to the scraper; empty means the
	// default data directory.
	CheckpointDir string
}

// Scrape loads the session and scrapes every target. With a probe size
// configured, the first target is probed first and a failed probe ends the
// run before any full scrape.
func Scrape(ctx context.Context, opts ScrapeOptions) (models.RunSummary, error) {
	if len(opts.Targets) == 0 {
		return models.RunSummary{}, errors.New("no targets to scrape")
	}

	s, err := session.Load(opts.SessionFile)
	if err != nil {
		return models.RunSummary{}, err
	}
	if err := opts.Client.UseSession(s); err != nil {
		return models.RunSummary{}, err
	}

	sc, err := scraper.New(scraper.Options{
		Client:        opts.Client,
		Policy:        opts.Policy,
		Config:        opts.Config,
		Logger:        opts.Logger,
		Observer:      opts.Observer,
		CheckpointDir: opts.CheckpointDir,
	})
	if err != nil {
		return models.RunSummary{}, err
	}

	opts.Logger.InfoWithFields("starting scrape", map[string]interface{}{
		"run_id":  sc.RunID(),
		"session": s.Username,
		"targets": len(opts.Targets),
		"output":  sc.OutputDir(),
	})

	if opts.Config.Scrape.ProbePosts > 0 {
		res, err := sc.Probe(ctx, opts.Targets[0])
		if err != nil {
			return models.RunSummary{RunID: sc.RunID(), Accounts: []models.AccountResult{res}}, err
		}
	}

	return sc.ScrapeAccounts(ctx, opts.Targets)
}
