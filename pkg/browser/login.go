package browser

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/playwright-community/playwright-go"

	"igharvest/pkg/config"
	errs "igharvest/pkg/errors"
	"igharvest/pkg/logger"
	"igharvest/pkg/pacing"
	"igharvest/pkg/session"
)

const (
	usernameSelector = "input[name='username']"
	passwordSelector = "input[name='password']"
	submitSelector   = "button[type='submit']"
)

// Credentials are the account used to log in.
type Credentials struct {
	Username string
	Password string
}

// Authenticator performs one login attempt.
type Authenticator interface {
	Login(ctx context.Context, creds Credentials) ([]session.Cookie, error)
}

// PlaywrightLogin logs in through the real web form.
type PlaywrightLogin struct {
	opts        Options
	loginURL    string
	settleDelay time.Duration
	submitDelay time.Duration
	logger      logger.Logger
}

// NewPlaywrightLogin builds an Authenticator from config.
func NewPlaywrightLogin(cfg *config.Config, log logger.Logger) *PlaywrightLogin {
	if log == nil {
		log = logger.GetLogger()
	}
	return &PlaywrightLogin{
		opts:        OptionsFromConfig(cfg),
		loginURL:    cfg.Browser.LoginURL,
		settleDelay: cfg.Browser.SettleDelay,
		submitDelay: cfg.Browser.SubmitDelay,
		logger:      log.WithField("component", "login"),
	}
}

// Login launches a browser, submits the form and returns every cookie the
// context holds afterwards. A browser is launched per attempt so a failed
// attempt leaves nothing behind.
func (l *PlaywrightLogin) Login(ctx context.Context, creds Credentials) ([]session.Cookie, error) {
	b, err := Launch(l.opts, l.logger)
	if err != nil {
		return nil, errs.Wrap(errs.ErrorTypeNetwork, err, "browser unavailable")
	}
	defer func() {
		if cerr := b.Close(); cerr != nil {
			l.logger.WithError(cerr).Warn("failed to close browser")
		}
	}()

	page, err := b.NewPage()
	if err != nil {
		return nil, errs.Wrap(errs.ErrorTypeNetwork, err, "failed to open page")
	}

	l.logger.InfoWithFields("opening login page", map[string]interface{}{"url": l.loginURL})
	if _, err := page.Goto(l.loginURL, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
	}); err != nil {
		return nil, errs.Wrap(errs.ErrorTypeNetwork, err, "failed to load login page")
	}
	if err := sleep(ctx, l.settleDelay); err != nil {
		return nil, err
	}

	if err := page.Locator(usernameSelector).Fill(creds.Username); err != nil {
		return nil, errs.Wrap(errs.ErrorTypeParsing, err, "username field not found")
	}
	if err := page.Locator(passwordSelector).Fill(creds.Password); err != nil {
		return nil, errs.Wrap(errs.ErrorTypeParsing, err, "password field not found")
	}
	if err := page.Locator(submitSelector).Click(); err != nil {
		return nil, errs.Wrap(errs.ErrorTypeParsing, err, "submit button not found")
	}

	if err := page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
		State: playwright.LoadStateNetworkidle,
	}); err != nil {
		return nil, errs.Wrap(errs.ErrorTypeNetwork, err, "login did not settle")
	}
	if err := sleep(ctx, l.submitDelay); err != nil {
		return nil, err
	}

	if err := classifyLanding(page.URL()); err != nil {
		return nil, err
	}

	raw, err := b.Context().Cookies()
	if err != nil {
		return nil, errs.Wrap(errs.ErrorTypeUnknown, err, "failed to read cookies")
	}
	cookies := convertCookies(raw)
	l.logger.InfoWithFields("login finished", map[string]interface{}{
		"cookies": len(cookies),
		"url":     page.URL(),
	})
	return cookies, nil
}

// classifyLanding inspects where the login form sent us.
func classifyLanding(url string) error {
	switch {
	case strings.Contains(url, "/challenge/"), strings.Contains(url, "/checkpoint/"),
		strings.Contains(url, "/two_factor"):
		return errs.New(errs.ErrorTypeCheckpoint, 0, fmt.Sprintf("login stopped at verification page %s", url))
	case strings.Contains(url, "/accounts/login"):
		return errs.New(errs.ErrorTypeAuth, 0, "still on login page, credentials rejected")
	}
	return nil
}

func convertCookies(raw []playwright.Cookie) []session.Cookie {
	out := make([]session.Cookie, 0, len(raw))
	for _, c := range raw {
		sc := session.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  c.Expires,
			HTTPOnly: c.HttpOnly,
			Secure:   c.Secure,
		}
		if c.SameSite != nil {
			sc.SameSite = string(*c.SameSite)
		}
		out = append(out, sc)
	}
	return out
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// AcquireCookies runs login attempts under the pacing policy. Verification
// challenges and rejected credentials end the attempts at once. Anything
// else, including a login that left required cookies unset, is retried after
// the policy's cooldown.
func AcquireCookies(ctx context.Context, a Authenticator, policy *pacing.Policy, creds Credentials, attempts int) ([]session.Cookie, pacing.Outcome, error) {
	rc := pacing.RequestContext{Kind: pacing.KindLogin, Target: creds.Username}
	var cookies []session.Cookie

	outcome, err := policy.ExecuteWithRetry(ctx, rc, func(ctx context.Context) error {
		if _, err := policy.WaitBefore(ctx, rc); err != nil {
			return err
		}
		got, err := a.Login(ctx, creds)
		if err != nil {
			return err
		}
		if err := session.Require(session.Filter(got)); err != nil {
			return fmt.Errorf("login produced no usable session: %w", err)
		}
		cookies = got
		return nil
	}, attempts)
	return cookies, outcome, err
}
