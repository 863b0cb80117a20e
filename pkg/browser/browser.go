// Package browser drives a headless Chromium through the Instagram login
// form and hands back the resulting cookies.
package browser

import (
	"errors"
	"fmt"
	"time"

	"github.com/playwright-community/playwright-go"

	"igharvest/pkg/config"
	"igharvest/pkg/logger"
)

// Options controls how the browser is launched.
type Options struct {
	Headless       bool
	Timeout        time.Duration
	SlowMo         float64
	UserAgent      string
	Locale         string
	ViewportWidth  int
	ViewportHeight int
}

// OptionsFromConfig maps the browser and client sections of the config.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Headless:       cfg.Browser.Headless,
		Timeout:        cfg.Browser.Timeout,
		SlowMo:         cfg.Browser.SlowMo,
		UserAgent:      cfg.Instagram.UserAgent,
		Locale:         cfg.Browser.Locale,
		ViewportWidth:  1280,
		ViewportHeight: 800,
	}
}

// Browser owns a playwright driver, a Chromium instance and one context.
type Browser struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	context playwright.BrowserContext
	timeout time.Duration
	logger  logger.Logger
}

// Launch starts playwright and opens a fresh browser context.
func Launch(opts Options, log logger.Logger) (*Browser, error) {
	if log == nil {
		log = logger.GetLogger()
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}

	launchOpts := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
		Args: []string{
			"--disable-blink-features=AutomationControlled",
			"--disable-dev-shm-usage",
		},
	}
	if opts.SlowMo > 0 {
		launchOpts.SlowMo = playwright.Float(opts.SlowMo)
	}

	chromium, err := pw.Chromium.Launch(launchOpts)
	if err != nil {
		pw.Stop()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	contextOpts := playwright.BrowserNewContextOptions{
		AcceptDownloads:   playwright.Bool(false),
		JavaScriptEnabled: playwright.Bool(true),
	}
	if opts.UserAgent != "" {
		contextOpts.UserAgent = playwright.String(opts.UserAgent)
	}
	if opts.Locale != "" {
		contextOpts.Locale = playwright.String(opts.Locale)
	}
	if opts.ViewportWidth > 0 && opts.ViewportHeight > 0 {
		contextOpts.Viewport = &playwright.Size{Width: opts.ViewportWidth, Height: opts.ViewportHeight}
	}

	bctx, err := chromium.NewContext(contextOpts)
	if err != nil {
		chromium.Close()
		pw.Stop()
		return nil, fmt.Errorf("failed to create browser context: %w", err)
	}

	return &Browser{
		pw:      pw,
		browser: chromium,
		context: bctx,
		timeout: opts.Timeout,
		logger:  log.WithField("component", "browser"),
	}, nil
}

// NewPage opens a page with the configured default timeout.
func (b *Browser) NewPage() (playwright.Page, error) {
	page, err := b.context.NewPage()
	if err != nil {
		return nil, fmt.Errorf("failed to create new page: %w", err)
	}
	if b.timeout > 0 {
		page.SetDefaultTimeout(float64(b.timeout.Milliseconds()))
	}
	return page, nil
}

// Context exposes the browser context, which holds the cookie store.
func (b *Browser) Context() playwright.BrowserContext {
	return b.context
}

// Close tears down the context, the browser and the driver.
func (b *Browser) Close() error {
	var errs []error
	if b.context != nil {
		if err := b.context.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close context: %w", err))
		}
	}
	if b.browser != nil {
		if err := b.browser.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close browser: %w", err))
		}
	}
	if b.pw != nil {
		if err := b.pw.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop playwright: %w", err))
		}
	}
	return errors.Join(errs...)
}
