package instagram

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/net/publicsuffix"

	errs "igharvest/pkg/errors"
	"igharvest/pkg/logger"
	"igharvest/pkg/pacing"
	"igharvest/pkg/session"
)

// maxBodySize caps how much of a response is read.
const maxBodySize = 16 << 20

// Pacer is consulted before every outgoing request.
type Pacer interface {
	WaitBefore(ctx context.Context, rc pacing.RequestContext) (time.Duration, error)
}

// Options configures a Client. Zero values fall back to defaults.
type Options struct {
	BaseURL   string
	UserAgent string
	AppID     string
	Timeout   time.Duration
	PageSize  int

	Pacer      Pacer
	Logger     logger.Logger
	HTTPClient *http.Client
}

// Client represents an authenticated Instagram web client
type Client struct {
	httpClient *http.Client
	endpoints  endpoints
	base       *url.URL
	headers    map[string]string
	pageSize   int
	pacer      Pacer
	logger     logger.Logger
	session    *session.Session
}

// NewClient creates a new Instagram client. Redirects are never followed so
// that challenge and login redirects surface as errors.
func NewClient(opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		opts.BaseURL = BaseURL
	}
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid base URL %q: %w", opts.BaseURL, err)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	if opts.Logger == nil {
		opts.Logger = logger.GetLogger()
	}

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: opts.Timeout}
	}
	hc.Jar = jar
	hc.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}

	headers := map[string]string{
		"Accept":           "*/*",
		"Accept-Language":  "en-US,en;q=0.9",
		"X-Requested-With": "XMLHttpRequest",
		"Referer":          base.String() + "/",
	}
	if opts.UserAgent != "" {
		headers["User-Agent"] = opts.UserAgent
	}
	if opts.AppID != "" {
		headers["X-IG-App-ID"] = opts.AppID
	}

	return &Client{
		httpClient: hc,
		endpoints:  endpoints{base: base.String()},
		base:       base,
		headers:    headers,
		pageSize:   opts.PageSize,
		pacer:      opts.Pacer,
		logger:     opts.Logger.WithField("component", "instagram"),
	}, nil
}

// UseSession loads the session cookies into the client.
func (c *Client) UseSession(s *session.Session) error {
	if err := session.Require(s.Cookies); err != nil {
		return errs.Wrap(errs.ErrorTypeAuth, err, "unusable session")
	}
	cookies := session.ToHTTP(s.Cookies)
	if !strings.HasSuffix(c.base.Hostname(), session.Domain) {
		// host-only cookies for non-Instagram hosts such as a local mirror
		for _, ck := range cookies {
			ck.Domain = ""
			ck.Secure = c.base.Scheme == "https"
		}
	}
	c.httpClient.Jar.SetCookies(c.base, cookies)
	c.headers["X-CSRFToken"] = s.CSRFToken()
	c.session = s
	return nil
}

// CurrentUser returns the account the session belongs to. It is the cheapest
// way to check that a session is still accepted.
func (c *Client) CurrentUser(ctx context.Context) (*Account, error) {
	body, err := c.get(ctx, pacing.RequestContext{Kind: pacing.KindLogin}, c.endpoints.currentUser())
	if err != nil {
		return nil, err
	}
	return parseAccount(body)
}

// FetchProfile fetches a target's profile. When the JSON endpoint answers
// with something other than JSON, the public profile page is parsed instead.
func (c *Client) FetchProfile(ctx context.Context, username string) (*Profile, error) {
	rc := pacing.RequestContext{Kind: pacing.KindProfile, Target: username}
	body, err := c.get(ctx, rc, c.endpoints.profile(username))
	if err != nil {
		return nil, err
	}

	profile, err := parseProfile(body, username)
	if err == nil || gjson.ValidBytes(body) {
		return profile, err
	}

	c.logger.WarnWithFields("profile endpoint returned non-JSON, trying profile page", map[string]interface{}{
		"username": username,
	})
	page, pageErr := c.get(ctx, rc, c.endpoints.profilePage(username))
	if pageErr != nil {
		// a refusal on the page outranks the parse error of the endpoint
		var typed *errs.Error
		if errs.IsFatal(pageErr) || errors.As(pageErr, &typed) {
			return nil, pageErr
		}
		return nil, err
	}
	fallback, pageErr := ParseProfileHTML(bytes.NewReader(page))
	if pageErr != nil {
		return nil, err
	}
	if fallback.Username == "" {
		fallback.Username = username
	}
	return fallback, nil
}

// FetchTimeline fetches one page of a user's posts after the given cursor.
func (c *Client) FetchTimeline(ctx context.Context, userID, after string) (*TimelinePage, error) {
	rc := pacing.RequestContext{Kind: pacing.KindPostPage, Target: userID}
	body, err := c.get(ctx, rc, c.endpoints.timeline(userID, after, c.pageSize))
	if err != nil {
		return nil, err
	}
	return parseTimeline(body, userID)
}

// FetchPost fetches the full detail of a single post.
func (c *Client) FetchPost(ctx context.Context, shortcode string) (*Post, error) {
	rc := pacing.RequestContext{Kind: pacing.KindPostDetail, Target: shortcode}
	body, err := c.get(ctx, rc, c.endpoints.post(shortcode))
	if err != nil {
		return nil, err
	}
	return parsePost(body, shortcode)
}

// get paces, sends and translates a GET request.
func (c *Client) get(ctx context.Context, rc pacing.RequestContext, rawURL string) ([]byte, error) {
	if c.pacer != nil {
		if _, err := c.pacer.WaitBefore(ctx, rc); err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, errs.Wrap(errs.ErrorTypeUnknown, err, "failed to create request")
	}
	for key, value := range c.headers {
		req.Header.Set(key, value)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		c.logger.WithError(err).WarnWithFields("HTTP request failed", map[string]interface{}{
			"url":    rawURL,
			"target": rc.Target,
		})
		return nil, errs.Wrap(errs.ErrorTypeNetwork, err, "request failed").WithTarget(rc.Target)
	}
	defer resp.Body.Close()
	logger.LogRequest(c.logger, req.Method, rawURL, resp.StatusCode, time.Since(start))

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, errs.Wrap(errs.ErrorTypeNetwork, err, "failed to read response body").WithTarget(rc.Target)
	}

	if err := checkResponse(resp, body); err != nil {
		var apiErr *errs.Error
		if errors.As(err, &apiErr) {
			apiErr.Target = rc.Target
		}
		return nil, err
	}
	return body, nil
}

// checkResponse translates Instagram's ways of refusing a request into typed
// errors. Challenge and login signals win over the status code.
func checkResponse(resp *http.Response, body []byte) error {
	status := resp.StatusCode

	if status >= 300 && status < 400 {
		loc := resp.Header.Get("Location")
		switch {
		case strings.Contains(loc, "/challenge/"), strings.Contains(loc, "/checkpoint/"):
			return errs.New(errs.ErrorTypeCheckpoint, status, "redirected to security checkpoint")
		case strings.Contains(loc, "/accounts/login"):
			return errs.New(errs.ErrorTypeAuth, status, "redirected to login, session expired")
		default:
			return errs.New(errs.ErrorTypeUnknown, status, fmt.Sprintf("unexpected redirect to %s", loc))
		}
	}

	if gjson.ValidBytes(body) {
		message := gjson.GetBytes(body, "message").String()
		switch {
		case message == "checkpoint_required", message == "challenge_required",
			gjson.GetBytes(body, "checkpoint_url").Exists():
			return errs.New(errs.ErrorTypeCheckpoint, status, "security checkpoint required")
		case message == "login_required",
			gjson.GetBytes(body, "require_login").Bool(),
			gjson.GetBytes(body, "requires_to_login").Bool():
			return errs.New(errs.ErrorTypeAuth, status, "login required")
		case strings.Contains(strings.ToLower(message), "wait a few minutes"):
			return errs.New(errs.ErrorTypeRateLimit, status, message)
		}
	}

	switch {
	case status == http.StatusOK:
		return nil
	case status == http.StatusUnauthorized:
		return errs.New(errs.ErrorTypeAuth, status, "authentication required")
	case status == http.StatusNotFound:
		return errs.New(errs.ErrorTypeNotFound, status, "resource not found")
	case status == http.StatusTooManyRequests:
		return errs.New(errs.ErrorTypeRateLimit, status, "rate limit exceeded")
	case status >= 500:
		return errs.New(errs.ErrorTypeServerError, status, "server error")
	case status >= 400:
		return errs.New(errs.ErrorTypeUnknown, status, fmt.Sprintf("unexpected status code: %d", status))
	}
	return nil
}
