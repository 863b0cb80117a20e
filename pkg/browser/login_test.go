package browser

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/playwright-community/playwright-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"igharvest/internal/igtest"
	"igharvest/pkg/config"
	errs "igharvest/pkg/errors"
	"igharvest/pkg/logger"
	"igharvest/pkg/pacing"
	"igharvest/pkg/session"
)

// scriptedLogin returns queued results, one per attempt.
type scriptedLogin struct {
	results []error
	cookies []session.Cookie
	calls   int
}

func (s *scriptedLogin) Login(ctx context.Context, creds Credentials) ([]session.Cookie, error) {
	i := s.calls
	s.calls++
	if i < len(s.results) && s.results[i] != nil {
		return nil, s.results[i]
	}
	return s.cookies, nil
}

func goodCookies() []session.Cookie {
	return []session.Cookie{
		{Name: "sessionid", Value: "s", Domain: ".instagram.com"},
		{Name: "ds_user_id", Value: "1", Domain: ".instagram.com"},
		{Name: "csrftoken", Value: "c", Domain: ".instagram.com"},
	}
}

func newPolicy(clock *igtest.Clock) *pacing.Policy {
	return pacing.New(pacing.DefaultConfig(),
		pacing.WithClock(clock.Now),
		pacing.WithSleeper(clock.Sleep),
		pacing.WithRand(rand.NewSource(1)),
		pacing.WithLogger(logger.NewTestLogger()),
	)
}

func TestAcquireCookiesSucceedsAfterTransientFailure(t *testing.T) {
	clock := igtest.NewClock()
	auth := &scriptedLogin{
		results: []error{errs.New(errs.ErrorTypeNetwork, 0, "timeout")},
		cookies: goodCookies(),
	}

	cookies, outcome, err := AcquireCookies(context.Background(), auth, newPolicy(clock), Credentials{Username: "me"}, 3)
	require.NoError(t, err)
	assert.Equal(t, pacing.Succeeded, outcome)
	assert.Len(t, cookies, 3)
	assert.Equal(t, 2, auth.calls)
	assert.Equal(t, 1, clock.Count(60*time.Second))
}

func TestAcquireCookiesExhausts(t *testing.T) {
	clock := igtest.NewClock()
	fail := errors.New("browser crashed")
	auth := &scriptedLogin{results: []error{fail, fail, fail}}

	_, outcome, err := AcquireCookies(context.Background(), auth, newPolicy(clock), Credentials{Username: "me"}, 3)
	assert.Equal(t, pacing.RetriedExhausted, outcome)
	assert.ErrorIs(t, err, fail)
	assert.Equal(t, 3, auth.calls)
	assert.Equal(t, 2, clock.Count(60*time.Second))
}

func TestAcquireCookiesStopsAtCheckpoint(t *testing.T) {
	clock := igtest.NewClock()
	auth := &scriptedLogin{results: []error{classifyLanding("https://www.instagram.com/challenge/action/")}}

	_, outcome, err := AcquireCookies(context.Background(), auth, newPolicy(clock), Credentials{Username: "me"}, 3)
	assert.Equal(t, pacing.AbortedFatal, outcome)
	assert.True(t, errs.IsCheckpoint(err))
	assert.Equal(t, 1, auth.calls)
	assert.Zero(t, clock.Count(60*time.Second))
}

func TestAcquireCookiesRetriesRejectedLogin(t *testing.T) {
	clock := igtest.NewClock()
	rejected := classifyLanding("https://www.instagram.com/accounts/login/?next=%2F")
	auth := &scriptedLogin{results: []error{rejected, rejected, rejected}}

	_, outcome, err := AcquireCookies(context.Background(), auth, newPolicy(clock), Credentials{Username: "me"}, 3)
	assert.Equal(t, pacing.RetriedExhausted, outcome)
	assert.Equal(t, 3, auth.calls)
	assert.Equal(t, 2, clock.Count(60*time.Second))
	assert.True(t, errs.IsFatal(err))
	assert.False(t, errs.IsCheckpoint(err))
}

func TestAcquireCookiesRetriesIncompleteSession(t *testing.T) {
	clock := igtest.NewClock()
	auth := &scriptedLogin{cookies: goodCookies()[:1]}

	_, outcome, err := AcquireCookies(context.Background(), auth, newPolicy(clock), Credentials{Username: "me"}, 2)
	assert.Equal(t, pacing.RetriedExhausted, outcome)
	assert.ErrorContains(t, err, "missing required cookies")
	assert.Equal(t, 2, auth.calls)
}

func TestClassifyLanding(t *testing.T) {
	assert.NoError(t, classifyLanding("https://www.instagram.com/"))
	assert.True(t, errs.IsCheckpoint(classifyLanding("https://www.instagram.com/accounts/login/two_factor?next=%2F")))
	assert.True(t, errs.IsCheckpoint(classifyLanding("https://www.instagram.com/checkpoint/123/")))

	err := classifyLanding("https://www.instagram.com/accounts/login/?next=%2F")
	assert.True(t, errs.IsFatal(err))
	assert.False(t, errs.IsCheckpoint(err))
}

func TestConvertCookies(t *testing.T) {
	lax := playwright.SameSiteAttributeLax
	out := convertCookies([]playwright.Cookie{
		{Name: "sessionid", Value: "v", Domain: ".instagram.com", Path: "/", Expires: 1.7e9, HttpOnly: true, Secure: true, SameSite: lax},
		{Name: "mid", Value: "m", Domain: ".instagram.com", Path: "/", Expires: -1},
	})
	require.Len(t, out, 2)
	assert.Equal(t, "Lax", out[0].SameSite)
	assert.True(t, out[0].HTTPOnly)
	assert.Equal(t, "", out[1].SameSite)
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Browser.Headless = false
	opts := OptionsFromConfig(cfg)
	assert.False(t, opts.Headless)
	assert.Equal(t, cfg.Instagram.UserAgent, opts.UserAgent)
	assert.Equal(t, "en-US", opts.Locale)
}
