package scraper

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"igharvest/internal/igtest"
	"igharvest/pkg/checkpoint"
	"igharvest/pkg/config"
	errs "igharvest/pkg/errors"
	"igharvest/pkg/instagram"
	"igharvest/pkg/logger"
	"igharvest/pkg/models"
	"igharvest/pkg/pacing"
)

const (
	pageDelay    = time.Second
	postDelay    = 3 * time.Second
	accountDelay = 20 * time.Second
	cooldown     = 60 * time.Second
	itemCooldown = 30 * time.Second
)

type harness struct {
	srv      *igtest.Server
	clock    *igtest.Clock
	cfg      *config.Config
	log      *logger.TestLogger
	observer *recordingObserver
	scraper  *Scraper
	cpDir    string
}

func newHarness(t *testing.T, mutate func(cfg *config.Config)) *harness {
	t.Helper()

	h := &harness{
		srv:      igtest.NewServer(),
		clock:    igtest.NewClock(),
		log:      logger.NewTestLogger(),
		observer: &recordingObserver{},
		cpDir:    t.TempDir(),
	}
	t.Cleanup(h.srv.Close)

	cfg := config.DefaultConfig()
	cfg.Output.BaseDirectory = t.TempDir()
	cfg.Pacing.Default = config.RangeConfig{Min: pageDelay, Max: pageDelay}
	cfg.Pacing.Ranges = map[string]config.RangeConfig{
		"post_detail": {Min: postDelay, Max: postDelay},
		"account":     {Min: accountDelay, Max: accountDelay},
	}
	cfg.Pacing.Floor = 0
	cfg.Pacing.Cooldown = cooldown
	cfg.Pacing.ItemCooldown = itemCooldown
	if mutate != nil {
		mutate(cfg)
	}
	h.cfg = cfg

	policy := pacing.New(pacing.FromConfig(cfg.Pacing),
		pacing.WithClock(h.clock.Now),
		pacing.WithSleeper(h.clock.Sleep),
		pacing.WithRand(rand.NewSource(1)),
		pacing.WithLogger(h.log),
	)
	client, err := instagram.NewClient(instagram.Options{
		BaseURL:  h.srv.URL(),
		PageSize: 2,
		Pacer:    policy,
		Logger:   h.log,
	})
	require.NoError(t, err)

	h.scraper, err = New(Options{
		Client:        client,
		Policy:        policy,
		Config:        cfg,
		Logger:        h.log,
		Observer:      h.observer,
		CheckpointDir: h.cpDir,
		Clock:         h.clock.Now,
	})
	require.NoError(t, err)
	return h
}

func (h *harness) checkpoints(t *testing.T, username string) *checkpoint.Manager {
	t.Helper()
	m, err := checkpoint.NewManagerInDir(h.cpDir, username)
	require.NoError(t, err)
	return m
}

type recordingObserver struct {
	started  []string
	posts    int
	finished []models.AccountResult
}

func (o *recordingObserver) AccountStarted(username string, index, total int) {
	o.started = append(o.started, username)
}

func (o *recordingObserver) PostScraped(username string, done, total int) { o.posts++ }

func (o *recordingObserver) AccountFinished(result models.AccountResult) {
	o.finished = append(o.finished, result)
}

func fixture(username, id string, n int) igtest.Profile {
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	posts := make([]igtest.Post, n)
	for i := range posts {
		posts[i] = igtest.Post{
			ID:        id + "-" + string(rune('0'+i)),
			Shortcode: "SC" + string(rune('A'+i)),
			Caption:   "golden hour #Travel with @friend.one",
			TakenAt:   base.Add(-time.Duration(i) * time.Hour),
			Likes:     90 + i,
			Comments:  10,
		}
	}
	return igtest.Profile{
		ID:        id,
		Username:  username,
		FullName:  strings.ToUpper(username),
		Followers: 1000,
		Following: 10,
		Posts:     posts,
	}
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestScrapeAccount(t *testing.T) {
	h := newHarness(t, nil)
	h.srv.AddProfile(fixture("natgeo", "42", 5))

	res, err := h.scraper.ScrapeAccount(context.Background(), "@natgeo")
	require.NoError(t, err)

	assert.Equal(t, models.StatusSuccess, res.Status)
	assert.Equal(t, "natgeo", res.Username)
	assert.Equal(t, 5, res.PostsScraped)
	assert.Equal(t, 0, res.PostsFailed)
	assert.Equal(t, 1000, res.Followers)
	assert.Equal(t, 3, h.srv.Count("timeline:42"))
	assert.Equal(t, 5, h.clock.Count(postDelay))
	assert.Zero(t, h.clock.Count(cooldown))
	assert.Equal(t, 5, h.observer.posts)
	require.Len(t, h.observer.finished, 1)

	require.Len(t, res.Files, 2)
	data, err := os.ReadFile(res.Files[0])
	require.NoError(t, err)
	var export models.Export
	require.NoError(t, json.Unmarshal(data, &export))
	assert.Equal(t, "natgeo", export.ProfileInfo.Username)
	assert.Equal(t, 5, export.ProfileInfo.TotalPosts)
	assert.Len(t, export.Posts, 5)
	assert.Equal(t, 5, export.Summary.TotalPostsScraped)
	assert.Equal(t, h.scraper.RunID(), export.Summary.RunID)

	first := export.Posts[0]
	assert.Equal(t, "SCA", first.Shortcode)
	assert.Equal(t, "https://www.instagram.com/p/SCA/", first.URL)
	assert.Equal(t, []string{"travel"}, first.Hashtags)
	assert.Equal(t, []string{"friend.one"}, first.Mentions)
	assert.Equal(t, 100, first.EngagementScore)
	assert.InDelta(t, 10.0, first.EngagementRate, 0.0001)

	rows := readCSV(t, res.Files[1])
	assert.Len(t, rows, 6)
	assert.Equal(t, models.PostCSVHeader, rows[0])

	assert.False(t, h.checkpoints(t, "natgeo").Exists(), "checkpoint removed after success")
}

func TestScrapeAccountMaxPosts(t *testing.T) {
	h := newHarness(t, func(cfg *config.Config) { cfg.Scrape.MaxPosts = 3 })
	h.srv.AddProfile(fixture("natgeo", "42", 5))

	res, err := h.scraper.ScrapeAccount(context.Background(), "natgeo")
	require.NoError(t, err)
	assert.Equal(t, 3, res.PostsScraped)
	assert.Equal(t, 2, h.srv.Count("timeline:42"))
}

func TestScrapeAccountFetchDetails(t *testing.T) {
	h := newHarness(t, func(cfg *config.Config) { cfg.Scrape.FetchDetails = true })
	h.srv.AddProfile(fixture("natgeo", "42", 3))

	res, err := h.scraper.ScrapeAccount(context.Background(), "natgeo")
	require.NoError(t, err)
	assert.Equal(t, 3, res.PostsScraped)
	for _, sc := range []string{"SCA", "SCB", "SCC"} {
		assert.Equal(t, 1, h.srv.Count("post:"+sc), sc)
	}
}

func TestScrapeAccountPrivateProfile(t *testing.T) {
	h := newHarness(t, nil)
	p := fixture("secret", "7", 4)
	p.IsPrivate = true
	h.srv.AddProfile(p)

	res, err := h.scraper.ScrapeAccount(context.Background(), "secret")
	require.NoError(t, err)
	assert.Equal(t, models.StatusSuccess, res.Status)
	assert.Zero(t, res.PostsScraped)
	assert.Zero(t, h.srv.Count("timeline:7"))
	require.Len(t, res.Files, 1, "profile export only, no posts csv")
	assert.True(t, strings.HasSuffix(res.Files[0], ".json"))
}

func TestScrapeAccountRetriesTimelinePage(t *testing.T) {
	h := newHarness(t, nil)
	h.srv.AddProfile(fixture("natgeo", "42", 3))
	h.srv.Fail("timeline:42", igtest.FaultServerError)

	res, err := h.scraper.ScrapeAccount(context.Background(), "natgeo")
	require.NoError(t, err)
	assert.Equal(t, 3, res.PostsScraped)
	assert.Equal(t, 1, h.clock.Count(cooldown))
	assert.Equal(t, 3, h.srv.Count("timeline:42"))
}

func TestScrapeAccountExhaustedKeepsPartialResults(t *testing.T) {
	h := newHarness(t, nil)
	h.srv.AddProfile(fixture("natgeo", "42", 3))
	h.srv.Fail("timeline:42", igtest.FaultServerError, igtest.FaultServerError, igtest.FaultServerError)

	res, err := h.scraper.ScrapeAccount(context.Background(), "natgeo")
	require.Error(t, err)
	assert.False(t, errs.IsFatal(err))
	assert.Equal(t, models.StatusFailed, res.Status)
	assert.Equal(t, 2, h.clock.Count(cooldown))
	require.Len(t, res.Files, 1, "profile export is still written")
	assert.NotEmpty(t, res.Error)
	assert.True(t, h.checkpoints(t, "natgeo").Exists(), "checkpoint kept for resume")

	cp, err := h.checkpoints(t, "natgeo").Load()
	require.NoError(t, err)
	require.NotNil(t, cp)
	assert.Len(t, cp.Posts, res.PostsScraped, "posts of the failed run are kept for resume")
}

func TestScrapeAccountCheckpointIsFatal(t *testing.T) {
	h := newHarness(t, nil)
	h.srv.AddProfile(fixture("natgeo", "42", 3))
	h.srv.Fail("timeline:42", igtest.FaultCheckpoint)

	res, err := h.scraper.ScrapeAccount(context.Background(), "natgeo")
	require.Error(t, err)
	assert.True(t, errs.IsCheckpoint(err))
	assert.Equal(t, models.StatusAborted, res.Status)
	assert.Equal(t, 1, h.srv.Count("timeline:42"))
	assert.Zero(t, h.clock.Count(cooldown))
}

func TestScrapeAccountSkipsFailedItem(t *testing.T) {
	h := newHarness(t, func(cfg *config.Config) { cfg.Scrape.FetchDetails = true })
	h.srv.AddProfile(fixture("natgeo", "42", 5))
	h.srv.Fail("post:SCB", igtest.FaultServerError)

	res, err := h.scraper.ScrapeAccount(context.Background(), "natgeo")
	require.NoError(t, err)
	assert.Equal(t, models.StatusSuccess, res.Status)
	assert.Equal(t, 4, res.PostsScraped)
	assert.Equal(t, 1, res.PostsFailed)
	assert.Equal(t, 1, h.clock.Count(itemCooldown))
	assert.Equal(t, 1, h.srv.Count("post:SCB"), "item failures are not retried")
}

func TestScrapeAccountResume(t *testing.T) {
	h := newHarness(t, func(cfg *config.Config) { cfg.Scrape.Resume = true })
	h.srv.AddProfile(fixture("natgeo", "42", 5))

	cps := h.checkpoints(t, "natgeo")
	cp, err := cps.Create("natgeo", "42", "earlier-run")
	require.NoError(t, err)
	require.NoError(t, cps.StartPage(cp, "c2"))
	require.NoError(t, cps.RecordPost(cp, models.PostRecord{Username: "natgeo", Shortcode: "SCA"}))
	require.NoError(t, cps.RecordPost(cp, models.PostRecord{Username: "natgeo", Shortcode: "SCC"}))
	require.NoError(t, cps.Flush(cp))

	res, err := h.scraper.ScrapeAccount(context.Background(), "natgeo")
	require.NoError(t, err)

	shortcodes := make([]string, 0, len(res.Posts))
	for _, p := range res.Posts {
		shortcodes = append(shortcodes, p.Shortcode)
	}
	assert.Equal(t, []string{"SCA", "SCC", "SCD", "SCE"}, shortcodes)
	assert.Equal(t, 2, h.srv.Count("timeline:42"), "pages c2 and c4 only")
	assert.Equal(t, 2, h.clock.Count(postDelay))
	assert.False(t, cps.Exists())
}

func TestScrapeAccountIgnoresCheckpointForOtherUser(t *testing.T) {
	h := newHarness(t, func(cfg *config.Config) { cfg.Scrape.Resume = true })
	h.srv.AddProfile(fixture("natgeo", "42", 3))

	cps := h.checkpoints(t, "natgeo")
	cp, err := cps.Create("natgeo", "999", "earlier-run")
	require.NoError(t, err)
	require.NoError(t, cps.StartPage(cp, "c2"))

	res, err := h.scraper.ScrapeAccount(context.Background(), "natgeo")
	require.NoError(t, err)
	assert.Equal(t, 3, res.PostsScraped)
}

func TestScrapeAccountInvalidUsername(t *testing.T) {
	h := newHarness(t, nil)

	res, err := h.scraper.ScrapeAccount(context.Background(), "not a user!")
	require.Error(t, err)
	assert.Equal(t, models.StatusFailed, res.Status)
	assert.Empty(t, h.srv.Requests())
}

func TestScrapeAccountsFatalSkipsRemaining(t *testing.T) {
	h := newHarness(t, nil)
	h.srv.AddProfile(fixture("first", "1", 2))
	h.srv.AddProfile(fixture("second", "2", 2))
	h.srv.AddProfile(fixture("third", "3", 2))
	h.srv.Fail("profile:second", igtest.FaultCheckpoint)

	summary, err := h.scraper.ScrapeAccounts(context.Background(), []string{"first", "second", "third"})
	require.Error(t, err)
	assert.True(t, errs.IsCheckpoint(err))

	require.Len(t, summary.Accounts, 3)
	assert.Equal(t, models.StatusSuccess, summary.Accounts[0].Status)
	assert.Equal(t, models.StatusAborted, summary.Accounts[1].Status)
	assert.Equal(t, models.StatusSkipped, summary.Accounts[2].Status)
	assert.Zero(t, h.srv.Count("profile:third"))
	assert.Equal(t, 1, h.clock.Count(accountDelay))
	assert.Equal(t, []string{"first", "second"}, h.observer.started)

	rows := readCSV(t, summary.SummaryFile)
	require.Len(t, rows, 4)
	assert.Equal(t, models.SummaryCSVHeader, rows[0])
	assert.Equal(t, []string{"third", "0", "skipped", "0"}, rows[3])
}

func TestScrapeAccountsContinuesAfterFailure(t *testing.T) {
	h := newHarness(t, nil)
	h.srv.AddProfile(fixture("first", "1", 2))
	h.srv.AddProfile(fixture("third", "3", 1))

	summary, err := h.scraper.ScrapeAccounts(context.Background(), []string{"first", "ghost", "third"})
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Count(models.StatusSuccess))
	assert.Equal(t, 1, summary.Count(models.StatusFailed))
	assert.Equal(t, 3, summary.TotalPosts())
	assert.Equal(t, 2, h.clock.Count(accountDelay))
	assert.Equal(t, 3, h.srv.Count("profile:ghost"), "not found is retried within the attempt limit")
	assert.FileExists(t, summary.SummaryFile)
}

func TestScrapeAccountsCancelled(t *testing.T) {
	h := newHarness(t, nil)
	h.srv.AddProfile(fixture("first", "1", 1))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary, err := h.scraper.ScrapeAccounts(ctx, []string{"first", "second"})
	require.Error(t, err)
	assert.True(t, errs.IsFatal(err))
	require.Len(t, summary.Accounts, 2)
	assert.Equal(t, models.StatusAborted, summary.Accounts[0].Status)
	assert.Equal(t, models.StatusSkipped, summary.Accounts[1].Status)
}

func TestProbe(t *testing.T) {
	h := newHarness(t, func(cfg *config.Config) { cfg.Scrape.ProbePosts = 2 })
	h.srv.AddProfile(fixture("natgeo", "42", 5))

	res, err := h.scraper.Probe(context.Background(), "natgeo")
	require.NoError(t, err)
	assert.Equal(t, 2, res.PostsScraped)
	for _, f := range res.Files {
		assert.Equal(t, filepath.Join(h.cfg.Output.BaseDirectory, "probe"), filepath.Dir(f))
	}
	assert.False(t, h.checkpoints(t, "natgeo").Exists())
}

func TestProbeFailure(t *testing.T) {
	h := newHarness(t, func(cfg *config.Config) { cfg.Scrape.ProbePosts = 2 })
	h.srv.AddProfile(fixture("natgeo", "42", 5))
	h.srv.Fail("profile:natgeo", igtest.FaultLoginRequired, igtest.FaultLoginRequired, igtest.FaultLoginRequired)

	_, err := h.scraper.Probe(context.Background(), "natgeo")
	require.Error(t, err)
	assert.True(t, errs.IsFatal(err))
	assert.Equal(t, 3, h.srv.Count("profile:natgeo"))
}

func TestExpiredSessionIsRetried(t *testing.T) {
	h := newHarness(t, nil)
	h.srv.AddProfile(fixture("natgeo", "42", 2))
	h.srv.Fail("profile:natgeo", igtest.FaultLoginRequired)

	res, err := h.scraper.ScrapeAccount(context.Background(), "natgeo")
	require.NoError(t, err)
	assert.Equal(t, 2, res.PostsScraped)
	assert.Equal(t, 2, h.srv.Count("profile:natgeo"))
	assert.Equal(t, 1, h.clock.Count(cooldown))
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(Options{Config: config.DefaultConfig()})
	assert.Error(t, err)
}
