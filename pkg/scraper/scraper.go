package scraper

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"igharvest/pkg/checkpoint"
	"igharvest/pkg/config"
	errs "igharvest/pkg/errors"
	"igharvest/pkg/instagram"
	"igharvest/pkg/logger"
	"igharvest/pkg/models"
	"igharvest/pkg/pacing"
	"igharvest/pkg/storage"
)

const (
	methodTimeline = "graphql_timeline"
	methodDetail   = "graphql_post_detail"
)

// Client fetches Instagram data. *instagram.Client implements it.
type Client interface {
	instagram.PageFetcher
	FetchProfile(ctx context.Context, username string) (*instagram.Profile, error)
	FetchPost(ctx context.Context, shortcode string) (*instagram.Post, error)
}

// Observer is told about account level progress. Calls are synchronous.
type Observer interface {
	AccountStarted(username string, index, total int)
	PostScraped(username string, done, total int)
	AccountFinished(result models.AccountResult)
}

type nopObserver struct{}

func (nopObserver) AccountStarted(string, int, int)      {}
func (nopObserver) PostScraped(string, int, int)         {}
func (nopObserver) AccountFinished(models.AccountResult) {}

// Options configures a Scraper. Client, Policy and Config are required.
type Options struct {
	Client   Client
	Policy   *pacing.Policy
	Config   *config.Config
	Logger   logger.Logger
	Observer Observer
	// CheckpointDir defaults to <data dir>/checkpoints.
	CheckpointDir string
	Clock         func() time.Time
}

// Scraper collects profiles and posts for a list of accounts, one at a
// time, under a single pacing policy.
type Scraper struct {
	client        Client
	policy        *pacing.Policy
	cfg           *config.Config
	store         *storage.Manager
	log           logger.Logger
	observer      Observer
	checkpointDir string
	now           func() time.Time
	runID         string
}

// New creates a Scraper writing into cfg.Output.BaseDirectory.
func New(opts Options) (*Scraper, error) {
	if opts.Client == nil || opts.Policy == nil || opts.Config == nil {
		return nil, errors.New("scraper: client, policy and config are required")
	}

	store, err := storage.NewManager(opts.Config.Output.BaseDirectory)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage manager: %w", err)
	}

	s := &Scraper{
		client:        opts.Client,
		policy:        opts.Policy,
		cfg:           opts.Config,
		store:         store,
		log:           opts.Logger,
		observer:      opts.Observer,
		checkpointDir: opts.CheckpointDir,
		now:           opts.Clock,
		runID:         uuid.NewString(),
	}
	if s.log == nil {
		s.log = logger.GetLogger()
	}
	if s.observer == nil {
		s.observer = nopObserver{}
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.checkpointDir == "" {
		dataDir, err := checkpoint.DataDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get data directory: %w", err)
		}
		s.checkpointDir = filepath.Join(dataDir, "checkpoints")
	}
	s.log = s.log.WithField("run_id", s.runID)
	return s, nil
}

// RunID identifies this scraper's run in logs and exports.
func (s *Scraper) RunID() string { return s.runID }

// OutputDir is where exports are written.
func (s *Scraper) OutputDir() string { return s.store.GetOutputDir() }

// ScrapeAccount scrapes one account into the output directory. The result
// is always populated; the error is non-nil unless the status is success.
func (s *Scraper) ScrapeAccount(ctx context.Context, username string) (models.AccountResult, error) {
	return s.scrape(ctx, job{
		username:    username,
		store:       s.store,
		limit:       s.cfg.Scrape.MaxPosts,
		checkpoints: true,
		resume:      s.cfg.Scrape.Resume,
	})
}

// Probe scrapes at most ProbePosts posts of username into the probe
// directory, without checkpoints. Any status other than success is an
// error.
func (s *Scraper) Probe(ctx context.Context, username string) (models.AccountResult, error) {
	dir := s.cfg.Output.ProbeDirectory
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(s.cfg.Output.BaseDirectory, dir)
	}
	store, err := storage.NewManager(dir)
	if err != nil {
		return models.AccountResult{Username: username, Status: models.StatusFailed, Error: err.Error()},
			fmt.Errorf("failed to create probe directory: %w", err)
	}

	s.log.InfoWithFields("probe run", map[string]interface{}{
		"username":  username,
		"max_posts": s.cfg.Scrape.ProbePosts,
		"dir":       dir,
	})
	res, err := s.scrape(ctx, job{username: username, store: store, limit: s.cfg.Scrape.ProbePosts})
	if err != nil {
		return res, fmt.Errorf("probe of %s failed: %w", username, err)
	}
	return res, nil
}

// ScrapeAccounts scrapes targets in order, pausing between accounts. A
// fatal error stops the run: the remaining targets are recorded as skipped
// and the error is returned. Other failures are only recorded. The
// FINAL_SUMMARY csv is written in every case.
func (s *Scraper) ScrapeAccounts(ctx context.Context, targets []string) (models.RunSummary, error) {
	summary := models.RunSummary{RunID: s.runID, StartedAt: s.now().UTC()}

	if err := s.store.Lock(); err != nil {
		return summary, err
	}
	defer func() {
		if err := s.store.Unlock(); err != nil {
			s.log.WithError(err).Warn("failed to release output lock")
		}
	}()

	var fatal error
	for i, target := range targets {
		if fatal == nil && i > 0 {
			rc := pacing.RequestContext{Kind: pacing.KindAccount, Target: target}
			if _, err := s.policy.WaitBefore(ctx, rc); err != nil {
				fatal = err
			}
		}
		if fatal != nil {
			summary.Accounts = append(summary.Accounts, skipped(target, fatal))
			continue
		}

		s.observer.AccountStarted(target, i+1, len(targets))
		res, err := s.ScrapeAccount(ctx, target)
		summary.Accounts = append(summary.Accounts, res)
		if err != nil && errs.IsFatal(err) {
			fatal = err
			s.log.WithError(err).ErrorWithFields("fatal error, skipping remaining accounts", map[string]interface{}{
				"username":  target,
				"remaining": len(targets) - i - 1,
			})
		}
	}

	summary.FinishedAt = s.now().UTC()
	path, err := s.store.SaveSummary(summary.Accounts, summary.FinishedAt)
	if err != nil {
		return summary, errors.Join(fatal, fmt.Errorf("failed to write summary: %w", err))
	}
	summary.SummaryFile = path

	s.log.InfoWithFields("run finished", map[string]interface{}{
		"accounts":    len(summary.Accounts),
		"succeeded":   summary.Count(models.StatusSuccess),
		"failed":      summary.Count(models.StatusFailed),
		"skipped":     summary.Count(models.StatusSkipped),
		"total_posts": summary.TotalPosts(),
		"summary":     path,
	})
	return summary, fatal
}

func skipped(username string, cause error) models.AccountResult {
	return models.AccountResult{
		Username: username,
		Status:   models.StatusSkipped,
		Error:    fmt.Sprintf("not attempted: %v", cause),
	}
}

type job struct {
	username    string
	store       *storage.Manager
	limit       int
	checkpoints bool
	resume      bool
}

func (s *Scraper) scrape(ctx context.Context, j job) (models.AccountResult, error) {
	username := instagram.SanitizeUsername(j.username)
	r := &accountRun{
		s:        s,
		job:      j,
		username: username,
		log:      s.log.WithField("username", username),
		posts:    []models.PostRecord{},
		seen:     make(map[string]bool),
		res:      models.AccountResult{Username: username},
	}
	if !instagram.IsValidUsername(username) {
		err := errs.New(errs.ErrorTypeNotFound, 0, "invalid username").WithTarget(j.username)
		return r.finish(err)
	}

	r.log.Info("scraping account")
	return r.finish(r.run(ctx))
}

// accountRun is the state of one account's scrape.
type accountRun struct {
	s        *Scraper
	job      job
	username string
	log      logger.Logger

	profile *instagram.Profile
	posts   []models.PostRecord
	seen    map[string]bool
	total   int
	batch   *pacing.Batch

	cps *checkpoint.Manager
	cp  *checkpoint.Checkpoint

	res models.AccountResult
}

func (r *accountRun) run(ctx context.Context) error {
	if err := r.fetchProfile(ctx); err != nil {
		return err
	}
	if !r.profile.Viewable() {
		r.log.Warn("profile is private and not followed, saving profile only")
		return nil
	}

	cursor := r.openCheckpoint()
	r.total = r.profile.MediaCount
	if r.job.limit > 0 && (r.total == 0 || r.job.limit < r.total) {
		r.total = r.job.limit
	}
	r.batch = r.s.policy.NewBatch(pacing.RequestContext{Kind: pacing.KindPostDetail, Target: r.username}, r.total)

	tl := instagram.NewTimeline(r.s.client, r.profile, cursor)
	for !tl.Done() && !r.full() {
		page, err := r.nextPage(ctx, tl)
		if err != nil {
			return err
		}
		if page == nil {
			break
		}
		if r.cp != nil {
			if err := r.cps.StartPage(r.cp, tl.Cursor()); err != nil {
				r.log.WithError(err).Warn("failed to update checkpoint")
			}
		}

		for i := range page.Posts {
			if r.full() {
				break
			}
			post := &page.Posts[i]
			if post.Shortcode != "" && r.seen[post.Shortcode] {
				continue
			}
			err := r.batch.Do(ctx, post.Shortcode, func(ctx context.Context) error {
				return r.collect(ctx, post)
			})
			if err != nil {
				return fmt.Errorf("scrape %s: %w", r.username, err)
			}
		}
	}
	return nil
}

func (r *accountRun) full() bool {
	return r.job.limit > 0 && len(r.posts) >= r.job.limit
}

func (r *accountRun) fetchProfile(ctx context.Context) error {
	rc := pacing.RequestContext{Kind: pacing.KindProfile, Target: r.username}
	_, err := r.s.policy.ExecuteWithRetry(ctx, rc, func(ctx context.Context) error {
		p, err := r.s.client.FetchProfile(ctx, r.username)
		if err != nil {
			return err
		}
		r.profile = p
		return nil
	}, r.s.cfg.Pacing.FetchAttempts)
	if err != nil {
		return fmt.Errorf("fetch profile %s: %w", r.username, err)
	}

	rec := profileRecord(r.profile, r.s.now())
	r.res.Profile = &rec
	r.res.Followers = r.profile.Followers
	r.log.InfoWithFields("profile fetched", map[string]interface{}{
		"user_id":     r.profile.ID,
		"followers":   r.profile.Followers,
		"media_count": r.profile.MediaCount,
		"private":     r.profile.IsPrivate,
	})
	return nil
}

// nextPage fetches the next timeline page under the retry policy. A failed
// attempt leaves the timeline in place, so a retry asks for the same page.
func (r *accountRun) nextPage(ctx context.Context, tl *instagram.Timeline) (*instagram.TimelinePage, error) {
	var page *instagram.TimelinePage
	rc := pacing.RequestContext{Kind: pacing.KindPostPage, Target: r.username}
	_, err := r.s.policy.ExecuteWithRetry(ctx, rc, func(ctx context.Context) error {
		p, err := tl.Next(ctx)
		if err != nil {
			return err
		}
		page = p
		return nil
	}, r.s.cfg.Pacing.FetchAttempts)
	if err != nil {
		return nil, fmt.Errorf("fetch timeline of %s: %w", r.username, err)
	}
	return page, nil
}

func (r *accountRun) collect(ctx context.Context, post *instagram.Post) error {
	if r.s.cfg.Scrape.FetchDetails && post.Shortcode != "" {
		detail, err := r.s.client.FetchPost(ctx, post.Shortcode)
		if err != nil {
			return err
		}
		post = detail
	} else {
		rc := pacing.RequestContext{Kind: pacing.KindPostDetail, Target: post.Shortcode}
		if _, err := r.s.policy.WaitBefore(ctx, rc); err != nil {
			return err
		}
	}

	rec, err := postRecord(r.username, post, r.profile.Followers)
	if err != nil {
		return err
	}
	r.posts = append(r.posts, rec)
	r.seen[rec.Shortcode] = true
	if r.cp != nil {
		if err := r.cps.RecordPost(r.cp, rec); err != nil {
			r.log.WithError(err).Warn("failed to update checkpoint")
		}
	}
	r.s.observer.PostScraped(r.username, len(r.posts), r.total)
	return nil
}

// openCheckpoint returns the cursor to start from. Checkpoint problems are
// logged and never fail the scrape.
func (r *accountRun) openCheckpoint() string {
	if !r.job.checkpoints {
		return ""
	}
	cps, err := checkpoint.NewManagerInDir(r.s.checkpointDir, r.username)
	if err != nil {
		r.log.WithError(err).Warn("checkpoints disabled")
		return ""
	}
	r.cps = cps

	if r.job.resume {
		cp, err := cps.Load()
		switch {
		case err != nil:
			r.log.WithError(err).Warn("ignoring unreadable checkpoint")
		case cp != nil && cp.UserID != r.profile.ID:
			r.log.WarnWithFields("ignoring checkpoint for a different user id", map[string]interface{}{
				"checkpoint_user_id": cp.UserID,
			})
		case cp != nil:
			r.cp = cp
			for _, p := range cp.Posts {
				if !r.seen[p.Shortcode] {
					r.seen[p.Shortcode] = true
					r.posts = append(r.posts, p)
				}
			}
			r.log.InfoWithFields("resuming from checkpoint", map[string]interface{}{
				"posts":  len(r.posts),
				"cursor": cp.Cursor,
			})
			return cp.Cursor
		}
	}

	cp, err := cps.Create(r.username, r.profile.ID, r.s.runID)
	if err != nil {
		r.log.WithError(err).Warn("checkpoints disabled")
		return ""
	}
	r.cp = cp
	return ""
}

// finish decides the account status, saves whatever was collected and
// clears the checkpoint after a complete scrape.
func (r *accountRun) finish(err error) (models.AccountResult, error) {
	switch {
	case err == nil:
		r.res.Status = models.StatusSuccess
	case errs.IsFatal(err):
		r.res.Status = models.StatusAborted
	default:
		r.res.Status = models.StatusFailed
	}

	r.res.Posts = r.posts
	r.res.PostsScraped = len(r.posts)
	if r.batch != nil {
		r.res.PostsFailed = len(r.batch.Report().Failures)
	}

	if r.res.Profile != nil {
		files, saveErr := r.save()
		r.res.Files = files
		if saveErr != nil {
			r.log.WithError(saveErr).Error("failed to save results")
			if err == nil {
				r.res.Status = models.StatusFailed
				err = saveErr
			}
		}
	}

	switch {
	case err == nil && r.cps != nil:
		if derr := r.cps.Delete(); derr != nil {
			r.log.WithError(derr).Warn("failed to delete checkpoint")
		}
	case err != nil && r.cp != nil:
		if ferr := r.cps.Flush(r.cp); ferr != nil {
			r.log.WithError(ferr).Warn("failed to update checkpoint")
		}
	}
	if err != nil {
		r.res.Error = err.Error()
	}

	fields := map[string]interface{}{
		"status":       string(r.res.Status),
		"posts":        r.res.PostsScraped,
		"posts_failed": r.res.PostsFailed,
	}
	if err != nil {
		r.log.WithError(err).ErrorWithFields("account finished", fields)
	} else {
		r.log.InfoWithFields("account finished", fields)
	}
	r.s.observer.AccountFinished(r.res)
	return r.res, err
}

func (r *accountRun) save() ([]string, error) {
	at := r.s.now()
	out := r.s.cfg.Output
	var files []string

	if out.WriteJSON {
		method := methodTimeline
		if r.s.cfg.Scrape.FetchDetails {
			method = methodDetail
		}
		path, err := r.job.store.SaveExport(models.Export{
			ProfileInfo: *r.res.Profile,
			Posts:       r.posts,
			Summary: models.ExportSummary{
				TotalPostsScraped: len(r.posts),
				ScrapingMethod:    method,
				ScrapedAt:         at.UTC(),
				RunID:             r.s.runID,
			},
		}, at)
		if err != nil {
			return files, fmt.Errorf("failed to save export: %w", err)
		}
		files = append(files, path)
	}

	if out.WriteCSV && len(r.posts) > 0 {
		path, err := r.job.store.SavePostsCSV(r.username, r.posts, at)
		if err != nil {
			return files, fmt.Errorf("failed to save posts csv: %w", err)
		}
		files = append(files, path)
	}

	r.log.InfoWithFields("results saved", map[string]interface{}{
		"files": files,
	})
	return files, nil
}
