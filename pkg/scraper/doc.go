// Package scraper turns Instagram accounts into profile and post exports.
//
// A Scraper drives an instagram client under one pacing.Policy. For each
// account it fetches the profile, walks the timeline page by page and
// builds a models.PostRecord per post inside a pacing.Batch, so long
// accounts get progress signals, periodic pauses and per-post cooldowns.
// Profile and page fetches go through Policy.ExecuteWithRetry.
//
// Results are written by storage.Manager:
//
//	<user>_complete_<ts>.json   profile, posts and run summary
//	<user>_posts_<ts>.csv       one row per post
//	FINAL_SUMMARY_<ts>.csv      one row per account (ScrapeAccounts only)
//
// Progress of an account is checkpointed after every post. With
// Scrape.Resume set, a later run restarts at the page that was being
// processed and skips posts already recorded. The checkpoint is removed once
// the account completes.
//
// Error handling follows the error classes of package errors. A fatal error
// (checkpoint challenge, expired session, cancellation) aborts the account
// and ScrapeAccounts skips the accounts after it. Exhausted retries mark the
// account failed and the run continues. Whatever was collected before a
// failure is saved.
package scraper
