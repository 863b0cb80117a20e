// Package checkpoint saves and resumes per-account scrape progress.
//
// A checkpoint holds the cursor of the timeline page being processed and
// every post record scraped so far. Resuming refetches that page and skips
// the posts already recorded. Checkpoints are stored in platform-specific
// data directories:
//   - Linux: ~/.local/share/igharvest/checkpoints/
//   - macOS: ~/Library/Application Support/igharvest/checkpoints/
//   - Windows: %APPDATA%/igharvest/checkpoints/
package checkpoint
