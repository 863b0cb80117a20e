// Package storage writes scrape results to disk.
//
// Each account produces <user>_complete_<ts>.json and <user>_posts_<ts>.csv;
// a multi-account run adds FINAL_SUMMARY_<ts>.csv. Files are written to a
// temporary name and renamed into place, so a crash never leaves a half
// written export behind. Lock guards a directory against two concurrent runs.
package storage
