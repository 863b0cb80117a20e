// Package logger provides the structured logging interface used across
// igharvest.
//
// It wraps zerolog with a colored console writer on stderr and, when a log
// file is configured, a size-rotated JSON file via lumberjack.
//
//	if err := logger.Initialize(&cfg.Logging); err != nil {
//		return err
//	}
//	log := logger.GetLogger().WithField("target", "natgeo")
//	log.InfoWithFields("profile fetched", map[string]interface{}{"followers": 1200})
//
// Tests use NewTestLogger to capture messages or NewNopLogger to discard them.
package logger
