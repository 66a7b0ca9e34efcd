// Package logging provides structured logging for the hotswap engine.
//
// It wraps log/slog with a JSON handler and carries persistent attributes
// (component, generation) into every record, so a debug log can be filtered
// per reload cycle after the fact.
//
// # Basic Usage
//
//	logger, err := logging.NewLogger("/var/tmp/hotswap", logging.LevelInfo)
//	if err != nil {
//	    return err
//	}
//	defer logger.Close()
//
//	log := logger.WithComponent("reload").WithGeneration(3)
//	log.Info("worker started")
//
// Output:
//
//	{"time":"...","level":"INFO","msg":"worker started","component":"reload","generation":3}
//
// An empty directory sends records to stderr. [NopLogger] discards everything
// and is what tests and nil-logger call sites use.
//
// # Log Rotation
//
// [NewLoggerWithRotation] writes through a [RotatingWriter] that renames
// debug.log to debug.log.1 (shifting older backups up) once the file would
// exceed MaxSizeMB.
//
// # Thread Safety
//
// All types in this package are safe for concurrent use. Child loggers share
// the parent's handler and writer.
package logging
