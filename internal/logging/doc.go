// Package logging provides structured logging for the obaidx directory engine.
//
// # Overview
//
// Logger is a small key-value interface backed by log/slog:
//
//	logger := logging.New(logging.Config{
//	    Level:  "info",
//	    Format: "json",
//	    Output: "/var/log/obaidx.log",
//	})
//
// For testing, use a no-op logger:
//
//	logger := logging.NewNop()
//
// # Operation IDs
//
// Every directory write gets an operation ID so that the deadlock retries of
// a single operation can be correlated:
//
//	log := logger.WithOperationID(logging.NewOperationID())
//	log.Debug("retrying after deadlock", "attempt", 2)
package logging
