package logfile

import "github.com/cockroachdb/errors"

// corruptLogEntryMark tags errors produced when a raw log entry key/value
// pair does not conform to the LogFileKey/LogFileValue wire shape.
// Callers test membership with errors.Is(err, ErrCorruptLogEntry).
var corruptLogEntryMark = errors.New("logfile: corrupt log entry")

// ErrCorruptLogEntry is the marker decode failures and corrupt-log
// failures are chained onto via errors.Mark, per spec §4.1. Recovery
// invariant failures carry recovery.RecoveryInvariantError instead.
var ErrCorruptLogEntry = corruptLogEntryMark

func corruptf(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), corruptLogEntryMark)
}
