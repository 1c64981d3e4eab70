// Package recovery implements the TabletRecoveryEngine: tablet-id
// discovery, log-set narrowing, recovery-sequence computation, and
// mutation playback, per spec §4.4.
package recovery

import "github.com/cockroachdb/errors"

// recoveryInvariantMark tags fatal violations of the monotonicity,
// sign, or event-sequence invariants enforced across Phases A-D.
var recoveryInvariantMark = errors.New("recovery: invariant violation")

// RecoveryInvariantError is the marker for errors indicating a writer
// bug or corruption detected while scanning recovery logs, per spec
// §7. Recovery of the affected tablet aborts; it is never retried
// locally.
var RecoveryInvariantError = recoveryInvariantMark

func invariantf(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), recoveryInvariantMark)
}
