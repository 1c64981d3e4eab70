package jobqueue

import "github.com/cockroachdb/errors"

// overweightMark marks errors returned when a job is rejected for
// exceeding its group's weight bound.
var overweightMark = errors.New("jobqueue: queue overweight rejection")

// ErrQueueOverweight is the sentinel that overweightf marks errors
// with. No CompactionJobQueueSet method returns such an error: Add
// reports nothing to its caller and counts a rejected-for-weight job
// in RejectedJobCount instead.
var ErrQueueOverweight = overweightMark

func overweightf(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), overweightMark)
}
