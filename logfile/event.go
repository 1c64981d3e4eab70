// Package logfile defines the on-disk key/value representation of the
// events recorded by a tablet server's write-ahead log, and the total
// order the external sorter is required to produce over them.
package logfile

import "github.com/cockroachdb/errors"

// Event identifies the kind of record a LogFileKey describes. The
// ordinal value IS the primary sort component of the total order (see
// Key.Compare) so the sequence below must never be reordered.
type Event uint8

// The event kinds a recovery log may contain, in total-order position.
const (
	Open Event = iota
	DefineTablet
	CompactionStart
	CompactionFinish
	Mutation
	ManyMutations

	numEvents
)

// String renders an Event for diagnostics.
func (e Event) String() string {
	switch e {
	case Open:
		return "OPEN"
	case DefineTablet:
		return "DEFINE_TABLET"
	case CompactionStart:
		return "COMPACTION_START"
	case CompactionFinish:
		return "COMPACTION_FINISH"
	case Mutation:
		return "MUTATION"
	case ManyMutations:
		return "MANY_MUTATIONS"
	default:
		return "UNKNOWN_EVENT"
	}
}

// Valid reports whether e is one of the known event kinds.
func (e Event) Valid() bool {
	return e < numEvents
}

// InvalidTabletID is the sentinel tabletId reserved for "no such
// tablet"; it must never appear in persisted LogFileKey data.
const InvalidTabletID int64 = -1

func checkTabletID(id int64) error {
	if id < 0 {
		return errors.Newf("logfile: negative tabletId %d in persisted entry", id)
	}
	return nil
}
