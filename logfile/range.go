package logfile

import "math"

// Range is a scan range over encoded Keys: half-inclusive of Start,
// inclusive of End. A nil Start/End means unbounded on that side.
type Range struct {
	Start *Key
	End   *Key
}

// ToRange builds the scan Range for [start, end], matching spec §4.1:
// any stored entry whose Key compares within [start, end] is returned.
func ToRange(start, end *Key) Range {
	return Range{Start: start, End: end}
}

// Unbounded is the range matching every entry in a log.
func Unbounded() Range {
	return Range{}
}

// TabletEventRange returns the range covering every entry of exactly
// one event kind for exactly one tabletID, with seq in [fromSeq, +inf).
// Because Key's total order compares Event before TabletID, a span
// that mixes two event kinds cannot be pinned to one tabletID in a
// single contiguous range (other tabletIDs' entries of the starting
// event kind sort between this tabletID's entries and the ending event
// kind). Phase C and Phase D each scan one event kind at a time with
// this helper and merge the resulting streams by seq themselves.
func TabletEventRange(event Event, tabletID int64, fromSeq uint64) Range {
	start := Key{Event: event, TabletID: tabletID, Seq: fromSeq}
	end := Key{Event: event, TabletID: tabletID, Seq: math.MaxUint64}
	return Range{Start: &start, End: &end}
}

// EventClassRange returns the range covering every entry of the given
// event kind across all tabletIDs, used by Phase A's DEFINE_TABLET
// scan.
func EventClassRange(event Event) Range {
	start := Key{Event: event, TabletID: 0, Seq: 0}
	end := Key{Event: event, TabletID: math.MaxInt64, Seq: math.MaxUint64}
	return Range{Start: &start, End: &end}
}

// Contains reports whether k falls within r per the total order.
func (r Range) Contains(k Key) bool {
	if r.Start != nil && k.Compare(*r.Start) < 0 {
		return false
	}
	if r.End != nil && k.Compare(*r.End) > 0 {
		return false
	}
	return true
}
