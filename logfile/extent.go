package logfile

import "bytes"

// RootTableID is the well-known table id of the root tablet.
const RootTableID uint64 = 0

// Extent identifies a tablet's row range: the table it belongs to, its
// end row, and the end row of its predecessor in that table.
// EndRow == nil means +infinity; PrevEndRow == nil means -infinity.
type Extent struct {
	TableID    uint64
	EndRow     []byte
	PrevEndRow []byte
}

// IsRoot reports whether e is the root tablet's extent.
func (e Extent) IsRoot() bool {
	return e.TableID == RootTableID
}

// Equal reports whether e and o identify the same tablet row range.
func (e Extent) Equal(o Extent) bool {
	return e.TableID == o.TableID &&
		bytes.Equal(e.EndRow, o.EndRow) &&
		bytes.Equal(e.PrevEndRow, o.PrevEndRow)
}

// oldRootExtent is the legacy extent that identified the root tablet
// before root tablets were given RootTableID; DEFINE_TABLET events
// written by older servers may still carry it. FindMaxTabletID treats
// it as an alias for the current root extent.
var oldRootExtent = Extent{TableID: RootTableID, EndRow: nil, PrevEndRow: []byte{0xff}}

// DefinesExtent reports whether a DEFINE_TABLET's carried extent
// should be treated as defining want, honoring the legacy root-extent
// alias that older servers wrote before RootTableID existed.
func DefinesExtent(carried, want Extent) bool {
	if carried.Equal(want) {
		return true
	}
	return want.IsRoot() && carried.Equal(oldRootExtent)
}
