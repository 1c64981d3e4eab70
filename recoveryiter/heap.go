// Package recoveryiter merges the per-file cursors of a directory of
// sorted recovery-log files into a single ordered, deduplicated stream,
// per spec §4.3/§4.4.
package recoveryiter

import (
	"container/heap"

	"github.com/devlibx/logrecovery/logfile"
	"github.com/devlibx/logrecovery/logreader"
)

// cursor pairs one open Reader with its most recently peeked entry, so
// the merge heap can compare cursors without re-reading.
type cursor struct {
	r   *logreader.Reader
	key logfile.Key
	val logfile.Value
}

// cursorHeap orders cursors by their current key, ascending, mirroring
// the tabletserver log-merge queue's ordering on transaction id.
type cursorHeap []*cursor

func (h cursorHeap) Len() int            { return len(h) }
func (h cursorHeap) Less(i, j int) bool  { return h[i].key.Compare(h[j].key) < 0 }
func (h cursorHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *cursorHeap) Push(x interface{}) { *h = append(*h, x.(*cursor)) }

func (h *cursorHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return x
}

var _ heap.Interface = (*cursorHeap)(nil)
