package recoveryiter

import "github.com/devlibx/logrecovery/logfile"

// source is the minimal interface DeduplicatingIterator needs from a
// MergingRecoveryIterator, so tests can wrap a synthetic source.
type source interface {
	Next() (logfile.Key, logfile.Value, bool, error)
	Close() error
}

// DeduplicatingIterator wraps a source that yields a non-decreasing
// but possibly repeating key sequence and collapses any run of
// entries sharing the same key down to the first, per spec §4.3.
type DeduplicatingIterator struct {
	src  source
	next *logfile.Key
	nval logfile.Value
}

// NewDeduplicating wraps src.
func NewDeduplicating(src source) *DeduplicatingIterator {
	return &DeduplicatingIterator{src: src}
}

// Next returns the next distinct key in the merged stream.
func (d *DeduplicatingIterator) Next() (key logfile.Key, val logfile.Value, ok bool, err error) {
	var cur *logfile.Key
	var curVal logfile.Value

	if d.next != nil {
		cur = d.next
		curVal = d.nval
		d.next = nil
	} else {
		k, v, fetched, err := d.src.Next()
		if err != nil {
			return logfile.Key{}, logfile.Value{}, false, err
		}
		if !fetched {
			return logfile.Key{}, logfile.Value{}, false, nil
		}
		cur = &k
		curVal = v
	}

	for {
		k, v, fetched, err := d.src.Next()
		if err != nil {
			return logfile.Key{}, logfile.Value{}, false, err
		}
		if !fetched {
			break
		}
		if k.Compare(*cur) != 0 {
			d.next = &k
			d.nval = v
			break
		}
		// Same key: discard, first occurrence wins.
	}
	return *cur, curVal, true, nil
}

// Close releases the underlying source.
func (d *DeduplicatingIterator) Close() error {
	return d.src.Close()
}
