package recoveryiter

import (
	"container/heap"
	"path"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/pebble/vfs"

	"github.com/devlibx/logrecovery/logfile"
	"github.com/devlibx/logrecovery/logreader"
)

// Options configures a MergingRecoveryIterator, per spec §4.3.
type Options struct {
	// Range restricts the merge to entries within it; the zero value
	// (logfile.Unbounded()) merges every entry.
	Range logfile.Range

	// ValidateFirstKey requires the first file of every non-empty
	// directory to begin with an OPEN event. This check runs exactly
	// once per outer construction — callers opt in only on the
	// outermost scan, not on every narrowed re-scan of the same
	// directories, per spec §4.3.
	ValidateFirstKey bool

	ReaderOptions logreader.OpenOptions
}

// MergingRecoveryIterator k-way merges the readers for every file
// across a list of recovery log directories into one ordered stream,
// per spec §4.3.
type MergingRecoveryIterator struct {
	heap cursorHeap
}

// New constructs a MergingRecoveryIterator over dirs. Construction
// semantics follow spec §4.3 exactly: optional first-key validation,
// then per-file open+seek+retain-or-close, then heap-init of the
// retained readers. If construction fails partway through, every
// reader already opened is closed before the error is returned.
func New(dirs []logreader.ResolvedSortedLog, opts Options) (_ *MergingRecoveryIterator, err error) {
	fs := opts.ReaderOptions.FS
	if fs == nil {
		fs = vfs.Default
	}

	if opts.ValidateFirstKey {
		for _, d := range dirs {
			if err := validateFirstKey(fs, d, opts.ReaderOptions); err != nil {
				return nil, err
			}
		}
	}

	var opened []*cursor
	defer func() {
		if err != nil {
			for _, c := range opened {
				_ = c.r.Close()
			}
		}
	}()

	for _, d := range dirs {
		for _, name := range d.Children {
			r, openErr := logreader.Open(path.Join(d.Path, name), opts.ReaderOptions)
			if openErr != nil {
				return nil, openErr
			}
			if seekErr := r.Seek(opts.Range); seekErr != nil {
				_ = r.Close()
				return nil, seekErr
			}
			k, ok, peekErr := r.Peek()
			if peekErr != nil {
				_ = r.Close()
				return nil, peekErr
			}
			if !ok {
				if closeErr := r.Close(); closeErr != nil {
					return nil, closeErr
				}
				continue
			}
			c := &cursor{r: r, key: k}
			opened = append(opened, c)
		}
	}

	h := cursorHeap(opened)
	heap.Init(&h)
	return &MergingRecoveryIterator{heap: h}, nil
}

// validateFirstKey opens d's first file (if any) and requires its
// first entry to be an OPEN event, per spec §4.3 step 1.
func validateFirstKey(fs vfs.FS, d logreader.ResolvedSortedLog, base logreader.OpenOptions) error {
	if len(d.Children) == 0 {
		return nil
	}
	opts := base
	opts.FS = fs
	r, err := logreader.Open(path.Join(d.Path, d.Children[0]), opts)
	if err != nil {
		return err
	}
	defer r.Close()
	k, ok, err := r.Peek()
	if err != nil {
		return err
	}
	if !ok {
		return errors.Mark(errors.Newf("logrecovery: empty recovery log %s", d.Path), logfile.ErrCorruptLogEntry)
	}
	if k.Event != logfile.Open {
		return errors.Mark(
			errors.Newf("logrecovery: recovery log %s does not begin with OPEN (got %s)", d.Path, k.Event),
			logfile.ErrCorruptLogEntry,
		)
	}
	return nil
}

// Next returns the next entry in the merged stream in non-decreasing
// key order, or ok==false at end of stream. Equal keys from distinct
// files may be returned in either relative order and are not
// deduplicated; use DeduplicatingIterator for that.
func (m *MergingRecoveryIterator) Next() (key logfile.Key, val logfile.Value, ok bool, err error) {
	if m.heap.Len() == 0 {
		return logfile.Key{}, logfile.Value{}, false, nil
	}
	top := m.heap[0]
	key, val, fetched, err := top.r.Next()
	if err != nil {
		return logfile.Key{}, logfile.Value{}, false, err
	}
	if !fetched {
		// top.key came from a successful Peek, so this shouldn't
		// happen; treat it as end-of-file for this reader and retry.
		heap.Pop(&m.heap)
		if closeErr := top.r.Close(); closeErr != nil {
			return logfile.Key{}, logfile.Value{}, false, closeErr
		}
		return m.Next()
	}

	nextKey, hasMore, peekErr := top.r.Peek()
	if peekErr != nil {
		heap.Pop(&m.heap)
		_ = top.r.Close()
		return key, val, true, peekErr
	}
	if !hasMore {
		heap.Pop(&m.heap)
		if closeErr := top.r.Close(); closeErr != nil {
			return key, val, true, closeErr
		}
	} else {
		top.key = nextKey
		heap.Fix(&m.heap, 0)
	}
	return key, val, true, nil
}

// Close releases every retained reader exactly once.
func (m *MergingRecoveryIterator) Close() error {
	var firstErr error
	for _, c := range m.heap {
		if err := c.r.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	m.heap = nil
	return firstErr
}
