package recovery

import (
	"sort"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/pebble/vfs"
	kitlog "github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/devlibx/logrecovery/logfile"
	"github.com/devlibx/logrecovery/logreader"
	"github.com/devlibx/logrecovery/recoveryiter"
)

// MutationReceiver is the sink PlaybackMutations delivers to during
// Phase D, per spec §6.
type MutationReceiver interface {
	Receive(m logfile.Mutation) error
}

// Engine is a TabletRecoveryEngine. One Engine instance drives the
// recovery of a single tablet; concurrent recoveries of different
// tablets each use their own Engine, per spec §5.
type Engine struct {
	FS            vfs.FS
	ReaderOptions logreader.OpenOptions
	Logger        kitlog.Logger
}

func (e *Engine) fs() vfs.FS {
	if e.FS != nil {
		return e.FS
	}
	if e.ReaderOptions.FS != nil {
		return e.ReaderOptions.FS
	}
	return vfs.Default
}

func (e *Engine) logger() kitlog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return kitlog.NewNopLogger()
}

func (e *Engine) readerOpts() logreader.OpenOptions {
	opts := e.ReaderOptions
	opts.FS = e.fs()
	return opts
}

// FindMaxTabletID is Phase A, per spec §4.4: scans every DEFINE_TABLET
// event across dirs and returns the maximum tabletID whose carried
// extent matches extent (honoring the legacy root-extent alias), or -1
// if none. validateFirstKey controls whether the first entry of every
// directory's first file must be OPEN — true for the outermost scan
// of a recovery, false for narrower re-scans of already-validated
// directories.
func (e *Engine) FindMaxTabletID(
	dirs []logreader.ResolvedSortedLog, extent logfile.Extent, validateFirstKey bool,
) (int64, error) {
	rng := logfile.EventClassRange(logfile.DefineTablet)
	it, err := recoveryiter.New(dirs, recoveryiter.Options{
		Range:            rng,
		ValidateFirstKey: validateFirstKey,
		ReaderOptions:    e.readerOpts(),
	})
	if err != nil {
		return 0, err
	}
	defer it.Close()
	dedup := recoveryiter.NewDeduplicating(it)
	defer dedup.Close()

	max := logfile.InvalidTabletID
	for {
		k, _, ok, err := dedup.Next()
		if err != nil {
			return 0, err
		}
		if !ok {
			break
		}
		if k.TabletID < 0 {
			return 0, invariantf("recovery: negative tabletId %d in DEFINE_TABLET record", k.TabletID)
		}
		if logfile.DefinesExtent(k.Tablet, extent) && k.TabletID > max {
			max = k.TabletID
		}
	}
	return max, nil
}

// FindLogsThatDefineTablet is Phase B, per spec §4.4: runs Phase A
// against each directory individually, groups directories by the
// tabletID they observed, and returns the group with the largest
// tabletID. Opening one directory at a time bounds memory.
func (e *Engine) FindLogsThatDefineTablet(
	dirs []logreader.ResolvedSortedLog, extent logfile.Extent,
) (int64, []logreader.ResolvedSortedLog, error) {
	byTabletID := map[int64][]logreader.ResolvedSortedLog{}
	for _, d := range dirs {
		tabletID, err := e.FindMaxTabletID([]logreader.ResolvedSortedLog{d}, extent, true)
		if err != nil {
			return 0, nil, err
		}
		if tabletID < 0 {
			continue
		}
		byTabletID[tabletID] = append(byTabletID[tabletID], d)
	}
	if len(byTabletID) == 0 {
		return logfile.InvalidTabletID, nil, nil
	}
	best := logfile.InvalidTabletID
	for id := range byTabletID {
		if id > best {
			best = id
		}
	}
	return best, byTabletID[best], nil
}

// compactionEvent is one observed COMPACTION_START/FINISH entry,
// tagged with its kind, for Phase C's cross-class seq merge.
type compactionEvent struct {
	event    logfile.Event
	seq      uint64
	filename string
}

// scanTabletEvent collects every entry of exactly one event kind for
// exactly one tabletID across dirs, via the deduplicating merge
// iterator, with validateFirstKey=false (the outer Phase A/B scan
// already validated these directories once per spec §4.3).
func (e *Engine) scanTabletEvent(
	dirs []logreader.ResolvedSortedLog, event logfile.Event, tabletID int64, fromSeq uint64,
) ([]logfile.Key, []logfile.Value, error) {
	rng := logfile.TabletEventRange(event, tabletID, fromSeq)
	it, err := recoveryiter.New(dirs, recoveryiter.Options{
		Range:         rng,
		ReaderOptions: e.readerOpts(),
	})
	if err != nil {
		return nil, nil, err
	}
	defer it.Close()
	dedup := recoveryiter.NewDeduplicating(it)
	defer dedup.Close()

	var keys []logfile.Key
	var vals []logfile.Value
	for {
		k, v, ok, err := dedup.Next()
		if err != nil {
			return nil, nil, err
		}
		if !ok {
			break
		}
		if k.TabletID != tabletID {
			return nil, nil, invariantf("recovery: observed tabletId %d scanning for tabletId %d", k.TabletID, tabletID)
		}
		keys = append(keys, k)
		vals = append(vals, v)
	}
	return keys, vals, nil
}

// FindRecoverySeq is Phase C, per spec §4.4: scans COMPACTION_START and
// COMPACTION_FINISH events for exactly tabletID, merges them by seq
// (each event kind has its own monotonic counter but the two are
// comparable within one compaction lifecycle), checks the required
// invariants, and applies the resolution rule.
func (e *Engine) FindRecoverySeq(
	dirs []logreader.ResolvedSortedLog, tabletFiles map[string]bool, tabletID int64,
) (uint64, error) {
	startKeys, _, err := e.scanTabletEvent(dirs, logfile.CompactionStart, tabletID, 0)
	if err != nil {
		return 0, err
	}
	finishKeys, _, err := e.scanTabletEvent(dirs, logfile.CompactionFinish, tabletID, 0)
	if err != nil {
		return 0, err
	}

	events := make([]compactionEvent, 0, len(startKeys)+len(finishKeys))
	for _, k := range startKeys {
		events = append(events, compactionEvent{event: logfile.CompactionStart, seq: k.Seq, filename: k.Filename})
	}
	for _, k := range finishKeys {
		events = append(events, compactionEvent{event: logfile.CompactionFinish, seq: k.Seq})
	}
	sort.SliceStable(events, func(i, j int) bool { return events[i].seq < events[j].seq })

	var lastStart uint64
	var lastStartFile string
	var lastFinish uint64
	var lastEvent logfile.Event
	sawStart, sawFinish, sawAny := false, false, false
	var prevSeq uint64

	for _, ev := range events {
		if sawAny && ev.seq < prevSeq {
			return 0, invariantf("recovery: compaction seq not non-decreasing for tabletId %d (%d after %d)", tabletID, ev.seq, prevSeq)
		}
		switch ev.event {
		case logfile.CompactionStart:
			lastStart, lastStartFile = ev.seq, ev.filename
			sawStart = true
		case logfile.CompactionFinish:
			if sawStart && ev.seq <= lastStart {
				return 0, invariantf("recovery: COMPACTION_FINISH seq %d not greater than COMPACTION_START seq %d for tabletId %d", ev.seq, lastStart, tabletID)
			}
			if sawAny && lastEvent == logfile.CompactionFinish {
				return 0, invariantf("recovery: two COMPACTION_FINISH events with no intervening COMPACTION_START for tabletId %d", tabletID)
			}
			lastFinish = ev.seq
			sawFinish = true
		}
		lastEvent = ev.event
		prevSeq = ev.seq
		sawAny = true
	}

	if sawStart && lastEvent == logfile.CompactionStart {
		parent, file := splitPathSuffix(lastStartFile)
		if tabletFiles[parent+"/"+file] {
			level.Debug(e.logger()).Log("msg", "treating in-flight compaction as finished", "tabletId", tabletID, "seq", lastStart)
			return lastStart, nil
		}
	}
	if !sawFinish {
		return 0, nil
	}
	if lastFinish == 0 {
		return 0, nil
	}
	return lastFinish - 1, nil
}

// splitPathSuffix returns the last two path components of p, the
// "parentDirName/fileName" suffix compared against tabletFiles per
// spec §4.4 Phase C's resolution rule.
func splitPathSuffix(p string) (parent, file string) {
	clean := p
	var lastSlash, secondLastSlash = -1, -1
	for i := len(clean) - 1; i >= 0; i-- {
		if clean[i] == '/' {
			if lastSlash == -1 {
				lastSlash = i
			} else {
				secondLastSlash = i
				break
			}
		}
	}
	if lastSlash == -1 {
		return "", clean
	}
	file = clean[lastSlash+1:]
	if secondLastSlash == -1 {
		return clean[:lastSlash], file
	}
	return clean[secondLastSlash+1 : lastSlash], file
}

// PlaybackMutations is Phase D, per spec §4.4: scans MUTATION and
// MANY_MUTATIONS events for exactly tabletID with seq >= recoverySeq,
// merged by seq, and delivers every contained mutation to receiver in
// order.
func (e *Engine) PlaybackMutations(
	dirs []logreader.ResolvedSortedLog, receiver MutationReceiver, tabletID int64, recoverySeq uint64,
) error {
	mutKeys, mutVals, err := e.scanTabletEvent(dirs, logfile.Mutation, tabletID, recoverySeq)
	if err != nil {
		return err
	}
	manyKeys, manyVals, err := e.scanTabletEvent(dirs, logfile.ManyMutations, tabletID, recoverySeq)
	if err != nil {
		return err
	}

	type entry struct {
		seq  uint64
		vals []logfile.Mutation
	}
	entries := make([]entry, 0, len(mutKeys)+len(manyKeys))
	for i, k := range mutKeys {
		entries = append(entries, entry{seq: k.Seq, vals: mutVals[i].Mutations})
	}
	for i, k := range manyKeys {
		entries = append(entries, entry{seq: k.Seq, vals: manyVals[i].Mutations})
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })

	for _, e2 := range entries {
		for _, m := range e2.vals {
			if err := receiver.Receive(m); err != nil {
				return err
			}
		}
	}
	return nil
}

// NeedsRecovery reports whether any directory defines extent, per
// spec §4.4's top-level operations.
func (e *Engine) NeedsRecovery(dirs []logreader.ResolvedSortedLog, extent logfile.Extent) (bool, error) {
	tabletID, _, err := e.FindLogsThatDefineTablet(dirs, extent)
	if err != nil {
		return false, err
	}
	return tabletID >= 0, nil
}

// Recover runs Phases B, C, and D for extent. If Phase B finds no
// tabletID, Recover logs and returns successfully: a tablet absent
// from the logs needs no replay, per spec §4.4.
func (e *Engine) Recover(
	dirs []logreader.ResolvedSortedLog, extent logfile.Extent, tabletFiles map[string]bool, receiver MutationReceiver,
) error {
	tabletID, narrowed, err := e.FindLogsThatDefineTablet(dirs, extent)
	if err != nil {
		return err
	}
	if tabletID < 0 {
		level.Info(e.logger()).Log("msg", "tablet not present in recovery logs, no replay needed", "extent", extent.TableID)
		return nil
	}

	recoverySeq, err := e.FindRecoverySeq(narrowed, tabletFiles, tabletID)
	if err != nil {
		return errors.Wrapf(err, "recovery: computing recovery seq for tabletId %d", tabletID)
	}
	level.Info(e.logger()).Log("msg", "replaying mutations", "tabletId", tabletID, "recoverySeq", recoverySeq)
	return e.PlaybackMutations(narrowed, receiver, tabletID, recoverySeq)
}
