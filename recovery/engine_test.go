package recovery_test

import (
	"testing"

	"github.com/cockroachdb/pebble/vfs"
	"github.com/stretchr/testify/require"

	"github.com/devlibx/logrecovery/logfile"
	"github.com/devlibx/logrecovery/logreader"
	"github.com/devlibx/logrecovery/logreader/testlog"
	"github.com/devlibx/logrecovery/recovery"
)

var extentA = logfile.Extent{TableID: 1, EndRow: []byte("m")}

type fakeReceiver struct{ rows []string }

func (f *fakeReceiver) Receive(m logfile.Mutation) error {
	f.rows = append(f.rows, string(m.Row))
	return nil
}

func m(row string) logfile.Value {
	return logfile.Value{Mutations: []logfile.Mutation{{Row: []byte(row)}}}
}

func buildLog(t *testing.T, fs vfs.FS, dir string, entries []testlog.Entry) logreader.ResolvedSortedLog {
	t.Helper()
	require.NoError(t, testlog.WriteFile(fs, dir+"/000.log", logreader.ChecksumCRC32, logreader.NoCompression, entries))
	d, err := logreader.OpenDir(fs, dir)
	require.NoError(t, err)
	return d
}

func TestScenarioS1HappyPath(t *testing.T) {
	fs := vfs.NewMem()
	entries := []testlog.Entry{
		{Key: logfile.Key{Event: logfile.Open, TabletID: 0, Seq: 0}},
		{Key: logfile.Key{Event: logfile.DefineTablet, TabletID: 5, Seq: 1, Tablet: extentA}},
		{Key: logfile.Key{Event: logfile.CompactionStart, TabletID: 5, Seq: 3, Filename: "000/f1"}},
		{Key: logfile.Key{Event: logfile.CompactionFinish, TabletID: 5, Seq: 4}},
		{Key: logfile.Key{Event: logfile.Mutation, TabletID: 5, Seq: 2}, Val: m("m1")},
		{Key: logfile.Key{Event: logfile.Mutation, TabletID: 5, Seq: 5}, Val: m("m2")},
	}
	dir := buildLog(t, fs, "dir1", entries)
	eng := &recovery.Engine{ReaderOptions: logreader.OpenOptions{FS: fs}}

	needs, err := eng.NeedsRecovery([]logreader.ResolvedSortedLog{dir}, extentA)
	require.NoError(t, err)
	require.True(t, needs)

	recv := &fakeReceiver{}
	require.NoError(t, eng.Recover([]logreader.ResolvedSortedLog{dir}, extentA, map[string]bool{}, recv))
	require.Equal(t, []string{"m2"}, recv.rows)
}

func TestScenarioS2StartInMetadata(t *testing.T) {
	fs := vfs.NewMem()
	entries := []testlog.Entry{
		{Key: logfile.Key{Event: logfile.Open, TabletID: 0, Seq: 0}},
		{Key: logfile.Key{Event: logfile.DefineTablet, TabletID: 5, Seq: 1, Tablet: extentA}},
		{Key: logfile.Key{Event: logfile.CompactionStart, TabletID: 5, Seq: 3, Filename: "000/f1"}},
		{Key: logfile.Key{Event: logfile.Mutation, TabletID: 5, Seq: 2}, Val: m("m1")},
		{Key: logfile.Key{Event: logfile.Mutation, TabletID: 5, Seq: 5}, Val: m("m2")},
	}
	dir := buildLog(t, fs, "dir1", entries)
	eng := &recovery.Engine{ReaderOptions: logreader.OpenOptions{FS: fs}}

	recv := &fakeReceiver{}
	require.NoError(t, eng.Recover([]logreader.ResolvedSortedLog{dir}, extentA, map[string]bool{"000/f1": true}, recv))
	require.Equal(t, []string{"m2"}, recv.rows)
}

func TestScenarioS3StartAbsentFromMetadata(t *testing.T) {
	fs := vfs.NewMem()
	entries := []testlog.Entry{
		{Key: logfile.Key{Event: logfile.Open, TabletID: 0, Seq: 0}},
		{Key: logfile.Key{Event: logfile.DefineTablet, TabletID: 5, Seq: 1, Tablet: extentA}},
		{Key: logfile.Key{Event: logfile.CompactionStart, TabletID: 5, Seq: 3, Filename: "000/f1"}},
		{Key: logfile.Key{Event: logfile.Mutation, TabletID: 5, Seq: 2}, Val: m("m1")},
		{Key: logfile.Key{Event: logfile.Mutation, TabletID: 5, Seq: 5}, Val: m("m2")},
	}
	dir := buildLog(t, fs, "dir1", entries)
	eng := &recovery.Engine{ReaderOptions: logreader.OpenOptions{FS: fs}}

	recv := &fakeReceiver{}
	require.NoError(t, eng.Recover([]logreader.ResolvedSortedLog{dir}, extentA, map[string]bool{}, recv))
	require.Equal(t, []string{"m1", "m2"}, recv.rows)
}

func TestScenarioS4TabletReload(t *testing.T) {
	fs := vfs.NewMem()
	entries := []testlog.Entry{
		{Key: logfile.Key{Event: logfile.Open, TabletID: 0, Seq: 0}},
		{Key: logfile.Key{Event: logfile.DefineTablet, TabletID: 5, Seq: 1, Tablet: extentA}},
		{Key: logfile.Key{Event: logfile.DefineTablet, TabletID: 9, Seq: 1, Tablet: extentA}},
		{Key: logfile.Key{Event: logfile.Mutation, TabletID: 5, Seq: 2}, Val: m("old")},
		{Key: logfile.Key{Event: logfile.Mutation, TabletID: 9, Seq: 1}, Val: m("new1")},
		{Key: logfile.Key{Event: logfile.Mutation, TabletID: 9, Seq: 2}, Val: m("new2")},
	}
	dir := buildLog(t, fs, "dir1", entries)
	eng := &recovery.Engine{ReaderOptions: logreader.OpenOptions{FS: fs}}

	tabletID, err := eng.FindMaxTabletID([]logreader.ResolvedSortedLog{dir}, extentA, true)
	require.NoError(t, err)
	require.Equal(t, int64(9), tabletID)

	recv := &fakeReceiver{}
	require.NoError(t, eng.Recover([]logreader.ResolvedSortedLog{dir}, extentA, map[string]bool{}, recv))
	require.Equal(t, []string{"new1", "new2"}, recv.rows)
}

func TestScenarioS5CorruptFirstEntry(t *testing.T) {
	fs := vfs.NewMem()
	entries := []testlog.Entry{
		{Key: logfile.Key{Event: logfile.DefineTablet, TabletID: 5, Seq: 1, Tablet: extentA}},
		{Key: logfile.Key{Event: logfile.Mutation, TabletID: 5, Seq: 2}, Val: m("m1")},
	}
	dir := buildLog(t, fs, "dir1", entries)
	eng := &recovery.Engine{ReaderOptions: logreader.OpenOptions{FS: fs}}

	recv := &fakeReceiver{}
	err := eng.Recover([]logreader.ResolvedSortedLog{dir}, extentA, map[string]bool{}, recv)
	require.Error(t, err)
	require.ErrorIs(t, err, logfile.ErrCorruptLogEntry)
	require.Empty(t, recv.rows)
}

func TestRecoverIsIdempotent(t *testing.T) {
	fs := vfs.NewMem()
	entries := []testlog.Entry{
		{Key: logfile.Key{Event: logfile.Open, TabletID: 0, Seq: 0}},
		{Key: logfile.Key{Event: logfile.DefineTablet, TabletID: 5, Seq: 1, Tablet: extentA}},
		{Key: logfile.Key{Event: logfile.CompactionFinish, TabletID: 5, Seq: 3}},
		{Key: logfile.Key{Event: logfile.Mutation, TabletID: 5, Seq: 2}, Val: m("m1")},
		{Key: logfile.Key{Event: logfile.Mutation, TabletID: 5, Seq: 5}, Val: m("m2")},
	}
	dir := buildLog(t, fs, "dir1", entries)
	eng := &recovery.Engine{ReaderOptions: logreader.OpenOptions{FS: fs}}

	recv1 := &fakeReceiver{}
	require.NoError(t, eng.Recover([]logreader.ResolvedSortedLog{dir}, extentA, map[string]bool{}, recv1))
	recv2 := &fakeReceiver{}
	require.NoError(t, eng.Recover([]logreader.ResolvedSortedLog{dir}, extentA, map[string]bool{}, recv2))
	require.Equal(t, recv1.rows, recv2.rows)
}

func TestNeedsRecoveryFalseWhenTabletAbsent(t *testing.T) {
	fs := vfs.NewMem()
	entries := []testlog.Entry{
		{Key: logfile.Key{Event: logfile.Open, TabletID: 0, Seq: 0}},
		{Key: logfile.Key{Event: logfile.DefineTablet, TabletID: 5, Seq: 1, Tablet: logfile.Extent{TableID: 2}}},
	}
	dir := buildLog(t, fs, "dir1", entries)
	eng := &recovery.Engine{ReaderOptions: logreader.OpenOptions{FS: fs}}

	needs, err := eng.NeedsRecovery([]logreader.ResolvedSortedLog{dir}, extentA)
	require.NoError(t, err)
	require.False(t, needs)
}
