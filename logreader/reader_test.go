package logreader_test

import (
	"testing"

	"github.com/cockroachdb/pebble/vfs"
	"github.com/stretchr/testify/require"

	"github.com/devlibx/logrecovery/logfile"
	"github.com/devlibx/logrecovery/logreader"
	"github.com/devlibx/logrecovery/logreader/testlog"
)

func entries() []testlog.Entry {
	return []testlog.Entry{
		{Key: logfile.Key{Event: logfile.Open, TabletID: 0, Seq: 0}},
		{Key: logfile.Key{Event: logfile.DefineTablet, TabletID: 5, Seq: 1, Tablet: logfile.Extent{TableID: 3}}},
		{Key: logfile.Key{Event: logfile.CompactionStart, TabletID: 5, Seq: 3, Filename: "f1"}},
		{Key: logfile.Key{Event: logfile.CompactionFinish, TabletID: 5, Seq: 4}},
		{
			Key: logfile.Key{Event: logfile.Mutation, TabletID: 5, Seq: 2},
			Val: logfile.Value{Mutations: []logfile.Mutation{{Row: []byte("r1")}}},
		},
		{
			Key: logfile.Key{Event: logfile.Mutation, TabletID: 5, Seq: 5},
			Val: logfile.Value{Mutations: []logfile.Mutation{{Row: []byte("r2")}}},
		},
	}
}

func TestReaderRoundTrip(t *testing.T) {
	fs := vfs.NewMem()
	require.NoError(t, testlog.WriteFile(fs, "log1", logreader.ChecksumCRC32, logreader.NoCompression, entries()))

	r, err := logreader.Open("log1", logreader.OpenOptions{FS: fs})
	require.NoError(t, err)
	defer r.Close()

	var got []logfile.Key
	for {
		k, _, ok, err := r.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		got = append(got, k)
	}
	require.Len(t, got, len(entries()))
	for i, e := range entries() {
		require.Equal(t, e.Key, got[i])
	}
}

func TestReaderSeekAndRange(t *testing.T) {
	fs := vfs.NewMem()
	require.NoError(t, testlog.WriteFile(fs, "log1", logreader.ChecksumXXHash64, logreader.SnappyCompression, entries()))

	r, err := logreader.Open("log1", logreader.OpenOptions{FS: fs})
	require.NoError(t, err)
	defer r.Close()

	start := logfile.Key{Event: logfile.Mutation, TabletID: 5, Seq: 2}
	end := logfile.Key{Event: logfile.Mutation, TabletID: 5, Seq: 5}
	require.NoError(t, r.Seek(logfile.Range{Start: &start, End: &end}))

	var got []logfile.Key
	for {
		k, _, ok, err := r.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		got = append(got, k)
	}
	require.Equal(t, []logfile.Key{
		{Event: logfile.Mutation, TabletID: 5, Seq: 2},
		{Event: logfile.Mutation, TabletID: 5, Seq: 5},
	}, got)
}

func TestReaderCorruptMagic(t *testing.T) {
	fs := vfs.NewMem()
	f, err := fs.Create("bad")
	require.NoError(t, err)
	_, err = f.Write([]byte("not-a-recovery-log"))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, err = logreader.Open("bad", logreader.OpenOptions{FS: fs})
	require.Error(t, err)
	require.ErrorIs(t, err, logfile.ErrCorruptLogEntry)
}

func TestReaderCloseIdempotent(t *testing.T) {
	fs := vfs.NewMem()
	require.NoError(t, testlog.WriteFile(fs, "log1", logreader.ChecksumCRC32, logreader.NoCompression, entries()))
	r, err := logreader.Open("log1", logreader.OpenOptions{FS: fs})
	require.NoError(t, err)
	require.NoError(t, r.Close())
	require.NoError(t, r.Close())
}
