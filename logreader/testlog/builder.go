// Package testlog builds synthetic recovery-log files in the format
// logreader.Reader understands, for use by recovery and recoveryiter
// tests and by cmd/recoverctl's write-testlog subcommand.
package testlog

import (
	"bytes"

	"github.com/cockroachdb/pebble/vfs"

	"github.com/devlibx/logrecovery/logfile"
	"github.com/devlibx/logrecovery/logreader"
)

// Entry is one (key, value) pair destined for a synthetic log file, in
// the order it should be written. WriteFile does not sort; callers
// must supply entries already in the §3 total order.
type Entry struct {
	Key logfile.Key
	Val logfile.Value
}

// WriteFile serializes entries (already in Key.Compare order) to path
// on fs using the given checksum and compression choice.
func WriteFile(
	fs vfs.FS,
	path string,
	typ logreader.ChecksumType,
	compression logreader.Compression,
	entries []Entry,
) error {
	if dir := fs.PathDir(path); dir != "." && dir != "" {
		if err := fs.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := fs.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	var body bytes.Buffer
	for _, e := range entries {
		kb, err := e.Key.Encode()
		if err != nil {
			return err
		}
		vb := e.Val.Encode()
		if err := logreader.WriteEntry(&body, typ, kb, vb); err != nil {
			return err
		}
	}

	compressed, err := logreader.Compress(compression, body.Bytes())
	if err != nil {
		return err
	}

	if err := logreader.WriteHeader(f, logreader.Header{Checksum: typ, Compression: compression}); err != nil {
		return err
	}
	if _, err := f.Write(compressed); err != nil {
		return err
	}
	return f.Sync()
}

// Dir builds one directory of uncompressed recovery-log files, one
// per entry of files, that WriteFile and logreader.Open agree on, for
// use by recoveryiter/recovery tests that need a whole ResolvedSortedLog.
func Dir(fs vfs.FS, dir string, files map[string][]Entry, typ logreader.ChecksumType) error {
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	for name, entries := range files {
		if err := WriteFile(fs, dir+"/"+name, typ, logreader.NoCompression, entries); err != nil {
			return err
		}
	}
	return nil
}
