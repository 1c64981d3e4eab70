package logreader

import (
	"bytes"
	"io"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/pebble/vfs"

	"github.com/devlibx/logrecovery/logfile"
)

// RecoveryIoError marks errors surfaced unchanged from the underlying
// filesystem, per spec §7 — the caller may retry.
var RecoveryIoError = errors.New("logreader: recovery i/o error")

func ioErrorf(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), RecoveryIoError)
}

// Reader opens one sorted recovery-log file and exposes a lazy,
// finite sequence of (logfile.Key, logfile.Value) entries in the §3
// total order, per spec §4.2.
//
// A Reader is not safe for concurrent use; file readers are exclusively
// owned by the single iterator that opened them (spec §5).
type Reader struct {
	path string
	file vfs.File
	ents *entryReader
	rng  logfile.Range

	closed    bool
	exhausted bool
	cur       *logfile.Key
	curVal    logfile.Value
	err       error
}

// Open constructs a Reader over path, per spec §4.2. Recovery log
// files are read in full up front (they are bounded by one server
// epoch's WAL, not by table size) so that an optional whole-stream
// compression codec and the injected CryptoService can both operate
// before any entry is decoded. Failure to open raises RecoveryIoError.
// The returned Reader holds an OS file handle and must be Closed on
// every exit path.
func Open(path string, opts OpenOptions) (*Reader, error) {
	f, err := opts.fs().Open(path)
	if err != nil {
		return nil, ioErrorf("logreader: opening %s: %v", path, err)
	}

	if opts.FileLenCache != nil {
		if _, ok := opts.FileLenCache.Len(path); !ok {
			if info, statErr := f.Stat(); statErr == nil {
				opts.FileLenCache.Set(path, info.Size())
			}
		}
	}

	raw, err := io.ReadAll(f)
	if err != nil {
		_ = f.Close()
		return nil, ioErrorf("logreader: reading %s: %v", path, err)
	}

	plainReader, err := opts.crypto().Decrypt(bytes.NewReader(raw))
	if err != nil {
		_ = f.Close()
		return nil, errors.Wrapf(err, "logreader: decrypting %s", path)
	}
	plain, err := io.ReadAll(plainReader)
	if err != nil {
		_ = f.Close()
		return nil, errors.Wrapf(err, "logreader: decrypting %s", path)
	}

	hdr, body, err := readHeader(plain)
	if err != nil {
		_ = f.Close()
		return nil, corruptWrap(path, err)
	}
	entries, err := decompress(hdr.Compression, body)
	if err != nil {
		_ = f.Close()
		return nil, corruptWrap(path, errors.Wrapf(err, "decompressing"))
	}

	r := &Reader{
		path: path,
		file: f,
		ents: newEntryReader(hdr.Checksum, bytes.NewReader(entries)),
		rng:  logfile.Unbounded(),
	}
	return r, nil
}

func corruptWrap(path string, cause error) error {
	return errors.Mark(errors.Wrapf(cause, "logreader: corrupt file %s", path), logfile.ErrCorruptLogEntry)
}

// Seek positions r to the first entry >= r.Start; a nil Start is a
// no-op, per spec §4.2. Because this format has no sparse index, Seek
// is implemented by discarding entries strictly less than Start — the
// behavioral contract is met even though the cost is linear.
func (r *Reader) Seek(rng logfile.Range) error {
	r.rng = rng
	r.cur = nil
	r.exhausted = false
	r.err = nil
	if rng.Start == nil {
		return nil
	}
	for {
		k, v, err := r.advance()
		if err == io.EOF {
			r.exhausted = true
			return nil
		}
		if err != nil {
			r.err = err
			return err
		}
		if k.Compare(*rng.Start) >= 0 {
			r.cur = &k
			r.curVal = v
			return nil
		}
	}
}

// advance reads and decodes the next raw entry, regardless of range.
func (r *Reader) advance() (logfile.Key, logfile.Value, error) {
	rawKey, rawVal, err := r.ents.readEntry()
	if err == io.EOF {
		return logfile.Key{}, logfile.Value{}, io.EOF
	}
	if err != nil {
		return logfile.Key{}, logfile.Value{}, corruptWrap(r.path, err)
	}
	k, err := logfile.DecodeKey(rawKey)
	if err != nil {
		return logfile.Key{}, logfile.Value{}, errors.Wrapf(err, "logreader: %s", r.path)
	}
	v, err := logfile.DecodeValue(rawVal)
	if err != nil {
		return logfile.Key{}, logfile.Value{}, errors.Wrapf(err, "logreader: %s", r.path)
	}
	return k, v, nil
}

// Next advances the reader and returns the decoded entry, or ok==false
// at end of stream (including the configured range's upper bound).
func (r *Reader) Next() (key logfile.Key, val logfile.Value, ok bool, err error) {
	if r.err != nil {
		return logfile.Key{}, logfile.Value{}, false, r.err
	}
	if r.exhausted {
		return logfile.Key{}, logfile.Value{}, false, nil
	}
	if r.cur != nil {
		key, val = *r.cur, r.curVal
		r.cur = nil
		if r.rng.End != nil && key.Compare(*r.rng.End) > 0 {
			r.exhausted = true
			return logfile.Key{}, logfile.Value{}, false, nil
		}
		return key, val, true, nil
	}
	k, v, err := r.advance()
	if err == io.EOF {
		r.exhausted = true
		return logfile.Key{}, logfile.Value{}, false, nil
	}
	if err != nil {
		r.err = err
		return logfile.Key{}, logfile.Value{}, false, err
	}
	if r.rng.End != nil && k.Compare(*r.rng.End) > 0 {
		r.exhausted = true
		return logfile.Key{}, logfile.Value{}, false, nil
	}
	return k, v, true, nil
}

// Peek returns the next entry without consuming it; used by the
// merging iterator's heap to compare cursors.
func (r *Reader) Peek() (key logfile.Key, ok bool, err error) {
	if r.cur != nil && r.rng.End != nil && r.cur.Compare(*r.rng.End) > 0 {
		r.cur = nil
		r.exhausted = true
	}
	if r.cur == nil {
		k, v, fetched, err := r.Next()
		if err != nil {
			return logfile.Key{}, false, err
		}
		if !fetched {
			return logfile.Key{}, false, nil
		}
		r.cur = &k
		r.curVal = v
	}
	return *r.cur, true, nil
}

// Close releases the underlying handle. Idempotent, per spec §4.2.
func (r *Reader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	if err := r.file.Close(); err != nil {
		return ioErrorf("logreader: closing %s: %v", r.path, err)
	}
	return nil
}
