// Package logreader opens a single sorted recovery-log file and
// exposes a lazy, seekable, finite sequence of logfile.Key/Value
// entries, per spec §4.2.
package logreader

import (
	"io"

	"github.com/cockroachdb/pebble/cache"
	"github.com/cockroachdb/pebble/vfs"
)

// CryptoService decrypts a recovery-log file's on-disk bytes as they
// are read. It is an injected capability (spec §6): the core never
// interprets the key material itself.
type CryptoService interface {
	// Decrypt wraps r, a reader over the raw on-disk file bytes,
	// returning a reader over the plaintext entry stream.
	Decrypt(r io.Reader) (io.Reader, error)
}

// nopCrypto is the CryptoService used when recovery logs are not
// encrypted at rest.
type nopCrypto struct{}

func (nopCrypto) Decrypt(r io.Reader) (io.Reader, error) { return r, nil }

// NopCrypto is the identity CryptoService, for unencrypted deployments
// and tests. The teacher's cloud/aws CloudFile demonstrates the other
// end of this capability axis: a passthrough wrapper around a remote
// object store rather than a cipher.
var NopCrypto CryptoService = nopCrypto{}

// FileLenCache is the externally-synchronized, shared, read-mostly
// file-length cache named in spec §6. It is treated as opaque by this
// package beyond Len/Set.
type FileLenCache interface {
	Len(path string) (size int64, ok bool)
	Set(path string, size int64)
}

// OpenOptions bundles the optional capabilities SortedLogReader.Open
// accepts, per spec §4.2.
type OpenOptions struct {
	FS vfs.FS

	// Crypto decrypts file bytes on read. Defaults to NopCrypto.
	Crypto CryptoService

	// FileLenCache, if non-nil, is consulted/populated with the
	// opened file's size to avoid a redundant Stat on cache hit.
	FileLenCache FileLenCache

	// BlockCache is the shared block cache capability; this package
	// does not interpret it, only plumbs it to callers that build
	// richer readers on top (e.g. an sstable-backed opener).
	BlockCache *cache.Cache
}

func (o OpenOptions) crypto() CryptoService {
	if o.Crypto == nil {
		return NopCrypto
	}
	return o.Crypto
}

func (o OpenOptions) fs() vfs.FS {
	if o.FS == nil {
		return vfs.Default
	}
	return o.FS
}
