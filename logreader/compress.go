package logreader

import (
	"io"

	"github.com/DataDog/zstd"
	"github.com/cockroachdb/errors"
	"github.com/golang/snappy"
	kzstd "github.com/klauspost/compress/zstd"
)

// Compression selects the block-compression codec a recovery log
// file's entry stream was written with, mirroring
// sstable.WriterOptions.Compression — the teacher's own knob for the
// same concern on its primary sorted-file format.
type Compression uint8

const (
	NoCompression Compression = iota
	SnappyCompression
	ZstdCompression
)

// Compress applies codec c to data, for use by testlog's synthetic-log
// builder when constructing compressed fixtures.
func Compress(c Compression, data []byte) ([]byte, error) {
	return compress(c, data)
}

func compress(c Compression, data []byte) ([]byte, error) {
	switch c {
	case SnappyCompression:
		return snappy.Encode(nil, data), nil
	case ZstdCompression:
		return zstd.Compress(nil, data)
	case NoCompression:
		return data, nil
	default:
		return nil, errors.Newf("logreader: unknown compression codec %d", c)
	}
}

func decompress(c Compression, data []byte) ([]byte, error) {
	switch c {
	case SnappyCompression:
		return snappy.Decode(nil, data)
	case ZstdCompression:
		return zstd.Decompress(nil, data)
	case NoCompression:
		return data, nil
	default:
		return nil, errors.Newf("logreader: unknown compression codec %d", c)
	}
}

// streamingZstdReader wraps klauspost/compress/zstd's streaming
// decoder, the pack's alternate zstd implementation. Nothing calls it:
// Open decodes every file whole in memory through decompress.
func streamingZstdReader(r io.Reader) (io.ReadCloser, error) {
	dec, err := kzstd.NewReader(r)
	if err != nil {
		return nil, err
	}
	return readerNopCloser{dec}, nil
}

type readerNopCloser struct{ *kzstd.Decoder }

func (readerNopCloser) Close() error { return nil }
