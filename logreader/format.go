package logreader

import (
	"encoding/binary"
	"hash/crc32"
	"io"

	"github.com/cespare/xxhash/v2"
	"github.com/cockroachdb/errors"
)

// ChecksumType selects the per-entry checksum algorithm a recovery log
// file was written with, mirroring sstable.WriterOptions.Checksum's
// CRC32c/XXHash64 choice in the teacher's own domain dependency.
type ChecksumType uint8

const (
	ChecksumCRC32 ChecksumType = iota
	ChecksumXXHash64
)

func checksum(typ ChecksumType, b []byte) uint64 {
	switch typ {
	case ChecksumXXHash64:
		return xxhash.Sum64(b)
	default:
		return uint64(crc32.ChecksumIEEE(b))
	}
}

func checksumWidth(typ ChecksumType) int {
	switch typ {
	case ChecksumXXHash64:
		return 8
	default:
		return 4
	}
}

func putChecksum(typ ChecksumType, dst []byte, sum uint64) {
	switch typ {
	case ChecksumXXHash64:
		binary.LittleEndian.PutUint64(dst, sum)
	default:
		binary.LittleEndian.PutUint32(dst, uint32(sum))
	}
}

func getChecksum(typ ChecksumType, src []byte) uint64 {
	switch typ {
	case ChecksumXXHash64:
		return binary.LittleEndian.Uint64(src)
	default:
		return uint64(binary.LittleEndian.Uint32(src))
	}
}

// fileMagic marks the start of a recovery log file.
var fileMagic = [8]byte{'r', 'e', 'c', 'o', 'v', 'w', 'a', 'l'}

// Header is the fixed 10-byte prefix of a recovery log file: magic,
// then the checksum and compression codecs the entry stream following
// it was written with.
type Header struct {
	Checksum    ChecksumType
	Compression Compression
}

// WriteHeader writes h's on-disk encoding, for use by testlog's
// synthetic-log builder.
func WriteHeader(w io.Writer, h Header) error {
	buf := make([]byte, 0, len(fileMagic)+2)
	buf = append(buf, fileMagic[:]...)
	buf = append(buf, byte(h.Checksum), byte(h.Compression))
	_, err := w.Write(buf)
	return err
}

func readHeader(raw []byte) (Header, []byte, error) {
	if len(raw) < len(fileMagic)+2 {
		return Header{}, nil, errors.New("logreader: file shorter than header")
	}
	for i := range fileMagic {
		if raw[i] != fileMagic[i] {
			return Header{}, nil, errors.New("logreader: bad file magic")
		}
	}
	h := Header{
		Checksum:    ChecksumType(raw[len(fileMagic)]),
		Compression: Compression(raw[len(fileMagic)+1]),
	}
	return h, raw[len(fileMagic)+2:], nil
}

// WriteEntry appends one length-prefixed, checksummed key/value record
// to w: [varint keyLen][varint valLen][key][val][checksum(key||val)].
// Exported for testlog's synthetic-log builder.
func WriteEntry(w io.Writer, typ ChecksumType, key, val []byte) error {
	var lenBuf [2 * binary.MaxVarintLen64]byte
	n := binary.PutUvarint(lenBuf[:], uint64(len(key)))
	n += binary.PutUvarint(lenBuf[n:], uint64(len(val)))
	if _, err := w.Write(lenBuf[:n]); err != nil {
		return err
	}
	if _, err := w.Write(key); err != nil {
		return err
	}
	if _, err := w.Write(val); err != nil {
		return err
	}
	sum := checksum(typ, append(append([]byte{}, key...), val...))
	cw := checksumWidth(typ)
	sumBuf := make([]byte, cw)
	putChecksum(typ, sumBuf, sum)
	_, err := w.Write(sumBuf)
	return err
}

// entryReader reads sequential entries written by WriteEntry from a
// buffered byte source.
type entryReader struct {
	typ ChecksumType
	src *countingReader
}

func newEntryReader(typ ChecksumType, src io.Reader) *entryReader {
	return &entryReader{typ: typ, src: &countingReader{r: src}}
}

// readEntry returns io.EOF when the stream is exhausted exactly on an
// entry boundary.
func (er *entryReader) readEntry() (key, val []byte, err error) {
	keyLen, err := readUvarint(er.src)
	if err != nil {
		if err == io.EOF {
			return nil, nil, io.EOF
		}
		return nil, nil, errors.Wrapf(err, "logreader: reading key length")
	}
	valLen, err := readUvarint(er.src)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "logreader: reading value length")
	}
	key = make([]byte, keyLen)
	if _, err := io.ReadFull(er.src, key); err != nil {
		return nil, nil, errors.Wrapf(err, "logreader: reading key bytes")
	}
	val = make([]byte, valLen)
	if _, err := io.ReadFull(er.src, val); err != nil {
		return nil, nil, errors.Wrapf(err, "logreader: reading value bytes")
	}
	cw := checksumWidth(er.typ)
	sumBuf := make([]byte, cw)
	if _, err := io.ReadFull(er.src, sumBuf); err != nil {
		return nil, nil, errors.Wrapf(err, "logreader: reading checksum")
	}
	want := getChecksum(er.typ, sumBuf)
	got := checksum(er.typ, append(append([]byte{}, key...), val...))
	if want != got {
		return nil, nil, errors.Newf("logreader: checksum mismatch at offset %d", er.src.n)
	}
	return key, val, nil
}

// countingReader tracks bytes consumed, for diagnostics on checksum
// failure.
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

func readUvarint(r io.Reader) (uint64, error) {
	var x uint64
	var s uint
	var b [1]byte
	for {
		if _, err := io.ReadFull(r, b[:]); err != nil {
			if s > 0 && err == io.EOF {
				return 0, io.ErrUnexpectedEOF
			}
			return 0, err
		}
		if b[0] < 0x80 {
			if s >= 63 && b[0] > 1 {
				return 0, errors.New("logreader: varint overflows uint64")
			}
			return x | uint64(b[0])<<s, nil
		}
		x |= uint64(b[0]&0x7f) << s
		s += 7
	}
}
