package logfile

import (
	"encoding/binary"

	"github.com/cockroachdb/errors"
)

// Key is the sort key of every recovery-log entry. Its total order —
// first by Event, then by TabletID, then by Seq — is what the external
// sorter must produce and what the merging iterator preserves. Event
// and TabletID and Seq are therefore encoded as a fixed-width,
// byte-comparable prefix; Filename and Tablet never participate in
// ordering and are carried in a variable-length suffix.
type Key struct {
	Event    Event
	TabletID int64
	Seq      uint64

	// Filename is populated only when Event == CompactionStart; it
	// names the output file of the compaction.
	Filename string

	// Tablet is populated only when Event == DefineTablet; it carries
	// the key-extent of the tablet being defined.
	Tablet Extent
}

// keyPrefixLen is the width of the byte-comparable ordering prefix:
// 1 byte event + 8 bytes tabletId + 8 bytes seq.
const keyPrefixLen = 1 + 8 + 8

// Compare orders two Keys per the §3 total order. It agrees with
// bytes.Compare(a.Encode(), b.Encode()) on the ordering prefix;
// logreader and recoveryiter order entries with Compare itself.
func (k Key) Compare(o Key) int {
	if k.Event != o.Event {
		if k.Event < o.Event {
			return -1
		}
		return +1
	}
	if k.TabletID != o.TabletID {
		if k.TabletID < o.TabletID {
			return -1
		}
		return +1
	}
	switch {
	case k.Seq < o.Seq:
		return -1
	case k.Seq > o.Seq:
		return +1
	default:
		return 0
	}
}

// Encode serializes k to the key bytes of a recovery log entry.
func (k Key) Encode() ([]byte, error) {
	if !k.Event.Valid() {
		return nil, errors.Newf("logfile: invalid event %d", k.Event)
	}
	if err := checkTabletID(k.TabletID); err != nil {
		return nil, err
	}
	buf := make([]byte, keyPrefixLen, keyPrefixLen+16)
	buf[0] = byte(k.Event)
	binary.BigEndian.PutUint64(buf[1:9], uint64(k.TabletID))
	binary.BigEndian.PutUint64(buf[9:17], k.Seq)

	switch k.Event {
	case CompactionStart:
		buf = appendVarBytes(buf, []byte(k.Filename))
	case DefineTablet:
		buf = appendExtent(buf, k.Tablet)
	}
	return buf, nil
}

// DecodeKey is the total inverse of Encode, per spec §4.1. A raw key
// that doesn't conform to the expected shape fails with a corrupt-entry
// error (ErrCorruptLogEntry).
func DecodeKey(raw []byte) (Key, error) {
	if len(raw) < keyPrefixLen {
		return Key{}, corruptf("logfile: key too short (%d bytes)", len(raw))
	}
	ev := Event(raw[0])
	if !ev.Valid() {
		return Key{}, corruptf("logfile: unknown event ordinal %d", raw[0])
	}
	k := Key{
		Event:    ev,
		TabletID: int64(binary.BigEndian.Uint64(raw[1:9])),
		Seq:      binary.BigEndian.Uint64(raw[9:17]),
	}
	rest := raw[keyPrefixLen:]
	switch ev {
	case CompactionStart:
		name, tail, err := readVarBytes(rest)
		if err != nil {
			return Key{}, corruptf("logfile: decoding COMPACTION_START filename: %v", err)
		}
		if len(tail) != 0 {
			return Key{}, corruptf("logfile: trailing bytes after COMPACTION_START filename")
		}
		k.Filename = string(name)
	case DefineTablet:
		ext, tail, err := readExtent(rest)
		if err != nil {
			return Key{}, corruptf("logfile: decoding DEFINE_TABLET extent: %v", err)
		}
		if len(tail) != 0 {
			return Key{}, corruptf("logfile: trailing bytes after DEFINE_TABLET extent")
		}
		k.Tablet = ext
	default:
		if len(rest) != 0 {
			return Key{}, corruptf("logfile: unexpected trailing bytes for event %s", ev)
		}
	}
	return k, nil
}

func appendVarBytes(buf []byte, b []byte) []byte {
	var lenBuf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(lenBuf[:], uint64(len(b)))
	buf = append(buf, lenBuf[:n]...)
	return append(buf, b...)
}

func readVarBytes(buf []byte) (b []byte, rest []byte, err error) {
	n, m := binary.Uvarint(buf)
	if m <= 0 {
		return nil, nil, errors.New("invalid varint length prefix")
	}
	buf = buf[m:]
	if uint64(len(buf)) < n {
		return nil, nil, errors.New("truncated byte string")
	}
	return buf[:n], buf[n:], nil
}

// presence bytes for nullable extent fields.
const (
	absentField  byte = 0
	presentField byte = 1
)

func appendNullableBytes(buf []byte, b []byte) []byte {
	if b == nil {
		return append(buf, absentField)
	}
	buf = append(buf, presentField)
	return appendVarBytes(buf, b)
}

func readNullableBytes(buf []byte) (b []byte, rest []byte, err error) {
	if len(buf) == 0 {
		return nil, nil, errors.New("truncated presence byte")
	}
	switch buf[0] {
	case absentField:
		return nil, buf[1:], nil
	case presentField:
		return readVarBytes(buf[1:])
	default:
		return nil, nil, errors.Newf("invalid presence byte %d", buf[0])
	}
}

func appendExtent(buf []byte, e Extent) []byte {
	var idBuf [8]byte
	binary.BigEndian.PutUint64(idBuf[:], e.TableID)
	buf = append(buf, idBuf[:]...)
	buf = appendNullableBytes(buf, e.EndRow)
	buf = appendNullableBytes(buf, e.PrevEndRow)
	return buf
}

func readExtent(buf []byte) (Extent, []byte, error) {
	if len(buf) < 8 {
		return Extent{}, nil, errors.New("truncated extent table id")
	}
	e := Extent{TableID: binary.BigEndian.Uint64(buf[:8])}
	buf = buf[8:]
	endRow, buf, err := readNullableBytes(buf)
	if err != nil {
		return Extent{}, nil, err
	}
	e.EndRow = endRow
	prevEndRow, buf, err := readNullableBytes(buf)
	if err != nil {
		return Extent{}, nil, err
	}
	e.PrevEndRow = prevEndRow
	return e, buf, nil
}
