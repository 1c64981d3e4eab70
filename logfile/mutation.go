package logfile

import "encoding/binary"

// Mutation is a single row-level write or delete replayed into a
// tablet's in-memory state during recovery. The schema is
// intentionally minimal: the recovery core only needs to move
// mutations from log to consumer intact, never interpret them.
type Mutation struct {
	Row       []byte
	Family    []byte
	Qualifier []byte
	Timestamp int64
	Value     []byte
	Delete    bool
}

// Value is the LogFileValue of a recovery-log entry: zero or more
// mutations when Key.Event is Mutation or ManyMutations, empty
// otherwise.
type Value struct {
	Mutations []Mutation
}

// Encode serializes v to the value bytes of a recovery log entry.
func (v Value) Encode() []byte {
	if len(v.Mutations) == 0 {
		return nil
	}
	buf := make([]byte, 0, 64*len(v.Mutations))
	var n [binary.MaxVarintLen64]byte
	w := binary.PutUvarint(n[:], uint64(len(v.Mutations)))
	buf = append(buf, n[:w]...)
	for _, m := range v.Mutations {
		buf = appendVarBytes(buf, m.Row)
		buf = appendVarBytes(buf, m.Family)
		buf = appendVarBytes(buf, m.Qualifier)
		var ts [8]byte
		binary.BigEndian.PutUint64(ts[:], uint64(m.Timestamp))
		buf = append(buf, ts[:]...)
		if m.Delete {
			buf = append(buf, 1)
		} else {
			buf = append(buf, 0)
		}
		buf = appendVarBytes(buf, m.Value)
	}
	return buf
}

// DecodeValue is the inverse of Value.Encode. Encode writes nil and
// empty byte fields identically; DecodeValue returns both as nil.
func DecodeValue(raw []byte) (Value, error) {
	if len(raw) == 0 {
		return Value{}, nil
	}
	count, m := binary.Uvarint(raw)
	if m <= 0 {
		return Value{}, corruptf("logfile: invalid mutation count varint")
	}
	raw = raw[m:]
	muts := make([]Mutation, 0, count)
	for i := uint64(0); i < count; i++ {
		var mut Mutation
		var err error
		mut.Row, raw, err = readVarBytes(raw)
		if err != nil {
			return Value{}, corruptf("logfile: decoding mutation %d row: %v", i, err)
		}
		mut.Family, raw, err = readVarBytes(raw)
		if err != nil {
			return Value{}, corruptf("logfile: decoding mutation %d family: %v", i, err)
		}
		mut.Qualifier, raw, err = readVarBytes(raw)
		if err != nil {
			return Value{}, corruptf("logfile: decoding mutation %d qualifier: %v", i, err)
		}
		if len(raw) < 9 {
			return Value{}, corruptf("logfile: truncated mutation %d timestamp/delete flag", i)
		}
		mut.Timestamp = int64(binary.BigEndian.Uint64(raw[:8]))
		mut.Delete = raw[8] != 0
		raw = raw[9:]
		mut.Value, raw, err = readVarBytes(raw)
		if err != nil {
			return Value{}, corruptf("logfile: decoding mutation %d value: %v", i, err)
		}
		for _, f := range []*[]byte{&mut.Row, &mut.Family, &mut.Qualifier, &mut.Value} {
			if len(*f) == 0 {
				*f = nil
			}
		}
		muts = append(muts, mut)
	}
	if len(raw) != 0 {
		return Value{}, corruptf("logfile: trailing bytes after %d mutations", count)
	}
	return Value{Mutations: muts}, nil
}
