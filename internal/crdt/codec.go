package crdt

import (
	"errors"
	"fmt"
	"sort"

	"google.golang.org/protobuf/encoding/protowire"

	"friendmap/internal/clock"
)

// ErrMalformedSnapshot is returned when snapshot bytes cannot be decoded.
var ErrMalformedSnapshot = errors.New("malformed snapshot")

// Snapshots use the protobuf wire format so they stay readable by any
// protobuf tooling given this schema:
//
//	message Snapshot { repeated Dot clock = 1; repeated Entry entries = 2; repeated Deferred deferred = 3; }
//	message Dot      { uint64 actor = 1; uint64 counter = 2; }
//	message Entry    { string key = 1; repeated Dot clock = 2; Set value = 3; }
//	message Set      { repeated Dot clock = 1; repeated Member members = 2; repeated Deferred deferred = 3; }
//	message Member   { string name = 1; repeated Dot clock = 2; }
//	message Deferred { repeated Dot clock = 1; repeated string names = 2; }
//
// Fields are written in sorted order, so equal maps encode to equal bytes.
const (
	fieldSnapshotClock    protowire.Number = 1
	fieldSnapshotEntries  protowire.Number = 2
	fieldSnapshotDeferred protowire.Number = 3

	fieldDotActor   protowire.Number = 1
	fieldDotCounter protowire.Number = 2

	fieldEntryKey   protowire.Number = 1
	fieldEntryClock protowire.Number = 2
	fieldEntryValue protowire.Number = 3

	fieldSetClock    protowire.Number = 1
	fieldSetMembers  protowire.Number = 2
	fieldSetDeferred protowire.Number = 3

	fieldMemberName  protowire.Number = 1
	fieldMemberClock protowire.Number = 2

	fieldDeferredClock protowire.Number = 1
	fieldDeferredNames protowire.Number = 2
)

// Marshal encodes the whole map.
func Marshal(m *Map) ([]byte, error) {
	var b []byte
	b = appendClock(b, fieldSnapshotClock, m.clock)
	for _, key := range m.Keys() {
		e := m.entries[key]
		var eb []byte
		eb = protowire.AppendTag(eb, fieldEntryKey, protowire.BytesType)
		eb = protowire.AppendString(eb, key)
		eb = appendClock(eb, fieldEntryClock, e.clock)
		eb = protowire.AppendTag(eb, fieldEntryValue, protowire.BytesType)
		eb = protowire.AppendBytes(eb, appendSet(nil, e.val))

		b = protowire.AppendTag(b, fieldSnapshotEntries, protowire.BytesType)
		b = protowire.AppendBytes(b, eb)
	}
	b = appendDeferred(b, fieldSnapshotDeferred, m.deferred)
	return b, nil
}

// Unmarshal decodes a map produced by Marshal. It checks the encoding only;
// use ValidateMerge before merging the result.
func Unmarshal(data []byte) (*Map, error) {
	m := NewMap()
	err := consumeMessage(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case fieldSnapshotClock:
			return consumeDotInto(typ, b, m.clock)
		case fieldSnapshotEntries:
			v, n, err := consumeBytes(typ, b)
			if err != nil {
				return 0, err
			}
			key, e, err := decodeEntry(v)
			if err != nil {
				return 0, fmt.Errorf("entry: %w", err)
			}
			if _, dup := m.entries[key]; dup {
				return 0, fmt.Errorf("duplicate key %q", key)
			}
			m.entries[key] = e
			return n, nil
		case fieldSnapshotDeferred:
			return consumeDeferredInto(typ, b, m.deferred)
		default:
			return skipField(num, typ, b)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedSnapshot, err)
	}
	return m, nil
}

func appendClock(b []byte, num protowire.Number, vc clock.VClock) []byte {
	for _, d := range vc.Dots() {
		var db []byte
		db = protowire.AppendTag(db, fieldDotActor, protowire.VarintType)
		db = protowire.AppendVarint(db, uint64(d.Actor))
		db = protowire.AppendTag(db, fieldDotCounter, protowire.VarintType)
		db = protowire.AppendVarint(db, d.Counter)

		b = protowire.AppendTag(b, num, protowire.BytesType)
		b = protowire.AppendBytes(b, db)
	}
	return b
}

func appendSet(b []byte, s *Orswot) []byte {
	b = appendClock(b, fieldSetClock, s.clock)
	for _, member := range s.Members() {
		var mb []byte
		mb = protowire.AppendTag(mb, fieldMemberName, protowire.BytesType)
		mb = protowire.AppendString(mb, member)
		mb = appendClock(mb, fieldMemberClock, s.entries[member])

		b = protowire.AppendTag(b, fieldSetMembers, protowire.BytesType)
		b = protowire.AppendBytes(b, mb)
	}
	return appendDeferred(b, fieldSetDeferred, s.deferred)
}

func appendDeferred(b []byte, num protowire.Number, set map[string]deferred) []byte {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		d := set[k]
		var db []byte
		db = appendClock(db, fieldDeferredClock, d.clock)
		for _, name := range d.sortedNames() {
			db = protowire.AppendTag(db, fieldDeferredNames, protowire.BytesType)
			db = protowire.AppendString(db, name)
		}

		b = protowire.AppendTag(b, num, protowire.BytesType)
		b = protowire.AppendBytes(b, db)
	}
	return b
}

func decodeEntry(data []byte) (string, *entry, error) {
	var (
		key    string
		hasKey bool
	)
	e := &entry{clock: clock.New(), val: NewOrswot()}
	err := consumeMessage(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case fieldEntryKey:
			v, n, err := consumeBytes(typ, b)
			if err != nil {
				return 0, err
			}
			key, hasKey = string(v), true
			return n, nil
		case fieldEntryClock:
			return consumeDotInto(typ, b, e.clock)
		case fieldEntryValue:
			v, n, err := consumeBytes(typ, b)
			if err != nil {
				return 0, err
			}
			if err := decodeSet(v, e.val); err != nil {
				return 0, fmt.Errorf("value: %w", err)
			}
			return n, nil
		default:
			return skipField(num, typ, b)
		}
	})
	if err != nil {
		return "", nil, err
	}
	if !hasKey {
		return "", nil, errors.New("missing key")
	}
	return key, e, nil
}

func decodeSet(data []byte, s *Orswot) error {
	return consumeMessage(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case fieldSetClock:
			return consumeDotInto(typ, b, s.clock)
		case fieldSetMembers:
			v, n, err := consumeBytes(typ, b)
			if err != nil {
				return 0, err
			}
			var (
				name    string
				hasName bool
			)
			c := clock.New()
			err = consumeMessage(v, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
				switch num {
				case fieldMemberName:
					v, n, err := consumeBytes(typ, b)
					if err != nil {
						return 0, err
					}
					name, hasName = string(v), true
					return n, nil
				case fieldMemberClock:
					return consumeDotInto(typ, b, c)
				default:
					return skipField(num, typ, b)
				}
			})
			if err != nil {
				return 0, fmt.Errorf("member: %w", err)
			}
			if !hasName {
				return 0, errors.New("member: missing name")
			}
			if _, dup := s.entries[name]; dup {
				return 0, fmt.Errorf("duplicate member %q", name)
			}
			s.entries[name] = c
			return n, nil
		case fieldSetDeferred:
			return consumeDeferredInto(typ, b, s.deferred)
		default:
			return skipField(num, typ, b)
		}
	})
}

func consumeDeferredInto(typ protowire.Type, b []byte, set map[string]deferred) (int, error) {
	v, n, err := consumeBytes(typ, b)
	if err != nil {
		return 0, err
	}
	c := clock.New()
	var names []string
	err = consumeMessage(v, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case fieldDeferredClock:
			return consumeDotInto(typ, b, c)
		case fieldDeferredNames:
			v, n, err := consumeBytes(typ, b)
			if err != nil {
				return 0, err
			}
			names = append(names, string(v))
			return n, nil
		default:
			return skipField(num, typ, b)
		}
	})
	if err != nil {
		return 0, fmt.Errorf("deferred: %w", err)
	}
	addDeferred(set, c, names)
	return n, nil
}

// consumeDotInto decodes one Dot message and applies it to vc.
func consumeDotInto(typ protowire.Type, b []byte, vc clock.VClock) (int, error) {
	v, n, err := consumeBytes(typ, b)
	if err != nil {
		return 0, err
	}
	var d clock.Dot
	err = consumeMessage(v, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case fieldDotActor, fieldDotCounter:
			if typ != protowire.VarintType {
				return 0, fmt.Errorf("dot field %d: unexpected wire type %d", num, typ)
			}
			x, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return 0, protowire.ParseError(n)
			}
			if num == fieldDotActor {
				d.Actor = clock.ActorID(x)
			} else {
				d.Counter = x
			}
			return n, nil
		default:
			return skipField(num, typ, b)
		}
	})
	if err != nil {
		return 0, fmt.Errorf("dot: %w", err)
	}
	if _, dup := vc[d.Actor]; dup {
		return 0, fmt.Errorf("dot: duplicate actor %d", d.Actor)
	}
	if d.Counter == 0 {
		return 0, fmt.Errorf("dot: actor %d has a zero counter", d.Actor)
	}
	vc.Apply(d)
	return n, nil
}

// consumeMessage walks the fields of one message, handing each field's value
// bytes to fn, which returns how many bytes it consumed.
func consumeMessage(b []byte, fn func(num protowire.Number, typ protowire.Type, b []byte) (int, error)) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		m, err := fn(num, typ, b)
		if err != nil {
			return err
		}
		b = b[m:]
	}
	return nil
}

func consumeBytes(typ protowire.Type, b []byte) ([]byte, int, error) {
	if typ != protowire.BytesType {
		return nil, 0, fmt.Errorf("unexpected wire type %d", typ)
	}
	v, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return nil, 0, protowire.ParseError(n)
	}
	return v, n, nil
}

func skipField(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
	n := protowire.ConsumeFieldValue(num, typ, b)
	if n < 0 {
		return 0, protowire.ParseError(n)
	}
	return n, nil
}
