package interfaces

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// ErrMalformedSet reports an authorization set whose entries are not
// consistent with their tag types. It is internal to the key material
// layer and translated into the public taxonomy before surfacing.
var ErrMalformedSet = errors.New("malformed authorization set")

// Param is a single authorization tag with its payload. Exactly one of
// Value and Blob carries the payload, selected by the tag type. Params
// are immutable once created; mutation helpers copy.
type Param struct {
	Tag   Tag
	Value uint64
	Blob  []byte
}

// EnumParam builds an enumerated param.
func EnumParam(tag Tag, value uint32) Param { return Param{Tag: tag, Value: uint64(value)} }

// UintParam builds a 32-bit integer param.
func UintParam(tag Tag, value uint32) Param { return Param{Tag: tag, Value: uint64(value)} }

// UlongParam builds a 64-bit integer param.
func UlongParam(tag Tag, value uint64) Param { return Param{Tag: tag, Value: value} }

// DateParam builds a date param from milliseconds since the epoch.
func DateParam(tag Tag, millis uint64) Param { return Param{Tag: tag, Value: millis} }

// BoolParam builds a boolean param. Boolean tags are present-or-absent;
// a present param always carries the value 1.
func BoolParam(tag Tag) Param { return Param{Tag: tag, Value: 1} }

// BlobParam builds a byte-payload param. The data is copied.
func BlobParam(tag Tag, data []byte) Param {
	return Param{Tag: tag, Blob: bytes.Clone(data)}
}

func (p Param) isBlobTyped() bool {
	t := p.Tag.Type()
	return t == TypeBytes || t == TypeBignum
}

// Set is an ordered collection of authorization params. Order is
// significant: serialized bytes feed authenticated encryption, so two
// sets with the same params in different orders are different bindings.
type Set struct {
	params []Param
}

// NewSet builds a set from params, preserving order.
func NewSet(params ...Param) *Set {
	s := &Set{}
	for _, p := range params {
		s.Add(p)
	}
	return s
}

// Add appends a param to the set.
func (s *Set) Add(p Param) {
	s.params = append(s.params, p)
}

// Len returns the number of params.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.params)
}

// Params exposes the underlying slice. Callers must not mutate entries.
func (s *Set) Params() []Param {
	if s == nil {
		return nil
	}
	return s.params
}

// Find returns the index of the first param with the given tag, or -1.
func (s *Set) Find(tag Tag) int {
	if s == nil {
		return -1
	}
	for i, p := range s.params {
		if p.Tag == tag {
			return i
		}
	}
	return -1
}

// GetValue returns the integer payload of the first param with the tag.
func (s *Set) GetValue(tag Tag) (uint64, bool) {
	i := s.Find(tag)
	if i == -1 {
		return 0, false
	}
	return s.params[i].Value, true
}

// GetEnum returns the enumerated payload of the first param with the tag.
func (s *Set) GetEnum(tag Tag) (uint32, bool) {
	v, ok := s.GetValue(tag)
	return uint32(v), ok
}

// GetBlob returns the byte payload of the first param with the tag.
func (s *Set) GetBlob(tag Tag) ([]byte, bool) {
	i := s.Find(tag)
	if i == -1 {
		return nil, false
	}
	return s.params[i].Blob, true
}

// ContainsValue reports whether any param carries the tag with the exact
// integer payload. Repeatable tags may appear multiple times.
func (s *Set) ContainsValue(tag Tag, value uint64) bool {
	if s == nil {
		return false
	}
	for _, p := range s.params {
		if p.Tag == tag && p.Value == value {
			return true
		}
	}
	return false
}

// ContainsTag reports whether the tag is present at all.
func (s *Set) ContainsTag(tag Tag) bool {
	return s.Find(tag) != -1
}

// SetValue replaces the integer payload of the first param with the tag.
// Returns false if the tag is absent.
func (s *Set) SetValue(tag Tag, value uint64) bool {
	i := s.Find(tag)
	if i == -1 {
		return false
	}
	s.params[i].Value = value
	return true
}

// Clone returns a deep copy.
func (s *Set) Clone() *Set {
	if s == nil {
		return NewSet()
	}
	out := &Set{params: make([]Param, len(s.params))}
	for i, p := range s.params {
		out.params[i] = Param{Tag: p.Tag, Value: p.Value, Blob: bytes.Clone(p.Blob)}
	}
	return out
}

// Validate checks that every entry is well formed: a known tag type and a
// payload consistent with it.
func (s *Set) Validate() error {
	if s == nil {
		return nil
	}
	for _, p := range s.params {
		if p.Tag == TagInvalid || p.Tag.Type() > TypeUlongRep {
			return fmt.Errorf("%w: tag %#x", ErrMalformedSet, uint32(p.Tag))
		}
		if p.isBlobTyped() {
			if p.Value != 0 {
				return fmt.Errorf("%w: blob tag %#x carries integer payload", ErrMalformedSet, uint32(p.Tag))
			}
		} else if p.Blob != nil {
			return fmt.Errorf("%w: integer tag %#x carries blob payload", ErrMalformedSet, uint32(p.Tag))
		}
	}
	return nil
}

// Serialize produces the canonical byte encoding: a little-endian uint32
// entry count followed by each entry as uint32 tag id and either a
// length-prefixed blob or a uint64 value. Identical sets always produce
// identical bytes.
func (s *Set) Serialize() []byte {
	var buf bytes.Buffer
	var n uint32
	if s != nil {
		n = uint32(len(s.params))
	}
	binary.Write(&buf, binary.LittleEndian, n)
	if s == nil {
		return buf.Bytes()
	}
	for _, p := range s.params {
		binary.Write(&buf, binary.LittleEndian, uint32(p.Tag))
		if p.isBlobTyped() {
			binary.Write(&buf, binary.LittleEndian, uint32(len(p.Blob)))
			buf.Write(p.Blob)
		} else {
			binary.Write(&buf, binary.LittleEndian, p.Value)
		}
	}
	return buf.Bytes()
}

// DeserializeSet reads one serialized set from r, leaving r positioned
// after it.
func DeserializeSet(r *bytes.Reader) (*Set, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, fmt.Errorf("%w: truncated set header", ErrMalformedSet)
	}
	if uint64(n) > uint64(r.Len()) {
		return nil, fmt.Errorf("%w: implausible entry count %d", ErrMalformedSet, n)
	}
	s := NewSet()
	for i := uint32(0); i < n; i++ {
		var rawTag uint32
		if err := binary.Read(r, binary.LittleEndian, &rawTag); err != nil {
			return nil, fmt.Errorf("%w: truncated entry", ErrMalformedSet)
		}
		p := Param{Tag: Tag(rawTag)}
		if p.isBlobTyped() {
			var blobLen uint32
			if err := binary.Read(r, binary.LittleEndian, &blobLen); err != nil {
				return nil, fmt.Errorf("%w: truncated blob length", ErrMalformedSet)
			}
			if uint64(blobLen) > uint64(r.Len()) {
				return nil, fmt.Errorf("%w: blob length %d exceeds input", ErrMalformedSet, blobLen)
			}
			p.Blob = make([]byte, blobLen)
			if _, err := io.ReadFull(r, p.Blob); err != nil {
				return nil, fmt.Errorf("%w: truncated blob", ErrMalformedSet)
			}
		} else {
			if err := binary.Read(r, binary.LittleEndian, &p.Value); err != nil {
				return nil, fmt.Errorf("%w: truncated value", ErrMalformedSet)
			}
		}
		s.Add(p)
	}
	return s, nil
}
