package objects

import (
	"bytes"
	"encoding/binary"
)

// An attribute entry of a store: a typed, variable-length value.
type Attribute struct {
	Type  AttributeType
	Value []byte
}

// Equals returns true if the attributes are equal.
func (attribute *Attribute) Equals(attribute2 *Attribute) bool {
	return attribute.Type == attribute2.Type &&
		bytes.Equal(attribute.Value, attribute2.Value)
}

const (
	attrEntryHeaderSize = 8  // type + length, 4 bytes each
	attrsHeaderSize     = 24 // attrsSize, count, class, keyType, boolProps, boolKnown
)

// Attributes is the serialized-attribute store backing an object or a
// creation template. Entries keep insertion order and duplicate types are
// permitted. The class, key type and boolean capability flags are mirrored
// in inline header fields so known-object stores answer those queries in
// O(1); the mirrors are rebuilt on every mutation so both paths always
// agree with the entry list.
type Attributes struct {
	class     ObjectClass
	keyType   KeyType
	boolProps uint32
	boolKnown uint32
	attrsSize int
	entries   []*Attribute
}

func NewAttributes() *Attributes {
	return &Attributes{
		class:   ObjectClass(CKUndefined),
		keyType: KeyType(CKUndefined),
	}
}

// recompute rebuilds the inline header fields and the exact serialized
// entry size from the entry list. For repeated types the first occurrence
// wins, matching the lookup order.
func (attrs *Attributes) recompute() {
	attrs.class = ObjectClass(CKUndefined)
	attrs.keyType = KeyType(CKUndefined)
	attrs.boolProps = 0
	attrs.boolKnown = 0
	attrs.attrsSize = 0
	seenClass, seenType := false, false
	for _, entry := range attrs.entries {
		attrs.attrsSize += attrEntryHeaderSize + len(entry.Value)
		switch {
		case entry.Type == CKA_CLASS && len(entry.Value) == 4 && !seenClass:
			attrs.class = ObjectClass(binary.LittleEndian.Uint32(entry.Value))
			seenClass = true
		case entry.Type == CKA_KEY_TYPE && len(entry.Value) == 4 && !seenType:
			attrs.keyType = KeyType(binary.LittleEndian.Uint32(entry.Value))
			seenType = true
		default:
			shift := BoolPropShift(entry.Type)
			if shift < 0 || len(entry.Value) == 0 {
				break
			}
			bit := uint32(1) << uint(shift)
			if attrs.boolKnown&bit != 0 {
				break
			}
			attrs.boolKnown |= bit
			if entry.Value[0] != 0 {
				attrs.boolProps |= bit
			}
		}
	}
}

// Add appends an entry to the store. Duplicate types are allowed.
func (attrs *Attributes) Add(attrType AttributeType, value []byte) error {
	v := make([]byte, len(value))
	copy(v, value)
	attrs.entries = append(attrs.entries, &Attribute{Type: attrType, Value: v})
	attrs.recompute()
	return nil
}

// SetIfUndefined adds the entry only when no entry of that type exists yet.
func (attrs *Attributes) SetIfUndefined(attrType AttributeType, value []byte) {
	if _, err := attrs.GetPtr(attrType); err == nil {
		return
	}
	_ = attrs.Add(attrType, value)
}

// Remove deletes the first occurrence of attrType.
func (attrs *Attributes) Remove(attrType AttributeType) error {
	for i, entry := range attrs.entries {
		if entry.Type == attrType {
			attrs.entries = append(attrs.entries[:i], attrs.entries[i+1:]...)
			attrs.recompute()
			return nil
		}
	}
	return NewError("Attributes.Remove", "attribute not found", CKR_ATTRIBUTE_TYPE_INVALID)
}

// RemoveAll deletes every occurrence of attrType and returns how many
// entries went away.
func (attrs *Attributes) RemoveAll(attrType AttributeType) int {
	kept := attrs.entries[:0]
	removed := 0
	for _, entry := range attrs.entries {
		if entry.Type == attrType {
			removed++
			continue
		}
		kept = append(kept, entry)
	}
	attrs.entries = kept
	if removed > 0 {
		attrs.recompute()
	}
	return removed
}

// GetPtr returns the value of the first occurrence of attrType. The slice
// is borrowed from the store and must not be retained across mutations.
func (attrs *Attributes) GetPtr(attrType AttributeType) ([]byte, error) {
	for _, entry := range attrs.entries {
		if entry.Type == attrType {
			return entry.Value, nil
		}
	}
	return nil, NewError("Attributes.GetPtr", "attribute not found", CKR_ATTRIBUTE_TYPE_INVALID)
}

// GetPtrs returns the values of every occurrence of attrType, in insertion
// order. An empty result means the attribute is absent.
func (attrs *Attributes) GetPtrs(attrType AttributeType) [][]byte {
	var values [][]byte
	for _, entry := range attrs.entries {
		if entry.Type == attrType {
			values = append(values, entry.Value)
		}
	}
	return values
}

// Get copies the first occurrence of attrType into out with strict size
// checking: a too-small out yields a short-buffer error carrying the
// required size and nothing is copied. The returned count is the number of
// bytes written.
func (attrs *Attributes) Get(attrType AttributeType, out []byte) (int, error) {
	value, err := attrs.GetPtr(attrType)
	if err != nil {
		return 0, err
	}
	if len(out) < len(value) {
		return 0, NewShortBufferError("Attributes.Get", len(value))
	}
	copy(out, value)
	return len(value), nil
}

// Value returns an owned copy of the first occurrence of attrType.
func (attrs *Attributes) Value(attrType AttributeType) ([]byte, error) {
	value, err := attrs.GetPtr(attrType)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(value))
	copy(out, value)
	return out, nil
}

// GetULong reads a 4-byte little-endian attribute value.
func (attrs *Attributes) GetULong(attrType AttributeType) (uint32, error) {
	value, err := attrs.GetPtr(attrType)
	if err != nil {
		return 0, err
	}
	if len(value) != 4 {
		return 0, NewError("Attributes.GetULong", "invalid attribute size", CKR_ATTRIBUTE_VALUE_INVALID)
	}
	return binary.LittleEndian.Uint32(value), nil
}

// Class returns the object class from the inline header field.
func (attrs *Attributes) Class() ObjectClass {
	return attrs.class
}

// KeyType returns the key type from the inline header field.
func (attrs *Attributes) KeyType() KeyType {
	return attrs.keyType
}

// Bool reads a boolean capability flag. Boolprop attributes resolve from
// the packed header bits, anything else from the entry list.
func (attrs *Attributes) Bool(attrType AttributeType) (bool, error) {
	if shift := BoolPropShift(attrType); shift >= 0 {
		bit := uint32(1) << uint(shift)
		if attrs.boolKnown&bit == 0 {
			return false, NewError("Attributes.Bool", "attribute not found", CKR_ATTRIBUTE_TYPE_INVALID)
		}
		return attrs.boolProps&bit != 0, nil
	}
	value, err := attrs.GetPtr(attrType)
	if err != nil {
		return false, err
	}
	if len(value) == 0 {
		return false, NewError("Attributes.Bool", "invalid attribute size", CKR_ATTRIBUTE_VALUE_INVALID)
	}
	return value[0] != 0, nil
}

// BoolDefault reads a boolean capability flag, falling back to def when the
// attribute is absent.
func (attrs *Attributes) BoolDefault(attrType AttributeType, def bool) bool {
	v, err := attrs.Bool(attrType)
	if err != nil {
		return def
	}
	return v
}

// MatchReference returns true if every entry of the reference store is
// present with an equal value in the candidate store.
func (attrs *Attributes) MatchReference(candidate *Attributes) bool {
	for _, ref := range attrs.entries {
		found := false
		for _, c := range candidate.entries {
			if ref.Equals(c) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// Equals returns true if both stores hold the same entries in the same
// order.
func (attrs *Attributes) Equals(attrs2 *Attributes) bool {
	if len(attrs.entries) != len(attrs2.entries) {
		return false
	}
	for i, entry := range attrs.entries {
		if !entry.Equals(attrs2.entries[i]) {
			return false
		}
	}
	return true
}

// Len returns the number of entries.
func (attrs *Attributes) Len() int {
	return len(attrs.entries)
}

// Entries returns the entry list in insertion order. Borrowed, read only.
func (attrs *Attributes) Entries() []*Attribute {
	return attrs.entries
}

// AttrsSize is the exact serialized size of the entry section.
func (attrs *Attributes) AttrsSize() int {
	return attrs.attrsSize
}

// SerializedSize is header plus entry section, the attributes_size
// invariant of the store.
func (attrs *Attributes) SerializedSize() int {
	return attrsHeaderSize + attrs.attrsSize
}

// Serialize renders the store to its self-describing byte form, used for
// the persistent replica of token objects.
func (attrs *Attributes) Serialize() []byte {
	out := make([]byte, attrs.SerializedSize())
	binary.LittleEndian.PutUint32(out[0:], uint32(attrs.attrsSize))
	binary.LittleEndian.PutUint32(out[4:], uint32(len(attrs.entries)))
	binary.LittleEndian.PutUint32(out[8:], uint32(attrs.class))
	binary.LittleEndian.PutUint32(out[12:], uint32(attrs.keyType))
	binary.LittleEndian.PutUint32(out[16:], attrs.boolProps)
	binary.LittleEndian.PutUint32(out[20:], attrs.boolKnown)
	off := attrsHeaderSize
	for _, entry := range attrs.entries {
		binary.LittleEndian.PutUint32(out[off:], uint32(entry.Type))
		binary.LittleEndian.PutUint32(out[off+4:], uint32(len(entry.Value)))
		copy(out[off+attrEntryHeaderSize:], entry.Value)
		off += attrEntryHeaderSize + len(entry.Value)
	}
	return out
}

// DeserializeAttributes parses a serialized store, checking the declared
// sizes against the actual entry section.
func DeserializeAttributes(data []byte) (*Attributes, error) {
	if len(data) < attrsHeaderSize {
		return nil, NewError("DeserializeAttributes", "truncated header", CKR_DATA_INVALID)
	}
	declared := int(binary.LittleEndian.Uint32(data[0:]))
	count := int(binary.LittleEndian.Uint32(data[4:]))
	if len(data) != attrsHeaderSize+declared {
		return nil, NewError("DeserializeAttributes", "size field does not match buffer", CKR_DATA_INVALID)
	}
	attrs := NewAttributes()
	off := attrsHeaderSize
	for i := 0; i < count; i++ {
		if off+attrEntryHeaderSize > len(data) {
			return nil, NewError("DeserializeAttributes", "truncated entry header", CKR_DATA_INVALID)
		}
		attrType := AttributeType(binary.LittleEndian.Uint32(data[off:]))
		valueLen := int(binary.LittleEndian.Uint32(data[off+4:]))
		off += attrEntryHeaderSize
		if off+valueLen > len(data) {
			return nil, NewError("DeserializeAttributes", "truncated entry value", CKR_DATA_INVALID)
		}
		if err := attrs.Add(attrType, data[off:off+valueLen]); err != nil {
			return nil, err
		}
		off += valueLen
	}
	if off != len(data) || attrs.attrsSize != declared {
		return nil, NewError("DeserializeAttributes", "entry section does not match declared size", CKR_DATA_INVALID)
	}
	return attrs, nil
}

// ULongValue encodes a 4-byte little-endian attribute value.
func ULongValue(v uint32) []byte {
	out := make([]byte, 4)
	binary.LittleEndian.PutUint32(out, v)
	return out
}

// BoolValue encodes a boolean attribute value.
func BoolValue(v bool) []byte {
	if v {
		return []byte{1}
	}
	return []byte{0}
}
