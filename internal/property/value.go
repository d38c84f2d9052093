// Package property implements a small device-property store: named
// properties hold typed integer arrays, writes go through registered
// handlers that may veto them, and selected properties cannot be deleted.
package property

import (
	"encoding/binary"
	"fmt"
)

// Atom is the numeric handle a property name is interned to.
type Atom uint32

// TypeInteger is the type atom for integer-valued properties.
const TypeInteger Atom = 19

// Value is a property value: Size items of Format bits each, stored
// little-endian in Data.
type Value struct {
	Type   Atom
	Format int
	Size   int
	Data   []byte
}

// Ints builds an integer Value of the given format from items.
// Items are truncated to the format width.
func Ints(format int, items ...int64) (Value, error) {
	width, err := itemWidth(format)
	if err != nil {
		return Value{}, err
	}
	data := make([]byte, width*len(items))
	for i, it := range items {
		putItem(data[i*width:], width, it)
	}
	return Value{Type: TypeInteger, Format: format, Size: len(items), Data: data}, nil
}

// Int8 returns a single-item 8-bit integer Value.
func Int8(v uint8) Value {
	return Value{Type: TypeInteger, Format: 8, Size: 1, Data: []byte{v}}
}

// Int32 returns a single-item 32-bit integer Value.
func Int32(v int32) Value {
	data := make([]byte, 4)
	binary.LittleEndian.PutUint32(data, uint32(v))
	return Value{Type: TypeInteger, Format: 32, Size: 1, Data: data}
}

// Bool returns an 8-bit Value of 1 or 0.
func Bool(b bool) Value {
	if b {
		return Int8(1)
	}
	return Int8(0)
}

// Is reports whether v has the given type, format and item count.
func (v Value) Is(typ Atom, format, size int) bool {
	return v.Type == typ && v.Format == format && v.Size == size
}

// Uint returns item i read as an unsigned integer of the value's format.
func (v Value) Uint(i int) (uint64, error) {
	width, err := itemWidth(v.Format)
	if err != nil {
		return 0, err
	}
	if i < 0 || i >= v.Size || (i+1)*width > len(v.Data) {
		return 0, fmt.Errorf("item %d out of range (size %d, %d bytes)", i, v.Size, len(v.Data))
	}
	b := v.Data[i*width:]
	switch width {
	case 1:
		return uint64(b[0]), nil
	case 2:
		return uint64(binary.LittleEndian.Uint16(b)), nil
	default:
		return uint64(binary.LittleEndian.Uint32(b)), nil
	}
}

// Int returns item i read as a signed integer of the value's format.
func (v Value) Int(i int) (int64, error) {
	u, err := v.Uint(i)
	if err != nil {
		return 0, err
	}
	switch v.Format {
	case 8:
		return int64(int8(u)), nil
	case 16:
		return int64(int16(u)), nil
	default:
		return int64(int32(u)), nil
	}
}

// Items returns every item as a signed integer.
func (v Value) Items() ([]int64, error) {
	out := make([]int64, 0, v.Size)
	for i := 0; i < v.Size; i++ {
		n, err := v.Int(i)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

// clone returns a copy of v that shares no memory with it.
func (v Value) clone() Value {
	c := v
	c.Data = append([]byte(nil), v.Data...)
	return c
}

func itemWidth(format int) (int, error) {
	switch format {
	case 8, 16, 32:
		return format / 8, nil
	}
	return 0, fmt.Errorf("%w: format %d", ErrBadValue, format)
}

func putItem(b []byte, width int, v int64) {
	switch width {
	case 1:
		b[0] = byte(v)
	case 2:
		binary.LittleEndian.PutUint16(b, uint16(v))
	default:
		binary.LittleEndian.PutUint32(b, uint32(v))
	}
}
