// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or
// implied. See the License for the specific language governing
// permissions and limitations under the License.

package tagserde

import (
	"encoding/binary"
	"math"
)

// ByteBuffer is the in-memory read/write cursor the wire codec operates
// against. It never touches I/O directly; integration with sockets or
// files happens at the caller's boundary (spec §5 "Suspension points").
type ByteBuffer struct {
	data     []byte
	writerAt int
	readerAt int
}

// NewByteBuffer wraps data for reading, or starts a fresh writable buffer
// when data is nil.
func NewByteBuffer(data []byte) *ByteBuffer {
	if data == nil {
		return &ByteBuffer{data: make([]byte, 0, 64)}
	}
	return &ByteBuffer{data: data, writerAt: len(data)}
}

// Bytes returns the written portion of the buffer.
func (b *ByteBuffer) Bytes() []byte {
	return b.data[:b.writerAt]
}

// Remaining reports how many unread bytes are left.
func (b *ByteBuffer) Remaining() int {
	return b.writerAt - b.readerAt
}

func (b *ByteBuffer) grow(extra int) {
	need := b.writerAt + extra
	if need <= cap(b.data) {
		b.data = b.data[:need]
		return
	}
	// Geometric growth: double the capacity, or grow to exactly what is
	// needed when doubling is not enough.
	newCap := cap(b.data) * 2
	if newCap < need {
		newCap = need
	}
	nd := make([]byte, need, newCap)
	copy(nd, b.data[:b.writerAt])
	b.data = nd
}

func (b *ByteBuffer) reserve(n int) []byte {
	start := b.writerAt
	b.grow(n)
	b.writerAt = start + n
	return b.data[start : start+n]
}

func (b *ByteBuffer) requireRead(n int) []byte {
	if b.readerAt+n > b.writerAt {
		panic(&IntegrityError{Reason: "read past end of buffer"})
	}
	s := b.data[b.readerAt : b.readerAt+n]
	b.readerAt += n
	return s
}

// WriteByte_ writes a single raw byte (named with a trailing underscore
// to avoid colliding with io.ByteWriter's WriteByte).
func (b *ByteBuffer) WriteByte_(v byte) {
	dst := b.reserve(1)
	dst[0] = v
}

func (b *ByteBuffer) ReadByte_() byte {
	return b.requireRead(1)[0]
}

func (b *ByteBuffer) WriteBool(v bool) {
	if v {
		b.WriteByte_(1)
	} else {
		b.WriteByte_(0)
	}
}

func (b *ByteBuffer) ReadBool() bool {
	return b.ReadByte_() != 0
}

func (b *ByteBuffer) WriteInt32(v int32) {
	dst := b.reserve(4)
	binary.LittleEndian.PutUint32(dst, uint32(v))
}

func (b *ByteBuffer) ReadInt32() int32 {
	return int32(binary.LittleEndian.Uint32(b.requireRead(4)))
}

func (b *ByteBuffer) WriteInt64(v int64) {
	dst := b.reserve(8)
	binary.LittleEndian.PutUint64(dst, uint64(v))
}

func (b *ByteBuffer) ReadInt64() int64 {
	return int64(binary.LittleEndian.Uint64(b.requireRead(8)))
}

func (b *ByteBuffer) WriteFloat32(v float32) {
	dst := b.reserve(4)
	binary.LittleEndian.PutUint32(dst, math.Float32bits(v))
}

func (b *ByteBuffer) ReadFloat32() float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(b.requireRead(4)))
}

func (b *ByteBuffer) WriteFloat64(v float64) {
	dst := b.reserve(8)
	binary.LittleEndian.PutUint64(dst, math.Float64bits(v))
}

func (b *ByteBuffer) ReadFloat64() float64 {
	return math.Float64frombits(binary.LittleEndian.Uint64(b.requireRead(8)))
}

func (b *ByteBuffer) WriteGuid(v [16]byte) {
	dst := b.reserve(16)
	copy(dst, v[:])
}

func (b *ByteBuffer) ReadGuid() [16]byte {
	var out [16]byte
	copy(out[:], b.requireRead(16))
	return out
}

func (b *ByteBuffer) WriteBinary(p []byte) {
	dst := b.reserve(len(p))
	copy(dst, p)
}

func (b *ByteBuffer) ReadBinary(n int) []byte {
	return b.requireRead(n)
}

// WriteVarUint64 writes an unsigned LEB128 varint.
func (b *ByteBuffer) WriteVarUint64(v uint64) {
	for v >= 0x80 {
		b.WriteByte_(byte(v) | 0x80)
		v >>= 7
	}
	b.WriteByte_(byte(v))
}

func (b *ByteBuffer) ReadVarUint64() uint64 {
	var result uint64
	var shift uint
	for {
		c := b.ReadByte_()
		result |= uint64(c&0x7f) << shift
		if c&0x80 == 0 {
			break
		}
		shift += 7
	}
	return result
}

func (b *ByteBuffer) WriteVarUint32(v uint32) { b.WriteVarUint64(uint64(v)) }
func (b *ByteBuffer) ReadVarUint32() uint32   { return uint32(b.ReadVarUint64()) }

// WriteVarInt32 zig-zag encodes a signed 32-bit integer before writing it
// as an unsigned varint (spec §4.A "Variable-length: zig-zag varint").
func (b *ByteBuffer) WriteVarInt32(v int32) {
	b.WriteVarUint32(uint32((v << 1) ^ (v >> 31)))
}

func (b *ByteBuffer) ReadVarInt32() int32 {
	u := b.ReadVarUint32()
	return int32(u>>1) ^ -int32(u&1)
}

func (b *ByteBuffer) WriteVarInt64(v int64) {
	b.WriteVarUint64(uint64((v << 1) ^ (v >> 63)))
}

func (b *ByteBuffer) ReadVarInt64() int64 {
	u := b.ReadVarUint64()
	return int64(u>>1) ^ -int64(u&1)
}

// WriteString writes a length-prefixed UTF-8 string.
func (b *ByteBuffer) WriteString(s string) {
	b.WriteVarUint32(uint32(len(s)))
	b.WriteBinary([]byte(s))
}

func (b *ByteBuffer) ReadString(max int) (string, error) {
	n := int(b.ReadVarUint32())
	if max > 0 && n > max {
		return "", &BoundExceeded{Kind: "string", Limit: max, Got: n}
	}
	return string(b.ReadBinary(n)), nil
}

// WriteBytes writes a length-prefixed byte slice.
func (b *ByteBuffer) WriteBytes(p []byte) {
	b.WriteVarUint32(uint32(len(p)))
	b.WriteBinary(p)
}

func (b *ByteBuffer) ReadBytes(max int) ([]byte, error) {
	n := int(b.ReadVarUint32())
	if max > 0 && n > max {
		return nil, &BoundExceeded{Kind: "bytes", Limit: max, Got: n}
	}
	out := make([]byte, n)
	copy(out, b.ReadBinary(n))
	return out, nil
}
