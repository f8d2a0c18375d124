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
	"math"
	"reflect"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVarIntZigZagRoundTrip(t *testing.T) {
	values := []int64{0, 1, -1, 63, -64, 64, -65, 1 << 20, -(1 << 20), 1 << 40, math.MaxInt64, math.MinInt64}
	for _, v := range values {
		buf := NewByteBuffer(nil)
		buf.WriteVarInt64(v)
		require.Equal(t, v, NewByteBuffer(buf.Bytes()).ReadVarInt64())
	}
}

func TestVarUintRoundTrip(t *testing.T) {
	values := []uint64{0, 1, 127, 128, 16383, 16384, math.MaxUint64}
	for _, v := range values {
		buf := NewByteBuffer(nil)
		buf.WriteVarUint64(v)
		require.Equal(t, v, NewByteBuffer(buf.Bytes()).ReadVarUint64())
	}
}

func TestReadStringBoundEnforced(t *testing.T) {
	buf := NewByteBuffer(nil)
	buf.WriteString("a long-enough string")
	_, err := NewByteBuffer(buf.Bytes()).ReadString(5)
	var bound *BoundExceeded
	require.ErrorAs(t, err, &bound)
	require.Equal(t, 5, bound.Limit)
}

func TestPrimitiveExactWireBytes(t *testing.T) {
	reg := buildTestRegistry(t)
	d := reg.Type(reflect.TypeOf(int32(0)))
	buf := NewByteBuffer(nil)
	require.NoError(t, Encode(reg, d, reflect.ValueOf(int32(-1234567)), NewContext(), buf))
	require.Equal(t, []byte{byte(WireVarInt), 0x8d, 0xda, 0x96, 0x01}, buf.Bytes())

	out, err := Decode(reg, d, NewContext(), NewByteBuffer(buf.Bytes()))
	require.NoError(t, err)
	require.Equal(t, int32(-1234567), out.Interface())
}

func TestPolymorphicExactWireBytes(t *testing.T) {
	reg := buildTestRegistry(t)
	root := reg.Type(reflect.TypeOf((*gadgetBase)(nil)).Elem())

	var g gadgetBase = &coilGadget{Turns: 7}
	buf := NewByteBuffer(nil)
	require.NoError(t, Encode(reg, root, reflect.ValueOf(&g).Elem(), NewContext(), buf))
	// type code 2 and all varints zig-zag encoded, body terminated by EndStruct
	require.Equal(t, []byte{byte(WireAbstractStruct), 4, byte(WireVarInt), 2, 14, 0}, buf.Bytes())
}

type widgetHolder struct {
	W *widget `ws:"tag=1"`
}

func buildHolderRegistry(t *testing.T) *Registry {
	t.Helper()
	b := NewBuilder()
	b.Struct(&widget{}, "tagserde.widget")
	b.Struct(&widgetHolder{}, "tagserde.widgetHolder")
	reg, err := RegisterAll(b)
	require.NoError(t, err)
	return reg
}

func TestNullableStructNullExactBytes(t *testing.T) {
	reg := buildHolderRegistry(t)
	d := reg.Type(reflect.TypeOf((*widget)(nil)))
	require.Equal(t, KindNullableStruct, d.Kind)

	buf := NewByteBuffer(nil)
	require.NoError(t, Encode(reg, d, reflect.ValueOf((*widget)(nil)), NewContext(), buf))
	require.Equal(t, []byte{byte(WireNullableStruct), 0}, buf.Bytes())

	out, err := Decode(reg, d, NewContext(), NewByteBuffer(buf.Bytes()))
	require.NoError(t, err)
	require.True(t, out.IsNil())
}

func TestNullableStructPresentRoundTrip(t *testing.T) {
	reg := buildHolderRegistry(t)
	d := reg.Type(reflect.TypeOf(widgetHolder{}))
	ctx := NewContext()

	in := widgetHolder{W: &widget{Name: "nut", Count: 3}}
	buf := NewByteBuffer(nil)
	require.NoError(t, Encode(reg, d, reflect.ValueOf(in), ctx, buf))
	out, err := Decode(reg, d, ctx, NewByteBuffer(buf.Bytes()))
	require.NoError(t, err)
	require.Equal(t, in, out.Interface())
}

type maybeStats struct {
	Score *int32 `ws:"tag=1"`
	After int32  `ws:"tag=2"`
}

func TestNullablePrimitiveRoundTrip(t *testing.T) {
	b := NewBuilder()
	b.Struct(&maybeStats{}, "tagserde.maybeStats")
	reg, err := RegisterAll(b)
	require.NoError(t, err)
	d := reg.Type(reflect.TypeOf(maybeStats{}))
	ctx := NewContext()

	score := int32(42)
	for _, in := range []maybeStats{{Score: &score, After: 1}, {Score: nil, After: 2}} {
		buf := NewByteBuffer(nil)
		require.NoError(t, Encode(reg, d, reflect.ValueOf(in), ctx, buf))
		out, err := Decode(reg, d, ctx, NewByteBuffer(buf.Bytes()))
		require.NoError(t, err)
		require.Equal(t, in, out.Interface())
	}
}

func TestNullablePrimitiveBadFlagByte(t *testing.T) {
	b := NewBuilder()
	b.Struct(&maybeStats{}, "tagserde.maybeStats")
	reg, err := RegisterAll(b)
	require.NoError(t, err)
	d := reg.Type(reflect.TypeOf(maybeStats{}))

	buf := NewByteBuffer(nil)
	buf.WriteByte_(byte(WireStruct))
	buf.WriteByte_(byte(WireNullableVarInt))
	buf.WriteVarInt32(1)
	buf.WriteByte_(3) // neither 0 nor 2
	buf.WriteByte_(byte(WireEndStruct))

	_, err = Decode(reg, d, NewContext(), NewByteBuffer(buf.Bytes()))
	require.Error(t, err)
	var integ *IntegrityError
	require.ErrorAs(t, err, &integ)
}

type nilCrate struct {
	Items []int32 `ws:"tag=1"`
	After int32   `ws:"tag=2"`
}

func TestNullCollectionKeepsStreamAligned(t *testing.T) {
	b := NewBuilder()
	b.Struct(&nilCrate{}, "tagserde.nilCrate")
	reg, err := RegisterAll(b)
	require.NoError(t, err)
	d := reg.Type(reflect.TypeOf(nilCrate{}))
	ctx := NewContext()

	in := nilCrate{Items: nil, After: 77}
	buf := NewByteBuffer(nil)
	require.NoError(t, Encode(reg, d, reflect.ValueOf(in), ctx, buf))
	out, err := Decode(reg, d, ctx, NewByteBuffer(buf.Bytes()))
	require.NoError(t, err)
	got := out.Interface().(nilCrate)
	require.Nil(t, got.Items)
	require.Equal(t, int32(77), got.After)
}

func TestNegativeCollectionCountRejected(t *testing.T) {
	b := NewBuilder()
	b.Struct(&nilCrate{}, "tagserde.nilCrate")
	reg, err := RegisterAll(b)
	require.NoError(t, err)
	d := reg.Type(reflect.TypeOf(nilCrate{}))

	buf := NewByteBuffer(nil)
	buf.WriteByte_(byte(WireStruct))
	buf.WriteByte_(byte(WireValueCollection))
	buf.WriteVarInt32(1)
	buf.WriteVarInt32(-2) // only -1 means null
	buf.WriteByte_(byte(WireVarInt))
	buf.WriteByte_(byte(WireEndStruct))

	_, err = Decode(reg, d, NewContext(), NewByteBuffer(buf.Bytes()))
	require.Error(t, err)
	var integ *IntegrityError
	require.ErrorAs(t, err, &integ)
}

func TestStringMemberDecodeBoundEnforced(t *testing.T) {
	reg := buildTestRegistry(t)
	d := reg.Type(reflect.TypeOf(widget{}))

	in := widget{Name: "a string past the strict bound", Count: 1}
	buf := NewByteBuffer(nil)
	require.NoError(t, Encode(reg, d, reflect.ValueOf(in), NewContext(), buf))

	strict := NewContextWith(WithMaxStringSize(4))
	_, err := Decode(reg, d, strict, NewByteBuffer(buf.Bytes()))
	require.Error(t, err)
	var bound *BoundExceeded
	require.ErrorAs(t, err, &bound)
	require.Equal(t, 4, bound.Limit)
}

type blobRecord struct {
	Data []byte `ws:"tag=1"`
}

func TestBytesMemberDecodeBoundEnforced(t *testing.T) {
	b := NewBuilder()
	b.Struct(&blobRecord{}, "tagserde.blobRecord")
	reg, err := RegisterAll(b)
	require.NoError(t, err)
	d := reg.Type(reflect.TypeOf(blobRecord{}))

	in := blobRecord{Data: []byte{1, 2, 3, 4, 5, 6, 7, 8}}
	buf := NewByteBuffer(nil)
	require.NoError(t, Encode(reg, d, reflect.ValueOf(in), NewContext(), buf))

	strict := NewContextWith(WithMaxByteArraySize(4))
	_, err = Decode(reg, d, strict, NewByteBuffer(buf.Bytes()))
	require.Error(t, err)
	var bound *BoundExceeded
	require.ErrorAs(t, err, &bound)
	require.Equal(t, 4, bound.Limit)
}

func TestSkippedStringPayloadStillBounded(t *testing.T) {
	reg := buildTestRegistry(t)
	d := reg.Type(reflect.TypeOf(widget{}))

	// An unknown member announces a string whose declared length vastly
	// exceeds the context bound; the skip path must reject it before
	// allocating rather than swallow it.
	buf := NewByteBuffer(nil)
	buf.WriteByte_(byte(WireStruct))
	buf.WriteByte_(byte(WireString))
	buf.WriteVarInt32(99)
	buf.WriteVarUint32(1 << 30) // length prefix only, no body
	buf.WriteByte_(byte(WireEndStruct))

	_, err := Decode(reg, d, NewContext(), NewByteBuffer(buf.Bytes()))
	require.Error(t, err)
	var bound *BoundExceeded
	require.ErrorAs(t, err, &bound)
}

func TestNonpositiveTagIDRejected(t *testing.T) {
	reg := buildTestRegistry(t)
	d := reg.Type(reflect.TypeOf(widget{}))

	buf := NewByteBuffer(nil)
	buf.WriteByte_(byte(WireStruct))
	buf.WriteByte_(byte(WireVarInt))
	buf.WriteVarInt32(0) // tag ids are strictly positive on the wire
	buf.WriteVarInt64(5)
	buf.WriteByte_(byte(WireEndStruct))

	_, err := Decode(reg, d, NewContext(), NewByteBuffer(buf.Bytes()))
	require.Error(t, err)
	var integ *IntegrityError
	require.ErrorAs(t, err, &integ)
}

func TestMapDecodeBoundExceeded(t *testing.T) {
	type bagOfTwo struct {
		Counts map[string]int32 `ws:"tag=1"`
	}
	b := NewBuilder()
	b.Struct(&bagOfTwo{}, "tagserde.bagOfTwo")
	reg, err := RegisterAll(b)
	require.NoError(t, err)
	d := reg.Type(reflect.TypeOf(bagOfTwo{}))

	in := bagOfTwo{Counts: map[string]int32{"a": 1, "b": 2}}
	buf := NewByteBuffer(nil)
	require.NoError(t, Encode(reg, d, reflect.ValueOf(in), NewContext(), buf))

	// Decoding the same bytes against a tighter context fails before any
	// entries are materialized.
	strict := NewContextWith(WithMaxCollectionSize(1))
	_, err = Decode(reg, d, strict, NewByteBuffer(buf.Bytes()))
	require.Error(t, err)
	var bound *BoundExceeded
	require.ErrorAs(t, err, &bound)
	require.Equal(t, 1, bound.Limit)
}
