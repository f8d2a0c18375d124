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
	"reflect"
	"testing"

	"github.com/stretchr/testify/require"
)

type duplicateTagStruct struct {
	A string `ws:"tag=1"`
	B string `ws:"tag=1"`
}

func TestDuplicateTagIDRejected(t *testing.T) {
	b := NewBuilder()
	b.Struct(&duplicateTagStruct{}, "tagserde.duplicateTagStruct")
	_, err := RegisterAll(b)
	require.Error(t, err)
	var se *SchemaError
	require.ErrorAs(t, err, &se)
}

type blockedTagStruct struct {
	A string `ws:"tag=5"`
}

func TestBlockedRangeRejected(t *testing.T) {
	b := NewBuilder()
	b.Struct(&blockedTagStruct{}, "tagserde.blockedTagStruct", WithBlockedRange(1, 10))
	_, err := RegisterAll(b)
	require.Error(t, err)
}

type outsideReservedStruct struct {
	A string `ws:"tag=50"`
}

func TestOutsideReservedRangeRejected(t *testing.T) {
	b := NewBuilder()
	b.Struct(&outsideReservedStruct{}, "tagserde.outsideReservedStruct", WithReservedRange(1, 10))
	_, err := RegisterAll(b)
	require.Error(t, err)
}

type baseThing interface{ isBaseThing() }
type thingA struct{ X int32 `ws:"tag=1"` }
type thingB struct{ Y int32 `ws:"tag=1"` }

func (*thingA) isBaseThing() {}
func (*thingB) isBaseThing() {}

func TestDuplicateTypeCodeRejected(t *testing.T) {
	b := NewBuilder()
	b.Abstract((*baseThing)(nil), "tagserde.baseThing")
	b.Struct(&thingA{}, "tagserde.thingA", WithBase((*baseThing)(nil)), WithTypeCode(1))
	b.Struct(&thingB{}, "tagserde.thingB", WithBase((*baseThing)(nil)), WithTypeCode(1))
	_, err := RegisterAll(b)
	require.Error(t, err)
	var dup *DuplicateTypeCode
	require.ErrorAs(t, err, &dup)
}

type keyedItem struct {
	Key   *string `ws:"tag=1"`
	Value int32   `ws:"tag=2"`
}

func TestConfigDataRequiresNullableOrSentinelKey(t *testing.T) {
	b := NewBuilder()
	b.ConfigData(&keyedItem{}, "tagserde.keyedItem", "Key")
	reg, err := RegisterAll(b)
	require.NoError(t, err)
	d := reg.Type(reflect.TypeOf(keyedItem{}))
	require.True(t, d.IsConfigData())
	require.NotNil(t, d.KeyDesc)
}

type notKeyedItem struct {
	Key   string `ws:"tag=1"`
	Value int32  `ws:"tag=2"`
}

func TestConfigDataNonNullableKeyWithoutSentinelRejected(t *testing.T) {
	b := NewBuilder()
	b.ConfigData(&notKeyedItem{}, "tagserde.notKeyedItem", "Key")
	_, err := RegisterAll(b)
	require.Error(t, err)
}

type withHook struct {
	Name string `ws:"tag=1"`
	sum  int
}

func (w *withHook) OnLoaded() { w.sum = len(w.Name) }

func TestOnDeserializedHookFires(t *testing.T) {
	b := NewBuilder()
	b.Struct(&withHook{}, "tagserde.withHook", WithOnDeserialized("OnLoaded"))
	reg, err := RegisterAll(b)
	require.NoError(t, err)
	d := reg.Type(reflect.TypeOf(withHook{}))
	ctx := NewContext()

	buf := NewByteBuffer(nil)
	require.NoError(t, Encode(reg, d, reflect.ValueOf(withHook{Name: "abcd"}), ctx, buf))
	out, err := Decode(reg, d, ctx, NewByteBuffer(buf.Bytes()))
	require.NoError(t, err)
	require.Equal(t, 4, out.Interface().(withHook).sum)
}

func TestProtocolHashDeterministic(t *testing.T) {
	build := func() uint32 {
		b := NewBuilder("tagserde")
		b.Struct(&widget{}, "tagserde.widget")
		reg, err := RegisterAll(b)
		require.NoError(t, err)
		return reg.ProtocolHash()
	}
	require.Equal(t, build(), build())
}

type stealthyHero struct {
	Name   string `ws:"tag=1"`
	Weapon ConfigRef[swordItem]
}

func TestUnannotatedRefFieldRejected(t *testing.T) {
	b := NewBuilder()
	b.ConfigData(&swordItem{}, "tagserde.swordItem", "Key", WithConfigNullSentinelKey(""))
	b.Struct(&stealthyHero{}, "tagserde.stealthyHero")
	_, err := RegisterAll(b)
	require.Error(t, err)
	var se *SchemaError
	require.ErrorAs(t, err, &se)
	require.Contains(t, err.Error(), "ref in non-serialized location")
}

type stealthyNested struct {
	Cache map[string][]ConfigRef[swordItem] `ws:"-"`
	Count int32                             `ws:"tag=1"`
}

func TestIgnoredFieldHidingNestedRefRejected(t *testing.T) {
	b := NewBuilder()
	b.ConfigData(&swordItem{}, "tagserde.swordItem", "Key", WithConfigNullSentinelKey(""))
	b.Struct(&stealthyNested{}, "tagserde.stealthyNested")
	_, err := RegisterAll(b)
	require.Error(t, err)
	require.Contains(t, err.Error(), "ref in non-serialized location")
}

type rarityClass int32

func TestEnumRoundTrip(t *testing.T) {
	b := NewBuilder()
	b.Enum(rarityClass(0), "tagserde.rarityClass", map[string]int64{
		"Common": 0, "Rare": 1, "Epic": 2,
	})
	reg, err := RegisterAll(b)
	require.NoError(t, err)
	d := reg.Type(reflect.TypeOf(rarityClass(0)))
	require.Equal(t, KindEnum, d.Kind)

	buf := NewByteBuffer(nil)
	require.NoError(t, Encode(reg, d, reflect.ValueOf(rarityClass(2)), NewContext(), buf))
	out, err := Decode(reg, d, NewContext(), NewByteBuffer(buf.Bytes()))
	require.NoError(t, err)
	require.Equal(t, rarityClass(2), out.Interface())
}

func TestEnumDuplicateValuesRejected(t *testing.T) {
	b := NewBuilder()
	b.Enum(rarityClass(0), "tagserde.rarityClass", map[string]int64{
		"Common": 0, "Basic": 0,
	})
	_, err := RegisterAll(b)
	require.Error(t, err)
	var se *SchemaError
	require.ErrorAs(t, err, &se)
}

type currencyCode string

func (c currencyCode) StringID() string { return string(c) }

func TestStringIdRoundTrip(t *testing.T) {
	b := NewBuilder()
	b.StringId(currencyCode(""), "tagserde.currencyCode",
		func(s string) (currencyCode, error) { return currencyCode(s), nil })
	reg, err := RegisterAll(b)
	require.NoError(t, err)
	d := reg.Type(reflect.TypeOf(currencyCode("")))
	require.Equal(t, KindStringId, d.Kind)
	require.Equal(t, WireString, d.CanonicalWireKind())

	buf := NewByteBuffer(nil)
	require.NoError(t, Encode(reg, d, reflect.ValueOf(currencyCode("gems")), NewContext(), buf))
	out, err := Decode(reg, d, NewContext(), NewByteBuffer(buf.Bytes()))
	require.NoError(t, err)
	require.Equal(t, currencyCode("gems"), out.Interface())
}

type leagueTier int64

func (l leagueTier) EnumID() int64 { return int64(l) }

func TestDynamicEnumRoundTrip(t *testing.T) {
	b := NewBuilder()
	b.DynamicEnum(leagueTier(0), "tagserde.leagueTier",
		func(id int64) (leagueTier, error) { return leagueTier(id), nil })
	reg, err := RegisterAll(b)
	require.NoError(t, err)
	d := reg.Type(reflect.TypeOf(leagueTier(0)))
	require.Equal(t, KindDynamicEnum, d.Kind)

	buf := NewByteBuffer(nil)
	require.NoError(t, Encode(reg, d, reflect.ValueOf(leagueTier(40)), NewContext(), buf))
	out, err := Decode(reg, d, NewContext(), NewByteBuffer(buf.Bytes()))
	require.NoError(t, err)
	require.Equal(t, leagueTier(40), out.Interface())
}

func TestStringIdWithoutRegistrationRejected(t *testing.T) {
	type wallet struct {
		Currency currencyCode `ws:"tag=1"`
	}
	b := NewBuilder()
	b.Struct(&wallet{}, "tagserde.wallet")
	_, err := RegisterAll(b)
	require.Error(t, err)
	var se *SchemaError
	require.ErrorAs(t, err, &se)
}

type tuplePoint struct {
	X int32
	Y int32
}

func newTuplePoint(x, y int32) tuplePoint { return tuplePoint{X: x, Y: y} }

func TestTupleRoundTrip(t *testing.T) {
	b := NewBuilder()
	b.Tuple(&tuplePoint{}, "tagserde.tuplePoint", newTuplePoint, "x", "y")
	reg, err := RegisterAll(b)
	require.NoError(t, err)
	d := reg.Type(reflect.TypeOf(tuplePoint{}))
	ctx := NewContext()

	in := tuplePoint{X: 3, Y: 4}
	buf := NewByteBuffer(nil)
	require.NoError(t, Encode(reg, d, reflect.ValueOf(in), ctx, buf))
	out, err := Decode(reg, d, ctx, NewByteBuffer(buf.Bytes()))
	require.NoError(t, err)
	require.Equal(t, in, out.Interface())
}
