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

type swordItem struct {
	Key   string `ws:"tag=1"`
	Power int32  `ws:"tag=2"`
}

type heroRecord struct {
	Weapon ConfigRef[swordItem] `ws:"tag=1"`
}

type stubResolver struct {
	items map[string]swordItem
}

func (s *stubResolver) Resolve(keyTypeName string, key interface{}) (interface{}, bool) {
	k, ok := key.(string)
	if !ok {
		return nil, false
	}
	item, found := s.items[k]
	return item, found
}

func buildConfigRefRegistry(t *testing.T) *Registry {
	t.Helper()
	b := NewBuilder("github.com/metaplay-oss/tagserde")
	b.ConfigData(&swordItem{}, "github.com/metaplay-oss/tagserde.swordItem", "Key", WithConfigNullSentinelKey(""))
	b.Struct(&heroRecord{}, "github.com/metaplay-oss/tagserde.heroRecord")
	reg, err := RegisterAll(b)
	require.NoError(t, err)
	return reg
}

func TestConfigRefRoundTripUnresolved(t *testing.T) {
	reg := buildConfigRefRegistry(t)
	d := reg.Type(reflect.TypeOf(heroRecord{}))
	ctx := NewContext()

	key := "excalibur"
	in := heroRecord{Weapon: NewConfigRef[swordItem](key)}
	buf := NewByteBuffer(nil)
	require.NoError(t, Encode(reg, d, reflect.ValueOf(in), ctx, buf))

	out, err := Decode(reg, d, ctx, NewByteBuffer(buf.Bytes()))
	require.NoError(t, err)
	got := out.Interface().(heroRecord)
	require.Equal(t, key, got.Weapon.Key())
	require.False(t, got.Weapon.IsResolved())
}

func TestConfigRefRoundTripResolved(t *testing.T) {
	reg := buildConfigRefRegistry(t)
	d := reg.Type(reflect.TypeOf(heroRecord{}))
	resolver := &stubResolver{items: map[string]swordItem{
		"excalibur": {Power: 99},
	}}
	ctx := NewContextWith(WithResolver(resolver))

	in := heroRecord{Weapon: NewConfigRef[swordItem]("excalibur")}
	buf := NewByteBuffer(nil)
	require.NoError(t, Encode(reg, d, reflect.ValueOf(in), ctx, buf))

	out, err := Decode(reg, d, ctx, NewByteBuffer(buf.Bytes()))
	require.NoError(t, err)
	got := out.Interface().(heroRecord)
	require.True(t, got.Weapon.IsResolved())
	require.Equal(t, int32(99), got.Weapon.Item().Power)
}

func TestConfigRefNullRoundTrip(t *testing.T) {
	reg := buildConfigRefRegistry(t)
	d := reg.Type(reflect.TypeOf(heroRecord{}))
	ctx := NewContext()

	in := heroRecord{Weapon: NewConfigRef[swordItem](nil)}
	buf := NewByteBuffer(nil)
	require.NoError(t, Encode(reg, d, reflect.ValueOf(in), ctx, buf))

	out, err := Decode(reg, d, ctx, NewByteBuffer(buf.Bytes()))
	require.NoError(t, err)
	got := out.Interface().(heroRecord)
	require.True(t, got.Weapon.IsNull())
}

func TestCollectReferences(t *testing.T) {
	reg := buildConfigRefRegistry(t)
	d := reg.Type(reflect.TypeOf(heroRecord{}))

	in := heroRecord{Weapon: NewConfigRef[swordItem]("excalibur")}
	refs := CollectReferences(d, reflect.ValueOf(in))
	require.Len(t, refs, 1)
	require.Equal(t, "excalibur", refs[0].Key)
}

type keyRewriteVisitor struct {
	to interface{}
}

func (v *keyRewriteVisitor) VisitRef(path string, refValue reflect.Value) reflect.Value {
	return reflectConfigRefNew(refValue.Type(), v.to)
}

func TestTraverseRefsMutatingRewritesInPlace(t *testing.T) {
	reg := buildConfigRefRegistry(t)
	d := reg.Type(reflect.TypeOf(heroRecord{}))

	in := heroRecord{Weapon: NewConfigRef[swordItem]("excalibur")}
	TraverseRefs(d, reflect.ValueOf(&in).Elem(), &keyRewriteVisitor{to: "durandal"})
	require.Equal(t, "durandal", in.Weapon.Key())
}

func TestTraverseRefsReadOnlyLeavesValueUntouched(t *testing.T) {
	reg := buildConfigRefRegistry(t)
	d := reg.Type(reflect.TypeOf(heroRecord{}))

	in := heroRecord{Weapon: NewConfigRef[swordItem]("excalibur")}
	TraverseRefs(d, reflect.ValueOf(&in).Elem(), nil)
	require.Equal(t, "excalibur", in.Weapon.Key())
}

type armory struct {
	Weapons map[string]ConfigRef[swordItem] `ws:"tag=1"`
}

func buildArmoryRegistry(t *testing.T) *Registry {
	t.Helper()
	b := NewBuilder("github.com/metaplay-oss/tagserde")
	b.ConfigData(&swordItem{}, "github.com/metaplay-oss/tagserde.swordItem", "Key", WithConfigNullSentinelKey(""))
	b.Struct(&armory{}, "github.com/metaplay-oss/tagserde.armory")
	reg, err := RegisterAll(b)
	require.NoError(t, err)
	return reg
}

func TestCollectReferencesFromMapValues(t *testing.T) {
	reg := buildArmoryRegistry(t)
	d := reg.Type(reflect.TypeOf(armory{}))

	in := armory{Weapons: map[string]ConfigRef[swordItem]{
		"main":  NewConfigRef[swordItem]("excalibur"),
		"spare": NewConfigRef[swordItem]("zweihander"),
	}}
	refs := CollectReferences(d, reflect.ValueOf(in))
	require.Len(t, refs, 2)

	byPath := map[string]string{}
	for _, r := range refs {
		byPath[r.Path] = r.Key.(string)
	}
	require.Equal(t, "excalibur", byPath["$.Weapons[main].Value"])
	require.Equal(t, "zweihander", byPath["$.Weapons[spare].Value"])
}
