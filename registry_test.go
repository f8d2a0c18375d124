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

type publicOuter struct {
	Inner privateInner `ws:"tag=1"`
}

type privateInner struct {
	Value int32 `ws:"tag=1"`
}

func TestPublicPropagatesToMembers(t *testing.T) {
	b := NewBuilder("github.com/metaplay-oss/tagserde.publicOuter")
	b.Struct(&publicOuter{}, "github.com/metaplay-oss/tagserde.publicOuter")
	b.Struct(&privateInner{}, "internal.privateInner")
	reg, err := RegisterAll(b)
	require.NoError(t, err)

	outer := reg.Type(reflect.TypeOf(publicOuter{}))
	inner := reg.Type(reflect.TypeOf(privateInner{}))
	require.True(t, outer.IsPublic)
	require.True(t, inner.IsPublic)
}

func TestTypeByNameAndByGoType(t *testing.T) {
	reg := buildTestRegistry(t)
	d, ok := reg.TypeByName("github.com/metaplay-oss/tagserde.widget")
	require.True(t, ok)
	require.Equal(t, reflect.TypeOf(widget{}), d.GoType)

	same := reg.Type(reflect.TypeOf(widget{}))
	require.Same(t, d, same)
}

func TestAllListsEveryRegisteredType(t *testing.T) {
	reg := buildTestRegistry(t)
	names := map[string]bool{}
	for _, d := range reg.All() {
		names[d.Name] = true
	}
	require.True(t, names["github.com/metaplay-oss/tagserde.widget"])
	require.True(t, names["github.com/metaplay-oss/tagserde.coilGadget"])
}

// The four item shapes below register under the same type name so their
// protocol hashes are directly comparable: only member name, declared
// type name, and tag id may move the hash.
type itemShapeBase struct {
	Alpha int32 `ws:"tag=1"`
}

type itemShapeHidden struct {
	Alpha  int32 `ws:"tag=1"`
	Secret int32 `ws:"tag=2,hidden"`
}

type itemShapeRenamed struct {
	Beta int32 `ws:"tag=1"`
}

type itemShapeRetagged struct {
	Alpha int32 `ws:"tag=3"`
}

func protocolHashOf(t *testing.T, goType interface{}) uint32 {
	t.Helper()
	b := NewBuilder("pub")
	b.Struct(goType, "pub.Item")
	reg, err := RegisterAll(b)
	require.NoError(t, err)
	return reg.ProtocolHash()
}

func TestProtocolHashIgnoresHiddenMembers(t *testing.T) {
	require.Equal(t, protocolHashOf(t, &itemShapeBase{}), protocolHashOf(t, &itemShapeHidden{}))
}

func TestProtocolHashChangesOnMemberRename(t *testing.T) {
	require.NotEqual(t, protocolHashOf(t, &itemShapeBase{}), protocolHashOf(t, &itemShapeRenamed{}))
}

func TestProtocolHashChangesOnTagChange(t *testing.T) {
	require.NotEqual(t, protocolHashOf(t, &itemShapeBase{}), protocolHashOf(t, &itemShapeRetagged{}))
}

func TestStringHashIsOrderSensitive(t *testing.T) {
	require.NotEqual(t, stringHash("ab"), stringHash("ba"))
	require.Equal(t, uint32('a')*18471+uint32('b'), stringHash("ab"))
}
