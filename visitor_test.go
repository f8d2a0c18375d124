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

func TestDumpVisitorPrimitivePaths(t *testing.T) {
	reg := buildTestRegistry(t)
	d := reg.Type(reflect.TypeOf(widget{}))

	dv := NewDumpVisitor()
	Walk(reg, d, reflect.ValueOf(widget{Name: "bolt", Count: 3}), dv)

	require.Contains(t, dv.Values, "$.Name")
	require.Contains(t, dv.Values, "$.Count")
}

type crateForWalk struct {
	Items []widget         `ws:"tag=1"`
	Notes map[string]int32 `ws:"tag=2"`
}

type pathRecordingVisitor struct {
	NoopVisitor
	paths []string
}

func (v *pathRecordingVisitor) EnterElement(path string, index int) {
	v.paths = append(v.paths, path)
}

func (v *pathRecordingVisitor) EnterMapKey(path string, index int) {
	v.paths = append(v.paths, path)
}

func (v *pathRecordingVisitor) EnterMapValue(path string) {
	v.paths = append(v.paths, path)
}

func TestWalkCollectionAndMapPaths(t *testing.T) {
	b := NewBuilder("github.com/metaplay-oss/tagserde")
	b.Struct(&widget{}, "github.com/metaplay-oss/tagserde.widget")
	b.Struct(&crateForWalk{}, "github.com/metaplay-oss/tagserde.crateForWalk")
	reg, err := RegisterAll(b)
	require.NoError(t, err)
	d := reg.Type(reflect.TypeOf(crateForWalk{}))

	in := crateForWalk{
		Items: []widget{{Name: "a"}, {Name: "b"}},
		Notes: map[string]int32{"x": 1},
	}
	v := &pathRecordingVisitor{}
	Walk(reg, d, reflect.ValueOf(in), v)

	require.Contains(t, v.paths, "$.Items[0]")
	require.Contains(t, v.paths, "$.Items[1]")
	require.Contains(t, v.paths, "$.Notes.Keys[0]")
	require.Contains(t, v.paths, "$.Notes[x]")
}

func TestWalkDerivedStructTransition(t *testing.T) {
	reg := buildTestRegistry(t)
	root := reg.Type(reflect.TypeOf((*gadgetBase)(nil)).Elem())

	var g gadgetBase = &coilGadget{Turns: 5}
	var derivedSeen, leftSeen bool
	v := &derivedTrackingVisitor{onEnter: func(path string, rootD, concrete *TypeDescriptor) {
		derivedSeen = true
		require.Equal(t, "github.com/metaplay-oss/tagserde.coilGadget", concrete.Name)
	}, onLeave: func(string, *TypeDescriptor, *TypeDescriptor) { leftSeen = true }}

	Walk(reg, root, reflect.ValueOf(&g).Elem(), v)
	require.True(t, derivedSeen)
	require.True(t, leftSeen)
}

type derivedTrackingVisitor struct {
	NoopVisitor
	onEnter func(path string, root, concrete *TypeDescriptor)
	onLeave func(path string, root, concrete *TypeDescriptor)
}

func (v *derivedTrackingVisitor) EnterDerived(path string, root, concrete *TypeDescriptor) {
	v.onEnter(path, root, concrete)
}

func (v *derivedTrackingVisitor) LeaveDerived(path string, root, concrete *TypeDescriptor) {
	v.onLeave(path, root, concrete)
}
