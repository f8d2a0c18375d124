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

import "reflect"

// DynamicVisitor is the Dynamic Visitor of spec §2 Component F / §4.F:
// a descriptor-driven walk over any live value, with a hook for every
// wire kind and for the begin/end of collection elements, map keys, map
// values, members and derived-class transitions. NoopVisitor embeds
// into a concrete visitor so it only needs to override the hooks it
// cares about, the way BaseVisitor types are commonly embedded for
// partial overrides in this codebase's idiom.
type DynamicVisitor interface {
	EnterStruct(path string, d *TypeDescriptor, v reflect.Value) bool
	LeaveStruct(path string, d *TypeDescriptor, v reflect.Value)
	EnterMember(path string, m *MemberDescriptor)
	LeaveMember(path string, m *MemberDescriptor)
	EnterDerived(path string, root, concrete *TypeDescriptor)
	LeaveDerived(path string, root, concrete *TypeDescriptor)
	EnterCollection(path string, d *TypeDescriptor, length int)
	LeaveCollection(path string, d *TypeDescriptor)
	EnterElement(path string, index int)
	LeaveElement(path string, index int)
	EnterMapKey(path string, index int)
	LeaveMapKey(path string, index int)
	EnterMapValue(path string)
	LeaveMapValue(path string)
	VisitPrimitive(path string, d *TypeDescriptor, v reflect.Value)
	VisitNull(path string, d *TypeDescriptor)
	VisitConfigRef(path string, d *TypeDescriptor, refValue reflect.Value)
}

// NoopVisitor implements DynamicVisitor with no-op bodies so concrete
// visitors can embed it and override only the hooks they need.
type NoopVisitor struct{}

func (NoopVisitor) EnterStruct(string, *TypeDescriptor, reflect.Value) bool        { return true }
func (NoopVisitor) LeaveStruct(string, *TypeDescriptor, reflect.Value)             {}
func (NoopVisitor) EnterMember(string, *MemberDescriptor)                         {}
func (NoopVisitor) LeaveMember(string, *MemberDescriptor)                         {}
func (NoopVisitor) EnterDerived(string, *TypeDescriptor, *TypeDescriptor)         {}
func (NoopVisitor) LeaveDerived(string, *TypeDescriptor, *TypeDescriptor)         {}
func (NoopVisitor) EnterCollection(string, *TypeDescriptor, int)                  {}
func (NoopVisitor) LeaveCollection(string, *TypeDescriptor)                       {}
func (NoopVisitor) EnterElement(string, int)                                     {}
func (NoopVisitor) LeaveElement(string, int)                                     {}
func (NoopVisitor) EnterMapKey(string, int)                                      {}
func (NoopVisitor) LeaveMapKey(string, int)                                      {}
func (NoopVisitor) EnterMapValue(string)                                         {}
func (NoopVisitor) LeaveMapValue(string)                                         {}
func (NoopVisitor) VisitPrimitive(string, *TypeDescriptor, reflect.Value)         {}
func (NoopVisitor) VisitNull(string, *TypeDescriptor)                             {}
func (NoopVisitor) VisitConfigRef(string, *TypeDescriptor, reflect.Value)         {}

// Walk drives visitor over value according to d's descriptor graph,
// from the root path "$". It is read-only: unlike TraverseRefs it never
// writes values back, since its purpose is inspection (schema-aware
// tooling, editors, DumpVisitor).
func Walk(reg *Registry, d *TypeDescriptor, v reflect.Value, visitor DynamicVisitor) {
	walkAt(reg, d, v, "$", visitor)
}

func walkAt(reg *Registry, d *TypeDescriptor, v reflect.Value, path string, visitor DynamicVisitor) {
	switch d.Kind {
	case KindPrimitive, KindString, KindBytes, KindEnum, KindDynamicEnum, KindStringId:
		visitor.VisitPrimitive(path, d, v)

	case KindNullablePrimitive, KindNullableEnum:
		if v.IsNil() {
			visitor.VisitNull(path, d)
			return
		}
		visitor.VisitPrimitive(path, d, v.Elem())

	case KindNullableStruct:
		if v.IsNil() {
			visitor.VisitNull(path, d)
			return
		}
		walkAt(reg, d.ElemDesc, v.Elem(), path, visitor)

	case KindStruct, KindTuple:
		walkStruct(reg, d, derefStruct(v), path, visitor)

	case KindAbstractStruct:
		if v.IsNil() {
			visitor.VisitNull(path, d)
			return
		}
		concrete := v.Elem()
		concreteType := dereferencedType(concrete.Type())
		cd, ok := reg.TryType(concreteType)
		if !ok {
			return
		}
		visitor.EnterDerived(path, d, cd)
		walkStruct(reg, cd, derefStruct(concrete), path, visitor)
		visitor.LeaveDerived(path, d, cd)

	case KindValueCollection:
		if isNilCollection(v) {
			visitor.VisitNull(path, d)
			return
		}
		n := v.Len()
		visitor.EnterCollection(path, d, n)
		for i := 0; i < n; i++ {
			elemPath := path + "[" + itoa(i) + "]"
			visitor.EnterElement(elemPath, i)
			walkAt(reg, d.ElemDesc, v.Index(i), elemPath, visitor)
			visitor.LeaveElement(elemPath, i)
		}
		visitor.LeaveCollection(path, d)

	case KindKeyValueCollection:
		if isNilCollection(v) {
			visitor.VisitNull(path, d)
			return
		}
		visitor.EnterCollection(path, d, v.Len())
		i := 0
		iter := v.MapRange()
		for iter.Next() {
			keyPath := path + ".Keys[" + itoa(i) + "]"
			visitor.EnterMapKey(keyPath, i)
			walkAt(reg, d.KeyDesc, iter.Key(), keyPath, visitor)
			visitor.LeaveMapKey(keyPath, i)

			valPath := path + "[" + describeKey(iter.Key()) + "]"
			visitor.EnterMapValue(valPath)
			walkAt(reg, d.ValueDesc, iter.Value(), valPath, visitor)
			visitor.LeaveMapValue(valPath)
			i++
		}
		visitor.LeaveCollection(path, d)

	case KindConfigRef:
		visitor.VisitConfigRef(path, d, v)

	case KindConfigDataContent:
		inner := reflectConfigDataContentValue(v)
		walkAt(reg, d.ElemDesc, inner, path+".Value", visitor)
	}
}

func walkStruct(reg *Registry, d *TypeDescriptor, v reflect.Value, path string, visitor DynamicVisitor) {
	if !v.IsValid() {
		visitor.VisitNull(path, d)
		return
	}
	if !visitor.EnterStruct(path, d, v) {
		return
	}
	for _, m := range d.Members {
		memberPath := path + "." + m.Name
		visitor.EnterMember(memberPath, m)
		walkAt(reg, m.Desc, v.FieldByIndex(m.FieldIndex), memberPath, visitor)
		visitor.LeaveMember(memberPath, m)
	}
	visitor.LeaveStruct(path, d, v)
}

// describeKey renders a map key for the "[key]" breadcrumb segment
// (spec §4.F path grammar) with a plain fmt-free stringification of
// string and integer keys; keys of any other kind (a ConfigRef key, for
// instance) render as "?".
func describeKey(k reflect.Value) string {
	switch k.Kind() {
	case reflect.String:
		return k.String()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return itoa(int(k.Int()))
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return itoa(int(k.Uint()))
	default:
		return "?"
	}
}

// DumpVisitor is a path-tracking visitor (spec §4.F) that renders every
// primitive it sees into a flat path->spew-dump map, useful for schema
// diffing and debug inspection in tests.
type DumpVisitor struct {
	NoopVisitor
	Values map[string]string
}

func NewDumpVisitor() *DumpVisitor {
	return &DumpVisitor{Values: map[string]string{}}
}

func (dv *DumpVisitor) VisitPrimitive(path string, d *TypeDescriptor, v reflect.Value) {
	dv.Values[path] = dumpValue(v.Interface())
}

func (dv *DumpVisitor) VisitNull(path string, d *TypeDescriptor) {
	dv.Values[path] = "<null>"
}
