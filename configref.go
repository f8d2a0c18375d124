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

// ConfigRef is a by-key reference to an item living in a content-
// addressed configuration table (spec §2 Component E, Glossary). It
// holds either a bare key (unresolved) or a resolved item, depending on
// whether the decode context supplied a Resolver. T is the referenced
// item's Go type, which the scanner recovers from the field's static
// type — a generic instantiation gives the scanner everything the
// reference implementation's reflection-over-attributes pass would
// have given it, without needing a separate annotation.
type ConfigRef[T any] struct {
	key      interface{}
	item     T
	resolved bool
}

// NewConfigRef builds an unresolved reference to key.
func NewConfigRef[T any](key interface{}) ConfigRef[T] {
	return ConfigRef[T]{key: key}
}

func (r ConfigRef[T]) Key() interface{} { return r.key }
func (r ConfigRef[T]) IsResolved() bool { return r.resolved }
func (r ConfigRef[T]) Item() T          { return r.item }
func (r ConfigRef[T]) IsNull() bool     { return r.key == nil }

// WithKey returns a copy of r pointing at key, unresolved. Exported for
// the same reflect.Value.MethodByName reason as WithResolved: the wire
// codec builds a fresh ConfigRef[T] from a freshly zero-valued
// reflect.New(concreteType) without ever naming T.
func (r ConfigRef[T]) WithKey(key interface{}) ConfigRef[T] {
	r.key = key
	r.resolved = false
	return r
}

// WithResolved returns a copy of r with item attached and marked
// resolved. Exported so the dispatch engine can invoke it generically
// through reflect.Value.MethodByName, since T varies per call site and
// cannot be named at the reflection call site.
func (r ConfigRef[T]) WithResolved(item T) ConfigRef[T] {
	r.item = item
	r.resolved = true
	return r
}

func (ConfigRef[T]) isConfigRef() {}

// ConfigDataContent wraps a value that is part of a ConfigData item's
// body but is, in the reference system, only materialized on demand by
// the content layer (spec §4.C rule 6). Here it is a thin transparent
// wrapper; the wire kind mirrors T's own kind exactly.
type ConfigDataContent[T any] struct {
	value T
}

func NewConfigDataContent[T any](value T) ConfigDataContent[T] {
	return ConfigDataContent[T]{value: value}
}

func (c ConfigDataContent[T]) Value() T { return c.value }

// WithValue returns a copy of c wrapping value, converted to T.
// Exported for the same reflect.Value.MethodByName reason as
// ConfigRef.WithResolved.
func (c ConfigDataContent[T]) WithValue(value interface{}) ConfigDataContent[T] {
	c.value = value.(T)
	return c
}

func (ConfigDataContent[T]) isConfigDataContent() {}

type configRefMarker interface{ isConfigRef() }
type configDataContentMarker interface{ isConfigDataContent() }

var (
	configRefMarkerType         = reflect.TypeOf((*configRefMarker)(nil)).Elem()
	configDataContentMarkerType = reflect.TypeOf((*configDataContentMarker)(nil)).Elem()
)

func isConfigRefType(t reflect.Type) bool {
	return t.Implements(configRefMarkerType)
}

func isConfigDataContentType(t reflect.Type) bool {
	return t.Implements(configDataContentMarkerType)
}

// configRefItemType extracts T's reflect.Type from a ConfigRef[T]'s
// concrete instantiation by reading its unexported "item" field type —
// the one piece of generic-instantiation information reflection can't
// hand back as a type parameter directly, but can hand back via the
// field it was used to declare.
func configRefItemType(t reflect.Type) reflect.Type {
	f, _ := t.FieldByName("item")
	return f.Type
}

func configDataContentValueType(t reflect.Type) reflect.Type {
	f, _ := t.FieldByName("value")
	return f.Type
}

// reflectConfigRefKey/reflectConfigRefIsNull/reflectConfigRefWithResolved
// let code outside this file (dispatch.go's encode, decode and
// traverse_refs paths) operate on a ConfigRef[T] value without knowing T, by calling
// its exported methods through reflect.Value rather than the generic
// type itself.
func reflectConfigRefKey(v reflect.Value) interface{} {
	return v.MethodByName("Key").Call(nil)[0].Interface()
}

func reflectConfigRefIsNull(v reflect.Value) bool {
	return v.MethodByName("IsNull").Call(nil)[0].Bool()
}

// reflectConfigRefNew builds an unresolved ConfigRef of concreteType
// pointing at key via its WithKey method; a nil key gives a null ref.
func reflectConfigRefNew(concreteType reflect.Type, key interface{}) reflect.Value {
	zero := reflect.New(concreteType).Elem()
	method := zero.MethodByName("WithKey")
	var arg reflect.Value
	if key == nil {
		arg = reflect.Zero(method.Type().In(0))
	} else {
		arg = reflect.ValueOf(key)
	}
	return method.Call([]reflect.Value{arg})[0]
}

func reflectConfigDataContentNew(concreteType reflect.Type, value interface{}) reflect.Value {
	zero := reflect.New(concreteType).Elem()
	return zero.MethodByName("WithValue").Call([]reflect.Value{reflect.ValueOf(value)})[0]
}

func reflectConfigDataContentValue(v reflect.Value) reflect.Value {
	return v.MethodByName("Value").Call(nil)[0]
}

// reflectConfigRefWithResolved calls ConfigRef[T].WithResolved(item),
// converting item to T first since callers normally only have it as
// interface{} (e.g. straight out of a Resolver.Resolve).
func reflectConfigRefWithResolved(v reflect.Value, item interface{}) reflect.Value {
	itemT := configRefItemType(v.Type())
	var arg reflect.Value
	if item == nil {
		arg = reflect.Zero(itemT)
	} else {
		arg = reflect.ValueOf(item)
		if arg.Type() != itemT && arg.Type().ConvertibleTo(itemT) {
			arg = arg.Convert(itemT)
		}
	}
	return v.MethodByName("WithResolved").Call([]reflect.Value{arg})[0]
}
