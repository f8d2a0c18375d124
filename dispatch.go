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
)

// MaxSpanSize is the fixed write-block span size, 256 bytes. Neither
// ByteBuffer nor the encode path reads it: there is no span-based
// write-block planner, and ByteBuffer grows by doubling its capacity
// (see ByteBuffer.grow).
const MaxSpanSize = 256

// Encode is encode_object (spec §6): writes <WireKind of descriptor>
// <payload>.
func Encode(reg *Registry, d *TypeDescriptor, v reflect.Value, ctx *SerializationContext, buf *ByteBuffer) (err error) {
	defer recoverToError(&err)
	return encodeTagged(reg, d, v, ctx, buf)
}

// Decode is decode_object.
func Decode(reg *Registry, d *TypeDescriptor, ctx *SerializationContext, buf *ByteBuffer) (v reflect.Value, err error) {
	defer recoverToError(&err)
	return decodeTagged(reg, d, ctx, buf)
}

// EncodeMembers/DecodeMembers write/read a record body with no outer
// wire-kind byte (spec §6).
func EncodeMembers(reg *Registry, d *TypeDescriptor, v reflect.Value, ctx *SerializationContext, buf *ByteBuffer) (err error) {
	defer recoverToError(&err)
	return encodeRecordBody(reg, d, derefStruct(v), ctx, buf)
}

func DecodeMembers(reg *Registry, d *TypeDescriptor, ctx *SerializationContext, buf *ByteBuffer) (v reflect.Value, err error) {
	defer recoverToError(&err)
	return decodeRecordBody(reg, d, ctx, buf)
}

// EncodeTable/DecodeTable bulk-encode a slice of items as an
// ObjectTable (spec §6).
func EncodeTable(reg *Registry, itemDesc *TypeDescriptor, items reflect.Value, ctx *SerializationContext, buf *ByteBuffer) (err error) {
	defer recoverToError(&err)
	buf.WriteByte_(byte(WireObjectTable))
	n := items.Len()
	buf.WriteVarInt32(int32(n))
	for i := 0; i < n; i++ {
		if err := encodeRecordBody(reg, itemDesc, derefStruct(items.Index(i)), ctx, buf); err != nil {
			return err
		}
	}
	return nil
}

func DecodeTable(reg *Registry, itemDesc *TypeDescriptor, ctx *SerializationContext, buf *ByteBuffer) (v reflect.Value, err error) {
	defer recoverToError(&err)
	got := WireKind(buf.ReadByte_())
	if got != WireObjectTable {
		return reflect.Value{}, &WireKindMismatch{Expected: WireObjectTable, Got: got, Member: "<table>"}
	}
	n := int(buf.ReadVarInt32())
	if ctx.MaxCollectionSize > 0 && n > ctx.MaxCollectionSize {
		return reflect.Value{}, &BoundExceeded{Kind: "table", Limit: ctx.MaxCollectionSize, Got: n}
	}
	out := reflect.MakeSlice(reflect.SliceOf(itemDesc.GoType), n, n)
	for i := 0; i < n; i++ {
		item, err := decodeRecordBody(reg, itemDesc, ctx, buf)
		if err != nil {
			return reflect.Value{}, err
		}
		out.Index(i).Set(item)
	}
	return out, nil
}

func recoverToError(errp *error) {
	if r := recover(); r != nil {
		if e, ok := r.(error); ok {
			*errp = e
			return
		}
		panic(r)
	}
}

func derefStruct(v reflect.Value) reflect.Value {
	if v.Kind() == reflect.Ptr {
		return v.Elem()
	}
	return v
}

func effectiveMax(localMax, ctxMax int) int {
	if localMax > 0 {
		return localMax
	}
	return ctxMax
}

// encodeTagged/decodeTagged implement the self-describing top-level
// form: a leading WireKind byte, then the payload.
func encodeTagged(reg *Registry, d *TypeDescriptor, v reflect.Value, ctx *SerializationContext, buf *ByteBuffer) error {
	kind := d.CanonicalWireKind()
	buf.WriteByte_(byte(kind))
	return encodePayload(reg, d, v, ctx, buf, 0)
}

func decodeTagged(reg *Registry, d *TypeDescriptor, ctx *SerializationContext, buf *ByteBuffer) (reflect.Value, error) {
	got := WireKind(buf.ReadByte_())
	expected := d.CanonicalWireKind()
	if got != expected {
		return reflect.Value{}, &WireKindMismatch{Expected: expected, Got: got, Member: d.Name}
	}
	return decodePayload(reg, d, ctx, buf, 0)
}

// encodePayload/decodePayload dispatch purely on d.Kind: the caller is
// responsible for having already written/verified any leading WireKind
// byte that applies at its level (record member, collection header,
// top-level tag).
func encodePayload(reg *Registry, d *TypeDescriptor, v reflect.Value, ctx *SerializationContext, buf *ByteBuffer, localMax int) error {
	switch d.Kind {
	case KindPrimitive, KindString, KindBytes:
		writePrimitive(buf, v, d.CanonicalWireKind())
		return nil
	case KindEnum:
		writePrimitive(buf, v, WireVarInt)
		return nil
	case KindDynamicEnum:
		id := v.Interface().(DynamicEnumerator).EnumID()
		buf.WriteVarInt64(id)
		return nil
	case KindStringId:
		id := v.Interface().(StringIdentified).StringID()
		buf.WriteString(id)
		return nil
	case KindNullablePrimitive, KindNullableEnum:
		return encodeNullablePrimitive(d, v, buf)
	case KindNullableStruct:
		if v.IsNil() {
			buf.WriteByte_(nullableAbsentFlag)
			return nil
		}
		buf.WriteByte_(nullablePresentFlag)
		return encodeRecordBody(reg, d.ElemDesc, derefStruct(v), ctx, buf)
	case KindStruct, KindTuple:
		return encodeRecordBody(reg, d, derefStruct(v), ctx, buf)
	case KindAbstractStruct:
		return encodeAbstract(reg, d, v, ctx, buf)
	case KindValueCollection:
		return encodeValueCollection(reg, d, v, ctx, buf, localMax)
	case KindKeyValueCollection:
		return encodeKeyValueCollection(reg, d, v, ctx, buf, localMax)
	case KindConfigRef:
		return encodeConfigRef(reg, d, v, ctx, buf)
	case KindConfigDataContent:
		inner := reflectConfigDataContentValue(v)
		return encodePayload(reg, d.ElemDesc, inner, ctx, buf, localMax)
	}
	return &IntegrityError{Reason: "encodePayload: unsupported descriptor kind for " + d.Name}
}

func decodePayload(reg *Registry, d *TypeDescriptor, ctx *SerializationContext, buf *ByteBuffer, localMax int) (reflect.Value, error) {
	switch d.Kind {
	case KindPrimitive, KindString, KindBytes:
		return readPrimitive(buf, d.CanonicalWireKind(), d.GoType, ctx.MaxStringSize, ctx.MaxByteArraySize)
	case KindEnum:
		out := reflect.New(d.GoType).Elem()
		out.SetInt(buf.ReadVarInt64())
		return out, nil
	case KindDynamicEnum:
		id := buf.ReadVarInt64()
		return callFactory(d, reflect.ValueOf(id))
	case KindStringId:
		s, err := buf.ReadString(ctx.MaxStringSize)
		if err != nil {
			return reflect.Value{}, err
		}
		return callFactory(d, reflect.ValueOf(s))
	case KindNullablePrimitive, KindNullableEnum:
		return decodeNullablePrimitive(d, ctx, buf)
	case KindNullableStruct:
		flag := buf.ReadByte_()
		switch flag {
		case nullableAbsentFlag:
			return reflect.Zero(d.GoType), nil
		case nullablePresentFlag:
			body, err := decodeRecordBody(reg, d.ElemDesc, ctx, buf)
			if err != nil {
				return reflect.Value{}, err
			}
			ptr := reflect.New(d.ElemDesc.GoType)
			ptr.Elem().Set(body)
			return ptr, nil
		default:
			return reflect.Value{}, &IntegrityError{Reason: "nullable-struct flag other than 0 or 2"}
		}
	case KindStruct, KindTuple:
		return decodeRecordBody(reg, d, ctx, buf)
	case KindAbstractStruct:
		return decodeAbstract(reg, d, ctx, buf)
	case KindValueCollection:
		return decodeValueCollection(reg, d, ctx, buf, localMax)
	case KindKeyValueCollection:
		return decodeKeyValueCollection(reg, d, ctx, buf, localMax)
	case KindConfigRef:
		return decodeConfigRef(reg, d, ctx, buf)
	case KindConfigDataContent:
		inner, err := decodePayload(reg, d.ElemDesc, ctx, buf, localMax)
		if err != nil {
			return reflect.Value{}, err
		}
		return reflectConfigDataContentNew(d.GoType, inner.Interface()), nil
	}
	return reflect.Value{}, &IntegrityError{Reason: "decodePayload: unsupported descriptor kind for " + d.Name}
}

func callFactory(d *TypeDescriptor, arg reflect.Value) (reflect.Value, error) {
	if !d.Factory.IsValid() {
		return reflect.Value{}, &SchemaError{Type: d.Name, Reason: "no factory registered to reconstruct value from wire identity"}
	}
	out := d.Factory.Call([]reflect.Value{arg})
	if len(out) == 2 && !out[1].IsNil() {
		return reflect.Value{}, out[1].Interface().(error)
	}
	return out[0], nil
}

func encodeNullablePrimitive(d *TypeDescriptor, v reflect.Value, buf *ByteBuffer) error {
	present := !v.IsNil()
	var inner reflect.Value
	if present {
		inner = v.Elem()
	}
	baseKind := d.ElemDesc.CanonicalWireKind()
	if d.Kind == KindNullableEnum {
		baseKind = WireVarInt
	}
	writeNullablePrimitive(buf, present, inner, baseKind)
	return nil
}

func decodeNullablePrimitive(d *TypeDescriptor, ctx *SerializationContext, buf *ByteBuffer) (reflect.Value, error) {
	baseKind := d.ElemDesc.CanonicalWireKind()
	if d.Kind == KindNullableEnum {
		baseKind = WireVarInt
	}
	val, present, err := readNullablePrimitive(buf, baseKind, d.ElemDesc.GoType, ctx.MaxStringSize, ctx.MaxByteArraySize)
	if err != nil {
		return reflect.Value{}, err
	}
	if !present {
		return reflect.Zero(d.GoType), nil
	}
	ptr := reflect.New(d.ElemDesc.GoType)
	ptr.Elem().Set(val)
	return ptr, nil
}

func isNilCollection(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Slice, reflect.Map:
		return v.IsNil()
	default:
		return false
	}
}

func encodeValueCollection(reg *Registry, d *TypeDescriptor, v reflect.Value, ctx *SerializationContext, buf *ByteBuffer, localMax int) error {
	if isNilCollection(v) {
		writeCollectionHeader(buf, -1, d.ElemDesc.CanonicalWireKind())
		return nil
	}
	n := v.Len()
	max := effectiveMax(localMax, ctx.MaxCollectionSize)
	if max > 0 && n > max {
		return &BoundExceeded{Kind: "collection", Limit: max, Got: n}
	}
	writeCollectionHeader(buf, n, d.ElemDesc.CanonicalWireKind())
	for i := 0; i < n; i++ {
		if err := encodePayload(reg, d.ElemDesc, v.Index(i), ctx, buf, 0); err != nil {
			return err
		}
	}
	return nil
}

func decodeValueCollection(reg *Registry, d *TypeDescriptor, ctx *SerializationContext, buf *ByteBuffer, localMax int) (reflect.Value, error) {
	max := effectiveMax(localMax, ctx.MaxCollectionSize)
	n, elemKind, err := readCollectionHeader(buf, max)
	if err != nil {
		return reflect.Value{}, err
	}
	if n == -1 {
		return reflect.Zero(d.GoType), nil
	}
	if elemKind != d.ElemDesc.CanonicalWireKind() {
		return reflect.Value{}, &WireKindMismatch{Expected: d.ElemDesc.CanonicalWireKind(), Got: elemKind, Member: "<element>"}
	}
	var out reflect.Value
	if d.GoType.Kind() == reflect.Array {
		out = reflect.New(d.GoType).Elem()
	} else {
		out = reflect.MakeSlice(d.GoType, n, n)
	}
	for i := 0; i < n; i++ {
		ev, err := decodePayload(reg, d.ElemDesc, ctx, buf, 0)
		if err != nil {
			return reflect.Value{}, err
		}
		out.Index(i).Set(ev)
	}
	return out, nil
}

func encodeKeyValueCollection(reg *Registry, d *TypeDescriptor, v reflect.Value, ctx *SerializationContext, buf *ByteBuffer, localMax int) error {
	if isNilCollection(v) {
		writeMapHeader(buf, -1, d.KeyDesc.CanonicalWireKind(), d.ValueDesc.CanonicalWireKind())
		return nil
	}
	n := v.Len()
	max := effectiveMax(localMax, ctx.MaxCollectionSize)
	if max > 0 && n > max {
		return &BoundExceeded{Kind: "map", Limit: max, Got: n}
	}
	writeMapHeader(buf, n, d.KeyDesc.CanonicalWireKind(), d.ValueDesc.CanonicalWireKind())
	iter := v.MapRange()
	for iter.Next() {
		if err := encodePayload(reg, d.KeyDesc, iter.Key(), ctx, buf, 0); err != nil {
			return err
		}
		if err := encodePayload(reg, d.ValueDesc, iter.Value(), ctx, buf, 0); err != nil {
			return err
		}
	}
	return nil
}

func decodeKeyValueCollection(reg *Registry, d *TypeDescriptor, ctx *SerializationContext, buf *ByteBuffer, localMax int) (reflect.Value, error) {
	max := effectiveMax(localMax, ctx.MaxCollectionSize)
	n, kk, vk, err := readMapHeader(buf, max)
	if err != nil {
		return reflect.Value{}, err
	}
	if n == -1 {
		return reflect.Zero(d.GoType), nil
	}
	if kk != d.KeyDesc.CanonicalWireKind() {
		return reflect.Value{}, &WireKindMismatch{Expected: d.KeyDesc.CanonicalWireKind(), Got: kk, Member: "<map key>"}
	}
	if vk != d.ValueDesc.CanonicalWireKind() {
		return reflect.Value{}, &WireKindMismatch{Expected: d.ValueDesc.CanonicalWireKind(), Got: vk, Member: "<map value>"}
	}
	out := reflect.MakeMapWithSize(d.GoType, n)
	for i := 0; i < n; i++ {
		k, err := decodePayload(reg, d.KeyDesc, ctx, buf, 0)
		if err != nil {
			return reflect.Value{}, err
		}
		val, err := decodePayload(reg, d.ValueDesc, ctx, buf, 0)
		if err != nil {
			return reflect.Value{}, err
		}
		out.SetMapIndex(k, val)
	}
	return out, nil
}

// structImplementsAsPointer reports whether ifaceType is satisfied by
// structType via a pointer receiver rather than a value receiver.
func structImplementsAsPointer(structType, ifaceType reflect.Type) bool {
	return !structType.Implements(ifaceType) && reflect.PtrTo(structType).Implements(ifaceType)
}

func encodeAbstract(reg *Registry, d *TypeDescriptor, v reflect.Value, ctx *SerializationContext, buf *ByteBuffer) error {
	if v.IsNil() {
		buf.WriteVarInt32(0)
		return nil
	}
	concrete := v.Elem()
	concreteType := dereferencedType(concrete.Type())
	cd, ok := reg.TryType(concreteType)
	if !ok || cd.BaseRoot != d {
		return &SchemaError{Type: concreteType.String(), Reason: "value does not implement a registered concrete type of abstract root " + d.Name}
	}
	buf.WriteVarInt32(cd.TypeCode)
	return encodeRecordBody(reg, cd, derefStruct(concrete), ctx, buf)
}

func decodeAbstract(reg *Registry, d *TypeDescriptor, ctx *SerializationContext, buf *ByteBuffer) (reflect.Value, error) {
	code := buf.ReadVarInt32()
	if code == 0 {
		return reflect.Zero(d.GoType), nil
	}
	cd, ok := d.DerivedTypes[code]
	if !ok {
		// The record body is self-terminating, so consume it before
		// surfacing the error; otherwise the cursor is left mid-body and
		// every later read on the same stream (e.g. the next event-log
		// entry) is desynced.
		if err := skipRecordBody(buf, ctx); err != nil {
			return reflect.Value{}, err
		}
		return reflect.Value{}, &UnknownDerivedType{Root: d.Name, TypeCode: code}
	}
	body, err := decodeRecordBody(reg, cd, ctx, buf)
	if err != nil {
		return reflect.Value{}, err
	}
	if structImplementsAsPointer(cd.GoType, d.GoType) {
		ptr := reflect.New(cd.GoType)
		ptr.Elem().Set(body)
		return ptr, nil
	}
	return body, nil
}

func encodeConfigRef(reg *Registry, d *TypeDescriptor, v reflect.Value, ctx *SerializationContext, buf *ByteBuffer) error {
	key := reflectConfigRefKey(v)
	if reflectConfigRefIsNull(v) && d.ElemDesc.ConfigNullSentinelKey != nil {
		key = d.ElemDesc.ConfigNullSentinelKey
	}
	return encodePayload(reg, d.KeyDesc, valueOrZero(key, d.KeyDesc.GoType), ctx, buf, 0)
}

func decodeConfigRef(reg *Registry, d *TypeDescriptor, ctx *SerializationContext, buf *ByteBuffer) (reflect.Value, error) {
	keyVal, err := decodePayload(reg, d.KeyDesc, ctx, buf, 0)
	if err != nil {
		return reflect.Value{}, err
	}
	isNull := false
	var key interface{}
	if d.KeyDesc.Kind == KindNullablePrimitive && keyVal.IsNil() {
		isNull = true
	} else {
		key = keyVal.Interface()
		if d.ElemDesc.ConfigNullSentinelKey != nil && reflect.DeepEqual(key, d.ElemDesc.ConfigNullSentinelKey) {
			isNull = true
		}
	}
	if isNull {
		return reflectConfigRefNew(d.GoType, nil), nil
	}
	ref := reflectConfigRefNew(d.GoType, key)
	if ctx.Resolver != nil {
		if item, ok := ctx.Resolver.Resolve(d.ElemDesc.Name, key); ok {
			ref = reflectConfigRefWithResolved(ref, item)
		}
	}
	return ref, nil
}

func valueOrZero(val interface{}, t reflect.Type) reflect.Value {
	if val == nil {
		return reflect.Zero(t)
	}
	rv := reflect.ValueOf(val)
	if rv.Type() != t && rv.Type().ConvertibleTo(t) {
		rv = rv.Convert(t)
	}
	return rv
}

// encodeRecordBody/decodeRecordBody implement spec §4.D's record
// contract: a stream of <wire kind><tag id><payload> triples, version-
// gated and flag-excludable, terminated by a lone EndStruct byte.
func encodeRecordBody(reg *Registry, d *TypeDescriptor, v reflect.Value, ctx *SerializationContext, buf *ByteBuffer) error {
	for _, m := range d.Members {
		if m.Window != nil && !m.Window.includes(ctx.LogicVersion) {
			continue
		}
		if ctx.excluded(m.Flags) {
			continue
		}
		fv := v.FieldByIndex(m.FieldIndex)
		kind := m.Desc.CanonicalWireKind()
		buf.WriteByte_(byte(kind))
		buf.WriteVarInt32(m.TagID)
		ctx.pushPath("." + m.Name)
		err := encodePayload(reg, m.Desc, fv, ctx, buf, m.MaxCollection)
		ctx.popPath()
		if err != nil {
			return err
		}
	}
	buf.WriteByte_(byte(WireEndStruct))
	return nil
}

func decodeRecordBody(reg *Registry, d *TypeDescriptor, ctx *SerializationContext, buf *ByteBuffer) (reflect.Value, error) {
	if d.Constructor != nil {
		return decodeRecordBodyConstructor(reg, d, ctx, buf)
	}
	inst := reflect.New(d.GoType).Elem()
	if err := decodeRecordBodyInto(reg, d, ctx, buf, inst); err != nil {
		return reflect.Value{}, err
	}
	runHooks(d, inst, ctx)
	return inst, nil
}

// decodeRecordBodyInto reads the tag/kind/payload loop, assigning
// straight into inst's fields — shared by the default-constructor path
// and, after collection, unused for the constructor path (which collects
// to locals instead).
func decodeRecordBodyInto(reg *Registry, d *TypeDescriptor, ctx *SerializationContext, buf *ByteBuffer, inst reflect.Value) error {
	for {
		kind := WireKind(buf.ReadByte_())
		if kind == WireEndStruct {
			return nil
		}
		tagID := buf.ReadVarInt32()
		if tagID <= 0 {
			return &IntegrityError{Reason: "nonpositive struct member tag id"}
		}
		m, ok := d.memberForTag(tagID)
		if !ok {
			if err := skipPayload(buf, kind, ctx); err != nil {
				return err
			}
			continue
		}
		if ctx.excluded(m.Flags) {
			if err := skipPayload(buf, kind, ctx); err != nil {
				return err
			}
			continue
		}
		start := buf.readerAt
		ctx.pushPath("." + m.Name)
		val, err := decodeMemberPayload(reg, m, kind, ctx, buf)
		ctx.popPath()
		if err != nil {
			if m.Substitute == nil {
				return &MemberDeserializationError{Member: m.Name, RawBytes: buf.data[start:buf.readerAt], Cause: err}
			}
			val = m.Substitute.produce(FailureParams{Member: m.Name, RawBytes: buf.data[start:buf.readerAt], Cause: err})
		}
		inst.FieldByIndex(m.FieldIndex).Set(val)
	}
}

// decodeRecordBodyConstructor collects members into name-keyed locals,
// then invokes the declared constructor (spec §4.C "read-only fields ...
// constructor-based deserialization", used unconditionally by tuples).
func decodeRecordBodyConstructor(reg *Registry, d *TypeDescriptor, ctx *SerializationContext, buf *ByteBuffer) (reflect.Value, error) {
	locals := map[string]reflect.Value{}
	for _, m := range d.Members {
		locals[m.Name] = reflect.Zero(m.GoType)
	}
	for {
		kind := WireKind(buf.ReadByte_())
		if kind == WireEndStruct {
			break
		}
		tagID := buf.ReadVarInt32()
		if tagID <= 0 {
			return reflect.Value{}, &IntegrityError{Reason: "nonpositive struct member tag id"}
		}
		m, ok := d.memberForTag(tagID)
		if !ok {
			if err := skipPayload(buf, kind, ctx); err != nil {
				return reflect.Value{}, err
			}
			continue
		}
		if ctx.excluded(m.Flags) {
			if err := skipPayload(buf, kind, ctx); err != nil {
				return reflect.Value{}, err
			}
			continue
		}
		start := buf.readerAt
		ctx.pushPath("." + m.Name)
		val, err := decodeMemberPayload(reg, m, kind, ctx, buf)
		ctx.popPath()
		if err != nil {
			if m.Substitute == nil {
				return reflect.Value{}, &MemberDeserializationError{Member: m.Name, RawBytes: buf.data[start:buf.readerAt], Cause: err}
			}
			val = m.Substitute.produce(FailureParams{Member: m.Name, RawBytes: buf.data[start:buf.readerAt], Cause: err})
		}
		locals[m.Name] = val
	}
	args := make([]reflect.Value, len(d.Constructor.ParamNames))
	for i, name := range d.Constructor.ParamNames {
		args[i] = matchLocal(locals, name)
	}
	out := d.Constructor.Fn.Call(args)
	inst := out[0]
	if inst.Kind() == reflect.Ptr {
		inst = inst.Elem()
	}
	runHooks(d, inst, ctx)
	return inst, nil
}

// matchLocal looks a constructor parameter name up against the
// collected members case-insensitively (spec §4.C "constructor ...
// parameter names ... matched case-insensitively", carried into Go
// since reflect cannot recover a function's source parameter names).
func matchLocal(locals map[string]reflect.Value, name string) reflect.Value {
	for k, v := range locals {
		if equalFold(k, name) {
			return v
		}
	}
	return reflect.Value{}
}

func equalFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}

func runHooks(d *TypeDescriptor, inst reflect.Value, ctx *SerializationContext) {
	for _, h := range d.OnDeserializedHooks {
		recv := inst
		if h.Fn.Type().In(0).Kind() == reflect.Ptr {
			recv = inst.Addr()
		}
		if h.WantsContext {
			h.Fn.Call([]reflect.Value{recv, reflect.ValueOf(ctx)})
		} else {
			h.Fn.Call([]reflect.Value{recv})
		}
	}
}

// decodeMemberPayload honors a member's declared converter when the
// wire kind on the stream doesn't match the member's own canonical kind
// (spec §4.A "Wire-type extensibility"). Only one converter level is
// ever applied.
func decodeMemberPayload(reg *Registry, m *MemberDescriptor, kind WireKind, ctx *SerializationContext, buf *ByteBuffer) (reflect.Value, error) {
	expected := m.Desc.CanonicalWireKind()
	if kind == expected {
		return decodePayload(reg, m.Desc, ctx, buf, m.MaxCollection)
	}
	if conv := m.converterFor(kind); conv != nil {
		sourceType := conv.Convert.Type().In(0)
		srcVal, err := readPrimitive(buf, kind, sourceType, ctx.MaxStringSize, ctx.MaxByteArraySize)
		if err != nil {
			return reflect.Value{}, &ConverterError{Member: m.Name, From: kind, Cause: err}
		}
		out := conv.Convert.Call([]reflect.Value{srcVal})
		if len(out) == 2 && !out[1].IsNil() {
			return reflect.Value{}, &ConverterError{Member: m.Name, From: kind, Cause: out[1].Interface().(error)}
		}
		return out[0], nil
	}
	// No converter claims this kind either: skip the payload so the
	// stream stays aligned for whatever comes next, whether or not a
	// substitute is declared for this member.
	mismatchErr := &WireKindMismatch{Expected: expected, Got: kind, Member: m.Name}
	if err := skipPayload(buf, kind, ctx); err != nil {
		return reflect.Value{}, err
	}
	return reflect.Value{}, mismatchErr
}

// skipPayload discards a payload of the given wire kind without a
// descriptor, used for tags the local schema no longer recognizes
// (forward compatibility, spec §4.D decode contract "if unmatched, skip
// the payload using the wire kind"). The ctx string/bytes bounds still
// apply: skipping is not a license to allocate an unbounded string.
func skipPayload(buf *ByteBuffer, kind WireKind, ctx *SerializationContext) error {
	switch kind {
	case WireVarInt:
		buf.ReadVarInt64()
	case WireVarInt128:
		buf.ReadVarInt64()
		buf.ReadVarInt64()
	case WireF32:
		buf.ReadInt32()
	case WireFloat32:
		buf.ReadFloat32()
	case WireF32Vec2:
		buf.ReadFloat32()
		buf.ReadFloat32()
	case WireF32Vec3:
		buf.ReadFloat32()
		buf.ReadFloat32()
		buf.ReadFloat32()
	case WireF64:
		buf.ReadInt64()
	case WireFloat64:
		buf.ReadFloat64()
	case WireF64Vec2:
		buf.ReadFloat64()
		buf.ReadFloat64()
	case WireF64Vec3:
		buf.ReadFloat64()
		buf.ReadFloat64()
		buf.ReadFloat64()
	case WireMetaGuid:
		buf.ReadGuid()
	case WireString:
		if _, err := buf.ReadString(ctx.MaxStringSize); err != nil {
			return err
		}
	case WireBytes:
		if _, err := buf.ReadBytes(ctx.MaxByteArraySize); err != nil {
			return err
		}
	case WireNullableVarInt, WireNullableVarInt128, WireNullableF32, WireNullableF32Vec2,
		WireNullableF32Vec3, WireNullableF64, WireNullableF64Vec2, WireNullableF64Vec3,
		WireNullableFloat32, WireNullableFloat64, WireNullableMetaGuid:
		flag := buf.ReadByte_()
		if flag == nullablePresentFlag {
			return skipPayload(buf, baseKindOf(kind), ctx)
		}
	case WireStruct:
		return skipRecordBody(buf, ctx)
	case WireNullableStruct:
		flag := buf.ReadByte_()
		if flag == nullablePresentFlag {
			return skipRecordBody(buf, ctx)
		}
	case WireAbstractStruct:
		code := buf.ReadVarInt32()
		if code != 0 {
			return skipRecordBody(buf, ctx)
		}
	case WireValueCollection:
		n, elemKind, err := readCollectionHeader(buf, 0)
		if err != nil {
			return err
		}
		for i := 0; i < n; i++ {
			if err := skipPayload(buf, elemKind, ctx); err != nil {
				return err
			}
		}
	case WireKeyValueCollection:
		n, kk, vk, err := readMapHeader(buf, 0)
		if err != nil {
			return err
		}
		for i := 0; i < n; i++ {
			if err := skipPayload(buf, kk, ctx); err != nil {
				return err
			}
			if err := skipPayload(buf, vk, ctx); err != nil {
				return err
			}
		}
	default:
		return &IntegrityError{Reason: "skipPayload: unrecognized wire kind on stream: " + kind.String()}
	}
	return nil
}

func skipRecordBody(buf *ByteBuffer, ctx *SerializationContext) error {
	for {
		kind := WireKind(buf.ReadByte_())
		if kind == WireEndStruct {
			return nil
		}
		if tagID := buf.ReadVarInt32(); tagID <= 0 {
			return &IntegrityError{Reason: "nonpositive struct member tag id"}
		}
		if err := skipPayload(buf, kind, ctx); err != nil {
			return err
		}
	}
}

func baseKindOf(nullable WireKind) WireKind {
	switch nullable {
	case WireNullableVarInt:
		return WireVarInt
	case WireNullableVarInt128:
		return WireVarInt128
	case WireNullableF32:
		return WireF32
	case WireNullableF32Vec2:
		return WireF32Vec2
	case WireNullableF32Vec3:
		return WireF32Vec3
	case WireNullableF64:
		return WireF64
	case WireNullableF64Vec2:
		return WireF64Vec2
	case WireNullableF64Vec3:
		return WireF64Vec3
	case WireNullableFloat32:
		return WireFloat32
	case WireNullableFloat64:
		return WireFloat64
	case WireNullableMetaGuid:
		return WireMetaGuid
	}
	return WireInvalid
}

// TraverseRefs implements spec §4.D "Reference traversal": visits every
// ConfigRef reachable from value per d's descriptor graph. With a nil
// visitor no reference is visited and value comes back unchanged. With
// a non-nil visitor each ConfigRef is passed to visitor.VisitRef and
// the result is written back in place where the location is settable;
// results for ConfigRefs inside map keys are not written back.
func TraverseRefs(d *TypeDescriptor, value reflect.Value, visitor MutationVisitor) reflect.Value {
	return traverseRefsAt(d, value, "$", visitor)
}

func traverseRefsAt(d *TypeDescriptor, v reflect.Value, path string, visitor MutationVisitor) reflect.Value {
	if !d.HasConfigRef() {
		return v
	}
	switch d.Kind {
	case KindConfigRef:
		if visitor == nil {
			return v
		}
		return visitor.VisitRef(path, v)
	case KindStruct, KindTuple:
		sv := derefStruct(v)
		if !sv.IsValid() || (v.Kind() == reflect.Ptr && v.IsNil()) {
			return v
		}
		for _, m := range d.Members {
			if !m.Desc.HasConfigRef() {
				continue
			}
			fv := sv.FieldByIndex(m.FieldIndex)
			nv := traverseRefsAt(m.Desc, fv, path+"."+m.Name, visitor)
			if visitor != nil && fv.CanSet() {
				fv.Set(nv)
			}
		}
		return v
	case KindNullableStruct:
		if v.IsNil() {
			return v
		}
		inner := v.Elem()
		nv := traverseRefsAt(d.ElemDesc, inner, path, visitor)
		if visitor != nil {
			ptr := reflect.New(d.ElemDesc.GoType)
			ptr.Elem().Set(nv)
			return ptr
		}
		return v
	case KindAbstractStruct:
		if v.IsNil() {
			return v
		}
		concrete := v.Elem()
		concreteType := dereferencedType(concrete.Type())
		cd, ok := registryLookupByGoType(d, concreteType)
		if !ok {
			return v
		}
		nv := traverseRefsAt(cd, concrete, path, visitor)
		if visitor != nil {
			return nv
		}
		return v
	case KindValueCollection:
		if isNilCollection(v) {
			return v
		}
		n := v.Len()
		for i := 0; i < n; i++ {
			ev := v.Index(i)
			nv := traverseRefsAt(d.ElemDesc, ev, path+"["+itoa(i)+"]", visitor)
			if visitor != nil && ev.CanSet() {
				ev.Set(nv)
			}
		}
		return v
	case KindKeyValueCollection:
		if isNilCollection(v) {
			return v
		}
		iter := v.MapRange()
		for iter.Next() {
			k, val := iter.Key(), iter.Value()
			entryPath := path + "[" + describeKey(k) + "]"
			if d.KeyDesc.HasConfigRef() {
				traverseRefsAt(d.KeyDesc, k, entryPath+".Key", visitor)
			}
			nv := traverseRefsAt(d.ValueDesc, val, entryPath+".Value", visitor)
			if visitor != nil {
				v.SetMapIndex(k, nv)
			}
		}
		return v
	case KindConfigDataContent:
		inner := reflectConfigDataContentValue(v)
		nv := traverseRefsAt(d.ElemDesc, inner, path+".Value", visitor)
		if visitor != nil {
			return reflectConfigDataContentNew(d.GoType, nv.Interface())
		}
		return v
	}
	return v
}

// registryLookupByGoType is a narrow seam so traverseRefsAt can resolve
// an abstract field's dynamic concrete descriptor without threading a
// *Registry through every call (DerivedTypes already gives us the type
// code side; this walks the other direction via d.BaseRoot's root map).
func registryLookupByGoType(root *TypeDescriptor, concreteType reflect.Type) (*TypeDescriptor, bool) {
	for _, cd := range root.DerivedTypes {
		if cd.GoType == concreteType {
			return cd, true
		}
	}
	return nil, false
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
