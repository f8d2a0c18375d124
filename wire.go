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

// This file is the Wire Codec (spec §2 Component A): primitive and
// collection-header encode/decode against a *ByteBuffer; tagged-record
// bodies are encoded and decoded in dispatch.go. It
// knows about WireKind bytes but nothing about TypeDescriptors — the
// Dispatch Engine (dispatch.go) is the layer that decides, per
// descriptor, which of these functions to call.

// writePrimitive writes a Go primitive value per its canonical WireKind.
func writePrimitive(buf *ByteBuffer, v reflect.Value, kind WireKind) {
	switch kind {
	case WireVarInt:
		switch v.Kind() {
		case reflect.Bool:
			if v.Bool() {
				buf.WriteVarInt64(-1)
			} else {
				buf.WriteVarInt64(0)
			}
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			buf.WriteVarInt64(v.Int())
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			buf.WriteVarUint64(v.Uint())
		default:
			panic(&IntegrityError{Reason: "unsupported kind for VarInt: " + v.Kind().String()})
		}
	case WireFloat32:
		buf.WriteFloat32(float32(v.Float()))
	case WireFloat64:
		buf.WriteFloat64(v.Float())
	case WireF32:
		buf.WriteInt32(int32(v.Interface().(F32)))
	case WireF64:
		buf.WriteInt64(int64(v.Interface().(F64)))
	case WireF32Vec2:
		vv := v.Interface().(F32Vec2)
		buf.WriteFloat32(vv.X)
		buf.WriteFloat32(vv.Y)
	case WireF32Vec3:
		vv := v.Interface().(F32Vec3)
		buf.WriteFloat32(vv.X)
		buf.WriteFloat32(vv.Y)
		buf.WriteFloat32(vv.Z)
	case WireF64Vec2:
		vv := v.Interface().(F64Vec2)
		buf.WriteFloat64(vv.X)
		buf.WriteFloat64(vv.Y)
	case WireF64Vec3:
		vv := v.Interface().(F64Vec3)
		buf.WriteFloat64(vv.X)
		buf.WriteFloat64(vv.Y)
		buf.WriteFloat64(vv.Z)
	case WireMetaGuid:
		vv := v.Interface().(MetaGuid)
		buf.WriteGuid(vv)
	case WireString:
		buf.WriteString(v.String())
	case WireBytes:
		buf.WriteBytes(v.Bytes())
	default:
		panic(&IntegrityError{Reason: "writePrimitive: unsupported wire kind " + kind.String()})
	}
}

// readPrimitive reads a value of goType per kind, returning it boxed in
// a reflect.Value of goType. maxString/maxBytes bound the two
// variable-length cases before allocation (spec §4.A "Bounded read
// policy"); 0 means unbounded, matching ByteBuffer's convention.
func readPrimitive(buf *ByteBuffer, kind WireKind, goType reflect.Type, maxString, maxBytes int) (reflect.Value, error) {
	switch kind {
	case WireVarInt:
		switch goType.Kind() {
		case reflect.Bool:
			return reflect.ValueOf(buf.ReadVarInt64() != 0), nil
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			out := reflect.New(goType).Elem()
			out.SetInt(buf.ReadVarInt64())
			return out, nil
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			out := reflect.New(goType).Elem()
			out.SetUint(buf.ReadVarUint64())
			return out, nil
		}
	case WireFloat32:
		return reflect.ValueOf(buf.ReadFloat32()), nil
	case WireFloat64:
		return reflect.ValueOf(buf.ReadFloat64()), nil
	case WireF32:
		return reflect.ValueOf(F32(buf.ReadInt32())), nil
	case WireF64:
		return reflect.ValueOf(F64(buf.ReadInt64())), nil
	case WireF32Vec2:
		return reflect.ValueOf(F32Vec2{X: buf.ReadFloat32(), Y: buf.ReadFloat32()}), nil
	case WireF32Vec3:
		return reflect.ValueOf(F32Vec3{X: buf.ReadFloat32(), Y: buf.ReadFloat32(), Z: buf.ReadFloat32()}), nil
	case WireF64Vec2:
		return reflect.ValueOf(F64Vec2{X: buf.ReadFloat64(), Y: buf.ReadFloat64()}), nil
	case WireF64Vec3:
		return reflect.ValueOf(F64Vec3{X: buf.ReadFloat64(), Y: buf.ReadFloat64(), Z: buf.ReadFloat64()}), nil
	case WireMetaGuid:
		return reflect.ValueOf(MetaGuid(buf.ReadGuid())), nil
	case WireString:
		s, err := buf.ReadString(maxString)
		if err != nil {
			return reflect.Value{}, err
		}
		return reflect.ValueOf(s), nil
	case WireBytes:
		b, err := buf.ReadBytes(maxBytes)
		if err != nil {
			return reflect.Value{}, err
		}
		return reflect.ValueOf(b), nil
	}
	return reflect.Value{}, &IntegrityError{Reason: "readPrimitive: unsupported wire kind " + kind.String()}
}

// writeNullablePrimitive writes the one-byte presence flag of spec
// §4.A, followed by the primitive payload if present.
func writeNullablePrimitive(buf *ByteBuffer, present bool, v reflect.Value, kind WireKind) {
	if !present {
		buf.WriteByte_(nullableAbsentFlag)
		return
	}
	buf.WriteByte_(nullablePresentFlag)
	writePrimitive(buf, v, kind)
}

func readNullablePrimitive(buf *ByteBuffer, kind WireKind, goType reflect.Type, maxString, maxBytes int) (reflect.Value, bool, error) {
	flag := buf.ReadByte_()
	switch flag {
	case nullableAbsentFlag:
		return reflect.Value{}, false, nil
	case nullablePresentFlag:
		v, err := readPrimitive(buf, kind, goType, maxString, maxBytes)
		return v, true, err
	default:
		return reflect.Value{}, false, &IntegrityError{Reason: "non-null-flag byte other than 0 or 2"}
	}
}

// writeCollectionHeader writes a ValueCollection header: length (-1 for
// null, >=0 otherwise) and element WireKind byte.
func writeCollectionHeader(buf *ByteBuffer, count int, elemKind WireKind) {
	buf.WriteVarInt32(int32(count))
	buf.WriteByte_(byte(elemKind))
}

// readCollectionHeader returns count (-1 means null) and the on-wire
// element kind, enforcing the bound before any allocation (spec §4.A
// "Bounded read policy").
func readCollectionHeader(buf *ByteBuffer, max int) (count int, elemKind WireKind, err error) {
	n := buf.ReadVarInt32()
	if n < -1 {
		return 0, 0, &IntegrityError{Reason: "negative collection count other than -1"}
	}
	if n != -1 && max > 0 && int(n) > max {
		return 0, 0, &BoundExceeded{Kind: "collection", Limit: max, Got: int(n)}
	}
	// The element kind byte is present even for a null collection, so it
	// must be consumed either way to keep the stream aligned.
	kind := WireKind(buf.ReadByte_())
	return int(n), kind, nil
}

func writeMapHeader(buf *ByteBuffer, count int, keyKind, valKind WireKind) {
	buf.WriteVarInt32(int32(count))
	buf.WriteByte_(byte(keyKind))
	buf.WriteByte_(byte(valKind))
}

func readMapHeader(buf *ByteBuffer, max int) (count int, keyKind, valKind WireKind, err error) {
	n := buf.ReadVarInt32()
	if n < -1 {
		return 0, 0, 0, &IntegrityError{Reason: "negative collection count other than -1"}
	}
	if n != -1 && max > 0 && int(n) > max {
		return 0, 0, 0, &BoundExceeded{Kind: "map", Limit: max, Got: int(n)}
	}
	kk := WireKind(buf.ReadByte_())
	vk := WireKind(buf.ReadByte_())
	return int(n), kk, vk, nil
}
