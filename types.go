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
	"time"
)

// F32 and F64 are deterministic fixed-point numbers: Q16.16 and Q32.32
// respectively, stored as their raw signed numerator. Unlike native
// float32/float64 they round-trip identically across platforms and
// languages, which is why spec §4.A lists them as primitives distinct
// from IEEE-754 floats.
type F32 int32
type F64 int64

const (
	f32Frac = 16
	f64Frac = 32
)

func NewF32(v float64) F32 { return F32(v * (1 << f32Frac)) }
func (f F32) Float64() float64 { return float64(f) / (1 << f32Frac) }

func NewF64(v float64) F64 { return F64(v * (1 << f64Frac)) }
func (f F64) Float64() float64 { return float64(f) / (1 << f64Frac) }

// F32Vec2/F32Vec3/F64Vec2/F64Vec3 are the fixed-width vector built-ins
// of spec §4.A. They are plain structs so domain models can embed them
// directly as fields.
type F32Vec2 struct{ X, Y float32 }
type F32Vec3 struct{ X, Y, Z float32 }
type F64Vec2 struct{ X, Y float64 }
type F64Vec3 struct{ X, Y, Z float64 }

// MetaGuid is the 16-byte fixed-width GUID built-in.
type MetaGuid [16]byte

var (
	boolType  = reflect.TypeOf(false)
	int8Type  = reflect.TypeOf(int8(0))
	int16Type = reflect.TypeOf(int16(0))
	int32Type = reflect.TypeOf(int32(0))
	int64Type = reflect.TypeOf(int64(0))
	intType   = reflect.TypeOf(int(0))

	uint8Type  = reflect.TypeOf(uint8(0))
	uint16Type = reflect.TypeOf(uint16(0))
	uint32Type = reflect.TypeOf(uint32(0))
	uint64Type = reflect.TypeOf(uint64(0))
	uintType   = reflect.TypeOf(uint(0))

	float32Type = reflect.TypeOf(float32(0))
	float64Type = reflect.TypeOf(float64(0))

	f32Type = reflect.TypeOf(F32(0))
	f64Type = reflect.TypeOf(F64(0))

	stringType = reflect.TypeOf("")
	byteSliceType = reflect.TypeOf([]byte(nil))

	f32vec2Type = reflect.TypeOf(F32Vec2{})
	f32vec3Type = reflect.TypeOf(F32Vec3{})
	f64vec2Type = reflect.TypeOf(F64Vec2{})
	f64vec3Type = reflect.TypeOf(F64Vec3{})
	metaGuidType = reflect.TypeOf(MetaGuid{})

	durationType = reflect.TypeOf(time.Duration(0))
)

// primitiveWireKind maps a Go primitive/built-in type to its wire tag
// byte (spec §4.A). Returns WireInvalid for anything not a recognized
// built-in.
func primitiveWireKind(t reflect.Type) WireKind {
	switch t {
	case boolType:
		// bool shares VarInt's zigzag encoding: true is stored as the
		// raw value -1 (zigzag byte 0x01), false as 0 (zigzag byte
		// 0x00) — the scheme spec §4.A alludes to when it says the
		// nullable-primitive presence flag is "chosen so that raw
		// true(-1) also round-trips" against the 0/2 flag bytes.
		return WireVarInt
	case int8Type, int16Type, int32Type, int64Type, intType,
		uint8Type, uint16Type, uint32Type, uint64Type, uintType,
		durationType:
		return WireVarInt
	case float32Type:
		return WireFloat32
	case float64Type:
		return WireFloat64
	case f32Type:
		return WireF32
	case f64Type:
		return WireF64
	case f32vec2Type:
		return WireF32Vec2
	case f32vec3Type:
		return WireF32Vec3
	case f64vec2Type:
		return WireF64Vec2
	case f64vec3Type:
		return WireF64Vec3
	case metaGuidType:
		return WireMetaGuid
	case stringType:
		return WireString
	case byteSliceType:
		return WireBytes
	}
	return WireInvalid
}

func isBuiltinPrimitive(t reflect.Type) bool {
	return primitiveWireKind(t) != WireInvalid
}
