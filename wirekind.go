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

// WireKind identifies the structure of the payload that follows a tag
// byte on the wire (spec §6). EndStruct is pinned to 0 by spec §4.A/§6
// ("terminated by <EndStruct=0>"); every other kind keeps the relative
// order the spec's enumeration lists them in. See DESIGN.md for why
// EndStruct is special-cased instead of following naive sequential
// numbering of the listed order.
type WireKind uint8

const (
	WireEndStruct WireKind = iota // pinned to 0 per spec §4.A/§6
	WireNull
	WireVarInt
	WireVarInt128
	WireF32
	WireF32Vec2
	WireF32Vec3
	WireF64
	WireF64Vec2
	WireF64Vec3
	WireFloat32
	WireFloat64
	WireString
	WireBytes
	WireMetaGuid
	WireAbstractStruct
	WireNullableStruct
	WireStruct
	WireValueCollection
	WireKeyValueCollection
	WireNullableVarInt
	WireNullableVarInt128
	WireNullableF32
	WireNullableF32Vec2
	WireNullableF32Vec3
	WireNullableF64
	WireNullableF64Vec2
	WireNullableF64Vec3
	WireNullableFloat32
	WireNullableFloat64
	WireNullableMetaGuid
	WireObjectTable
	WireInvalid
)

var wireKindNames = map[WireKind]string{
	WireEndStruct:          "EndStruct",
	WireNull:                "Null",
	WireVarInt:              "VarInt",
	WireVarInt128:           "VarInt128",
	WireF32:                 "F32",
	WireF32Vec2:             "F32Vec2",
	WireF32Vec3:             "F32Vec3",
	WireF64:                 "F64",
	WireF64Vec2:             "F64Vec2",
	WireF64Vec3:             "F64Vec3",
	WireFloat32:             "Float32",
	WireFloat64:             "Float64",
	WireString:              "String",
	WireBytes:               "Bytes",
	WireMetaGuid:            "MetaGuid",
	WireAbstractStruct:      "AbstractStruct",
	WireNullableStruct:      "NullableStruct",
	WireStruct:              "Struct",
	WireValueCollection:     "ValueCollection",
	WireKeyValueCollection:  "KeyValueCollection",
	WireNullableVarInt:      "NullableVarInt",
	WireNullableVarInt128:   "NullableVarInt128",
	WireNullableF32:         "NullableF32",
	WireNullableF32Vec2:     "NullableF32Vec2",
	WireNullableF32Vec3:     "NullableF32Vec3",
	WireNullableF64:         "NullableF64",
	WireNullableF64Vec2:     "NullableF64Vec2",
	WireNullableF64Vec3:     "NullableF64Vec3",
	WireNullableFloat32:     "NullableFloat32",
	WireNullableFloat64:     "NullableFloat64",
	WireNullableMetaGuid:    "NullableMetaGuid",
	WireObjectTable:         "ObjectTable",
	WireInvalid:             "Invalid",
}

func (k WireKind) String() string {
	if s, ok := wireKindNames[k]; ok {
		return s
	}
	return "Unknown"
}

// nullablePresentFlag/nullableAbsentFlag implement the one-byte nullable
// primitive presence encoding of spec §4.A: chosen so that a raw `true`
// (encoded as -1 in some source languages' bool byte) still round-trips
// rather than colliding with either sentinel.
const (
	nullableAbsentFlag  byte = 0
	nullablePresentFlag byte = 2
)
