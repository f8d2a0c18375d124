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

// DescKind is the TypeDescriptor's semantic kind (spec §3's "wire_kind"
// field on TypeDescriptor). It is distinct from WireKind, which is the
// single tag byte actually written on the wire: several DescKinds share
// a WireKind (Enum and DynamicEnum both write WireVarInt, for example).
type DescKind uint8

const (
	KindPrimitive DescKind = iota
	KindNullablePrimitive
	KindString
	KindBytes
	KindEnum
	KindNullableEnum
	KindStringId
	KindDynamicEnum
	KindValueCollection
	KindKeyValueCollection
	KindStruct
	KindNullableStruct
	KindAbstractStruct
	KindConfigData
	KindConfigRef
	KindConfigDataContent
	KindTuple
)

// MemberFlags is the member-level bitmask of spec §3.
type MemberFlags uint32

const (
	FlagNone                 MemberFlags = 0
	FlagHidden               MemberFlags = 1 << 0
	FlagNoChecksum           MemberFlags = 1 << 1
	FlagExcludeFromGameState MemberFlags = 1 << 2
)

func (f MemberFlags) Has(flag MemberFlags) bool { return f&flag != 0 }

// VersionWindow is a half-open [AddedIn, RemovedIn) logic-version range.
// RemovedIn == 0 means "never removed".
type VersionWindow struct {
	AddedIn   int
	RemovedIn int
}

func (w VersionWindow) includes(logicVersion int) bool {
	if logicVersion < w.AddedIn {
		return false
	}
	if w.RemovedIn != 0 && logicVersion >= w.RemovedIn {
		return false
	}
	return true
}

// TagRange is a half-open [Start, End) interval of tag ids.
type TagRange struct {
	Start, End int32
}

func (r TagRange) contains(tag int32) bool { return tag >= r.Start && tag < r.End }

func rangesOverlap(a, b TagRange) bool {
	return a.Start < b.End && b.Start < a.End
}

// FailureParams is passed to a member's declared substitute producer
// when decoding that member fails (spec §3 "on-failure substitute
// producer", §7 MemberDeserializationError).
type FailureParams struct {
	Member   string
	RawBytes []byte
	Cause    error
}

// SubstituteSpec wraps a static `func(FailureParams) T` resolved via
// reflection, where T is assignable to the member's Go type.
type SubstituteSpec struct {
	Fn reflect.Value
}

func (s *SubstituteSpec) produce(params FailureParams) reflect.Value {
	out := s.Fn.Call([]reflect.Value{reflect.ValueOf(params)})
	return out[0]
}

// ConverterSpec lets a member accept an alternate wire kind. Source is
// decoded in its own source type, then Convert maps it to the member's
// declared type. Spec's Open Question on converter chaining is resolved
// as "no chaining": only one converter level is ever applied (see
// DESIGN.md).
type ConverterSpec struct {
	From    WireKind
	Convert reflect.Value // func(source) (target, error)
}

// ConstructorSpec drives "collect members to locals, then construct"
// deserialization, used for tuples, member-override tables, and any
// type explicitly declared constructor-based.
type ConstructorSpec struct {
	Fn         reflect.Value
	ParamNames []string // case-insensitively matched against member names, in parameter order
}

// MemberDescriptor is one field of a concrete record type.
type MemberDescriptor struct {
	TagID         int32
	Name          string
	DeclaringType string
	FieldIndex    []int
	GoType        reflect.Type
	Desc          *TypeDescriptor
	Flags         MemberFlags
	Window        *VersionWindow // nil = no version gating
	MaxCollection int            // 0 = no member bound; falls back to context max
	Substitute    *SubstituteSpec
	Converters    []*ConverterSpec
	getter        func(reflect.Value) reflect.Value
	setter        func(reflect.Value, reflect.Value)
}

func (m *MemberDescriptor) converterFor(kind WireKind) *ConverterSpec {
	for _, c := range m.Converters {
		if c.From == kind {
			return c
		}
	}
	return nil
}

// TypeDescriptor is the frozen, registry-owned description of one
// serializable type (spec §3).
type TypeDescriptor struct {
	Name     string
	GoType   reflect.Type
	Kind     DescKind
	TypeCode int32

	Members     []*MemberDescriptor
	memberByTag map[int32]*MemberDescriptor

	IsAbstractRoot bool
	DerivedTypes   map[int32]*TypeDescriptor
	BaseRoot       *TypeDescriptor

	OnDeserializedHooks []hookSpec
	Constructor         *ConstructorSpec

	// Factory reconstructs a KindStringId/KindDynamicEnum value from its
	// wire identity: func(string) (T, error) or func(int64) (T, error).
	Factory reflect.Value

	UsesImplicitMembers bool
	ImplicitRange       TagRange
	ReservedRanges      []TagRange
	BlockedRanges       []TagRange
	AllowNonReserved    bool

	ConfigNullSentinelKey interface{}
	KeyDesc               *TypeDescriptor
	ElemDesc              *TypeDescriptor
	ValueDesc             *TypeDescriptor

	EnumValues map[int64]string

	IsPublic bool

	// isConfigData marks a KindStruct descriptor as also being a keyed
	// configuration item (spec Glossary "ConfigData"); the wire shape is
	// identical to an ordinary struct, only KeyDesc/ConfigNullSentinelKey
	// and ConfigRef-ability hinge on it.
	isConfigData bool

	// hasConfigRef memoizes the §4.C reachability check result once the
	// full descriptor graph is frozen.
	hasConfigRef bool
}

// IsConfigData reports whether t was registered via Builder.ConfigData.
func (t *TypeDescriptor) IsConfigData() bool { return t.isConfigData }

// HasConfigRef reports whether a ConfigRef is reachable anywhere beneath
// t in the descriptor graph (spec §4.C reachability check; memoized by
// the scanner and consulted by traverse_refs).
func (t *TypeDescriptor) HasConfigRef() bool { return t.hasConfigRef }

type hookSpec struct {
	Fn          reflect.Value
	WantsContext bool
}

func (t *TypeDescriptor) memberForTag(tag int32) (*MemberDescriptor, bool) {
	m, ok := t.memberByTag[tag]
	return m, ok
}

// CanonicalWireKind maps a descriptor's semantic Kind (and, for
// primitives, its Go type) to the byte actually written on the wire.
func (t *TypeDescriptor) CanonicalWireKind() WireKind {
	switch t.Kind {
	case KindPrimitive:
		return primitiveWireKind(t.GoType)
	case KindNullablePrimitive:
		return nullableWireKindFor(t.ElemDesc.CanonicalWireKind())
	case KindString, KindStringId:
		return WireString
	case KindBytes:
		return WireBytes
	case KindEnum, KindDynamicEnum:
		return WireVarInt
	case KindNullableEnum:
		return WireNullableVarInt
	case KindValueCollection:
		return WireValueCollection
	case KindKeyValueCollection:
		return WireKeyValueCollection
	case KindStruct, KindTuple:
		return WireStruct
	case KindNullableStruct:
		return WireNullableStruct
	case KindAbstractStruct:
		return WireAbstractStruct
	case KindConfigDataContent:
		// Transparent wrapper: the wire form is whatever the contained
		// type's own form is, not a wrapper kind of its own (spec §4.C
		// rule 6 "materialized on demand").
		if t.ElemDesc != nil {
			return t.ElemDesc.CanonicalWireKind()
		}
		return WireInvalid
	case KindConfigRef:
		if t.KeyDesc != nil {
			return t.KeyDesc.CanonicalWireKind()
		}
		return WireInvalid
	}
	return WireInvalid
}

func nullableWireKindFor(primitive WireKind) WireKind {
	switch primitive {
	case WireVarInt:
		return WireNullableVarInt
	case WireVarInt128:
		return WireNullableVarInt128
	case WireF32:
		return WireNullableF32
	case WireF32Vec2:
		return WireNullableF32Vec2
	case WireF32Vec3:
		return WireNullableF32Vec3
	case WireF64:
		return WireNullableF64
	case WireF64Vec2:
		return WireNullableF64Vec2
	case WireF64Vec3:
		return WireNullableF64Vec3
	case WireFloat32:
		return WireNullableFloat32
	case WireFloat64:
		return WireNullableFloat64
	case WireMetaGuid:
		return WireNullableMetaGuid
	default:
		return WireInvalid
	}
}
