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
	"strconv"
	"strings"
)

// Builder is the caller-facing half of the Schema Scanner (spec §9
// "Attribute-driven registration" redesign, option (b)): since Go has
// no attribute system, type-level metadata that would live on the
// class itself in the reference implementation (type code, reserved
// ranges, base type, constructor, hooks, converters, substitutes) is
// supplied here in one explicit startup pass. Per-member metadata
// (tag id, flags, version window, max size) still lives where it
// naturally belongs in Go: a struct tag on the field.
type Builder struct {
	publicPrefixes []string
	plans          []*typePlan
	byGoType       map[reflect.Type]*typePlan
}

type typePlan struct {
	goType   reflect.Type
	name     string
	kind     DescKind
	abstract bool
	typeCode int32
	baseType reflect.Type

	usesImplicitMembers bool
	implicitRange        TagRange
	reservedRanges        []TagRange
	blockedRanges          []TagRange
	allowNonReserved       bool

	constructor         *ConstructorSpec
	hookNames           []string
	sentinelKey         interface{}
	sentinelKeySet      bool
	substitutes         map[string]*SubstituteSpec
	converters          map[string][]*ConverterSpec

	enumValues map[string]int64 // declared name -> value, for KindEnum
	keyField   string           // for KindConfigData: the member naming the key
	factory    reflect.Value    // for KindStringId/KindDynamicEnum: func(id) (T, error)
}

// NewBuilder starts a registration pass. publicPrefixes are namespace
// prefixes that make a type (and, transitively, its reachable member
// types) "public" for protocol-hash purposes (spec §4.C "Public
// propagation").
func NewBuilder(publicPrefixes ...string) *Builder {
	return &Builder{
		publicPrefixes: publicPrefixes,
		byGoType:       make(map[reflect.Type]*typePlan),
	}
}

func (b *Builder) planFor(goType reflect.Type) *typePlan {
	if p, ok := b.byGoType[goType]; ok {
		return p
	}
	p := &typePlan{goType: goType}
	b.byGoType[goType] = p
	b.plans = append(b.plans, p)
	return p
}

// StructOption configures a concrete or abstract record type.
type StructOption func(*typePlan)

func WithTypeCode(code int32) StructOption {
	return func(p *typePlan) { p.typeCode = code }
}

func WithBase(abstractGoType interface{}) StructOption {
	return func(p *typePlan) { p.baseType = dereferencedType(reflect.TypeOf(abstractGoType)) }
}

func WithImplicitMembers(start, end int32) StructOption {
	return func(p *typePlan) {
		p.usesImplicitMembers = true
		p.implicitRange = TagRange{Start: start, End: end}
	}
}

func WithReservedRange(start, end int32) StructOption {
	return func(p *typePlan) { p.reservedRanges = append(p.reservedRanges, TagRange{start, end}) }
}

func WithBlockedRange(start, end int32) StructOption {
	return func(p *typePlan) { p.blockedRanges = append(p.blockedRanges, TagRange{start, end}) }
}

func WithAllowNonReserved() StructOption {
	return func(p *typePlan) { p.allowNonReserved = true }
}

// WithConstructor declares deserialization-constructor-based decoding:
// fn's parameter names (via paramNames, since Go doesn't preserve
// parameter names at runtime) are matched case-insensitively against
// member names.
func WithConstructor(fn interface{}, paramNames ...string) StructOption {
	return func(p *typePlan) {
		p.constructor = &ConstructorSpec{Fn: reflect.ValueOf(fn), ParamNames: paramNames}
	}
}

// WithOnDeserialized registers hook method names, resolved at scan time
// (spec §4.C "On-deserialized hooks"). Hooks run in the order their
// names are listed on this type; hooks listed on an embedded type's own
// registration are not collected.
func WithOnDeserialized(methodNames ...string) StructOption {
	return func(p *typePlan) { p.hookNames = append(p.hookNames, methodNames...) }
}

func WithConfigNullSentinelKey(key interface{}) StructOption {
	return func(p *typePlan) {
		p.sentinelKey = key
		p.sentinelKeySet = true
	}
}

// WithSubstitute declares `func(FailureParams) T` as the recovery value
// producer for memberName (spec §3, §4.C "On-member-failure
// substitution").
func WithSubstitute(memberName string, fn interface{}) StructOption {
	return func(p *typePlan) {
		if p.substitutes == nil {
			p.substitutes = map[string]*SubstituteSpec{}
		}
		p.substitutes[memberName] = &SubstituteSpec{Fn: reflect.ValueOf(fn)}
	}
}

// WithConverter declares that memberName additionally accepts payloads
// written with wire kind `from`, converted via fn (spec §4.A "Wire-type
// extensibility"). Only one converter level is ever applied — chaining
// a converter's output into a further converter is not supported (spec
// §9 Open Question, resolved in DESIGN.md).
func WithConverter(memberName string, from WireKind, fn interface{}) StructOption {
	return func(p *typePlan) {
		if p.converters == nil {
			p.converters = map[string][]*ConverterSpec{}
		}
		p.converters[memberName] = append(p.converters[memberName], &ConverterSpec{From: from, Convert: reflect.ValueOf(fn)})
	}
}

// Struct registers a concrete record type.
func (b *Builder) Struct(goType interface{}, name string, opts ...StructOption) *Builder {
	t := dereferencedType(reflect.TypeOf(goType))
	p := b.planFor(t)
	p.name = name
	p.kind = KindStruct
	for _, o := range opts {
		o(p)
	}
	return b
}

// Abstract registers an abstract root: goType must be an interface
// value, e.g. `(*MyInterface)(nil)`.
func (b *Builder) Abstract(goTypePtr interface{}, name string, opts ...StructOption) *Builder {
	t := reflect.TypeOf(goTypePtr).Elem()
	p := b.planFor(t)
	p.name = name
	p.kind = KindAbstractStruct
	p.abstract = true
	for _, o := range opts {
		o(p)
	}
	return b
}

// Tuple registers a fixed-arity tuple type: every exported field
// becomes an implicit member (tag ids 1..n, in field order), and
// constructor-based deserialization is mandatory (spec §4.C rule 9).
// At most 7 elements are allowed.
func (b *Builder) Tuple(goType interface{}, name string, ctor interface{}, paramNames ...string) *Builder {
	t := dereferencedType(reflect.TypeOf(goType))
	p := b.planFor(t)
	p.name = name
	p.kind = KindTuple
	p.usesImplicitMembers = true
	p.implicitRange = TagRange{Start: 1, End: int32(t.NumField() + 1)}
	p.constructor = &ConstructorSpec{Fn: reflect.ValueOf(ctor), ParamNames: paramNames}
	return b
}

// Enum registers a fixed, closed-set enum type (spec §4.C rule 8). All
// declared element values must be distinct; the scanner enforces this.
func (b *Builder) Enum(goType interface{}, name string, values map[string]int64) *Builder {
	t := dereferencedType(reflect.TypeOf(goType))
	p := b.planFor(t)
	p.name = name
	p.kind = KindEnum
	p.enumValues = values
	return b
}

// ConfigData registers a concrete struct type as a keyed configuration
// item (spec Glossary "ConfigData"): keyField names the member whose
// declared type is the key type. Either the key type must be nullable
// (a pointer) or WithConfigNullSentinelKey must be supplied.
func (b *Builder) ConfigData(goType interface{}, name string, keyField string, opts ...StructOption) *Builder {
	t := dereferencedType(reflect.TypeOf(goType))
	p := b.planFor(t)
	p.name = name
	p.kind = KindConfigData
	p.keyField = keyField
	for _, o := range opts {
		o(p)
	}
	return b
}

// StringId registers a StringIdentified-capability type (spec §4.C rule
// 2); factory reconstructs a value from its wire string and has
// signature func(string) (T, error).
func (b *Builder) StringId(goType interface{}, name string, factory interface{}) *Builder {
	t := dereferencedType(reflect.TypeOf(goType))
	p := b.planFor(t)
	p.name = name
	p.kind = KindStringId
	p.factory = reflect.ValueOf(factory)
	return b
}

// DynamicEnum registers a DynamicEnumerator-capability type (spec §4.C
// rule 3); factory reconstructs a value from its wire id and has
// signature func(int64) (T, error).
func (b *Builder) DynamicEnum(goType interface{}, name string, factory interface{}) *Builder {
	t := dereferencedType(reflect.TypeOf(goType))
	p := b.planFor(t)
	p.name = name
	p.kind = KindDynamicEnum
	p.factory = reflect.ValueOf(factory)
	return b
}

func dereferencedType(t reflect.Type) reflect.Type {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t
}

// parsedTag is the decoded form of a `ws:"..."` struct tag.
type parsedTag struct {
	skip      bool
	tagID     int32
	hasTagID  bool
	flags     MemberFlags
	window    *VersionWindow
	maxSize   int
}

func parseMemberTag(raw string) parsedTag {
	var pt parsedTag
	if raw == "-" {
		pt.skip = true
		return pt
	}
	if raw == "" {
		return pt
	}
	for _, tok := range strings.Split(raw, ",") {
		tok = strings.TrimSpace(tok)
		switch {
		case tok == "hidden":
			pt.flags |= FlagHidden
		case tok == "noChecksum":
			pt.flags |= FlagNoChecksum
		case tok == "excludeFromGameState":
			pt.flags |= FlagExcludeFromGameState
		case strings.HasPrefix(tok, "tag="):
			n, _ := strconv.Atoi(strings.TrimPrefix(tok, "tag="))
			pt.tagID = int32(n)
			pt.hasTagID = true
		case strings.HasPrefix(tok, "added="):
			n, _ := strconv.Atoi(strings.TrimPrefix(tok, "added="))
			if pt.window == nil {
				pt.window = &VersionWindow{}
			}
			pt.window.AddedIn = n
		case strings.HasPrefix(tok, "removed="):
			n, _ := strconv.Atoi(strings.TrimPrefix(tok, "removed="))
			if pt.window == nil {
				pt.window = &VersionWindow{}
			}
			pt.window.RemovedIn = n
		case strings.HasPrefix(tok, "max="):
			n, _ := strconv.Atoi(strings.TrimPrefix(tok, "max="))
			pt.maxSize = n
		}
	}
	return pt
}
