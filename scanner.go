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
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// scanner is the Schema Scanner (spec §2 Component C): it walks the
// types declared through a Builder, builds a TypeDescriptor for each,
// and validates the whole schema before the Registry is allowed to
// exist. It runs once, single-threaded, at startup (spec §5).
type scanner struct {
	b          *Builder
	byGoType   map[reflect.Type]*TypeDescriptor
	building   map[reflect.Type]*TypeDescriptor
	reachMemo  map[reachKey]bool
	roots      []reflect.Type // abstract roots discovered, for linkDerivedTypes
}

// reachKey keys the reachability memo: the type's structural
// fingerprint plus whether it was entered as a ConfigData root.
type reachKey struct {
	fp     uint64
	isRoot bool
}

// RegisterAll runs the Schema Scanner over everything declared on b and
// returns a frozen Registry, or the first schema error encountered
// (a *SchemaError or a *DuplicateTypeCode)
// (spec §6 "register_all").
func RegisterAll(b *Builder) (*Registry, error) {
	s := &scanner{
		b:         b,
		byGoType:  map[reflect.Type]*TypeDescriptor{},
		building:  map[reflect.Type]*TypeDescriptor{},
		reachMemo: map[reachKey]bool{},
	}
	for _, p := range b.plans {
		if _, err := s.resolve(p.goType); err != nil {
			return nil, err
		}
	}
	if err := s.linkDerivedTypes(); err != nil {
		return nil, err
	}
	s.propagatePublic(b.publicPrefixes)
	if err := s.checkReachability(); err != nil {
		return nil, err
	}

	all := make([]*TypeDescriptor, 0, len(s.byGoType))
	for _, d := range s.byGoType {
		all = append(all, d)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Name < all[j].Name })

	for _, d := range all {
		if (d.Kind == KindStruct || d.Kind == KindTuple) && len(d.Members) == 0 {
			logSchemaWarning("tagserde: %s registered with zero serializable members", d.Name)
		}
	}

	reg := &Registry{
		byName: map[string]*TypeDescriptor{},
		byType: map[reflect.Type]*TypeDescriptor{},
		all:    all,
	}
	for _, d := range all {
		reg.byName[d.Name] = d
		reg.byType[d.GoType] = d
	}
	reg.hash = computeProtocolHash(all)
	return reg, nil
}

func (s *scanner) resolve(t reflect.Type) (*TypeDescriptor, error) {
	if d, ok := s.byGoType[t]; ok {
		return d, nil
	}
	if d, ok := s.building[t]; ok {
		return d, nil // cyclic member graph: return the in-flight placeholder (spec §9)
	}

	if isBuiltinPrimitive(t) {
		d := &TypeDescriptor{Name: builtinName(t), GoType: t, Kind: kindForBuiltin(t)}
		s.byGoType[t] = d
		return d, nil
	}

	if t.Kind() == reflect.Ptr {
		return s.resolveNullable(t)
	}

	if isConfigRefType(t) {
		return s.resolveConfigRef(t)
	}
	if isConfigDataContentType(t) {
		return s.resolveConfigDataContent(t)
	}

	p := s.b.byGoType[t]

	if implementsStringIdentified(t) {
		if p == nil {
			return nil, newSchemaError(t.String(), "StringId type requires registration (missing serializable annotation)", nil)
		}
		d := &TypeDescriptor{Name: p.name, GoType: t, Kind: KindStringId, Factory: p.factory}
		s.byGoType[t] = d
		return d, nil
	}

	if implementsDynamicEnumerator(t) {
		if p == nil {
			return nil, newSchemaError(t.String(), "DynamicEnum type requires registration (missing serializable annotation)", nil)
		}
		d := &TypeDescriptor{Name: p.name, GoType: t, Kind: KindDynamicEnum, Factory: p.factory}
		s.byGoType[t] = d
		return d, nil
	}

	switch t.Kind() {
	case reflect.Slice, reflect.Array:
		elemDesc, err := s.resolve(t.Elem())
		if err != nil {
			return nil, err
		}
		d := &TypeDescriptor{Name: "[]" + elemDesc.Name, GoType: t, Kind: KindValueCollection, ElemDesc: elemDesc}
		s.byGoType[t] = d
		return d, nil
	case reflect.Map:
		keyDesc, err := s.resolve(t.Key())
		if err != nil {
			return nil, err
		}
		valDesc, err := s.resolve(t.Elem())
		if err != nil {
			return nil, err
		}
		d := &TypeDescriptor{Name: "map[" + keyDesc.Name + "]" + valDesc.Name, GoType: t, Kind: KindKeyValueCollection, KeyDesc: keyDesc, ValueDesc: valDesc}
		s.byGoType[t] = d
		return d, nil
	}

	if p != nil && p.kind == KindEnum {
		return s.resolveEnum(t, p)
	}

	if t.Kind() == reflect.Interface {
		if p == nil || !p.abstract {
			return nil, newSchemaError(t.String(), "interface used polymorphically must be registered via Builder.Abstract", nil)
		}
		return s.resolveAbstractRoot(t, p)
	}

	if t.Kind() == reflect.Struct {
		if p == nil {
			return nil, newSchemaError(t.String(), "struct type not registered; annotate via Builder.Struct/ConfigData/Tuple", nil)
		}
		return s.resolveRecord(t, p)
	}

	return nil, newSchemaError(t.String(), "unsupported type for serialization", nil)
}

func (s *scanner) resolveNullable(t reflect.Type) (*TypeDescriptor, error) {
	elemDesc, err := s.resolve(t.Elem())
	if err != nil {
		return nil, err
	}
	d := &TypeDescriptor{Name: "Nullable<" + elemDesc.Name + ">", GoType: t, ElemDesc: elemDesc}
	switch elemDesc.Kind {
	case KindPrimitive:
		d.Kind = KindNullablePrimitive
	case KindEnum, KindDynamicEnum:
		d.Kind = KindNullableEnum
	default:
		d.Kind = KindNullableStruct
	}
	s.byGoType[t] = d
	return d, nil
}

func (s *scanner) resolveConfigRef(t reflect.Type) (*TypeDescriptor, error) {
	itemT := configRefItemType(t)
	itemDesc, err := s.resolve(itemT)
	if err != nil {
		return nil, err
	}
	if !itemDesc.IsConfigData() {
		return nil, newSchemaError(t.String(), "ConfigRef item type is not registered as ConfigData: "+itemDesc.Name, nil)
	}
	d := &TypeDescriptor{Name: "ConfigRef<" + itemDesc.Name + ">", GoType: t, Kind: KindConfigRef, ElemDesc: itemDesc, KeyDesc: itemDesc.KeyDesc}
	// A ref trivially reaches itself; without this the traverse-refs
	// short-circuit would skip the ref member it exists to visit.
	d.hasConfigRef = true
	s.byGoType[t] = d
	return d, nil
}

func (s *scanner) resolveConfigDataContent(t reflect.Type) (*TypeDescriptor, error) {
	valT := configDataContentValueType(t)
	valDesc, err := s.resolve(valT)
	if err != nil {
		return nil, err
	}
	d := &TypeDescriptor{Name: "ConfigDataContent<" + valDesc.Name + ">", GoType: t, Kind: KindConfigDataContent, ElemDesc: valDesc}
	s.byGoType[t] = d
	return d, nil
}

func (s *scanner) resolveEnum(t reflect.Type, p *typePlan) (*TypeDescriptor, error) {
	seen := map[int64]string{}
	for name, v := range p.enumValues {
		if prev, ok := seen[v]; ok {
			return nil, newSchemaError(p.name, fmt.Sprintf("enum values must be distinct: %q and %q both equal %d", prev, name, v), nil)
		}
		seen[v] = name
	}
	d := &TypeDescriptor{Name: p.name, GoType: t, Kind: KindEnum, EnumValues: seen}
	s.byGoType[t] = d
	return d, nil
}

func (s *scanner) resolveAbstractRoot(t reflect.Type, p *typePlan) (*TypeDescriptor, error) {
	d := &TypeDescriptor{
		Name:           p.name,
		GoType:         t,
		Kind:           KindAbstractStruct,
		IsAbstractRoot: true,
		DerivedTypes:   map[int32]*TypeDescriptor{},
	}
	s.byGoType[t] = d
	s.roots = append(s.roots, t)
	return d, nil
}

// recordBuildCtx accumulates state while walking a concrete record
// type's embedding chain (spec §4.C "Member resolution" treats Go's
// struct embedding as the ancestor chain, base-most first, since Go has
// no class inheritance).
type recordBuildCtx struct {
	allMembers     []*MemberDescriptor
	usedTags       map[int32]string
	usedNames      map[string]bool
	reservedRanges []TagRange
	blockedRanges  []TagRange
}

func (s *scanner) resolveRecord(t reflect.Type, p *typePlan) (*TypeDescriptor, error) {
	d := &TypeDescriptor{
		GoType:                t,
		Name:                  p.name,
		UsesImplicitMembers:   p.usesImplicitMembers,
		ImplicitRange:         p.implicitRange,
		AllowNonReserved:      p.allowNonReserved,
		ConfigNullSentinelKey: p.sentinelKey,
	}
	switch p.kind {
	case KindTuple:
		d.Kind = KindTuple
	default:
		d.Kind = KindStruct
	}
	s.building[t] = d

	ctx := &recordBuildCtx{usedTags: map[int32]string{}, usedNames: map[string]bool{}}
	if err := s.collectMembers(t, p, ctx, nil); err != nil {
		delete(s.building, t)
		if se, ok := err.(*SchemaError); ok {
			return nil, se.wrap(p.name)
		}
		return nil, newSchemaError(p.name, "member resolution failed", err)
	}

	for i := 0; i < len(ctx.reservedRanges); i++ {
		for j := i + 1; j < len(ctx.reservedRanges); j++ {
			if rangesOverlap(ctx.reservedRanges[i], ctx.reservedRanges[j]) {
				delete(s.building, t)
				return nil, newSchemaError(p.name, "reserved ranges overlap between ancestors", nil)
			}
		}
	}

	sort.Slice(ctx.allMembers, func(i, j int) bool { return ctx.allMembers[i].TagID < ctx.allMembers[j].TagID })
	d.Members = ctx.allMembers
	d.memberByTag = map[int32]*MemberDescriptor{}
	for _, m := range d.Members {
		d.memberByTag[m.TagID] = m
	}

	if p.kind == KindConfigData {
		d.isConfigData = true
		if p.keyField == "" {
			delete(s.building, t)
			return nil, newSchemaError(p.name, "ConfigData requires a key field", nil)
		}
		var keyMember *MemberDescriptor
		for _, m := range d.Members {
			if m.Name == p.keyField {
				keyMember = m
			}
		}
		if keyMember == nil {
			delete(s.building, t)
			return nil, newSchemaError(p.name, "ConfigData key field not found among members: "+p.keyField, nil)
		}
		d.KeyDesc = keyMember.Desc
		if d.KeyDesc.Kind != KindNullablePrimitive && d.KeyDesc.Kind != KindNullableStruct && !p.sentinelKeySet {
			delete(s.building, t)
			return nil, newSchemaError(p.name, "ConfigData key type is not nullable and no sentinel key declared", nil)
		}
	}

	if p.constructor != nil {
		d.Constructor = p.constructor
	} else if p.kind == KindTuple {
		delete(s.building, t)
		return nil, newSchemaError(p.name, "tuple types require constructor-based deserialization", nil)
	}

	if p.kind == KindTuple && len(d.Members) > 7 {
		delete(s.building, t)
		return nil, newSchemaError(p.name, "tuple types support at most 7 elements", nil)
	}

	for _, name := range p.hookNames {
		hook, err := resolveHook(t, name)
		if err != nil {
			delete(s.building, t)
			return nil, newSchemaError(p.name, "on-deserialized hook error", err)
		}
		d.OnDeserializedHooks = append(d.OnDeserializedHooks, hook)
	}

	if p.baseType != nil {
		d.TypeCode = p.typeCode
	}

	delete(s.building, t)
	s.byGoType[t] = d
	return d, nil
}

func (s *scanner) collectMembers(t reflect.Type, p *typePlan, ctx *recordBuildCtx, pathPrefix []int) error {
	ctx.reservedRanges = append(ctx.reservedRanges, p.reservedRanges...)
	ctx.blockedRanges = append(ctx.blockedRanges, p.blockedRanges...)

	implicitNext := p.implicitRange.Start

	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if f.PkgPath != "" && !f.Anonymous {
			continue // unexported, not a data member
		}
		path := append(append([]int{}, pathPrefix...), i)

		if f.Anonymous {
			embeddedType := dereferencedType(f.Type)
			if ep, ok := s.b.byGoType[embeddedType]; ok && embeddedType.Kind() == reflect.Struct {
				if err := s.collectMembers(embeddedType, ep, ctx, path); err != nil {
					return err
				}
				continue
			}
		}

		raw := f.Tag.Get("ws")
		pt := parseMemberTag(raw)
		if pt.skip || (!pt.hasTagID && !p.usesImplicitMembers) {
			// Not a data member. A ConfigRef is only legal behind
			// serialized members, so a skipped field that transitively
			// holds one is rejected rather than silently dropped from
			// the wire format.
			if typeReachesConfigRef(f.Type, map[reflect.Type]bool{}) {
				return newSchemaError(p.name, fmt.Sprintf("member %q: ref in non-serialized location", f.Name), nil)
			}
			continue
		}

		var tagID int32
		if pt.hasTagID {
			tagID = pt.tagID
			if p.usesImplicitMembers && tagID >= implicitNext {
				implicitNext = tagID + 1
			}
		} else {
			tagID = implicitNext
			implicitNext++
			if !p.implicitRange.contains(tagID) {
				return newSchemaError(p.name, fmt.Sprintf("implicit tag id %d for member %q exceeds declared implicit range", tagID, f.Name), nil)
			}
		}
		if tagID <= 0 {
			return newSchemaError(p.name, fmt.Sprintf("tag id for member %q must be strictly positive", f.Name), nil)
		}

		for _, br := range ctx.blockedRanges {
			if br.contains(tagID) {
				return newSchemaError(p.name, fmt.Sprintf("member %q tag id %d falls in a blocked range", f.Name, tagID), nil)
			}
		}
		if len(p.reservedRanges) > 0 && !p.allowNonReserved {
			ok := false
			for _, rr := range p.reservedRanges {
				if rr.contains(tagID) {
					ok = true
					break
				}
			}
			if !ok {
				return newSchemaError(p.name, fmt.Sprintf("member %q tag id %d is not within a reserved range of its declaring type", f.Name, tagID), nil)
			}
		}

		if prev, dup := ctx.usedTags[tagID]; dup {
			return newSchemaError(p.name, fmt.Sprintf("tag id %d used by both %q and %q", tagID, prev, f.Name), nil)
		}
		ctx.usedTags[tagID] = f.Name
		if ctx.usedNames[f.Name] {
			return newSchemaError(p.name, fmt.Sprintf("member name %q reused across the embedding chain", f.Name), nil)
		}
		ctx.usedNames[f.Name] = true

		fieldDesc, err := s.resolve(f.Type)
		if err != nil {
			return err
		}

		m := &MemberDescriptor{
			TagID:         tagID,
			Name:          f.Name,
			DeclaringType: p.name,
			FieldIndex:    path,
			GoType:        f.Type,
			Desc:          fieldDesc,
			Flags:         pt.flags,
			Window:        pt.window,
			MaxCollection: pt.maxSize,
			Substitute:    p.substitutes[f.Name],
			Converters:    p.converters[f.Name],
		}
		ctx.allMembers = append(ctx.allMembers, m)
	}
	return nil
}

// typeReachesConfigRef reports whether t transitively contains a
// ConfigRef, walking the raw type structurally (the types behind a
// skipped field are never registered, so descriptors can't answer
// this). seen guards against cyclic type graphs.
func typeReachesConfigRef(t reflect.Type, seen map[reflect.Type]bool) bool {
	if seen[t] {
		return false
	}
	seen[t] = true
	if isConfigRefType(t) {
		return true
	}
	switch t.Kind() {
	case reflect.Ptr, reflect.Slice, reflect.Array:
		return typeReachesConfigRef(t.Elem(), seen)
	case reflect.Map:
		return typeReachesConfigRef(t.Key(), seen) || typeReachesConfigRef(t.Elem(), seen)
	case reflect.Struct:
		for i := 0; i < t.NumField(); i++ {
			if typeReachesConfigRef(t.Field(i).Type, seen) {
				return true
			}
		}
	}
	return false
}

// resolveHook resolves an on-deserialized hook method by name. It must
// be an exported, void-returning instance method taking either no
// arguments or exactly one context-struct argument (spec §4.C).
func resolveHook(t reflect.Type, name string) (hookSpec, error) {
	ptrType := reflect.PtrTo(t)
	method, ok := ptrType.MethodByName(name)
	if !ok {
		method, ok = t.MethodByName(name)
		if !ok {
			return hookSpec{}, fmt.Errorf("method %q not found", name)
		}
	}
	ft := method.Func.Type()
	if ft.NumOut() != 0 {
		return hookSpec{}, fmt.Errorf("hook %q must not return a value", name)
	}
	switch ft.NumIn() {
	case 1: // receiver only
		return hookSpec{Fn: method.Func, WantsContext: false}, nil
	case 2: // receiver + context
		return hookSpec{Fn: method.Func, WantsContext: true}, nil
	default:
		return hookSpec{}, fmt.Errorf("hook %q must take no arguments or exactly one context argument", name)
	}
}

// linkDerivedTypes assigns each concrete type's type code to every
// abstract ancestor's derived_types map (spec §4.C "Polymorphism").
func (s *scanner) linkDerivedTypes() error {
	for _, rootType := range s.roots {
		root := s.byGoType[rootType]
		for _, d := range s.byGoType {
			if d.GoType.Kind() != reflect.Struct {
				continue
			}
			if !d.GoType.Implements(rootType) && !reflect.PtrTo(d.GoType).Implements(rootType) {
				continue
			}
			if d.TypeCode <= 0 {
				return newSchemaError(d.Name, fmt.Sprintf("concrete type of abstract root %q must declare a positive type code", root.Name), nil)
			}
			if existing, dup := root.DerivedTypes[d.TypeCode]; dup {
				return &DuplicateTypeCode{Root: root.Name, TypeCode: d.TypeCode, First: existing.Name, Second: d.Name}
			}
			root.DerivedTypes[d.TypeCode] = d
			d.BaseRoot = root
		}
	}
	return nil
}

// propagatePublic implements spec §4.C "Public propagation": a type is
// public if its namespace starts with a declared public prefix, and
// publicness propagates transitively across members, bases, collection
// element/key/value types, and ConfigData/ConfigRef/ConfigDataContent
// contained types.
func (s *scanner) propagatePublic(prefixes []string) {
	isPublicName := func(name string) bool {
		for _, p := range prefixes {
			if strings.HasPrefix(name, p) {
				return true
			}
		}
		return false
	}
	changed := true
	for changed {
		changed = false
		for _, d := range s.byGoType {
			if d.IsPublic {
				continue
			}
			if isPublicName(d.Name) {
				d.IsPublic = true
				changed = true
				continue
			}
		}
		for _, d := range s.byGoType {
			if !d.IsPublic {
				continue
			}
			for _, target := range []*TypeDescriptor{d.ElemDesc, d.KeyDesc, d.ValueDesc} {
				if target != nil && !target.IsPublic {
					target.IsPublic = true
					changed = true
				}
			}
			for _, m := range d.Members {
				if m.Desc != nil && !m.Desc.IsPublic {
					m.Desc.IsPublic = true
					changed = true
				}
			}
			if d.BaseRoot != nil && !d.BaseRoot.IsPublic {
				d.BaseRoot.IsPublic = true
				changed = true
			}
			for _, dt := range d.DerivedTypes {
				if !dt.IsPublic {
					dt.IsPublic = true
					changed = true
				}
			}
		}
	}
}

// checkReachability implements the bottom-up half of spec §4.C's
// "Reference reachability check". The error half — a ConfigRef sitting
// behind a non-serialized field ("ref in non-serialized location") —
// is enforced eagerly by collectMembers via typeReachesConfigRef, at
// the moment the offending field is skipped; by the time this pass
// runs, every surviving descriptor reaches its refs through
// Members/ElemDesc/KeyDesc/ValueDesc only. This pass therefore computes
// and memoizes hasConfigRef for traverse_refs (dispatch.go) rather
// than re-deriving path legality from scratch.
func (s *scanner) checkReachability() error {
	// visit returns (reachable, clean). clean is false when a cycle edge
	// was cut somewhere beneath d, in which case the result may be an
	// under-approximation and must not enter the memo; the outer loop
	// revisits every descriptor as its own root, so cyclic nodes still
	// converge. Clean subtrees memoize by type fingerprint so shared
	// subgraphs are walked once.
	var visit func(d *TypeDescriptor, visiting map[*TypeDescriptor]bool) (bool, bool)
	visit = func(d *TypeDescriptor, visiting map[*TypeDescriptor]bool) (bool, bool) {
		if d.Kind == KindConfigRef {
			return true, true
		}
		if r, ok := s.reachMemo[reachKey{fp: typeFingerprint(d.GoType)}]; ok {
			return r, true
		}
		if visiting[d] {
			return false, false
		}
		visiting[d] = true
		defer delete(visiting, d)
		clean := true
		for _, target := range []*TypeDescriptor{d.ElemDesc, d.KeyDesc, d.ValueDesc} {
			if target == nil {
				continue
			}
			r, c := visit(target, visiting)
			if r {
				d.hasConfigRef = true
			}
			clean = clean && c
		}
		for _, m := range d.Members {
			if m.Desc == nil {
				continue
			}
			r, c := visit(m.Desc, visiting)
			if r {
				d.hasConfigRef = true
			}
			clean = clean && c
		}
		for _, dt := range d.DerivedTypes {
			r, c := visit(dt, visiting)
			if r {
				d.hasConfigRef = true
			}
			clean = clean && c
		}
		if clean {
			s.reachMemo[reachKey{fp: typeFingerprint(d.GoType)}] = d.hasConfigRef
		}
		return d.hasConfigRef, clean
	}
	for _, d := range s.byGoType {
		reachable, _ := visit(d, map[*TypeDescriptor]bool{})
		if d.IsConfigData() {
			s.reachMemo[reachKey{fp: typeFingerprint(d.GoType), isRoot: true}] = reachable
		}
	}
	return nil
}

func builtinName(t reflect.Type) string {
	switch t {
	case byteSliceType:
		return "bytes"
	case durationType:
		return "duration"
	case metaGuidType:
		return "MetaGuid"
	case f32Type:
		return "F32"
	case f64Type:
		return "F64"
	case f32vec2Type:
		return "F32Vec2"
	case f32vec3Type:
		return "F32Vec3"
	case f64vec2Type:
		return "F64Vec2"
	case f64vec3Type:
		return "F64Vec3"
	}
	return t.Kind().String()
}

func kindForBuiltin(t reflect.Type) DescKind {
	switch t {
	case stringType:
		return KindString
	case byteSliceType:
		return KindBytes
	default:
		return KindPrimitive
	}
}
