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
	"sort"

	"github.com/spaolacci/murmur3"
)

// Registry is the frozen set of all descriptors, addressable by type
// (spec §2 Component B, §4.B). It is built once ("one world") by the
// Schema Scanner and is safe to read concurrently from any number of
// goroutines thereafter.
type Registry struct {
	byName map[string]*TypeDescriptor
	byType map[reflect.Type]*TypeDescriptor
	all    []*TypeDescriptor
	hash   uint32
}

// Type looks up a descriptor by its registered Go type, panicking if it
// is unknown. Mirrors the reference API's `Registry.type(type_id)`,
// which is documented to fail loudly on a programmer error rather than
// return a zero value.
func (r *Registry) Type(t reflect.Type) *TypeDescriptor {
	d, ok := r.byType[t]
	if !ok {
		panic("tagserde: type not registered: " + t.String())
	}
	return d
}

// TryType is the non-panicking counterpart of Type.
func (r *Registry) TryType(t reflect.Type) (*TypeDescriptor, bool) {
	d, ok := r.byType[t]
	return d, ok
}

// TypeByName looks up a descriptor by its namespace-qualified name.
func (r *Registry) TypeByName(name string) (*TypeDescriptor, bool) {
	d, ok := r.byName[name]
	return d, ok
}

// All returns every registered descriptor, in the deterministic order
// produced at construction time (spec §8 "Schema determinism").
func (r *Registry) All() []*TypeDescriptor {
	return r.all
}

// ProtocolHash returns the 32-bit fingerprint of the public-type subset
// (spec §4.B), transmitted during handshake to detect schema skew
// between client and server.
func (r *Registry) ProtocolHash() uint32 {
	return r.hash
}

// stringHash implements spec §4.B's hash(string):
//
//	hash(s) = sum(s[i] * 18471^(len-1-i)) mod 2^32
//
// All arithmetic is uint32, so the mod 2^32 happens implicitly via
// wraparound.
func stringHash(s string) uint32 {
	var h uint32
	var pow uint32 = 1
	n := len(s)
	for i := n - 1; i >= 0; i-- {
		h += uint32(s[i]) * pow
		pow *= 18471
	}
	return h
}

// computeProtocolHash implements the exact accumulator of spec §4.B
// over the public-type subset, in lexicographic-namespace order.
func computeProtocolHash(types []*TypeDescriptor) uint32 {
	public := make([]*TypeDescriptor, 0, len(types))
	for _, t := range types {
		if t.IsPublic {
			public = append(public, t)
		}
	}
	sort.Slice(public, func(i, j int) bool { return public[i].Name < public[j].Name })

	var H uint32
	for _, t := range public {
		hT := stringHash(t.Name) + 117*uint32(t.TypeCode)
		for _, m := range t.Members {
			if m.Flags.Has(FlagHidden) {
				continue
			}
			declaredName := t.Name
			if m.Desc != nil {
				declaredName = m.Desc.Name
			}
			hT = hT*17 + stringHash(m.Name) + stringHash(declaredName) + uint32(m.TagID)
		}
		H = H*13 + hT
	}
	return H
}

// typeFingerprint is an internal, unordered 64-bit identity hash used
// to key the scanner's (type, is_root, is_reachable) reachability memo
// table (spec §4.C); in-flight descriptor construction is deduped by
// reflect.Type instead. It is never transmitted on the wire — only ProtocolHash is wire-visible,
// and that one follows the exact bit-for-bit algorithm above.
func typeFingerprint(t reflect.Type) uint64 {
	h := murmur3.New64()
	h.Write([]byte(t.PkgPath()))
	h.Write([]byte{0})
	h.Write([]byte(t.String()))
	return h.Sum64()
}
