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

const defaultMaxSize = 1 << 20 // 1 MiB default bound for collections/strings/bytes

// Resolver resolves a ConfigRef key into its pointed item during decode
// (spec §4.E). Implementations are supplied by the content-addressed
// configuration layer, which is external to this module (spec §1).
type Resolver interface {
	Resolve(keyTypeName string, key interface{}) (interface{}, bool)
}

// MutationVisitor is invoked by traverse_refs (spec §4.D) in mutating
// mode. refValue holds a ConfigRef[T] for whatever T the traversal is
// currently standing on; since T varies per call site and Go generics
// cannot be parameterized through an interface method, the visitor
// receives and returns the reference as a reflect.Value and is expected
// to use the configref.go helpers to inspect or rebuild it. Returning a
// different value rewrites the reference in place.
type MutationVisitor interface {
	VisitRef(path string, refValue reflect.Value) reflect.Value
}

// SerializationContext carries the knobs that affect encode/decode but
// are not part of the registry itself (spec §3 "Runtime values", §6
// "Context options"). A context is stateful across a single decode or
// encode call (current member path) and must not be
// shared across concurrent calls on the same value (spec §5).
type SerializationContext struct {
	LogicVersion      int
	ExcludeFlags      MemberFlags
	MaxCollectionSize int
	MaxStringSize     int
	MaxByteArraySize  int
	Resolver          Resolver
	MutationVisitor   MutationVisitor

	path []string
}

// NewContext builds a context with the library's default bounds.
func NewContext() *SerializationContext {
	return &SerializationContext{
		MaxCollectionSize: defaultMaxSize,
		MaxStringSize:     defaultMaxSize,
		MaxByteArraySize:  defaultMaxSize,
	}
}

type ContextOption func(*SerializationContext)

func WithLogicVersion(v int) ContextOption {
	return func(c *SerializationContext) { c.LogicVersion = v }
}

func WithExcludeFlags(f MemberFlags) ContextOption {
	return func(c *SerializationContext) { c.ExcludeFlags = f }
}

func WithMaxCollectionSize(n int) ContextOption {
	return func(c *SerializationContext) { c.MaxCollectionSize = n }
}

func WithMaxStringSize(n int) ContextOption {
	return func(c *SerializationContext) { c.MaxStringSize = n }
}

func WithMaxByteArraySize(n int) ContextOption {
	return func(c *SerializationContext) { c.MaxByteArraySize = n }
}

func WithResolver(r Resolver) ContextOption {
	return func(c *SerializationContext) { c.Resolver = r }
}

func WithMutationVisitor(v MutationVisitor) ContextOption {
	return func(c *SerializationContext) { c.MutationVisitor = v }
}

// NewContextWith builds a context from the library defaults plus the
// given options.
func NewContextWith(opts ...ContextOption) *SerializationContext {
	c := NewContext()
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *SerializationContext) pushPath(elem string) { c.path = append(c.path, elem) }
func (c *SerializationContext) popPath()             { c.path = c.path[:len(c.path)-1] }

// CurrentPath renders the breadcrumb of the member currently being
// encoded/decoded, used to annotate runtime errors (spec §7
// "Propagation policy").
func (c *SerializationContext) CurrentPath() string {
	out := "$"
	for _, p := range c.path {
		out += p
	}
	return out
}

func (c *SerializationContext) excluded(flags MemberFlags) bool {
	return c.ExcludeFlags&flags != 0
}
