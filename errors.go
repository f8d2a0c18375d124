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
	"strings"

	"github.com/davecgh/go-spew/spew"
)

// SchemaError is raised by the scanner (Component C) when the declared
// type set fails validation. It carries a chain of (type, parent chain)
// breadcrumbs, outermost failing type first, per spec §4.C "Error
// reporting".
type SchemaError struct {
	Type    string
	Parents []string
	Reason  string
	Cause   error
}

func (e *SchemaError) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Reason)
	sb.WriteString(" (type=")
	sb.WriteString(e.Type)
	if len(e.Parents) > 0 {
		sb.WriteString(", via ")
		sb.WriteString(strings.Join(e.Parents, " -> "))
	}
	sb.WriteString(")")
	if e.Cause != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Cause.Error())
	}
	return sb.String()
}

func (e *SchemaError) Unwrap() error { return e.Cause }

// wrap prepends typeName to the breadcrumb chain, keeping the outermost
// failing type stable as the error unwinds back up the scan stack.
func (e *SchemaError) wrap(typeName string) *SchemaError {
	return &SchemaError{
		Type:    e.Type,
		Parents: append([]string{typeName}, e.Parents...),
		Reason:  e.Reason,
		Cause:   e.Cause,
	}
}

func newSchemaError(typeName, reason string, cause error) *SchemaError {
	return &SchemaError{Type: typeName, Reason: reason, Cause: cause}
}

// DuplicateTypeCode: two concrete types share a type-code under one
// abstract root.
type DuplicateTypeCode struct {
	Root     string
	TypeCode int32
	First    string
	Second   string
}

func (e *DuplicateTypeCode) Error() string {
	return fmt.Sprintf("abstract root %q: type code %d claimed by both %q and %q",
		e.Root, e.TypeCode, e.First, e.Second)
}

// UnknownDerivedType: decode-time, an abstract record's type-code is
// absent from derived_types.
type UnknownDerivedType struct {
	Root     string
	TypeCode int32
}

func (e *UnknownDerivedType) Error() string {
	return fmt.Sprintf("unknown derived type code %d for abstract root %q", e.TypeCode, e.Root)
}

// WireKindMismatch: decode-time, bytes announce a wire kind that doesn't
// match the descriptor's canonical kind or any declared converter.
type WireKindMismatch struct {
	Expected WireKind
	Got      WireKind
	Member   string
}

func (e *WireKindMismatch) Error() string {
	return fmt.Sprintf("wire kind mismatch at %q: expected %s, got %s", e.Member, e.Expected, e.Got)
}

// BoundExceeded: a collection/string/bytes length exceeded the context
// maximum.
type BoundExceeded struct {
	Kind  string
	Limit int
	Got   int
}

func (e *BoundExceeded) Error() string {
	return fmt.Sprintf("%s length %d exceeds bound %d", e.Kind, e.Got, e.Limit)
}

// IntegrityError: a malformed primitive on the wire (negative count
// other than -1, nonpositive struct tag, bad nullable-flag byte, ...).
type IntegrityError struct {
	Reason string
}

func (e *IntegrityError) Error() string {
	return "wire integrity error: " + e.Reason
}

// MemberDeserializationError: raised while decoding a specific member.
// If the member declared a substitute, this is caught locally by the
// dispatch engine and never reaches the caller (spec §7).
type MemberDeserializationError struct {
	Member   string
	RawBytes []byte
	Cause    error
}

func (e *MemberDeserializationError) Error() string {
	return fmt.Sprintf("member %q failed to deserialize (%d raw bytes): %v", e.Member, len(e.RawBytes), e.Cause)
}

func (e *MemberDeserializationError) Unwrap() error { return e.Cause }

// ConverterError: a declared converter failed to produce a target value.
type ConverterError struct {
	Member string
	From   WireKind
	Cause  error
}

func (e *ConverterError) Error() string {
	return fmt.Sprintf("converter for member %q from wire kind %s failed: %v", e.Member, e.From, e.Cause)
}

func (e *ConverterError) Unwrap() error { return e.Cause }

// dumpValue renders a decoded value for diagnostics; DumpVisitor is its
// only caller. Kept to one call site per caller so a
// verbose dump never appears on a hot path.
func dumpValue(v interface{}) string {
	return spew.Sdump(v)
}
