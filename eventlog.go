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
	"strings"
)

// maxPlaceholderBytes bounds how much of a corrupt entry's raw payload
// is retained for diagnostics (spec §4.G "truncated to 10 KiB").
const maxPlaceholderBytes = 10 * 1024

// segmentCapacity bounds latest_segment_entries before it seals into
// pending_segments (spec §4.G).
const segmentCapacity = 4096

// LogEntry is one record of an event log (spec §4.G): a sequential,
// content-addressed journal entry carrying a schema-versioned, tagged
// payload.
type LogEntry struct {
	SequentialID        int64
	CollectedAt         int64 // unix nanos; stamped by the caller, never by this package (spec prohibits wall-clock reads mid-call)
	UniqueID             MetaGuid
	ModelTime            int64
	PayloadSchemaVersion int
	Payload              reflect.Value
	Placeholder          *DecodeFailurePlaceholder
}

// DecodeFailurePlaceholder substitutes for a LogEntry's Payload when it
// fails to decode (spec §4.G): it keeps enough to diagnose the failure
// without holding the whole (possibly huge, possibly malicious) payload
// in memory.
type DecodeFailurePlaceholder struct {
	AttemptedType string
	Reason        string
	Discriminator string // "unknown type code" / "unexpected wire kind" / ""
	RawBytes      []byte // truncated to maxPlaceholderBytes
}

// EventLog is the in-memory shape of spec §4.G's segmented append-only
// log: entries accumulate in LatestSegment until it reaches
// segmentCapacity, at which point it seals into PendingSegments and
// RunningSegmentID advances. OldestAvailableSegmentID tracks retention
// independent of in-memory state (callers may evict sealed segments to
// colder storage and only need to remember the boundary).
type EventLog struct {
	RunningEntryID           int64
	LatestSegment            []LogEntry
	RunningSegmentID         int64
	PendingSegments          [][]LogEntry
	OldestAvailableSegmentID int64
}

// NewEventLog starts an empty log.
func NewEventLog() *EventLog {
	return &EventLog{RunningSegmentID: 1, OldestAvailableSegmentID: 1}
}

// Append adds a new entry, sealing the current segment first if it is
// full.
func (l *EventLog) Append(entry LogEntry) {
	if len(l.LatestSegment) >= segmentCapacity {
		l.PendingSegments = append(l.PendingSegments, l.LatestSegment)
		l.LatestSegment = nil
		l.RunningSegmentID++
	}
	l.RunningEntryID++
	entry.SequentialID = l.RunningEntryID
	l.LatestSegment = append(l.LatestSegment, entry)
}

// EncodeEntry writes one entry's envelope plus its tagged payload.
func EncodeEntry(reg *Registry, d *TypeDescriptor, entry LogEntry, ctx *SerializationContext, buf *ByteBuffer) error {
	buf.WriteVarInt64(entry.SequentialID)
	buf.WriteInt64(entry.CollectedAt)
	buf.WriteGuid([16]byte(entry.UniqueID))
	buf.WriteInt64(entry.ModelTime)
	buf.WriteVarInt32(int32(entry.PayloadSchemaVersion))
	return encodeTagged(reg, d, entry.Payload, ctx, buf)
}

// DecodeEntry reads one entry's envelope and attempts to decode its
// payload against d. If decoding fails, the entry's Payload is left
// invalid and Placeholder is populated instead — the error itself is
// never returned, mirroring the reference behavior that a single
// corrupt entry must not abort the whole log replay (spec §4.G).
func DecodeEntry(reg *Registry, d *TypeDescriptor, ctx *SerializationContext, buf *ByteBuffer) (entry LogEntry, err error) {
	defer recoverToError(&err)

	entry.SequentialID = buf.ReadVarInt64()
	entry.CollectedAt = buf.ReadInt64()
	entry.UniqueID = MetaGuid(buf.ReadGuid())
	entry.ModelTime = buf.ReadInt64()
	entry.PayloadSchemaVersion = int(buf.ReadVarInt32())

	start := buf.readerAt
	payload, decodeErr := decodeEntryPayload(reg, d, ctx, buf)
	if decodeErr != nil {
		raw := buf.data[start:buf.readerAt]
		if len(raw) > maxPlaceholderBytes {
			raw = raw[:maxPlaceholderBytes]
		}
		truncated := make([]byte, len(raw))
		copy(truncated, raw)
		entry.Placeholder = &DecodeFailurePlaceholder{
			AttemptedType: d.Name,
			Reason:        decodeErr.Error(),
			Discriminator: classifyFailure(decodeErr),
			RawBytes:      truncated,
		}
		logDecodeFailure(d.Name, decodeErr.Error())
		return entry, nil
	}
	entry.Payload = payload
	return entry, nil
}

// decodeEntryPayload recovers from panics raised inside the codec
// (malformed-stream short reads) so they become part of the entry's
// placeholder path rather than aborting the whole log replay.
func decodeEntryPayload(reg *Registry, d *TypeDescriptor, ctx *SerializationContext, buf *ByteBuffer) (v reflect.Value, err error) {
	defer recoverToError(&err)
	return decodeTagged(reg, d, ctx, buf)
}

// classifyFailure extracts the discriminator spec §4.G calls for:
// "unknown type code" or "unexpected wire kind", when the underlying
// error is one of those two well-known kinds.
func classifyFailure(err error) string {
	switch e := err.(type) {
	case *UnknownDerivedType:
		return fmt.Sprintf("unknown type code %d for %s", e.TypeCode, e.Root)
	case *WireKindMismatch:
		return fmt.Sprintf("unexpected wire kind %s at %s (expected %s)", e.Got, e.Member, e.Expected)
	case *MemberDeserializationError:
		return classifyFailure(unwrapErr(e))
	}
	if strings.Contains(err.Error(), "unknown type code") || strings.Contains(err.Error(), "unexpected wire kind") {
		return err.Error()
	}
	return ""
}

func unwrapErr(err error) error {
	type unwrapper interface{ Unwrap() error }
	if u, ok := err.(unwrapper); ok {
		if inner := u.Unwrap(); inner != nil {
			return inner
		}
	}
	return err
}
