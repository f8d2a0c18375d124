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

import "github.com/golang/glog"

// logSchemaWarning reports a non-fatal schema observation (a struct or
// tuple type registered with zero serializable members) at scan time. These never block
// RegisterAll; they are surfaced so a CI lint pass can catch schema
// drift before it reaches decode time.
func logSchemaWarning(format string, args ...interface{}) {
	glog.Warningf(format, args...)
}

// logDecodeFailure records a per-entry decode failure substituted by a
// DecodeFailurePlaceholder (eventlog.go) at V(1), since a single
// corrupt log entry is routine enough in a long-running segment not to
// warrant a Warning-level line on every replay.
func logDecodeFailure(attemptedType, reason string) {
	glog.V(1).Infof("tagserde: decode failure substituted for %s: %s", attemptedType, reason)
}
