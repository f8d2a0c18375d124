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

// StringIdentified is the StringId capability of spec §4.C rule 2: a
// type whose wire representation is its string identity.
type StringIdentified interface {
	StringID() string
}

// DynamicEnumerator is the DynamicEnum capability of spec §4.C rule 3:
// keyed by an integer id rather than a fixed, closed value set.
type DynamicEnumerator interface {
	EnumID() int64
}

var (
	stringIdentifiedType  = reflect.TypeOf((*StringIdentified)(nil)).Elem()
	dynamicEnumeratorType = reflect.TypeOf((*DynamicEnumerator)(nil)).Elem()
)

func implementsStringIdentified(t reflect.Type) bool {
	return t.Implements(stringIdentifiedType)
}

func implementsDynamicEnumerator(t reflect.Type) bool {
	return t.Implements(dynamicEnumeratorType)
}
