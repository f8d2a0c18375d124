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
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAnalyzeReachabilityBFS(t *testing.T) {
	labelAtoB := EdgeLabel{FromType: "A", ToType: "B", Path: "$.Ref"}
	labelBtoC := EdgeLabel{FromType: "B", ToType: "C", Path: "$.Ref"}
	index := ReverseRefIndex{
		"b": {{ReferrerID: "a", Label: labelAtoB}},
		"c": {{ReferrerID: "b", Label: labelBtoC}},
	}

	result := AnalyzeReachability(index, []interface{}{"c"}, nil)
	require.True(t, result.Reachable["c"])
	require.True(t, result.Reachable["b"])
	require.True(t, result.Reachable["a"])
	require.Equal(t, 1, result.Influence[labelAtoB])
	require.Equal(t, 1, result.Influence[labelBtoC])
}

func TestAnalyzeReachabilityPrunesDisabledLabel(t *testing.T) {
	labelAtoB := EdgeLabel{FromType: "A", ToType: "B", Path: "$.Ref"}
	index := ReverseRefIndex{
		"b": {{ReferrerID: "a", Label: labelAtoB}},
	}

	result := AnalyzeReachability(index, []interface{}{"b"}, map[EdgeLabel]bool{labelAtoB: true})
	require.True(t, result.Reachable["b"])
	require.False(t, result.Reachable["a"])
	require.Equal(t, 0, result.Influence[labelAtoB])
}

func TestAnalyzeReachabilityFanIn(t *testing.T) {
	label := EdgeLabel{FromType: "A", ToType: "B", Path: "$.Ref"}
	index := ReverseRefIndex{
		"target": {
			{ReferrerID: "r1", Label: label},
			{ReferrerID: "r2", Label: label},
		},
	}

	result := AnalyzeReachability(index, []interface{}{"target"}, nil)
	require.Equal(t, 2, result.Influence[label])
}
