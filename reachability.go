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

// This file is the Reference Graph's offline analysis half (spec §2
// Component E, §4.E "Reachability analysis"). It is consulted by
// tooling — content-change impact reports, cache invalidation — and
// never by encode/decode itself; TraverseRefs in dispatch.go is the
// online half that the wire codec actually uses.

// EdgeLabel classifies a reference edge by the static shape of the
// member that holds it: the referrer's type, the referenced item's
// type, and the field path the ConfigRef was found at.
type EdgeLabel struct {
	FromType string
	ToType   string
	Path     string
}

// ReverseEdge is one entry of a ReverseRefIndex bucket: ReferrerID holds
// a ConfigRef to the bucket's key, via the member described by Label.
type ReverseEdge struct {
	ReferrerID interface{}
	Label      EdgeLabel
}

// ReverseRefIndex maps a referenced item's id to every item that holds
// a ConfigRef pointing at it (spec §4.E "reverse-reference index"). It
// is built once by the content-addressed configuration layer and
// passed in as a read-only snapshot (spec §5 "Shared resources").
type ReverseRefIndex map[interface{}][]ReverseEdge

// ReachabilityResult is the output of AnalyzeReachability: every item
// id reachable from the seed set, and a per-label count of how many
// distinct items were reached via at least one edge carrying that
// label (spec §4.E "influence count").
type ReachabilityResult struct {
	Reachable map[interface{}]bool
	Influence map[EdgeLabel]int
}

// AnalyzeReachability runs the breadth-first traversal of spec §4.E:
// starting from changedIDs, it walks the reverse-reference index
// outward (an item's referrers are, in turn, affected by that item
// changing) and accumulates per-label influence counts. Edges whose
// label is in disabledLabels are pruned before they can extend the
// reachable set or contribute to any influence count.
//
// The result is deterministic in the iteration order of index's edge
// slices: every start node is reachable, and every label's influence
// count is bounded by len(Reachable).
func AnalyzeReachability(index ReverseRefIndex, changedIDs []interface{}, disabledLabels map[EdgeLabel]bool) ReachabilityResult {
	reachable := make(map[interface{}]bool, len(changedIDs))
	reachedByLabel := map[EdgeLabel]map[interface{}]bool{}

	queue := make([]interface{}, 0, len(changedIDs))
	for _, id := range changedIDs {
		if !reachable[id] {
			reachable[id] = true
			queue = append(queue, id)
		}
	}

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, edge := range index[id] {
			if disabledLabels[edge.Label] {
				continue
			}
			set := reachedByLabel[edge.Label]
			if set == nil {
				set = map[interface{}]bool{}
				reachedByLabel[edge.Label] = set
			}
			set[edge.ReferrerID] = true

			if !reachable[edge.ReferrerID] {
				reachable[edge.ReferrerID] = true
				queue = append(queue, edge.ReferrerID)
			}
		}
	}

	influence := make(map[EdgeLabel]int, len(reachedByLabel))
	for label, set := range reachedByLabel {
		influence[label] = len(set)
	}

	return ReachabilityResult{Reachable: reachable, Influence: influence}
}

// CollectReferences walks value with TraverseRefs, using a visitor that
// returns every reference unchanged, and reports every key it finds, labeled by the member path that held
// it. It is the live-value counterpart to ReverseRefIndex construction:
// a content-addressed store builds its index by running this over
// every loaded item.
func CollectReferences(d *TypeDescriptor, value reflect.Value) []CollectedRef {
	collector := &refCollector{fromType: d.Name}
	TraverseRefs(d, value, collector)
	return collector.found
}

// CollectedRef is one reference discovered by CollectReferences.
type CollectedRef struct {
	Path string
	Key  interface{}
}

type refCollector struct {
	fromType string
	found    []CollectedRef
}

func (c *refCollector) VisitRef(path string, refValue reflect.Value) reflect.Value {
	c.found = append(c.found, CollectedRef{Path: path, Key: reflectConfigRefKey(refValue)})
	return refValue
}
