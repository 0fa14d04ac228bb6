/*
Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package model

import "github.com/mitchellh/hashstructure/v2"

// CandidateAllocation is one (provider, class) line of a planned
// AllocationCandidate, carrying the provider generation observed at
// plan time so the claim executor can build its expected-generation
// map (spec.md §4.6 step 3).
type CandidateAllocation struct {
	ProviderID         ID
	Class              string
	Amount             int64
	ObservedGeneration Generation
	GroupSuffix        string
}

// AllocationCandidate is a tentative assignment of a resource request to
// concrete (provider, class, amount) triples (spec.md glossary).
type AllocationCandidate struct {
	RootProviderID     ID
	RootGeneration     Generation
	Allocations        []CandidateAllocation
	Score              float64
	// ConsumerGeneration is the expected generation of the consumer
	// being modified, or 0 for a brand new consumer.
	ConsumerGeneration Generation
}

// Hash returns a stable hash of c's allocation set, independent of
// Score or ConsumerGeneration. The planner uses it to dedupe candidates
// that different roots resolve to the identical set of (provider,
// class, amount) lines (possible once sharing providers are involved),
// and callers may use it as a memoization key for a previously-seen
// candidate without re-walking its allocation slice.
func (c *AllocationCandidate) Hash() (uint64, error) {
	return hashstructure.Hash(c.Allocations, hashstructure.FormatV2, nil)
}

// TouchedProviders returns the set of distinct provider IDs this
// candidate allocates against, in deterministic order.
func (c *AllocationCandidate) TouchedProviders() []ID {
	seen := map[ID]bool{}
	var out []ID
	for _, a := range c.Allocations {
		if !seen[a.ProviderID] {
			seen[a.ProviderID] = true
			out = append(out, a.ProviderID)
		}
	}
	return out
}
