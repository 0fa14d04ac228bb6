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

// Inventory is a single (ResourceProvider, ResourceClass) capacity
// record. At most one Inventory node exists per (RP, class) pair
// (enforced by the store).
type Inventory struct {
	ProviderID ID
	Class      string

	Total           int64
	Reserved        int64
	MinUnit         int64
	MaxUnit         int64
	StepSize        int64
	AllocationRatio float64
}

// EffectiveCapacity returns floor((Total-Reserved) * AllocationRatio),
// the rounding policy fixed by spec.md §4.3 and the resolved open
// question in SPEC_FULL.md §3 (the ratio never applies to Reserved
// alone).
func (inv *Inventory) EffectiveCapacity() int64 {
	usable := inv.Total - inv.Reserved
	if usable <= 0 {
		return 0
	}
	return int64(float64(usable) * inv.AllocationRatio)
}
