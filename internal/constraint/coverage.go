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

package constraint

import (
	"context"

	"github.com/tachyon-sched/tachyon/internal/capacity"
	"github.com/tachyon-sched/tachyon/internal/model"
)

// CoverageStore extends Store with the sharing-edge lookup needed to
// consider "connected sharing provider" as a coverage source (spec.md
// §4.4.9).
type CoverageStore interface {
	Store
	ListSharesInto(ctx context.Context, providerID model.ID) ([]model.SharesResources, error)
}

// Consumed tracks, within a single in-progress candidate, how much of a
// (provider, class) pair has already been committed to an earlier
// resource group, so a later group's coverage search cannot double-draw
// the same inventory (the partition requirement of spec.md §4.4.9).
type Consumed map[model.ID]map[string]int64

func (c Consumed) add(providerID model.ID, class string, amount int64) {
	byClass, ok := c[providerID]
	if !ok {
		byClass = map[string]int64{}
		c[providerID] = byClass
	}
	byClass[class] += amount
}

func (c Consumed) get(providerID model.ID, class string) int64 {
	byClass, ok := c[providerID]
	if !ok {
		return 0
	}
	return byClass[class]
}

// CoverSource is one feasible inventory source for a requested class,
// already net of this candidate's own prior draws.
type CoverSource struct {
	ProviderID model.ID
	Result     capacity.Result
}

// FindCoverage returns, in tie-break order (tree distance then lowest
// uuid), every provider under root — self, descendant, or a provider
// sharing resources into one of those — whose free capacity for class,
// after subtracting consumed's running total, can satisfy amount.
// Callers pick one (the first) and must call consumed.add via Commit to
// keep the partition invariant across subsequent groups.
func FindCoverage(ctx context.Context, st CoverageStore, usage capacity.UsageReader, root model.ID, class string, amount int64, consumed Consumed) ([]CoverSource, error) {
	self, err := st.GetProvider(ctx, root)
	if err != nil {
		return nil, err
	}
	ordered := []*model.ResourceProvider{self}
	descendants, err := SortedDescendants(ctx, st, root)
	if err != nil {
		return nil, err
	}
	ordered = append(ordered, descendants...)

	var out []CoverSource
	for _, p := range ordered {
		// A provider with no inventory of its own for class can still
		// be covered through a sharing provider, so a missing
		// self-inventory must not short-circuit the shares lookup.
		if inv, err := st.GetInventory(ctx, p.ID, class); err == nil {
			used, err := usage.Used(ctx, p.ID, class)
			if err != nil {
				return nil, err
			}
			already := consumed.get(p.ID, class)
			res := capacity.Evaluate(inv, used+already, amount)
			if res.Feasible {
				out = append(out, CoverSource{ProviderID: p.ID, Result: res})
			}
		}

		shares, err := st.ListSharesInto(ctx, p.ID)
		if err != nil {
			return nil, err
		}
		for _, s := range shares {
			if !containsClass(s.Classes, class) {
				continue
			}
			srcInv, err := st.GetInventory(ctx, s.FromProviderID, class)
			if err != nil {
				continue
			}
			srcUsed, err := usage.Used(ctx, s.FromProviderID, class)
			if err != nil {
				return nil, err
			}
			srcAlready := consumed.get(s.FromProviderID, class)
			srcRes := capacity.Evaluate(srcInv, srcUsed+srcAlready, amount)
			if srcRes.Feasible {
				out = append(out, CoverSource{ProviderID: s.FromProviderID, Result: srcRes})
			}
		}
	}
	return out, nil
}

func containsClass(classes []string, class string) bool {
	for _, c := range classes {
		if c == class {
			return true
		}
	}
	return false
}

// Commit records that a candidate has drawn amount of class from
// providerID, so later FindCoverage calls within the same candidate see
// it as already-used.
func (c Consumed) Commit(providerID model.ID, class string, amount int64) {
	c.add(providerID, class, amount)
}
