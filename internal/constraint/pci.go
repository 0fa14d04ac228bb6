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

	"github.com/samber/lo"
	"github.com/tachyon-sched/tachyon/internal/capacity"
	"github.com/tachyon-sched/tachyon/internal/model"
)

// PCIAssignment maps each requested PCIRequest (by index) to the
// distinct PCI provider IDs fitted against it.
type PCIAssignment map[int][]model.ID

// FitPCI implements spec.md §4.4.8: each PCIRequest needs Count distinct
// PCI_PF/PCI_VF providers under root carrying every trait in Traits and
// a feasible PCI_DEVICE inventory (the planner claims one unit per
// matched provider, so the fit verifies that unit is allocatable the
// same way FitNUMACells verifies a cell's floors), no provider reused
// across requests. When affinity is Required, every matched provider
// must descend from one of the NUMA nodes in numaAssignment (the
// CPU/memory placement of the same request). Preferred adds no NUMA
// restriction here, and no built-in weigher scores PCI-NUMA locality.
func FitPCI(ctx context.Context, st Store, usage capacity.UsageReader, root model.ID, requests []model.PCIRequest, affinity model.PCINUMAAffinity, numaAssignment NUMAAssignment) (PCIAssignment, bool, error) {
	if len(requests) == 0 {
		return PCIAssignment{}, true, nil
	}

	sorted, err := SortedDescendants(ctx, st, root)
	if err != nil {
		return nil, false, err
	}
	var pciProviders []*model.ResourceProvider
	for _, p := range sorted {
		if (p.HasRole(model.RolePCIPF) || p.HasRole(model.RolePCIVF)) && !p.Disabled {
			pciProviders = append(pciProviders, p)
		}
	}

	var numaRoots []model.ID
	if affinity == model.PCINUMAAffinityRequired {
		numaRoots = lo.Values(map[int]model.ID(numaAssignment))
	}

	assignment := PCIAssignment{}
	used := map[model.ID]bool{}
	ok, err := backtrackPCI(ctx, st, usage, requests, 0, pciProviders, affinity, numaRoots, used, assignment)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	return assignment, true, nil
}

func backtrackPCI(ctx context.Context, st Store, usage capacity.UsageReader, requests []model.PCIRequest, idx int, candidates []*model.ResourceProvider, affinity model.PCINUMAAffinity, numaRoots []model.ID, used map[model.ID]bool, assignment PCIAssignment) (bool, error) {
	if idx == len(requests) {
		return true, nil
	}
	req := requests[idx]
	var picked []model.ID
	for _, p := range candidates {
		if used[p.ID] || len(picked) == req.Count {
			continue
		}
		if !hasAllTraits(p, req.Traits) {
			continue
		}
		if affinity == model.PCINUMAAffinityRequired {
			descends, err := descendsFromAny(ctx, st, p.ID, numaRoots)
			if err != nil {
				return false, err
			}
			if !descends {
				continue
			}
		}
		fits, err := pciDeviceFits(ctx, st, usage, p.ID)
		if err != nil {
			return false, err
		}
		if !fits {
			continue
		}
		picked = append(picked, p.ID)
	}
	if len(picked) < req.Count {
		return false, nil
	}
	picked = picked[:req.Count]
	for _, id := range picked {
		used[id] = true
	}
	assignment[idx] = picked
	ok, err := backtrackPCI(ctx, st, usage, requests, idx+1, candidates, affinity, numaRoots, used, assignment)
	if err != nil {
		return false, err
	}
	if ok {
		return true, nil
	}
	for _, id := range picked {
		used[id] = false
	}
	delete(assignment, idx)
	return false, nil
}

// pciDeviceFits verifies the one PCI_DEVICE unit the planner will claim
// on a matched provider is allocatable against its inventory under the
// current overlay. A provider carrying the right role and traits but no
// PCI_DEVICE inventory is not a match: the resulting candidate could
// never survive the claim executor's re-verification.
func pciDeviceFits(ctx context.Context, st Store, usage capacity.UsageReader, providerID model.ID) (bool, error) {
	inv, err := st.GetInventory(ctx, providerID, "PCI_DEVICE")
	if err != nil {
		return false, nil
	}
	used, err := usage.Used(ctx, providerID, "PCI_DEVICE")
	if err != nil {
		return false, err
	}
	return capacity.Evaluate(inv, used, 1).Feasible, nil
}

func hasAllTraits(p *model.ResourceProvider, traits []string) bool {
	for _, t := range traits {
		if !p.HasTrait(t) {
			return false
		}
	}
	return true
}

func descendsFromAny(ctx context.Context, st Store, id model.ID, roots []model.ID) (bool, error) {
	rootSet := map[model.ID]bool{}
	for _, r := range roots {
		rootSet[r] = true
	}
	cur := id
	for {
		p, err := st.GetProvider(ctx, cur)
		if err != nil {
			return false, nil
		}
		if rootSet[p.ID] {
			return true, nil
		}
		if p.IsRoot() {
			return false, nil
		}
		cur = p.ParentID
	}
}
