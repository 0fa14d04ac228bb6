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

// NUMAAssignment maps each requested cell (by index) to the NUMA-node
// provider it was fitted against.
type NUMAAssignment map[int]model.ID

// FitNUMACells implements spec.md §4.4.7: root must have at least
// len(cells) children tagged RoleNUMANode, and there must exist an
// injective assignment of cells to distinct nodes such that every
// resource floor in a cell fits the assigned node's inventory. Search
// is deterministic backtracking over nodes ordered by SortedDescendants
// (tree distance, then lowest uuid), so the first assignment found is
// always the same one for a given graph snapshot.
func FitNUMACells(ctx context.Context, st Store, usage capacity.UsageReader, root model.ID, cells []model.NUMACell) (NUMAAssignment, bool, error) {
	if len(cells) == 0 {
		return NUMAAssignment{}, true, nil
	}

	children, err := st.ListChildren(ctx, root)
	if err != nil {
		return nil, false, err
	}
	var nodes []*model.ResourceProvider
	for _, c := range children {
		if c.HasRole(model.RoleNUMANode) && !c.Disabled {
			nodes = append(nodes, c)
		}
	}
	if len(nodes) < len(cells) {
		return nil, false, nil
	}
	sorted, err := SortedDescendants(ctx, st, root)
	if err != nil {
		return nil, false, err
	}
	order := filterNodes(sorted, nodes)

	assignment := NUMAAssignment{}
	used := map[model.ID]bool{}
	ok, err := backtrackCells(ctx, st, usage, cells, 0, order, used, assignment)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	return assignment, true, nil
}

func filterNodes(sorted, nodes []*model.ResourceProvider) []*model.ResourceProvider {
	allowed := map[model.ID]bool{}
	for _, n := range nodes {
		allowed[n.ID] = true
	}
	var out []*model.ResourceProvider
	for _, p := range sorted {
		if allowed[p.ID] {
			out = append(out, p)
		}
	}
	return out
}

func backtrackCells(ctx context.Context, st Store, usage capacity.UsageReader, cells []model.NUMACell, idx int, nodes []*model.ResourceProvider, used map[model.ID]bool, assignment NUMAAssignment) (bool, error) {
	if idx == len(cells) {
		return true, nil
	}
	for _, node := range nodes {
		if used[node.ID] {
			continue
		}
		fits, err := cellFits(ctx, st, usage, node.ID, cells[idx])
		if err != nil {
			return false, err
		}
		if !fits {
			continue
		}
		used[node.ID] = true
		assignment[idx] = node.ID
		ok, err := backtrackCells(ctx, st, usage, cells, idx+1, nodes, used, assignment)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
		used[node.ID] = false
		delete(assignment, idx)
	}
	return false, nil
}

func cellFits(ctx context.Context, st Store, usage capacity.UsageReader, nodeID model.ID, cell model.NUMACell) (bool, error) {
	for _, amt := range cell.Resources {
		inv, err := st.GetInventory(ctx, nodeID, amt.Class)
		if err != nil {
			return false, nil
		}
		used, err := usage.Used(ctx, nodeID, amt.Class)
		if err != nil {
			return false, err
		}
		if !capacity.Evaluate(inv, used, amt.Amount).Feasible {
			return false, nil
		}
	}
	return true, nil
}
