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

// Package constraint implements C4: the hard filters that exclude a
// candidate root or subtree outright (spec.md §4.4). Every function
// here is a pure predicate over a read-only store.Tx snapshot plus a
// capacity.UsageReader for the classes that need a feasibility check
// (NUMA, PCI); none of them mutate state or return an error for an
// infeasible candidate — per spec.md §7, constraint failures shrink the
// candidate set silently, they are not part of the error vocabulary in
// internal/errs.
package constraint

import (
	"context"
	"sort"

	"github.com/tachyon-sched/tachyon/internal/model"
)

// Store is the narrow slice of store.Tx this package depends on,
// spelled out explicitly (spec.md §9's preference for explicit typed
// boundaries over an ambient all-powerful collaborator).
type Store interface {
	GetProvider(ctx context.Context, id model.ID) (*model.ResourceProvider, error)
	ListChildren(ctx context.Context, id model.ID) ([]*model.ResourceProvider, error)
	ListDescendants(ctx context.Context, id model.ID) ([]*model.ResourceProvider, error)
	ListAggregatesForProvider(ctx context.Context, providerID model.ID) ([]*model.Aggregate, error)
	GetAggregate(ctx context.Context, id model.ID) (*model.Aggregate, error)
	GetServerGroup(ctx context.Context, id model.ID) (*model.ServerGroup, error)
	ListAllocationsForConsumer(ctx context.Context, consumerID model.ID) ([]model.Allocation, error)
	RootOf(ctx context.Context, id model.ID) (*model.ResourceProvider, error)
	GetInventory(ctx context.Context, providerID model.ID, class string) (*model.Inventory, error)
}

// Verdict carries the outcome of a hard-constraint screen: either the
// candidate survives, or Reason explains (for logs/debugging only) the
// first constraint that eliminated it.
type Verdict struct {
	OK     bool
	Reason string
}

func fail(reason string) Verdict { return Verdict{OK: false, Reason: reason} }

var pass = Verdict{OK: true}

// ScreenRoot evaluates the root-granularity hard constraints of spec.md
// §4.4: provider eligibility (1), required/forbidden traits at root
// scope (2,3), aggregate membership and tenant/image isolation (4),
// availability zone (5), and the hard server-group variants (6). NUMA
// (7), PCI (8), and resource coverage (9) depend on a specific subtree
// assignment and are evaluated by FitNUMACells / FitPCI / the planner's
// coverage partition instead.
func ScreenRoot(ctx context.Context, st Store, req *model.Request, root *model.ResourceProvider) (Verdict, error) {
	if root.Disabled {
		return fail("root provider is disabled"), nil
	}
	if root.HasTrait("COMPUTE_STATUS_DISABLED") {
		return fail("root provider carries COMPUTE_STATUS_DISABLED"), nil
	}

	// Only the default (unsuffixed) group's traits bind at root
	// granularity; a suffixed group's traits bind to the subtree
	// provider chosen for that group during assignment.
	for _, g := range req.Groups {
		if g.Suffix != "" {
			continue
		}
		for _, t := range g.RequiredTraits {
			if !root.HasTrait(t) {
				return fail("missing required trait " + t), nil
			}
		}
		for _, t := range g.ForbiddenTraits {
			if root.HasTrait(t) {
				return fail("carries forbidden trait " + t), nil
			}
		}
	}

	aggs, err := st.ListAggregatesForProvider(ctx, root.ID)
	if err != nil {
		return Verdict{}, err
	}

	for _, g := range req.Groups {
		if len(g.MemberOf) == 0 {
			continue
		}
		if v := checkMemberOf(aggs, g.MemberOf); !v.OK {
			return v, nil
		}
	}

	if v := checkIsolation(aggs, req.ProjectID, req.ImageID); !v.OK {
		return v, nil
	}

	if req.AZ != "" {
		if v := checkAZ(aggs, req.AZ); !v.OK {
			return v, nil
		}
	}

	if req.ServerGroupID != "" {
		v, err := checkServerGroupHard(ctx, st, req.ServerGroupID, root.ID)
		if err != nil {
			return Verdict{}, err
		}
		if !v.OK {
			return v, nil
		}
	}

	return pass, nil
}

func checkMemberOf(aggs []*model.Aggregate, want []model.ID) Verdict {
	for _, a := range aggs {
		for _, w := range want {
			if a.ID == w {
				return pass
			}
		}
	}
	return fail("root is not a member of any requested aggregate")
}

func checkIsolation(aggs []*model.Aggregate, project, image model.ID) Verdict {
	for _, a := range aggs {
		if a.RestrictsTenants() && !a.AllowsTenant(project) {
			return fail("aggregate " + a.Name + " restricts tenants")
		}
		if image != "" && a.RestrictsImages() && !a.AllowsImage(image) {
			return fail("aggregate " + a.Name + " restricts images")
		}
	}
	return pass
}

func checkAZ(aggs []*model.Aggregate, az string) Verdict {
	for _, a := range aggs {
		if a.AvailabilityZone == az {
			return pass
		}
	}
	return fail("root does not belong to availability zone " + az)
}

func checkServerGroupHard(ctx context.Context, st Store, groupID, candidateRoot model.ID) (Verdict, error) {
	group, err := st.GetServerGroup(ctx, groupID)
	if err != nil {
		return Verdict{}, err
	}
	if !group.Policy.IsHard() {
		return pass, nil
	}

	hosts, err := memberHosts(ctx, st, group)
	if err != nil {
		return Verdict{}, err
	}

	switch group.Policy {
	case model.AffinityHard:
		if len(hosts) == 0 {
			return pass, nil
		}
		for _, root := range hosts {
			if root != candidateRoot {
				return fail("affinity group requires placement on an existing member's host"), nil
			}
		}
		return pass, nil
	case model.AntiAffinityHard:
		count := 0
		for _, root := range hosts {
			if root == candidateRoot {
				count++
			}
		}
		limit := group.MaxServerPerHost
		if limit <= 0 {
			// Unset max_server_per_host means strict anti-affinity:
			// no existing member may share the candidate host at all.
			if count > 0 {
				return fail("anti-affinity group already has a member on this host"), nil
			}
			return pass, nil
		}
		// Placing one more on this host must not push the host's
		// member count past limit, so reject once it's already at
		// limit rather than only once it's past it.
		if count >= limit {
			return fail("anti-affinity group already has max_server_per_host members on this host"), nil
		}
		return pass, nil
	}
	return pass, nil
}

// memberHosts maps each group member's consumer ID to the forest root
// hosting its (first) allocation.
func memberHosts(ctx context.Context, st Store, group *model.ServerGroup) (map[model.ID]model.ID, error) {
	hosts := map[model.ID]model.ID{}
	for _, memberID := range group.Members {
		allocs, err := st.ListAllocationsForConsumer(ctx, memberID)
		if err != nil || len(allocs) == 0 {
			continue
		}
		root, err := st.RootOf(ctx, allocs[0].ProviderID)
		if err != nil {
			continue
		}
		hosts[memberID] = root.ID
	}
	return hosts, nil
}

// SoftServerGroupCount returns how many existing members of group are
// placed on candidateRoot, used by the ServerGroupSoftAffinity weigher
// (spec.md §4.5). Exported for internal/weigher to reuse the same
// traversal instead of duplicating it.
func SoftServerGroupCount(ctx context.Context, st Store, group *model.ServerGroup, candidateRoot model.ID) (int, error) {
	hosts, err := memberHosts(ctx, st, group)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, root := range hosts {
		if root == candidateRoot {
			count++
		}
	}
	return count, nil
}

// SortedDescendants returns root's descendants ordered by the tie-break
// rule spec.md §4.4 requires for deterministic fitting: tree distance
// from root ascending, then lexicographically lowest uuid.
func SortedDescendants(ctx context.Context, st Store, root model.ID) ([]*model.ResourceProvider, error) {
	all, err := st.ListDescendants(ctx, root)
	if err != nil {
		return nil, err
	}
	depth := map[model.ID]int{root: 0}
	byID := map[model.ID]*model.ResourceProvider{}
	for _, p := range all {
		byID[p.ID] = p
	}
	var depthOf func(model.ID) int
	depthOf = func(id model.ID) int {
		if d, ok := depth[id]; ok {
			return d
		}
		p := byID[id]
		d := 1 + depthOf(p.ParentID)
		depth[id] = d
		return d
	}
	for _, p := range all {
		depthOf(p.ID)
	}
	sort.Slice(all, func(i, j int) bool {
		di, dj := depth[all[i].ID], depth[all[j].ID]
		if di != dj {
			return di < dj
		}
		return all[i].ID < all[j].ID
	})
	return all, nil
}
