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

package weigher

import (
	"context"

	"github.com/tachyon-sched/tachyon/internal/capacity"
	"github.com/tachyon-sched/tachyon/internal/constraint"
	"github.com/tachyon-sched/tachyon/internal/model"
)

// freeClassOnRoot sums free capacity for class across root plus every
// descendant and connected sharing provider, the same subtree+sharing
// scope C4's coverage search uses (spec.md §4.5 "including shared
// providers" for the Disk weigher; RAM/CPU use the same scope for
// consistency even though the spec text only calls it out for Disk).
func freeClassOnRoot(ctx context.Context, st Store, usage capacity.UsageReader, root model.ID, class string) (int64, error) {
	var total int64
	providers := []model.ID{root}
	descendants, err := constraint.SortedDescendants(ctx, st, root)
	if err != nil {
		return 0, err
	}
	for _, d := range descendants {
		providers = append(providers, d.ID)
	}
	// counted dedupes sources across the subtree: a pool shared into
	// both the root and a descendant contributes its free capacity
	// once, not once per sharing edge.
	counted := map[model.ID]bool{}
	addFree := func(pid model.ID) error {
		if counted[pid] {
			return nil
		}
		counted[pid] = true
		inv, err := st.GetInventory(ctx, pid, class)
		if err != nil {
			return nil
		}
		used, err := usage.Used(ctx, pid, class)
		if err != nil {
			return err
		}
		if free := inv.EffectiveCapacity() - used; free > 0 {
			total += free
		}
		return nil
	}
	for _, pid := range providers {
		if err := addFree(pid); err != nil {
			return 0, err
		}
		shares, err := st.ListSharesInto(ctx, pid)
		if err != nil {
			return 0, err
		}
		for _, s := range shares {
			if !containsClass(s.Classes, class) {
				continue
			}
			if err := addFree(s.FromProviderID); err != nil {
				return 0, err
			}
		}
	}
	return total, nil
}

func containsClass(classes []string, class string) bool {
	for _, c := range classes {
		if c == class {
			return true
		}
	}
	return false
}

// RAM is the free-MEMORY_MB signal.
func RAM(ctx context.Context, st Store, usage capacity.UsageReader, req *model.Request, c *model.AllocationCandidate) (float64, error) {
	v, err := freeClassOnRoot(ctx, st, usage, c.RootProviderID, "MEMORY_MB")
	return float64(v), err
}

// CPU is the free-VCPU signal.
func CPU(ctx context.Context, st Store, usage capacity.UsageReader, req *model.Request, c *model.AllocationCandidate) (float64, error) {
	v, err := freeClassOnRoot(ctx, st, usage, c.RootProviderID, "VCPU")
	return float64(v), err
}

// Disk is the free-DISK_GB signal, including shared providers.
func Disk(ctx context.Context, st Store, usage capacity.UsageReader, req *model.Request, c *model.AllocationCandidate) (float64, error) {
	v, err := freeClassOnRoot(ctx, st, usage, c.RootProviderID, "DISK_GB")
	return float64(v), err
}

// PCI is the free-PCI_DEVICE signal.
func PCI(ctx context.Context, st Store, usage capacity.UsageReader, req *model.Request, c *model.AllocationCandidate) (float64, error) {
	v, err := freeClassOnRoot(ctx, st, usage, c.RootProviderID, "PCI_DEVICE")
	return float64(v), err
}

// IOOps counts consumers in a transient ConsumerStatus with at least
// one allocation under the candidate root's subtree, a proxy for I/O
// contention (spec.md §4.5). Callers apply Sign = -1 for this weigher's
// negative convention.
func IOOps(ctx context.Context, st Store, usage capacity.UsageReader, req *model.Request, c *model.AllocationCandidate) (float64, error) {
	descendants, err := constraint.SortedDescendants(ctx, st, c.RootProviderID)
	if err != nil {
		return 0, err
	}
	providers := append([]model.ID{c.RootProviderID}, idsOf(descendants)...)
	seen := map[model.ID]bool{}
	var count float64
	for _, pid := range providers {
		allocs, err := st.ListAllocationsForProvider(ctx, pid)
		if err != nil {
			return 0, err
		}
		for _, a := range allocs {
			if seen[a.ConsumerID] {
				continue
			}
			cons, err := st.GetConsumer(ctx, a.ConsumerID)
			if err != nil {
				continue
			}
			seen[a.ConsumerID] = true
			if cons.Status.Transient() {
				count++
			}
		}
	}
	return count, nil
}

func idsOf(ps []*model.ResourceProvider) []model.ID {
	out := make([]model.ID, len(ps))
	for i, p := range ps {
		out[i] = p.ID
	}
	return out
}

// TraitAffinity is Σ weight over preferred global traits minus Σ weight
// over avoided global traits, evaluated against the candidate root.
func TraitAffinity(ctx context.Context, st Store, usage capacity.UsageReader, req *model.Request, c *model.AllocationCandidate) (float64, error) {
	root, err := st.GetProvider(ctx, c.RootProviderID)
	if err != nil {
		return 0, err
	}
	var score float64
	for _, t := range req.GlobalPreferredTraits {
		if root.HasTrait(t.Trait) {
			score += t.Weight
		}
	}
	for _, t := range req.GlobalAvoidedTraits {
		if root.HasTrait(t.Trait) {
			score -= t.Weight
		}
	}
	return score, nil
}

// ServerGroupSoftAffinity counts existing group members already placed
// on the candidate root, negated when the group's policy is
// soft-anti-affinity so higher member counts always normalize toward a
// lower combined score for that policy (spec.md §4.5: "positive for
// soft-affinity, negated for soft-anti-affinity" is a property of the
// request's own group policy, not a fixed per-deployment sign).
func ServerGroupSoftAffinity(ctx context.Context, st Store, usage capacity.UsageReader, req *model.Request, c *model.AllocationCandidate) (float64, error) {
	if req.ServerGroupID == "" {
		return 0, nil
	}
	group, err := st.GetServerGroup(ctx, req.ServerGroupID)
	if err != nil {
		return 0, err
	}
	if group.Policy.IsHard() {
		return 0, nil
	}
	n, err := constraint.SoftServerGroupCount(ctx, st, group, c.RootProviderID)
	if err != nil {
		return 0, err
	}
	if group.Policy == model.AntiAffinitySoft {
		return -float64(n), nil
	}
	return float64(n), nil
}

// CrossCell is 0 when the candidate root is the same cell (forest
// root-of-root, in Tachyon's single-level forest this is simply the
// same root) as the reference consumer's current placement, 1
// otherwise. Callers apply Sign = -1, so "same cell" normalizes to the
// higher score.
func CrossCell(ctx context.Context, st Store, usage capacity.UsageReader, req *model.Request, c *model.AllocationCandidate) (float64, error) {
	if req.ReferenceConsumerID == "" {
		return 0, nil
	}
	allocs, err := st.ListAllocationsForConsumer(ctx, req.ReferenceConsumerID)
	if err != nil || len(allocs) == 0 {
		return 1, nil
	}
	refRoot, err := st.RootOf(ctx, allocs[0].ProviderID)
	if err != nil {
		return 1, nil
	}
	if refRoot.ID == c.RootProviderID {
		return 0, nil
	}
	return 1, nil
}

// FailureCounter is a pluggable source for the BuildFailure signal.
// Failure history belongs to the caller/edge service that runs builds,
// not to the graph store (spec.md §9's caller-owns-retry-policy
// boundary extends to failure bookkeeping), so this package depends on
// an interface rather than a concrete store.
type FailureCounter interface {
	RecentFailures(ctx context.Context, providerID model.ID) (int, error)
}

// BuildFailureSignal binds a FailureCounter into a Signal; a nil
// counter always scores 0 (no penalty), the safe default when no
// failure history is wired in.
func BuildFailureSignal(counter FailureCounter) Signal {
	return func(ctx context.Context, st Store, usage capacity.UsageReader, req *model.Request, c *model.AllocationCandidate) (float64, error) {
		if counter == nil {
			return 0, nil
		}
		n, err := counter.RecentFailures(ctx, c.RootProviderID)
		return float64(n), err
	}
}

// VersionReader is a pluggable source for the HypervisorVersion signal,
// for the same reason as FailureCounter: hypervisor inventory isn't
// part of the graph model spec.md defines.
type VersionReader interface {
	NormalizedVersion(ctx context.Context, providerID model.ID) (float64, error)
}

// HypervisorVersionSignal binds a VersionReader into a Signal; a nil
// reader scores every candidate 0.5 (neutral after min-max
// normalization collapses to a single value anyway).
func HypervisorVersionSignal(reader VersionReader) Signal {
	return func(ctx context.Context, st Store, usage capacity.UsageReader, req *model.Request, c *model.AllocationCandidate) (float64, error) {
		if reader == nil {
			return 0.5, nil
		}
		return reader.NormalizedVersion(ctx, c.RootProviderID)
	}
}
