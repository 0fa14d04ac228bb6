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

// Package planner implements C6: the allocation-candidates operation of
// spec.md §4.6. It composes C3 (capacity), C4 (constraint), and C5
// (weigher) into the public Candidates() entry point, the same
// filter-then-score-then-rank shape as the teacher's
// scheduling.Scheduler.Solve → Results pipeline.
package planner

import (
	"context"
	"fmt"
	"sort"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/multierr"

	"github.com/tachyon-sched/tachyon/internal/capacity"
	"github.com/tachyon-sched/tachyon/internal/constraint"
	"github.com/tachyon-sched/tachyon/internal/model"
	"github.com/tachyon-sched/tachyon/internal/weigher"
)

// providerGenCache is a short-lived, process-wide cache of observed
// provider generations, trading a little staleness for fewer
// GetProvider round trips when a single Candidates() call touches the
// same provider across several resource groups or NUMA cells. Staleness
// here is harmless: claim.Execute always re-verifies the live
// generation before committing, so a stale ObservedGeneration only ever
// costs a caller a conflict_generation retry, never a correctness bug.
var providerGenCache = gocache.New(2*time.Second, 4*time.Second)

// Store is the full read surface Candidates needs.
type Store interface {
	weigher.Store
	ListRoots(ctx context.Context) ([]*model.ResourceProvider, error)
}

// Options configures a single Candidates() call.
type Options struct {
	WeigherSpecs []weigher.Spec
	Override     weigher.AggregateOverride
}

// Candidates implements spec.md §4.6's four-step algorithm. usage
// resolves current_used for every capacity check; pass a plain
// capacity.StoreReader for live planning or an
// internal/simulation.OverlayUsageReader when req.OverlaySessionID is
// set (the caller decides, so this package stays free of a dependency
// on the simulation subsystem).
func Candidates(ctx context.Context, st Store, usage capacity.UsageReader, req *model.Request, opts Options) ([]*model.AllocationCandidate, error) {
	roots, err := resolveRoots(ctx, st, req)
	if err != nil {
		return nil, err
	}

	var candidates []*model.AllocationCandidate
	var screenErrs error
	for _, root := range roots {
		verdict, err := constraint.ScreenRoot(ctx, st, req, root)
		if err != nil {
			screenErrs = multierr.Append(screenErrs, err)
			continue
		}
		if !verdict.OK {
			continue
		}
		c, ok, err := assignRoot(ctx, st, usage, req, root)
		if err != nil {
			screenErrs = multierr.Append(screenErrs, err)
			continue
		}
		if ok {
			candidates = append(candidates, c)
		}
	}
	if screenErrs != nil && len(candidates) == 0 {
		return nil, screenErrs
	}
	candidates, err = dedupeByAllocationSet(candidates)
	if err != nil {
		return nil, err
	}

	ranked, err := weigher.Score(ctx, st, usage, req, candidates, opts.WeigherSpecs, opts.Override)
	if err != nil {
		return nil, err
	}
	breakGenerationTies(ranked)

	limit := req.Limit
	if limit <= 0 || limit > len(ranked) {
		limit = len(ranked)
	}
	return ranked[:limit], nil
}

// dedupeByAllocationSet drops candidates that resolved to the exact
// same set of (provider, class, amount) lines as one already kept. Two
// different roots can land on an identical allocation set once a
// sharing provider (spec.md §4.4's shares relation) is involved, and
// presenting the same placement twice would just waste a caller's
// limit slots.
func dedupeByAllocationSet(candidates []*model.AllocationCandidate) ([]*model.AllocationCandidate, error) {
	if len(candidates) < 2 {
		return candidates, nil
	}
	seen := make(map[uint64]bool, len(candidates))
	out := make([]*model.AllocationCandidate, 0, len(candidates))
	for _, c := range candidates {
		h, err := c.Hash()
		if err != nil {
			return nil, fmt.Errorf("hashing candidate allocation set: %w", err)
		}
		if seen[h] {
			continue
		}
		seen[h] = true
		out = append(out, c)
	}
	return out, nil
}

func resolveRoots(ctx context.Context, st Store, req *model.Request) ([]*model.ResourceProvider, error) {
	if req.InTree != "" {
		p, err := st.GetProvider(ctx, req.InTree)
		if err != nil {
			return nil, err
		}
		return []*model.ResourceProvider{p}, nil
	}
	return st.ListRoots(ctx)
}

// breakGenerationTies re-stabilizes weigher.Score's output: within a
// block of equal scores, spec.md §4.6 step 4 prefers descending
// generation freshness before weigher.Score's own lowest-uuid
// tie-break.
func breakGenerationTies(candidates []*model.AllocationCandidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		if candidates[i].RootGeneration != candidates[j].RootGeneration {
			return candidates[i].RootGeneration > candidates[j].RootGeneration
		}
		return candidates[i].RootProviderID < candidates[j].RootProviderID
	})
}

// assignRoot solves the group-assignment problem of spec.md §4.6 step 2
// for a single surviving root: NUMA/PCI topology first (they claim
// specific subtree providers), then each resource group in request
// order, greedily with backtracking, all sharing one Consumed partition
// so no inventory is double-counted across groups or topology fits.
func assignRoot(ctx context.Context, st Store, usage capacity.UsageReader, req *model.Request, root *model.ResourceProvider) (*model.AllocationCandidate, bool, error) {
	consumed := constraint.Consumed{}
	gens := generationCache{st: st}
	var allocations []model.CandidateAllocation

	numaAssignment, ok, err := constraint.FitNUMACells(ctx, st, usage, root.ID, req.NUMACells)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	for idx, cell := range req.NUMACells {
		nodeID := numaAssignment[idx]
		gen, err := gens.get(ctx, nodeID)
		if err != nil {
			return nil, false, err
		}
		for _, amt := range cell.Resources {
			allocations = append(allocations, model.CandidateAllocation{
				ProviderID:         nodeID,
				Class:              amt.Class,
				Amount:             amt.Amount,
				ObservedGeneration: gen,
			})
			consumed.Commit(nodeID, amt.Class, amt.Amount)
		}
	}

	pciAssignment, ok, err := constraint.FitPCI(ctx, st, usage, root.ID, req.PCIRequests, req.PCIAffinity, numaAssignment)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	for idx := range req.PCIRequests {
		for _, providerID := range pciAssignment[idx] {
			gen, err := gens.get(ctx, providerID)
			if err != nil {
				return nil, false, err
			}
			allocations = append(allocations, model.CandidateAllocation{
				ProviderID:         providerID,
				Class:              "PCI_DEVICE",
				Amount:             1,
				ObservedGeneration: gen,
			})
			consumed.Commit(providerID, "PCI_DEVICE", 1)
		}
	}

	for _, group := range req.Groups {
		groupAllocs, ok, err := assignGroup(ctx, st, usage, root.ID, group, consumed)
		if err != nil {
			return nil, false, err
		}
		if !ok {
			return nil, false, nil
		}
		for i, a := range groupAllocs {
			gen, err := gens.get(ctx, a.ProviderID)
			if err != nil {
				return nil, false, err
			}
			groupAllocs[i].ObservedGeneration = gen
			groupAllocs[i].GroupSuffix = group.Suffix
			consumed.Commit(a.ProviderID, a.Class, a.Amount)
		}
		allocations = append(allocations, groupAllocs...)
	}

	return &model.AllocationCandidate{
		RootProviderID: root.ID,
		RootGeneration: root.Generation,
		Allocations:    allocations,
	}, true, nil
}

// generationCache avoids re-fetching a provider's generation once
// per (provider, class) allocation line when the same provider covers
// several lines.
type generationCache struct {
	st    Store
	cache map[model.ID]model.Generation
}

func (g *generationCache) get(ctx context.Context, id model.ID) (model.Generation, error) {
	if g.cache == nil {
		g.cache = map[model.ID]model.Generation{}
	}
	if gen, ok := g.cache[id]; ok {
		return gen, nil
	}
	if cached, ok := providerGenCache.Get(string(id)); ok {
		gen := cached.(model.Generation)
		g.cache[id] = gen
		return gen, nil
	}
	p, err := g.st.GetProvider(ctx, id)
	if err != nil {
		return 0, err
	}
	g.cache[id] = p.Generation
	providerGenCache.SetDefault(string(id), p.Generation)
	return p.Generation, nil
}

// assignGroup backtracks over a group's resource lines, trying each
// FindCoverage source (already tie-break ordered) in turn so an earlier
// line's greedy pick can be undone if it starves a later line of the
// same group.
func assignGroup(ctx context.Context, st Store, usage capacity.UsageReader, root model.ID, group model.ResourceGroup, consumed constraint.Consumed) ([]model.CandidateAllocation, bool, error) {
	return backtrackGroup(ctx, st, usage, root, group, 0, consumed, nil)
}

func backtrackGroup(ctx context.Context, st Store, usage capacity.UsageReader, root model.ID, group model.ResourceGroup, idx int, consumed constraint.Consumed, acc []model.CandidateAllocation) ([]model.CandidateAllocation, bool, error) {
	if idx == len(group.Resources) {
		out := make([]model.CandidateAllocation, len(acc))
		copy(out, acc)
		return out, true, nil
	}
	line := group.Resources[idx]
	sources, err := constraint.FindCoverage(ctx, st, usage, root, line.Class, line.Amount, consumed)
	if err != nil {
		return nil, false, err
	}
	for _, src := range sources {
		// A suffixed group's traits bind to the provider chosen for
		// that group, not the root (constraint.ScreenRoot already
		// handled the default group at root granularity).
		if group.Suffix != "" {
			ok, err := providerMatchesGroupTraits(ctx, st, src.ProviderID, group)
			if err != nil {
				return nil, false, err
			}
			if !ok {
				continue
			}
		}
		trial := cloneConsumed(consumed)
		trial.Commit(src.ProviderID, line.Class, line.Amount)
		next := append(acc, model.CandidateAllocation{
			ProviderID: src.ProviderID,
			Class:      line.Class,
			Amount:     line.Amount,
		})
		result, ok, err := backtrackGroup(ctx, st, usage, root, group, idx+1, trial, next)
		if err != nil {
			return nil, false, err
		}
		if ok {
			return result, true, nil
		}
	}
	return nil, false, nil
}

func providerMatchesGroupTraits(ctx context.Context, st Store, id model.ID, group model.ResourceGroup) (bool, error) {
	p, err := st.GetProvider(ctx, id)
	if err != nil {
		return false, err
	}
	for _, t := range group.RequiredTraits {
		if !p.HasTrait(t) {
			return false, nil
		}
	}
	for _, t := range group.ForbiddenTraits {
		if p.HasTrait(t) {
			return false, nil
		}
	}
	return true, nil
}

func cloneConsumed(c constraint.Consumed) constraint.Consumed {
	out := constraint.Consumed{}
	for pid, byClass := range c {
		cp := make(map[string]int64, len(byClass))
		for class, amt := range byClass {
			cp[class] = amt
		}
		out[pid] = cp
	}
	return out
}
