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

// Package weigher implements C5: scoring surviving candidates (spec.md
// §4.5). Every built-in weigher is a pure function of (store snapshot,
// usage reader, request, candidate) to a raw float score; this package
// owns only the normalization and combination machinery plus the
// built-in signal catalog, mirroring the way the teacher's scheduler
// keeps each scoring dimension an independent, testable function before
// combining them (other_examples/ `scheduler.go`, weighted node scoring).
package weigher

import (
	"context"
	"sort"

	"github.com/samber/lo"
	"github.com/tachyon-sched/tachyon/internal/capacity"
	"github.com/tachyon-sched/tachyon/internal/constraint"
	"github.com/tachyon-sched/tachyon/internal/model"
)

// Store is the slice of store.Tx the built-in signals depend on.
type Store interface {
	constraint.CoverageStore
	ListInventories(ctx context.Context, providerID model.ID) ([]*model.Inventory, error)
	ListAllocationsForProvider(ctx context.Context, providerID model.ID) ([]model.Allocation, error)
	GetConsumer(ctx context.Context, id model.ID) (*model.Consumer, error)
}

// Signal computes one weigher's raw (unnormalized) score for a
// candidate. Higher is always "better" for that weigher's own sign
// convention; Spec applies Sign to flip weighers whose raw scale is a
// penalty (spec.md §4.5 "sign-configurable").
type Signal func(ctx context.Context, st Store, usage capacity.UsageReader, req *model.Request, c *model.AllocationCandidate) (float64, error)

// Spec binds a named built-in signal to its combination parameters.
type Spec struct {
	Name       string
	Fn         Signal
	Multiplier float64
	// Sign is multiplied into the normalized score before combination,
	// so a caller can flip a weigher from spread to stack (RAM/CPU/Disk)
	// or select the negated convention (IO-ops, CrossCell, BuildFailure)
	// without writing a second signal function.
	Sign float64
}

// AggregateOverride resolves a per-aggregate multiplier override for a
// named weigher against a candidate's root aggregates; it returns ok ==
// false when no aggregate the root belongs to overrides this weigher.
// When multiple aggregates override the same weigher, the function
// resolves them to the minimum (spec.md §4.5); Score passes it all of
// the root's aggregates.
type AggregateOverride func(aggs []*model.Aggregate, weigherName string) (float64, bool)

// TraitWeightOverride implements AggregateOverride for the one override
// spec.md names explicitly: Aggregate.TraitWeightMultiplier, applied
// only to the TraitAffinity weigher. Multiple aggregates take the
// minimum (most conservative) override.
func TraitWeightOverride(aggs []*model.Aggregate, weigherName string) (float64, bool) {
	if weigherName != "TraitAffinity" {
		return 0, false
	}
	var best *float64
	for _, a := range aggs {
		if a.TraitWeightMultiplier == nil {
			continue
		}
		if best == nil || *a.TraitWeightMultiplier < *best {
			v := *a.TraitWeightMultiplier
			best = &v
		}
	}
	if best == nil {
		return 0, false
	}
	return *best, true
}

// Score computes, normalizes, combines, and writes Score into every
// candidate in place, then returns candidates sorted best-first with
// the lowest-uuid tie-break spec.md §4.5 requires.
func Score(ctx context.Context, st Store, usage capacity.UsageReader, req *model.Request, candidates []*model.AllocationCandidate, specs []Spec, override AggregateOverride) ([]*model.AllocationCandidate, error) {
	if len(candidates) == 0 {
		return candidates, nil
	}

	raw := make(map[string][]float64, len(specs))
	for _, spec := range specs {
		scores := make([]float64, len(candidates))
		for i, c := range candidates {
			v, err := spec.Fn(ctx, st, usage, req, c)
			if err != nil {
				return nil, err
			}
			scores[i] = v
		}
		raw[spec.Name] = scores
	}

	for _, c := range candidates {
		c.Score = 0
	}

	for _, spec := range specs {
		scores := raw[spec.Name]
		normalized := minMaxNormalize(scores)
		for i, c := range candidates {
			multiplier := spec.Multiplier
			if override != nil {
				aggs, err := st.ListAggregatesForProvider(ctx, c.RootProviderID)
				if err != nil {
					return nil, err
				}
				if ov, ok := override(aggs, spec.Name); ok {
					multiplier = ov
				}
			}
			c.Score += multiplier * spec.Sign * normalized[i]
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].RootProviderID < candidates[j].RootProviderID
	})
	return candidates, nil
}

// Multipliers is the caller-configurable weight for each built-in
// weigher, loaded from internal/config's weigher table (spec.md §6).
// Zero-value Multipliers yields every weigher a multiplier of 0 (i.e.
// disabled); callers load real values from config before calling
// DefaultSpecs.
type Multipliers struct {
	RAM                     float64
	CPU                     float64
	Disk                    float64
	IOOps                   float64
	PCI                     float64
	TraitAffinity           float64
	ServerGroupSoftAffinity float64
	CrossCell               float64
	BuildFailure            float64
	HypervisorVersion       float64
}

// DefaultSpecs binds the built-in signal catalog to the sign
// conventions spec.md §4.5 fixes and the multipliers a deployment
// configures. Stack-mode for RAM/CPU/Disk (spread vs stack) is just a
// negative multiplier, per the table's own wording, so Sign is always
// +1 for those three and the caller flips behavior via the multiplier's
// sign instead of a second code path.
func DefaultSpecs(m Multipliers, failures FailureCounter, versions VersionReader) []Spec {
	return []Spec{
		{Name: "RAM", Fn: RAM, Multiplier: m.RAM, Sign: 1},
		{Name: "CPU", Fn: CPU, Multiplier: m.CPU, Sign: 1},
		{Name: "Disk", Fn: Disk, Multiplier: m.Disk, Sign: 1},
		{Name: "IOOps", Fn: IOOps, Multiplier: m.IOOps, Sign: -1},
		{Name: "PCI", Fn: PCI, Multiplier: m.PCI, Sign: 1},
		{Name: "TraitAffinity", Fn: TraitAffinity, Multiplier: m.TraitAffinity, Sign: 1},
		{Name: "ServerGroupSoftAffinity", Fn: ServerGroupSoftAffinity, Multiplier: m.ServerGroupSoftAffinity, Sign: 1},
		{Name: "CrossCell", Fn: CrossCell, Multiplier: m.CrossCell, Sign: -1},
		{Name: "BuildFailure", Fn: BuildFailureSignal(failures), Multiplier: m.BuildFailure, Sign: -1},
		{Name: "HypervisorVersion", Fn: HypervisorVersionSignal(versions), Multiplier: m.HypervisorVersion, Sign: 1},
	}
}

// minMaxNormalize maps scores into [0,1]; when every value is equal
// (including the single-candidate case) every normalized value is 0.5,
// per spec.md §4.5.
func minMaxNormalize(scores []float64) []float64 {
	out := make([]float64, len(scores))
	if len(scores) == 0 {
		return out
	}
	min, max := lo.Min(scores), lo.Max(scores)
	if max == min {
		for i := range out {
			out[i] = 0.5
		}
		return out
	}
	for i, v := range scores {
		out[i] = (v - min) / (max - min)
	}
	return out
}
