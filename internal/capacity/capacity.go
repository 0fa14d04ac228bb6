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

// Package capacity implements C3: per-inventory capacity/usage
// arithmetic and allocation feasibility, spec.md §4.3.
package capacity

import (
	"context"

	"github.com/tachyon-sched/tachyon/internal/model"
)

// Result is the per-inventory capacity/used/free triple spec.md §4.3
// says the engine returns.
type Result struct {
	Capacity int64
	Used     int64
	Free     int64
	Feasible bool
	// Reason is set when Feasible is false; it names which bound
	// failed, for diagnostics only (planning failures are not errors,
	// spec.md §7).
	Reason string
}

// Evaluate computes the capacity/used/free triple and feasibility of
// allocating `requested` more units of inv, given currentUsed (already
// folded with any overlay, see UsageReader). Rounding policy: total,
// reserved, used are integers; allocation_ratio may be fractional but
// capacity truncates toward zero (spec.md §4.3).
func Evaluate(inv *model.Inventory, currentUsed, requested int64) Result {
	cap_ := inv.EffectiveCapacity()
	free := cap_ - currentUsed
	r := Result{Capacity: cap_, Used: currentUsed, Free: free}

	switch {
	case requested < inv.MinUnit:
		r.Reason = "requested amount below min_unit"
	case requested > inv.MaxUnit:
		r.Reason = "requested amount above max_unit"
	case requested%inv.StepSize != 0:
		r.Reason = "requested amount not a multiple of step_size"
	case requested > free:
		r.Reason = "requested amount exceeds free capacity"
	default:
		r.Feasible = true
	}
	return r
}

// UsageReader resolves "current_used" for a (provider, class) pair, the
// composition point spec.md §4.3 describes as "Σ used over incoming
// consumes edges plus the net effect of any overlay deltas". A plain
// store-backed reader satisfies this with just the first term; the
// simulation subsystem wraps it to add the second (see
// internal/simulation.OverlayUsageReader).
type UsageReader interface {
	Used(ctx context.Context, providerID model.ID, class string) (int64, error)
}

// StoreReader is the identity UsageReader: current_used is exactly the
// sum of live consumes edges, no overlay.
type StoreReader struct {
	Lister AllocationLister
}

// AllocationLister is the subset of store.Tx this package depends on,
// named narrowly to keep internal/capacity free of a store import
// cycle and to make the dependency explicit at the call site.
type AllocationLister interface {
	ListAllocationsForInventory(ctx context.Context, providerID model.ID, class string) ([]model.Allocation, error)
}

func (r StoreReader) Used(ctx context.Context, providerID model.ID, class string) (int64, error) {
	allocs, err := r.Lister.ListAllocationsForInventory(ctx, providerID, class)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, a := range allocs {
		total += a.Used
	}
	return total, nil
}
