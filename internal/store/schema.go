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

package store

import (
	"github.com/tachyon-sched/tachyon/internal/errs"
	"github.com/tachyon-sched/tachyon/internal/model"
)

// ValidateCustomName enforces spec.md §4.2's CUSTOM_[A-Z0-9_]+ pattern
// for non-standard Trait and ResourceClass names. Standard adapters call
// this at write time, not merely at query time (spec.md §4.2 preamble).
func ValidateCustomName(name string, standard bool) error {
	if standard {
		return nil
	}
	if !model.IsValidCustomName(name) {
		return errs.New(errs.BadRequest, "custom name %q must match CUSTOM_[A-Z0-9_]+", name)
	}
	return nil
}

// ValidateInventory checks the structural bounds spec.md §3 places on
// an Inventory record, independent of current usage (capacity-vs-usage
// feasibility is internal/capacity's job, not the store's).
func ValidateInventory(inv *model.Inventory) error {
	switch {
	case inv.Total < 0:
		return errs.New(errs.BadRequest, "inventory %s/%s: total must be >= 0", inv.ProviderID, inv.Class)
	case inv.Reserved < 0 || inv.Reserved > inv.Total:
		return errs.New(errs.BadRequest, "inventory %s/%s: reserved must be in [0, total]", inv.ProviderID, inv.Class)
	case inv.MinUnit < 1:
		return errs.New(errs.BadRequest, "inventory %s/%s: min_unit must be >= 1", inv.ProviderID, inv.Class)
	case inv.MaxUnit < inv.MinUnit:
		return errs.New(errs.BadRequest, "inventory %s/%s: max_unit must be >= min_unit", inv.ProviderID, inv.Class)
	case inv.StepSize < 1:
		return errs.New(errs.BadRequest, "inventory %s/%s: step_size must be >= 1", inv.ProviderID, inv.Class)
	case inv.AllocationRatio <= 0:
		return errs.New(errs.BadRequest, "inventory %s/%s: allocation_ratio must be > 0", inv.ProviderID, inv.Class)
	}
	return nil
}

// ValidateParent checks that attaching child under parent keeps the
// parent_of relation a forest: no self-parenting and no cycle through
// the ancestor chain already recorded in ancestors (the caller supplies
// the parent's ancestor chain, computed by traversal).
func ValidateParent(child, parent model.ID, ancestorsOfParent []model.ID) error {
	if child == parent {
		return errs.New(errs.BadRequest, "provider %s cannot be its own parent", child)
	}
	for _, a := range ancestorsOfParent {
		if a == child {
			return errs.New(errs.BadRequest, "attaching %s under %s would create a parent_of cycle", child, parent)
		}
	}
	return nil
}

// ValidateAllocationAmount checks the per-allocation invariant from
// spec.md §3: MinUnit <= used <= MaxUnit and used mod StepSize == 0.
// Aggregate capacity (sum across all consumers) is internal/capacity's
// job.
func ValidateAllocationAmount(inv *model.Inventory, used int64) error {
	if used < inv.MinUnit || used > inv.MaxUnit {
		return errs.New(errs.BadRequest, "requested amount %d outside [min_unit=%d, max_unit=%d]", used, inv.MinUnit, inv.MaxUnit)
	}
	if used%inv.StepSize != 0 {
		return errs.New(errs.BadRequest, "requested amount %d is not a multiple of step_size=%d", used, inv.StepSize)
	}
	return nil
}
