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

package memgraph

import (
	"context"

	"github.com/tachyon-sched/tachyon/internal/errs"
	"github.com/tachyon-sched/tachyon/internal/model"
	"github.com/tachyon-sched/tachyon/internal/store"
)

func (tx *Tx) GetInventory(ctx context.Context, providerID model.ID, class string) (*model.Inventory, error) {
	if err := tx.checkDeadline(); err != nil {
		return nil, err
	}
	byClass, ok := tx.working.inventories[providerID]
	if !ok {
		return nil, errs.New(errs.NotFound, "no inventories for provider %s", providerID)
	}
	inv, ok := byClass[class]
	if !ok {
		return nil, errs.New(errs.NotFound, "no %s inventory on provider %s", class, providerID)
	}
	cp := *inv
	return &cp, nil
}

func (tx *Tx) ListInventories(ctx context.Context, providerID model.ID) ([]*model.Inventory, error) {
	if err := tx.checkDeadline(); err != nil {
		return nil, err
	}
	var out []*model.Inventory
	for _, inv := range tx.working.inventories[providerID] {
		cp := *inv
		out = append(out, &cp)
	}
	return out, nil
}

// UpsertInventory creates or replaces the (ProviderID, Class) inventory
// record, validates its structural bounds, and bumps the owning
// provider's generation (spec.md §4.2: "every write that changes an
// RP's inventory... increments that RP's generation").
func (tx *Tx) UpsertInventory(ctx context.Context, inv *model.Inventory) error {
	if err := tx.checkDeadline(); err != nil {
		return err
	}
	if err := store.ValidateInventory(inv); err != nil {
		return err
	}
	rp, ok := tx.working.providers[inv.ProviderID]
	if !ok {
		return errs.New(errs.NotFound, "provider %s not found", inv.ProviderID)
	}
	if !model.IsStandardResourceClass(inv.Class) {
		if err := store.ValidateCustomName(inv.Class, false); err != nil {
			return err
		}
	}
	byClass, ok := tx.working.inventories[inv.ProviderID]
	if !ok {
		byClass = map[string]*model.Inventory{}
		tx.working.inventories[inv.ProviderID] = byClass
	}
	cp := *inv
	byClass[inv.Class] = &cp
	rp.Generation++
	return nil
}

func (tx *Tx) DeleteInventory(ctx context.Context, providerID model.ID, class string) error {
	if err := tx.checkDeadline(); err != nil {
		return err
	}
	rp, ok := tx.working.providers[providerID]
	if !ok {
		return errs.New(errs.NotFound, "provider %s not found", providerID)
	}
	if byConsumer := tx.working.allocations[providerID][class]; len(byConsumer) > 0 {
		return errs.New(errs.InvalidState, "inventory %s/%s has active allocations", providerID, class)
	}
	if byClass, ok := tx.working.inventories[providerID]; ok {
		delete(byClass, class)
	}
	rp.Generation++
	return nil
}
