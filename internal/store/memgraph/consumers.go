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
)

func (tx *Tx) GetConsumer(ctx context.Context, id model.ID) (*model.Consumer, error) {
	if err := tx.checkDeadline(); err != nil {
		return nil, err
	}
	c, ok := tx.working.consumers[id]
	if !ok {
		return nil, errs.New(errs.NotFound, "consumer %s not found", id)
	}
	cp := *c
	return &cp, nil
}

// UpsertConsumer creates the consumer if absent (expected must be 0,
// spec.md §4.7's "or null for new") or checks expected against the
// stored generation otherwise. It writes ownership/metadata fields only;
// ReplaceAllocations is the consumer generation's single owner (spec.md
// §4.2: the generation bumps when a consumer's allocations change, not
// on every metadata touch), so an existing consumer's generation is
// carried over unchanged here rather than bumped a second time.
func (tx *Tx) UpsertConsumer(ctx context.Context, c *model.Consumer, expected model.Generation) error {
	if err := tx.checkDeadline(); err != nil {
		return err
	}
	existing, ok := tx.working.consumers[c.ID]
	if !ok {
		if expected != 0 {
			return errs.New(errs.ConflictGeneration, "consumer %s does not exist but a generation was expected", c.ID)
		}
		cp := *c
		cp.Generation = 1
		tx.working.consumers[c.ID] = &cp
		return nil
	}
	if expected != 0 && existing.Generation != expected {
		return errs.New(errs.ConflictGeneration, "consumer %s generation mismatch: expected %d, have %d", c.ID, expected, existing.Generation)
	}
	cp := *c
	cp.Generation = existing.Generation
	tx.working.consumers[c.ID] = &cp
	return nil
}

// ReplaceAllocations implements spec.md §4.7 steps 3-5 for the
// allocation half: remove the consumer's prior allocations, create the
// new set, bump every touched provider's and the consumer's
// generation. Capacity feasibility has already been verified by the
// caller (internal/capacity, re-checked by internal/claim); this method
// only performs the structural per-allocation bound check, since it is
// the last line of defense against a caller bypassing the claim
// executor.
func (tx *Tx) ReplaceAllocations(ctx context.Context, consumerID model.ID, allocations []model.Allocation) error {
	if err := tx.checkDeadline(); err != nil {
		return err
	}
	touched := map[model.ID]bool{}
	for pid, byClass := range tx.working.allocations {
		for _, byConsumer := range byClass {
			if _, ok := byConsumer[consumerID]; ok {
				delete(byConsumer, consumerID)
				touched[pid] = true
			}
		}
	}
	now := now()
	for _, a := range allocations {
		inv, ok := tx.working.inventories[a.ProviderID][a.Class]
		if !ok {
			return errs.New(errs.BadRequest, "no %s inventory on provider %s", a.Class, a.ProviderID)
		}
		if a.Used < inv.MinUnit || a.Used > inv.MaxUnit || a.Used%inv.StepSize != 0 {
			return errs.New(errs.BadRequest, "allocation %d on %s/%s violates min/max/step bounds", a.Used, a.ProviderID, a.Class)
		}
		byClass, ok := tx.working.allocations[a.ProviderID]
		if !ok {
			byClass = map[string]map[model.ID]*model.Allocation{}
			tx.working.allocations[a.ProviderID] = byClass
		}
		byConsumer, ok := byClass[a.Class]
		if !ok {
			byConsumer = map[model.ID]*model.Allocation{}
			byClass[a.Class] = byConsumer
		}
		cp := a
		cp.ConsumerID = consumerID
		if cp.CreatedAt.IsZero() {
			cp.CreatedAt = now
		}
		cp.UpdatedAt = now
		byConsumer[consumerID] = &cp
		touched[a.ProviderID] = true
	}
	for pid := range touched {
		if rp, ok := tx.working.providers[pid]; ok {
			rp.Generation++
		}
	}
	if len(allocations) == 0 {
		delete(tx.working.consumers, consumerID)
		return nil
	}
	if c, ok := tx.working.consumers[consumerID]; ok {
		c.Generation++
	}
	return nil
}

func (tx *Tx) ListAllocationsForConsumer(ctx context.Context, consumerID model.ID) ([]model.Allocation, error) {
	if err := tx.checkDeadline(); err != nil {
		return nil, err
	}
	var out []model.Allocation
	for _, byClass := range tx.working.allocations {
		for _, byConsumer := range byClass {
			if a, ok := byConsumer[consumerID]; ok {
				out = append(out, *a)
			}
		}
	}
	return out, nil
}

func (tx *Tx) ListAllocationsForInventory(ctx context.Context, providerID model.ID, class string) ([]model.Allocation, error) {
	if err := tx.checkDeadline(); err != nil {
		return nil, err
	}
	var out []model.Allocation
	for _, a := range tx.working.allocations[providerID][class] {
		out = append(out, *a)
	}
	return out, nil
}

func (tx *Tx) ListAllocationsForProvider(ctx context.Context, providerID model.ID) ([]model.Allocation, error) {
	if err := tx.checkDeadline(); err != nil {
		return nil, err
	}
	var out []model.Allocation
	for _, byConsumer := range tx.working.allocations[providerID] {
		for _, a := range byConsumer {
			out = append(out, *a)
		}
	}
	return out, nil
}
