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

func (tx *Tx) AddTrait(ctx context.Context, providerID model.ID, trait string) error {
	if err := tx.checkDeadline(); err != nil {
		return err
	}
	rp, ok := tx.working.providers[providerID]
	if !ok {
		return errs.New(errs.NotFound, "provider %s not found", providerID)
	}
	if !model.IsStandardTrait(trait) {
		if err := store.ValidateCustomName(trait, false); err != nil {
			return err
		}
	}
	set, ok := tx.working.providerTraits[providerID]
	if !ok {
		set = map[string]bool{}
		tx.working.providerTraits[providerID] = set
	}
	if set[trait] {
		return nil
	}
	set[trait] = true
	rp.Generation++
	return nil
}

func (tx *Tx) RemoveTrait(ctx context.Context, providerID model.ID, trait string) error {
	if err := tx.checkDeadline(); err != nil {
		return err
	}
	rp, ok := tx.working.providers[providerID]
	if !ok {
		return errs.New(errs.NotFound, "provider %s not found", providerID)
	}
	set, ok := tx.working.providerTraits[providerID]
	if !ok || !set[trait] {
		return nil
	}
	delete(set, trait)
	rp.Generation++
	return nil
}

func (tx *Tx) GetAggregate(ctx context.Context, id model.ID) (*model.Aggregate, error) {
	if err := tx.checkDeadline(); err != nil {
		return nil, err
	}
	agg, ok := tx.working.aggregates[id]
	if !ok {
		return nil, errs.New(errs.NotFound, "aggregate %s not found", id)
	}
	cp := *agg
	return &cp, nil
}

func (tx *Tx) ListAggregatesForProvider(ctx context.Context, providerID model.ID) ([]*model.Aggregate, error) {
	if err := tx.checkDeadline(); err != nil {
		return nil, err
	}
	var out []*model.Aggregate
	for aggID := range tx.working.providerAggregates[providerID] {
		agg, ok := tx.working.aggregates[aggID]
		if !ok {
			continue
		}
		cp := *agg
		out = append(out, &cp)
	}
	return out, nil
}

func (tx *Tx) UpsertAggregate(ctx context.Context, agg *model.Aggregate) error {
	if err := tx.checkDeadline(); err != nil {
		return err
	}
	if existingID, exists := tx.working.aggregateNames[agg.Name]; exists && existingID != agg.ID {
		return errs.New(errs.ConflictUniqueness, "aggregate name %q already in use", agg.Name)
	}
	if agg.AvailabilityZone != "" {
		if ownerID, exists := tx.working.azNames[agg.AvailabilityZone]; exists && ownerID != agg.ID {
			return errs.New(errs.ConflictUniqueness, "availability zone %q already defined by aggregate %s", agg.AvailabilityZone, ownerID)
		}
	}
	if existing, ok := tx.working.aggregates[agg.ID]; ok && existing.AvailabilityZone != "" && existing.AvailabilityZone != agg.AvailabilityZone {
		delete(tx.working.azNames, existing.AvailabilityZone)
	}
	cp := *agg
	tx.working.aggregates[agg.ID] = &cp
	tx.working.aggregateNames[agg.Name] = agg.ID
	if agg.AvailabilityZone != "" {
		tx.working.azNames[agg.AvailabilityZone] = agg.ID
	}
	if _, ok := tx.working.aggregateMembers[agg.ID]; !ok {
		tx.working.aggregateMembers[agg.ID] = map[model.ID]bool{}
	}
	return nil
}

func (tx *Tx) AddMember(ctx context.Context, aggregateID, providerID model.ID) error {
	if err := tx.checkDeadline(); err != nil {
		return err
	}
	if _, ok := tx.working.aggregates[aggregateID]; !ok {
		return errs.New(errs.NotFound, "aggregate %s not found", aggregateID)
	}
	rp, ok := tx.working.providers[providerID]
	if !ok {
		return errs.New(errs.NotFound, "provider %s not found", providerID)
	}
	members, ok := tx.working.aggregateMembers[aggregateID]
	if !ok {
		members = map[model.ID]bool{}
		tx.working.aggregateMembers[aggregateID] = members
	}
	if members[providerID] {
		return nil
	}
	members[providerID] = true
	pa, ok := tx.working.providerAggregates[providerID]
	if !ok {
		pa = map[model.ID]bool{}
		tx.working.providerAggregates[providerID] = pa
	}
	pa[aggregateID] = true
	rp.Generation++
	return nil
}

func (tx *Tx) RemoveMember(ctx context.Context, aggregateID, providerID model.ID) error {
	if err := tx.checkDeadline(); err != nil {
		return err
	}
	rp, ok := tx.working.providers[providerID]
	if !ok {
		return errs.New(errs.NotFound, "provider %s not found", providerID)
	}
	if members, ok := tx.working.aggregateMembers[aggregateID]; ok {
		delete(members, providerID)
	}
	if pa, ok := tx.working.providerAggregates[providerID]; ok {
		delete(pa, aggregateID)
	}
	rp.Generation++
	return nil
}
