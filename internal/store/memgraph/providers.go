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

func (tx *Tx) CreateProvider(ctx context.Context, rp *model.ResourceProvider) error {
	if err := tx.checkDeadline(); err != nil {
		return err
	}
	if rp.ID == "" {
		return errs.New(errs.BadRequest, "provider id is required")
	}
	if _, exists := tx.working.providers[rp.ID]; exists {
		return errs.New(errs.ConflictUniqueness, "provider %s already exists", rp.ID)
	}
	if _, exists := tx.working.providerNames[rp.Name]; exists {
		return errs.New(errs.ConflictUniqueness, "provider name %q already in use", rp.Name)
	}
	if rp.ParentID != "" {
		parent, ok := tx.working.providers[rp.ParentID]
		if !ok {
			return errs.New(errs.NotFound, "parent provider %s not found", rp.ParentID)
		}
		ancestors, err := tx.ancestorsOf(parent.ID)
		if err != nil {
			return err
		}
		if err := store.ValidateParent(rp.ID, parent.ID, ancestors); err != nil {
			return err
		}
	}
	rp.Generation = 1
	tx.working.providers[rp.ID] = cloneProvider(rp)
	tx.working.providerNames[rp.Name] = rp.ID
	tx.working.providerTraits[rp.ID] = map[string]bool{}
	return nil
}

func (tx *Tx) GetProvider(ctx context.Context, id model.ID) (*model.ResourceProvider, error) {
	if err := tx.checkDeadline(); err != nil {
		return nil, err
	}
	rp, ok := tx.working.providers[id]
	if !ok {
		return nil, errs.New(errs.NotFound, "provider %s not found", id)
	}
	return tx.materializeProvider(rp), nil
}

// materializeProvider fills the read-only Traits/Aggregates convenience
// fields from the canonical membership maps before handing a value copy
// to the caller (spec.md §3 ownership semantics: every read is a value
// copy).
func (tx *Tx) materializeProvider(rp *model.ResourceProvider) *model.ResourceProvider {
	cp := cloneProvider(rp)
	traits := tx.working.providerTraits[rp.ID]
	cp.Traits = make([]string, 0, len(traits))
	for t := range traits {
		cp.Traits = append(cp.Traits, t)
	}
	aggs := tx.working.providerAggregates[rp.ID]
	cp.Aggregates = make([]model.ID, 0, len(aggs))
	for a := range aggs {
		cp.Aggregates = append(cp.Aggregates, a)
	}
	return cp
}

func (tx *Tx) UpdateProvider(ctx context.Context, rp *model.ResourceProvider, expected model.Generation) error {
	if err := tx.checkDeadline(); err != nil {
		return err
	}
	existing, ok := tx.working.providers[rp.ID]
	if !ok {
		return errs.New(errs.NotFound, "provider %s not found", rp.ID)
	}
	if expected != 0 && existing.Generation != expected {
		return errs.New(errs.ConflictGeneration, "provider %s generation mismatch: expected %d, have %d", rp.ID, expected, existing.Generation)
	}
	if rp.Name != existing.Name {
		if _, exists := tx.working.providerNames[rp.Name]; exists {
			return errs.New(errs.ConflictUniqueness, "provider name %q already in use", rp.Name)
		}
		delete(tx.working.providerNames, existing.Name)
		tx.working.providerNames[rp.Name] = rp.ID
	}
	updated := cloneProvider(rp)
	updated.Generation = existing.Generation + 1
	tx.working.providers[rp.ID] = updated
	return nil
}

func (tx *Tx) DeleteProvider(ctx context.Context, id model.ID) error {
	if err := tx.checkDeadline(); err != nil {
		return err
	}
	rp, ok := tx.working.providers[id]
	if !ok {
		return errs.New(errs.NotFound, "provider %s not found", id)
	}
	children, _ := tx.ListChildren(ctx, id)
	if len(children) > 0 {
		return errs.New(errs.InvalidState, "provider %s has children and cannot be deleted", id)
	}
	for _, byClass := range tx.working.allocations[id] {
		if len(byClass) > 0 {
			return errs.New(errs.InvalidState, "provider %s has active allocations and cannot be deleted", id)
		}
	}
	delete(tx.working.providers, id)
	delete(tx.working.providerNames, rp.Name)
	delete(tx.working.providerTraits, id)
	delete(tx.working.inventories, id)
	delete(tx.working.allocations, id)
	for aggID := range tx.working.providerAggregates[id] {
		delete(tx.working.aggregateMembers[aggID], id)
	}
	delete(tx.working.providerAggregates, id)
	return nil
}

func (tx *Tx) ListRoots(ctx context.Context) ([]*model.ResourceProvider, error) {
	if err := tx.checkDeadline(); err != nil {
		return nil, err
	}
	var out []*model.ResourceProvider
	for _, rp := range tx.working.providers {
		if rp.IsRoot() {
			out = append(out, tx.materializeProvider(rp))
		}
	}
	return out, nil
}

func (tx *Tx) ListChildren(ctx context.Context, id model.ID) ([]*model.ResourceProvider, error) {
	if err := tx.checkDeadline(); err != nil {
		return nil, err
	}
	var out []*model.ResourceProvider
	for _, rp := range tx.working.providers {
		if rp.ParentID == id {
			out = append(out, tx.materializeProvider(rp))
		}
	}
	return out, nil
}

func (tx *Tx) ListDescendants(ctx context.Context, id model.ID) ([]*model.ResourceProvider, error) {
	if err := tx.checkDeadline(); err != nil {
		return nil, err
	}
	var out []*model.ResourceProvider
	var walk func(model.ID)
	walk = func(parent model.ID) {
		for _, rp := range tx.working.providers {
			if rp.ParentID == parent {
				out = append(out, tx.materializeProvider(rp))
				walk(rp.ID)
			}
		}
	}
	walk(id)
	return out, nil
}

// RootOf computes the forest root of id by traversal (never cached as a
// field, spec.md §9).
func (tx *Tx) RootOf(ctx context.Context, id model.ID) (*model.ResourceProvider, error) {
	if err := tx.checkDeadline(); err != nil {
		return nil, err
	}
	cur, ok := tx.working.providers[id]
	if !ok {
		return nil, errs.New(errs.NotFound, "provider %s not found", id)
	}
	seen := map[model.ID]bool{}
	for !cur.IsRoot() {
		if seen[cur.ID] {
			return nil, errs.New(errs.Fatal, "parent_of cycle detected at %s", cur.ID)
		}
		seen[cur.ID] = true
		next, ok := tx.working.providers[cur.ParentID]
		if !ok {
			return nil, errs.New(errs.Fatal, "dangling parent %s referenced by %s", cur.ParentID, cur.ID)
		}
		cur = next
	}
	return tx.materializeProvider(cur), nil
}

func (tx *Tx) ancestorsOf(id model.ID) ([]model.ID, error) {
	var out []model.ID
	cur, ok := tx.working.providers[id]
	if !ok {
		return nil, errs.New(errs.NotFound, "provider %s not found", id)
	}
	seen := map[model.ID]bool{}
	out = append(out, cur.ID)
	for !cur.IsRoot() {
		if seen[cur.ID] {
			return nil, errs.New(errs.Fatal, "parent_of cycle detected at %s", cur.ID)
		}
		seen[cur.ID] = true
		next, ok := tx.working.providers[cur.ParentID]
		if !ok {
			break
		}
		out = append(out, next.ID)
		cur = next
	}
	return out, nil
}
