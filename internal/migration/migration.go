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

// Package migration implements C9: importing an external placement
// model in the fixed order spec.md §4.9 requires, idempotent by stable
// identifier on re-run.
package migration

import (
	"context"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/tachyon-sched/tachyon/internal/errs"
	"github.com/tachyon-sched/tachyon/internal/logging"
	"github.com/tachyon-sched/tachyon/internal/model"
	"github.com/tachyon-sched/tachyon/internal/store"
)

// TraitAssociation is one has_trait edge to import.
type TraitAssociation struct {
	ProviderID model.ID
	Trait      string
}

// Membership is one member_of edge to import.
type Membership struct {
	AggregateID model.ID
	ProviderID  model.ID
}

// ConsumerAllocations groups a consumer's allocations for import, since
// the store replaces a consumer's allocation set atomically rather than
// accepting them one at a time.
type ConsumerAllocations struct {
	Consumer    *model.Consumer
	Allocations []model.Allocation
}

// Snapshot is the external placement model to import, already
// normalized to Tachyon's own ID space (stable-identifier mapping from
// the source system is the caller's responsibility; C9 only guarantees
// idempotent upsert given stable IDs).
type Snapshot struct {
	ResourceClasses   []model.ResourceClass
	Traits            []model.Trait
	Providers         []*model.ResourceProvider
	Inventories       []*model.Inventory
	TraitAssociations []TraitAssociation
	Aggregates        []*model.Aggregate
	Memberships       []Membership
	Consumers         []ConsumerAllocations
}

// Report counts what Import did, per stage, for operator visibility.
type Report struct {
	ProvidersCreated, ProvidersUpdated     int
	InventoriesUpserted                   int
	TraitsApplied                         int
	AggregatesUpserted, MembershipsApplied int
	ConsumersImported                     int
	DryRun                                bool
}

// Import runs the six-stage pipeline of spec.md §4.9 in one
// transaction: resource classes and traits are validated only (Tachyon
// has no standalone node for either — they're realized through
// Inventory.Class and has_trait edges), then providers (parent-
// topologically sorted), inventories, trait associations, aggregates
// and memberships, and finally consumers and allocations. When dryRun
// is true the transaction is rolled back instead of committed, so a
// caller can preview an import's effect without touching live state;
// no speculative simulation session is involved.
func Import(ctx context.Context, st store.Store, snap Snapshot, dryRun bool) (*Report, error) {
	log := logging.FromContext(ctx)
	tx, err := st.Begin(ctx)
	if err != nil {
		return nil, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(ctx)
		}
	}()

	if err := tx.EnsureUniqueKey(ctx, "ResourceProvider", "name"); err != nil {
		return nil, err
	}
	if err := tx.EnsureUniqueKey(ctx, "Aggregate", "name"); err != nil {
		return nil, err
	}

	report := &Report{DryRun: dryRun}
	var errsAll error

	if err := validateResourceClasses(snap.ResourceClasses); err != nil {
		errsAll = multierr.Append(errsAll, err)
	}
	if err := validateTraits(snap.Traits); err != nil {
		errsAll = multierr.Append(errsAll, err)
	}

	ordered, err := topoSortProviders(snap.Providers)
	if err != nil {
		return nil, err
	}
	for _, p := range ordered {
		created, err := upsertProvider(ctx, tx, p)
		if err != nil {
			errsAll = multierr.Append(errsAll, errs.Wrap(errs.BadRequest, err, "importing provider %s", p.ID))
			continue
		}
		if created {
			report.ProvidersCreated++
		} else {
			report.ProvidersUpdated++
		}
	}

	for _, inv := range snap.Inventories {
		if err := tx.UpsertInventory(ctx, inv); err != nil {
			errsAll = multierr.Append(errsAll, errs.Wrap(errs.BadRequest, err, "importing inventory %s/%s", inv.ProviderID, inv.Class))
			continue
		}
		report.InventoriesUpserted++
	}

	for _, ta := range snap.TraitAssociations {
		if err := tx.AddTrait(ctx, ta.ProviderID, ta.Trait); err != nil {
			errsAll = multierr.Append(errsAll, errs.Wrap(errs.BadRequest, err, "applying trait %s to %s", ta.Trait, ta.ProviderID))
			continue
		}
		report.TraitsApplied++
	}

	for _, agg := range snap.Aggregates {
		if err := tx.UpsertAggregate(ctx, agg); err != nil {
			errsAll = multierr.Append(errsAll, errs.Wrap(errs.BadRequest, err, "importing aggregate %s", agg.ID))
			continue
		}
		report.AggregatesUpserted++
	}
	for _, m := range snap.Memberships {
		if err := tx.AddMember(ctx, m.AggregateID, m.ProviderID); err != nil {
			errsAll = multierr.Append(errsAll, errs.Wrap(errs.BadRequest, err, "adding %s to aggregate %s", m.ProviderID, m.AggregateID))
			continue
		}
		report.MembershipsApplied++
	}

	for _, ca := range snap.Consumers {
		if err := tx.UpsertConsumer(ctx, ca.Consumer, 0); err != nil {
			errsAll = multierr.Append(errsAll, errs.Wrap(errs.BadRequest, err, "importing consumer %s", ca.Consumer.ID))
			continue
		}
		if err := tx.ReplaceAllocations(ctx, ca.Consumer.ID, ca.Allocations); err != nil {
			errsAll = multierr.Append(errsAll, errs.Wrap(errs.BadRequest, err, "importing allocations for consumer %s", ca.Consumer.ID))
			continue
		}
		report.ConsumersImported++
	}

	if dryRun {
		log.Info("migration dry run complete, discarding transaction",
			zap.Int("providers_created", report.ProvidersCreated),
			zap.Int("providers_updated", report.ProvidersUpdated),
			zap.Int("consumers_imported", report.ConsumersImported),
		)
		return report, errsAll
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, multierr.Append(errsAll, err)
	}
	committed = true
	return report, errsAll
}

func validateResourceClasses(classes []model.ResourceClass) error {
	var errsAll error
	for _, c := range classes {
		if c.Standard && !model.IsStandardResourceClass(c.Name) {
			errsAll = multierr.Append(errsAll, errs.New(errs.BadRequest, "resource class %s marked standard but not in the frozen catalog", c.Name))
			continue
		}
		if !c.Standard && !model.IsValidCustomName(c.Name) {
			errsAll = multierr.Append(errsAll, errs.New(errs.BadRequest, "custom resource class %s does not match CUSTOM_ prefix pattern", c.Name))
		}
	}
	return errsAll
}

func validateTraits(traits []model.Trait) error {
	var errsAll error
	for _, t := range traits {
		if t.Standard && !model.IsStandardTrait(t.Name) {
			errsAll = multierr.Append(errsAll, errs.New(errs.BadRequest, "trait %s marked standard but not in the frozen catalog", t.Name))
			continue
		}
		if !t.Standard && !model.IsValidCustomName(t.Name) {
			errsAll = multierr.Append(errsAll, errs.New(errs.BadRequest, "custom trait %s does not match CUSTOM_ prefix pattern", t.Name))
		}
	}
	return errsAll
}

// topoSortProviders orders providers parent-before-child so CreateProvider
// never sees an unknown ParentID, using repeated-pass Kahn's algorithm
// since the input size for one migration batch is expected to be small
// relative to the cost of a real dependency-ordered heap.
func topoSortProviders(providers []*model.ResourceProvider) ([]*model.ResourceProvider, error) {
	remaining := make([]*model.ResourceProvider, len(providers))
	copy(remaining, providers)
	placed := map[model.ID]bool{}
	var ordered []*model.ResourceProvider

	for len(remaining) > 0 {
		progressed := false
		var next []*model.ResourceProvider
		for _, p := range remaining {
			if p.ParentID == "" || placed[p.ParentID] {
				ordered = append(ordered, p)
				placed[p.ID] = true
				progressed = true
				continue
			}
			next = append(next, p)
		}
		if !progressed {
			return nil, errs.New(errs.BadRequest, "provider import set contains a cycle or an unresolved parent reference")
		}
		remaining = next
	}
	return ordered, nil
}

func upsertProvider(ctx context.Context, tx store.Tx, p *model.ResourceProvider) (created bool, err error) {
	_, err = tx.GetProvider(ctx, p.ID)
	if errs.Is(err, errs.NotFound) {
		return true, tx.CreateProvider(ctx, p)
	}
	if err != nil {
		return false, err
	}
	return false, tx.UpdateProvider(ctx, p, 0)
}
