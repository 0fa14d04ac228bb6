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

// Package memgraph is the one graph store adapter (C1) this repository
// ships: an in-process, in-memory implementation of internal/store's
// contract. It trades write concurrency for a trivially-correct
// serializable-per-transaction discipline (every transaction holds the
// store's single write lock for its lifetime and works against a
// private snapshot that is only published on Commit) — a deliberate
// simplification, since spec.md §1 places the storage engine's choice
// and internal operation outside the core's scope; what the core needs
// proven is the *contract* (generation checks, forest invariants,
// read-your-writes), not a high-throughput engine. See DESIGN.md.
package memgraph

import (
	"context"
	"sync"
	"time"

	"github.com/tachyon-sched/tachyon/internal/errs"
	"github.com/tachyon-sched/tachyon/internal/model"
	"github.com/tachyon-sched/tachyon/internal/store"
)

// graphState is the full snapshot cloned per-transaction.
type graphState struct {
	globalGeneration model.Generation

	providers     map[model.ID]*model.ResourceProvider
	providerNames map[string]model.ID

	providerTraits map[model.ID]map[string]bool

	inventories map[model.ID]map[string]*model.Inventory

	consumers   map[model.ID]*model.Consumer
	allocations map[model.ID]map[string]map[model.ID]*model.Allocation // providerID -> class -> consumerID -> allocation

	aggregates       map[model.ID]*model.Aggregate
	aggregateNames   map[string]model.ID
	azNames          map[string]model.ID // AZ name -> owning aggregate ID
	aggregateMembers map[model.ID]map[model.ID]bool // aggregateID -> providerID set
	providerAggregates map[model.ID]map[model.ID]bool // providerID -> aggregateID set

	serverGroups map[model.ID]*model.ServerGroup
	flavors      map[model.ID]*model.Flavor

	shares       []model.SharesResources
	sharesByTarget map[model.ID][]model.SharesResources

	sessions map[model.ID]*model.SimulationSession
}

func newGraphState() *graphState {
	return &graphState{
		providers:           map[model.ID]*model.ResourceProvider{},
		providerNames:       map[string]model.ID{},
		providerTraits:      map[model.ID]map[string]bool{},
		inventories:         map[model.ID]map[string]*model.Inventory{},
		consumers:           map[model.ID]*model.Consumer{},
		allocations:         map[model.ID]map[string]map[model.ID]*model.Allocation{},
		aggregates:          map[model.ID]*model.Aggregate{},
		aggregateNames:      map[string]model.ID{},
		azNames:             map[string]model.ID{},
		aggregateMembers:    map[model.ID]map[model.ID]bool{},
		providerAggregates:  map[model.ID]map[model.ID]bool{},
		serverGroups:        map[model.ID]*model.ServerGroup{},
		flavors:             map[model.ID]*model.Flavor{},
		sharesByTarget:      map[model.ID][]model.SharesResources{},
		sessions:            map[model.ID]*model.SimulationSession{},
	}
}

func cloneProvider(rp *model.ResourceProvider) *model.ResourceProvider {
	cp := *rp
	cp.Roles = append([]model.ProviderRole(nil), rp.Roles...)
	cp.Traits = append([]string(nil), rp.Traits...)
	cp.Aggregates = append([]model.ID(nil), rp.Aggregates...)
	return &cp
}

func (s *graphState) clone() *graphState {
	n := newGraphState()
	n.globalGeneration = s.globalGeneration

	for id, rp := range s.providers {
		n.providers[id] = cloneProvider(rp)
	}
	for name, id := range s.providerNames {
		n.providerNames[name] = id
	}
	for id, traits := range s.providerTraits {
		cp := make(map[string]bool, len(traits))
		for t := range traits {
			cp[t] = true
		}
		n.providerTraits[id] = cp
	}
	for pid, byClass := range s.inventories {
		cp := make(map[string]*model.Inventory, len(byClass))
		for class, inv := range byClass {
			invCopy := *inv
			cp[class] = &invCopy
		}
		n.inventories[pid] = cp
	}
	for id, c := range s.consumers {
		cc := *c
		n.consumers[id] = &cc
	}
	for pid, byClass := range s.allocations {
		cp := make(map[string]map[model.ID]*model.Allocation, len(byClass))
		for class, byConsumer := range byClass {
			cc := make(map[model.ID]*model.Allocation, len(byConsumer))
			for cid, a := range byConsumer {
				aCopy := *a
				cc[cid] = &aCopy
			}
			cp[class] = cc
		}
		n.allocations[pid] = cp
	}
	for id, a := range s.aggregates {
		aCopy := *a
		aCopy.TenantAllowed = append([]model.ID(nil), a.TenantAllowed...)
		aCopy.ImageAllowed = append([]model.ID(nil), a.ImageAllowed...)
		n.aggregates[id] = &aCopy
	}
	for name, id := range s.aggregateNames {
		n.aggregateNames[name] = id
	}
	for name, id := range s.azNames {
		n.azNames[name] = id
	}
	for id, members := range s.aggregateMembers {
		cp := make(map[model.ID]bool, len(members))
		for m := range members {
			cp[m] = true
		}
		n.aggregateMembers[id] = cp
	}
	for id, aggs := range s.providerAggregates {
		cp := make(map[model.ID]bool, len(aggs))
		for a := range aggs {
			cp[a] = true
		}
		n.providerAggregates[id] = cp
	}
	for id, g := range s.serverGroups {
		gCopy := *g
		gCopy.Members = append([]model.ID(nil), g.Members...)
		n.serverGroups[id] = &gCopy
	}
	for id, f := range s.flavors {
		fCopy := *f
		n.flavors[id] = &fCopy
	}
	n.shares = append([]model.SharesResources(nil), s.shares...)
	for id, shares := range s.sharesByTarget {
		n.sharesByTarget[id] = append([]model.SharesResources(nil), shares...)
	}
	for id, sess := range s.sessions {
		sCopy := *sess
		sCopy.Deltas = append([]model.SpeculativeDelta(nil), sess.Deltas...)
		n.sessions[id] = &sCopy
	}
	return n
}

// Store is the in-memory adapter.
type Store struct {
	mu    sync.Mutex
	state *graphState
}

// New constructs an empty in-memory graph store.
func New() *Store {
	return &Store{state: newGraphState()}
}

func (st *Store) Close() error { return nil }

// Begin acquires the store's single write lock for the lifetime of the
// returned Tx and hands it a private snapshot; nothing is visible to
// other transactions until Commit publishes it.
func (st *Store) Begin(ctx context.Context) (store.Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, errs.Wrap(errs.DeadlineExceeded, err, "begin: context already done")
	}
	st.mu.Lock()
	tx := &Tx{store: st, working: st.state.clone(), ctx: ctx}
	return tx, nil
}

// Tx is one in-flight transaction.
type Tx struct {
	store   *Store
	working *graphState
	ctx     context.Context
	done    bool
}

func (tx *Tx) checkDeadline() error {
	if err := tx.ctx.Err(); err != nil {
		return errs.Wrap(errs.DeadlineExceeded, err, "operation timeout")
	}
	return nil
}

func (tx *Tx) Commit(ctx context.Context) error {
	if tx.done {
		return errs.New(errs.Fatal, "commit called on a finished transaction")
	}
	defer func() { tx.done = true; tx.store.mu.Unlock() }()
	if err := ctx.Err(); err != nil {
		return errs.Wrap(errs.DeadlineExceeded, err, "commit: context done, rolling back")
	}
	tx.store.state = tx.working
	return nil
}

func (tx *Tx) Rollback(context.Context) error {
	if tx.done {
		return nil
	}
	tx.done = true
	tx.store.mu.Unlock()
	return nil
}

func (tx *Tx) GlobalGeneration(context.Context) (model.Generation, error) {
	return tx.working.globalGeneration, nil
}

func (tx *Tx) BumpGlobalGeneration(context.Context) (model.Generation, error) {
	tx.working.globalGeneration++
	return tx.working.globalGeneration, nil
}

func (tx *Tx) EnsureUniqueKey(ctx context.Context, kind, field string) error {
	return tx.checkDeadline()
}

func (tx *Tx) EnsureIndex(ctx context.Context, kind, field string) error {
	return tx.checkDeadline()
}

// now is overridable in tests.
var now = time.Now
