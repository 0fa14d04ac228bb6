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

// Package store declares the C1 graph store adapter contract: a
// transactional, serializable-per-transaction store of labeled nodes
// and typed edges with parameterized traversal. spec.md §1 and §4.1
// deliberately leave the storage engine's choice and internal
// operation out of the core's scope — "both a native graph database
// and a relational-backed adjacency index satisfy the contract" — so
// this package exposes only the contract, expressed as typed Go
// methods rather than a string query DSL (the re-architecture guidance
// in spec.md §9 prefers "explicit typed records at the boundary" over
// the original's ad-hoc query/row shape). internal/store/memgraph
// supplies the one reference adapter this repository ships.
package store

import (
	"context"
	"time"

	"github.com/tachyon-sched/tachyon/internal/model"
)

// Store opens transactions against the graph. A single Store value is
// a process-lifetime collaborator (spec.md §9): it is constructed once
// in cmd/tachyond and threaded through every component that needs
// storage, never reached via a package-level global.
type Store interface {
	Begin(ctx context.Context) (Tx, error)
	Close() error
}

// Tx is one transaction: begin/commit/rollback with read-your-writes
// isolation (spec.md §4.1). A Tx must not be used after Commit or
// Rollback returns, and must not be shared across goroutines.
type Tx interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error

	// GlobalGeneration returns the single monotone generation counter
	// (spec.md §3).
	GlobalGeneration(ctx context.Context) (model.Generation, error)
	// BumpGlobalGeneration increments and returns the new value. Must
	// be called in the same transaction as the write that causes it
	// (spec.md §4.2).
	BumpGlobalGeneration(ctx context.Context) (model.Generation, error)

	Providers
	Inventories
	Traits
	Aggregates
	Consumers
	ServerGroups
	Flavors
	Sharing
	Sessions

	// EnsureUniqueKey and EnsureIndex are schema-assertion primitives
	// (spec.md §4.1). The contract allows them to be idempotent no-ops
	// against a store whose schema already satisfies the assertion; the
	// reference adapter (memgraph) does nothing in either beyond its
	// deadline check, since its write methods enforce uniqueness
	// themselves.
	EnsureUniqueKey(ctx context.Context, kind, field string) error
	EnsureIndex(ctx context.Context, kind, field string) error
}

// Providers is the RP slice of the Tx contract.
type Providers interface {
	CreateProvider(ctx context.Context, rp *model.ResourceProvider) error
	GetProvider(ctx context.Context, id model.ID) (*model.ResourceProvider, error)
	// UpdateProvider writes rp back, checking expected against the
	// stored generation first (conflict_generation on mismatch) and
	// bumping the generation on success. Pass expected==0 to skip the
	// check (e.g. disabling flips that are not concurrency-sensitive).
	UpdateProvider(ctx context.Context, rp *model.ResourceProvider, expected model.Generation) error
	DeleteProvider(ctx context.Context, id model.ID) error
	ListRoots(ctx context.Context) ([]*model.ResourceProvider, error)
	ListChildren(ctx context.Context, id model.ID) ([]*model.ResourceProvider, error)
	ListDescendants(ctx context.Context, id model.ID) ([]*model.ResourceProvider, error)
	// RootOf computes the forest root of id by traversal; it is never
	// cached as a field on ResourceProvider (spec.md §9).
	RootOf(ctx context.Context, id model.ID) (*model.ResourceProvider, error)
}

// Inventories is the Inventory slice of the Tx contract.
type Inventories interface {
	GetInventory(ctx context.Context, providerID model.ID, class string) (*model.Inventory, error)
	ListInventories(ctx context.Context, providerID model.ID) ([]*model.Inventory, error)
	UpsertInventory(ctx context.Context, inv *model.Inventory) error
	DeleteInventory(ctx context.Context, providerID model.ID, class string) error
}

// Traits is the Trait/has_trait slice of the Tx contract.
type Traits interface {
	AddTrait(ctx context.Context, providerID model.ID, trait string) error
	RemoveTrait(ctx context.Context, providerID model.ID, trait string) error
}

// Aggregates is the Aggregate/member_of slice of the Tx contract.
type Aggregates interface {
	GetAggregate(ctx context.Context, id model.ID) (*model.Aggregate, error)
	ListAggregatesForProvider(ctx context.Context, providerID model.ID) ([]*model.Aggregate, error)
	AddMember(ctx context.Context, aggregateID, providerID model.ID) error
	RemoveMember(ctx context.Context, aggregateID, providerID model.ID) error
	UpsertAggregate(ctx context.Context, agg *model.Aggregate) error
}

// Consumers is the Consumer/consumes slice of the Tx contract.
type Consumers interface {
	GetConsumer(ctx context.Context, id model.ID) (*model.Consumer, error)
	// UpsertConsumer creates the consumer (generation 1) if absent, or
	// writes its ownership/metadata fields otherwise; it is not the
	// generation's owner for an existing consumer — that is
	// ReplaceAllocations's job (spec.md §4.2), so an update here leaves
	// the stored generation unchanged.
	UpsertConsumer(ctx context.Context, c *model.Consumer, expected model.Generation) error
	// ReplaceAllocations atomically removes all of consumer's existing
	// allocations and creates the given set instead, then bumps the
	// consumer's generation (spec.md §4.7 step 3-5). It is the single
	// owner of that bump; callers that also call UpsertConsumer in the
	// same transaction must not expect it to bump again.
	ReplaceAllocations(ctx context.Context, consumerID model.ID, allocations []model.Allocation) error
	ListAllocationsForConsumer(ctx context.Context, consumerID model.ID) ([]model.Allocation, error)
	ListAllocationsForInventory(ctx context.Context, providerID model.ID, class string) ([]model.Allocation, error)
	// ListAllocationsForProvider returns every allocation against any
	// class of providerID, regardless of class. Used by weighers that
	// count distinct consumers on a provider (e.g. IO-ops) rather than
	// amounts of a specific class.
	ListAllocationsForProvider(ctx context.Context, providerID model.ID) ([]model.Allocation, error)
}

// ServerGroups is the ServerGroup slice of the Tx contract.
type ServerGroups interface {
	GetServerGroup(ctx context.Context, id model.ID) (*model.ServerGroup, error)
}

// Flavors is the Flavor slice of the Tx contract.
type Flavors interface {
	GetFlavor(ctx context.Context, id model.ID) (*model.Flavor, error)
}

// Sharing is the SharesResources slice of the Tx contract.
type Sharing interface {
	ListSharesInto(ctx context.Context, providerID model.ID) ([]model.SharesResources, error)
}

// Sessions is the SimulationSession/SpeculativeDelta slice of the Tx
// contract. spec.md §9 allows the delta log to live in the same graph
// store (as here) or an auxiliary store; only base_generation need stay
// consistent with live state.
type Sessions interface {
	CreateSession(ctx context.Context, s *model.SimulationSession) error
	GetSession(ctx context.Context, id model.ID) (*model.SimulationSession, error)
	AppendDelta(ctx context.Context, sessionID model.ID, d model.SpeculativeDelta) error
	PopLastDelta(ctx context.Context, sessionID model.ID) (*model.SpeculativeDelta, error)
	SetSessionStatus(ctx context.Context, sessionID model.ID, status model.SessionStatus) error
	ClearDeltas(ctx context.Context, sessionID model.ID) error
	ListActiveSessionsExpiredBefore(ctx context.Context, cutoff time.Time) ([]*model.SimulationSession, error)
}
