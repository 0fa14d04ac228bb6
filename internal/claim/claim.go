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

// Package claim implements C7: converting an AllocationCandidate into
// durable state under optimistic concurrency (spec.md §4.7). The
// executor owns exactly one transaction per call and never retries
// internally — retry policy lives at the caller/edge, the same
// boundary the teacher draws around its own NodeClaim create/patch loop
// (spec.md §9 "Optimistic concurrency retries").
package claim

import (
	"context"

	"github.com/avast/retry-go"

	"github.com/tachyon-sched/tachyon/internal/capacity"
	"github.com/tachyon-sched/tachyon/internal/errs"
	"github.com/tachyon-sched/tachyon/internal/model"
	"github.com/tachyon-sched/tachyon/internal/store"
)

// UsageFactory binds a capacity.UsageReader to the transaction Execute
// opens, so the re-verification in step 2 reads the same snapshot the
// rest of the transaction writes against.
type UsageFactory func(tx store.Tx) capacity.UsageReader

// LiveUsage is the UsageFactory for ordinary (non-simulated) claims.
func LiveUsage(tx store.Tx) capacity.UsageReader {
	return capacity.StoreReader{Lister: tx}
}

// Execute runs the six-step protocol of spec.md §4.7 in one
// transaction: verify expected generations, re-verify capacity, replace
// allocations, upsert the consumer, bump generations, commit. consumer
// is the entity the candidate's allocations belong to; expectedConsumerGeneration
// is 0 for a brand new consumer.
func Execute(ctx context.Context, st store.Store, usageFactory UsageFactory, candidate *model.AllocationCandidate, consumer *model.Consumer, expectedConsumerGeneration model.Generation) error {
	tx, err := st.Begin(ctx)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(ctx)
		}
	}()

	if err := verifyProviderGenerations(ctx, tx, candidate); err != nil {
		return err
	}
	if err := verifyConsumerGeneration(ctx, tx, consumer.ID, expectedConsumerGeneration); err != nil {
		return err
	}

	usage := usageFactory(tx)
	merged, err := mergeAllocations(candidate, consumer.ID)
	if err != nil {
		return err
	}
	if err := reverifyCapacity(ctx, tx, usage, consumer.ID, merged); err != nil {
		return err
	}

	plain := make([]model.Allocation, 0, len(merged))
	for _, a := range merged {
		plain = append(plain, a)
	}
	if err := tx.ReplaceAllocations(ctx, consumer.ID, plain); err != nil {
		return err
	}
	// expectedConsumerGeneration was already checked against the
	// pre-mutation state by verifyConsumerGeneration above; ReplaceAllocations
	// is the consumer generation's single owner (spec.md §4.2) and has
	// already bumped it for an existing consumer, so re-checking the
	// caller's expectation here would compare against a value this same
	// claim just moved past. Pass 0 to write metadata only.
	if err := tx.UpsertConsumer(ctx, consumer, 0); err != nil {
		return err
	}
	if _, err := tx.BumpGlobalGeneration(ctx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}
	committed = true
	return nil
}

// Refresh re-plans a candidate against current state; ExecuteWithRetry
// calls it before every attempt, including the first, so the caller
// never has to special-case "build the initial candidate" vs. "rebuild
// after a stale conflict".
type Refresh func(ctx context.Context) (*model.AllocationCandidate, model.Generation, error)

// ExecuteWithRetry wraps Execute with the caller-side retry policy
// spec.md §9 places outside the core: only errs.ConflictGeneration and
// errs.Transient are retried (errs.Retryable), everything else —
// notably errs.OutOfCapacity — aborts immediately since re-running the
// same plan against the same shortage cannot succeed.
func ExecuteWithRetry(ctx context.Context, st store.Store, usageFactory UsageFactory, consumer *model.Consumer, refresh Refresh, attempts uint) error {
	return retry.Do(
		func() error {
			candidate, expectedGen, err := refresh(ctx)
			if err != nil {
				return retry.Unrecoverable(err)
			}
			err = Execute(ctx, st, usageFactory, candidate, consumer, expectedGen)
			if err != nil && !errs.Retryable(err) {
				return retry.Unrecoverable(err)
			}
			return err
		},
		retry.Context(ctx),
		retry.Attempts(attempts),
	)
}

func verifyProviderGenerations(ctx context.Context, tx store.Tx, candidate *model.AllocationCandidate) error {
	expected := map[model.ID]model.Generation{}
	for _, a := range candidate.Allocations {
		if g, ok := expected[a.ProviderID]; ok && g != a.ObservedGeneration {
			return errs.New(errs.BadRequest, "candidate carries inconsistent observed generations for provider %s", a.ProviderID)
		}
		expected[a.ProviderID] = a.ObservedGeneration
	}
	for providerID, want := range expected {
		current, err := tx.GetProvider(ctx, providerID)
		if err != nil {
			return err
		}
		if current.Generation != want {
			return errs.New(errs.ConflictGeneration, "provider %s generation changed: expected %d, have %d", providerID, want, current.Generation)
		}
	}
	return nil
}

func verifyConsumerGeneration(ctx context.Context, tx store.Tx, consumerID model.ID, expected model.Generation) error {
	if expected == 0 {
		return nil
	}
	current, err := tx.GetConsumer(ctx, consumerID)
	if err != nil {
		return err
	}
	if current.Generation != expected {
		return errs.New(errs.ConflictGeneration, "consumer %s generation changed: expected %d, have %d", consumerID, expected, current.Generation)
	}
	return nil
}

type classKey struct {
	providerID model.ID
	class      string
}

// mergeAllocations folds a candidate's (possibly multiple, e.g. a split
// group) CandidateAllocation lines into one Allocation per (provider,
// class), since the store keys consumes edges that way.
func mergeAllocations(candidate *model.AllocationCandidate, consumerID model.ID) (map[classKey]model.Allocation, error) {
	out := map[classKey]model.Allocation{}
	for _, a := range candidate.Allocations {
		key := classKey{a.ProviderID, a.Class}
		existing, ok := out[key]
		if !ok {
			out[key] = model.Allocation{ConsumerID: consumerID, ProviderID: a.ProviderID, Class: a.Class, Used: a.Amount}
			continue
		}
		existing.Used += a.Amount
		out[key] = existing
	}
	return out, nil
}

// reverifyCapacity re-runs C3's feasibility check against the current
// transaction snapshot (spec.md §4.7 step 2), netting out this same
// consumer's own prior allocations so a pure re-placement of an
// unchanged amount never spuriously fails.
func reverifyCapacity(ctx context.Context, tx store.Tx, usage capacity.UsageReader, consumerID model.ID, merged map[classKey]model.Allocation) error {
	prior, err := tx.ListAllocationsForConsumer(ctx, consumerID)
	if err != nil {
		return err
	}
	priorByKey := map[classKey]int64{}
	for _, a := range prior {
		priorByKey[classKey{a.ProviderID, a.Class}] += a.Used
	}

	for key, alloc := range merged {
		inv, err := tx.GetInventory(ctx, key.providerID, key.class)
		if err != nil {
			return err
		}
		used, err := usage.Used(ctx, key.providerID, key.class)
		if err != nil {
			return err
		}
		netUsed := used - priorByKey[key]
		if netUsed < 0 {
			netUsed = 0
		}
		result := capacity.Evaluate(inv, netUsed, alloc.Used)
		if !result.Feasible {
			return errs.New(errs.OutOfCapacity, "provider %s class %s: %s", key.providerID, key.class, result.Reason)
		}
	}
	return nil
}
