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

package simulation

import (
	"context"

	"github.com/tachyon-sched/tachyon/internal/errs"
	"github.com/tachyon-sched/tachyon/internal/model"
	"github.com/tachyon-sched/tachyon/internal/store"
)

// Commit implements spec.md §4.8's commit(): re-checks every entity the
// session's deltas touched for concurrent writes since first touch,
// then applies the folded per-consumer virtual state through the same
// ReplaceAllocations primitive the claim executor uses, all inside one
// transaction, bumping the global generation exactly once.
func Commit(ctx context.Context, st store.Store, session *model.SimulationSession) error {
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

	if session.Status.Terminal() {
		return errs.New(errs.InvalidState, "session %s is %s, cannot commit", session.ID, session.Status)
	}

	for id, observed := range session.ObservedGenerations {
		current, err := currentGeneration(ctx, tx, id)
		if err != nil {
			return err
		}
		if current != observed {
			return errs.New(errs.ConflictGeneration, "entity %s changed since session %s first touched it: observed %d, now %d", id, session.ID, observed, current)
		}
	}

	consumers := touchedConsumers(session)
	for _, consumerID := range consumers {
		state, err := virtualConsumerState(ctx, tx, session, consumerID)
		if err != nil {
			return err
		}
		allocations := make([]model.Allocation, 0, len(state.Amounts))
		for class, amt := range state.Amounts {
			if amt <= 0 {
				continue
			}
			allocations = append(allocations, model.Allocation{
				ConsumerID: consumerID,
				ProviderID: state.ProviderID,
				Class:      class,
				Used:       amt,
			})
		}
		if err := tx.ReplaceAllocations(ctx, consumerID, allocations); err != nil {
			return err
		}
	}

	if _, err := tx.BumpGlobalGeneration(ctx); err != nil {
		return err
	}
	if err := tx.SetSessionStatus(ctx, session.ID, model.SessionCommitted); err != nil {
		return err
	}
	if err := tx.ClearDeltas(ctx, session.ID); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}
	committed = true
	session.Status = model.SessionCommitted
	session.Deltas = nil
	return nil
}

// Rollback drops the delta log and marks the session rolled_back.
func Rollback(ctx context.Context, tx store.Tx, session *model.SimulationSession) error {
	if session.Status.Terminal() {
		return errs.New(errs.InvalidState, "session %s is %s, cannot roll back", session.ID, session.Status)
	}
	if err := tx.SetSessionStatus(ctx, session.ID, model.SessionRolledBack); err != nil {
		return err
	}
	if err := tx.ClearDeltas(ctx, session.ID); err != nil {
		return err
	}
	session.Status = model.SessionRolledBack
	session.Deltas = nil
	return nil
}

func touchedConsumers(session *model.SimulationSession) []model.ID {
	seen := map[model.ID]bool{}
	var out []model.ID
	for _, d := range session.Deltas {
		if !seen[d.ConsumerID] {
			seen[d.ConsumerID] = true
			out = append(out, d.ConsumerID)
		}
	}
	return out
}

func currentGeneration(ctx context.Context, tx interface {
	GetProvider(ctx context.Context, id model.ID) (*model.ResourceProvider, error)
	GetConsumer(ctx context.Context, id model.ID) (*model.Consumer, error)
}, id model.ID) (model.Generation, error) {
	if p, err := tx.GetProvider(ctx, id); err == nil {
		return p.Generation, nil
	}
	c, err := tx.GetConsumer(ctx, id)
	if errs.Is(err, errs.NotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return c.Generation, nil
}
