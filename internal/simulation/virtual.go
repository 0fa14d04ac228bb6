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

	"github.com/tachyon-sched/tachyon/internal/capacity"
	"github.com/tachyon-sched/tachyon/internal/errs"
	"github.com/tachyon-sched/tachyon/internal/model"
)

// VirtualPlacement is a consumer's folded (live + deltas) location and
// per-class resource amounts.
type VirtualPlacement struct {
	ProviderID model.ID
	Amounts    map[string]int64
}

// virtualConsumerState folds live allocations with every delta in
// session touching consumerID, in sequence order, per spec.md §4.8's
// "compute-on-read" rule for virtual_usage/effective_placement.
func virtualConsumerState(ctx context.Context, tx Store, session *model.SimulationSession, consumerID model.ID) (VirtualPlacement, error) {
	live, err := tx.ListAllocationsForConsumer(ctx, consumerID)
	if err != nil {
		return VirtualPlacement{}, err
	}
	state := VirtualPlacement{Amounts: map[string]int64{}}
	for _, a := range live {
		state.ProviderID = a.ProviderID
		state.Amounts[a.Class] += a.Used
	}

	for _, d := range session.Deltas {
		if d.ConsumerID != consumerID {
			continue
		}
		switch d.Type {
		case model.DeltaAllocate:
			for class, amt := range d.ResourceChanges {
				state.Amounts[class] += amt
			}
			state.ProviderID = d.ToProviderID
		case model.DeltaDeallocate:
			state = VirtualPlacement{Amounts: map[string]int64{}}
		case model.DeltaMove:
			state.ProviderID = d.ToProviderID
		}
	}
	return state, nil
}

// EffectivePlacement returns the virtual provider for each requested
// consumer (or, if consumers is empty, every consumer any delta in
// session names).
func EffectivePlacement(ctx context.Context, tx Store, session *model.SimulationSession, consumers []model.ID) (map[model.ID]model.ID, error) {
	if len(consumers) == 0 {
		seen := map[model.ID]bool{}
		for _, d := range session.Deltas {
			seen[d.ConsumerID] = true
		}
		for id := range seen {
			consumers = append(consumers, id)
		}
	}
	out := map[model.ID]model.ID{}
	for _, id := range consumers {
		state, err := virtualConsumerState(ctx, tx, session, id)
		if err != nil {
			return nil, err
		}
		out[id] = state.ProviderID
	}
	return out, nil
}

// RecordMove implements spec.md §4.8's record_move: the effective
// source must equal fromProviderID, the destination must have capacity
// under the current overlay for every class the consumer holds, and a
// Move delta is appended carrying the unchanged per-class amounts.
func RecordMove(ctx context.Context, tx Store, base capacity.UsageReader, session *model.SimulationSession, consumerID, fromProviderID, toProviderID model.ID) error {
	if err := requireActive(session); err != nil {
		return err
	}
	state, err := virtualConsumerState(ctx, tx, session, consumerID)
	if err != nil {
		return err
	}
	if state.ProviderID != fromProviderID {
		return errs.New(errs.BadRequest, "effective source for consumer %s is %s, not %s", consumerID, state.ProviderID, fromProviderID)
	}

	overlay := OverlayUsageReader{Base: base, Session: session}
	for class, amt := range state.Amounts {
		inv, err := tx.GetInventory(ctx, toProviderID, class)
		if err != nil {
			return err
		}
		used, err := overlay.Used(ctx, toProviderID, class)
		if err != nil {
			return err
		}
		if res := capacity.Evaluate(inv, used, amt); !res.Feasible {
			return errs.New(errs.OutOfCapacity, "move destination %s class %s: %s", toProviderID, class, res.Reason)
		}
	}

	if err := observeProvider(ctx, tx, session, fromProviderID); err != nil {
		return err
	}
	if err := observeProvider(ctx, tx, session, toProviderID); err != nil {
		return err
	}
	if err := observeConsumer(ctx, tx, session, consumerID); err != nil {
		return err
	}

	session.Deltas = append(session.Deltas, model.SpeculativeDelta{
		Type:            model.DeltaMove,
		Sequence:        session.NextSequence(),
		ConsumerID:      consumerID,
		FromProviderID:  fromProviderID,
		ToProviderID:    toProviderID,
		ResourceChanges: cloneAmounts(state.Amounts),
	})
	return nil
}

// RecordAllocate implements record_allocate: the consumer must not
// already have a virtual placement, the destination must have capacity
// for every requested class, and an Allocate delta is appended.
func RecordAllocate(ctx context.Context, tx Store, base capacity.UsageReader, session *model.SimulationSession, consumerID, toProviderID model.ID, amounts map[string]int64) error {
	if err := requireActive(session); err != nil {
		return err
	}
	state, err := virtualConsumerState(ctx, tx, session, consumerID)
	if err != nil {
		return err
	}
	if state.ProviderID != "" {
		return errs.New(errs.InvalidState, "consumer %s already has a virtual placement on %s", consumerID, state.ProviderID)
	}

	overlay := OverlayUsageReader{Base: base, Session: session}
	for class, amt := range amounts {
		inv, err := tx.GetInventory(ctx, toProviderID, class)
		if err != nil {
			return err
		}
		used, err := overlay.Used(ctx, toProviderID, class)
		if err != nil {
			return err
		}
		if res := capacity.Evaluate(inv, used, amt); !res.Feasible {
			return errs.New(errs.OutOfCapacity, "allocate destination %s class %s: %s", toProviderID, class, res.Reason)
		}
	}

	if err := observeProvider(ctx, tx, session, toProviderID); err != nil {
		return err
	}
	if err := observeConsumer(ctx, tx, session, consumerID); err != nil {
		return err
	}

	session.Deltas = append(session.Deltas, model.SpeculativeDelta{
		Type:            model.DeltaAllocate,
		Sequence:        session.NextSequence(),
		ConsumerID:      consumerID,
		ToProviderID:    toProviderID,
		ResourceChanges: cloneAmounts(amounts),
	})
	return nil
}

// RecordDeallocate implements record_deallocate: releases the
// consumer's current virtual placement entirely.
func RecordDeallocate(ctx context.Context, tx Store, session *model.SimulationSession, consumerID model.ID) error {
	if err := requireActive(session); err != nil {
		return err
	}
	state, err := virtualConsumerState(ctx, tx, session, consumerID)
	if err != nil {
		return err
	}
	if state.ProviderID == "" {
		return errs.New(errs.InvalidState, "consumer %s has no virtual placement to deallocate", consumerID)
	}

	if err := observeProvider(ctx, tx, session, state.ProviderID); err != nil {
		return err
	}
	if err := observeConsumer(ctx, tx, session, consumerID); err != nil {
		return err
	}

	session.Deltas = append(session.Deltas, model.SpeculativeDelta{
		Type:            model.DeltaDeallocate,
		Sequence:        session.NextSequence(),
		ConsumerID:      consumerID,
		FromProviderID:  state.ProviderID,
		ResourceChanges: cloneAmounts(state.Amounts),
	})
	return nil
}

// UndoLast pops the highest-sequence delta from session's in-memory
// copy; callers persist the result via store.Tx.PopLastDelta.
func UndoLast(session *model.SimulationSession) (*model.SpeculativeDelta, error) {
	if session.Status.Terminal() {
		return nil, errs.New(errs.InvalidState, "session %s is %s, cannot undo", session.ID, session.Status)
	}
	if len(session.Deltas) == 0 {
		return nil, errs.New(errs.InvalidState, "session %s has no deltas to undo", session.ID)
	}
	last := session.Deltas[len(session.Deltas)-1]
	session.Deltas = session.Deltas[:len(session.Deltas)-1]
	return &last, nil
}

func cloneAmounts(m map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
