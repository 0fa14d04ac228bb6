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

// Package simulation implements C8: speculative sessions layered over
// the live graph (spec.md §4.8). A session never mutates live state
// until Commit; every Record* call only appends to the session's own
// delta log, the same append-only-log-over-a-snapshot shape the
// teacher uses for its disruption/consolidation simulation
// (SchedulerOptions.SimulationMode in other_examples/).
package simulation

import (
	"context"
	"time"

	"github.com/tachyon-sched/tachyon/internal/capacity"
	"github.com/tachyon-sched/tachyon/internal/errs"
	"github.com/tachyon-sched/tachyon/internal/model"
	"github.com/tachyon-sched/tachyon/internal/store"
)

// Store is the slice of store.Tx this package depends on.
type Store interface {
	GetProvider(ctx context.Context, id model.ID) (*model.ResourceProvider, error)
	GetInventory(ctx context.Context, providerID model.ID, class string) (*model.Inventory, error)
	GetConsumer(ctx context.Context, id model.ID) (*model.Consumer, error)
	ListAllocationsForConsumer(ctx context.Context, consumerID model.ID) ([]model.Allocation, error)
	ListAllocationsForInventory(ctx context.Context, providerID model.ID, class string) ([]model.Allocation, error)
	GlobalGeneration(ctx context.Context) (model.Generation, error)
}

// Clock is injected so tests can control CreatedAt/ExpiresAt/sweep
// comparisons deterministically.
type Clock func() time.Time

// Create stamps base_generation from the global counter and opens a new
// active session with the given time-to-live.
func Create(ctx context.Context, tx Store, ttl time.Duration, auditID string, now Clock) (*model.SimulationSession, error) {
	base, err := tx.GlobalGeneration(ctx)
	if err != nil {
		return nil, err
	}
	t := now()
	return &model.SimulationSession{
		ID:                  model.NewID(),
		BaseGeneration:      base,
		CreatedAt:           t,
		ExpiresAt:           t.Add(ttl),
		Status:              model.SessionActive,
		AuditID:             auditID,
		ObservedGenerations: map[model.ID]model.Generation{},
	}, nil
}

// OverlayUsageReader composes a base capacity.UsageReader with a
// session's delta log, so C3/C4/C5/C6 run unmodified against a
// speculative view (spec.md §4.6 "Overlay").
type OverlayUsageReader struct {
	Base    capacity.UsageReader
	Session *model.SimulationSession
}

func (o OverlayUsageReader) Used(ctx context.Context, providerID model.ID, class string) (int64, error) {
	base, err := o.Base.Used(ctx, providerID, class)
	if err != nil {
		return 0, err
	}
	for _, d := range o.Session.Deltas {
		amt, ok := d.ResourceChanges[class]
		if !ok {
			continue
		}
		if d.ToProviderID == providerID {
			base += amt
		}
		if d.FromProviderID == providerID {
			base -= amt
		}
	}
	return base, nil
}

func observe(ctx context.Context, tx Store, session *model.SimulationSession, id model.ID, live func() (model.Generation, error)) error {
	if _, ok := session.ObservedGenerations[id]; ok {
		return nil
	}
	gen, err := live()
	if err != nil {
		return err
	}
	if session.ObservedGenerations == nil {
		session.ObservedGenerations = map[model.ID]model.Generation{}
	}
	session.ObservedGenerations[id] = gen
	return nil
}

func observeProvider(ctx context.Context, tx Store, session *model.SimulationSession, providerID model.ID) error {
	if providerID == "" {
		return nil
	}
	return observe(ctx, tx, session, providerID, func() (model.Generation, error) {
		p, err := tx.GetProvider(ctx, providerID)
		if err != nil {
			return 0, err
		}
		return p.Generation, nil
	})
}

func observeConsumer(ctx context.Context, tx Store, session *model.SimulationSession, consumerID model.ID) error {
	return observe(ctx, tx, session, consumerID, func() (model.Generation, error) {
		c, err := tx.GetConsumer(ctx, consumerID)
		if errs.Is(err, errs.NotFound) {
			return 0, nil
		}
		if err != nil {
			return 0, err
		}
		return c.Generation, nil
	})
}

func requireActive(session *model.SimulationSession) error {
	if session.Status.Terminal() {
		return errs.New(errs.InvalidState, "session %s is %s, cannot record or undo", session.ID, session.Status)
	}
	return nil
}

// Sweep finds active sessions whose ExpiresAt has passed and marks them
// expired, clearing their delta logs (spec.md §4.8's periodic task).
func Sweep(ctx context.Context, tx store.Tx, now time.Time) ([]model.ID, error) {
	expired, err := tx.ListActiveSessionsExpiredBefore(ctx, now)
	if err != nil {
		return nil, err
	}
	var ids []model.ID
	for _, s := range expired {
		if err := tx.SetSessionStatus(ctx, s.ID, model.SessionExpired); err != nil {
			return nil, err
		}
		if err := tx.ClearDeltas(ctx, s.ID); err != nil {
			return nil, err
		}
		ids = append(ids, s.ID)
	}
	return ids, nil
}
