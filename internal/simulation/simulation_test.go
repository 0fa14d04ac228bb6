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

package simulation_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tachyon-sched/tachyon/internal/capacity"
	"github.com/tachyon-sched/tachyon/internal/model"
	"github.com/tachyon-sched/tachyon/internal/simulation"
	"github.com/tachyon-sched/tachyon/internal/store"
	"github.com/tachyon-sched/tachyon/internal/store/memgraph"
)

func fixedClock(t time.Time) simulation.Clock {
	return func() time.Time { return t }
}

// seedTwoHosts creates H1 with an 8-unit and H2 with a 16-unit VCPU
// inventory, and a consumer k claiming 4 units on H1. The unequal
// capacities make moving k change the utilization spread (0.5/0 live,
// 0/0.25 after the move); on two equal hosts it would mirror and stay put.
func seedTwoHosts(t *testing.T, ctx context.Context, st store.Store) {
	t.Helper()
	tx, err := st.Begin(ctx)
	require.NoError(t, err)

	for _, h := range []struct {
		id    string
		total int64
	}{{"H1", 8}, {"H2", 16}} {
		require.NoError(t, tx.CreateProvider(ctx, &model.ResourceProvider{ID: model.ID(h.id), Name: h.id}))
		require.NoError(t, tx.UpsertInventory(ctx, &model.Inventory{
			ProviderID: model.ID(h.id), Class: "VCPU",
			Total: h.total, MinUnit: 1, MaxUnit: h.total, StepSize: 1, AllocationRatio: 1.0,
		}))
	}
	require.NoError(t, tx.UpsertConsumer(ctx, &model.Consumer{ID: "k", ProjectID: "proj-1", ConsumerType: "instance", Status: model.ConsumerActive}, 0))
	require.NoError(t, tx.ReplaceAllocations(ctx, "k", []model.Allocation{
		{ConsumerID: "k", ProviderID: "H1", Class: "VCPU", Used: 4},
	}))
	require.NoError(t, tx.Commit(ctx))
}

// openSession creates and persists an active session in its own
// transaction, the same create-then-commit shape the HTTP adaptor uses
// (internal/httpapi/simulations.go createSimulation).
func openSession(t *testing.T, ctx context.Context, st store.Store) *model.SimulationSession {
	t.Helper()
	tx, err := st.Begin(ctx)
	require.NoError(t, err)
	session, err := simulation.Create(ctx, tx, time.Hour, "audit-1", fixedClock(time.Unix(0, 0)))
	require.NoError(t, err)
	require.NoError(t, tx.CreateSession(ctx, session))
	require.NoError(t, tx.Commit(ctx))
	return session
}

func TestSimulation_MoveRoundTrip(t *testing.T) {
	ctx := context.Background()
	st := memgraph.New()
	seedTwoHosts(t, ctx, st)
	session := openSession(t, ctx, st)

	readTx, err := st.Begin(ctx)
	require.NoError(t, err)
	base := capacity.StoreReader{Lister: readTx}

	// Live H1 usage is 4 (k's claim) before any delta.
	liveH1, err := base.Used(ctx, "H1", "VCPU")
	require.NoError(t, err)
	assert.EqualValues(t, 4, liveH1)

	err = simulation.RecordMove(ctx, readTx, base, session, "k", "H1", "H2")
	require.NoError(t, err)
	require.Len(t, session.Deltas, 1)
	assert.EqualValues(t, 1, session.Deltas[0].Sequence)

	overlay := simulation.OverlayUsageReader{Base: base, Session: session}
	h1Virtual, err := overlay.Used(ctx, "H1", "VCPU")
	require.NoError(t, err)
	assert.EqualValues(t, 0, h1Virtual, "H1's virtual usage must drop by k's footprint")

	h2Virtual, err := overlay.Used(ctx, "H2", "VCPU")
	require.NoError(t, err)
	assert.EqualValues(t, 4, h2Virtual, "H2's virtual usage must rise by k's footprint")

	liveMetrics, err := simulation.Metrics(ctx, readTx, base, &model.SimulationSession{}, "VCPU", []model.ID{"H1", "H2"})
	require.NoError(t, err)
	virtualMetrics, err := simulation.Metrics(ctx, readTx, base, session, "VCPU", []model.ID{"H1", "H2"})
	require.NoError(t, err)
	assert.NotEqual(t, liveMetrics.StdDev, virtualMetrics.StdDev, "moving load to the other host must change the utilization spread")
	require.NoError(t, readTx.Rollback(ctx))

	require.NoError(t, simulation.Commit(ctx, st, session))
	assert.Equal(t, model.SessionCommitted, session.Status)
	assert.Empty(t, session.Deltas)

	verifyTx, err := st.Begin(ctx)
	require.NoError(t, err)
	defer verifyTx.Rollback(ctx)

	allocs, err := verifyTx.ListAllocationsForConsumer(ctx, "k")
	require.NoError(t, err)
	require.Len(t, allocs, 1)
	assert.Equal(t, model.ID("H2"), allocs[0].ProviderID)
	assert.EqualValues(t, 4, allocs[0].Used)

	got, err := verifyTx.GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionCommitted, got.Status)
	assert.Empty(t, got.Deltas)
}

func TestSimulation_SessionIsolation(t *testing.T) {
	ctx := context.Background()
	st := memgraph.New()
	seedTwoHosts(t, ctx, st)
	sessionA := openSession(t, ctx, st)
	sessionB := openSession(t, ctx, st)

	txA, err := st.Begin(ctx)
	require.NoError(t, err)
	baseA := capacity.StoreReader{Lister: txA}
	require.NoError(t, simulation.RecordMove(ctx, txA, baseA, sessionA, "k", "H1", "H2"))

	placementA, err := simulation.EffectivePlacement(ctx, txA, sessionA, []model.ID{"k"})
	require.NoError(t, err)
	assert.Equal(t, model.ID("H2"), placementA["k"])
	require.NoError(t, txA.Rollback(ctx))

	txB, err := st.Begin(ctx)
	require.NoError(t, err)
	defer txB.Rollback(ctx)

	placementB, err := simulation.EffectivePlacement(ctx, txB, sessionB, []model.ID{"k"})
	require.NoError(t, err)
	assert.Equal(t, model.ID("H1"), placementB["k"], "session B must never observe session A's uncommitted delta")
}

func TestSimulation_UndoLastRestoresEffectiveSource(t *testing.T) {
	ctx := context.Background()
	st := memgraph.New()
	seedTwoHosts(t, ctx, st)
	session := openSession(t, ctx, st)

	tx, err := st.Begin(ctx)
	require.NoError(t, err)
	defer tx.Rollback(ctx)

	base := capacity.StoreReader{Lister: tx}
	require.NoError(t, simulation.RecordMove(ctx, tx, base, session, "k", "H1", "H2"))

	popped, err := simulation.UndoLast(session)
	require.NoError(t, err)
	assert.Equal(t, model.DeltaMove, popped.Type)
	assert.Empty(t, session.Deltas)

	placement, err := simulation.EffectivePlacement(ctx, tx, session, []model.ID{"k"})
	require.NoError(t, err)
	assert.Equal(t, model.ID("H1"), placement["k"])
}

func TestSimulation_RecordMoveRejectsWrongEffectiveSource(t *testing.T) {
	ctx := context.Background()
	st := memgraph.New()
	seedTwoHosts(t, ctx, st)
	session := openSession(t, ctx, st)

	tx, err := st.Begin(ctx)
	require.NoError(t, err)
	defer tx.Rollback(ctx)
	base := capacity.StoreReader{Lister: tx}

	err = simulation.RecordMove(ctx, tx, base, session, "k", "H2", "H1")
	assert.Error(t, err, "k's live provider is H1, not H2")
}

func TestSimulation_CommitRejectsAfterConcurrentGenerationBump(t *testing.T) {
	ctx := context.Background()
	st := memgraph.New()
	seedTwoHosts(t, ctx, st)
	session := openSession(t, ctx, st)

	readTx, err := st.Begin(ctx)
	require.NoError(t, err)
	base := capacity.StoreReader{Lister: readTx}
	require.NoError(t, simulation.RecordMove(ctx, readTx, base, session, "k", "H1", "H2"))
	require.NoError(t, readTx.Rollback(ctx))

	// A concurrent writer bumps H2's generation (e.g. a trait change)
	// after the session first observed it.
	otherTx, err := st.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, otherTx.AddTrait(ctx, "H2", "CUSTOM_REPAINTED"))
	require.NoError(t, otherTx.Commit(ctx))

	err = simulation.Commit(ctx, st, session)
	assert.Error(t, err, "commit must fail when an outside writer touched an observed entity")
	assert.Equal(t, model.SessionActive, session.Status, "a failed commit must leave the session active and retryable")

	verifyTx, err := st.Begin(ctx)
	require.NoError(t, err)
	defer verifyTx.Rollback(ctx)
	allocs, err := verifyTx.ListAllocationsForConsumer(ctx, "k")
	require.NoError(t, err)
	require.Len(t, allocs, 1)
	assert.Equal(t, model.ID("H1"), allocs[0].ProviderID, "a failed commit must leave live state untouched")
}

func TestSweep_ExpiresPastTTLSessions(t *testing.T) {
	ctx := context.Background()
	st := memgraph.New()

	tx, err := st.Begin(ctx)
	require.NoError(t, err)
	session, err := simulation.Create(ctx, tx, time.Minute, "", fixedClock(time.Unix(0, 0)))
	require.NoError(t, err)
	require.NoError(t, tx.CreateSession(ctx, session))
	require.NoError(t, tx.Commit(ctx))

	sweepTx, err := st.Begin(ctx)
	require.NoError(t, err)
	expired, err := simulation.Sweep(ctx, sweepTx, time.Unix(0, 0).Add(2*time.Hour))
	require.NoError(t, err)
	require.NoError(t, sweepTx.Commit(ctx))

	require.Len(t, expired, 1)
	assert.Equal(t, session.ID, expired[0])

	verifyTx, err := st.Begin(ctx)
	require.NoError(t, err)
	defer verifyTx.Rollback(ctx)
	got, err := verifyTx.GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionExpired, got.Status)
}
