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

package weigher_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tachyon-sched/tachyon/internal/capacity"
	"github.com/tachyon-sched/tachyon/internal/model"
	"github.com/tachyon-sched/tachyon/internal/store/memgraph"
	"github.com/tachyon-sched/tachyon/internal/weigher"
)

func newStore(t *testing.T) (context.Context, *memgraph.Tx) {
	t.Helper()
	ctx := context.Background()
	st := memgraph.New()
	tx, err := st.Begin(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = tx.Rollback(ctx) })
	return ctx, tx.(*memgraph.Tx)
}

func candidateFor(root model.ID, score float64) *model.AllocationCandidate {
	return &model.AllocationCandidate{RootProviderID: root}
}

// constSignal returns a Signal that ignores its inputs except to look
// up a per-candidate raw score from a fixed table, the way a real
// weigher would compute one from store state.
func constSignal(raw map[model.ID]float64) weigher.Signal {
	return func(ctx context.Context, st weigher.Store, usage capacity.UsageReader, req *model.Request, c *model.AllocationCandidate) (float64, error) {
		return raw[c.RootProviderID], nil
	}
}

func TestScore_NormalizesAndCombines(t *testing.T) {
	ctx, tx := newStore(t)

	candidates := []*model.AllocationCandidate{
		candidateFor("host-a", 0),
		candidateFor("host-b", 0),
		candidateFor("host-c", 0),
	}
	specs := []weigher.Spec{
		{Name: "busy", Fn: constSignal(map[model.ID]float64{
			"host-a": 0,
			"host-b": 5,
			"host-c": 10,
		}), Multiplier: 1, Sign: 1},
	}

	ranked, err := weigher.Score(ctx, tx, capacity.UsageReader(capacity.StoreReader{Lister: tx}), &model.Request{}, candidates, specs, nil)
	require.NoError(t, err)
	require.Len(t, ranked, 3)
	// host-c has the highest raw value, normalizes to 1.0, and should
	// rank first with Sign +1.
	assert.Equal(t, model.ID("host-c"), ranked[0].RootProviderID)
	assert.Equal(t, model.ID("host-a"), ranked[2].RootProviderID)
	assert.InDelta(t, 1.0, ranked[0].Score, 1e-9)
	assert.InDelta(t, 0.5, ranked[1].Score, 1e-9)
	assert.InDelta(t, 0.0, ranked[2].Score, 1e-9)
}

func TestScore_NegativeSignFlipsPreference(t *testing.T) {
	ctx, tx := newStore(t)
	candidates := []*model.AllocationCandidate{
		candidateFor("host-a", 0),
		candidateFor("host-b", 0),
	}
	specs := []weigher.Spec{
		{Name: "penalty", Fn: constSignal(map[model.ID]float64{
			"host-a": 0,
			"host-b": 10,
		}), Multiplier: 1, Sign: -1},
	}
	ranked, err := weigher.Score(ctx, tx, capacity.UsageReader(capacity.StoreReader{Lister: tx}), &model.Request{}, candidates, specs, nil)
	require.NoError(t, err)
	// host-a has the lower raw (better under a penalty signal) and Sign
	// -1 must make it rank first.
	assert.Equal(t, model.ID("host-a"), ranked[0].RootProviderID)
}

func TestScore_TieBreaksByLowestUUID(t *testing.T) {
	ctx, tx := newStore(t)
	candidates := []*model.AllocationCandidate{
		candidateFor("host-zzz", 0),
		candidateFor("host-aaa", 0),
	}
	specs := []weigher.Spec{
		{Name: "flat", Fn: constSignal(map[model.ID]float64{
			"host-zzz": 3,
			"host-aaa": 3,
		}), Multiplier: 1, Sign: 1},
	}
	ranked, err := weigher.Score(ctx, tx, capacity.UsageReader(capacity.StoreReader{Lister: tx}), &model.Request{}, candidates, specs, nil)
	require.NoError(t, err)
	assert.Equal(t, model.ID("host-aaa"), ranked[0].RootProviderID)
}

func TestScore_NoCandidatesIsNoop(t *testing.T) {
	ctx, tx := newStore(t)
	ranked, err := weigher.Score(ctx, tx, capacity.UsageReader(capacity.StoreReader{Lister: tx}), &model.Request{}, nil, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, ranked)
}

func TestTraitWeightOverride_TakesMinimumAcrossAggregates(t *testing.T) {
	high := 2.0
	low := 0.5
	aggs := []*model.Aggregate{
		{ID: "agg-1", Name: "a", TraitWeightMultiplier: &high},
		{ID: "agg-2", Name: "b", TraitWeightMultiplier: &low},
	}
	mult, ok := weigher.TraitWeightOverride(aggs, "TraitAffinity")
	require.True(t, ok)
	assert.Equal(t, low, mult)

	_, ok = weigher.TraitWeightOverride(aggs, "CPU")
	assert.False(t, ok, "override only ever applies to TraitAffinity")

	none, ok := weigher.TraitWeightOverride(nil, "TraitAffinity")
	assert.False(t, ok)
	assert.Zero(t, none)
}

func TestScore_AggregateOverrideAppliesMinimumMultiplier(t *testing.T) {
	ctx, tx := newStore(t)
	root := &model.ResourceProvider{ID: "host-a", Name: "host-a"}
	require.NoError(t, tx.CreateProvider(ctx, root))
	agg := &model.Aggregate{ID: "agg-1", Name: "agg-1", TraitWeightMultiplier: floatPtr(0.1)}
	require.NoError(t, tx.UpsertAggregate(ctx, agg))
	require.NoError(t, tx.AddMember(ctx, agg.ID, root.ID))

	other := &model.ResourceProvider{ID: "host-b", Name: "host-b"}
	require.NoError(t, tx.CreateProvider(ctx, other))

	candidates := []*model.AllocationCandidate{
		candidateFor("host-a", 0),
		candidateFor("host-b", 0),
	}
	specs := []weigher.Spec{
		{Name: "TraitAffinity", Fn: constSignal(map[model.ID]float64{
			"host-a": 10,
			"host-b": 10,
		}), Multiplier: 1.0, Sign: 1},
	}
	ranked, err := weigher.Score(ctx, tx, capacity.UsageReader(capacity.StoreReader{Lister: tx}), &model.Request{}, candidates, specs, weigher.TraitWeightOverride)
	require.NoError(t, err)
	var aScore, bScore float64
	for _, c := range ranked {
		switch c.RootProviderID {
		case "host-a":
			aScore = c.Score
		case "host-b":
			bScore = c.Score
		}
	}
	// Equal raw signal, equal normalized value (0.5 for a tie), but
	// host-a's aggregate override (0.1) must shrink its contribution
	// relative to host-b's full multiplier (1.0).
	assert.Less(t, aScore, bScore)
}

func floatPtr(f float64) *float64 { return &f }

func TestDisk_SharedPoolCountedOnceAcrossSubtree(t *testing.T) {
	ctx, tx := newStore(t)
	root := &model.ResourceProvider{ID: "w-root", Name: "w-root"}
	require.NoError(t, tx.CreateProvider(ctx, root))
	child := &model.ResourceProvider{ID: "w-child", Name: "w-child", ParentID: root.ID}
	require.NoError(t, tx.CreateProvider(ctx, child))
	pool := &model.ResourceProvider{ID: "w-pool", Name: "w-pool"}
	require.NoError(t, tx.CreateProvider(ctx, pool))
	require.NoError(t, tx.UpsertInventory(ctx, &model.Inventory{
		ProviderID: pool.ID, Class: "DISK_GB",
		Total: 100, MinUnit: 1, MaxUnit: 100, StepSize: 1, AllocationRatio: 1.0,
	}))
	// The pool shares into both the root and its child; the free-disk
	// signal must count its capacity once, not once per sharing edge.
	for _, target := range []model.ID{root.ID, child.ID} {
		tx.PutSharesResources(model.SharesResources{
			FromProviderID: pool.ID, ToProviderID: target, Classes: []string{"DISK_GB"},
		})
	}

	c := &model.AllocationCandidate{RootProviderID: root.ID}
	v, err := weigher.Disk(ctx, tx, capacity.StoreReader{Lister: tx}, &model.Request{}, c)
	require.NoError(t, err)
	assert.EqualValues(t, 100, v)
}
