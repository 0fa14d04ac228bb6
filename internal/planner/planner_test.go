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

package planner_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tachyon-sched/tachyon/internal/capacity"
	"github.com/tachyon-sched/tachyon/internal/model"
	"github.com/tachyon-sched/tachyon/internal/planner"
	"github.com/tachyon-sched/tachyon/internal/store/memgraph"
	"github.com/tachyon-sched/tachyon/internal/weigher"
)

func newTx(t *testing.T) (context.Context, *memgraph.Tx) {
	t.Helper()
	ctx := context.Background()
	st := memgraph.New()
	tx, err := st.Begin(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = tx.Rollback(ctx) })
	return ctx, tx.(*memgraph.Tx)
}

func createHost(t *testing.T, ctx context.Context, tx *memgraph.Tx, id string, vcpuTotal int64) *model.ResourceProvider {
	t.Helper()
	rp := &model.ResourceProvider{ID: model.ID(id), Name: id, Roles: []model.ProviderRole{model.RoleComputeHost}}
	require.NoError(t, tx.CreateProvider(ctx, rp))
	require.NoError(t, tx.UpsertInventory(ctx, &model.Inventory{
		ProviderID: rp.ID, Class: "VCPU",
		Total: vcpuTotal, MinUnit: 1, MaxUnit: vcpuTotal, StepSize: 1, AllocationRatio: 1.0,
	}))
	got, err := tx.GetProvider(ctx, rp.ID)
	require.NoError(t, err)
	return got
}

func vcpuRequest(amount int64) *model.Request {
	return &model.Request{
		Groups: []model.ResourceGroup{
			{Resources: []model.ResourceAmount{{Class: "VCPU", Amount: amount}}},
		},
		Limit: 10,
	}
}

func TestCandidates_SingleFeasibleHost(t *testing.T) {
	ctx, tx := newTx(t)
	createHost(t, ctx, tx, "host-1", 32)

	usage := capacity.UsageReader(capacity.StoreReader{Lister: tx})
	candidates, err := planner.Candidates(ctx, tx, usage, vcpuRequest(4), planner.Options{
		WeigherSpecs: weigher.DefaultSpecs(weigher.Multipliers{CPU: 1}, nil, nil),
	})
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, model.ID("host-1"), candidates[0].RootProviderID)
	require.Len(t, candidates[0].Allocations, 1)
	assert.EqualValues(t, 4, candidates[0].Allocations[0].Amount)
	assert.Equal(t, "VCPU", candidates[0].Allocations[0].Class)
}

func TestCandidates_OverCapacityHostExcluded(t *testing.T) {
	ctx, tx := newTx(t)
	createHost(t, ctx, tx, "host-1", 4)

	usage := capacity.UsageReader(capacity.StoreReader{Lister: tx})
	candidates, err := planner.Candidates(ctx, tx, usage, vcpuRequest(8), planner.Options{
		WeigherSpecs: weigher.DefaultSpecs(weigher.Multipliers{CPU: 1}, nil, nil),
	})
	require.NoError(t, err)
	assert.Empty(t, candidates)
}

func TestCandidates_RanksByFreeCapacity(t *testing.T) {
	ctx, tx := newTx(t)
	createHost(t, ctx, tx, "host-small", 8)
	createHost(t, ctx, tx, "host-big", 64)

	usage := capacity.UsageReader(capacity.StoreReader{Lister: tx})
	candidates, err := planner.Candidates(ctx, tx, usage, vcpuRequest(4), planner.Options{
		WeigherSpecs: weigher.DefaultSpecs(weigher.Multipliers{CPU: 1}, nil, nil),
	})
	require.NoError(t, err)
	require.Len(t, candidates, 2)
	assert.Equal(t, model.ID("host-big"), candidates[0].RootProviderID, "more free VCPU should rank first under a positive CPU spread weigher")
}

func TestCandidates_RequiredTraitExcludesHost(t *testing.T) {
	ctx, tx := newTx(t)
	createHost(t, ctx, tx, "host-1", 32)
	host2 := createHost(t, ctx, tx, "host-2", 32)
	require.NoError(t, tx.AddTrait(ctx, host2.ID, "HW_CPU_X86_AVX512F"))

	req := vcpuRequest(4)
	req.Groups[0].RequiredTraits = []string{"HW_CPU_X86_AVX512F"}

	usage := capacity.UsageReader(capacity.StoreReader{Lister: tx})
	candidates, err := planner.Candidates(ctx, tx, usage, req, planner.Options{
		WeigherSpecs: weigher.DefaultSpecs(weigher.Multipliers{CPU: 1}, nil, nil),
	})
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, model.ID("host-2"), candidates[0].RootProviderID)
}

func TestCandidates_LimitTruncatesRankedList(t *testing.T) {
	ctx, tx := newTx(t)
	createHost(t, ctx, tx, "host-1", 32)
	createHost(t, ctx, tx, "host-2", 32)
	createHost(t, ctx, tx, "host-3", 32)

	req := vcpuRequest(4)
	req.Limit = 2
	usage := capacity.UsageReader(capacity.StoreReader{Lister: tx})
	candidates, err := planner.Candidates(ctx, tx, usage, req, planner.Options{
		WeigherSpecs: weigher.DefaultSpecs(weigher.Multipliers{CPU: 1}, nil, nil),
	})
	require.NoError(t, err)
	assert.Len(t, candidates, 2)
}

func TestCandidates_InTreeRestrictsRootSet(t *testing.T) {
	ctx, tx := newTx(t)
	createHost(t, ctx, tx, "host-1", 32)
	createHost(t, ctx, tx, "host-2", 32)

	req := vcpuRequest(4)
	req.InTree = "host-2"
	usage := capacity.UsageReader(capacity.StoreReader{Lister: tx})
	candidates, err := planner.Candidates(ctx, tx, usage, req, planner.Options{
		WeigherSpecs: weigher.DefaultSpecs(weigher.Multipliers{CPU: 1}, nil, nil),
	})
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, model.ID("host-2"), candidates[0].RootProviderID)
}

func TestCandidates_OverSubscribedHostExhaustsAtEffectiveCapacity(t *testing.T) {
	ctx, tx := newTx(t)
	host := &model.ResourceProvider{ID: "osub-1", Name: "osub-1", Roles: []model.ProviderRole{model.RoleComputeHost}}
	require.NoError(t, tx.CreateProvider(ctx, host))
	require.NoError(t, tx.UpsertInventory(ctx, &model.Inventory{
		ProviderID: host.ID, Class: "VCPU",
		Total: 8, MinUnit: 1, MaxUnit: 8, StepSize: 1, AllocationRatio: 4.0,
	}))

	// Four consumers of 8 VCPU each fill the oversubscribed capacity
	// of floor(8 * 4.0) = 32 exactly.
	for _, consumer := range []model.ID{"c1", "c2", "c3", "c4"} {
		require.NoError(t, tx.ReplaceAllocations(ctx, consumer, []model.Allocation{
			{ConsumerID: consumer, ProviderID: host.ID, Class: "VCPU", Used: 8},
		}))
	}

	usage := capacity.UsageReader(capacity.StoreReader{Lister: tx})
	candidates, err := planner.Candidates(ctx, tx, usage, vcpuRequest(8), planner.Options{
		WeigherSpecs: weigher.DefaultSpecs(weigher.Multipliers{CPU: 1}, nil, nil),
	})
	require.NoError(t, err)
	assert.Empty(t, candidates, "a fifth identical claim must find no headroom once the ratio-inflated capacity is spent")
}

func TestCandidates_NUMASplit(t *testing.T) {
	ctx, tx := newTx(t)
	host := &model.ResourceProvider{ID: "numa-host", Name: "numa-host", Roles: []model.ProviderRole{model.RoleComputeHost}}
	require.NoError(t, tx.CreateProvider(ctx, host))
	for _, id := range []model.ID{"numa-0", "numa-1"} {
		require.NoError(t, tx.CreateProvider(ctx, &model.ResourceProvider{
			ID: id, Name: string(id), ParentID: host.ID, Roles: []model.ProviderRole{model.RoleNUMANode},
		}))
		require.NoError(t, tx.UpsertInventory(ctx, &model.Inventory{
			ProviderID: id, Class: "VCPU",
			Total: 4, MinUnit: 1, MaxUnit: 4, StepSize: 1, AllocationRatio: 1.0,
		}))
		require.NoError(t, tx.UpsertInventory(ctx, &model.Inventory{
			ProviderID: id, Class: "MEMORY_MB",
			Total: 8192, MinUnit: 1, MaxUnit: 8192, StepSize: 1, AllocationRatio: 1.0,
		}))
	}

	cell := model.NUMACell{Resources: []model.ResourceAmount{
		{Class: "VCPU", Amount: 4},
		{Class: "MEMORY_MB", Amount: 8192},
	}}
	req := &model.Request{NUMACells: []model.NUMACell{cell, cell}, Limit: 10}

	usage := capacity.UsageReader(capacity.StoreReader{Lister: tx})
	candidates, err := planner.Candidates(ctx, tx, usage, req, planner.Options{
		WeigherSpecs: weigher.DefaultSpecs(weigher.Multipliers{CPU: 1}, nil, nil),
	})
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, model.ID("numa-host"), candidates[0].RootProviderID)

	nodes := map[model.ID]bool{}
	for _, a := range candidates[0].Allocations {
		nodes[a.ProviderID] = true
	}
	assert.Len(t, nodes, 2, "each cell must land on a distinct NUMA node")

	// A per-cell floor no single node can satisfy must fail the whole
	// root, not fall back to host-level capacity.
	bigCell := model.NUMACell{Resources: []model.ResourceAmount{{Class: "VCPU", Amount: 5}}}
	reqTooBig := &model.Request{NUMACells: []model.NUMACell{bigCell, bigCell}, Limit: 10}
	candidates, err = planner.Candidates(ctx, tx, usage, reqTooBig, planner.Options{
		WeigherSpecs: weigher.DefaultSpecs(weigher.Multipliers{CPU: 1}, nil, nil),
	})
	require.NoError(t, err)
	assert.Empty(t, candidates)
}

func TestCandidates_SharingProviderCoversDisk(t *testing.T) {
	ctx, tx := newTx(t)
	compute := &model.ResourceProvider{ID: "compute-1", Name: "compute-1", Roles: []model.ProviderRole{model.RoleComputeHost}}
	require.NoError(t, tx.CreateProvider(ctx, compute))
	require.NoError(t, tx.UpsertInventory(ctx, &model.Inventory{
		ProviderID: compute.ID, Class: "VCPU",
		Total: 8, MinUnit: 1, MaxUnit: 8, StepSize: 1, AllocationRatio: 1.0,
	}))
	pool := &model.ResourceProvider{ID: "storage-1", Name: "storage-1"}
	require.NoError(t, tx.CreateProvider(ctx, pool))
	require.NoError(t, tx.UpsertInventory(ctx, &model.Inventory{
		ProviderID: pool.ID, Class: "DISK_GB",
		Total: 1000, MinUnit: 1, MaxUnit: 1000, StepSize: 1, AllocationRatio: 1.0,
	}))
	tx.PutSharesResources(model.SharesResources{
		FromProviderID: pool.ID, ToProviderID: compute.ID, Classes: []string{"DISK_GB"},
	})

	req := &model.Request{
		Groups: []model.ResourceGroup{{Resources: []model.ResourceAmount{
			{Class: "VCPU", Amount: 2},
			{Class: "DISK_GB", Amount: 50},
		}}},
		Limit: 10,
	}
	usage := capacity.UsageReader(capacity.StoreReader{Lister: tx})
	candidates, err := planner.Candidates(ctx, tx, usage, req, planner.Options{
		WeigherSpecs: weigher.DefaultSpecs(weigher.Multipliers{CPU: 1, Disk: 1}, nil, nil),
	})
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, model.ID("compute-1"), candidates[0].RootProviderID)

	byClass := map[string]model.ID{}
	for _, a := range candidates[0].Allocations {
		byClass[a.Class] = a.ProviderID
	}
	assert.Equal(t, model.ID("compute-1"), byClass["VCPU"])
	assert.Equal(t, model.ID("storage-1"), byClass["DISK_GB"], "disk must come from the sharing pool")
}

func TestCandidates_SuffixedGroupTraitBindsToChosenProvider(t *testing.T) {
	ctx, tx := newTx(t)
	compute := &model.ResourceProvider{ID: "compute-2", Name: "compute-2", Roles: []model.ProviderRole{model.RoleComputeHost}}
	require.NoError(t, tx.CreateProvider(ctx, compute))
	require.NoError(t, tx.UpsertInventory(ctx, &model.Inventory{
		ProviderID: compute.ID, Class: "VCPU",
		Total: 8, MinUnit: 1, MaxUnit: 8, StepSize: 1, AllocationRatio: 1.0,
	}))
	// Two storage pools share disk into the host; only pool-b carries
	// the SSD trait the suffixed group requires. pool-a sorts first in
	// the deterministic coverage order, so passing this test means the
	// trait filter, not luck, picked the provider.
	for _, id := range []model.ID{"pool-a", "pool-b"} {
		require.NoError(t, tx.CreateProvider(ctx, &model.ResourceProvider{ID: id, Name: string(id)}))
		require.NoError(t, tx.UpsertInventory(ctx, &model.Inventory{
			ProviderID: id, Class: "DISK_GB",
			Total: 1000, MinUnit: 1, MaxUnit: 1000, StepSize: 1, AllocationRatio: 1.0,
		}))
		tx.PutSharesResources(model.SharesResources{
			FromProviderID: id, ToProviderID: compute.ID, Classes: []string{"DISK_GB"},
		})
	}
	require.NoError(t, tx.AddTrait(ctx, "pool-b", "STORAGE_DISK_SSD"))

	req := &model.Request{
		Groups: []model.ResourceGroup{
			{Resources: []model.ResourceAmount{{Class: "VCPU", Amount: 2}}},
			{
				Suffix:         "1",
				Resources:      []model.ResourceAmount{{Class: "DISK_GB", Amount: 50}},
				RequiredTraits: []string{"STORAGE_DISK_SSD"},
			},
		},
		Limit: 10,
	}
	usage := capacity.UsageReader(capacity.StoreReader{Lister: tx})
	candidates, err := planner.Candidates(ctx, tx, usage, req, planner.Options{
		WeigherSpecs: weigher.DefaultSpecs(weigher.Multipliers{CPU: 1, Disk: 1}, nil, nil),
	})
	require.NoError(t, err)
	require.Len(t, candidates, 1)

	byClass := map[string]model.ID{}
	for _, a := range candidates[0].Allocations {
		byClass[a.Class] = a.ProviderID
	}
	assert.Equal(t, model.ID("pool-b"), byClass["DISK_GB"], "the suffixed group's trait must bind to the chosen provider, not the root")
}
