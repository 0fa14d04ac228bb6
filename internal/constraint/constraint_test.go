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

package constraint_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tachyon-sched/tachyon/internal/capacity"
	"github.com/tachyon-sched/tachyon/internal/constraint"
	"github.com/tachyon-sched/tachyon/internal/model"
	"github.com/tachyon-sched/tachyon/internal/store"
	"github.com/tachyon-sched/tachyon/internal/store/memgraph"
)

// newTx returns a fresh in-memory transaction and a cleanup that rolls
// it back, so the store's single write lock is always released even if
// a test fails partway through setup.
func newTx(t *testing.T) (context.Context, store.Tx) {
	t.Helper()
	ctx := context.Background()
	st := memgraph.New()
	tx, err := st.Begin(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = tx.Rollback(ctx) })
	return ctx, tx
}

func mustCreateProvider(t *testing.T, ctx context.Context, tx store.Tx, id, name string, parent model.ID) *model.ResourceProvider {
	t.Helper()
	rp := &model.ResourceProvider{ID: model.ID(id), Name: name, ParentID: parent}
	require.NoError(t, tx.CreateProvider(ctx, rp))
	got, err := tx.GetProvider(ctx, rp.ID)
	require.NoError(t, err)
	return got
}

func mustInventory(t *testing.T, ctx context.Context, tx store.Tx, providerID model.ID, class string, total int64) {
	t.Helper()
	require.NoError(t, tx.UpsertInventory(ctx, &model.Inventory{
		ProviderID: providerID, Class: class,
		Total: total, MinUnit: 1, MaxUnit: total, StepSize: 1, AllocationRatio: 1.0,
	}))
}

func TestScreenRoot_DisabledRootFails(t *testing.T) {
	ctx, tx := newTx(t)
	root := mustCreateProvider(t, ctx, tx, "root-1", "root-1", "")
	root.Disabled = true
	require.NoError(t, tx.UpdateProvider(ctx, root, root.Generation))
	root, err := tx.GetProvider(ctx, root.ID)
	require.NoError(t, err)

	v, err := constraint.ScreenRoot(ctx, tx, &model.Request{}, root)
	require.NoError(t, err)
	require.False(t, v.OK)
}

func TestScreenRoot_RequiredAndForbiddenTraits(t *testing.T) {
	ctx, tx := newTx(t)
	root := mustCreateProvider(t, ctx, tx, "root-1", "root-1", "")
	require.NoError(t, tx.AddTrait(ctx, root.ID, "HW_CPU_X86_AVX2"))
	root, err := tx.GetProvider(ctx, root.ID)
	require.NoError(t, err)

	req := &model.Request{Groups: []model.ResourceGroup{
		{RequiredTraits: []string{"HW_CPU_X86_AVX2"}},
	}}
	v, err := constraint.ScreenRoot(ctx, tx, req, root)
	require.NoError(t, err)
	require.True(t, v.OK)

	reqMissing := &model.Request{Groups: []model.ResourceGroup{
		{RequiredTraits: []string{"HW_CPU_X86_AVX512F"}},
	}}
	v, err = constraint.ScreenRoot(ctx, tx, reqMissing, root)
	require.NoError(t, err)
	require.False(t, v.OK)

	reqForbidden := &model.Request{Groups: []model.ResourceGroup{
		{ForbiddenTraits: []string{"HW_CPU_X86_AVX2"}},
	}}
	v, err = constraint.ScreenRoot(ctx, tx, reqForbidden, root)
	require.NoError(t, err)
	require.False(t, v.OK)
}

func TestScreenRoot_TenantIsolation(t *testing.T) {
	ctx, tx := newTx(t)
	root := mustCreateProvider(t, ctx, tx, "root-1", "root-1", "")

	agg := &model.Aggregate{ID: "agg-1", Name: "restricted", TenantAllowed: []model.ID{"tenant-a"}}
	require.NoError(t, tx.UpsertAggregate(ctx, agg))
	require.NoError(t, tx.AddMember(ctx, agg.ID, root.ID))
	root, err := tx.GetProvider(ctx, root.ID)
	require.NoError(t, err)

	allowed := &model.Request{ProjectID: "tenant-a"}
	v, err := constraint.ScreenRoot(ctx, tx, allowed, root)
	require.NoError(t, err)
	require.True(t, v.OK)

	denied := &model.Request{ProjectID: "tenant-b"}
	v, err = constraint.ScreenRoot(ctx, tx, denied, root)
	require.NoError(t, err)
	require.False(t, v.OK)
}

func TestScreenRoot_AvailabilityZone(t *testing.T) {
	ctx, tx := newTx(t)
	root := mustCreateProvider(t, ctx, tx, "root-1", "root-1", "")
	agg := &model.Aggregate{ID: "agg-az", Name: "az1", AvailabilityZone: "az1"}
	require.NoError(t, tx.UpsertAggregate(ctx, agg))
	require.NoError(t, tx.AddMember(ctx, agg.ID, root.ID))
	root, err := tx.GetProvider(ctx, root.ID)
	require.NoError(t, err)

	v, err := constraint.ScreenRoot(ctx, tx, &model.Request{AZ: "az1"}, root)
	require.NoError(t, err)
	require.True(t, v.OK)

	v, err = constraint.ScreenRoot(ctx, tx, &model.Request{AZ: "az2"}, root)
	require.NoError(t, err)
	require.False(t, v.OK)
}

func TestScreenRoot_HardAntiAffinity(t *testing.T) {
	ctx, tx := newTx(t)
	rootA := mustCreateProvider(t, ctx, tx, "root-a", "root-a", "")
	rootB := mustCreateProvider(t, ctx, tx, "root-b", "root-b", "")
	mustInventory(t, ctx, tx, rootA.ID, "VCPU", 100)
	mustInventory(t, ctx, tx, rootB.ID, "VCPU", 100)

	group := &model.ServerGroup{ID: "sg-1", Name: "web", Policy: model.AntiAffinityHard, MaxServerPerHost: 0, Members: []model.ID{"member-1"}}
	tx.(*memgraph.Tx).PutServerGroup(group)

	// member-1 is already placed on rootA.
	require.NoError(t, tx.ReplaceAllocations(ctx, "member-1", []model.Allocation{
		{ProviderID: rootA.ID, Class: "VCPU", Used: 1},
	}))

	req := &model.Request{ServerGroupID: group.ID}
	v, err := constraint.ScreenRoot(ctx, tx, req, rootA)
	require.NoError(t, err)
	require.False(t, v.OK, "anti-affinity with max_server_per_host=0 must reject a second member on the same host")

	v, err = constraint.ScreenRoot(ctx, tx, req, rootB)
	require.NoError(t, err)
	require.True(t, v.OK)
}

func TestScreenRoot_HardAntiAffinityConfiguredLimit(t *testing.T) {
	ctx, tx := newTx(t)
	rootA := mustCreateProvider(t, ctx, tx, "root-a", "root-a", "")
	mustInventory(t, ctx, tx, rootA.ID, "VCPU", 100)

	group := &model.ServerGroup{ID: "sg-2", Name: "web", Policy: model.AntiAffinityHard, MaxServerPerHost: 2, Members: []model.ID{"member-1", "member-2"}}
	tx.(*memgraph.Tx).PutServerGroup(group)

	// member-1 and member-2 are already placed on rootA: the host is at
	// its configured max_server_per_host of 2, so a third must be
	// rejected, not admitted.
	require.NoError(t, tx.ReplaceAllocations(ctx, "member-1", []model.Allocation{
		{ProviderID: rootA.ID, Class: "VCPU", Used: 1},
	}))
	require.NoError(t, tx.ReplaceAllocations(ctx, "member-2", []model.Allocation{
		{ProviderID: rootA.ID, Class: "VCPU", Used: 1},
	}))

	req := &model.Request{ServerGroupID: group.ID}
	v, err := constraint.ScreenRoot(ctx, tx, req, rootA)
	require.NoError(t, err)
	require.False(t, v.OK, "a host already at max_server_per_host must reject one more member")
}

func TestFindCoverage_PartitionAcrossGroups(t *testing.T) {
	ctx, tx := newTx(t)
	root := mustCreateProvider(t, ctx, tx, "root-1", "root-1", "")
	mustInventory(t, ctx, tx, root.ID, "VCPU", 10)

	usage := capacity.UsageReader(capacity.StoreReader{Lister: tx})
	consumed := constraint.Consumed{}

	sources, err := constraint.FindCoverage(ctx, tx, usage, root.ID, "VCPU", 6, consumed)
	require.NoError(t, err)
	require.Len(t, sources, 1)
	require.True(t, sources[0].Result.Feasible)
	consumed.Commit(sources[0].ProviderID, "VCPU", 6)

	// Only 4 left; a second group asking for 6 must see it as infeasible
	// because Consumed already netted out the first group's draw.
	sources, err = constraint.FindCoverage(ctx, tx, usage, root.ID, "VCPU", 6, consumed)
	require.NoError(t, err)
	require.Empty(t, sources)

	sources, err = constraint.FindCoverage(ctx, tx, usage, root.ID, "VCPU", 4, consumed)
	require.NoError(t, err)
	require.Len(t, sources, 1)
}

func TestFindCoverage_SharingProvider(t *testing.T) {
	ctx, tx := newTx(t)
	root := mustCreateProvider(t, ctx, tx, "root-1", "root-1", "")
	storagePool := mustCreateProvider(t, ctx, tx, "pool-1", "pool-1", "")
	mustInventory(t, ctx, tx, storagePool.ID, "DISK_GB", 1000)

	tx.(*memgraph.Tx).PutSharesResources(model.SharesResources{
		FromProviderID: storagePool.ID,
		ToProviderID:   root.ID,
		Classes:        []string{"DISK_GB"},
	})

	usage := capacity.UsageReader(capacity.StoreReader{Lister: tx})
	sources, err := constraint.FindCoverage(ctx, tx, usage, root.ID, "DISK_GB", 500, constraint.Consumed{})
	require.NoError(t, err)
	require.Len(t, sources, 1)
	require.Equal(t, storagePool.ID, sources[0].ProviderID)
}

func TestSortedDescendants_OrdersByDepthThenID(t *testing.T) {
	ctx, tx := newTx(t)
	root := mustCreateProvider(t, ctx, tx, "root-1", "root-1", "")
	_ = mustCreateProvider(t, ctx, tx, "z-child", "z-child", root.ID)
	_ = mustCreateProvider(t, ctx, tx, "a-child", "a-child", root.ID)
	grandchild := mustCreateProvider(t, ctx, tx, "grandchild", "grandchild", "z-child")
	_ = grandchild

	ordered, err := constraint.SortedDescendants(ctx, tx, root.ID)
	require.NoError(t, err)
	require.Len(t, ordered, 3)
	require.Equal(t, model.ID("a-child"), ordered[0].ID)
	require.Equal(t, model.ID("z-child"), ordered[1].ID)
	require.Equal(t, model.ID("grandchild"), ordered[2].ID)
}

func TestFitPCI_RequiresDeviceInventory(t *testing.T) {
	ctx, tx := newTx(t)
	root := mustCreateProvider(t, ctx, tx, "pci-root", "pci-root", "")
	for _, id := range []model.ID{"pci-vf-1", "pci-vf-2"} {
		require.NoError(t, tx.CreateProvider(ctx, &model.ResourceProvider{
			ID: id, Name: string(id), ParentID: root.ID, Roles: []model.ProviderRole{model.RolePCIVF},
		}))
	}
	// Only vf-1 stocks a claimable PCI_DEVICE unit; vf-2 carries the
	// role but no inventory, so it must never be matched.
	mustInventory(t, ctx, tx, "pci-vf-1", "PCI_DEVICE", 1)

	usage := capacity.UsageReader(capacity.StoreReader{Lister: tx})
	assignment, ok, err := constraint.FitPCI(ctx, tx, usage, root.ID, []model.PCIRequest{{Count: 1}}, model.PCINUMAAffinityNone, nil)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []model.ID{"pci-vf-1"}, assignment[0])

	_, ok, err = constraint.FitPCI(ctx, tx, usage, root.ID, []model.PCIRequest{{Count: 2}}, model.PCINUMAAffinityNone, nil)
	require.NoError(t, err)
	require.False(t, ok, "a VF without PCI_DEVICE inventory cannot satisfy the second device")
}

func TestFindCoverage_SharingCoversClassTheTargetDoesNotStock(t *testing.T) {
	ctx, tx := newTx(t)
	root := mustCreateProvider(t, ctx, tx, "bare-root", "bare-root", "")
	pool := mustCreateProvider(t, ctx, tx, "share-pool", "share-pool", "")
	mustInventory(t, ctx, tx, pool.ID, "DISK_GB", 100)
	tx.(*memgraph.Tx).PutSharesResources(model.SharesResources{
		FromProviderID: pool.ID, ToProviderID: root.ID, Classes: []string{"DISK_GB"},
	})

	// The root has no DISK_GB inventory of its own at all; coverage
	// must still discover the pool through the shares edge.
	usage := capacity.UsageReader(capacity.StoreReader{Lister: tx})
	sources, err := constraint.FindCoverage(ctx, tx, usage, root.ID, "DISK_GB", 50, constraint.Consumed{})
	require.NoError(t, err)
	require.Len(t, sources, 1)
	require.Equal(t, pool.ID, sources[0].ProviderID)
}
