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

package capacity_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tachyon-sched/tachyon/internal/capacity"
	"github.com/tachyon-sched/tachyon/internal/model"
)

func vcpuInventory() *model.Inventory {
	return &model.Inventory{
		ProviderID:      "host-1",
		Class:           "VCPU",
		Total:           64,
		Reserved:        4,
		MinUnit:         1,
		MaxUnit:         16,
		StepSize:        1,
		AllocationRatio: 16.0,
	}
}

func TestEvaluate_Feasible(t *testing.T) {
	inv := vcpuInventory()
	// EffectiveCapacity = floor((64-4) * 16.0) = 960
	require.EqualValues(t, 960, inv.EffectiveCapacity())

	r := capacity.Evaluate(inv, 100, 8)
	assert.True(t, r.Feasible)
	assert.Equal(t, int64(960), r.Capacity)
	assert.Equal(t, int64(860), r.Free)
	assert.Empty(t, r.Reason)
}

func TestEvaluate_AllocationRatioAppliesAfterReserved(t *testing.T) {
	// Resolved open question: the ratio multiplies (total-reserved),
	// never total alone.
	inv := &model.Inventory{Total: 100, Reserved: 20, MinUnit: 1, MaxUnit: 1000, StepSize: 1, AllocationRatio: 2.0}
	assert.EqualValues(t, 160, inv.EffectiveCapacity())
}

func TestEvaluate_BelowMinUnit(t *testing.T) {
	inv := vcpuInventory()
	r := capacity.Evaluate(inv, 0, 0)
	assert.False(t, r.Feasible)
	assert.Contains(t, r.Reason, "min_unit")
}

func TestEvaluate_AboveMaxUnit(t *testing.T) {
	inv := vcpuInventory()
	r := capacity.Evaluate(inv, 0, 17)
	assert.False(t, r.Feasible)
	assert.Contains(t, r.Reason, "max_unit")
}

func TestEvaluate_NotAStepMultiple(t *testing.T) {
	inv := vcpuInventory()
	inv.StepSize = 4
	r := capacity.Evaluate(inv, 0, 6)
	assert.False(t, r.Feasible)
	assert.Contains(t, r.Reason, "step_size")
}

func TestEvaluate_ExceedsFreeCapacity(t *testing.T) {
	inv := vcpuInventory()
	r := capacity.Evaluate(inv, 950, 16)
	assert.False(t, r.Feasible)
	assert.Contains(t, r.Reason, "free capacity")
}

func TestEvaluate_ReservedExceedingTotalYieldsZeroCapacity(t *testing.T) {
	inv := &model.Inventory{Total: 10, Reserved: 10, MinUnit: 1, MaxUnit: 1, StepSize: 1, AllocationRatio: 1.0}
	assert.EqualValues(t, 0, inv.EffectiveCapacity())
	r := capacity.Evaluate(inv, 0, 1)
	assert.False(t, r.Feasible)
}

type fakeLister struct {
	allocs []model.Allocation
}

func (f fakeLister) ListAllocationsForInventory(ctx context.Context, providerID model.ID, class string) ([]model.Allocation, error) {
	return f.allocs, nil
}

func TestStoreReader_SumsLiveAllocations(t *testing.T) {
	lister := fakeLister{allocs: []model.Allocation{
		{ProviderID: "host-1", Class: "VCPU", Used: 4},
		{ProviderID: "host-1", Class: "VCPU", Used: 6},
	}}
	reader := capacity.StoreReader{Lister: lister}
	used, err := reader.Used(context.Background(), "host-1", "VCPU")
	require.NoError(t, err)
	assert.EqualValues(t, 10, used)
}
