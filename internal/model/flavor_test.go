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

package model_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tachyon-sched/tachyon/internal/model"
)

func TestFlavorRequest_SplitsHardAndSoftTraits(t *testing.T) {
	f := &model.Flavor{
		ID:   "flavor-1",
		Name: "m1.large",
		Resources: []model.ResourceAmount{
			{Class: "VCPU", Amount: 4},
			{Class: "MEMORY_MB", Amount: 8192},
		},
		Traits: []model.TraitRequirement{
			{Trait: "HW_CPU_X86_AVX2", Constraint: model.TraitRequired},
			{Trait: "COMPUTE_STATUS_DISABLED", Constraint: model.TraitForbidden},
			{Trait: "STORAGE_DISK_SSD", Constraint: model.TraitPreferred, Weight: 2},
			{Trait: "CUSTOM_NOISY_NEIGHBOR", Constraint: model.TraitAvoided, Weight: 1},
		},
		NUMACells: []model.NUMACell{
			{Resources: []model.ResourceAmount{{Class: "VCPU", Amount: 2}}},
			{Resources: []model.ResourceAmount{{Class: "VCPU", Amount: 2}}},
		},
	}

	req := f.Request()
	require.Len(t, req.Groups, 1)
	assert.Equal(t, f.Resources, req.Groups[0].Resources)
	assert.Equal(t, []string{"HW_CPU_X86_AVX2"}, req.Groups[0].RequiredTraits)
	assert.Equal(t, []string{"COMPUTE_STATUS_DISABLED"}, req.Groups[0].ForbiddenTraits)

	require.Len(t, req.GlobalPreferredTraits, 1)
	assert.Equal(t, "STORAGE_DISK_SSD", req.GlobalPreferredTraits[0].Trait)
	require.Len(t, req.GlobalAvoidedTraits, 1)
	assert.Equal(t, "CUSTOM_NOISY_NEIGHBOR", req.GlobalAvoidedTraits[0].Trait)

	assert.Len(t, req.NUMACells, 2)

	// The expansion must be a deep enough copy that mutating the
	// request never writes back into the immutable template.
	req.Groups[0].Resources[0].Amount = 999
	assert.EqualValues(t, 4, f.Resources[0].Amount)
}
