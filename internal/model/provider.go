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

package model

// ProviderRole tags the structural position of a ResourceProvider in the
// forest. Roles are advisory to the constraint engine (e.g. NUMA fitting
// only considers children tagged RoleNUMANode); they never substitute for
// explicit trait or parent_of checks.
type ProviderRole string

const (
	RoleComputeHost ProviderRole = "COMPUTE_HOST"
	RoleNUMANode    ProviderRole = "NUMA_NODE"
	RolePCIPF       ProviderRole = "PCI_PF"
	RolePCIVF       ProviderRole = "PCI_VF"
	RolePhysicalGPU ProviderRole = "PHYSICAL_GPU"
	RoleVGPUType    ProviderRole = "VGPU_TYPE"
)

// ResourceProvider is a source of resources. RPs form a forest via
// ParentID: at most one parent, no cycles (enforced by the store, see
// internal/store).
type ResourceProvider struct {
	ID         ID
	Name       string
	Generation Generation
	Disabled   bool
	Roles      []ProviderRole
	ParentID   ID // zero value means root

	// Traits is the set of trait names currently has_trait-attached to
	// this provider. Populated by the store on read; never mutated
	// in-place by callers (see §9 "in-process references must not be
	// held across transactions" — this is a value copy).
	Traits []string

	// Aggregates lists the aggregate IDs this provider is member_of.
	Aggregates []ID
}

// HasRole reports whether the provider carries the given structural role.
func (rp *ResourceProvider) HasRole(role ProviderRole) bool {
	for _, r := range rp.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// HasTrait reports whether the provider carries the named trait.
func (rp *ResourceProvider) HasTrait(name string) bool {
	for _, t := range rp.Traits {
		if t == name {
			return true
		}
	}
	return false
}

// IsRoot reports whether this provider has no parent.
func (rp *ResourceProvider) IsRoot() bool {
	return rp.ParentID == ""
}
