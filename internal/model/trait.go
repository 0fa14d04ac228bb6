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

// TraitConstraint is the strength of a flavor's requires_trait edge.
type TraitConstraint string

const (
	TraitRequired TraitConstraint = "required"
	TraitForbidden TraitConstraint = "forbidden"
	TraitPreferred TraitConstraint = "preferred"
	TraitAvoided   TraitConstraint = "avoided"
)

// IsHard reports whether the constraint must be enforced by C4 (as
// opposed to merely scored by C5).
func (c TraitConstraint) IsHard() bool {
	return c == TraitRequired || c == TraitForbidden
}

// TraitRequirement is one requires_trait edge from a Flavor or request
// group to a named Trait.
type TraitRequirement struct {
	Trait      string
	Constraint TraitConstraint
	// Weight is used only by soft constraints (Preferred/Avoided); hard
	// constraints ignore it.
	Weight float64
}

// Trait is a named boolean capability. Standard traits are frozen.
type Trait struct {
	Name     string
	Standard bool
}

// StandardTraits is the frozen trait catalog (versioned by
// standard_traits_source, see SPEC_FULL.md §3).
var StandardTraits = []string{
	"HW_CPU_X86_AVX2",
	"HW_CPU_X86_AVX512F",
	"HW_CPU_X86_VMX",
	"COMPUTE_STATUS_DISABLED",
	"COMPUTE_NODE",
	"COMPUTE_VOLUME_MULTI_ATTACH",
	"STORAGE_DISK_SSD",
}

// IsStandardTrait reports whether name is in the frozen trait catalog.
func IsStandardTrait(name string) bool {
	for _, t := range StandardTraits {
		if t == name {
			return true
		}
	}
	return false
}
