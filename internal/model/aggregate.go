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

// Aggregate is an arbitrary tag carrying properties; ResourceProviders
// join via member_of. It may project at most one AvailabilityZone and
// may restrict membership to a set of Projects and/or Images.
type Aggregate struct {
	ID   ID
	Name string

	// AvailabilityZone is empty if this aggregate does not define one.
	AvailabilityZone string

	// TenantAllowed, if non-empty, restricts claims against member
	// providers to the listed project IDs (isolation, spec.md §4.4.4).
	TenantAllowed []ID

	// ImageAllowed, if non-empty, restricts claims to the listed image
	// IDs.
	ImageAllowed []ID

	// TraitWeightMultiplier overrides the global soft-trait weigher
	// multiplier for candidates whose root is a member of this
	// aggregate (spec.md §4.5). Nil means "no override".
	TraitWeightMultiplier *float64
}

// RestrictsTenants reports whether membership in this aggregate implies
// a tenant isolation check.
func (a *Aggregate) RestrictsTenants() bool {
	return len(a.TenantAllowed) > 0
}

// RestrictsImages reports whether membership in this aggregate implies
// an image isolation check.
func (a *Aggregate) RestrictsImages() bool {
	return len(a.ImageAllowed) > 0
}

// AllowsTenant reports whether project is permitted by this aggregate's
// tenant isolation list.
func (a *Aggregate) AllowsTenant(project ID) bool {
	for _, p := range a.TenantAllowed {
		if p == project {
			return true
		}
	}
	return false
}

// AllowsImage reports whether image is permitted by this aggregate's
// image isolation list.
func (a *Aggregate) AllowsImage(image ID) bool {
	for _, i := range a.ImageAllowed {
		if i == image {
			return true
		}
	}
	return false
}
