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

// ResourceAmount is one (class, amount) line of a Flavor or request
// group.
type ResourceAmount struct {
	Class  string
	Amount int64
}

// NUMACell is a per-cell resource floor within a NUMA-aware request
// (spec.md §4.4.7).
type NUMACell struct {
	Resources []ResourceAmount
}

// PCIRequest is one PCI device request group (spec.md §4.4.8).
type PCIRequest struct {
	Count  int
	Traits []string
}

// PCINUMAAffinity controls whether matched PCI providers must nest
// under the same NUMA node as the CPU/memory allocation of their
// request group.
type PCINUMAAffinity string

const (
	PCINUMAAffinityNone     PCINUMAAffinity = ""
	PCINUMAAffinityRequired PCINUMAAffinity = "required"
	PCINUMAAffinityPreferred PCINUMAAffinity = "preferred"
)

// Flavor is an immutable resource-and-constraint template.
type Flavor struct {
	ID        ID
	Name      string
	Resources []ResourceAmount
	Traits    []TraitRequirement
	NUMACells []NUMACell
	PCI       []PCIRequest
	PCIAffinity PCINUMAAffinity
}

// Request expands the flavor into a scheduling request: the resource
// list becomes the default group, hard requires_trait edges become that
// group's required/forbidden sets, soft edges become the request's
// global preferred/avoided sets, and the topology hints carry over
// unchanged. Callers layer project/AZ/limit on the returned value.
func (f *Flavor) Request() *Request {
	group := ResourceGroup{Resources: append([]ResourceAmount(nil), f.Resources...)}
	req := &Request{
		NUMACells:   append([]NUMACell(nil), f.NUMACells...),
		PCIRequests: append([]PCIRequest(nil), f.PCI...),
		PCIAffinity: f.PCIAffinity,
	}
	for _, t := range f.Traits {
		switch t.Constraint {
		case TraitRequired:
			group.RequiredTraits = append(group.RequiredTraits, t.Trait)
		case TraitForbidden:
			group.ForbiddenTraits = append(group.ForbiddenTraits, t.Trait)
		case TraitPreferred:
			req.GlobalPreferredTraits = append(req.GlobalPreferredTraits, t)
		case TraitAvoided:
			req.GlobalAvoidedTraits = append(req.GlobalAvoidedTraits, t)
		}
	}
	req.Groups = []ResourceGroup{group}
	return req
}
