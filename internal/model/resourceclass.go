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

import "regexp"

// customNamePattern is the pattern every custom Trait and ResourceClass
// name must match (spec.md §4.2).
var customNamePattern = regexp.MustCompile(`^CUSTOM_[A-Z0-9_]+$`)

// IsValidCustomName reports whether name is a well-formed custom
// identifier (CUSTOM_[A-Z0-9_]+).
func IsValidCustomName(name string) bool {
	return customNamePattern.MatchString(name)
}

// ResourceClass is the named unit of allocation. Standard classes are
// frozen (cannot be renamed or deleted); custom classes must carry the
// CUSTOM_ prefix.
type ResourceClass struct {
	Name     string
	Standard bool
}

// StandardResourceClasses is the frozen identifier set Tachyon ships
// with (compiled in; internal/config's standard_traits_source carries an
// identifier for the catalog but is not read to choose one). It is
// deliberately small and versioned out-of-band from the engine, the way
// the original system's standard resource-class list is versioned
// independently of scheduler code.
var StandardResourceClasses = []ResourceClass{
	{Name: "VCPU", Standard: true},
	{Name: "MEMORY_MB", Standard: true},
	{Name: "DISK_GB", Standard: true},
	{Name: "IPV4_ADDRESS", Standard: true},
	{Name: "PCI_DEVICE", Standard: true},
	{Name: "SRIOV_NET_VF", Standard: true},
	{Name: "VGPU", Standard: true},
	{Name: "NET_BW_EGR_KILOBIT_PER_SEC", Standard: true},
}

// IsStandardResourceClass reports whether name is in the frozen set.
func IsStandardResourceClass(name string) bool {
	for _, c := range StandardResourceClasses {
		if c.Name == name {
			return true
		}
	}
	return false
}
