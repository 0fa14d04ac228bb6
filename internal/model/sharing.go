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

// SharesResources is an RP -> RP edge: the source contributes the
// listed classes to the target even though the target is not an
// ancestor of the source in the parent_of forest (cross-tree sharing,
// e.g. a shared-storage pool feeding many compute hosts).
type SharesResources struct {
	FromProviderID ID
	ToProviderID   ID
	Classes        []string
}
