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

import "time"

// Allocation is a consumes edge: Consumer -> Inventory, carrying a used
// amount. Invariant (enforced by C3/C7, not by this struct):
// MinUnit <= Used <= MaxUnit and Used mod StepSize == 0.
type Allocation struct {
	ConsumerID ID
	ProviderID ID
	Class      string
	Used       int64
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
