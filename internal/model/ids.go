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

// Package model defines the typed directed multigraph that Tachyon
// schedules over: resource providers, inventories, consumers,
// allocations, and the tags (traits, aggregates, flavors, server
// groups) that constrain and score them.
package model

import "github.com/google/uuid"

// ID is a stable entity identifier. The zero value is never valid.
type ID string

// NewID generates a fresh random identifier.
func NewID() ID {
	return ID(uuid.NewString())
}

func (id ID) String() string {
	return string(id)
}

// Generation is a monotonically increasing optimistic-concurrency token.
// Every successful mutation of the entity it is attached to strictly
// increases it.
type Generation uint64
