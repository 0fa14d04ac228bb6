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

// SessionStatus is the lifecycle state of a SimulationSession.
// active -> committed | rolled_back | expired. Terminal states reject
// further deltas.
type SessionStatus string

const (
	SessionActive     SessionStatus = "active"
	SessionCommitted  SessionStatus = "committed"
	SessionRolledBack SessionStatus = "rolled_back"
	SessionExpired    SessionStatus = "expired"
)

// Terminal reports whether the status rejects further deltas.
func (s SessionStatus) Terminal() bool {
	return s != SessionActive
}

// DeltaType is the kind of speculative mutation a SpeculativeDelta
// records.
type DeltaType string

const (
	DeltaMove       DeltaType = "move"
	DeltaAllocate   DeltaType = "allocate"
	DeltaDeallocate DeltaType = "deallocate"
)

// SpeculativeDelta is one not-yet-committed mutation appended to a
// SimulationSession's log. Deltas within one session are strictly
// ordered by Sequence; there is no ordering between sessions.
type SpeculativeDelta struct {
	Type           DeltaType
	Sequence       uint64
	ConsumerID     ID
	FromProviderID ID // zero for Allocate
	ToProviderID   ID // zero for Deallocate

	// ResourceChanges maps resource class to the signed amount this
	// delta applies at ToProviderID (and the negated amount is removed
	// from FromProviderID for a Move).
	ResourceChanges map[string]int64
}

// SimulationSession is a speculative workspace layered over the live
// graph (spec.md §4.8).
type SimulationSession struct {
	ID             ID
	BaseGeneration Generation
	CreatedAt      time.Time
	ExpiresAt      time.Time
	Status         SessionStatus
	AuditID        string
	Deltas         []SpeculativeDelta

	// ObservedGenerations records, for every provider or consumer a
	// delta has touched, the generation observed the first time this
	// session touched it. Commit's conflict check (spec.md §4.8) compares
	// this against the live generation: any entity an outside writer
	// bumped since first touch fails the commit with `conflict_generation`
	// (the session itself stays active).
	ObservedGenerations map[ID]Generation
}

// NextSequence returns the sequence number the next appended delta
// would receive.
func (s *SimulationSession) NextSequence() uint64 {
	if len(s.Deltas) == 0 {
		return 1
	}
	return s.Deltas[len(s.Deltas)-1].Sequence + 1
}
