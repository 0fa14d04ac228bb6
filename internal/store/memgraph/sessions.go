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

package memgraph

import (
	"context"
	"time"

	"github.com/tachyon-sched/tachyon/internal/errs"
	"github.com/tachyon-sched/tachyon/internal/model"
)

func (tx *Tx) CreateSession(ctx context.Context, s *model.SimulationSession) error {
	if err := tx.checkDeadline(); err != nil {
		return err
	}
	if _, exists := tx.working.sessions[s.ID]; exists {
		return errs.New(errs.ConflictUniqueness, "session %s already exists", s.ID)
	}
	cp := *s
	cp.Deltas = append([]model.SpeculativeDelta(nil), s.Deltas...)
	tx.working.sessions[s.ID] = &cp
	return nil
}

func (tx *Tx) GetSession(ctx context.Context, id model.ID) (*model.SimulationSession, error) {
	if err := tx.checkDeadline(); err != nil {
		return nil, err
	}
	s, ok := tx.working.sessions[id]
	if !ok {
		return nil, errs.New(errs.NotFound, "session %s not found", id)
	}
	cp := *s
	cp.Deltas = append([]model.SpeculativeDelta(nil), s.Deltas...)
	return &cp, nil
}

func (tx *Tx) AppendDelta(ctx context.Context, sessionID model.ID, d model.SpeculativeDelta) error {
	if err := tx.checkDeadline(); err != nil {
		return err
	}
	s, ok := tx.working.sessions[sessionID]
	if !ok {
		return errs.New(errs.NotFound, "session %s not found", sessionID)
	}
	if s.Status.Terminal() {
		return errs.New(errs.InvalidState, "session %s is %s, cannot accept deltas", sessionID, s.Status)
	}
	s.Deltas = append(s.Deltas, d)
	return nil
}

func (tx *Tx) PopLastDelta(ctx context.Context, sessionID model.ID) (*model.SpeculativeDelta, error) {
	if err := tx.checkDeadline(); err != nil {
		return nil, err
	}
	s, ok := tx.working.sessions[sessionID]
	if !ok {
		return nil, errs.New(errs.NotFound, "session %s not found", sessionID)
	}
	if s.Status.Terminal() {
		return nil, errs.New(errs.InvalidState, "session %s is %s, cannot undo", sessionID, s.Status)
	}
	if len(s.Deltas) == 0 {
		return nil, errs.New(errs.InvalidState, "session %s has no deltas to undo", sessionID)
	}
	last := s.Deltas[len(s.Deltas)-1]
	s.Deltas = s.Deltas[:len(s.Deltas)-1]
	return &last, nil
}

func (tx *Tx) SetSessionStatus(ctx context.Context, sessionID model.ID, status model.SessionStatus) error {
	if err := tx.checkDeadline(); err != nil {
		return err
	}
	s, ok := tx.working.sessions[sessionID]
	if !ok {
		return errs.New(errs.NotFound, "session %s not found", sessionID)
	}
	s.Status = status
	return nil
}

func (tx *Tx) ClearDeltas(ctx context.Context, sessionID model.ID) error {
	if err := tx.checkDeadline(); err != nil {
		return err
	}
	s, ok := tx.working.sessions[sessionID]
	if !ok {
		return errs.New(errs.NotFound, "session %s not found", sessionID)
	}
	s.Deltas = nil
	return nil
}

func (tx *Tx) ListActiveSessionsExpiredBefore(ctx context.Context, cutoff time.Time) ([]*model.SimulationSession, error) {
	if err := tx.checkDeadline(); err != nil {
		return nil, err
	}
	var out []*model.SimulationSession
	for _, s := range tx.working.sessions {
		if s.Status == model.SessionActive && s.ExpiresAt.Before(cutoff) {
			cp := *s
			cp.Deltas = append([]model.SpeculativeDelta(nil), s.Deltas...)
			out = append(out, &cp)
		}
	}
	return out, nil
}
