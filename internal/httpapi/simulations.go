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

package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tachyon-sched/tachyon/internal/capacity"
	"github.com/tachyon-sched/tachyon/internal/errs"
	"github.com/tachyon-sched/tachyon/internal/model"
	"github.com/tachyon-sched/tachyon/internal/simulation"
)

// createSimulationRequest is the body of POST /simulations; an omitted
// ttl_seconds falls back to config's simulation.default_ttl (spec.md §6).
type createSimulationRequest struct {
	TTLSeconds int    `json:"ttl_seconds"`
	AuditID    string `json:"audit_id"`
}

func (s *Server) createSimulation(w http.ResponseWriter, r *http.Request) {
	var body createSimulationRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, errs.Wrap(errs.BadRequest, err, "decoding simulation request"))
			return
		}
	}
	ttl := s.Config.SimulationDefaultTTL()
	if body.TTLSeconds > 0 {
		ttl = time.Duration(body.TTLSeconds) * time.Second
	}

	tx, err := s.Store.Begin(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	defer tx.Rollback(r.Context())

	session, err := simulation.Create(r.Context(), tx, ttl, body.AuditID, time.Now)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := tx.CreateSession(r.Context(), session); err != nil {
		writeError(w, err)
		return
	}
	if err := tx.Commit(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	if s.Metrics != nil {
		s.Metrics.SessionsActive.Inc()
	}
	writeJSON(w, http.StatusCreated, session)
}

func (s *Server) getSimulation(w http.ResponseWriter, r *http.Request) {
	id := model.ID(chi.URLParam(r, "id"))
	tx, err := s.Store.Begin(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	defer tx.Rollback(r.Context())

	session, err := tx.GetSession(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

type moveRequest struct {
	Consumer     model.ID `json:"consumer"`
	FromProvider model.ID `json:"from_resource_provider"`
	ToProvider   model.ID `json:"to_resource_provider"`
}

// recordMove implements POST /simulations/{id}/moves (spec.md §4.8
// record_move): decode, re-fetch the session, apply the in-memory
// delta append through internal/simulation, then persist the one new
// delta and commit the transaction that owns the session bookkeeping.
func (s *Server) recordMove(w http.ResponseWriter, r *http.Request) {
	id := model.ID(chi.URLParam(r, "id"))
	var body moveRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, errs.Wrap(errs.BadRequest, err, "decoding move request"))
		return
	}

	s.withSessionDelta(w, r, id, func(tx simulation.Store, session *model.SimulationSession, base capacity.UsageReader) error {
		return simulation.RecordMove(r.Context(), tx, base, session, body.Consumer, body.FromProvider, body.ToProvider)
	})
}

type allocateRequest struct {
	Consumer   model.ID         `json:"consumer"`
	Provider   model.ID         `json:"resource_provider"`
	Resources  map[string]int64 `json:"resources"`
}

func (s *Server) recordAllocate(w http.ResponseWriter, r *http.Request) {
	id := model.ID(chi.URLParam(r, "id"))
	var body allocateRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, errs.Wrap(errs.BadRequest, err, "decoding allocate request"))
		return
	}

	s.withSessionDelta(w, r, id, func(tx simulation.Store, session *model.SimulationSession, base capacity.UsageReader) error {
		return simulation.RecordAllocate(r.Context(), tx, base, session, body.Consumer, body.Provider, body.Resources)
	})
}

type deallocateRequest struct {
	Consumer model.ID `json:"consumer"`
}

func (s *Server) recordDeallocate(w http.ResponseWriter, r *http.Request) {
	id := model.ID(chi.URLParam(r, "id"))
	var body deallocateRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, errs.Wrap(errs.BadRequest, err, "decoding deallocate request"))
		return
	}

	s.withSessionDelta(w, r, id, func(tx simulation.Store, session *model.SimulationSession, _ capacity.UsageReader) error {
		return simulation.RecordDeallocate(r.Context(), tx, session, body.Consumer)
	})
}

// withSessionDelta is the shared shape of every Record* endpoint: open
// a transaction, load the session, run record against it (which
// appends at most one delta to session.Deltas in place), persist that
// one new delta via tx.AppendDelta, and commit.
func (s *Server) withSessionDelta(w http.ResponseWriter, r *http.Request, id model.ID, record func(tx simulation.Store, session *model.SimulationSession, base capacity.UsageReader) error) {
	tx, err := s.Store.Begin(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	defer tx.Rollback(r.Context())

	session, err := tx.GetSession(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	before := len(session.Deltas)
	base := capacity.UsageReader(capacity.StoreReader{Lister: tx})

	if err := record(tx, session, base); err != nil {
		writeError(w, err)
		return
	}
	if len(session.Deltas) > before {
		if err := tx.AppendDelta(r.Context(), id, session.Deltas[len(session.Deltas)-1]); err != nil {
			writeError(w, err)
			return
		}
	}
	if err := tx.Commit(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (s *Server) undoLast(w http.ResponseWriter, r *http.Request) {
	id := model.ID(chi.URLParam(r, "id"))
	tx, err := s.Store.Begin(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	defer tx.Rollback(r.Context())

	session, err := tx.GetSession(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	popped, err := simulation.UndoLast(session)
	if err != nil {
		writeError(w, err)
		return
	}
	if _, err := tx.PopLastDelta(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	if err := tx.Commit(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, popped)
}

func (s *Server) getPlacement(w http.ResponseWriter, r *http.Request) {
	id := model.ID(chi.URLParam(r, "id"))
	consumers := idList(splitCSV(r.URL.Query().Get("consumers")))

	tx, err := s.Store.Begin(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	defer tx.Rollback(r.Context())

	session, err := tx.GetSession(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	placement, err := simulation.EffectivePlacement(r.Context(), tx, session, consumers)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, placement)
}

func (s *Server) getUsage(w http.ResponseWriter, r *http.Request) {
	id := model.ID(chi.URLParam(r, "id"))
	class := r.URL.Query().Get("resource_class")
	if class == "" {
		writeError(w, badRequest("resource_class is required"))
		return
	}

	tx, err := s.Store.Begin(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	defer tx.Rollback(r.Context())

	session, err := tx.GetSession(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	base := capacity.UsageReader(capacity.StoreReader{Lister: tx})
	overlay := simulation.OverlayUsageReader{Base: base, Session: session}

	providers, err := allProviders(r.Context(), tx)
	if err != nil {
		writeError(w, err)
		return
	}
	usage := make(map[model.ID]int64, len(providers))
	for _, p := range providers {
		used, err := overlay.Used(r.Context(), p.ID, class)
		if err != nil {
			writeError(w, err)
			return
		}
		if used != 0 {
			usage[p.ID] = used
		}
	}
	writeJSON(w, http.StatusOK, usage)
}

func (s *Server) getMetrics(w http.ResponseWriter, r *http.Request) {
	id := model.ID(chi.URLParam(r, "id"))
	class := r.URL.Query().Get("resource_class")
	if class == "" {
		writeError(w, badRequest("resource_class is required"))
		return
	}

	tx, err := s.Store.Begin(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	defer tx.Rollback(r.Context())

	session, err := tx.GetSession(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	base := capacity.UsageReader(capacity.StoreReader{Lister: tx})

	providers, err := allProviders(r.Context(), tx)
	if err != nil {
		writeError(w, err)
		return
	}
	ids := make([]model.ID, 0, len(providers))
	for _, p := range providers {
		ids = append(ids, p.ID)
	}

	stats, err := simulation.Metrics(r.Context(), tx, base, session, class, ids)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) commitSimulation(w http.ResponseWriter, r *http.Request) {
	id := model.ID(chi.URLParam(r, "id"))

	tx, err := s.Store.Begin(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	session, err := tx.GetSession(r.Context(), id)
	if err != nil {
		_ = tx.Rollback(r.Context())
		writeError(w, err)
		return
	}
	_ = tx.Rollback(r.Context())

	if err := simulation.Commit(r.Context(), s.Store, session); err != nil {
		writeError(w, err)
		return
	}
	if s.Metrics != nil {
		s.Metrics.SessionsActive.Dec()
	}
	writeJSON(w, http.StatusOK, session)
}

func (s *Server) rollbackSimulation(w http.ResponseWriter, r *http.Request) {
	id := model.ID(chi.URLParam(r, "id"))

	tx, err := s.Store.Begin(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	defer tx.Rollback(r.Context())

	session, err := tx.GetSession(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := simulation.Rollback(r.Context(), tx, session); err != nil {
		writeError(w, err)
		return
	}
	if err := tx.Commit(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	if s.Metrics != nil {
		s.Metrics.SessionsActive.Dec()
	}
	writeJSON(w, http.StatusOK, session)
}

// providerForest is the slice of the Tx contract allProviders needs.
type providerForest interface {
	ListRoots(ctx context.Context) ([]*model.ResourceProvider, error)
	ListDescendants(ctx context.Context, id model.ID) ([]*model.ResourceProvider, error)
}

// allProviders flattens the whole forest: spec.md's metrics/usage
// operations reduce over "per-provider utilization", not scoped to one
// subtree, so every root and its descendants are candidates.
func allProviders(ctx context.Context, tx providerForest) ([]*model.ResourceProvider, error) {
	roots, err := tx.ListRoots(ctx)
	if err != nil {
		return nil, err
	}
	out := append([]*model.ResourceProvider(nil), roots...)
	for _, root := range roots {
		descendants, err := tx.ListDescendants(ctx, root.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, descendants...)
	}
	return out, nil
}
