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
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tachyon-sched/tachyon/internal/claim"
	"github.com/tachyon-sched/tachyon/internal/errs"
	"github.com/tachyon-sched/tachyon/internal/model"
)

// getAllocations implements GET /allocations/{consumer}.
func (s *Server) getAllocations(w http.ResponseWriter, r *http.Request) {
	consumerID := model.ID(chi.URLParam(r, "consumer"))
	tx, err := s.Store.Begin(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	defer tx.Rollback(r.Context())

	allocs, err := tx.ListAllocationsForConsumer(r.Context(), consumerID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, allocs)
}

// allocationLine is the wire shape of one requested (provider, class,
// amount) triple for PUT /allocations/{consumer} — a client that
// already knows its placement (e.g. replaying a prior candidate)
// submits it directly rather than re-running the planner.
type allocationLine struct {
	ProviderID         model.ID         `json:"resource_provider"`
	Class              string           `json:"resource_class"`
	Amount             int64            `json:"amount"`
	ObservedGeneration model.Generation `json:"provider_generation"`
}

type putAllocationsRequest struct {
	ProjectID    model.ID         `json:"project_id"`
	UserID       model.ID         `json:"user_id"`
	ConsumerType string           `json:"consumer_type"`
	Allocations  []allocationLine `json:"allocations"`
}

// putAllocations implements PUT /allocations/{consumer} (spec.md §6):
// replace, taking the consumer's expected generation from the
// If-Match-Generation header (without the header, or with 0, no
// consumer-generation check is made), routed through the claim executor so capacity and
// provider-generation checks are re-verified under the same protocol a
// planner-produced candidate goes through (spec.md §4.7).
func (s *Server) putAllocations(w http.ResponseWriter, r *http.Request) {
	consumerID := model.ID(chi.URLParam(r, "consumer"))
	var body putAllocationsRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, errs.Wrap(errs.BadRequest, err, "decoding allocation request"))
		return
	}

	candidate := &model.AllocationCandidate{}
	for _, line := range body.Allocations {
		candidate.Allocations = append(candidate.Allocations, model.CandidateAllocation{
			ProviderID:         line.ProviderID,
			Class:              line.Class,
			Amount:             line.Amount,
			ObservedGeneration: line.ObservedGeneration,
		})
	}

	consumer := &model.Consumer{
		ID:           consumerID,
		ProjectID:    body.ProjectID,
		UserID:       body.UserID,
		ConsumerType: body.ConsumerType,
		Status:       model.ConsumerActive,
	}
	expectedGen := generationFromHeader(r)

	err := claim.Execute(r.Context(), s.Store, claim.LiveUsage, candidate, consumer, expectedGen)
	if s.Metrics != nil {
		kind := ""
		if e, ok := err.(*errs.Error); ok {
			kind = string(e.Kind)
		}
		s.Metrics.ClaimAttempts.WithLabelValues(kind).Inc()
	}
	if err != nil {
		writeError(w, err)
		return
	}

	tx, err := s.Store.Begin(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	defer tx.Rollback(r.Context())
	allocs, err := tx.ListAllocationsForConsumer(r.Context(), consumerID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, allocs)
}

// deleteAllocations implements DELETE /allocations/{consumer}: replace
// with an empty allocation set, which the store's ReplaceAllocations
// contract treats as a full release (and, per spec.md §3, makes the
// consumer garbage-collectable). Deleting an already-absent consumer is
// a no-op that returns 204, per spec.md §8's idempotence invariant.
func (s *Server) deleteAllocations(w http.ResponseWriter, r *http.Request) {
	consumerID := model.ID(chi.URLParam(r, "consumer"))
	tx, err := s.Store.Begin(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	defer tx.Rollback(r.Context())

	if err := tx.ReplaceAllocations(r.Context(), consumerID, nil); err != nil {
		if errs.Is(err, errs.NotFound) {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		writeError(w, err)
		return
	}
	if _, err := tx.BumpGlobalGeneration(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	if err := tx.Commit(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
