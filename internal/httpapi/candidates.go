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
	"net/http"
	"strconv"
	"strings"

	"github.com/tachyon-sched/tachyon/internal/capacity"
	"github.com/tachyon-sched/tachyon/internal/errs"
	"github.com/tachyon-sched/tachyon/internal/model"
	"github.com/tachyon-sched/tachyon/internal/planner"
	"github.com/tachyon-sched/tachyon/internal/simulation"
)

// getCandidates implements GET /allocation_candidates (spec.md §6): a
// single default resource group plus the query parameters the spec
// names explicitly. Suffixed groups and NUMA/PCI requests are a richer
// shape than fits comfortably in a query string; clients that need them
// use the same model.Request via the package API directly (the REST
// framing is explicitly out of the core's scope, spec.md §1).
func (s *Server) getCandidates(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	req := &model.Request{
		ProjectID:     model.ID(q.Get("project_id")),
		ImageID:       model.ID(q.Get("image")),
		AZ:            q.Get("availability_zone"),
		ServerGroupID: model.ID(q.Get("server_group")),
		InTree:        model.ID(q.Get("in_tree")),
		Limit:         s.Config.Candidates.DefaultLimit,
	}
	if lim := q.Get("limit"); lim != "" {
		n, err := strconv.Atoi(lim)
		if err != nil {
			writeError(w, badRequest("limit: %v", err))
			return
		}
		req.Limit = n
	}

	resources, err := parseResourceAmounts(q.Get("resources"))
	if err != nil {
		writeError(w, err)
		return
	}
	group := model.ResourceGroup{
		Resources:       resources,
		RequiredTraits:  splitCSV(q.Get("required")),
		ForbiddenTraits: splitCSV(q.Get("forbidden")),
		MemberOf:        idList(splitCSV(q.Get("member_of"))),
	}
	req.Groups = []model.ResourceGroup{group}

	tx, err := s.Store.Begin(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	defer tx.Rollback(r.Context())

	// A flavor reference seeds the request from the stored template;
	// explicit query parameters merge into its default group on top.
	if flavorID := model.ID(q.Get("flavor")); flavorID != "" {
		flavor, err := tx.GetFlavor(r.Context(), flavorID)
		if err != nil {
			writeError(w, err)
			return
		}
		seeded := flavor.Request()
		seeded.Groups[0].Resources = append(seeded.Groups[0].Resources, group.Resources...)
		seeded.Groups[0].RequiredTraits = append(seeded.Groups[0].RequiredTraits, group.RequiredTraits...)
		seeded.Groups[0].ForbiddenTraits = append(seeded.Groups[0].ForbiddenTraits, group.ForbiddenTraits...)
		seeded.Groups[0].MemberOf = group.MemberOf
		req.Groups = seeded.Groups
		req.NUMACells = seeded.NUMACells
		req.PCIRequests = seeded.PCIRequests
		req.PCIAffinity = seeded.PCIAffinity
		req.GlobalPreferredTraits = seeded.GlobalPreferredTraits
		req.GlobalAvoidedTraits = seeded.GlobalAvoidedTraits
	}

	usage := capacity.UsageReader(capacity.StoreReader{Lister: tx})
	if sessionID := model.ID(q.Get("simulation_id")); sessionID != "" {
		session, err := tx.GetSession(r.Context(), sessionID)
		if err != nil {
			writeError(w, err)
			return
		}
		req.OverlaySessionID = sessionID
		usage = simulation.OverlayUsageReader{Base: usage, Session: session}
	}

	specs := defaultWeigherSpecs(s.Config)
	candidates, err := planner.Candidates(r.Context(), tx, usage, req, planner.Options{
		WeigherSpecs: specs,
		Override:     nil,
	})
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	if s.Metrics != nil {
		s.Metrics.CandidatesRequests.WithLabelValues(outcome).Inc()
		if err == nil {
			s.Metrics.CandidatesReturned.Observe(float64(len(candidates)))
		}
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, candidates)
}

func parseResourceAmounts(raw string) ([]model.ResourceAmount, error) {
	var out []model.ResourceAmount
	for _, part := range splitCSV(raw) {
		name, amtStr, ok := strings.Cut(part, ":")
		if !ok {
			return nil, badRequest("malformed resources entry %q, expected CLASS:AMOUNT", part)
		}
		amt, err := strconv.ParseInt(amtStr, 10, 64)
		if err != nil {
			return nil, badRequest("malformed amount in %q: %v", part, err)
		}
		out = append(out, model.ResourceAmount{Class: name, Amount: amt})
	}
	return out, nil
}

func splitCSV(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func idList(ss []string) []model.ID {
	out := make([]model.ID, len(ss))
	for i, s := range ss {
		out[i] = model.ID(s)
	}
	return out
}

func badRequest(format string, args ...interface{}) error {
	return errs.New(errs.BadRequest, format, args...)
}
