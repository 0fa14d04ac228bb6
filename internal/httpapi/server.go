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
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/tachyon-sched/tachyon/internal/config"
	"github.com/tachyon-sched/tachyon/internal/logging"
	"github.com/tachyon-sched/tachyon/internal/metrics"
	"github.com/tachyon-sched/tachyon/internal/model"
	"github.com/tachyon-sched/tachyon/internal/store"
	"github.com/tachyon-sched/tachyon/internal/weigher"
)

// Server holds the process-lifetime collaborators every handler needs,
// threaded in explicitly rather than reached through package globals
// (spec.md §9).
type Server struct {
	Store   store.Store
	Config  config.Config
	Metrics *metrics.Metrics
}

// NewRouter builds the chi.Mux exposing spec.md §6's REST surface.
func (s *Server) NewRouter() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Route("/resource_providers", func(r chi.Router) {
		r.Get("/", s.listProviders)
		r.Post("/", s.createProvider)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.getProvider)
			r.Put("/", s.updateProvider)
			r.Delete("/", s.deleteProvider)
			r.Put("/traits/{trait}", s.addTrait)
			r.Delete("/traits/{trait}", s.removeTrait)
			r.Get("/inventories", s.listInventories)
			r.Put("/inventories/{class}", s.upsertInventory)
			r.Delete("/inventories/{class}", s.deleteInventory)
		})
	})

	r.Get("/allocation_candidates", s.getCandidates)

	r.Route("/allocations/{consumer}", func(r chi.Router) {
		r.Get("/", s.getAllocations)
		r.Put("/", s.putAllocations)
		r.Delete("/", s.deleteAllocations)
	})

	r.Route("/simulations", func(r chi.Router) {
		r.Post("/", s.createSimulation)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.getSimulation)
			r.Post("/moves", s.recordMove)
			r.Post("/allocations", s.recordAllocate)
			r.Post("/deallocations", s.recordDeallocate)
			r.Post("/undo", s.undoLast)
			r.Get("/placement", s.getPlacement)
			r.Get("/usage", s.getUsage)
			r.Get("/metrics", s.getMetrics)
			r.Post("/commit", s.commitSimulation)
			r.Post("/rollback", s.rollbackSimulation)
		})
	})

	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		start := time.Now()
		log := logging.FromContext(req.Context())
		next.ServeHTTP(w, req)
		log.Debug("http request",
			zap.String("method", req.Method),
			zap.String("path", req.URL.Path),
			zap.Duration("elapsed", time.Since(start)),
		)
	})
}

// generationFromHeader reads the If-Match-equivalent generation header
// spec.md §6 requires on mutation endpoints. A missing or unparsable
// header is treated as "no expectation" (0), matching UpsertConsumer
// and UpdateProvider's expected==0 escape hatch.
func generationFromHeader(r *http.Request) model.Generation {
	v := r.Header.Get("If-Match-Generation")
	if v == "" {
		return 0
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0
	}
	return model.Generation(n)
}

func defaultWeigherSpecs(cfg config.Config) []weigher.Spec {
	return weigher.DefaultSpecs(cfg.Weigher.ToWeigherMultipliers(), nil, nil)
}
