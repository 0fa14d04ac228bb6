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

// Package httpapi implements spec.md §6's REST surface: resource
// provider CRUD, allocation-candidates, allocations, and the simulation
// extension. Routing is github.com/go-chi/chi/v5, a direct dependency
// of the teacher's own go.mod (indirect there, promoted to direct
// here — see DESIGN.md), chosen over the standard library's bare
// http.ServeMux for the same path-parameter and middleware-chaining
// ergonomics the teacher pulls it in for.
package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/tachyon-sched/tachyon/internal/errs"
)

// ErrorEnvelope is the response body shape spec.md §6 fixes for every
// non-2xx response.
type ErrorEnvelope struct {
	Errors []ErrorItem `json:"errors"`
}

// ErrorItem is one error entry in an ErrorEnvelope.
type ErrorItem struct {
	Status string `json:"status"`
	Code   string `json:"code"`
	Title  string `json:"title"`
	Detail string `json:"detail"`
}

// statusForKind maps errs.Kind to the HTTP status spec.md §7's kind
// taxonomy implies.
func statusForKind(k errs.Kind) int {
	switch k {
	case errs.BadRequest:
		return http.StatusBadRequest
	case errs.NotFound:
		return http.StatusNotFound
	case errs.ConflictGeneration, errs.ConflictUniqueness:
		return http.StatusConflict
	case errs.OutOfCapacity:
		return http.StatusUnprocessableEntity
	case errs.InvalidState:
		return http.StatusConflict
	case errs.DeadlineExceeded:
		return http.StatusGatewayTimeout
	case errs.Transient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	kind := errs.Fatal
	var e *errs.Error
	if as, ok := err.(*errs.Error); ok {
		e = as
		kind = e.Kind
	}
	status := statusForKind(kind)
	env := ErrorEnvelope{Errors: []ErrorItem{{
		Status: http.StatusText(status),
		Code:   string(kind),
		Title:  http.StatusText(status),
		Detail: err.Error(),
	}}}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(env)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
