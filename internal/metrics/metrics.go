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

// Package metrics exposes Tachyon's Prometheus instrumentation via
// github.com/prometheus/client_golang, the teacher's own metrics
// dependency (pkg/metrics in the wider provider, surfaced through
// controller-runtime's registry in the teacher repo; here collected
// into a private Registry instead, since this module does not carry
// controller-runtime). These are process telemetry only — distinct
// from the out-of-core-scope fleet-wide observability/telemetry
// scraper spec.md's Non-goals exclude.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles every counter/histogram the core packages record
// against, constructed once in cmd/tachyond and threaded through call
// sites the same way internal/logging threads a *zap.Logger.
type Metrics struct {
	Registry *prometheus.Registry

	CandidatesRequests  *prometheus.CounterVec
	CandidatesReturned  prometheus.Histogram
	CandidatesDuration  *prometheus.HistogramVec
	ClaimAttempts       *prometheus.CounterVec
	ClaimDuration       prometheus.Histogram
	SessionsActive      prometheus.Gauge
	SessionsSwept       prometheus.Counter
	MigrationItems      *prometheus.CounterVec
}

// New constructs and registers the full metric set against a fresh
// registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		CandidatesRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tachyon",
			Subsystem: "planner",
			Name:      "candidates_requests_total",
			Help:      "Allocation-candidates requests, by outcome.",
		}, []string{"outcome"}),
		CandidatesReturned: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "tachyon",
			Subsystem: "planner",
			Name:      "candidates_returned",
			Help:      "Number of candidates returned per request.",
			Buckets:   prometheus.LinearBuckets(0, 2, 10),
		}),
		CandidatesDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "tachyon",
			Subsystem: "planner",
			Name:      "candidates_duration_seconds",
			Help:      "Time spent producing allocation candidates.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"}),
		ClaimAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tachyon",
			Subsystem: "claim",
			Name:      "attempts_total",
			Help:      "Claim executor attempts, by resulting error kind (empty for success).",
		}, []string{"kind"}),
		ClaimDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "tachyon",
			Subsystem: "claim",
			Name:      "duration_seconds",
			Help:      "Time spent in the claim executor's transaction.",
			Buckets:   prometheus.DefBuckets,
		}),
		SessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "tachyon",
			Subsystem: "simulation",
			Name:      "sessions_active",
			Help:      "Currently active simulation sessions.",
		}),
		SessionsSwept: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tachyon",
			Subsystem: "simulation",
			Name:      "sessions_swept_total",
			Help:      "Sessions transitioned to expired by the sweeper.",
		}),
		MigrationItems: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tachyon",
			Subsystem: "migration",
			Name:      "items_total",
			Help:      "Migration importer items processed, by stage and outcome.",
		}, []string{"stage", "outcome"}),
	}
	reg.MustRegister(
		m.CandidatesRequests, m.CandidatesReturned, m.CandidatesDuration,
		m.ClaimAttempts, m.ClaimDuration,
		m.SessionsActive, m.SessionsSwept,
		m.MigrationItems,
	)
	return m
}

// Handler exposes m's registry on the process's /metrics endpoint via
// promhttp, the same exposition library the teacher pulls in
// client_golang for.
func Handler(m *Metrics) http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}
