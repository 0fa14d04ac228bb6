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

package simulation

import (
	"context"
	"math"

	"github.com/samber/lo"
	"github.com/tachyon-sched/tachyon/internal/capacity"
	"github.com/tachyon-sched/tachyon/internal/model"
)

// Stats is the standard deviation/mean/min/max summary spec.md §4.8's
// metrics() operation returns for one class over a set of providers.
type Stats struct {
	Mean   float64
	StdDev float64
	Min    float64
	Max    float64
	Count  int
}

// Metrics computes per-provider utilization (used/capacity, 0 when
// capacity is 0) for class across providerIDs under session's virtual
// state, then reduces it to Stats.
func Metrics(ctx context.Context, tx Store, base capacity.UsageReader, session *model.SimulationSession, class string, providerIDs []model.ID) (Stats, error) {
	overlay := OverlayUsageReader{Base: base, Session: session}
	utilizations := make([]float64, 0, len(providerIDs))
	for _, id := range providerIDs {
		inv, err := tx.GetInventory(ctx, id, class)
		if err != nil {
			continue
		}
		used, err := overlay.Used(ctx, id, class)
		if err != nil {
			return Stats{}, err
		}
		cap_ := inv.EffectiveCapacity()
		var util float64
		if cap_ > 0 {
			util = float64(used) / float64(cap_)
		}
		utilizations = append(utilizations, util)
	}
	return reduce(utilizations), nil
}

// DiffStats computes Metrics(a) - Metrics(b) field by field, supporting
// spec.md §4.8's "diffing two sessions (or a session vs. live)" — for
// "live", pass the Stats that Metrics returns for an empty session (no
// deltas) on one side.
func DiffStats(a, b Stats) Stats {
	return Stats{
		Mean:   a.Mean - b.Mean,
		StdDev: a.StdDev - b.StdDev,
		Min:    a.Min - b.Min,
		Max:    a.Max - b.Max,
	}
}

func reduce(vals []float64) Stats {
	if len(vals) == 0 {
		return Stats{}
	}
	mean := lo.Sum(vals) / float64(len(vals))
	var variance float64
	for _, v := range vals {
		variance += (v - mean) * (v - mean)
	}
	variance /= float64(len(vals))
	return Stats{
		Mean:   mean,
		StdDev: math.Sqrt(variance),
		Min:    lo.Min(vals),
		Max:    lo.Max(vals),
		Count:  len(vals),
	}
}
