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

	"github.com/tachyon-sched/tachyon/internal/errs"
	"github.com/tachyon-sched/tachyon/internal/model"
)

func (tx *Tx) GetServerGroup(ctx context.Context, id model.ID) (*model.ServerGroup, error) {
	if err := tx.checkDeadline(); err != nil {
		return nil, err
	}
	g, ok := tx.working.serverGroups[id]
	if !ok {
		return nil, errs.New(errs.NotFound, "server group %s not found", id)
	}
	cp := *g
	cp.Members = append([]model.ID(nil), g.Members...)
	return &cp, nil
}

func (tx *Tx) GetFlavor(ctx context.Context, id model.ID) (*model.Flavor, error) {
	if err := tx.checkDeadline(); err != nil {
		return nil, err
	}
	f, ok := tx.working.flavors[id]
	if !ok {
		return nil, errs.New(errs.NotFound, "flavor %s not found", id)
	}
	cp := *f
	return &cp, nil
}

func (tx *Tx) ListSharesInto(ctx context.Context, providerID model.ID) ([]model.SharesResources, error) {
	if err := tx.checkDeadline(); err != nil {
		return nil, err
	}
	return append([]model.SharesResources(nil), tx.working.sharesByTarget[providerID]...), nil
}

// PutServerGroup, PutFlavor, and PutSharesResources are memgraph-only
// seeding helpers (not part of the store.Tx contract — the C1 contract
// spec.md describes does not enumerate write paths for these entities,
// since the spec treats them as created by collaborators upstream of
// the core). Tests use them directly against *memgraph.Tx; the
// migration importer does not call them.
func (tx *Tx) PutServerGroup(g *model.ServerGroup) {
	cp := *g
	cp.Members = append([]model.ID(nil), g.Members...)
	tx.working.serverGroups[g.ID] = &cp
}

func (tx *Tx) PutFlavor(f *model.Flavor) {
	cp := *f
	tx.working.flavors[f.ID] = &cp
}

func (tx *Tx) PutSharesResources(s model.SharesResources) {
	tx.working.shares = append(tx.working.shares, s)
	tx.working.sharesByTarget[s.ToProviderID] = append(tx.working.sharesByTarget[s.ToProviderID], s)
}
