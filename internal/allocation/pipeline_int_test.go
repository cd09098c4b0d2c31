//go:build integration

/*
 * Copyright 2025 deskhyper.dev.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 * http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package allocation_test

import (
	"context"
	"path/filepath"

	"github.com/deskhyper/deskhyper/internal/allocation"
	"github.com/deskhyper/deskhyper/internal/allocation/state"
	"github.com/deskhyper/deskhyper/internal/clusterspec"
	"github.com/deskhyper/deskhyper/internal/inventory"
	"github.com/deskhyper/deskhyper/pkg/gpu"
	"github.com/deskhyper/deskhyper/pkg/gpu/mig"
	"github.com/go-logr/logr"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Planning pipeline", func() {
	var (
		ctx        context.Context
		statePath  string
		store      *state.Store
		planner    allocation.Planner
		reconciler allocation.Reconciler
		snapshot   inventory.Snapshot
	)

	BeforeEach(func() {
		ctx = context.Background()
		statePath = filepath.Join(GinkgoT().TempDir(), "state.json")
		store = state.NewStore(statePath, 0, logr.Discard())
		planner = allocation.NewPlanner(logr.Discard())
		reconciler = allocation.NewReconciler(store, logr.Discard())

		var err error
		snapshot, err = inventory.NewSnapshot(gpu.DeviceList{
			{
				ID:                 "GPU-0",
				PCIAddress:         "0000:17:00.0",
				MigCapable:         true,
				MigMode:            gpu.MigModeEnabled,
				AllowedMigProfiles: []string{"1g.5gb", "2g.10gb", "7g.80gb"},
			},
			{ID: "GPU-1", PCIAddress: "0000:65:00.0"},
		})
		Expect(err).NotTo(HaveOccurred())

		Expect(store.Acquire(ctx)).To(Succeed())
	})

	AfterEach(func() {
		Expect(store.Release()).To(Succeed())
	})

	apply := func(spec clusterspec.ClusterSpec) allocation.Diff {
		previous, err := store.Load()
		Expect(err).NotTo(HaveOccurred())
		plan, err := planner.Plan(snapshot, spec, previous)
		Expect(err).NotTo(HaveOccurred())
		diff, err := reconciler.Commit(previous, plan, nil)
		Expect(err).NotTo(HaveOccurred())
		return diff
	}

	It("applies a plan and replans to an empty diff", func() {
		spec := clusterspec.ClusterSpec{
			Strategy: clusterspec.StrategyHybrid,
			Demands: []clusterspec.Demand{
				{Cluster: "cloud", Node: "worker-1", Kind: clusterspec.KindWhole},
				{Cluster: "hpc", Node: "compute-1", Kind: clusterspec.KindSlice, Profile: mig.Profile1g5gb},
			},
		}

		diff := apply(spec)
		Expect(diff.Additions).To(HaveLen(2))
		Expect(diff.Removals).To(BeEmpty())

		// Unchanged spec: the stored state already satisfies it.
		Expect(apply(spec).IsEmpty()).To(BeTrue())
	})

	It("keeps committed assignments when unrelated demands are added", func() {
		original := clusterspec.ClusterSpec{
			Strategy: clusterspec.StrategyMig,
			Demands: []clusterspec.Demand{
				{Cluster: "hpc", Node: "compute-1", Kind: clusterspec.KindSlice, Profile: mig.Profile2g10gb},
			},
		}
		apply(original)
		committed, err := store.Load()
		Expect(err).NotTo(HaveOccurred())
		originalRecord := committed.Records()[0]

		grown := original
		grown.Demands = append(grown.Demands, clusterspec.Demand{
			Cluster: "cloud", Node: "worker-1", Kind: clusterspec.KindSlice, Profile: mig.Profile1g5gb,
		})
		diff := apply(grown)
		Expect(diff.Additions).To(HaveLen(1))
		Expect(diff.Removals).To(BeEmpty())

		after, err := store.Load()
		Expect(err).NotTo(HaveOccurred())
		Expect(after[originalRecord.DemandID]).To(Equal(originalRecord))
	})

	It("removes state records for dropped demands", func() {
		spec := clusterspec.ClusterSpec{
			Strategy: clusterspec.StrategyMig,
			Demands: []clusterspec.Demand{
				{Cluster: "hpc", Node: "compute-1", Kind: clusterspec.KindSlice, Profile: mig.Profile1g5gb, Ordinal: 0},
				{Cluster: "hpc", Node: "compute-1", Kind: clusterspec.KindSlice, Profile: mig.Profile1g5gb, Ordinal: 1},
			},
		}
		apply(spec)

		shrunk := clusterspec.ClusterSpec{
			Strategy: clusterspec.StrategyMig,
			Demands:  spec.Demands[:1],
		}
		diff := apply(shrunk)
		Expect(diff.Additions).To(BeEmpty())
		Expect(diff.Removals).To(HaveLen(1))

		after, err := store.Load()
		Expect(err).NotTo(HaveOccurred())
		Expect(after).To(HaveLen(1))
	})

	It("fails fast when another invocation holds the state lock", func() {
		other := state.NewStore(statePath, 0, logr.Discard())
		err := other.Acquire(ctx)
		Expect(err).To(HaveOccurred())
		Expect(gpu.IsStateLocked(err)).To(BeTrue())
	})
})
