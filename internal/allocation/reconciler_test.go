package allocation_test

import (
	"errors"
	"testing"

	"github.com/deskhyper/deskhyper/internal/allocation"
	"github.com/deskhyper/deskhyper/internal/clusterspec"
	"github.com/deskhyper/deskhyper/internal/inventory"
	"github.com/deskhyper/deskhyper/pkg/gpu"
	"github.com/deskhyper/deskhyper/pkg/gpu/mig"
	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	state   allocation.State
	saves   int
	saveErr error
}

func (f *fakeStore) Load() (allocation.State, error) {
	return f.state.DeepCopy(), nil
}

func (f *fakeStore) Save(s allocation.State) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.state = s
	f.saves++
	return nil
}

func TestComputeDiff(t *testing.T) {
	recordA := allocation.Record{
		DemandID: "aaaa", Cluster: "hpc", Node: "compute-1", DeviceID: "GPU-0",
		Assignment: allocation.Assignment{Kind: clusterspec.KindSlice, Profile: mig.Profile1g5gb},
	}
	recordB := allocation.Record{
		DemandID: "bbbb", Cluster: "cloud", Node: "worker-1", DeviceID: "GPU-1",
		Assignment: allocation.Assignment{Kind: clusterspec.KindWhole},
	}
	recordC := allocation.Record{
		DemandID: "cccc", Cluster: "cloud", Node: "worker-2", DeviceID: "GPU-0",
		Assignment: allocation.Assignment{Kind: clusterspec.KindSlice, Profile: mig.Profile2g10gb, SlotIndex: 1},
	}

	testCases := []struct {
		name              string
		previous          allocation.State
		plan              allocation.Plan
		expectedAdditions allocation.RecordList
		expectedRemovals  allocation.RecordList
	}{
		{
			name:              "empty previous state, everything is an addition",
			previous:          allocation.State{},
			plan:              allocation.NewPlan(allocation.RecordList{recordA, recordB}),
			expectedAdditions: allocation.RecordList{recordA, recordB},
			expectedRemovals:  allocation.RecordList{},
		},
		{
			name:              "identical plan, empty diff",
			previous:          allocation.State{"aaaa": recordA, "bbbb": recordB},
			plan:              allocation.NewPlan(allocation.RecordList{recordA, recordB}),
			expectedAdditions: allocation.RecordList{},
			expectedRemovals:  allocation.RecordList{},
		},
		{
			name:              "dropped and added demands",
			previous:          allocation.State{"aaaa": recordA, "bbbb": recordB},
			plan:              allocation.NewPlan(allocation.RecordList{recordB, recordC}),
			expectedAdditions: allocation.RecordList{recordC},
			expectedRemovals:  allocation.RecordList{recordA},
		},
	}

	for _, tt := range testCases {
		t.Run(tt.name, func(t *testing.T) {
			diff := allocation.ComputeDiff(tt.previous, tt.plan)
			assert.Equal(t, tt.expectedAdditions, diff.Additions)
			assert.Equal(t, tt.expectedRemovals, diff.Removals)
		})
	}
}

func TestReconciler__Commit(t *testing.T) {
	record := allocation.Record{
		DemandID: "aaaa", Cluster: "hpc", Node: "compute-1", DeviceID: "GPU-0",
		Assignment: allocation.Assignment{Kind: clusterspec.KindWhole},
	}

	t.Run("persists only after confirmation succeeds", func(t *testing.T) {
		store := &fakeStore{state: allocation.State{}}
		reconciler := allocation.NewReconciler(store, logr.Discard())
		plan := allocation.NewPlan(allocation.RecordList{record})

		confirmed := false
		diff, err := reconciler.Commit(allocation.State{}, plan, func(d allocation.Diff) error {
			// Confirmation must run before anything is persisted.
			assert.Zero(t, store.saves)
			confirmed = true
			return nil
		})
		require.NoError(t, err)
		assert.True(t, confirmed)
		assert.Len(t, diff.Additions, 1)
		assert.Equal(t, 1, store.saves)
		assert.True(t, store.state.Equal(plan.ToState()))
	})

	t.Run("failed confirmation leaves previous state intact", func(t *testing.T) {
		previous := allocation.State{"old": record}
		store := &fakeStore{state: previous.DeepCopy()}
		reconciler := allocation.NewReconciler(store, logr.Discard())
		plan := allocation.NewPlan(allocation.RecordList{})

		_, err := reconciler.Commit(previous, plan, func(allocation.Diff) error {
			return errors.New("attachment failed")
		})
		require.Error(t, err)
		assert.Zero(t, store.saves)
		assert.True(t, store.state.Equal(previous))
	})

	t.Run("empty diff skips confirmation and persistence", func(t *testing.T) {
		previous := allocation.State{"aaaa": record}
		store := &fakeStore{state: previous.DeepCopy()}
		reconciler := allocation.NewReconciler(store, logr.Discard())
		plan := allocation.NewPlan(allocation.RecordList{record})

		diff, err := reconciler.Commit(previous, plan, func(allocation.Diff) error {
			t.Fatal("confirm must not be called for an empty diff")
			return nil
		})
		require.NoError(t, err)
		assert.True(t, diff.IsEmpty())
		assert.Zero(t, store.saves)
	})

	t.Run("re-packed record with unchanged demand id is persisted", func(t *testing.T) {
		// The diff is keyed by demand ID, so a record moved to another
		// device produces an empty diff. It must still be confirmed and
		// persisted.
		previous := allocation.State{"aaaa": record}
		store := &fakeStore{state: previous.DeepCopy()}
		reconciler := allocation.NewReconciler(store, logr.Discard())

		moved := record
		moved.DeviceID = "GPU-1"
		plan := allocation.NewPlan(allocation.RecordList{moved})

		confirmed := false
		diff, err := reconciler.Commit(previous, plan, func(allocation.Diff) error {
			confirmed = true
			return nil
		})
		require.NoError(t, err)
		assert.True(t, diff.IsEmpty())
		assert.True(t, confirmed)
		assert.Equal(t, 1, store.saves)
		assert.Equal(t, "GPU-1", store.state["aaaa"].DeviceID)
	})

	t.Run("save failure is reported and state unchanged", func(t *testing.T) {
		store := &fakeStore{
			state:   allocation.State{},
			saveErr: gpu.PersistenceErr.Errorf("disk full"),
		}
		reconciler := allocation.NewReconciler(store, logr.Discard())
		plan := allocation.NewPlan(allocation.RecordList{record})

		_, err := reconciler.Commit(allocation.State{}, plan, nil)
		require.Error(t, err)
		assert.True(t, gpu.IsPersistence(err))
		assert.Empty(t, store.state)
	})
}

// A vanished device forces the planner to re-pack a demand onto another
// device without changing its demand ID; committing that plan must update
// the persisted state.
func TestReconciler__RepackAfterDeviceLoss(t *testing.T) {
	migDevice := func(id, pci string) gpu.Device {
		return gpu.Device{
			ID:                 id,
			PCIAddress:         pci,
			MigCapable:         true,
			MigMode:            gpu.MigModeEnabled,
			AllowedMigProfiles: []string{"1g.5gb", "7g.80gb"},
		}
	}
	spec := clusterspec.ClusterSpec{
		Strategy: clusterspec.StrategyMig,
		Demands: []clusterspec.Demand{
			{Cluster: "hpc", Node: "compute-1", Kind: clusterspec.KindSlice, Profile: mig.Profile1g5gb},
		},
	}
	planner := allocation.NewPlanner(logr.Discard())
	store := &fakeStore{state: allocation.State{}}
	reconciler := allocation.NewReconciler(store, logr.Discard())

	before, err := inventory.NewSnapshot(gpu.DeviceList{migDevice("GPU-0", "0000:17:00.0")})
	require.NoError(t, err)
	first, err := planner.Plan(before, spec, store.state)
	require.NoError(t, err)
	_, err = reconciler.Commit(store.state, first, nil)
	require.NoError(t, err)

	after, err := inventory.NewSnapshot(gpu.DeviceList{migDevice("GPU-1", "0000:65:00.0")})
	require.NoError(t, err)
	second, err := planner.Plan(after, spec, store.state)
	require.NoError(t, err)
	diff, err := reconciler.Commit(store.state, second, nil)
	require.NoError(t, err)

	assert.True(t, diff.IsEmpty())
	assert.Equal(t, 2, store.saves)
	assert.Equal(t, "GPU-1", store.state[spec.Demands[0].ID()].DeviceID)
}

// Scenario D of the allocation properties: planning right after an apply
// with an unchanged spec yields an empty diff.
func TestReconciler__IdempotentReplan(t *testing.T) {
	snapshot, err := inventory.NewSnapshot(gpu.DeviceList{
		{
			ID:                 "GPU-0",
			PCIAddress:         "0000:17:00.0",
			MigCapable:         true,
			MigMode:            gpu.MigModeEnabled,
			AllowedMigProfiles: []string{"1g.5gb", "2g.10gb", "7g.80gb"},
		},
	})
	require.NoError(t, err)
	spec := clusterspec.ClusterSpec{
		Strategy: clusterspec.StrategyMig,
		Demands: []clusterspec.Demand{
			{Cluster: "hpc", Node: "compute-1", Kind: clusterspec.KindSlice, Profile: mig.Profile1g5gb, Ordinal: 0},
			{Cluster: "hpc", Node: "compute-1", Kind: clusterspec.KindSlice, Profile: mig.Profile1g5gb, Ordinal: 1},
			{Cluster: "cloud", Node: "worker-1", Kind: clusterspec.KindSlice, Profile: mig.Profile2g10gb, Ordinal: 0},
		},
	}

	planner := allocation.NewPlanner(logr.Discard())
	store := &fakeStore{state: allocation.State{}}
	reconciler := allocation.NewReconciler(store, logr.Discard())

	first, err := planner.Plan(snapshot, spec, allocation.State{})
	require.NoError(t, err)
	diff, err := reconciler.Commit(allocation.State{}, first, nil)
	require.NoError(t, err)
	assert.Len(t, diff.Additions, 3)

	second, err := planner.Plan(snapshot, spec, store.state)
	require.NoError(t, err)
	replanDiff := allocation.ComputeDiff(store.state, second)
	assert.True(t, replanDiff.IsEmpty())
}
