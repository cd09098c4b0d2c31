package export_test

import (
	"testing"

	"github.com/deskhyper/deskhyper/internal/allocation"
	"github.com/deskhyper/deskhyper/internal/clusterspec"
	"github.com/deskhyper/deskhyper/internal/export"
	"github.com/deskhyper/deskhyper/internal/inventory"
	"github.com/deskhyper/deskhyper/pkg/gpu"
	"github.com/deskhyper/deskhyper/pkg/gpu/mig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSnapshot(t *testing.T) inventory.Snapshot {
	t.Helper()
	snapshot, err := inventory.NewSnapshot(gpu.DeviceList{
		{
			ID:                 "GPU-0",
			PCIAddress:         "0000:17:00.0",
			MigCapable:         true,
			MigMode:            gpu.MigModeEnabled,
			AllowedMigProfiles: []string{"1g.5gb", "2g.10gb", "7g.40gb"},
		},
		{ID: "GPU-1", PCIAddress: "0000:65:00.0"},
		{ID: "GPU-2", PCIAddress: "0000:b3:00.0"},
	})
	require.NoError(t, err)
	return snapshot
}

func testPlan() allocation.Plan {
	return allocation.NewPlan(allocation.RecordList{
		{
			DemandID: "aaaa", Cluster: "hpc", Node: "compute-1", DeviceID: "GPU-0",
			Assignment: allocation.Assignment{
				Kind: clusterspec.KindSlice, Profile: mig.Profile1g5gb, SlotIndex: 0,
			},
		},
		{
			DemandID: "bbbb", Cluster: "cloud", Node: "worker-1", DeviceID: "GPU-1",
			Assignment: allocation.Assignment{Kind: clusterspec.KindWhole},
		},
	})
}

func TestExporter__Export(t *testing.T) {
	exported := export.NewExporter().Export(testSnapshot(t), testPlan())

	require.Len(t, exported.Records, 2)

	slice := exported.Records[0]
	assert.Equal(t, "hpc", slice.Cluster)
	assert.Equal(t, "compute-1", slice.Node)
	assert.Equal(t, "GPU-0", slice.DeviceID)
	assert.Equal(t, "0000:17:00.0", slice.PCIAddress)
	assert.Equal(t, clusterspec.KindSlice, slice.Kind)
	assert.Equal(t, mig.Profile1g5gb, slice.Profile)
	require.NotNil(t, slice.SlotIndex)
	assert.Equal(t, 0, *slice.SlotIndex)

	whole := exported.Records[1]
	assert.Equal(t, clusterspec.KindWhole, whole.Kind)
	assert.Equal(t, "0000:65:00.0", whole.PCIAddress)
	assert.Empty(t, whole.Profile)
	assert.Nil(t, whole.SlotIndex)

	require.Len(t, exported.MdevDevices, 1)
	mdev := exported.MdevDevices[0]
	assert.Equal(t, "0000:17:00.0", mdev.ParentPCIAddress)
	assert.Equal(t, "nvidia-1g.5gb", mdev.MdevType)
	assert.Equal(t, "hpc/compute-1", mdev.Owner)
}

func TestExporter__ExportIsDeterministic(t *testing.T) {
	exporter := export.NewExporter()
	first, err := exporter.Export(testSnapshot(t), testPlan()).AsYAML()
	require.NoError(t, err)
	second, err := exporter.Export(testSnapshot(t), testPlan()).AsYAML()
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestExporter__Summary(t *testing.T) {
	summary := export.NewExporter().Summary(testSnapshot(t), testPlan())
	expected := "" +
		"GPU-0 (0000:17:00.0):\n" +
		"  hpc/compute-1: 1g.5gb[0]\n" +
		"GPU-1 (0000:65:00.0):\n" +
		"  cloud/worker-1: whole\n" +
		"GPU-2 (0000:b3:00.0):\n" +
		"  free\n"
	assert.Equal(t, expected, summary)
}
