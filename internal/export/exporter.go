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

// Package export renders a committed allocation plan in the forms consumed
// by downstream collaborators: a YAML inventory fragment for the
// attachment tooling and a human-readable per-device summary. The exporter
// is a pure transformation: it performs no validation and assumes every
// record it receives is already valid.
package export

import (
	"fmt"
	"strings"

	"github.com/deskhyper/deskhyper/internal/allocation"
	"github.com/deskhyper/deskhyper/internal/clusterspec"
	"github.com/deskhyper/deskhyper/internal/inventory"
	"github.com/deskhyper/deskhyper/pkg/gpu/mig"
	"sigs.k8s.io/yaml"
)

// Record is one exported allocation, carrying everything the external
// attachment mechanism needs to act on it.
type Record struct {
	Cluster    string                 `json:"cluster"`
	Node       string                 `json:"node"`
	DeviceID   string                 `json:"device_id"`
	PCIAddress string                 `json:"pci_address"`
	Kind       clusterspec.DemandKind `json:"kind"`
	Profile    mig.ProfileName        `json:"profile,omitempty"`
	SlotIndex  *int                   `json:"slot_index,omitempty"`
}

// MdevRecord describes the mediated device to create for one MIG slice.
// The vendor slice-creation command and the hypervisor XML generation are
// external collaborator concerns; this record carries their inputs.
type MdevRecord struct {
	ParentPCIAddress string          `json:"parent_pci_address"`
	MdevType         string          `json:"mdev_type"`
	Profile          mig.ProfileName `json:"profile"`
	SlotIndex        int             `json:"slot_index"`
	Owner            string          `json:"owner"`
}

// Export is the structured representation of a plan for downstream tools.
type Export struct {
	Records     []Record     `json:"records"`
	MdevDevices []MdevRecord `json:"mdev_devices,omitempty"`
}

func (e Export) AsYAML() ([]byte, error) {
	return yaml.Marshal(e)
}

type Exporter struct {
}

func NewExporter() Exporter {
	return Exporter{}
}

// Export renders the plan records in plan order. Devices absent from the
// snapshot yield records with an empty PCI address; validating that is the
// planner's job, not the exporter's.
func (e Exporter) Export(snapshot inventory.Snapshot, plan allocation.Plan) Export {
	result := Export{
		Records:     make([]Record, 0, len(plan.Records)),
		MdevDevices: make([]MdevRecord, 0),
	}
	for _, r := range plan.Records {
		device, _ := snapshot.GetDevice(r.DeviceID)
		record := Record{
			Cluster:    r.Cluster,
			Node:       r.Node,
			DeviceID:   r.DeviceID,
			PCIAddress: device.PCIAddress,
			Kind:       r.Assignment.Kind,
		}
		if r.Assignment.Kind == clusterspec.KindSlice {
			slot := r.Assignment.SlotIndex
			record.Profile = r.Assignment.Profile
			record.SlotIndex = &slot
			result.MdevDevices = append(result.MdevDevices, MdevRecord{
				ParentPCIAddress: device.PCIAddress,
				MdevType:         fmt.Sprintf("nvidia-%s", r.Assignment.Profile),
				Profile:          r.Assignment.Profile,
				SlotIndex:        slot,
				Owner:            fmt.Sprintf("%s/%s", r.Cluster, r.Node),
			})
		}
		result.Records = append(result.Records, record)
	}
	return result
}

// Summary renders a human-readable view of the plan grouped by device, in
// device ID order. Unallocated devices are listed as free.
func (e Exporter) Summary(snapshot inventory.Snapshot, plan allocation.Plan) string {
	byDevice := plan.Records.GroupByDevice()
	sb := strings.Builder{}
	for _, device := range snapshot.Devices() {
		sb.WriteString(fmt.Sprintf("%s (%s):\n", device.ID, device.PCIAddress))
		records := byDevice[device.ID]
		if len(records) == 0 {
			sb.WriteString("  free\n")
			continue
		}
		for _, r := range records {
			sb.WriteString(fmt.Sprintf("  %s/%s: %s\n", r.Cluster, r.Node, r.Assignment.String()))
		}
	}
	return sb.String()
}
