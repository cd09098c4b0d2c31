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

// Package inventory models the host GPU inventory consumed by the
// allocation planner. The snapshot is produced by an external host scanner
// and is read-only: it is rebuilt on every planner invocation and always
// passed explicitly, never held as process-global state.
package inventory

import (
	"os"

	"github.com/deskhyper/deskhyper/pkg/gpu"
	"github.com/deskhyper/deskhyper/pkg/gpu/mig"
	"sigs.k8s.io/yaml"
)

// Snapshot is an immutable view of the physical GPUs of the host.
type Snapshot struct {
	devices gpu.DeviceList
}

// NewSnapshot validates the scanned devices and returns an immutable
// snapshot. Device IDs and PCI addresses must be unique, MIG fields must be
// mutually consistent and profile names syntactically valid.
func NewSnapshot(devices gpu.DeviceList) (Snapshot, error) {
	seenIDs := make(map[string]bool, len(devices))
	seenAddresses := make(map[string]bool, len(devices))
	for _, d := range devices {
		if d.ID == "" {
			return Snapshot{}, gpu.SpecInvalidErr.Errorf("device with empty id")
		}
		if d.PCIAddress == "" {
			return Snapshot{}, gpu.SpecInvalidErr.Errorf("device %s: empty pci_address", d.ID)
		}
		if seenIDs[d.ID] {
			return Snapshot{}, gpu.SpecInvalidErr.Errorf("duplicate device id %s", d.ID)
		}
		if seenAddresses[d.PCIAddress] {
			return Snapshot{}, gpu.SpecInvalidErr.Errorf("duplicate pci_address %s", d.PCIAddress)
		}
		seenIDs[d.ID] = true
		seenAddresses[d.PCIAddress] = true

		if err := validateMigFields(d); err != nil {
			return Snapshot{}, err
		}
	}
	return Snapshot{devices: devices.SortByID()}, nil
}

func validateMigFields(d gpu.Device) error {
	if !d.MigCapable {
		if len(d.AllowedMigProfiles) > 0 {
			return gpu.SpecInvalidErr.Errorf(
				"device %s: allowed_mig_profiles set on a non MIG-capable device", d.ID,
			)
		}
		if d.MigMode != "" && d.MigMode != gpu.MigModeNotApplicable {
			return gpu.SpecInvalidErr.Errorf(
				"device %s: mig_mode %q on a non MIG-capable device", d.ID, d.MigMode,
			)
		}
		return nil
	}
	if d.MigMode == "" || !d.MigMode.IsValid() || d.MigMode == gpu.MigModeNotApplicable {
		return gpu.SpecInvalidErr.Errorf(
			"device %s: MIG-capable device must declare mig_mode enabled or disabled, got %q",
			d.ID, d.MigMode,
		)
	}
	if _, err := mig.ParseProfileNameList(d.AllowedMigProfiles); err != nil {
		return gpu.SpecInvalidErr.Errorf("device %s: %s", d.ID, err)
	}
	return nil
}

// Devices returns the devices sorted by ID.
func (s Snapshot) Devices() gpu.DeviceList {
	return s.devices
}

func (s Snapshot) GetDevice(id string) (gpu.Device, bool) {
	return s.devices.GetByID(id)
}

// AllowedProfiles returns the parsed MIG profiles permitted on the device.
// The list is empty for devices that cannot host slices.
func (s Snapshot) AllowedProfiles(deviceID string) mig.ProfileNameList {
	d, ok := s.devices.GetByID(deviceID)
	if !ok || !d.IsSliceAllocatable() {
		return nil
	}
	profiles, err := mig.ParseProfileNameList(d.AllowedMigProfiles)
	if err != nil {
		// Profiles were validated when the snapshot was built.
		return nil
	}
	return profiles
}

// ProfileKnown reports whether any device of the host permits the profile.
func (s Snapshot) ProfileKnown(p mig.ProfileName) bool {
	for _, d := range s.devices {
		if s.AllowedProfiles(d.ID).Contains(p) {
			return true
		}
	}
	return false
}

type document struct {
	Devices gpu.DeviceList `json:"devices"`
}

// Load reads a normalized inventory document produced by the host scanner.
func Load(path string) (Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Snapshot{}, gpu.NewGenericError(err)
	}
	return Parse(data)
}

// Parse builds a snapshot from a normalized inventory YAML document.
func Parse(data []byte) (Snapshot, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Snapshot{}, gpu.SpecInvalidErr.Errorf("parsing inventory: %s", err)
	}
	return NewSnapshot(doc.Devices)
}
