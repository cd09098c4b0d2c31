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

package gpu

// MigMode is the MIG operation mode reported by the host scanner for a
// single physical GPU.
type MigMode string

const (
	MigModeDisabled      MigMode = "disabled"
	MigModeEnabled       MigMode = "enabled"
	MigModeNotApplicable MigMode = "not_applicable"
)

func (m MigMode) IsValid() bool {
	switch m {
	case MigModeDisabled, MigModeEnabled, MigModeNotApplicable:
		return true
	}
	return false
}

// Device is a physical GPU as reported by the host inventory scanner.
//
// The planner treats a Device as an immutable snapshot: it is rebuilt from
// the inventory document on every invocation and never written back.
type Device struct {
	// ID is the stable logical identifier of the device, unique within
	// the host (e.g. "GPU-0").
	ID string `json:"id"`
	// PCIAddress is the bus address of the device, unique within the
	// host and immutable for the life of the host session.
	PCIAddress string `json:"pci_address"`
	// Model is informational only and never used in allocation logic.
	Model string `json:"model"`
	// MemoryMiB is the total device memory.
	MemoryMiB int `json:"memory_mib,omitempty"`
	// MigCapable reports whether the device supports MIG partitioning.
	MigCapable bool `json:"mig_capable"`
	// MigMode is only meaningful when MigCapable is true.
	MigMode MigMode `json:"mig_mode,omitempty"`
	// AllowedMigProfiles lists the profile names the vendor driver
	// permits on this device when MIG mode is enabled. Empty otherwise.
	AllowedMigProfiles []string `json:"allowed_mig_profiles,omitempty"`
}

// IsWholeAllocatable reports whether the device may be handed out as a
// whole unit: either it is not MIG-capable at all, or MIG mode is disabled.
// A device with slices committed on it is excluded by the planner, not here.
func (d Device) IsWholeAllocatable() bool {
	if !d.MigCapable {
		return true
	}
	return d.MigMode == MigModeDisabled
}

// IsSliceAllocatable reports whether MIG slices may be placed on the device.
func (d Device) IsSliceAllocatable() bool {
	return d.MigCapable && d.MigMode == MigModeEnabled
}
