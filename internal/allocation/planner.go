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

package allocation

import (
	"fmt"
	"strings"

	"github.com/deskhyper/deskhyper/internal/clusterspec"
	"github.com/deskhyper/deskhyper/internal/inventory"
	"github.com/deskhyper/deskhyper/pkg/gpu"
	"github.com/deskhyper/deskhyper/pkg/gpu/mig"
	"github.com/go-logr/logr"
)

// Planner computes a conflict-free assignment of GPU resources to the
// demands of a cluster spec. It is a pure computation over explicit inputs:
// no randomness, no hidden state, no I/O. Two runs with identical inputs
// produce identical records.
type Planner struct {
	logger logr.Logger
}

func NewPlanner(logger logr.Logger) Planner {
	return Planner{logger: logger}
}

// deviceCommit tracks what the current planning run has committed on one
// device. Slice capacity is accounted in integer gi slices: a device whose
// largest allowed profile has maxGi slices can host profiles summing to at
// most maxGi slices, which is the weight-sum <= 1.0 rule without floats.
type deviceCommit struct {
	whole  bool
	usedGi int
	maxGi  int
	slots  map[int]bool
}

func (c *deviceCommit) nextSlot() int {
	for i := 0; ; i++ {
		if !c.slots[i] {
			return i
		}
	}
}

// Plan runs the two-phase allocation over the inventory snapshot.
//
// Phase 1 (sticky reuse) carries forward every record of the previous state
// whose demand still exists and whose device still satisfies it, so
// already-provisioned VMs stay stable across re-runs. Phase 2 packs the
// remaining demands, whole-GPU demands first, each onto the lowest-ID
// eligible device.
//
// Planning is all-or-nothing: the first unsatisfiable demand fails the run
// and no partial plan is returned.
func (p Planner) Plan(
	snapshot inventory.Snapshot,
	spec clusterspec.ClusterSpec,
	previous State,
) (Plan, error) {
	commits := make(map[string]*deviceCommit, len(snapshot.Devices()))
	for _, d := range snapshot.Devices() {
		commits[d.ID] = &deviceCommit{
			maxGi: snapshot.AllowedProfiles(d.ID).MaxGiSlices(),
			slots: make(map[int]bool),
		}
	}

	assigned := make(map[clusterspec.DemandID]Record, len(spec.Demands))
	repack := make([]clusterspec.Demand, 0)

	// Phase 1: sticky reuse in spec order.
	for _, demand := range spec.Demands {
		prev, ok := previous[demand.ID()]
		if !ok {
			repack = append(repack, demand)
			continue
		}
		if reason := p.tryCarry(snapshot, demand, prev, commits); reason != "" {
			// Inventory mismatch is a re-pack trigger, never fatal.
			p.logger.V(1).Info(
				"previous allocation no longer valid, re-packing",
				"demand", demand.String(),
				"device", prev.DeviceID,
				"reason", reason,
			)
			repack = append(repack, demand)
			continue
		}
		p.logger.V(1).Info(
			"carrying forward previous allocation",
			"demand", demand.String(),
			"device", prev.DeviceID,
		)
		assigned[demand.ID()] = prev
	}

	// Phase 2: fresh packing, whole-GPU demands before slices so coarse
	// demands are not starved behind many small ones. Within each kind
	// the spec order is preserved.
	for _, pass := range []clusterspec.DemandKind{clusterspec.KindWhole, clusterspec.KindSlice} {
		for _, demand := range repack {
			if demand.Kind != pass {
				continue
			}
			record, err := p.pack(snapshot, demand, commits)
			if err != nil {
				return Plan{}, err
			}
			p.logger.V(1).Info(
				"packed demand",
				"demand", demand.String(),
				"device", record.DeviceID,
				"assignment", record.Assignment.String(),
			)
			assigned[demand.ID()] = record
		}
	}

	// Emit records in spec order regardless of the phase that produced
	// them, so the plan layout is stable across runs.
	records := make(RecordList, 0, len(spec.Demands))
	for _, demand := range spec.Demands {
		records = append(records, assigned[demand.ID()])
	}
	return NewPlan(records), nil
}

// tryCarry commits a previous record against the current inventory. The
// returned reason is empty on success and describes the mismatch otherwise.
func (p Planner) tryCarry(
	snapshot inventory.Snapshot,
	demand clusterspec.Demand,
	prev Record,
	commits map[string]*deviceCommit,
) string {
	device, ok := snapshot.GetDevice(prev.DeviceID)
	if !ok {
		return fmt.Sprintf("device %s no longer present in inventory", prev.DeviceID)
	}
	if prev.Assignment.Kind != demand.Kind {
		return fmt.Sprintf(
			"previous assignment kind %s does not match demand kind %s",
			prev.Assignment.Kind, demand.Kind,
		)
	}
	commit := commits[device.ID]

	switch demand.Kind {
	case clusterspec.KindWhole:
		if ok, reason := wholeEligible(device, commit); !ok {
			return reason
		}
		commit.whole = true
	case clusterspec.KindSlice:
		if prev.Assignment.Profile != demand.Profile {
			return fmt.Sprintf(
				"previous profile %s does not match demanded profile %s",
				prev.Assignment.Profile, demand.Profile,
			)
		}
		allowed := snapshot.AllowedProfiles(device.ID)
		if ok, reason := sliceEligible(device, allowed, demand.Profile, commit); !ok {
			return reason
		}
		if commit.slots[prev.Assignment.SlotIndex] {
			return fmt.Sprintf("slot %d already committed on %s", prev.Assignment.SlotIndex, device.ID)
		}
		commit.usedGi += demand.Profile.GiSlices()
		commit.slots[prev.Assignment.SlotIndex] = true
	}
	return ""
}

// pack assigns a fresh demand to the lowest-ID eligible device.
func (p Planner) pack(
	snapshot inventory.Snapshot,
	demand clusterspec.Demand,
	commits map[string]*deviceCommit,
) (Record, error) {
	devices := snapshot.Devices()
	if len(devices) == 0 {
		return Record{}, newUnsatisfiable(demand, "inventory contains no devices")
	}
	if demand.Kind == clusterspec.KindSlice && !snapshot.ProfileKnown(demand.Profile) {
		return Record{}, newUnsatisfiable(demand, fmt.Sprintf(
			"profile %s is not permitted on any device of the host", demand.Profile,
		))
	}

	reasons := make([]string, 0, len(devices))
	for _, device := range devices {
		commit := commits[device.ID]
		switch demand.Kind {
		case clusterspec.KindWhole:
			if ok, reason := wholeEligible(device, commit); !ok {
				reasons = append(reasons, fmt.Sprintf("%s: %s", device.ID, reason))
				continue
			}
			commit.whole = true
			return Record{
				DemandID:   demand.ID(),
				Cluster:    demand.Cluster,
				Node:       demand.Node,
				DeviceID:   device.ID,
				Assignment: Assignment{Kind: clusterspec.KindWhole},
			}, nil
		case clusterspec.KindSlice:
			allowed := snapshot.AllowedProfiles(device.ID)
			if ok, reason := sliceEligible(device, allowed, demand.Profile, commit); !ok {
				reasons = append(reasons, fmt.Sprintf("%s: %s", device.ID, reason))
				continue
			}
			slot := commit.nextSlot()
			commit.usedGi += demand.Profile.GiSlices()
			commit.slots[slot] = true
			return Record{
				DemandID: demand.ID(),
				Cluster:  demand.Cluster,
				Node:     demand.Node,
				DeviceID: device.ID,
				Assignment: Assignment{
					Kind:      clusterspec.KindSlice,
					Profile:   demand.Profile,
					SlotIndex: slot,
				},
			}, nil
		}
	}
	return Record{}, newUnsatisfiable(demand, strings.Join(reasons, "; "))
}

func wholeEligible(device gpu.Device, commit *deviceCommit) (bool, string) {
	if commit.whole {
		return false, "already holds a whole-GPU assignment"
	}
	if !device.IsWholeAllocatable() {
		return false, fmt.Sprintf("MIG-capable device with MIG mode %s", device.MigMode)
	}
	if commit.usedGi > 0 {
		return false, "device already holds slice assignments"
	}
	return true, ""
}

func sliceEligible(
	device gpu.Device,
	allowed mig.ProfileNameList,
	profile mig.ProfileName,
	commit *deviceCommit,
) (bool, string) {
	if !device.IsSliceAllocatable() {
		if device.MigCapable {
			return false, fmt.Sprintf("MIG mode is %s", device.MigMode)
		}
		return false, "device is not MIG-capable"
	}
	if !allowed.Contains(profile) {
		return false, fmt.Sprintf("profile %s not in allowed profiles", profile)
	}
	if commit.whole {
		return false, "already holds a whole-GPU assignment"
	}
	gi := profile.GiSlices()
	if commit.usedGi+gi > commit.maxGi {
		return false, fmt.Sprintf(
			"committed weight %d/%d, profile %s needs %d/%d more",
			commit.usedGi, commit.maxGi, profile, gi, commit.maxGi,
		)
	}
	return true, ""
}
