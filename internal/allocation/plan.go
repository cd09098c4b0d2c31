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
	"sort"

	"github.com/deskhyper/deskhyper/internal/clusterspec"
	"github.com/deskhyper/deskhyper/pkg/gpu/mig"
	"github.com/deskhyper/deskhyper/pkg/util"
	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
)

// Assignment describes what a demand received on its device: the whole
// device, or one MIG slice of a given profile. SlotIndex disambiguates
// multiple same-profile slices on one device; it is a planner-assigned
// integer, not a hardware slot number.
type Assignment struct {
	Kind      clusterspec.DemandKind `json:"kind"`
	Profile   mig.ProfileName        `json:"profile,omitempty"`
	SlotIndex int                    `json:"slot_index"`
}

func (a Assignment) String() string {
	if a.Kind == clusterspec.KindSlice {
		return fmt.Sprintf("%s[%d]", a.Profile, a.SlotIndex)
	}
	return string(clusterspec.KindWhole)
}

// Record is the result of satisfying one demand.
type Record struct {
	DemandID   clusterspec.DemandID `json:"demand_id"`
	Cluster    string               `json:"cluster"`
	Node       string               `json:"node"`
	DeviceID   string               `json:"device_id"`
	Assignment Assignment           `json:"assignment"`
}

func (r Record) String() string {
	return fmt.Sprintf("%s/%s -> %s/%s", r.Cluster, r.Node, r.DeviceID, r.Assignment)
}

type RecordList []Record

func (l RecordList) GroupByDevice() map[string]RecordList {
	result := make(map[string]RecordList)
	for _, r := range l {
		result[r.DeviceID] = append(result[r.DeviceID], r)
	}
	return result
}

// SortByDemandID returns a copy sorted by demand ID, for deterministic
// rendering of sets that carry no natural document order.
func (l RecordList) SortByDemandID() RecordList {
	sorted := make(RecordList, len(l))
	copy(sorted, l)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].DemandID < sorted[j].DemandID
	})
	return sorted
}

// Plan is a complete, conflict-free assignment covering every demand of a
// cluster spec. Records are ordered as the demands appear in the expanded
// spec. The run ID exists for log correlation only and is excluded from
// plan equality.
type Plan struct {
	id      string
	Records RecordList
}

func NewPlan(records RecordList) Plan {
	return Plan{
		id:      uuid.NewString(),
		Records: records,
	}
}

func (p Plan) ID() string {
	return p.id
}

// Equal compares the records of two plans, ignoring run IDs.
func (p Plan) Equal(other Plan) bool {
	return cmp.Equal(p.Records, other.Records)
}

// ToState converts the plan into the persisted state representation.
func (p Plan) ToState() State {
	res := make(State, len(p.Records))
	for _, r := range p.Records {
		res[r.DemandID] = r
	}
	return res
}

// State is the last committed plan, keyed by demand ID. It is the only
// entity that survives across planner invocations; only the Reconciler
// writes it.
type State map[clusterspec.DemandID]Record

func (s State) DeepCopy() State {
	return State(util.CopyMap(s))
}

// Equal compares two states record by record. The comparison runs on the
// underlying map type: handing cmp a State would dispatch right back here.
func (s State) Equal(other State) bool {
	return cmp.Equal(
		map[clusterspec.DemandID]Record(s),
		map[clusterspec.DemandID]Record(other),
	)
}

// Records returns the state records sorted by demand ID.
func (s State) Records() RecordList {
	res := make(RecordList, 0, len(s))
	for _, r := range s {
		res = append(res, r)
	}
	return res.SortByDemandID()
}
