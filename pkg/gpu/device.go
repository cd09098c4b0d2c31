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

import "sort"

type DeviceList []Device

// SortByID returns a copy of the list sorted by device ID. The planner
// relies on this ordering for its lowest-ID tie-break rule.
func (l DeviceList) SortByID() DeviceList {
	sorted := make(DeviceList, len(l))
	copy(sorted, l)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].ID < sorted[j].ID
	})
	return sorted
}

func (l DeviceList) GroupByID() map[string]Device {
	result := make(map[string]Device, len(l))
	for _, d := range l {
		result[d.ID] = d
	}
	return result
}

// GetByID returns the device with the given ID, if present.
func (l DeviceList) GetByID(id string) (Device, bool) {
	for _, d := range l {
		if d.ID == id {
			return d, true
		}
	}
	return Device{}, false
}

func (l DeviceList) Filter(keep func(Device) bool) DeviceList {
	result := make(DeviceList, 0, len(l))
	for _, d := range l {
		if keep(d) {
			result = append(result, d)
		}
	}
	return result
}
