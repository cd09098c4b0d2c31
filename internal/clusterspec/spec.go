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

// Package clusterspec parses and validates the declarative cluster document
// that drives GPU allocation. Validation is exhaustive at parse time so
// that downstream code is total over the demand variant: a Demand that
// reaches the planner is always either a whole-GPU demand or a slice demand
// with a syntactically valid profile.
package clusterspec

import (
	"fmt"
	"os"
	"sort"

	"github.com/deskhyper/deskhyper/pkg/gpu"
	"github.com/deskhyper/deskhyper/pkg/gpu/mig"
	"github.com/deskhyper/deskhyper/pkg/util"
	"sigs.k8s.io/yaml"
)

// Strategy is the global GPU allocation strategy of the host.
type Strategy string

const (
	// StrategyMig permits only MIG slice demands.
	StrategyMig Strategy = "mig"
	// StrategyWhole permits only whole-GPU demands.
	StrategyWhole Strategy = "whole"
	// StrategyHybrid permits both demand kinds.
	StrategyHybrid Strategy = "hybrid"
)

func (s Strategy) IsValid() bool {
	switch s {
	case StrategyMig, StrategyWhole, StrategyHybrid:
		return true
	}
	return false
}

// DemandKind is the closed set of resource demand variants.
type DemandKind string

const (
	KindWhole DemandKind = "whole"
	KindSlice DemandKind = "slice"
)

// DemandID identifies a demand across planning runs. It is a deterministic
// hash of {cluster, node, kind, ordinal}, so re-running with an unchanged
// document always produces the same IDs.
type DemandID string

// Demand is one fully-expanded resource demand. Demands with count > 1 in
// the source document are expanded to independent records before planning,
// each carrying its own Ordinal.
type Demand struct {
	Cluster string
	Node    string
	Kind    DemandKind
	// Profile is set if and only if Kind is KindSlice.
	Profile mig.ProfileName
	Ordinal int
}

// KindKey renders the demand kind for hashing and export
// ("whole" or "slice:<profile>").
func (d Demand) KindKey() string {
	if d.Kind == KindSlice {
		return fmt.Sprintf("%s:%s", KindSlice, d.Profile)
	}
	return string(KindWhole)
}

func (d Demand) ID() DemandID {
	key := fmt.Sprintf("%s/%s/%s/%d", d.Cluster, d.Node, d.KindKey(), d.Ordinal)
	return DemandID(util.HashFnv64(key))
}

func (d Demand) String() string {
	return fmt.Sprintf("%s/%s/%s/%d", d.Cluster, d.Node, d.KindKey(), d.Ordinal)
}

// ClusterSpec is the validated, expanded allocation request.
type ClusterSpec struct {
	Strategy Strategy
	// Demands holds the expanded demand records in deterministic order:
	// clusters by name, then document order within each cluster, then
	// ascending ordinal.
	Demands []Demand
}

type Document struct {
	Global   GlobalConfig             `json:"global"`
	Clusters map[string]ClusterConfig `json:"clusters"`
}

type GlobalConfig struct {
	GpuAllocation GpuAllocationConfig `json:"gpu_allocation"`
}

type GpuAllocationConfig struct {
	Strategy string `json:"strategy"`
	// Devices optionally embeds the normalized host inventory, when the
	// outer tooling merges the scanner output into the same document.
	Devices gpu.DeviceList `json:"devices,omitempty"`
}

type ClusterConfig struct {
	Demands []DemandConfig `json:"demands"`
}

type DemandConfig struct {
	Node    string `json:"node"`
	Kind    string `json:"kind"`
	Profile string `json:"profile,omitempty"`
	Count   *int   `json:"count,omitempty"`
}

// Load reads and validates a cluster document from disk.
func Load(path string) (ClusterSpec, Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ClusterSpec{}, Document{}, gpu.NewGenericError(err)
	}
	return Parse(data)
}

// Parse unmarshals and validates a cluster document.
func Parse(data []byte) (ClusterSpec, Document, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return ClusterSpec{}, Document{}, gpu.SpecInvalidErr.Errorf("parsing cluster spec: %s", err)
	}
	spec, err := Validate(doc)
	return spec, doc, err
}

// Validate turns a raw document into a ClusterSpec, enforcing the global
// strategy and expanding counts. Profile existence against the inventory is
// deliberately not checked here: it is a plan-time concern.
func Validate(doc Document) (ClusterSpec, error) {
	strategy := Strategy(doc.Global.GpuAllocation.Strategy)
	if !strategy.IsValid() {
		return ClusterSpec{}, gpu.SpecInvalidErr.Errorf(
			"unknown gpu allocation strategy %q (want mig, whole or hybrid)",
			doc.Global.GpuAllocation.Strategy,
		)
	}

	// YAML maps carry no order: visit clusters by name so the expanded
	// demand sequence is deterministic across runs.
	clusterNames := util.GetKeys(doc.Clusters)
	sort.Strings(clusterNames)

	demands := make([]Demand, 0)
	ordinals := make(map[string]int)
	for _, clusterName := range clusterNames {
		for _, raw := range doc.Clusters[clusterName].Demands {
			expanded, err := expandDemand(clusterName, raw, strategy, ordinals)
			if err != nil {
				return ClusterSpec{}, err
			}
			demands = append(demands, expanded...)
		}
	}

	return ClusterSpec{Strategy: strategy, Demands: demands}, nil
}

func expandDemand(cluster string, raw DemandConfig, strategy Strategy, ordinals map[string]int) ([]Demand, error) {
	if raw.Node == "" {
		return nil, gpu.SpecInvalidErr.Errorf("cluster %s: demand with empty node", cluster)
	}

	count := 1
	if raw.Count != nil {
		if *raw.Count < 1 {
			return nil, gpu.SpecInvalidErr.Errorf(
				"cluster %s, node %s: count must be >= 1, got %d", cluster, raw.Node, *raw.Count,
			)
		}
		count = *raw.Count
	}

	demand := Demand{Cluster: cluster, Node: raw.Node}
	switch DemandKind(raw.Kind) {
	case KindWhole:
		if strategy == StrategyMig {
			return nil, gpu.SpecInvalidErr.Errorf(
				"cluster %s, node %s: whole-GPU demand not permitted under strategy %q",
				cluster, raw.Node, strategy,
			)
		}
		if raw.Profile != "" {
			return nil, gpu.SpecInvalidErr.Errorf(
				"cluster %s, node %s: profile %q set on a whole-GPU demand",
				cluster, raw.Node, raw.Profile,
			)
		}
		demand.Kind = KindWhole
	case KindSlice:
		if strategy == StrategyWhole {
			return nil, gpu.SpecInvalidErr.Errorf(
				"cluster %s, node %s: slice demand not permitted under strategy %q",
				cluster, raw.Node, strategy,
			)
		}
		profile, err := mig.ParseProfileName(raw.Profile)
		if err != nil {
			return nil, gpu.SpecInvalidErr.Errorf(
				"cluster %s, node %s: %s", cluster, raw.Node, err,
			)
		}
		demand.Kind = KindSlice
		demand.Profile = profile
	default:
		return nil, gpu.SpecInvalidErr.Errorf(
			"cluster %s, node %s: unknown demand kind %q (want whole or slice)",
			cluster, raw.Node, raw.Kind,
		)
	}

	// Ordinals continue across document lines naming the same
	// {cluster, node, kind}: two identical lines are two independent
	// demands with distinct IDs, never the same demand twice.
	key := fmt.Sprintf("%s/%s/%s", cluster, demand.Node, demand.KindKey())
	base := ordinals[key]
	ordinals[key] = base + count

	result := make([]Demand, 0, count)
	for i := 0; i < count; i++ {
		d := demand
		d.Ordinal = base + i
		result = append(result, d)
	}
	return result, nil
}
