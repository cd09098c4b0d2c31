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

// Package session wires the planning inputs for one CLI invocation: parsed
// cluster spec, inventory snapshot and the locked state store. The state
// lock is held from Open until Close, covering the whole
// load -> plan -> reconcile -> persist cycle.
package session

import (
	"context"

	"github.com/deskhyper/deskhyper/internal/allocation"
	"github.com/deskhyper/deskhyper/internal/allocation/state"
	"github.com/deskhyper/deskhyper/internal/clusterspec"
	"github.com/deskhyper/deskhyper/internal/config"
	"github.com/deskhyper/deskhyper/internal/inventory"
	"github.com/deskhyper/deskhyper/pkg/gpu"
)

type Session struct {
	Snapshot inventory.Snapshot
	Spec     clusterspec.ClusterSpec
	Store    *state.Store
	Previous allocation.State
}

// Open loads and validates the planning inputs and acquires the state
// lock. On success the caller owns the session and must Close it.
func Open(ctx context.Context, cfg *config.Config) (*Session, error) {
	if cfg.SpecPath == "" {
		return nil, gpu.SpecInvalidErr.Errorf("no cluster spec provided (--spec)")
	}
	spec, doc, err := clusterspec.Load(cfg.SpecPath)
	if err != nil {
		return nil, err
	}

	var snapshot inventory.Snapshot
	if cfg.InventoryPath != "" {
		snapshot, err = inventory.Load(cfg.InventoryPath)
	} else {
		snapshot, err = inventory.NewSnapshot(doc.Global.GpuAllocation.Devices)
	}
	if err != nil {
		return nil, err
	}

	store := state.NewStore(cfg.StatePath, cfg.LockWait, cfg.Logger.WithName("StateStore"))
	if err = store.Acquire(ctx); err != nil {
		return nil, err
	}
	previous, err := store.Load()
	if err != nil {
		_ = store.Release()
		return nil, err
	}

	return &Session{
		Snapshot: snapshot,
		Spec:     spec,
		Store:    store,
		Previous: previous,
	}, nil
}

func (s *Session) Close() error {
	return s.Store.Release()
}
