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

// Package state persists the committed allocation state between planner
// invocations. The on-disk format is a versioned JSON document keyed by
// demand ID; unknown fields are ignored on load so the schema can evolve
// without invalidating existing state.
package state

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/deskhyper/deskhyper/internal/allocation"
	"github.com/deskhyper/deskhyper/pkg/gpu"
	"github.com/go-logr/logr"
	"github.com/gofrs/flock"
)

const (
	currentVersion = 1

	lockRetryInterval = 100 * time.Millisecond
	lockSuffix        = ".lock"
	tempPattern       = ".allocation-state-*"
)

type document struct {
	Version int              `json:"version"`
	Records allocation.State `json:"records"`
}

// Store is the file-backed allocation state store. The read-modify-write
// cycle (load, plan, reconcile, persist) must run under the exclusive
// advisory lock: callers Acquire before Load and Release after the cycle
// ends. Writes are atomic (temp file + rename in the same directory), so
// abrupt termination never corrupts the committed state.
type Store struct {
	path     string
	lockWait time.Duration
	lock     *flock.Flock
	logger   logr.Logger
}

// NewStore creates a store for the given state file path. lockWait controls
// contention behavior: zero means fail fast with a state-locked error, a
// positive duration means block up to that long for the lock.
func NewStore(path string, lockWait time.Duration, logger logr.Logger) *Store {
	return &Store{
		path:     path,
		lockWait: lockWait,
		lock:     flock.New(path + lockSuffix),
		logger:   logger,
	}
}

// Acquire takes the exclusive advisory lock guarding the state file.
func (s *Store) Acquire(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return gpu.PersistenceErr.Errorf("creating state directory: %s", err)
	}
	if s.lockWait <= 0 {
		locked, err := s.lock.TryLock()
		if err != nil {
			return gpu.PersistenceErr.Errorf("acquiring state lock: %s", err)
		}
		if !locked {
			return gpu.StateLockedErr.Errorf(
				"state file %s is locked by a concurrent invocation", s.path,
			)
		}
		return nil
	}

	lockCtx, cancel := context.WithTimeout(ctx, s.lockWait)
	defer cancel()
	locked, err := s.lock.TryLockContext(lockCtx, lockRetryInterval)
	if err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return gpu.PersistenceErr.Errorf("acquiring state lock: %s", err)
	}
	if !locked {
		return gpu.StateLockedErr.Errorf(
			"state file %s still locked after waiting %s", s.path, s.lockWait,
		)
	}
	return nil
}

func (s *Store) Release() error {
	return s.lock.Unlock()
}

// Load reads the committed state. A missing file is an empty state, not an
// error: the first successful plan creates it.
func (s *Store) Load() (allocation.State, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return allocation.State{}, nil
	}
	if err != nil {
		return nil, gpu.PersistenceErr.Errorf("reading state file: %s", err)
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, gpu.PersistenceErr.Errorf("parsing state file %s: %s", s.path, err)
	}
	if doc.Records == nil {
		doc.Records = allocation.State{}
	}
	return doc.Records, nil
}

// Save atomically replaces the committed state.
func (s *Store) Save(state allocation.State) error {
	doc := document{Version: currentVersion, Records: state}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return gpu.PersistenceErr.Errorf("encoding state: %s", err)
	}

	// The temp file must live in the state directory: rename is only
	// atomic within one filesystem.
	tmp, err := os.CreateTemp(filepath.Dir(s.path), tempPattern)
	if err != nil {
		return gpu.PersistenceErr.Errorf("creating temp state file: %s", err)
	}
	defer func() {
		_ = os.Remove(tmp.Name())
	}()

	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		return gpu.PersistenceErr.Errorf("writing temp state file: %s", err)
	}
	if err = tmp.Close(); err != nil {
		return gpu.PersistenceErr.Errorf("closing temp state file: %s", err)
	}
	if err = os.Chmod(tmp.Name(), 0o644); err != nil {
		return gpu.PersistenceErr.Errorf("setting state file mode: %s", err)
	}
	if err = os.Rename(tmp.Name(), s.path); err != nil {
		return gpu.PersistenceErr.Errorf("replacing state file: %s", err)
	}
	s.logger.V(1).Info("persisted allocation state", "path", s.path, "records", len(state))
	return nil
}

// Path returns the state file location.
func (s *Store) Path() string {
	return s.path
}
