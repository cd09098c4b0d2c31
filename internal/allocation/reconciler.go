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
	"github.com/go-logr/logr"
)

// StateStore persists the committed allocation state. The store is expected
// to write atomically: a crash during Save must leave the previous state
// intact.
type StateStore interface {
	Load() (State, error)
	Save(State) error
}

// Diff is the minimal set of operations turning the previous state into the
// new plan. Additions keep plan order; removals are sorted by demand ID.
type Diff struct {
	Additions RecordList
	Removals  RecordList
}

func (d Diff) IsEmpty() bool {
	return len(d.Additions) == 0 && len(d.Removals) == 0
}

// ComputeDiff compares the previous state and the new plan by demand ID.
func ComputeDiff(previous State, plan Plan) Diff {
	diff := Diff{
		Additions: make(RecordList, 0),
		Removals:  make(RecordList, 0),
	}
	planned := plan.ToState()
	for _, r := range plan.Records {
		if _, ok := previous[r.DemandID]; !ok {
			diff.Additions = append(diff.Additions, r)
		}
	}
	for _, r := range previous.Records() {
		if _, ok := planned[r.DemandID]; !ok {
			diff.Removals = append(diff.Removals, r)
		}
	}
	return diff
}

// ConfirmFunc reports whether the downstream attachment of the diff
// succeeded. Persistence happens only after confirmation.
type ConfirmFunc func(Diff) error

// Reconciler is the sole writer of the allocation state.
type Reconciler struct {
	store  StateStore
	logger logr.Logger
}

func NewReconciler(store StateStore, logger logr.Logger) Reconciler {
	return Reconciler{store: store, logger: logger}
}

// Commit diffs the plan against the previous state, waits for the caller to
// confirm downstream attachment, and only then persists the plan as the new
// state. A failure (or crash) before persistence leaves the old state
// authoritative, so re-running is always safe.
func (r Reconciler) Commit(previous State, plan Plan, confirm ConfirmFunc) (Diff, error) {
	diff := ComputeDiff(previous, plan)
	next := plan.ToState()
	// An empty diff is not enough to skip: the diff is keyed by demand ID,
	// and a re-packed demand (e.g. its previous device vanished) changes
	// record content while keeping its ID. Only a record-identical state
	// short-circuits the commit.
	if next.Equal(previous) {
		r.logger.V(1).Info("state already matches plan, nothing to do", "plan", plan.ID())
		return diff, nil
	}
	if confirm != nil {
		if err := confirm(diff); err != nil {
			return diff, err
		}
	}
	if err := r.store.Save(next); err != nil {
		return diff, err
	}
	r.logger.Info(
		"committed new allocation state",
		"plan", plan.ID(),
		"additions", len(diff.Additions),
		"removals", len(diff.Removals),
	)
	return diff, nil
}
