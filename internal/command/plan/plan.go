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

package plan

import (
	"context"
	"fmt"

	"github.com/deskhyper/deskhyper/internal/allocation"
	"github.com/deskhyper/deskhyper/internal/command/session"
	"github.com/deskhyper/deskhyper/internal/config"
	"github.com/deskhyper/deskhyper/internal/export"
	"github.com/deskhyper/deskhyper/pkg/flags"
	"github.com/spf13/cobra"
)

func NewCommand(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Compute the GPU allocation plan without persisting anything",
		PreRunE: func(c *cobra.Command, _ []string) error {
			flags.BindCommandToViper(c)
			return nil
		},
		RunE: func(c *cobra.Command, _ []string) error {
			return run(c.Context(), cfg)
		},
	}
	return cmd
}

func run(ctx context.Context, cfg *config.Config) error {
	sess, err := session.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		_ = sess.Close()
	}()

	planner := allocation.NewPlanner(cfg.Logger.WithName("Planner"))
	computed, err := planner.Plan(sess.Snapshot, sess.Spec, sess.Previous)
	if err != nil {
		return err
	}
	fmt.Print(export.NewExporter().Summary(sess.Snapshot, computed))
	if computed.ToState().Equal(sess.Previous) {
		fmt.Println("state is up to date, nothing to apply")
		return nil
	}
	diff := allocation.ComputeDiff(sess.Previous, computed)
	for _, r := range diff.Additions {
		fmt.Printf("+ %s\n", r.String())
	}
	for _, r := range diff.Removals {
		fmt.Printf("- %s\n", r.String())
	}
	for _, r := range changedRecords(sess.Previous, computed) {
		fmt.Printf("~ %s\n", r.String())
	}
	return nil
}

// changedRecords lists plan records whose demand survives from the previous
// state but whose content (device, slot) was re-packed.
func changedRecords(previous allocation.State, plan allocation.Plan) allocation.RecordList {
	changed := make(allocation.RecordList, 0)
	for _, r := range plan.Records {
		if prev, ok := previous[r.DemandID]; ok && prev != r {
			changed = append(changed, r)
		}
	}
	return changed
}
