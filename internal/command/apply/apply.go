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

package apply

import (
	"context"
	"fmt"
	"os"

	"github.com/deskhyper/deskhyper/internal/allocation"
	"github.com/deskhyper/deskhyper/internal/command/session"
	"github.com/deskhyper/deskhyper/internal/config"
	"github.com/deskhyper/deskhyper/internal/export"
	"github.com/deskhyper/deskhyper/pkg/flags"
	"github.com/deskhyper/deskhyper/pkg/gpu"
	"github.com/spf13/cobra"
)

func NewCommand(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Plan, hand the result to the attachment tooling and persist the new state",
		PreRunE: func(c *cobra.Command, _ []string) error {
			flags.BindCommandToViper(c)
			return nil
		},
		RunE: func(c *cobra.Command, _ []string) error {
			return run(c.Context(), cfg)
		},
	}
	cmd.Flags().StringVar(&cfg.ExportPath, "export", "", "write the YAML export fragment to this file")
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

	exporter := export.NewExporter()
	// The export hand-off doubles as the attachment confirmation: the
	// state is persisted only once the fragment consumed by the
	// attachment tooling has been written out.
	confirm := func(diff allocation.Diff) error {
		data, err := exporter.Export(sess.Snapshot, computed).AsYAML()
		if err != nil {
			return gpu.NewGenericError(err)
		}
		if cfg.ExportPath == "" {
			fmt.Print(string(data))
			return nil
		}
		if err := os.WriteFile(cfg.ExportPath, data, 0o644); err != nil {
			return gpu.PersistenceErr.Errorf("writing export fragment: %s", err)
		}
		return nil
	}

	reconciler := allocation.NewReconciler(sess.Store, cfg.Logger.WithName("Reconciler"))
	diff, err := reconciler.Commit(sess.Previous, computed, confirm)
	if err != nil {
		return err
	}

	fmt.Print(exporter.Summary(sess.Snapshot, computed))
	fmt.Printf("applied plan %s: %d additions, %d removals\n", computed.ID(), len(diff.Additions), len(diff.Removals))
	return nil
}
