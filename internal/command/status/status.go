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

package status

import (
	"context"
	"fmt"

	"github.com/deskhyper/deskhyper/internal/allocation/state"
	"github.com/deskhyper/deskhyper/internal/config"
	"github.com/deskhyper/deskhyper/pkg/flags"
	"github.com/spf13/cobra"
)

func NewCommand(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Print the committed allocation state",
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
	store := state.NewStore(cfg.StatePath, cfg.LockWait, cfg.Logger.WithName("StateStore"))
	if err := store.Acquire(ctx); err != nil {
		return err
	}
	defer func() {
		_ = store.Release()
	}()

	committed, err := store.Load()
	if err != nil {
		return err
	}
	if len(committed) == 0 {
		fmt.Println("no allocations committed")
		return nil
	}
	for _, r := range committed.Records() {
		fmt.Printf("%s  %s\n", r.DemandID, r.String())
	}
	return nil
}
