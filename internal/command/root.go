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

package command

import (
	"fmt"

	"github.com/deskhyper/deskhyper/internal/command/apply"
	"github.com/deskhyper/deskhyper/internal/command/plan"
	"github.com/deskhyper/deskhyper/internal/command/status"
	"github.com/deskhyper/deskhyper/internal/config"
	"github.com/deskhyper/deskhyper/pkg/flags"
	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func NewRootCommand() (*cobra.Command, error) {
	cfg := &config.Config{}

	cmd := &cobra.Command{
		Use:          "gpuplanner",
		Short:        "Plan GPU and MIG slice assignments for the virtual clusters of this host",
		SilenceUsage: true,
		PersistentPreRunE: func(c *cobra.Command, _ []string) error {
			flags.BindCommandToViper(c)

			logger, err := newLogger(cfg)
			if err != nil {
				return fmt.Errorf("configuring logging: %w", err)
			}
			cfg.Logger = logger
			return nil
		},
		RunE: func(c *cobra.Command, _ []string) error {
			return c.Help()
		},
	}

	addRootFlags(cmd, cfg)

	cmd.AddCommand(plan.NewCommand(cfg))
	cmd.AddCommand(apply.NewCommand(cfg))
	cmd.AddCommand(status.NewCommand(cfg))

	cobra.OnInitialize(initCobra)

	return cmd, nil
}

func addRootFlags(cmd *cobra.Command, cfg *config.Config) {
	cmd.PersistentFlags().StringVar(&cfg.SpecPath, "spec", "", "path to the declarative cluster document")
	cmd.PersistentFlags().StringVar(&cfg.InventoryPath, "inventory", "",
		"path to a normalized inventory document (default: devices embedded in the cluster document)")
	cmd.PersistentFlags().StringVar(&cfg.StatePath, "state", config.DefaultStatePath,
		"path to the committed allocation state file")
	cmd.PersistentFlags().DurationVar(&cfg.LockWait, "lock-wait", 0,
		"how long to wait for the state lock (0 fails fast)")
	cmd.PersistentFlags().IntVarP(&cfg.Verbosity, "verbosity", "v", 0, "log verbosity")
}

func initCobra() {
	viper.SetEnvPrefix("GPUPLANNER")
	viper.AutomaticEnv()
	viper.SetConfigType("yaml")
	viper.SetConfigName("gpuplanner")
	viper.AddConfigPath("$HOME/.config/deskhyper/")
	viper.AddConfigPath("/etc/deskhyper/")

	_ = viper.ReadInConfig()
}

func newLogger(cfg *config.Config) (logr.Logger, error) {
	zapCfg := zap.NewDevelopmentConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(zapcore.Level(-cfg.Verbosity))
	zapLog, err := zapCfg.Build()
	if err != nil {
		return logr.Logger{}, err
	}
	return zapr.NewLogger(zapLog), nil
}
