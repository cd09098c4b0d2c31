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

package config

import (
	"time"

	"github.com/go-logr/logr"
)

const (
	DefaultStatePath = "/var/lib/deskhyper/allocation-state.json"
)

// Config carries the planner CLI configuration, populated from flags, the
// config file and environment through viper.
type Config struct {
	// SpecPath is the declarative cluster document.
	SpecPath string
	// InventoryPath optionally points at a normalized inventory document
	// from the host scanner. When empty, the devices embedded in the
	// cluster document are used.
	InventoryPath string
	// StatePath is the committed allocation state file.
	StatePath string
	// ExportPath, when set, receives the YAML export fragment on apply.
	ExportPath string
	// LockWait bounds how long an invocation waits for the state lock.
	// Zero means fail fast.
	LockWait time.Duration
	// Verbosity raises log detail when > 0.
	Verbosity int

	// Logger is built by the root command once flags are parsed.
	Logger logr.Logger
}
