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

package main

import (
	"fmt"
	"os"

	"github.com/deskhyper/deskhyper/internal/command"
	"github.com/deskhyper/deskhyper/pkg/gpu"
)

const (
	exitOK            = 0
	exitInvalid       = 1
	exitUnsatisfiable = 2
	exitStateLocked   = 3
)

func main() {
	rootCmd, err := command.NewRootCommand()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitInvalid)
	}
	if err := rootCmd.Execute(); err != nil {
		os.Exit(exitCode(err))
	}
	os.Exit(exitOK)
}

// exitCode maps the structured error taxonomy onto the CLI contract, so
// scripts can branch on the failure class.
func exitCode(err error) int {
	switch gpu.CodeOf(err) {
	case gpu.ErrorCodeUnsatisfiable:
		return exitUnsatisfiable
	case gpu.ErrorCodeStateLocked:
		return exitStateLocked
	default:
		return exitInvalid
	}
}
