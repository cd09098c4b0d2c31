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
	"fmt"

	"github.com/deskhyper/deskhyper/internal/clusterspec"
	"github.com/deskhyper/deskhyper/pkg/gpu"
)

// UnsatisfiableError reports the first demand no device combination can
// satisfy. Planning is all-or-nothing: the whole run fails and nothing is
// persisted.
type UnsatisfiableError struct {
	DemandID clusterspec.DemandID
	Demand   string
	Reason   string
}

func (e UnsatisfiableError) Error() string {
	return fmt.Sprintf(
		"[code: %s  err: demand %s (%s): %s]",
		gpu.ErrorCodeUnsatisfiable, e.DemandID, e.Demand, e.Reason,
	)
}

func (e UnsatisfiableError) Code() gpu.ErrorCode {
	return gpu.ErrorCodeUnsatisfiable
}

func newUnsatisfiable(d clusterspec.Demand, reason string) UnsatisfiableError {
	return UnsatisfiableError{
		DemandID: d.ID(),
		Demand:   d.String(),
		Reason:   reason,
	}
}
