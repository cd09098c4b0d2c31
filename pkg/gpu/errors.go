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

package gpu

import "fmt"

// ErrorCode identifies a class of planner failure. Callers branch on the
// code rather than on error text, so codes are part of the public contract.
type ErrorCode string

const (
	ErrorCodeSpecInvalid   ErrorCode = "spec-invalid"
	ErrorCodeUnsatisfiable ErrorCode = "unsatisfiable"
	ErrorCodeStateLocked   ErrorCode = "state-locked"
	ErrorCodePersistence   ErrorCode = "persistence"
	ErrorCodeGeneric       ErrorCode = "generic"
)

var (
	SpecInvalidErr   = errorImpl{code: ErrorCodeSpecInvalid}
	UnsatisfiableErr = errorImpl{code: ErrorCodeUnsatisfiable}
	StateLockedErr   = errorImpl{code: ErrorCodeStateLocked}
	PersistenceErr   = errorImpl{code: ErrorCodePersistence}
	GenericErr       = errorImpl{code: ErrorCodeGeneric}
)

type Error interface {
	error
	Code() ErrorCode
}

type errorImpl struct {
	code ErrorCode
	err  error
}

func (e errorImpl) Error() string {
	// A bare sentinel has no wrapped error until Errorf fills it in.
	if e.err == nil {
		return fmt.Sprintf("[code: %s]", e.code)
	}
	return fmt.Sprintf("[code: %s  err: %s]", e.code, e.err.Error())
}

func (e errorImpl) Code() ErrorCode {
	return e.code
}

func (e errorImpl) Unwrap() error {
	return e.err
}

func (e errorImpl) Errorf(format string, args ...any) Error {
	e.err = fmt.Errorf(format, args...)
	return e
}

func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	gpuErr, ok := err.(Error)
	if !ok {
		return ErrorCodeGeneric
	}
	return gpuErr.Code()
}

func IsSpecInvalid(err error) bool {
	return CodeOf(err) == ErrorCodeSpecInvalid
}

func IsUnsatisfiable(err error) bool {
	return CodeOf(err) == ErrorCodeUnsatisfiable
}

func IsStateLocked(err error) bool {
	return CodeOf(err) == ErrorCodeStateLocked
}

func IsPersistence(err error) bool {
	return CodeOf(err) == ErrorCodePersistence
}

func NewGenericError(err error) Error {
	return errorImpl{
		err:  err,
		code: ErrorCodeGeneric,
	}
}
