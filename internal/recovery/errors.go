/*
 * Copyright 2025 Google LLC
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *    https://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */
package recovery

import (
	"fmt"
)

// ErrFetchFailed is reported when the value universe of a column could not be read.
type ErrFetchFailed struct {
	Ref ColumnRef
	Err error
}

func (e *ErrFetchFailed) Error() string {
	return fmt.Sprintf("fetching values of %s: %v", e.Ref.Key(), e.Err)
}

func (e *ErrFetchFailed) Unwrap() error {
	return e.Err
}
