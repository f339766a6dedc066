/*
 * Copyright 2025 Harborwatch, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package adapters

import (
	"errors"
	"fmt"

	"github.com/harborwatch/harborwatch/pkg/models"
)

var (
	errUnknownIntegration = errors.New("no adapter registered for integration type")
	errUnsupportedEntity  = errors.New("entity kind not supported by integration")
)

// FetchError marks a provider fetch failure (authentication, rate-limit
// exhaustion, transport). It is fatal for the run that triggered it. The
// message never carries raw payloads or credentials.
type FetchError struct {
	Provider models.IntegrationType
	TenantID string
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch from %s failed for tenant %s: %v", e.Provider, e.TenantID, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// IsFetchError reports whether err is (or wraps) a FetchError.
func IsFetchError(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe)
}
