/*
 * Copyright 2025 Carver Automation Corporation.
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

package models

import "errors"

var (
	// ErrInvalidInput indicates a required field is missing or malformed.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotFound indicates a referenced device, site, or firmware file does not exist.
	ErrNotFound = errors.New("not found")
	// ErrNoPreviousVersion indicates a rollback has nothing older to fall back to.
	ErrNoPreviousVersion = errors.New("no previous version available for rollback")
	// ErrStorageFailure indicates a read or write of persisted state failed.
	ErrStorageFailure = errors.New("storage failure")
	// ErrManifestCorrupt indicates a persisted manifest could not be decoded.
	ErrManifestCorrupt = errors.New("manifest is corrupt")
	// ErrMissingSecret indicates the firmware signing secret is not configured.
	ErrMissingSecret = errors.New("firmware signing secret is not configured")
)
