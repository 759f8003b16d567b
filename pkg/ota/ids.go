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

package ota

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/carverauto/faultradar/pkg/models"
)

const maxNameLength = 128

var namePattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// ValidateDeviceID checks that id is safe to use as a storage key and
// directory name.
func ValidateDeviceID(id string) error {
	return validateName("deviceId", id)
}

// ValidateFilename checks that name is a plain file name inside a device's
// blob directory.
func ValidateFilename(name string) error {
	return validateName("filename", name)
}

func validateName(field, value string) error {
	switch {
	case value == "":
		return fmt.Errorf("%w: %s is required", models.ErrInvalidInput, field)
	case len(value) > maxNameLength:
		return fmt.Errorf("%w: %s is longer than %d characters", models.ErrInvalidInput, field, maxNameLength)
	case !namePattern.MatchString(value), strings.HasPrefix(value, "."),
		strings.HasSuffix(value, "."), strings.Contains(value, ".."):
		return fmt.Errorf("%w: %s %q contains invalid characters", models.ErrInvalidInput, field, value)
	}

	return nil
}
