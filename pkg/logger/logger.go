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

// Package logger provides JSON structured logging using zerolog
package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// ResolveLevel returns the zerolog level selected by config. Debug wins over
// an explicit Level.
func ResolveLevel(config *Config) (zerolog.Level, error) {
	if config.Debug {
		return zerolog.DebugLevel, nil
	}

	if config.Level == "" {
		return zerolog.InfoLevel, nil
	}

	return zerolog.ParseLevel(config.Level)
}

// ResolveOutput maps the Output setting to a writer. Anything other than
// "stderr" writes to stdout.
func ResolveOutput(config *Config) io.Writer {
	if config.Output == "stderr" {
		return os.Stderr
	}

	return os.Stdout
}

// ResolveTimeFormat returns the configured timestamp layout or RFC3339.
func ResolveTimeFormat(config *Config) string {
	if config.TimeFormat != "" {
		return config.TimeFormat
	}

	return time.RFC3339
}
