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

package kv

import (
	"context"
	"fmt"
	"strings"
)

const (
	BackendFile = "file"
	BackendNATS = "nats"

	defaultBucket = "faultradar"
)

// Config selects and configures the storage backend.
type Config struct {
	Backend string `json:"backend"`
	NatsURL string `json:"nats_url,omitempty"`
	Bucket  string `json:"bucket,omitempty"`
}

// Validate checks the backend-specific requirements.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Backend) {
	case "", BackendFile:
		return nil
	case BackendNATS:
		if c.NatsURL == "" {
			return errNatsURLRequired
		}

		return nil
	default:
		return fmt.Errorf("%w: %q", errUnsupportedBackend, c.Backend)
	}
}

// New opens the configured backend. rootDir is used by the file backend.
func New(ctx context.Context, cfg Config, rootDir string) (KVStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch strings.ToLower(cfg.Backend) {
	case BackendNATS:
		bucket := cfg.Bucket
		if bucket == "" {
			bucket = defaultBucket
		}

		return NewNatsStore(ctx, cfg.NatsURL, bucket)
	default:
		return NewFileStore(rootDir)
	}
}
