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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/faultradar/pkg/kv"
	"github.com/carverauto/faultradar/pkg/models"
)

func TestConfigDefaults(t *testing.T) {
	t.Setenv(SecretEnvVar, "from-env")

	cfg := &Config{DataDir: "/var/lib/faultradar"}
	cfg.ApplyDefaults()

	assert.Equal(t, ":3000", cfg.ListenAddr)
	assert.Equal(t, "./firmware", cfg.FirmwareDir)
	assert.Equal(t, "/var/lib/faultradar/sites.json", cfg.SitesFile)
	assert.Equal(t, "from-env", cfg.HMACSecret)
	assert.Equal(t, models.Duration(5*time.Minute), cfg.OnlineWindow)
	assert.Equal(t, int64(16<<20), cfg.MaxUploadBytes)
	assert.Equal(t, 8, cfg.FanoutConcurrency)
	assert.Equal(t, kv.BackendFile, cfg.Storage.Backend)
	assert.False(t, cfg.LegacyLatestFallback)
	require.NotNil(t, cfg.Logging)
	require.NoError(t, cfg.Validate())
}

func TestConfigKeepsExplicitSecret(t *testing.T) {
	t.Setenv(SecretEnvVar, "from-env")

	cfg := &Config{HMACSecret: "configured"}
	cfg.ApplyDefaults()

	assert.Equal(t, "configured", cfg.HMACSecret)
}

func TestConfigRequiresSecret(t *testing.T) {
	t.Setenv(SecretEnvVar, "")

	cfg := &Config{HMACSecret: "   "}
	cfg.ApplyDefaults()

	require.ErrorIs(t, cfg.Validate(), models.ErrMissingSecret)
}

func TestConfigRejectsBadStorage(t *testing.T) {
	cfg := &Config{HMACSecret: "s", Storage: kv.Config{Backend: "nats"}}
	cfg.ApplyDefaults()

	require.Error(t, cfg.Validate())
}
