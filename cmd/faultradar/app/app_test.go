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

package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/faultradar/pkg/kv"
	"github.com/carverauto/faultradar/pkg/logger"
	"github.com/carverauto/faultradar/pkg/ota"
)

func testConfig(t *testing.T) *ota.Config {
	t.Helper()

	dir := t.TempDir()
	cfg := &ota.Config{
		DataDir:     filepath.Join(dir, "data"),
		FirmwareDir: filepath.Join(dir, "firmware"),
		HMACSecret:  "test-secret",
		Storage:     kv.Config{Backend: kv.BackendFile},
	}
	cfg.ApplyDefaults()
	require.NoError(t, cfg.Validate())

	return cfg
}

func TestNewServerServesHealthAndMetrics(t *testing.T) {
	cfg := testConfig(t)

	server, closeFn, err := newServer(context.Background(), cfg, logger.NewTestLogger())
	require.NoError(t, err)
	t.Cleanup(closeFn)

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])

	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")

	_, err = os.Stat(cfg.FirmwareDir)
	require.NoError(t, err)
}

func TestNewServerRejectsUnknownBackend(t *testing.T) {
	cfg := testConfig(t)
	cfg.Storage.Backend = "etcd"

	_, _, err := newServer(context.Background(), cfg, logger.NewTestLogger())
	require.Error(t, err)
}

func TestRunFailsWithoutSecret(t *testing.T) {
	t.Setenv(ota.SecretEnvVar, "")
	t.Setenv("CONFIG_SOURCE", "")

	path := filepath.Join(t.TempDir(), "faultradar.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"listen_addr": "127.0.0.1:0"}`), 0o600))

	err := Run(context.Background(), Options{ConfigPath: path})
	require.Error(t, err)
}
