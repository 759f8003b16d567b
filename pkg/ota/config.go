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
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/carverauto/faultradar/pkg/kv"
	"github.com/carverauto/faultradar/pkg/logger"
	"github.com/carverauto/faultradar/pkg/models"
)

const (
	// SecretEnvVar supplies the signing secret when hmac_secret is not configured.
	SecretEnvVar = "FIRMWARE_HMAC_SECRET"

	defaultListenAddr        = ":3000"
	defaultDataDir           = "./data"
	defaultFirmwareDir       = "./firmware"
	defaultSitesFile         = "sites.json"
	defaultOnlineWindow      = 5 * time.Minute
	defaultMaxUploadBytes    = 16 << 20
	defaultFanoutConcurrency = 8
)

var (
	errInvalidMaxUpload   = errors.New("max_upload_bytes must be positive")
	errInvalidConcurrency = errors.New("fanout_concurrency must be positive")
	errInvalidWindow      = errors.New("online_window must be positive")
)

// Config is the service configuration.
type Config struct {
	ListenAddr           string            `json:"listen_addr"`
	DataDir              string            `json:"data_dir"`
	FirmwareDir          string            `json:"firmware_dir"`
	SitesFile            string            `json:"sites_file"`
	HMACSecret           string            `json:"hmac_secret"`
	LegacyLatestFallback bool              `json:"legacy_latest_fallback"`
	OnlineWindow         models.Duration   `json:"online_window"`
	MaxUploadBytes       int64             `json:"max_upload_bytes"`
	FanoutConcurrency    int               `json:"fanout_concurrency"`
	Storage              kv.Config         `json:"storage"`
	CORS                 models.CORSConfig `json:"cors"`
	Logging              *logger.Config    `json:"logging"`
}

// ApplyDefaults fills unset fields. The signing secret falls back to
// FIRMWARE_HMAC_SECRET.
func (c *Config) ApplyDefaults() {
	if c.ListenAddr == "" {
		c.ListenAddr = defaultListenAddr
	}

	if c.DataDir == "" {
		c.DataDir = defaultDataDir
	}

	if c.FirmwareDir == "" {
		c.FirmwareDir = defaultFirmwareDir
	}

	if c.SitesFile == "" {
		c.SitesFile = filepath.Join(c.DataDir, defaultSitesFile)
	}

	if strings.TrimSpace(c.HMACSecret) == "" {
		c.HMACSecret = os.Getenv(SecretEnvVar)
	}

	if c.OnlineWindow == 0 {
		c.OnlineWindow = models.Duration(defaultOnlineWindow)
	}

	if c.MaxUploadBytes == 0 {
		c.MaxUploadBytes = defaultMaxUploadBytes
	}

	if c.FanoutConcurrency == 0 {
		c.FanoutConcurrency = defaultFanoutConcurrency
	}

	if c.Storage.Backend == "" {
		c.Storage.Backend = kv.BackendFile
	}

	if c.Logging == nil {
		c.Logging = logger.DefaultConfig()
	}
}

// Validate rejects configurations the service cannot start with. A missing
// signing secret is fatal.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.HMACSecret) == "" {
		return fmt.Errorf("%w: set hmac_secret or %s", models.ErrMissingSecret, SecretEnvVar)
	}

	if c.MaxUploadBytes < 0 {
		return errInvalidMaxUpload
	}

	if c.FanoutConcurrency < 0 {
		return errInvalidConcurrency
	}

	if c.OnlineWindow < 0 {
		return errInvalidWindow
	}

	return c.Storage.Validate()
}
