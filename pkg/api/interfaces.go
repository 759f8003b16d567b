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

package api

import (
	"context"
	"io"

	"github.com/carverauto/faultradar/pkg/models"
)

// FirmwareService is the firmware distribution backend served by the API.
type FirmwareService interface {
	CheckIn(ctx context.Context, deviceID, currentVersion string) (*models.CheckInResult, error)
	FetchActive(ctx context.Context, deviceID string) (*models.FirmwareBlob, error)

	Upload(ctx context.Context, deviceID, filename string, payload io.Reader,
		opts models.UploadOptions) (*models.UploadResult, error)
	UploadMany(ctx context.Context, target models.DeploymentTarget, filename string, payload []byte,
		opts models.UploadOptions) (map[string]models.BulkUploadOutcome, error)
	Manifest(ctx context.Context, deviceID string) (*models.ManifestView, error)
	ManifestsForInventory(ctx context.Context) (map[string]*models.ManifestView, error)
	SetActive(ctx context.Context, deviceID, filename string) (string, error)
	Delete(ctx context.Context, deviceID, filename string) (*models.ManifestView, error)
	Rollback(ctx context.Context, deviceID string) (*models.RollbackResult, error)

	RaiseForce(ctx context.Context, target models.DeploymentTarget) ([]string, error)
	Flags(ctx context.Context) (map[string]models.ForceUpdateFlag, error)

	ReportOTA(ctx context.Context, report models.OTAReport) (*models.OTAReport, error)
	Reports(ctx context.Context, deviceID string) ([]models.OTAReport, error)
	RecordHeartbeat(ctx context.Context, deviceID string, report models.HeartbeatReport) error
	Statuses(ctx context.Context) (map[string]models.DeviceStatus, error)
}
