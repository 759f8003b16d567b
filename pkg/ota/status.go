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
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/carverauto/faultradar/pkg/models"
	"github.com/carverauto/faultradar/pkg/sites"
)

// Statuses reports presence for every inventory device.
func (s *Service) Statuses(ctx context.Context) (map[string]models.DeviceStatus, error) {
	inventory, err := s.sites(ctx)
	if err != nil {
		return nil, err
	}

	records, err := s.heartbeats.All(ctx)
	if errors.Is(err, errDocumentCorrupt) {
		s.logger.Error().Err(err).Msg("Heartbeat document is corrupt, reporting all devices offline")
	} else if err != nil {
		return nil, err
	}

	now := s.timestamp()
	statuses := make(map[string]models.DeviceStatus)

	for _, id := range sites.DeviceIDs(inventory) {
		status := models.DeviceStatus{}

		if record, ok := records[id]; ok && !record.LastSeen.IsZero() {
			lastSeen := record.LastSeen
			status.LastSeen = &lastSeen
			status.Online = now.Sub(lastSeen) <= s.onlineWindow
			status.RSSI = record.RSSI
			status.Uptime = record.Uptime
			status.FreeHeap = record.FreeHeap

			if record.FirmwareVersion != "" {
				version := record.FirmwareVersion
				status.FirmwareVersion = &version
			}
		}

		statuses[id] = status
	}

	return statuses, nil
}

// ReportOTA appends a device-submitted update result to its history.
func (s *Service) ReportOTA(ctx context.Context, report models.OTAReport) (*models.OTAReport, error) {
	if err := ValidateDeviceID(report.DeviceID); err != nil {
		return nil, err
	}

	report.Version = strings.TrimSpace(report.Version)
	report.Datetime = strings.TrimSpace(report.Datetime)

	if report.Version == "" || report.Datetime == "" {
		return nil, fmt.Errorf("%w: datetime and version are required", models.ErrInvalidInput)
	}

	report.ReceivedAt = s.timestamp()

	if err := s.reports.Append(ctx, report); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("device_id", report.DeviceID).
		Str("version", report.Version).
		Str("status", report.Status).
		Msg("OTA status reported")

	return &report, nil
}

// Reports returns the device's OTA history, oldest first.
func (s *Service) Reports(ctx context.Context, deviceID string) ([]models.OTAReport, error) {
	if err := ValidateDeviceID(deviceID); err != nil {
		return nil, err
	}

	return s.reports.List(ctx, deviceID)
}
