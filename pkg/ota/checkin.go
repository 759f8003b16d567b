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
	"net/url"
	"strings"

	"github.com/carverauto/faultradar/pkg/metrics"
	"github.com/carverauto/faultradar/pkg/models"
)

// CheckIn records the device's heartbeat and decides whether it owes an
// update. Apart from an invalid device id, failures never reach the caller:
// they degrade to a "no update" reply.
func (s *Service) CheckIn(ctx context.Context, deviceID, currentVersion string) (*models.CheckInResult, error) {
	if err := ValidateDeviceID(deviceID); err != nil {
		return nil, err
	}

	currentVersion = strings.TrimSpace(currentVersion)
	noUpdate := &models.CheckInResult{Update: false}

	if err := s.touch(ctx, deviceID, models.HeartbeatReport{FirmwareVersion: currentVersion}); err != nil {
		s.logger.Warn().Err(err).Str("device_id", deviceID).Msg("Failed to record check-in heartbeat")
	}

	manifest, err := s.manifests.Load(ctx, deviceID)
	if err != nil {
		s.logger.Error().Err(err).Str("device_id", deviceID).Msg("Check-in could not load manifest")
		s.recorder.CheckIn(metrics.CheckInDegraded)

		return noUpdate, nil
	}

	active, ok := manifest.ActiveEntry()
	if !ok {
		if manifest.Active != "" {
			s.logger.Error().Str("device_id", deviceID).Str("filename", manifest.Active).
				Msg("Active firmware entry is missing from manifest")
		}

		s.recorder.CheckIn(metrics.CheckInUnprovisioned)

		return noUpdate, nil
	}

	versionChanged := currentVersion == "" || currentVersion != active.Version

	forced, err := s.flags.Take(ctx, deviceID)
	if err != nil {
		s.logger.Error().Err(err).Str("device_id", deviceID).Bool("flag_seen", forced).
			Msg("Failed to consume force-update flag")

		if !forced && !versionChanged {
			s.recorder.CheckIn(metrics.CheckInDegraded)

			return noUpdate, nil
		}
	}

	if !versionChanged && !forced {
		s.recorder.CheckIn(metrics.CheckInUpToDate)

		return noUpdate, nil
	}

	result := &models.CheckInResult{
		Update:       true,
		Version:      active.Version,
		Filename:     active.Filename,
		ContentHash:  active.ContentHash,
		Signature:    active.Signature,
		ReleaseNotes: active.ReleaseNotes,
		ForceUpdate:  forced,
		URL:          s.downloadPath + "?deviceId=" + url.QueryEscape(deviceID),
	}

	outcome := metrics.CheckInUpdate
	if forced {
		outcome = metrics.CheckInForced
	}

	s.recorder.CheckIn(outcome)
	s.logger.Info().
		Str("device_id", deviceID).
		Str("current_version", currentVersion).
		Str("version", active.Version).
		Str("filename", active.Filename).
		Bool("forced", forced).
		Msg("Update offered to device")

	return result, nil
}

// RecordHeartbeat stores a liveness report posted by a device.
func (s *Service) RecordHeartbeat(ctx context.Context, deviceID string, report models.HeartbeatReport) error {
	if err := ValidateDeviceID(deviceID); err != nil {
		return err
	}

	report.FirmwareVersion = strings.TrimSpace(report.FirmwareVersion)

	return s.touch(ctx, deviceID, report)
}

func (s *Service) touch(ctx context.Context, deviceID string, report models.HeartbeatReport) error {
	seen := s.timestamp()
	if report.Timestamp != nil {
		seen = report.Timestamp.UTC()
	}

	replaced, err := s.heartbeats.Touch(ctx, deviceID, seen, report)
	if replaced {
		s.logger.Warn().Str("device_id", deviceID).Msg("Heartbeat document was corrupt and has been replaced")
	}

	return err
}
