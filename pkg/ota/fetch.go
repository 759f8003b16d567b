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

	"github.com/carverauto/faultradar/pkg/hashutil"
	"github.com/carverauto/faultradar/pkg/models"
)

// FetchActive returns the payload of the device's active entry after checking
// it against the recorded hash and signature. When legacy fallback is enabled
// and nothing is active, the most recently modified payload is returned
// without those checks. It holds the device lock so an in-flight upload is
// never observed between its manifest write and blob commit.
func (s *Service) FetchActive(ctx context.Context, deviceID string) (*models.FirmwareBlob, error) {
	if err := ValidateDeviceID(deviceID); err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(deviceID)
	defer unlock()

	manifest, err := s.manifests.Load(ctx, deviceID)
	if errors.Is(err, models.ErrManifestCorrupt) {
		s.logger.Error().Err(err).Str("device_id", deviceID).Msg("Manifest is corrupt, treating as empty")

		manifest = models.NewManifest()
	} else if err != nil {
		return nil, err
	}

	if active, ok := manifest.ActiveEntry(); ok {
		return s.readVerified(deviceID, *active)
	}

	if !s.legacyFallback {
		return nil, fmt.Errorf("%w: no active firmware for device %s", models.ErrNotFound, deviceID)
	}

	filename, err := s.blobs.Newest(deviceID)
	if err != nil {
		return nil, err
	}

	content, modTime, err := s.blobs.Read(deviceID, filename)
	if err != nil {
		return nil, err
	}

	s.logger.Warn().Str("device_id", deviceID).Str("filename", filename).
		Msg("Serving unsigned firmware by modification time")

	return &models.FirmwareBlob{
		Filename: filename,
		Size:     int64(len(content)),
		ModTime:  modTime,
		Content:  content,
	}, nil
}

func (s *Service) readVerified(deviceID string, entry models.FirmwareEntry) (*models.FirmwareBlob, error) {
	content, modTime, err := s.blobs.Read(deviceID, entry.Filename)
	if errors.Is(err, models.ErrNotFound) {
		s.logger.Error().Str("device_id", deviceID).Str("filename", entry.Filename).
			Msg("Active firmware payload is missing")

		return nil, fmt.Errorf("%w: active firmware payload %s is missing", models.ErrStorageFailure, entry.Filename)
	}

	if err != nil {
		return nil, err
	}

	if !hashutil.EqualSHA256(entry.ContentHash, content) {
		s.logger.Error().Str("device_id", deviceID).Str("filename", entry.Filename).
			Msg("Firmware payload does not match recorded content hash")

		return nil, fmt.Errorf("%w: content hash mismatch for %s", models.ErrStorageFailure, entry.Filename)
	}

	if !s.signer.Verify(entry.Version, entry.ContentHash, entry.Filename, entry.Signature) {
		s.logger.Error().Str("device_id", deviceID).Str("filename", entry.Filename).
			Msg("Firmware entry signature does not verify")

		return nil, fmt.Errorf("%w: signature mismatch for %s", models.ErrStorageFailure, entry.Filename)
	}

	return &models.FirmwareBlob{
		Filename: entry.Filename,
		Size:     int64(len(content)),
		ModTime:  modTime,
		Entry:    &entry,
		Content:  content,
	}, nil
}
