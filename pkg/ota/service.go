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

// Package ota manages per-device firmware manifests, signed download
// descriptors, force-update flags, and device check-ins.
package ota

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/coreos/go-semver/semver"

	"github.com/carverauto/faultradar/pkg/kv"
	"github.com/carverauto/faultradar/pkg/logger"
	"github.com/carverauto/faultradar/pkg/metrics"
	"github.com/carverauto/faultradar/pkg/models"
	"github.com/carverauto/faultradar/pkg/sites"
)

const defaultDownloadPath = "/api/firmware/latest"

// Signer issues and checks firmware entry signatures.
type Signer interface {
	Sign(version, contentHash, filename string) (string, error)
	Verify(version, contentHash, filename, signature string) bool
}

// Service implements the firmware distribution operations.
type Service struct {
	manifests  *ManifestStore
	flags      *FlagStore
	heartbeats *HeartbeatStore
	reports    *ReportStore
	blobs      *BlobStore
	signer     Signer
	inventory  sites.Inventory
	recorder   metrics.Recorder
	logger     logger.Logger
	locks      *keyedMutex
	now        func() time.Time

	legacyFallback bool
	concurrency    int
	onlineWindow   time.Duration
	downloadPath   string
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(log logger.Logger) Option {
	return func(s *Service) {
		s.logger = log
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r metrics.Recorder) Option {
	return func(s *Service) {
		s.recorder = r
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithLegacyFallback enables serving the most recently modified payload when
// a device has no active manifest entry.
func WithLegacyFallback(enabled bool) Option {
	return func(s *Service) {
		s.legacyFallback = enabled
	}
}

// WithFanoutConcurrency bounds the number of devices processed at once by
// bulk operations.
func WithFanoutConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithOnlineWindow sets how recent a heartbeat must be for a device to count
// as online.
func WithOnlineWindow(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.onlineWindow = d
		}
	}
}

// WithDownloadPath sets the path advertised to devices for payload retrieval.
func WithDownloadPath(path string) Option {
	return func(s *Service) {
		s.downloadPath = path
	}
}

// NewService wires the stores over store and blobs.
func NewService(
	store kv.KVStore, blobs *BlobStore, signer Signer, inventory sites.Inventory, opts ...Option) (*Service, error) {
	if signer == nil {
		return nil, models.ErrMissingSecret
	}

	s := &Service{
		manifests:    NewManifestStore(store),
		flags:        NewFlagStore(store),
		heartbeats:   NewHeartbeatStore(store),
		reports:      NewReportStore(store),
		blobs:        blobs,
		signer:       signer,
		inventory:    inventory,
		recorder:     metrics.NopRecorder{},
		logger:       logger.NewTestLogger(),
		locks:        newKeyedMutex(),
		now:          time.Now,
		concurrency:  defaultFanoutConcurrency,
		onlineWindow: defaultOnlineWindow,
		downloadPath: defaultDownloadPath,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

func (s *Service) timestamp() time.Time {
	return s.now().UTC()
}

// Upload admits payload as filename for the device and makes it active.
func (s *Service) Upload(
	ctx context.Context, deviceID, filename string, payload io.Reader, opts models.UploadOptions) (*models.UploadResult, error) {
	if err := ValidateDeviceID(deviceID); err != nil {
		return nil, err
	}

	if err := ValidateFilename(filename); err != nil {
		return nil, err
	}

	if payload == nil {
		return nil, fmt.Errorf("%w: firmware file is required", models.ErrInvalidInput)
	}

	staged, err := s.blobs.Stage(deviceID, payload)
	if err != nil {
		return nil, err
	}

	version := strings.TrimSpace(opts.Version)

	signature, err := s.signer.Sign(version, staged.ContentHash, filename)
	if err != nil {
		s.blobs.Discard(staged)

		return nil, err
	}

	entry := models.FirmwareEntry{
		Filename:     filename,
		Version:      version,
		Size:         staged.Size,
		ContentHash:  staged.ContentHash,
		Signature:    signature,
		ReleaseNotes: opts.ReleaseNotes,
	}

	unlock := s.locks.Lock(deviceID)
	defer unlock()

	// Stamped under the device lock so upload order matches activation order.
	entry.UploadedAt = s.timestamp()

	manifest, err := s.manifests.Load(ctx, deviceID)
	if err != nil {
		s.blobs.Discard(staged)
		s.logger.Error().Err(err).Str("device_id", deviceID).Str("filename", filename).
			Msg("Refusing upload, manifest could not be loaded")

		return nil, err
	}

	previous := manifest.Clone()
	previousActive, hadActive := manifest.ActiveEntry()

	manifest.Upsert(entry)
	manifest.SetActive(filename)

	if err := s.manifests.Save(ctx, deviceID, manifest); err != nil {
		s.blobs.Discard(staged)

		return nil, err
	}

	if err := s.blobs.Commit(staged, deviceID, filename); err != nil {
		if restoreErr := s.manifests.Save(ctx, deviceID, previous); restoreErr != nil {
			s.logger.Error().Err(restoreErr).Str("device_id", deviceID).
				Msg("Failed to restore manifest after blob commit failure")
		}

		return nil, err
	}

	result := &models.UploadResult{Entry: entry, Active: manifest.Active}

	if hadActive && isDowngrade(version, previousActive.Version) {
		result.Downgrade = true

		s.logger.Warn().
			Str("device_id", deviceID).
			Str("version", version).
			Str("previous_version", previousActive.Version).
			Msg("Uploaded firmware is older than the previously active version")
	}

	s.recorder.Upload()
	s.logger.Info().
		Str("device_id", deviceID).
		Str("filename", filename).
		Str("version", version).
		Int64("size", entry.Size).
		Msg("Firmware uploaded and activated")

	return result, nil
}

// isDowngrade reports whether next is a lower semantic version than prev.
// Labels that are not semantic versions never count as a downgrade.
func isDowngrade(next, prev string) bool {
	nextVer, err := semver.NewVersion(strings.TrimPrefix(next, "v"))
	if err != nil {
		return false
	}

	prevVer, err := semver.NewVersion(strings.TrimPrefix(prev, "v"))
	if err != nil {
		return false
	}

	return nextVer.LessThan(*prevVer)
}

// Manifest returns the device's manifest for display. A corrupt manifest is
// shown as empty and flagged.
func (s *Service) Manifest(ctx context.Context, deviceID string) (*models.ManifestView, error) {
	if err := ValidateDeviceID(deviceID); err != nil {
		return nil, err
	}

	manifest, err := s.manifests.Load(ctx, deviceID)
	if errors.Is(err, models.ErrManifestCorrupt) {
		s.logger.Error().Err(err).Str("device_id", deviceID).Msg("Manifest is corrupt")

		view := models.NewManifestView(nil)
		view.Corrupt = true

		return view, nil
	}

	if err != nil {
		return nil, err
	}

	return models.NewManifestView(manifest), nil
}

// SetActive points the device at an existing manifest entry.
func (s *Service) SetActive(ctx context.Context, deviceID, filename string) (string, error) {
	if err := ValidateDeviceID(deviceID); err != nil {
		return "", err
	}

	if filename == "" {
		return "", fmt.Errorf("%w: active is required", models.ErrInvalidInput)
	}

	unlock := s.locks.Lock(deviceID)
	defer unlock()

	manifest, err := s.manifests.Load(ctx, deviceID)
	if err != nil {
		return "", err
	}

	if !manifest.SetActive(filename) {
		return "", fmt.Errorf("%w: firmware %s for device %s", models.ErrNotFound, filename, deviceID)
	}

	if err := s.manifests.Save(ctx, deviceID, manifest); err != nil {
		return "", err
	}

	s.logger.Info().Str("device_id", deviceID).Str("filename", filename).Msg("Active firmware changed")

	return manifest.Active, nil
}

// Delete removes an entry and its payload. Removing the active entry
// activates the most recently uploaded remaining one.
func (s *Service) Delete(ctx context.Context, deviceID, filename string) (*models.ManifestView, error) {
	if err := ValidateDeviceID(deviceID); err != nil {
		return nil, err
	}

	if filename == "" {
		return nil, fmt.Errorf("%w: filename is required", models.ErrInvalidInput)
	}

	unlock := s.locks.Lock(deviceID)
	defer unlock()

	manifest, err := s.manifests.Load(ctx, deviceID)
	if err != nil {
		return nil, err
	}

	if _, ok := manifest.Remove(filename); !ok {
		return nil, fmt.Errorf("%w: firmware %s for device %s", models.ErrNotFound, filename, deviceID)
	}

	if err := s.manifests.Save(ctx, deviceID, manifest); err != nil {
		return nil, err
	}

	if err := ValidateFilename(filename); err == nil {
		if err := s.blobs.Delete(deviceID, filename); err != nil {
			s.logger.Warn().Err(err).Str("device_id", deviceID).Str("filename", filename).
				Msg("Failed to delete firmware payload")
		}
	}

	s.logger.Info().
		Str("device_id", deviceID).
		Str("filename", filename).
		Str("active", manifest.Active).
		Msg("Firmware deleted")

	return models.NewManifestView(manifest), nil
}

// Rollback activates the entry uploaded immediately before the active one.
func (s *Service) Rollback(ctx context.Context, deviceID string) (*models.RollbackResult, error) {
	if err := ValidateDeviceID(deviceID); err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(deviceID)
	defer unlock()

	manifest, err := s.manifests.Load(ctx, deviceID)
	if err != nil {
		return nil, err
	}

	previous, ok := manifest.Previous()
	if !ok {
		return nil, fmt.Errorf("%w: device %s", models.ErrNoPreviousVersion, deviceID)
	}

	from := manifest.Active
	manifest.SetActive(previous.Filename)

	if err := s.manifests.Save(ctx, deviceID, manifest); err != nil {
		return nil, err
	}

	s.recorder.Rollback()
	s.logger.Info().
		Str("device_id", deviceID).
		Str("from", from).
		Str("filename", previous.Filename).
		Str("version", previous.Version).
		Msg("Firmware rolled back")

	return &models.RollbackResult{Active: previous.Filename, Version: previous.Version}, nil
}
