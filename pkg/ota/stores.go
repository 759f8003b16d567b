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
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/carverauto/faultradar/pkg/kv"
	"github.com/carverauto/faultradar/pkg/models"
)

const (
	manifestKeyPrefix  = "manifests/"
	forceUpdatesKey    = "force-updates"
	heartbeatKey       = "heartbeat"
	otaStatusKeyPrefix = "ota-status/"

	maxReportsPerDevice = 50
)

var errDocumentCorrupt = errors.New("document is corrupt")

// getJSON decodes the document stored under key into dst. It reports false
// when the key does not exist.
func getJSON(ctx context.Context, store kv.KVStore, key string, dst interface{}) (bool, error) {
	data, found, err := store.Get(ctx, key)
	if err != nil {
		return false, fmt.Errorf("%w: %w", models.ErrStorageFailure, err)
	}

	if !found {
		return false, nil
	}

	if err := json.Unmarshal(data, dst); err != nil {
		return true, fmt.Errorf("%w: %s: %w", errDocumentCorrupt, key, err)
	}

	return true, nil
}

func putJSON(ctx context.Context, store kv.KVStore, key string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: failed to encode %s: %w", models.ErrStorageFailure, key, err)
	}

	if err := store.Put(ctx, key, data); err != nil {
		return fmt.Errorf("%w: %w", models.ErrStorageFailure, err)
	}

	return nil
}

// ManifestStore persists one manifest document per device.
type ManifestStore struct {
	kv kv.KVStore
}

// NewManifestStore returns a manifest store over store.
func NewManifestStore(store kv.KVStore) *ManifestStore {
	return &ManifestStore{kv: store}
}

// Load returns the device's manifest, or an empty one when none is stored.
// A document that does not decode yields ErrManifestCorrupt.
func (m *ManifestStore) Load(ctx context.Context, deviceID string) (*models.Manifest, error) {
	manifest := models.NewManifest()

	_, err := getJSON(ctx, m.kv, manifestKeyPrefix+deviceID, manifest)
	if errors.Is(err, errDocumentCorrupt) {
		return nil, fmt.Errorf("%w: %w", models.ErrManifestCorrupt, err)
	}

	if err != nil {
		return nil, err
	}

	if manifest.Versions == nil {
		manifest.Versions = []models.FirmwareEntry{}
	}

	return manifest, nil
}

// Save replaces the device's manifest document.
func (m *ManifestStore) Save(ctx context.Context, deviceID string, manifest *models.Manifest) error {
	return putJSON(ctx, m.kv, manifestKeyPrefix+deviceID, manifest)
}

// FlagStore holds the process-wide force-update flag document.
type FlagStore struct {
	kv kv.KVStore
	mu sync.Mutex
}

// NewFlagStore returns a flag store over store.
func NewFlagStore(store kv.KVStore) *FlagStore {
	return &FlagStore{kv: store}
}

func (f *FlagStore) load(ctx context.Context) (map[string]models.ForceUpdateFlag, error) {
	flags := make(map[string]models.ForceUpdateFlag)

	if _, err := getJSON(ctx, f.kv, forceUpdatesKey, &flags); err != nil {
		if errors.Is(err, errDocumentCorrupt) {
			return nil, fmt.Errorf("%w: %w", models.ErrStorageFailure, err)
		}

		return nil, err
	}

	if flags == nil {
		flags = make(map[string]models.ForceUpdateFlag)
	}

	return flags, nil
}

// All returns every raised flag.
func (f *FlagStore) All(ctx context.Context) (map[string]models.ForceUpdateFlag, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.load(ctx)
}

// Raise sets a flag stamped at for each device. Raising an existing flag
// resets its timestamp.
func (f *FlagStore) Raise(ctx context.Context, deviceIDs []string, at time.Time) error {
	if len(deviceIDs) == 0 {
		return nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	flags, err := f.load(ctx)
	if err != nil {
		return err
	}

	for _, id := range deviceIDs {
		flags[id] = models.ForceUpdateFlag{FlaggedAt: at}
	}

	return putJSON(ctx, f.kv, forceUpdatesKey, flags)
}

// Take removes the device's flag and reports whether one was set. When the
// flag was present but could not be removed, Take reports true together with
// the error.
func (f *FlagStore) Take(ctx context.Context, deviceID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	flags, err := f.load(ctx)
	if err != nil {
		return false, err
	}

	if _, ok := flags[deviceID]; !ok {
		return false, nil
	}

	delete(flags, deviceID)

	return true, putJSON(ctx, f.kv, forceUpdatesKey, flags)
}

// HeartbeatStore maintains the shared liveness document keyed by device id.
type HeartbeatStore struct {
	kv kv.KVStore
	mu sync.Mutex
}

// NewHeartbeatStore returns a heartbeat store over store.
func NewHeartbeatStore(store kv.KVStore) *HeartbeatStore {
	return &HeartbeatStore{kv: store}
}

// All returns every heartbeat record. A corrupt document yields
// errDocumentCorrupt together with an empty map.
func (h *HeartbeatStore) All(ctx context.Context) (map[string]models.HeartbeatRecord, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.load(ctx)
}

func (h *HeartbeatStore) load(ctx context.Context) (map[string]models.HeartbeatRecord, error) {
	records := make(map[string]models.HeartbeatRecord)

	_, err := getJSON(ctx, h.kv, heartbeatKey, &records)
	if errors.Is(err, errDocumentCorrupt) {
		return make(map[string]models.HeartbeatRecord), err
	}

	if err != nil {
		return nil, err
	}

	if records == nil {
		records = make(map[string]models.HeartbeatRecord)
	}

	return records, nil
}

// Touch merges report into the device's record. An empty firmware version or
// a nil metric keeps the previously stored value. A corrupt document is
// replaced and reported through the returned bool.
func (h *HeartbeatStore) Touch(
	ctx context.Context, deviceID string, seen time.Time, report models.HeartbeatReport) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	records, err := h.load(ctx)
	replaced := errors.Is(err, errDocumentCorrupt)

	if err != nil && !replaced {
		return false, err
	}

	record := records[deviceID]
	record.LastSeen = seen

	if report.FirmwareVersion != "" {
		record.FirmwareVersion = report.FirmwareVersion
	}

	if report.RSSI != nil {
		record.RSSI = report.RSSI
	}

	if report.Uptime != nil {
		record.Uptime = report.Uptime
	}

	if report.FreeHeap != nil {
		record.FreeHeap = report.FreeHeap
	}

	records[deviceID] = record

	return replaced, putJSON(ctx, h.kv, heartbeatKey, records)
}

// ReportStore keeps a bounded OTA result history per device.
type ReportStore struct {
	kv    kv.KVStore
	locks *keyedMutex
}

// NewReportStore returns a report store over store.
func NewReportStore(store kv.KVStore) *ReportStore {
	return &ReportStore{kv: store, locks: newKeyedMutex()}
}

// List returns the device's reports, oldest first.
func (r *ReportStore) List(ctx context.Context, deviceID string) ([]models.OTAReport, error) {
	unlock := r.locks.Lock(deviceID)
	defer unlock()

	return r.load(ctx, deviceID)
}

func (r *ReportStore) load(ctx context.Context, deviceID string) ([]models.OTAReport, error) {
	var reports []models.OTAReport

	if _, err := getJSON(ctx, r.kv, otaStatusKeyPrefix+deviceID, &reports); err != nil {
		if errors.Is(err, errDocumentCorrupt) {
			return nil, fmt.Errorf("%w: %w", models.ErrStorageFailure, err)
		}

		return nil, err
	}

	if reports == nil {
		reports = []models.OTAReport{}
	}

	return reports, nil
}

// Append adds report to the device's history, dropping the oldest entries
// beyond the retention limit.
func (r *ReportStore) Append(ctx context.Context, report models.OTAReport) error {
	unlock := r.locks.Lock(report.DeviceID)
	defer unlock()

	reports, err := r.load(ctx, report.DeviceID)
	if err != nil {
		return err
	}

	reports = append(reports, report)
	if len(reports) > maxReportsPerDevice {
		reports = reports[len(reports)-maxReportsPerDevice:]
	}

	return putJSON(ctx, r.kv, otaStatusKeyPrefix+report.DeviceID, reports)
}
