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

//go:generate mockgen -destination=mock_inventory.go -package=sites github.com/carverauto/faultradar/pkg/sites Inventory

// Package sites reads the site/device inventory maintained by the dashboard.
package sites

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/carverauto/faultradar/pkg/models"
)

// Inventory lists the sites and their registered devices.
type Inventory interface {
	Sites(ctx context.Context) ([]models.Site, error)
}

// FileInventory reads sites from the dashboard's sites.json document.
type FileInventory struct {
	path string
}

var _ Inventory = (*FileInventory)(nil)

func NewFileInventory(path string) *FileInventory {
	return &FileInventory{path: path}
}

type sitesDocument struct {
	Sites json.RawMessage `json:"sites"`
}

// Sites returns every site. A missing file, or a document whose "sites" field
// is not an array, yields an empty inventory.
func (f *FileInventory) Sites(_ context.Context) ([]models.Site, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return []models.Site{}, nil
	}

	if err != nil {
		return nil, fmt.Errorf("%w: failed to read sites: %w", models.ErrStorageFailure, err)
	}

	var doc sitesDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: failed to parse sites: %w", models.ErrStorageFailure, err)
	}

	var sites []models.Site
	if err := json.Unmarshal(doc.Sites, &sites); err != nil || sites == nil {
		return []models.Site{}, nil
	}

	return sites, nil
}

// DeviceIDs returns the union of device ids across sites, de-duplicated, in
// inventory order. Devices without an id are skipped.
func DeviceIDs(sites []models.Site) []string {
	seen := make(map[string]struct{})
	ids := make([]string, 0)

	for _, site := range sites {
		ids = appendDevices(ids, seen, site)
	}

	return ids
}

// SiteDeviceIDs returns the device ids registered at siteID.
func SiteDeviceIDs(sites []models.Site, siteID string) ([]string, error) {
	for _, site := range sites {
		if site.ID != siteID {
			continue
		}

		return appendDevices(make([]string, 0, len(site.Devices)), make(map[string]struct{}), site), nil
	}

	return nil, fmt.Errorf("%w: site %q", models.ErrNotFound, siteID)
}

func appendDevices(ids []string, seen map[string]struct{}, site models.Site) []string {
	for _, device := range site.Devices {
		if device.ID == "" {
			continue
		}

		if _, dup := seen[device.ID]; dup {
			continue
		}

		seen[device.ID] = struct{}{}
		ids = append(ids, device.ID)
	}

	return ids
}
