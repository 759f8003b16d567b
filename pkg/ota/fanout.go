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
	"bytes"
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/carverauto/faultradar/pkg/models"
	"github.com/carverauto/faultradar/pkg/sites"
)

// ResolveTargets expands a deployment target into device ids. A device id
// takes precedence over a site id, which takes precedence over all.
func (s *Service) ResolveTargets(ctx context.Context, target models.DeploymentTarget) ([]string, error) {
	if target.DeviceID != "" {
		if err := ValidateDeviceID(target.DeviceID); err != nil {
			return nil, err
		}

		return []string{target.DeviceID}, nil
	}

	if target.SiteID == "" && !target.All {
		return nil, fmt.Errorf("%w: deviceId, siteId, or all is required", models.ErrInvalidInput)
	}

	inventory, err := s.sites(ctx)
	if err != nil {
		return nil, err
	}

	if target.SiteID != "" {
		return sites.SiteDeviceIDs(inventory, target.SiteID)
	}

	return sites.DeviceIDs(inventory), nil
}

func (s *Service) sites(ctx context.Context) ([]models.Site, error) {
	if s.inventory == nil {
		return []models.Site{}, nil
	}

	inventory, err := s.inventory.Sites(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to read site inventory")

		return nil, err
	}

	return inventory, nil
}

// RaiseForce flags every device selected by target for a forced update and
// returns the flagged ids.
func (s *Service) RaiseForce(ctx context.Context, target models.DeploymentTarget) ([]string, error) {
	ids, err := s.ResolveTargets(ctx, target)
	if err != nil {
		return nil, err
	}

	if err := s.flags.Raise(ctx, ids, s.timestamp()); err != nil {
		return nil, err
	}

	s.recorder.ForceFlags(len(ids))
	s.logger.Info().
		Str("device_id", target.DeviceID).
		Str("site_id", target.SiteID).
		Bool("all", target.All).
		Int("count", len(ids)).
		Msg("Force-update flags raised")

	return ids, nil
}

// Flags returns every pending force-update flag.
func (s *Service) Flags(ctx context.Context) (map[string]models.ForceUpdateFlag, error) {
	return s.flags.All(ctx)
}

// UploadMany admits the same payload to every device selected by target.
// Each device is processed independently and reports its own outcome.
func (s *Service) UploadMany(
	ctx context.Context, target models.DeploymentTarget, filename string, payload []byte,
	opts models.UploadOptions) (map[string]models.BulkUploadOutcome, error) {
	if err := ValidateFilename(filename); err != nil {
		return nil, err
	}

	if len(payload) == 0 {
		return nil, fmt.Errorf("%w: firmware file is empty", models.ErrInvalidInput)
	}

	ids, err := s.ResolveTargets(ctx, target)
	if err != nil {
		return nil, err
	}

	var (
		mu       sync.Mutex
		outcomes = make(map[string]models.BulkUploadOutcome, len(ids))
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for _, id := range ids {
		id := id

		g.Go(func() error {
			var outcome models.BulkUploadOutcome

			result, err := s.Upload(gctx, id, filename, bytes.NewReader(payload), opts)
			if err != nil {
				outcome.Error = err.Error()
			} else {
				entry := result.Entry
				outcome.Entry = &entry
				outcome.Active = result.Active
				outcome.Downgrade = result.Downgrade
			}

			mu.Lock()
			outcomes[id] = outcome
			mu.Unlock()

			return nil
		})
	}

	_ = g.Wait()

	s.logger.Info().
		Str("site_id", target.SiteID).
		Bool("all", target.All).
		Str("filename", filename).
		Int("count", len(ids)).
		Msg("Bulk firmware upload finished")

	return outcomes, nil
}

// ManifestsForInventory returns the manifest of every inventory device.
func (s *Service) ManifestsForInventory(ctx context.Context) (map[string]*models.ManifestView, error) {
	inventory, err := s.sites(ctx)
	if err != nil {
		return nil, err
	}

	ids := sites.DeviceIDs(inventory)

	var (
		mu    sync.Mutex
		views = make(map[string]*models.ManifestView, len(ids))
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for _, id := range ids {
		if err := ValidateDeviceID(id); err != nil {
			s.logger.Warn().Err(err).Str("device_id", id).Msg("Skipping inventory device with unusable id")

			continue
		}

		id := id

		g.Go(func() error {
			view, err := s.Manifest(gctx, id)
			if err != nil {
				return fmt.Errorf("device %s: %w", id, err)
			}

			mu.Lock()
			views[id] = view
			mu.Unlock()

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return views, nil
}
