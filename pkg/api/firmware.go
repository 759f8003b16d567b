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
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/carverauto/faultradar/pkg/models"
)

const multipartMemoryBytes = 4 << 20

func (s *APIServer) checkIn(w http.ResponseWriter, r *http.Request) {
	deviceID := queryDeviceID(r)
	if deviceID == "" {
		writeError(w, "deviceId is required", http.StatusBadRequest)
		return
	}

	result, err := s.service.CheckIn(r.Context(), deviceID, r.URL.Query().Get("currentVersion"))
	if err != nil {
		s.writeServiceError(w, r, err, "Failed to check for firmware update")
		return
	}

	s.writeJSON(w, http.StatusOK, result)
}

func (s *APIServer) downloadLatest(w http.ResponseWriter, r *http.Request) {
	deviceID := queryDeviceID(r)
	if deviceID == "" {
		writeError(w, "deviceId is required", http.StatusBadRequest)
		return
	}

	blob, err := s.service.FetchActive(r.Context(), deviceID)
	if err != nil {
		s.writeServiceError(w, r, err, "Failed to read firmware")
		return
	}

	h := w.Header()
	h.Set("Content-Type", "application/octet-stream")
	h.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", blob.Filename))
	h.Set("Content-Length", strconv.FormatInt(blob.Size, 10))
	h.Set("Cache-Control", "no-cache, no-store, no-transform")
	h.Set("Pragma", "no-cache")
	h.Set("X-Firmware-Filename", blob.Filename)

	if blob.Entry != nil {
		h.Set("X-Firmware-SHA256", blob.Entry.ContentHash)
		h.Set("X-Firmware-Signature", blob.Entry.Signature)
		h.Set("X-Firmware-Version", blob.Entry.Version)
	}

	w.WriteHeader(http.StatusOK)

	if _, err := w.Write(blob.Content); err != nil {
		s.logger.Warn().Err(err).Str("device_id", deviceID).Str("filename", blob.Filename).
			Msg("Firmware download interrupted")
	}
}

type bulkUploadResponse struct {
	Results map[string]models.BulkUploadOutcome `json:"results"`
}

// uploadFirmware accepts a multipart form with the payload in "file" and the
// target in deviceId, siteId, or all.
func (s *APIServer) uploadFirmware(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)

	if err := r.ParseMultipartForm(multipartMemoryBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, fmt.Sprintf("upload exceeds %d bytes", s.maxUploadBytes), http.StatusRequestEntityTooLarge)
			return
		}

		writeError(w, "invalid multipart form", http.StatusBadRequest)

		return
	}

	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, "file is required", http.StatusBadRequest)
		return
	}
	defer func() { _ = file.Close() }()

	filename := uploadedFilename(header.Filename)
	opts := models.UploadOptions{
		Version:      r.FormValue("version"),
		ReleaseNotes: r.FormValue("releaseNotes"),
	}

	if deviceID := firstNonEmpty(r.FormValue("deviceId"), r.FormValue("espId")); deviceID != "" {
		result, err := s.service.Upload(r.Context(), deviceID, filename, file, opts)
		if err != nil {
			s.writeServiceError(w, r, err, "Failed to upload firmware")
			return
		}

		s.writeJSON(w, http.StatusOK, result)

		return
	}

	all, _ := strconv.ParseBool(r.FormValue("all"))
	target := models.DeploymentTarget{SiteID: strings.TrimSpace(r.FormValue("siteId")), All: all}

	if target.SiteID == "" && !target.All {
		writeError(w, "deviceId, siteId, or all is required", http.StatusBadRequest)
		return
	}

	payload, err := io.ReadAll(file)
	if err != nil {
		writeError(w, "failed to read uploaded file", http.StatusBadRequest)
		return
	}

	results, err := s.service.UploadMany(r.Context(), target, filename, payload, opts)
	if err != nil {
		s.writeServiceError(w, r, err, "Failed to upload firmware")
		return
	}

	s.writeJSON(w, http.StatusOK, bulkUploadResponse{Results: results})
}

// uploadedFilename strips any client-side directory from a multipart file name.
func uploadedFilename(name string) string {
	name = strings.TrimSpace(strings.ReplaceAll(name, "\\", "/"))
	if name == "" {
		return ""
	}

	return path.Base(name)
}

func (s *APIServer) listFirmware(w http.ResponseWriter, r *http.Request) {
	if deviceID := queryDeviceID(r); deviceID != "" {
		view, err := s.service.Manifest(r.Context(), deviceID)
		if err != nil {
			s.writeServiceError(w, r, err, "Failed to read firmware manifest")
			return
		}

		s.writeJSON(w, http.StatusOK, view)

		return
	}

	views, err := s.service.ManifestsForInventory(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err, "Failed to read firmware manifests")
		return
	}

	s.writeJSON(w, http.StatusOK, views)
}

type setActiveRequest struct {
	DeviceID string `json:"deviceId"`
	EspID    string `json:"espId"`
	Active   string `json:"active"`
}

type setActiveResponse struct {
	Active string `json:"active"`
}

func (s *APIServer) setActiveFirmware(w http.ResponseWriter, r *http.Request) {
	var req setActiveRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	deviceID := firstNonEmpty(req.DeviceID, req.EspID)
	if deviceID == "" || strings.TrimSpace(req.Active) == "" {
		writeError(w, "deviceId and active are required", http.StatusBadRequest)
		return
	}

	active, err := s.service.SetActive(r.Context(), deviceID, strings.TrimSpace(req.Active))
	if err != nil {
		s.writeServiceError(w, r, err, "Failed to set active firmware")
		return
	}

	s.writeJSON(w, http.StatusOK, setActiveResponse{Active: active})
}

type deleteRequest struct {
	DeviceID string `json:"deviceId"`
	EspID    string `json:"espId"`
	Filename string `json:"filename"`
}

// deleteFirmware reads the target from a JSON body, or from the query string
// when the body is empty.
func (s *APIServer) deleteFirmware(w http.ResponseWriter, r *http.Request) {
	var req deleteRequest

	if r.ContentLength != 0 && r.Body != nil && r.Body != http.NoBody {
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	deviceID := firstNonEmpty(req.DeviceID, req.EspID, queryDeviceID(r))
	filename := firstNonEmpty(req.Filename, r.URL.Query().Get("filename"))

	if deviceID == "" || filename == "" {
		writeError(w, "deviceId and filename are required", http.StatusBadRequest)
		return
	}

	view, err := s.service.Delete(r.Context(), deviceID, filename)
	if err != nil {
		s.writeServiceError(w, r, err, "Failed to delete firmware")
		return
	}

	s.writeJSON(w, http.StatusOK, view)
}

type deviceRequest struct {
	DeviceID string `json:"deviceId"`
	EspID    string `json:"espId"`
}

func (s *APIServer) rollbackFirmware(w http.ResponseWriter, r *http.Request) {
	var req deviceRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	deviceID := firstNonEmpty(req.DeviceID, req.EspID)
	if deviceID == "" {
		writeError(w, "deviceId is required", http.StatusBadRequest)
		return
	}

	result, err := s.service.Rollback(r.Context(), deviceID)
	if err != nil {
		s.writeServiceError(w, r, err, "Failed to roll back firmware")
		return
	}

	s.writeJSON(w, http.StatusOK, result)
}

type forceRequest struct {
	DeviceID string `json:"deviceId"`
	EspID    string `json:"espId"`
	SiteID   string `json:"siteId"`
	All      bool   `json:"all"`
}

type forceResponse struct {
	Flagged []string `json:"flagged"`
}

type flagsResponse struct {
	Flags map[string]models.ForceUpdateFlag `json:"flags"`
}

func (s *APIServer) raiseForceUpdate(w http.ResponseWriter, r *http.Request) {
	var req forceRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	target := models.DeploymentTarget{
		DeviceID: firstNonEmpty(req.DeviceID, req.EspID),
		SiteID:   strings.TrimSpace(req.SiteID),
		All:      req.All,
	}

	flagged, err := s.service.RaiseForce(r.Context(), target)
	if err != nil {
		s.writeServiceError(w, r, err, "Failed to raise force-update flags")
		return
	}

	s.writeJSON(w, http.StatusOK, forceResponse{Flagged: flagged})
}

func (s *APIServer) listForceUpdates(w http.ResponseWriter, r *http.Request) {
	flags, err := s.service.Flags(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err, "Failed to read force-update flags")
		return
	}

	s.writeJSON(w, http.StatusOK, flagsResponse{Flags: flags})
}
