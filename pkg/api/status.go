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
	"net/http"
	"strings"
	"time"

	"github.com/carverauto/faultradar/pkg/models"
)

type otaStatusRequest struct {
	DeviceID     string `json:"deviceId"`
	EspID        string `json:"espId"`
	FeederNumber string `json:"feeder_number"`
	Version      string `json:"version"`
	Datetime     string `json:"datetime"`
	Status       string `json:"status"`
	Message      string `json:"message"`
}

type otaStatusResponse struct {
	Success bool              `json:"success"`
	Report  *models.OTAReport `json:"report"`
}

type otaReportsResponse struct {
	Reports []models.OTAReport `json:"reports"`
}

func (s *APIServer) postOTAStatus(w http.ResponseWriter, r *http.Request) {
	var req otaStatusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	report := models.OTAReport{
		DeviceID: firstNonEmpty(req.DeviceID, req.EspID, req.FeederNumber),
		Version:  req.Version,
		Datetime: req.Datetime,
		Status:   strings.TrimSpace(req.Status),
		Message:  req.Message,
	}

	stored, err := s.service.ReportOTA(r.Context(), report)
	if err != nil {
		s.writeServiceError(w, r, err, "Failed to record OTA status")
		return
	}

	s.writeJSON(w, http.StatusOK, otaStatusResponse{Success: true, Report: stored})
}

func (s *APIServer) getOTAStatus(w http.ResponseWriter, r *http.Request) {
	deviceID := queryDeviceID(r)
	if deviceID == "" {
		writeError(w, "deviceId is required", http.StatusBadRequest)
		return
	}

	reports, err := s.service.Reports(r.Context(), deviceID)
	if err != nil {
		s.writeServiceError(w, r, err, "Failed to read OTA status")
		return
	}

	s.writeJSON(w, http.StatusOK, otaReportsResponse{Reports: reports})
}

type heartbeatRequest struct {
	DeviceID        string `json:"deviceId"`
	EspID           string `json:"espId"`
	FirmwareVersion string `json:"firmwareVersion"`
	Timestamp       string `json:"timestamp"`
	RSSI            *int   `json:"rssi"`
	Uptime          *int64 `json:"uptime"`
	FreeHeap        *int64 `json:"freeHeap"`
}

type successResponse struct {
	Success bool `json:"success"`
}

type statusesResponse struct {
	Statuses  map[string]models.DeviceStatus `json:"statuses"`
	UpdatedAt time.Time                      `json:"updatedAt"`
}

func (s *APIServer) postHeartbeat(w http.ResponseWriter, r *http.Request) {
	var req heartbeatRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	deviceID := firstNonEmpty(req.DeviceID, req.EspID)
	if deviceID == "" {
		writeError(w, "deviceId is required", http.StatusBadRequest)
		return
	}

	report := models.HeartbeatReport{
		FirmwareVersion: req.FirmwareVersion,
		RSSI:            req.RSSI,
		Uptime:          req.Uptime,
		FreeHeap:        req.FreeHeap,
	}

	if ts := strings.TrimSpace(req.Timestamp); ts != "" {
		parsed, err := time.Parse(time.RFC3339, ts)
		if err != nil {
			writeError(w, "timestamp must be RFC 3339", http.StatusBadRequest)
			return
		}

		report.Timestamp = &parsed
	}

	if err := s.service.RecordHeartbeat(r.Context(), deviceID, report); err != nil {
		s.writeServiceError(w, r, err, "Failed to update heartbeat")
		return
	}

	s.writeJSON(w, http.StatusOK, successResponse{Success: true})
}

func (s *APIServer) getStatuses(w http.ResponseWriter, r *http.Request) {
	statuses, err := s.service.Statuses(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err, "Failed to load status")
		return
	}

	s.writeJSON(w, http.StatusOK, statusesResponse{Statuses: statuses, UpdatedAt: s.now().UTC()})
}
