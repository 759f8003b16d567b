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

package models

import (
	"encoding/json"
	"sort"
	"time"
)

// FirmwareEntry is one uploaded firmware binary in a device manifest.
type FirmwareEntry struct {
	Filename     string    `json:"filename"`
	Version      string    `json:"version,omitempty"`
	Size         int64     `json:"size"`
	ContentHash  string    `json:"contentHash"`
	Signature    string    `json:"signature"`
	ReleaseNotes string    `json:"releaseNotes,omitempty"`
	UploadedAt   time.Time `json:"uploadedAt"`
}

// Manifest is the per-device ledger of firmware versions and the active pointer.
// Active is empty when no firmware is selected.
type Manifest struct {
	Versions []FirmwareEntry `json:"versions"`
	Active   string          `json:"active,omitempty"`
}

// NewManifest returns an empty manifest with a non-nil version list.
func NewManifest() *Manifest {
	return &Manifest{Versions: []FirmwareEntry{}}
}

// Find returns the entry stored under filename.
func (m *Manifest) Find(filename string) (*FirmwareEntry, bool) {
	for i := range m.Versions {
		if m.Versions[i].Filename == filename {
			return &m.Versions[i], true
		}
	}

	return nil, false
}

// ActiveEntry resolves the active pointer. It reports false when nothing is
// active or the pointer dangles.
func (m *Manifest) ActiveEntry() (*FirmwareEntry, bool) {
	if m.Active == "" || len(m.Versions) == 0 {
		return nil, false
	}

	return m.Find(m.Active)
}

// Upsert stores entry, replacing any entry with the same filename. The
// replaced entry is removed and the new one appended. Active is untouched.
func (m *Manifest) Upsert(entry FirmwareEntry) {
	kept := m.Versions[:0]

	for _, existing := range m.Versions {
		if existing.Filename != entry.Filename {
			kept = append(kept, existing)
		}
	}

	m.Versions = append(kept, entry)
}

// SetActive points the manifest at filename. It reports false when filename
// is not present.
func (m *Manifest) SetActive(filename string) bool {
	if _, ok := m.Find(filename); !ok {
		return false
	}

	m.Active = filename

	return true
}

// Remove deletes the entry for filename and re-resolves the active pointer to
// the most recently uploaded remaining entry when the removed one was active.
func (m *Manifest) Remove(filename string) (FirmwareEntry, bool) {
	idx := -1

	for i := range m.Versions {
		if m.Versions[i].Filename == filename {
			idx = i
			break
		}
	}

	if idx < 0 {
		return FirmwareEntry{}, false
	}

	removed := m.Versions[idx]
	m.Versions = append(m.Versions[:idx], m.Versions[idx+1:]...)

	if m.Active == filename {
		m.Active = ""

		if newest, ok := m.Newest(); ok {
			m.Active = newest.Filename
		}
	}

	return removed, true
}

// Newest returns the entry with the greatest UploadedAt.
func (m *Manifest) Newest() (FirmwareEntry, bool) {
	sorted := m.ByUploadTimeDesc()
	if len(sorted) == 0 {
		return FirmwareEntry{}, false
	}

	return sorted[0], true
}

// ByUploadTimeDesc returns a copy of the versions ordered newest first.
// Entries with equal upload times keep their ledger order.
func (m *Manifest) ByUploadTimeDesc() []FirmwareEntry {
	sorted := make([]FirmwareEntry, len(m.Versions))
	copy(sorted, m.Versions)

	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].UploadedAt.After(sorted[j].UploadedAt)
	})

	return sorted
}

// Previous returns the entry uploaded immediately before the active one.
func (m *Manifest) Previous() (FirmwareEntry, bool) {
	if m.Active == "" || len(m.Versions) < 2 {
		return FirmwareEntry{}, false
	}

	sorted := m.ByUploadTimeDesc()

	for i := range sorted {
		if sorted[i].Filename != m.Active {
			continue
		}

		if i+1 >= len(sorted) {
			return FirmwareEntry{}, false
		}

		return sorted[i+1], true
	}

	return FirmwareEntry{}, false
}

// Clone returns a deep copy of the manifest.
func (m *Manifest) Clone() *Manifest {
	out := &Manifest{
		Versions: make([]FirmwareEntry, len(m.Versions)),
		Active:   m.Active,
	}
	copy(out.Versions, m.Versions)

	return out
}

// ForceUpdateFlag is an administrator override for a single device.
type ForceUpdateFlag struct {
	FlaggedAt time.Time `json:"flaggedAt"`
}

// HeartbeatRecord is the liveness record shared with the status view.
type HeartbeatRecord struct {
	LastSeen        time.Time `json:"lastSeen"`
	FirmwareVersion string    `json:"firmwareVersion,omitempty"`
	RSSI            *int      `json:"rssi,omitempty"`
	Uptime          *int64    `json:"uptime,omitempty"`
	FreeHeap        *int64    `json:"freeHeap,omitempty"`
}

// UploadOptions carries the optional fields of an upload. Version defaults to
// unset and ReleaseNotes to empty.
type UploadOptions struct {
	Version      string
	ReleaseNotes string
}

// UploadResult is returned after a payload has been admitted and activated.
type UploadResult struct {
	Entry     FirmwareEntry `json:"entry"`
	Active    string        `json:"active"`
	Downgrade bool          `json:"downgrade,omitempty"`
}

// CheckInResult is the reply to a device poll. A reply without an update is
// encoded as {"update":false}; an update always carries every field.
type CheckInResult struct {
	Update       bool   `json:"update"`
	Version      string `json:"version,omitempty"`
	Filename     string `json:"filename,omitempty"`
	ContentHash  string `json:"contentHash,omitempty"`
	Signature    string `json:"signature,omitempty"`
	ReleaseNotes string `json:"releaseNotes,omitempty"`
	ForceUpdate  bool   `json:"forceUpdate,omitempty"`
	URL          string `json:"url,omitempty"`
}

type checkInUpdate struct {
	Update       bool   `json:"update"`
	Version      string `json:"version"`
	Filename     string `json:"filename"`
	ContentHash  string `json:"contentHash"`
	Signature    string `json:"signature"`
	ReleaseNotes string `json:"releaseNotes"`
	ForceUpdate  bool   `json:"forceUpdate"`
	URL          string `json:"url"`
}

// MarshalJSON implements json.Marshaler.
func (r CheckInResult) MarshalJSON() ([]byte, error) {
	if !r.Update {
		return []byte(`{"update":false}`), nil
	}

	return json.Marshal(checkInUpdate(r))
}

// RollbackResult names the entry that became active after a rollback.
type RollbackResult struct {
	Active  string `json:"active"`
	Version string `json:"version"`
}

// DeploymentTarget selects devices for a fan-out operation. Exactly one of
// the fields is expected to be set; DeviceID wins over SiteID over All.
type DeploymentTarget struct {
	DeviceID string `json:"deviceId,omitempty"`
	SiteID   string `json:"siteId,omitempty"`
	All      bool   `json:"all,omitempty"`
}

// FirmwareBlob is an open firmware payload ready to stream to a device.
// Entry is nil when the payload came from the legacy modification-time lookup.
type FirmwareBlob struct {
	Filename string
	Size     int64
	ModTime  time.Time
	Entry    *FirmwareEntry
	Content  []byte
}

// OTAReport is a device-submitted result of an update attempt.
type OTAReport struct {
	DeviceID   string    `json:"deviceId"`
	Version    string    `json:"version"`
	Datetime   string    `json:"datetime"`
	Status     string    `json:"status,omitempty"`
	Message    string    `json:"message,omitempty"`
	ReceivedAt time.Time `json:"receivedAt"`
}

// DeviceStatus is the presence view of one inventory device.
type DeviceStatus struct {
	Online          bool       `json:"online"`
	LastSeen        *time.Time `json:"lastSeen"`
	FirmwareVersion *string    `json:"firmwareVersion"`
	RSSI            *int       `json:"rssi"`
	Uptime          *int64     `json:"uptime"`
	FreeHeap        *int64     `json:"freeHeap"`
}

// ManifestView is the administrator listing of a manifest. Active is nil
// when nothing is selected and Corrupt reports a manifest that could not be
// decoded and is shown as empty.
type ManifestView struct {
	Versions []FirmwareEntry `json:"versions"`
	Active   *string         `json:"active"`
	Corrupt  bool            `json:"corrupt,omitempty"`
}

// NewManifestView renders m for listing.
func NewManifestView(m *Manifest) *ManifestView {
	view := &ManifestView{Versions: []FirmwareEntry{}}
	if m == nil {
		return view
	}

	view.Versions = append(view.Versions, m.Versions...)

	if m.Active != "" {
		active := m.Active
		view.Active = &active
	}

	return view
}

// BulkUploadOutcome is the per-device result of a fan-out upload.
type BulkUploadOutcome struct {
	Entry     *FirmwareEntry `json:"entry,omitempty"`
	Active    string         `json:"active,omitempty"`
	Downgrade bool           `json:"downgrade,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// HeartbeatReport is a liveness report posted by a device. Nil fields leave
// the stored values unchanged and a nil Timestamp means the time of receipt.
type HeartbeatReport struct {
	FirmwareVersion string
	Timestamp       *time.Time
	RSSI            *int
	Uptime          *int64
	FreeHeap        *int64
}
