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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entryAt(name string, minutes int) FirmwareEntry {
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	return FirmwareEntry{
		Filename:    name,
		ContentHash: "hash-" + name,
		Signature:   "sig-" + name,
		UploadedAt:  base.Add(time.Duration(minutes) * time.Minute),
	}
}

func TestManifestUpsertReplacesSameFilename(t *testing.T) {
	m := NewManifest()
	m.Upsert(entryAt("a.bin", 0))
	m.Upsert(entryAt("b.bin", 1))

	replacement := entryAt("a.bin", 2)
	replacement.Version = "1.1.0"
	m.Upsert(replacement)

	require.Len(t, m.Versions, 2)
	assert.Equal(t, "b.bin", m.Versions[0].Filename)
	assert.Equal(t, "a.bin", m.Versions[1].Filename)
	assert.Equal(t, "1.1.0", m.Versions[1].Version)
	assert.Empty(t, m.Active)
}

func TestManifestSetActive(t *testing.T) {
	m := NewManifest()
	m.Upsert(entryAt("a.bin", 0))

	assert.False(t, m.SetActive("missing.bin"))
	assert.Empty(t, m.Active)

	assert.True(t, m.SetActive("a.bin"))

	active, ok := m.ActiveEntry()
	require.True(t, ok)
	assert.Equal(t, "a.bin", active.Filename)
}

func TestManifestActiveEntryDangling(t *testing.T) {
	m := &Manifest{Versions: []FirmwareEntry{entryAt("a.bin", 0)}, Active: "gone.bin"}

	_, ok := m.ActiveEntry()
	assert.False(t, ok)

	_, ok = NewManifest().ActiveEntry()
	assert.False(t, ok)
}

func TestManifestRemoveReresolvesActive(t *testing.T) {
	m := NewManifest()
	m.Upsert(entryAt("old.bin", 0))
	m.Upsert(entryAt("newest.bin", 10))
	m.Upsert(entryAt("mid.bin", 5))
	require.True(t, m.SetActive("mid.bin"))

	removed, ok := m.Remove("mid.bin")
	require.True(t, ok)
	assert.Equal(t, "mid.bin", removed.Filename)
	assert.Equal(t, "newest.bin", m.Active)

	_, ok = m.Remove("old.bin")
	require.True(t, ok)
	assert.Equal(t, "newest.bin", m.Active)

	_, ok = m.Remove("newest.bin")
	require.True(t, ok)
	assert.Empty(t, m.Active)
	assert.Empty(t, m.Versions)

	_, ok = m.Remove("newest.bin")
	assert.False(t, ok)
}

func TestManifestPrevious(t *testing.T) {
	m := NewManifest()
	m.Upsert(entryAt("v1.bin", 0))
	m.Upsert(entryAt("v2.bin", 1))
	m.Upsert(entryAt("v3.bin", 2))

	_, ok := m.Previous()
	assert.False(t, ok, "nothing active")

	require.True(t, m.SetActive("v3.bin"))

	prev, ok := m.Previous()
	require.True(t, ok)
	assert.Equal(t, "v2.bin", prev.Filename)

	require.True(t, m.SetActive("v1.bin"))

	_, ok = m.Previous()
	assert.False(t, ok, "oldest entry has no predecessor")
}

func TestManifestPreviousSingleEntry(t *testing.T) {
	m := NewManifest()
	m.Upsert(entryAt("only.bin", 0))
	require.True(t, m.SetActive("only.bin"))

	_, ok := m.Previous()
	assert.False(t, ok)
}

func TestManifestByUploadTimeDescIsStable(t *testing.T) {
	m := NewManifest()
	m.Upsert(entryAt("first.bin", 0))
	m.Upsert(entryAt("second.bin", 0))
	m.Upsert(entryAt("later.bin", 3))

	sorted := m.ByUploadTimeDesc()
	require.Len(t, sorted, 3)
	assert.Equal(t, "later.bin", sorted[0].Filename)
	assert.Equal(t, "first.bin", sorted[1].Filename)
	assert.Equal(t, "second.bin", sorted[2].Filename)

	assert.Equal(t, "first.bin", m.Versions[0].Filename, "ledger order untouched")
}

func TestManifestCloneIsIndependent(t *testing.T) {
	m := NewManifest()
	m.Upsert(entryAt("a.bin", 0))
	require.True(t, m.SetActive("a.bin"))

	clone := m.Clone()
	clone.Upsert(entryAt("b.bin", 1))
	clone.Versions[0].Version = "changed"
	require.True(t, clone.SetActive("b.bin"))

	assert.Len(t, m.Versions, 1)
	assert.Empty(t, m.Versions[0].Version)
	assert.Equal(t, "a.bin", m.Active)
}

func TestCheckInResultJSON(t *testing.T) {
	data, err := json.Marshal(CheckInResult{Update: false, Version: "ignored"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"update":false}`, string(data))

	data, err = json.Marshal(&CheckInResult{
		Update:      true,
		Version:     "2.0.0",
		Filename:    "fw_v2.bin",
		ContentHash: "abc",
		Signature:   "def",
		URL:         "/api/firmware/latest?deviceId=esp-7",
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"update": true,
		"version": "2.0.0",
		"filename": "fw_v2.bin",
		"contentHash": "abc",
		"signature": "def",
		"releaseNotes": "",
		"forceUpdate": false,
		"url": "/api/firmware/latest?deviceId=esp-7"
	}`, string(data))

	var decoded CheckInResult
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.True(t, decoded.Update)
	assert.Equal(t, "fw_v2.bin", decoded.Filename)
}
