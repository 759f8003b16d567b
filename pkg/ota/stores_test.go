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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/faultradar/pkg/kv"
	"github.com/carverauto/faultradar/pkg/models"
)

func newFileStore(t *testing.T) *kv.FileStore {
	t.Helper()

	store, err := kv.NewFileStore(t.TempDir())
	require.NoError(t, err)

	return store
}

func TestManifestStoreLoadEmpty(t *testing.T) {
	store := NewManifestStore(newFileStore(t))

	m, err := store.Load(context.Background(), "esp-7")
	require.NoError(t, err)
	assert.NotNil(t, m.Versions)
	assert.Empty(t, m.Versions)
	assert.Empty(t, m.Active)
}

func TestManifestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewManifestStore(newFileStore(t))

	m := models.NewManifest()
	m.Upsert(models.FirmwareEntry{
		Filename:    "fw.bin",
		Version:     "1.0.0",
		Size:        4,
		ContentHash: "abc",
		Signature:   "def",
		UploadedAt:  time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	})
	require.True(t, m.SetActive("fw.bin"))

	require.NoError(t, store.Save(ctx, "esp-7", m))

	loaded, err := store.Load(ctx, "esp-7")
	require.NoError(t, err)
	assert.Equal(t, m, loaded)
}

func TestManifestStoreNullVersions(t *testing.T) {
	ctx := context.Background()
	backend := newFileStore(t)

	require.NoError(t, backend.Put(ctx, manifestKeyPrefix+"esp-7", []byte(`{"versions":null}`)))

	m, err := NewManifestStore(backend).Load(ctx, "esp-7")
	require.NoError(t, err)
	assert.NotNil(t, m.Versions)
}

func TestManifestStoreErrors(t *testing.T) {
	ctx := context.Background()
	backend := &faultyStore{KVStore: newFileStore(t)}
	store := NewManifestStore(backend)

	require.NoError(t, backend.Put(ctx, manifestKeyPrefix+"bad", []byte("{")))

	_, err := store.Load(ctx, "bad")
	require.ErrorIs(t, err, models.ErrManifestCorrupt)

	backend.failGet = []string{manifestKeyPrefix}

	_, err = store.Load(ctx, "esp-7")
	require.ErrorIs(t, err, models.ErrStorageFailure)
	require.ErrorIs(t, err, errInjected)
}

func TestFlagStoreRaiseAndTake(t *testing.T) {
	ctx := context.Background()
	flags := NewFlagStore(newFileStore(t))
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, flags.Raise(ctx, nil, at))
	require.NoError(t, flags.Raise(ctx, []string{"a", "b"}, at))

	all, err := flags.All(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
	assert.True(t, all["a"].FlaggedAt.Equal(at))

	taken, err := flags.Take(ctx, "a")
	require.NoError(t, err)
	assert.True(t, taken)

	taken, err = flags.Take(ctx, "a")
	require.NoError(t, err)
	assert.False(t, taken)

	all, err = flags.All(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
	assert.Contains(t, all, "b")
}

func TestFlagStoreCorruptDocument(t *testing.T) {
	ctx := context.Background()
	backend := newFileStore(t)
	flags := NewFlagStore(backend)

	require.NoError(t, backend.Put(ctx, forceUpdatesKey, []byte("[]")))

	err := flags.Raise(ctx, []string{"a"}, time.Now())
	require.ErrorIs(t, err, models.ErrStorageFailure)

	raw, _, err := backend.Get(ctx, forceUpdatesKey)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(raw))
}

func TestHeartbeatStoreTouch(t *testing.T) {
	ctx := context.Background()
	store := NewHeartbeatStore(newFileStore(t))
	seen := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	replaced, err := store.Touch(ctx, "a", seen, models.HeartbeatReport{FirmwareVersion: "1.0.0"})
	require.NoError(t, err)
	assert.False(t, replaced)

	_, err = store.Touch(ctx, "b", seen, models.HeartbeatReport{})
	require.NoError(t, err)

	_, err = store.Touch(ctx, "a", seen.Add(time.Minute), models.HeartbeatReport{})
	require.NoError(t, err)

	records, err := store.All(ctx)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "1.0.0", records["a"].FirmwareVersion)
	assert.True(t, records["a"].LastSeen.Equal(seen.Add(time.Minute)))
}
