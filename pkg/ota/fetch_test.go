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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/faultradar/pkg/hashutil"
	"github.com/carverauto/faultradar/pkg/models"
)

func TestFetchActiveReturnsVerifiedPayload(t *testing.T) {
	env := newTestEnv(t, nil)

	env.upload(t, "esp-7", "fw_v1.bin", "1.0.0", "one")
	uploaded := env.upload(t, "esp-7", "fw_v2.bin", "2.0.0", "two")

	blob, err := env.svc.FetchActive(context.Background(), "esp-7")
	require.NoError(t, err)

	assert.Equal(t, "fw_v2.bin", blob.Filename)
	assert.Equal(t, []byte("two"), blob.Content)
	assert.Equal(t, int64(3), blob.Size)
	require.NotNil(t, blob.Entry)
	assert.Equal(t, uploaded.Entry.ContentHash, blob.Entry.ContentHash)
	assert.Equal(t, "2.0.0", blob.Entry.Version)
}

func TestFetchActiveFollowsRollback(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	env.upload(t, "esp-7", "fw_v1.bin", "1.0.0", "one")
	env.upload(t, "esp-7", "fw_v2.bin", "2.0.0", "two")

	_, err := env.svc.Rollback(ctx, "esp-7")
	require.NoError(t, err)

	blob, err := env.svc.FetchActive(ctx, "esp-7")
	require.NoError(t, err)
	assert.Equal(t, "fw_v1.bin", blob.Filename)
	assert.Equal(t, []byte("one"), blob.Content)
}

func TestFetchActiveRejectsTamperedPayload(t *testing.T) {
	env := newTestEnv(t, nil)

	env.upload(t, "esp-7", "fw.bin", "1.0.0", "original")
	require.NoError(t, os.WriteFile(filepath.Join(env.blobRoot, "esp-7", "fw.bin"), []byte("tampered"), 0o600))

	_, err := env.svc.FetchActive(context.Background(), "esp-7")
	require.ErrorIs(t, err, models.ErrStorageFailure)
}

func TestFetchActiveRejectsForgedSignature(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	env.upload(t, "esp-7", "fw.bin", "1.0.0", "original")

	m := env.manifest(t, "esp-7")
	m.Versions[0].Version = "9.9.9"
	require.NoError(t, env.svc.manifests.Save(ctx, "esp-7", m))

	_, err := env.svc.FetchActive(ctx, "esp-7")
	require.ErrorIs(t, err, models.ErrStorageFailure)
}

func TestFetchActiveMissingPayload(t *testing.T) {
	env := newTestEnv(t, nil)

	env.upload(t, "esp-7", "fw.bin", "1.0.0", "original")
	require.NoError(t, os.Remove(filepath.Join(env.blobRoot, "esp-7", "fw.bin")))

	_, err := env.svc.FetchActive(context.Background(), "esp-7")
	require.ErrorIs(t, err, models.ErrStorageFailure)
}

func TestFetchActiveWithoutFirmware(t *testing.T) {
	env := newTestEnv(t, nil)

	_, err := env.svc.FetchActive(context.Background(), "esp-7")
	require.ErrorIs(t, err, models.ErrNotFound)
}

func TestFetchActiveLegacyFallback(t *testing.T) {
	dir := func(env *testEnv) string { return filepath.Join(env.blobRoot, "esp-7") }

	t.Run("disabled", func(t *testing.T) {
		env := newTestEnv(t, nil)
		require.NoError(t, os.MkdirAll(dir(env), 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(dir(env), "manual.bin"), []byte("manual"), 0o600))

		_, err := env.svc.FetchActive(context.Background(), "esp-7")
		require.ErrorIs(t, err, models.ErrNotFound)
	})

	t.Run("enabled", func(t *testing.T) {
		env := newTestEnv(t, nil, WithLegacyFallback(true))
		require.NoError(t, os.MkdirAll(dir(env), 0o755))

		base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
		files := map[string]time.Time{
			"older.bin":        base,
			"newer.bin":        base.Add(time.Hour),
			".upload-leftover": base.Add(2 * time.Hour),
		}

		for name, mtime := range files {
			path := filepath.Join(dir(env), name)
			require.NoError(t, os.WriteFile(path, []byte(name), 0o600))
			require.NoError(t, os.Chtimes(path, mtime, mtime))
		}

		blob, err := env.svc.FetchActive(context.Background(), "esp-7")
		require.NoError(t, err)
		assert.Equal(t, "newer.bin", blob.Filename)
		assert.Nil(t, blob.Entry)
		assert.Equal(t, []byte("newer.bin"), blob.Content)
	})

	t.Run("enabled without files", func(t *testing.T) {
		env := newTestEnv(t, nil, WithLegacyFallback(true))

		_, err := env.svc.FetchActive(context.Background(), "esp-7")
		require.ErrorIs(t, err, models.ErrNotFound)
	})
}

func TestFetchActiveWaitsForInFlightUpload(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	env.upload(t, "esp-7", "fw.bin", "1.0.0", "old")

	unlock := env.svc.locks.Lock("esp-7")

	// Replay an upload's manifest write without its blob commit.
	m := env.manifest(t, "esp-7")
	entry := m.Versions[0]
	entry.ContentHash = hashutil.SumSHA256([]byte("new"))
	entry.Signature, _ = env.authority.Sign(entry.Version, entry.ContentHash, entry.Filename)
	m.Upsert(entry)
	require.NoError(t, env.svc.manifests.Save(ctx, "esp-7", m))

	type fetchResult struct {
		blob *models.FirmwareBlob
		err  error
	}

	done := make(chan fetchResult, 1)

	go func() {
		blob, err := env.svc.FetchActive(ctx, "esp-7")
		done <- fetchResult{blob: blob, err: err}
	}()

	select {
	case <-done:
		t.Fatal("fetch returned while the upload held the device lock")
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, os.WriteFile(filepath.Join(env.blobRoot, "esp-7", "fw.bin"), []byte("new"), 0o600))
	unlock()

	select {
	case res := <-done:
		require.NoError(t, res.err)
		assert.Equal(t, "new", string(res.blob.Content))
	case <-time.After(5 * time.Second):
		t.Fatal("fetch did not complete after the upload finished")
	}
}
