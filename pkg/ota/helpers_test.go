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
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/carverauto/faultradar/pkg/crypto/signature"
	"github.com/carverauto/faultradar/pkg/kv"
	"github.com/carverauto/faultradar/pkg/models"
	"github.com/carverauto/faultradar/pkg/sites"
)

const testSecret = "test-firmware-secret"

var errInjected = errors.New("injected failure")

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

// Tick advances the clock by a second and returns the new time.
func (c *fakeClock) Tick() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(time.Second)

	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(d)
}

// faultyStore fails reads or writes for keys with a matching prefix.
type faultyStore struct {
	kv.KVStore

	mu      sync.Mutex
	failGet []string
	failPut []string
}

func (f *faultyStore) matches(prefixes []string, key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, p := range prefixes {
		if strings.HasPrefix(key, p) {
			return true
		}
	}

	return false
}

func (f *faultyStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if f.matches(f.failGet, key) {
		return nil, false, errInjected
	}

	return f.KVStore.Get(ctx, key)
}

func (f *faultyStore) Put(ctx context.Context, key string, value []byte) error {
	if f.matches(f.failPut, key) {
		return errInjected
	}

	return f.KVStore.Put(ctx, key, value)
}

type testEnv struct {
	svc       *Service
	store     *faultyStore
	blobs     *BlobStore
	blobRoot  string
	clock     *fakeClock
	authority *signature.Authority
}

func newTestEnv(t *testing.T, inventory sites.Inventory, opts ...Option) *testEnv {
	t.Helper()

	fileStore, err := kv.NewFileStore(t.TempDir())
	require.NoError(t, err)

	blobRoot := t.TempDir()
	blobs, err := NewBlobStore(blobRoot)
	require.NoError(t, err)

	authority, err := signature.NewAuthority(testSecret)
	require.NoError(t, err)

	env := &testEnv{
		store:     &faultyStore{KVStore: fileStore},
		blobs:     blobs,
		blobRoot:  blobRoot,
		clock:     newFakeClock(),
		authority: authority,
	}

	opts = append([]Option{WithClock(env.clock.Now)}, opts...)

	env.svc, err = NewService(env.store, blobs, authority, inventory, opts...)
	require.NoError(t, err)

	return env
}

// upload admits payload and advances the clock so upload times are distinct.
func (e *testEnv) upload(t *testing.T, deviceID, filename, version, payload string) *models.UploadResult {
	t.Helper()

	result, err := e.svc.Upload(context.Background(), deviceID, filename, strings.NewReader(payload),
		models.UploadOptions{Version: version})
	require.NoError(t, err)

	e.clock.Advance(time.Minute)

	return result
}

func (e *testEnv) manifest(t *testing.T, deviceID string) *models.Manifest {
	t.Helper()

	m, err := e.svc.manifests.Load(context.Background(), deviceID)
	require.NoError(t, err)

	return m
}

func requireActiveValid(t *testing.T, m *models.Manifest) {
	t.Helper()

	if m.Active == "" {
		return
	}

	_, ok := m.Find(m.Active)
	require.Truef(t, ok, "active %q has no entry", m.Active)
}
