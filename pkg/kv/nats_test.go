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

package kv

import (
	"context"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runJetStreamServer(t *testing.T) *server.Server {
	t.Helper()

	opts := &server.Options{
		Host:      "127.0.0.1",
		Port:      -1,
		JetStream: true,
		StoreDir:  t.TempDir(),
	}

	srv, err := server.NewServer(opts)
	require.NoError(t, err)

	go srv.Start()

	if !srv.ReadyForConnections(10 * time.Second) {
		srv.Shutdown()
		t.Fatalf("embedded NATS server not ready for connections")
	}

	require.Eventually(t, func() bool {
		return srv.JetStreamEnabled()
	}, 5*time.Second, 50*time.Millisecond, "embedded NATS server not ready for JetStream")

	t.Cleanup(srv.Shutdown)

	return srv
}

func TestNatsStoreRoundTrip(t *testing.T) {
	srv := runJetStreamServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	store, err := New(ctx, Config{Backend: BackendNATS, NatsURL: srv.ClientURL(), Bucket: "fw-test"}, "")
	require.NoError(t, err)

	t.Cleanup(func() { _ = store.Close() })

	_, found, err := store.Get(ctx, "manifests/esp-7")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, store.Put(ctx, "manifests/esp-7", []byte(`{"active":"fw.bin"}`)))

	value, found, err := store.Get(ctx, "manifests/esp-7")
	require.NoError(t, err)
	require.True(t, found)
	assert.JSONEq(t, `{"active":"fw.bin"}`, string(value))

	require.NoError(t, store.Delete(ctx, "manifests/esp-7"))

	_, found, err = store.Get(ctx, "manifests/esp-7")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, store.Delete(ctx, "manifests/never-written"))
}

func TestNatsStoreReopensExistingBucket(t *testing.T) {
	srv := runJetStreamServer(t)
	ctx := context.Background()

	first, err := NewNatsStore(ctx, srv.ClientURL(), "fw-shared")
	require.NoError(t, err)
	require.NoError(t, first.Put(ctx, "heartbeat", []byte(`{}`)))
	require.NoError(t, first.Close())

	second, err := NewNatsStore(ctx, srv.ClientURL(), "fw-shared")
	require.NoError(t, err)

	t.Cleanup(func() { _ = second.Close() })

	_, found, err := second.Get(ctx, "heartbeat")
	require.NoError(t, err)
	assert.True(t, found)
}
