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
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/faultradar/pkg/hashutil"
	"github.com/carverauto/faultradar/pkg/models"
)

func TestBlobStoreStageCommitRead(t *testing.T) {
	root := t.TempDir()
	blobs, err := NewBlobStore(root)
	require.NoError(t, err)

	staged, err := blobs.Stage("esp-7", strings.NewReader("payload"))
	require.NoError(t, err)
	assert.Equal(t, int64(7), staged.Size)
	assert.Equal(t, hashutil.SumSHA256([]byte("payload")), staged.ContentHash)

	_, err = os.Stat(filepath.Join(root, "esp-7", "fw.bin"))
	assert.True(t, os.IsNotExist(err), "nothing visible before commit")

	require.NoError(t, blobs.Commit(staged, "esp-7", "fw.bin"))

	content, modTime, err := blobs.Read("esp-7", "fw.bin")
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), content)
	assert.False(t, modTime.IsZero())

	entries, err := os.ReadDir(filepath.Join(root, "esp-7"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "fw.bin", entries[0].Name())
}

func TestBlobStoreDiscard(t *testing.T) {
	root := t.TempDir()
	blobs, err := NewBlobStore(root)
	require.NoError(t, err)

	staged, err := blobs.Stage("esp-7", strings.NewReader("payload"))
	require.NoError(t, err)

	blobs.Discard(staged)
	blobs.Discard(nil)

	entries, err := os.ReadDir(filepath.Join(root, "esp-7"))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestBlobStoreMissing(t *testing.T) {
	blobs, err := NewBlobStore(t.TempDir())
	require.NoError(t, err)

	_, _, err = blobs.Read("esp-7", "fw.bin")
	require.ErrorIs(t, err, models.ErrNotFound)

	require.NoError(t, blobs.Delete("esp-7", "fw.bin"))

	_, err = blobs.Newest("esp-7")
	require.ErrorIs(t, err, models.ErrNotFound)
}
