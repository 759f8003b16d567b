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
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/carverauto/faultradar/pkg/hashutil"
	"github.com/carverauto/faultradar/pkg/models"
)

const (
	blobDirPerms     = 0o755
	blobFilePerms    = 0o644
	stagingPrefix    = ".upload-"
	hiddenFilePrefix = "."
)

// BlobStore keeps firmware payloads in one directory per device, named by
// filename.
type BlobStore struct {
	root string
}

// StagedBlob is a payload written to a temporary file and hashed, waiting to
// be committed under its final name.
type StagedBlob struct {
	path        string
	Size        int64
	ContentHash string
}

// NewBlobStore creates root if needed.
func NewBlobStore(root string) (*BlobStore, error) {
	if err := os.MkdirAll(root, blobDirPerms); err != nil {
		return nil, fmt.Errorf("%w: failed to create firmware directory %s: %w", models.ErrStorageFailure, root, err)
	}

	return &BlobStore{root: root}, nil
}

func (b *BlobStore) deviceDir(deviceID string) string {
	return filepath.Join(b.root, deviceID)
}

// Stage copies src into the device directory under a temporary name while
// computing its SHA-256. An empty payload is rejected.
func (b *BlobStore) Stage(deviceID string, src io.Reader) (*StagedBlob, error) {
	dir := b.deviceDir(deviceID)
	if err := os.MkdirAll(dir, blobDirPerms); err != nil {
		return nil, fmt.Errorf("%w: failed to create %s: %w", models.ErrStorageFailure, dir, err)
	}

	tmp, err := os.CreateTemp(dir, stagingPrefix+"*")
	if err != nil {
		return nil, fmt.Errorf("%w: failed to stage upload: %w", models.ErrStorageFailure, err)
	}

	staged := &StagedBlob{path: tmp.Name()}

	size, sum, err := hashutil.CopySHA256(tmp, src)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}

	if err != nil {
		b.Discard(staged)

		return nil, fmt.Errorf("%w: failed to write upload: %w", models.ErrStorageFailure, err)
	}

	if size == 0 {
		b.Discard(staged)

		return nil, fmt.Errorf("%w: firmware file is empty", models.ErrInvalidInput)
	}

	if err := os.Chmod(staged.path, blobFilePerms); err != nil {
		b.Discard(staged)

		return nil, fmt.Errorf("%w: %w", models.ErrStorageFailure, err)
	}

	staged.Size = size
	staged.ContentHash = sum

	return staged, nil
}

// Commit moves a staged payload to its final name, replacing any previous
// payload with that name.
func (b *BlobStore) Commit(staged *StagedBlob, deviceID, filename string) error {
	dst := filepath.Join(b.deviceDir(deviceID), filename)

	if err := os.Rename(staged.path, dst); err != nil {
		b.Discard(staged)

		return fmt.Errorf("%w: failed to store %s: %w", models.ErrStorageFailure, filename, err)
	}

	return nil
}

// Discard removes a staged payload that will not be committed.
func (*BlobStore) Discard(staged *StagedBlob) {
	if staged != nil {
		_ = os.Remove(staged.path)
	}
}

// Read returns the payload and its modification time.
func (b *BlobStore) Read(deviceID, filename string) ([]byte, time.Time, error) {
	path := filepath.Join(b.deviceDir(deviceID), filename)

	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, time.Time{}, fmt.Errorf("%w: firmware file %s", models.ErrNotFound, filename)
	}

	if err != nil {
		return nil, time.Time{}, fmt.Errorf("%w: %w", models.ErrStorageFailure, err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("%w: failed to read %s: %w", models.ErrStorageFailure, filename, err)
	}

	return data, info.ModTime(), nil
}

// Delete removes a payload. A missing payload is not an error.
func (b *BlobStore) Delete(deviceID, filename string) error {
	err := os.Remove(filepath.Join(b.deviceDir(deviceID), filename))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: failed to delete %s: %w", models.ErrStorageFailure, filename, err)
	}

	return nil
}

// Newest returns the most recently modified payload in the device directory.
func (b *BlobStore) Newest(deviceID string) (string, error) {
	entries, err := os.ReadDir(b.deviceDir(deviceID))
	if errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("%w: no firmware for device %s", models.ErrNotFound, deviceID)
	}

	if err != nil {
		return "", fmt.Errorf("%w: %w", models.ErrStorageFailure, err)
	}

	var (
		newest  string
		newestT time.Time
	)

	for _, entry := range entries {
		if !entry.Type().IsRegular() || strings.HasPrefix(entry.Name(), hiddenFilePrefix) {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}

		if newest == "" || info.ModTime().After(newestT) {
			newest = entry.Name()
			newestT = info.ModTime()
		}
	}

	if newest == "" {
		return "", fmt.Errorf("%w: no firmware for device %s", models.ErrNotFound, deviceID)
	}

	return newest, nil
}
