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
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

const (
	fileSuffix     = ".json"
	dirPerms       = 0o755
	filePerms      = 0o644
	tempFilePrefix = ".tmp-"
)

// FileStore keeps each key in its own JSON file under a root directory.
// A key such as "manifests/esp-7" maps to "<root>/manifests/esp-7.json".
type FileStore struct {
	root string
}

var _ KVStore = (*FileStore)(nil)

// NewFileStore creates the root directory if needed.
func NewFileStore(root string) (*FileStore, error) {
	if root == "" {
		return nil, errRootDirRequired
	}

	if err := os.MkdirAll(root, dirPerms); err != nil {
		return nil, fmt.Errorf("failed to create data directory %s: %w", root, err)
	}

	return &FileStore{root: root}, nil
}

func (f *FileStore) path(key string) (string, error) {
	if key == "" || strings.Contains(key, "..") || strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return "", fmt.Errorf("%w: %q", errInvalidKey, key)
	}

	return filepath.Join(f.root, filepath.FromSlash(key)+fileSuffix), nil
}

func (f *FileStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	path, err := f.path(key)
	if err != nil {
		return nil, false, err
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}

	if err != nil {
		return nil, false, fmt.Errorf("failed to read key %s: %w", key, err)
	}

	return data, true, nil
}

// Put writes value to a temporary file in the target directory and renames it
// over the destination.
func (f *FileStore) Put(_ context.Context, key string, value []byte) error {
	path, err := f.path(key)
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, dirPerms); err != nil {
		return fmt.Errorf("failed to create directory for key %s: %w", key, err)
	}

	tmp, err := os.CreateTemp(dir, tempFilePrefix+filepath.Base(path)+"-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file for key %s: %w", key, err)
	}

	tmpName := tmp.Name()

	if _, err := tmp.Write(value); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)

		return fmt.Errorf("failed to write key %s: %w", key, err)
	}

	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)

		return fmt.Errorf("failed to sync key %s: %w", key, err)
	}

	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)

		return fmt.Errorf("failed to close key %s: %w", key, err)
	}

	if err := os.Chmod(tmpName, filePerms); err != nil {
		_ = os.Remove(tmpName)

		return fmt.Errorf("failed to chmod key %s: %w", key, err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)

		return fmt.Errorf("failed to commit key %s: %w", key, err)
	}

	return nil
}

func (f *FileStore) Delete(_ context.Context, key string) error {
	path, err := f.path(key)
	if err != nil {
		return err
	}

	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete key %s: %w", key, err)
	}

	return nil
}

func (*FileStore) Close() error {
	return nil
}
