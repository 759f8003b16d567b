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

// Package signature issues and checks the keyed integrity tags bound to
// firmware manifest entries.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/carverauto/faultradar/pkg/models"
)

const fieldSeparator = ":"

// Authority signs (version, content hash, filename) triples with HMAC-SHA256.
type Authority struct {
	key []byte
}

// NewAuthority constructs an Authority from the operator-provisioned secret.
// An empty or whitespace-only secret is rejected.
func NewAuthority(secret string) (*Authority, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, models.ErrMissingSecret
	}

	key := make([]byte, len(secret))
	copy(key, secret)

	return &Authority{key: key}, nil
}

// Sign returns the lowercase hex HMAC over version, contentHash, and filename.
// The version may be empty; the other two fields may not.
func (a *Authority) Sign(version, contentHash, filename string) (string, error) {
	if contentHash == "" {
		return "", fmt.Errorf("%w: content hash is required for signing", models.ErrInvalidInput)
	}

	if filename == "" {
		return "", fmt.Errorf("%w: filename is required for signing", models.ErrInvalidInput)
	}

	return hex.EncodeToString(a.mac(version, contentHash, filename)), nil
}

// Verify recomputes the tag for the triple and compares it to signature in
// constant time.
func (a *Authority) Verify(version, contentHash, filename, signature string) bool {
	if signature == "" {
		return false
	}

	expected, err := a.Sign(version, contentHash, filename)
	if err != nil {
		return false
	}

	return hmac.Equal([]byte(expected), []byte(signature))
}

func (a *Authority) mac(version, contentHash, filename string) []byte {
	h := hmac.New(sha256.New, a.key)
	h.Write([]byte(version + fieldSeparator + contentHash + fieldSeparator + filename))

	return h.Sum(nil)
}
