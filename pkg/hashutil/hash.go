// Package hashutil computes and compares SHA-256 content digests.
package hashutil

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
)

var (
	errEmptyChecksum       = errors.New("empty checksum string")
	errUnsupportedEncoding = errors.New("unsupported checksum encoding")
)

// SumSHA256 returns the lowercase hex SHA-256 digest of data.
func SumSHA256(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// CopySHA256 copies src into dst while hashing it. It returns the number of
// bytes copied and the lowercase hex digest.
func CopySHA256(dst io.Writer, src io.Reader) (int64, string, error) {
	h := sha256.New()

	n, err := io.Copy(io.MultiWriter(dst, h), src)
	if err != nil {
		return n, "", err
	}

	return n, hex.EncodeToString(h.Sum(nil)), nil
}

// DecodeSHA256String attempts to decode the provided checksum string which may be
// hex-encoded or base64/base64url-encoded. It returns the raw 32-byte digest.
func DecodeSHA256String(s string) ([]byte, error) {
	clean := strings.TrimSpace(s)
	if clean == "" {
		return nil, errEmptyChecksum
	}

	if decoded, err := hex.DecodeString(clean); err == nil && len(decoded) == sha256.Size {
		return decoded, nil
	}

	base64Variants := []*base64.Encoding{
		base64.StdEncoding,
		base64.RawStdEncoding,
		base64.URLEncoding,
		base64.RawURLEncoding,
	}

	for _, enc := range base64Variants {
		if decoded, err := enc.DecodeString(clean); err == nil && len(decoded) == sha256.Size {
			return decoded, nil
		}
	}

	return nil, fmt.Errorf("%w: %q", errUnsupportedEncoding, clean)
}

// EqualSHA256 reports whether the provided checksum string (hex or base64) matches
// the digest of data.
func EqualSHA256(expected string, data []byte) bool {
	decoded, err := DecodeSHA256String(expected)
	if err != nil {
		return false
	}

	actual := sha256.Sum256(data)

	return subtle.ConstantTimeCompare(decoded, actual[:]) == 1
}
