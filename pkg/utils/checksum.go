package utils

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"strings"
)

// NewHasher returns the digest matching the length of a hex-encoded checksum:
// md5 (32), sha1 (40), sha256 (64) or sha512 (128).
func NewHasher(checksum string) (hash.Hash, error) {
	switch len(strings.TrimSpace(checksum)) {
	case 32:
		return md5.New(), nil
	case 40:
		return sha1.New(), nil
	case 64:
		return sha256.New(), nil
	case 128:
		return sha512.New(), nil
	default:
		return nil, fmt.Errorf("unsupported checksum %q: cannot infer digest algorithm", checksum)
	}
}

// ChecksumEqual compares two hex digests ignoring case and surrounding space.
func ChecksumEqual(expected, actual string) bool {
	return strings.EqualFold(strings.TrimSpace(expected), strings.TrimSpace(actual))
}

// HashFile computes the digest of path using the algorithm implied by checksum.
func HashFile(path, checksum string) (string, error) {
	hasher, err := NewHasher(checksum)
	if err != nil {
		return "", err
	}
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	if _, err := io.Copy(hasher, f); err != nil {
		return "", fmt.Errorf("failed to read %s for hashing: %w", path, err)
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// FileMatches reports whether path exists with the expected size and checksum.
// A zero size or empty checksum skips that comparison; with both empty only
// existence is checked.
func FileMatches(path string, size int64, checksum string) bool {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return false
	}
	if size > 0 && info.Size() != size {
		return false
	}
	if checksum == "" {
		return true
	}
	actual, err := HashFile(path, checksum)
	if err != nil {
		return false
	}
	return ChecksumEqual(checksum, actual)
}
