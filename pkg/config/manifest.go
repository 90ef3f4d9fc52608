package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Manifest describes the files making up a game version
type Manifest struct {
	ID    string          `json:"id,omitempty"`
	Files []ManifestEntry `json:"files"`
}

// ManifestEntry is a single file of a version manifest
type ManifestEntry struct {
	URL      string `json:"url"`
	Size     int64  `json:"size,omitempty"`
	Checksum string `json:"checksum,omitempty"` // hex digest; algorithm inferred from length
	Path     string `json:"path"`               // relative to the install root
}

// LoadManifest loads a manifest JSON file and validates it
func LoadManifest(filename string) (*Manifest, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	return ParseManifest(data)
}

// ParseManifest decodes and validates manifest JSON
func ParseManifest(data []byte) (*Manifest, error) {
	var manifest Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("invalid manifest JSON: %w", err)
	}
	if err := ValidateManifest(&manifest); err != nil {
		return nil, err
	}
	return &manifest, nil
}

// ValidateManifest checks that every entry can be turned into a download task
func ValidateManifest(manifest *Manifest) error {
	seen := make(map[string]bool, len(manifest.Files))
	for i, entry := range manifest.Files {
		if entry.URL == "" {
			return fmt.Errorf("file %d: url is required", i)
		}
		if entry.Path == "" {
			return fmt.Errorf("file %d (%s): path is required", i, entry.URL)
		}
		clean := filepath.ToSlash(filepath.Clean(entry.Path))
		if filepath.IsAbs(entry.Path) || clean == ".." || strings.HasPrefix(clean, "../") {
			return fmt.Errorf("file %d: path %q must stay inside the install root", i, entry.Path)
		}
		if entry.Size < 0 {
			return fmt.Errorf("file %d (%s): size cannot be negative", i, entry.Path)
		}
		if err := validateChecksum(entry.Checksum); err != nil {
			return fmt.Errorf("file %d (%s): %w", i, entry.Path, err)
		}
		if seen[clean] {
			return fmt.Errorf("file %d: duplicate path %q", i, entry.Path)
		}
		seen[clean] = true
	}
	return nil
}

// validateChecksum ensures checksum is empty or a hex digest we can verify
func validateChecksum(checksum string) error {
	if checksum == "" {
		return nil
	}
	switch len(checksum) {
	case 32, 40, 64, 128:
	default:
		return fmt.Errorf("invalid checksum length %d (want md5, sha1, sha256 or sha512 hex)", len(checksum))
	}
	for _, r := range checksum {
		if !strings.ContainsRune("0123456789abcdefABCDEF", r) {
			return fmt.Errorf("checksum %q is not hexadecimal", checksum)
		}
	}
	return nil
}
