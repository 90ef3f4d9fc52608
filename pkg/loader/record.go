package loader

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-modpackinstaller/pkg/errdefs"
	"github.com/go-modpackinstaller/pkg/utils"
)

// RecordFileName is the sidecar written into a profile directory
const RecordFileName = ".loader-install.json"

// Record is a pending loader installation
type Record struct {
	LoaderType    string    `json:"loaderType"`    // "forge" or "fabric"
	VersionString string    `json:"versionString"` // e.g. "1.20.1-forge-43.1.0"
	Attempts      int       `json:"attempts,omitempty"`
	LastError     string    `json:"lastError,omitempty"`
	UpdatedAt     time.Time `json:"updatedAt,omitempty"`
}

// Validate checks the record names a supported loader
func (r *Record) Validate() error {
	switch r.LoaderType {
	case "forge", "fabric":
	default:
		return fmt.Errorf("unsupported loader type %q", r.LoaderType)
	}
	if r.VersionString == "" {
		return fmt.Errorf("versionString is required")
	}
	return nil
}

// RecordPath returns the sidecar location for a profile directory
func RecordPath(profileDir string) string {
	return filepath.Join(profileDir, RecordFileName)
}

// WriteRecord persists rec with write-then-rename
func WriteRecord(profileDir string, rec *Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now().UTC()
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return err
	}
	if err := utils.AtomicWriteFile(RecordPath(profileDir), bytes.NewReader(data), 0644); err != nil {
		return fmt.Errorf("failed to write loader record: %w", err)
	}
	return nil
}

// ReadRecord returns the pending record of a profile, or nil when there is none.
// It never modifies the filesystem.
func ReadRecord(profileDir string) (*Record, error) {
	data, err := os.ReadFile(RecordPath(profileDir))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, errdefs.Wrap(errdefs.KindParse, RecordPath(profileDir), err)
	}
	if err := rec.Validate(); err != nil {
		return nil, errdefs.Wrap(errdefs.KindParse, RecordPath(profileDir), err)
	}
	return &rec, nil
}

// RemoveRecord deletes the sidecar; a missing record is not an error
func RemoveRecord(profileDir string) error {
	if err := os.Remove(RecordPath(profileDir)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Playable reports whether a profile has no pending loader installation
func Playable(profileDir string) bool {
	_, err := os.Stat(RecordPath(profileDir))
	return errors.Is(err, os.ErrNotExist)
}

// ParseVersionString splits "1.20.1-forge-43.1.0" or
// "fabric-loader-0.14.21-1.20.1" into game and loader versions.
func ParseVersionString(loaderType, versionString string) (gameVersion, loaderVersion string, err error) {
	switch loaderType {
	case "forge":
		mc, ver, ok := strings.Cut(versionString, "-forge-")
		if ok && mc != "" && ver != "" {
			return mc, ver, nil
		}
	case "fabric":
		rest, ok := strings.CutPrefix(versionString, "fabric-loader-")
		if ok {
			if i := strings.LastIndex(rest, "-"); i > 0 && i < len(rest)-1 {
				return rest[i+1:], rest[:i], nil
			}
		}
	}
	return "", "", fmt.Errorf("malformed %s version string %q", loaderType, versionString)
}
