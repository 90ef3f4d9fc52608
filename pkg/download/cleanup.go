package download

import (
	"fmt"
	"os"
	"sync"

	"github.com/hashicorp/go-multierror"

	"github.com/go-modpackinstaller/pkg/utils"
)

// CleanupTracker keeps track of partial files that need cleanup
type CleanupTracker struct {
	mutex  sync.Mutex
	files  map[string]bool // path -> shouldDelete (true=delete on failure; false=preserve)
	logger *utils.Logger
}

// NewCleanupTracker creates a new cleanup tracker
func NewCleanupTracker(logger *utils.Logger) *CleanupTracker {
	return &CleanupTracker{
		files:  make(map[string]bool),
		logger: logger,
	}
}

// TrackFile adds a file to cleanup tracking
func (ct *CleanupTracker) TrackFile(path string) {
	ct.mutex.Lock()
	defer ct.mutex.Unlock()
	ct.files[path] = true
}

// MarkSuccess marks a file as completed (don't delete)
func (ct *CleanupTracker) MarkSuccess(path string) {
	ct.mutex.Lock()
	defer ct.mutex.Unlock()
	ct.files[path] = false
}

// Pending returns the paths still marked for deletion
func (ct *CleanupTracker) Pending() []string {
	ct.mutex.Lock()
	defer ct.mutex.Unlock()
	var paths []string
	for path, shouldDelete := range ct.files {
		if shouldDelete {
			paths = append(paths, path)
		}
	}
	return paths
}

// Cleanup removes all files marked for deletion
func (ct *CleanupTracker) Cleanup() error {
	ct.mutex.Lock()
	defer ct.mutex.Unlock()

	var result *multierror.Error
	for path, shouldDelete := range ct.files {
		if !shouldDelete {
			continue
		}
		ct.logger.Debug("Cleaning up partial file: %s", path)
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			result = multierror.Append(result, fmt.Errorf("failed to cleanup %s: %w", path, err))
			continue
		}
		delete(ct.files, path)
	}
	return result.ErrorOrNil()
}
