// Package archive extracts package archives and classifies the dependency
// maps carried by provider metadata and package indexes.
package archive

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	securejoin "github.com/cyphar/filepath-securejoin"
	"github.com/hashicorp/go-multierror"

	"github.com/go-modpackinstaller/pkg/errdefs"
	"github.com/go-modpackinstaller/pkg/utils"
)

// Service performs archive extraction and dependency resolution
type Service struct {
	logger *utils.Logger
}

// NewService creates an archive service
func NewService(logger *utils.Logger) *Service {
	return &Service{logger: logger}
}

// Archive is an opened zip package
type Archive struct {
	path   string
	reader *zip.ReadCloser
}

// Open opens a zip archive (.zip, .mrpack, .jar)
func Open(filename string) (*Archive, error) {
	r, err := zip.OpenReader(filename)
	if err != nil {
		return nil, errdefs.Wrap(errdefs.KindExtraction, filename, fmt.Errorf("failed to open archive: %w", err))
	}
	return &Archive{path: filename, reader: r}, nil
}

// Close releases the archive
func (a *Archive) Close() error {
	return a.reader.Close()
}

// Path returns the archive location on disk
func (a *Archive) Path() string { return a.path }

// Has reports whether the archive contains the named file
func (a *Archive) Has(name string) bool {
	return a.find(name) != nil
}

// ReadFile returns the contents of a single entry
func (a *Archive) ReadFile(name string) ([]byte, error) {
	f := a.find(name)
	if f == nil {
		return nil, errdefs.New(errdefs.KindParse, a.path, "archive has no %s", name)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, errdefs.Wrap(errdefs.KindExtraction, name, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, errdefs.Wrap(errdefs.KindExtraction, name, err)
	}
	return data, nil
}

func (a *Archive) find(name string) *zip.File {
	for _, f := range a.reader.File {
		if entryName(f) == name {
			return f
		}
	}
	return nil
}

// entryName normalizes separators written by Windows archivers
func entryName(f *zip.File) string {
	return strings.ReplaceAll(f.Name, "\\", "/")
}

// ExtractDirectory copies every entry below internalDir to destPath keeping
// the relative layout. Existing files are replaced atomically, so extracting
// twice gives the same tree. A failing entry is reported as a KindExtraction
// error while the remaining entries are still extracted.
func (s *Service) ExtractDirectory(a *Archive, internalDir, destPath string) error {
	prefix := strings.Trim(path.Clean("/"+strings.ReplaceAll(internalDir, "\\", "/")), "/")
	if prefix != "" {
		prefix += "/"
	}

	if err := utils.EnsureDir(destPath); err != nil {
		return errdefs.Wrap(errdefs.KindExtraction, destPath, err)
	}

	var result *multierror.Error
	extracted := 0
	for _, f := range a.reader.File {
		name := entryName(f)
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		rel := strings.TrimPrefix(name, prefix)
		if rel == "" {
			continue
		}

		target, err := securejoin.SecureJoin(destPath, rel)
		if err != nil {
			result = multierror.Append(result, errdefs.Wrap(errdefs.KindExtraction, name, err))
			continue
		}

		if f.FileInfo().IsDir() || strings.HasSuffix(name, "/") {
			if err := utils.EnsureDir(target); err != nil {
				result = multierror.Append(result, errdefs.Wrap(errdefs.KindExtraction, name, err))
			}
			continue
		}

		if err := extractFile(f, target); err != nil {
			s.logger.Warn("Failed to extract %s: %v", name, err)
			result = multierror.Append(result, errdefs.Wrap(errdefs.KindExtraction, name, err))
			continue
		}
		extracted++
	}

	s.logger.Debug("Extracted %d entries from %s/%s to %s", extracted, a.path, prefix, destPath)
	return result.ErrorOrNil()
}

func extractFile(f *zip.File, target string) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	mode := os.FileMode(0644)
	if f.Mode()&0111 != 0 {
		mode = 0755
	}
	return utils.AtomicWriteFile(target, rc, mode)
}
