package cli

import (
	"bytes"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/go-modpackinstaller/pkg/config"
	"github.com/go-modpackinstaller/pkg/utils"
)

func newManifestCommand(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "manifest",
		Short: "Work with version manifests",
	}

	var (
		baseURL string
		id      string
		output  string
	)
	generate := &cobra.Command{
		Use:   "generate <dir>",
		Short: "Generate a version manifest for the files below a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if baseURL == "" {
				return fmt.Errorf("--base-url is required")
			}
			manifest, err := GenerateManifest(args[0], baseURL, id)
			if err != nil {
				return err
			}
			data, err := json.MarshalIndent(manifest, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to marshal manifest: %w", err)
			}
			data = append(data, '\n')

			if output == "" {
				_, err = e.out.Write(data)
				return err
			}
			if err := utils.AtomicWriteFile(output, bytes.NewReader(data), 0644); err != nil {
				return fmt.Errorf("failed to write %s: %w", output, err)
			}
			e.logger.Info("Manifest with %d files written to %s", len(manifest.Files), output)
			return nil
		},
	}
	generate.Flags().StringVar(&baseURL, "base-url", "", "Required: URL the directory is served from")
	generate.Flags().StringVar(&id, "id", "", "Version id recorded in the manifest")
	generate.Flags().StringVarP(&output, "output", "o", "", "Output file (default stdout)")
	cmd.AddCommand(generate)
	return cmd
}

// GenerateManifest describes every regular file below dir, with the sha1 and
// size of each and its URL below baseURL. Entries are sorted by path.
func GenerateManifest(dir, baseURL, id string) (*config.Manifest, error) {
	base, err := url.Parse(strings.TrimRight(baseURL, "/") + "/")
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	manifest := &config.Manifest{ID: id}
	err = filepath.Walk(dir, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		sum, err := sha1File(p)
		if err != nil {
			return err
		}
		manifest.Files = append(manifest.Files, config.ManifestEntry{
			URL:      base.String() + escapePath(rel),
			Size:     info.Size(),
			Checksum: sum,
			Path:     rel,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(manifest.Files, func(i, j int) bool { return manifest.Files[i].Path < manifest.Files[j].Path })
	if err := config.ValidateManifest(manifest); err != nil {
		return nil, err
	}
	return manifest, nil
}

func sha1File(p string) (string, error) {
	file, err := os.Open(p)
	if err != nil {
		return "", fmt.Errorf("error opening file %s: %w", p, err)
	}
	defer file.Close()

	hasher := sha1.New()
	if _, err := io.Copy(hasher, file); err != nil {
		return "", fmt.Errorf("error reading file %s: %w", p, err)
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// escapePath escapes each segment so the result stays relative
func escapePath(rel string) string {
	parts := strings.Split(rel, "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}
	return path.Join(parts...)
}
