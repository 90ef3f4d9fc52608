package installer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"strings"

	"github.com/go-modpackinstaller/pkg/download"
	"github.com/go-modpackinstaller/pkg/errdefs"
	"github.com/go-modpackinstaller/pkg/loader"
	"github.com/go-modpackinstaller/pkg/utils"
)

const defaultFabricMaven = "https://maven.fabricmc.net/"

// FabricInstaller writes the launcher profile published by Fabric meta and
// downloads the libraries it lists
type FabricInstaller struct {
	gameDir string
	metaURL string
	fetcher download.Fetcher
	opts    download.Options
	logger  *utils.Logger
}

// NewFabricInstaller creates a Fabric installer
func NewFabricInstaller(gameDir, metaURL string, fetcher download.Fetcher, opts download.Options, logger *utils.Logger) *FabricInstaller {
	return &FabricInstaller{
		gameDir: gameDir,
		metaURL: strings.TrimRight(metaURL, "/"),
		fetcher: fetcher,
		opts:    opts,
		logger:  logger.With("loader", "fabric"),
	}
}

type fabricProfile struct {
	ID           string `json:"id"`
	InheritsFrom string `json:"inheritsFrom"`
	Libraries    []struct {
		Name string `json:"name"`
		URL  string `json:"url"`
		SHA1 string `json:"sha1"`
		Size int64  `json:"size"`
	} `json:"libraries"`
}

// ProfileURL returns the meta endpoint of the launcher profile
func (f *FabricInstaller) ProfileURL(gameVersion, loaderVersion string) string {
	return fmt.Sprintf("%s/versions/loader/%s/%s/profile/json", f.metaURL, url.PathEscape(gameVersion), url.PathEscape(loaderVersion))
}

// Installed implements loader.Installer
func (f *FabricInstaller) Installed(rec *loader.Record) bool {
	return versionInstalled(f.gameDir, rec.VersionString)
}

// Install implements loader.Installer. The profile is written last so an
// interrupted install is never reported as installed.
func (f *FabricInstaller) Install(ctx context.Context, rec *loader.Record) error {
	mc, ver, err := loader.ParseVersionString("fabric", rec.VersionString)
	if err != nil {
		return err
	}

	data, err := f.fetchProfile(ctx, f.ProfileURL(mc, ver))
	if err != nil {
		return err
	}
	var profile fabricProfile
	if err := json.Unmarshal(data, &profile); err != nil {
		return errdefs.Wrap(errdefs.KindParse, "fabric profile", err)
	}
	if profile.ID != "" && profile.ID != rec.VersionString {
		f.logger.Warn("Profile id %s differs from %s", profile.ID, rec.VersionString)
	}

	batch := download.NewCoordinator(f.fetcher, f.logger, f.opts)
	for _, lib := range profile.Libraries {
		rel, err := mavenPath(lib.Name)
		if err != nil {
			return errdefs.Wrap(errdefs.KindParse, "fabric profile", err)
		}
		repo := lib.URL
		if repo == "" {
			repo = defaultFabricMaven
		}
		dest := filepath.Join(f.gameDir, "libraries", filepath.FromSlash(rel))
		if _, err := batch.Enqueue(strings.TrimRight(repo, "/")+"/"+rel, lib.Size, lib.SHA1, dest, lib.Name); err != nil {
			return err
		}
	}
	f.logger.Info("📥 Downloading %d Fabric libraries", len(profile.Libraries))
	if err := runBatch(ctx, batch, "Fabric libraries"); err != nil {
		return err
	}

	if err := utils.AtomicWriteFile(versionJSONPath(f.gameDir, rec.VersionString), bytes.NewReader(data), 0644); err != nil {
		return fmt.Errorf("failed to write version profile: %w", err)
	}
	f.logger.Info("✅ Installed Fabric %s", rec.VersionString)
	return nil
}

func (f *FabricInstaller) fetchProfile(ctx context.Context, profileURL string) ([]byte, error) {
	var buf bytes.Buffer
	_, err := utils.Retry(ctx, func(ctx context.Context) error {
		buf.Reset()
		_, err := f.fetcher.Fetch(ctx, profileURL, &buf, nil)
		return err
	}, f.opts.MaxRetries, f.opts.RetryDelay, "fetch Fabric profile", f.logger)
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// mavenPath converts "group:artifact:version[:classifier]" into the
// repository path of its jar
func mavenPath(name string) (string, error) {
	ext := "jar"
	if i := strings.LastIndex(name, "@"); i > 0 {
		name, ext = name[:i], name[i+1:]
	}
	parts := strings.Split(name, ":")
	if len(parts) < 3 || len(parts) > 4 {
		return "", fmt.Errorf("invalid maven coordinate %q", name)
	}
	for _, p := range parts {
		if p == "" || strings.Contains(p, "..") || strings.ContainsAny(p, `/\`) {
			return "", fmt.Errorf("invalid maven coordinate %q", name)
		}
	}
	group, artifact, version := parts[0], parts[1], parts[2]
	file := artifact + "-" + version
	if len(parts) == 4 {
		file += "-" + parts[3]
	}
	return path.Join(strings.ReplaceAll(group, ".", "/"), artifact, version, file+"."+ext), nil
}

var _ loader.Installer = (*FabricInstaller)(nil)
