package installer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/go-modpackinstaller/pkg/download"
	"github.com/go-modpackinstaller/pkg/loader"
	"github.com/go-modpackinstaller/pkg/utils"
)

const launcherProfilesName = "launcher_profiles.json"

// ForgeInstaller downloads the official Forge installer and runs it in
// client mode against the game directory
type ForgeInstaller struct {
	gameDir  string
	mavenURL string
	javaPath string
	dryRun   bool
	fetcher  download.Fetcher
	opts     download.Options
	runner   Runner
	logger   *utils.Logger
}

// NewForgeInstaller creates a Forge installer
func NewForgeInstaller(gameDir, mavenURL string, fetcher download.Fetcher, opts download.Options, logger *utils.Logger) *ForgeInstaller {
	logger = logger.With("loader", "forge")
	return &ForgeInstaller{
		gameDir:  gameDir,
		mavenURL: strings.TrimRight(mavenURL, "/"),
		javaPath: "java",
		fetcher:  fetcher,
		opts:     opts,
		runner:   NewExecRunner(logger),
		logger:   logger,
	}
}

// SetJavaPath sets the java executable
func (f *ForgeInstaller) SetJavaPath(path string) {
	if path != "" {
		f.javaPath = path
	}
}

// SetDryRun makes Install log what it would do without doing it
func (f *ForgeInstaller) SetDryRun(dryRun bool) {
	f.dryRun = dryRun
}

// SetRunner replaces the command runner
func (f *ForgeInstaller) SetRunner(r Runner) {
	f.runner = r
}

// InstallerURL returns the maven location of the installer jar
func (f *ForgeInstaller) InstallerURL(gameVersion, forgeVersion string) string {
	full := gameVersion + "-" + forgeVersion
	return fmt.Sprintf("%s/net/minecraftforge/forge/%s/forge-%s-installer.jar", f.mavenURL, full, full)
}

// Installed implements loader.Installer
func (f *ForgeInstaller) Installed(rec *loader.Record) bool {
	return versionInstalled(f.gameDir, rec.VersionString)
}

// Install implements loader.Installer
func (f *ForgeInstaller) Install(ctx context.Context, rec *loader.Record) error {
	mc, ver, err := loader.ParseVersionString("forge", rec.VersionString)
	if err != nil {
		return err
	}
	jarURL := f.InstallerURL(mc, ver)

	if f.dryRun {
		f.logger.Info("[DRY RUN] Would download %s", jarURL)
		f.logger.Info("[DRY RUN] Would execute: %s -jar <installer> --installClient %s", f.javaPath, f.gameDir)
		return nil
	}

	if err := f.ensureLauncherProfiles(); err != nil {
		return err
	}

	batch := download.NewCoordinator(f.fetcher, f.logger, f.opts)
	jar := batch.StagingPath(fmt.Sprintf("forge-%s-%s-installer.jar", mc, ver))
	if _, err := batch.Enqueue(jarURL, 0, "", jar, "Forge installer"); err != nil {
		return err
	}
	// the staging area is removed when the batch ends, so the installer runs
	// as a deferred hook
	batch.Defer(func(ctx context.Context) error {
		return f.runInstaller(ctx, jar)
	})
	if err := runBatch(ctx, batch, "Forge "+rec.VersionString); err != nil {
		return err
	}

	if !f.Installed(rec) {
		return fmt.Errorf("forge installer finished but %s is missing", versionJSONPath(f.gameDir, rec.VersionString))
	}
	f.logger.Info("✅ Installed Forge %s", rec.VersionString)
	return nil
}

func (f *ForgeInstaller) runInstaller(ctx context.Context, jar string) error {
	gameDir, err := filepath.Abs(f.gameDir)
	if err != nil {
		return err
	}
	f.logger.Info("🔧 Running Forge installer")
	if _, err := f.runner.Run(ctx, filepath.Dir(jar), f.javaPath, "-jar", jar, "--installClient", gameDir); err != nil {
		return fmt.Errorf("forge installer failed: %w", err)
	}
	return nil
}

// ensureLauncherProfiles creates the profile list the Forge installer
// refuses to run without
func (f *ForgeInstaller) ensureLauncherProfiles() error {
	path := filepath.Join(f.gameDir, launcherProfilesName)
	if utils.FileExists(path) {
		return nil
	}
	data, err := json.MarshalIndent(map[string]interface{}{"profiles": map[string]interface{}{}}, "", "  ")
	if err != nil {
		return err
	}
	f.logger.Debug("Creating %s", path)
	return utils.AtomicWriteFile(path, bytes.NewReader(data), 0644)
}

var _ loader.Installer = (*ForgeInstaller)(nil)
