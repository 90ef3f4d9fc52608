package installer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-modpackinstaller/pkg/config"
	"github.com/go-modpackinstaller/pkg/download"
	"github.com/go-modpackinstaller/pkg/loader"
	"github.com/go-modpackinstaller/pkg/utils"
)

// Runner executes an external program and returns its combined output
type Runner interface {
	Run(ctx context.Context, dir, name string, args ...string) ([]byte, error)
}

// Installers returns the loader installers for the game directory in cfg,
// keyed by loader type
func Installers(cfg *config.Config, logger *utils.Logger) map[string]loader.Installer {
	client := download.NewClient(logger, cfg.HTTPHeaders)
	client.SetUserAgent(cfg.UserAgent)
	client.SetTimeout(cfg.RequestTimeout)
	client.SetFollowRedirects(cfg.FollowRedirects)
	opts := download.OptionsFromConfig(cfg)

	forge := NewForgeInstaller(cfg.GameDirectory, cfg.ForgeMavenURL, client, opts, logger)
	forge.SetJavaPath(cfg.JavaPath)
	forge.SetDryRun(cfg.DryRun)

	return map[string]loader.Installer{
		"forge":  forge,
		"fabric": NewFabricInstaller(cfg.GameDirectory, cfg.FabricMetaURL, client, opts, logger),
	}
}

// versionJSONPath is where a launcher expects the descriptor of version id
func versionJSONPath(gameDir, id string) string {
	return filepath.Join(gameDir, "versions", id, id+".json")
}

// versionInstalled reports whether the descriptor of version id exists
func versionInstalled(gameDir, id string) bool {
	info, err := os.Stat(versionJSONPath(gameDir, id))
	return err == nil && !info.IsDir()
}

// runBatch starts a coordinator and waits for it
func runBatch(ctx context.Context, batch *download.Coordinator, what string) error {
	if err := batch.Run(ctx); err != nil {
		return fmt.Errorf("failed to download %s: %w", what, err)
	}
	return nil
}
