package manager

import (
	"context"
	"fmt"

	"github.com/go-modpackinstaller/pkg/cache"
	"github.com/go-modpackinstaller/pkg/config"
	"github.com/go-modpackinstaller/pkg/download"
	"github.com/go-modpackinstaller/pkg/loader"
	"github.com/go-modpackinstaller/pkg/model"
	"github.com/go-modpackinstaller/pkg/utils"
)

// Manager orchestrates acquisition: provider resolution, the download batch
// and the loader record that follows it
type Manager struct {
	fetcher    download.Fetcher
	installers map[string]loader.Installer
	config     *config.Config
	logger     *utils.Logger
	cache      *cache.Cache
	observer   download.Observer
}

// NewManager creates a new manager
func NewManager(fetcher download.Fetcher, installers map[string]loader.Installer, cfg *config.Config, logger *utils.Logger) *Manager {
	return &Manager{
		fetcher:    fetcher,
		installers: installers,
		config:     cfg,
		logger:     logger,
	}
}

// SetCache makes every batch consult c before the network
func (m *Manager) SetCache(c *cache.Cache) {
	m.cache = c
}

// SetObserver receives progress snapshots of every batch
func (m *Manager) SetObserver(o download.Observer) {
	m.observer = o
}

// NewBatch creates a coordinator configured from the manager's settings
func (m *Manager) NewBatch() *download.Coordinator {
	opts := download.OptionsFromConfig(m.config)
	opts.Cache = m.cache
	opts.Observer = m.observer
	return download.NewCoordinator(m.fetcher, m.logger, opts)
}

// InstallModpack installs the version at index of detail into profileDir.
// When the content needs a loader that is not installed yet, a loader record
// is left in profileDir, and the loader is installed right away when
// InstallLoaders is set.
func (m *Manager) InstallModpack(ctx context.Context, api download.ModpackAPI, detail *model.ModDetail, index int, profileDir string) (*model.InstallPlan, error) {
	m.logger.Info("=== Installing %s into %s ===", displayName(detail), profileDir)

	batch := m.NewBatch()
	plan, err := batch.DownloadModpackFromAPI(ctx, api, detail, index, profileDir)
	if err != nil {
		m.logger.Error("❌ Failed to resolve %s: %v", displayName(detail), err)
		return nil, err
	}

	if err := batch.Run(ctx); err != nil {
		m.logger.Error("❌ Download failed: %s - %v", displayName(detail), err)
		return nil, fmt.Errorf("failed to install %s: %w", displayName(detail), err)
	}
	m.logger.Info("✅ Downloaded %d files for %s", len(plan.Files), displayName(detail))

	if plan.Loader == nil {
		return plan, nil
	}

	required, err := m.RequireLoader(profileDir, plan.Loader)
	if err != nil {
		return plan, err
	}
	if required && m.config.InstallLoaders {
		if err := m.InstallLoader(ctx, profileDir); err != nil {
			return plan, err
		}
	}
	return plan, nil
}

// RequireLoader writes the loader record for req unless the loader is
// already installed. It reports whether a record was written.
func (m *Manager) RequireLoader(profileDir string, req *model.LoaderRequirement) (bool, error) {
	rec := &loader.Record{LoaderType: req.LoaderType, VersionString: req.VersionString}
	required, err := m.Machine(profileDir).Require(rec)
	if err != nil {
		return false, fmt.Errorf("failed to record loader requirement: %w", err)
	}
	if required {
		m.logger.Info("⏳ %s %s must be installed before %s is playable", req.LoaderType, req.VersionString, profileDir)
	} else {
		m.logger.Info("⏭️  %s %s already installed", req.LoaderType, req.VersionString)
	}
	return required, nil
}

// InstallVersion downloads the files of a version manifest below root. It
// returns how many files had to be transferred.
func (m *Manager) InstallVersion(ctx context.Context, manifest *config.Manifest, root string) (int, error) {
	m.logger.Info("=== Installing version %s ===", manifest.ID)

	batch := m.NewBatch()
	queued, err := batch.DownloadVersion(manifest, root)
	if err != nil {
		return 0, err
	}
	if queued == 0 {
		m.logger.Info("⏭️  Version %s is up to date", manifest.ID)
		return 0, nil
	}
	if err := batch.Run(ctx); err != nil {
		m.logger.Error("❌ Version %s failed: %v", manifest.ID, err)
		return 0, fmt.Errorf("failed to install version %s: %w", manifest.ID, err)
	}
	m.logger.Info("✅ Version %s installed (%d files)", manifest.ID, queued)
	return queued, nil
}

// Machine returns the loader state machine of profileDir
func (m *Manager) Machine(profileDir string) *loader.Machine {
	return loader.NewMachine(profileDir, m.installers, m.logger)
}

// LoaderStatus returns the pending loader record of profileDir, or nil
func (m *Manager) LoaderStatus(profileDir string) (*loader.Record, error) {
	return loader.ReadRecord(profileDir)
}

// InstallLoader runs the pending loader install of profileDir
func (m *Manager) InstallLoader(ctx context.Context, profileDir string) error {
	machine := m.Machine(profileDir)
	if machine.State() != loader.StatePending {
		m.logger.Info("No loader install pending for %s", profileDir)
		return nil
	}
	if err := machine.Trigger(ctx); err != nil {
		m.logger.Error("❌ Loader install failed for %s: %v", profileDir, err)
		return err
	}
	m.logger.Info("✅ %s is playable", profileDir)
	return nil
}

func displayName(detail *model.ModDetail) string {
	if detail.Title != "" {
		return detail.Title
	}
	return detail.ID
}
