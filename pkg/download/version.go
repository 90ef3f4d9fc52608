package download

import (
	"context"
	"fmt"

	securejoin "github.com/cyphar/filepath-securejoin"

	"github.com/go-modpackinstaller/pkg/config"
	"github.com/go-modpackinstaller/pkg/model"
	"github.com/go-modpackinstaller/pkg/utils"
)

// DownloadVersion enqueues one task per manifest file below root, skipping
// files already on disk with matching size and checksum. It returns the
// number of tasks queued; zero means nothing needs the network.
func (c *Coordinator) DownloadVersion(manifest *config.Manifest, root string) (int, error) {
	if err := config.ValidateManifest(manifest); err != nil {
		return 0, err
	}

	queued := 0
	for _, entry := range manifest.Files {
		dest, err := securejoin.SecureJoin(root, entry.Path)
		if err != nil {
			return queued, fmt.Errorf("invalid path %s: %w", entry.Path, err)
		}

		if (entry.Checksum != "" || entry.Size > 0) && utils.FileMatches(dest, entry.Size, entry.Checksum) {
			c.logger.Verbose("Skipping %s: already present", entry.Path)
			continue
		}

		if _, err := c.Enqueue(entry.URL, entry.Size, entry.Checksum, dest, entry.Path); err != nil {
			return queued, err
		}
		queued++
	}

	c.logger.Info("Version %s: %d of %d files queued", manifest.ID, queued, len(manifest.Files))
	return queued, nil
}

// DownloadModpackFromAPI lets api resolve the version at index of detail and
// enqueue its files on this batch.
func (c *Coordinator) DownloadModpackFromAPI(ctx context.Context, api ModpackAPI, detail *model.ModDetail, index int, target string) (*model.InstallPlan, error) {
	c.logger.Info("Resolving %s from %s", detail.Title, api.Name())
	plan, err := api.Install(ctx, detail, index, target, c)
	if err != nil {
		return nil, err
	}
	return plan, nil
}
