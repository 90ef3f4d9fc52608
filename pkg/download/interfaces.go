package download

import (
	"context"
	"io"

	"github.com/go-modpackinstaller/pkg/model"
)

// Fetcher moves the bytes of one URL into a writer
type Fetcher interface {
	Fetch(ctx context.Context, url string, w io.Writer, onBytes func(int64)) (int64, error)
}

// Batch is the part of a Coordinator that providers and installers submit work to
type Batch interface {
	Enqueue(url string, size int64, checksum, dest, label string) (*Task, error)
	Defer(hook HookFunc)
	StagingPath(name string) string
}

// ModpackAPI resolves a selected version into transfers on a batch
type ModpackAPI interface {
	Name() string
	Install(ctx context.Context, detail *model.ModDetail, index int, target string, batch Batch) (*model.InstallPlan, error)
}

var _ Batch = (*Coordinator)(nil)
var _ Fetcher = (*Client)(nil)
