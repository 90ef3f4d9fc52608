// Package provider implements the marketplace backends. Both backends share
// the Pager for search bookkeeping and apiClient for HTTP, and differ only in
// endpoint shapes and credentials.
package provider

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/Masterminds/semver/v3"
	securejoin "github.com/cyphar/filepath-securejoin"

	"github.com/go-modpackinstaller/pkg/archive"
	"github.com/go-modpackinstaller/pkg/config"
	"github.com/go-modpackinstaller/pkg/download"
	"github.com/go-modpackinstaller/pkg/errdefs"
	"github.com/go-modpackinstaller/pkg/model"
	"github.com/go-modpackinstaller/pkg/utils"
)

// Provider is one marketplace backend
type Provider interface {
	download.ModpackAPI

	// Search returns previous plus the next page, or a fresh first page when
	// the filters changed since the last successful call.
	Search(ctx context.Context, filters model.Filters, previous []*model.ModDetail) ([]*model.ModDetail, error)
	// LoadDetails fills detail.Versions in place, replacing earlier values
	LoadDetails(ctx context.Context, detail *model.ModDetail) error
	ReachedLastPage() bool
	LastSearchTerm() string
}

// HashResolver finds a downloadable file by its sha1 digest
type HashResolver interface {
	ResolveSHA1(ctx context.Context, sha1 string) (*model.FileRef, error)
}

// New returns the backend registered under name
func New(name string, cfg *config.Config, logger *utils.Logger) (Provider, error) {
	switch strings.ToLower(name) {
	case "modrinth":
		return NewModrinth(cfg, logger), nil
	case "curseforge":
		return NewCurseForge(cfg, logger, NewModrinth(cfg, logger)), nil
	default:
		return nil, fmt.Errorf("unknown provider %q (use modrinth or curseforge)", name)
	}
}

// FilterByGameVersion keeps variants supporting a game version matching
// constraint ("1.20.1", "~1.20", ">=1.19 <1.21"). Game versions that are
// not semver (snapshots) never match a range but can match exactly.
func FilterByGameVersion(variants []model.FileVariant, constraint string) ([]model.FileVariant, error) {
	if constraint == "" {
		return variants, nil
	}
	c, err := semver.NewConstraint(constraint)
	if err != nil {
		return nil, fmt.Errorf("invalid game version constraint %q: %w", constraint, err)
	}

	var out []model.FileVariant
	for _, v := range variants {
		for _, gv := range v.GameVersions {
			if gv == constraint {
				out = append(out, v)
				break
			}
			sv, err := semver.NewVersion(gv)
			if err == nil && c.Check(sv) {
				out = append(out, v)
				break
			}
		}
	}
	return out, nil
}

// isExactVersion reports whether s names a single release rather than a range
func isExactVersion(s string) bool {
	if s == "" || strings.ContainsAny(s, "<>=~^*| ,") {
		return false
	}
	return true
}

// selectVariant returns the version at index, loading details when needed
func selectVariant(ctx context.Context, p Provider, detail *model.ModDetail, index int) (*model.FileVariant, error) {
	if !detail.DetailsLoaded {
		if err := p.LoadDetails(ctx, detail); err != nil {
			return nil, err
		}
	}
	if index < 0 || index >= len(detail.Versions) {
		return nil, errdefs.New(errdefs.KindProvider, detail.ID, "version index %d out of range (%d versions)", index, len(detail.Versions))
	}
	return &detail.Versions[index], nil
}

// isPackage reports whether the selected artifact is itself a package
func isPackage(detail *model.ModDetail, variant *model.FileVariant) bool {
	if detail.Type == model.ContentModpack {
		return true
	}
	return strings.HasSuffix(strings.ToLower(variant.Primary.FileName), ".mrpack")
}

// enqueueRef submits a file below target
func enqueueRef(batch download.Batch, target, rel string, ref model.FileRef) error {
	if !ref.Resolved() {
		return errdefs.New(errdefs.KindProvider, ref.FileName, "file has no download URL")
	}
	dest, err := securejoin.SecureJoin(target, rel)
	if err != nil {
		return fmt.Errorf("invalid destination %s: %w", rel, err)
	}
	_, err = batch.Enqueue(ref.URL, ref.Size, ref.Checksum, dest, rel)
	return err
}

// modPath is where a single mod jar lives inside a profile
func modPath(fileName string) string {
	return path.Join("mods", path.Base(fileName))
}

// lookupFunc resolves a dependency that arrived without a file
type lookupFunc func(ctx context.Context, dep model.Dependency, variant *model.FileVariant) (*model.FileRef, error)

// installMod enqueues a single mod and its required dependencies
func installMod(ctx context.Context, svc *archive.Service, variant *model.FileVariant, target string, batch download.Batch, lookup lookupFunc, logger *utils.Logger) (*model.InstallPlan, error) {
	plan := &model.InstallPlan{Target: target}

	if err := enqueueRef(batch, target, modPath(variant.Primary.FileName), variant.Primary); err != nil {
		return nil, err
	}
	plan.Files = append(plan.Files, variant.Primary)

	for _, dep := range svc.ResolveDependencies(variant.Dependencies) {
		plan.Dependencies = append(plan.Dependencies, dep)
		if dep.Requirement != model.Required {
			logger.Verbose("Optional dependency %s not installed", dep.ID)
			continue
		}

		file := dep.File
		if file == nil {
			resolved, err := lookup(ctx, dep, variant)
			if err != nil {
				return nil, fmt.Errorf("dependency %s: %w", dep.ID, err)
			}
			file = resolved
		}
		if err := enqueueRef(batch, target, modPath(file.FileName), *file); err != nil {
			return nil, err
		}
		plan.Files = append(plan.Files, *file)
	}

	logger.Info("Queued %s with %d files", variant.Name, len(plan.Files))
	return plan, nil
}

// submitModrinthPack enqueues the files listed by a Modrinth pack and
// extracts its overrides
func submitModrinthPack(a *archive.Archive, svc *archive.Service, target string, batch download.Batch, plan *model.InstallPlan) error {
	index, err := a.ReadModrinthIndex()
	if err != nil {
		return err
	}

	for _, f := range index.Files {
		if !f.ClientSide() {
			continue
		}
		if len(f.Downloads) == 0 {
			return errdefs.New(errdefs.KindParse, f.Path, "pack file has no download URL")
		}
		ref := model.FileRef{URL: f.Downloads[0], FileName: path.Base(f.Path), Size: f.FileSize, Checksum: f.Checksum()}
		if err := enqueueRef(batch, target, f.Path, ref); err != nil {
			return err
		}
		plan.Files = append(plan.Files, ref)
	}

	loader, err := archive.LoaderFromPackDependencies(index.Dependencies)
	if err != nil {
		return err
	}
	plan.Loader = loader

	for _, dir := range []string{"overrides", "client-overrides"} {
		if err := svc.ExtractDirectory(a, dir, target); err != nil {
			return err
		}
	}
	return nil
}

// stagePackage downloads a package into the batch staging area and defers
// submit until it is verified
func stagePackage(batch download.Batch, ref model.FileRef, submit func(ctx context.Context, a *archive.Archive) error) error {
	name := path.Base(ref.FileName)
	if name == "." || name == "/" {
		name = "package.zip"
	}
	staged := batch.StagingPath(name)
	if _, err := batch.Enqueue(ref.URL, ref.Size, ref.Checksum, staged, ref.FileName); err != nil {
		return err
	}
	batch.Defer(func(ctx context.Context) error {
		a, err := archive.Open(staged)
		if err != nil {
			return err
		}
		defer a.Close()
		return submit(ctx, a)
	})
	return nil
}
