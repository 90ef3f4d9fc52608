package provider

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-modpackinstaller/pkg/archive"
	"github.com/go-modpackinstaller/pkg/config"
	"github.com/go-modpackinstaller/pkg/download"
	"github.com/go-modpackinstaller/pkg/errdefs"
	"github.com/go-modpackinstaller/pkg/model"
	"github.com/go-modpackinstaller/pkg/utils"
)

const (
	curseForgeName = "curseforge"

	curseForgeGameID       = 432
	curseForgeClassModpack = 4471
	curseForgeClassMod     = 6
	// the search endpoint rejects index+pageSize beyond this
	curseForgeMaxIndex = 10000
	filesPageSize      = 50

	DefaultCurseForgeCDN = "https://edge.forgecdn.net/files"
)

// CurseForge talks to the CurseForge v1 API. Every call needs an API key.
type CurseForge struct {
	api      *apiClient
	apiKey   string
	pager    *Pager
	archive  *archive.Service
	fallback HashResolver
	cdnURL   string
	logger   *utils.Logger
}

// NewCurseForge creates a CurseForge backend. fallback, when set, is asked
// for files whose download URL the API withholds.
func NewCurseForge(cfg *config.Config, logger *utils.Logger, fallback HashResolver) *CurseForge {
	logger = logger.With("provider", curseForgeName)
	c := &CurseForge{
		api:      newAPIClient(curseForgeName, cfg.CurseForgeBaseURL, cfg, logger),
		apiKey:   cfg.CurseForgeAPIKey,
		pager:    NewPager(cfg.SearchPageSize, curseForgeMaxIndex),
		archive:  archive.NewService(logger),
		fallback: fallback,
		cdnURL:   DefaultCurseForgeCDN,
		logger:   logger,
	}
	if c.apiKey != "" {
		c.api.headers["x-api-key"] = c.apiKey
	}
	return c
}

// SetCDNURL overrides the edge CDN used for withheld download URLs
func (c *CurseForge) SetCDNURL(u string) {
	c.cdnURL = strings.TrimRight(u, "/")
}

func (c *CurseForge) Name() string           { return curseForgeName }
func (c *CurseForge) ReachedLastPage() bool  { return c.pager.ReachedLastPage() }
func (c *CurseForge) LastSearchTerm() string { return c.pager.LastSearchTerm() }

func (c *CurseForge) requireKey(op string) error {
	if c.apiKey == "" {
		return errdefs.New(errdefs.KindAuth, op, "a CurseForge API key is required")
	}
	return nil
}

type curseForgePagination struct {
	Index       int `json:"index"`
	PageSize    int `json:"pageSize"`
	ResultCount int `json:"resultCount"`
	TotalCount  int `json:"totalCount"`
}

type curseForgeMod struct {
	ID            int     `json:"id"`
	Name          string  `json:"name"`
	Slug          string  `json:"slug"`
	Summary       string  `json:"summary"`
	DownloadCount float64 `json:"downloadCount"`
	ClassID       int     `json:"classId"`
	Logo          *struct {
		URL string `json:"url"`
	} `json:"logo"`
	Authors []struct {
		Name string `json:"name"`
	} `json:"authors"`
}

type curseForgeFile struct {
	ID           int      `json:"id"`
	ModID        int      `json:"modId"`
	DisplayName  string   `json:"displayName"`
	FileName     string   `json:"fileName"`
	FileLength   int64    `json:"fileLength"`
	DownloadURL  string   `json:"downloadUrl"`
	GameVersions []string `json:"gameVersions"`
	IsServerPack bool     `json:"isServerPack"`
	Hashes       []struct {
		Value string `json:"value"`
		Algo  int    `json:"algo"` // 1 sha1, 2 md5
	} `json:"hashes"`
	Dependencies []struct {
		ModID        int `json:"modId"`
		RelationType int `json:"relationType"`
	} `json:"dependencies"`
}

func (f *curseForgeFile) sha1() string {
	for _, h := range f.Hashes {
		if h.Algo == 1 {
			return h.Value
		}
	}
	return ""
}

func (f *curseForgeFile) toFileRef() model.FileRef {
	return model.FileRef{URL: f.DownloadURL, FileName: f.FileName, Size: f.FileLength, Checksum: f.sha1()}
}

// curseForgeRelation maps relationType onto the shared relation names
func curseForgeRelation(t int) model.Relation {
	switch t {
	case 3:
		return model.RelationRequired
	case 2, 4:
		return model.RelationOptional
	case 5:
		return model.RelationIncompatible
	default: // 1 embedded library, 6 include
		return model.RelationEmbedded
	}
}

func (f *curseForgeFile) toVariant() model.FileVariant {
	variant := model.FileVariant{
		ID:            strconv.Itoa(f.ID),
		Name:          f.DisplayName,
		VersionNumber: f.DisplayName,
		Primary:       f.toFileRef(),
		Dependencies:  make(map[string]model.DependencyDescriptor),
	}
	// gameVersions mixes game versions, loader names and sides
	for _, gv := range f.GameVersions {
		switch strings.ToLower(gv) {
		case "forge", "fabric", "neoforge", "quilt":
			variant.Loaders = append(variant.Loaders, strings.ToLower(gv))
		case "client", "server":
		default:
			variant.GameVersions = append(variant.GameVersions, gv)
		}
	}
	for _, d := range f.Dependencies {
		id := strconv.Itoa(d.ModID)
		variant.Dependencies[id] = model.DependencyDescriptor{ProjectID: id, Relation: curseForgeRelation(d.RelationType)}
	}
	return variant
}

// curseForgeLoaderType is the modLoaderType enum of the API
func curseForgeLoaderType(loader string) string {
	switch strings.ToLower(loader) {
	case "forge":
		return "1"
	case "fabric":
		return "4"
	default:
		return ""
	}
}

// Search implements Provider
func (c *CurseForge) Search(ctx context.Context, filters model.Filters, previous []*model.ModDetail) ([]*model.ModDetail, error) {
	if err := c.requireKey("search"); err != nil {
		return nil, err
	}
	return c.pager.Next(ctx, filters, previous, func(ctx context.Context, offset, limit int) ([]*model.ModDetail, int, error) {
		classID := curseForgeClassModpack
		contentType := model.ContentModpack
		if filters.Type == model.ContentMod {
			classID = curseForgeClassMod
			contentType = model.ContentMod
		}

		query := url.Values{}
		query.Set("gameId", strconv.Itoa(curseForgeGameID))
		query.Set("classId", strconv.Itoa(classID))
		query.Set("searchFilter", filters.Query)
		query.Set("sortField", "2") // popularity
		query.Set("sortOrder", "desc")
		query.Set("index", strconv.Itoa(offset))
		query.Set("pageSize", strconv.Itoa(limit))
		if isExactVersion(filters.GameVersion) {
			query.Set("gameVersion", filters.GameVersion)
		}
		if lt := curseForgeLoaderType(filters.Loader); lt != "" {
			query.Set("modLoaderType", lt)
		}

		var resp struct {
			Data       []curseForgeMod      `json:"data"`
			Pagination curseForgePagination `json:"pagination"`
		}
		if err := c.api.getJSON(ctx, "/mods/search", query, &resp); err != nil {
			return nil, 0, err
		}

		items := make([]*model.ModDetail, 0, len(resp.Data))
		for _, mod := range resp.Data {
			detail := &model.ModDetail{
				ID:        strconv.Itoa(mod.ID),
				Slug:      mod.Slug,
				Title:     mod.Name,
				Summary:   mod.Summary,
				Downloads: int64(mod.DownloadCount),
				Provider:  curseForgeName,
				Type:      contentType,
			}
			if mod.Logo != nil {
				detail.IconURL = mod.Logo.URL
			}
			if len(mod.Authors) > 0 {
				detail.Author = mod.Authors[0].Name
			}
			items = append(items, detail)
		}
		return items, resp.Pagination.TotalCount, nil
	})
}

// listFiles pages through the files of a project
func (c *CurseForge) listFiles(ctx context.Context, modID string, query url.Values) ([]curseForgeFile, error) {
	if query == nil {
		query = url.Values{}
	}
	var files []curseForgeFile
	for index := 0; ; index += filesPageSize {
		query.Set("index", strconv.Itoa(index))
		query.Set("pageSize", strconv.Itoa(filesPageSize))

		var resp struct {
			Data       []curseForgeFile     `json:"data"`
			Pagination curseForgePagination `json:"pagination"`
		}
		if err := c.api.getJSON(ctx, "/mods/"+url.PathEscape(modID)+"/files", query, &resp); err != nil {
			return nil, err
		}
		files = append(files, resp.Data...)
		total := resp.Pagination.TotalCount
		if len(resp.Data) < filesPageSize || (total > 0 && index+len(resp.Data) >= total) {
			return files, nil
		}
	}
}

// LoadDetails implements Provider. Server packs are not offered.
func (c *CurseForge) LoadDetails(ctx context.Context, detail *model.ModDetail) error {
	if err := c.requireKey("details"); err != nil {
		return err
	}
	files, err := c.listFiles(ctx, detail.ID, nil)
	if err != nil {
		return err
	}

	variants := make([]model.FileVariant, 0, len(files))
	for i := range files {
		if files[i].IsServerPack {
			continue
		}
		variants = append(variants, files[i].toVariant())
	}
	detail.Versions = variants
	detail.DetailsLoaded = true
	return nil
}

// resolveURL fills in a download URL the API withheld: first by asking the
// fallback resolver for the same sha1, then by building the edge CDN path.
func (c *CurseForge) resolveURL(ctx context.Context, fileID string, ref *model.FileRef) {
	if ref.Resolved() {
		return
	}
	if c.fallback != nil && ref.Checksum != "" {
		found, err := c.fallback.ResolveSHA1(ctx, ref.Checksum)
		if err == nil && found.Resolved() {
			c.logger.Debug("Resolved %s through hash lookup", ref.FileName)
			ref.URL = found.URL
			return
		}
		c.logger.Debug("Hash lookup for %s failed: %v", ref.FileName, err)
	}
	id, err := strconv.Atoi(fileID)
	if err != nil || ref.FileName == "" {
		return
	}
	ref.URL = fmt.Sprintf("%s/%d/%d/%s", c.cdnURL, id/1000, id%1000, url.PathEscape(ref.FileName))
}

// Install implements download.ModpackAPI
func (c *CurseForge) Install(ctx context.Context, detail *model.ModDetail, index int, target string, batch download.Batch) (*model.InstallPlan, error) {
	if err := c.requireKey("install"); err != nil {
		return nil, err
	}
	variant, err := selectVariant(ctx, c, detail, index)
	if err != nil {
		return nil, err
	}
	c.resolveURL(ctx, variant.ID, &variant.Primary)

	if !isPackage(detail, variant) {
		return installMod(ctx, c.archive, variant, target, batch, c.lookupDependency, c.logger)
	}

	plan := &model.InstallPlan{Target: target, IsPackage: true}
	err = stagePackage(batch, variant.Primary, func(ctx context.Context, a *archive.Archive) error {
		return c.submitPackage(ctx, a, target, batch, plan)
	})
	if err != nil {
		return nil, err
	}
	c.logger.Info("Queued pack %s %s", detail.Title, variant.Name)
	return plan, nil
}

// submitPackage resolves a CurseForge manifest into transfers and extracts
// its overrides
func (c *CurseForge) submitPackage(ctx context.Context, a *archive.Archive, target string, batch download.Batch, plan *model.InstallPlan) error {
	manifest, err := a.ReadCurseForgeManifest()
	if err != nil {
		return err
	}

	var ids []int
	for _, f := range manifest.Files {
		if f.Required {
			ids = append(ids, f.FileID)
		}
	}

	if len(ids) > 0 {
		var resp struct {
			Data []curseForgeFile `json:"data"`
		}
		if err := c.api.postJSON(ctx, "/mods/files", map[string][]int{"fileIds": ids}, &resp); err != nil {
			return err
		}
		if len(resp.Data) < len(ids) {
			return errdefs.New(errdefs.KindProvider, manifest.Name, "%d of %d pack files are unavailable", len(ids)-len(resp.Data), len(ids))
		}
		for i := range resp.Data {
			ref := resp.Data[i].toFileRef()
			c.resolveURL(ctx, strconv.Itoa(resp.Data[i].ID), &ref)
			if err := enqueueRef(batch, target, modPath(ref.FileName), ref); err != nil {
				return err
			}
			plan.Files = append(plan.Files, ref)
		}
	}

	loader, err := archive.LoaderFromModLoaderID(manifest.PrimaryLoader(), manifest.Minecraft.Version)
	if err != nil {
		return err
	}
	plan.Loader = loader

	return c.archive.ExtractDirectory(a, manifest.Overrides, target)
}

// lookupDependency picks the newest file of a dependency matching the
// dependent's game version and loader
func (c *CurseForge) lookupDependency(ctx context.Context, dep model.Dependency, variant *model.FileVariant) (*model.FileRef, error) {
	query := url.Values{}
	if len(variant.GameVersions) > 0 {
		query.Set("gameVersion", variant.GameVersions[0])
	}
	if len(variant.Loaders) > 0 {
		if lt := curseForgeLoaderType(variant.Loaders[0]); lt != "" {
			query.Set("modLoaderType", lt)
		}
	}

	files, err := c.listFiles(ctx, dep.Lookup.ProjectID, query)
	if err != nil {
		return nil, err
	}
	for i := range files {
		if files[i].IsServerPack {
			continue
		}
		ref := files[i].toFileRef()
		c.resolveURL(ctx, strconv.Itoa(files[i].ID), &ref)
		return &ref, nil
	}
	return nil, errdefs.New(errdefs.KindProvider, dep.ID, "no compatible file for project %s", dep.Lookup.ProjectID)
}

var _ Provider = (*CurseForge)(nil)
