package provider

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"

	"github.com/go-modpackinstaller/pkg/archive"
	"github.com/go-modpackinstaller/pkg/config"
	"github.com/go-modpackinstaller/pkg/download"
	"github.com/go-modpackinstaller/pkg/errdefs"
	"github.com/go-modpackinstaller/pkg/model"
	"github.com/go-modpackinstaller/pkg/utils"
)

const modrinthName = "modrinth"

// Modrinth talks to the Modrinth v2 API
type Modrinth struct {
	api     *apiClient
	pager   *Pager
	archive *archive.Service
	logger  *utils.Logger
}

// NewModrinth creates a Modrinth backend
func NewModrinth(cfg *config.Config, logger *utils.Logger) *Modrinth {
	logger = logger.With("provider", modrinthName)
	return &Modrinth{
		api:     newAPIClient(modrinthName, cfg.ModrinthBaseURL, cfg, logger),
		pager:   NewPager(cfg.SearchPageSize, 0),
		archive: archive.NewService(logger),
		logger:  logger,
	}
}

func (m *Modrinth) Name() string           { return modrinthName }
func (m *Modrinth) ReachedLastPage() bool  { return m.pager.ReachedLastPage() }
func (m *Modrinth) LastSearchTerm() string { return m.pager.LastSearchTerm() }

type modrinthSearchResponse struct {
	Hits []struct {
		ProjectID   string `json:"project_id"`
		Slug        string `json:"slug"`
		Title       string `json:"title"`
		Description string `json:"description"`
		Author      string `json:"author"`
		IconURL     string `json:"icon_url"`
		Downloads   int64  `json:"downloads"`
		ProjectType string `json:"project_type"`
	} `json:"hits"`
	Offset    int `json:"offset"`
	Limit     int `json:"limit"`
	TotalHits int `json:"total_hits"`
}

type modrinthVersion struct {
	ID            string   `json:"id"`
	ProjectID     string   `json:"project_id"`
	Name          string   `json:"name"`
	VersionNumber string   `json:"version_number"`
	GameVersions  []string `json:"game_versions"`
	Loaders       []string `json:"loaders"`
	Files         []struct {
		Hashes   map[string]string `json:"hashes"`
		URL      string            `json:"url"`
		Filename string            `json:"filename"`
		Primary  bool              `json:"primary"`
		Size     int64             `json:"size"`
	} `json:"files"`
	Dependencies []struct {
		VersionID      string `json:"version_id"`
		ProjectID      string `json:"project_id"`
		FileName       string `json:"file_name"`
		DependencyType string `json:"dependency_type"`
	} `json:"dependencies"`
}

// primary returns the primary file, or the first one when none is flagged
func (v *modrinthVersion) primary() (model.FileRef, bool) {
	if len(v.Files) == 0 {
		return model.FileRef{}, false
	}
	f := v.Files[0]
	for _, candidate := range v.Files {
		if candidate.Primary {
			f = candidate
			break
		}
	}
	return model.FileRef{URL: f.URL, FileName: f.Filename, Size: f.Size, Checksum: f.Hashes["sha1"]}, true
}

func (v *modrinthVersion) toVariant() model.FileVariant {
	primary, _ := v.primary()
	variant := model.FileVariant{
		ID:            v.ID,
		Name:          v.Name,
		VersionNumber: v.VersionNumber,
		GameVersions:  v.GameVersions,
		Loaders:       v.Loaders,
		Primary:       primary,
		Dependencies:  make(map[string]model.DependencyDescriptor),
	}
	for _, d := range v.Dependencies {
		id := d.ProjectID
		if id == "" {
			id = d.VersionID
		}
		if id == "" {
			continue // file_name only dependencies cannot be looked up
		}
		desc := model.DependencyDescriptor{
			ProjectID: d.ProjectID,
			VersionID: d.VersionID,
			Relation:  model.Relation(d.DependencyType),
		}
		if d.FileName != "" {
			desc.Metadata = map[string]string{"file_name": d.FileName}
		}
		variant.Dependencies[id] = desc
	}
	return variant
}

// Search implements Provider
func (m *Modrinth) Search(ctx context.Context, filters model.Filters, previous []*model.ModDetail) ([]*model.ModDetail, error) {
	return m.pager.Next(ctx, filters, previous, func(ctx context.Context, offset, limit int) ([]*model.ModDetail, int, error) {
		query := url.Values{}
		query.Set("query", filters.Query)
		query.Set("offset", strconv.Itoa(offset))
		query.Set("limit", strconv.Itoa(limit))
		query.Set("index", "relevance")
		query.Set("facets", modrinthFacets(filters))

		var resp modrinthSearchResponse
		if err := m.api.getJSON(ctx, "/search", query, &resp); err != nil {
			return nil, 0, err
		}

		items := make([]*model.ModDetail, 0, len(resp.Hits))
		for _, hit := range resp.Hits {
			items = append(items, &model.ModDetail{
				ID:        hit.ProjectID,
				Slug:      hit.Slug,
				Title:     hit.Title,
				Summary:   hit.Description,
				Author:    hit.Author,
				IconURL:   hit.IconURL,
				Downloads: hit.Downloads,
				Provider:  modrinthName,
				Type:      model.ContentType(hit.ProjectType),
			})
		}
		return items, resp.TotalHits, nil
	})
}

// modrinthFacets builds the facets filter, an AND of OR-groups
func modrinthFacets(filters model.Filters) string {
	contentType := filters.Type
	if contentType == "" {
		contentType = model.ContentModpack
	}
	facets := [][]string{{"project_type:" + string(contentType)}}
	if isExactVersion(filters.GameVersion) {
		facets = append(facets, []string{"versions:" + filters.GameVersion})
	}
	if filters.Loader != "" {
		facets = append(facets, []string{"categories:" + filters.Loader})
	}
	data, _ := json.Marshal(facets)
	return string(data)
}

// LoadDetails implements Provider
func (m *Modrinth) LoadDetails(ctx context.Context, detail *model.ModDetail) error {
	var versions []modrinthVersion
	if err := m.api.getJSON(ctx, "/project/"+url.PathEscape(detail.ID)+"/version", nil, &versions); err != nil {
		return err
	}

	variants := make([]model.FileVariant, 0, len(versions))
	for i := range versions {
		if len(versions[i].Files) == 0 {
			continue
		}
		variants = append(variants, versions[i].toVariant())
	}
	detail.Versions = variants
	detail.DetailsLoaded = true
	return nil
}

// Install implements download.ModpackAPI
func (m *Modrinth) Install(ctx context.Context, detail *model.ModDetail, index int, target string, batch download.Batch) (*model.InstallPlan, error) {
	variant, err := selectVariant(ctx, m, detail, index)
	if err != nil {
		return nil, err
	}

	if !isPackage(detail, variant) {
		return installMod(ctx, m.archive, variant, target, batch, m.lookupDependency, m.logger)
	}

	plan := &model.InstallPlan{Target: target, IsPackage: true}
	err = stagePackage(batch, variant.Primary, func(ctx context.Context, a *archive.Archive) error {
		return submitModrinthPack(a, m.archive, target, batch, plan)
	})
	if err != nil {
		return nil, err
	}
	m.logger.Info("Queued pack %s %s", detail.Title, variant.VersionNumber)
	return plan, nil
}

// lookupDependency finds the file for a dependency that only carries ids
func (m *Modrinth) lookupDependency(ctx context.Context, dep model.Dependency, variant *model.FileVariant) (*model.FileRef, error) {
	if dep.Lookup.VersionID != "" {
		var v modrinthVersion
		if err := m.api.getJSON(ctx, "/version/"+url.PathEscape(dep.Lookup.VersionID), nil, &v); err != nil {
			return nil, err
		}
		if ref, ok := v.primary(); ok {
			return &ref, nil
		}
		return nil, errdefs.New(errdefs.KindProvider, dep.ID, "version %s has no files", dep.Lookup.VersionID)
	}

	query := url.Values{}
	if len(variant.Loaders) > 0 {
		loaders, _ := json.Marshal(variant.Loaders)
		query.Set("loaders", string(loaders))
	}
	if len(variant.GameVersions) > 0 {
		versions, _ := json.Marshal(variant.GameVersions)
		query.Set("game_versions", string(versions))
	}

	var versions []modrinthVersion
	if err := m.api.getJSON(ctx, "/project/"+url.PathEscape(dep.Lookup.ProjectID)+"/version", query, &versions); err != nil {
		return nil, err
	}
	for i := range versions {
		if ref, ok := versions[i].primary(); ok {
			return &ref, nil
		}
	}
	return nil, errdefs.New(errdefs.KindProvider, dep.ID, "no compatible version of %s", dep.Lookup.ProjectID)
}

// ResolveSHA1 implements HashResolver through the version_file endpoint
func (m *Modrinth) ResolveSHA1(ctx context.Context, sha1 string) (*model.FileRef, error) {
	query := url.Values{}
	query.Set("algorithm", "sha1")

	var v modrinthVersion
	if err := m.api.getJSON(ctx, "/version_file/"+url.PathEscape(sha1), query, &v); err != nil {
		return nil, err
	}
	for _, f := range v.Files {
		if utils.ChecksumEqual(f.Hashes["sha1"], sha1) {
			return &model.FileRef{URL: f.URL, FileName: f.Filename, Size: f.Size, Checksum: f.Hashes["sha1"]}, nil
		}
	}
	return nil, errdefs.New(errdefs.KindProvider, sha1, "hash lookup returned no matching file")
}

var (
	_ Provider     = (*Modrinth)(nil)
	_ HashResolver = (*Modrinth)(nil)
)
