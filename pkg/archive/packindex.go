package archive

import (
	"encoding/json"

	"github.com/go-modpackinstaller/pkg/errdefs"
)

const (
	ModrinthIndexName      = "modrinth.index.json"
	CurseForgeManifestName = "manifest.json"
)

// PackFormat identifies the layout of a package archive
type PackFormat int

const (
	FormatUnknown PackFormat = iota
	FormatModrinth
	FormatCurseForge
)

func (f PackFormat) String() string {
	switch f {
	case FormatModrinth:
		return "mrpack"
	case FormatCurseForge:
		return "curseforge"
	default:
		return "unknown"
	}
}

// Format detects the package layout from its index file
func (a *Archive) Format() PackFormat {
	switch {
	case a.Has(ModrinthIndexName):
		return FormatModrinth
	case a.Has(CurseForgeManifestName):
		return FormatCurseForge
	default:
		return FormatUnknown
	}
}

// ModrinthIndex is modrinth.index.json
type ModrinthIndex struct {
	FormatVersion int                 `json:"formatVersion"`
	Game          string              `json:"game"`
	VersionID     string              `json:"versionId"`
	Name          string              `json:"name"`
	Summary       string              `json:"summary,omitempty"`
	Files         []ModrinthIndexFile `json:"files"`
	Dependencies  map[string]string   `json:"dependencies"`
}

// ModrinthIndexFile is one file listed by a Modrinth pack
type ModrinthIndexFile struct {
	Path      string            `json:"path"`
	Hashes    map[string]string `json:"hashes"`
	Env       map[string]string `json:"env,omitempty"`
	Downloads []string          `json:"downloads"`
	FileSize  int64             `json:"fileSize"`
}

// ClientSide reports whether the file is wanted on a client install
func (f ModrinthIndexFile) ClientSide() bool {
	return f.Env == nil || f.Env["client"] != "unsupported"
}

// Checksum returns the strongest digest the index carries
func (f ModrinthIndexFile) Checksum() string {
	if v := f.Hashes["sha512"]; v != "" {
		return v
	}
	return f.Hashes["sha1"]
}

// CurseForgeManifest is manifest.json of a CurseForge modpack
type CurseForgeManifest struct {
	Minecraft struct {
		Version    string `json:"version"`
		ModLoaders []struct {
			ID      string `json:"id"`
			Primary bool   `json:"primary"`
		} `json:"modLoaders"`
	} `json:"minecraft"`
	ManifestType    string                   `json:"manifestType"`
	ManifestVersion int                      `json:"manifestVersion"`
	Name            string                   `json:"name"`
	Version         string                   `json:"version"`
	Author          string                   `json:"author"`
	Files           []CurseForgeManifestFile `json:"files"`
	Overrides       string                   `json:"overrides"`
}

// CurseForgeManifestFile references a file by project and file id
type CurseForgeManifestFile struct {
	ProjectID int  `json:"projectID"`
	FileID    int  `json:"fileID"`
	Required  bool `json:"required"`
}

// PrimaryLoader returns the id of the primary mod loader, e.g. "forge-47.2.0"
func (m *CurseForgeManifest) PrimaryLoader() string {
	for _, l := range m.Minecraft.ModLoaders {
		if l.Primary {
			return l.ID
		}
	}
	if len(m.Minecraft.ModLoaders) > 0 {
		return m.Minecraft.ModLoaders[0].ID
	}
	return ""
}

// ReadModrinthIndex decodes modrinth.index.json
func (a *Archive) ReadModrinthIndex() (*ModrinthIndex, error) {
	data, err := a.ReadFile(ModrinthIndexName)
	if err != nil {
		return nil, err
	}
	var index ModrinthIndex
	if err := json.Unmarshal(data, &index); err != nil {
		return nil, errdefs.Wrap(errdefs.KindParse, ModrinthIndexName, err)
	}
	if index.Game != "" && index.Game != "minecraft" {
		return nil, errdefs.New(errdefs.KindParse, ModrinthIndexName, "unsupported game %q", index.Game)
	}
	return &index, nil
}

// ReadCurseForgeManifest decodes manifest.json
func (a *Archive) ReadCurseForgeManifest() (*CurseForgeManifest, error) {
	data, err := a.ReadFile(CurseForgeManifestName)
	if err != nil {
		return nil, err
	}
	var manifest CurseForgeManifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, errdefs.Wrap(errdefs.KindParse, CurseForgeManifestName, err)
	}
	if manifest.Minecraft.Version == "" {
		return nil, errdefs.New(errdefs.KindParse, CurseForgeManifestName, "missing minecraft.version")
	}
	if manifest.Overrides == "" {
		manifest.Overrides = "overrides"
	}
	return &manifest, nil
}
