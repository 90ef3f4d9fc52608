package archive

import (
	"strings"

	"github.com/go-modpackinstaller/pkg/errdefs"
	"github.com/go-modpackinstaller/pkg/model"
)

// ForgeVersionString builds the installed version id of a Forge loader
func ForgeVersionString(gameVersion, loaderVersion string) string {
	return gameVersion + "-forge-" + loaderVersion
}

// FabricVersionString builds the installed version id of a Fabric loader
func FabricVersionString(gameVersion, loaderVersion string) string {
	return "fabric-loader-" + loaderVersion + "-" + gameVersion
}

// LoaderFromPackDependencies reads the loader out of a Modrinth index
// dependency map. A pack without a loader yields nil.
func LoaderFromPackDependencies(deps map[string]string) (*model.LoaderRequirement, error) {
	mc := deps["minecraft"]
	switch {
	case deps["forge"] != "":
		return forgeRequirement(mc, deps["forge"])
	case deps["fabric-loader"] != "":
		return fabricRequirement(mc, deps["fabric-loader"])
	case deps["neoforge"] != "", deps["quilt-loader"] != "":
		return nil, errdefs.New(errdefs.KindParse, ModrinthIndexName, "unsupported loader in %v", deps)
	}
	return nil, nil
}

// LoaderFromModLoaderID reads a CurseForge loader id such as "forge-47.2.0"
// or "fabric-0.14.21". An empty id yields nil.
func LoaderFromModLoaderID(id, gameVersion string) (*model.LoaderRequirement, error) {
	if id == "" {
		return nil, nil
	}
	name, version, ok := strings.Cut(id, "-")
	if !ok || version == "" {
		return nil, errdefs.New(errdefs.KindParse, CurseForgeManifestName, "malformed loader id %q", id)
	}
	switch strings.ToLower(name) {
	case "forge":
		return forgeRequirement(gameVersion, version)
	case "fabric":
		return fabricRequirement(gameVersion, version)
	default:
		return nil, errdefs.New(errdefs.KindParse, CurseForgeManifestName, "unsupported loader %q", id)
	}
}

func forgeRequirement(mc, version string) (*model.LoaderRequirement, error) {
	if mc == "" {
		return nil, errdefs.New(errdefs.KindParse, "forge", "loader declared without a game version")
	}
	// Some packs carry the full "<mc>-<forge>" form
	version = strings.TrimPrefix(version, mc+"-")
	return &model.LoaderRequirement{
		LoaderType:    "forge",
		VersionString: ForgeVersionString(mc, version),
		GameVersion:   mc,
		LoaderVersion: version,
	}, nil
}

func fabricRequirement(mc, version string) (*model.LoaderRequirement, error) {
	if mc == "" {
		return nil, errdefs.New(errdefs.KindParse, "fabric", "loader declared without a game version")
	}
	return &model.LoaderRequirement{
		LoaderType:    "fabric",
		VersionString: FabricVersionString(mc, version),
		GameVersion:   mc,
		LoaderVersion: version,
	}, nil
}
