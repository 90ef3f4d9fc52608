// Package model holds the data shared between marketplace providers, the
// download coordinator and the archive service.
package model

// ContentType selects what a search returns
type ContentType string

const (
	ContentModpack ContentType = "modpack"
	ContentMod     ContentType = "mod"
)

// Filters are the search parameters passed to a provider
type Filters struct {
	Query       string
	Type        ContentType
	GameVersion string // exact version ("1.20.1") or a constraint ("~1.20")
	Loader      string // "forge", "fabric" or empty for any
}

// ModDetail is a search hit; LoadDetails fills Versions in place.
type ModDetail struct {
	ID            string
	Slug          string
	Title         string
	Summary       string
	Author        string
	IconURL       string
	Downloads     int64
	Provider      string
	Type          ContentType
	Versions      []FileVariant
	DetailsLoaded bool
}

// FileVariant is one downloadable version of a project
type FileVariant struct {
	ID            string
	Name          string
	VersionNumber string
	GameVersions  []string
	Loaders       []string
	Primary       FileRef
	Dependencies  map[string]DependencyDescriptor
}

// FileRef points at a downloadable file
type FileRef struct {
	URL      string
	FileName string
	Size     int64
	Checksum string // hex digest, empty when the provider has none
}

// Resolved reports whether the reference carries a usable URL.
func (f FileRef) Resolved() bool { return f.URL != "" }

// Relation is how a provider describes a dependency
type Relation string

const (
	RelationRequired     Relation = "required"
	RelationOptional     Relation = "optional"
	RelationIncompatible Relation = "incompatible"
	RelationEmbedded     Relation = "embedded"
)

// DependencyDescriptor is the raw, provider-shaped dependency entry
type DependencyDescriptor struct {
	ProjectID string
	VersionID string
	Relation  Relation
	File      *FileRef          // set when the provider already resolved the file
	Metadata  map[string]string // provider-specific lookup hints
}

// Requirement classifies a resolved dependency
type Requirement string

const (
	Required Requirement = "required"
	Optional Requirement = "optional"
)

// Dependency is a classified dependency. Exactly one of File or Lookup is set.
type Dependency struct {
	ID          string
	Requirement Requirement
	File        *FileRef
	Lookup      *DependencyDescriptor
}

// NeedsLookup reports whether a provider call is needed to find the file.
func (d Dependency) NeedsLookup() bool { return d.File == nil }

// LoaderRequirement is the loader runtime a package needs
type LoaderRequirement struct {
	LoaderType    string // "forge" or "fabric"
	VersionString string // e.g. "1.20.1-forge-47.2.0", "fabric-loader-0.14.21-1.20.1"
	GameVersion   string
	LoaderVersion string
}

// InstallPlan is what Install resolved and enqueued for a selection
type InstallPlan struct {
	Target       string
	Files        []FileRef
	Dependencies []Dependency
	Loader       *LoaderRequirement
	IsPackage    bool
}
