package archive

import (
	"sort"

	"github.com/go-modpackinstaller/pkg/model"
)

// ResolveDependencies classifies a provider dependency map. Required and
// optional entries are kept; incompatible and embedded ones are dropped
// because nothing has to be fetched for them. Entries whose file is already
// known carry it directly, the rest carry a lookup descriptor for the
// provider. The result is ordered by id.
func (s *Service) ResolveDependencies(deps map[string]model.DependencyDescriptor) []model.Dependency {
	ids := make([]string, 0, len(deps))
	for id := range deps {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var resolved []model.Dependency
	for _, id := range ids {
		desc := deps[id]

		var requirement model.Requirement
		switch desc.Relation {
		case model.RelationRequired:
			requirement = model.Required
		case model.RelationOptional, "":
			requirement = model.Optional
		default:
			s.logger.Verbose("Skipping %s dependency %s", desc.Relation, id)
			continue
		}

		dep := model.Dependency{ID: id, Requirement: requirement}
		if desc.File != nil && desc.File.Resolved() {
			file := *desc.File
			dep.File = &file
		} else {
			lookup := desc
			if lookup.ProjectID == "" {
				lookup.ProjectID = id
			}
			dep.Lookup = &lookup
		}
		resolved = append(resolved, dep)
	}
	return resolved
}
