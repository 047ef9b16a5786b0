package recipe

import "strings"

// Required facet sets per project. A dataset entry must supply every facet
// its project requires; the mip may come from the variable the dataset is
// attached to, so it is checked against the merged facet view.
var requiredFacets = map[string][]string{
	"CMIP5":    {"dataset", "project", "exp", "ensemble", "mip", "start_year", "end_year"},
	"CMIP6":    {"dataset", "project", "exp", "ensemble", "grid", "mip", "start_year", "end_year"},
	"OBS":      {"dataset", "project", "type", "tier", "mip", "start_year", "end_year"},
	"obs4MIPs": {"dataset", "project", "tier", "mip", "start_year", "end_year"},
	"ana4mips": {"dataset", "project", "mip", "start_year", "end_year"},
}

// RequiredFacets returns the facets a project demands, or false when the
// project is not recognized.
func RequiredFacets(project string) ([]string, bool) {
	facets, ok := requiredFacets[strings.TrimSpace(project)]
	return facets, ok
}

// KnownProjects lists the recognized project identifiers in stable order.
func KnownProjects() []string {
	return []string{"CMIP5", "CMIP6", "OBS", "ana4mips", "obs4MIPs"}
}
