// Package validate performs structural and referential validation of parsed
// recipes. All checks run before any execution: missing required dataset
// facets, unresolved preprocessor or ancestor references, and ancestor cycles
// all surface here, aggregated into a single error.
package validate

import (
	"fmt"
	"strings"

	"github.com/aeolus-labs/aeolus-go/internal/domain"
	"github.com/aeolus-labs/aeolus-go/internal/recipe"
)

// DefaultPreprocessor is the implicit pass-through chain a variable uses when
// it names no preprocessor. It need not be declared in the document.
const DefaultPreprocessor = "default"

// ValidateRecipe checks a parsed recipe and returns a *ValidationError
// listing every issue found, or nil when the recipe is valid.
func ValidateRecipe(rec domain.Recipe) error {
	issues := &ValidationError{}

	validateDocumentation(rec.Documentation, issues)
	validateDatasets(rec.Datasets, "datasets", nil, issues)
	validatePreprocessors(rec.Preprocessors, issues)

	if len(rec.Diagnostics) == 0 {
		issues.Add("at least one diagnostic is required")
	}
	for _, diagnostic := range rec.Diagnostics {
		validateDiagnostic(rec, diagnostic, issues)
	}

	return issues.OrNil()
}

func validateDocumentation(doc domain.Documentation, issues *ValidationError) {
	if strings.TrimSpace(doc.Description) == "" {
		issues.Add("documentation.description is required")
	}
	if len(doc.Authors) == 0 {
		issues.Add("documentation.authors is required")
	}
	if len(doc.Maintainer) == 0 {
		issues.Add("documentation.maintainer is required")
	}
}

// validateDatasets checks one declaration scope. The variable, when given,
// provides the mip and year-range fallback for entries declared beneath it.
func validateDatasets(datasets []domain.Dataset, scope string, variable *domain.Variable, issues *ValidationError) {
	seen := make(map[string]struct{}, len(datasets))
	for i, dataset := range datasets {
		label := fmt.Sprintf("%s[%d]", scope, i)
		if err := dataset.Validate(); err != nil {
			issues.Add(fmt.Sprintf("%s: %v", label, err))
			continue
		}

		key := dataset.Key()
		if _, dup := seen[key]; dup {
			issues.Add(fmt.Sprintf("%s: duplicate dataset entry %q", label, dataset.Dataset))
		}
		seen[key] = struct{}{}

		project := strings.TrimSpace(dataset.Project)
		if project == "" {
			issues.Add(fmt.Sprintf("%s: project is required", label))
			continue
		}
		required, known := recipe.RequiredFacets(project)
		if !known {
			issues.Add(fmt.Sprintf("%s: unknown project %q", label, project))
			continue
		}

		facets := dataset.Facets()
		if variable != nil {
			mergeVariableFacets(facets, *variable)
		}
		for _, facet := range required {
			if variable == nil && inheritableFacet(facet) {
				continue
			}
			if _, ok := facets[facet]; !ok {
				issues.Add(fmt.Sprintf("%s: missing required facet %q for project %s", label, facet, project))
			}
		}
	}
}

// mip, start_year and end_year may be inherited from the variable a dataset
// is combined with, so entries declared above variable level omit them.
func inheritableFacet(name string) bool {
	switch name {
	case "mip", "start_year", "end_year":
		return true
	default:
		return false
	}
}

func mergeVariableFacets(facets map[string]string, variable domain.Variable) {
	if _, ok := facets["mip"]; !ok && strings.TrimSpace(variable.Mip) != "" {
		facets["mip"] = strings.TrimSpace(variable.Mip)
	}
	if _, ok := facets["start_year"]; !ok && variable.StartYear > 0 {
		facets["start_year"] = fmt.Sprintf("%d", variable.StartYear)
	}
	if _, ok := facets["end_year"]; !ok && variable.EndYear > 0 {
		facets["end_year"] = fmt.Sprintf("%d", variable.EndYear)
	}
}

func validatePreprocessors(preprocessors []domain.Preprocessor, issues *ValidationError) {
	seen := make(map[string]struct{}, len(preprocessors))
	for _, preprocessor := range preprocessors {
		name := strings.TrimSpace(preprocessor.Name)
		if name == "" {
			issues.Add("preprocessor name is required")
			continue
		}
		if _, dup := seen[name]; dup {
			issues.Add(fmt.Sprintf("duplicate preprocessor %q", name))
		}
		seen[name] = struct{}{}

		for _, step := range preprocessor.Steps {
			if !recipe.KnownStep(step.Name) {
				issues.Add(fmt.Sprintf("preprocessor %s: unknown step %q", name, step.Name))
			}
		}
	}
}

func validateDiagnostic(rec domain.Recipe, diagnostic domain.Diagnostic, issues *ValidationError) {
	name := strings.TrimSpace(diagnostic.Name)
	if name == "" {
		issues.Add("diagnostic name is required")
		return
	}
	if len(diagnostic.Variables) == 0 && len(diagnostic.Scripts) == 0 {
		issues.Add(fmt.Sprintf("diagnostic %s: variables or scripts are required", name))
	}

	validateDatasets(diagnostic.AdditionalDatasets, fmt.Sprintf("diagnostic %s additional_datasets", name), nil, issues)

	for _, variable := range diagnostic.Variables {
		validateVariable(rec, name, variable, issues)
	}

	validateScripts(name, diagnostic, issues)
}

func validateVariable(rec domain.Recipe, diagnostic string, variable domain.Variable, issues *ValidationError) {
	label := fmt.Sprintf("diagnostic %s variable %s", diagnostic, variable.Name)
	if strings.TrimSpace(variable.Name) == "" {
		issues.Add(fmt.Sprintf("diagnostic %s: variable name is required", diagnostic))
		return
	}

	if variable.StartYear > 0 && variable.EndYear > 0 && variable.StartYear > variable.EndYear {
		issues.Add(fmt.Sprintf("%s: start_year %d is after end_year %d", label, variable.StartYear, variable.EndYear))
	}

	preprocessor := strings.TrimSpace(variable.Preprocessor)
	if preprocessor != "" && preprocessor != DefaultPreprocessor {
		if _, ok := rec.Preprocessor(preprocessor); !ok {
			issues.Add(fmt.Sprintf("%s: preprocessor %q not declared", label, preprocessor))
		}
	}

	validateDatasets(variable.AdditionalDatasets, label+" additional_datasets", &variable, issues)

	reference := strings.TrimSpace(variable.ReferenceDataset)
	if reference != "" && !datasetDeclared(rec, variable, reference) {
		issues.Add(fmt.Sprintf("%s: reference_dataset %q not declared", label, reference))
	}
}

func datasetDeclared(rec domain.Recipe, variable domain.Variable, name string) bool {
	for _, dataset := range rec.Datasets {
		if dataset.Dataset == name {
			return true
		}
	}
	for _, dataset := range variable.AdditionalDatasets {
		if dataset.Dataset == name {
			return true
		}
	}
	for _, diagnostic := range rec.Diagnostics {
		for _, dataset := range diagnostic.AdditionalDatasets {
			if dataset.Dataset == name {
				return true
			}
		}
	}
	return false
}

func validateScripts(diagnostic string, d domain.Diagnostic, issues *ValidationError) {
	names := d.ScriptNameSet()
	seen := make(map[string]struct{}, len(d.Scripts))
	adj := make(map[string][]string, len(d.Scripts))

	for _, script := range d.Scripts {
		name := strings.TrimSpace(script.Name)
		if name == "" {
			issues.Add(fmt.Sprintf("diagnostic %s: script name is required", diagnostic))
			continue
		}
		if _, dup := seen[name]; dup {
			issues.Add(fmt.Sprintf("diagnostic %s: duplicate script %q", diagnostic, name))
		}
		seen[name] = struct{}{}

		if strings.TrimSpace(script.Script) == "" {
			issues.Add(fmt.Sprintf("diagnostic %s script %s: script path is required", diagnostic, name))
		}

		for _, ancestor := range script.Ancestors {
			ancestor = strings.TrimSpace(ancestor)
			if ancestor == "" {
				issues.Add(fmt.Sprintf("diagnostic %s script %s: empty ancestor reference", diagnostic, name))
				continue
			}
			if ancestor == name {
				issues.Add(fmt.Sprintf("diagnostic %s script %s: ancestor references itself", diagnostic, name))
				continue
			}
			if _, ok := names[ancestor]; !ok {
				issues.Add(fmt.Sprintf("diagnostic %s script %s: ancestor %q is not a sibling script", diagnostic, name, ancestor))
				continue
			}
			adj[ancestor] = append(adj[ancestor], name)
		}
	}

	if hasCycle(adj, names) {
		issues.Add(fmt.Sprintf("diagnostic %s: ancestor graph contains a cycle", diagnostic))
	}
}

func hasCycle(adj map[string][]string, nodes map[string]struct{}) bool {
	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := make(map[string]int, len(nodes))
	var visit func(string) bool
	visit = func(node string) bool {
		switch state[node] {
		case visiting:
			return true
		case done:
			return false
		}
		state[node] = visiting
		for _, next := range adj[node] {
			if visit(next) {
				return true
			}
		}
		state[node] = done
		return false
	}

	for node := range nodes {
		if state[node] == unvisited {
			if visit(node) {
				return true
			}
		}
	}
	return false
}
