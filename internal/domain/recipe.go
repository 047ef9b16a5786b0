package domain

import "strings"

// Recipe is the parsed form of a declarative recipe document: the datasets to
// retrieve, the named preprocessing chains, and the diagnostics to run.
// Recipes are immutable after load; slices preserve declaration order.
type Recipe struct {
	Documentation Documentation
	Datasets      []Dataset
	Preprocessors []Preprocessor
	Diagnostics   []Diagnostic
}

type Documentation struct {
	Title       string
	Description string
	Authors     []string
	Maintainer  []string
	References  []string
	Projects    []string
}

// Preprocessor is a named set of preprocessing steps. Declaration order is
// preserved for round-tripping; the engine applies steps in its own canonical
// order, not declaration order.
type Preprocessor struct {
	Name  string
	Steps []Step
}

// Step is a single preprocessing operation with free-form parameters.
type Step struct {
	Name   string
	Params map[string]any
}

// Diagnostic bundles the variables to prepare and the scripts to run on them.
type Diagnostic struct {
	Name               string
	Description        string
	Themes             []string
	Realms             []string
	Variables          []Variable
	Scripts            []Script
	AdditionalDatasets []Dataset
}

// Variable binds a short name to a preprocessor and a year range.
type Variable struct {
	Name               string
	Mip                string
	StartYear          int
	EndYear            int
	Preprocessor       string
	ReferenceDataset   string
	Derive             bool
	AdditionalDatasets []Dataset
}

// Script is one diagnostic script invocation. Ancestors name sibling scripts
// whose outputs must be produced first. Settings carries script-specific
// options (e.g. quickplot parameters) verbatim.
type Script struct {
	Name      string
	Script    string
	Ancestors []string
	Settings  map[string]any
}

// AncestorEdge is a directed execution-order constraint: From must complete
// before To starts.
type AncestorEdge struct {
	From string
	To   string
}

func (r Recipe) Preprocessor(name string) (Preprocessor, bool) {
	for _, p := range r.Preprocessors {
		if p.Name == name {
			return p, true
		}
	}
	return Preprocessor{}, false
}

func (r Recipe) Diagnostic(name string) (Diagnostic, bool) {
	for _, d := range r.Diagnostics {
		if d.Name == name {
			return d, true
		}
	}
	return Diagnostic{}, false
}

func (p Preprocessor) Step(name string) (Step, bool) {
	for _, s := range p.Steps {
		if s.Name == name {
			return s, true
		}
	}
	return Step{}, false
}

func (d Diagnostic) Script(name string) (Script, bool) {
	for _, s := range d.Scripts {
		if s.Name == name {
			return s, true
		}
	}
	return Script{}, false
}

// ScriptNameSet returns the set of script names declared in the diagnostic.
func (d Diagnostic) ScriptNameSet() map[string]struct{} {
	names := make(map[string]struct{}, len(d.Scripts))
	for _, s := range d.Scripts {
		if strings.TrimSpace(s.Name) == "" {
			continue
		}
		names[s.Name] = struct{}{}
	}
	return names
}

// AncestorEdges returns the ancestor relation as directed edges, one per
// declared ancestor.
func (d Diagnostic) AncestorEdges() []AncestorEdge {
	edges := make([]AncestorEdge, 0)
	for _, s := range d.Scripts {
		for _, ancestor := range s.Ancestors {
			edges = append(edges, AncestorEdge{From: ancestor, To: s.Name})
		}
	}
	return edges
}
