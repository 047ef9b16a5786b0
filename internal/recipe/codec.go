// Package recipe parses and serializes recipe documents. Parsing keeps the
// underlying YAML node tree so a loaded document can be written back without
// losing keys, values, or declaration order.
package recipe

import (
	"bytes"
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/aeolus-labs/aeolus-go/internal/domain"
)

// Document is a loaded recipe: the decoded model plus the original node tree
// used for lossless re-serialization.
type Document struct {
	Recipe domain.Recipe

	root yaml.Node
}

// Parse decodes a recipe document. The returned Document round-trips: Marshal
// reproduces every declared key and value.
func Parse(raw []byte) (*Document, error) {
	doc := &Document{}
	if err := yaml.Unmarshal(raw, &doc.root); err != nil {
		return nil, fmt.Errorf("decode recipe: %w", err)
	}
	if doc.root.Kind != yaml.DocumentNode || len(doc.root.Content) == 0 {
		return nil, errors.New("recipe document is empty")
	}
	top := doc.root.Content[0]
	if top.Kind != yaml.MappingNode {
		return nil, errors.New("recipe document must be a mapping")
	}

	for _, entry := range mappingEntries(top) {
		var err error
		switch entry.key {
		case "documentation":
			err = decodeDocumentation(entry.value, &doc.Recipe.Documentation)
		case "datasets":
			doc.Recipe.Datasets, err = decodeDatasets(entry.value)
		case "preprocessors":
			doc.Recipe.Preprocessors, err = decodePreprocessors(entry.value)
		case "diagnostics":
			doc.Recipe.Diagnostics, err = decodeDiagnostics(entry.value)
		}
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", entry.key, err)
		}
	}
	return doc, nil
}

// Marshal re-serializes the original document node tree.
func (d *Document) Marshal() ([]byte, error) {
	if d == nil || d.root.Kind == 0 {
		return nil, errors.New("document not loaded")
	}
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&d.root); err != nil {
		return nil, fmt.Errorf("encode recipe: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode recipe: %w", err)
	}
	return buf.Bytes(), nil
}

type mappingEntry struct {
	key   string
	value *yaml.Node
}

// mappingEntries returns the key/value pairs of a mapping node in declaration
// order.
func mappingEntries(node *yaml.Node) []mappingEntry {
	if node == nil || node.Kind != yaml.MappingNode {
		return nil
	}
	out := make([]mappingEntry, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		out = append(out, mappingEntry{key: node.Content[i].Value, value: node.Content[i+1]})
	}
	return out
}

func decodeDocumentation(node *yaml.Node, out *domain.Documentation) error {
	var doc struct {
		Title       string   `yaml:"title"`
		Description string   `yaml:"description"`
		Authors     []string `yaml:"authors"`
		Maintainer  []string `yaml:"maintainer"`
		References  []string `yaml:"references"`
		Projects    []string `yaml:"projects"`
	}
	if err := node.Decode(&doc); err != nil {
		return err
	}
	*out = domain.Documentation(doc)
	return nil
}

func decodeDatasets(node *yaml.Node) ([]domain.Dataset, error) {
	if node.Kind != yaml.SequenceNode {
		return nil, errors.New("datasets must be a sequence")
	}
	out := make([]domain.Dataset, 0, len(node.Content))
	for i, item := range node.Content {
		dataset, err := decodeDataset(item)
		if err != nil {
			return nil, fmt.Errorf("dataset[%d]: %w", i, err)
		}
		out = append(out, dataset)
	}
	return out, nil
}

func decodeDataset(node *yaml.Node) (domain.Dataset, error) {
	var doc struct {
		Dataset   string `yaml:"dataset"`
		Project   string `yaml:"project"`
		Mip       string `yaml:"mip"`
		Exp       string `yaml:"exp"`
		Ensemble  string `yaml:"ensemble"`
		Grid      string `yaml:"grid"`
		Type      string `yaml:"type"`
		Tier      int    `yaml:"tier"`
		Version   string `yaml:"version"`
		StartYear int    `yaml:"start_year"`
		EndYear   int    `yaml:"end_year"`
	}
	if err := node.Decode(&doc); err != nil {
		return domain.Dataset{}, err
	}
	return domain.Dataset(doc), nil
}

func decodePreprocessors(node *yaml.Node) ([]domain.Preprocessor, error) {
	if node.Kind != yaml.MappingNode {
		return nil, errors.New("preprocessors must be a mapping")
	}
	entries := mappingEntries(node)
	out := make([]domain.Preprocessor, 0, len(entries))
	for _, entry := range entries {
		preprocessor := domain.Preprocessor{Name: entry.key}
		for _, step := range mappingEntries(entry.value) {
			params, err := decodeParams(step.value)
			if err != nil {
				return nil, fmt.Errorf("preprocessor %s step %s: %w", entry.key, step.key, err)
			}
			preprocessor.Steps = append(preprocessor.Steps, domain.Step{Name: step.key, Params: params})
		}
		out = append(out, preprocessor)
	}
	return out, nil
}

func decodeParams(node *yaml.Node) (map[string]any, error) {
	if node == nil || node.Tag == "!!null" {
		return map[string]any{}, nil
	}
	var params map[string]any
	if err := node.Decode(&params); err != nil {
		return nil, err
	}
	if params == nil {
		params = map[string]any{}
	}
	return params, nil
}

func decodeDiagnostics(node *yaml.Node) ([]domain.Diagnostic, error) {
	if node.Kind != yaml.MappingNode {
		return nil, errors.New("diagnostics must be a mapping")
	}
	entries := mappingEntries(node)
	out := make([]domain.Diagnostic, 0, len(entries))
	for _, entry := range entries {
		diagnostic := domain.Diagnostic{Name: entry.key}
		for _, field := range mappingEntries(entry.value) {
			var err error
			switch field.key {
			case "description":
				err = field.value.Decode(&diagnostic.Description)
			case "themes":
				err = field.value.Decode(&diagnostic.Themes)
			case "realms":
				err = field.value.Decode(&diagnostic.Realms)
			case "variables":
				diagnostic.Variables, err = decodeVariables(field.value)
			case "scripts":
				diagnostic.Scripts, err = decodeScripts(field.value)
			case "additional_datasets":
				diagnostic.AdditionalDatasets, err = decodeDatasets(field.value)
			}
			if err != nil {
				return nil, fmt.Errorf("diagnostic %s: %s: %w", entry.key, field.key, err)
			}
		}
		out = append(out, diagnostic)
	}
	return out, nil
}

func decodeVariables(node *yaml.Node) ([]domain.Variable, error) {
	if node.Kind != yaml.MappingNode {
		return nil, errors.New("variables must be a mapping")
	}
	entries := mappingEntries(node)
	out := make([]domain.Variable, 0, len(entries))
	for _, entry := range entries {
		variable := domain.Variable{Name: entry.key}
		// A bare `tas:` entry declares a variable with defaults only.
		if entry.value.Tag == "!!null" {
			out = append(out, variable)
			continue
		}
		for _, field := range mappingEntries(entry.value) {
			var err error
			switch field.key {
			case "mip":
				err = field.value.Decode(&variable.Mip)
			case "start_year":
				err = field.value.Decode(&variable.StartYear)
			case "end_year":
				err = field.value.Decode(&variable.EndYear)
			case "preprocessor":
				err = field.value.Decode(&variable.Preprocessor)
			case "reference_dataset":
				err = field.value.Decode(&variable.ReferenceDataset)
			case "derive":
				err = field.value.Decode(&variable.Derive)
			case "additional_datasets":
				variable.AdditionalDatasets, err = decodeDatasets(field.value)
			}
			if err != nil {
				return nil, fmt.Errorf("variable %s: %s: %w", entry.key, field.key, err)
			}
		}
		out = append(out, variable)
	}
	return out, nil
}

func decodeScripts(node *yaml.Node) ([]domain.Script, error) {
	// `scripts: null` declares a diagnostic with variables only.
	if node.Tag == "!!null" {
		return nil, nil
	}
	if node.Kind != yaml.MappingNode {
		return nil, errors.New("scripts must be a mapping")
	}
	entries := mappingEntries(node)
	out := make([]domain.Script, 0, len(entries))
	for _, entry := range entries {
		script := domain.Script{Name: entry.key, Settings: map[string]any{}}
		for _, field := range mappingEntries(entry.value) {
			var err error
			switch field.key {
			case "script":
				err = field.value.Decode(&script.Script)
			case "ancestors":
				err = field.value.Decode(&script.Ancestors)
			default:
				var setting any
				if err = field.value.Decode(&setting); err == nil {
					script.Settings[field.key] = setting
				}
			}
			if err != nil {
				return nil, fmt.Errorf("script %s: %s: %w", entry.key, field.key, err)
			}
		}
		out = append(out, script)
	}
	return out, nil
}
