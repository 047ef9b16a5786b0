package recipe

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func loadTestdata(t *testing.T, name string) []byte {
	t.Helper()
	raw, err := os.ReadFile(filepath.Join("testdata", name))
	if err != nil {
		t.Fatalf("read %s: %v", name, err)
	}
	return raw
}

func TestParseExampleRecipe(t *testing.T) {
	doc, err := Parse(loadTestdata(t, "recipe_example.yml"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	rec := doc.Recipe

	if rec.Documentation.Title != "Example recipe" {
		t.Fatalf("unexpected title %q", rec.Documentation.Title)
	}
	if got := len(rec.Documentation.Authors); got != 2 {
		t.Fatalf("expected 2 authors, got %d", got)
	}

	if got := len(rec.Datasets); got != 2 {
		t.Fatalf("expected 2 datasets, got %d", got)
	}
	if rec.Datasets[0].Dataset != "CanESM2" || rec.Datasets[1].Dataset != "MPI-ESM-LR" {
		t.Fatalf("datasets out of declaration order: %+v", rec.Datasets)
	}

	if got := len(rec.Preprocessors); got != 2 {
		t.Fatalf("expected 2 preprocessors, got %d", got)
	}
	if rec.Preprocessors[0].Name != "preprocessor1" || rec.Preprocessors[1].Name != "preprocessor2" {
		t.Fatalf("preprocessors out of declaration order")
	}
	wantSteps := []string{"extract_levels", "regrid", "mask_landsea", "multi_model_statistics"}
	var gotSteps []string
	for _, step := range rec.Preprocessors[0].Steps {
		gotSteps = append(gotSteps, step.Name)
	}
	if !reflect.DeepEqual(gotSteps, wantSteps) {
		t.Fatalf("steps = %v, want %v", gotSteps, wantSteps)
	}

	if got := len(rec.Diagnostics); got != 1 {
		t.Fatalf("expected 1 diagnostic, got %d", got)
	}
	diagnostic := rec.Diagnostics[0]
	if diagnostic.Name != "diagnostic1" {
		t.Fatalf("unexpected diagnostic name %q", diagnostic.Name)
	}
	if len(diagnostic.Variables) != 2 || diagnostic.Variables[0].Name != "ta" || diagnostic.Variables[1].Name != "pr" {
		t.Fatalf("variables out of declaration order: %+v", diagnostic.Variables)
	}
	if diagnostic.Variables[0].Preprocessor != "preprocessor1" {
		t.Fatalf("unexpected preprocessor %q", diagnostic.Variables[0].Preprocessor)
	}
	if diagnostic.Variables[0].ReferenceDataset != "CanESM2" {
		t.Fatalf("unexpected reference_dataset %q", diagnostic.Variables[0].ReferenceDataset)
	}
	if diagnostic.Variables[0].StartYear != 2000 || diagnostic.Variables[0].EndYear != 2002 {
		t.Fatalf("unexpected year range %d-%d", diagnostic.Variables[0].StartYear, diagnostic.Variables[0].EndYear)
	}

	if len(diagnostic.Scripts) != 2 || diagnostic.Scripts[0].Name != "script1a" || diagnostic.Scripts[1].Name != "script1b" {
		t.Fatalf("scripts out of declaration order: %+v", diagnostic.Scripts)
	}
	if !reflect.DeepEqual(diagnostic.Scripts[1].Ancestors, []string{"script1a"}) {
		t.Fatalf("script1b ancestors = %v", diagnostic.Scripts[1].Ancestors)
	}
	if _, ok := diagnostic.Scripts[0].Settings["quickplot"]; !ok {
		t.Fatalf("script1a settings missing quickplot: %v", diagnostic.Scripts[0].Settings)
	}
	if diagnostic.Scripts[0].Script != "examples/diagnostic.py" {
		t.Fatalf("unexpected script path %q", diagnostic.Scripts[0].Script)
	}
}

func TestRoundTripPreservesDocument(t *testing.T) {
	for _, name := range []string{"recipe_example.yml", "recipe_zmnam.yml"} {
		t.Run(name, func(t *testing.T) {
			raw := loadTestdata(t, name)
			doc, err := Parse(raw)
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			out, err := doc.Marshal()
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}
			again, err := Parse(out)
			if err != nil {
				t.Fatalf("reparse: %v", err)
			}
			if !reflect.DeepEqual(doc.Recipe, again.Recipe) {
				t.Fatalf("recipe changed across round trip:\nfirst:  %+v\nsecond: %+v", doc.Recipe, again.Recipe)
			}

			// A second marshal of the reparsed tree must be byte-stable.
			out2, err := again.Marshal()
			if err != nil {
				t.Fatalf("second marshal: %v", err)
			}
			if string(out) != string(out2) {
				t.Fatalf("serialization not stable:\nfirst:\n%s\nsecond:\n%s", out, out2)
			}
		})
	}
}

func TestParseBareVariableUsesDefaults(t *testing.T) {
	doc, err := Parse([]byte(`
documentation:
  description: Bare variable.
  authors: [doe_jane]
  maintainer: [doe_jane]
diagnostics:
  d1:
    variables:
      tas:
    scripts:
      plot:
        script: plot.py
`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	variables := doc.Recipe.Diagnostics[0].Variables
	if len(variables) != 1 {
		t.Fatalf("expected 1 variable, got %d", len(variables))
	}
	if variables[0].Name != "tas" || variables[0].Preprocessor != "" || variables[0].Mip != "" {
		t.Fatalf("bare variable not defaulted: %+v", variables[0])
	}
}

func TestParseNullStepParams(t *testing.T) {
	doc, err := Parse([]byte(`
preprocessors:
  p1:
    mask_landsea:
`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	steps := doc.Recipe.Preprocessors[0].Steps
	if len(steps) != 1 || steps[0].Name != "mask_landsea" {
		t.Fatalf("unexpected steps %+v", steps)
	}
	if steps[0].Params == nil || len(steps[0].Params) != 0 {
		t.Fatalf("null params should decode to an empty map, got %v", steps[0].Params)
	}
}

func TestParseRejectsNonMapping(t *testing.T) {
	if _, err := Parse([]byte("- one\n- two\n")); err == nil {
		t.Fatal("expected error for non-mapping document")
	}
	if _, err := Parse(nil); err == nil {
		t.Fatal("expected error for empty document")
	}
}
