package validate

import (
	"strings"
	"testing"

	"github.com/aeolus-labs/aeolus-go/internal/domain"
)

func exampleRecipe() domain.Recipe {
	return domain.Recipe{
		Documentation: domain.Documentation{
			Title:       "Example recipe",
			Description: "Air temperature maps.",
			Authors:     []string{"andela_bouwe"},
			Maintainer:  []string{"schlund_manuel"},
		},
		Datasets: []domain.Dataset{
			{Dataset: "CanESM2", Project: "CMIP5", Exp: "historical", Ensemble: "r1i1p1"},
			{Dataset: "MPI-ESM-LR", Project: "CMIP5", Exp: "historical", Ensemble: "r1i1p1"},
		},
		Preprocessors: []domain.Preprocessor{
			{Name: "preprocessor1", Steps: []domain.Step{
				{Name: "extract_levels", Params: map[string]any{"levels": 85000, "scheme": "nearest"}},
				{Name: "regrid", Params: map[string]any{"target_grid": "1x1", "scheme": "linear"}},
			}},
		},
		Diagnostics: []domain.Diagnostic{
			{
				Name:        "diagnostic1",
				Description: "Air temperature maps.",
				Variables: []domain.Variable{
					{Name: "ta", Mip: "Amon", StartYear: 2000, EndYear: 2002, Preprocessor: "preprocessor1", ReferenceDataset: "CanESM2"},
				},
				Scripts: []domain.Script{
					{Name: "script1a", Script: "examples/diagnostic.py"},
					{Name: "script1b", Script: "examples/diagnostic.py", Ancestors: []string{"script1a"}},
				},
			},
		},
	}
}

func expectIssue(t *testing.T, rec domain.Recipe, want string) {
	t.Helper()
	err := ValidateRecipe(rec)
	if err == nil {
		t.Fatalf("expected issue containing %q, got nil", want)
	}
	if !strings.Contains(err.Error(), want) {
		t.Fatalf("error %q does not mention %q", err.Error(), want)
	}
}

func TestValidateExampleRecipe(t *testing.T) {
	if err := ValidateRecipe(exampleRecipe()); err != nil {
		t.Fatalf("example recipe should be valid: %v", err)
	}
}

func TestValidateSingleDatasetSingleDiagnostic(t *testing.T) {
	rec := domain.Recipe{
		Documentation: domain.Documentation{
			Description: "Zonal mean annular mode index.",
			Authors:     []string{"serva_federico"},
			Maintainer:  []string{"serva_federico"},
		},
		Datasets: []domain.Dataset{
			{Dataset: "MPI-ESM-MR", Project: "CMIP5", Exp: "amip", Ensemble: "r1i1p1", StartYear: 1979, EndYear: 2008},
		},
		Diagnostics: []domain.Diagnostic{
			{
				Name:      "zmnam",
				Variables: []domain.Variable{{Name: "zg", Mip: "Amon"}},
				Scripts:   []domain.Script{{Name: "main", Script: "zmnam/zmnam.py"}},
			},
		},
	}
	if err := ValidateRecipe(rec); err != nil {
		t.Fatalf("recipe should be valid: %v", err)
	}
}

func TestValidateDocumentation(t *testing.T) {
	rec := exampleRecipe()
	rec.Documentation.Description = "  "
	expectIssue(t, rec, "documentation.description is required")

	rec = exampleRecipe()
	rec.Documentation.Authors = nil
	expectIssue(t, rec, "documentation.authors is required")

	rec = exampleRecipe()
	rec.Documentation.Maintainer = nil
	expectIssue(t, rec, "documentation.maintainer is required")
}

func TestValidateMissingRequiredFacet(t *testing.T) {
	rec := exampleRecipe()
	rec.Datasets[0].Ensemble = ""
	expectIssue(t, rec, `missing required facet "ensemble"`)
}

func TestValidateCMIP6RequiresGrid(t *testing.T) {
	rec := exampleRecipe()
	rec.Datasets = append(rec.Datasets, domain.Dataset{
		Dataset: "BCC-CSM2-MR", Project: "CMIP6", Exp: "historical", Ensemble: "r1i1p1f1",
	})
	expectIssue(t, rec, `missing required facet "grid"`)
}

func TestValidateUnknownProject(t *testing.T) {
	rec := exampleRecipe()
	rec.Datasets[0].Project = "CORDEX-FX"
	expectIssue(t, rec, `unknown project "CORDEX-FX"`)
}

func TestValidateDuplicateDataset(t *testing.T) {
	rec := exampleRecipe()
	rec.Datasets = append(rec.Datasets, rec.Datasets[0])
	expectIssue(t, rec, "duplicate dataset entry")
}

func TestValidateVariableScopeFacets(t *testing.T) {
	// A dataset under a variable borrows mip and the year range from it.
	rec := exampleRecipe()
	rec.Diagnostics[0].Variables[0].AdditionalDatasets = []domain.Dataset{
		{Dataset: "HadGEM2-ES", Project: "CMIP5", Exp: "historical", Ensemble: "r1i1p1"},
	}
	if err := ValidateRecipe(rec); err != nil {
		t.Fatalf("variable-scope dataset should inherit mip and years: %v", err)
	}

	// Without a variable year range the facets must be declared directly.
	rec.Diagnostics[0].Variables[0].StartYear = 0
	rec.Diagnostics[0].Variables[0].EndYear = 0
	expectIssue(t, rec, `missing required facet "start_year"`)
}

func TestValidateUnknownPreprocessorStep(t *testing.T) {
	rec := exampleRecipe()
	rec.Preprocessors[0].Steps = append(rec.Preprocessors[0].Steps, domain.Step{Name: "sharpen_image"})
	expectIssue(t, rec, `unknown step "sharpen_image"`)
}

func TestValidateDuplicatePreprocessor(t *testing.T) {
	rec := exampleRecipe()
	rec.Preprocessors = append(rec.Preprocessors, domain.Preprocessor{Name: "preprocessor1"})
	expectIssue(t, rec, `duplicate preprocessor "preprocessor1"`)
}

func TestValidateUnresolvedPreprocessor(t *testing.T) {
	rec := exampleRecipe()
	rec.Diagnostics[0].Variables[0].Preprocessor = "missing_chain"
	expectIssue(t, rec, `preprocessor "missing_chain" not declared`)
}

func TestValidateImplicitDefaultPreprocessor(t *testing.T) {
	rec := exampleRecipe()
	rec.Diagnostics[0].Variables[0].Preprocessor = DefaultPreprocessor
	if err := ValidateRecipe(rec); err != nil {
		t.Fatalf("the default preprocessor needs no declaration: %v", err)
	}

	rec.Diagnostics[0].Variables[0].Preprocessor = ""
	if err := ValidateRecipe(rec); err != nil {
		t.Fatalf("an omitted preprocessor falls back to the default: %v", err)
	}
}

func TestValidateUnresolvedReferenceDataset(t *testing.T) {
	rec := exampleRecipe()
	rec.Diagnostics[0].Variables[0].ReferenceDataset = "ERA-Interim"
	expectIssue(t, rec, `reference_dataset "ERA-Interim" not declared`)
}

func TestValidateReferenceDatasetFromVariableScope(t *testing.T) {
	rec := exampleRecipe()
	rec.Diagnostics[0].Variables[0].ReferenceDataset = "ERA-Interim"
	rec.Diagnostics[0].Variables[0].AdditionalDatasets = []domain.Dataset{
		{Dataset: "ERA-Interim", Project: "OBS", Type: "reanaly", Tier: 3, Exp: "historical", Ensemble: "r1i1p1"},
	}
	if err := ValidateRecipe(rec); err != nil {
		t.Fatalf("reference declared under the variable should resolve: %v", err)
	}
}

func TestValidateYearRange(t *testing.T) {
	rec := exampleRecipe()
	rec.Diagnostics[0].Variables[0].StartYear = 2005
	rec.Diagnostics[0].Variables[0].EndYear = 2002
	expectIssue(t, rec, "start_year 2005 is after end_year 2002")
}

func TestValidateRequiresDiagnostics(t *testing.T) {
	rec := exampleRecipe()
	rec.Diagnostics = nil
	expectIssue(t, rec, "at least one diagnostic is required")
}

func TestValidateScriptPathRequired(t *testing.T) {
	rec := exampleRecipe()
	rec.Diagnostics[0].Scripts[0].Script = ""
	expectIssue(t, rec, "script path is required")
}

func TestValidateNonSiblingAncestor(t *testing.T) {
	rec := exampleRecipe()
	rec.Diagnostics[0].Scripts[1].Ancestors = []string{"other_diag/script"}
	expectIssue(t, rec, `ancestor "other_diag/script" is not a sibling script`)
}

func TestValidateSelfAncestor(t *testing.T) {
	rec := exampleRecipe()
	rec.Diagnostics[0].Scripts[0].Ancestors = []string{"script1a"}
	expectIssue(t, rec, "ancestor references itself")
}

func TestValidateAncestorCycle(t *testing.T) {
	rec := exampleRecipe()
	rec.Diagnostics[0].Scripts[0].Ancestors = []string{"script1b"}
	// script1b already names script1a as ancestor.
	expectIssue(t, rec, "ancestor graph contains a cycle")
}

func TestValidateAggregatesAllIssues(t *testing.T) {
	rec := exampleRecipe()
	rec.Documentation.Description = ""
	rec.Datasets[0].Ensemble = ""
	rec.Diagnostics[0].Variables[0].Preprocessor = "missing_chain"
	err := ValidateRecipe(rec)
	if err == nil {
		t.Fatal("expected validation error")
	}
	msg := err.Error()
	for _, want := range []string{
		"documentation.description is required",
		`missing required facet "ensemble"`,
		`preprocessor "missing_chain" not declared`,
	} {
		if !strings.Contains(msg, want) {
			t.Fatalf("aggregated error %q does not mention %q", msg, want)
		}
	}
}
