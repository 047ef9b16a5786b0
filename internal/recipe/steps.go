package recipe

import "sort"

// The engine applies preprocessing steps in a fixed canonical order, not in
// declaration order. canonicalStepOrder lists every recognized step; a step
// name outside this list fails validation.
var canonicalStepOrder = []string{
	"extract_time",
	"derive",
	"extract_levels",
	"regrid",
	"mask_landsea",
	"mask_fillvalues",
	"extract_region",
	"extract_volume",
	"extract_shape",
	"detrend",
	"zonal_statistics",
	"meridional_statistics",
	"area_statistics",
	"volume_statistics",
	"climate_statistics",
	"annual_statistics",
	"seasonal_statistics",
	"monthly_statistics",
	"anomalies",
	"regrid_time",
	"multi_model_statistics",
	"ensemble_statistics",
}

var stepRank = buildStepRank()

func buildStepRank() map[string]int {
	out := make(map[string]int, len(canonicalStepOrder))
	for i, name := range canonicalStepOrder {
		out[name] = i
	}
	return out
}

// KnownStep reports whether name is a recognized preprocessing step.
func KnownStep(name string) bool {
	_, ok := stepRank[name]
	return ok
}

// StepOrder sorts step names into the canonical application order. Unknown
// names sort after all known steps, keeping their relative position;
// validation rejects them before ordering matters.
func StepOrder(names []string) []string {
	out := make([]string, len(names))
	copy(out, names)
	sort.SliceStable(out, func(i, j int) bool {
		return rankOf(out[i]) < rankOf(out[j])
	})
	return out
}

func rankOf(name string) int {
	if rank, ok := stepRank[name]; ok {
		return rank
	}
	return len(canonicalStepOrder)
}
