package domain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Dataset is a dataset descriptor: the facet set identifying a specific
// climate model run to retrieve and process. Descriptors are immutable once
// declared and uniquely identified by the combination of their facets.
type Dataset struct {
	Dataset   string
	Project   string
	Mip       string
	Exp       string
	Ensemble  string
	Grid      string
	Type      string
	Tier      int
	Version   string
	StartYear int
	EndYear   int
}

// Facets returns the descriptor as a facet map with empty values omitted.
func (d Dataset) Facets() map[string]string {
	out := make(map[string]string, 11)
	put := func(key, value string) {
		if strings.TrimSpace(value) != "" {
			out[key] = strings.TrimSpace(value)
		}
	}
	put("dataset", d.Dataset)
	put("project", d.Project)
	put("mip", d.Mip)
	put("exp", d.Exp)
	put("ensemble", d.Ensemble)
	put("grid", d.Grid)
	put("type", d.Type)
	put("version", d.Version)
	if d.Tier > 0 {
		out["tier"] = strconv.Itoa(d.Tier)
	}
	if d.StartYear > 0 {
		out["start_year"] = strconv.Itoa(d.StartYear)
	}
	if d.EndYear > 0 {
		out["end_year"] = strconv.Itoa(d.EndYear)
	}
	return out
}

// Key returns the canonical identity of the descriptor, used for duplicate
// detection. Two descriptors with the same facet values share a key.
func (d Dataset) Key() string {
	return fmt.Sprintf("%s/%s/%s/%s/%s/%s/%s/%d/%s/%d-%d",
		d.Project, d.Dataset, d.Mip, d.Exp, d.Ensemble, d.Grid, d.Type, d.Tier, d.Version, d.StartYear, d.EndYear)
}

func (d Dataset) Validate() error {
	if strings.TrimSpace(d.Dataset) == "" {
		return errors.New("dataset is required")
	}
	if d.StartYear > 0 && d.EndYear > 0 && d.StartYear > d.EndYear {
		return fmt.Errorf("start_year %d is after end_year %d", d.StartYear, d.EndYear)
	}
	return nil
}

// CatalogEntry is a dataset descriptor registered in the catalog, recording
// who registered it and when. Entries answer "is this dataset available"
// during recipe validation.
type CatalogEntry struct {
	ID         string
	Descriptor Dataset
	Metadata   Metadata
	CreatedAt  time.Time
	CreatedBy  string
}

func (e CatalogEntry) Validate() error {
	if strings.TrimSpace(e.ID) == "" {
		return errors.New("catalog entry id is required")
	}
	if err := e.Descriptor.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(e.Descriptor.Project) == "" {
		return errors.New("project is required for catalog entries")
	}
	return nil
}
