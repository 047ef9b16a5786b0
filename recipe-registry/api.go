package main

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/aeolus-labs/aeolus-go/internal/domain"
	"github.com/aeolus-labs/aeolus-go/internal/platform/auth"
	"github.com/aeolus-labs/aeolus-go/internal/recipe/validate"
	"github.com/aeolus-labs/aeolus-go/internal/repo"
)

const recipeDocumentMaxBytes = 4 << 20 // 4 MiB

type registryAPI struct {
	logger     *slog.Logger
	svc        *registryService
	presignTTL time.Duration
}

func newRegistryAPI(logger *slog.Logger, svc *registryService, presignTTL time.Duration) *registryAPI {
	if presignTTL <= 0 {
		presignTTL = 10 * time.Minute
	}
	return &registryAPI{logger: logger, svc: svc, presignTTL: presignTTL}
}

func (api *registryAPI) register(mux *http.ServeMux) {
	mux.HandleFunc("POST /recipes", api.handleRegisterRecipe)
	mux.HandleFunc("GET /recipes", api.handleListRecipes)
	mux.HandleFunc("GET /recipes/{recipe_id}", api.handleGetRecipe)
	mux.HandleFunc("GET /recipes/{recipe_id}/document", api.handleGetRecipeDocument)
	mux.HandleFunc("GET /recipes/{recipe_id}/document_url", api.handleGetRecipeDocumentURL)
	mux.HandleFunc("POST /recipes/{recipe_id}/runs", api.handleCreateRun)

	mux.HandleFunc("GET /runs", api.handleListRuns)
	mux.HandleFunc("GET /runs/{run_id}", api.handleGetRun)
	mux.HandleFunc("GET /runs/{run_id}/plan", api.handleGetRunPlan)

	mux.HandleFunc("POST /datasets", api.handleRegisterDataset)
	mux.HandleFunc("GET /datasets", api.handleListCatalog)
	mux.HandleFunc("GET /datasets/{entry_id}", api.handleGetCatalogEntry)
}

type recipeResponse struct {
	RecipeID       string    `json:"recipe_id"`
	Title          string    `json:"title"`
	Description    string    `json:"description,omitempty"`
	DocumentKey    string    `json:"document_key"`
	DocumentSHA256 string    `json:"document_sha256"`
	CreatedAt      time.Time `json:"created_at"`
	CreatedBy      string    `json:"created_by,omitempty"`
}

type runResponse struct {
	RunID      string     `json:"run_id"`
	RecipeID   string     `json:"recipe_id"`
	Status     string     `json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
	CreatedBy  string     `json:"created_by,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

type catalogEntryResponse struct {
	EntryID   string            `json:"entry_id"`
	Facets    map[string]string `json:"facets"`
	Metadata  json.RawMessage   `json:"metadata"`
	CreatedAt time.Time         `json:"created_at"`
	CreatedBy string            `json:"created_by,omitempty"`
}

type registerDatasetRequest struct {
	Dataset   string         `json:"dataset"`
	Project   string         `json:"project"`
	Mip       string         `json:"mip,omitempty"`
	Exp       string         `json:"exp,omitempty"`
	Ensemble  string         `json:"ensemble,omitempty"`
	Grid      string         `json:"grid,omitempty"`
	Type      string         `json:"type,omitempty"`
	Tier      int            `json:"tier,omitempty"`
	Version   string         `json:"version,omitempty"`
	StartYear int            `json:"start_year,omitempty"`
	EndYear   int            `json:"end_year,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

func (api *registryAPI) handleRegisterRecipe(w http.ResponseWriter, r *http.Request) {
	identity, ok := api.requireIdentity(w, r)
	if !ok {
		return
	}

	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, recipeDocumentMaxBytes))
	if err != nil {
		api.writeError(w, r, http.StatusBadRequest, "document_too_large")
		return
	}
	if len(strings.TrimSpace(string(raw))) == 0 {
		api.writeError(w, r, http.StatusBadRequest, "document_required")
		return
	}

	record, err := api.svc.RegisterRecipe(r.Context(), raw, buildAuditContext(r, identity))
	if err != nil {
		var validation *validate.ValidationError
		if errors.As(err, &validation) {
			api.writeErrorWithDetails(w, r, http.StatusUnprocessableEntity, "recipe_invalid", validation.Issues)
			return
		}
		if errors.Is(err, errRecipeUnparseable) {
			api.writeError(w, r, http.StatusBadRequest, "recipe_unparseable")
			return
		}
		api.logger.Error("register recipe", "error", err)
		api.writeError(w, r, http.StatusInternalServerError, "internal_error")
		return
	}

	w.Header().Set("Location", "/recipes/"+record.ID)
	api.writeJSON(w, http.StatusCreated, toRecipeResponse(record))
}

func (api *registryAPI) handleListRecipes(w http.ResponseWriter, r *http.Request) {
	filter := repo.RecipeFilter{
		Title:     strings.TrimSpace(r.URL.Query().Get("title")),
		CreatedBy: strings.TrimSpace(r.URL.Query().Get("created_by")),
		Limit:     clampInt(parseIntQuery(r, "limit", 100), 1, 500),
	}
	records, err := api.svc.ListRecipes(r.Context(), filter)
	if err != nil {
		api.logger.Error("list recipes", "error", err)
		api.writeError(w, r, http.StatusInternalServerError, "internal_error")
		return
	}
	out := make([]recipeResponse, 0, len(records))
	for _, record := range records {
		out = append(out, toRecipeResponse(record))
	}
	api.writeJSON(w, http.StatusOK, map[string]any{"recipes": out})
}

func (api *registryAPI) handleGetRecipe(w http.ResponseWriter, r *http.Request) {
	record, err := api.svc.GetRecipe(r.Context(), r.PathValue("recipe_id"))
	if err != nil {
		api.writeLookupError(w, r, err, "get recipe")
		return
	}
	api.writeJSON(w, http.StatusOK, toRecipeResponse(record))
}

func (api *registryAPI) handleGetRecipeDocument(w http.ResponseWriter, r *http.Request) {
	raw, err := api.svc.RecipeDocument(r.Context(), r.PathValue("recipe_id"))
	if err != nil {
		api.writeLookupError(w, r, err, "get recipe document")
		return
	}
	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(raw)
}

func (api *registryAPI) handleGetRecipeDocumentURL(w http.ResponseWriter, r *http.Request) {
	url, err := api.svc.RecipeDocumentURL(r.Context(), r.PathValue("recipe_id"), api.presignTTL)
	if err != nil {
		api.writeLookupError(w, r, err, "presign recipe document")
		return
	}
	api.writeJSON(w, http.StatusOK, map[string]any{
		"url":                url,
		"expires_in_seconds": int64(api.presignTTL.Seconds()),
	})
}

func (api *registryAPI) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	identity, ok := api.requireIdentity(w, r)
	if !ok {
		return
	}

	run, _, err := api.svc.CreateRun(r.Context(), r.PathValue("recipe_id"), buildAuditContext(r, identity))
	if err != nil {
		var validation *validate.ValidationError
		if errors.As(err, &validation) {
			api.writeErrorWithDetails(w, r, http.StatusUnprocessableEntity, "recipe_invalid", validation.Issues)
			return
		}
		api.writeLookupError(w, r, err, "create run")
		return
	}

	w.Header().Set("Location", "/runs/"+run.ID)
	api.writeJSON(w, http.StatusCreated, toRunResponse(run))
}

func (api *registryAPI) handleListRuns(w http.ResponseWriter, r *http.Request) {
	filter := repo.RunFilter{
		RecipeID: strings.TrimSpace(r.URL.Query().Get("recipe_id")),
		Status:   strings.TrimSpace(r.URL.Query().Get("status")),
		Limit:    clampInt(parseIntQuery(r, "limit", 100), 1, 500),
	}
	runs, err := api.svc.ListRuns(r.Context(), filter)
	if err != nil {
		api.logger.Error("list runs", "error", err)
		api.writeError(w, r, http.StatusInternalServerError, "internal_error")
		return
	}
	out := make([]runResponse, 0, len(runs))
	for _, run := range runs {
		out = append(out, toRunResponse(run))
	}
	api.writeJSON(w, http.StatusOK, map[string]any{"runs": out})
}

func (api *registryAPI) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := api.svc.GetRun(r.Context(), r.PathValue("run_id"))
	if err != nil {
		api.writeLookupError(w, r, err, "get run")
		return
	}
	api.writeJSON(w, http.StatusOK, toRunResponse(run))
}

func (api *registryAPI) handleGetRunPlan(w http.ResponseWriter, r *http.Request) {
	built, err := api.svc.RunPlan(r.Context(), r.PathValue("run_id"))
	if err != nil {
		api.writeLookupError(w, r, err, "get run plan")
		return
	}

	type planScript struct {
		Name   string `json:"name"`
		Script string `json:"script"`
	}
	type planEdge struct {
		From string `json:"from"`
		To   string `json:"to"`
	}
	type planDiagnostic struct {
		Name    string       `json:"name"`
		Scripts []planScript `json:"scripts"`
		Edges   []planEdge   `json:"edges"`
	}
	diagnostics := make([]planDiagnostic, 0, len(built.Diagnostics))
	for _, diagnostic := range built.Diagnostics {
		d := planDiagnostic{Name: diagnostic.Name, Scripts: []planScript{}, Edges: []planEdge{}}
		for _, script := range diagnostic.Scripts {
			d.Scripts = append(d.Scripts, planScript{Name: script.Name, Script: script.Script})
		}
		for _, edge := range diagnostic.Edges {
			d.Edges = append(d.Edges, planEdge{From: edge.From, To: edge.To})
		}
		diagnostics = append(diagnostics, d)
	}
	api.writeJSON(w, http.StatusOK, map[string]any{
		"run_id":      built.RunID,
		"recipe_id":   built.RecipeID,
		"diagnostics": diagnostics,
	})
}

func (api *registryAPI) handleRegisterDataset(w http.ResponseWriter, r *http.Request) {
	identity, ok := api.requireIdentity(w, r)
	if !ok {
		return
	}

	var req registerDatasetRequest
	if err := decodeJSON(r, &req); err != nil {
		api.writeError(w, r, http.StatusBadRequest, "invalid_json")
		return
	}

	descriptor := domain.Dataset{
		Dataset:   strings.TrimSpace(req.Dataset),
		Project:   strings.TrimSpace(req.Project),
		Mip:       strings.TrimSpace(req.Mip),
		Exp:       strings.TrimSpace(req.Exp),
		Ensemble:  strings.TrimSpace(req.Ensemble),
		Grid:      strings.TrimSpace(req.Grid),
		Type:      strings.TrimSpace(req.Type),
		Tier:      req.Tier,
		Version:   strings.TrimSpace(req.Version),
		StartYear: req.StartYear,
		EndYear:   req.EndYear,
	}
	entry, err := api.svc.RegisterDataset(r.Context(), descriptor, req.Metadata, buildAuditContext(r, identity))
	if err != nil {
		if isUniqueViolation(err) {
			api.writeError(w, r, http.StatusConflict, "dataset_exists")
			return
		}
		if errors.Is(err, errDatasetInvalid) {
			api.writeError(w, r, http.StatusBadRequest, "dataset_invalid")
			return
		}
		api.logger.Error("register dataset", "error", err)
		api.writeError(w, r, http.StatusInternalServerError, "internal_error")
		return
	}

	w.Header().Set("Location", "/datasets/"+entry.ID)
	api.writeJSON(w, http.StatusCreated, toCatalogEntryResponse(entry))
}

func (api *registryAPI) handleListCatalog(w http.ResponseWriter, r *http.Request) {
	filter := repo.CatalogFilter{
		Project: strings.TrimSpace(r.URL.Query().Get("project")),
		Dataset: strings.TrimSpace(r.URL.Query().Get("dataset")),
		Mip:     strings.TrimSpace(r.URL.Query().Get("mip")),
		Limit:   clampInt(parseIntQuery(r, "limit", 100), 1, 500),
	}
	entries, err := api.svc.ListCatalog(r.Context(), filter)
	if err != nil {
		api.logger.Error("list catalog", "error", err)
		api.writeError(w, r, http.StatusInternalServerError, "internal_error")
		return
	}
	out := make([]catalogEntryResponse, 0, len(entries))
	for _, entry := range entries {
		out = append(out, toCatalogEntryResponse(entry))
	}
	api.writeJSON(w, http.StatusOK, map[string]any{"datasets": out})
}

func (api *registryAPI) handleGetCatalogEntry(w http.ResponseWriter, r *http.Request) {
	entry, err := api.svc.GetCatalogEntry(r.Context(), r.PathValue("entry_id"))
	if err != nil {
		api.writeLookupError(w, r, err, "get catalog entry")
		return
	}
	api.writeJSON(w, http.StatusOK, toCatalogEntryResponse(entry))
}

func (api *registryAPI) requireIdentity(w http.ResponseWriter, r *http.Request) (auth.Identity, bool) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if ok {
		return identity, true
	}
	// Auth disabled: attribute mutations to a fixed local actor.
	return auth.Identity{Subject: "anonymous"}, true
}

func toRecipeResponse(record repo.RecipeRecord) recipeResponse {
	return recipeResponse{
		RecipeID:       record.ID,
		Title:          record.Title,
		Description:    record.Description,
		DocumentKey:    record.DocumentKey,
		DocumentSHA256: record.DocumentSHA256,
		CreatedAt:      record.CreatedAt,
		CreatedBy:      record.CreatedBy,
	}
}

func toRunResponse(run domain.Run) runResponse {
	return runResponse{
		RunID:      run.ID,
		RecipeID:   run.RecipeID,
		Status:     string(run.Status),
		CreatedAt:  run.CreatedAt,
		CreatedBy:  run.CreatedBy,
		FinishedAt: run.FinishedAt,
	}
}

func toCatalogEntryResponse(entry domain.CatalogEntry) catalogEntryResponse {
	metaJSON, _ := json.Marshal(entry.Metadata)
	return catalogEntryResponse{
		EntryID:   entry.ID,
		Facets:    entry.Descriptor.Facets(),
		Metadata:  metaJSON,
		CreatedAt: entry.CreatedAt,
		CreatedBy: entry.CreatedBy,
	}
}

func buildAuditContext(r *http.Request, identity auth.Identity) auditContext {
	return auditContext{
		Actor:     identity.Subject,
		RequestID: r.Header.Get("X-Request-Id"),
		Path:      r.URL.Path,
	}
}

func decodeJSON(r *http.Request, dst any) error {
	defer func() { _, _ = io.Copy(io.Discard, r.Body) }()
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func (api *registryAPI) writeLookupError(w http.ResponseWriter, r *http.Request, err error, op string) {
	if errors.Is(err, repo.ErrNotFound) {
		api.writeError(w, r, http.StatusNotFound, "not_found")
		return
	}
	api.logger.Error(op, "error", err)
	api.writeError(w, r, http.StatusInternalServerError, "internal_error")
}

func (api *registryAPI) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(true)
	_ = enc.Encode(body)
}

func (api *registryAPI) writeError(w http.ResponseWriter, r *http.Request, status int, code string) {
	api.writeJSON(w, status, map[string]any{
		"error":      code,
		"request_id": r.Header.Get("X-Request-Id"),
	})
}

func (api *registryAPI) writeErrorWithDetails(w http.ResponseWriter, r *http.Request, status int, code string, details any) {
	api.writeJSON(w, status, map[string]any{
		"error":      code,
		"request_id": r.Header.Get("X-Request-Id"),
		"details":    details,
	})
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func parseIntQuery(r *http.Request, key string, def int) int {
	v := strings.TrimSpace(r.URL.Query().Get(key))
	if v == "" {
		return def
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return parsed
}

func clampInt(v int, min int, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
