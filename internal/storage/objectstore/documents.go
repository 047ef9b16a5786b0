package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"
)

const (
	recipeContentType = "application/yaml"
	outputContentType = "application/json"
)

// RecipeDocumentKey returns the object key a recipe document is stored under.
func RecipeDocumentKey(recipeID string) string {
	return "recipes/" + recipeID + ".yml"
}

// ScriptOutputKey returns the object key for one script's output payload.
func ScriptOutputKey(runID, diagnostic, script string) string {
	return fmt.Sprintf("runs/%s/%s/%s.json", runID, diagnostic, script)
}

// DocumentStore stores recipe documents and script outputs in their buckets.
type DocumentStore struct {
	store         Store
	recipesBucket string
	outputsBucket string
}

func NewDocumentStore(store Store, recipesBucket, outputsBucket string) (*DocumentStore, error) {
	if store == nil {
		return nil, fmt.Errorf("object store is required")
	}
	recipesBucket = strings.TrimSpace(recipesBucket)
	outputsBucket = strings.TrimSpace(outputsBucket)
	if recipesBucket == "" {
		return nil, fmt.Errorf("recipes bucket is required")
	}
	if outputsBucket == "" {
		return nil, fmt.Errorf("outputs bucket is required")
	}
	return &DocumentStore{
		store:         store,
		recipesBucket: recipesBucket,
		outputsBucket: outputsBucket,
	}, nil
}

// PutRecipeDocument stores the raw recipe YAML and returns its object key.
func (d *DocumentStore) PutRecipeDocument(ctx context.Context, recipeID string, raw []byte) (string, error) {
	recipeID = strings.TrimSpace(recipeID)
	if recipeID == "" {
		return "", fmt.Errorf("recipe id is required")
	}
	if len(raw) == 0 {
		return "", fmt.Errorf("recipe document is empty")
	}
	key := RecipeDocumentKey(recipeID)
	if err := d.store.Put(ctx, d.recipesBucket, key, bytes.NewReader(raw), int64(len(raw)), recipeContentType); err != nil {
		return "", fmt.Errorf("store recipe document: %w", err)
	}
	return key, nil
}

// GetRecipeDocument fetches a stored recipe document by key.
func (d *DocumentStore) GetRecipeDocument(ctx context.Context, key string) ([]byte, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, fmt.Errorf("document key is required")
	}
	body, _, err := d.store.Get(ctx, d.recipesBucket, key)
	if err != nil {
		return nil, fmt.Errorf("fetch recipe document: %w", err)
	}
	defer body.Close()
	raw, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("read recipe document: %w", err)
	}
	return raw, nil
}

// PresignRecipeDocument returns a time-limited download URL for a stored
// recipe document, so large documents can be fetched without proxying
// through the registry.
func (d *DocumentStore) PresignRecipeDocument(ctx context.Context, key string, ttl time.Duration) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", fmt.Errorf("document key is required")
	}
	url, err := d.store.PresignGet(ctx, d.recipesBucket, key, ttl)
	if err != nil {
		return "", fmt.Errorf("presign recipe document: %w", err)
	}
	return url, nil
}

// PutScriptOutput stores one script's output payload and returns its key.
func (d *DocumentStore) PutScriptOutput(ctx context.Context, runID, diagnostic, script string, raw []byte) (string, error) {
	runID = strings.TrimSpace(runID)
	diagnostic = strings.TrimSpace(diagnostic)
	script = strings.TrimSpace(script)
	if runID == "" || diagnostic == "" || script == "" {
		return "", fmt.Errorf("run id, diagnostic and script are required")
	}
	key := ScriptOutputKey(runID, diagnostic, script)
	if err := d.store.Put(ctx, d.outputsBucket, key, bytes.NewReader(raw), int64(len(raw)), outputContentType); err != nil {
		return "", fmt.Errorf("store script output: %w", err)
	}
	return key, nil
}
