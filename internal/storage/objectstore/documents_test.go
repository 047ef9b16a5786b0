package objectstore

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"
)

type fakeStore struct {
	objects map[string][]byte
}

func newFakeStore() *fakeStore {
	return &fakeStore{objects: map[string][]byte{}}
}

func (f *fakeStore) Put(ctx context.Context, bucket, key string, body io.Reader, size int64, contentType string) error {
	raw, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	f.objects[bucket+"/"+key] = raw
	return nil
}

func (f *fakeStore) Get(ctx context.Context, bucket, key string) (io.ReadCloser, ObjectInfo, error) {
	raw, ok := f.objects[bucket+"/"+key]
	if !ok {
		return nil, ObjectInfo{}, io.EOF
	}
	return io.NopCloser(bytes.NewReader(raw)), ObjectInfo{Key: key, Size: int64(len(raw))}, nil
}

func (f *fakeStore) Stat(ctx context.Context, bucket, key string) (ObjectInfo, error) {
	raw, ok := f.objects[bucket+"/"+key]
	if !ok {
		return ObjectInfo{}, io.EOF
	}
	return ObjectInfo{Key: key, Size: int64(len(raw))}, nil
}

func (f *fakeStore) Delete(ctx context.Context, bucket, key string) error {
	delete(f.objects, bucket+"/"+key)
	return nil
}

func (f *fakeStore) PresignGet(ctx context.Context, bucket, key string, ttl time.Duration) (string, error) {
	if _, ok := f.objects[bucket+"/"+key]; !ok {
		return "", io.EOF
	}
	return "https://store.local/" + bucket + "/" + key + "?ttl=" + ttl.String(), nil
}

func TestDocumentStoreRoundTrip(t *testing.T) {
	store := newFakeStore()
	docs, err := NewDocumentStore(store, "recipes", "outputs")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	raw := []byte("documentation:\n  description: test\n")
	key, err := docs.PutRecipeDocument(context.Background(), "recipe-1", raw)
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if key != "recipes/recipe-1.yml" {
		t.Fatalf("unexpected key %q", key)
	}

	got, err := docs.GetRecipeDocument(context.Background(), key)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !bytes.Equal(got, raw) {
		t.Fatalf("document changed: %q vs %q", got, raw)
	}
}

func TestDocumentStorePutScriptOutput(t *testing.T) {
	store := newFakeStore()
	docs, err := NewDocumentStore(store, "recipes", "outputs")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	key, err := docs.PutScriptOutput(context.Background(), "run-1", "diagnostic1", "script1a", []byte(`{"ok":true}`))
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if key != "runs/run-1/diagnostic1/script1a.json" {
		t.Fatalf("unexpected key %q", key)
	}
	if _, ok := store.objects["outputs/"+key]; !ok {
		t.Fatal("output not stored in outputs bucket")
	}
}

func TestDocumentStorePresignRecipeDocument(t *testing.T) {
	store := newFakeStore()
	docs, err := NewDocumentStore(store, "recipes", "outputs")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	key, err := docs.PutRecipeDocument(context.Background(), "recipe-1", []byte("documentation: {}\n"))
	if err != nil {
		t.Fatalf("put: %v", err)
	}

	url, err := docs.PresignRecipeDocument(context.Background(), key, 10*time.Minute)
	if err != nil {
		t.Fatalf("presign: %v", err)
	}
	if !strings.Contains(url, "recipes/recipe-1.yml") {
		t.Fatalf("unexpected url %q", url)
	}

	if _, err := docs.PresignRecipeDocument(context.Background(), "", 10*time.Minute); err == nil {
		t.Fatal("expected error for empty key")
	}
}

func TestDocumentStoreValidatesInput(t *testing.T) {
	if _, err := NewDocumentStore(nil, "a", "b"); err == nil {
		t.Fatal("expected error for nil store")
	}
	docs, err := NewDocumentStore(newFakeStore(), "recipes", "outputs")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := docs.PutRecipeDocument(context.Background(), "", []byte("x")); err == nil {
		t.Fatal("expected error for empty recipe id")
	}
	if _, err := docs.PutRecipeDocument(context.Background(), "recipe-1", nil); err == nil {
		t.Fatal("expected error for empty document")
	}
}
