package storage

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/clipverse/backend/internal/config"
)

func TestMemorySaveOverwritesAndDeletes(t *testing.T) {
	ctx := context.Background()
	store := NewMemory("https://cdn.example.com")

	url, err := store.Save(ctx, "/videos/abc/source", strings.NewReader("first"), "video/mp4")
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if url != "https://cdn.example.com/videos/abc/source" {
		t.Fatalf("unexpected url %q", url)
	}

	if _, err := store.Save(ctx, "videos/abc/source", strings.NewReader("second"), "video/webm"); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	obj, ok := store.Get("videos/abc/source")
	if !ok || string(obj.Data) != "second" || obj.ContentType != "video/webm" {
		t.Fatalf("expected overwritten object, got %+v", obj)
	}
	if store.Len() != 1 {
		t.Fatalf("expected one object, got %d", store.Len())
	}

	if err := store.Delete(ctx, "videos/abc/source"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok := store.Get("videos/abc/source"); ok {
		t.Fatal("expected object to be removed")
	}
}

func TestMemoryRejectsEmptyKey(t *testing.T) {
	store := NewMemory("")
	if _, err := store.Save(context.Background(), " / ", strings.NewReader("x"), ""); !errors.Is(err, ErrEmptyKey) {
		t.Fatalf("expected ErrEmptyKey, got %v", err)
	}
}

func TestPublicURLWithoutBase(t *testing.T) {
	if got := publicURL("", "a/b"); got != "a/b" {
		t.Fatalf("expected bare key, got %q", got)
	}
}

func TestSplitEndpoint(t *testing.T) {
	cases := []struct {
		in     string
		host   string
		secure bool
		err    bool
	}{
		{in: "localhost:9000", host: "localhost:9000"},
		{in: "https://minio.example.com", host: "minio.example.com", secure: true},
		{in: "http://127.0.0.1:9000", host: "127.0.0.1:9000"},
		{in: "", err: true},
	}
	for _, tc := range cases {
		host, secure, err := splitEndpoint(tc.in)
		if tc.err {
			if err == nil {
				t.Fatalf("%q: expected error", tc.in)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%q: unexpected error %v", tc.in, err)
		}
		if host != tc.host || secure != tc.secure {
			t.Fatalf("%q: got %q secure=%v", tc.in, host, secure)
		}
	}
}

func TestNewMinioStorageBuildsPublicURL(t *testing.T) {
	store, err := NewMinioStorage(config.ObjectStoreConfig{
		Bucket:    "clips",
		Endpoint:  "https://minio.example.com",
		AccessKey: "key",
		SecretKey: "secret",
	})
	if err != nil {
		t.Fatalf("new minio storage: %v", err)
	}
	if store.baseURL != "https://minio.example.com/clips" {
		t.Fatalf("unexpected base url %q", store.baseURL)
	}
}
