package fs

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"idotplan/internal/blob/core"
)

func newTempStore(t *testing.T) (*Store, string) {
	t.Helper()
	dir := t.TempDir()
	store, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return store, dir
}

func TestStore_PutWritesPlainFile(t *testing.T) {
	ctx := context.Background()
	store, dir := newTempStore(t)
	info, err := store.Put(ctx, "run/plan_idot.csv", strings.NewReader("a,b\n"), core.PutOptions{Metadata: map[string]string{"run_id": "r"}})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Size != 4 || info.ContentType != "text/csv" || info.Metadata["run_id"] != "r" {
		t.Fatalf("unexpected info %+v", info)
	}
	if !strings.HasPrefix(info.URL, "file://") || !strings.HasSuffix(info.URL, "/run/plan_idot.csv") {
		t.Fatalf("unexpected url %s", info.URL)
	}
	b, err := os.ReadFile(filepath.Join(dir, "run", "plan_idot.csv"))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(b) != "a,b\n" {
		t.Fatalf("file content %q", b)
	}
	entries, _ := os.ReadDir(filepath.Join(dir, "run"))
	if len(entries) != 1 {
		t.Fatalf("expected no sidecar or temp files, got %d entries", len(entries))
	}
}

func TestStore_OverwriteAndExists(t *testing.T) {
	ctx := context.Background()
	store, _ := newTempStore(t)
	first, err := store.Put(ctx, "k.csv", strings.NewReader("one"), core.PutOptions{})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := store.Put(ctx, "k.csv", strings.NewReader("two"), core.PutOptions{}); !errors.Is(err, core.ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
	second, err := store.Put(ctx, "k.csv", strings.NewReader("two"), core.PutOptions{Overwrite: true})
	if err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	if first.ETag == second.ETag {
		t.Fatalf("etag should follow content")
	}
	head, err := store.Head(ctx, "k.csv")
	if err != nil {
		t.Fatalf("head: %v", err)
	}
	if head.ETag != second.ETag || head.Size != 3 {
		t.Fatalf("head mismatch %+v", head)
	}
	_, rc, err := store.Get(ctx, "k.csv")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer func() { _ = rc.Close() }()
	body, _ := io.ReadAll(rc)
	if string(body) != "two" {
		t.Fatalf("body %q", body)
	}
}

func TestStore_NotFoundAndDelete(t *testing.T) {
	ctx := context.Background()
	store, _ := newTempStore(t)
	if _, err := store.Head(ctx, "missing.csv"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, _, err := store.Get(ctx, "missing.csv"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if ok, err := store.Delete(ctx, "missing.csv"); err != nil || ok {
		t.Fatalf("delete missing: %v %v", ok, err)
	}
	if _, err := store.Put(ctx, "x.csv", bytes.NewReader([]byte("x")), core.PutOptions{}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if ok, err := store.Delete(ctx, "x.csv"); err != nil || !ok {
		t.Fatalf("delete: %v %v", ok, err)
	}
}

type errorReader struct{}

func (errorReader) Read([]byte) (int, error) { return 0, errors.New("boom") }

func TestStore_PutCopyErrorLeavesNothing(t *testing.T) {
	store, dir := newTempStore(t)
	if _, err := store.Put(context.Background(), "bad.csv", errorReader{}, core.PutOptions{}); err == nil {
		t.Fatalf("expected copy error")
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Fatalf("expected empty root, got %d entries", len(entries))
	}
}

func TestStore_CancelledContext(t *testing.T) {
	store, _ := newTempStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := store.Put(ctx, "a.csv", strings.NewReader("a"), core.PutOptions{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestSanitizeKeyErrors(t *testing.T) {
	for _, c := range []string{"", "  ", "../escape", "/abs", "a/../b"} {
		if _, err := sanitizeKey(c); err == nil {
			t.Fatalf("expected error for key %q", c)
		}
	}
}

func TestNewRejectsFileRoot(t *testing.T) {
	filePath := filepath.Join(t.TempDir(), "afile")
	if err := os.WriteFile(filePath, []byte("x"), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}
	if _, err := New(filePath); err == nil {
		t.Fatalf("expected error when root is file")
	}
}

func TestContentTypeFor(t *testing.T) {
	cases := map[string]string{
		"plan.csv": "text/csv",
		"PLAN.CSV": "text/csv",
		"noext":    "application/octet-stream",
	}
	for key, want := range cases {
		if got := contentTypeFor(key); got != want {
			t.Fatalf("contentTypeFor(%q) = %q, want %q", key, got, want)
		}
	}
}
