package fs

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/JonMunkholm/labimport/internal/core"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestSource_ListOpenDelete(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "b.csv", "bb")
	writeFile(t, dir, "a.hl7", "a")
	writeFile(t, dir, ".partial.csv", "x")
	if err := os.Mkdir(filepath.Join(dir, "archive"), 0o755); err != nil {
		t.Fatal(err)
	}

	src, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer src.Close()

	ctx := context.Background()
	files, err := src.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("files = %+v, want 2 entries", files)
	}
	if files[0].Path != filepath.Join(dir, "a.hl7") || files[1].Size != 2 {
		t.Errorf("files = %+v", files)
	}

	rc, err := src.Open(ctx, files[1].Path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	data, _ := io.ReadAll(rc)
	rc.Close()
	if string(data) != "bb" {
		t.Errorf("content = %q", data)
	}

	if err := src.Delete(ctx, files[0].Path); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := os.Stat(files[0].Path); !os.IsNotExist(err) {
		t.Error("file still present after Delete")
	}

	err = src.Delete(ctx, files[0].Path)
	if err == nil {
		t.Fatal("second Delete should fail")
	}
	if code := core.ErrorCode(err); code != "SRC004" {
		t.Errorf("ErrorCode = %q, want SRC004", code)
	}
}

func TestSource_RejectsOutsidePaths(t *testing.T) {
	dir := t.TempDir()
	other := t.TempDir()
	outside := writeFile(t, other, "secret.csv", "x")

	src, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := src.Open(context.Background(), outside); err == nil {
		t.Error("Open outside the directory should fail")
	}
	if err := src.Delete(context.Background(), outside); err == nil {
		t.Error("Delete outside the directory should fail")
	}
	if _, err := os.Stat(outside); err != nil {
		t.Errorf("outside file touched: %v", err)
	}
}

func TestNew_MissingDirectory(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "missing"))
	if err == nil {
		t.Fatal("expected error")
	}
	if code := core.ErrorCode(err); code != "SRC001" {
		t.Errorf("ErrorCode = %q, want SRC001", code)
	}
}
