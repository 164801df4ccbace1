package storage

import (
	"bytes"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/danmuck/dps_backup/src/protocol"
)

func TestGetFileExtension(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{name: "archive.tar.gz", want: "gz"},
		{name: "noext", want: "noext"},
		{name: "photo.png", want: "png"},
		{name: ".bashrc", want: "bashrc"},
		{name: "trailing.", want: ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := GetFileExtension(tc.name); got != tc.want {
				t.Fatalf("GetFileExtension(%q) = %q, want %q", tc.name, got, tc.want)
			}
		})
	}
}

func TestReadMissingFile(t *testing.T) {
	l := NewLocal(t.TempDir(), "")

	_, err := l.Read("does-not-exist.txt")
	if !errors.Is(err, protocol.ErrEncoding) {
		t.Fatalf("expected encoding error, got %v", err)
	}
	if !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("expected fs.ErrNotExist cause, got %v", err)
	}
}

func TestReadFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.txt"), []byte("alpha"), 0644); err != nil {
		t.Fatalf("Failed to write fixture: %v", err)
	}

	got, err := NewLocal(dir, "").Read("a.txt")
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if string(got) != "alpha" {
		t.Fatalf("Read = %q, want %q", got, "alpha")
	}
}

func TestWriteRestored(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "restore")
	l := NewLocal(dir, "")
	content := []byte{0x89, 'P', 'N', 'G', 0, 1, 2}

	path, err := l.WriteRestored("photo.png", content)
	if err != nil {
		t.Fatalf("WriteRestored failed: %v", err)
	}
	if want := filepath.Join(dir, "tmp.png"); path != want {
		t.Fatalf("path = %s, want %s", path, want)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read restored file: %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Fatalf("restored content = % x, want % x", got, content)
	}
}

func TestWriteRestoredRejectsTraversal(t *testing.T) {
	l := NewLocal(t.TempDir(), "restored")

	for _, name := range []string{"x./../../etc/passwd", `a.b\c`} {
		if _, err := l.WriteRestored(name, []byte("x")); !errors.Is(err, protocol.ErrProtocol) {
			t.Errorf("WriteRestored(%q) = %v, want protocol error", name, err)
		}
	}
}
