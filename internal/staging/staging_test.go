package staging

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("connection reset") }

func newArea(t *testing.T) *Area {
	t.Helper()
	area, err := NewArea(filepath.Join(t.TempDir(), "scratch"))
	if err != nil {
		t.Fatalf("failed to create area: %v", err)
	}
	return area
}

func listDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("failed to read dir: %v", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestStageCopiesBytesAndRemove(t *testing.T) {
	area := newArea(t)

	file, err := area.Stage("req-1", "beach.png", strings.NewReader("png-bytes"))
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if filepath.Base(file.Path) != "req-1-beach.png" {
		t.Fatalf("unexpected staged name: %s", file.Path)
	}
	if file.Size != int64(len("png-bytes")) {
		t.Fatalf("unexpected size: %d", file.Size)
	}
	data, err := os.ReadFile(file.Path)
	if err != nil || string(data) != "png-bytes" {
		t.Fatalf("unexpected staged content %q (%v)", data, err)
	}

	if err := file.Remove(); err != nil {
		t.Fatalf("expected remove to succeed, got %v", err)
	}
	if err := file.Remove(); err != nil {
		t.Fatalf("expected second remove to be a no-op, got %v", err)
	}
	if names := listDir(t, area.Dir()); len(names) != 0 {
		t.Fatalf("expected empty staging dir, got %v", names)
	}
}

func TestStageUsesDefaultNameWhenMissing(t *testing.T) {
	area := newArea(t)

	file, err := area.Stage("req-2", "", strings.NewReader("x"))
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	defer file.Remove()

	if !strings.HasSuffix(file.Path, DefaultName) {
		t.Fatalf("expected default name, got %s", file.Path)
	}
}

func TestStageSameNameDifferentTokensDoNotCollide(t *testing.T) {
	area := newArea(t)

	a, err := area.Stage("req-a", "cat.jpg", strings.NewReader("a"))
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	b, err := area.Stage("req-b", "cat.jpg", strings.NewReader("b"))
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if a.Path == b.Path {
		t.Fatalf("expected distinct paths, got %s", a.Path)
	}
}

func TestStageRemovesPartialFileOnCopyError(t *testing.T) {
	area := newArea(t)

	if _, err := area.Stage("req-3", "broken.jpg", failingReader{}); err == nil {
		t.Fatal("expected copy error")
	}
	if names := listDir(t, area.Dir()); len(names) != 0 {
		t.Fatalf("expected partial file to be removed, got %v", names)
	}
}

func TestSafeName(t *testing.T) {
	cases := map[string]string{
		"photo.jpg":              "photo.jpg",
		"../../etc/passwd":       "passwd",
		`C:\Users\me\forest.png`: "forest.png",
		"  ":                     DefaultName,
		"..":                     DefaultName,
		"/":                      DefaultName,
		"bad\x00name.jpg":        "badname.jpg",
	}
	for in, want := range cases {
		if got := SafeName(in); got != want {
			t.Errorf("SafeName(%q) = %q, want %q", in, got, want)
		}
	}
}
