package file

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sort"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestTree_ListWalksAndSorts(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, filepath.Join(root, "b", "song2.json"), "{}")
	writeFile(t, filepath.Join(root, "a", "song1.json"), "{}")
	writeFile(t, filepath.Join(root, "a", "notes.txt"), "ignore me")
	writeFile(t, filepath.Join(root, ".hidden", "song3.json"), "{}")
	writeFile(t, filepath.Join(root, "a", ".song4.json"), "{}")

	got, err := NewTree(root).List(context.Background())
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}

	want := []string{
		filepath.Join(root, "a", "song1.json"),
		filepath.Join(root, "b", "song2.json"),
	}
	if len(got) != len(want) {
		t.Fatalf("List() = %v; want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("List()[%d] = %q; want %q", i, got[i], want[i])
		}
	}
	if !sort.StringsAreSorted(got) {
		t.Error("List() output is not sorted")
	}
}

func TestTree_ListMissingRoot(t *testing.T) {
	t.Parallel()

	_, err := NewTree(filepath.Join(t.TempDir(), "nope")).List(context.Background())
	if err == nil {
		t.Fatal("List() on a missing root returned no error")
	}
}

func TestTree_UnitOpens(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	path := filepath.Join(root, "unit.json")
	writeFile(t, path, `{"ok":true}`)

	tree := NewTree(root)
	rc, err := tree.Unit(path).Open(context.Background())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer rc.Close()

	b, err := io.ReadAll(rc)
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != `{"ok":true}` {
		t.Errorf("content = %q", b)
	}
}

func TestLocal_OpenMissingFile(t *testing.T) {
	t.Parallel()

	_, err := NewLocal(filepath.Join(t.TempDir(), "missing.json")).Open(context.Background())
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("Open() error = %v; want os.ErrNotExist", err)
	}
}

func TestLocal_OpenCanceledContext(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	path := filepath.Join(root, "unit.json")
	writeFile(t, path, "{}")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := NewLocal(path).Open(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Open() error = %v; want context.Canceled", err)
	}
}
