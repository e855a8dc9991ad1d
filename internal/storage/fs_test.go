package storage

import (
	"os"
	"path/filepath"
	"testing"
)

func tempStore(t *testing.T) *FS {
	t.Helper()
	dir := t.TempDir()
	fs, err := NewFS(dir)
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	return fs
}

func TestSaveAndLoad(t *testing.T) {
	s := tempStore(t)
	data := []byte{0xff, 0xd8, 0xff, 0xe0, 1, 2, 3}
	if err := s.Save(7, data); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := s.Load(7)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if string(got) != string(data) {
		t.Errorf("content mismatch: got %v", got)
	}
	if _, err := os.Stat(filepath.Join(s.Root(), "Canvas-7.jpg")); err != nil {
		t.Errorf("expected Canvas-7.jpg on disk: %v", err)
	}
	if !s.Exists(7) {
		t.Error("Exists(7) = false")
	}
}

func TestDelete(t *testing.T) {
	s := tempStore(t)
	_ = s.Save(3, []byte("bye"))
	if err := s.Delete(3); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Load(3); err == nil {
		t.Error("expected error loading deleted bitmap")
	}
	if s.Exists(3) {
		t.Error("Exists after delete")
	}
	if err := s.Delete(3); err == nil {
		t.Error("expected error deleting missing bitmap")
	}
}

func TestList_OnlyBitmaps(t *testing.T) {
	s := tempStore(t)
	_ = s.Save(1, []byte("a"))
	_ = s.Save(12, []byte("b"))
	_ = os.WriteFile(filepath.Join(s.Root(), "readme.txt"), []byte("x"), 0o644)
	_ = os.WriteFile(filepath.Join(s.Root(), "Canvas-abc.jpg"), []byte("x"), 0o644)
	_ = os.Mkdir(filepath.Join(s.Root(), "Canvas-9.jpg"), 0o755)

	items, err := s.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("len = %d, want 2: %+v", len(items), items)
	}
	ids := map[int64]bool{}
	for _, it := range items {
		ids[it.ID] = true
		if it.Checksum == "" {
			t.Errorf("missing checksum for %s", it.Name)
		}
	}
	if !ids[1] || !ids[12] {
		t.Errorf("ids = %v", ids)
	}
}

func TestParseBitmapName(t *testing.T) {
	cases := map[string]int64{
		"Canvas-1.jpg":       1,
		"/x/y/Canvas-42.jpg": 42,
		"Canvas-0.jpg":       0,
		"Canvas-01.jpg":      0,
		"Canvas--3.jpg":      0,
		"canvas-5.jpg":       0,
		"Canvas-5.jpeg":      0,
		".artselect-tmp-123": 0,
	}
	for name, want := range cases {
		got, ok := ParseBitmapName(name)
		if ok != (want != 0) || got != want {
			t.Errorf("ParseBitmapName(%q) = %d, %v", name, got, ok)
		}
	}
	if BitmapName(42) != "Canvas-42.jpg" {
		t.Errorf("BitmapName(42) = %s", BitmapName(42))
	}
}

func TestInvalidIDRejected(t *testing.T) {
	s := tempStore(t)
	for _, id := range []int64{0, -1} {
		if err := s.Save(id, []byte("x")); err == nil {
			t.Errorf("expected error saving id %d", id)
		}
		if _, err := s.Load(id); err == nil {
			t.Errorf("expected error loading id %d", id)
		}
	}
}

func TestAtomicSaveLeavesNoTemp(t *testing.T) {
	s := tempStore(t)
	_ = s.Save(5, []byte("original"))
	if err := s.Save(5, []byte("updated")); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, _ := s.Load(5)
	if string(got) != "updated" {
		t.Errorf("expected updated content, got %q", got)
	}
	matches, _ := filepath.Glob(filepath.Join(s.Root(), ".artselect-tmp-*"))
	if len(matches) != 0 {
		t.Errorf("leftover temp files: %v", matches)
	}
}

func TestNewFS_NonExistentDir(t *testing.T) {
	_, err := NewFS(filepath.Join(t.TempDir(), "missing"))
	if err == nil {
		t.Error("expected error for non-existent dir")
	}
}

func TestNewFS_FileNotDir(t *testing.T) {
	f, _ := os.CreateTemp("", "artselect-test-*")
	_ = f.Close()
	defer os.Remove(f.Name())
	_, err := NewFS(f.Name())
	if err == nil {
		t.Error("expected error when root is a file")
	}
}
