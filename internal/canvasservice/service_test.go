package canvasservice

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/starford/artselect/internal/apperr"
	"github.com/starford/artselect/internal/catalog"
	"github.com/starford/artselect/internal/checksum"
	"github.com/starford/artselect/internal/storage"
)

type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) add(kind string, _ int64) {
	l.mu.Lock()
	l.events = append(l.events, kind)
	l.mu.Unlock()
}

func testService(t *testing.T, opts ...Option) (*Service, *storage.FS, *catalog.DB) {
	t.Helper()
	store, err := storage.NewFS(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	f, err := os.CreateTemp("", "artselect-svc-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
	t.Cleanup(func() { os.Remove(f.Name()) })
	db, err := catalog.Open(f.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	opts = append([]Option{WithPlaceholder([]byte("blank"))}, opts...)
	return NewService(store, db, opts...), store, db
}

func TestCreate_AppliesDefaults(t *testing.T) {
	log := &eventLog{}
	svc, _, _ := testService(t, WithEventFunc(log.add))

	rec, err := svc.Create(context.Background(), Input{Title: "  "}, nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if rec.Title != "Untitled" || rec.Description != "No Notes" || rec.Category != "No Category" {
		t.Errorf("defaults not applied: %+v", rec)
	}
	if rec.ImageID != nil {
		t.Error("record without bitmap should have no identifier")
	}
	if len(log.events) != 1 || log.events[0] != "created" {
		t.Errorf("events = %v", log.events)
	}
}

func TestCreate_RejectsOversizedTitle(t *testing.T) {
	svc, _, _ := testService(t)
	_, err := svc.Create(context.Background(), Input{Title: strings.Repeat("x", 201)}, nil)
	if !errors.Is(err, apperr.ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
}

func TestSaveBitmap_AllocatesIdentifierOnce(t *testing.T) {
	svc, store, _ := testService(t)
	ctx := context.Background()
	rec, _ := svc.Create(ctx, Input{Title: "A"}, nil)

	saved, err := svc.SaveBitmap(ctx, rec.ID, []byte("one"), "")
	if err != nil {
		t.Fatalf("SaveBitmap: %v", err)
	}
	if saved.ImageID == nil {
		t.Fatal("expected identifier after save")
	}
	first := *saved.ImageID
	if !store.Exists(first) {
		t.Error("bitmap file missing")
	}

	saved, err = svc.SaveBitmap(ctx, rec.ID, []byte("two"), checksum.ETag(saved.Checksum))
	if err != nil {
		t.Fatalf("second SaveBitmap: %v", err)
	}
	if *saved.ImageID != first {
		t.Errorf("identifier changed from %d to %d", first, *saved.ImageID)
	}
	data, sum, err := svc.LoadBitmap(ctx, rec.ID)
	if err != nil || string(data) != "two" || sum != checksum.Sum([]byte("two")) {
		t.Errorf("LoadBitmap = %q %q %v", data, sum, err)
	}

	if _, err := svc.SaveBitmap(ctx, rec.ID, []byte("three"), `"stale"`); !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("stale If-Match: %v", err)
	}
}

func TestSaveBitmap_IdentifiersAreDistinct(t *testing.T) {
	svc, _, _ := testService(t)
	ctx := context.Background()
	a, _ := svc.Create(ctx, Input{}, []byte("a"))
	b, _ := svc.Create(ctx, Input{}, []byte("b"))
	if a.ImageID == nil || b.ImageID == nil || *a.ImageID == *b.ImageID {
		t.Fatalf("identifiers a=%v b=%v", a.ImageID, b.ImageID)
	}
	if *b.ImageID <= *a.ImageID {
		t.Errorf("identifiers not increasing: %d then %d", *a.ImageID, *b.ImageID)
	}
}

func TestLoadBitmap_PlaceholderWithoutIdentifier(t *testing.T) {
	svc, _, _ := testService(t)
	rec, _ := svc.Create(context.Background(), Input{}, nil)
	data, sum, err := svc.LoadBitmap(context.Background(), rec.ID)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "blank" || sum != "" {
		t.Errorf("got %q %q", data, sum)
	}
}

func TestLoadBitmap_VanishedFileDetaches(t *testing.T) {
	svc, store, db := testService(t)
	ctx := context.Background()
	rec, _ := svc.Create(ctx, Input{}, []byte("x"))
	_ = store.Delete(*rec.ImageID)

	data, _, err := svc.LoadBitmap(ctx, rec.ID)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "blank" {
		t.Errorf("data = %q", data)
	}
	got, _ := db.Get(rec.ID)
	if got.ImageID != nil {
		t.Error("identifier should be cleared once the file is gone")
	}
}

type failingStore struct{ storage.Provider }

func (failingStore) Save(int64, []byte) error { return errors.New("disk full") }

func TestSaveBitmap_IOFailureLeavesRecordUntouched(t *testing.T) {
	_, _, db := testService(t)
	svc := NewService(failingStore{}, db)
	ctx := context.Background()
	rec, _ := svc.Create(ctx, Input{Title: "A"}, nil)

	if _, err := svc.SaveBitmap(ctx, rec.ID, []byte("x"), ""); err == nil {
		t.Fatal("expected error from failing store")
	}
	got, _ := db.Get(rec.ID)
	if got.ImageID != nil {
		t.Error("failed save must not attach an identifier")
	}
}

func TestUpdate_IfMatch(t *testing.T) {
	svc, _, _ := testService(t)
	ctx := context.Background()
	rec, _ := svc.Create(ctx, Input{Title: "A"}, []byte("x"))

	if _, err := svc.Update(ctx, rec.ID, Input{Title: "B"}, `"nope"`); !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("err = %v, want conflict", err)
	}
	up, err := svc.Update(ctx, rec.ID, Input{Title: "B", Category: "Sketches"}, checksum.ETag(rec.Checksum))
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if up.Title != "B" || up.Category != "Sketches" || up.Description != "No Notes" {
		t.Errorf("updated = %+v", up)
	}
	if _, err := svc.Update(ctx, 999, Input{}, ""); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("missing: %v", err)
	}
}

func TestDelete_RemovesFile(t *testing.T) {
	log := &eventLog{}
	svc, store, _ := testService(t, WithEventFunc(log.add))
	ctx := context.Background()
	rec, _ := svc.Create(ctx, Input{}, []byte("x"))
	imageID := *rec.ImageID

	if err := svc.Delete(ctx, rec.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if store.Exists(imageID) {
		t.Error("bitmap file survived delete")
	}
	if _, err := svc.Get(ctx, rec.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("Get after delete: %v", err)
	}
	if last := log.events[len(log.events)-1]; last != "deleted" {
		t.Errorf("last event = %q", last)
	}
}

func TestGallery_GroupsByCategory(t *testing.T) {
	svc, _, _ := testService(t)
	ctx := context.Background()
	for _, in := range []Input{
		{Title: "Owl", Category: "Birds"},
		{Title: "Pier", Category: "Sea"},
		{Title: "Crow", Category: "Birds"},
		{Title: "Loose"},
	} {
		if _, err := svc.Create(ctx, in, nil); err != nil {
			t.Fatal(err)
		}
	}

	sections, err := svc.Gallery(ctx)
	if err != nil {
		t.Fatalf("Gallery: %v", err)
	}
	want := []struct {
		category string
		titles   []string
	}{
		{"Birds", []string{"Crow", "Owl"}},
		{"No Category", []string{"Loose"}},
		{"Sea", []string{"Pier"}},
	}
	if len(sections) != len(want) {
		t.Fatalf("sections = %+v", sections)
	}
	for i, w := range want {
		s := sections[i]
		if s.Category != w.category || len(s.Canvases) != len(w.titles) {
			t.Errorf("section %d = %+v", i, s)
			continue
		}
		for j, title := range w.titles {
			if s.Canvases[j].Title != title {
				t.Errorf("section %d item %d = %q, want %q", i, j, s.Canvases[j].Title, title)
			}
		}
	}
}

var _ storage.Provider = failingStore{}

func TestSearch_Delegates(t *testing.T) {
	svc, _, _ := testService(t)
	ctx := context.Background()
	_, _ = svc.Create(ctx, Input{Title: "Harbour"}, nil)
	res, err := svc.Search(ctx, "Harbour", 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(res) != 1 {
		t.Errorf("results = %+v", res)
	}
}
