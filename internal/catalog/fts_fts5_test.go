//go:build sqlite_fts5

package catalog

import (
	"testing"

	"github.com/starford/artselect/internal/models"
)

func TestFTS5_TableExists(t *testing.T) {
	db := testDB(t)
	var count int
	if err := db.conn.QueryRow(`SELECT count(*) FROM canvases_fts`).Scan(&count); err != nil {
		t.Fatalf("canvases_fts table missing: %v", err)
	}
}

func TestFTS5_SearchFollowsUpdatesAndDeletes(t *testing.T) {
	db := testDB(t)
	c, err := db.Insert(models.Canvas{Title: "Lighthouse", Description: "stormy harbour sketch", Category: "Seascapes"})
	if err != nil {
		t.Fatal(err)
	}

	res, err := db.Search("harbour", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(res) != 1 || res[0].ID != c.ID {
		t.Fatalf("results = %+v", res)
	}

	c.Description = "calm bay"
	if _, err := db.Update(*c); err != nil {
		t.Fatal(err)
	}
	if res, _ := db.Search("harbour", 10); len(res) != 0 {
		t.Errorf("stale fts entry after update: %+v", res)
	}

	if err := db.Delete(c.ID); err != nil {
		t.Fatal(err)
	}
	if res, _ := db.Search("bay", 10); len(res) != 0 {
		t.Errorf("fts entry survived delete: %+v", res)
	}
}
