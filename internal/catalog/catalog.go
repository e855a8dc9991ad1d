package catalog

import "github.com/starford/artselect/internal/models"

// Catalog is the record store consumed by the canvas service.
type Catalog interface {
	NextIdentifier() (int64, error)
	EnsureIdentifierAtLeast(n int64) error
	Insert(c models.Canvas) (*models.Canvas, error)
	Update(c models.Canvas) (*models.Canvas, error)
	Get(id int64) (*models.Canvas, error)
	Delete(id int64) error
	List(limit, offset int, category string) ([]models.Canvas, int, error)
	Categories() ([]string, error)
	FindByImageID(imageID int64) (*models.Canvas, error)
	SetImage(id, imageID int64, checksum string) error
	SetImageChecksum(imageID int64, checksum string) (int64, error)
	ClearImage(id int64) error
	ImageChecksums() (map[int64]string, error)
	Search(query string, limit int) ([]SearchResult, error)
	Close() error
}

// Verify *DB satisfies Catalog at compile time.
var _ Catalog = (*DB)(nil)
