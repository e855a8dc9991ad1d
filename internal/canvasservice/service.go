// Package canvasservice coordinates canvas records in the catalog with their
// bitmap files in storage.
package canvasservice

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"sync"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/artselect/internal/apperr"
	"github.com/starford/artselect/internal/catalog"
	"github.com/starford/artselect/internal/checksum"
	"github.com/starford/artselect/internal/models"
	"github.com/starford/artselect/internal/storage"
)

// EventFunc is told about every record mutation.
// kind is one of "created", "updated", "deleted".
type EventFunc func(kind string, canvasID int64)

// Input is the editable metadata of a canvas.
type Input struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

// Validate checks field lengths.
func (in Input) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Title, validation.Length(0, 200)),
		validation.Field(&in.Description, validation.Length(0, 4000)),
		validation.Field(&in.Category, validation.Length(0, 100)),
	)
}

// normalize trims the fields and fills empty ones with the record defaults.
func (in Input) normalize() Input {
	in.Title = orDefault(in.Title, models.DefaultTitle)
	in.Description = orDefault(in.Description, models.DefaultDescription)
	in.Category = orDefault(in.Category, models.DefaultCategory)
	return in
}

func orDefault(s, def string) string {
	if s = strings.TrimSpace(s); s == "" {
		return def
	}
	return s
}

// Option configures a Service.
type Option func(*Service)

// WithPlaceholder sets the bitmap returned for records without one.
func WithPlaceholder(jpeg []byte) Option {
	return func(s *Service) {
		s.placeholder = jpeg
	}
}

// WithEventFunc registers a mutation listener.
func WithEventFunc(fn EventFunc) Option {
	return func(s *Service) {
		s.onEvent = fn
	}
}

// Service coordinates storage and catalog operations.
type Service struct {
	store       storage.Provider
	db          catalog.Catalog
	placeholder []byte
	onEvent     EventFunc

	// bitmapMu serialises identifier allocation and file writes.
	bitmapMu sync.Mutex
}

// NewService creates a new canvas service.
func NewService(store storage.Provider, db catalog.Catalog, opts ...Option) *Service {
	s := &Service{store: store, db: db}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) emit(kind string, id int64) {
	if s.onEvent != nil {
		s.onEvent(kind, id)
	}
}

func invalid(err error) error {
	return fmt.Errorf("%w: %v", apperr.ErrInvalidInput, err)
}

// Create inserts a record and, when bitmap is non-empty, stores it.
func (s *Service) Create(ctx context.Context, in Input, bitmap []byte) (*models.Canvas, error) {
	if err := in.Validate(); err != nil {
		return nil, invalid(err)
	}
	in = in.normalize()
	rec, err := s.db.Insert(models.Canvas{
		Title:       in.Title,
		Description: in.Description,
		Category:    in.Category,
	})
	if err != nil {
		return nil, err
	}
	if len(bitmap) > 0 {
		if rec, err = s.saveBitmap(rec.ID, bitmap, ""); err != nil {
			return nil, err
		}
	}
	s.emit("created", rec.ID)
	return rec, nil
}

// Get returns one record.
func (s *Service) Get(_ context.Context, id int64) (*models.Canvas, error) {
	return s.db.Get(id)
}

// Update rewrites the metadata. A non-empty ifMatch must match the current
// bitmap checksum.
func (s *Service) Update(_ context.Context, id int64, in Input, ifMatch string) (*models.Canvas, error) {
	if err := in.Validate(); err != nil {
		return nil, invalid(err)
	}
	existing, err := s.db.Get(id)
	if err != nil {
		return nil, err
	}
	if ifMatch != "" && !checksum.Matches(ifMatch, existing.Checksum) {
		return nil, apperr.ErrConflict
	}
	in = in.normalize()
	existing.Title, existing.Description, existing.Category = in.Title, in.Description, in.Category
	rec, err := s.db.Update(*existing)
	if err != nil {
		return nil, err
	}
	s.emit("updated", id)
	return rec, nil
}

// Delete removes the record and its bitmap file.
func (s *Service) Delete(_ context.Context, id int64) error {
	s.bitmapMu.Lock()
	defer s.bitmapMu.Unlock()

	rec, err := s.db.Get(id)
	if err != nil {
		return err
	}
	if err := s.db.Delete(id); err != nil {
		return err
	}
	if rec.ImageID != nil {
		if err := s.store.Delete(*rec.ImageID); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	s.emit("deleted", id)
	return nil
}

// List returns records in gallery order with the total count.
func (s *Service) List(_ context.Context, limit, offset int, category string) ([]models.Canvas, int, error) {
	return s.db.List(limit, offset, category)
}

// Gallery returns every record grouped into category sections.
func (s *Service) Gallery(_ context.Context) ([]models.GallerySection, error) {
	items, _, err := s.db.List(0, 0, "")
	if err != nil {
		return nil, err
	}
	sections := []models.GallerySection{}
	for _, c := range items {
		n := len(sections)
		if n == 0 || !strings.EqualFold(sections[n-1].Category, c.Category) {
			sections = append(sections, models.GallerySection{Category: c.Category})
			n++
		}
		sections[n-1].Canvases = append(sections[n-1].Canvases, c)
	}
	return sections, nil
}

// Search delegates text search to the catalog.
func (s *Service) Search(_ context.Context, query string, limit int) ([]catalog.SearchResult, error) {
	return s.db.Search(query, limit)
}

// SaveBitmap writes bitmap for record id. The identifier is allocated the
// first time a record is saved and reused afterwards. A non-empty ifMatch
// must match the current checksum.
func (s *Service) SaveBitmap(_ context.Context, id int64, bitmap []byte, ifMatch string) (*models.Canvas, error) {
	if len(bitmap) == 0 {
		return nil, fmt.Errorf("%w: empty bitmap", apperr.ErrInvalidInput)
	}
	rec, err := s.saveBitmap(id, bitmap, ifMatch)
	if err != nil {
		return nil, err
	}
	s.emit("updated", id)
	return rec, nil
}

func (s *Service) saveBitmap(id int64, bitmap []byte, ifMatch string) (*models.Canvas, error) {
	s.bitmapMu.Lock()
	defer s.bitmapMu.Unlock()

	rec, err := s.db.Get(id)
	if err != nil {
		return nil, err
	}
	if ifMatch != "" && !checksum.Matches(ifMatch, rec.Checksum) {
		return nil, apperr.ErrConflict
	}

	fresh := rec.ImageID == nil
	var imageID int64
	if fresh {
		if imageID, err = s.db.NextIdentifier(); err != nil {
			return nil, err
		}
	} else {
		imageID = *rec.ImageID
	}

	if err := s.store.Save(imageID, bitmap); err != nil {
		return nil, err
	}
	sum := checksum.Sum(bitmap)
	if err := s.db.SetImage(id, imageID, sum); err != nil {
		if fresh {
			_ = s.store.Delete(imageID)
		}
		return nil, err
	}
	return s.db.Get(id)
}

// LoadBitmap returns the encoded bitmap and its checksum. Records without a
// bitmap yield the placeholder and an empty checksum.
func (s *Service) LoadBitmap(_ context.Context, id int64) ([]byte, string, error) {
	rec, err := s.db.Get(id)
	if err != nil {
		return nil, "", err
	}
	if rec.ImageID == nil {
		return s.placeholder, "", nil
	}
	data, err := s.store.Load(*rec.ImageID)
	if errors.Is(err, fs.ErrNotExist) {
		// File vanished under us; detach so the record and disk agree again.
		if clrErr := s.db.ClearImage(id); clrErr != nil {
			return nil, "", clrErr
		}
		s.emit("updated", id)
		return s.placeholder, "", nil
	}
	if err != nil {
		return nil, "", err
	}
	return data, rec.Checksum, nil
}
