package catalog

import (
	"log/slog"

	"github.com/starford/artselect/internal/models"
	"github.com/starford/artselect/internal/storage"
)

// Sync reconciles the catalog with the bitmap directory so that a record
// carries an identifier exactly when its file exists:
//   - records whose file is gone lose their identifier
//   - changed files get their checksum refreshed
//   - files no record claims are adopted as new default records
//
// The identifier counter is raised past every identifier seen.
func Sync(db *DB, store storage.Provider, logger *slog.Logger) error {
	metas, err := store.List()
	if err != nil {
		return err
	}

	checksums, err := db.ImageChecksums()
	if err != nil {
		return err
	}

	var maxID int64
	disk := make(map[int64]struct{}, len(metas))
	for _, m := range metas {
		disk[m.ID] = struct{}{}
		maxID = max(maxID, m.ID)

		if cs, ok := checksums[m.ID]; ok {
			if cs == m.Checksum {
				continue
			}
			if _, err := db.SetImageChecksum(m.ID, m.Checksum); err != nil {
				logger.Warn("sync: checksum update failed", slog.String("file", m.Name), slog.String("error", err.Error()))
			}
			continue
		}

		id := m.ID
		rec, err := db.Insert(models.Canvas{
			Title:       models.DefaultTitle,
			Description: models.DefaultDescription,
			Category:    models.DefaultCategory,
			ImageID:     &id,
			Checksum:    m.Checksum,
		})
		if err != nil {
			logger.Warn("sync: adopt failed", slog.String("file", m.Name), slog.String("error", err.Error()))
			continue
		}
		logger.Info("sync: adopted orphan bitmap", slog.String("file", m.Name), slog.Int64("canvas_id", rec.ID))
	}

	for imageID := range checksums {
		maxID = max(maxID, imageID)
		if _, ok := disk[imageID]; ok {
			continue
		}
		rec, err := db.FindByImageID(imageID)
		if err != nil {
			continue
		}
		if err := db.ClearImage(rec.ID); err != nil {
			logger.Warn("sync: clear image failed", slog.Int64("canvas_id", rec.ID), slog.String("error", err.Error()))
		} else {
			logger.Debug("sync: bitmap missing, identifier cleared", slog.Int64("canvas_id", rec.ID))
		}
	}

	return db.EnsureIdentifierAtLeast(maxID)
}
