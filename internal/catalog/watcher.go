package catalog

import (
	"context"
	"log/slog"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/artselect/internal/checksum"
	"github.com/starford/artselect/internal/storage"
)

// EventCallback is called after a watcher-driven catalog change.
// kind is one of "created", "updated", "deleted".
type EventCallback func(kind string, canvasID int64)

const reconcileDelay = 200 * time.Millisecond

// Watch follows the bitmap directory until ctx is cancelled and keeps
// record checksums and identifiers in line with external edits. Files no
// record owns are left for the next Sync, since the canvas service writes
// a file before attaching it.
func Watch(ctx context.Context, db *DB, store storage.Provider, root string, logger *slog.Logger, cb EventCallback) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(root); err != nil {
		return err
	}

	logger.Info("watcher: started", slog.String("root", root))

	var reconcileTimer *time.Timer
	var reconcileCh <-chan time.Time

	scheduleReconcile := func() {
		if reconcileTimer == nil {
			reconcileTimer = time.NewTimer(reconcileDelay)
			reconcileCh = reconcileTimer.C
		} else {
			reconcileTimer.Reset(reconcileDelay)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if reconcileTimer != nil {
				reconcileTimer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-reconcileCh:
			reconcileMissing(db, store, logger, cb)

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			imageID, isBitmap := storage.ParseBitmapName(ev.Name)
			if !isBitmap {
				continue
			}

			switch {
			case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
				data, readErr := store.Load(imageID)
				if readErr != nil {
					logger.Warn("watcher: read failed", slog.Int64("image_id", imageID), slog.String("error", readErr.Error()))
					continue
				}
				canvasID, setErr := db.SetImageChecksum(imageID, checksum.Sum(data))
				if setErr != nil {
					logger.Warn("watcher: checksum update failed", slog.Int64("image_id", imageID), slog.String("error", setErr.Error()))
					continue
				}
				if canvasID == 0 {
					continue
				}
				logger.Debug("watcher: bitmap changed", slog.Int64("canvas_id", canvasID))
				if cb != nil {
					cb("updated", canvasID)
				}

			case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				rec, findErr := db.FindByImageID(imageID)
				if findErr != nil {
					continue
				}
				if clrErr := db.ClearImage(rec.ID); clrErr != nil {
					logger.Warn("watcher: clear image failed", slog.Int64("canvas_id", rec.ID), slog.String("error", clrErr.Error()))
					continue
				}
				logger.Debug("watcher: bitmap removed", slog.Int64("canvas_id", rec.ID))
				if cb != nil {
					cb("updated", rec.ID)
				}
				scheduleReconcile()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// reconcileMissing clears identifiers whose files disappeared without an
// event reaching the watcher.
func reconcileMissing(db *DB, store storage.Provider, logger *slog.Logger, cb EventCallback) {
	checksums, err := db.ImageChecksums()
	if err != nil {
		logger.Warn("reconcile: image checksums failed", slog.String("error", err.Error()))
		return
	}
	for imageID := range checksums {
		if store.Exists(imageID) {
			continue
		}
		rec, err := db.FindByImageID(imageID)
		if err != nil {
			continue
		}
		if err := db.ClearImage(rec.ID); err == nil {
			logger.Debug("reconcile: cleared stale identifier", slog.Int64("canvas_id", rec.ID))
			if cb != nil {
				cb("updated", rec.ID)
			}
		}
	}
}
