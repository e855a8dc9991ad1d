package api

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/starford/artselect/internal/apperr"
	"github.com/starford/artselect/internal/canvasservice"
	"github.com/starford/artselect/internal/checksum"
	"github.com/starford/artselect/internal/export"
	"github.com/starford/artselect/internal/imagesearch"
	"github.com/starford/artselect/internal/session"
	"github.com/starford/artselect/internal/sse"
)

const maxBitmapBody = 20 << 20

// Handler holds API route handlers.
type Handler struct {
	svc      *canvasservice.Service
	sessions *session.Manager
	images   *imagesearch.Client
	broker   *sse.Broker
}

// NewHandler creates a new Handler.
func NewHandler(d Deps) *Handler {
	return &Handler{svc: d.Canvases, sessions: d.Sessions, images: d.Images, broker: d.Broker}
}

func canvasID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid canvas id", apperr.ErrInvalidInput)
	}
	return id, nil
}

// ListCanvases handles GET /api/canvases.
//
//	@Summary		List canvases in gallery order, or search them
//	@Tags			canvases
//	@Produce		json
//	@Param			limit		query		int		false	"Page size"
//	@Param			offset		query		int		false	"Page offset"
//	@Param			category	query		string	false	"Filter by category"
//	@Param			q			query		string	false	"Full-text query; returns SearchResponse"
//	@Success		200			{object}	CanvasListResponse
//	@Security		BearerAuth
//	@Router			/canvases [get]
func (h *Handler) ListCanvases(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	if query := q.Get("q"); query != "" {
		results, err := h.svc.Search(r.Context(), query, limit)
		if err != nil {
			writeError(w, "search canvases", err, slog.String("query", query))
			return
		}
		writeJSON(w, http.StatusOK, SearchResponse{Results: results})
		return
	}

	items, total, err := h.svc.List(r.Context(), limit, offset, q.Get("category"))
	if err != nil {
		writeError(w, "list canvases", err)
		return
	}
	writeJSON(w, http.StatusOK, CanvasListResponse{Canvases: items, Total: total})
}

// GetCanvas handles GET /api/canvases/{id}.
//
//	@Summary		Get a canvas record
//	@Tags			canvases
//	@Produce		json
//	@Param			id	path		int	true	"Canvas id"
//	@Success		200	{object}	models.Canvas
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/canvases/{id} [get]
func (h *Handler) GetCanvas(w http.ResponseWriter, r *http.Request) {
	id, err := canvasID(r)
	if err != nil {
		writeError(w, "get canvas", err)
		return
	}
	rec, err := h.svc.Get(r.Context(), id)
	if err != nil {
		writeError(w, "get canvas", err, slog.Int64("id", id))
		return
	}
	if rec.Checksum != "" {
		w.Header().Set("ETag", checksum.ETag(rec.Checksum))
	}
	writeJSON(w, http.StatusOK, rec)
}

// CreateCanvas handles POST /api/canvases.
//
//	@Summary		Create a canvas record, optionally with a bitmap
//	@Tags			canvases
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CanvasRequest	true	"Canvas to create"
//	@Success		201		{object}	models.Canvas
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/canvases [post]
func (h *Handler) CreateCanvas(w http.ResponseWriter, r *http.Request) {
	var req CanvasRequest
	// Base64 inflates the bitmap by a third.
	if err := decodeJSONLimit(w, r, &req, maxBitmapBody*4/3+maxJSONBody); err != nil {
		writeError(w, "create canvas", err)
		return
	}
	var bitmap []byte
	if len(req.Bitmap) > 0 {
		var err error
		if bitmap, err = h.normalize(req.Bitmap); err != nil {
			writeError(w, "create canvas", err)
			return
		}
	}
	rec, err := h.svc.Create(r.Context(), req.input(), bitmap)
	if err != nil {
		writeError(w, "create canvas", err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

// normalize decodes an uploaded picture and re-encodes it at canvas size.
func (h *Handler) normalize(data []byte) ([]byte, error) {
	img, _, err := imagesearch.Decode(data)
	if err != nil {
		return nil, err
	}
	return h.sessions.Render(img)
}

// UpdateCanvas handles PUT /api/canvases/{id}.
//
//	@Summary		Update canvas metadata with optimistic concurrency
//	@Tags			canvases
//	@Accept			json
//	@Produce		json
//	@Param			id			path		int				true	"Canvas id"
//	@Param			If-Match	header		string			false	"Bitmap checksum"
//	@Param			body		body		CanvasRequest	true	"New metadata"
//	@Success		200			{object}	models.Canvas
//	@Failure		404			{object}	errResponse
//	@Failure		409			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/canvases/{id} [put]
func (h *Handler) UpdateCanvas(w http.ResponseWriter, r *http.Request) {
	id, err := canvasID(r)
	if err != nil {
		writeError(w, "update canvas", err)
		return
	}
	var req CanvasRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, "update canvas", err)
		return
	}
	rec, err := h.svc.Update(r.Context(), id, req.input(), r.Header.Get("If-Match"))
	if err != nil {
		writeError(w, "update canvas", err, slog.Int64("id", id))
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// DeleteCanvas handles DELETE /api/canvases/{id}.
//
//	@Summary		Delete a canvas and its bitmap
//	@Tags			canvases
//	@Param			id	path	int	true	"Canvas id"
//	@Success		204	"Canvas deleted"
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/canvases/{id} [delete]
func (h *Handler) DeleteCanvas(w http.ResponseWriter, r *http.Request) {
	id, err := canvasID(r)
	if err != nil {
		writeError(w, "delete canvas", err)
		return
	}
	if err := h.svc.Delete(r.Context(), id); err != nil {
		writeError(w, "delete canvas", err, slog.Int64("id", id))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetBitmap handles GET /api/canvases/{id}/bitmap.
//
//	@Summary		Download the canvas bitmap (placeholder when none is saved)
//	@Tags			canvases
//	@Produce		jpeg
//	@Param			id				path	int		true	"Canvas id"
//	@Param			If-None-Match	header	string	false	"Cached ETag"
//	@Success		200
//	@Success		304
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/canvases/{id}/bitmap [get]
func (h *Handler) GetBitmap(w http.ResponseWriter, r *http.Request) {
	id, err := canvasID(r)
	if err != nil {
		writeError(w, "get bitmap", err)
		return
	}
	data, sum, err := h.svc.LoadBitmap(r.Context(), id)
	if err != nil {
		writeError(w, "get bitmap", err, slog.Int64("id", id))
		return
	}
	if sum != "" {
		w.Header().Set("ETag", checksum.ETag(sum))
		if inm := r.Header.Get("If-None-Match"); inm != "" && checksum.Matches(inm, sum) {
			w.WriteHeader(http.StatusNotModified)
			return
		}
	} else {
		w.Header().Set("Cache-Control", "no-store")
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	_, _ = w.Write(data)
}

// PutBitmap handles PUT /api/canvases/{id}/bitmap.
//
//	@Summary		Replace the canvas bitmap with an uploaded picture
//	@Tags			canvases
//	@Accept			octet-stream
//	@Produce		json
//	@Param			id			path		int		true	"Canvas id"
//	@Param			If-Match	header		string	false	"Bitmap checksum"
//	@Success		200			{object}	models.Canvas
//	@Failure		400			{object}	errResponse
//	@Failure		409			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/canvases/{id}/bitmap [put]
func (h *Handler) PutBitmap(w http.ResponseWriter, r *http.Request) {
	id, err := canvasID(r)
	if err != nil {
		writeError(w, "put bitmap", err)
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBitmapBody))
	if err != nil {
		writeJSON(w, http.StatusRequestEntityTooLarge, errorBody("bitmap too large"))
		return
	}
	bitmap, err := h.normalize(body)
	if err != nil {
		writeError(w, "put bitmap", err)
		return
	}
	rec, err := h.svc.SaveBitmap(r.Context(), id, bitmap, r.Header.Get("If-Match"))
	if err != nil {
		writeError(w, "put bitmap", err, slog.Int64("id", id))
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// ExportPDF handles GET /api/canvases/{id}/export.pdf.
//
//	@Summary		Render the canvas as a printable PDF page
//	@Tags			canvases
//	@Produce		application/pdf
//	@Param			id	path	int	true	"Canvas id"
//	@Success		200
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/canvases/{id}/export.pdf [get]
func (h *Handler) ExportPDF(w http.ResponseWriter, r *http.Request) {
	id, err := canvasID(r)
	if err != nil {
		writeError(w, "export pdf", err)
		return
	}
	rec, err := h.svc.Get(r.Context(), id)
	if err != nil {
		writeError(w, "export pdf", err, slog.Int64("id", id))
		return
	}
	data, _, err := h.svc.LoadBitmap(r.Context(), id)
	if err != nil {
		writeError(w, "export pdf", err, slog.Int64("id", id))
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`inline; filename="canvas-%d.pdf"`, id))
	if err := export.PDF(w, *rec, data); err != nil {
		slog.Error("export pdf failed", slog.Int64("id", id), slog.String("error", err.Error()))
	}
}

// Gallery handles GET /api/gallery.
//
//	@Summary		Canvases grouped into category sections
//	@Tags			canvases
//	@Produce		json
//	@Success		200	{object}	GalleryResponse
//	@Security		BearerAuth
//	@Router			/gallery [get]
func (h *Handler) Gallery(w http.ResponseWriter, r *http.Request) {
	sections, err := h.svc.Gallery(r.Context())
	if err != nil {
		writeError(w, "gallery", err)
		return
	}
	writeJSON(w, http.StatusOK, GalleryResponse{Sections: sections})
}

// SearchImages handles GET /api/search.
//
//	@Summary		Search reference photos
//	@Tags			search
//	@Produce		json
//	@Param			q		query		string	true	"Search query"
//	@Param			page	query		int		false	"Page, starting at 1"
//	@Success		200		{object}	imagesearch.Results
//	@Failure		400		{object}	errResponse
//	@Failure		502		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/search [get]
func (h *Handler) SearchImages(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	res, err := h.images.Search(r.Context(), q, page)
	if err != nil {
		slog.Warn("image search failed", slog.String("query", q), slog.String("error", err.Error()))
		writeJSON(w, http.StatusBadGateway, errorBody("image search unavailable"))
		return
	}
	writeJSON(w, http.StatusOK, res)
}
