package api

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"mime"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/starford/artselect/internal/apperr"
	"github.com/starford/artselect/internal/canvasservice"
	"github.com/starford/artselect/internal/imagesearch"
	"github.com/starford/artselect/internal/models"
	"github.com/starford/artselect/internal/raster"
	"github.com/starford/artselect/internal/session"
	"github.com/starford/artselect/internal/sse"
)

const maxUploadBytes = 20 << 20

func (h *Handler) session(w http.ResponseWriter, r *http.Request, op string) (*session.Session, bool) {
	sid := chi.URLParam(r, "sid")
	s, err := h.sessions.Get(sid)
	if err != nil {
		writeError(w, op, err, slog.String("session_id", sid))
		return nil, false
	}
	return s, true
}

// respondState writes the session state and mirrors it onto the event stream.
func (h *Handler) respondState(w http.ResponseWriter, s *session.Session, status int, op string) {
	st, err := s.State()
	if err != nil {
		writeError(w, op, err, slog.String("session_id", s.ID()))
		return
	}
	h.publish("session.updated", st)
	writeJSON(w, status, st)
}

func (h *Handler) publish(eventType string, data any) {
	if h.broker != nil {
		h.broker.Publish(sse.Event{Type: eventType, Data: data})
	}
}

// ListSessions handles GET /api/sessions.
//
//	@Summary		List live drawing sessions
//	@Tags			sessions
//	@Produce		json
//	@Success		200	{array}	session.State
//	@Security		BearerAuth
//	@Router			/sessions [get]
func (h *Handler) ListSessions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.sessions.List())
}

// OpenSession handles POST /api/sessions.
//
//	@Summary		Start drawing, blank or on a saved canvas
//	@Tags			sessions
//	@Accept			json
//	@Produce		json
//	@Param			body	body		OpenSessionRequest	false	"Canvas to edit"
//	@Success		201		{object}	session.State
//	@Failure		404		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sessions [post]
func (h *Handler) OpenSession(w http.ResponseWriter, r *http.Request) {
	var req OpenSessionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, "open session", err)
		return
	}
	s, err := h.sessions.Open(r.Context(), req.CanvasID)
	if err != nil {
		writeError(w, "open session", err, slog.Int64("canvas_id", req.CanvasID))
		return
	}
	h.respondState(w, s, http.StatusCreated, "open session")
}

// GetSession handles GET /api/sessions/{sid}.
//
//	@Summary		Session state
//	@Tags			sessions
//	@Produce		json
//	@Param			sid	path		string	true	"Session id"
//	@Success		200	{object}	session.State
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sessions/{sid} [get]
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r, "get session")
	if !ok {
		return
	}
	st, err := s.State()
	if err != nil {
		writeError(w, "get session", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// DiscardSession handles DELETE /api/sessions/{sid}.
//
//	@Summary		Drop a session without saving
//	@Tags			sessions
//	@Param			sid	path	string	true	"Session id"
//	@Success		204	"Session discarded"
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sessions/{sid} [delete]
func (h *Handler) DiscardSession(w http.ResponseWriter, r *http.Request) {
	sid := chi.URLParam(r, "sid")
	if err := h.sessions.Discard(sid); err != nil {
		writeError(w, "discard session", err, slog.String("session_id", sid))
		return
	}
	h.publish("session.closed", map[string]string{"id": sid})
	w.WriteHeader(http.StatusNoContent)
}

// StrokePhase handles POST /api/sessions/{sid}/stroke/{phase}.
//
//	@Summary		Feed one pointer sample: begin, extend or end
//	@Tags			sessions
//	@Accept			json
//	@Produce		json
//	@Param			sid		path		string			true	"Session id"
//	@Param			phase	path		string			true	"Stroke phase"	Enums(begin, extend, end)
//	@Param			body	body		PointRequest	true	"Pointer position"
//	@Success		200		{object}	session.State
//	@Failure		400		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sessions/{sid}/stroke/{phase} [post]
func (h *Handler) StrokePhase(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r, "stroke")
	if !ok {
		return
	}
	var req PointRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, "stroke", err)
		return
	}
	p, err := req.point()
	if err != nil {
		writeError(w, "stroke", err)
		return
	}
	if err := applyPhase(s, chi.URLParam(r, "phase"), p); err != nil {
		writeError(w, "stroke", err, slog.String("session_id", s.ID()))
		return
	}
	h.respondState(w, s, http.StatusOK, "stroke")
}

func applyPhase(s *session.Session, phase string, p raster.Point) error {
	switch phase {
	case "begin":
		return s.Begin(p)
	case "extend":
		return s.Extend(p)
	case "end":
		return s.End(p)
	default:
		return fmt.Errorf("%w: unknown stroke phase %q", apperr.ErrInvalidInput, phase)
	}
}

// Strokes handles POST /api/sessions/{sid}/strokes.
//
//	@Summary		Draw whole polylines in one request
//	@Tags			sessions
//	@Accept			json
//	@Produce		json
//	@Param			sid		path		string			true	"Session id"
//	@Param			body	body		StrokesRequest	true	"Polylines"
//	@Success		200		{object}	session.State
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sessions/{sid}/strokes [post]
func (h *Handler) Strokes(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r, "strokes")
	if !ok {
		return
	}
	var req StrokesRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, "strokes", err)
		return
	}
	if err := drawStrokes(s, req); err != nil {
		writeError(w, "strokes", err, slog.String("session_id", s.ID()))
		return
	}
	h.respondState(w, s, http.StatusOK, "strokes")
}

func drawStrokes(s *session.Session, req StrokesRequest) error {
	if req.Brush != nil {
		u, err := req.Brush.update()
		if err != nil {
			return err
		}
		if _, err := s.ApplyBrush(u); err != nil {
			return err
		}
	}
	for i, pts := range req.Strokes {
		if err := s.Stroke(pts); err != nil {
			return fmt.Errorf("stroke %d: %w", i, err)
		}
	}
	return nil
}

// SetBrush handles PUT /api/sessions/{sid}/brush.
//
//	@Summary		Change tool, colour, width or opacity
//	@Tags			sessions
//	@Accept			json
//	@Produce		json
//	@Param			sid		path		string			true	"Session id"
//	@Param			body	body		BrushRequest	true	"Brush changes"
//	@Success		200		{object}	raster.BrushState
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sessions/{sid}/brush [put]
func (h *Handler) SetBrush(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r, "set brush")
	if !ok {
		return
	}
	var req BrushRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, "set brush", err)
		return
	}
	u, err := req.update()
	if err != nil {
		writeError(w, "set brush", err)
		return
	}
	b, err := s.ApplyBrush(u)
	if err != nil {
		writeError(w, "set brush", err, slog.String("session_id", s.ID()))
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// Composite handles POST /api/sessions/{sid}/composite.
//
//	@Summary		Fill the canvas with a picture (JSON url or multipart file)
//	@Tags			sessions
//	@Accept			json,mpfd
//	@Produce		json
//	@Param			sid		path		string				true	"Session id"
//	@Param			body	body		CompositeRequest	false	"Remote picture"
//	@Param			file	formData	file				false	"Uploaded picture"
//	@Param			opacity	formData	number				false	"Opacity 0..1"
//	@Success		200		{object}	session.State
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sessions/{sid}/composite [post]
func (h *Handler) Composite(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r, "composite")
	if !ok {
		return
	}
	img, opacity, err := h.compositeSource(w, r)
	if err != nil {
		writeError(w, "composite", err, slog.String("session_id", s.ID()))
		return
	}
	if err := s.Composite(img, opacity); err != nil {
		writeError(w, "composite", err, slog.String("session_id", s.ID()))
		return
	}
	h.respondState(w, s, http.StatusOK, "composite")
}

func (h *Handler) compositeSource(w http.ResponseWriter, r *http.Request) (image.Image, float64, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			return nil, 0, fmt.Errorf("%w: file too large or invalid multipart", apperr.ErrInvalidInput)
		}
		file, _, err := r.FormFile("file")
		if err != nil {
			return nil, 0, fmt.Errorf("%w: missing 'file' field in multipart form", apperr.ErrInvalidInput)
		}
		defer file.Close()
		var buf bytes.Buffer
		if _, err := buf.ReadFrom(file); err != nil {
			return nil, 0, fmt.Errorf("%w: read upload: %v", apperr.ErrInvalidInput, err)
		}
		img, _, err := imagesearch.Decode(buf.Bytes())
		if err != nil {
			return nil, 0, err
		}
		opacity := 1.0
		if v := r.FormValue("opacity"); v != "" {
			if opacity, err = strconv.ParseFloat(v, 64); err != nil {
				return nil, 0, fmt.Errorf("%w: invalid opacity", apperr.ErrInvalidInput)
			}
		}
		return img, opacity, nil
	}

	var req CompositeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return nil, 0, err
	}
	if req.URL == "" {
		return nil, 0, fmt.Errorf("%w: url is required", apperr.ErrInvalidInput)
	}
	img, err := h.images.Fetch(r.Context(), req.URL)
	if err != nil {
		if !errors.Is(err, apperr.ErrInvalidImage) {
			err = fmt.Errorf("%w: %v", apperr.ErrInvalidInput, err)
		}
		return nil, 0, err
	}
	opacity := 1.0
	if req.Opacity != nil {
		opacity = *req.Opacity
	}
	return img, opacity, nil
}

// Reset handles POST /api/sessions/{sid}/reset.
//
//	@Summary		Restore the blank placeholder
//	@Tags			sessions
//	@Produce		json
//	@Param			sid	path		string	true	"Session id"
//	@Success		200	{object}	session.State
//	@Security		BearerAuth
//	@Router			/sessions/{sid}/reset [post]
func (h *Handler) Reset(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r, "reset")
	if !ok {
		return
	}
	if err := s.Reset(); err != nil {
		writeError(w, "reset", err)
		return
	}
	h.respondState(w, s, http.StatusOK, "reset")
}

// SessionImage handles GET /api/sessions/{sid}/image.
//
//	@Summary		Committed image as PNG, or JPEG with format=jpeg
//	@Tags			sessions
//	@Produce		png,jpeg
//	@Param			sid		path	string	true	"Session id"
//	@Param			format	query	string	false	"Output format"	Enums(png, jpeg)
//	@Success		200
//	@Security		BearerAuth
//	@Router			/sessions/{sid}/image [get]
func (h *Handler) SessionImage(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r, "session image")
	if !ok {
		return
	}
	if r.URL.Query().Get("format") == "jpeg" {
		data, err := s.Export()
		if err != nil {
			writeError(w, "session image", err)
			return
		}
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write(data)
		return
	}
	img, err := s.Snapshot()
	if err != nil {
		writeError(w, "session image", err)
		return
	}
	writePNG(w, img)
}

// SessionDraft handles GET /api/sessions/{sid}/draft.
//
//	@Summary		Draft overlay as PNG; X-Draft-Opacity carries its display alpha
//	@Tags			sessions
//	@Produce		png
//	@Param			sid	path	string	true	"Session id"
//	@Success		200
//	@Success		204	"No draft"
//	@Security		BearerAuth
//	@Router			/sessions/{sid}/draft [get]
func (h *Handler) SessionDraft(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r, "session draft")
	if !ok {
		return
	}
	img, opacity, present, err := s.Draft()
	if err != nil {
		writeError(w, "session draft", err)
		return
	}
	if !present {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.Header().Set("X-Draft-Opacity", strconv.FormatFloat(opacity, 'f', -1, 64))
	writePNG(w, img)
}

func writePNG(w http.ResponseWriter, img image.Image) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		slog.Error("png encode failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(buf.Bytes())
}

// Save handles POST /api/sessions/{sid}/save.
//
//	@Summary		Persist the drawing as a new or existing canvas
//	@Tags			sessions
//	@Accept			json
//	@Produce		json
//	@Param			sid		path		string		true	"Session id"
//	@Param			body	body		SaveRequest	false	"Metadata"
//	@Success		200		{object}	models.Canvas
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sessions/{sid}/save [post]
func (h *Handler) Save(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r, "save")
	if !ok {
		return
	}
	var req SaveRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, "save", err)
		return
	}
	rec, err := h.persist(r, s, req)
	if err != nil {
		// The session stays open so the drawing is not lost.
		writeError(w, "save", err, slog.String("session_id", s.ID()))
		return
	}
	if !req.Keep {
		if err := h.sessions.Discard(s.ID()); err == nil {
			h.publish("session.closed", map[string]string{"id": s.ID()})
		}
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) persist(r *http.Request, s *session.Session, req SaveRequest) (*models.Canvas, error) {
	in := canvasservice.Input{Title: req.Title, Description: req.Description, Category: req.Category}

	var rec *models.Canvas
	_, err := s.Persist(func(id int64, bitmap []byte) (int64, error) {
		var err error
		if id == 0 {
			if rec, err = h.svc.Create(r.Context(), in, bitmap); err != nil {
				return 0, err
			}
			return rec.ID, nil
		}

		if rec, err = h.svc.SaveBitmap(r.Context(), id, bitmap, req.IfMatch); err != nil {
			return 0, err
		}
		if !req.hasMetadata() {
			return id, nil
		}
		if in.Title == "" {
			in.Title = rec.Title
		}
		if in.Description == "" {
			in.Description = rec.Description
		}
		if in.Category == "" {
			in.Category = rec.Category
		}
		if rec, err = h.svc.Update(r.Context(), id, in, ""); err != nil {
			return 0, err
		}
		return id, nil
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}
