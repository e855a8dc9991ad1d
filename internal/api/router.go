package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/artselect/internal/canvasservice"
	"github.com/starford/artselect/internal/imagesearch"
	"github.com/starford/artselect/internal/session"
	"github.com/starford/artselect/internal/sse"
)

// Deps are the collaborators the API is served from.
type Deps struct {
	Canvases *canvasservice.Service
	Sessions *session.Manager
	Images   *imagesearch.Client
	// Broker, if set, is mounted at GET /events and receives session.* events.
	Broker *sse.Broker

	AuthEnabled bool
	Token       string
}

// NewRouter creates a chi router with all API routes mounted.
func NewRouter(d Deps) chi.Router {
	h := NewHandler(d)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(d.AuthEnabled, d.Token))

	r.Route("/canvases", func(r chi.Router) {
		r.Get("/", h.ListCanvases)
		r.Post("/", h.CreateCanvas)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.GetCanvas)
			r.Put("/", h.UpdateCanvas)
			r.Delete("/", h.DeleteCanvas)
			r.Get("/bitmap", h.GetBitmap)
			r.Put("/bitmap", h.PutBitmap)
			r.Get("/export.pdf", h.ExportPDF)
		})
	})
	r.Get("/gallery", h.Gallery)

	r.Route("/sessions", func(r chi.Router) {
		r.Get("/", h.ListSessions)
		r.Post("/", h.OpenSession)
		r.Route("/{sid}", func(r chi.Router) {
			r.Get("/", h.GetSession)
			r.Delete("/", h.DiscardSession)
			r.Post("/stroke/{phase}", h.StrokePhase)
			r.Post("/strokes", h.Strokes)
			r.Put("/brush", h.SetBrush)
			r.Post("/composite", h.Composite)
			r.Post("/reset", h.Reset)
			r.Get("/image", h.SessionImage)
			r.Get("/draft", h.SessionDraft)
			r.Post("/save", h.Save)
			r.Get("/stream", h.Stream)
		})
	})

	r.Get("/search", h.SearchImages)

	if d.Broker != nil {
		r.Get("/events", d.Broker.ServeHTTP)
	}

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
	})
	return r
}
