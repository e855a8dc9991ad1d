package session

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/starford/artselect/internal/apperr"
	"github.com/starford/artselect/internal/imagesearch"
	"github.com/starford/artselect/internal/raster"
)

// Loader supplies the stored bitmap of a canvas record. An empty checksum
// means the record has no bitmap yet.
type Loader interface {
	LoadBitmap(ctx context.Context, canvasID int64) ([]byte, string, error)
}

// Config sizes new canvases and bounds the session table.
type Config struct {
	Width       int
	Height      int
	Background  raster.Color
	JPEGQuality int
	IdleTimeout time.Duration
	MaxSessions int
}

// Manager owns the live sessions.
type Manager struct {
	cfg    Config
	loader Loader
	logger *slog.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager creates a session manager.
func NewManager(cfg Config, loader Loader, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		cfg:      cfg,
		loader:   loader,
		logger:   logger,
		sessions: make(map[string]*Session),
	}
}

func (m *Manager) canvasOptions() []raster.Option {
	return []raster.Option{
		raster.WithBackground(m.cfg.Background),
		raster.WithJPEGQuality(m.cfg.JPEGQuality),
	}
}

// Blank returns the encoded placeholder a new canvas starts from.
func (m *Manager) Blank() ([]byte, error) {
	return raster.New(m.cfg.Width, m.cfg.Height, m.canvasOptions()...).Export()
}

// Render fills a fresh canvas with img and returns it encoded, so uploaded
// pictures are stored at the canvas size and format.
func (m *Manager) Render(img image.Image) ([]byte, error) {
	return raster.NewFromImage(m.cfg.Width, m.cfg.Height, img, m.canvasOptions()...).Export()
}

// Open starts a session. canvasID 0 starts from the blank placeholder;
// otherwise the record's bitmap is loaded.
func (m *Manager) Open(ctx context.Context, canvasID int64) (*Session, error) {
	var canvas *raster.Canvas
	if canvasID == 0 {
		canvas = raster.New(m.cfg.Width, m.cfg.Height, m.canvasOptions()...)
	} else {
		if m.loader == nil {
			return nil, fmt.Errorf("session: no bitmap loader configured")
		}
		data, sum, err := m.loader.LoadBitmap(ctx, canvasID)
		if err != nil {
			return nil, err
		}
		if sum == "" {
			canvas = raster.New(m.cfg.Width, m.cfg.Height, m.canvasOptions()...)
		} else {
			img, _, err := imagesearch.Decode(data)
			if err != nil {
				return nil, fmt.Errorf("session: stored bitmap for canvas %d: %w", canvasID, err)
			}
			canvas = raster.NewFromImage(m.cfg.Width, m.cfg.Height, img, m.canvasOptions()...)
		}
	}

	now := time.Now()
	s := &Session{
		id:       uuid.NewString(),
		canvasID: canvasID,
		created:  now,
		touched:  now,
		canvas:   canvas,
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cfg.MaxSessions > 0 && len(m.sessions) >= m.cfg.MaxSessions {
		return nil, fmt.Errorf("%w: session limit %d reached", apperr.ErrConflict, m.cfg.MaxSessions)
	}
	m.sessions[s.id] = s
	m.logger.Debug("session opened", slog.String("session_id", s.id), slog.Int64("canvas_id", canvasID))
	return s, nil
}

// Get returns a live session.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	return s, nil
}

func (m *Manager) take(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	delete(m.sessions, id)
	return s, nil
}

// Finish ends a session and returns its final bitmap.
func (m *Manager) Finish(id string) (Result, error) {
	s, err := m.take(id)
	if err != nil {
		return Result{}, err
	}
	canvasID, data, err := s.close(true)
	if err != nil {
		return Result{}, err
	}
	m.logger.Debug("session finished", slog.String("session_id", id))
	return Result{SessionID: id, CanvasID: canvasID, Bitmap: data}, nil
}

// Discard drops a session without producing a result.
func (m *Manager) Discard(id string) error {
	s, err := m.take(id)
	if err != nil {
		return err
	}
	_, _, err = s.close(false)
	return err
}

// List returns the state of every live session, oldest first.
func (m *Manager) List() []State {
	m.mu.Lock()
	live := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		live = append(live, s)
	}
	m.mu.Unlock()

	out := make([]State, 0, len(live))
	for _, s := range live {
		if st, err := s.State(); err == nil {
			out = append(out, st)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// ExpireIdle discards sessions untouched since before now minus the idle
// timeout and returns how many went.
func (m *Manager) ExpireIdle(now time.Time) int {
	if m.cfg.IdleTimeout <= 0 {
		return 0
	}
	cutoff := now.Add(-m.cfg.IdleTimeout)

	m.mu.Lock()
	var stale []string
	for id, s := range m.sessions {
		if s.idleSince().Before(cutoff) {
			stale = append(stale, id)
		}
	}
	m.mu.Unlock()

	n := 0
	for _, id := range stale {
		if err := m.Discard(id); err == nil {
			n++
			m.logger.Info("session expired", slog.String("session_id", id))
		}
	}
	return n
}

// Run expires idle sessions until ctx is cancelled.
func (m *Manager) Run(ctx context.Context) error {
	if m.cfg.IdleTimeout <= 0 {
		<-ctx.Done()
		return nil
	}
	interval := min(m.cfg.IdleTimeout/2, time.Minute)
	ticker := time.NewTicker(max(interval, time.Second))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			m.ExpireIdle(now)
		}
	}
}
