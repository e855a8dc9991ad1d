package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/starford/artselect/internal/apperr"
	"github.com/starford/artselect/internal/raster"
	"github.com/starford/artselect/internal/session"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = wsPongWait * 9 / 10
	wsMaxMessage = 64 << 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Access is governed by the bearer token, not by origin.
	CheckOrigin: func(*http.Request) bool { return true },
}

// StreamMessage is one client frame on the session stream.
//
// Type is one of begin, extend, end, stroke, brush, reset or state.
type StreamMessage struct {
	Type   string         `json:"type"`
	X      float64        `json:"x,omitempty"`
	Y      float64        `json:"y,omitempty"`
	Points []raster.Point `json:"points,omitempty"`
	Brush  *BrushRequest  `json:"brush,omitempty"`
	Seq    int64          `json:"seq,omitempty"`
}

// StreamReply acknowledges a StreamMessage.
type StreamReply struct {
	Type  string         `json:"type"`
	Seq   int64          `json:"seq,omitempty"`
	State *session.State `json:"state,omitempty"`
	Error string         `json:"error,omitempty"`
}

// Stream handles GET /api/sessions/{sid}/stream.
//
//	@Summary		WebSocket for low-latency pointer samples
//	@Description	Each JSON frame is applied in order and acknowledged with the session state.
//	@Tags			sessions
//	@Param			sid	path	string	true	"Session id"
//	@Success		101
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sessions/{sid}/stream [get]
func (h *Handler) Stream(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r, "stream")
	if !ok {
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		slog.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer conn.Close()

	logger := slog.With(slog.String("session_id", s.ID()))
	logger.Debug("stream opened")

	conn.SetReadLimit(wsMaxMessage)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	done := make(chan struct{})
	defer close(done)
	go func() {
		t := time.NewTicker(wsPingPeriod)
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case <-t.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
					return
				}
			}
		}
	}()

	for {
		var msg StreamMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("stream read failed", slog.String("error", err.Error()))
			}
			return
		}

		reply := h.handleStreamMessage(s, msg)
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := conn.WriteJSON(reply); err != nil {
			logger.Warn("stream write failed", slog.String("error", err.Error()))
			return
		}
		if reply.Type == "closed" {
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed"),
				time.Now().Add(wsWriteWait))
			return
		}
	}
}

func (h *Handler) handleStreamMessage(s *session.Session, msg StreamMessage) StreamReply {
	p := raster.Point{X: msg.X, Y: msg.Y}
	var err error
	switch msg.Type {
	case "begin", "extend", "end":
		err = applyPhase(s, msg.Type, p)
	case "stroke":
		err = s.Stroke(msg.Points)
	case "brush":
		if msg.Brush == nil {
			err = fmt.Errorf("%w: brush is required", apperr.ErrInvalidInput)
			break
		}
		var u raster.BrushUpdate
		if u, err = msg.Brush.update(); err == nil {
			_, err = s.ApplyBrush(u)
		}
	case "reset":
		err = s.Reset()
	case "state":
	default:
		err = fmt.Errorf("%w: unknown message type %q", apperr.ErrInvalidInput, msg.Type)
	}

	if errors.Is(err, apperr.ErrNotFound) {
		return StreamReply{Type: "closed", Seq: msg.Seq, Error: "session closed"}
	}
	if err != nil {
		return StreamReply{Type: "error", Seq: msg.Seq, Error: err.Error()}
	}
	st, err := s.State()
	if err != nil {
		return StreamReply{Type: "closed", Seq: msg.Seq, Error: "session closed"}
	}
	if msg.Type == "end" || msg.Type == "stroke" || msg.Type == "reset" {
		h.publish("session.updated", st)
	}
	return StreamReply{Type: "state", Seq: msg.Seq, State: &st}
}
