// Package mcpserver exposes canvases to LLM clients over the Model Context
// Protocol (stdio transport).
package mcpserver

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/artselect/internal/apperr"
	"github.com/starford/artselect/internal/canvasservice"
	"github.com/starford/artselect/internal/imagesearch"
	"github.com/starford/artselect/internal/models"
	"github.com/starford/artselect/internal/raster"
	"github.com/starford/artselect/internal/session"
)

const bitmapURIPrefix = "artselect://canvases/"

// Server wraps the MCP server with canvas tools.
type Server struct {
	mcp      *server.MCPServer
	svc      *canvasservice.Service
	sessions *session.Manager
	images   *imagesearch.Client
	contract string
}

// New creates an MCP server with every tool registered. width and height
// are the canvas size quoted by the drawing contract.
func New(svc *canvasservice.Service, sessions *session.Manager, images *imagesearch.Client, width, height int) *Server {
	s := &Server{svc: svc, sessions: sessions, images: images, contract: DrawingContract(width, height)}

	s.mcp = server.NewMCPServer(
		"ArtSelect",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
		server.WithRecovery(),
	)

	s.mcp.AddTool(mcp.NewTool("list_canvases",
		mcp.WithDescription("List saved canvases in gallery order (category, then title)."),
		mcp.WithString("category", mcp.Description("Only canvases in this category")),
		mcp.WithNumber("limit", mcp.Description("Page size (default all)")),
		mcp.WithNumber("offset", mcp.Description("Page offset")),
	), s.listCanvases)

	s.mcp.AddTool(mcp.NewTool("get_canvas",
		mcp.WithDescription("Get one canvas record, optionally with its bitmap as a JPEG image."),
		mcp.WithNumber("id", mcp.Required(), mcp.Description("Canvas id")),
		mcp.WithBoolean("include_bitmap", mcp.Description("Attach the bitmap (placeholder when none is saved)")),
	), s.getCanvas)

	s.mcp.AddTool(mcp.NewTool("create_canvas",
		mcp.WithDescription("Create an empty canvas record. Draw on it with draw_strokes or composite_image."),
		mcp.WithString("title", mcp.Description("Title (default Untitled)")),
		mcp.WithString("description", mcp.Description("Notes (default No Notes)")),
		mcp.WithString("category", mcp.Description("Gallery section (default No Category)")),
	), s.createCanvas)

	s.mcp.AddTool(mcp.NewTool("update_canvas",
		mcp.WithDescription("Change the title, notes or category of a canvas. Empty fields fall back to their defaults."),
		mcp.WithNumber("id", mcp.Required(), mcp.Description("Canvas id")),
		mcp.WithString("title", mcp.Description("Title")),
		mcp.WithString("description", mcp.Description("Notes")),
		mcp.WithString("category", mcp.Description("Gallery section")),
	), s.updateCanvas)

	s.mcp.AddTool(mcp.NewTool("draw_strokes",
		mcp.WithDescription("Draw strokes on a canvas and save it. Read the drawing contract first via "+
			"get_drawing_contract or the "+DrawingContractURI+" resource. Omit id to start a new canvas."),
		mcp.WithNumber("id", mcp.Description("Canvas id; omit or 0 for a new canvas")),
		mcp.WithArray("strokes", mcp.Required(),
			mcp.Description("List of strokes; each stroke is a list of {x, y} points"),
			mcp.Items(map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"x": map[string]any{"type": "number"},
						"y": map[string]any{"type": "number"},
					},
					"required": []string{"x", "y"},
				},
			}),
		),
		mcp.WithString("tool", mcp.Enum("brush", "eraser"), mcp.Description("Brush tool")),
		mcp.WithString("color", mcp.Description("Colour: #rgb, #rrggbb, #rrggbbaa or an SVG name")),
		mcp.WithNumber("width", mcp.Description("Stroke width in pixels")),
		mcp.WithNumber("opacity", mcp.Description("Stroke opacity 0..1")),
		mcp.WithString("title", mcp.Description("Title for a new canvas")),
		mcp.WithString("category", mcp.Description("Category for a new canvas")),
	), s.drawStrokes)

	s.mcp.AddTool(mcp.NewTool("composite_image",
		mcp.WithDescription("Fill a canvas with a picture (aspect fill, centre crop) blended at an opacity, then save it."),
		mcp.WithNumber("id", mcp.Description("Canvas id; omit or 0 for a new canvas")),
		mcp.WithString("url", mcp.Required(), mcp.Description("http(s) URL or data URI of the picture")),
		mcp.WithNumber("opacity", mcp.Description("Blend opacity 0..1 (default 1)")),
		mcp.WithString("title", mcp.Description("Title for a new canvas")),
		mcp.WithString("category", mcp.Description("Category for a new canvas")),
	), s.compositeImage)

	s.mcp.AddTool(mcp.NewTool("reset_canvas",
		mcp.WithDescription("Replace a canvas bitmap with the blank placeholder."),
		mcp.WithNumber("id", mcp.Required(), mcp.Description("Canvas id")),
	), s.resetCanvas)

	s.mcp.AddTool(mcp.NewTool("search_images",
		mcp.WithDescription("Search reference photos. Pass a result url to composite_image."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search terms")),
		mcp.WithNumber("page", mcp.Description("Result page, starting at 1")),
	), s.searchImages)

	s.mcp.AddTool(mcp.NewTool("get_drawing_contract",
		mcp.WithDescription("Returns the coordinate system, stroke and brush rules. Call this before drawing."),
	), s.getDrawingContract)

	s.mcp.AddResource(
		mcp.NewResource(DrawingContractURI, "Drawing Contract",
			mcp.WithResourceDescription("Coordinate system, stroke and brush rules for canvas tools."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readDrawingContract,
	)

	s.mcp.AddResourceTemplate(
		mcp.NewResourceTemplate(bitmapURIPrefix+"{id}/bitmap", "Canvas bitmap",
			mcp.WithTemplateDescription("JPEG bitmap of a saved canvas."),
			mcp.WithTemplateMIMEType("image/jpeg"),
		),
		s.readBitmapResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func toolError(err error) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultError(err.Error()), nil
}

func requireID(req mcp.CallToolRequest) (int64, error) {
	v, err := req.RequireFloat("id")
	if err != nil {
		return 0, err
	}
	if v <= 0 || v != float64(int64(v)) {
		return 0, fmt.Errorf("%w: id must be a positive integer", apperr.ErrInvalidInput)
	}
	return int64(v), nil
}

func metadata(req mcp.CallToolRequest) canvasservice.Input {
	return canvasservice.Input{
		Title:       req.GetString("title", ""),
		Description: req.GetString("description", ""),
		Category:    req.GetString("category", ""),
	}
}

func (s *Server) listCanvases(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	items, total, err := s.svc.List(ctx, req.GetInt("limit", 0), req.GetInt("offset", 0), req.GetString("category", ""))
	if err != nil {
		return toolError(err)
	}
	return jsonResult(map[string]any{"canvases": items, "total": total})
}

func (s *Server) getCanvas(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := requireID(req)
	if err != nil {
		return toolError(err)
	}
	rec, err := s.svc.Get(ctx, id)
	if err != nil {
		return toolError(err)
	}
	out, _ := json.MarshalIndent(rec, "", "  ")
	if !req.GetBool("include_bitmap", false) {
		return mcp.NewToolResultText(string(out)), nil
	}
	data, _, err := s.svc.LoadBitmap(ctx, id)
	if err != nil {
		return toolError(err)
	}
	return mcp.NewToolResultImage(string(out), base64.StdEncoding.EncodeToString(data), "image/jpeg"), nil
}

func (s *Server) createCanvas(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rec, err := s.svc.Create(ctx, metadata(req), nil)
	if err != nil {
		return toolError(err)
	}
	return jsonResult(rec)
}

func (s *Server) updateCanvas(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := requireID(req)
	if err != nil {
		return toolError(err)
	}
	rec, err := s.svc.Update(ctx, id, metadata(req), "")
	if err != nil {
		return toolError(err)
	}
	return jsonResult(rec)
}

// edit opens a session on canvas id (0 for a new drawing), applies fn and
// saves the result. The session is closed only once the save succeeded; on a
// store failure it stays open so the drawing can still be saved over HTTP.
func (s *Server) edit(ctx context.Context, id int64, in canvasservice.Input, fn func(*session.Session) error) (*models.Canvas, error) {
	sess, err := s.sessions.Open(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := fn(sess); err != nil {
		_ = s.sessions.Discard(sess.ID())
		return nil, err
	}

	var rec *models.Canvas
	_, err = sess.Persist(func(canvasID int64, bitmap []byte) (int64, error) {
		var err error
		if canvasID == 0 {
			rec, err = s.svc.Create(ctx, in, bitmap)
		} else {
			rec, err = s.svc.SaveBitmap(ctx, canvasID, bitmap, "")
		}
		if err != nil {
			return 0, err
		}
		return rec.ID, nil
	})
	if err != nil {
		return nil, fmt.Errorf("save failed, drawing kept in session %s: %w", sess.ID(), err)
	}
	_ = s.sessions.Discard(sess.ID())
	return rec, nil
}

func optionalID(req mcp.CallToolRequest) (int64, error) {
	v := req.GetFloat("id", 0)
	if v < 0 || v != float64(int64(v)) {
		return 0, fmt.Errorf("%w: id must be a positive integer", apperr.ErrInvalidInput)
	}
	return int64(v), nil
}

func brushUpdate(req mcp.CallToolRequest) (raster.BrushUpdate, error) {
	var u raster.BrushUpdate
	args := req.GetArguments()
	if v := req.GetString("tool", ""); v != "" {
		tool, err := raster.ParseTool(v)
		if err != nil {
			return u, fmt.Errorf("%w: %v", apperr.ErrInvalidInput, err)
		}
		u.Tool = &tool
	}
	if v := req.GetString("color", ""); v != "" {
		c, alpha, hasAlpha, err := raster.ParseColor(v)
		if err != nil {
			return u, fmt.Errorf("%w: %v", apperr.ErrInvalidInput, err)
		}
		u.Color = &c
		if hasAlpha {
			u.ColorAlpha = &alpha
		}
	}
	if _, ok := args["width"]; ok {
		w := req.GetFloat("width", 0)
		u.Width = &w
	}
	if _, ok := args["opacity"]; ok {
		o := req.GetFloat("opacity", 0)
		u.Opacity = &o
	}
	return u, nil
}

// parseStrokes accepts the strokes argument as decoded JSON or as a JSON
// string, which some clients send for nested arrays.
func parseStrokes(raw any) ([][]raster.Point, error) {
	var data []byte
	switch v := raw.(type) {
	case nil:
		return nil, fmt.Errorf("%w: strokes is required", apperr.ErrInvalidInput)
	case string:
		data = []byte(v)
	default:
		var err error
		if data, err = json.Marshal(v); err != nil {
			return nil, fmt.Errorf("%w: strokes: %v", apperr.ErrInvalidInput, err)
		}
	}
	var strokes [][]raster.Point
	if err := json.Unmarshal(data, &strokes); err != nil {
		return nil, fmt.Errorf("%w: strokes must be a list of point lists: %v", apperr.ErrInvalidInput, err)
	}
	if len(strokes) == 0 {
		return nil, fmt.Errorf("%w: strokes is empty", apperr.ErrInvalidInput)
	}
	for i, pts := range strokes {
		if len(pts) == 0 {
			return nil, fmt.Errorf("%w: stroke %d has no points", apperr.ErrInvalidInput, i)
		}
		for _, p := range pts {
			if !p.IsFinite() {
				return nil, fmt.Errorf("%w: stroke %d has a non-finite point", apperr.ErrInvalidInput, i)
			}
		}
	}
	return strokes, nil
}

func (s *Server) drawStrokes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := optionalID(req)
	if err != nil {
		return toolError(err)
	}
	strokes, err := parseStrokes(req.GetArguments()["strokes"])
	if err != nil {
		return toolError(err)
	}
	u, err := brushUpdate(req)
	if err != nil {
		return toolError(err)
	}
	rec, err := s.edit(ctx, id, metadata(req), func(sess *session.Session) error {
		if _, err := sess.ApplyBrush(u); err != nil {
			return err
		}
		for i, pts := range strokes {
			if err := sess.Stroke(pts); err != nil {
				return fmt.Errorf("stroke %d: %w", i, err)
			}
		}
		return nil
	})
	if err != nil {
		return toolError(err)
	}
	return jsonResult(rec)
}

func (s *Server) compositeImage(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := optionalID(req)
	if err != nil {
		return toolError(err)
	}
	url, err := req.RequireString("url")
	if err != nil {
		return toolError(err)
	}
	img, err := s.images.Fetch(ctx, url)
	if err != nil {
		return toolError(err)
	}
	opacity := req.GetFloat("opacity", 1)
	rec, err := s.edit(ctx, id, metadata(req), func(sess *session.Session) error {
		return sess.Composite(img, opacity)
	})
	if err != nil {
		return toolError(err)
	}
	return jsonResult(rec)
}

func (s *Server) resetCanvas(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := requireID(req)
	if err != nil {
		return toolError(err)
	}
	rec, err := s.edit(ctx, id, canvasservice.Input{}, func(sess *session.Session) error {
		return sess.Reset()
	})
	if err != nil {
		return toolError(err)
	}
	return jsonResult(rec)
}

func (s *Server) searchImages(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return toolError(err)
	}
	res, err := s.images.Search(ctx, query, req.GetInt("page", 1))
	if err != nil {
		return toolError(err)
	}
	return jsonResult(res)
}

func (s *Server) getDrawingContract(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(s.contract), nil
}

func (s *Server) readDrawingContract(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      DrawingContractURI,
			MIMEType: "text/markdown",
			Text:     s.contract,
		},
	}, nil
}

func (s *Server) readBitmapResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	uri := req.Params.URI
	raw, ok := strings.CutPrefix(uri, bitmapURIPrefix)
	if !ok {
		return nil, fmt.Errorf("%w: %s", apperr.ErrNotFound, uri)
	}
	raw, ok = strings.CutSuffix(raw, "/bitmap")
	id, err := strconv.ParseInt(raw, 10, 64)
	if !ok || err != nil {
		return nil, fmt.Errorf("%w: %s", apperr.ErrNotFound, uri)
	}
	data, _, err := s.svc.LoadBitmap(ctx, id)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, fmt.Errorf("canvas %d: %w", id, err)
		}
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.BlobResourceContents{
			URI:      uri,
			MIMEType: "image/jpeg",
			Blob:     base64.StdEncoding.EncodeToString(data),
		},
	}, nil
}
