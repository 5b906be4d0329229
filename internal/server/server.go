// Package server exposes the websocket call endpoint and the HTTP
// suggestion fallback.
package server

import (
	"log"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/Braham27/salesgpt/internal/call"
	"github.com/Braham27/salesgpt/internal/coach"
	"github.com/Braham27/salesgpt/internal/config"
	"github.com/Braham27/salesgpt/internal/store"
	"github.com/Braham27/salesgpt/internal/stt"
)

// Server bundles the router and shared dependencies.
type Server struct {
	cfg      config.Config
	db       store.Store
	upgrader websocket.Upgrader

	// newEngine and newTranscriber build per-call dependencies; tests
	// swap them for fakes.
	newEngine      func() *coach.Engine
	newTranscriber func() stt.Transcriber
}

// New constructs a Server. db may be nil when persistence is disabled.
func New(cfg config.Config, db store.Store) *Server {
	s := &Server{
		cfg: cfg,
		db:  db,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Browser clients connect from arbitrary dev origins.
				return true
			},
		},
	}
	s.newEngine = func() *coach.Engine {
		if cfg.OpenAIKey == "" {
			return coach.NewEngine(nil)
		}
		return coach.NewEngine(coach.NewOpenAIClient(cfg.OpenAIKey, cfg.OpenAIModel))
	}
	s.newTranscriber = func() stt.Transcriber {
		if cfg.DeepgramKey == "" {
			return nil
		}
		return stt.NewDeepgramService(cfg.DeepgramKey, cfg.DeepgramModel)
	}
	return s
}

// Router builds the Echo instance with all routes registered.
func (s *Server) Router() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	e.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	e.GET("/ws/call/:call_id", s.handleCall)
	e.POST("/api/suggest", s.handleSuggest)
	return e
}

// authorized checks the bearer header or the token query parameter. An
// empty configured token disables auth.
func (s *Server) authorized(c echo.Context) bool {
	if s.cfg.AuthToken == "" {
		return true
	}
	header := c.Request().Header.Get("Authorization")
	if strings.TrimPrefix(header, "Bearer ") == s.cfg.AuthToken && header != "" {
		return true
	}
	return c.QueryParam("token") == s.cfg.AuthToken
}

func (s *Server) handleCall(c echo.Context) error {
	if !s.authorized(c) {
		return c.String(http.StatusUnauthorized, "invalid token")
	}
	callID := c.Param("call_id")
	if callID == "" {
		return c.String(http.StatusBadRequest, "missing call id")
	}

	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		log.Printf("[%s] websocket upgrade failed: %v", callID, err)
		return err
	}
	defer conn.Close()

	log.Printf("[%s] websocket connected", callID)
	session := newCallSession(callID, conn, s.newEngine(), s.newTranscriber(), s.db)
	session.run(c.Request().Context())
	return nil
}

// handleSuggest serves the HTTP fallback used when no live channel exists.
func (s *Server) handleSuggest(c echo.Context) error {
	if !s.authorized(c) {
		return c.String(http.StatusUnauthorized, "invalid token")
	}

	var req call.FallbackRequest
	if err := c.Bind(&req); err != nil {
		return c.String(http.StatusBadRequest, "invalid request body")
	}

	ctx := c.Request().Context()
	engine := s.newEngine()

	// The field carries either a suggestion type or the shorter help-kind
	// vocabulary the client fallback uses; both route to the same flavors.
	var sg call.Suggestion
	switch req.SuggestionType {
	case string(call.SuggestionObjectionHandler), string(call.HelpObjection):
		sg = engine.HandleObjection(ctx, req.Context)
	case string(call.SuggestionClosing):
		sg = engine.ClosingSuggestion(ctx, req.Transcript)
	case string(call.SuggestionProductPitch), string(call.HelpProduct):
		sg = engine.ProductRecommendation(ctx, req.Context, nil)
	case string(call.HelpDiscovery):
		if qs := engine.DiscoveryQuestions(ctx, req.Transcript); len(qs) > 0 {
			sg = qs[0]
		}
	default:
		sg = engine.ClosingSuggestion(ctx, req.Transcript)
		if req.Transcript == "" {
			sg = engine.InitializeCall(ctx, call.StartData{
				ProspectName:    req.ProspectName,
				ProspectCompany: req.CompanyName,
			})
		}
	}

	return c.JSON(http.StatusOK, coach.SuggestResponse{
		Suggestion: sg.Content,
		Type:       string(sg.Type),
		DemoMode:   engine.DemoMode(),
	})
}
