package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/satriahrh/kaiwa/domain"
	"github.com/satriahrh/kaiwa/domain/entities"
	"github.com/satriahrh/kaiwa/internal/auth"
	"github.com/satriahrh/kaiwa/internal/persona"
	"github.com/satriahrh/kaiwa/internal/pipeline"
	"github.com/satriahrh/kaiwa/internal/web"
	"github.com/satriahrh/kaiwa/internal/websocket"
	"github.com/satriahrh/kaiwa/usecase"
)

// Dependencies groups what the HTTP surface needs
type Dependencies struct {
	Hub       *websocket.Hub
	Sessions  *usecase.SessionManager
	Tokens    *auth.TokenIssuer
	Personas  *persona.Catalog
	Pipelines *pipeline.Manager
	Logger    *zap.Logger
}

// InitRoutes initializes all API routes
func InitRoutes(e *echo.Echo, deps Dependencies) {
	startedAt := time.Now()
	logger := deps.Logger

	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]interface{}{
			"status":            "ok",
			"service":           "kaiwa",
			"uptime_seconds":    int(time.Since(startedAt).Seconds()),
			"active_sessions":   deps.Sessions.ActiveSessions(),
			"connected_clients": deps.Hub.ConnectedClients(),
		})
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// Chat widget
	assets := http.FileServer(http.FS(web.Files()))
	e.GET("/", echo.WrapHandler(assets))
	e.GET("/static/*", echo.WrapHandler(http.StripPrefix("/static", assets)))

	v1 := e.Group("/api/v1")
	v1.GET("/personas", func(c echo.Context) error {
		return listPersonas(c, deps.Personas)
	})
	v1.POST("/sessions", func(c echo.Context) error {
		return createSession(c, deps, logger)
	})
	v1.GET("/pipelines/:id", func(c echo.Context) error {
		return getPipeline(c, deps.Pipelines)
	})

	// WebSocket endpoint with JWT validation
	e.GET("/ws", func(c echo.Context) error {
		return websocketWithAuth(deps.Hub, deps.Tokens, c, logger)
	})
}

func listPersonas(c echo.Context, catalog *persona.Catalog) error {
	return c.JSON(http.StatusOK, PersonasResponse{
		entities.ModeTutoring: {
			Languages: catalog.Languages(entities.ModeTutoring),
			Default:   catalog.DefaultSelection(entities.ModeTutoring),
		},
		entities.ModePronunciation: {
			Languages: catalog.Languages(entities.ModePronunciation),
			Topics:    catalog.Topics(),
			Default:   catalog.DefaultSelection(entities.ModePronunciation),
		},
	})
}

func createSession(c echo.Context, deps Dependencies, logger *zap.Logger) error {
	var req CreateSessionRequest
	if err := c.Bind(&req); err != nil {
		logger.Error("Failed to bind create session request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request format",
		})
	}
	if req.Mode == "" {
		req.Mode = entities.ModeTutoring
	}

	session, err := deps.Sessions.Create(c.Request().Context(), req.Mode, req.Language, req.Topic)
	if err != nil {
		if errors.Is(err, domain.ErrConfiguration) {
			return c.JSON(http.StatusBadRequest, ErrorResponse{
				Error:   domain.ErrorCode(err),
				Message: err.Error(),
			})
		}
		logger.Error("Failed to create session", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "Failed to create session",
		})
	}

	token, err := deps.Tokens.Issue(session.ID, string(session.Selection.Mode))
	if err != nil {
		logger.Error("Failed to generate session token",
			zap.String("sessionID", session.ID),
			zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "token_generation_failed",
			Message: "Failed to generate session token",
		})
	}

	return c.JSON(http.StatusCreated, CreateSessionResponse{
		SessionID: session.ID,
		Token:     token,
		ExpiresAt: time.Now().Add(deps.Tokens.TTL()),
		Selection: session.Selection,
	})
}

func getPipeline(c echo.Context, pipelines *pipeline.Manager) error {
	instance, ok := pipelines.Get(pipeline.ID(c.Param("id")))
	if !ok {
		return c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "not_found",
			Message: "Pipeline not found",
		})
	}
	return c.JSON(http.StatusOK, instance)
}

// websocketWithAuth accepts the session token from the token query parameter,
// which browsers can set on a WebSocket, or from an Authorization header.
func websocketWithAuth(hub *websocket.Hub, tokens *auth.TokenIssuer, c echo.Context, logger *zap.Logger) error {
	token := c.QueryParam("token")
	if token == "" {
		token, _ = strings.CutPrefix(c.Request().Header.Get("Authorization"), "Bearer ")
	}

	if token == "" {
		logger.Warn("WebSocket connection rejected: missing token")
		return c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "missing_token",
			Message: "Session token is required",
		})
	}

	claims, err := tokens.Validate(token)
	if err != nil {
		logger.Warn("WebSocket connection rejected: invalid token", zap.Error(err))
		return c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "invalid_token",
			Message: "Invalid or expired session token",
		})
	}

	logger.Info("WebSocket connection authenticated",
		zap.String("sessionID", claims.SessionID),
		zap.String("mode", claims.Mode))

	return websocket.HandleWebSocketWithAuth(hub, c, claims.SessionID, logger)
}
