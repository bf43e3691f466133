package v1

import (
	"errors"
	"fmt"
	"html"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/duynhne/suggestion-service/internal/logger"
	logicv1 "github.com/duynhne/suggestion-service/internal/logic/v1"
	"github.com/duynhne/suggestion-service/internal/media"
	"github.com/duynhne/suggestion-service/middleware"
)

// SessionIDHeader carries the caller's login session id on protected writes.
const SessionIDHeader = "X-Session-ID"

// Handler groups HTTP handlers for the suggestion API v1.
// Dependencies are injected via the constructor — no global state.
type Handler struct {
	login       *logicv1.QRLoginService
	suggestions *logicv1.SuggestionService
	media       *media.Store
}

// NewHandler creates a new Handler with the given services.
func NewHandler(login *logicv1.QRLoginService, suggestions *logicv1.SuggestionService, mediaStore *media.Store) *Handler {
	return &Handler{
		login:       login,
		suggestions: suggestions,
		media:       mediaStore,
	}
}

// RegisterRoutes registers the API routes on the given router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/qr-login/generate", h.GenerateQRLogin)
	rg.GET("/qr-login/check/:id", h.CheckQRLogin)
	rg.GET("/qr-login/status", h.QRLoginStatus)
	rg.POST("/qr-login/bind", h.BindQRLogin)
	rg.POST("/qr-login/confirm", h.ConfirmQRLogin)

	rg.GET("/suggestions", h.ListSuggestions)
	rg.GET("/suggestions/:id", h.GetSuggestion)
	rg.GET("/suggestions/search/:keyword", h.SearchSuggestions)
	rg.POST("/suggestions", h.CreateSuggestion)
	rg.PUT("/suggestions/:id", h.UpdateSuggestion)
	rg.DELETE("/suggestions/:id", h.DeleteSuggestion)

	rg.POST("/upload-image", h.UploadImage)
}

// RegisterRootRoutes registers routes that live outside the /api prefix:
// the human-facing confirmation page opened from the scanned QR code.
func (h *Handler) RegisterRootRoutes(r *gin.Engine) {
	r.GET("/confirm-login", h.ConfirmLoginPage)
}

// GenerateQRLogin handles HTTP request to create a new login session.
// POST /api/qr-login/generate
func (h *Handler) GenerateQRLogin(c *gin.Context) {
	ctx, span := middleware.StartSpan(c.Request.Context(), "http.request", trace.WithAttributes(
		attribute.String("layer", "web"),
		attribute.String("method", c.Request.Method),
		attribute.String("path", c.Request.URL.Path),
	))
	defer span.End()

	result, err := h.login.Generate(ctx)
	if err != nil {
		span.RecordError(err)
		logger.FromContext(ctx).Error().Err(err).Msg("Session generation failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	logger.FromContext(ctx).Info().Str("session_id", result.SessionID).Msg("Login session generated")
	c.JSON(http.StatusOK, result)
}

// CheckQRLogin handles the originating client's polling.
// GET /api/qr-login/check/:id
func (h *Handler) CheckQRLogin(c *gin.Context) {
	ctx, span := middleware.StartSpan(c.Request.Context(), "http.request", trace.WithAttributes(
		attribute.String("layer", "web"),
		attribute.String("method", c.Request.Method),
		attribute.String("path", c.Request.URL.Path),
	))
	defer span.End()

	sessionID := c.Param("id")

	sess, err := h.login.Poll(ctx, sessionID)
	if err != nil {
		h.writeSessionError(c, span, err)
		return
	}

	if sess.State != logicv1.StateConfirmed {
		c.JSON(http.StatusOK, gin.H{
			"status":  "waiting",
			"message": "Waiting for scan confirmation",
			"uuid":    sessionID,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":       "success",
		"message":      "Login successful",
		"uuid":         sessionID,
		"doctor_id":    sess.Identity.UserID,
		"confirmed_at": sess.Identity.ConfirmedAt,
	})
}

// QRLoginStatus handles the web frontend's polling.
// GET /api/qr-login/status?loginId=
func (h *Handler) QRLoginStatus(c *gin.Context) {
	ctx, span := middleware.StartSpan(c.Request.Context(), "http.request", trace.WithAttributes(
		attribute.String("layer", "web"),
		attribute.String("method", c.Request.Method),
		attribute.String("path", c.Request.URL.Path),
	))
	defer span.End()

	loginID := c.Query("loginId")
	if loginID == "" {
		span.SetAttributes(attribute.Bool("request.valid", false))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing loginId parameter"})
		return
	}

	sess, err := h.login.Poll(ctx, loginID)
	if err != nil {
		h.writeSessionError(c, span, err)
		return
	}

	if sess.State != logicv1.StateConfirmed {
		c.JSON(http.StatusOK, gin.H{
			"status":  "waiting",
			"message": "Waiting for scan confirmation",
			"loginId": loginID,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":       "confirmed",
		"message":      "Scan confirmed",
		"loginId":      loginID,
		"identity":     sess.Identity,
		"confirmed_at": sess.Identity.ConfirmedAt,
	})
}

// BindRequest is the direct-client bind payload.
type BindRequest struct {
	SessionID string `json:"session_id" binding:"required"`
	UserID    string `json:"user_id" binding:"required"`
	UserName  string `json:"user_name" binding:"required"`
	UserToken string `json:"user_token" binding:"required"`
}

// BindQRLogin handles HTTP request to bind an identity to a session.
// POST /api/qr-login/bind
func (h *Handler) BindQRLogin(c *gin.Context) {
	ctx, span := middleware.StartSpan(c.Request.Context(), "http.request", trace.WithAttributes(
		attribute.String("layer", "web"),
		attribute.String("method", c.Request.Method),
		attribute.String("path", c.Request.URL.Path),
	))
	defer span.End()

	var req BindRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.SetAttributes(attribute.Bool("request.valid", false))
		span.RecordError(err)
		logger.FromContext(ctx).Error().Err(err).Msg("Invalid request")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	span.SetAttributes(attribute.Bool("request.valid", true))

	ident := logicv1.Identity{
		UserID:   req.UserID,
		UserName: req.UserName,
		Token:    req.UserToken,
	}

	_, err := h.login.Bind(ctx, req.SessionID, ident)
	if err != nil {
		span.RecordError(err)
		logger.FromContext(ctx).Warn().Err(err).Str("session_id", req.SessionID).Msg("Bind failed")

		switch {
		case errors.Is(err, logicv1.ErrSessionNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
		case errors.Is(err, logicv1.ErrSessionExpired):
			c.JSON(http.StatusGone, gin.H{"error": "Session expired"})
		case errors.Is(err, logicv1.ErrSessionBound):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Session already bound"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		}
		return
	}

	logger.FromContext(ctx).Info().
		Str("session_id", req.SessionID).
		Str("user_id", req.UserID).
		Msg("Session bound")
	c.JSON(http.StatusOK, gin.H{"status": "success", "message": "Bind successful"})
}

// ConfirmRequest is the scanning-device confirmation payload.
type ConfirmRequest struct {
	UUID     string `json:"uuid" binding:"required"`
	DoctorID string `json:"doctor_id" binding:"required"`
}

// ConfirmQRLogin handles the scanning device's confirmation.
// POST /api/qr-login/confirm
func (h *Handler) ConfirmQRLogin(c *gin.Context) {
	ctx, span := middleware.StartSpan(c.Request.Context(), "http.request", trace.WithAttributes(
		attribute.String("layer", "web"),
		attribute.String("method", c.Request.Method),
		attribute.String("path", c.Request.URL.Path),
	))
	defer span.End()

	var req ConfirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.SetAttributes(attribute.Bool("request.valid", false))
		span.RecordError(err)
		logger.FromContext(ctx).Error().Err(err).Msg("Invalid request")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	span.SetAttributes(attribute.Bool("request.valid", true))

	_, err := h.login.ConfirmScan(ctx, req.UUID, req.DoctorID)
	if err != nil {
		h.writeSessionError(c, span, err)
		return
	}

	logger.FromContext(ctx).Info().
		Str("session_id", req.UUID).
		Str("doctor_id", req.DoctorID).
		Msg("Scan confirmed")
	c.JSON(http.StatusOK, gin.H{
		"status":    "success",
		"message":   "Scan confirmed",
		"uuid":      req.UUID,
		"doctor_id": req.DoctorID,
	})
}

// ConfirmLoginPage handles the browser visit after scanning the QR code.
// GET /confirm-login?loginId=
func (h *Handler) ConfirmLoginPage(c *gin.Context) {
	ctx, span := middleware.StartSpan(c.Request.Context(), "http.request", trace.WithAttributes(
		attribute.String("layer", "web"),
		attribute.String("method", c.Request.Method),
		attribute.String("path", c.Request.URL.Path),
	))
	defer span.End()

	loginID := c.Query("loginId")
	if loginID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing loginId parameter"})
		return
	}

	_, err := h.login.ConfirmVisit(ctx, loginID)
	if err != nil {
		h.writeSessionError(c, span, err)
		return
	}

	logger.FromContext(ctx).Info().Str("session_id", loginID).Msg("Login confirmed via page visit")
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(confirmPage(loginID)))
}

// writeSessionError maps session lookup failures to HTTP statuses shared by
// every login endpoint: 404 unknown, 410 expired.
func (h *Handler) writeSessionError(c *gin.Context, span trace.Span, err error) {
	span.RecordError(err)
	logger.FromContext(c.Request.Context()).Warn().Err(err).Msg("Session lookup failed")

	switch {
	case errors.Is(err, logicv1.ErrSessionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
	case errors.Is(err, logicv1.ErrSessionExpired):
		c.JSON(http.StatusGone, gin.H{"error": "Session expired"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}

func confirmPage(loginID string) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>Login Confirmation</title>
    <style>
        body { font-family: Arial, sans-serif; text-align: center; padding: 50px; }
        .success { color: #28a745; font-size: 24px; }
        .info { color: #666; margin-top: 20px; }
    </style>
</head>
<body>
    <div class="success">Login confirmed</div>
    <div class="info">Return to your desktop to continue</div>
    <div class="info">Login ID: %s</div>
</body>
</html>
`, html.EscapeString(loginID))
}
