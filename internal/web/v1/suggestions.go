package v1

import (
	"errors"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/duynhne/suggestion-service/internal/logger"
	logicv1 "github.com/duynhne/suggestion-service/internal/logic/v1"
	"github.com/duynhne/suggestion-service/internal/media"
	"github.com/duynhne/suggestion-service/middleware"
)

// ListSuggestions handles HTTP request for the full suggestion feed.
// GET /api/suggestions
func (h *Handler) ListSuggestions(c *gin.Context) {
	ctx, span := middleware.StartSpan(c.Request.Context(), "http.request", trace.WithAttributes(
		attribute.String("layer", "web"),
		attribute.String("method", c.Request.Method),
		attribute.String("path", c.Request.URL.Path),
	))
	defer span.End()

	suggestions, err := h.suggestions.List(ctx)
	if err != nil {
		span.RecordError(err)
		logger.FromContext(ctx).Error().Err(err).Msg("List failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	c.JSON(http.StatusOK, suggestions)
}

// GetSuggestion handles HTTP request for a single suggestion.
// GET /api/suggestions/:id
func (h *Handler) GetSuggestion(c *gin.Context) {
	ctx, span := middleware.StartSpan(c.Request.Context(), "http.request", trace.WithAttributes(
		attribute.String("layer", "web"),
		attribute.String("method", c.Request.Method),
		attribute.String("path", c.Request.URL.Path),
	))
	defer span.End()

	id, ok := h.suggestionID(c, span)
	if !ok {
		return
	}

	suggestion, err := h.suggestions.Get(ctx, id)
	if err != nil {
		span.RecordError(err)

		if errors.Is(err, logicv1.ErrSuggestionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Suggestion not found"})
			return
		}
		logger.FromContext(ctx).Error().Err(err).Msg("Get failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	c.JSON(http.StatusOK, suggestion)
}

// SearchSuggestions handles HTTP request for keyword search.
// GET /api/suggestions/search/:keyword
func (h *Handler) SearchSuggestions(c *gin.Context) {
	ctx, span := middleware.StartSpan(c.Request.Context(), "http.request", trace.WithAttributes(
		attribute.String("layer", "web"),
		attribute.String("method", c.Request.Method),
		attribute.String("path", c.Request.URL.Path),
	))
	defer span.End()

	suggestions, err := h.suggestions.Search(ctx, c.Param("keyword"))
	if err != nil {
		span.RecordError(err)
		logger.FromContext(ctx).Error().Err(err).Msg("Search failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	c.JSON(http.StatusOK, suggestions)
}

// CreateSuggestion handles the authorized multipart create.
// POST /api/suggestions
func (h *Handler) CreateSuggestion(c *gin.Context) {
	ctx, span := middleware.StartSpan(c.Request.Context(), "http.request", trace.WithAttributes(
		attribute.String("layer", "web"),
		attribute.String("method", c.Request.Method),
		attribute.String("path", c.Request.URL.Path),
	))
	defer span.End()

	ident, ok := h.requireIdentity(c, span)
	if !ok {
		return
	}

	in := logicv1.SuggestionInput{
		Title:   c.PostForm("title"),
		Content: c.PostForm("content"),
		Author:  c.PostForm("author"),
		Tag:     c.PostForm("tag"),
	}

	imageURL, ok := h.saveFormImage(c, span, media.MaxInlineBytes)
	if !ok {
		return
	}
	in.ImageURL = imageURL

	suggestion, err := h.suggestions.Create(ctx, in, ident, c.ClientIP())
	if err != nil {
		span.RecordError(err)
		logger.FromContext(ctx).Warn().Err(err).Msg("Create failed")

		// The image was written before validation; don't orphan it.
		if imageURL != "" {
			if relErr := h.media.Release(imageURL); relErr != nil {
				logger.FromContext(ctx).Warn().Err(relErr).Str("media_ref", imageURL).Msg("Media release failed")
			}
		}

		if errors.Is(err, logicv1.ErrValidation) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	logger.FromContext(ctx).Info().
		Int64("suggestion_id", suggestion.ID).
		Str("user_id", ident.UserID).
		Msg("Suggestion created")
	c.JSON(http.StatusOK, suggestion)
}

// UpdateSuggestion handles the owner-only multipart update.
// PUT /api/suggestions/:id
func (h *Handler) UpdateSuggestion(c *gin.Context) {
	ctx, span := middleware.StartSpan(c.Request.Context(), "http.request", trace.WithAttributes(
		attribute.String("layer", "web"),
		attribute.String("method", c.Request.Method),
		attribute.String("path", c.Request.URL.Path),
	))
	defer span.End()

	ident, ok := h.requireIdentity(c, span)
	if !ok {
		return
	}
	id, ok := h.suggestionID(c, span)
	if !ok {
		return
	}

	in := logicv1.SuggestionInput{
		Title:   c.PostForm("title"),
		Content: c.PostForm("content"),
		Author:  c.PostForm("author"),
		Tag:     c.PostForm("tag"),
	}

	imageURL, ok := h.saveFormImage(c, span, media.MaxInlineBytes)
	if !ok {
		return
	}
	in.ImageURL = imageURL

	suggestion, err := h.suggestions.Update(ctx, id, in, ident)
	if err != nil {
		span.RecordError(err)
		logger.FromContext(ctx).Warn().Err(err).Int64("suggestion_id", id).Msg("Update failed")

		if imageURL != "" {
			if relErr := h.media.Release(imageURL); relErr != nil {
				logger.FromContext(ctx).Warn().Err(relErr).Str("media_ref", imageURL).Msg("Media release failed")
			}
		}

		switch {
		case errors.Is(err, logicv1.ErrSuggestionNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Suggestion not found"})
		case errors.Is(err, logicv1.ErrForbidden):
			c.JSON(http.StatusForbidden, gin.H{"error": "Only the original author may edit this post"})
		case errors.Is(err, logicv1.ErrValidation):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		}
		return
	}

	logger.FromContext(ctx).Info().
		Int64("suggestion_id", id).
		Str("user_id", ident.UserID).
		Msg("Suggestion updated")
	c.JSON(http.StatusOK, suggestion)
}

// DeleteSuggestion handles the owner-only delete.
// DELETE /api/suggestions/:id
func (h *Handler) DeleteSuggestion(c *gin.Context) {
	ctx, span := middleware.StartSpan(c.Request.Context(), "http.request", trace.WithAttributes(
		attribute.String("layer", "web"),
		attribute.String("method", c.Request.Method),
		attribute.String("path", c.Request.URL.Path),
	))
	defer span.End()

	ident, ok := h.requireIdentity(c, span)
	if !ok {
		return
	}
	id, ok := h.suggestionID(c, span)
	if !ok {
		return
	}

	if err := h.suggestions.Delete(ctx, id, ident); err != nil {
		span.RecordError(err)
		logger.FromContext(ctx).Warn().Err(err).Int64("suggestion_id", id).Msg("Delete failed")

		switch {
		case errors.Is(err, logicv1.ErrSuggestionNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Suggestion not found"})
		case errors.Is(err, logicv1.ErrForbidden):
			c.JSON(http.StatusForbidden, gin.H{"error": "Only the original author may delete this post"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		}
		return
	}

	logger.FromContext(ctx).Info().
		Int64("suggestion_id", id).
		Str("user_id", ident.UserID).
		Msg("Suggestion deleted")
	c.JSON(http.StatusOK, gin.H{"message": "Suggestion deleted"})
}

// UploadImage handles the standalone image upload.
// POST /api/upload-image
func (h *Handler) UploadImage(c *gin.Context) {
	ctx, span := middleware.StartSpan(c.Request.Context(), "http.request", trace.WithAttributes(
		attribute.String("layer", "web"),
		attribute.String("method", c.Request.Method),
		attribute.String("path", c.Request.URL.Path),
	))
	defer span.End()

	fileHeader, err := c.FormFile("image")
	if err != nil {
		span.SetAttributes(attribute.Bool("request.valid", false))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing image file"})
		return
	}

	imageURL, ok := h.saveImage(c, span, fileHeader, media.MaxUploadBytes)
	if !ok {
		return
	}

	logger.FromContext(ctx).Info().Str("image_url", imageURL).Msg("Image uploaded")
	c.JSON(http.StatusOK, gin.H{
		"image_url": imageURL,
		"filename":  fileHeader.Filename,
	})
}

// requireIdentity resolves the caller's identity from the session header and
// writes a 401 when it cannot. Anonymous callers never reach a mutation.
func (h *Handler) requireIdentity(c *gin.Context, span trace.Span) (logicv1.Identity, bool) {
	ctx := c.Request.Context()

	ident, err := h.login.Resolve(ctx, c.GetHeader(SessionIDHeader))
	if err != nil {
		span.SetAttributes(attribute.Bool("auth.present", false))
		logger.FromContext(ctx).Warn().Err(err).Msg("Unauthorized write attempt")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Scan to log in first"})
		return logicv1.Identity{}, false
	}

	span.SetAttributes(
		attribute.Bool("auth.present", true),
		attribute.String("user.id", ident.UserID),
	)
	return ident, true
}

// suggestionID parses the :id path parameter, writing a 404 for garbage ids
// (an unparseable id can never name an existing record).
func (h *Handler) suggestionID(c *gin.Context, span trace.Span) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		span.SetAttributes(attribute.Bool("request.valid", false))
		c.JSON(http.StatusNotFound, gin.H{"error": "Suggestion not found"})
		return 0, false
	}
	return id, true
}

// saveFormImage stores the optional "image" multipart field. A missing field
// is fine (empty reference); a present-but-invalid one ends the request.
func (h *Handler) saveFormImage(c *gin.Context, span trace.Span, maxBytes int64) (string, bool) {
	fileHeader, err := c.FormFile("image")
	if err != nil {
		return "", true
	}
	return h.saveImage(c, span, fileHeader, maxBytes)
}

func (h *Handler) saveImage(c *gin.Context, span trace.Span, fileHeader *multipart.FileHeader, maxBytes int64) (string, bool) {
	ctx := c.Request.Context()

	file, err := fileHeader.Open()
	if err != nil {
		span.RecordError(err)
		logger.FromContext(ctx).Error().Err(err).Msg("Open upload failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Image upload failed"})
		return "", false
	}
	defer file.Close()

	imageURL, err := h.media.SaveImage(fileHeader.Filename, file, fileHeader.Size, maxBytes)
	if err != nil {
		span.RecordError(err)
		logger.FromContext(ctx).Warn().Err(err).Str("filename", fileHeader.Filename).Msg("Image rejected")

		switch {
		case errors.Is(err, media.ErrNotImage):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Only image files are supported"})
		case errors.Is(err, media.ErrTooLarge):
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Image too large, compress and retry"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Image upload failed"})
		}
		return "", false
	}

	return imageURL, true
}
