package v1

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/duynhne/suggestion-service/internal/core/domain"
	"github.com/duynhne/suggestion-service/internal/logger"
	"github.com/duynhne/suggestion-service/middleware"
)

// MediaReleaser frees a media file that is no longer referenced by any
// suggestion. The media layer implements it.
type MediaReleaser interface {
	Release(ref string) error
}

// SuggestionService implements suggestion CRUD with ownership enforcement.
// It depends on repository interfaces (injected via constructor) and
// MUST NOT access the database or SQL directly.
type SuggestionService struct {
	repo  domain.SuggestionRepository
	media MediaReleaser
}

// NewSuggestionService creates a new SuggestionService with the given dependencies.
func NewSuggestionService(repo domain.SuggestionRepository, media MediaReleaser) *SuggestionService {
	return &SuggestionService{repo: repo, media: media}
}

// SuggestionInput carries the caller-editable fields of a suggestion.
type SuggestionInput struct {
	Title    string
	Content  string
	Author   string
	Tag      string
	ImageURL string
}

// validate trims the input in place and rejects blank required fields.
func (in *SuggestionInput) validate() error {
	in.Title = strings.TrimSpace(in.Title)
	in.Content = strings.TrimSpace(in.Content)
	in.Author = strings.TrimSpace(in.Author)
	in.Tag = strings.TrimSpace(in.Tag)

	switch {
	case in.Title == "":
		return fmt.Errorf("title must not be empty: %w", ErrValidation)
	case in.Content == "":
		return fmt.Errorf("content must not be empty: %w", ErrValidation)
	case in.Author == "":
		return fmt.Errorf("author must not be empty: %w", ErrValidation)
	}
	return nil
}

// List returns all suggestions, newest-first.
func (s *SuggestionService) List(ctx context.Context) ([]domain.Suggestion, error) {
	ctx, span := middleware.StartSpan(ctx, "suggestions.list", trace.WithAttributes(
		attribute.String("layer", "logic"),
	))
	defer span.End()

	out, err := s.repo.List(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("list suggestions: %w", err)
	}
	return out, nil
}

// Get returns the suggestion with the given id.
func (s *SuggestionService) Get(ctx context.Context, id int64) (*domain.Suggestion, error) {
	ctx, span := middleware.StartSpan(ctx, "suggestions.get", trace.WithAttributes(
		attribute.String("layer", "logic"),
		attribute.Int64("suggestion.id", id),
	))
	defer span.End()

	row, err := s.repo.GetByID(ctx, id)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("query suggestion %d: %w", id, err)
	}
	if row == nil {
		return nil, fmt.Errorf("suggestion %d: %w", id, ErrSuggestionNotFound)
	}
	return row, nil
}

// Search returns suggestions matching the keyword as a case-insensitive
// substring of title, content, author or tag. An empty keyword matches all.
func (s *SuggestionService) Search(ctx context.Context, keyword string) ([]domain.Suggestion, error) {
	ctx, span := middleware.StartSpan(ctx, "suggestions.search", trace.WithAttributes(
		attribute.String("layer", "logic"),
		attribute.String("search.keyword", keyword),
	))
	defer span.End()

	out, err := s.repo.Search(ctx, keyword)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("search suggestions %q: %w", keyword, err)
	}
	return out, nil
}

// Create validates the input and persists a new suggestion stamped with the
// caller's identity and publish time. The owner user id set here is
// immutable for the record's lifetime.
func (s *SuggestionService) Create(ctx context.Context, in SuggestionInput, ident Identity, clientIP string) (*domain.Suggestion, error) {
	ctx, span := middleware.StartSpan(ctx, "suggestions.create", trace.WithAttributes(
		attribute.String("layer", "logic"),
		attribute.String("user.id", ident.UserID),
	))
	defer span.End()

	if err := in.validate(); err != nil {
		span.RecordError(err)
		return nil, err
	}

	sug := domain.Suggestion{
		Title:       in.Title,
		Content:     in.Content,
		Author:      in.Author,
		Tag:         in.Tag,
		ImageURL:    in.ImageURL,
		PublishTime: time.Now(),
		UserID:      ident.UserID,
		UserIP:      clientIP,
	}

	id, err := s.repo.Create(ctx, sug)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("insert suggestion: %w", err)
	}
	sug.ID = id

	span.SetAttributes(attribute.Int64("suggestion.id", id))
	span.AddEvent("suggestion.created")

	return &sug, nil
}

// Update replaces the editable fields of an owned suggestion. Only the
// original owner may update; the owner user id itself never changes. A new
// image reference releases the previously owned file best-effort.
func (s *SuggestionService) Update(ctx context.Context, id int64, in SuggestionInput, ident Identity) (*domain.Suggestion, error) {
	ctx, span := middleware.StartSpan(ctx, "suggestions.update", trace.WithAttributes(
		attribute.String("layer", "logic"),
		attribute.Int64("suggestion.id", id),
		attribute.String("user.id", ident.UserID),
	))
	defer span.End()

	if err := in.validate(); err != nil {
		span.RecordError(err)
		return nil, err
	}

	existing, err := s.repo.GetByID(ctx, id)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("query suggestion %d: %w", id, err)
	}
	if existing == nil {
		return nil, fmt.Errorf("suggestion %d: %w", id, ErrSuggestionNotFound)
	}
	if !ident.Owns(existing.UserID) {
		span.SetAttributes(attribute.Bool("auth.owner", false))
		return nil, fmt.Errorf("update suggestion %d: %w", id, ErrForbidden)
	}

	imageURL := existing.ImageURL
	if in.ImageURL != "" && in.ImageURL != existing.ImageURL {
		s.release(ctx, existing.ImageURL)
		imageURL = in.ImageURL
	}

	updated := domain.Suggestion{
		ID:          id,
		Title:       in.Title,
		Content:     in.Content,
		Author:      in.Author,
		Tag:         in.Tag,
		ImageURL:    imageURL,
		PublishTime: time.Now(),
		UserID:      existing.UserID,
		UserIP:      existing.UserIP,
	}

	if err := s.repo.Update(ctx, updated); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("update suggestion %d: %w", id, err)
	}

	span.AddEvent("suggestion.updated")
	return &updated, nil
}

// Delete removes an owned suggestion and releases its media best-effort.
func (s *SuggestionService) Delete(ctx context.Context, id int64, ident Identity) error {
	ctx, span := middleware.StartSpan(ctx, "suggestions.delete", trace.WithAttributes(
		attribute.String("layer", "logic"),
		attribute.Int64("suggestion.id", id),
		attribute.String("user.id", ident.UserID),
	))
	defer span.End()

	existing, err := s.repo.GetByID(ctx, id)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("query suggestion %d: %w", id, err)
	}
	if existing == nil {
		return fmt.Errorf("suggestion %d: %w", id, ErrSuggestionNotFound)
	}
	if !ident.Owns(existing.UserID) {
		span.SetAttributes(attribute.Bool("auth.owner", false))
		return fmt.Errorf("delete suggestion %d: %w", id, ErrForbidden)
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		span.RecordError(err)
		return fmt.Errorf("delete suggestion %d: %w", id, err)
	}

	s.release(ctx, existing.ImageURL)

	span.AddEvent("suggestion.deleted")
	return nil
}

// release frees a media reference. Best-effort: failures are logged with the
// reference and never fail the enclosing operation.
func (s *SuggestionService) release(ctx context.Context, ref string) {
	if ref == "" || s.media == nil {
		return
	}
	if err := s.media.Release(ref); err != nil {
		logger.FromContext(ctx).Warn().Err(err).Str("media_ref", ref).Msg("Media release failed")
	}
}
