package domain

import (
	"context"
	"time"
)

// Suggestion represents a practitioner health-suggestion record.
// UserID is the owning identity captured at creation time; it is never
// reassigned and gates all later edit/delete authorization.
type Suggestion struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	Content     string    `json:"content"`
	Author      string    `json:"author"`
	Tag         string    `json:"tag,omitempty"`
	ImageURL    string    `json:"image_url,omitempty"`
	PublishTime time.Time `json:"publish_time"`
	UserID      string    `json:"user_id"`
	UserIP      string    `json:"user_ip,omitempty"`
}

// SuggestionRepository defines the data-access contract for suggestion
// operations. Implementations live in internal/core/repository (Core layer).
// The Logic layer depends on this interface only — never on SQL or pgx
// directly.
type SuggestionRepository interface {
	// List returns all suggestions ordered newest-first by id.
	List(ctx context.Context) ([]Suggestion, error)

	// GetByID returns the suggestion with the given id.
	// Returns (nil, nil) when no record is found.
	GetByID(ctx context.Context, id int64) (*Suggestion, error)

	// Search returns suggestions whose title, content, author or tag
	// contains the keyword (case-insensitive), ordered newest-first.
	// An empty keyword matches everything.
	Search(ctx context.Context, keyword string) ([]Suggestion, error)

	// Create inserts a new suggestion and returns the generated id.
	Create(ctx context.Context, s Suggestion) (int64, error)

	// Update replaces the mutable fields of the suggestion identified by
	// s.ID. The owning user id is written as-is and callers must never
	// change it.
	Update(ctx context.Context, s Suggestion) error

	// Delete removes the suggestion with the given id.
	Delete(ctx context.Context, id int64) error
}
