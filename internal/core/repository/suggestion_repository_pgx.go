package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/duynhne/suggestion-service/internal/core/domain"
)

// PgxSuggestionRepository implements domain.SuggestionRepository using pgxpool.
type PgxSuggestionRepository struct {
	pool *pgxpool.Pool
}

// NewSuggestionRepository creates a new PgxSuggestionRepository.
func NewSuggestionRepository(pool *pgxpool.Pool) *PgxSuggestionRepository {
	return &PgxSuggestionRepository{pool: pool}
}

const suggestionColumns = `id, title, content, author, COALESCE(tag, ''), COALESCE(image_url, ''), publish_time, user_id, COALESCE(user_ip, '')`

func scanSuggestion(row pgx.Row, s *domain.Suggestion) error {
	return row.Scan(
		&s.ID, &s.Title, &s.Content, &s.Author, &s.Tag,
		&s.ImageURL, &s.PublishTime, &s.UserID, &s.UserIP,
	)
}

// List returns all suggestions ordered newest-first by id.
func (r *PgxSuggestionRepository) List(ctx context.Context) ([]domain.Suggestion, error) {
	query := `SELECT ` + suggestionColumns + ` FROM suggestions ORDER BY id DESC`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectSuggestions(rows)
}

// GetByID returns the suggestion with the given id.
// Returns (nil, nil) when no record is found.
func (r *PgxSuggestionRepository) GetByID(ctx context.Context, id int64) (*domain.Suggestion, error) {
	query := `SELECT ` + suggestionColumns + ` FROM suggestions WHERE id = $1`

	var s domain.Suggestion
	err := scanSuggestion(r.pool.QueryRow(ctx, query, id), &s)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	return &s, nil
}

// Search returns suggestions matching the keyword as a case-insensitive
// substring of title, content, author or tag, ordered newest-first.
func (r *PgxSuggestionRepository) Search(ctx context.Context, keyword string) ([]domain.Suggestion, error) {
	query := `
		SELECT ` + suggestionColumns + `
		FROM suggestions
		WHERE title ILIKE $1 OR content ILIKE $1 OR author ILIKE $1 OR tag ILIKE $1
		ORDER BY id DESC
	`

	rows, err := r.pool.Query(ctx, query, "%"+keyword+"%")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectSuggestions(rows)
}

// Create inserts a new suggestion and returns the generated id.
func (r *PgxSuggestionRepository) Create(ctx context.Context, s domain.Suggestion) (int64, error) {
	query := `
		INSERT INTO suggestions (title, content, author, tag, image_url, publish_time, user_id, user_ip)
		VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), $6, $7, NULLIF($8, ''))
		RETURNING id
	`

	var id int64
	err := r.pool.QueryRow(ctx, query,
		s.Title, s.Content, s.Author, s.Tag, s.ImageURL, s.PublishTime, s.UserID, s.UserIP,
	).Scan(&id)
	if err != nil {
		return 0, err
	}

	return id, nil
}

// Update replaces the mutable fields of the suggestion identified by s.ID.
func (r *PgxSuggestionRepository) Update(ctx context.Context, s domain.Suggestion) error {
	query := `
		UPDATE suggestions
		SET title = $1, content = $2, author = $3, tag = NULLIF($4, ''),
		    image_url = NULLIF($5, ''), publish_time = $6
		WHERE id = $7
	`
	_, err := r.pool.Exec(ctx, query,
		s.Title, s.Content, s.Author, s.Tag, s.ImageURL, s.PublishTime, s.ID,
	)
	return err
}

// Delete removes the suggestion with the given id.
func (r *PgxSuggestionRepository) Delete(ctx context.Context, id int64) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM suggestions WHERE id = $1`, id)
	return err
}

func collectSuggestions(rows pgx.Rows) ([]domain.Suggestion, error) {
	suggestions := make([]domain.Suggestion, 0)
	for rows.Next() {
		var s domain.Suggestion
		if err := scanSuggestion(rows, &s); err != nil {
			return nil, err
		}
		suggestions = append(suggestions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return suggestions, nil
}
