package v1

import (
	"context"
	"fmt"
	"time"

	qrcode "github.com/skip2/go-qrcode"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/duynhne/suggestion-service/internal/core/domain"
	"github.com/duynhne/suggestion-service/internal/logger"
	"github.com/duynhne/suggestion-service/middleware"
)

// QRCodeWriter persists a rendered QR PNG and returns its serving reference.
// The media layer implements it.
type QRCodeWriter interface {
	SaveQRCode(sessionID string, png []byte) (string, error)
}

// QRLoginService drives a login session through its lifecycle:
// generate -> poll -> confirm/bind -> expire. The in-memory SessionStore is
// the source of truth; bound sessions are additionally mirrored to the
// database best-effort.
type QRLoginService struct {
	store    *SessionStore
	sessions domain.SessionRepository
	qr       QRCodeWriter
	baseURL  string
}

// NewQRLoginService creates a new QRLoginService with the given dependencies.
func NewQRLoginService(store *SessionStore, sessions domain.SessionRepository, qr QRCodeWriter, baseURL string) *QRLoginService {
	return &QRLoginService{
		store:    store,
		sessions: sessions,
		qr:       qr,
		baseURL:  baseURL,
	}
}

// GenerateResult is the payload handed to the originating client: the
// session id, the login URL embedded in the QR code, a serving path for the
// rendered PNG, and the absolute expiry.
type GenerateResult struct {
	SessionID string    `json:"session_id"`
	LoginURL  string    `json:"login_url"`
	ImageURL  string    `json:"qr_code_image_url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Generate creates a pending session and renders its login URL as a QR PNG.
// A render or save failure is not fatal: the client still receives the raw
// login URL and an empty image path.
func (s *QRLoginService) Generate(ctx context.Context) (GenerateResult, error) {
	ctx, span := middleware.StartSpan(ctx, "qrlogin.generate", trace.WithAttributes(
		attribute.String("layer", "logic"),
	))
	defer span.End()

	sess := s.store.Create()
	loginURL := fmt.Sprintf("%s/confirm-login?loginId=%s", s.baseURL, sess.ID)

	imageURL := ""
	png, err := qrcode.Encode(loginURL, qrcode.Medium, 256)
	if err == nil {
		imageURL, err = s.qr.SaveQRCode(sess.ID, png)
	}
	if err != nil {
		// Best-effort: the login URL itself is still scannable.
		span.RecordError(fmt.Errorf("render qr code: %w", err))
		logger.FromContext(ctx).Warn().Err(err).Str("session_id", sess.ID).Msg("QR code render failed")
		imageURL = ""
	}

	span.SetAttributes(attribute.String("session.id", sess.ID))
	span.AddEvent("session.generated")

	return GenerateResult{
		SessionID: sess.ID,
		LoginURL:  loginURL,
		ImageURL:  imageURL,
		ExpiresAt: sess.ExpiresAt,
	}, nil
}

// Poll returns the current state of the session for the originating client.
// It is read-only and safe to call arbitrarily often; it reports
// ErrSessionNotFound / ErrSessionExpired like every other access.
func (s *QRLoginService) Poll(ctx context.Context, sessionID string) (Session, error) {
	_, span := middleware.StartSpan(ctx, "qrlogin.poll", trace.WithAttributes(
		attribute.String("layer", "logic"),
	))
	defer span.End()

	sess, err := s.store.Get(sessionID)
	if err != nil {
		span.RecordError(err)
		return Session{}, fmt.Errorf("poll: %w", err)
	}

	span.SetAttributes(attribute.String("session.state", sess.State.String()))
	return sess, nil
}

// Bind attaches a caller-supplied identity directly to a pending session.
// It succeeds at most once: any session already carrying an identity
// (previous bind or confirm) rejects with ErrSessionBound.
func (s *QRLoginService) Bind(ctx context.Context, sessionID string, ident Identity) (Session, error) {
	ctx, span := middleware.StartSpan(ctx, "qrlogin.bind", trace.WithAttributes(
		attribute.String("layer", "logic"),
		attribute.String("user.id", ident.UserID),
	))
	defer span.End()

	sess, err := s.store.Mutate(sessionID, func(sess *Session) error {
		if sess.State != StatePending {
			return fmt.Errorf("bind session %q: %w", sessionID, ErrSessionBound)
		}
		ident.ConfirmedAt = s.store.now()
		sess.State = StateConfirmed
		sess.Identity = &ident
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return Session{}, err
	}

	s.mirrorBound(ctx, span, sess)

	span.AddEvent("session.bound")
	return sess, nil
}

// ConfirmScan is the scanning-device path: the app asserts a practitioner
// identity for the session. Repeated confirms are not rejected; they
// overwrite the identity and timestamp, so callers treat the first confirm
// as authoritative.
func (s *QRLoginService) ConfirmScan(ctx context.Context, sessionID, doctorID string) (Session, error) {
	ctx, span := middleware.StartSpan(ctx, "qrlogin.confirm_scan", trace.WithAttributes(
		attribute.String("layer", "logic"),
		attribute.String("user.id", doctorID),
	))
	defer span.End()

	sess, err := s.store.Mutate(sessionID, func(sess *Session) error {
		sess.State = StateConfirmed
		sess.Identity = &Identity{
			UserID:      doctorID,
			ConfirmedAt: s.store.now(),
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return Session{}, err
	}

	s.mirrorBound(ctx, span, sess)

	span.AddEvent("session.confirmed")
	return sess, nil
}

// ConfirmVisit marks the session confirmed when the scanned login URL is
// opened directly in a browser, synthesizing an identity from the session id.
func (s *QRLoginService) ConfirmVisit(ctx context.Context, sessionID string) (Session, error) {
	ctx, span := middleware.StartSpan(ctx, "qrlogin.confirm_visit", trace.WithAttributes(
		attribute.String("layer", "logic"),
	))
	defer span.End()

	sess, err := s.store.Mutate(sessionID, func(sess *Session) error {
		short := sessionID
		if len(short) > 8 {
			short = short[:8]
		}
		sess.State = StateConfirmed
		sess.Identity = &Identity{
			UserID:      "user_" + short,
			UserName:    "dr_" + short,
			Token:       "token_" + sessionID,
			ConfirmedAt: s.store.now(),
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return Session{}, err
	}

	s.mirrorBound(ctx, span, sess)

	span.AddEvent("session.confirmed")
	return sess, nil
}

// Resolve derives the caller's identity from the session id carried in a
// request header. Missing, unknown, expired or still-pending sessions all
// resolve to ErrUnauthorized — protected writes treat them identically.
func (s *QRLoginService) Resolve(ctx context.Context, sessionID string) (Identity, error) {
	_, span := middleware.StartSpan(ctx, "qrlogin.resolve", trace.WithAttributes(
		attribute.String("layer", "logic"),
	))
	defer span.End()

	if sessionID == "" {
		return Identity{}, fmt.Errorf("resolve: missing session id: %w", ErrUnauthorized)
	}

	sess, err := s.store.Get(sessionID)
	if err != nil {
		span.RecordError(err)
		return Identity{}, fmt.Errorf("resolve session %q: %w", sessionID, ErrUnauthorized)
	}
	if sess.State != StateConfirmed || sess.Identity == nil {
		span.SetAttributes(attribute.Bool("auth.confirmed", false))
		return Identity{}, fmt.Errorf("resolve session %q: not confirmed: %w", sessionID, ErrUnauthorized)
	}

	span.SetAttributes(
		attribute.Bool("auth.confirmed", true),
		attribute.String("user.id", sess.Identity.UserID),
	)
	return *sess.Identity, nil
}

// SweepExpired evicts expired sessions from memory and prunes the durable
// mirror. Called from the background ticker in main.
func (s *QRLoginService) SweepExpired(ctx context.Context) int {
	evicted := s.store.Sweep()

	if s.sessions != nil {
		if _, err := s.sessions.DeleteExpired(ctx, time.Now()); err != nil {
			logger.FromContext(ctx).Warn().Err(err).Msg("Durable session prune failed")
		}
	}
	return evicted
}

// mirrorBound writes the bound session to the database. Best-effort: a
// failure is recorded on the span and logged, never surfaced to the caller.
func (s *QRLoginService) mirrorBound(ctx context.Context, span trace.Span, sess Session) {
	if s.sessions == nil || sess.Identity == nil {
		return
	}
	rec := domain.BoundSession{
		SessionID: sess.ID,
		UserID:    sess.Identity.UserID,
		UserName:  sess.Identity.UserName,
		UserToken: sess.Identity.Token,
		CreatedAt: sess.CreatedAt,
		ExpiresAt: sess.ExpiresAt,
	}
	if err := s.sessions.Upsert(ctx, rec); err != nil {
		span.RecordError(fmt.Errorf("mirror session: %w", err))
		logger.FromContext(ctx).Warn().Err(err).Str("session_id", sess.ID).Msg("Session mirror write failed")
	}
}
