// Package v1 provides QR-login and suggestion business logic for API version 1.
//
// Error Handling:
// This package defines sentinel errors for the login session lifecycle and
// the ownership-gated suggestion operations. They should be wrapped with
// context using fmt.Errorf("%w") when returned from business logic methods.
//
// Example Usage:
//
//	if sess.State != StatePending {
//	    return Session{}, fmt.Errorf("bind session %q: %w", id, ErrSessionBound)
//	}
//
// Error Checking (in handlers):
//
//	switch {
//	case errors.Is(err, logicv1.ErrSessionNotFound):
//	    c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
//	case errors.Is(err, logicv1.ErrSessionExpired):
//	    c.JSON(http.StatusGone, gin.H{"error": "Session expired"})
//	default:
//	    c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
//	}
package v1

import "errors"

// Sentinel errors for login-session and suggestion operations.
// These errors should be wrapped with context using fmt.Errorf("%w") when returned.
var (
	// ErrSessionNotFound indicates the login session id does not exist.
	// HTTP Status: 404 Not Found
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionExpired indicates the login session passed its absolute
	// expiry; the record is evicted on the access that detects this.
	// HTTP Status: 410 Gone
	ErrSessionExpired = errors.New("session expired")

	// ErrSessionBound indicates a bind attempt on a session that already
	// carries an identity. Bind succeeds at most once.
	// HTTP Status: 400 Bad Request
	ErrSessionBound = errors.New("session already bound")

	// ErrUnauthorized indicates a protected write without a resolvable
	// identity (missing, unknown, expired or still-pending session).
	// HTTP Status: 401 Unauthorized
	ErrUnauthorized = errors.New("login required")

	// ErrForbidden indicates a valid identity that does not own the
	// targeted record.
	// HTTP Status: 403 Forbidden
	ErrForbidden = errors.New("not the owner")

	// ErrSuggestionNotFound indicates the suggestion id does not exist.
	// HTTP Status: 404 Not Found
	ErrSuggestionNotFound = errors.New("suggestion not found")

	// ErrValidation indicates a required field was empty after trimming.
	// HTTP Status: 400 Bad Request
	ErrValidation = errors.New("validation failed")
)
