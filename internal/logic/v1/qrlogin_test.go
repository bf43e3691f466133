package v1

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/duynhne/suggestion-service/internal/core/domain"
)

// fakeSessionRepo records durable mirror writes.
type fakeSessionRepo struct {
	mu      sync.Mutex
	upserts []domain.BoundSession
	fail    error
}

func (r *fakeSessionRepo) Upsert(ctx context.Context, s domain.BoundSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return r.fail
	}
	r.upserts = append(r.upserts, s)
	return nil
}

func (r *fakeSessionRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	return 0, nil
}

// fakeQRWriter avoids touching the filesystem in state machine tests.
type fakeQRWriter struct {
	fail error
}

func (w *fakeQRWriter) SaveQRCode(sessionID string, png []byte) (string, error) {
	if w.fail != nil {
		return "", w.fail
	}
	return "/qr_codes/qr_code_" + sessionID + ".png", nil
}

func newTestLoginService(ttl time.Duration) (*QRLoginService, *SessionStore, *fakeClock, *fakeSessionRepo) {
	st, clock := newTestStore(ttl)
	repo := &fakeSessionRepo{}
	svc := NewQRLoginService(st, repo, &fakeQRWriter{}, "http://example.test")
	return svc, st, clock, repo
}

func TestGenerateProducesScannablePayload(t *testing.T) {
	svc, _, clock, _ := newTestLoginService(5 * time.Minute)

	res, err := svc.Generate(context.Background())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if res.SessionID == "" {
		t.Fatalf("expected session id")
	}
	if want := "http://example.test/confirm-login?loginId=" + res.SessionID; res.LoginURL != want {
		t.Fatalf("login url = %q, want %q", res.LoginURL, want)
	}
	if !strings.Contains(res.ImageURL, res.SessionID) {
		t.Fatalf("image url %q does not reference the session", res.ImageURL)
	}
	if got, want := res.ExpiresAt, clock.Now().Add(5*time.Minute); !got.Equal(want) {
		t.Fatalf("expires_at = %v, want %v", got, want)
	}
}

func TestGenerateSurvivesQRRenderFailure(t *testing.T) {
	st, _ := newTestStore(5 * time.Minute)
	svc := NewQRLoginService(st, &fakeSessionRepo{}, &fakeQRWriter{fail: errors.New("disk full")}, "http://example.test")

	res, err := svc.Generate(context.Background())
	if err != nil {
		t.Fatalf("Generate must not fail on QR render errors: %v", err)
	}
	if res.ImageURL != "" {
		t.Fatalf("expected empty image url, got %q", res.ImageURL)
	}
	if res.LoginURL == "" {
		t.Fatalf("login url must still be present")
	}
}

func TestPollWaitingThenConfirmed(t *testing.T) {
	svc, _, _, _ := newTestLoginService(5 * time.Minute)
	ctx := context.Background()

	res, err := svc.Generate(ctx)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	// Polling is repeatable while pending.
	for i := 0; i < 3; i++ {
		sess, err := svc.Poll(ctx, res.SessionID)
		if err != nil {
			t.Fatalf("Poll: %v", err)
		}
		if sess.State != StatePending {
			t.Fatalf("expected pending, got %v", sess.State)
		}
	}

	if _, err := svc.ConfirmScan(ctx, res.SessionID, "doctor-7"); err != nil {
		t.Fatalf("ConfirmScan: %v", err)
	}

	// And repeatable after confirmation, always with the identity attached.
	for i := 0; i < 3; i++ {
		sess, err := svc.Poll(ctx, res.SessionID)
		if err != nil {
			t.Fatalf("Poll: %v", err)
		}
		if sess.State != StateConfirmed {
			t.Fatalf("expected confirmed, got %v", sess.State)
		}
		if sess.Identity == nil || sess.Identity.UserID != "doctor-7" {
			t.Fatalf("unexpected identity: %+v", sess.Identity)
		}
	}
}

func TestBindSucceedsOnceThenRejects(t *testing.T) {
	svc, _, _, repo := newTestLoginService(5 * time.Minute)
	ctx := context.Background()

	res, err := svc.Generate(ctx)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	ident := Identity{UserID: "u-1", UserName: "Dr. Chen", Token: "tok-1"}
	sess, err := svc.Bind(ctx, res.SessionID, ident)
	if err != nil {
		t.Fatalf("first Bind: %v", err)
	}
	if sess.Identity.UserID != "u-1" || sess.Identity.ConfirmedAt.IsZero() {
		t.Fatalf("unexpected identity: %+v", sess.Identity)
	}

	_, err = svc.Bind(ctx, res.SessionID, Identity{UserID: "u-2", UserName: "x", Token: "y"})
	if !errors.Is(err, ErrSessionBound) {
		t.Fatalf("expected ErrSessionBound, got %v", err)
	}

	// First bind is authoritative.
	got, err := svc.Poll(ctx, res.SessionID)
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if got.Identity.UserID != "u-1" {
		t.Fatalf("identity overwritten by rejected bind: %+v", got.Identity)
	}

	if len(repo.upserts) != 1 || repo.upserts[0].UserID != "u-1" {
		t.Fatalf("expected one mirror write for u-1, got %+v", repo.upserts)
	}
}

func TestBindAfterConfirmRejected(t *testing.T) {
	svc, _, _, _ := newTestLoginService(5 * time.Minute)
	ctx := context.Background()

	res, _ := svc.Generate(ctx)
	if _, err := svc.ConfirmScan(ctx, res.SessionID, "doctor-1"); err != nil {
		t.Fatalf("ConfirmScan: %v", err)
	}

	_, err := svc.Bind(ctx, res.SessionID, Identity{UserID: "u-1", UserName: "n", Token: "t"})
	if !errors.Is(err, ErrSessionBound) {
		t.Fatalf("expected ErrSessionBound after confirm, got %v", err)
	}
}

func TestRepeatedConfirmOverwrites(t *testing.T) {
	svc, _, clock, repo := newTestLoginService(5 * time.Minute)
	ctx := context.Background()

	res, _ := svc.Generate(ctx)

	first, err := svc.ConfirmScan(ctx, res.SessionID, "doctor-1")
	if err != nil {
		t.Fatalf("first ConfirmScan: %v", err)
	}

	clock.Advance(10 * time.Second)

	second, err := svc.ConfirmScan(ctx, res.SessionID, "doctor-2")
	if err != nil {
		t.Fatalf("second ConfirmScan: %v", err)
	}
	if second.Identity.UserID != "doctor-2" {
		t.Fatalf("expected overwrite, got %+v", second.Identity)
	}
	if !second.Identity.ConfirmedAt.After(first.Identity.ConfirmedAt) {
		t.Fatalf("confirmation timestamp not refreshed")
	}
	if len(repo.upserts) != 2 {
		t.Fatalf("expected mirror write per confirm, got %d", len(repo.upserts))
	}
}

func TestConfirmVisitSynthesizesIdentity(t *testing.T) {
	svc, _, _, _ := newTestLoginService(5 * time.Minute)
	ctx := context.Background()

	res, _ := svc.Generate(ctx)
	sess, err := svc.ConfirmVisit(ctx, res.SessionID)
	if err != nil {
		t.Fatalf("ConfirmVisit: %v", err)
	}

	short := res.SessionID[:8]
	if sess.Identity.UserID != "user_"+short {
		t.Fatalf("user id = %q", sess.Identity.UserID)
	}
	if sess.Identity.UserName != "dr_"+short {
		t.Fatalf("user name = %q", sess.Identity.UserName)
	}
	if sess.Identity.Token != "token_"+res.SessionID {
		t.Fatalf("token = %q", sess.Identity.Token)
	}
}

func TestExpiredSessionRejectedEverywhere(t *testing.T) {
	ctx := context.Background()

	ops := map[string]func(svc *QRLoginService, id string) error{
		"poll": func(svc *QRLoginService, id string) error {
			_, err := svc.Poll(ctx, id)
			return err
		},
		"bind": func(svc *QRLoginService, id string) error {
			_, err := svc.Bind(ctx, id, Identity{UserID: "u", UserName: "n", Token: "t"})
			return err
		},
		"confirm_scan": func(svc *QRLoginService, id string) error {
			_, err := svc.ConfirmScan(ctx, id, "d")
			return err
		},
		"confirm_visit": func(svc *QRLoginService, id string) error {
			_, err := svc.ConfirmVisit(ctx, id)
			return err
		},
	}

	for name, op := range ops {
		t.Run(name, func(t *testing.T) {
			svc, st, clock, _ := newTestLoginService(5 * time.Minute)

			res, err := svc.Generate(ctx)
			if err != nil {
				t.Fatalf("Generate: %v", err)
			}
			clock.Advance(5*time.Minute + time.Second)

			if err := op(svc, res.SessionID); !errors.Is(err, ErrSessionExpired) {
				t.Fatalf("expected ErrSessionExpired, got %v", err)
			}
			if st.Len() != 0 {
				t.Fatalf("expired session not evicted")
			}

			// After the evicting access the session no longer exists.
			if err := op(svc, res.SessionID); !errors.Is(err, ErrSessionNotFound) {
				t.Fatalf("expected ErrSessionNotFound after eviction, got %v", err)
			}
		})
	}
}

func TestResolve(t *testing.T) {
	svc, _, clock, _ := newTestLoginService(5 * time.Minute)
	ctx := context.Background()

	if _, err := svc.Resolve(ctx, ""); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("empty id: expected ErrUnauthorized, got %v", err)
	}
	if _, err := svc.Resolve(ctx, "unknown"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("unknown id: expected ErrUnauthorized, got %v", err)
	}

	res, _ := svc.Generate(ctx)
	if _, err := svc.Resolve(ctx, res.SessionID); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("pending session: expected ErrUnauthorized, got %v", err)
	}

	if _, err := svc.Bind(ctx, res.SessionID, Identity{UserID: "u-9", UserName: "n", Token: "t"}); err != nil {
		t.Fatalf("Bind: %v", err)
	}

	ident, err := svc.Resolve(ctx, res.SessionID)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if ident.UserID != "u-9" {
		t.Fatalf("resolved user = %q", ident.UserID)
	}

	clock.Advance(6 * time.Minute)
	if _, err := svc.Resolve(ctx, res.SessionID); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expired session: expected ErrUnauthorized, got %v", err)
	}
}

func TestMirrorFailureDoesNotFailBind(t *testing.T) {
	st, _ := newTestStore(5 * time.Minute)
	repo := &fakeSessionRepo{fail: errors.New("db down")}
	svc := NewQRLoginService(st, repo, &fakeQRWriter{}, "http://example.test")
	ctx := context.Background()

	res, _ := svc.Generate(ctx)
	if _, err := svc.Bind(ctx, res.SessionID, Identity{UserID: "u", UserName: "n", Token: "t"}); err != nil {
		t.Fatalf("Bind must tolerate mirror failure: %v", err)
	}

	ident, err := svc.Resolve(ctx, res.SessionID)
	if err != nil || ident.UserID != "u" {
		t.Fatalf("in-memory state must win: %v %+v", err, ident)
	}
}

func TestSweepExpired(t *testing.T) {
	svc, st, clock, _ := newTestLoginService(time.Minute)
	ctx := context.Background()

	svc.Generate(ctx)
	svc.Generate(ctx)
	clock.Advance(2 * time.Minute)

	if evicted := svc.SweepExpired(ctx); evicted != 2 {
		t.Fatalf("expected 2 evicted, got %d", evicted)
	}
	if st.Len() != 0 {
		t.Fatalf("store not empty after sweep")
	}
}
