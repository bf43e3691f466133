package v1

import (
	"errors"
	"testing"
	"time"
)

// fakeClock drives the store's time without sleeping.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestStore(ttl time.Duration) (*SessionStore, *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)}
	st := NewSessionStore(ttl)
	st.now = clock.Now
	return st, clock
}

func TestSessionStoreCreateAndGet(t *testing.T) {
	st, clock := newTestStore(5 * time.Minute)

	created := st.Create()
	if created.ID == "" {
		t.Fatalf("expected non-empty session id")
	}
	if created.State != StatePending {
		t.Fatalf("expected pending state, got %v", created.State)
	}
	if got, want := created.ExpiresAt, clock.Now().Add(5*time.Minute); !got.Equal(want) {
		t.Fatalf("expected expiry %v, got %v", want, got)
	}

	got, err := st.Get(created.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.ID != created.ID || got.Identity != nil {
		t.Fatalf("unexpected session: %+v", got)
	}
}

func TestSessionStoreGetUnknown(t *testing.T) {
	st, _ := newTestStore(5 * time.Minute)

	_, err := st.Get("nope")
	if !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestSessionStoreExpiryEvictsOnRead(t *testing.T) {
	st, clock := newTestStore(5 * time.Minute)
	sess := st.Create()

	clock.Advance(5 * time.Minute) // exactly at the deadline counts as expired

	_, err := st.Get(sess.ID)
	if !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired on first post-expiry access, got %v", err)
	}
	if st.Len() != 0 {
		t.Fatalf("expected eviction, %d sessions remain", st.Len())
	}

	// The record is gone now; later accesses see not-found.
	_, err = st.Get(sess.ID)
	if !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound after eviction, got %v", err)
	}
}

func TestSessionStoreMutateExpired(t *testing.T) {
	st, clock := newTestStore(time.Minute)
	sess := st.Create()

	clock.Advance(2 * time.Minute)

	_, err := st.Mutate(sess.ID, func(s *Session) error {
		t.Fatal("mutation must not run on an expired session")
		return nil
	})
	if !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired, got %v", err)
	}
}

func TestSessionStoreMutateError(t *testing.T) {
	st, _ := newTestStore(time.Minute)
	sess := st.Create()

	boom := errors.New("boom")
	_, err := st.Mutate(sess.ID, func(s *Session) error {
		s.State = StateConfirmed
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected fn error, got %v", err)
	}

	// A failed mutation must not leak partial state.
	got, err := st.Get(sess.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.State == StateConfirmed {
		t.Fatalf("partial mutation leaked")
	}
}

func TestSessionStoreMutateReturnsCopy(t *testing.T) {
	st, _ := newTestStore(time.Minute)
	sess := st.Create()

	out, err := st.Mutate(sess.ID, func(s *Session) error {
		s.State = StateConfirmed
		s.Identity = &Identity{UserID: "d-1"}
		return nil
	})
	if err != nil {
		t.Fatalf("Mutate: %v", err)
	}

	out.Identity.UserID = "tampered"

	got, err := st.Get(sess.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Identity.UserID != "d-1" {
		t.Fatalf("store state mutated through returned copy: %q", got.Identity.UserID)
	}
}

func TestSessionStoreEvict(t *testing.T) {
	st, _ := newTestStore(time.Minute)
	sess := st.Create()

	st.Evict(sess.ID)

	if _, err := st.Get(sess.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound after evict, got %v", err)
	}
}

func TestSessionStoreSweep(t *testing.T) {
	st, clock := newTestStore(time.Minute)

	st.Create()
	st.Create()
	clock.Advance(30 * time.Second)
	fresh := st.Create()

	clock.Advance(45 * time.Second) // first two past deadline, third still live

	if evicted := st.Sweep(); evicted != 2 {
		t.Fatalf("expected 2 evicted, got %d", evicted)
	}
	if st.Len() != 1 {
		t.Fatalf("expected 1 session left, got %d", st.Len())
	}
	if _, err := st.Get(fresh.ID); err != nil {
		t.Fatalf("fresh session should survive sweep: %v", err)
	}
}
