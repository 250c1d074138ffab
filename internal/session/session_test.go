package session

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time { return c.t }

func newTestIssuer(t *testing.T, opts ...Option) (*Issuer, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2026, 4, 2, 10, 30, 15, 250_000_000, time.UTC)}
	i, err := NewIssuer(testSecret, append([]Option{WithClock(clock.Now)}, opts...)...)
	require.NoError(t, err)
	return i, clock
}

func TestNewIssuer_RejectsShortSecret(t *testing.T) {
	_, err := NewIssuer([]byte("short"))
	assert.ErrorIs(t, err, ErrWeakSecret)
}

func TestIssueVerify_RoundTrip(t *testing.T) {
	issuer, clock := newTestIssuer(t)

	for _, ttl := range []time.Duration{time.Second, time.Hour, DefaultTTL} {
		cred, issued, err := issuer.Issue("u1", "admin", "coach@example.com", ttl)
		require.NoError(t, err)
		assert.Len(t, strings.Split(cred, "."), 3)

		s, err := issuer.Verify(context.Background(), cred)
		require.NoError(t, err, "ttl %s", ttl)
		assert.Equal(t, "u1", s.OwnerID)
		assert.Equal(t, "admin", s.Role)
		assert.Equal(t, "coach@example.com", s.Email)
		assert.Equal(t, issued.ID, s.ID)
		assert.True(t, s.ExpiresAt.After(clock.Now()), "expiresAt must be in the future")
		assert.True(t, s.ExpiresAt.Equal(issued.ExpiresAt))
	}
}

func TestIssue_UniqueSessionIDs(t *testing.T) {
	issuer, _ := newTestIssuer(t)

	_, a, err := issuer.Issue("u1", "member", "", time.Hour)
	require.NoError(t, err)
	_, b, err := issuer.Issue("u1", "member", "", time.Hour)
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestIssue_RequiresOwner(t *testing.T) {
	issuer, _ := newTestIssuer(t)
	_, _, err := issuer.Issue("", "member", "", time.Hour)
	assert.Error(t, err)
}

func TestVerify_Expired(t *testing.T) {
	issuer, clock := newTestIssuer(t)

	cred, _, err := issuer.Issue("u1", "member", "", -1)
	require.NoError(t, err)
	_, err = issuer.Verify(context.Background(), cred)
	assert.ErrorIs(t, err, ErrSessionExpired)

	cred, s, err := issuer.Issue("u1", "member", "", time.Hour)
	require.NoError(t, err)
	clock.t = s.ExpiresAt.Add(time.Millisecond)
	_, err = issuer.Verify(context.Background(), cred)
	assert.ErrorIs(t, err, ErrSessionExpired)
}

func TestVerify_TamperedSignature(t *testing.T) {
	issuer, _ := newTestIssuer(t)
	cred, _, err := issuer.Issue("u1", "member", "m@example.com", time.Hour)
	require.NoError(t, err)

	sigStart := strings.LastIndex(cred, ".") + 1
	for pos := sigStart; pos < len(cred); pos++ {
		replacement := byte('A')
		if cred[pos] == 'A' {
			replacement = 'B'
		}
		tampered := cred[:pos] + string(replacement) + cred[pos+1:]

		_, err := issuer.Verify(context.Background(), tampered)
		assert.ErrorIs(t, err, ErrSignatureInvalid, "position %d", pos)
	}
}

func TestVerify_TamperedPayload(t *testing.T) {
	issuer, _ := newTestIssuer(t)
	cred, _, err := issuer.Issue("u1", "member", "", time.Hour)
	require.NoError(t, err)

	parts := strings.Split(cred, ".")
	other, _, err := issuer.Issue("u2", "admin", "", time.Hour)
	require.NoError(t, err)
	parts[1] = strings.Split(other, ".")[1]

	_, err = issuer.Verify(context.Background(), strings.Join(parts, "."))
	assert.ErrorIs(t, err, ErrSignatureInvalid)
}

func TestVerify_WrongSecretAndGarbage(t *testing.T) {
	issuer, _ := newTestIssuer(t)
	otherIssuer, err := NewIssuer([]byte("ffffffffffffffffffffffffffffffff"))
	require.NoError(t, err)

	cred, _, err := otherIssuer.Issue("u1", "member", "", time.Hour)
	require.NoError(t, err)

	for _, c := range []string{cred, "", "not-a-token", "a.b.c"} {
		_, err := issuer.Verify(context.Background(), c)
		assert.ErrorIs(t, err, ErrSignatureInvalid, "credential %q", c)
	}
}

func TestReissue(t *testing.T) {
	issuer, clock := newTestIssuer(t)
	cred, first, err := issuer.Issue("u1", "member", "old@example.com", time.Hour)
	require.NoError(t, err)

	clock.t = clock.t.Add(10 * time.Minute)
	role := "trainer"
	next, s, err := issuer.Reissue(context.Background(), cred, Updates{Role: &role}, time.Hour)
	require.NoError(t, err)

	assert.Equal(t, "u1", s.OwnerID)
	assert.Equal(t, "trainer", s.Role)
	assert.Equal(t, "old@example.com", s.Email)
	assert.NotEqual(t, first.ID, s.ID)
	assert.True(t, s.ExpiresAt.After(first.ExpiresAt))

	_, err = issuer.Verify(context.Background(), next)
	require.NoError(t, err)

	// The original credential is still valid on its own.
	old, err := issuer.Verify(context.Background(), cred)
	require.NoError(t, err)
	assert.Equal(t, "member", old.Role)
}

func TestReissue_Expired(t *testing.T) {
	issuer, _ := newTestIssuer(t)
	cred, _, err := issuer.Issue("u1", "member", "", -time.Minute)
	require.NoError(t, err)

	_, _, err = issuer.Reissue(context.Background(), cred, Updates{}, time.Hour)
	assert.ErrorIs(t, err, ErrSessionExpired)
}

func TestRevoke(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)}
	list := NewMemoryRevocations(clock.Now)
	issuer, err := NewIssuer(testSecret, WithClock(clock.Now), WithRevocations(list))
	require.NoError(t, err)
	assert.True(t, issuer.RevocationEnabled())

	cred, s, err := issuer.Issue("u1", "member", "", time.Hour)
	require.NoError(t, err)
	other, _, err := issuer.Issue("u1", "member", "", time.Hour)
	require.NoError(t, err)

	require.NoError(t, issuer.Revoke(context.Background(), s))

	_, err = issuer.Verify(context.Background(), cred)
	assert.ErrorIs(t, err, ErrRevoked)
	_, err = issuer.Verify(context.Background(), other)
	assert.NoError(t, err)
}

func TestRevoke_WithoutListIsNoop(t *testing.T) {
	issuer, _ := newTestIssuer(t)
	cred, s, err := issuer.Issue("u1", "member", "", time.Hour)
	require.NoError(t, err)

	require.NoError(t, issuer.Revoke(context.Background(), s))
	_, err = issuer.Verify(context.Background(), cred)
	assert.NoError(t, err)
}

type failingRevocations struct{}

func (failingRevocations) Revoke(context.Context, string, time.Time) error { return nil }

func (failingRevocations) IsRevoked(context.Context, string) (bool, error) {
	return false, errors.New("connection refused")
}

func TestVerify_RevocationErrorFailsClosed(t *testing.T) {
	issuer, _ := newTestIssuer(t, WithRevocations(failingRevocations{}))
	cred, _, err := issuer.Issue("u1", "member", "", time.Hour)
	require.NoError(t, err)

	_, err = issuer.Verify(context.Background(), cred)
	assert.Error(t, err)
}

func TestMemoryRevocations_Prunes(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)}
	list := NewMemoryRevocations(clock.Now)
	ctx := context.Background()

	require.NoError(t, list.Revoke(ctx, "a", clock.t.Add(time.Minute)))
	require.NoError(t, list.Revoke(ctx, "past", clock.t.Add(-time.Minute)))
	assert.Equal(t, 1, list.Len())

	clock.t = clock.t.Add(2 * time.Minute)
	revoked, err := list.IsRevoked(ctx, "a")
	require.NoError(t, err)
	assert.False(t, revoked)

	require.NoError(t, list.Revoke(ctx, "b", clock.t.Add(time.Minute)))
	assert.Equal(t, 1, list.Len())
}

func TestExpiryAt(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 10, 500_000_000, time.UTC)

	assert.Equal(t, now.Truncate(time.Second).Add(2*time.Second), expiryAt(now, time.Second))
	assert.True(t, expiryAt(now, -1).Before(now))
	onSecond := now.Truncate(time.Second)
	assert.True(t, expiryAt(onSecond, -1).Before(onSecond))
}
