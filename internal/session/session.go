// Package session issues and verifies the signed credentials handed out after a
// successful face login.
//
// Credentials are HS256 JWTs. Verification needs only the secret: the signature and
// the embedded expiry decide validity. An optional RevocationList can block single
// sessions before they expire.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// MinSecretLength is the shortest accepted HMAC key.
const MinSecretLength = 32

// DefaultTTL is the lifetime of a credential issued by login.
const DefaultTTL = 7 * 24 * time.Hour

// DefaultIssuer is written to the iss claim.
const DefaultIssuer = "faceid"

var (
	// ErrSignatureInvalid covers malformed credentials and signature mismatches.
	ErrSignatureInvalid = errors.New("session signature invalid")
	// ErrSessionExpired is returned when the current time is past expiresAt.
	ErrSessionExpired = errors.New("session expired")
	// ErrRevoked is returned for a credential whose session id was revoked.
	ErrRevoked = errors.New("session revoked")
	// ErrWeakSecret is returned by NewIssuer for keys shorter than MinSecretLength.
	ErrWeakSecret = fmt.Errorf("session secret must be at least %d bytes", MinSecretLength)
)

// Session is the identity carried by a credential.
type Session struct {
	ID        string    `json:"sessionId"`
	OwnerID   string    `json:"ownerId"`
	Role      string    `json:"role"`
	Email     string    `json:"email"`
	IssuedAt  time.Time `json:"issuedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Updates changes payload fields on Reissue. Nil fields are kept.
type Updates struct {
	Role  *string
	Email *string
}

// claims is the signed payload.
type claims struct {
	jwt.RegisteredClaims
	Role  string `json:"rol,omitempty"`
	Email string `json:"eml,omitempty"`
}

// RevocationList is a denylist of session ids, checked by Verify when configured.
type RevocationList interface {
	Revoke(ctx context.Context, sessionID string, expiresAt time.Time) error
	IsRevoked(ctx context.Context, sessionID string) (bool, error)
}

// Issuer signs and verifies credentials.
type Issuer struct {
	secret      []byte
	issuer      string
	now         func() time.Time
	revocations RevocationList
	parser      *jwt.Parser
}

// Option configures an Issuer.
type Option func(*Issuer)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(i *Issuer) { i.now = now }
}

// WithIssuer sets the iss claim.
func WithIssuer(name string) Option {
	return func(i *Issuer) { i.issuer = name }
}

// WithRevocations enables the denylist check in Verify.
func WithRevocations(list RevocationList) Option {
	return func(i *Issuer) { i.revocations = list }
}

// NewIssuer creates an Issuer for secret.
func NewIssuer(secret []byte, opts ...Option) (*Issuer, error) {
	if len(secret) < MinSecretLength {
		return nil, ErrWeakSecret
	}

	i := &Issuer{
		secret: append([]byte(nil), secret...),
		issuer: DefaultIssuer,
		now:    time.Now,
		// Expiry is checked against the injected clock below, not by the library.
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithStrictDecoding(),
			jwt.WithoutClaimsValidation(),
		),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i, nil
}

// Issue signs a new credential for owner valid for ttl.
func (i *Issuer) Issue(ownerID, role, email string, ttl time.Duration) (string, *Session, error) {
	if ownerID == "" {
		return "", nil, errors.New("owner id is required")
	}

	now := i.now()
	s := &Session{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		Role:      role,
		Email:     email,
		IssuedAt:  now.Truncate(time.Second),
		ExpiresAt: expiryAt(now, ttl),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.issuer,
			Subject:   s.OwnerID,
			ID:        s.ID,
			IssuedAt:  jwt.NewNumericDate(s.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(s.ExpiresAt),
		},
		Role:  s.Role,
		Email: s.Email,
	})

	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", nil, fmt.Errorf("sign session: %w", err)
	}
	return signed, s, nil
}

// expiryAt returns now+ttl on a whole second, since the exp claim has second
// precision. Positive lifetimes round up and the rest round down, so a credential
// is never born expired when ttl > 0 and always is when ttl < 0.
func expiryAt(now time.Time, ttl time.Duration) time.Time {
	exp := now.Add(ttl)
	floor := exp.Truncate(time.Second)
	if ttl > 0 && floor.Before(exp) {
		return floor.Add(time.Second)
	}
	return floor
}

// Verify checks the signature and expiry of credential and returns its Session.
func (i *Issuer) Verify(ctx context.Context, credential string) (*Session, error) {
	var c claims
	_, err := i.parser.ParseWithClaims(credential, &c, func(*jwt.Token) (any, error) {
		return i.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSignatureInvalid, err)
	}
	if c.Subject == "" || c.ExpiresAt == nil {
		return nil, fmt.Errorf("%w: missing subject or expiry", ErrSignatureInvalid)
	}

	s := &Session{
		ID:        c.ID,
		OwnerID:   c.Subject,
		Role:      c.Role,
		Email:     c.Email,
		ExpiresAt: c.ExpiresAt.Time,
	}
	if c.IssuedAt != nil {
		s.IssuedAt = c.IssuedAt.Time
	}

	if i.now().After(s.ExpiresAt) {
		return nil, ErrSessionExpired
	}

	if i.revocations != nil && s.ID != "" {
		revoked, err := i.revocations.IsRevoked(ctx, s.ID)
		if err != nil {
			return nil, fmt.Errorf("check revocation: %w", err)
		}
		if revoked {
			return nil, ErrRevoked
		}
	}
	return s, nil
}

// Reissue verifies credential and signs a new one with refreshed timestamps and
// the given updates applied. The old credential stays valid until its own expiry.
func (i *Issuer) Reissue(ctx context.Context, credential string, u Updates, ttl time.Duration) (string, *Session, error) {
	s, err := i.Verify(ctx, credential)
	if err != nil {
		return "", nil, err
	}

	role, email := s.Role, s.Email
	if u.Role != nil {
		role = *u.Role
	}
	if u.Email != nil {
		email = *u.Email
	}
	return i.Issue(s.OwnerID, role, email, ttl)
}

// Revoke adds s to the revocation list. Without a list it is a no-op.
func (i *Issuer) Revoke(ctx context.Context, s *Session) error {
	if i.revocations == nil || s == nil || s.ID == "" {
		return nil
	}
	if err := i.revocations.Revoke(ctx, s.ID, s.ExpiresAt); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

// RevocationEnabled reports whether Verify consults a revocation list.
func (i *Issuer) RevocationEnabled() bool {
	return i.revocations != nil
}
