// Package faceid enrolls face descriptors and turns a matching descriptor into a
// signed session.
package faceid

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kozaktomas/faceid/internal/database"
	"github.com/kozaktomas/faceid/internal/directory"
	"github.com/kozaktomas/faceid/internal/matching"
	"github.com/kozaktomas/faceid/internal/session"
)

// MemberDirectory resolves the role and email embedded in login sessions.
type MemberDirectory interface {
	LookupMember(ctx context.Context, id string) (*directory.Member, error)
}

// Options tune the service.
type Options struct {
	Dim           int
	Threshold     float64
	SessionTTL    time.Duration
	LoginTimeout  time.Duration
	RetentionDays int
	Logger        *slog.Logger // nil means slog.Default()
}

// DefaultOptions returns the production defaults.
func DefaultOptions() Options {
	return Options{
		Dim:           128,
		Threshold:     matching.DefaultThreshold,
		SessionTTL:    session.DefaultTTL,
		LoginTimeout:  5 * time.Second,
		RetentionDays: 90,
	}
}

// Service coordinates the profile store, matching engine and session issuer.
type Service struct {
	store    database.ProfileWriter
	engine   matching.Engine
	observer matching.ProfileObserver
	sessions *session.Issuer
	members  MemberDirectory
	opts     Options
	log      *slog.Logger
	now      func() time.Time
}

// NewService wires a Service. If engine keeps an index it is notified of profile changes.
func NewService(store database.ProfileWriter, engine matching.Engine, sessions *session.Issuer, members MemberDirectory, opts Options) *Service {
	s := &Service{
		store:    store,
		engine:   engine,
		sessions: sessions,
		members:  members,
		opts:     opts,
		log:      opts.Logger,
		now:      time.Now,
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	if o, ok := engine.(matching.ProfileObserver); ok {
		s.observer = o
	}
	return s
}

// Options returns the effective options.
func (s *Service) Options() Options {
	return s.opts
}

// RegisterRequest enrolls a descriptor for an already authenticated owner.
type RegisterRequest struct {
	OwnerID    string
	Descriptor []float32
	Confidence float64
	DeviceInfo database.DeviceInfo
}

// Register validates the request and stores a new active profile.
// It grows the owner's enrolled set and does not issue a session.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*database.StoredProfile, error) {
	a := newAttempt(s.log, "register", s.now())
	p, err := s.register(ctx, a, req)
	if err != nil {
		a.finish(ctx, s.now(), err)
		return nil, err
	}
	a.finish(ctx, s.now(), nil, "owner_id", p.OwnerID, "profile_id", p.ID)
	return p, nil
}

func (s *Service) register(ctx context.Context, a *attempt, req RegisterRequest) (*database.StoredProfile, error) {
	a.to(ctx, StateDescriptorReceived)
	if req.OwnerID == "" {
		return nil, invalid("ownerId", "is required")
	}
	info, err := s.validate(req.Descriptor, req.Confidence, req.DeviceInfo)
	if err != nil {
		return nil, err
	}

	a.to(ctx, StateEnrolling)
	p, err := s.store.Create(ctx, database.NewProfile{
		OwnerID:    req.OwnerID,
		Descriptor: req.Descriptor,
		Confidence: req.Confidence,
		DeviceInfo: info,
	})
	if err != nil {
		return nil, fmt.Errorf("create profile: %w", err)
	}
	if s.observer != nil {
		s.observer.ProfileAdded(p)
	}
	return p, nil
}

// LoginRequest carries a descriptor from an unauthenticated caller.
type LoginRequest struct {
	Descriptor []float32
	Confidence float64
	DeviceInfo database.DeviceInfo
}

// LoginResult is returned on a successful match.
type LoginResult struct {
	Credential string
	Session    *session.Session
	OwnerID    string
	ProfileID  string
	Similarity float64
}

// Login identifies the caller by face. On success the matched profile's usage is
// recorded before the session is issued; if recording fails no session is issued.
// Every no-match outcome is ErrNoMatchFound.
func (s *Service) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	if s.opts.LoginTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.LoginTimeout)
		defer cancel()
	}

	a := newAttempt(s.log, "login", s.now())
	res, err := s.login(ctx, a, req)
	if err != nil {
		a.finish(ctx, s.now(), err)
		return nil, err
	}
	a.finish(ctx, s.now(), nil, "owner_id", res.OwnerID, "profile_id", res.ProfileID, "similarity", res.Similarity)
	return res, nil
}

func (s *Service) login(ctx context.Context, a *attempt, req LoginRequest) (*LoginResult, error) {
	a.to(ctx, StateDescriptorReceived)
	if _, err := s.validate(req.Descriptor, req.Confidence, req.DeviceInfo); err != nil {
		return nil, err
	}

	a.to(ctx, StateMatching)
	m, err := s.engine.FindBestMatch(ctx, req.Descriptor, s.opts.Threshold)
	if errors.Is(err, matching.ErrNoMatch) {
		return nil, ErrNoMatchFound
	}
	if err != nil {
		return nil, fmt.Errorf("find best match: %w", err)
	}

	member, err := s.members.LookupMember(ctx, m.Profile.OwnerID)
	if errors.Is(err, directory.ErrMemberNotFound) {
		s.log.WarnContext(ctx, "matched profile has no member record", "profile_id", m.Profile.ID)
		return nil, ErrNoMatchFound
	}
	if err != nil {
		return nil, fmt.Errorf("lookup member: %w", err)
	}

	if err := s.store.RecordUsage(ctx, m.Profile.ID); err != nil {
		return nil, fmt.Errorf("record usage: %w", err)
	}

	cred, sess, err := s.sessions.Issue(m.Profile.OwnerID, member.Role, member.Email, s.opts.SessionTTL)
	if err != nil {
		return nil, fmt.Errorf("issue session: %w", err)
	}

	return &LoginResult{
		Credential: cred,
		Session:    sess,
		OwnerID:    m.Profile.OwnerID,
		ProfileID:  m.Profile.ID,
		Similarity: m.Similarity,
	}, nil
}

func (s *Service) validate(d []float32, confidence float64, info database.DeviceInfo) (database.DeviceInfo, error) {
	if err := validateDescriptor(d, s.opts.Dim); err != nil {
		return info, err
	}
	if err := validateConfidence(confidence); err != nil {
		return info, err
	}
	return normalizeDeviceInfo(info)
}

// ListProfiles returns the active profiles of ownerID, oldest first.
func (s *Service) ListProfiles(ctx context.Context, ownerID string) ([]database.StoredProfile, error) {
	if ownerID == "" {
		return nil, invalid("ownerId", "is required")
	}
	profiles, err := s.store.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	return profiles, nil
}

// Profile returns a profile. A non-empty ownerID restricts the lookup to that owner.
func (s *Service) Profile(ctx context.Context, id, ownerID string) (*database.StoredProfile, error) {
	p, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if ownerID != "" && p.OwnerID != ownerID {
		return nil, ErrNotFound
	}
	return p, nil
}

// DeactivateProfile soft-deletes one profile. A non-empty ownerID must own it.
func (s *Service) DeactivateProfile(ctx context.Context, id, ownerID string) error {
	if _, err := s.Profile(ctx, id, ownerID); err != nil {
		return err
	}
	if err := s.store.Deactivate(ctx, id); err != nil {
		return err
	}
	if s.observer != nil {
		s.observer.ProfileRemoved(id)
	}
	s.log.InfoContext(ctx, "profile deactivated", "profile_id", id)
	return nil
}

// ReactivateProfile restores a deactivated profile. A non-empty ownerID must own it.
func (s *Service) ReactivateProfile(ctx context.Context, id, ownerID string) error {
	if _, err := s.Profile(ctx, id, ownerID); err != nil {
		return err
	}
	if err := s.store.Reactivate(ctx, id); err != nil {
		return err
	}
	if s.observer != nil {
		p, err := s.store.Get(ctx, id)
		if err != nil {
			return err
		}
		s.observer.ProfileAdded(p)
	}
	s.log.InfoContext(ctx, "profile reactivated", "profile_id", id)
	return nil
}

// DeleteProfile permanently removes one profile. A non-empty ownerID must own it.
func (s *Service) DeleteProfile(ctx context.Context, id, ownerID string) error {
	if _, err := s.Profile(ctx, id, ownerID); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	if s.observer != nil {
		s.observer.ProfileRemoved(id)
	}
	s.log.InfoContext(ctx, "profile deleted", "profile_id", id)
	return nil
}

// DeactivateAll disables face login for ownerID on every device.
func (s *Service) DeactivateAll(ctx context.Context, ownerID string) (int, error) {
	if ownerID == "" {
		return 0, invalid("ownerId", "is required")
	}

	var ids []string
	if s.observer != nil {
		profiles, err := s.store.ListByOwner(ctx, ownerID)
		if err != nil {
			return 0, fmt.Errorf("list profiles: %w", err)
		}
		for _, p := range profiles {
			ids = append(ids, p.ID)
		}
	}

	n, err := s.store.DeactivateAllForOwner(ctx, ownerID)
	if err != nil {
		return 0, fmt.Errorf("deactivate profiles: %w", err)
	}
	for _, id := range ids {
		s.observer.ProfileRemoved(id)
	}
	s.log.InfoContext(ctx, "owner profiles deactivated", "owner_id", ownerID, "count", n)
	return n, nil
}

// Cleanup permanently removes profiles unused for longer than the retention window.
func (s *Service) Cleanup(ctx context.Context) (int, error) {
	return s.CleanupOlderThan(ctx, s.opts.RetentionDays)
}

// CleanupOlderThan is Cleanup with an explicit retention window in days.
func (s *Service) CleanupOlderThan(ctx context.Context, retentionDays int) (int, error) {
	if retentionDays < 0 {
		return 0, invalid("retentionDays", "must not be negative")
	}

	removed, err := s.store.Cleanup(ctx, retentionDays)
	if err != nil {
		return 0, fmt.Errorf("cleanup profiles: %w", err)
	}
	if s.observer != nil && len(removed) > 0 {
		if err := s.observer.Rebuild(ctx); err != nil {
			s.log.ErrorContext(ctx, "profile index rebuild failed", "error", err)
		}
	}
	s.log.InfoContext(ctx, "profile cleanup finished", "retention_days", retentionDays, "removed", len(removed))
	return len(removed), nil
}

// RunRetention calls Cleanup every interval until ctx is done.
func (s *Service) RunRetention(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Cleanup(ctx); err != nil {
				s.log.ErrorContext(ctx, "scheduled cleanup failed", "error", err)
			}
		}
	}
}

// Sessions exposes the issuer used for login credentials.
func (s *Service) Sessions() *session.Issuer {
	return s.sessions
}
