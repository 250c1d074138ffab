// Package directory resolves club members for session issuance.
//
// The biometric store only knows owner ids; the role and email embedded in a
// credential come from the member directory at login time.
package directory

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Member roles recognised by the web layer.
const (
	RoleMember  = "member"
	RoleTrainer = "trainer"
	RoleAdmin   = "admin"
)

// ErrMemberNotFound is returned when an owner id has no (active) member record.
var ErrMemberNotFound = errors.New("member not found")

// Member is the identity attached to a session.
type Member struct {
	ID    string `yaml:"id"`
	Role  string `yaml:"role"`
	Email string `yaml:"email"`
}

// StaticDirectory serves members from memory.
type StaticDirectory struct {
	mu      sync.RWMutex
	members map[string]Member
}

// NewStaticDirectory creates a directory holding the given members.
func NewStaticDirectory(members ...Member) *StaticDirectory {
	d := &StaticDirectory{members: make(map[string]Member, len(members))}
	for _, m := range members {
		d.members[m.ID] = normalize(m)
	}
	return d
}

// Put adds or replaces a member.
func (d *StaticDirectory) Put(m Member) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.members[m.ID] = normalize(m)
}

// LookupMember returns the member with the given id.
func (d *StaticDirectory) LookupMember(ctx context.Context, id string) (*Member, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	m, ok := d.members[id]
	if !ok {
		return nil, ErrMemberNotFound
	}
	return &m, nil
}

// Len returns the number of members.
func (d *StaticDirectory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.members)
}

type membersFile struct {
	Members []Member `yaml:"members"`
}

// LoadFile reads a YAML member list:
//
//	members:
//	  - id: u1
//	    role: admin
//	    email: coach@example.com
func LoadFile(path string) (*StaticDirectory, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is from trusted config
	if err != nil {
		return nil, fmt.Errorf("read members file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML produced for LoadFile.
func Parse(data []byte) (*StaticDirectory, error) {
	var f membersFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("unmarshal members file: %w", err)
	}

	d := NewStaticDirectory()
	for i, m := range f.Members {
		if m.ID == "" {
			return nil, fmt.Errorf("member %d: id is required", i)
		}
		if _, dup := d.members[m.ID]; dup {
			return nil, fmt.Errorf("member %d: duplicate id %q", i, m.ID)
		}
		d.members[m.ID] = normalize(m)
	}
	return d, nil
}

func normalize(m Member) Member {
	m.Email = strings.ToLower(strings.TrimSpace(m.Email))
	m.Role = strings.ToLower(strings.TrimSpace(m.Role))
	if m.Role == "" {
		m.Role = RoleMember
	}
	return m
}
