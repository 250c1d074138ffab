package mariadb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/kozaktomas/faceid/internal/directory"
)

// MemberDirectory resolves owner ids against the club's members table.
type MemberDirectory struct {
	pool *Pool
}

// NewMemberDirectory creates a directory backed by the pool.
func NewMemberDirectory(pool *Pool) *MemberDirectory {
	return &MemberDirectory{pool: pool}
}

// LookupMember returns the active member with the given id.
func (d *MemberDirectory) LookupMember(ctx context.Context, id string) (*directory.Member, error) {
	var m directory.Member
	var email sql.NullString
	err := d.pool.db.QueryRowContext(ctx,
		`SELECT id, role, email FROM members WHERE id = ? AND is_active = 1`, id,
	).Scan(&m.ID, &m.Role, &email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, directory.ErrMemberNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lookup member %s: %w", id, err)
	}

	m.Email = strings.ToLower(email.String)
	m.Role = strings.ToLower(m.Role)
	if m.Role == "" {
		m.Role = directory.RoleMember
	}
	return &m, nil
}
