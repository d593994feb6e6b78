package repository

import (
	"database/sql"
	"fmt"

	"go.uber.org/zap"
)

// MemberRoleRepository tracks which roles each member holds. The chat
// platform has no native role concept, so grants live here.
type MemberRoleRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewMemberRoleRepository creates a new member role repository
func NewMemberRoleRepository(db *sql.DB, logger *zap.Logger) *MemberRoleRepository {
	return &MemberRoleRepository{
		db:     db,
		logger: logger,
	}
}

// Has reports whether the member currently holds the role
func (r *MemberRoleRepository) Has(memberID, role string) (bool, error) {
	var n int
	err := r.db.QueryRow(
		"SELECT COUNT(*) FROM member_roles WHERE member_id = ? AND role = ?",
		memberID, role,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check role: %w", err)
	}
	return n > 0, nil
}

// Grant gives the member a role. Granting a role the member already
// holds is a no-op.
func (r *MemberRoleRepository) Grant(memberID, role string) error {
	_, err := r.db.Exec(
		"INSERT OR IGNORE INTO member_roles (member_id, role) VALUES (?, ?)",
		memberID, role,
	)
	if err != nil {
		r.logger.Error("Failed to grant role",
			zap.Error(err),
			zap.String("member_id", memberID),
			zap.String("role", role))
		return fmt.Errorf("failed to grant role: %w", err)
	}
	return nil
}

// Revoke removes a role from a member. Revoking a role the member does
// not hold is a no-op.
func (r *MemberRoleRepository) Revoke(memberID, role string) error {
	_, err := r.db.Exec(
		"DELETE FROM member_roles WHERE member_id = ? AND role = ?",
		memberID, role,
	)
	if err != nil {
		r.logger.Error("Failed to revoke role",
			zap.Error(err),
			zap.String("member_id", memberID),
			zap.String("role", role))
		return fmt.Errorf("failed to revoke role: %w", err)
	}
	return nil
}
