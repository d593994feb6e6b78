package repository

import (
	"database/sql"
	"fmt"

	"github.com/nia-ops/warden/internal/models"
	"go.uber.org/zap"
)

// OfficerRepository handles roster member database operations
type OfficerRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewOfficerRepository creates a new officer repository
func NewOfficerRepository(db *sql.DB, logger *zap.Logger) *OfficerRepository {
	return &OfficerRepository{
		db:     db,
		logger: logger,
	}
}

// Create records a newly onboarded officer
func (r *OfficerRepository) Create(o *models.Officer) error {
	query := `
		INSERT INTO officers (member_id, name, badge_number, timezone)
		VALUES (?, ?, ?, ?)
	`

	result, err := r.db.Exec(query, o.MemberID, o.Name, o.BadgeNumber, o.Timezone)
	if err != nil {
		r.logger.Error("Failed to create officer", zap.Error(err), zap.String("member_id", o.MemberID))
		return fmt.Errorf("failed to create officer: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	o.ID = id
	return nil
}

// GetByMemberID retrieves an officer by platform member ID, nil when absent
func (r *OfficerRepository) GetByMemberID(memberID string) (*models.Officer, error) {
	query := `
		SELECT id, member_id, name, badge_number, timezone, onboarded_at
		FROM officers
		WHERE member_id = ?
	`

	o := &models.Officer{}
	err := r.db.QueryRow(query, memberID).Scan(
		&o.ID,
		&o.MemberID,
		&o.Name,
		&o.BadgeNumber,
		&o.Timezone,
		&o.OnboardedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get officer: %w", err)
	}

	return o, nil
}

// GetByBadge retrieves an officer by badge number, nil when absent
func (r *OfficerRepository) GetByBadge(badge string) (*models.Officer, error) {
	query := `
		SELECT id, member_id, name, badge_number, timezone, onboarded_at
		FROM officers
		WHERE badge_number = ?
	`

	o := &models.Officer{}
	err := r.db.QueryRow(query, badge).Scan(
		&o.ID,
		&o.MemberID,
		&o.Name,
		&o.BadgeNumber,
		&o.Timezone,
		&o.OnboardedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get officer: %w", err)
	}

	return o, nil
}

// Delete removes an officer by platform member ID
func (r *OfficerRepository) Delete(memberID string) error {
	result, err := r.db.Exec("DELETE FROM officers WHERE member_id = ?", memberID)
	if err != nil {
		r.logger.Error("Failed to delete officer", zap.Error(err), zap.String("member_id", memberID))
		return fmt.Errorf("failed to delete officer: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("officer %s not found", memberID)
	}

	return nil
}
