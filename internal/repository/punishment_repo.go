package repository

import (
	"database/sql"
	"fmt"

	"github.com/nia-ops/warden/internal/models"
	"go.uber.org/zap"
)

// PunishmentRepository handles disciplinary record database operations
type PunishmentRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPunishmentRepository creates a new punishment repository
func NewPunishmentRepository(db *sql.DB, logger *zap.Logger) *PunishmentRepository {
	return &PunishmentRepository{
		db:     db,
		logger: logger,
	}
}

// Create records a new punishment and fills in its generated ID. The
// punishment type must be one of the assignable types.
func (r *PunishmentRepository) Create(p *models.Punishment) error {
	if !models.ValidPunishmentType(p.Type) {
		return fmt.Errorf("invalid punishment type: %s", p.Type)
	}

	query := `
		INSERT INTO punishments (
			member_id, member_name, type, reason, executor_id, executor_name
		) VALUES (?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.Exec(query,
		p.MemberID,
		p.MemberName,
		p.Type,
		p.Reason,
		p.ExecutorID,
		p.ExecutorName,
	)
	if err != nil {
		r.logger.Error("Failed to create punishment record", zap.Error(err))
		return fmt.Errorf("failed to create punishment: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	p.ID = id
	return nil
}

// GetByMemberID retrieves all punishments for a member, oldest first
func (r *PunishmentRepository) GetByMemberID(memberID string) ([]*models.Punishment, error) {
	query := `
		SELECT id, member_id, member_name, type, reason, executor_id, executor_name, created_at
		FROM punishments
		WHERE member_id = ?
		ORDER BY created_at ASC
	`

	rows, err := r.db.Query(query, memberID)
	if err != nil {
		r.logger.Error("Failed to query punishments", zap.Error(err), zap.String("member_id", memberID))
		return nil, fmt.Errorf("failed to query punishments: %w", err)
	}
	defer rows.Close()

	var punishments []*models.Punishment
	for rows.Next() {
		p := &models.Punishment{}
		err := rows.Scan(
			&p.ID,
			&p.MemberID,
			&p.MemberName,
			&p.Type,
			&p.Reason,
			&p.ExecutorID,
			&p.ExecutorName,
			&p.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan punishment: %w", err)
		}
		punishments = append(punishments, p)
	}

	return punishments, rows.Err()
}

// GetByID retrieves a single punishment record
func (r *PunishmentRepository) GetByID(id int64) (*models.Punishment, error) {
	query := `
		SELECT id, member_id, member_name, type, reason, executor_id, executor_name, created_at
		FROM punishments
		WHERE id = ?
	`

	p := &models.Punishment{}
	err := r.db.QueryRow(query, id).Scan(
		&p.ID,
		&p.MemberID,
		&p.MemberName,
		&p.Type,
		&p.Reason,
		&p.ExecutorID,
		&p.ExecutorName,
		&p.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get punishment: %w", err)
	}

	return p, nil
}

// Delete removes a punishment record by ID
func (r *PunishmentRepository) Delete(id int64) error {
	result, err := r.db.Exec("DELETE FROM punishments WHERE id = ?", id)
	if err != nil {
		r.logger.Error("Failed to delete punishment", zap.Error(err), zap.Int64("id", id))
		return fmt.Errorf("failed to delete punishment: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("punishment %d not found", id)
	}

	return nil
}

// CountByMember returns how many punishments of each type a member has
func (r *PunishmentRepository) CountByMember(memberID string) (map[string]int, error) {
	query := `
		SELECT type, COUNT(*)
		FROM punishments
		WHERE member_id = ?
		GROUP BY type
	`

	rows, err := r.db.Query(query, memberID)
	if err != nil {
		return nil, fmt.Errorf("failed to count punishments: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var t string
		var n int
		if err := rows.Scan(&t, &n); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		counts[t] = n
	}

	return counts, rows.Err()
}
