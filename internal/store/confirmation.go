package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/novaangola/apiserver/types"
)

// ConfirmationRepository handles persistence for confirmations.
// The (risk_area_id, user_id) pair is unique in the schema; Create relies on
// that constraint rather than on GetByPair.
type ConfirmationRepository struct {
	db *sql.DB
}

func NewConfirmationRepository(db *sql.DB) *ConfirmationRepository {
	return &ConfirmationRepository{db: db}
}

func (r *ConfirmationRepository) GetByPair(ctx context.Context, riskAreaID, userID string) (types.Confirmation, error) {
	const query = `
		SELECT id, risk_area_id, user_id, created_at
		FROM confirmations
		WHERE risk_area_id = $1 AND user_id = $2`
	var c types.Confirmation
	err := r.db.QueryRowContext(ctx, query, riskAreaID, userID).Scan(
		&c.ID,
		&c.RiskAreaID,
		&c.UserID,
		&c.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Confirmation{}, ErrNotFound
		}
		return types.Confirmation{}, err
	}
	return c, nil
}

// Create inserts the confirmation. A second row for the same pair returns
// ErrDuplicate; a missing risk area or user returns ErrReference.
func (r *ConfirmationRepository) Create(ctx context.Context, c types.Confirmation) (types.Confirmation, error) {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC().Truncate(time.Microsecond)
	}

	const query = `
		INSERT INTO confirmations (id, risk_area_id, user_id, created_at)
		VALUES ($1, $2, $3, $4)`
	if _, err := r.db.ExecContext(ctx, query, c.ID, c.RiskAreaID, c.UserID, c.CreatedAt); err != nil {
		return types.Confirmation{}, translate(err)
	}
	return c, nil
}

func (r *ConfirmationRepository) CountByRiskArea(ctx context.Context, riskAreaID string) (int64, error) {
	const query = `SELECT COUNT(1) FROM confirmations WHERE risk_area_id = $1`
	var count int64
	if err := r.db.QueryRowContext(ctx, query, riskAreaID).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}
