package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/novaangola/apiserver/types"
)

const riskAreaColumns = `id, imagem, chuva, temperatura, tempo, endereco_formatado, lat, log, categoria, respostas, classificacao, user_id, created_at`

// RiskAreaRepository handles persistence for risk area reports.
type RiskAreaRepository struct {
	db *sql.DB
}

func NewRiskAreaRepository(db *sql.DB) *RiskAreaRepository {
	return &RiskAreaRepository{db: db}
}

// List returns every report, newest first.
func (r *RiskAreaRepository) List(ctx context.Context) ([]types.RiskArea, error) {
	const query = `
		SELECT ` + riskAreaColumns + `
		FROM risk_areas
		ORDER BY created_at DESC, id DESC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	areas := make([]types.RiskArea, 0)
	for rows.Next() {
		area, err := scanRiskArea(rows)
		if err != nil {
			return nil, err
		}
		areas = append(areas, area)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return areas, nil
}

func (r *RiskAreaRepository) Get(ctx context.Context, id string) (types.RiskArea, error) {
	const query = `
		SELECT ` + riskAreaColumns + `
		FROM risk_areas
		WHERE id = $1`
	area, err := scanRiskArea(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.RiskArea{}, ErrNotFound
		}
		return types.RiskArea{}, err
	}
	return area, nil
}

// Create inserts the report. A user_id that matches no user returns
// ErrReference.
func (r *RiskAreaRepository) Create(ctx context.Context, area types.RiskArea) (types.RiskArea, error) {
	if area.CreatedAt.IsZero() {
		area.CreatedAt = time.Now().UTC().Truncate(time.Microsecond)
	}

	const query = `
		INSERT INTO risk_areas (` + riskAreaColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`
	if _, err := r.db.ExecContext(
		ctx,
		query,
		area.ID,
		area.Imagem,
		area.Chuva,
		area.Temperatura,
		area.Tempo,
		area.EnderecoFormatado,
		area.Lat,
		area.Lng,
		area.Categoria,
		area.Respostas,
		area.Classificacao,
		area.UserID,
		area.CreatedAt,
	); err != nil {
		return types.RiskArea{}, translate(err)
	}
	return area, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRiskArea(row rowScanner) (types.RiskArea, error) {
	var area types.RiskArea
	err := row.Scan(
		&area.ID,
		&area.Imagem,
		&area.Chuva,
		&area.Temperatura,
		&area.Tempo,
		&area.EnderecoFormatado,
		&area.Lat,
		&area.Lng,
		&area.Categoria,
		&area.Respostas,
		&area.Classificacao,
		&area.UserID,
		&area.CreatedAt,
	)
	return area, err
}
