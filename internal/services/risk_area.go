package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/novaangola/apiserver/internal/events"
	"github.com/novaangola/apiserver/internal/store"
	"github.com/novaangola/apiserver/types"
)

// RiskAreaRepository defines persistence operations for risk areas.
type RiskAreaRepository interface {
	Create(ctx context.Context, area types.RiskArea) (types.RiskArea, error)
	List(ctx context.Context) ([]types.RiskArea, error)
}

// RiskAreaService encapsulates report submission and listing.
type RiskAreaService struct {
	repo RiskAreaRepository
	options
}

func NewRiskAreaService(repo RiskAreaRepository, opts ...Option) *RiskAreaService {
	return &RiskAreaService{repo: repo, options: newOptions(opts)}
}

// Create stores a report under a fresh id. Reports are never deduplicated.
// When the creator no longer exists the report is kept as anonymous.
func (s *RiskAreaService) Create(ctx context.Context, area types.RiskArea) (types.RiskArea, error) {
	area.ID = uuid.NewString()
	area.CreatedAt = s.timestamp()

	created, err := s.repo.Create(ctx, area)
	if err != nil && errors.Is(err, store.ErrReference) && area.UserID != nil {
		s.logger.WarnContext(ctx, "report creator not found, storing anonymously",
			"risk_area_id", area.ID,
			"user_id", *area.UserID,
		)
		area.UserID = nil
		created, err = s.repo.Create(ctx, area)
	}
	if err != nil {
		return types.RiskArea{}, fmt.Errorf("create risk area: %w", err)
	}

	s.metrics.IncReportsCreated()
	s.logger.InfoContext(ctx, "risk area reported", "risk_area_id", created.ID)

	event := events.Event{
		Type:       events.TypeRiskAreaCreated,
		RiskAreaID: created.ID,
		OccurredAt: created.CreatedAt,
	}
	if created.UserID != nil {
		event.UserID = *created.UserID
	}
	if created.Categoria != nil {
		event.Categoria = string(*created.Categoria)
	}
	s.publish(ctx, event)

	return created, nil
}

// List returns all reports, newest first.
func (s *RiskAreaService) List(ctx context.Context) ([]types.RiskArea, error) {
	areas, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list risk areas: %w", err)
	}
	return areas, nil
}
