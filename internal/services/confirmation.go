package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/novaangola/apiserver/internal/events"
	"github.com/novaangola/apiserver/internal/metrics"
	"github.com/novaangola/apiserver/internal/store"
	"github.com/novaangola/apiserver/types"
)

// RiskAreaLookup loads a risk area. A missing one returns store.ErrNotFound.
type RiskAreaLookup interface {
	Get(ctx context.Context, id string) (types.RiskArea, error)
}

// UserLookup loads a user. A missing one returns store.ErrNotFound.
type UserLookup interface {
	GetByID(ctx context.Context, id string) (types.User, error)
}

// ConfirmationRepository defines persistence operations for confirmations.
// Create must return store.ErrDuplicate when the pair already exists.
type ConfirmationRepository interface {
	GetByPair(ctx context.Context, riskAreaID, userID string) (types.Confirmation, error)
	Create(ctx context.Context, c types.Confirmation) (types.Confirmation, error)
	CountByRiskArea(ctx context.Context, riskAreaID string) (int64, error)
}

// ConfirmationService is the confirmation ledger: one confirmation per user
// per risk area, and a public count per risk area.
type ConfirmationService struct {
	areas RiskAreaLookup
	users UserLookup
	repo  ConfirmationRepository
	options
}

func NewConfirmationService(areas RiskAreaLookup, users UserLookup, repo ConfirmationRepository, opts ...Option) *ConfirmationService {
	return &ConfirmationService{areas: areas, users: users, repo: repo, options: newOptions(opts)}
}

// Confirm records that userID vouches for riskAreaID.
//
// The pair lookup only saves a write in the common case. Two concurrent calls
// can both pass it; the unique constraint then rejects the second insert and
// that rejection is reported as ErrAlreadyConfirmed as well.
func (s *ConfirmationService) Confirm(ctx context.Context, riskAreaID, userID string) (types.Confirmation, error) {
	if userID == "" {
		return types.Confirmation{}, ErrIdentityRequired
	}
	if riskAreaID == "" {
		return types.Confirmation{}, ErrRiskAreaNotFound
	}

	area, err := s.areas.Get(ctx, riskAreaID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.Confirmation{}, ErrRiskAreaNotFound
		}
		return types.Confirmation{}, fmt.Errorf("load risk area: %w", err)
	}

	if _, err := s.repo.GetByPair(ctx, riskAreaID, userID); err == nil {
		s.metrics.IncConfirmation(metrics.OutcomeDuplicate)
		return types.Confirmation{}, ErrAlreadyConfirmed
	} else if !errors.Is(err, store.ErrNotFound) {
		return types.Confirmation{}, fmt.Errorf("check confirmation: %w", err)
	}

	confirmation, err := s.repo.Create(ctx, types.Confirmation{
		ID:         uuid.NewString(),
		RiskAreaID: riskAreaID,
		UserID:     userID,
		CreatedAt:  s.timestamp(),
	})
	if err != nil {
		switch {
		case errors.Is(err, store.ErrDuplicate):
			s.metrics.IncConfirmation(metrics.OutcomeDuplicate)
			return types.Confirmation{}, ErrAlreadyConfirmed
		case errors.Is(err, store.ErrReference):
			return types.Confirmation{}, s.missingReference(ctx, riskAreaID, userID)
		default:
			return types.Confirmation{}, fmt.Errorf("create confirmation: %w", err)
		}
	}

	s.metrics.IncConfirmation(metrics.OutcomeCreated)
	s.invalidateCount(ctx, riskAreaID)
	s.logger.InfoContext(ctx, "risk area confirmed",
		"risk_area_id", riskAreaID,
		"user_id", userID,
	)
	event := events.Event{
		Type:       events.TypeRiskAreaConfirmed,
		RiskAreaID: riskAreaID,
		UserID:     userID,
		OccurredAt: confirmation.CreatedAt,
	}
	if area.Categoria != nil {
		event.Categoria = string(*area.Categoria)
	}
	s.publish(ctx, event)

	return confirmation, nil
}

// Count returns the number of confirmations for riskAreaID. An empty or
// unknown id counts zero.
func (s *ConfirmationService) Count(ctx context.Context, riskAreaID string) (int64, error) {
	if riskAreaID == "" {
		return 0, nil
	}

	if s.counts != nil {
		count, ok, err := s.counts.Get(ctx, riskAreaID)
		if err != nil {
			s.logger.WarnContext(ctx, "count cache read failed",
				"risk_area_id", riskAreaID,
				"error", err,
			)
		} else if ok {
			return count, nil
		}
	}

	count, err := s.repo.CountByRiskArea(ctx, riskAreaID)
	if err != nil {
		return 0, fmt.Errorf("count confirmations: %w", err)
	}

	if s.counts != nil {
		if err := s.counts.Set(ctx, riskAreaID, count); err != nil {
			s.logger.WarnContext(ctx, "count cache write failed",
				"risk_area_id", riskAreaID,
				"error", err,
			)
		}
	}
	return count, nil
}

// missingReference names the side of a foreign-key failure. The area was
// loaded just before the insert, so a user deleted after its token was
// issued is the usual cause.
func (s *ConfirmationService) missingReference(ctx context.Context, riskAreaID, userID string) error {
	if _, err := s.users.GetByID(ctx, userID); errors.Is(err, store.ErrNotFound) {
		s.logger.WarnContext(ctx, "confirmation from unknown user",
			"risk_area_id", riskAreaID,
			"user_id", userID,
		)
		return ErrIdentityRequired
	}
	return ErrRiskAreaNotFound
}

// invalidateCount runs after the insert commits. A Count that read the store
// before the commit may still write the old value afterwards; the cache TTL
// bounds how long that value is served.
func (s *ConfirmationService) invalidateCount(ctx context.Context, riskAreaID string) {
	if s.counts == nil {
		return
	}
	if err := s.counts.Invalidate(ctx, riskAreaID); err != nil {
		s.logger.WarnContext(ctx, "failed to invalidate cached count",
			"risk_area_id", riskAreaID,
			"error", err,
		)
	}
}
