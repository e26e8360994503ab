package services

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/novaangola/apiserver/internal/metrics"
	"github.com/novaangola/apiserver/internal/store"
	"github.com/novaangola/apiserver/types"
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	GetByTelefone(ctx context.Context, telefone string) (types.User, error)
	ExistsByEmailOrTelefone(ctx context.Context, email, telefone string) (bool, error)
	Create(ctx context.Context, user types.User) (types.User, error)
}

// MaxPasswordBytes is the longest password bcrypt hashes in full.
const MaxPasswordBytes = 72

// RegisterInput holds the signup fields after trimming.
type RegisterInput struct {
	Nome     string
	Email    string
	Telefone string
	Password string
}

// UserService encapsulates account use-cases.
type UserService struct {
	repo     UserRepository
	hashCost int
	options

	dummyOnce sync.Once
	dummyHash []byte
}

func NewUserService(repo UserRepository, opts ...Option) *UserService {
	return &UserService{
		repo:     repo,
		hashCost: bcrypt.DefaultCost,
		options:  newOptions(opts),
	}
}

// Register creates an account. Email and Telefone must both be unused.
func (s *UserService) Register(ctx context.Context, in RegisterInput) (types.User, error) {
	if len(in.Password) > MaxPasswordBytes {
		return types.User{}, ErrPasswordTooLong
	}

	exists, err := s.repo.ExistsByEmailOrTelefone(ctx, in.Email, in.Telefone)
	if err != nil {
		return types.User{}, fmt.Errorf("check account: %w", err)
	}
	if exists {
		return types.User{}, ErrAccountExists
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.hashCost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return types.User{}, ErrPasswordTooLong
		}
		return types.User{}, fmt.Errorf("hash password: %w", err)
	}

	user, err := s.repo.Create(ctx, types.User{
		ID:           uuid.NewString(),
		Nome:         in.Nome,
		Email:        in.Email,
		Telefone:     in.Telefone,
		PasswordHash: string(hashed),
		CreatedAt:    s.timestamp(),
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return types.User{}, ErrAccountExists
		}
		return types.User{}, fmt.Errorf("create user: %w", err)
	}

	s.metrics.IncSignups()
	s.logger.InfoContext(ctx, "account created", "user_id", user.ID)
	return user, nil
}

// Authenticate checks the phone and password pair. Unknown phones and wrong
// passwords both return ErrInvalidCredentials after a bcrypt comparison.
func (s *UserService) Authenticate(ctx context.Context, telefone, password string) (types.User, error) {
	user, err := s.repo.GetByTelefone(ctx, telefone)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			_ = bcrypt.CompareHashAndPassword(s.dummy(), []byte(password))
			s.metrics.IncLogin(metrics.OutcomeFailure)
			return types.User{}, ErrInvalidCredentials
		}
		return types.User{}, fmt.Errorf("load user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		s.metrics.IncLogin(metrics.OutcomeFailure)
		return types.User{}, ErrInvalidCredentials
	}

	s.metrics.IncLogin(metrics.OutcomeSuccess)
	return user, nil
}

func (s *UserService) dummy() []byte {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = bcrypt.GenerateFromPassword([]byte("nova-angola"), s.hashCost)
	})
	return s.dummyHash
}
