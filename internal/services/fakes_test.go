package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/novaangola/apiserver/internal/events"
	"github.com/novaangola/apiserver/internal/store"
	"github.com/novaangola/apiserver/types"
)

type fakeUserRepo struct {
	mu    sync.Mutex
	users map[string]types.User
	err   error
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[string]types.User)}
}

func (f *fakeUserRepo) GetByID(_ context.Context, id string) (types.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return types.User{}, f.err
	}
	u, ok := f.users[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	return u, nil
}

func (f *fakeUserRepo) GetByTelefone(_ context.Context, telefone string) (types.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return types.User{}, f.err
	}
	for _, u := range f.users {
		if u.Telefone == telefone {
			return u, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (f *fakeUserRepo) ExistsByEmailOrTelefone(_ context.Context, email, telefone string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, f.err
	}
	for _, u := range f.users {
		if u.Email == email || u.Telefone == telefone {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeUserRepo) Create(_ context.Context, user types.User) (types.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == user.Email || u.Telefone == user.Telefone {
			return types.User{}, store.ErrDuplicate
		}
	}
	f.users[user.ID] = user
	return user, nil
}

type fakeRiskAreaRepo struct {
	mu       sync.Mutex
	areas    []types.RiskArea
	users    map[string]bool
	attempts int
	err      error
}

func (f *fakeRiskAreaRepo) Create(_ context.Context, area types.RiskArea) (types.RiskArea, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts++
	if f.err != nil {
		return types.RiskArea{}, f.err
	}
	if area.UserID != nil && !f.users[*area.UserID] {
		return types.RiskArea{}, errors.Join(store.ErrReference, errors.New("fk"))
	}
	f.areas = append(f.areas, area)
	return area, nil
}

func (f *fakeRiskAreaRepo) List(_ context.Context) ([]types.RiskArea, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := make([]types.RiskArea, 0, len(f.areas))
	for i := len(f.areas) - 1; i >= 0; i-- {
		out = append(out, f.areas[i])
	}
	return out, nil
}

func (f *fakeRiskAreaRepo) Get(_ context.Context, id string) (types.RiskArea, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return types.RiskArea{}, f.err
	}
	for _, a := range f.areas {
		if a.ID == id {
			return a, nil
		}
	}
	return types.RiskArea{}, store.ErrNotFound
}

type pairKey struct{ area, user string }

// fakeConfirmationRepo enforces pair uniqueness in Create. skipPrecheck makes
// GetByPair always miss so the constraint path is exercised. afterCount runs
// once the count has been taken, before it is returned.
type fakeConfirmationRepo struct {
	mu           sync.Mutex
	rows         map[pairKey]types.Confirmation
	skipPrecheck bool
	createErr    error
	countCalls   int
	afterCount   func()
}

func newFakeConfirmationRepo() *fakeConfirmationRepo {
	return &fakeConfirmationRepo{rows: make(map[pairKey]types.Confirmation)}
}

func (f *fakeConfirmationRepo) GetByPair(_ context.Context, riskAreaID, userID string) (types.Confirmation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.skipPrecheck {
		return types.Confirmation{}, store.ErrNotFound
	}
	c, ok := f.rows[pairKey{riskAreaID, userID}]
	if !ok {
		return types.Confirmation{}, store.ErrNotFound
	}
	return c, nil
}

func (f *fakeConfirmationRepo) Create(_ context.Context, c types.Confirmation) (types.Confirmation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return types.Confirmation{}, f.createErr
	}
	key := pairKey{c.RiskAreaID, c.UserID}
	if _, ok := f.rows[key]; ok {
		return types.Confirmation{}, errors.Join(store.ErrDuplicate, errors.New("unique"))
	}
	f.rows[key] = c
	return c, nil
}

func (f *fakeConfirmationRepo) CountByRiskArea(_ context.Context, riskAreaID string) (int64, error) {
	f.mu.Lock()
	f.countCalls++
	var n int64
	for key := range f.rows {
		if key.area == riskAreaID {
			n++
		}
	}
	hook := f.afterCount
	f.afterCount = nil
	f.mu.Unlock()

	if hook != nil {
		hook()
	}
	return n, nil
}

// fakeCountCache expires entries after ttl when ttl is set, reading time
// from now.
type fakeCountCache struct {
	mu          sync.Mutex
	values      map[string]int64
	expires     map[string]time.Time
	invalidated []string
	err         error
	ttl         time.Duration
	now         func() time.Time
}

func newFakeCountCache() *fakeCountCache {
	return &fakeCountCache{
		values:  make(map[string]int64),
		expires: make(map[string]time.Time),
		now:     time.Now,
	}
}

func (f *fakeCountCache) Get(_ context.Context, id string) (int64, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, false, f.err
	}
	if exp, ok := f.expires[id]; ok && !f.now().Before(exp) {
		delete(f.values, id)
		delete(f.expires, id)
	}
	v, ok := f.values[id]
	return v, ok, nil
}

func (f *fakeCountCache) Set(_ context.Context, id string, count int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.values[id] = count
	if f.ttl > 0 {
		f.expires[id] = f.now().Add(f.ttl)
	}
	return nil
}

func (f *fakeCountCache) Invalidate(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalidated = append(f.invalidated, id)
	delete(f.values, id)
	return f.err
}

type fakePublisher struct {
	mu     sync.Mutex
	events []events.Event
	err    error
}

func (f *fakePublisher) Publish(_ context.Context, event events.Event) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.events = append(f.events, event)
	return "id", nil
}
