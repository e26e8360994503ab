package services

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/novaangola/apiserver/config"
	"github.com/novaangola/apiserver/internal/db"
	"github.com/novaangola/apiserver/internal/events"
	"github.com/novaangola/apiserver/internal/metrics"
	"github.com/novaangola/apiserver/internal/store"
	"github.com/novaangola/apiserver/types"
)

func seededAreas(ids ...string) *fakeRiskAreaRepo {
	repo := &fakeRiskAreaRepo{}
	for _, id := range ids {
		repo.areas = append(repo.areas, types.RiskArea{ID: id})
	}
	return repo
}

func TestConfirmTwiceConflicts(t *testing.T) {
	ctx := context.Background()
	repo := newFakeConfirmationRepo()
	m := metrics.New()
	s := NewConfirmationService(seededAreas("area-1"), newFakeUserRepo(), repo, WithMetrics(m))

	_, err := s.Confirm(ctx, "area-1", "user-1")
	require.NoError(t, err)

	_, err = s.Confirm(ctx, "area-1", "user-1")
	assert.ErrorIs(t, err, ErrAlreadyConfirmed)
	assert.Len(t, repo.rows, 1)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Confirmations.WithLabelValues(metrics.OutcomeCreated)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Confirmations.WithLabelValues(metrics.OutcomeDuplicate)))
}

func TestConfirmDifferentUsers(t *testing.T) {
	ctx := context.Background()
	s := NewConfirmationService(seededAreas("area-1"), newFakeUserRepo(), newFakeConfirmationRepo())

	_, err := s.Confirm(ctx, "area-1", "user-1")
	require.NoError(t, err)
	_, err = s.Confirm(ctx, "area-1", "user-2")
	require.NoError(t, err)

	count, err := s.Count(ctx, "area-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestConfirmUnknownArea(t *testing.T) {
	repo := newFakeConfirmationRepo()
	s := NewConfirmationService(seededAreas("area-1"), newFakeUserRepo(), repo)

	_, err := s.Confirm(context.Background(), "missing", "user-1")
	assert.ErrorIs(t, err, ErrRiskAreaNotFound)

	_, err = s.Confirm(context.Background(), "", "user-1")
	assert.ErrorIs(t, err, ErrRiskAreaNotFound)
	assert.Empty(t, repo.rows)
}

func TestConfirmRequiresIdentity(t *testing.T) {
	_, err := NewConfirmationService(seededAreas("area-1"), newFakeUserRepo(), newFakeConfirmationRepo()).
		Confirm(context.Background(), "area-1", "")
	assert.ErrorIs(t, err, ErrIdentityRequired)
}

func TestConfirmMapsConstraintViolationToConflict(t *testing.T) {
	ctx := context.Background()
	repo := newFakeConfirmationRepo()
	repo.skipPrecheck = true
	s := NewConfirmationService(seededAreas("area-1"), newFakeUserRepo(), repo)

	_, err := s.Confirm(ctx, "area-1", "user-1")
	require.NoError(t, err)
	_, err = s.Confirm(ctx, "area-1", "user-1")
	assert.ErrorIs(t, err, ErrAlreadyConfirmed)
}

func TestConfirmReferenceViolationWithKnownUser(t *testing.T) {
	repo := newFakeConfirmationRepo()
	repo.createErr = errors.Join(store.ErrReference, errors.New("fk"))
	users := newFakeUserRepo()
	users.users["user-1"] = types.User{ID: "user-1"}
	s := NewConfirmationService(seededAreas("area-1"), users, repo)

	_, err := s.Confirm(context.Background(), "area-1", "user-1")
	assert.ErrorIs(t, err, ErrRiskAreaNotFound)
}

func TestConfirmFromDeletedUserRequiresIdentity(t *testing.T) {
	repo := newFakeConfirmationRepo()
	repo.createErr = errors.Join(store.ErrReference, errors.New("fk"))
	s := NewConfirmationService(seededAreas("area-1"), newFakeUserRepo(), repo)

	_, err := s.Confirm(context.Background(), "area-1", "ghost")
	assert.ErrorIs(t, err, ErrIdentityRequired)
	assert.NotErrorIs(t, err, ErrRiskAreaNotFound)
}

func TestConfirmStoreFailureIsInternal(t *testing.T) {
	repo := newFakeConfirmationRepo()
	repo.createErr = errors.New("disk gone")
	s := NewConfirmationService(seededAreas("area-1"), newFakeUserRepo(), repo)

	_, err := s.Confirm(context.Background(), "area-1", "user-1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrAlreadyConfirmed)
	assert.NotErrorIs(t, err, ErrRiskAreaNotFound)
}

func TestConfirmInvalidatesCacheAndPublishes(t *testing.T) {
	ctx := context.Background()
	cache := newFakeCountCache()
	publisher := &fakePublisher{}
	repo := newFakeConfirmationRepo()
	s := NewConfirmationService(seededAreas("area-1"), newFakeUserRepo(), repo, WithCountCache(cache), WithEvents(publisher))

	count, err := s.Count(ctx, "area-1")
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Equal(t, int64(0), cache.values["area-1"])

	_, err = s.Confirm(ctx, "area-1", "user-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"area-1"}, cache.invalidated)

	count, err = s.Count(ctx, "area-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	_, err = s.Count(ctx, "area-1")
	require.NoError(t, err)
	assert.Equal(t, 2, repo.countCalls, "second read is served from cache")

	require.Len(t, publisher.events, 1)
	assert.Equal(t, events.TypeRiskAreaConfirmed, publisher.events[0].Type)
	assert.Equal(t, "user-1", publisher.events[0].UserID)
}

func TestConfirmedEventCarriesCategory(t *testing.T) {
	category := types.CategorySeguranca
	areas := &fakeRiskAreaRepo{areas: []types.RiskArea{{ID: "area-1", Categoria: &category}}}
	publisher := &fakePublisher{}
	s := NewConfirmationService(areas, newFakeUserRepo(), newFakeConfirmationRepo(), WithEvents(publisher))

	_, err := s.Confirm(context.Background(), "area-1", "user-1")
	require.NoError(t, err)
	require.Len(t, publisher.events, 1)
	assert.Equal(t, string(types.CategorySeguranca), publisher.events[0].Categoria)
}

func TestStaleCountLastsAtMostOneTTL(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	cache := newFakeCountCache()
	cache.ttl = 30 * time.Second
	cache.now = func() time.Time { return now }
	repo := newFakeConfirmationRepo()
	s := NewConfirmationService(seededAreas("area-1"), newFakeUserRepo(), repo, WithCountCache(cache))

	// The reader takes the count, then the confirmation commits and
	// invalidates before the reader writes its stale value back.
	repo.afterCount = func() {
		_, err := s.Confirm(ctx, "area-1", "user-1")
		require.NoError(t, err)
	}
	count, err := s.Count(ctx, "area-1")
	require.NoError(t, err)
	assert.Zero(t, count)

	now = now.Add(29 * time.Second)
	count, err = s.Count(ctx, "area-1")
	require.NoError(t, err)
	assert.Zero(t, count, "stale value is served inside the TTL")

	now = now.Add(time.Second)
	count, err = s.Count(ctx, "area-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count, "stale value expires with the TTL")
}

func TestCountFallsBackWhenCacheFails(t *testing.T) {
	ctx := context.Background()
	cache := newFakeCountCache()
	cache.err = errors.New("redis down")
	s := NewConfirmationService(seededAreas("area-1"), newFakeUserRepo(), newFakeConfirmationRepo(), WithCountCache(cache))

	_, err := s.Confirm(ctx, "area-1", "user-1")
	require.NoError(t, err)

	count, err := s.Count(ctx, "area-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestCountLenientRead(t *testing.T) {
	repo := newFakeConfirmationRepo()
	s := NewConfirmationService(seededAreas(), newFakeUserRepo(), repo)

	count, err := s.Count(context.Background(), "")
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Zero(t, repo.countCalls, "empty id must not reach the store")

	count, err = s.Count(context.Background(), "unknown")
	require.NoError(t, err)
	assert.Zero(t, count)
}

// TestConcurrentConfirmOnSQLite drives the real store: N simultaneous confirms
// of one pair must leave exactly one row and N-1 conflicts.
func TestConcurrentConfirmOnSQLite(t *testing.T) {
	ctx := context.Background()
	cfg := config.Config{Database: config.DatabaseConfig{
		Driver: config.DriverSQLite,
		Path:   filepath.Join(t.TempDir(), "ledger.db"),
	}}
	require.NoError(t, db.MigrateUp(cfg))
	conn, err := db.Open(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	users := store.NewUserRepository(conn)
	areas := store.NewRiskAreaRepository(conn)
	confirmations := store.NewConfirmationRepository(conn)

	user, err := users.Create(ctx, types.User{ID: uuid.NewString(), Nome: "Ana", Email: "NIF1", Telefone: "900000001", PasswordHash: "x"})
	require.NoError(t, err)
	area, err := NewRiskAreaService(areas).Create(ctx, types.RiskArea{})
	require.NoError(t, err)

	s := NewConfirmationService(areas, users, confirmations)
	const goroutines = 50

	var wg sync.WaitGroup
	var successCount atomic.Int32
	var conflictCount atomic.Int32

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			_, err := s.Confirm(ctx, area.ID, user.ID)
			if err == nil {
				successCount.Add(1)
			} else if errors.Is(err, ErrAlreadyConfirmed) {
				conflictCount.Add(1)
			}
		}()
	}

	wg.Wait()

	assert.Equal(t, int32(1), successCount.Load(), "exactly one confirm should succeed")
	assert.Equal(t, int32(goroutines-1), conflictCount.Load(), "all others should conflict")

	count, err := s.Count(ctx, area.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}
