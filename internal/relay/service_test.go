package relay

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/otiai10/gatekeeper/internal/config"
	"github.com/otiai10/gatekeeper/internal/principal"
)

func newTestService(store Store, ttl time.Duration) *Service {
	return NewService(store, config.RelayConfig{
		TTL:          ttl,
		PollInterval: 10 * time.Millisecond,
		PollTimeout:  150 * time.Millisecond,
	})
}

var testDeposit = Deposit{
	PrincipalID: "usr-1",
	Role:        principal.RoleUser,
	Credential:  "custom-token",
	RedirectURL: "https://example.com/",
}

func TestService_DepositAndConsume(t *testing.T) {
	store := NewMemoryStore()
	svc := newTestService(store, time.Minute)
	ctx := context.Background()

	b, err := svc.Deposit(ctx, testDeposit)
	require.NoError(t, err)
	assert.NotEmpty(t, b.ID)
	assert.False(t, b.Used)
	assert.Equal(t, time.Minute, b.ExpiresAt.Sub(b.CreatedAt))

	got, err := svc.Consume(ctx, b.ID)
	require.NoError(t, err)
	assert.True(t, got.Used)
	assert.Equal(t, "custom-token", got.Credential)
	assert.Equal(t, "usr-1", got.PrincipalID)
	assert.Equal(t, principal.RoleUser, got.Role)
	assert.Equal(t, "https://example.com/", got.RedirectURL)

	_, err = svc.Consume(ctx, b.ID)
	assert.ErrorIs(t, err, ErrAlreadyUsed)
}

func TestService_DepositUsesFreshIDs(t *testing.T) {
	svc := newTestService(NewMemoryStore(), time.Minute)
	ctx := context.Background()

	a, err := svc.Deposit(ctx, testDeposit)
	require.NoError(t, err)
	b, err := svc.Deposit(ctx, testDeposit)
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID, "a second login for the same principal must not collide")
}

func TestService_DepositValidation(t *testing.T) {
	svc := newTestService(NewMemoryStore(), time.Minute)
	ctx := context.Background()

	_, err := svc.Deposit(ctx, Deposit{Role: principal.RoleUser, Credential: "x"})
	assert.Error(t, err)

	_, err = svc.Deposit(ctx, Deposit{PrincipalID: "u", Role: principal.RoleUser})
	assert.Error(t, err)

	_, err = svc.Deposit(ctx, Deposit{PrincipalID: "u", Role: "root", Credential: "x"})
	assert.ErrorIs(t, err, principal.ErrInvalidRole)
}

func TestService_ConcurrentConsumeExactlyOneWins(t *testing.T) {
	svc := newTestService(NewMemoryStore(), time.Minute)
	ctx := context.Background()

	b, err := svc.Deposit(ctx, testDeposit)
	require.NoError(t, err)

	const consumers = 32
	var (
		wins   atomic.Int32
		losses atomic.Int32
		wg     sync.WaitGroup
		start  = make(chan struct{})
	)
	for range consumers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := svc.Consume(ctx, b.ID)
			switch {
			case err == nil:
				wins.Add(1)
			case errors.Is(err, ErrAlreadyUsed):
				losses.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	assert.Equal(t, int32(consumers-1), losses.Load())
}

func TestService_ExpiredBundleIsDeleted(t *testing.T) {
	store := NewMemoryStore()
	svc := newTestService(store, 5*time.Second)
	ctx := context.Background()

	created := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	now := created
	svc.now = func() time.Time { return now }

	b, err := svc.Deposit(ctx, testDeposit)
	require.NoError(t, err)

	now = created.Add(6 * time.Second)
	_, err = svc.Consume(ctx, b.ID)
	assert.ErrorIs(t, err, ErrExpired)
	assert.Equal(t, 0, store.Len())

	_, err = svc.Consume(ctx, b.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestService_ValidAtExpiryInstant(t *testing.T) {
	svc := newTestService(NewMemoryStore(), 5*time.Second)
	ctx := context.Background()

	created := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	now := created
	svc.now = func() time.Time { return now }

	b, err := svc.Deposit(ctx, testDeposit)
	require.NoError(t, err)

	now = created.Add(5 * time.Second)
	_, err = svc.Consume(ctx, b.ID)
	assert.NoError(t, err)
}

func TestService_ConsumeMissing(t *testing.T) {
	svc := newTestService(NewMemoryStore(), time.Minute)

	_, err := svc.Consume(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = svc.Consume(context.Background(), "")
	assert.ErrorIs(t, err, ErrNotFound)
}

// lateStore hides a bundle until it has been polled a few times, as if the
// deposit write were still in flight.
type lateStore struct {
	*MemoryStore
	hiddenFor int32
	polls     atomic.Int32
}

func (s *lateStore) Consume(ctx context.Context, id string, now time.Time) (*Bundle, error) {
	if s.polls.Add(1) <= s.hiddenFor {
		return nil, ErrNotFound
	}
	return s.MemoryStore.Consume(ctx, id, now)
}

func TestService_AwaitRetriesUntilWritten(t *testing.T) {
	store := &lateStore{MemoryStore: NewMemoryStore(), hiddenFor: 3}
	svc := newTestService(store, time.Minute)
	ctx := context.Background()

	b, err := svc.Deposit(ctx, testDeposit)
	require.NoError(t, err)

	got, err := svc.Await(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, b.ID, got.ID)
	assert.Equal(t, int32(4), store.polls.Load())
}

func TestService_AwaitTimesOut(t *testing.T) {
	svc := newTestService(NewMemoryStore(), time.Minute)

	started := time.Now()
	_, err := svc.Await(context.Background(), "never-written")
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Less(t, time.Since(started), time.Second)
}

func TestService_AwaitStopsOnTerminalOutcome(t *testing.T) {
	store := NewMemoryStore()
	svc := newTestService(store, time.Minute)
	ctx := context.Background()

	b, err := svc.Deposit(ctx, testDeposit)
	require.NoError(t, err)
	_, err = svc.Consume(ctx, b.ID)
	require.NoError(t, err)

	started := time.Now()
	_, err = svc.Await(ctx, b.ID)
	assert.ErrorIs(t, err, ErrAlreadyUsed)
	assert.Less(t, time.Since(started), 100*time.Millisecond)
}

func TestService_AwaitHonorsCallerCancel(t *testing.T) {
	svc := newTestService(NewMemoryStore(), time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Await(ctx, "never-written")
	assert.ErrorIs(t, err, context.Canceled)
}
