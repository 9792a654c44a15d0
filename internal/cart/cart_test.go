package cart

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/fjod/meiduo/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupService(t *testing.T) *Service {
	store, _ := setupTestRedis(t)
	return NewService(store, NewCookieCodec(testSecret, time.Hour))
}

func TestCart_AddSumsQuantitiesForBothBackends(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()

	for name, c := range map[string]Cart{
		"anonymous": svc.Open(domain.Anonymous(), ""),
		"user":      svc.Open(domain.User(7), ""),
	} {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, c.Add(ctx, 10, 1, true))
			require.NoError(t, c.Add(ctx, 10, 2, true))
			require.NoError(t, c.Add(ctx, 10, 4, true))

			lines, err := c.List(ctx)
			require.NoError(t, err)
			assert.Equal(t, []domain.CartLine{{ProductID: 10, Quantity: 7, Selected: true}}, lines)
		})
	}
}

func TestCart_AnonymousAddOverwritesSelection(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()
	c := svc.Open(domain.Anonymous(), "")

	require.NoError(t, c.Add(ctx, 10, 1, true))
	require.NoError(t, c.Add(ctx, 10, 1, false))

	lines, err := c.List(ctx)
	require.NoError(t, err)
	assert.False(t, lines[0].Selected)
}

func TestCart_AnonymousTokenCarriesState(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()

	c := svc.Open(domain.Anonymous(), "")
	require.NoError(t, c.Add(ctx, 3, 2, true))
	require.NoError(t, c.Add(ctx, 5, 1, false))
	token, err := c.Token()
	require.NoError(t, err)

	reopened := svc.Open(domain.Anonymous(), token)
	require.NoError(t, reopened.Remove(ctx, 3))
	require.NoError(t, reopened.SetAllSelected(ctx, true))

	lines, err := reopened.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []domain.CartLine{{ProductID: 5, Quantity: 1, Selected: true}}, lines)
}

func TestCart_ReplaceIsIdempotent(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()
	c := svc.Open(domain.Anonymous(), "")

	require.NoError(t, c.Replace(ctx, 8, 4, true))
	first, _ := c.List(ctx)
	require.NoError(t, c.Replace(ctx, 8, 4, true))
	second, _ := c.List(ctx)

	assert.Equal(t, first, second)
}

func TestCart_Validation(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()
	c := svc.Open(domain.User(1), "")

	assert.ErrorIs(t, c.Add(ctx, 0, 1, true), ErrInvalidProduct)
	assert.ErrorIs(t, c.Add(ctx, 1, 0, true), ErrInvalidQuantity)
	assert.ErrorIs(t, c.Replace(ctx, 1, -1, true), ErrInvalidQuantity)
}

func TestCart_UserTokenIsEmpty(t *testing.T) {
	svc := setupService(t)
	token, err := svc.Open(domain.User(1), "ignored").Token()
	require.NoError(t, err)
	assert.Empty(t, token)
}

func TestMerge_AnonymousWinsConflicts(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()

	user := svc.Open(domain.User(1), "")
	require.NoError(t, user.Add(ctx, 'A', 2, true))
	require.NoError(t, user.Add(ctx, 'B', 1, false))

	anon := svc.Open(domain.Anonymous(), "")
	require.NoError(t, anon.Add(ctx, 'A', 5, false))
	require.NoError(t, anon.Add(ctx, 'C', 3, true))
	token, err := anon.Token()
	require.NoError(t, err)

	n, err := svc.Merge(ctx, 1, token)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	lines, err := user.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []domain.CartLine{
		{ProductID: 'A', Quantity: 5, Selected: false},
		{ProductID: 'B', Quantity: 1, Selected: false},
		{ProductID: 'C', Quantity: 3, Selected: true},
	}, lines)
}

func TestMerge_EmptyOrMalformedTokenIsNoop(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()

	user := svc.Open(domain.User(1), "")
	require.NoError(t, user.Add(ctx, 1, 1, true))

	for _, token := range []string{"", "not-a-cookie"} {
		n, err := svc.Merge(ctx, 1, token)
		require.NoError(t, err)
		assert.Equal(t, 0, n)
	}

	lines, err := user.List(ctx)
	require.NoError(t, err)
	assert.Len(t, lines, 1)
}

func TestCart_AnonymousCartIsCapped(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()
	c := svc.Open(domain.Anonymous(), "")

	// wide product ids and quantities give the largest cookie a full cart can produce
	for i := int64(0); i < MaxAnonymousLines; i++ {
		require.NoError(t, c.Add(ctx, 1_000_000_000_000_000+i, 9999, false))
	}

	assert.ErrorIs(t, c.Add(ctx, 7, 1, true), ErrCartFull)
	assert.ErrorIs(t, c.Replace(ctx, 7, 1, true), ErrCartFull)
	assert.NoError(t, c.Add(ctx, 1_000_000_000_000_000, 1, true), "existing lines can still grow")
	assert.NoError(t, c.Replace(ctx, 1_000_000_000_000_001, 5, true))

	token, err := c.Token()
	require.NoError(t, err)
	assert.Less(t, len(token), 4096)
	assert.Len(t, svc.Open(domain.Anonymous(), token).(*anonymousCart).lines, MaxAnonymousLines)
}

func TestCart_UserCartIsNotCapped(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()
	c := svc.Open(domain.User(3), "")

	for i := int64(1); i <= MaxAnonymousLines+5; i++ {
		require.NoError(t, c.Add(ctx, i, 1, true))
	}
	lines, err := c.List(ctx)
	require.NoError(t, err)
	assert.Len(t, lines, MaxAnonymousLines+5)
}

func TestUserCart_ListSeesOwnCompletedWrite(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()
	c := svc.Open(domain.User(5), "")

	// a read that started before the write and is still in flight
	release := make(chan struct{})
	inFlight := svc.sfg.DoChan(fmt.Sprintf("%d:%d", 5, svc.writes.Load()), func() (interface{}, error) {
		<-release
		return []domain.CartLine{}, nil
	})
	defer func() {
		close(release)
		<-inFlight
	}()

	require.NoError(t, c.Add(ctx, 10, 2, true))

	lines, err := c.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []domain.CartLine{{ProductID: 10, Quantity: 2, Selected: true}}, lines)
}

func TestUserCart_CancelledCallerDoesNotFailSharedRead(t *testing.T) {
	svc := setupService(t)
	c := svc.Open(domain.User(6), "")
	require.NoError(t, c.Add(context.Background(), 11, 1, false))

	release := make(chan struct{})
	svc.sfg.DoChan(fmt.Sprintf("%d:%d", 6, svc.writes.Load()), func() (interface{}, error) {
		<-release
		return svc.store.List(context.Background(), 6)
	})

	cancelled, cancel := context.WithCancel(context.Background())
	cancelledErr := make(chan error, 1)
	go func() {
		_, err := c.List(cancelled)
		cancelledErr <- err
	}()
	waiting := make(chan []domain.CartLine, 1)
	go func() {
		lines, err := c.List(context.Background())
		assert.NoError(t, err)
		waiting <- lines
	}()

	cancel()
	assert.ErrorIs(t, <-cancelledErr, context.Canceled)

	close(release)
	assert.Equal(t, []domain.CartLine{{ProductID: 11, Quantity: 1}}, <-waiting)
}
