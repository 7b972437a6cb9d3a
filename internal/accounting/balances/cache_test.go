package balances

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*Cache, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCache(client, time.Minute), client
}

func TestCacheServesUntilInvalidated(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()
	companyID := uuid.New()
	var loads atomic.Int32
	loader := func(context.Context) ([]Balance, error) {
		n := loads.Add(1)
		return []Balance{{Code: "1000", Balance: decimal.NewFromInt(int64(n))}}, nil
	}

	first, err := c.Fetch(ctx, companyID, loader)
	require.NoError(t, err)
	second, err := c.Fetch(ctx, companyID, loader)
	require.NoError(t, err)
	require.Equal(t, int32(1), loads.Load())
	require.True(t, first[0].Balance.Equal(second[0].Balance))

	require.NoError(t, c.Invalidate(ctx, companyID))
	third, err := c.Fetch(ctx, companyID, loader)
	require.NoError(t, err)
	require.Equal(t, int32(2), loads.Load())
	require.Equal(t, "2", third[0].Balance.String())
}

func TestInvalidatePublishesBump(t *testing.T) {
	c, client := newTestCache(t)
	ctx := context.Background()
	companyID := uuid.New()

	sub := client.Subscribe(ctx, bumpChannel)
	t.Cleanup(func() { _ = sub.Close() })
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	before, err := c.Version(ctx, companyID)
	require.NoError(t, err)
	require.NoError(t, c.Invalidate(ctx, companyID))
	after, err := c.Version(ctx, companyID)
	require.NoError(t, err)
	require.Equal(t, before+1, after)

	select {
	case msg := <-sub.Channel():
		require.Contains(t, msg.Payload, companyID.String())
	case <-time.After(2 * time.Second):
		t.Fatal("no bump announced")
	}
}

func TestNilCacheCallsLoader(t *testing.T) {
	var c *Cache
	got, err := c.Fetch(context.Background(), uuid.New(), func(context.Context) ([]Balance, error) {
		return []Balance{{Code: "x"}}, nil
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.NoError(t, c.Invalidate(context.Background(), uuid.New()))
}
