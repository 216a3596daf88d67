package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"watchbot/pkg/logx"
)

func openDriver(t *testing.T, driver string, limit int) Store {
	t.Helper()
	cfg := Config{Driver: driver, HistoryLimit: limit}
	switch driver {
	case "file":
		cfg.Path = filepath.Join(t.TempDir(), "state.json")
	case "sqlite":
		cfg.Path = filepath.Join(t.TempDir(), "state.db")
	case "redis":
		mr := miniredis.RunT(t)
		cfg.Redis = RedisConfig{Addr: mr.Addr()}
	}
	st, err := Open(cfg, logx.Nop())
	require.NoError(t, err)
	require.NotNil(t, st)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func delivery(i int, at time.Time) Delivery {
	return Delivery{
		ID:        fmt.Sprintf("d-%d", i),
		At:        at,
		Provider:  "telegram",
		Recipient: "123",
		Action:    "voice_join",
		Status:    StatusSent,
		Attempts:  1,
		Preview:   fmt.Sprintf("message %d", i),
	}
}

func TestStoreDrivers(t *testing.T) {
	for _, driver := range []string{"file", "sqlite", "redis"} {
		t.Run(driver, func(t *testing.T) {
			ctx := context.Background()
			st := openDriver(t, driver, 3)
			assert.Equal(t, driver, st.Driver())

			base := time.Now().Add(-time.Minute).Truncate(time.Millisecond)
			for i := 0; i < 5; i++ {
				require.NoError(t, st.AppendDelivery(ctx, delivery(i, base.Add(time.Duration(i)*time.Second))))
			}

			got, err := st.RecentDeliveries(ctx, 0)
			require.NoError(t, err)
			require.Len(t, got, 3)
			assert.Equal(t, "d-4", got[0].ID)
			assert.Equal(t, "d-3", got[1].ID)
			assert.Equal(t, "d-2", got[2].ID)
			assert.Equal(t, "message 4", got[0].Preview)
			assert.True(t, got[0].At.Equal(base.Add(4*time.Second)))

			got, err = st.RecentDeliveries(ctx, 1)
			require.NoError(t, err)
			require.Len(t, got, 1)
			assert.Equal(t, "d-4", got[0].ID)

			until := time.Now().Add(time.Hour).Truncate(time.Millisecond)
			require.NoError(t, st.PutDedup(ctx, "k1", until))
			at, ok, err := st.GetDedup(ctx, "k1")
			require.NoError(t, err)
			require.True(t, ok)
			assert.True(t, at.Equal(until))

			_, ok, err = st.GetDedup(ctx, "missing")
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, st.PutDedup(ctx, "", until))
		})
	}
}

func TestPruneDedup(t *testing.T) {
	for _, driver := range []string{"file", "sqlite"} {
		t.Run(driver, func(t *testing.T) {
			ctx := context.Background()
			st := openDriver(t, driver, 0)
			now := time.Now()
			require.NoError(t, st.PutDedup(ctx, "old", now.Add(-time.Minute)))
			require.NoError(t, st.PutDedup(ctx, "new", now.Add(time.Minute)))

			n, err := st.PruneDedup(ctx, now)
			require.NoError(t, err)
			assert.Equal(t, 1, n)

			_, ok, _ := st.GetDedup(ctx, "old")
			assert.False(t, ok)
			_, ok, _ = st.GetDedup(ctx, "new")
			assert.True(t, ok)
		})
	}
}

func TestRedisDedupExpires(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	st, err := Open(Config{Driver: "redis", Redis: RedisConfig{Addr: mr.Addr(), Prefix: "wb"}}, logx.Nop())
	require.NoError(t, err)
	defer st.Close()

	require.NoError(t, st.PutDedup(ctx, "k", time.Now().Add(10*time.Second)))
	assert.True(t, mr.Exists("wb:dedup:k"))

	mr.FastForward(11 * time.Second)
	_, ok, err := st.GetDedup(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	n, err := st.PruneDedup(ctx, time.Now())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestFileStoreReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.json")
	cfg := Config{Driver: "file", Path: path}

	st, err := Open(cfg, logx.Nop())
	require.NoError(t, err)
	require.NoError(t, st.AppendDelivery(ctx, delivery(1, time.Now())))
	require.NoError(t, st.PutDedup(ctx, "k", time.Now().Add(time.Hour)))
	require.NoError(t, st.Close())

	st, err = Open(cfg, logx.Nop())
	require.NoError(t, err)
	defer st.Close()

	got, err := st.RecentDeliveries(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "d-1", got[0].ID)

	_, ok, err := st.GetDedup(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestFileStoreClosed(t *testing.T) {
	st, err := Open(Config{Driver: "file", Path: filepath.Join(t.TempDir(), "s.json")}, logx.Nop())
	require.NoError(t, err)
	require.NoError(t, st.Close())
	assert.ErrorIs(t, st.AppendDelivery(context.Background(), delivery(1, time.Now())), ErrClosed)
}

func TestOpenDisabledAndUnknown(t *testing.T) {
	st, err := Open(Config{}, logx.Nop())
	require.NoError(t, err)
	assert.Nil(t, st)

	st, err = Open(Config{Driver: "none"}, logx.Nop())
	require.NoError(t, err)
	assert.Nil(t, st)

	_, err = Open(Config{Driver: "etcd"}, logx.Nop())
	assert.ErrorIs(t, err, ErrUnknownDriver)

	_, err = Open(Config{Driver: "file"}, logx.Nop())
	assert.Error(t, err)
}
