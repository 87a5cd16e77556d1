package database

import (
	"context"
	"fmt"
	"sort"
	"testing"

	mr "github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
)

func TestConnectRedis(t *testing.T) {
	m, err := mr.Run()
	require.NoError(t, err)
	defer m.Close()

	client, err := ConnectRedis(context.Background(), RedisOptions{Addr: m.Addr()})
	require.NoError(t, err)
	require.NoError(t, client.Close())
}

func TestConnectRedis_Unreachable(t *testing.T) {
	m, err := mr.Run()
	require.NoError(t, err)
	addr := m.Addr()
	m.Close()

	_, err = ConnectRedis(context.Background(), RedisOptions{Addr: addr})
	require.Error(t, err)
}

func TestScanAndDeleteKeys(t *testing.T) {
	m, err := mr.Run()
	require.NoError(t, err)
	defer m.Close()

	client, err := ConnectRedis(context.Background(), RedisOptions{Addr: m.Addr()})
	require.NoError(t, err)
	defer client.Close()

	for i := 0; i < 1200; i++ {
		require.NoError(t, m.Set(fmt.Sprintf("refresh_token:u1:%d", i), "x"))
	}
	require.NoError(t, m.Set("refresh_token:u2:1", "x"))

	ctx := context.Background()
	keys, err := ScanKeys(ctx, client, "refresh_token:u1:*")
	require.NoError(t, err)
	sort.Strings(keys)
	require.Len(t, keys, 1200)

	n, err := DeleteKeys(ctx, client, keys)
	require.NoError(t, err)
	require.Equal(t, 1200, n)
	require.True(t, m.Exists("refresh_token:u2:1"))

	n, err = DeleteKeys(ctx, client, nil)
	require.NoError(t, err)
	require.Zero(t, n)
}
