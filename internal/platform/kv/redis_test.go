package kv

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
)

func TestOpen(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := Open(context.Background(), Options{Addr: mr.Addr()})
	require.NoError(t, err)
	defer client.Close()

	require.NoError(t, client.Set(context.Background(), "k", "v", 0).Err())
	mr.CheckGet(t, "k", "v")
}

func TestOpenUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := Open(context.Background(), Options{Addr: addr})
	require.Error(t, err)
}
