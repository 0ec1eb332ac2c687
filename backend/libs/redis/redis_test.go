package redis

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRedisClientPings(t *testing.T) {
	srv := miniredis.RunT(t)
	client, err := NewRedisClient(Options{Addr: srv.Addr()})
	require.NoError(t, err)
	defer client.Close()
}

func TestNewRedisClientRejectsEmptyAddr(t *testing.T) {
	_, err := NewRedisClient(Options{Addr: "  "})
	assert.Error(t, err)
}
