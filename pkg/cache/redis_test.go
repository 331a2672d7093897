package cache

import (
	"context"
	"strconv"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/feellog-api/pkg/config"
)

func TestNewRedisDisabled(t *testing.T) {
	client, err := NewRedis(context.Background(), config.RedisConfig{Enabled: false})
	require.NoError(t, err)
	assert.Nil(t, client)
}

func TestNewRedisConnects(t *testing.T) {
	s := miniredis.RunT(t)
	parts := strings.Split(s.Addr(), ":")
	port, err := strconv.Atoi(parts[1])
	require.NoError(t, err)

	client, err := NewRedis(context.Background(), config.RedisConfig{Enabled: true, Host: parts[0], Port: port})
	require.NoError(t, err)
	require.NotNil(t, client)
	defer client.Close()
}
