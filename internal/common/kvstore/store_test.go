package kvstore

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Shared behaviour
// ==========================

func exerciseStore(t *testing.T, s Store) {
	ctx := context.Background()

	_, ok, err := s.Get(ctx, "cache", "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(ctx, "cache", "k1", "v1"))
	v, ok, err := s.Get(ctx, "cache", "k1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v1", v)

	// namespaces are disjoint
	_, ok, err = s.Get(ctx, "other", "k1")
	require.NoError(t, err)
	assert.False(t, ok)

	list, err := s.GetList(ctx, "words", "shoe")
	require.NoError(t, err)
	assert.Nil(t, list)

	require.NoError(t, s.SetList(ctx, "words", "shoe", []string{"boots", "sandals"}))
	require.NoError(t, s.SetList(ctx, "words", "shoe", []string{"boots", "sandals", "sneakers"}))
	list, err = s.GetList(ctx, "words", "shoe")
	require.NoError(t, err)
	assert.Equal(t, []string{"boots", "sandals", "sneakers"}, list)

	require.NoError(t, s.SetList(ctx, "words", "shoe", nil))
	list, err = s.GetList(ctx, "words", "shoe")
	require.NoError(t, err)
	assert.Empty(t, list)

	assert.NoError(t, s.Sync(ctx))
}

func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore()
	exerciseStore(t, s)
	assert.Equal(t, 1, s.Len("cache"))
}

func TestMemoryStore_ListIsCopied(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	in := []string{"a", "b"}
	require.NoError(t, s.SetList(ctx, "ns", "k", in))
	in[0] = "mutated"

	out, err := s.GetList(ctx, "ns", "k")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, out)
}

func TestRedisStore_Miniredis(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	exerciseStore(t, NewRedisStore(client, "listing"))
	assert.True(t, mr.Exists("listing:cache:k1"))
}

// ==========================
// Error paths
// ==========================

func TestRedisStore_Errors(t *testing.T) {
	ctx := context.Background()
	client, mock := redismock.NewClientMock()
	s := NewRedisStore(client, "listing")

	mock.ExpectGet("listing:cache:k").SetErr(errors.New("connection reset"))
	_, _, err := s.Get(ctx, "cache", "k")
	assert.ErrorContains(t, err, "connection reset")

	mock.ExpectSet("listing:cache:k", "v", 0).SetErr(errors.New("readonly"))
	err = s.Set(ctx, "cache", "k", "v")
	assert.ErrorContains(t, err, "readonly")

	mock.ExpectLRange("listing:words:list:k", 0, -1).SetErr(errors.New("timeout"))
	_, err = s.GetList(ctx, "words", "k")
	assert.ErrorContains(t, err, "timeout")

	mock.ExpectPing().SetErr(errors.New("down"))
	assert.ErrorContains(t, s.Sync(ctx), "down")

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestKey(t *testing.T) {
	assert.Equal(t, "amazon|FR|fr|color_name|P1", Key("amazon", " FR", "fr ", "color_name", "P1"))
}
