package testutil

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/cory-johannsen/derby/internal/storage/redisstore"
)

// NewRedisStore starts an in-process Redis and returns a store bound to it.
// The server and client are closed when the test ends.
//
// Postcondition: Returns a ready Store and the server for time travel and
// direct key inspection.
func NewRedisStore(t *testing.T) (*redisstore.Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	s := redisstore.NewWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}), 16)
	t.Cleanup(func() { _ = s.Close() })
	return s, mr
}
