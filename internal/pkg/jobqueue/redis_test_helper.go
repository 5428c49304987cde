package jobqueue

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// newTestQueue returns a queue on an in-memory Redis and a settable clock.
func newTestQueue(t *testing.T) (*Queue, *miniredis.Miniredis, *time.Time) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	now := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)
	q := NewQueueWithClient(client, 1)
	q.now = func() time.Time { return now }
	return q, mr, &now
}
