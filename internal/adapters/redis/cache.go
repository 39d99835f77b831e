package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache backs the advisory availability endpoint. Entries are short-lived
// and invalidated on every write to the room, but a stale hit is harmless:
// availability reads are never binding, only the store's transactional
// create is.
type Cache struct {
	client *redis.Client
}

func NewCache(client *redis.Client) *Cache {
	return &Cache{client: client}
}

func (c *Cache) Client() *redis.Client {
	return c.client
}

func availabilityKey(roomID, checkIn, checkOut string) string {
	return "avail:" + roomID + ":" + checkIn + ":" + checkOut
}

// GetAvailability returns (available, hit, err).
func (c *Cache) GetAvailability(ctx context.Context, roomID, checkIn, checkOut string) (bool, bool, error) {
	val, err := c.client.Get(ctx, availabilityKey(roomID, checkIn, checkOut)).Result()
	if err == redis.Nil {
		return false, false, nil
	}
	if err != nil {
		return false, false, err
	}
	return val == "1", true, nil
}

func (c *Cache) SetAvailability(ctx context.Context, roomID, checkIn, checkOut string, available bool, ttl time.Duration) error {
	val := "0"
	if available {
		val = "1"
	}
	return c.client.Set(ctx, availabilityKey(roomID, checkIn, checkOut), val, ttl).Err()
}

// InvalidateRoom drops every cached availability answer for a room. Called
// after any write that changes the room's active set.
func (c *Cache) InvalidateRoom(ctx context.Context, roomID string) error {
	iter := c.client.Scan(ctx, 0, "avail:"+roomID+":*", 100).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			return err
		}
	}
	return iter.Err()
}
