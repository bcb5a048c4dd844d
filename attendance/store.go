// Package attendance provides the set-valued store behind the check-in
// protocol. All attendance mutations in the system go through AddMember;
// no other write shape touches these sets.
package attendance

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Collections. Each holds one set per key; together they form the two sides
// of the event/subject attendance relation.
const (
	// EventAttendees maps an event ID to the set of checked-in subject IDs.
	EventAttendees = "event-attendees"
	// SubjectAttendance maps a subject ID to the set of attended event IDs.
	SubjectAttendance = "subject-attendance"
)

// Store is the narrow contract the check-in coordinator depends on.
// AddMember is an idempotent set-add upsert: it creates the parent set on
// first write and reports whether the member was newly inserted. That
// inserted flag is the only duplicate-suppression primitive the coordinator
// has, so implementations must make it atomic per key.
type Store interface {
	AddMember(ctx context.Context, collection, key, member string) (inserted bool, err error)
	IsMember(ctx context.Context, collection, key, member string) (bool, error)
	Members(ctx context.Context, collection, key string) ([]string, error)
	Keys(ctx context.Context, collection string) ([]string, error)
	Close() error
}

// RedisStore implements Store on Redis sets. SADD gives the required
// "add and report whether new" semantics with per-key atomicity.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to Redis with short timeouts; a scanner waiting on
// a slow store is worse than a scanner seeing an error.
func NewRedisStore(addr string) *RedisStore {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  1 * time.Second,
		WriteTimeout: 1 * time.Second,
	})
	return &RedisStore{client: client}
}

// NewRedisStoreFromClient wraps an existing client. Used by tests.
func NewRedisStoreFromClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func setKey(collection, key string) string {
	return collection + ":" + key
}

func (s *RedisStore) AddMember(ctx context.Context, collection, key, member string) (bool, error) {
	added, err := s.client.SAdd(ctx, setKey(collection, key), member).Result()
	if err != nil {
		return false, err
	}
	return added == 1, nil
}

func (s *RedisStore) IsMember(ctx context.Context, collection, key, member string) (bool, error) {
	return s.client.SIsMember(ctx, setKey(collection, key), member).Result()
}

func (s *RedisStore) Members(ctx context.Context, collection, key string) ([]string, error) {
	return s.client.SMembers(ctx, setKey(collection, key)).Result()
}

// Keys returns every key with at least one member in the collection.
func (s *RedisStore) Keys(ctx context.Context, collection string) ([]string, error) {
	prefix := collection + ":"
	var keys []string
	iter := s.client.Scan(ctx, 0, prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, strings.TrimPrefix(iter.Val(), prefix))
	}
	return keys, iter.Err()
}

// Ping verifies connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
