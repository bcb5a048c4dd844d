package attendance

import (
	"context"
	"sort"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func setupTestStore(t *testing.T) *RedisStore {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisStoreFromClient(client)
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}

func TestAddMemberReportsNovelty(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	inserted, err := store.AddMember(ctx, EventAttendees, "hack-day-1", "user-42")
	if err != nil {
		t.Fatalf("Could not add member: %v", err)
	}
	if !inserted {
		t.Fatal("First add should report an insertion")
	}

	// Adding an already-present member is a no-op and must say so.
	inserted, err = store.AddMember(ctx, EventAttendees, "hack-day-1", "user-42")
	if err != nil {
		t.Fatalf("Could not re-add member: %v", err)
	}
	if inserted {
		t.Fatal("Second add should not report an insertion")
	}

	members, err := store.Members(ctx, EventAttendees, "hack-day-1")
	if err != nil {
		t.Fatalf("Could not list members: %v", err)
	}
	if len(members) != 1 || members[0] != "user-42" {
		t.Fatalf("Expected exactly one member, got %v", members)
	}
}

func TestIsMember(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	ok, err := store.IsMember(ctx, EventAttendees, "hack-day-1", "user-42")
	if err != nil {
		t.Fatalf("Could not query member: %v", err)
	}
	if ok {
		t.Fatal("Member should not exist before any add")
	}

	if _, err := store.AddMember(ctx, EventAttendees, "hack-day-1", "user-42"); err != nil {
		t.Fatalf("Could not add member: %v", err)
	}

	ok, err = store.IsMember(ctx, EventAttendees, "hack-day-1", "user-42")
	if err != nil {
		t.Fatalf("Could not query member: %v", err)
	}
	if !ok {
		t.Fatal("Member should exist after add")
	}
}

func TestCollectionsAreIndependent(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	if _, err := store.AddMember(ctx, EventAttendees, "hack-day-1", "user-42"); err != nil {
		t.Fatalf("Could not add member: %v", err)
	}

	// The same key in the other collection must be untouched.
	ok, err := store.IsMember(ctx, SubjectAttendance, "hack-day-1", "user-42")
	if err != nil {
		t.Fatalf("Could not query member: %v", err)
	}
	if ok {
		t.Fatal("Collections must not share sets")
	}
}

func TestKeys(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	for _, eventID := range []string{"hack-day-1", "hack-day-2", "workshop-3"} {
		if _, err := store.AddMember(ctx, EventAttendees, eventID, "user-42"); err != nil {
			t.Fatalf("Could not add member: %v", err)
		}
	}
	if _, err := store.AddMember(ctx, SubjectAttendance, "user-42", "hack-day-1"); err != nil {
		t.Fatalf("Could not add member: %v", err)
	}

	keys, err := store.Keys(ctx, EventAttendees)
	if err != nil {
		t.Fatalf("Could not list keys: %v", err)
	}
	sort.Strings(keys)
	want := []string{"hack-day-1", "hack-day-2", "workshop-3"}
	if len(keys) != len(want) {
		t.Fatalf("Expected %d keys, got %v", len(want), keys)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Fatalf("Expected keys %v, got %v", want, keys)
		}
	}
}
