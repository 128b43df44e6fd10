package handoff

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dkeye/Lobby/internal/domain"
	"github.com/redis/go-redis/v9"
)

func TestMemStore_SaveLoadDelete(t *testing.T) {
	ctx := context.Background()
	ms := NewMemStore()
	p := domain.SessionParams{UserName: "alice1", MeetingRoom: "demoRoom", HostName: "h", Token: "t"}

	if _, err := ms.Load(ctx, "c1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Load before Save: got %v, want ErrNotFound", err)
	}
	if err := ms.Save(ctx, "c1", p, 0); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := ms.Load(ctx, "c1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got != p {
		t.Fatalf("Load: got %+v, want %+v", got, p)
	}
	if err := ms.Delete(ctx, "c1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := ms.Load(ctx, "c1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Load after Delete: got %v, want ErrNotFound", err)
	}
}

func TestMemStore_Expiry(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1_000, 0)
	ms := NewMemStore()
	ms.now = func() time.Time { return now }

	if err := ms.Save(ctx, "c1", domain.SessionParams{UserName: "bob"}, time.Minute); err != nil {
		t.Fatalf("Save: %v", err)
	}
	now = now.Add(59 * time.Second)
	if _, err := ms.Load(ctx, "c1"); err != nil {
		t.Fatalf("Load before expiry: %v", err)
	}
	now = now.Add(time.Second)
	if _, err := ms.Load(ctx, "c1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Load at expiry: got %v, want ErrNotFound", err)
	}
}

func TestRedisStore_KeyPrefix(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	defer rdb.Close()

	if got := NewRedisStore(rdb, " lobby:test: ").key("abc"); got != "lobby:test:handoff:abc" {
		t.Fatalf("key: got %q", got)
	}
	if got := NewRedisStore(rdb, "").key("abc"); got != "lobby:handoff:abc" {
		t.Fatalf("default key: got %q", got)
	}
}
