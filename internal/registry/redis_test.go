package registry

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRegistry(t *testing.T) (*RedisRegistry, *miniredis.Miniredis) {
	t.Helper()
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisRegistryWithClient(client), server
}

func TestRegisterAndList(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	if err := reg.Register(ctx, "session-1", "conn-a", time.Minute); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := reg.Register(ctx, "session-1", "conn-b", time.Minute); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	// Double-registering must not duplicate the membership.
	if err := reg.Register(ctx, "session-1", "conn-a", time.Minute); err != nil {
		t.Fatalf("re-Register failed: %v", err)
	}

	ids, err := reg.ConnectionsFor(ctx, "session-1")
	if err != nil {
		t.Fatalf("ConnectionsFor failed: %v", err)
	}
	sort.Strings(ids)
	if len(ids) != 2 || ids[0] != "conn-a" || ids[1] != "conn-b" {
		t.Errorf("unexpected connections: %v", ids)
	}
}

func TestConnectionsForEmptySession(t *testing.T) {
	reg, _ := newTestRegistry(t)

	ids, err := reg.ConnectionsFor(context.Background(), "no-such-session")
	if err != nil {
		t.Fatalf("ConnectionsFor failed: %v", err)
	}
	if len(ids) != 0 {
		t.Errorf("expected no connections, got %v", ids)
	}
}

func TestUnregister(t *testing.T) {
	reg, server := newTestRegistry(t)
	ctx := context.Background()

	if err := reg.Register(ctx, "session-1", "conn-a", time.Minute); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := reg.Unregister(ctx, "conn-a"); err != nil {
		t.Fatalf("Unregister failed: %v", err)
	}

	ids, err := reg.ConnectionsFor(ctx, "session-1")
	if err != nil {
		t.Fatalf("ConnectionsFor failed: %v", err)
	}
	if len(ids) != 0 {
		t.Errorf("expected connection removed, got %v", ids)
	}
	if server.Exists("conn:conn-a") {
		t.Error("expected reverse entry deleted")
	}

	// Unknown connections are not an error.
	if err := reg.Unregister(ctx, "never-registered"); err != nil {
		t.Errorf("Unregister of unknown connection failed: %v", err)
	}
}

func TestDropSession(t *testing.T) {
	reg, server := newTestRegistry(t)
	ctx := context.Background()

	for _, id := range []string{"conn-a", "conn-b"} {
		if err := reg.Register(ctx, "session-1", id, time.Minute); err != nil {
			t.Fatalf("Register failed: %v", err)
		}
	}
	if err := reg.Register(ctx, "session-2", "conn-c", time.Minute); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	if err := reg.DropSession(ctx, "session-1"); err != nil {
		t.Fatalf("DropSession failed: %v", err)
	}

	if server.Exists("conns:session-1") || server.Exists("conn:conn-a") || server.Exists("conn:conn-b") {
		t.Error("expected all session-1 keys deleted")
	}

	ids, err := reg.ConnectionsFor(ctx, "session-2")
	if err != nil {
		t.Fatalf("ConnectionsFor failed: %v", err)
	}
	if len(ids) != 1 || ids[0] != "conn-c" {
		t.Errorf("expected session-2 untouched, got %v", ids)
	}
}

func TestRegistrationsExpireWithTTL(t *testing.T) {
	reg, server := newTestRegistry(t)
	ctx := context.Background()

	if err := reg.Register(ctx, "session-1", "conn-a", 30*time.Second); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	server.FastForward(time.Minute)

	ids, err := reg.ConnectionsFor(ctx, "session-1")
	if err != nil {
		t.Fatalf("ConnectionsFor failed: %v", err)
	}
	if len(ids) != 0 {
		t.Errorf("expected registrations to age out, got %v", ids)
	}
	if server.Exists("conn:conn-a") {
		t.Error("expected reverse entry to age out")
	}
}

func TestPing(t *testing.T) {
	reg, server := newTestRegistry(t)

	if err := reg.Ping(context.Background()); err != nil {
		t.Fatalf("Ping failed: %v", err)
	}

	server.Close()
	if err := reg.Ping(context.Background()); err == nil {
		t.Error("expected Ping to fail after server shutdown")
	}
}
