package memory

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/go-cmp/cmp"
	"github.com/redis/go-redis/v9"

	"github.com/scttfrdmn/catering-agent-go/agenkit"
)

func newRedisMemory(t *testing.T, opts RedisOptions) (*RedisMemory, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	mem := NewRedisMemory(client, opts)
	t.Cleanup(func() { _ = mem.Close() })
	return mem, mr
}

func backends(t *testing.T) map[string]Memory {
	redisMem, _ := newRedisMemory(t, RedisOptions{MaxSize: 5})
	return map[string]Memory{
		"in-memory": NewInMemoryMemory(5),
		"redis":     redisMem,
	}
}

func contents(msgs []*agenkit.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Content
	}
	return out
}

func TestMemory_StoreRetrieve(t *testing.T) {
	for name, mem := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for i := 1; i <= 7; i++ {
				msg := agenkit.NewMessage(agenkit.RoleUser, fmt.Sprintf("m%d", i))
				if err := mem.Store(ctx, "s1", msg, nil); err != nil {
					t.Fatalf("Store failed: %v", err)
				}
			}

			got, err := mem.Retrieve(ctx, "s1", RetrieveOptions{Limit: 3})
			if err != nil {
				t.Fatalf("Retrieve failed: %v", err)
			}
			if diff := cmp.Diff([]string{"m7", "m6", "m5"}, contents(got)); diff != "" {
				t.Errorf("Retrieve mismatch (-want +got):\n%s", diff)
			}

			// Capped at 5 per session.
			all, _ := mem.Retrieve(ctx, "s1", RetrieveOptions{Limit: 100})
			if diff := cmp.Diff([]string{"m7", "m6", "m5", "m4", "m3"}, contents(all)); diff != "" {
				t.Errorf("eviction mismatch (-want +got):\n%s", diff)
			}

			other, _ := mem.Retrieve(ctx, "s2", RetrieveOptions{})
			if len(other) != 0 {
				t.Errorf("expected empty session, got %v", contents(other))
			}
		})
	}
}

func TestMemory_DuplicateContent(t *testing.T) {
	for name, mem := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			msg := agenkit.NewMessage(agenkit.RoleUser, "hi")
			_ = mem.Store(ctx, "s", msg, nil)
			_ = mem.Store(ctx, "s", msg, nil)

			got, _ := mem.Retrieve(ctx, "s", RetrieveOptions{})
			if len(got) != 2 {
				t.Errorf("expected both turns kept, got %d", len(got))
			}
		})
	}
}

func TestMemory_Tags(t *testing.T) {
	for name, mem := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			_ = mem.Store(ctx, "s", agenkit.NewMessage(agenkit.RoleAssistant, "flight"), map[string]interface{}{MetadataTags: []string{"flight_info_agent"}})
			_ = mem.Store(ctx, "s", agenkit.NewMessage(agenkit.RoleAssistant, "hello"), map[string]interface{}{MetadataTags: []string{"greeting_agent"}})

			got, err := mem.Retrieve(ctx, "s", RetrieveOptions{Tags: []string{"flight_info_agent"}})
			if err != nil {
				t.Fatalf("Retrieve failed: %v", err)
			}
			if diff := cmp.Diff([]string{"flight"}, contents(got)); diff != "" {
				t.Errorf("tag filter mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestMemory_HistoryAndClear(t *testing.T) {
	for name, mem := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			_ = mem.Store(ctx, "s", agenkit.NewMessage(agenkit.RoleUser, "q"), nil)
			_ = mem.Store(ctx, "s", agenkit.NewMessage(agenkit.RoleAssistant, "a"), nil)

			history, err := History(ctx, mem, "s", 10)
			if err != nil {
				t.Fatalf("History failed: %v", err)
			}
			if diff := cmp.Diff([]string{"q", "a"}, contents(history)); diff != "" {
				t.Errorf("history mismatch (-want +got):\n%s", diff)
			}
			if history[1].Role != agenkit.RoleAssistant {
				t.Errorf("role not preserved: %q", history[1].Role)
			}

			if err := mem.Clear(ctx, "s"); err != nil {
				t.Fatalf("Clear failed: %v", err)
			}
			if got, _ := mem.Retrieve(ctx, "s", RetrieveOptions{}); len(got) != 0 {
				t.Errorf("expected cleared session, got %v", contents(got))
			}
		})
	}
}

func TestRedisMemory_TTL(t *testing.T) {
	mem, mr := newRedisMemory(t, RedisOptions{TTL: time.Minute, KeyPrefix: "test"})
	ctx := context.Background()

	if err := mem.Store(ctx, "s", agenkit.NewMessage(agenkit.RoleUser, "x"), nil); err != nil {
		t.Fatalf("Store failed: %v", err)
	}
	if ttl := mr.TTL("test:s:messages"); ttl != time.Minute {
		t.Errorf("expected 1m TTL, got %v", ttl)
	}
	if n, _ := mem.Count(ctx, "s"); n != 1 {
		t.Errorf("expected count 1, got %d", n)
	}

	mr.FastForward(2 * time.Minute)
	if got, _ := mem.Retrieve(ctx, "s", RetrieveOptions{}); len(got) != 0 {
		t.Errorf("expected expiry, got %v", contents(got))
	}
	if diff := cmp.Diff([]string{"basic_retrieval", "tag_filtering", "persistence", "ttl"}, mem.Capabilities()); diff != "" {
		t.Errorf("capabilities mismatch (-want +got):\n%s", diff)
	}
}

func TestRedisMemory_SkipsMalformed(t *testing.T) {
	mem, mr := newRedisMemory(t, RedisOptions{})
	ctx := context.Background()
	_ = mem.Store(ctx, "s", agenkit.NewMessage(agenkit.RoleUser, "ok"), nil)
	if _, err := mr.ZAdd("catering:memory:s:messages", 99, "not json"); err != nil {
		t.Fatalf("ZAdd failed: %v", err)
	}

	got, err := mem.Retrieve(ctx, "s", RetrieveOptions{})
	if err != nil {
		t.Fatalf("Retrieve failed: %v", err)
	}
	if diff := cmp.Diff([]string{"ok"}, contents(got)); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestDialRedisMemory_BadURL(t *testing.T) {
	if _, err := DialRedisMemory("://nope", RedisOptions{}); err == nil {
		t.Error("expected error for invalid URL")
	}
}
