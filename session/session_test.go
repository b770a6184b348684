package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

func backends(t *testing.T) map[string]Service {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return map[string]Service{
		"memory": NewMemoryService(),
		"redis":  NewRedisService(client, "", 0),
	}
}

func TestCreateDefaults(t *testing.T) {
	for name, svc := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s, err := svc.Create(context.Background(), "", nil)
			if err != nil {
				t.Fatalf("Create failed: %v", err)
			}
			if _, err := uuid.Parse(s.ID); err != nil {
				t.Errorf("session id %q is not a UUID", s.ID)
			}
			if s.AppName != AppName || s.UserID != DefaultUserID {
				t.Errorf("unexpected session %+v", s)
			}
			if diff := cmp.Diff(DefaultState(), s.State); diff != "" {
				t.Errorf("state mismatch (-want +got):\n%s", diff)
			}

			got, err := svc.Get(context.Background(), s.ID)
			if err != nil {
				t.Fatalf("Get failed: %v", err)
			}
			if station, _ := got.Lookup(StateStation); station != "DXB, MAA" {
				t.Errorf("unexpected station %v", station)
			}
		})
	}
}

func TestUpdateState(t *testing.T) {
	for name, svc := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s, _ := svc.Create(ctx, "EMP999", map[string]interface{}{
				StateUserName:      "Asha",
				StateAccessibility: map[string]interface{}{"station": "DXB"},
			})

			updated, err := svc.UpdateState(ctx, s.ID, map[string]interface{}{
				StateLanguage:      "Arabic",
				StateAccessibility: map[string]interface{}{"terminal": "3"},
			})
			if err != nil {
				t.Fatalf("UpdateState failed: %v", err)
			}
			want := map[string]interface{}{
				StateUserName:      "Asha",
				StateLanguage:      "Arabic",
				StateAccessibility: map[string]interface{}{"station": "DXB", "terminal": "3"},
			}
			if diff := cmp.Diff(want, updated.State); diff != "" {
				t.Errorf("state mismatch (-want +got):\n%s", diff)
			}

			got, _ := svc.Get(ctx, s.ID)
			if diff := cmp.Diff(want, got.State); diff != "" {
				t.Errorf("stored state mismatch (-want +got):\n%s", diff)
			}

			if _, err := svc.UpdateState(ctx, "missing", want); !errors.Is(err, ErrNotFound) {
				t.Errorf("expected ErrNotFound, got %v", err)
			}
		})
	}
}

func TestConcurrentUpdates(t *testing.T) {
	for name, svc := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s, _ := svc.Create(ctx, "", map[string]interface{}{})

			var wg sync.WaitGroup
			for i := 0; i < 4; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					if _, err := svc.UpdateState(ctx, s.ID, map[string]interface{}{fmt.Sprintf("k%d", i): "v"}); err != nil {
						t.Errorf("UpdateState failed: %v", err)
					}
				}()
			}
			wg.Wait()

			got, _ := svc.Get(ctx, s.ID)
			if len(got.State) != 4 {
				t.Errorf("expected 4 keys after concurrent updates, got %v", got.State)
			}
		})
	}
}

func TestDelete(t *testing.T) {
	for name, svc := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s, _ := svc.Create(ctx, "", nil)
			if err := svc.Delete(ctx, s.ID); err != nil {
				t.Fatalf("Delete failed: %v", err)
			}
			if _, err := svc.Get(ctx, s.ID); !errors.Is(err, ErrNotFound) {
				t.Errorf("expected ErrNotFound after delete, got %v", err)
			}
			if err := svc.Delete(ctx, s.ID); err != nil {
				t.Errorf("deleting twice should succeed, got %v", err)
			}
		})
	}
}

func TestIsolation(t *testing.T) {
	svc := NewMemoryService()
	ctx := context.Background()
	s, _ := svc.Create(ctx, "", nil)

	s.State[StateUserName] = "mutated"
	got, _ := svc.Get(ctx, s.ID)
	if got.State[StateUserName] != "John Doe" {
		t.Error("callers must not be able to mutate stored state")
	}
}

func TestLookup(t *testing.T) {
	s := &Session{State: DefaultState()}
	tests := []struct {
		path string
		want interface{}
		ok   bool
	}{
		{StateUserName, "John Doe", true},
		{StateStation, "DXB, MAA", true},
		{"user_accessibility.gate", nil, false},
		{"user_name.first", nil, false},
	}
	for _, tt := range tests {
		got, ok := s.Lookup(tt.path)
		if got != tt.want || ok != tt.ok {
			t.Errorf("Lookup(%q) = (%v, %v), want (%v, %v)", tt.path, got, ok, tt.want, tt.ok)
		}
	}
	var nilSession *Session
	if _, ok := nilSession.Lookup(StateUserName); ok {
		t.Error("nil session should resolve nothing")
	}
}

func TestRedisTTL(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	svc := NewRedisService(client, "test:session", time.Hour)
	ctx := context.Background()

	s, _ := svc.Create(ctx, "", nil)
	if ttl := mr.TTL("test:session:" + s.ID); ttl != time.Hour {
		t.Errorf("expected 1h TTL, got %v", ttl)
	}

	mr.FastForward(2 * time.Hour)
	if _, err := svc.Get(ctx, s.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected expired session, got %v", err)
	}

	if _, err := DialRedisService("not-a-url", 0); err == nil {
		t.Error("expected error for invalid URL")
	}
}
