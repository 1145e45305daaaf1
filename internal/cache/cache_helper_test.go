package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type cachedSubject struct {
	ID    uint   `json:"id"`
	Title string `json:"title"`
}

func newTestHelper(t *testing.T, prefix string) *CacheHelper {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewCacheHelper(client, prefix)
}

func TestCacheHelper_SetGetRoundTrip(t *testing.T) {
	helper := newTestHelper(t, "subject:")
	ctx := context.Background()

	want := cachedSubject{ID: 7, Title: "Fractions"}
	if err := helper.Set(ctx, "id:7", want, time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	var got cachedSubject
	if err := helper.Get(ctx, "id:7", &got); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got != want {
		t.Errorf("Get() = %+v, want %+v", got, want)
	}
}

func TestCacheHelper_GetMiss(t *testing.T) {
	helper := newTestHelper(t, "subject:")

	var got cachedSubject
	if err := helper.Get(context.Background(), "id:404", &got); err != ErrCacheNotFound {
		t.Errorf("Get() error = %v, want ErrCacheNotFound", err)
	}
}

func TestCacheHelper_Delete(t *testing.T) {
	helper := newTestHelper(t, "attempt:")
	ctx := context.Background()

	for _, key := range []string{"id:1", "id:2", "id:3"} {
		if err := helper.Set(ctx, key, cachedSubject{ID: 1}, time.Minute); err != nil {
			t.Fatalf("Set() error = %v", err)
		}
	}
	if err := helper.Delete(ctx, "id:1", "id:2"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	var got cachedSubject
	if err := helper.Get(ctx, "id:1", &got); err != ErrCacheNotFound {
		t.Errorf("deleted key still readable, error = %v", err)
	}
	if err := helper.Get(ctx, "id:3", &got); err != nil {
		t.Errorf("untouched key lost, error = %v", err)
	}
}

func TestCacheHelper_InvalidatePattern(t *testing.T) {
	helper := newTestHelper(t, "reward:")
	ctx := context.Background()

	keys := []string{"leaderboard:class-1:25", "leaderboard:class-1:100", "leaderboard:class-2:25"}
	for _, key := range keys {
		if err := helper.Set(ctx, key, cachedSubject{ID: 1}, time.Minute); err != nil {
			t.Fatalf("Set() error = %v", err)
		}
	}

	if err := helper.InvalidatePattern(ctx, "leaderboard:class-1:*"); err != nil {
		t.Fatalf("InvalidatePattern() error = %v", err)
	}

	var got cachedSubject
	if err := helper.Get(ctx, "leaderboard:class-1:25", &got); err != ErrCacheNotFound {
		t.Error("class-1 leaderboard survived invalidation")
	}
	if err := helper.Get(ctx, "leaderboard:class-2:25", &got); err != nil {
		t.Errorf("class-2 leaderboard lost, error = %v", err)
	}
}

func TestCacheHelper_CacheOrExecuteFetches(t *testing.T) {
	helper := newTestHelper(t, "subject:")
	ctx := context.Background()

	calls := 0
	var got cachedSubject
	err := helper.CacheOrExecute(ctx, "id:9", &got, time.Minute, func() (interface{}, error) {
		calls++
		return cachedSubject{ID: 9, Title: "Photosynthesis"}, nil
	})
	if err != nil {
		t.Fatalf("CacheOrExecute() error = %v", err)
	}
	if calls != 1 {
		t.Errorf("fetch calls = %d, want 1", calls)
	}
	if got.Title != "Photosynthesis" {
		t.Errorf("dest = %+v, want fetched value", got)
	}
}

func TestCacheHelper_NilClientDegrades(t *testing.T) {
	helper := NewCacheHelper(nil, "subject:")
	ctx := context.Background()

	if err := helper.Set(ctx, "id:1", cachedSubject{}, time.Minute); err != nil {
		t.Errorf("Set() with nil client error = %v", err)
	}
	var got cachedSubject
	if err := helper.Get(ctx, "id:1", &got); err != ErrCacheNotAvailable {
		t.Errorf("Get() error = %v, want ErrCacheNotAvailable", err)
	}

	// Every read falls through to the fetch function.
	calls := 0
	err := helper.CacheOrExecute(ctx, "id:1", &got, time.Minute, func() (interface{}, error) {
		calls++
		return cachedSubject{ID: 1}, nil
	})
	if err != nil {
		t.Fatalf("CacheOrExecute() error = %v", err)
	}
	if calls != 1 {
		t.Errorf("fetch calls = %d, want 1", calls)
	}
}

func TestCacheManager_NilClientHealthCheck(t *testing.T) {
	cm := NewCacheManager(nil)
	if err := cm.HealthCheck(context.Background()); err != ErrCacheNotAvailable {
		t.Errorf("HealthCheck() error = %v, want ErrCacheNotAvailable", err)
	}
}
