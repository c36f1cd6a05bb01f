package heartbeat

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"weightwire/internal/domain/keys"
	"weightwire/internal/domain/model"
	"weightwire/internal/infrastructure/storage/redisstore"
)

func TestReporterWritesTimestamp(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	store := redisstore.New(rdb)
	ks := keys.New("", "", "alpha")

	rep := New(store, ks)
	rep.Interval = 5 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		rep.Run(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for {
		val, err := store.Get(context.Background(), ks.Heartbeat())
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if val != "" {
			if _, perr := time.ParseInLocation(model.DtLayout, val, time.Local); perr != nil {
				t.Fatalf("heartbeat value %q unparseable: %v", val, perr)
			}
			break
		}
		select {
		case <-deadline:
			t.Fatal("no heartbeat written")
		case <-time.After(time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("reporter did not stop on cancellation")
	}
}

func TestReporterSurvivesWriteFailure(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	store := redisstore.New(rdb)
	ks := keys.New("", "", "alpha")

	rep := New(store, ks)
	rep.Interval = 5 * time.Millisecond

	mr.SetError("server unavailable")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		rep.Run(ctx)
		close(done)
	}()

	// let a few failing ticks pass, then recover the server
	time.Sleep(25 * time.Millisecond)
	mr.SetError("")

	deadline := time.After(2 * time.Second)
	for {
		val, err := store.Get(context.Background(), ks.Heartbeat())
		if err == nil && val != "" {
			break
		}
		select {
		case <-deadline:
			t.Fatal("reporter never recovered after failures")
		case <-time.After(time.Millisecond):
		}
	}

	cancel()
	<-done
}
