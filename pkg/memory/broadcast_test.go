package memory

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestBroadcaster_PublishesOverRedisWhenConfigured(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer mr.Close()

	b := NewBroadcaster(mr.Addr(), "memory.events", nil)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	sub := rdb.Subscribe(context.Background(), "memory.events")
	defer sub.Close()
	if _, err := sub.Receive(context.Background()); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	b.Publish(context.Background(), Event{Type: "query_started", QueryID: "q-1"})

	select {
	case msg := <-sub.Channel():
		var ev Event
		if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
			t.Fatalf("unmarshal published event: %v", err)
		}
		if ev.Type != "query_started" || ev.QueryID != "q-1" {
			t.Fatalf("unexpected event: %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for published event")
	}
}

func TestBroadcaster_FallsBackToLocalFanOutWithoutAddr(t *testing.T) {
	b := NewBroadcaster("", "memory.events", nil)
	ch := b.Subscribe()

	b.Publish(context.Background(), Event{Type: "query_completed", QueryID: "q-2"})

	select {
	case ev := <-ch:
		if ev.Type != "query_completed" || ev.QueryID != "q-2" {
			t.Fatalf("unexpected event: %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for local fan-out event")
	}
}

func TestBroadcaster_FallsBackWhenRedisUnreachable(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	addr := mr.Addr()
	mr.Close() // address now refuses connections

	b := NewBroadcaster(addr, "memory.events", nil)
	ch := b.Subscribe()

	b.Publish(context.Background(), Event{Type: "query_started", QueryID: "q-3"})

	select {
	case ev := <-ch:
		if ev.QueryID != "q-3" {
			t.Fatalf("unexpected event: %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("expected publish failure to fall back to local fan-out")
	}
}
