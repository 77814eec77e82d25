package memory

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Event is one IPC broadcast emitted by the façade around query
// execution (spec §4.G: "query_started"/"query_completed").
type Event struct {
	Type      string    `json:"type"`
	QueryID   string    `json:"query_id"`
	Query     string    `json:"query,omitempty"`
	Adapters  []string  `json:"adapters,omitempty"`
	Count     int       `json:"count,omitempty"`
	LatencyMs float64   `json:"latency_ms,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Broadcaster publishes Events. When a redis address is configured it
// publishes on a pub/sub channel so multiple daemon/UI processes
// observe the same stream; otherwise it falls back to an in-process
// fan-out so the façade works standalone (spec §4.G "optional").
type Broadcaster struct {
	rdb     *redis.Client
	channel string
	log     *logrus.Logger

	mu          sync.RWMutex
	subscribers []chan Event
}

func NewBroadcaster(addr, channel string, log *logrus.Logger) *Broadcaster {
	if log == nil {
		log = logrus.New()
	}
	b := &Broadcaster{channel: channel, log: log}
	if addr != "" {
		b.rdb = redis.NewClient(&redis.Options{Addr: addr})
	}
	return b
}

func (b *Broadcaster) Publish(ctx context.Context, ev Event) {
	ev.Timestamp = time.Now()

	if b.rdb != nil {
		payload, err := json.Marshal(ev)
		if err != nil {
			b.log.WithError(err).Warn("failed to marshal broadcast event")
			return
		}
		if err := b.rdb.Publish(ctx, b.channel, payload).Err(); err != nil {
			b.log.WithError(err).Warn("failed to publish broadcast event, falling back to local fan-out")
		} else {
			return
		}
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subscribers {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Subscribe returns a channel of local events. Only meaningful for the
// in-process fallback path; remote subscribers use the redis channel
// directly.
func (b *Broadcaster) Subscribe() <-chan Event {
	ch := make(chan Event, 16)
	b.mu.Lock()
	b.subscribers = append(b.subscribers, ch)
	b.mu.Unlock()
	return ch
}
