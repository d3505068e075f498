package live

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"backend-pushup/internal/rep"
	"backend-pushup/internal/session"

	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"
)

const writeTimeout = 500 * time.Millisecond

type cachedSnapshot struct {
	SessionID string    `msgpack:"session_id"`
	Count     uint64    `msgpack:"count"`
	Status    string    `msgpack:"status"`
	State     string    `msgpack:"state"`
	Running   bool      `msgpack:"running"`
	StartedAt time.Time `msgpack:"started_at"`
}

func (c cachedSnapshot) snapshot() session.Snapshot {
	return session.Snapshot{
		SessionID: c.SessionID,
		Count:     c.Count,
		Status:    c.Status,
		State:     rep.ParseState(c.State),
		Running:   c.Running,
		StartedAt: c.StartedAt,
	}
}

// SnapshotCache keeps the latest state of every session in redis so any
// instance can answer snapshot reads. Put never blocks the caller: only the
// newest pending value per session is written, by a single writer goroutine.
type SnapshotCache struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *slog.Logger

	mu      sync.Mutex
	pending map[string]cachedSnapshot
	closed  bool

	wake    chan struct{}
	done    chan struct{}
	stopped chan struct{}
}

func NewSnapshotCache(rdb *redis.Client, ttl time.Duration) *SnapshotCache {
	c := &SnapshotCache{
		rdb:     rdb,
		ttl:     ttl,
		logger:  slog.Default().With("component", "snapshot_cache"),
		pending: map[string]cachedSnapshot{},
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	if rdb == nil {
		close(c.stopped)
		return c
	}
	go c.run()
	return c
}

func snapshotKey(sessionID string) string {
	return "reps:" + sessionID + ":snapshot"
}

func (c *SnapshotCache) OnUpdate(u session.Update) {
	c.put(cachedSnapshot{
		SessionID: u.SessionID,
		Count:     u.Count,
		Status:    u.Status,
		State:     u.State.String(),
		Running:   u.Status != StatusEnded,
		StartedAt: u.StartedAt,
	})
}

func (c *SnapshotCache) put(s cachedSnapshot) {
	if c.rdb == nil {
		return
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.pending[s.SessionID] = s
	c.mu.Unlock()

	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// Get returns the cached snapshot, preferring a value not yet written.
func (c *SnapshotCache) Get(ctx context.Context, sessionID string) (session.Snapshot, error) {
	if c.rdb == nil {
		return session.Snapshot{}, ErrSessionNotFound
	}
	c.mu.Lock()
	s, ok := c.pending[sessionID]
	c.mu.Unlock()
	if ok {
		return s.snapshot(), nil
	}

	raw, err := c.rdb.Get(ctx, snapshotKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return session.Snapshot{}, ErrSessionNotFound
	}
	if err != nil {
		return session.Snapshot{}, err
	}
	var cached cachedSnapshot
	if err := msgpack.Unmarshal(raw, &cached); err != nil {
		return session.Snapshot{}, err
	}
	return cached.snapshot(), nil
}

func (c *SnapshotCache) run() {
	defer close(c.stopped)
	for {
		select {
		case <-c.wake:
			c.flush()
		case <-c.done:
			c.flush()
			return
		}
	}
}

func (c *SnapshotCache) flush() {
	c.mu.Lock()
	batch := c.pending
	c.pending = map[string]cachedSnapshot{}
	c.mu.Unlock()

	for id, s := range batch {
		payload, err := msgpack.Marshal(s)
		if err != nil {
			c.logger.Error("encode snapshot", "session_id", id, "error", err)
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		err = c.rdb.Set(ctx, snapshotKey(id), payload, c.ttl).Err()
		cancel()
		if err != nil {
			c.logger.Warn("write snapshot", "session_id", id, "error", err)
		}
	}
}

// Close writes whatever is pending and stops the writer.
func (c *SnapshotCache) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	close(c.done)
	<-c.stopped
}
