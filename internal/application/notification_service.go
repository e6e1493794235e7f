package application

import (
	"context"
	"sync"
	"time"

	"taskquest/internal/models"
)

// NotificationQueue is the bounded in-memory feed behind the polling endpoint.
// It keeps at most notificationCap entries, evicting the oldest first, and
// drops entries older than notificationMaxAge on every prune.
type NotificationQueue struct {
	mu      sync.RWMutex
	items   []models.Notification
	sinks   []EventSink
	logger  Logger
	now     func() time.Time
	maxAge  time.Duration
	cap     int
	tick    time.Duration
	stopped chan struct{}
	once    sync.Once
}

func NewNotificationQueue(logger Logger, sinks ...EventSink) *NotificationQueue {
	return &NotificationQueue{
		sinks:   sinks,
		logger:  logger,
		now:     time.Now,
		maxAge:  notificationMaxAge,
		cap:     notificationCap,
		tick:    notificationPruneTick,
		stopped: make(chan struct{}),
	}
}

func (q *NotificationQueue) Emit(eventType string, data map[string]any) {
	n := models.Notification{Type: eventType, Data: data, Timestamp: q.now()}

	q.mu.Lock()
	q.items = append(q.items, n)
	if over := len(q.items) - q.cap; over > 0 {
		q.items = append(q.items[:0:0], q.items[over:]...)
	}
	q.mu.Unlock()

	for _, sink := range q.sinks {
		sink.Publish(n)
	}
}

// Since returns entries newer than since, or the most recent few when since is nil.
func (q *NotificationQueue) Since(since *time.Time) []models.Notification {
	q.mu.RLock()
	defer q.mu.RUnlock()

	out := make([]models.Notification, 0)
	if since == nil {
		start := len(q.items) - notificationRecent
		if start < 0 {
			start = 0
		}
		return append(out, q.items[start:]...)
	}
	for _, n := range q.items {
		if n.Timestamp.After(*since) {
			out = append(out, n)
		}
	}
	return out
}

func (q *NotificationQueue) Prune() {
	cutoff := q.now().Add(-q.maxAge)

	q.mu.Lock()
	defer q.mu.Unlock()
	i := 0
	for i < len(q.items) && !q.items[i].Timestamp.After(cutoff) {
		i++
	}
	if i > 0 {
		q.items = append(q.items[:0:0], q.items[i:]...)
		q.logger.Debug("pruned %d notifications", i)
	}
}

func (q *NotificationQueue) Len() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.items)
}

func (q *NotificationQueue) Name() string { return "notifications" }

func (q *NotificationQueue) Init() error { return nil }

func (q *NotificationQueue) Run(ctx context.Context) error {
	ticker := time.NewTicker(q.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-q.stopped:
			return nil
		case <-ticker.C:
			q.Prune()
		}
	}
}

func (q *NotificationQueue) Stop() {
	q.once.Do(func() { close(q.stopped) })
}
