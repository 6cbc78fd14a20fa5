// Package progress broadcasts pipeline run progress to any number of
// admin-surface observers without polling: a Postgres LISTEN/NOTIFY
// channel fed by a trigger on progress_records, multiplexed to any
// number of registered in-process subscribers (the websocket stream in
// internal/api).
package progress

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/kidney-genetics/ingestion-core/internal/domain"
)

// Update is one progress broadcast event.
type Update struct {
	Source         domain.SourceName `json:"source"`
	Status         domain.RunStatus  `json:"status"`
	ItemsProcessed int               `json:"items_processed"`
	ItemsTotal     int               `json:"items_total"`
}

// Tracker multiplexes Postgres NOTIFY events on the "progress_updates"
// channel to in-process subscribers. All subscriber-set mutations and
// the broadcast loop itself are guarded by one mutex.
type Tracker struct {
	listener *pq.Listener
	log      *logrus.Logger

	mu          sync.Mutex
	subscribers map[int]chan Update
	nextID      int
}

// NewTracker opens a pq.Listener on the progress_updates channel.
// minReconnect/maxReconnect follow lib/pq's own backoff recommendation.
func NewTracker(connStr string, log *logrus.Logger) (*Tracker, error) {
	reportProblem := func(ev pq.ListenerEventType, err error) {
		if err != nil && log != nil {
			log.WithError(err).WithField("event", ev).Warn("progress listener event")
		}
	}
	listener := pq.NewListener(connStr, 10*time.Second, time.Minute, reportProblem)
	if err := listener.Listen("progress_updates"); err != nil {
		listener.Close()
		return nil, err
	}

	t := &Tracker{
		listener:    listener,
		log:         log,
		subscribers: make(map[int]chan Update),
	}
	go t.run()
	return t, nil
}

func (t *Tracker) run() {
	for notification := range t.listener.Notify {
		if notification == nil {
			continue
		}
		var row struct {
			Source         string `json:"source"`
			Status         string `json:"status"`
			ItemsProcessed int    `json:"items_processed"`
			ItemsTotal     int    `json:"items_total"`
		}
		if err := json.Unmarshal([]byte(notification.Extra), &row); err != nil {
			if t.log != nil {
				t.log.WithError(err).Warn("decoding progress notification")
			}
			continue
		}
		t.broadcast(Update{
			Source:         domain.SourceName(row.Source),
			Status:         domain.RunStatus(row.Status),
			ItemsProcessed: row.ItemsProcessed,
			ItemsTotal:     row.ItemsTotal,
		})
	}
}

func (t *Tracker) broadcast(u Update) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, ch := range t.subscribers {
		select {
		case ch <- u:
		default:
			// slow subscriber: drop rather than block the broadcast path
		}
	}
}

// Subscribe registers a new observer channel; call the returned cancel
// function to unregister it.
func (t *Tracker) Subscribe(ctx context.Context) (<-chan Update, func()) {
	t.mu.Lock()
	id := t.nextID
	t.nextID++
	ch := make(chan Update, 16)
	t.subscribers[id] = ch
	t.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			t.mu.Lock()
			delete(t.subscribers, id)
			t.mu.Unlock()
			close(ch)
		})
	}
	go func() {
		<-ctx.Done()
		cancel()
	}()
	return ch, cancel
}

// Close stops listening for notifications.
func (t *Tracker) Close() error {
	return t.listener.Close()
}
