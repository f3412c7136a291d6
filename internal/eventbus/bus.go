package eventbus

import (
	"sync"

	"github.com/google/uuid"

	"dispatch-watch/internal/models"
)

// Bus fans published snapshots out to subscribers. A slow subscriber only
// ever holds the most recent snapshots.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string]chan []models.Task
}

func New() *Bus {
	return &Bus{
		subscribers: make(map[string]chan []models.Task),
	}
}

func (b *Bus) Subscribe(bufSize int) (string, <-chan []models.Task) {
	id := uuid.NewString()
	ch := make(chan []models.Task, bufSize)
	b.mu.Lock()
	b.subscribers[id] = ch
	b.mu.Unlock()
	return id, ch
}

func (b *Bus) Unsubscribe(id string) {
	b.mu.Lock()
	if ch, ok := b.subscribers[id]; ok {
		close(ch)
		delete(b.subscribers, id)
	}
	b.mu.Unlock()
}

// Publish delivers snapshot to every subscriber without blocking.
func (b *Bus) Publish(snapshot []models.Task) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subscribers {
		select {
		case ch <- snapshot:
		default:
			// buffer full, replace the oldest pending snapshot
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snapshot:
			default:
			}
		}
	}
}
