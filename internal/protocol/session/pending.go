package session

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/danmuck/nwcctl/internal/protocol"
)

// Phase is where an exchange sits in its lifecycle.
type Phase string

const (
	PhasePublishing Phase = "publishing"
	PhaseAwaiting   Phase = "awaiting"
	PhaseDone       Phase = "done"
)

// PendingExchange is a snapshot of one in-flight call.
type PendingExchange struct {
	RequestID         string          `json:"request_id"`
	Method            protocol.Method `json:"method"`
	Expected          int             `json:"expected"`
	Received          int             `json:"received"`
	Phase             Phase           `json:"phase"`
	QueuedAt          time.Time       `json:"queued_at"`
	PublishDeadlineAt time.Time       `json:"publish_deadline_at"`
	ReplyDeadlineAt   time.Time       `json:"reply_deadline_at"`
}

// Registry tracks in-flight exchanges by request event id.
type Registry struct {
	mu    sync.RWMutex
	items map[string]PendingExchange
}

func NewRegistry() *Registry {
	return &Registry{
		items: make(map[string]PendingExchange),
	}
}

func (r *Registry) Add(item PendingExchange) {
	key := strings.TrimSpace(item.RequestID)
	if key == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[key] = item
}

// Update applies fn to the entry for requestID, if present.
func (r *Registry) Update(requestID string, fn func(*PendingExchange)) (PendingExchange, bool) {
	key := strings.TrimSpace(requestID)
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.items[key]
	if !ok {
		return PendingExchange{}, false
	}
	fn(&item)
	r.items[key] = item
	return item, true
}

func (r *Registry) Remove(requestID string) {
	key := strings.TrimSpace(requestID)
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.items, key)
}

func (r *Registry) Get(requestID string) (PendingExchange, bool) {
	key := strings.TrimSpace(requestID)
	r.mu.RLock()
	defer r.mu.RUnlock()
	item, ok := r.items[key]
	return item, ok
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}

// List returns entries ordered by queue time, then request id.
func (r *Registry) List() []PendingExchange {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]PendingExchange, 0, len(r.items))
	for _, item := range r.items {
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].QueuedAt.Equal(out[j].QueuedAt) {
			return out[i].QueuedAt.Before(out[j].QueuedAt)
		}
		return out[i].RequestID < out[j].RequestID
	})
	return out
}
