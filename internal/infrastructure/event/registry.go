package event

import (
	"slices"
	"sync"

	"github.com/subgov/backend/internal/domain/shared"
)

// handlerTable routes event types to subscribed handlers. Handlers added
// without types receive every event, after the type-specific ones.
type handlerTable struct {
	mu       sync.RWMutex
	byType   map[string][]shared.EventHandler
	wildcard []shared.EventHandler
}

func newHandlerTable() *handlerTable {
	return &handlerTable{byType: make(map[string][]shared.EventHandler)}
}

// add subscribes h. Subscribing the same handler twice to a type is a no-op.
func (t *handlerTable) add(h shared.EventHandler, eventTypes ...string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(eventTypes) == 0 {
		if !slices.Contains(t.wildcard, h) {
			t.wildcard = append(t.wildcard, h)
		}
		return
	}
	for _, et := range eventTypes {
		if !slices.Contains(t.byType[et], h) {
			t.byType[et] = append(t.byType[et], h)
		}
	}
}

// remove drops h from every type and from the wildcard list
func (t *handlerTable) remove(h shared.EventHandler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	isH := func(x shared.EventHandler) bool { return x == h }
	t.wildcard = slices.DeleteFunc(t.wildcard, isH)
	for et, hs := range t.byType {
		if hs = slices.DeleteFunc(hs, isH); len(hs) == 0 {
			delete(t.byType, et)
		} else {
			t.byType[et] = hs
		}
	}
}

// lookup returns a snapshot safe to iterate while handlers subscribe
func (t *handlerTable) lookup(eventType string) []shared.EventHandler {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return slices.Concat(t.byType[eventType], t.wildcard)
}
