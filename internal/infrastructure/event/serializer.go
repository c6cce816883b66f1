package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"reflect"
	"slices"
	"sync"

	"github.com/subgov/backend/internal/domain/shared"
)

// ErrUnknownEventType is returned for event types missing from the serializer
var ErrUnknownEventType = errors.New("unknown event type")

// EventSerializer converts domain events to outbox payloads and back. Several
// event types may share one payload struct; the upgrade workflow does.
type EventSerializer struct {
	mu       sync.RWMutex
	payloads map[string]reflect.Type
}

// NewEventSerializer creates an empty serializer. RegisterAllEvents fills it.
func NewEventSerializer() *EventSerializer {
	return &EventSerializer{payloads: make(map[string]reflect.Type)}
}

// Register binds eventType to the concrete struct behind prototype
func (s *EventSerializer) Register(eventType string, prototype shared.DomainEvent) {
	t := reflect.TypeOf(prototype)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	s.mu.Lock()
	s.payloads[eventType] = t
	s.mu.Unlock()
}

func (s *EventSerializer) payloadType(eventType string) (reflect.Type, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.payloads[eventType]
	return t, ok
}

// Serialize encodes a registered event. Unregistered types are refused so an
// entry is never written that the processor cannot decode.
func (s *EventSerializer) Serialize(event shared.DomainEvent) ([]byte, error) {
	if _, ok := s.payloadType(event.EventType()); !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEventType, event.EventType())
	}
	return json.Marshal(event)
}

// Deserialize decodes an outbox payload into the struct registered for
// eventType and checks that the payload names the same type
func (s *EventSerializer) Deserialize(eventType string, data []byte) (shared.DomainEvent, error) {
	t, ok := s.payloadType(eventType)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEventType, eventType)
	}

	ptr := reflect.New(t).Interface()
	if err := json.Unmarshal(data, ptr); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s payload: %w", eventType, err)
	}
	event, ok := ptr.(shared.DomainEvent)
	if !ok {
		return nil, fmt.Errorf("payload for %s is not a domain event", eventType)
	}
	if got := event.EventType(); got != "" && got != eventType {
		return nil, fmt.Errorf("payload type %s does not match outbox type %s", got, eventType)
	}
	return event, nil
}

// IsRegistered reports whether eventType can be delivered
func (s *EventSerializer) IsRegistered(eventType string) bool {
	_, ok := s.payloadType(eventType)
	return ok
}

// RegisteredTypes lists the known event types in sorted order
func (s *EventSerializer) RegisteredTypes() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Sorted(maps.Keys(s.payloads))
}
