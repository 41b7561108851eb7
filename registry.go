package extensionsystem

import "sync"

// EventType identifies a manager or registry notification.
type EventType int

const (
	// EventObjectAdded fires after an object was added to the registry.
	// Subscribers may immediately enumerate the registry and will see it.
	EventObjectAdded EventType = iota

	// EventAboutToRemoveObject fires before an object disappears from the
	// registry; subscribers can still look it up.
	EventAboutToRemoveObject

	// EventPluginsChanged fires after the startup walks complete.
	EventPluginsChanged

	// EventInitializationDone fires once, after the delayed-initialize queue
	// has drained.
	EventInitializationDone
)

// Event is a notification delivered to subscribed handlers. Object is set for
// the registry event types, nil otherwise.
type Event struct {
	Type   EventType
	Object any
}

// Handler receives events. Handlers run synchronously on the goroutine that
// triggered the event and must not call back into the emitting component.
// Panics in handlers are recovered.
type Handler func(event Event)

// notifier fans events out to subscribed handlers. Subscription is
// thread-safe; emit holds no lock while handlers run, so emit calls from
// several goroutines deliver their events concurrently.
type notifier struct {
	mu       sync.Mutex
	handlers []Handler
}

// subscribe registers a handler and returns its unsubscribe function.
func (n *notifier) subscribe(handler Handler) func() {
	if handler == nil {
		return func() {}
	}

	n.mu.Lock()
	n.handlers = append(n.handlers, handler)
	index := len(n.handlers) - 1
	n.mu.Unlock()

	return func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		// Nil out instead of removing so other indices stay stable.
		if index < len(n.handlers) {
			n.handlers[index] = nil
		}
	}
}

// emit delivers the event to every handler, recovering from panics.
func (n *notifier) emit(event Event) {
	n.mu.Lock()
	handlers := make([]Handler, len(n.handlers))
	copy(handlers, n.handlers)
	n.mu.Unlock()

	for _, handler := range handlers {
		if handler == nil {
			continue
		}
		func() {
			defer func() {
				recover()
			}()
			handler(event)
		}()
	}
}

// ObjectRegistry is a process-wide pool of opaque objects. Plugins add
// objects to publish services and enumerate the pool to discover what other
// plugins provide. The registry never owns its objects; producers must remove
// an object before disposing of it.
//
// The registry is the one concurrency-safe component of the extension system:
// many readers, one writer at a time. Notifications are emitted outside the
// lock; when several goroutines add or remove objects at once, handlers may
// run concurrently and added events are not ordered by append order.
type ObjectRegistry struct {
	lock     sync.RWMutex
	objects  []any
	notifier notifier
}

// NewObjectRegistry creates an empty registry.
func NewObjectRegistry() *ObjectRegistry {
	return &ObjectRegistry{}
}

// AddObject appends obj to the pool and notifies subscribers. Nil objects and
// objects already present are rejected. Reports whether the object was added.
func (r *ObjectRegistry) AddObject(obj any) bool {
	if obj == nil {
		return false
	}

	r.lock.Lock()
	if containsObject(r.objects, obj) {
		r.lock.Unlock()
		return false
	}
	r.objects = append(r.objects, obj)
	r.lock.Unlock()

	r.notifier.emit(Event{Type: EventObjectAdded, Object: obj})
	return true
}

// RemoveObject notifies subscribers that obj is about to disappear, then
// removes it under the write lock. Nil and absent objects are rejected.
// Reports whether the object was removed.
func (r *ObjectRegistry) RemoveObject(obj any) bool {
	if obj == nil {
		return false
	}

	r.lock.RLock()
	present := containsObject(r.objects, obj)
	r.lock.RUnlock()
	if !present {
		return false
	}

	// Notify before removal so subscribers can still see the object.
	r.notifier.emit(Event{Type: EventAboutToRemoveObject, Object: obj})

	r.lock.Lock()
	for i, o := range r.objects {
		if o == obj {
			r.objects = append(r.objects[:i], r.objects[i+1:]...)
			break
		}
	}
	r.lock.Unlock()
	return true
}

// AllObjects returns a snapshot of the pool in insertion order.
func (r *ObjectRegistry) AllObjects() []any {
	r.lock.RLock()
	defer r.lock.RUnlock()

	snapshot := make([]any, len(r.objects))
	copy(snapshot, r.objects)
	return snapshot
}

// ListLock exposes the registry's reader-writer lock for callers that must
// iterate and filter atomically. Hold the read lock and do not mutate the
// registry while holding it.
func (r *ObjectRegistry) ListLock() *sync.RWMutex {
	return &r.lock
}

// Subscribe registers a handler for EventObjectAdded and
// EventAboutToRemoveObject. Returns an unsubscribe function.
func (r *ObjectRegistry) Subscribe(handler Handler) func() {
	return r.notifier.subscribe(handler)
}

func containsObject(objects []any, obj any) bool {
	for _, o := range objects {
		if o == obj {
			return true
		}
	}
	return false
}
