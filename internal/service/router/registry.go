package router

import (
	"sort"
	"sync"

	modelintent "github.com/halcyonlabs/accord/backend/internal/model/intent"
	intentsvc "github.com/halcyonlabs/accord/backend/internal/service/intent"
)

// Registry is a mutable collection of handlers supporting registration and
// unregistration at any time. It doubles as the classifier's plugin source:
// registered handlers that implement the plugin capability contribute
// intents and hints to the classification prompt.
type Registry struct {
	mu       sync.RWMutex
	handlers []Handler // registration order
}

// NewRegistry bootstraps an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register appends a handler. Registering the same id again replaces the
// earlier handler in place.
func (r *Registry) Register(handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, existing := range r.handlers {
		if existing.ID() == handler.ID() {
			r.handlers[i] = handler
			return
		}
	}
	r.handlers = append(r.handlers, handler)
}

// Unregister removes the handler with the given id. Unknown ids are a no-op.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, existing := range r.handlers {
		if existing.ID() == id {
			r.handlers = append(r.handlers[:i], r.handlers[i+1:]...)
			return
		}
	}
}

// HandlersFor returns the handlers declaring the intent, sorted by
// descending priority with ties broken by registration order.
func (r *Registry) HandlersFor(target modelintent.Intent) []Handler {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Handler
	for _, handler := range r.handlers {
		for _, served := range handler.Intents() {
			if served == target {
				out = append(out, handler)
				break
			}
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Priority() > out[j].Priority()
	})
	return out
}

// AllHandlers returns every registered handler in registration order.
func (r *Registry) AllHandlers() []Handler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Handler(nil), r.handlers...)
}

// DetectionPlugins returns the registered handlers that extend
// classification, in registration order.
func (r *Registry) DetectionPlugins() []intentsvc.Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []intentsvc.Plugin
	for _, handler := range r.handlers {
		if plugin, ok := handler.(intentsvc.Plugin); ok {
			out = append(out, plugin)
		}
	}
	return out
}

// DetectionHints aggregates every plugin's prompt hints.
func (r *Registry) DetectionHints() []string {
	var out []string
	for _, plugin := range r.DetectionPlugins() {
		out = append(out, plugin.DetectionHints()...)
	}
	return out
}
