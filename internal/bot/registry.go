package bot

import (
	"context"
	"strings"

	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"
)

// Registry routes text messages and postbacks to bot modules. Modules
// are tried in registration order, so narrower matchers belong first.
type Registry struct {
	handlers []Handler
	byName   map[string]Handler
}

// NewRegistry creates an empty module registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]Handler)}
}

// Register adds a module to the dispatch chain.
func (r *Registry) Register(h Handler) {
	r.handlers = append(r.handlers, h)
	r.byName[h.Name()] = h
}

// DispatchMessage routes a text message to the first module that
// claims it. The second return names the module that replied, empty
// when no module claimed the text.
func (r *Registry) DispatchMessage(ctx context.Context, text string) ([]messaging_api.MessageInterface, string) {
	for _, h := range r.handlers {
		if h.CanHandle(text) {
			return h.HandleMessage(ctx, text), h.Name()
		}
	}
	return nil, ""
}

// DispatchPostback routes a postback payload by its module prefix.
func (r *Registry) DispatchPostback(ctx context.Context, data string) ([]messaging_api.MessageInterface, string) {
	for _, h := range r.handlers {
		prefix := h.PostbackPrefix()
		if prefix != "" && strings.HasPrefix(data, prefix) {
			return h.HandlePostback(ctx, strings.TrimPrefix(data, prefix)), h.Name()
		}
	}
	return nil, ""
}

// GetHandler returns the module registered under name, or nil.
func (r *Registry) GetHandler(name string) Handler {
	return r.byName[name]
}

// Modules lists the registered module names in dispatch order.
func (r *Registry) Modules() []string {
	names := make([]string, len(r.handlers))
	for i, h := range r.handlers {
		names[i] = h.Name()
	}
	return names
}
