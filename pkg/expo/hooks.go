package expo

import (
	"context"
	"fmt"
	"sync"
)

// EventDevicesNotRegistered fires after a push with the tokens Expo reported as
// DeviceNotRegistered.
const EventDevicesNotRegistered = "devicesNotRegistered"

// HookFunc receives the tokens associated with an event.
type HookFunc func(ctx context.Context, tokens []string)

// Hooks is the event-name -> callback table owned by a Client.
type Hooks struct {
	mu  sync.RWMutex
	fns map[string]HookFunc
}

func newHooks() *Hooks {
	return &Hooks{fns: make(map[string]HookFunc)}
}

// Register installs fn for name, replacing any previous callback.
func (h *Hooks) Register(name string, fn HookFunc) error {
	if name != EventDevicesNotRegistered {
		return fmt.Errorf("%w: %q", ErrUnsupportedHook, name)
	}
	if fn == nil {
		return fmt.Errorf("%w: nil callback for %q", ErrUnsupportedHook, name)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.fns[name] = fn
	return nil
}

// Has reports whether a callback is registered for name.
func (h *Hooks) Has(name string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.fns[name]
	return ok
}

// Invoke calls the callback registered for name. It is a no-op when none is.
func (h *Hooks) Invoke(ctx context.Context, name string, tokens []string) {
	h.mu.RLock()
	fn, ok := h.fns[name]
	h.mu.RUnlock()
	if ok {
		fn(ctx, tokens)
	}
}

func (h *Hooks) clone() *Hooks {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := newHooks()
	for k, v := range h.fns {
		out.fns[k] = v
	}
	return out
}
