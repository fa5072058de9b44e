package policy

import "sync"

// StatusHandle shares the latest verdict between the component that
// evaluates security and the components that gate on it. It is passed
// explicitly; there is no package-level instance.
type StatusHandle struct {
	mu   sync.RWMutex
	last *InitializationResult
	subs map[chan InitializationResult]struct{}
}

// NewStatusHandle returns an empty handle.
func NewStatusHandle() *StatusHandle {
	return &StatusHandle{subs: make(map[chan InitializationResult]struct{})}
}

// Publish records r as the latest verdict and notifies subscribers.
// Subscribers that are not keeping up miss intermediate verdicts.
func (h *StatusHandle) Publish(r InitializationResult) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.last = &r
	for ch := range h.subs {
		select {
		case ch <- r:
		default:
		}
	}
}

// Last returns the latest verdict, if any.
func (h *StatusHandle) Last() (InitializationResult, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.last == nil {
		return InitializationResult{}, false
	}
	return *h.last, true
}

// Secure reports whether a verdict exists and admits the terminal. With no
// verdict yet the answer is false.
func (h *StatusHandle) Secure() bool {
	r, ok := h.Last()
	return ok && r.OK()
}

// Subscribe returns a channel receiving future verdicts and a function
// that unsubscribes and closes it.
func (h *StatusHandle) Subscribe() (<-chan InitializationResult, func()) {
	ch := make(chan InitializationResult, 1)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, ch)
			h.mu.Unlock()
			close(ch)
		})
	}
}
