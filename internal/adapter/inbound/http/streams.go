package http

import "sync"

// streamRegistry tracks the open push streams per session so dispatched
// responses and server-initiated messages can be fanned out. Multiple
// streams may share one session.
type streamRegistry struct {
	mu      sync.RWMutex
	streams map[string][]chan []byte
}

func newStreamRegistry() *streamRegistry {
	return &streamRegistry{
		streams: make(map[string][]chan []byte),
	}
}

// register adds a push stream to a session.
func (r *streamRegistry) register(sessionID string, ch chan []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.streams[sessionID] = append(r.streams[sessionID], ch)
}

// unregister removes a push stream from a session. Called when the client
// disconnects; empty entries are dropped immediately.
func (r *streamRegistry) unregister(sessionID string, ch chan []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	channels := r.streams[sessionID]
	for i, c := range channels {
		if c == ch {
			r.streams[sessionID] = append(channels[:i], channels[i+1:]...)
			break
		}
	}
	if len(r.streams[sessionID]) == 0 {
		delete(r.streams, sessionID)
	}
}

// publish fans a message out to every stream of a session. Streams that
// cannot keep up have the message dropped rather than blocking the sender.
func (r *streamRegistry) publish(sessionID string, msg []byte) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, ch := range r.streams[sessionID] {
		select {
		case ch <- msg:
		default:
		}
	}
}

// terminate closes every stream of a session. Returns false when the session
// had no streams open.
func (r *streamRegistry) terminate(sessionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	channels, exists := r.streams[sessionID]
	if !exists {
		return false
	}
	for _, ch := range channels {
		close(ch)
	}
	delete(r.streams, sessionID)
	return true
}

// closeAll closes every stream of every session. Called on shutdown.
func (r *streamRegistry) closeAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, channels := range r.streams {
		for _, ch := range channels {
			close(ch)
		}
	}
	r.streams = make(map[string][]chan []byte)
}
