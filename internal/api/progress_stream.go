package api

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"github.com/ignite/campaign-dispatch/internal/domain"
)

// ProgressStream fans progress ticks out to Server-Sent Events clients.
type ProgressStream struct {
	mu      sync.RWMutex
	clients map[chan []byte]struct{}
	last    []byte
}

// NewProgressStream creates an empty broadcaster.
func NewProgressStream() *ProgressStream {
	return &ProgressStream{clients: make(map[chan []byte]struct{})}
}

// Publish sends p to every connected client. Slow clients miss ticks.
func (s *ProgressStream) Publish(p domain.Progress) {
	msg, err := json.Marshal(p)
	if err != nil {
		log.Printf("[ProgressStream] encode error: %v", err)
		return
	}

	s.mu.Lock()
	s.last = msg
	for ch := range s.clients {
		select {
		case ch <- msg:
		default:
			// slow client, drop tick
		}
	}
	s.mu.Unlock()
}

// Clients returns the number of connected clients.
func (s *ProgressStream) Clients() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// HandleSSE streams ticks until the client disconnects. A new client first
// receives the most recent tick.
//
//	GET /api/dispatch/progress/stream
func (s *ProgressStream) HandleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := make(chan []byte, 64)
	s.mu.Lock()
	s.clients[ch] = struct{}{}
	if s.last != nil {
		ch <- s.last
	}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.clients, ch)
		s.mu.Unlock()
	}()

	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-ch:
			w.Write([]byte("data: "))
			w.Write(msg)
			w.Write([]byte("\n\n"))
			flusher.Flush()
		}
	}
}
