package httpapi

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/venwatch/venwatch/internal/bus"
)

const (
	wsWriteTimeout = 10 * time.Second
	// wsBuffer bounds queued frames per client; slow readers drop frames
	// rather than stalling the tail.
	wsBuffer = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The tail is read-only data already exposed by the API.
	CheckOrigin: func(*http.Request) bool { return true },
}

// tail fans incoming event payloads out to connected websocket clients.
type tail struct {
	mu      sync.Mutex
	clients map[chan []byte]bool
}

func newTail() *tail {
	return &tail{clients: make(map[chan []byte]bool)}
}

func (t *tail) add() chan []byte {
	ch := make(chan []byte, wsBuffer)
	t.mu.Lock()
	t.clients[ch] = true
	t.mu.Unlock()
	return ch
}

func (t *tail) remove(ch chan []byte) {
	t.mu.Lock()
	delete(t.clients, ch)
	t.mu.Unlock()
}

func (t *tail) broadcast(payload []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for ch := range t.clients {
		select {
		case ch <- payload:
		default: // slow client, drop
		}
	}
}

// AttachTail subscribes the live tail to the ingest topic. Call once before
// Start when the tail is wanted.
func (s *Server) AttachTail(ctx context.Context, group string) error {
	return s.deps.Bus.Subscribe(ctx, bus.TopicIngestEvent, group, func(_ context.Context, msg *bus.Message) error {
		s.tail.broadcast(msg.Payload)
		return nil
	})
}

// handleWS upgrades the connection and streams events until the client
// goes away.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	ch := s.tail.add()
	defer s.tail.remove(ch)

	// Reader goroutine notices the peer closing.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			return
		case <-r.Context().Done():
			return
		case payload := <-ch:
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		}
	}
}
