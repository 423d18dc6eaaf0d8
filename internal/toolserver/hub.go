// ABOUTME: HTTP hub exposing tool sessions over Server-Sent Events.
// ABOUTME: GET /events opens a session, POST /send delivers frames into it.

package toolserver

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/google/uuid"

	"github.com/HeetVekariya/devto-agent/internal/protocol"
	"github.com/HeetVekariya/devto-agent/internal/transport"
)

// Hub serves tool sessions over HTTP. Each GET /events connection becomes
// one session: the first SSE event names the POST endpoint for that
// session, every later event is a protocol frame.
type Hub struct {
	server *Server
	logger *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*sseChannel
}

// NewHub creates a Hub dispatching to the given Server.
func NewHub(server *Server, logger *slog.Logger) *Hub {
	return &Hub{
		server:   server,
		logger:   logger.With("component", "hub"),
		sessions: make(map[string]*sseChannel),
	}
}

// Handler returns the hub's HTTP routes.
func (h *Hub) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /events", h.handleEvents)
	mux.HandleFunc("POST /send", h.handleSend)
	return mux
}

func (h *Hub) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	sessionID := uuid.NewString()
	ch := newSSEChannel()

	h.mu.Lock()
	h.sessions[sessionID] = ch
	h.mu.Unlock()
	defer func() {
		h.mu.Lock()
		delete(h.sessions, sessionID)
		h.mu.Unlock()
		ch.Close()
	}()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	// Bootstrap event: where to POST frames for this session.
	fmt.Fprintf(w, "event: endpoint\ndata: /send?session=%s\n\n", sessionID)
	flusher.Flush()

	h.logger.Info("stream session opened", "session_id", sessionID)
	go h.server.ServeChannel(r.Context(), ch, sessionID)

	for {
		select {
		case <-r.Context().Done():
			h.logger.Info("stream session disconnected", "session_id", sessionID)
			return
		case f, ok := <-ch.outgoing:
			if !ok {
				return
			}
			data, err := protocol.Encode(f)
			if err != nil {
				h.logger.Error("failed to encode frame", "error", err)
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
		}
	}
}

func (h *Hub) handleSend(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session")
	if sessionID == "" {
		http.Error(w, "missing session", http.StatusBadRequest)
		return
	}

	h.mu.RLock()
	ch := h.sessions[sessionID]
	h.mu.RUnlock()
	if ch == nil {
		http.Error(w, "unknown session", http.StatusNotFound)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 4<<20))
	if err != nil {
		http.Error(w, "reading body", http.StatusBadRequest)
		return
	}

	f, err := protocol.Decode(body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := ch.deliver(f); err != nil {
		http.Error(w, "session closed", http.StatusGone)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// sseChannel adapts one SSE connection to the transport.Channel contract.
// Send queues frames for the event stream; delivered frames feed Frames().
type sseChannel struct {
	outgoing chan protocol.Frame
	incoming chan protocol.Frame

	closeMu sync.Mutex
	closed  bool
}

func newSSEChannel() *sseChannel {
	return &sseChannel{
		outgoing: make(chan protocol.Frame, 16),
		incoming: make(chan protocol.Frame, 16),
	}
}

func (c *sseChannel) Send(f protocol.Frame) error {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	if c.closed {
		return transport.ErrChannelClosed
	}
	select {
	case c.outgoing <- f:
		return nil
	default:
		return fmt.Errorf("session event queue full: %w", transport.ErrChannelClosed)
	}
}

func (c *sseChannel) Frames() <-chan protocol.Frame {
	return c.incoming
}

func (c *sseChannel) deliver(f protocol.Frame) error {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	if c.closed {
		return transport.ErrChannelClosed
	}
	select {
	case c.incoming <- f:
		return nil
	default:
		return fmt.Errorf("session inbound queue full: %w", transport.ErrChannelClosed)
	}
}

func (c *sseChannel) Close() error {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	close(c.incoming)
	close(c.outgoing)
	return nil
}
