// Package observer streams world events to websocket clients.
package observer

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"evita/internal/protocol"
)

type Options struct {
	// LoopbackOnly refuses connections from non-loopback addresses.
	LoopbackOnly bool
	// QueueSize is the per-client buffer; the oldest frame is dropped when it is full.
	QueueSize int
	Logger    *log.Logger
}

// Hub fans TIMESLICE (and, on request, DIVISION) events out to observers.
// It implements world.EventLogger and never blocks the caller.
type Hub struct {
	opts     Options
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}
	last    []byte // latest TIMESLICE frame, sent to new clients

	nextID  atomic.Uint64
	dropped atomic.Uint64
}

type client struct {
	id        string
	divisions bool
	out       chan []byte
}

func NewHub(opts Options) *Hub {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 16
	}
	return &Hub{
		opts: opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
		clients: map[*client]struct{}{},
	}
}

func (h *Hub) WriteEvent(e protocol.Event) error {
	if h == nil || e == nil {
		return nil
	}
	typ := e.EventType()
	if typ != protocol.TypeTimeslice && typ != protocol.TypeDivision {
		return nil
	}
	b, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("observer: marshal %s: %w", typ, err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if typ == protocol.TypeTimeslice {
		h.last = b
	}
	for c := range h.clients {
		if typ == protocol.TypeDivision && !c.divisions {
			continue
		}
		if !sendLatest(c.out, b) {
			h.dropped.Add(1)
		}
	}
	return nil
}

// Clients returns the number of connected observers.
func (h *Hub) Clients() int {
	if h == nil {
		return 0
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Dropped returns the number of frames discarded for slow clients.
func (h *Hub) Dropped() uint64 {
	if h == nil {
		return 0
	}
	return h.dropped.Load()
}

func (h *Hub) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if h.opts.LoopbackOnly && !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		conn, err := h.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		c := &client{
			id:        fmt.Sprintf("O%d", h.nextID.Add(1)),
			divisions: r.URL.Query().Get("divisions") == "1",
			out:       make(chan []byte, h.opts.QueueSize),
		}
		h.join(c)
		defer h.leave(c)
		h.printf("observer join id=%s remote=%s divisions=%t", c.id, r.RemoteAddr, c.divisions)

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		// Writer goroutine.
		writeErr := make(chan error, 1)
		go func() {
			for {
				select {
				case <-ctx.Done():
					writeErr <- ctx.Err()
					return
				case b := <-c.out:
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						writeErr <- err
						cancel()
						return
					}
				}
			}
		}()

		// Reader loop: observers do not send anything, but reading is what
		// surfaces close frames and dead peers.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}

		cancel()
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))
		select {
		case <-writeErr:
		case <-time.After(500 * time.Millisecond):
		}
		h.printf("observer leave id=%s", c.id)
	}
}

func (h *Hub) join(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
	if h.last != nil {
		sendLatest(c.out, h.last)
	}
}

func (h *Hub) leave(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, c)
}

func (h *Hub) printf(format string, args ...any) {
	if h.opts.Logger != nil {
		h.opts.Logger.Printf(format, args...)
	}
}

// sendLatest enqueues b, evicting the oldest queued frame when ch is full.
// It reports false when a frame was lost.
func sendLatest(ch chan []byte, b []byte) bool {
	select {
	case ch <- b:
		return true
	default:
	}
	// Drop one.
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- b:
	default:
	}
	return false
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
