// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package api

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/Thermoquad/flatcap/pkg/flatcap"
)

const (
	clientBuffer = 64
	writeTimeout = 5 * time.Second
	pingInterval = 30 * time.Second
	readLimit    = 512
)

// Hub fans device events out to websocket subscribers as binary CBOR
// messages. It implements flatcap.Sink and never blocks the publisher: a
// subscriber whose buffer is full misses the event.
type Hub struct {
	clients  *xsync.MapOf[string, *subscriber]
	upgrader websocket.Upgrader
	log      *slog.Logger
}

type subscriber struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

func (s *subscriber) close() {
	s.once.Do(func() {
		close(s.done)
		_ = s.conn.Close()
	})
}

// NewHub creates an empty hub.
func NewHub(log *slog.Logger) *Hub {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Hub{
		clients: xsync.NewMapOf[string, *subscriber](),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		log: log,
	}
}

// Publish implements flatcap.Sink.
func (h *Hub) Publish(e flatcap.Event) {
	if h.clients.Size() == 0 {
		return
	}
	data, err := flatcap.EncodeEvent(e)
	if err != nil {
		h.log.Error("Failed to encode event", "kind", e.Kind, "err", err)
		return
	}
	h.clients.Range(func(id string, s *subscriber) bool {
		h.deliver(s, data)
		return true
	})
}

func (h *Hub) deliver(s *subscriber, data []byte) {
	select {
	case s.send <- data:
	case <-s.done:
	default:
		h.log.Warn("Subscriber too slow, dropping event", "client", s.id)
	}
}

// Count returns the number of connected subscribers.
func (h *Hub) Count() int {
	return h.clients.Size()
}

// Close disconnects every subscriber.
func (h *Hub) Close() {
	h.clients.Range(func(id string, s *subscriber) bool {
		s.close()
		return true
	})
}

// Serve upgrades the request and streams events until the client goes away.
// initial events are queued before any live event.
func (h *Hub) Serve(c *gin.Context, initial ...flatcap.Event) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("Websocket upgrade failed", "err", err)
		return
	}

	s := &subscriber{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, clientBuffer),
		done: make(chan struct{}),
	}
	for _, e := range initial {
		if data, err := flatcap.EncodeEvent(e); err == nil {
			h.deliver(s, data)
		}
	}

	h.clients.Store(s.id, s)
	h.log.Info("Subscriber connected", "client", s.id, "remote", c.ClientIP())

	go h.writeLoop(s)
	h.readLoop(s)

	h.clients.Delete(s.id)
	s.close()
	h.log.Info("Subscriber disconnected", "client", s.id)
}

// readLoop discards client messages; it exists to notice the close.
func (h *Hub) readLoop(s *subscriber) {
	s.conn.SetReadLimit(readLimit)
	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writeLoop(s *subscriber) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case data := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := s.conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
				s.close()
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.close()
				return
			}
		}
	}
}

func (s *Server) getEvents(c *gin.Context) {
	st := s.dev.Snapshot()
	status := st.Status
	s.hub.Serve(c,
		flatcap.Event{Kind: flatcap.EventConnection, At: time.Now(), On: st.Connected},
		flatcap.Event{Kind: flatcap.EventStatus, At: time.Now(), Status: &status},
		flatcap.Event{Kind: flatcap.EventPark, At: time.Now(), State: st.Park, Direction: st.Direction, Switch: st.Switch},
		flatcap.Event{Kind: flatcap.EventLight, At: time.Now(), On: st.LightOn},
	)
}
