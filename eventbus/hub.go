/*
hub.go - WebSocket transport for the event bus

PURPOSE:
  Upgrades /ws connections, performs the {type:"auth"} handshake, and
  registers each connection as an eventbus.Subscriber for its authenticated
  userId (or AllAdmins). Sends periodic pings and prunes dead connections
  with a ticker goroutine guarded by a stop channel.
*/
package eventbus

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const heartbeatInterval = 30 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true }, // CORS handled by the HTTP layer, not here
}

type authFrame struct {
	Type   string `json:"type"`
	UserID string `json:"userId"`
	Admin  bool   `json:"admin"`
}

// Hub owns live websocket connections and relays Bus events to them.
type Hub struct {
	bus  *Bus
	log  zerolog.Logger

	mu    sync.Mutex
	conns map[*wsConn]struct{}

	stop chan struct{}
	once sync.Once
}

type wsConn struct {
	conn        *websocket.Conn
	writeMu     sync.Mutex
	unsubscribe func()
}

func (c *wsConn) Deliver(evt Event) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.WriteJSON(evt)
}

func NewHub(bus *Bus, log zerolog.Logger) *Hub {
	h := &Hub{bus: bus, log: log, conns: make(map[*wsConn]struct{}), stop: make(chan struct{})}
	go h.heartbeatLoop()
	return h
}

// Close stops the heartbeat loop and closes every live connection.
func (h *Hub) Close() {
	h.once.Do(func() { close(h.stop) })
}

// ServeHTTP upgrades the connection, performs the auth handshake, then
// registers the connection with the bus until the client disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	var frame authFrame
	if err := conn.ReadJSON(&frame); err != nil || frame.Type != "auth" {
		_ = conn.WriteJSON(map[string]string{"type": "auth:error"})
		_ = conn.Close()
		return
	}

	interest := frame.UserID
	if frame.Admin {
		interest = AllAdmins
	}

	wc := &wsConn{conn: conn}
	wc.unsubscribe = h.bus.Subscribe(interest, wc)

	h.mu.Lock()
	h.conns[wc] = struct{}{}
	h.mu.Unlock()

	_ = conn.WriteJSON(map[string]string{"type": "auth:success"})

	h.readLoop(wc)
}

// readLoop blocks until the client closes the connection or a read fails,
// then unregisters it. Inbound messages beyond auth carry no protocol
// meaning for this engine (the transport is push-only from the server).
func (h *Hub) readLoop(wc *wsConn) {
	defer h.remove(wc)
	for {
		if _, _, err := wc.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) remove(wc *wsConn) {
	h.mu.Lock()
	delete(h.conns, wc)
	h.mu.Unlock()
	wc.unsubscribe()
	_ = wc.conn.Close()
}

func (h *Hub) heartbeatLoop() {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-h.stop:
			h.mu.Lock()
			for wc := range h.conns {
				_ = wc.conn.Close()
			}
			h.conns = make(map[*wsConn]struct{})
			h.mu.Unlock()
			return
		case <-ticker.C:
			h.ping()
		}
	}
}

func (h *Hub) ping() {
	h.mu.Lock()
	targets := make([]*wsConn, 0, len(h.conns))
	for wc := range h.conns {
		targets = append(targets, wc)
	}
	h.mu.Unlock()

	for _, wc := range targets {
		wc.writeMu.Lock()
		err := wc.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
		wc.writeMu.Unlock()
		if err != nil {
			h.remove(wc)
		}
	}
}
