// Package web serves the dashboard-facing websocket feed of recognized
// call events.
package web

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/dbehnke/amichand/internal/calllog"
	"github.com/dbehnke/amichand/internal/callerid"
	"go.uber.org/zap"
)

// messageEnvelope is the WS wire format: a message type tag plus payload.
type messageEnvelope struct {
	MessageType string      `json:"messageType"`
	Data        interface{} `json:"data,omitempty"`
	Timestamp   int64       `json:"timestamp"`
}

// Hub fans out recognized call events to connected dashboard clients and
// doubles as a core.Reporter: OnBDial/OnTransfer broadcast directly.
type Hub struct {
	mu      sync.RWMutex
	clients map[*websocket.Conn]struct{}
	log     *calllog.Log
	zlog    *zap.Logger
}

// NewHub builds a Hub that replays log's recent events to newly connecting
// clients.
func NewHub(log *calllog.Log, zlog *zap.Logger) *Hub {
	return &Hub{clients: map[*websocket.Conn]struct{}{}, log: log, zlog: zlog}
}

// AuthValidator decides whether an inbound WS upgrade is allowed.
type AuthValidator func(r *http.Request) bool

// HandleWS upgrades the request and registers the client, sending it a
// snapshot of recent call events before streaming new ones.
func (h *Hub) HandleWS(authValidator AuthValidator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if authValidator != nil && !authValidator(r) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			http.Error(w, "websocket_accept_failed", http.StatusInternalServerError)
			return
		}
		h.mu.Lock()
		h.clients[c] = struct{}{}
		count := len(h.clients)
		h.mu.Unlock()
		h.zlog.Info("ws client connected", zap.Int("clients", count))

		go func() {
			defer func() {
				h.mu.Lock()
				delete(h.clients, c)
				h.mu.Unlock()
				c.Close(websocket.StatusNormalClosure, "")
			}()
			for {
				if _, _, err := c.Read(context.Background()); err != nil {
					return
				}
			}
		}()

		snap := messageEnvelope{MessageType: "RECENT_CALLS", Data: h.log.Recent(), Timestamp: time.Now().UnixMilli()}
		b, _ := json.Marshal(snap)
		if err := c.Write(context.Background(), websocket.MessageText, b); err != nil {
			h.zlog.Warn("ws write RECENT_CALLS failed", zap.Error(err))
		}
	}
}

func (h *Hub) broadcast(env messageEnvelope) {
	payload, _ := json.Marshal(env)
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		go func(conn *websocket.Conn) {
			conn.Write(context.Background(), websocket.MessageText, payload)
		}(c)
	}
}

// TraceAMI, TraceMsg, and OnEvent are no-ops: the dashboard cares only
// about the two recognized high-level call events, not raw AMI traffic.
func (h *Hub) TraceAMI(ev map[string]string) {}
func (h *Hub) TraceMsg(msg string)           {}
func (h *Hub) OnEvent(ev map[string]string)  {}

// OnBDial broadcasts a B_DIAL message to every connected client.
func (h *Hub) OnBDial(caller, callee callerid.CallerID) {
	h.broadcast(messageEnvelope{
		MessageType: "B_DIAL",
		Data:        calllog.CallEvent{At: time.Now(), Kind: calllog.KindBDial, Caller: caller, Callee: callee},
		Timestamp:   time.Now().UnixMilli(),
	})
}

// OnTransfer broadcasts a TRANSFER message to every connected client.
func (h *Hub) OnTransfer(redirector, party1, party2 callerid.CallerID) {
	h.broadcast(messageEnvelope{
		MessageType: "TRANSFER",
		Data: calllog.CallEvent{
			At: time.Now(), Kind: calllog.KindTransfer,
			Redirector: redirector, Party1: party1, Party2: party2,
		},
		Timestamp: time.Now().UnixMilli(),
	})
}

// HeartbeatLoop periodically pings every connected client so idle
// connections behind proxies don't get reaped.
func (h *Hub) HeartbeatLoop(interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for range ticker.C {
		h.mu.RLock()
		conns := make([]*websocket.Conn, 0, len(h.clients))
		for c := range h.clients {
			conns = append(conns, c)
		}
		h.mu.RUnlock()
		for _, c := range conns {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			_ = c.Ping(ctx)
			cancel()
		}
	}
}

// ClientCount reports how many dashboard clients are currently connected.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
