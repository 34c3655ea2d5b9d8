package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Alert stream over WebSocket. Message types follow graphql-transport-ws:
// connection_init/connection_ack, ping/pong, subscribe/next/error/complete.

var upgrader = websocket.Upgrader{CheckOrigin: func(_ *http.Request) bool { return true }}

const (
	wsReadTimeout  = 60 * time.Second
	wsPingInterval = 20 * time.Second
	wsWriteTimeout = 5 * time.Second
)

type wsMessage struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// subscribePayload selects a topic ("alerts" by default, or "board") and
// optionally narrows it to one driver.
type subscribePayload struct {
	Topic    string `json:"topic"`
	DriverID string `json:"driverId"`
}

type wsConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsConn) write(m wsMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return c.conn.WriteJSON(m)
}

func errorPayload(msg string) json.RawMessage {
	b, _ := json.Marshal(map[string]string{"message": msg})
	return b
}

// AlertsWSHandler handles GET /v1/alerts/ws.
func (s *Server) AlertsWSHandler(w http.ResponseWriter, r *http.Request) {
	raw, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	conn := &wsConn{conn: raw}
	done := make(chan struct{})
	defer func() {
		close(done)
		_ = raw.Close()
	}()

	type sub struct {
		topic string
		ch    chan Event
	}
	subs := map[string]sub{}
	var wg sync.WaitGroup
	defer func() {
		for _, sb := range subs {
			s.Broker.Unsubscribe(sb.topic, sb.ch)
		}
		wg.Wait()
	}()

	raw.SetReadLimit(1 << 16)
	_ = raw.SetReadDeadline(time.Now().Add(wsReadTimeout))
	raw.SetPongHandler(func(string) error { return raw.SetReadDeadline(time.Now().Add(wsReadTimeout)) })

	acked := false
	for {
		var msg wsMessage
		if err := raw.ReadJSON(&msg); err != nil {
			return
		}
		_ = raw.SetReadDeadline(time.Now().Add(wsReadTimeout))

		switch msg.Type {
		case "connection_init":
			if acked {
				continue
			}
			acked = true
			_ = conn.write(wsMessage{Type: "connection_ack"})
			go func() {
				t := time.NewTicker(wsPingInterval)
				defer t.Stop()
				for {
					select {
					case <-done:
						return
					case <-t.C:
						if err := conn.write(wsMessage{Type: "ping"}); err != nil {
							return
						}
					}
				}
			}()
		case "ping":
			_ = conn.write(wsMessage{Type: "pong"})
		case "pong":
		case "subscribe":
			if !acked {
				_ = conn.write(wsMessage{Type: "error", ID: msg.ID, Payload: errorPayload("connection_init required")})
				continue
			}
			if msg.ID == "" {
				_ = conn.write(wsMessage{Type: "error", Payload: errorPayload("subscription id required")})
				continue
			}
			if _, dup := subs[msg.ID]; dup {
				_ = conn.write(wsMessage{Type: "error", ID: msg.ID, Payload: errorPayload("subscription id already in use")})
				continue
			}
			var pl subscribePayload
			if len(msg.Payload) > 0 {
				if err := json.Unmarshal(msg.Payload, &pl); err != nil {
					_ = conn.write(wsMessage{Type: "error", ID: msg.ID, Payload: errorPayload("invalid payload")})
					continue
				}
			}
			if pl.Topic == "" {
				pl.Topic = TopicAlerts
			}
			if pl.Topic != TopicAlerts && pl.Topic != TopicBoard {
				_ = conn.write(wsMessage{Type: "error", ID: msg.ID, Payload: errorPayload("unknown topic " + pl.Topic)})
				continue
			}
			ch := s.Broker.Subscribe(pl.Topic)
			subs[msg.ID] = sub{topic: pl.Topic, ch: ch}
			wg.Add(1)
			go func(id, driverID string, c chan Event) {
				defer wg.Done()
				for evt := range c {
					if driverID != "" && evt.DriverID != driverID {
						continue
					}
					payload, err := json.Marshal(evt)
					if err != nil {
						continue
					}
					if err := conn.write(wsMessage{Type: "next", ID: id, Payload: payload}); err != nil {
						return
					}
				}
				_ = conn.write(wsMessage{Type: "complete", ID: id})
			}(msg.ID, pl.DriverID, ch)
		case "complete":
			if sb, ok := subs[msg.ID]; ok {
				s.Broker.Unsubscribe(sb.topic, sb.ch)
				delete(subs, msg.ID)
			}
		default:
			s.Logger.Debug().Str("type", msg.Type).Msg("ignoring unknown ws message")
		}
	}
}
