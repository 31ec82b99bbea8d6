package telemetry

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/traaittPlatform/traaittplatformd-ha/pkg/eventbus"
)

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Errorf("WebSocket upgrade failed, error: %v", err)
		return
	}

	client := s.hub.register(conn, s.config.SendBuffer)
	s.report(eventbus.EventInfo, fmt.Sprintf("[WEBSOCKET] Client connected with socketId: %s", client.id))

	go s.writePump(client)
	go s.readPump(client)
}

func (s *Server) readPump(client *Client) {
	defer func() {
		if s.hub.unregister(client) {
			s.report(eventbus.EventInfo, fmt.Sprintf("[WEBSOCKET] Client disconnected with socketId: %s", client.id))
		}
		client.conn.Close()
	}()

	deadline := s.config.PingInterval + s.config.PongTimeout
	client.conn.SetReadLimit(maxMessageSize)
	client.conn.SetReadDeadline(time.Now().Add(deadline))
	client.conn.SetPongHandler(func(string) error {
		return client.conn.SetReadDeadline(time.Now().Add(deadline))
	})

	for {
		_, message, err := client.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warnf("WebSocket read error, client: %s, error: %v", client.id, err)
			}
			return
		}
		client.conn.SetReadDeadline(time.Now().Add(deadline))
		s.handleMessage(client, message)
	}
}

func (s *Server) writePump(client *Client) {
	ticker := time.NewTicker(s.config.PingInterval)
	defer func() {
		ticker.Stop()
		client.conn.Close()
	}()

	for {
		select {
		case message, ok := <-client.send:
			if !ok {
				client.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			client.conn.SetWriteDeadline(time.Now().Add(s.config.PongTimeout))
			if err := client.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			client.conn.SetWriteDeadline(time.Now().Add(s.config.PongTimeout))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *Server) handleMessage(client *Client, data []byte) {
	var msg inbound
	if err := json.Unmarshal(data, &msg); err != nil {
		s.logger.Debugf("Ignoring malformed message, client: %s, error: %v", client.id, err)
		return
	}

	if msg.Event == authEvent {
		var password string
		if err := json.Unmarshal(msg.Data, &password); err != nil {
			password = ""
		}
		if s.authenticate(client, password) {
			s.Send(client, authEvent, true)
			s.report(eventbus.EventInfo, fmt.Sprintf("[WEBSOCKET] Client authenticated with socketId: %s", client.id))
		} else {
			s.Send(client, authEvent, false)
			s.report(eventbus.EventWarning, fmt.Sprintf("[WEBSOCKET] Client failed authentication with socketId: %s", client.id))
		}
		return
	}

	if _, ok := s.operations[msg.Event]; ok {
		go s.proxy(s.ctx, client, msg.Event, msg.Data)
		return
	}
	s.logger.Debugf("Ignoring unknown event, client: %s, event: %s", client.id, msg.Event)
}
