package telemetry

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
)

type proxyReply struct {
	Nonce  json.RawMessage `json:"nonce"`
	Result interface{}     `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// proxy runs the named operation for a single client and answers that client
// only. Request data that is not a JSON object is treated as empty. The
// request nonce is echoed as sent, whatever its JSON type; a missing or null
// nonce is replaced by a generated one.
func (s *Server) proxy(ctx context.Context, client *Client, name string, data json.RawMessage) {
	operation := s.operations[name]

	request := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &request); err != nil || request == nil {
		request = map[string]json.RawMessage{}
		data = json.RawMessage("{}")
	}

	nonce := request["nonce"]
	if len(nonce) == 0 || string(nonce) == "null" {
		nonce, _ = json.Marshal(uuid.New().String())
	}

	if s.config.RequireAuth && s.passwordHash != "" && !s.hub.isAuthenticated(client) {
		s.Send(client, name, proxyReply{Nonce: nonce, Error: "authentication required"})
		return
	}

	result, err := operation(ctx, data)
	if err != nil {
		s.logger.Debugf("Proxy request failed, operation: %s, client: %s, error: %v", name, client.id, err)
		s.Send(client, name, proxyReply{Nonce: nonce, Error: err.Error()})
		return
	}
	s.Send(client, name, proxyReply{Nonce: nonce, Result: result})
}
