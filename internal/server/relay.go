package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"golang.org/x/time/rate"

	"github.com/MrWong99/gagspeak/internal/observe"
)

// Relay message statuses reported through [observe.Metrics.RecordRelayMessage].
const (
	relayOK      = "ok"
	relayLimited = "limited"
	relayInvalid = "invalid"
)

// relayReply is sent for every inbound relay message. Text is only
// meaningful when Error is empty.
type relayReply struct {
	Wearer string `json:"wearer,omitempty"`
	Text   string `json:"text"`
	Error  string `json:"error,omitempty"`
}

// handleChat handles GET /v1/chat. Each inbound text message is a
// garbleRequest; the relay answers with the garbled text, or with an error
// when the message is malformed or the connection exceeds its rate.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	log := observe.Logger(r.Context())
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.origins,
	})
	if err != nil {
		log.Warn("server: websocket accept failed", "err", err)
		return
	}
	defer conn.CloseNow()
	conn.SetReadLimit(maxBodyBytes)

	log.Debug("server: relay connected", "remote", r.RemoteAddr)
	err = s.relay(r.Context(), conn)
	if websocket.CloseStatus(err) != -1 || errors.Is(err, context.Canceled) {
		log.Debug("server: relay disconnected", "remote", r.RemoteAddr)
		return
	}
	log.Warn("server: relay failed", "remote", r.RemoteAddr, "err", err)
}

// relay serves conn until the peer disconnects or ctx ends. It always
// returns a non-nil error.
func (s *Server) relay(ctx context.Context, conn *websocket.Conn) error {
	var limiter *rate.Limiter
	if s.relayRate > 0 {
		limiter = rate.NewLimiter(rate.Limit(s.relayRate), s.relayBurst)
	}

	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}

		reply, status := s.relayMessage(typ, data, limiter)
		if s.metrics != nil {
			s.metrics.RecordRelayMessage(ctx, status)
		}
		if err := wsjson.Write(ctx, conn, reply); err != nil {
			return err
		}
	}
}

func (s *Server) relayMessage(typ websocket.MessageType, data []byte, limiter *rate.Limiter) (relayReply, string) {
	if limiter != nil && !limiter.Allow() {
		return relayReply{Error: "rate limited"}, relayLimited
	}
	if typ != websocket.MessageText {
		return relayReply{Error: "expected a text message"}, relayInvalid
	}

	var req garbleRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return relayReply{Error: "invalid message: " + err.Error()}, relayInvalid
	}
	if err := req.validate(); err != nil {
		return relayReply{Wearer: req.Wearer, Error: err.Error()}, relayInvalid
	}

	resp := s.garble(req)
	return relayReply{Wearer: resp.Wearer, Text: resp.Text}, relayOK
}
