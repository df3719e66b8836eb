package realtime

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"nhooyr.io/websocket"
)

type connState int

const (
	stateConnected connState = iota
	stateJoined
	stateDisconnected
)

func (s connState) String() string {
	switch s {
	case stateConnected:
		return "connected"
	case stateJoined:
		return "joined"
	case stateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

type clientMessage struct {
	Type    string `json:"type"`
	Channel string `json:"channel,omitempty"`
	OrgID   string `json:"orgId,omitempty"`
}

// ServeWS upgrades the request and runs the connection protocol until the
// client disconnects or goes silent past the read timeout. allowedOrgID is
// the organization the caller was authorized for by the HTTP layer; joins to
// any other organization are rejected here without re-validating identity.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, allowedOrgID string) {
	c, err := websocket.Accept(w, r, nil)
	if err != nil {
		log.Printf("websocket accept failed: %v", err)
		return
	}
	h.handleConn(r.Context(), c, allowedOrgID)
}

// handleConn drives the per-connection state machine:
// connected -> joined -> disconnected (terminal; a reconnect is a new
// connection identity). A dedicated writer goroutine drains the outbound
// queue so a stalled peer only ever stalls itself.
func (h *Hub) handleConn(parent context.Context, c *websocket.Conn, allowedOrgID string) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	connID := uuid.NewString()
	send := make(chan []byte, h.sendBuffer)
	state := stateConnected
	joined := map[Channel]*subscriber{}

	defer func() {
		for _, sub := range joined {
			h.leave(sub)
		}
		state = stateDisconnected
		_ = c.Close(websocket.StatusNormalClosure, "")
		log.Printf("connection %s %s", connID, state)
	}()

	go func() {
		for {
			select {
			case payload := <-send:
				writeCtx, writeCancel := context.WithTimeout(ctx, h.writeTimeout)
				err := c.Write(writeCtx, websocket.MessageText, payload)
				writeCancel()
				if err != nil {
					cancel()
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		readCtx, readCancel := context.WithTimeout(ctx, h.readTimeout)
		_, data, err := c.Read(readCtx)
		readCancel()
		if err != nil {
			return
		}
		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.enqueue(send, connID, serverMessage{Type: "error", Code: "bad_message", Message: "invalid json"})
			continue
		}
		switch msg.Type {
		case "join":
			channel, ok := ParseChannel(msg.Channel)
			if !ok {
				h.enqueue(send, connID, serverMessage{Type: "error", Code: "bad_channel", Message: "unknown channel: " + msg.Channel})
				continue
			}
			if msg.OrgID == "" || msg.OrgID != allowedOrgID {
				h.enqueue(send, connID, serverMessage{Type: "error", Code: "forbidden", Message: "not authorized for organization"})
				continue
			}
			if _, exists := joined[channel]; exists {
				h.enqueue(send, connID, serverMessage{Type: "error", Code: "already_joined", Message: "already joined " + string(channel)})
				continue
			}
			sub := &subscriber{connID: connID, orgID: msg.OrgID, channel: channel, send: send}
			h.join(sub)
			joined[channel] = sub
			state = stateJoined
			h.enqueue(send, connID, serverMessage{Type: "joined", Channel: string(channel), OrgID: msg.OrgID})
			if channel == ChannelLeaderboard {
				// Initial sync to this connection only; an org with no scores
				// yields an empty list, not an error.
				syncCtx, syncCancel := context.WithTimeout(ctx, h.writeTimeout)
				payload, payloadErr := h.rankingsPayload(syncCtx, msg.OrgID)
				syncCancel()
				if payloadErr == nil {
					h.enqueueRaw(send, connID, "rankings", payload)
				}
			}
		case "heartbeat":
			// Liveness probe only; never touches ranking state.
			h.enqueue(send, connID, serverMessage{
				Type:       "heartbeat_ack",
				ServerTime: h.now().UTC().Format(time.RFC3339Nano),
			})
		default:
			h.enqueue(send, connID, serverMessage{Type: "error", Code: "unknown_type", Message: "unknown message type: " + msg.Type})
		}
	}
}

func (h *Hub) enqueue(send chan []byte, connID string, msg serverMessage) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return
	}
	h.enqueueRaw(send, connID, msg.Type, payload)
}

func (h *Hub) enqueueRaw(send chan []byte, connID, msgType string, payload []byte) {
	select {
	case send <- payload:
	default:
		log.Printf("dropping %s message for slow connection %s", msgType, connID)
	}
}
