package assistant

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ziadkadry99/assistd/internal/llm"
	"github.com/ziadkadry99/assistd/internal/ratelimit"
	"github.com/ziadkadry99/assistd/internal/stream"
)

const writeWait = 10 * time.Second

// socketRequest is one inbound WebSocket frame. "message" carries a single
// question; "chat" carries a conversation like POST /api/assistant/chat.
type socketRequest struct {
	Type     string      `json:"type"`
	Message  string      `json:"message"`
	Messages []Message   `json:"messages"`
	Context  UserContext `json:"context"`
}

// socketEmitter writes each event as one JSON text frame.
type socketEmitter struct {
	conn *websocket.Conn
}

func (e socketEmitter) Emit(ev stream.Event) error {
	e.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return e.conn.WriteJSON(ev)
}

func (s *Service) upgrader() *websocket.Upgrader {
	u := &websocket.Upgrader{}
	if s.opts.AllowAllOrigins {
		u.CheckOrigin = func(r *http.Request) bool { return true }
	}
	return u
}

func (s *Service) handleSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader().Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warnw("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	em := socketEmitter{conn: conn}
	key := ratelimit.ClientKey(r, s.opts.AssistantPolicy.Prefix)
	ctx := r.Context()

	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warnw("websocket read failed", "error", err)
			}
			return
		}

		if s.limiter != nil {
			p := s.opts.AssistantPolicy
			res, err := s.limiter.CheckAndConsume(ctx, key, p.Window, p.Max)
			if err != nil {
				s.logger.Errorw("rate limiter error", "error", err, "key", key)
			} else if !res.Allowed {
				if stream.Fail(em, "Rate limit exceeded") != nil {
					return
				}
				continue
			}
		}

		var in socketRequest
		if err := json.Unmarshal(frame, &in); err != nil {
			if stream.Fail(em, "invalid message format") != nil {
				return
			}
			continue
		}

		var req Request
		switch in.Type {
		case "message", "":
			if strings.TrimSpace(in.Message) == "" {
				err = errNoUserMessage
				break
			}
			req = Request{Route: RouteSocket, Messages: []Message{{Role: string(llm.RoleUser), Content: in.Message}}}
		case "chat":
			req, err = chatRequest(RouteSocket, in.Messages, in.Context)
		default:
			if stream.Fail(em, "unknown message type: "+in.Type) != nil {
				return
			}
			continue
		}
		if err != nil {
			if stream.Fail(em, err.Error()) != nil {
				return
			}
			continue
		}

		if res := s.Check(ctx, RouteSocket, req.LastUserMessage()); !res.Allowed {
			s.refuse(ctx, em, res)
			continue
		}
		if err := s.Serve(ctx, req.Sanitized(), em); err != nil && ctx.Err() == nil {
			s.logger.Debugw("websocket answer ended with error", "error", err)
		}
	}
}
