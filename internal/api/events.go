package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/coder/websocket"
	"github.com/rs/zerolog/hlog"

	"github.com/connecteur-digital/chatwidget/internal/agent/conversation"
	"github.com/connecteur-digital/chatwidget/internal/agent/model"
)

const (
	eventBuffer  = 32
	writeTimeout = 5 * time.Second
)

// snapshotFrame is the first frame of every event stream.
type snapshotFrame struct {
	Type     string         `json:"type"`
	Snapshot model.Snapshot `json:"snapshot"`
}

// streamEvents upgrades to WebSocket and forwards the conversation events.
// The stream is server to client only; client frames are ignored. It ends with
// StatusGoingAway after the conversation's closed event.
func (s *Server) streamEvents(w http.ResponseWriter, r *http.Request) {
	conv, ok := s.session(w, r)
	if !ok {
		return
	}
	logger := hlog.FromRequest(r)

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: originPatterns(s.cfg.AllowedOrigins),
	})
	if err != nil {
		logger.Error().Err(err).Str("conversation_id", conv.ID()).Msg("failed to accept websocket")
		return
	}
	status, reason := websocket.StatusNormalClosure, "stream ended"
	defer func() {
		if closeErr := ws.Close(status, reason); closeErr != nil {
			logger.Debug().Err(closeErr).Msg("failed to close websocket")
		}
	}()

	events, unsubscribe := s.manager.Hub().Subscribe(conv.ID(), eventBuffer)
	defer unsubscribe()

	ctx := ws.CloseRead(r.Context())

	if err := writeJSON(ctx, ws, snapshotFrame{Type: "snapshot", Snapshot: conv.Snapshot()}); err != nil {
		logger.Debug().Err(err).Msg("failed to send snapshot")
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := writeJSON(ctx, ws, ev); err != nil {
				if !errors.Is(err, context.Canceled) {
					logger.Debug().Err(err).Str("conversation_id", conv.ID()).Msg("failed to forward event")
				}
				return
			}
			if ev.Type == conversation.EventClosed {
				status, reason = websocket.StatusGoingAway, "conversation closed"
				return
			}
		}
	}
}

func writeJSON(ctx context.Context, ws *websocket.Conn, v any) error {
	data, err := sonic.Marshal(v)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return ws.Write(ctx, websocket.MessageText, data)
}

// originPatterns maps the CORS allow-list to websocket origin patterns.
func originPatterns(allowed []string) []string {
	out := make([]string, 0, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return []string{"*"}
		}
		out = append(out, hostOf(o))
	}
	return out
}

func hostOf(origin string) string {
	origin = strings.TrimPrefix(origin, "https://")
	return strings.TrimPrefix(origin, "http://")
}
