package websocket

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"parlor/usecase"
	"parlor/utils/log"
)

// Server upgrades connections and speaks the chat frame protocol: inbound
// frames are {"type":"chat"} and {"type":"reset"}, outbound frames are
// "reply", "reset_ok" and "error".
type Server struct {
	upgrader websocket.Upgrader
	svc      *usecase.ChatService
	hub      *Hub
}

func NewServer(svc *usecase.ChatService) *Server {
	return &Server{
		upgrader: websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		svc:      svc,
		hub:      NewHub(),
	}
}

func (s *Server) RunWebsocketHub() {
	s.hub.Run()
}

func (s *Server) GetHub() *Hub {
	return s.hub
}

// Frame is an inbound client frame.
type Frame struct {
	Type  string `json:"type"`
	Text  string `json:"text,omitempty"`
	Mode  string `json:"mode,omitempty"`
	Speak bool   `json:"speak,omitempty"`
}

type replyFrame struct {
	Type     string `json:"type"`
	Text     string `json:"text"`
	Mode     string `json:"mode"`
	Enriched bool   `json:"enriched"`
	Fallback bool   `json:"fallback"`
	Audio    string `json:"audio,omitempty"`
}

type statusFrame struct {
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// handleFrame runs one inbound frame and returns the frame to send back.
func (s *Server) handleFrame(ctx context.Context, sessionID string, raw []byte) []byte {
	var frame Frame
	if err := json.Unmarshal(raw, &frame); err != nil {
		log.WithCtx(ctx).Debug("Malformed frame received", zap.Error(err))
		return errorFrame("bad_request", "malformed frame")
	}

	switch frame.Type {
	case "chat":
		text := strings.TrimSpace(frame.Text)
		if text == "" {
			return errorFrame("bad_request", "text is required")
		}

		reply, audio := s.svc.HandleTurn(ctx, sessionID, text, frame.Mode, frame.Speak)
		out := replyFrame{
			Type:     "reply",
			Text:     reply.Text,
			Mode:     string(reply.Mode),
			Enriched: reply.Enriched,
			Fallback: reply.Fallback,
		}
		if len(audio) > 0 {
			out.Audio = base64.StdEncoding.EncodeToString(audio)
		}
		return mustMarshal(out)

	case "reset":
		s.svc.ResetSession(ctx, sessionID)
		return mustMarshal(statusFrame{Type: "reset_ok"})

	default:
		return errorFrame("unknown_type", fmt.Sprintf("unknown frame type: %q", frame.Type))
	}
}

func errorFrame(code, message string) []byte {
	return mustMarshal(statusFrame{Type: "error", Code: code, Message: message})
}

func mustMarshal(v interface{}) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		// Frames are plain structs; this cannot fail at runtime.
		panic(err)
	}
	return data
}
