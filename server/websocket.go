package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/xhad/verity/pkg/pipeline"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type Message struct {
	Type    string      `json:"type"`
	Content string      `json:"content,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

type result struct {
	Label       string  `json:"label"`
	Probability float64 `json:"probability"`
	Title       string  `json:"title"`
	URL         string  `json:"url,omitempty"`
	Mode        string  `json:"mode"`
}

// handleWebSocket answers predict messages one at a time per connection.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Msg("websocket read failed")
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(message, &msg); err != nil {
			s.sendMessage(conn, Message{Type: "error", Content: "invalid message"})
			continue
		}

		switch msg.Type {
		case "predict":
			s.handlePredictMessage(conn, r, msg)
		default:
			s.sendMessage(conn, Message{Type: "error", Content: fmt.Sprintf("unknown message type %q", msg.Type)})
		}
	}
}

func (s *Server) handlePredictMessage(conn *websocket.Conn, r *http.Request, msg Message) {
	fields, _ := msg.Data.(map[string]interface{})
	in := inputFromFields(fields)

	if in.URL != "" {
		s.sendMessage(conn, Message{Type: "status", Content: fmt.Sprintf("Fetching %s", in.URL)})
	}
	s.sendMessage(conn, Message{Type: "status", Content: "Classifying"})

	out, err := s.predictor.Predict(r.Context(), in)
	switch {
	case errors.Is(err, pipeline.ErrMissingInput):
		s.sendMessage(conn, Message{Type: "error", Content: apiMissingInput})
	case err != nil:
		log.Error().Err(err).Msg("websocket prediction failed")
		s.sendMessage(conn, Message{Type: "error", Content: apiFailed})
	default:
		s.sendMessage(conn, Message{Type: "result", Data: result{
			Label:       out.Label,
			Probability: out.Probability,
			Title:       out.Input.Title,
			URL:         out.Input.URL,
			Mode:        out.Mode,
		}})
	}
}

func (s *Server) sendMessage(conn *websocket.Conn, msg Message) {
	if err := conn.WriteJSON(msg); err != nil {
		log.Warn().Err(err).Str("type", msg.Type).Msg("error sending message")
	}
}
