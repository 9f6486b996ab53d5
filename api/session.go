package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	orchestratorx "github.com/tanpawarit/PolicyPilot/agent/agents/orchestrator"
	contractx "github.com/tanpawarit/PolicyPilot/agent/contract"
)

const (
	frameStart = "start"
	frameToken = "token"
	frameEnd   = "end"
	frameError = "error"

	inboundBuffer = 8
)

type inboundFrame struct {
	Message string `json:"message"`
}

type outboundFrame struct {
	Type     string `json:"type"`
	ThreadID string `json:"thread_id,omitempty"`
	Content  string `json:"content,omitempty"`
}

// handleChat serves one chat session. Frames are handled one at a time; a
// client disconnect cancels the turn in flight.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	threadID := strings.TrimSpace(r.URL.Query().Get("thread_id"))
	if threadID == "" {
		threadID = uuid.NewString()
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Ctx(r.Context()).Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	logger := log.Ctx(ctx).With().Str("thread_id", threadID).Logger()
	ctx = logger.WithContext(ctx)
	logger.Info().Msg("chat session opened")

	frames := make(chan []byte, inboundBuffer)
	go readFrames(ctx, cancel, conn, frames)

	for raw := range frames {
		if err := s.serveFrame(ctx, conn, threadID, raw); err != nil {
			logger.Debug().Err(err).Msg("chat session write failed")
			cancel()
			break
		}
	}
	logger.Info().Msg("chat session closed")
}

// readFrames owns the read side of conn. It cancels the session when the
// peer goes away and closes frames on exit.
func readFrames(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, frames chan<- []byte) {
	defer close(frames)
	defer cancel()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Ctx(ctx).Debug().Err(err).Msg("chat session read ended")
			}
			return
		}
		select {
		case frames <- data:
		case <-ctx.Done():
			return
		}
	}
}

// serveFrame runs one inbound frame to completion. Only write failures are
// returned; turn failures go back to the client as error frames.
func (s *Server) serveFrame(ctx context.Context, conn *websocket.Conn, threadID string, raw []byte) error {
	var in inboundFrame
	if err := json.Unmarshal(raw, &in); err != nil || strings.TrimSpace(in.Message) == "" {
		return conn.WriteJSON(outboundFrame{Type: frameError, Content: "Invalid message frame"})
	}

	if err := conn.WriteJSON(outboundFrame{Type: frameStart, ThreadID: threadID}); err != nil {
		return err
	}

	reply, err := s.chat.HandleMessage(ctx, threadID, in.Message)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return conn.WriteJSON(outboundFrame{Type: frameError, Content: clientError(err)})
	}

	for _, tok := range splitTokens(reply.Text) {
		if err := conn.WriteJSON(outboundFrame{Type: frameToken, Content: tok}); err != nil {
			return err
		}
	}
	return conn.WriteJSON(outboundFrame{Type: frameEnd})
}

// splitTokens cuts text at word boundaries, keeping each word's trailing
// whitespace so the pieces concatenate back to text.
func splitTokens(text string) []string {
	var tokens []string
	start := 0
	inSpace, inWord := false, false
	for i, r := range text {
		space := r == ' ' || r == '\n' || r == '\t' || r == '\r'
		if inSpace && !space && inWord {
			tokens = append(tokens, text[start:i])
			start = i
		}
		if !space {
			inWord = true
		}
		inSpace = space
	}
	if start < len(text) {
		tokens = append(tokens, text[start:])
	}
	return tokens
}

func clientError(err error) string {
	switch {
	case errors.Is(err, orchestratorx.ErrInvalidMessage), errors.Is(err, orchestratorx.ErrInvalidThread):
		return "Invalid message"
	case errors.Is(err, contractx.ErrLoopExhausted):
		return "The assistant could not finish this request. Please rephrase and try again."
	default:
		return "Something went wrong while answering. Please try again."
	}
}
