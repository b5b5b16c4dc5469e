package server

import (
	"context"

	"github.com/gorilla/websocket"

	"github.com/resumeforge-dev/resumeforge-go-collab-server/internal/logger"
	"github.com/resumeforge-dev/resumeforge-go-collab-server/internal/message"
	"github.com/resumeforge-dev/resumeforge-go-collab-server/internal/session"
	"github.com/resumeforge-dev/resumeforge-go-collab-server/internal/telemetry"
)

// serve owns one admitted connection: announce the join, pump inbound
// frames until the peer goes away, then tear everything down.
func (s *Server) serve(client *session.Client) {
	telemetry.ConnectionsActive.Inc()
	client.Start()
	s.presence.HandleJoin(client)

	defer func() {
		s.presence.HandleLeave(client)
		client.Close()
		telemetry.ConnectionsActive.Dec()
	}()

	s.readLoop(client)
}

func (s *Server) readLoop(client *session.Client) {
	conn := client.Conn()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			handleReadError(client, err)
			return
		}

		msg, err := message.Decode(data)
		if err != nil {
			telemetry.DecodeErrors.Inc()
			logger.WarnF("[%s] Fail to decode message, details: %v", client.ConnID(), err)
			continue
		}

		s.dispatch(client, msg)
	}
}

// dispatch routes one inbound message. Server-originated types arriving
// from a client are logged and ignored rather than relayed.
func (s *Server) dispatch(client *session.Client, msg message.Message) {
	author := message.ActiveUser{UserID: client.UserID, Username: client.Username}

	switch m := msg.(type) {
	case message.ContentUpdate:
		s.content.Handle(client, m)
	case message.CursorPosition:
		s.cursor.Handle(client, m)
	case message.AddComment:
		if _, err := s.comments.Add(context.Background(), client.DocumentID, author, m.Section, m.Content); err != nil {
			_ = s.registry.Send(client, message.NewError("Failed to create comment"))
		}
	case message.ResolveComment:
		if err := s.comments.Resolve(context.Background(), client.DocumentID, author, m.CommentID); err != nil {
			_ = s.registry.Send(client, message.NewError("Failed to resolve comment"))
		}
	default:
		logger.WarnF("[%s] Ignoring client frame of server-originated type %s", client.ConnID(), msg.MessageType())
	}
}

func handleReadError(client *session.Client, err error) {
	if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
		logger.WarnF("[%s] Connection dropped, details: %v", client.ConnID(), err)
		return
	}
	logger.DebugF("[%s] Connection closed", client.ConnID())
}
