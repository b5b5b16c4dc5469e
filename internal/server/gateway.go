package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/resumeforge-dev/resumeforge-go-collab-server/internal/database"
	"github.com/resumeforge-dev/resumeforge-go-collab-server/internal/logger"
	"github.com/resumeforge-dev/resumeforge-go-collab-server/internal/session"
	"github.com/resumeforge-dev/resumeforge-go-collab-server/internal/telemetry"
)

// Admission close reasons. They ride on a policy-violation close frame so
// the client can distinguish a rejected join from a transport failure.
const (
	reasonMissingParams = "Missing required parameters"
	reasonDocNotFound   = "Document not found"
	reasonUnauthorized  = "Unauthorized"
	reasonServerError   = "Server error"
)

type admissionError struct {
	code   int
	reason string
}

func (e *admissionError) Error() string {
	return e.reason
}

// handleWS upgrades the connection first and only then runs admission, so
// a rejection can be delivered as a websocket close frame instead of a
// bare HTTP error the browser cannot inspect.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.WarnF("Fail to upgrade connection from %s, details: %v", r.RemoteAddr, err)
		return
	}

	client, err := s.admit(r, conn)
	if err != nil {
		var ae *admissionError
		if !errors.As(err, &ae) {
			ae = &admissionError{code: websocket.CloseInternalServerErr, reason: reasonServerError}
		}
		telemetry.AdmissionFailures.WithLabelValues(ae.reason).Inc()
		logger.WarnF("[%s] Connection refused: %s", conn.RemoteAddr(), ae.reason)
		closeWith(conn, ae.code, ae.reason)
		return
	}

	s.serve(client)
}

// admit validates the join parameters against the document store and
// builds the client. Identity is carried in the query string; the relay
// trusts the upstream app server that issued it.
func (s *Server) admit(r *http.Request, conn *websocket.Conn) (*session.Client, error) {
	q := r.URL.Query()
	docParam := q.Get("documentId")
	userParam := q.Get("userId")
	username := q.Get("username")
	if docParam == "" || userParam == "" || username == "" {
		return nil, &admissionError{code: websocket.ClosePolicyViolation, reason: reasonMissingParams}
	}
	documentID, err := strconv.Atoi(docParam)
	if err != nil {
		return nil, &admissionError{code: websocket.ClosePolicyViolation, reason: reasonMissingParams}
	}
	userID, err := strconv.Atoi(userParam)
	if err != nil {
		return nil, &admissionError{code: websocket.ClosePolicyViolation, reason: reasonMissingParams}
	}

	doc, err := s.lookupDocument(documentID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, &admissionError{code: websocket.ClosePolicyViolation, reason: reasonDocNotFound}
	}
	if err != nil {
		return nil, err
	}

	if doc.OwnerID != userID {
		ctx, cancel := context.WithTimeout(context.Background(), s.opTimeout)
		defer cancel()
		ok, err := s.store.IsCollaborator(ctx, documentID, userID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, &admissionError{code: websocket.ClosePolicyViolation, reason: reasonUnauthorized}
		}
	}

	return session.NewClient(documentID, userID, username, conn, s.queueDepth, s.writeTimeout), nil
}

// lookupDocument serves admission reads through the expiring cache. A miss
// in the store is not cached, so a freshly created document is picked up
// on the next attempt.
func (s *Server) lookupDocument(documentID int) (*database.Document, error) {
	if doc, ok := s.access.Get(documentID); ok {
		return doc, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.opTimeout)
	defer cancel()
	doc, err := s.store.GetDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	s.access.Add(documentID, doc)
	return doc, nil
}

func closeWith(conn *websocket.Conn, code int, reason string) {
	deadline := time.Now().Add(time.Second)
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
	_ = conn.Close()
}
