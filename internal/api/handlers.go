// Package api exposes the REST routes backing the collaboration UI:
// document metadata, comment threads and collaborator management.
// Identity arrives in headers set by the upstream app server.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/resumeforge-dev/resumeforge-go-collab-server/internal/comment"
	"github.com/resumeforge-dev/resumeforge-go-collab-server/internal/database"
	"github.com/resumeforge-dev/resumeforge-go-collab-server/internal/logger"
	"github.com/resumeforge-dev/resumeforge-go-collab-server/internal/message"
)

const (
	HeaderUserID   = "X-User-ID"
	HeaderUsername = "X-Username"
)

type handlers struct {
	store    database.Store
	comments *comment.Manager
}

func RegisterRoutes(r *mux.Router, store database.Store, comments *comment.Manager) {
	h := &handlers{store: store, comments: comments}

	r.HandleFunc("/api/documents/{id}", h.getDocument).Methods(http.MethodGet)
	r.HandleFunc("/api/documents/{id}/comments", h.listComments).Methods(http.MethodGet)
	r.HandleFunc("/api/documents/{id}/comments", h.addComment).Methods(http.MethodPost)
	r.HandleFunc("/api/documents/{id}/comments/{commentId}/resolve", h.resolveComment).Methods(http.MethodPost)
	r.HandleFunc("/api/documents/{id}/collaborators", h.listCollaborators).Methods(http.MethodGet)
	r.HandleFunc("/api/documents/{id}/collaborators", h.addCollaborator).Methods(http.MethodPost)
	r.HandleFunc("/api/documents/{id}/collaborators/{userId}", h.removeCollaborator).Methods(http.MethodDelete)
}

// identity reads the caller from the trusted headers.
func identity(r *http.Request) (message.ActiveUser, bool) {
	userID, err := strconv.Atoi(r.Header.Get(HeaderUserID))
	username := r.Header.Get(HeaderUsername)
	if err != nil || username == "" {
		return message.ActiveUser{}, false
	}
	return message.ActiveUser{UserID: userID, Username: username}, true
}

func documentID(r *http.Request) (int, error) {
	return strconv.Atoi(mux.Vars(r)["id"])
}

// authorize loads the document and checks the caller can see it. The
// returned document is nil when an error response was already written.
func (h *handlers) authorize(w http.ResponseWriter, r *http.Request, user message.ActiveUser) *database.Document {
	id, err := documentID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid document id")
		return nil
	}

	doc, err := h.store.GetDocument(r.Context(), id)
	if errors.Is(err, database.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Document not found")
		return nil
	}
	if err != nil {
		logger.ErrorF("Error occured while loading document %d, details: %v", id, err)
		writeError(w, http.StatusInternalServerError, "Server error")
		return nil
	}

	if doc.OwnerID != user.UserID {
		ok, err := h.store.IsCollaborator(r.Context(), id, user.UserID)
		if err != nil {
			logger.ErrorF("Error occured while checking access to document %d, details: %v", id, err)
			writeError(w, http.StatusInternalServerError, "Server error")
			return nil
		}
		if !ok {
			writeError(w, http.StatusForbidden, "Not authorized")
			return nil
		}
	}
	return doc
}

func (h *handlers) getDocument(w http.ResponseWriter, r *http.Request) {
	user, ok := identity(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "Not authenticated")
		return
	}
	doc := h.authorize(w, r, user)
	if doc == nil {
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (h *handlers) listComments(w http.ResponseWriter, r *http.Request) {
	user, ok := identity(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "Not authenticated")
		return
	}
	doc := h.authorize(w, r, user)
	if doc == nil {
		return
	}

	comments, err := h.comments.List(r.Context(), doc.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Server error")
		return
	}
	if comments == nil {
		comments = []message.Comment{}
	}
	writeJSON(w, http.StatusOK, comments)
}

func (h *handlers) addComment(w http.ResponseWriter, r *http.Request) {
	user, ok := identity(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "Not authenticated")
		return
	}
	doc := h.authorize(w, r, user)
	if doc == nil {
		return
	}

	var body struct {
		Section string `json:"section"`
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Section == "" || body.Content == "" {
		writeError(w, http.StatusBadRequest, "Section and content are required")
		return
	}

	created, err := h.comments.Add(r.Context(), doc.ID, user, body.Section, body.Content)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create comment")
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *handlers) resolveComment(w http.ResponseWriter, r *http.Request) {
	user, ok := identity(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "Not authenticated")
		return
	}
	doc := h.authorize(w, r, user)
	if doc == nil {
		return
	}

	commentID := mux.Vars(r)["commentId"]
	err := h.comments.Resolve(r.Context(), doc.ID, user, commentID)
	if errors.Is(err, database.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Comment not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to resolve comment")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) listCollaborators(w http.ResponseWriter, r *http.Request) {
	user, ok := identity(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "Not authenticated")
		return
	}
	doc := h.authorize(w, r, user)
	if doc == nil {
		return
	}

	collaborators, err := h.store.ListCollaborators(r.Context(), doc.ID)
	if err != nil {
		logger.ErrorF("Error occured while listing collaborators for document %d, details: %v", doc.ID, err)
		writeError(w, http.StatusInternalServerError, "Server error")
		return
	}
	if collaborators == nil {
		collaborators = []database.Collaborator{}
	}
	writeJSON(w, http.StatusOK, collaborators)
}

func (h *handlers) addCollaborator(w http.ResponseWriter, r *http.Request) {
	user, ok := identity(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "Not authenticated")
		return
	}
	doc := h.authorize(w, r, user)
	if doc == nil {
		return
	}
	if doc.OwnerID != user.UserID {
		writeError(w, http.StatusForbidden, "Only the owner can manage collaborators")
		return
	}

	var body struct {
		UserID     int    `json:"userId"`
		Username   string `json:"username"`
		Permission string `json:"permission"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.UserID == 0 || body.Username == "" {
		writeError(w, http.StatusBadRequest, "userId and username are required")
		return
	}
	if body.Permission == "" {
		body.Permission = "edit"
	}

	collaborator := &database.Collaborator{
		DocumentID: doc.ID,
		UserID:     body.UserID,
		Username:   body.Username,
		Permission: body.Permission,
		InvitedAt:  time.Now().UTC(),
	}
	if err := h.store.AddCollaborator(r.Context(), collaborator); err != nil {
		logger.ErrorF("Error occured while adding collaborator to document %d, details: %v", doc.ID, err)
		writeError(w, http.StatusInternalServerError, "Failed to add collaborator")
		return
	}
	writeJSON(w, http.StatusCreated, collaborator)
}

func (h *handlers) removeCollaborator(w http.ResponseWriter, r *http.Request) {
	user, ok := identity(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "Not authenticated")
		return
	}
	doc := h.authorize(w, r, user)
	if doc == nil {
		return
	}
	if doc.OwnerID != user.UserID {
		writeError(w, http.StatusForbidden, "Only the owner can manage collaborators")
		return
	}

	targetID, err := strconv.Atoi(mux.Vars(r)["userId"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid user id")
		return
	}
	if err := h.store.RemoveCollaborator(r.Context(), doc.ID, targetID); err != nil {
		logger.ErrorF("Error occured while removing collaborator from document %d, details: %v", doc.ID, err)
		writeError(w, http.StatusInternalServerError, "Failed to remove collaborator")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, text string) {
	writeJSON(w, status, map[string]string{"message": text})
}
