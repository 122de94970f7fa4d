package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/gadgetcare/repairbot/internal/models"
)

// defaultMessageLimit caps chat message listings unless ?limit= overrides it.
const defaultMessageLimit = 100

func (s *Server) healthzHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, models.Success("healthy"))
}

func (s *Server) appointmentsHandler(w http.ResponseWriter, r *http.Request) {
	appts, err := s.store.ListAppointments()
	if err != nil {
		slog.Error("Server.appointmentsHandler: failed to list appointments", "error", err)
		writeJSON(w, http.StatusInternalServerError, models.Error("Failed to list appointments"))
		return
	}
	writeJSON(w, http.StatusOK, models.Success(appts))
}

func (s *Server) chatsHandler(w http.ResponseWriter, r *http.Request) {
	chats, err := s.store.ListChats()
	if err != nil {
		slog.Error("Server.chatsHandler: failed to list chats", "error", err)
		writeJSON(w, http.StatusInternalServerError, models.Error("Failed to list chats"))
		return
	}
	writeJSON(w, http.StatusOK, models.Success(chats))
}

func (s *Server) chatMessagesHandler(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["id"]
	limit := defaultMessageLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeJSON(w, http.StatusBadRequest, models.Error("limit must be a positive integer"))
			return
		}
		limit = n
	}
	msgs, err := s.store.ListMessages(userID, limit)
	if err != nil {
		slog.Error("Server.chatMessagesHandler: failed to list messages", "error", err, "userID", userID)
		writeJSON(w, http.StatusInternalServerError, models.Error("Failed to list messages"))
		return
	}
	writeJSON(w, http.StatusOK, models.Success(msgs))
}

// sendRequest is the /api/send payload.
type sendRequest struct {
	To   string `json:"to"`
	Body string `json:"body"`
}

func (s *Server) sendHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.sendHandler: failed to decode JSON", "error", err)
		writeJSON(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	to, err := s.gateway.ValidateAndCanonicalizeRecipient(req.To)
	if err != nil {
		slog.Warn("Server.sendHandler: recipient validation failed", "error", err, "original_to", req.To)
		writeJSON(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}
	if req.Body == "" {
		writeJSON(w, http.StatusBadRequest, models.Error(models.ErrEmptyMessageBody.Error()))
		return
	}
	if err := s.gateway.SendText(r.Context(), to, req.Body); err != nil {
		slog.Error("Server.sendHandler: send failed", "error", err, "to", to)
		writeJSON(w, http.StatusInternalServerError, models.Error("Failed to send message"))
		return
	}
	slog.Info("Server.sendHandler: manual message sent", "to", to)
	writeJSON(w, http.StatusOK, models.Sent("Message sent"))
}
