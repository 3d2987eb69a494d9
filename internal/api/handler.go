package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/RichardoC/pad-chat/internal/chat"
	"github.com/RichardoC/pad-chat/internal/chatstore"
	"github.com/RichardoC/pad-chat/internal/models"
	"github.com/RichardoC/pad-chat/internal/stream"
	"github.com/RichardoC/pad-chat/internal/theme"
)

type Handler struct {
	chat   *chat.Service
	store  *chatstore.Store
	theme  *theme.Store
	logger *zap.Logger
}

func NewHandler(chatService *chat.Service, themeStore *theme.Store, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		chat:   chatService,
		store:  chatService.Store(),
		theme:  themeStore,
		logger: logger,
	}
}

// Register adds every API route to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/message", h.HandleMessage)
	mux.HandleFunc("/api/conversations", h.GetConversations)
	mux.HandleFunc("/api/conversations/delete", h.DeleteConversation)
	mux.HandleFunc("/api/conversations/update", h.UpdateConversation)
	mux.HandleFunc("/api/conversations/select", h.SelectConversation)
	mux.HandleFunc("/api/messages", h.GetMessages)
	mux.HandleFunc("/api/current", h.GetCurrent)
	mux.HandleFunc("/api/theme", h.Theme)
}

type MessageRequest struct {
	Content string `json:"content"`
}

// MessageEvent is the last event of a /api/message stream: the message that
// was committed for the assistant.
type MessageEvent struct {
	Message        models.Message `json:"message"`
	ConversationID string         `json:"chatId"`
	Done           bool           `json:"done"`
	Error          string         `json:"error,omitempty"`
}

type UpdateConversationRequest struct {
	Title string `json:"title"`
}

type CurrentResponse struct {
	CurrentID    string               `json:"currentId"`
	Conversation *models.Conversation `json:"conversation"`
}

type ThemeRequest struct {
	Theme models.Theme `json:"theme"`
}

// HandleMessage runs a submission and streams its progress. Each delta
// carries the reply accumulated so far.
func (h *Handler) HandleMessage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req MessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if strings.TrimSpace(req.Content) == "" {
		http.Error(w, "Message is required", http.StatusBadRequest)
		return
	}

	convID := r.URL.Query().Get("conversation_id")
	if convID == "" {
		convID = h.store.EnsureCurrent()
	}

	sw := stream.NewWriter(w)
	started := false
	start := func() {
		if !started {
			stream.SetHeaders(w)
			started = true
		}
	}

	onUpdate := func(live string) {
		start()
		if err := sw.WriteDelta(models.Delta{Content: live, ConversationID: convID}); err != nil {
			h.logger.Debug("Failed to forward delta", zap.Error(err))
		}
	}

	reply, err := h.chat.SubmitTo(r.Context(), convID, req.Content, onUpdate)

	if !started {
		switch {
		case errors.Is(err, chat.ErrEmptyMessage):
			http.Error(w, "Message is required", http.StatusBadRequest)
			return
		case errors.Is(err, chat.ErrSubmissionInProgress):
			http.Error(w, "A response is already streaming for this conversation", http.StatusConflict)
			return
		case errors.Is(err, chatstore.ErrNotFound):
			http.Error(w, "Conversation not found", http.StatusNotFound)
			return
		}
	}

	start()
	event := MessageEvent{Message: reply, ConversationID: convID, Done: true}
	if err != nil {
		event.Error = err.Error()
	}
	if err := sw.WriteEvent(event); err != nil {
		h.logger.Warn("Failed to write final message", zap.Error(err))
		return
	}
	if err := sw.WriteDone(); err != nil {
		h.logger.Warn("Failed to write done sentinel", zap.Error(err))
	}
}

// GetConversations lists conversations on GET and starts a new chat on POST.
func (h *Handler) GetConversations(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		conversations := h.store.Conversations()

		h.logger.Debug("Retrieved conversations",
			zap.Int("count", len(conversations)),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path))

		w.Header().Set("Access-Control-Allow-Origin", "*")
		h.writeJSON(w, http.StatusOK, conversations)

	case http.MethodPost:
		id := h.chat.NewChat()
		conversation, ok := h.store.Conversation(id)
		if !ok {
			h.logger.Error("New conversation vanished", zap.String("conversationId", id))
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		h.writeJSON(w, http.StatusCreated, conversation)

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *Handler) GetMessages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	convID, ok := conversationID(w, r)
	if !ok {
		return
	}
	conversation, found := h.store.Conversation(convID)
	if !found {
		http.Error(w, "Conversation not found", http.StatusNotFound)
		return
	}
	h.writeJSON(w, http.StatusOK, conversation.Messages)
}

func (h *Handler) GetCurrent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var resp CurrentResponse
	if conversation, ok := h.store.Current(); ok {
		resp.CurrentID = conversation.ID
		resp.Conversation = &conversation
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) SelectConversation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	convID, ok := conversationID(w, r)
	if !ok {
		return
	}
	if !h.store.SelectConversation(convID) {
		http.Error(w, "Conversation not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) DeleteConversation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	convID, ok := conversationID(w, r)
	if !ok {
		return
	}
	if err := h.store.DeleteConversation(convID); err != nil {
		h.storeError(w, "Failed to delete conversation", err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) UpdateConversation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	convID, ok := conversationID(w, r)
	if !ok {
		return
	}

	var req UpdateConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.chat.Rename(convID, req.Title); err != nil {
		if errors.Is(err, chat.ErrBlankTitle) {
			http.Error(w, "Title is required", http.StatusBadRequest)
			return
		}
		h.storeError(w, "Failed to update conversation", err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// Theme reads the preference on GET and stores it on PUT.
func (h *Handler) Theme(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.writeJSON(w, http.StatusOK, ThemeRequest{Theme: h.theme.Get()})

	case http.MethodPut:
		var req ThemeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		if err := h.theme.Set(req.Theme); err != nil {
			if errors.Is(err, theme.ErrInvalidTheme) {
				http.Error(w, "Theme must be light or dark", http.StatusBadRequest)
				return
			}
			h.logger.Error("Failed to save theme", zap.Error(err))
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		h.writeJSON(w, http.StatusOK, req)

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func conversationID(w http.ResponseWriter, r *http.Request) (string, bool) {
	convID := r.URL.Query().Get("conversation_id")
	if convID == "" {
		http.Error(w, "Invalid conversation ID", http.StatusBadRequest)
		return "", false
	}
	return convID, true
}

func (h *Handler) storeError(w http.ResponseWriter, msg string, err error) {
	if errors.Is(err, chatstore.ErrNotFound) {
		http.Error(w, "Conversation not found", http.StatusNotFound)
		return
	}
	h.logger.Error(msg, zap.Error(err))
	http.Error(w, "Internal server error", http.StatusInternalServerError)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}
