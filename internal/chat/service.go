// Package chat runs the submit workflow: record the user message, stream the
// reply, and commit either the reply or a fixed error message.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/RichardoC/pad-chat/internal/chatstore"
	"github.com/RichardoC/pad-chat/internal/models"
	"github.com/RichardoC/pad-chat/internal/stream"
)

// ErrorReply replaces the assistant response when generation fails.
const ErrorReply = "Sorry, I encountered an error. Please try again."

var (
	ErrEmptyMessage         = errors.New("message is empty")
	ErrSubmissionInProgress = errors.New("a response is already streaming for this conversation")
	ErrBlankTitle           = errors.New("title is blank")
)

// Streamer opens a generation stream. *stream.Client implements it.
type Streamer interface {
	Stream(ctx context.Context, req models.ChatRequest) (*stream.Decoder, error)
}

type Service struct {
	store  *chatstore.Store
	client Streamer
	logger *zap.Logger

	mu   sync.Mutex
	live map[string]*strings.Builder
}

func NewService(store *chatstore.Store, client Streamer, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:  store,
		client: client,
		logger: logger,
		live:   make(map[string]*strings.Builder),
	}
}

func (s *Service) Store() *chatstore.Store {
	return s.store
}

// Submit sends text in the current conversation, creating one when none is
// current. The user message is recorded before any network activity.
// onUpdate, when set, receives the accumulated reply after every delta.
//
// The returned message is the one committed for the assistant: the reply, or
// ErrorReply when streaming failed, in which case the cause is returned too.
func (s *Service) Submit(ctx context.Context, text string, onUpdate func(live string)) (models.Message, error) {
	if strings.TrimSpace(text) == "" {
		return models.Message{}, ErrEmptyMessage
	}

	return s.SubmitTo(ctx, s.store.EnsureCurrent(), text, onUpdate)
}

// SubmitTo is Submit for an explicit conversation.
func (s *Service) SubmitTo(ctx context.Context, id, text string, onUpdate func(live string)) (models.Message, error) {
	if strings.TrimSpace(text) == "" {
		return models.Message{}, ErrEmptyMessage
	}
	if !s.begin(id) {
		return models.Message{}, ErrSubmissionInProgress
	}
	defer s.end(id)

	user := s.store.NewMessage(models.RoleUser, text)
	if err := s.store.AppendMessage(id, user); err != nil {
		return models.Message{}, fmt.Errorf("failed to record user message: %w", err)
	}

	content, streamErr := s.receive(ctx, id, text, onUpdate)
	if streamErr != nil {
		s.logger.Error("failed to stream response",
			zap.String("conversationId", id),
			zap.Error(streamErr))
		content = ErrorReply
	}

	reply := s.store.NewMessage(models.RoleAssistant, content)
	if err := s.store.AppendMessage(id, reply); err != nil {
		// deleted while streaming
		s.logger.Warn("conversation gone before reply was recorded",
			zap.String("conversationId", id),
			zap.Error(err))
		return reply, errors.Join(streamErr, err)
	}
	return reply, streamErr
}

func (s *Service) receive(ctx context.Context, id, text string, onUpdate func(string)) (string, error) {
	dec, err := s.client.Stream(ctx, models.ChatRequest{Message: text, ChatID: id})
	if err != nil {
		return "", err
	}

	for delta, err := range dec.All() {
		if err != nil {
			return "", fmt.Errorf("failed to read response stream: %w", err)
		}
		if delta.Content == "" {
			continue
		}
		live := s.accumulate(id, delta.Content)
		if onUpdate != nil {
			onUpdate(live)
		}
	}

	live, _ := s.Live(id)
	return live, nil
}

// Live returns the in-progress reply for a conversation. It is never
// persisted.
func (s *Service) Live(id string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.live[id]
	if !ok {
		return "", false
	}
	return b.String(), true
}

// Streaming reports whether a reply is in progress for id.
func (s *Service) Streaming(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.live[id]
	return ok
}

func (s *Service) begin(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.live[id]; busy {
		return false
	}
	s.live[id] = &strings.Builder{}
	return true
}

func (s *Service) end(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.live, id)
}

func (s *Service) accumulate(id, content string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.live[id]
	b.WriteString(content)
	return b.String()
}

// NewChat starts a new conversation, reusing the current one when it has no
// messages yet.
func (s *Service) NewChat() string {
	if current, ok := s.store.Current(); ok && len(current.Messages) == 0 {
		return current.ID
	}
	return s.store.CreateConversation()
}

// Rename trims title and rejects blank titles before storing it.
func (s *Service) Rename(id, title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return ErrBlankTitle
	}
	return s.store.RenameConversation(id, title)
}
