// Package chatstore owns the conversation history and the current
// conversation pointer. Every mutation is applied atomically under the store
// lock and then written back to durable storage in full.
package chatstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/RichardoC/pad-chat/internal/db"
	"github.com/RichardoC/pad-chat/internal/models"
)

// Storage keys. Conversations are stored as a JSON array; the current id is
// stored bare and removed when there is no current conversation.
const (
	KeyConversations = "chat-history"
	KeyCurrentID     = "current-chat-id"
)

const titleWords = 4

var ErrNotFound = errors.New("conversation not found")

// PersistenceError reports a failure to read, parse or write stored state.
type PersistenceError struct {
	Key string
	Op  string // "read", "parse", "write", "delete"
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence error: %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

type Store struct {
	mu     sync.Mutex
	kv     db.KV
	logger *zap.Logger
	now    func() time.Time
	newID  func() string

	// display order, most recently created first
	conversations []models.Conversation
	currentID     string
}

type Option func(*Store)

func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

func WithIDGenerator(newID func() string) Option {
	return func(s *Store) {
		if newID != nil {
			s.newID = newID
		}
	}
}

// New returns an empty store backed by kv. Call Load to restore saved state.
func New(kv db.KV, opts ...Option) *Store {
	s := &Store{
		kv:     kv,
		logger: zap.NewNop(),
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load replaces the in-memory state with the stored one. A stored history
// that cannot be parsed is discarded entirely, both keys are removed and a
// *PersistenceError is returned; the store is then empty and usable.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.conversations = nil
	s.currentID = ""

	raw, ok, err := s.kv.Get(KeyConversations)
	if err != nil {
		return &PersistenceError{Key: KeyConversations, Op: "read", Err: err}
	}
	if ok {
		conversations, err := decodeConversations(raw)
		if err != nil {
			s.logger.Warn("discarding corrupt chat history", zap.Error(err))
			if derr := s.discard(); derr != nil {
				s.logger.Error("failed to remove corrupt chat history", zap.Error(derr))
			}
			return &PersistenceError{Key: KeyConversations, Op: "parse", Err: err}
		}
		s.conversations = conversations
	}

	id, ok, err := s.kv.Get(KeyCurrentID)
	if err != nil {
		return &PersistenceError{Key: KeyCurrentID, Op: "read", Err: err}
	}
	if ok {
		if s.indexOf(id) >= 0 {
			s.currentID = id
		} else {
			s.logger.Debug("dropping stale current conversation", zap.String("conversationId", id))
		}
	}

	s.logger.Debug("chat history loaded",
		zap.Int("conversations", len(s.conversations)),
		zap.String("current", s.currentID))
	return nil
}

func decodeConversations(raw string) ([]models.Conversation, error) {
	var conversations []models.Conversation
	if err := json.Unmarshal([]byte(raw), &conversations); err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(conversations))
	for i := range conversations {
		c := &conversations[i]
		if c.ID == "" {
			return nil, fmt.Errorf("conversation %d has no id", i)
		}
		if seen[c.ID] {
			return nil, fmt.Errorf("duplicate conversation id %q", c.ID)
		}
		seen[c.ID] = true
		for j, m := range c.Messages {
			if !m.Role.Valid() {
				return nil, fmt.Errorf("conversation %q message %d has invalid role %q", c.ID, j, m.Role)
			}
		}
		if c.Messages == nil {
			c.Messages = []models.Message{}
		}
	}
	return conversations, nil
}

// CreateConversation inserts an empty conversation at the front of the
// display order and makes it current.
func (s *Store) CreateConversation() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createLocked()
}

// EnsureCurrent returns the current conversation id, creating and selecting
// a new conversation when none is current.
func (s *Store) EnsureCurrent() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.currentID != "" {
		return s.currentID
	}
	return s.createLocked()
}

func (s *Store) createLocked() string {
	now := s.stamp()
	c := models.Conversation{
		ID:        s.newID(),
		Title:     models.DefaultTitle,
		Messages:  []models.Message{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.conversations = append([]models.Conversation{c}, s.conversations...)
	s.currentID = c.ID
	s.save()

	s.logger.Debug("conversation created", zap.String("conversationId", c.ID))
	return c.ID
}

// SelectConversation makes id current. Unknown ids are ignored.
func (s *Store) SelectConversation(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.indexOf(id) < 0 {
		return false
	}
	s.currentID = id
	s.save()
	return true
}

// ReplaceMessages sets the full message sequence of a conversation. While the
// title is still the placeholder, a non-empty sequence names the
// conversation after its first message.
func (s *Store) ReplaceMessages(id string, messages []models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return ErrNotFound
	}
	cp := make([]models.Message, len(messages))
	copy(cp, messages)
	s.setMessages(i, cp)
	s.save()
	return nil
}

// AppendMessage adds msg to the end of a conversation in one atomic step.
func (s *Store) AppendMessage(id string, msg models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return ErrNotFound
	}
	existing := s.conversations[i].Messages
	messages := make([]models.Message, len(existing), len(existing)+1)
	copy(messages, existing)
	s.setMessages(i, append(messages, msg))
	s.save()
	return nil
}

func (s *Store) setMessages(i int, messages []models.Message) {
	c := &s.conversations[i]
	c.Messages = messages
	c.UpdatedAt = s.bump(c.CreatedAt)
	if c.HasDefaultTitle() && len(messages) > 0 {
		if title, ok := DeriveTitle(messages[0].Content); ok {
			c.Title = title
		}
	}
}

// DeleteConversation removes a conversation. When it was current, the first
// remaining conversation becomes current, or none when the set is empty.
func (s *Store) DeleteConversation(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return ErrNotFound
	}
	s.conversations = append(s.conversations[:i:i], s.conversations[i+1:]...)
	if s.currentID == id {
		s.currentID = ""
		if len(s.conversations) > 0 {
			s.currentID = s.conversations[0].ID
		}
	}
	s.save()

	s.logger.Debug("conversation deleted",
		zap.String("conversationId", id),
		zap.String("current", s.currentID))
	return nil
}

// RenameConversation sets the title verbatim.
func (s *Store) RenameConversation(id, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return ErrNotFound
	}
	c := &s.conversations[i]
	c.Title = title
	c.UpdatedAt = s.bump(c.CreatedAt)
	s.save()
	return nil
}

// NewMessage builds a message with a fresh id and the store's clock.
func (s *Store) NewMessage(role models.Role, content string) models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return models.Message{
		ID:        s.newID(),
		Content:   content,
		Role:      role,
		Timestamp: s.stamp(),
	}
}

// Conversations returns a copy of all conversations in display order.
func (s *Store) Conversations() []models.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.Conversation, len(s.conversations))
	for i, c := range s.conversations {
		out[i] = c.Clone()
	}
	return out
}

func (s *Store) Conversation(id string) (models.Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return models.Conversation{}, false
	}
	return s.conversations[i].Clone(), true
}

// Current returns the current conversation, if any.
func (s *Store) Current() (models.Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(s.currentID)
	if i < 0 {
		return models.Conversation{}, false
	}
	return s.conversations[i].Clone(), true
}

func (s *Store) CurrentID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentID
}

// DeriveTitle names a conversation after the first four words of content,
// adding an ellipsis when words were dropped. ok is false for blank content.
func DeriveTitle(content string) (title string, ok bool) {
	words := strings.Fields(content)
	if len(words) == 0 {
		return "", false
	}
	if len(words) <= titleWords {
		return strings.Join(words, " "), true
	}
	return strings.Join(words[:titleWords], " ") + "...", true
}

func (s *Store) indexOf(id string) int {
	if id == "" {
		return -1
	}
	for i := range s.conversations {
		if s.conversations[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) stamp() time.Time {
	return s.now().UTC().Round(0)
}

// bump returns the current time, never earlier than createdAt.
func (s *Store) bump(createdAt time.Time) time.Time {
	now := s.stamp()
	if now.Before(createdAt) {
		return createdAt
	}
	return now
}

// save writes both keys. Persistence is best-effort: failures are logged and
// the in-memory state stays authoritative.
func (s *Store) save() {
	if err := s.persist(); err != nil {
		s.logger.Error("failed to persist chat history", zap.Error(err))
	}
}

func (s *Store) persist() error {
	var err error

	conversations := s.conversations
	if conversations == nil {
		conversations = []models.Conversation{}
	}
	data, merr := json.Marshal(conversations)
	if merr != nil {
		err = multierr.Append(err, &PersistenceError{Key: KeyConversations, Op: "write", Err: merr})
	} else if serr := s.kv.Set(KeyConversations, string(data)); serr != nil {
		err = multierr.Append(err, &PersistenceError{Key: KeyConversations, Op: "write", Err: serr})
	}

	if s.currentID != "" {
		if serr := s.kv.Set(KeyCurrentID, s.currentID); serr != nil {
			err = multierr.Append(err, &PersistenceError{Key: KeyCurrentID, Op: "write", Err: serr})
		}
	} else if derr := s.kv.Delete(KeyCurrentID); derr != nil {
		err = multierr.Append(err, &PersistenceError{Key: KeyCurrentID, Op: "delete", Err: derr})
	}
	return err
}

func (s *Store) discard() error {
	return multierr.Combine(
		s.kv.Delete(KeyConversations),
		s.kv.Delete(KeyCurrentID),
	)
}
