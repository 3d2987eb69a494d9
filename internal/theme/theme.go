// Package theme persists the light/dark preference alongside the chat
// history.
package theme

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/RichardoC/pad-chat/internal/db"
	"github.com/RichardoC/pad-chat/internal/models"
)

const Key = "chat-ui-theme"

var ErrInvalidTheme = errors.New("invalid theme")

type Store struct {
	mu     sync.Mutex
	kv     db.KV
	logger *zap.Logger
	theme  models.Theme
}

func New(kv db.KV, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{kv: kv, logger: logger, theme: models.ThemeLight}
}

// Load restores the saved preference. Unknown values fall back to light.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.theme = models.ThemeLight
	raw, ok, err := s.kv.Get(Key)
	if err != nil {
		return fmt.Errorf("failed to read theme: %w", err)
	}
	if !ok {
		return nil
	}
	if t := models.Theme(raw); t.Valid() {
		s.theme = t
	} else {
		s.logger.Warn("ignoring unknown stored theme", zap.String("theme", raw))
	}
	return nil
}

func (s *Store) Get() models.Theme {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.theme
}

func (s *Store) Set(t models.Theme) error {
	if !t.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidTheme, t)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.kv.Set(Key, string(t)); err != nil {
		return fmt.Errorf("failed to save theme: %w", err)
	}
	s.theme = t
	return nil
}

// Toggle switches to the other theme and returns it.
func (s *Store) Toggle() (models.Theme, error) {
	next := s.Get().Opposite()
	return next, s.Set(next)
}
