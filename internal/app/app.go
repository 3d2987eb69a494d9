// Package app wires storage, the session store, the theme and the chat
// service from configuration. Both the CLI and the API server start here.
package app

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/RichardoC/pad-chat/internal/chat"
	"github.com/RichardoC/pad-chat/internal/chatstore"
	"github.com/RichardoC/pad-chat/internal/config"
	"github.com/RichardoC/pad-chat/internal/db"
	"github.com/RichardoC/pad-chat/internal/stream"
	"github.com/RichardoC/pad-chat/internal/theme"
)

type App struct {
	DB     db.Store
	Store  *chatstore.Store
	Themes *theme.Store
	Client *stream.Client
	Chat   *chat.Service
}

// Open opens the store at cfg.Storage.Path and restores saved state. A
// corrupt history is logged and dropped; the app starts empty.
func Open(cfg *config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	if dir := filepath.Dir(cfg.Storage.Path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("failed to create storage directory: %w", err)
		}
	}

	database, err := db.Open(cfg.Storage.Driver, cfg.Storage.Path)
	if err != nil {
		return nil, err
	}

	store := chatstore.New(database, chatstore.WithLogger(logger.Named("chatstore")))
	if err := store.Load(); err != nil {
		var perr *chatstore.PersistenceError
		if !errors.As(err, &perr) || perr.Op != "parse" {
			database.Close()
			return nil, fmt.Errorf("failed to load chat history: %w", err)
		}
		logger.Warn("Starting with empty chat history", zap.Error(err))
	}

	themes := theme.New(database, logger.Named("theme"))
	if err := themes.Load(); err != nil {
		database.Close()
		return nil, err
	}

	client := stream.NewClient(cfg.Client.Endpoint,
		stream.WithLogger(logger.Named("stream")),
		stream.WithTimeout(cfg.Client.Timeout.Duration),
	)

	return &App{
		DB:     database,
		Store:  store,
		Themes: themes,
		Client: client,
		Chat:   chat.NewService(store, client, logger.Named("chat")),
	}, nil
}

func (a *App) Close() error {
	return a.DB.Close()
}
