package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/RichardoC/pad-chat/internal/llm"
)

var backendAddr string

var backendCmd = &cobra.Command{
	Use:   "backend",
	Short: "Serve the /query generation endpoint from an OpenAI-compatible model",
	Long: `Serve POST /query, streaming completions from the model configured in
[backend] (an Ollama or OpenAI-compatible base URL). Replies arrive as
"data:" deltas followed by "data: [DONE]".`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := llm.New(cfg.Backend.BaseURL, cfg.Backend.Token, cfg.Backend.Model, logger.Named("backend"))
		if err != nil {
			return err
		}
		svc.SetSystemPrompt(cfg.Backend.SystemPrompt)

		addr := cfg.Backend.Addr
		if backendAddr != "" {
			addr = backendAddr
		}

		mux := http.NewServeMux()
		mux.HandleFunc("/query", svc.HandleQuery)
		srv := &http.Server{Addr: addr, Handler: mux}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		logger.Info("Starting generation backend",
			zap.String("addr", addr),
			zap.String("baseURL", cfg.Backend.BaseURL),
			zap.String("model", cfg.Backend.Model))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	},
}

func init() {
	backendCmd.Flags().StringVar(&backendAddr, "addr", "", "Listen address (overrides backend.addr)")
	rootCmd.AddCommand(backendCmd)
}
