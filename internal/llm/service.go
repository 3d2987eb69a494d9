package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"

	"github.com/RichardoC/pad-chat/internal/models"
	"github.com/RichardoC/pad-chat/internal/stream"
)

const defaultSystemPrompt = "You are a helpful assistant. Answer in Markdown when formatting helps."

// maxHistory bounds the turns replayed to the model per chat.
const maxHistory = 20

// Service is a generation endpoint: it accepts {message, chatId} and
// streams the model's reply as event-stream deltas.
type Service struct {
	llm          llms.Model
	logger       *zap.Logger
	systemPrompt string

	mu      sync.Mutex
	history map[string][]llms.MessageContent
}

func New(baseURL, token, model string, logger *zap.Logger) (*Service, error) {
	llm, err := openai.New(
		openai.WithToken(token),
		openai.WithBaseURL(baseURL),
		openai.WithModel(model),
	)
	if err != nil {
		return nil, err
	}
	return NewWithModel(llm, logger), nil
}

func NewWithModel(model llms.Model, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		llm:          model,
		logger:       logger,
		systemPrompt: defaultSystemPrompt,
		history:      make(map[string][]llms.MessageContent),
	}
}

func (s *Service) SetSystemPrompt(prompt string) {
	if strings.TrimSpace(prompt) != "" {
		s.systemPrompt = prompt
	}
}

// Generate streams a reply to req, calling emit for every chunk the model
// produces, and returns the full reply.
func (s *Service) Generate(ctx context.Context, req models.ChatRequest, emit func(string) error) (string, error) {
	messages := []llms.MessageContent{llms.TextParts(llms.ChatMessageTypeSystem, s.systemPrompt)}
	messages = append(messages, s.turns(req.ChatID)...)
	messages = append(messages, llms.TextParts(llms.ChatMessageTypeHuman, req.Message))

	var reply strings.Builder
	_, err := s.llm.GenerateContent(ctx, messages,
		llms.WithStreamingFunc(func(ctx context.Context, chunk []byte) error {
			reply.Write(chunk)
			return emit(string(chunk))
		}),
	)
	if err != nil {
		return "", fmt.Errorf("failed to generate completion: %w", err)
	}

	s.remember(req.ChatID, req.Message, reply.String())
	return reply.String(), nil
}

func (s *Service) turns(chatID string) []llms.MessageContent {
	if chatID == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	prior := s.history[chatID]
	out := make([]llms.MessageContent, len(prior))
	copy(out, prior)
	return out
}

func (s *Service) remember(chatID, user, reply string) {
	if chatID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	h := append(s.history[chatID],
		llms.TextParts(llms.ChatMessageTypeHuman, user),
		llms.TextParts(llms.ChatMessageTypeAI, reply),
	)
	if len(h) > maxHistory {
		h = h[len(h)-maxHistory:]
	}
	s.history[chatID] = h
}

// HandleQuery serves POST /query.
func (s *Service) HandleQuery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req models.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		http.Error(w, "Message is required", http.StatusBadRequest)
		return
	}

	stream.SetHeaders(w)
	sw := stream.NewWriter(w)
	started := false

	_, err := s.Generate(r.Context(), req, func(chunk string) error {
		started = true
		return sw.WriteDelta(models.Delta{Content: chunk, ConversationID: req.ChatID})
	})
	if err != nil {
		s.logger.Error("Failed to generate response",
			zap.Error(err),
			zap.String("chatId", req.ChatID))
		if !started {
			http.Error(w, "Generation failed", http.StatusBadGateway)
			return
		}
		// a clean end of body reads as a complete reply, so drop the
		// connection instead
		panic(http.ErrAbortHandler)
	}

	if err := sw.WriteDelta(models.Delta{Done: true, ConversationID: req.ChatID}); err != nil {
		s.logger.Warn("Failed to write final delta", zap.Error(err))
		return
	}
	if err := sw.WriteDone(); err != nil {
		s.logger.Warn("Failed to write done sentinel", zap.Error(err))
	}
}
