package chat

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/RichardoC/pad-chat/internal/chatstore"
	"github.com/RichardoC/pad-chat/internal/db"
	"github.com/RichardoC/pad-chat/internal/llm"
	"github.com/RichardoC/pad-chat/internal/models"
	"github.com/RichardoC/pad-chat/internal/stream"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
	)
}

type streamFunc func(ctx context.Context, req models.ChatRequest) (*stream.Decoder, error)

func (f streamFunc) Stream(ctx context.Context, req models.ChatRequest) (*stream.Decoder, error) {
	return f(ctx, req)
}

type trackedBody struct {
	io.Reader
	closes int
}

func (b *trackedBody) Close() error {
	b.closes++
	return nil
}

func bodyOf(lines ...string) *trackedBody {
	return &trackedBody{Reader: strings.NewReader(strings.Join(lines, "\n") + "\n")}
}

func staticStreamer(body *trackedBody) streamFunc {
	return func(ctx context.Context, req models.ChatRequest) (*stream.Decoder, error) {
		return stream.NewDecoder(body, nil), nil
	}
}

func newService(t *testing.T, client Streamer, logger *zap.Logger) (*Service, *chatstore.Store) {
	t.Helper()
	store := chatstore.New(db.NewMemory())
	return NewService(store, client, logger), store
}

func TestSubmitCommitsAssistantReply(t *testing.T) {
	body := bodyOf(
		`data: {"content":"Hel","done":false}`,
		`data: {"content":"lo","done":false}`,
		`data: {"content":"","done":true}`,
		`data: [DONE]`,
	)
	svc, store := newService(t, staticStreamer(body), nil)

	var updates []string
	reply, err := svc.Submit(context.Background(), "hi there", func(live string) {
		updates = append(updates, live)
	})
	require.NoError(t, err)

	assert.Equal(t, models.RoleAssistant, reply.Role)
	assert.Equal(t, "Hello", reply.Content)
	assert.Equal(t, []string{"Hel", "Hello"}, updates)
	assert.Equal(t, 1, body.closes)

	conv, ok := store.Current()
	require.True(t, ok)
	require.Len(t, conv.Messages, 2)
	assert.Equal(t, models.RoleUser, conv.Messages[0].Role)
	assert.Equal(t, "hi there", conv.Messages[0].Content)
	assert.Equal(t, reply, conv.Messages[1])
	assert.Equal(t, "hi there", conv.Title)
	assert.NotEqual(t, conv.Messages[0].ID, conv.Messages[1].ID)

	_, streaming := svc.Live(conv.ID)
	assert.False(t, streaming, "live accumulator cleared")
}

func TestSubmitRecordsUserMessageBeforeRequest(t *testing.T) {
	store := chatstore.New(db.NewMemory())
	var seen []models.Message
	var request models.ChatRequest
	client := streamFunc(func(ctx context.Context, req models.ChatRequest) (*stream.Decoder, error) {
		request = req
		conv, _ := store.Conversation(req.ChatID)
		seen = conv.Messages
		return stream.NewDecoder(bodyOf(`data: [DONE]`), nil), nil
	})
	svc := NewService(store, client, nil)

	_, err := svc.Submit(context.Background(), "first", nil)
	require.NoError(t, err)

	require.Len(t, seen, 1)
	assert.Equal(t, "first", seen[0].Content)
	assert.Equal(t, store.CurrentID(), request.ChatID)
	assert.Equal(t, "first", request.Message)
}

func TestSubmitUsesCurrentConversation(t *testing.T) {
	svc, store := newService(t, staticStreamer(bodyOf(`data: [DONE]`)), nil)
	other := store.CreateConversation()
	current := store.CreateConversation()

	_, err := svc.Submit(context.Background(), "x", nil)
	require.NoError(t, err)

	conv, _ := store.Conversation(current)
	assert.Len(t, conv.Messages, 2)
	conv, _ = store.Conversation(other)
	assert.Empty(t, conv.Messages)
	assert.Len(t, store.Conversations(), 2)
}

func TestSubmitErrorStatusRecordsFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	core, logs := observer.New(zapcore.ErrorLevel)
	client := stream.NewClient(srv.URL, stream.WithHTTPClient(srv.Client()))
	svc, store := newService(t, client, zap.New(core))

	updates := 0
	reply, err := svc.Submit(context.Background(), "hello", func(string) { updates++ })

	var transportErr *stream.TransportError
	require.ErrorAs(t, err, &transportErr)
	assert.Equal(t, http.StatusBadGateway, transportErr.StatusCode)
	assert.Zero(t, updates)
	assert.Equal(t, ErrorReply, reply.Content)

	conv, _ := store.Current()
	require.Len(t, conv.Messages, 2)
	assert.Equal(t, "hello", conv.Messages[0].Content)
	assert.Equal(t, models.RoleAssistant, conv.Messages[1].Role)
	assert.Equal(t, ErrorReply, conv.Messages[1].Content)

	assert.Equal(t, 1, logs.FilterMessage("failed to stream response").Len())
}

func TestSubmitMidStreamFailureDiscardsPartialReply(t *testing.T) {
	body := &trackedBody{Reader: io.MultiReader(
		strings.NewReader("data: {\"content\":\"partial\",\"done\":false}\n"),
		iotestErrReader{err: errors.New("connection reset")},
	)}
	svc, store := newService(t, staticStreamer(body), nil)

	reply, err := svc.Submit(context.Background(), "hello", nil)
	require.Error(t, err)
	assert.ErrorContains(t, err, "connection reset")
	assert.Equal(t, ErrorReply, reply.Content)
	assert.Equal(t, 1, body.closes)

	conv, _ := store.Current()
	require.Len(t, conv.Messages, 2)
	assert.Equal(t, ErrorReply, conv.Messages[1].Content)
}

// brokenModel streams its chunks and then fails.
type brokenModel struct {
	chunks []string
}

func (m brokenModel) GenerateContent(ctx context.Context, _ []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	opts := llms.CallOptions{}
	for _, o := range options {
		o(&opts)
	}
	for _, c := range m.chunks {
		if err := opts.StreamingFunc(ctx, []byte(c)); err != nil {
			return nil, err
		}
	}
	return nil, errors.New("model crashed")
}

func (m brokenModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

func TestSubmitBackendFailureAfterFirstChunk(t *testing.T) {
	backend := llm.NewWithModel(brokenModel{chunks: []string{"The answer is"}}, nil)
	srv := httptest.NewServer(http.HandlerFunc(backend.HandleQuery))
	defer srv.Close()

	client := stream.NewClient(srv.URL, stream.WithHTTPClient(srv.Client()))
	svc, store := newService(t, client, nil)

	var updates []string
	reply, err := svc.Submit(context.Background(), "what is it", func(live string) {
		updates = append(updates, live)
	})
	require.Error(t, err)
	assert.Equal(t, []string{"The answer is"}, updates)
	assert.Equal(t, ErrorReply, reply.Content)

	conv, _ := store.Current()
	require.Len(t, conv.Messages, 2)
	assert.Equal(t, ErrorReply, conv.Messages[1].Content)
	assert.False(t, svc.Streaming(conv.ID))
}

type iotestErrReader struct {
	err error
}

func (r iotestErrReader) Read([]byte) (int, error) { return 0, r.err }

func TestSubmitSkipsMalformedLinesSilently(t *testing.T) {
	body := bodyOf(
		`data: {"content":"a","done":false}`,
		`data: {not json`,
		`data: {"content":"b","done":false}`,
	)
	svc, _ := newService(t, staticStreamer(body), nil)

	reply, err := svc.Submit(context.Background(), "x", nil)
	require.NoError(t, err)
	assert.Equal(t, "ab", reply.Content)
}

func TestSubmitRejectsBlankInput(t *testing.T) {
	called := false
	client := streamFunc(func(ctx context.Context, req models.ChatRequest) (*stream.Decoder, error) {
		called = true
		return nil, errors.New("unreachable")
	})
	svc, store := newService(t, client, nil)

	_, err := svc.Submit(context.Background(), "  \n ", nil)
	assert.ErrorIs(t, err, ErrEmptyMessage)
	assert.False(t, called)
	assert.Empty(t, store.Conversations())
}

func TestSubmitRejectsOverlappingSubmission(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	client := streamFunc(func(ctx context.Context, req models.ChatRequest) (*stream.Decoder, error) {
		if req.Message == "slow" {
			close(started)
			<-release
		}
		return stream.NewDecoder(bodyOf(`data: {"content":"ok","done":true}`), nil), nil
	})
	svc, store := newService(t, client, nil)
	id := store.CreateConversation()

	done := make(chan error, 1)
	go func() {
		_, err := svc.SubmitTo(context.Background(), id, "slow", nil)
		done <- err
	}()
	<-started

	assert.True(t, svc.Streaming(id))
	_, err := svc.SubmitTo(context.Background(), id, "again", nil)
	assert.ErrorIs(t, err, ErrSubmissionInProgress)

	other := store.CreateConversation()
	_, err = svc.SubmitTo(context.Background(), other, "fast", nil)
	assert.NoError(t, err, "other conversations are not blocked")

	close(release)
	require.NoError(t, <-done)

	conv, _ := store.Conversation(id)
	require.Len(t, conv.Messages, 2, "rejected submission records nothing")
	assert.Equal(t, "slow", conv.Messages[0].Content)
}

func TestSubmitContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := stream.NewWriter(w)
		sw.WriteDelta(models.Delta{Content: "partial"})
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	client := stream.NewClient(srv.URL, stream.WithHTTPClient(srv.Client()))
	svc, store := newService(t, client, nil)

	reply, err := svc.Submit(ctx, "hello", func(string) { cancel() })
	require.Error(t, err)
	assert.Equal(t, ErrorReply, reply.Content)

	conv, _ := store.Current()
	assert.Len(t, conv.Messages, 2)
}

func TestSubmitToDeletedConversation(t *testing.T) {
	svc, _ := newService(t, staticStreamer(bodyOf(`data: [DONE]`)), nil)

	_, err := svc.SubmitTo(context.Background(), "missing", "hi", nil)
	assert.ErrorIs(t, err, chatstore.ErrNotFound)
}

func TestNewChatReusesEmptyCurrent(t *testing.T) {
	svc, store := newService(t, staticStreamer(bodyOf(`data: [DONE]`)), nil)

	first := svc.NewChat()
	assert.Equal(t, first, svc.NewChat(), "empty current is reused")
	assert.Len(t, store.Conversations(), 1)

	_, err := svc.Submit(context.Background(), "hello", nil)
	require.NoError(t, err)

	second := svc.NewChat()
	assert.NotEqual(t, first, second)
	assert.Equal(t, second, store.CurrentID())
}

func TestRename(t *testing.T) {
	svc, store := newService(t, nil, nil)
	id := store.CreateConversation()

	assert.ErrorIs(t, svc.Rename(id, "   "), ErrBlankTitle)
	require.NoError(t, svc.Rename(id, "  My chat  "))

	conv, _ := store.Conversation(id)
	assert.Equal(t, "My chat", conv.Title)

	assert.ErrorIs(t, svc.Rename("missing", "x"), chatstore.ErrNotFound)
}
