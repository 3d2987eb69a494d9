package cmd

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RichardoC/pad-chat/internal/models"
	"github.com/RichardoC/pad-chat/internal/stream"
)

// setup writes a config pointing at a fresh database and endpoint.
func setup(t *testing.T, endpoint string) string {
	t.Helper()
	for _, key := range []string{"PADCHAT_ENDPOINT", "PADCHAT_DB_PATH", "PADCHAT_LOG_LEVEL"} {
		t.Setenv(key, "")
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := fmt.Sprintf(`
[client]
endpoint = %q

[storage]
path = %q

[log]
level = "error"
`, endpoint, filepath.Join(dir, "chats.db"))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	exportFormat, exportOutput, askNew = "md", "", false
	return path
}

func run(t *testing.T, configPath string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetArgs(append([]string{"--config", configPath}, args...))
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	err := rootCmd.Execute()
	return out.String(), err
}

func TestRootCommand(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr bool
	}{
		{name: "version flag", args: []string{"--version"}},
		{name: "help flag", args: []string{"--help"}},
		{name: "unknown command", args: []string{"nonexistent-command"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rootCmd.SetArgs(tt.args)
			rootCmd.SetOut(&bytes.Buffer{})
			rootCmd.SetErr(&bytes.Buffer{})
			err := rootCmd.Execute()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestAskStreamsReplyAndPersists(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		stream.SetHeaders(w)
		sw := stream.NewWriter(w)
		_ = sw.WriteDelta(models.Delta{Content: "Bubble sort "})
		_ = sw.WriteDelta(models.Delta{Content: "swaps neighbours."})
		_ = sw.WriteDone()
	}))
	defer srv.Close()
	cfgPath := setup(t, srv.URL)

	out, err := run(t, cfgPath, "ask", "explain", "the", "bubble", "sort", "algorithm")
	require.NoError(t, err)
	assert.Equal(t, "Bubble sort swaps neighbours.\n", out)

	out, err = run(t, cfgPath, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "1 conversation(s)")
	assert.Contains(t, out, "explain the bubble sort...")
	assert.Contains(t, out, "2 messages")
	assert.Contains(t, out, "Today")

	out, err = run(t, cfgPath, "show")
	require.NoError(t, err)
	assert.Contains(t, out, "explain the bubble sort algorithm")
	assert.Contains(t, out, "Bubble sort swaps neighbours.")
}

func TestAskBackendDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer srv.Close()
	cfgPath := setup(t, srv.URL)

	out, err := run(t, cfgPath, "ask", "hello")
	assert.ErrorContains(t, err, "failed to get response")
	assert.Equal(t, "Sorry, I encountered an error. Please try again.\n", out)
}

func TestConversationCommands(t *testing.T) {
	cfgPath := setup(t, "http://127.0.0.1:1/query")

	out, err := run(t, cfgPath, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "No conversations yet")

	first, err := run(t, cfgPath, "new")
	require.NoError(t, err)
	first = strings.TrimSpace(first)
	require.NotEmpty(t, first)

	again, err := run(t, cfgPath, "new")
	require.NoError(t, err)
	assert.Equal(t, first, strings.TrimSpace(again), "empty current conversation is reused")

	_, err = run(t, cfgPath, "rename", first, "Sorting", "notes")
	require.NoError(t, err)

	_, err = run(t, cfgPath, "rename", first, " ")
	assert.Error(t, err)

	out, err = run(t, cfgPath, "show", first)
	require.NoError(t, err)
	assert.Contains(t, out, "Sorting notes")

	_, err = run(t, cfgPath, "select", "missing")
	assert.ErrorContains(t, err, "conversation not found")

	out, err = run(t, cfgPath, "export", "--format", "json", "--output", "-")
	require.NoError(t, err)
	assert.Contains(t, out, `"title": "Sorting notes"`)

	target := filepath.Join(t.TempDir(), "out.md")
	_, err = run(t, cfgPath, "export", first, "--format", "md", "--output", target)
	require.NoError(t, err)
	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "# Sorting notes"))

	_, err = run(t, cfgPath, "export", "--format", "xml", "--output", "-")
	assert.ErrorContains(t, err, "unsupported format")

	_, err = run(t, cfgPath, "delete", first)
	require.NoError(t, err)

	_, err = run(t, cfgPath, "show")
	assert.ErrorContains(t, err, "no current conversation")
}

func TestThemeCommand(t *testing.T) {
	cfgPath := setup(t, "http://127.0.0.1:1/query")

	out, err := run(t, cfgPath, "theme")
	require.NoError(t, err)
	assert.Equal(t, "light\n", out)

	out, err = run(t, cfgPath, "theme", "toggle")
	require.NoError(t, err)
	assert.Equal(t, "dark\n", out)

	out, err = run(t, cfgPath, "theme")
	require.NoError(t, err)
	assert.Equal(t, "dark\n", out, "preference persists")

	_, err = run(t, cfgPath, "theme", "sepia")
	assert.ErrorContains(t, err, "invalid theme")
}
