// Package export writes conversations to files in json, jsonl, yaml or
// markdown.
package export

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/RichardoC/pad-chat/internal/models"
)

type Exporter interface {
	Export(conv models.Conversation, w io.Writer) error
	Extension() string
}

// NewExporter returns the exporter for format.
func NewExporter(format string) (Exporter, error) {
	switch strings.ToLower(format) {
	case "json":
		return &JSONExporter{}, nil
	case "jsonl":
		return &JSONLExporter{}, nil
	case "yaml", "yml":
		return &YAMLExporter{}, nil
	case "md", "markdown":
		return &MarkdownExporter{}, nil
	default:
		return nil, fmt.Errorf("unsupported format: %s (supported: json, jsonl, yaml, md)", format)
	}
}

// Filename is the default output name for conv.
func Filename(conv models.Conversation, e Exporter) string {
	return fmt.Sprintf("chat-%s.%s", conv.ID, e.Extension())
}

type JSONExporter struct{}

func (e *JSONExporter) Export(conv models.Conversation, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(conv)
}

func (e *JSONExporter) Extension() string { return "json" }

// JSONLExporter writes one message per line.
type JSONLExporter struct{}

func (e *JSONLExporter) Export(conv models.Conversation, w io.Writer) error {
	enc := json.NewEncoder(w)
	for _, msg := range conv.Messages {
		if err := enc.Encode(msg); err != nil {
			return fmt.Errorf("failed to encode message %s: %w", msg.ID, err)
		}
	}
	return nil
}

func (e *JSONLExporter) Extension() string { return "jsonl" }

type YAMLExporter struct{}

func (e *YAMLExporter) Export(conv models.Conversation, w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(conv); err != nil {
		_ = enc.Close()
		return err
	}
	return enc.Close()
}

func (e *YAMLExporter) Extension() string { return "yaml" }

type MarkdownExporter struct{}

func (e *MarkdownExporter) Export(conv models.Conversation, w io.Writer) error {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", conv.Title)
	fmt.Fprintf(&b, "**Created:** %s  \n", conv.CreatedAt.Format("2006-01-02 15:04"))
	fmt.Fprintf(&b, "**Messages:** %d\n\n", len(conv.Messages))

	for i, msg := range conv.Messages {
		b.WriteString("---\n\n")
		fmt.Fprintf(&b, "**%s** (%s)\n\n", speaker(msg.Role), msg.Timestamp.Format("15:04"))
		// assistant replies are already markdown
		b.WriteString(strings.TrimRight(msg.Content, "\n"))
		b.WriteString("\n")
		if i < len(conv.Messages)-1 {
			b.WriteString("\n")
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func (e *MarkdownExporter) Extension() string { return "md" }

func speaker(r models.Role) string {
	if r == models.RoleAssistant {
		return "Assistant"
	}
	return "You"
}
