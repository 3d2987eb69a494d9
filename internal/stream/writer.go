package stream

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/RichardoC/pad-chat/internal/models"
)

// Writer emits event-stream records, flushing after each one when the
// destination supports it.
type Writer struct {
	w       io.Writer
	flusher http.Flusher
}

func NewWriter(w io.Writer) *Writer {
	sw := &Writer{w: w}
	if f, ok := w.(http.Flusher); ok {
		sw.flusher = f
	}
	return sw
}

// SetHeaders prepares an HTTP response for streaming.
func SetHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
}

func (sw *Writer) WriteDelta(delta models.Delta) error {
	return sw.WriteEvent(delta)
}

// WriteEvent writes v as one JSON data record.
func (sw *Writer) WriteEvent(v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	return sw.writeRecord(string(payload))
}

// WriteDone writes the terminal sentinel.
func (sw *Writer) WriteDone() error {
	return sw.writeRecord(DoneSentinel)
}

func (sw *Writer) writeRecord(payload string) error {
	if _, err := fmt.Fprintf(sw.w, "%s %s\n\n", dataMarker, payload); err != nil {
		return fmt.Errorf("failed to write event: %w", err)
	}
	if sw.flusher != nil {
		sw.flusher.Flush()
	}
	return nil
}
