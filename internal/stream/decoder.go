// Package stream turns a chunked generation response into a lazy sequence of
// chat deltas, and writes deltas back out in the same wire format.
//
// Each line of the body is either an event-stream record ("data: <payload>")
// or a bare JSON object. The payload "[DONE]" ends the sequence. Blank lines
// separate records and carry no data.
package stream

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/RichardoC/pad-chat/internal/models"
)

const (
	dataMarker = "data:"
	// DoneSentinel is the payload that terminates a stream.
	DoneSentinel = "[DONE]"
)

// Decoder is a finite, single-pass iterator over the deltas of one response
// body. It owns the body and releases it exactly once: when the sequence
// ends, when a read fails, or when the consumer calls Close.
type Decoder struct {
	body   io.ReadCloser
	reader *bufio.Reader
	logger *zap.Logger

	eof      bool
	finished bool

	closeOnce sync.Once
	closeErr  error
	closed    bool
}

func NewDecoder(body io.ReadCloser, logger *zap.Logger) *Decoder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Decoder{
		body:   body,
		reader: bufio.NewReader(body),
		logger: logger,
	}
}

// Next returns the next delta, or io.EOF once the transport reports end of
// data or the terminal sentinel is seen. Malformed records are logged and
// skipped.
func (d *Decoder) Next() (models.Delta, error) {
	for {
		if d.finished {
			if d.closed {
				return models.Delta{}, ErrClosed
			}
			return models.Delta{}, io.EOF
		}
		if d.eof {
			d.finish()
			return models.Delta{}, io.EOF
		}

		// bufio keeps the partial trailing line between reads. Splitting on
		// the newline byte never cuts a multi-byte UTF-8 sequence.
		line, err := d.reader.ReadBytes('\n')
		if errors.Is(err, io.EOF) {
			d.eof = true
		} else if err != nil {
			d.finish()
			return models.Delta{}, fmt.Errorf("failed to read stream: %w", err)
		}

		if len(line) == 0 {
			continue
		}

		delta, ok, terminal := d.parseLine(line)
		if terminal {
			d.finish()
			return models.Delta{}, io.EOF
		}
		if ok {
			return delta, nil
		}
	}
}

// All adapts the decoder to a range-over-func sequence. The body is released
// when the loop ends, including when the consumer breaks out early.
func (d *Decoder) All() iter.Seq2[models.Delta, error] {
	return func(yield func(models.Delta, error) bool) {
		defer d.Close()
		for {
			delta, err := d.Next()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(models.Delta{}, err)
				return
			}
			if !yield(delta, nil) {
				return
			}
		}
	}
}

// Close releases the underlying body. It is safe to call more than once;
// a Close before the sequence ended makes Next report ErrClosed. To abort a
// blocked read, cancel the request context instead.
func (d *Decoder) Close() error {
	d.closeOnce.Do(func() {
		if !d.finished {
			d.closed = true
			d.finished = true
		}
		d.closeErr = d.body.Close()
	})
	return d.closeErr
}

func (d *Decoder) finish() {
	d.finished = true
	if err := d.Close(); err != nil {
		d.logger.Debug("failed to release stream body", zap.Error(err))
	}
}

// parseLine interprets one complete line. ok reports a delta was decoded;
// terminal reports the sentinel was seen.
func (d *Decoder) parseLine(raw []byte) (delta models.Delta, ok bool, terminal bool) {
	// invalid UTF-8 inside JSON strings becomes one U+FFFD per byte when
	// the payload is unmarshalled
	line := strings.TrimRight(string(raw), "\r\n")

	if strings.TrimSpace(line) == "" {
		return models.Delta{}, false, false
	}
	// event-stream comment
	if strings.HasPrefix(line, ":") {
		return models.Delta{}, false, false
	}

	payload := line
	if rest, found := strings.CutPrefix(line, dataMarker); found {
		payload = strings.TrimPrefix(rest, " ")
	}
	if payload == DoneSentinel {
		return models.Delta{}, false, true
	}

	if err := decodePayload(payload, &delta); err != nil {
		d.logger.Warn("failed to parse streaming response",
			zap.String("line", line),
			zap.Error(&ParseError{Line: line, Err: err}))
		return models.Delta{}, false, false
	}
	return delta, true, false
}

func decodePayload(payload string, delta *models.Delta) error {
	if !strings.HasPrefix(strings.TrimSpace(payload), "{") {
		return errors.New("payload is not a JSON object")
	}
	return json.Unmarshal([]byte(payload), delta)
}
