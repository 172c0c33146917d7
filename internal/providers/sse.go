package providers

import (
	"bufio"
	"io"
	"strings"
)

// sseEvent is one flushed Server-Sent-Events payload (the concatenation of
// every "data:" line between blank-line boundaries).
type sseEvent struct {
	Data string
	Done bool
}

// sseReader splits an SSE body into events: a line buffer accumulates
// "data:" lines, a blank line flushes the accumulated payload as one
// event, and a literal "data: [DONE]" event terminates the stream.
type sseReader struct {
	scanner *bufio.Scanner
	pending strings.Builder
	hasData bool
}

func newSSEReader(r io.Reader) *sseReader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &sseReader{scanner: sc}
}

// Next returns the next flushed event, or io.EOF when the stream ends
// without an explicit [DONE] sentinel.
func (s *sseReader) Next() (sseEvent, error) {
	for s.scanner.Scan() {
		line := s.scanner.Text()
		line = strings.TrimRight(line, "\r")

		if line == "" {
			if !s.hasData {
				continue
			}
			payload := s.pending.String()
			s.pending.Reset()
			s.hasData = false
			if strings.TrimSpace(payload) == "[DONE]" {
				return sseEvent{Done: true}, nil
			}
			return sseEvent{Data: payload}, nil
		}

		if after, ok := strings.CutPrefix(line, "data:"); ok {
			chunk := strings.TrimPrefix(after, " ")
			if s.hasData {
				s.pending.WriteByte('\n')
			}
			s.pending.WriteString(chunk)
			s.hasData = true
		}
		// Non-"data:" lines (event:, id:, retry:, comments) are ignored;
		// this provider layer only cares about content deltas.
	}
	if err := s.scanner.Err(); err != nil {
		return sseEvent{}, err
	}
	if s.hasData {
		payload := s.pending.String()
		s.pending.Reset()
		s.hasData = false
		if strings.TrimSpace(payload) == "[DONE]" {
			return sseEvent{Done: true}, nil
		}
		return sseEvent{Data: payload}, nil
	}
	return sseEvent{}, io.EOF
}

// IsSSE reports whether a response should be treated as an SSE stream:
// either the Content-Type header says so, or the body already looks like
// one (contains "data:").
func IsSSE(contentType string, bodyPeek string) bool {
	if strings.Contains(contentType, "text/event-stream") {
		return true
	}
	return strings.Contains(bodyPeek, "data:")
}
