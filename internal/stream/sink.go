package stream

import (
	"bufio"
	"io"
	"net/http"
)

// LineSink writes each frame followed by a newline, producing NDJSON. When the
// underlying writer is an http.ResponseWriter every frame is flushed.
type LineSink struct {
	w       io.Writer
	flusher http.Flusher
	written bool
}

// NewLineSink wraps w
func NewLineSink(w io.Writer) *LineSink {
	s := &LineSink{w: w}
	if f, ok := w.(http.Flusher); ok {
		s.flusher = f
	}
	return s
}

// Send implements EventSink
func (s *LineSink) Send(frame []byte) error {
	buf := make([]byte, 0, len(frame)+1)
	buf = append(buf, frame...)
	buf = append(buf, '\n')
	if _, err := s.w.Write(buf); err != nil {
		return err
	}
	s.written = true
	if s.flusher != nil {
		s.flusher.Flush()
	}
	return nil
}

// Written reports whether any frame reached the writer
func (s *LineSink) Written() bool {
	return s.written
}

// ReadFrames reads NDJSON frames from r, calling fn for each non-empty line
func ReadFrames(r io.Reader, fn func(frame []byte) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 32*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if err := fn(line); err != nil {
			return err
		}
	}
	return scanner.Err()
}
