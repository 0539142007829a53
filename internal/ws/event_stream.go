package ws

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// ErrStreamClosed is returned by writes after the stream has ended.
var ErrStreamClosed = errors.New("event stream closed")

// EventStream writes hub payloads to a text/event-stream response. Frames
// carry a monotonically increasing id so browsers can resume with
// Last-Event-ID.
type EventStream struct {
	rc    *http.ResponseController
	w     http.ResponseWriter
	name  string
	log   *slog.Logger
	retry time.Duration

	mu     sync.Mutex
	seq    uint64
	done   chan struct{}
	closer sync.Once
}

// NewEventStream prepares w for streaming. Frames are labelled with name.
func NewEventStream(w http.ResponseWriter, name string, logger *slog.Logger) *EventStream {
	return &EventStream{
		rc:    http.NewResponseController(w),
		w:     w,
		name:  name,
		log:   logger,
		retry: 3 * time.Second,
		done:  make(chan struct{}),
	}
}

// Open writes the stream headers and the reconnect hint. resumeFrom seeds
// the id sequence, usually from the client's Last-Event-ID header.
func (s *EventStream) Open(resumeFrom string) error {
	if n, err := strconv.ParseUint(resumeFrom, 10, 64); err == nil {
		s.seq = n
	}
	h := s.w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	s.w.WriteHeader(http.StatusOK)
	return s.emit([]byte("retry: " + strconv.FormatInt(s.retry.Milliseconds(), 10) + "\n\n"))
}

// Send emits payload as one event. Multi-line payloads are split across
// data fields.
func (s *EventStream) Send(payload []byte) error {
	s.mu.Lock()
	s.seq++
	id := s.seq
	s.mu.Unlock()

	var buf bytes.Buffer
	buf.WriteString("id: ")
	buf.WriteString(strconv.FormatUint(id, 10))
	buf.WriteString("\nevent: ")
	buf.WriteString(s.name)
	buf.WriteByte('\n')
	for _, line := range bytes.Split(payload, []byte("\n")) {
		buf.WriteString("data: ")
		buf.Write(line)
		buf.WriteByte('\n')
	}
	buf.WriteByte('\n')
	return s.emit(buf.Bytes())
}

// Run sends keepalive comments every interval until ctx ends or a write
// fails, then closes the stream.
func (s *EventStream) Run(ctx context.Context, interval time.Duration) error {
	defer s.Close()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.done:
			return ErrStreamClosed
		case <-ticker.C:
			if err := s.emit([]byte(": keepalive\n\n")); err != nil {
				return err
			}
		}
	}
}

func (s *EventStream) emit(frame []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-s.done:
		return ErrStreamClosed
	default:
	}
	if _, err := s.w.Write(frame); err != nil {
		s.log.Debug("event stream write failed", "event", s.name, "error", err)
		s.closeLocked()
		return err
	}
	if err := s.rc.Flush(); err != nil {
		s.closeLocked()
		return err
	}
	return nil
}

func (s *EventStream) closeLocked() {
	s.closer.Do(func() { close(s.done) })
}

// Close ends the stream. Pending and later writes fail with ErrStreamClosed.
func (s *EventStream) Close() {
	s.closeLocked()
}
