package events

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

// MemoryStream is an in-process single-partition topic. It satisfies both
// MessageWriter and MessageSource and is used where no broker is available.
type MemoryStream struct {
	mu        sync.Mutex
	messages  []kafka.Message
	next      int
	committed int64
	closed    bool
	notify    chan struct{}
	failWrite error
}

func NewMemoryStream() *MemoryStream {
	return &MemoryStream{committed: -1, notify: make(chan struct{}, 1)}
}

// FailWrites makes subsequent writes return err; nil restores normal behaviour.
func (s *MemoryStream) FailWrites(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failWrite = err
}

func (s *MemoryStream) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return io.ErrClosedPipe
	}
	if s.failWrite != nil {
		err := s.failWrite
		s.mu.Unlock()
		return err
	}
	for _, m := range msgs {
		m.Offset = int64(len(s.messages))
		if m.Time.IsZero() {
			m.Time = time.Now()
		}
		s.messages = append(s.messages, m)
	}
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
	return nil
}

// FetchMessage blocks until a message past the read position exists. A closed
// stream drains what is left and then returns io.EOF.
func (s *MemoryStream) FetchMessage(ctx context.Context) (kafka.Message, error) {
	for {
		s.mu.Lock()
		if s.next < len(s.messages) {
			m := s.messages[s.next]
			s.next++
			s.mu.Unlock()
			return m, nil
		}
		closed := s.closed
		s.mu.Unlock()
		if closed {
			return kafka.Message{}, io.EOF
		}

		select {
		case <-ctx.Done():
			return kafka.Message{}, ctx.Err()
		case <-s.notify:
		}
	}
}

func (s *MemoryStream) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range msgs {
		if m.Offset > s.committed {
			s.committed = m.Offset
		}
	}
	return nil
}

// Rewind moves the read position back to just after the last commit, as a
// consumer group does after a rebalance.
func (s *MemoryStream) Rewind() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next = int(s.committed + 1)
}

// Committed returns the highest committed offset, or -1.
func (s *MemoryStream) Committed() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.committed
}

func (s *MemoryStream) Messages() []kafka.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]kafka.Message(nil), s.messages...)
}

func (s *MemoryStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("memory stream already closed")
	}
	s.closed = true
	select {
	case s.notify <- struct{}{}:
	default:
	}
	return nil
}
