package dbconn

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/apache/arrow-go/v18/arrow"
)

// DefaultStreamCapacity is the default bound on the batch relay channel.
// A small capacity keeps memory bounded and applies backpressure: the
// producing worker blocks on send when the consumer is slow.
const DefaultStreamCapacity = 4

// BatchStream is an asynchronous sequence of Arrow record batches whose
// schema is known before the first batch arrives. Batches are delivered in
// production order. After the last batch, Next returns io.EOF on success or
// the worker's terminal error on failure. The caller owns every returned
// batch and must Release it. A BatchStream is single-consumer.
type BatchStream interface {
	// Schema returns the schema shared by all batches in the stream.
	Schema() *arrow.Schema

	// Next blocks until the next batch is available, the stream ends
	// (io.EOF), the worker fails (its error), or ctx is done.
	Next(ctx context.Context) (arrow.RecordBatch, error)

	// Close abandons the stream, cancels the producing worker and releases
	// any undelivered batches. Safe to call at any time, including after
	// exhaustion.
	Close() error
}

// SendFunc delivers one batch toward the consumer, blocking while the relay
// channel is full. It fails with a CHANNEL error when the stream has been
// cancelled or abandoned; the batch is released on failure.
type SendFunc func(arrow.RecordBatch) error

// NewWorkerStream runs the given producer on its own goroutine and exposes
// its output as a BatchStream with a bounded relay channel of the given
// capacity (DefaultStreamCapacity if <= 0). The producer owns any native
// resources it touches; a panic inside the producer is captured and
// surfaced as the stream's terminal error.
func NewWorkerStream(ctx context.Context, schema *arrow.Schema, capacity int, produce func(ctx context.Context, send SendFunc) error) BatchStream {
	if capacity <= 0 {
		capacity = DefaultStreamCapacity
	}
	wctx, cancel := context.WithCancel(ctx)
	s := &workerStream{
		schema:  schema,
		batches: make(chan arrow.RecordBatch, capacity),
		done:    make(chan error, 1),
		cancel:  cancel,
	}

	send := func(rec arrow.RecordBatch) error {
		select {
		case s.batches <- rec:
			return nil
		case <-wctx.Done():
			rec.Release()
			return WrapError(ErrCategoryChannel, CodeChannelClosed,
				"batch relay interrupted", wctx.Err())
		}
	}

	go func() {
		var err error
		func() {
			defer func() {
				if r := recover(); r != nil {
					err = NewError(ErrCategoryQuery, CodeQueryFailed,
						fmt.Sprintf("query worker panicked: %v", r))
				}
			}()
			err = produce(wctx, send)
		}()
		s.done <- err
		close(s.batches)
	}()

	return s
}

type workerStream struct {
	schema  *arrow.Schema
	batches chan arrow.RecordBatch
	done    chan error
	cancel  context.CancelFunc

	mu       sync.Mutex
	finished bool
	terminal error

	closeOnce sync.Once
}

func (s *workerStream) Schema() *arrow.Schema {
	return s.schema
}

func (s *workerStream) Next(ctx context.Context) (arrow.RecordBatch, error) {
	s.mu.Lock()
	if s.finished {
		err := s.terminal
		s.mu.Unlock()
		if err == nil {
			err = io.EOF
		}
		return nil, err
	}
	s.mu.Unlock()

	select {
	case rec, ok := <-s.batches:
		if !ok {
			// the worker sends its result before closing the channel,
			// so this receive never blocks
			err := <-s.done
			s.mu.Lock()
			s.finished = true
			s.terminal = err
			s.mu.Unlock()
			if err == nil {
				return nil, io.EOF
			}
			return nil, err
		}
		return rec, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *workerStream) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		// unblock the worker and release anything it already relayed
		for rec := range s.batches {
			rec.Release()
		}
		s.mu.Lock()
		if !s.finished {
			s.finished = true
			s.terminal = <-s.done
		}
		s.mu.Unlock()
	})
	return nil
}
