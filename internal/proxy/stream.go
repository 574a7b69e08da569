package proxy

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tidwall/gjson"

	"sirchat/internal/core"
	"sirchat/internal/observability"
)

// statusClientClosedRequest labels streams ended by the caller going away.
const statusClientClosedRequest = 499

var (
	dataPrefix = []byte("data:")
	doneMarker = []byte("[DONE]")
)

// Stream reads OpenAI-compatible SSE frames and yields the text deltas.
// Next must be called from one goroutine; Close may be called from any.
type Stream struct {
	ctx      context.Context
	cancel   context.CancelFunc
	body     io.ReadCloser
	reader   *bufio.Reader
	provider string

	stopRelease func() bool
	idle        *time.Timer
	idleTimeout time.Duration
	idleFired   atomic.Bool

	// normalize rewrites upstream faults before they reach the caller
	normalize func(error) *core.ProviderError
	// onClose receives the terminal error, nil for a clean end
	onClose   func(err error)
	closeOnce sync.Once

	mu       sync.Mutex
	terminal error
	finished bool
}

var _ core.DeltaStream = (*Stream)(nil)

func newStream(ctx context.Context, cancel context.CancelFunc, body io.ReadCloser, idleTimeout time.Duration, provider string) *Stream {
	s := &Stream{
		ctx:         ctx,
		cancel:      cancel,
		body:        body,
		reader:      bufio.NewReader(body),
		provider:    provider,
		idleTimeout: idleTimeout,
	}
	// A blocked Read only returns once the body is closed.
	s.stopRelease = context.AfterFunc(ctx, func() {
		_ = body.Close()
	})
	if idleTimeout > 0 {
		s.idle = time.AfterFunc(idleTimeout, func() {
			s.idleFired.Store(true)
			cancel()
		})
	}
	return s
}

// Next returns the next non-empty delta in upstream order. It returns io.EOF
// once the upstream sends [DONE] or closes the stream cleanly.
func (s *Stream) Next() (string, error) {
	s.mu.Lock()
	finished, terminal := s.finished, s.terminal
	s.mu.Unlock()
	if finished {
		if terminal != nil {
			return "", terminal
		}
		return "", io.EOF
	}

	for {
		if s.ctx.Err() != nil {
			return "", s.finish(s.cancellationError())
		}
		line, readErr := s.reader.ReadBytes('\n')
		if len(line) > 0 && s.ctx.Err() == nil {
			delta, done, err := s.parseLine(line)
			if err != nil {
				return "", s.finish(err)
			}
			if done {
				return "", s.finish(nil)
			}
			if delta != "" {
				s.touch()
				observability.RecordStreamChunk(s.provider)
				return delta, nil
			}
		}

		if readErr != nil {
			if s.ctx.Err() != nil {
				return "", s.finish(s.cancellationError())
			}
			if errors.Is(readErr, io.EOF) {
				return "", s.finish(nil)
			}
			return "", s.finish(core.NewProviderError(s.provider, http.StatusBadGateway, "stream interrupted: "+readErr.Error(), readErr))
		}
	}
}

// parseLine handles one SSE line. Comment lines, event names and frames
// without content are skipped.
func (s *Stream) parseLine(line []byte) (delta string, done bool, err error) {
	line = bytes.TrimSpace(line)
	if !bytes.HasPrefix(line, dataPrefix) {
		return "", false, nil
	}
	data := bytes.TrimSpace(line[len(dataPrefix):])
	if len(data) == 0 {
		return "", false, nil
	}
	if bytes.Equal(data, doneMarker) {
		return "", true, nil
	}
	if !gjson.ValidBytes(data) {
		return "", false, core.NewProviderError(s.provider, http.StatusBadGateway, "malformed stream frame", nil)
	}
	if e := gjson.GetBytes(data, "error"); e.Exists() {
		return "", false, core.ParseUpstreamError(s.provider, http.StatusInternalServerError, data, nil)
	}
	return gjson.GetBytes(data, "choices.0.delta.content").String(), false, nil
}

// cancellationError tells an idle timeout apart from the caller going away.
func (s *Stream) cancellationError() error {
	if s.idleFired.Load() {
		return core.NewProviderError(s.provider, http.StatusGatewayTimeout,
			fmt.Sprintf("no data received from upstream for %s", s.idleTimeout), context.DeadlineExceeded)
	}
	return context.Cause(s.ctx)
}

func (s *Stream) touch() {
	if s.idle != nil {
		s.idle.Reset(s.idleTimeout)
	}
}

func (s *Stream) finish(err error) error {
	if err != nil && s.normalize != nil && !errors.Is(err, context.Canceled) {
		err = s.normalize(err)
	}
	s.mu.Lock()
	s.finished = true
	s.terminal = err
	s.mu.Unlock()
	_ = s.Close()
	if err == nil {
		return io.EOF
	}
	return err
}

// Close releases the upstream handle. It is safe to call more than once and
// concurrently with a blocked Next.
func (s *Stream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		if s.idle != nil {
			s.idle.Stop()
		}
		s.stopRelease()
		s.cancel()
		err = s.body.Close()
		if s.onClose != nil {
			s.onClose(s.closeStatusError())
		}
	})
	return err
}

// closeStatusError is the error reported to onClose. A stream closed before
// the upstream finished counts as abandoned by the client.
func (s *Stream) closeStatusError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.finished || errors.Is(s.terminal, context.Canceled) {
		return core.NewProviderError(s.provider, statusClientClosedRequest, "client closed request", context.Canceled)
	}
	return s.terminal
}
