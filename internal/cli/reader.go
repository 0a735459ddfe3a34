package cli

import (
	"bufio"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
)

// ErrInputCancelled is returned when the context ends before a line arrives.
var ErrInputCancelled = errors.New("input canceled")

type lineResult struct {
	err  error
	line string
}

// NonBlockingReader reads lines from a blocking source, such as a terminal, while
// honouring context cancellation. A single goroutine owns the source, so a line
// that arrives after a cancelled read is kept for the next ReadLine.
type NonBlockingReader struct {
	src   *bufio.Reader
	lines chan lineResult
	once  sync.Once
}

// NewNonBlockingReader wraps r.
func NewNonBlockingReader(r io.Reader) *NonBlockingReader {
	if r == nil {
		panic("reader cannot be nil")
	}
	return &NonBlockingReader{src: bufio.NewReader(r), lines: make(chan lineResult)}
}

func (r *NonBlockingReader) feed() {
	for {
		line, err := r.src.ReadString('\n')
		if err != nil && (!errors.Is(err, io.EOF) || line == "") {
			r.lines <- lineResult{err: err}
			close(r.lines)
			return
		}
		r.lines <- lineResult{line: strings.TrimSpace(line)}
		if err != nil {
			// Final line without a newline; the next read reports EOF.
			r.lines <- lineResult{err: io.EOF}
			close(r.lines)
			return
		}
	}
}

// ReadLine returns the next line with surrounding whitespace trimmed. It returns
// ErrInputCancelled when ctx ends first and io.EOF once the source is exhausted.
func (r *NonBlockingReader) ReadLine(ctx context.Context) (string, error) {
	if ctx.Err() != nil {
		return "", ErrInputCancelled
	}
	r.once.Do(func() { go r.feed() })

	select {
	case <-ctx.Done():
		return "", ErrInputCancelled
	case res, ok := <-r.lines:
		if !ok {
			return "", io.EOF
		}
		return res.line, res.err
	}
}
