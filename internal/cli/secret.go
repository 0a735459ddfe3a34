package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"golang.org/x/term"

	"github.com/Veraticus/spice-harvest/internal/common"
	"github.com/Veraticus/spice-harvest/internal/recipe"
)

// SecretPrompter asks for sensitive playback values. On a terminal nothing is echoed;
// piped input is read a line at a time.
type SecretPrompter struct {
	in           *os.File
	writer       io.Writer
	lines        *NonBlockingReader
	isTerminal   func(fd int) bool
	readPassword func(fd int) ([]byte, error)
}

// NewSecretPrompter prompts on writer and reads from in, usually os.Stdin.
func NewSecretPrompter(in *os.File, writer io.Writer) *SecretPrompter {
	if writer == nil {
		writer = os.Stderr
	}
	return &SecretPrompter{
		in:           in,
		writer:       writer,
		lines:        NewNonBlockingReader(in),
		isTerminal:   term.IsTerminal,
		readPassword: term.ReadPassword,
	}
}

// Prompt satisfies recipe.SensitiveInputFunc. The value is returned to the player and
// never kept here.
func (p *SecretPrompter) Prompt(ctx context.Context, req recipe.SensitiveRequest) (string, error) {
	label := fmt.Sprintf("%s %s (step %d of %d)", LockIcon, req.Label, req.StepIndex+1, req.TotalSteps)
	if _, err := fmt.Fprint(p.writer, "\n"+FormatPrompt(label)); err != nil {
		return "", err
	}

	fd := int(p.in.Fd())
	if !p.isTerminal(fd) {
		value, err := p.lines.ReadLine(ctx)
		if err != nil {
			return "", err
		}
		if value == "" {
			return "", common.ErrSensitiveInputMissing
		}
		return value, nil
	}

	type result struct {
		err   error
		value []byte
	}
	ch := make(chan result, 1)
	go func() {
		value, err := p.readPassword(fd)
		ch <- result{value: value, err: err}
	}()

	select {
	case <-ctx.Done():
		_, _ = fmt.Fprintln(p.writer)
		return "", ErrInputCancelled
	case res := <-ch:
		_, _ = fmt.Fprintln(p.writer)
		if res.err != nil {
			return "", fmt.Errorf("failed to read %s: %w", req.Label, res.err)
		}
		if len(res.value) == 0 {
			return "", common.ErrSensitiveInputMissing
		}
		return string(res.value), nil
	}
}
