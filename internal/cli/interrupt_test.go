package cli

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewInterruptHandler(t *testing.T) {
	tests := []struct {
		writer io.Writer
		name   string
	}{
		{
			name:   "with custom writer",
			writer: &bytes.Buffer{},
		},
		{
			name:   "with nil writer",
			writer: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewInterruptHandler(tt.writer)
			assert.NotNil(t, handler)
			assert.NotNil(t, handler.writer)
			assert.False(t, handler.WasInterrupted())
		})
	}
}

func TestHandleInterrupts_ParentCancelIsNotAnInterrupt(t *testing.T) {
	var output bytes.Buffer
	handler := NewInterruptHandler(&output)

	parent, cancel := context.WithCancel(context.Background())
	ctx := handler.HandleInterrupts(parent, "Playback", "")
	cancel()
	<-ctx.Done()

	assert.False(t, handler.WasInterrupted())
	assert.Empty(t, output.String())
}

func TestInterrupt_ShownOnce(t *testing.T) {
	var output bytes.Buffer
	handler := &InterruptHandler{writer: &output, what: "Playback"}

	handler.interrupt()
	handler.interrupt()

	assert.True(t, handler.WasInterrupted())
	assert.Equal(t, 1, strings.Count(output.String(), "Playback interrupted!"))
}

func TestShowInterruptMessage(t *testing.T) {
	tests := []struct {
		name        string
		what        string
		hint        string
		expected    []string
		notExpected []string
	}{
		{
			name:     "with hint",
			what:     "Playback",
			hint:     "The browser window was left open.",
			expected: []string{"Playback interrupted!", "The browser window was left open."},
		},
		{
			name:        "without hint",
			what:        "Import",
			expected:    []string{"Import interrupted!"},
			notExpected: []string{"browser"},
		},
		{
			name:     "unnamed operation",
			expected: []string{"Operation interrupted!"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var output bytes.Buffer
			handler := &InterruptHandler{writer: &output, what: tt.what, hint: tt.hint}

			handler.showInterruptMessage()

			for _, expected := range tt.expected {
				assert.Contains(t, output.String(), expected)
			}
			for _, notExpected := range tt.notExpected {
				assert.NotContains(t, output.String(), notExpected)
			}
		})
	}
}
