// Package llm adapts language-model providers to the single call the
// pipeline makes: one prompt in, one non-streamed completion out.
package llm

import (
	"context"
	"errors"
)

// Generator returns one complete text completion for a prompt. It fails with a
// transport or provider error and never returns partial text.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// ErrEmptyPrompt is returned when Generate is called with nothing to send.
var ErrEmptyPrompt = errors.New("llm: empty prompt")
