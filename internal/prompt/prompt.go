// Package prompt supplies answers to the questions the bootstrap asks.
//
// Credential flows and confirmation gates depend only on AnswerSource, so
// the same code runs against a real terminal, a scripted set of answers in
// tests, or the defaults used with --yes.
package prompt

import (
	"context"
	"errors"
)

// ErrNoAnswer is returned when a source cannot answer a question
var ErrNoAnswer = errors.New("no answer available")

// Question is one thing to ask the operator
type Question struct {
	// Key identifies the question for scripted answers
	Key string
	// Prompt is the text shown to the operator
	Prompt string
	// Default is used on empty input and by non-interactive sources
	Default string
	// Env names an environment variable that answers the question
	Env string
	// Secret disables echo on a terminal
	Secret bool
}

// AnswerSource answers questions, confirmations, and blocking gates
type AnswerSource interface {
	Ask(ctx context.Context, q Question) (string, error)
	Confirm(ctx context.Context, key, prompt string, def bool) (bool, error)
	// Pause blocks until the operator acknowledges message
	Pause(ctx context.Context, key, message string) error
	// Interactive reports whether a human is answering
	Interactive() bool
}

// Defaults answers every question with its default, for --yes runs.
// Questions without a default yield ErrNoAnswer; gates pass immediately.
type Defaults struct{}

// Ask returns q.Default or ErrNoAnswer
func (Defaults) Ask(_ context.Context, q Question) (string, error) {
	if q.Default == "" {
		return "", ErrNoAnswer
	}
	return q.Default, nil
}

// Confirm returns def
func (Defaults) Confirm(_ context.Context, _, _ string, def bool) (bool, error) {
	return def, nil
}

// Pause returns immediately
func (Defaults) Pause(context.Context, string, string) error {
	return nil
}

// Interactive returns false
func (Defaults) Interactive() bool {
	return false
}

// Scripted answers from fixed maps keyed by question key
type Scripted struct {
	Answers  map[string]string
	Confirms map[string]bool

	// Asked records every question key in order
	Asked []string
	// Paused records every gate key in order
	Paused []string
}

// NewScripted creates a scripted source with the given answers
func NewScripted(answers map[string]string) *Scripted {
	if answers == nil {
		answers = make(map[string]string)
	}
	return &Scripted{Answers: answers, Confirms: make(map[string]bool)}
}

// Ask returns the scripted answer, falling back to the default
func (s *Scripted) Ask(_ context.Context, q Question) (string, error) {
	s.Asked = append(s.Asked, q.Key)
	if a, ok := s.Answers[q.Key]; ok {
		return a, nil
	}
	if q.Default != "" {
		return q.Default, nil
	}
	return "", ErrNoAnswer
}

// Confirm returns the scripted confirmation or def
func (s *Scripted) Confirm(_ context.Context, key, _ string, def bool) (bool, error) {
	s.Asked = append(s.Asked, key)
	if c, ok := s.Confirms[key]; ok {
		return c, nil
	}
	return def, nil
}

// Pause records the gate
func (s *Scripted) Pause(_ context.Context, key, _ string) error {
	s.Paused = append(s.Paused, key)
	return nil
}

// Interactive returns true so flows behave as they would for a human
func (s *Scripted) Interactive() bool {
	return true
}

// EnvSeeded answers questions that name an environment variable from the
// environment before consulting the wrapped source
type EnvSeeded struct {
	inner  AnswerSource
	getenv func(string) string
}

// WithEnv wraps inner; getenv is normally os.Getenv
func WithEnv(inner AnswerSource, getenv func(string) string) *EnvSeeded {
	return &EnvSeeded{inner: inner, getenv: getenv}
}

// Ask prefers a non-empty environment value
func (e *EnvSeeded) Ask(ctx context.Context, q Question) (string, error) {
	if q.Env != "" {
		if v := e.getenv(q.Env); v != "" {
			return v, nil
		}
	}
	return e.inner.Ask(ctx, q)
}

// Confirm delegates to the wrapped source
func (e *EnvSeeded) Confirm(ctx context.Context, key, prompt string, def bool) (bool, error) {
	return e.inner.Confirm(ctx, key, prompt, def)
}

// Pause delegates to the wrapped source
func (e *EnvSeeded) Pause(ctx context.Context, key, message string) error {
	return e.inner.Pause(ctx, key, message)
}

// Interactive delegates to the wrapped source
func (e *EnvSeeded) Interactive() bool {
	return e.inner.Interactive()
}
