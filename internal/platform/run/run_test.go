package run

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"
)

var errQuit = errors.New("quit")

func TestWithSignals_CleanExit(t *testing.T) {
	r := New(zap.NewNop())
	if code := r.WithSignals(func(context.Context) error { return nil }); code != 0 {
		t.Fatalf("expected 0, got %d", code)
	}
}

func TestWithSignals_Error(t *testing.T) {
	r := New(zap.NewNop())
	if code := r.WithSignals(func(context.Context) error { return errors.New("boom") }); code != 1 {
		t.Fatalf("expected 1, got %d", code)
	}
}

func TestWithSignals_BenignError(t *testing.T) {
	r := New(zap.NewNop())
	start := func(context.Context) error { return errors.Join(errQuit, errors.New("detail")) }
	if code := r.WithSignals(start, errQuit); code != 0 {
		t.Fatalf("expected benign error to exit 0, got %d", code)
	}
}
