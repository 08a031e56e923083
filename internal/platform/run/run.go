package run

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
)

type Runner struct {
	Logger *zap.Logger
}

func New(log *zap.Logger) *Runner {
	return &Runner{Logger: log}
}

// WithSignals runs start with a context that is cancelled on SIGINT/SIGTERM
// and maps the outcome to a process exit code. Errors matching any of
// benign are treated as a clean exit.
func (r *Runner) WithSignals(start func(ctx context.Context) error, benign ...error) int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- start(ctx)
	}()

	select {
	case <-ctx.Done():
		r.Logger.Info("shutdown signal received")
		return 0
	case err := <-errCh:
		return r.code(err, benign)
	}
}

func (r *Runner) code(err error, benign []error) int {
	if err == nil {
		return 0
	}
	for _, b := range benign {
		if errors.Is(err, b) {
			return 0
		}
	}
	r.Logger.Error("exited with error", zap.Error(err))
	return 1
}

func Exit(code int) {
	os.Exit(code)
}
