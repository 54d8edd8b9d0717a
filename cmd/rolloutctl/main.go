package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/rollout-k8s/rolloutctl/internal/cli"
	"github.com/rollout-k8s/rolloutctl/internal/logging"
	"github.com/rollout-k8s/rolloutctl/internal/release"
)

// Exit codes per failure class so pipelines can branch on the outcome.
const (
	exitOK           = 0
	exitError        = 1
	exitValidation   = 2
	exitApplyFailed  = 3
	exitLockRejected = 4
	exitInconsistent = 5
)

// main is the entry point for the rolloutctl CLI binary.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := logging.NewLogger(os.Stderr, logging.LevelInfo)
	if err := cli.ExecuteContext(ctx, os.Args[1:], logger); err != nil {
		logger.Error("command failed", "error", err)
		os.Exit(exitCode(err))
	}
	os.Exit(exitOK)
}

// exitCode maps the error taxonomy onto distinct exit codes.
func exitCode(err error) int {
	switch {
	case errors.Is(err, release.ErrValidation):
		return exitValidation
	case errors.Is(err, release.ErrConcurrentApply):
		return exitLockRejected
	case errors.Is(err, release.ErrStateInconsistency):
		return exitInconsistent
	case errors.Is(err, release.ErrApplyFailed):
		return exitApplyFailed
	default:
		return exitError
	}
}
