package classifier

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ProcessClassifier runs an external program once per image. The staged
// path is appended as the last argument; the label is read from stdout and
// any stderr output is treated as failure.
type ProcessClassifier struct {
	command []string
	env     []string
	timeout time.Duration
	logger  *zap.Logger
}

// NewProcessClassifier builds a classifier around command, e.g.
// []string{"python", "inference.py"}. A zero timeout disables the limit.
func NewProcessClassifier(command, env []string, timeout time.Duration, logger *zap.Logger) (*ProcessClassifier, error) {
	if len(command) == 0 || command[0] == "" {
		return nil, errors.New("classifier command is empty")
	}
	return &ProcessClassifier{
		command: append([]string(nil), command...),
		env:     append([]string(nil), env...),
		timeout: timeout,
		logger:  logger.Named("process_classifier"),
	}, nil
}

// Classify runs the command against path and interprets its output.
func (p *ProcessClassifier) Classify(ctx context.Context, path string) (string, error) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	args := append(append([]string(nil), p.command[1:]...), path)
	cmd := exec.CommandContext(ctx, p.command[0], args...)
	if len(p.env) > 0 {
		cmd.Env = append(os.Environ(), p.env...)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	runErr := cmd.Run()
	p.logger.Debug("classifier finished",
		zap.Strings("command", cmd.Args),
		zap.Duration("elapsed", time.Since(start)),
		zap.String("stdout", stdout.String()),
		zap.String("stderr", stderr.String()),
	)

	if ctxErr := ctx.Err(); ctxErr != nil && runErr != nil {
		return "", fmt.Errorf("classifier interrupted: %w", ctxErr)
	}
	if stderr.Len() > 0 {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = "classifier wrote to stderr"
		}
		return "", &InferenceError{Message: msg}
	}
	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			return "", &InferenceError{Message: fmt.Sprintf("classifier exited with status %d", exitErr.ExitCode())}
		}
		return "", fmt.Errorf("start classifier: %w", runErr)
	}

	label := strings.TrimSpace(stdout.String())
	if label == "" {
		return "", &InferenceError{Message: "classifier produced no output"}
	}
	return label, nil
}
