// ABOUTME: Spawns a tool-serving subprocess and exposes its stdio as a Channel.
// ABOUTME: stderr is passed through so the child's logs stay visible.

package transport

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
)

// Subprocess wraps a spawned tool server whose stdin/stdout carry
// line-delimited frames.
type Subprocess struct {
	*Pipe
	cmd *exec.Cmd
}

// StartSubprocess launches the given command and returns a Channel over its
// stdio. The child inherits stderr. Closing the channel closes the child's
// stdin (the server's cue to drain) and waits for it to exit.
func StartSubprocess(ctx context.Context, command string, args []string, logger *slog.Logger) (*Subprocess, error) {
	cmd := exec.CommandContext(ctx, command, args...)
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("opening stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("opening stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting %s: %w", command, err)
	}

	logger.Debug("tool server subprocess started",
		"command", command,
		"pid", cmd.Process.Pid,
	)

	return &Subprocess{
		Pipe: NewPipe(stdout, stdin, logger, stdin),
		cmd:  cmd,
	}, nil
}

// Close shuts the stdio channel and waits for the child to exit.
func (s *Subprocess) Close() error {
	err := s.Pipe.Close()
	if waitErr := s.cmd.Wait(); waitErr != nil && err == nil {
		err = waitErr
	}
	return err
}
