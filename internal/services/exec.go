package services

import (
	"bytes"
	"context"
	"os/exec"
)

// CommandRunner abstracts external binary invocation so tests can stub
// yt-dlp without a network or a binary on PATH.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)
}

// execRunner invokes the real binary. CommandContext kills the process when
// the context deadline fires — external calls are terminated, not abandoned.
type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}
