package docker

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
)

const execInspectInterval = 100 * time.Millisecond

type ExecOption func(*ExecOptions)

type ExecOptions struct {
	// Logger receives the command output when the command fails. Nil discards it.
	Logger *slog.Logger
}

func WithOutputLogger(log *slog.Logger) ExecOption {
	return func(opts *ExecOptions) {
		opts.Logger = log
	}
}

// ExecError is returned when a command ran but exited non-zero.
type ExecError struct {
	Cmd      []string
	ExitCode int
	// Output is stdout followed by stderr.
	Output []byte
	Stderr []byte
}

func (e *ExecError) Error() string {
	if stderr := bytes.TrimSpace(e.Stderr); len(stderr) > 0 {
		return fmt.Sprintf("command %q failed with exit code %d: %s", e.Cmd, e.ExitCode, firstLine(stderr))
	}
	return fmt.Sprintf("command %q failed with exit code %d", e.Cmd, e.ExitCode)
}

// Exec runs cmd in the container and returns its stdout followed by its stderr.
// The output is also returned on failure since it usually explains it.
func Exec(ctx context.Context, cli client.ContainerAPIClient, containerID string, cmd []string, options ...ExecOption) ([]byte, error) {
	stdout, stderr, err := run(ctx, cli, containerID, cmd, options)
	return append(stdout, stderr...), err
}

// ExecStdout runs cmd in the container and returns only its stdout, for commands
// whose output is parsed. Stderr is kept out of the result and surfaces in the
// ExecError on a non-zero exit.
func ExecStdout(ctx context.Context, cli client.ContainerAPIClient, containerID string, cmd []string, options ...ExecOption) ([]byte, error) {
	stdout, _, err := run(ctx, cli, containerID, cmd, options)
	return stdout, err
}

func run(ctx context.Context, cli client.ContainerAPIClient, containerID string, cmd []string, options []ExecOption) ([]byte, []byte, error) {
	execOptions := &ExecOptions{}
	for _, option := range options {
		option(execOptions)
	}

	exitCode, stdout, stderr, err := execStreams(ctx, cli, containerID, cmd)
	output := append(bytes.Clone(stdout), stderr...)
	if err != nil {
		execOptions.logFailure(cmd, output, err)
		return stdout, stderr, fmt.Errorf("failed to execute command: %w", err)
	}
	if exitCode != 0 {
		execErr := &ExecError{Cmd: cmd, ExitCode: exitCode, Output: output, Stderr: stderr}
		execOptions.logFailure(cmd, output, execErr)
		return stdout, stderr, execErr
	}
	if len(stderr) > 0 && execOptions.Logger != nil {
		execOptions.Logger.Debug("--> Command wrote to stderr", "cmd", cmd, "stderr", string(stderr))
	}
	return stdout, stderr, nil
}

// execStreams follows the create, attach, inspect sequence of testcontainers-go's
// Exec, demultiplexing the attached stream before waiting for the exit code.
func execStreams(ctx context.Context, cli client.ContainerAPIClient, containerID string, cmd []string) (int, []byte, []byte, error) {
	created, err := cli.ContainerExecCreate(ctx, containerID, container.ExecOptions{
		Cmd:          cmd,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return 0, nil, nil, fmt.Errorf("container exec create: %w", err)
	}

	hijack, err := cli.ContainerExecAttach(ctx, created.ID, container.ExecAttachOptions{})
	if err != nil {
		return 0, nil, nil, fmt.Errorf("container exec attach: %w", err)
	}
	defer hijack.Close()

	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, hijack.Reader); err != nil {
		return 0, stdout.Bytes(), stderr.Bytes(), fmt.Errorf("copying output: %w", err)
	}

	for {
		inspect, err := cli.ContainerExecInspect(ctx, created.ID)
		if err != nil {
			return 0, stdout.Bytes(), stderr.Bytes(), fmt.Errorf("container exec inspect: %w", err)
		}
		if !inspect.Running {
			return inspect.ExitCode, stdout.Bytes(), stderr.Bytes(), nil
		}

		select {
		case <-ctx.Done():
			return 0, stdout.Bytes(), stderr.Bytes(), ctx.Err()
		case <-time.After(execInspectInterval):
		}
	}
}

func (o *ExecOptions) logFailure(cmd []string, output []byte, err error) {
	if o.Logger == nil {
		return
	}
	o.Logger.Debug("--> Command failed", "cmd", cmd, "error", err, "output", string(output))
}

func firstLine(b []byte) string {
	if i := bytes.IndexByte(b, '\n'); i >= 0 {
		return string(b[:i])
	}
	return string(b)
}
