// Package querier runs a state command against a live node and returns its output
// as a structured document.
package querier

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/malbeclabs/bfdconverge/e2e/internal/jsoncmp"
)

var (
	ErrEmptyOutput = errors.New("empty output")
	ErrUnparsable  = errors.New("output is not structured data")
)

// Runner sends a single command string to a node and returns its raw output.
type Runner interface {
	Run(ctx context.Context, command string) ([]byte, error)
}

type RunnerFunc func(ctx context.Context, command string) ([]byte, error)

func (f RunnerFunc) Run(ctx context.Context, command string) ([]byte, error) { return f(ctx, command) }

// Executor runs an argv inside a node, such as a container exec.
type Executor interface {
	Exec(ctx context.Context, cmd []string) ([]byte, error)
}

type ExecutorFunc func(ctx context.Context, cmd []string) ([]byte, error)

func (f ExecutorFunc) Exec(ctx context.Context, cmd []string) ([]byte, error) { return f(ctx, cmd) }

type vtysh struct {
	exec Executor
}

// Vtysh adapts an executor into a Runner that passes each command to vtysh. The
// executor must return stdout only, since the output is parsed.
func Vtysh(exec Executor) Runner {
	return &vtysh{exec: exec}
}

func (v *vtysh) Run(ctx context.Context, command string) ([]byte, error) {
	return v.exec.Exec(ctx, []string{"vtysh", "-c", command})
}

// Command describes a state query. Normalize, when set, canonicalises the parsed
// document before it is returned.
type Command struct {
	Name      string
	Text      string
	Normalize func(jsoncmp.Value) (jsoncmp.Value, error)
}

type QueryError struct {
	Node    string
	Command string
	Err     error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("query %q on %s: %v", e.Command, e.Node, e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }

// Querier issues one command against one node. It never retries.
type Querier struct {
	Node    string
	Runner  Runner
	Command Command
}

func New(node string, runner Runner, cmd Command) *Querier {
	return &Querier{Node: node, Runner: runner, Command: cmd}
}

// Query runs the command once and returns a fresh document. Every failure is a
// *QueryError.
func (q *Querier) Query(ctx context.Context) (jsoncmp.Value, error) {
	out, err := q.Runner.Run(ctx, q.Command.Text)
	if err != nil {
		return nil, q.fail(err)
	}
	if len(strings.TrimSpace(string(out))) == 0 {
		return nil, q.fail(ErrEmptyOutput)
	}

	doc, err := jsoncmp.Parse(out)
	if err != nil {
		return nil, q.fail(fmt.Errorf("%w: %v: %s", ErrUnparsable, err, excerpt(out)))
	}

	if q.Command.Normalize != nil {
		doc, err = q.Command.Normalize(doc)
		if err != nil {
			return nil, q.fail(fmt.Errorf("%w: %v", ErrUnparsable, err))
		}
	}
	return doc, nil
}

func (q *Querier) fail(err error) error {
	return &QueryError{Node: q.Node, Command: q.Command.Text, Err: err}
}

func excerpt(out []byte) string {
	const n = 80
	s := strings.TrimSpace(string(out))
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}
