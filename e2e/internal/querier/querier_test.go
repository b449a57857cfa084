package querier_test

import (
	"context"
	"errors"
	"testing"

	"github.com/malbeclabs/bfdconverge/e2e/internal/jsoncmp"
	"github.com/malbeclabs/bfdconverge/e2e/internal/querier"
	"github.com/stretchr/testify/require"
)

type fakeExecutor struct {
	cmds [][]string
	out  []byte
	err  error
}

func (f *fakeExecutor) Exec(_ context.Context, cmd []string) ([]byte, error) {
	f.cmds = append(f.cmds, cmd)
	return f.out, f.err
}

func TestQuerier_Query(t *testing.T) {
	t.Parallel()

	exec := &fakeExecutor{out: []byte(`[{"peer":"10.1.0.12","local":"10.1.0.2","status":"up"}]`)}
	q := querier.New("r1", querier.Vtysh(exec), querier.Command{Name: "bfd-peers", Text: "show bfd peers json"})

	doc, err := q.Query(t.Context())
	require.NoError(t, err)
	require.Equal(t, [][]string{{"vtysh", "-c", "show bfd peers json"}}, exec.cmds)
	require.Nil(t, jsoncmp.Compare(jsoncmp.MustParse(`[{"peer":"10.1.0.12","status":"up"}]`), doc))
}

func TestQuerier_Query_FreshSnapshotEachCall(t *testing.T) {
	t.Parallel()

	exec := &fakeExecutor{out: []byte(`{"peers":[]}`)}
	q := querier.New("r1", querier.Vtysh(exec), querier.Command{Text: "show bfd peers json"})

	first, err := q.Query(t.Context())
	require.NoError(t, err)
	first.(jsoncmp.Mapping)["peers"] = jsoncmp.String("mutated")

	second, err := q.Query(t.Context())
	require.NoError(t, err)
	require.Equal(t, jsoncmp.Sequence{}, second.(jsoncmp.Mapping)["peers"])
	require.Len(t, exec.cmds, 2)
}

func TestQuerier_Query_Normalize(t *testing.T) {
	t.Parallel()

	runner := querier.RunnerFunc(func(context.Context, string) ([]byte, error) {
		return []byte(`[{"peer":"b"},{"peer":"a"}]`), nil
	})
	q := querier.New("r2", runner, querier.Command{
		Text: "show bfd peers json",
		Normalize: func(v jsoncmp.Value) (jsoncmp.Value, error) {
			return jsoncmp.SortSequences(v, "peer"), nil
		},
	})

	doc, err := q.Query(t.Context())
	require.NoError(t, err)
	require.Nil(t, jsoncmp.Compare(jsoncmp.MustParse(`[{"peer":"a"},{"peer":"b"}]`), doc))
}

func TestQuerier_Query_Errors(t *testing.T) {
	t.Parallel()

	errUnreachable := errors.New("container is not running")

	tests := []struct {
		name      string
		out       string
		err       error
		normalize func(jsoncmp.Value) (jsoncmp.Value, error)
		want      error
	}{
		{name: "runner failure", err: errUnreachable, want: errUnreachable},
		{name: "empty output", out: "  \n", want: querier.ErrEmptyOutput},
		{name: "daemon not ready", out: "bfdd is not running", want: querier.ErrUnparsable},
		{name: "truncated json", out: `[{"peer":`, want: querier.ErrUnparsable},
		{
			name: "normalize rejects shape",
			out:  `"up"`,
			normalize: func(jsoncmp.Value) (jsoncmp.Value, error) {
				return nil, errors.New("unexpected string")
			},
			want: querier.ErrUnparsable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			runner := querier.RunnerFunc(func(context.Context, string) ([]byte, error) {
				return []byte(tt.out), tt.err
			})
			q := querier.New("r3", runner, querier.Command{Text: "show bfd peers json", Normalize: tt.normalize})

			doc, err := q.Query(t.Context())
			require.Nil(t, doc)
			require.ErrorIs(t, err, tt.want)

			var qerr *querier.QueryError
			require.ErrorAs(t, err, &qerr)
			require.Equal(t, "r3", qerr.Node)
			require.Equal(t, "show bfd peers json", qerr.Command)
		})
	}
}
