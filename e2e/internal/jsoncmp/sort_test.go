package jsoncmp_test

import (
	"strings"
	"testing"

	"github.com/malbeclabs/bfdconverge/e2e/internal/jsoncmp"
	"github.com/stretchr/testify/require"
)

func TestJSONCmp_SortSequences(t *testing.T) {
	t.Parallel()

	in := jsoncmp.MustParse(`[
		{"peer":"fd00:1::2","local":"fd00:3::2"},
		{"peer":"10.1.0.2","local":"10.3.0.3"},
		{"peer":"10.1.0.2","local":"10.3.0.2"},
		{"local":"10.3.0.9"}
	]`)
	orig := jsoncmp.Clone(in)

	got := jsoncmp.SortSequences(in, "peer", "local")
	want := jsoncmp.MustParse(`[
		{"local":"10.3.0.9"},
		{"peer":"10.1.0.2","local":"10.3.0.2"},
		{"peer":"10.1.0.2","local":"10.3.0.3"},
		{"peer":"fd00:1::2","local":"fd00:3::2"}
	]`)
	require.Nil(t, jsoncmp.Compare(want, got))
	require.Equal(t, orig, in)
}

func TestJSONCmp_SortSequences_LeavesScalarSequences(t *testing.T) {
	t.Parallel()

	in := jsoncmp.MustParse(`{"addrs":["b","a"],"peers":[{"peer":"b"},{"peer":"a"}]}`)
	got := jsoncmp.SortSequences(in, "peer")
	require.Nil(t, jsoncmp.Compare(jsoncmp.MustParse(`{"addrs":["b","a"],"peers":[{"peer":"a"},{"peer":"b"}]}`), got))
}

func TestJSONCmp_Report(t *testing.T) {
	t.Parallel()

	expected := jsoncmp.MustParse(`{"peers":[{"peer":"10.1.0.2","status":"up"}]}`)
	observed := jsoncmp.MustParse(`{"peers":[{"peer":"10.1.0.2","status":"down"}]}`)
	div := jsoncmp.Compare(expected, observed)

	report := jsoncmp.Report(expected, observed, div)
	require.True(t, strings.HasPrefix(report, "divergence at $.peers[0].status (value mismatch)\n"))
	require.Contains(t, report, `  expected: "up"`)
	require.Contains(t, report, `  observed: "down"`)
	require.Contains(t, report, `-      "status": "up"`)
	require.Contains(t, report, `+      "status": "down"`)

	require.Empty(t, jsoncmp.Report(expected, expected, nil))
	require.Empty(t, jsoncmp.UnifiedDiff(expected, jsoncmp.Clone(expected)))
}

func TestJSONCmp_UnifiedDiff_LabelsExpectedAndObserved(t *testing.T) {
	t.Parallel()

	diff := jsoncmp.UnifiedDiff(jsoncmp.MustParse(`{"status":"up"}`), jsoncmp.MustParse(`{"status":"down"}`))
	require.True(t, strings.HasPrefix(diff, "--- expected\n+++ observed\n"), diff)
	require.Contains(t, diff, "@@")
}
