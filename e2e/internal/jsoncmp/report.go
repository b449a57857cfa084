package jsoncmp

import (
	"fmt"
	"strings"

	"github.com/hexops/gotextdiff"
	"github.com/hexops/gotextdiff/myers"
	"github.com/hexops/gotextdiff/span"
)

// Report renders a divergence for humans: the first diverging path followed by a
// unified diff of the expected and observed documents.
func Report(expected, observed Value, div *Divergence) string {
	if div == nil {
		return ""
	}

	var b strings.Builder
	fmt.Fprintf(&b, "divergence at %s (%s)\n", div.Path, div.Reason)
	fmt.Fprintf(&b, "  expected: %s\n", render(div.Expected))
	fmt.Fprintf(&b, "  observed: %s\n", render(div.Actual))

	if diff := UnifiedDiff(expected, observed); diff != "" {
		b.WriteString(diff)
	}
	return b.String()
}

// UnifiedDiff returns a unified diff between the indented JSON encodings of the
// two documents, or an empty string when they encode identically.
func UnifiedDiff(expected, observed Value) string {
	want, err := MarshalIndent(expected)
	if err != nil {
		return ""
	}
	got, err := MarshalIndent(observed)
	if err != nil {
		return ""
	}
	before, after := string(want)+"\n", string(got)+"\n"
	if before == after {
		return ""
	}
	edits := myers.ComputeEdits(span.URIFromPath("expected"), before, after)
	return fmt.Sprint(gotextdiff.ToUnified("expected", "observed", before, edits))
}
