package verify

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/malbeclabs/bfdconverge/e2e/internal/jsoncmp"
	"github.com/malbeclabs/bfdconverge/e2e/internal/poll"
	"github.com/olekukonko/tablewriter"
)

type Outcome int

const (
	OutcomePassed Outcome = iota
	OutcomeFailed
	OutcomeSkipped
)

func (o Outcome) String() string {
	switch o {
	case OutcomePassed:
		return "passed"
	case OutcomeFailed:
		return "failed"
	case OutcomeSkipped:
		return "skipped"
	}
	return "unknown"
}

type TargetResult struct {
	Node       string
	Outcome    Outcome
	Poll       *poll.Result
	Expected   jsoncmp.Value
	Violations []error
	Err        error
}

type Report struct {
	Results []TargetResult
	// SkipReason is set when verification never ran.
	SkipReason error
}

// Skip reports every target as skipped because the system under test failed to
// start.
func Skip(targets []Target, setupErr error) *Report {
	r := &Report{SkipReason: setupErr}
	for _, t := range targets {
		r.Results = append(r.Results, TargetResult{Node: t.Node, Outcome: OutcomeSkipped, Err: setupErr})
	}
	return r
}

func (r *Report) Skipped() bool {
	return r.SkipReason != nil
}

func (r *Report) Passed() bool {
	if r.Skipped() {
		return false
	}
	for _, res := range r.Results {
		if res.Outcome != OutcomePassed {
			return false
		}
	}
	return true
}

// Err joins the errors of every failed target.
func (r *Report) Err() error {
	var errs []error
	for _, res := range r.Results {
		if res.Outcome == OutcomeFailed {
			errs = append(errs, res.Err)
		}
	}
	return errors.Join(errs...)
}

// Render writes a summary table followed by the detail of each failure.
func (r *Report) Render(w io.Writer) {
	table := tablewriter.NewWriter(w)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeader([]string{"Target", "Outcome", "Attempts", "Elapsed", "Detail"})

	for _, res := range r.Results {
		attempts, elapsed := "-", "-"
		if res.Poll != nil {
			attempts = fmt.Sprintf("%d", res.Poll.Attempts)
			elapsed = res.Poll.Elapsed.Round(time.Millisecond).String()
		}
		table.Append([]string{res.Node, res.Outcome.String(), attempts, elapsed, res.summary()})
	}
	table.Render()

	for _, res := range r.Results {
		if res.Outcome != OutcomeFailed {
			continue
		}
		fmt.Fprintf(w, "\n--- %s\n", res.Node)
		for _, v := range res.Violations {
			fmt.Fprintf(w, "%s\n", v)
		}
		if res.Poll == nil {
			continue
		}
		switch {
		case res.Poll.Divergence != nil:
			fmt.Fprint(w, jsoncmp.Report(res.Expected, res.Poll.Observed, res.Poll.Divergence))
		case res.Poll.QueryErr != nil:
			fmt.Fprintf(w, "last query error: %v\n", res.Poll.QueryErr)
		}
	}
}

func (res TargetResult) summary() string {
	switch {
	case res.Outcome == OutcomeSkipped:
		return fmt.Sprintf("setup failed: %v", res.Err)
	case len(res.Violations) > 0:
		return fmt.Sprintf("%d guard violation(s)", len(res.Violations))
	case res.Poll == nil || res.Poll.Converged():
		return ""
	case res.Poll.Divergence != nil:
		return res.Poll.Divergence.String()
	case res.Poll.QueryErr != nil:
		return firstLine(res.Poll.QueryErr.Error())
	}
	return ""
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
