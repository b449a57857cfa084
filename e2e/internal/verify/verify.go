// Package verify polls a set of targets, one after another, until each matches
// its expected state, and reports the outcome per target.
package verify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/malbeclabs/bfdconverge/e2e/internal/jsoncmp"
	"github.com/malbeclabs/bfdconverge/e2e/internal/poll"
)

// Loader returns the expected document for a source.
type Loader interface {
	Load(source string) (jsoncmp.Value, error)
}

// Guard checks a single snapshot for conditions the expected document cannot
// express, such as a session that must never come up.
type Guard func(observed jsoncmp.Value) error

type Target struct {
	Node    string
	Querier poll.Querier
	Source  string
	Guard   Guard
}

type Verifier struct {
	Loader Loader
	Poll   poll.Config
	Logger *slog.Logger
}

func New(log *slog.Logger, loader Loader, cfg poll.Config) *Verifier {
	return &Verifier{Loader: loader, Poll: cfg, Logger: log}
}

// Run loads every target's expected document, then polls the targets strictly in
// order. A load failure is returned before anything is polled. Targets that do
// not converge are reported in the returned Report, not as an error.
func (v *Verifier) Run(ctx context.Context, targets []Target) (*Report, error) {
	log := v.Logger
	if log == nil {
		log = slog.Default()
	}
	if len(targets) == 0 {
		return nil, errors.New("no targets to verify")
	}

	expected := make([]jsoncmp.Value, len(targets))
	for i, t := range targets {
		if t.Querier == nil {
			return nil, fmt.Errorf("target %s: querier is required", t.Node)
		}
		doc, err := v.Loader.Load(t.Source)
		if err != nil {
			return nil, fmt.Errorf("target %s: %w", t.Node, err)
		}
		expected[i] = doc
	}

	report := &Report{}
	for i, t := range targets {
		log.Info("==> Verifying target", "node", t.Node, "source", t.Source)

		res, err := v.verify(ctx, log, t, expected[i])
		if err != nil {
			return report, err
		}
		report.Results = append(report.Results, res)
	}
	return report, nil
}

func (v *Verifier) verify(ctx context.Context, log *slog.Logger, t Target, expected jsoncmp.Value) (TargetResult, error) {
	res := TargetResult{Node: t.Node, Expected: expected}

	cfg := v.Poll
	cfg.Logger = log
	seen := map[string]bool{}
	if t.Guard != nil {
		cfg.Observer = func(attempt int, observed jsoncmp.Value) {
			err := t.Guard(observed)
			if err == nil || seen[err.Error()] {
				return
			}
			seen[err.Error()] = true
			log.Warn("--> Guard violated", "node", t.Node, "attempt", attempt, "error", err)
			res.Violations = append(res.Violations, err)
		}
	}

	pollRes, err := poll.Converge(ctx, cfg, t.Node, t.Querier, expected)
	if err != nil {
		return res, fmt.Errorf("target %s: %w", t.Node, err)
	}
	res.Poll = pollRes

	switch {
	case len(res.Violations) > 0:
		res.Outcome = OutcomeFailed
		res.Err = fmt.Errorf("%s: %w", t.Node, errors.Join(res.Violations...))
	case !pollRes.Converged():
		res.Outcome = OutcomeFailed
		res.Err = pollRes.Err()
	default:
		res.Outcome = OutcomePassed
	}
	return res, nil
}
