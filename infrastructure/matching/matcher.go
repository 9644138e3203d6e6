package matching

import (
	"context"
	"sync"

	"github.com/felixgeelhaar/parley/domain/glossary"
	"github.com/felixgeelhaar/parley/domain/guideline"
	"github.com/felixgeelhaar/parley/infrastructure/logging"
)

// Matcher runs the guideline matching pipeline: scope filter, glossary
// enrichment, bounded concurrent evaluation, criticality ordering.
type Matcher struct {
	evaluator     Evaluator
	threshold     float64
	maxConcurrent int
}

// MatcherConfig configures the matcher.
type MatcherConfig struct {
	// Evaluator judges guideline conditions.
	Evaluator Evaluator

	// Threshold is the minimum confidence for a match (default 0.5).
	Threshold float64

	// MaxConcurrent bounds concurrent condition evaluations (default 4).
	MaxConcurrent int
}

// NewMatcher creates a new matcher.
func NewMatcher(config MatcherConfig) *Matcher {
	threshold := config.Threshold
	if threshold == 0 {
		threshold = 0.5
	}
	maxConcurrent := config.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}
	return &Matcher{
		evaluator:     config.Evaluator,
		threshold:     threshold,
		maxConcurrent: maxConcurrent,
	}
}

// Match evaluates the eligible guidelines against the turn context and
// returns matches ordered by criticality then confidence. The caller is
// responsible for scope filtering via guideline.Store.ListEligible; terms
// in ec should already be the relevant subset.
//
// Matching is read-only and never skips silently: any evaluator failure
// fails the whole call so HIGH-criticality guidelines cannot be dropped
// unnoticed.
func (m *Matcher) Match(ctx context.Context, guidelines []guideline.Guideline, ec Context) ([]guideline.Match, error) {
	if len(guidelines) == 0 {
		return nil, nil
	}

	type result struct {
		index   int
		verdict Verdict
		err     error
	}

	sem := make(chan struct{}, m.maxConcurrent)
	results := make([]result, len(guidelines))
	var wg sync.WaitGroup

	for i, g := range guidelines {
		wg.Add(1)
		go func(i int, g guideline.Guideline) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			verdict, err := m.evaluator.Evaluate(ctx, g.Condition, ec)
			results[i] = result{index: i, verdict: verdict, err: err}
		}(i, g)
	}
	wg.Wait()

	var matches []guideline.Match
	for i, r := range results {
		if r.err != nil {
			return nil, r.err
		}
		if !r.verdict.Match || r.verdict.Confidence < m.threshold {
			continue
		}
		matches = append(matches, guideline.Match{
			Guideline:  guidelines[i],
			Confidence: r.verdict.Confidence,
			Rationale:  r.verdict.Rationale,
		})
		logging.Debug().
			Add(logging.GuidelineID(guidelines[i].ID)).
			Add(logging.Criticality(guidelines[i].Criticality)).
			Add(logging.Confidence(r.verdict.Confidence)).
			Msg("guideline matched")
	}

	guideline.SortMatches(matches)
	return matches, nil
}

// EvaluateCondition judges a single free-standing condition (journey
// activations, transition conditions, abandon signals) with the same
// evaluator and threshold.
func (m *Matcher) EvaluateCondition(ctx context.Context, condition string, ec Context) (bool, error) {
	verdict, err := m.evaluator.Evaluate(ctx, condition, ec)
	if err != nil {
		return false, err
	}
	return verdict.Match && verdict.Confidence >= m.threshold, nil
}

// RelevantTerms selects glossary terms mentioned in the input or history.
func RelevantTerms(terms []glossary.Term, ec Context) []glossary.Term {
	texts := append([]string{ec.Input}, ec.History...)
	return glossary.Relevant(terms, texts...)
}
