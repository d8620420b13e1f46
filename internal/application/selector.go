// Package application contains use-case orchestration services.
package application

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/ericfisherdev/reviewflow/internal/domain/port/driven"
)

// workloadWindow is the trailing period over which completed reviews count
// toward a reviewer's load.
const workloadWindow = 7 * 24 * time.Hour

// ErrNoCandidates is returned when exclusions leave the eligible pool empty.
var ErrNoCandidates = errors.New("no eligible reviewer candidates")

// Selector picks the least-loaded reviewer from a configured pool, breaking
// ties uniformly at random. Load is the number of distinct PRs a reviewer
// completed a review on within the trailing window.
type Selector struct {
	reviewStore driven.ReviewStore
	window      time.Duration
	intn        func(n int) int
}

// NewSelector creates a Selector backed by the given review store.
func NewSelector(reviewStore driven.ReviewStore) *Selector {
	return &Selector{
		reviewStore: reviewStore,
		window:      workloadWindow,
		intn:        rand.IntN,
	}
}

// Pick selects one reviewer from eligible, excluding the given identities
// (the PR author, plus anyone already assigned). Comparison of identities is
// case-insensitive, matching how the code host treats logins.
func (s *Selector) Pick(ctx context.Context, eligible, exclude []string, now time.Time) (string, error) {
	candidates := filterCandidates(eligible, exclude)
	if len(candidates) == 0 {
		return "", ErrNoCandidates
	}

	workload, err := s.reviewStore.WorkloadSince(ctx, now.Add(-s.window))
	if err != nil {
		return "", fmt.Errorf("query reviewer workload: %w", err)
	}

	tied := leastLoaded(candidates, workload)

	return tied[s.intn(len(tied))], nil
}

// filterCandidates returns eligible minus exclude, preserving order.
func filterCandidates(eligible, exclude []string) []string {
	var candidates []string
	for _, c := range eligible {
		excluded := false
		for _, e := range exclude {
			if strings.EqualFold(c, e) {
				excluded = true
				break
			}
		}
		if !excluded {
			candidates = append(candidates, c)
		}
	}
	return candidates
}

// leastLoaded returns every candidate tied at the minimum workload count.
// Candidates absent from the histogram count as zero. Histogram keys carry
// whatever casing the code host reported, so the lookup folds case like every
// other identity comparison.
func leastLoaded(candidates []string, workload map[string]int) []string {
	counts := make(map[string]int, len(workload))
	for reviewer, n := range workload {
		counts[strings.ToLower(reviewer)] += n
	}

	min := -1
	var tied []string
	for _, c := range candidates {
		count := counts[strings.ToLower(c)]
		switch {
		case min == -1 || count < min:
			min = count
			tied = []string{c}
		case count == min:
			tied = append(tied, c)
		}
	}
	return tied
}
