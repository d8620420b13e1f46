package application

import (
	"context"

	"github.com/ericfisherdev/reviewflow/internal/domain/model"
	"github.com/ericfisherdev/reviewflow/internal/domain/port/driven"
)

// StatsService exposes the read-only summary counts.
type StatsService struct {
	prStore     driven.PRStore
	reviewStore driven.ReviewStore
}

// NewStatsService creates a StatsService backed by the given stores.
func NewStatsService(prStore driven.PRStore, reviewStore driven.ReviewStore) *StatsService {
	return &StatsService{prStore: prStore, reviewStore: reviewStore}
}

// Stats returns the count of non-closed PRs and the total review count.
func (s *StatsService) Stats(ctx context.Context) (model.Stats, error) {
	active, err := s.prStore.CountActive(ctx)
	if err != nil {
		return model.Stats{}, err
	}

	total, err := s.reviewStore.CountAll(ctx)
	if err != nil {
		return model.Stats{}, err
	}

	return model.Stats{ActivePRs: active, TotalReviews: total}, nil
}
