package service

import (
	"context"
	"scoreboard/scoring"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"
)

const defaultUpdateTimeout = 10 * time.Minute

type PlayerAggregator interface {
	Aggregate(ctx context.Context, userId string) (*scoring.AggregateResult, error)
}

type PlayerService struct {
	aggregator    PlayerAggregator
	updates       singleflight.Group
	updateTimeout time.Duration
}

type PlayerServiceOption func(*PlayerService)

// WithUpdateTimeout bounds a shared update, which no longer follows the
// cancellation of the request that started it.
func WithUpdateTimeout(timeout time.Duration) PlayerServiceOption {
	return func(s *PlayerService) {
		if timeout > 0 {
			s.updateTimeout = timeout
		}
	}
}

func NewPlayerService(aggregator PlayerAggregator, opts ...PlayerServiceOption) *PlayerService {
	service := &PlayerService{aggregator: aggregator, updateTimeout: defaultUpdateTimeout}
	for _, opt := range opts {
		opt(service)
	}
	return service
}

// UpdatePlayer recomputes the score of a player. Requests for a player whose
// update is already running wait for it and share its result. A caller that
// goes away stops waiting but leaves the update running for the others.
func (s *PlayerService) UpdatePlayer(ctx context.Context, userId string) (*scoring.AggregateResult, error) {
	updates := s.updates.DoChan(strings.ToLower(userId), func() (any, error) {
		updateCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.updateTimeout)
		defer cancel()
		return s.aggregator.Aggregate(updateCtx, userId)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case update := <-updates:
		if update.Err != nil {
			return nil, update.Err
		}
		return update.Val.(*scoring.AggregateResult), nil
	}
}
