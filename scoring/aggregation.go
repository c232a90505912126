package scoring

import (
	"cmp"
	"context"
	"fmt"
	"math"
	"runtime/debug"
	"scoreboard/client"
	"scoreboard/metrics"
	"scoreboard/utils"
	"slices"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultWorkers     = 8
	DefaultMaxRuns     = 1000
	DefaultSinkTimeout = 5 * time.Second

	KindUnhandled   = "Unhandled"
	KindTooManyRuns = "TooManyRuns"
)

type TaskFailure struct {
	RunId   string `json:"runId"`
	Kind    string `json:"kind"`
	Details string `json:"details"`
}

func (f *TaskFailure) Error() string {
	return fmt.Sprintf("run %s: %s: %s", f.RunId, f.Kind, f.Details)
}

func newTaskFailure(runId string, err error) *TaskFailure {
	kind := KindUnhandled
	if clientErr, ok := client.AsClientError(err); ok {
		kind = string(clientErr.Kind)
	}
	return &TaskFailure{RunId: runId, Kind: kind, Details: err.Error()}
}

type Player struct {
	Id          string `json:"id"`
	Name        string `json:"name"`
	CountryCode string `json:"countryCode,omitempty"`
	Banned      bool   `json:"banned"`
}

type AggregateResult struct {
	Player    Player         `json:"player"`
	Total     float64        `json:"total"`
	Runs      []*ScoredRun   `json:"runs"`
	Breakdown []BreakdownRow `json:"breakdown"`
	Table     string         `json:"table"`
	Errors    []*TaskFailure `json:"errors"`
	Notices   []string       `json:"notices"`
}

// GameValue is what the search index learns about a world record run.
type GameValue struct {
	RunId             string `json:"runId"`
	GameId            string `json:"gameId"`
	CategoryId        string `json:"categoryId"`
	PlatformId        string `json:"platformId"`
	WorldRecordTime   int    `json:"worldRecordTime"`
	WorldRecordPoints int    `json:"worldRecordPoints"`
	MeanTime          int    `json:"meanTime"`
}

type GameValueSink interface {
	RecordGameValue(ctx context.Context, value GameValue) error
}

type Upstream interface {
	GetUser(ctx context.Context, userId string) (*client.User, error)
	GetUserRuns(ctx context.Context, userId string) ([]client.Run, error)
}

type Aggregator struct {
	upstream Upstream
	scorer   RunScorer
	sink        GameValueSink
	sinkTimeout time.Duration
	workers     int
	maxRuns     int
	logger      *zap.SugaredLogger
}

type AggregatorOption func(*Aggregator)

func WithWorkers(workers int) AggregatorOption {
	return func(a *Aggregator) {
		if workers > 0 {
			a.workers = workers
		}
	}
}

// WithMaxRuns sets the run count from which only the most recent full game runs are scored.
func WithMaxRuns(maxRuns int) AggregatorOption {
	return func(a *Aggregator) {
		if maxRuns > 0 {
			a.maxRuns = maxRuns
		}
	}
}

// WithGameValueSink sets where world record runs are forwarded. Without one nothing is forwarded.
func WithGameValueSink(sink GameValueSink) AggregatorOption {
	return func(a *Aggregator) {
		a.sink = sink
	}
}

// WithSinkTimeout bounds each call to the game value sink.
func WithSinkTimeout(timeout time.Duration) AggregatorOption {
	return func(a *Aggregator) {
		if timeout > 0 {
			a.sinkTimeout = timeout
		}
	}
}

func NewAggregator(upstream Upstream, scorer RunScorer, logger *zap.SugaredLogger, opts ...AggregatorOption) *Aggregator {
	aggregator := &Aggregator{
		upstream:    upstream,
		scorer:      scorer,
		sinkTimeout: DefaultSinkTimeout,
		workers:     DefaultWorkers,
		maxRuns:     DefaultMaxRuns,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(aggregator)
	}
	return aggregator
}

// Aggregate computes the total score of a user. Failing to read the profile
// or the run list fails the whole call, a run that cannot be scored only
// shows up in the result's Errors.
func (a *Aggregator) Aggregate(ctx context.Context, userId string) (*AggregateResult, error) {
	timer := prometheus.NewTimer(metrics.AggregationDuration)
	defer timer.ObserveDuration()

	user, err := a.upstream.GetUser(ctx, userId)
	if err != nil {
		return nil, fmt.Errorf("fetching profile of %s: %w", userId, err)
	}
	result := &AggregateResult{
		Player: Player{
			Id:          user.Id,
			Name:        user.DisplayName(),
			CountryCode: user.CountryCode(),
			Banned:      user.IsBanned(),
		},
		Runs:      []*ScoredRun{},
		Breakdown: []BreakdownRow{},
		Errors:    []*TaskFailure{},
		Notices:   []string{},
	}
	if user.IsBanned() {
		a.logger.Infow("skipping banned user", "user", user.Id)
		return result, nil
	}

	runs, err := a.upstream.GetUserRuns(ctx, user.Id)
	if err != nil {
		return nil, fmt.Errorf("fetching runs of %s: %w", user.Id, err)
	}
	runs = utils.Filter(runs, isQualifying)
	if len(runs) >= a.maxRuns {
		notice := fmt.Sprintf("%s: %s has %d runs, only the %d most recent full game runs were scored",
			KindTooManyRuns, result.Player.Name, len(runs), a.maxRuns)
		runs = mostRecentFullGameRuns(runs, a.maxRuns)
		result.Notices = append(result.Notices, notice)
		a.logger.Warnw("truncated run list", "user", user.Id, "kept", len(runs))
	}
	metrics.RunsPerAggregation.Observe(float64(len(runs)))

	scored, failures := a.scoreAll(ctx, user.Id, runs)
	result.Errors = failures
	kept, retained := mergeScoredRuns(scored)

	slices.SortStableFunc(kept, func(x, y *ScoredRun) int {
		return cmp.Compare(y.Points, x.Points)
	})
	for _, run := range kept {
		result.Total += run.Points
		result.Breakdown = append(result.Breakdown, BreakdownRow{
			Label:  run.Label(),
			Points: math.Ceil(run.Points*100) / 100,
		})
	}
	result.Runs = kept
	result.Table = FormatBreakdown(result.Breakdown, result.Notices)

	a.forwardGameValues(ctx, append(slices.Clone(kept), retained...))

	if slices.ContainsFunc(scored, func(run *ScoredRun) bool { return run != nil && run.OwnerBanned }) {
		a.logger.Infow("user is banned on one of their leaderboards", "user", user.Id)
		result.Player.Banned = true
		result.Total = 0
	}
	a.logger.Infow("aggregated user score",
		"user", user.Id,
		"runs", len(runs),
		"counted", len(kept),
		"failures", len(failures),
		"total", result.Total,
	)
	return result, nil
}

func isQualifying(run client.Run) bool {
	if run.Category == "" || !run.HasVideo() {
		return false
	}
	return run.Game.Data == nil || !utils.Contains(run.Game.Data.Gametypes, client.MultiGameGametype)
}

// mostRecentFullGameRuns keeps up to limit full game runs, newest first.
// Runs with the same dates keep their relative order.
func mostRecentFullGameRuns(runs []client.Run, limit int) []client.Run {
	fullGame := utils.Filter(runs, func(run client.Run) bool {
		return !run.IsLevel()
	})
	slices.SortStableFunc(fullGame, func(x, y client.Run) int {
		if c := cmp.Compare(deref(y.Date), deref(x.Date)); c != 0 {
			return c
		}
		return cmp.Compare(deref(y.Submitted), deref(x.Submitted))
	})
	if len(fullGame) > limit {
		fullGame = fullGame[:limit]
	}
	return fullGame
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}

// scoreAll runs one task per run on a bounded pool. Each task only writes its
// own slot, the slots are read once every task has returned.
func (a *Aggregator) scoreAll(ctx context.Context, userId string, runs []client.Run) ([]*ScoredRun, []*TaskFailure) {
	scored := make([]*ScoredRun, len(runs))
	failed := make([]*TaskFailure, len(runs))
	// not WithContext: one failing run must not cancel the others
	group := &errgroup.Group{}
	group.SetLimit(a.workers)
	for i, run := range runs {
		group.Go(func() error {
			scored[i], failed[i] = a.scoreTask(ctx, userId, run)
			return nil
		})
	}
	_ = group.Wait()

	failures := make([]*TaskFailure, 0)
	for _, failure := range failed {
		if failure != nil {
			metrics.ScoringTaskFailureCounter.WithLabelValues(failure.Kind).Inc()
			a.logger.Warnw("could not score run", "run", failure.RunId, "kind", failure.Kind, "error", failure.Details)
			failures = append(failures, failure)
		}
	}
	return scored, failures
}

func (a *Aggregator) scoreTask(ctx context.Context, userId string, run client.Run) (scored *ScoredRun, failure *TaskFailure) {
	defer func() {
		if r := recover(); r != nil {
			scored = nil
			failure = &TaskFailure{
				RunId:   run.Id,
				Kind:    KindUnhandled,
				Details: fmt.Sprintf("%v\n%s", r, debug.Stack()),
			}
		}
	}()
	scored, err := a.scorer.ScoreRun(ctx, userId, run)
	if err != nil {
		return nil, newTaskFailure(run.Id, err)
	}
	return scored, nil
}

// mergeScoredRuns keeps the best scoring run per key, in the order keys were
// first seen. A world record that lost its slot is returned in retained.
func mergeScoredRuns(scored []*ScoredRun) (kept []*ScoredRun, retained []*ScoredRun) {
	kept = make([]*ScoredRun, 0, len(scored))
	retained = make([]*ScoredRun, 0)
	slots := make(map[RunKey]int)
	for _, run := range scored {
		if run == nil || run.Points <= 0 {
			continue
		}
		i, seen := slots[run.Key]
		if !seen {
			slots[run.Key] = len(kept)
			kept = append(kept, run)
			continue
		}
		counted := kept[i]
		if run.Points > counted.Points {
			if counted.IsWorldRecord {
				retained = append(retained, counted)
			}
			kept[i] = run
		} else if run.IsWorldRecord {
			retained = append(retained, run)
		}
	}
	return kept, retained
}

// forwardGameValues sends the world records worth at least a point to the
// sink. Sink failures are logged and otherwise ignored. Each call gets its
// own deadline and does not follow the caller's cancellation.
func (a *Aggregator) forwardGameValues(ctx context.Context, runs []*ScoredRun) {
	if a.sink == nil {
		return
	}
	for _, run := range runs {
		if run.Points < 1 || run.IsLevel() || !run.IsWorldRecord {
			continue
		}
		value := GameValue{
			RunId:             run.RunId,
			GameId:            run.GameId,
			CategoryId:        run.Key.Category,
			PlatformId:        run.PlatformId,
			WorldRecordTime:   int(math.Floor(run.Time)),
			WorldRecordPoints: int(math.Floor(run.Points)),
			MeanTime:          int(math.Floor(run.MeanTime)),
		}
		if err := a.recordGameValue(ctx, value); err != nil {
			a.logger.Errorw("could not record game value", "run", run.RunId, "error", err)
		}
	}
}

func (a *Aggregator) recordGameValue(ctx context.Context, value GameValue) error {
	sinkCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.sinkTimeout)
	defer cancel()
	return a.sink.RecordGameValue(sinkCtx, value)
}
