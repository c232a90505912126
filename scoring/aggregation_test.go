package scoring

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"scoreboard/client"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeUpstream struct {
	user    *client.User
	runs    []client.Run
	userErr error
	runsErr error
}

func (f *fakeUpstream) GetUser(ctx context.Context, userId string) (*client.User, error) {
	if f.userErr != nil {
		return nil, f.userErr
	}
	return f.user, nil
}

func (f *fakeUpstream) GetUserRuns(ctx context.Context, userId string) ([]client.Run, error) {
	if f.runsErr != nil {
		return nil, f.runsErr
	}
	return f.runs, nil
}

type scoreOutcome struct {
	scored *ScoredRun
	err    error
	panics bool
}

type fakeScorer struct {
	mu       sync.Mutex
	outcomes map[string]scoreOutcome
	seen     []string
	jitter   bool
}

func (f *fakeScorer) ScoreRun(ctx context.Context, userId string, run client.Run) (*ScoredRun, error) {
	f.mu.Lock()
	f.seen = append(f.seen, run.Id)
	outcome, ok := f.outcomes[run.Id]
	f.mu.Unlock()
	if f.jitter {
		time.Sleep(time.Duration(rand.Intn(3)) * time.Millisecond)
	}
	if !ok {
		return &ScoredRun{RunId: run.Id, Key: RunKey{Category: run.Category, Level: run.LevelId()}}, nil
	}
	if outcome.panics {
		panic("index out of range")
	}
	return outcome.scored, outcome.err
}

func (f *fakeScorer) seenIds() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.seen...)
}

type recordingSink struct {
	mu     sync.Mutex
	values []GameValue
	err    error
}

func (s *recordingSink) RecordGameValue(ctx context.Context, value GameValue) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values = append(s.values, value)
	return s.err
}

func qualifyingRun(id string, category string) client.Run {
	return client.Run{
		Id:       id,
		Game:     client.Ref[client.Game]{Data: &client.Game{Id: "game1", Gametypes: []string{}}},
		Category: category,
		Videos:   &client.RunVideos{Links: []client.Link{{Uri: "https://youtu.be/" + id}}},
		Times:    client.RunTimes{PrimaryT: 3600},
	}
}

func scoredRun(id string, category string, points float64, worldRecord bool) *ScoredRun {
	return &ScoredRun{
		Key:           RunKey{Category: category},
		RunId:         id,
		GameId:        "game1",
		PlatformId:    "pc",
		Time:          3600.7,
		Points:        points,
		MeanTime:      4000.9,
		GameName:      "Game",
		CategoryName:  strings.ToUpper(category),
		IsWorldRecord: worldRecord,
	}
}

func newTestAggregator(upstream Upstream, scorer RunScorer, opts ...AggregatorOption) *Aggregator {
	return NewAggregator(upstream, scorer, zap.NewNop().Sugar(), opts...)
}

func TestAggregateEndToEnd(t *testing.T) {
	upstream := &fakeUpstream{
		user: &client.User{Id: "u1", Names: client.Names{International: "Runner"}},
		runs: []client.Run{
			qualifyingRun("r1", "c1"),
			qualifyingRun("r2", "c2"),
			qualifyingRun("r3", "c3"),
			qualifyingRun("r4", "c4"),
		},
	}
	scorer := &fakeScorer{outcomes: map[string]scoreOutcome{
		"r1": {scored: scoredRun("r1", "c1", 50.0, false)},
		"r2": {scored: scoredRun("r2", "c2", 0.0, false)},
		"r3": {scored: scoredRun("r3", "c3", 12.3, false)},
		"r4": {err: fmt.Errorf("leaderboard of run r4: %w", &client.ClientError{
			StatusCode: 502, Kind: client.TransientUpstreamError, Description: "bad gateway",
		})},
	}}

	result, err := newTestAggregator(upstream, scorer).Aggregate(context.Background(), "Runner")
	require.NoError(t, err)

	assert.InDelta(t, 62.3, result.Total, 1e-9)
	require.Len(t, result.Breakdown, 2)
	assert.Equal(t, "Game - C1", result.Breakdown[0].Label)
	assert.InDelta(t, 50, result.Breakdown[0].Points, 1e-9)
	assert.Equal(t, "Game - C3", result.Breakdown[1].Label)
	assert.InDelta(t, 12.3, result.Breakdown[1].Points, 1e-9)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "r4", result.Errors[0].RunId)
	assert.Equal(t, string(client.TransientUpstreamError), result.Errors[0].Kind)
	assert.Equal(t, "u1", result.Player.Id)
	assert.Empty(t, result.Notices)
}

func TestAggregateKeepsBestRunPerKey(t *testing.T) {
	for _, order := range [][]string{{"r1", "r2"}, {"r2", "r1"}} {
		upstream := &fakeUpstream{user: &client.User{Id: "u1"}}
		for _, id := range order {
			upstream.runs = append(upstream.runs, qualifyingRun(id, "c1"))
		}
		scorer := &fakeScorer{outcomes: map[string]scoreOutcome{
			"r1": {scored: scoredRun("r1", "c1", 40, false)},
			"r2": {scored: scoredRun("r2", "c1", 25, true)},
		}}
		sink := &recordingSink{}

		result, err := newTestAggregator(upstream, scorer, WithGameValueSink(sink)).Aggregate(context.Background(), "u1")
		require.NoError(t, err)

		assert.Equal(t, 40.0, result.Total)
		require.Len(t, result.Runs, 1)
		assert.Equal(t, "r1", result.Runs[0].RunId)
		require.Len(t, sink.values, 1)
		assert.Equal(t, GameValue{
			RunId:             "r2",
			GameId:            "game1",
			CategoryId:        "c1",
			PlatformId:        "pc",
			WorldRecordTime:   3600,
			WorldRecordPoints: 25,
			MeanTime:          4000,
		}, sink.values[0])
	}
}

func TestAggregateForwardsOnlyWorthyWorldRecords(t *testing.T) {
	levelRecord := scoredRun("level", "c3", 30, true)
	levelRecord.Key.Level = "l1"
	upstream := &fakeUpstream{
		user: &client.User{Id: "u1"},
		runs: []client.Run{
			qualifyingRun("record", "c1"),
			qualifyingRun("notRecord", "c2"),
			qualifyingRun("level", "c3"),
			qualifyingRun("tiny", "c4"),
		},
	}
	scorer := &fakeScorer{outcomes: map[string]scoreOutcome{
		"record":    {scored: scoredRun("record", "c1", 80, true)},
		"notRecord": {scored: scoredRun("notRecord", "c2", 70, false)},
		"level":     {scored: levelRecord},
		"tiny":      {scored: scoredRun("tiny", "c4", 0.5, true)},
	}}
	sink := &recordingSink{err: errors.New("index unavailable")}

	result, err := newTestAggregator(upstream, scorer, WithGameValueSink(sink)).Aggregate(context.Background(), "u1")
	require.NoError(t, err)

	assert.InDelta(t, 180.5, result.Total, 1e-9)
	require.Len(t, sink.values, 1)
	assert.Equal(t, "record", sink.values[0].RunId)
	assert.Equal(t, 80, sink.values[0].WorldRecordPoints)
}

func TestAggregateBannedUser(t *testing.T) {
	upstream := &fakeUpstream{
		user: &client.User{Id: "u1", Role: client.RoleBanned},
		runs: []client.Run{qualifyingRun("r1", "c1")},
	}
	scorer := &fakeScorer{}

	result, err := newTestAggregator(upstream, scorer).Aggregate(context.Background(), "u1")
	require.NoError(t, err)

	assert.Equal(t, 0.0, result.Total)
	assert.True(t, result.Player.Banned)
	assert.Empty(t, scorer.seenIds())
}

func TestAggregateBanFoundOnLeaderboard(t *testing.T) {
	banned := scoredRun("r2", "c2", 0, false)
	banned.OwnerBanned = true
	upstream := &fakeUpstream{
		user: &client.User{Id: "u1"},
		runs: []client.Run{qualifyingRun("r1", "c1"), qualifyingRun("r2", "c2")},
	}
	scorer := &fakeScorer{outcomes: map[string]scoreOutcome{
		"r1": {scored: scoredRun("r1", "c1", 50, false)},
		"r2": {scored: banned},
	}}

	result, err := newTestAggregator(upstream, scorer).Aggregate(context.Background(), "u1")
	require.NoError(t, err)

	assert.Equal(t, 0.0, result.Total)
	assert.True(t, result.Player.Banned)
	assert.Len(t, result.Breakdown, 1)
}

func TestAggregateFiltersRuns(t *testing.T) {
	multiGame := qualifyingRun("multi", "c1")
	multiGame.Game.Data.Gametypes = []string{client.MultiGameGametype}
	noCategory := qualifyingRun("noCategory", "")
	noVideo := qualifyingRun("noVideo", "c1")
	noVideo.Videos = nil
	upstream := &fakeUpstream{
		user: &client.User{Id: "u1"},
		runs: []client.Run{multiGame, noCategory, noVideo, qualifyingRun("ok", "c1")},
	}
	scorer := &fakeScorer{}

	_, err := newTestAggregator(upstream, scorer).Aggregate(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"ok"}, scorer.seenIds())
}

func TestAggregateTruncatesLargeRunLists(t *testing.T) {
	dated := func(id string, date string, submitted string, level string) client.Run {
		run := qualifyingRun(id, "c-"+id)
		run.Date = &date
		run.Submitted = &submitted
		if level != "" {
			run.Level = client.Ref[client.Level]{Id: level}
		}
		return run
	}
	runs := []client.Run{
		dated("a", "2023-01-01", "2023-01-02T00:00:00Z", ""),
		dated("b", "2024-06-01", "2024-06-01T00:00:00Z", "l1"),
		dated("c", "2024-05-01", "2024-05-02T00:00:00Z", ""),
		dated("d", "2024-05-01", "2024-05-03T00:00:00Z", ""),
		dated("e", "2022-01-01", "2022-01-01T00:00:00Z", ""),
		dated("f", "2024-07-01", "2024-07-01T00:00:00Z", "l2"),
		dated("g", "2023-03-01", "2023-03-01T00:00:00Z", ""),
		dated("h", "2023-03-01", "2023-03-01T00:00:00Z", ""),
	}

	var retained []string
	for i := 0; i < 3; i++ {
		upstream := &fakeUpstream{user: &client.User{Id: "u1", Names: client.Names{International: "Runner"}}, runs: runs}
		scorer := &fakeScorer{}
		result, err := newTestAggregator(upstream, scorer, WithMaxRuns(4), WithWorkers(1)).Aggregate(context.Background(), "u1")
		require.NoError(t, err)

		require.Len(t, result.Notices, 1)
		assert.Contains(t, result.Notices[0], KindTooManyRuns)
		assert.True(t, strings.HasPrefix(result.Table, result.Notices[0]))
		if retained == nil {
			retained = scorer.seenIds()
		}
		assert.Equal(t, retained, scorer.seenIds())
	}
	assert.Equal(t, []string{"d", "c", "g", "h"}, retained)
}

func TestMostRecentFullGameRunsBelowLimit(t *testing.T) {
	runs := []client.Run{qualifyingRun("a", "c1"), qualifyingRun("b", "c2")}
	kept := mostRecentFullGameRuns(runs, 10)
	assert.Len(t, kept, 2)
}

func TestAggregateIsolatesPanics(t *testing.T) {
	upstream := &fakeUpstream{
		user: &client.User{Id: "u1"},
		runs: []client.Run{qualifyingRun("r1", "c1"), qualifyingRun("boom", "c2"), qualifyingRun("r3", "c3")},
	}
	scorer := &fakeScorer{outcomes: map[string]scoreOutcome{
		"r1":   {scored: scoredRun("r1", "c1", 10, false)},
		"boom": {panics: true},
		"r3":   {scored: scoredRun("r3", "c3", 20, false)},
	}}

	result, err := newTestAggregator(upstream, scorer).Aggregate(context.Background(), "u1")
	require.NoError(t, err)

	assert.Equal(t, 30.0, result.Total)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, KindUnhandled, result.Errors[0].Kind)
	assert.Contains(t, result.Errors[0].Details, "index out of range")
}

func TestAggregateUpstreamFailuresAreFatal(t *testing.T) {
	upstream := &fakeUpstream{userErr: &client.ClientError{StatusCode: 404, Kind: client.UpstreamRejection}}
	_, err := newTestAggregator(upstream, &fakeScorer{}).Aggregate(context.Background(), "u1")
	assert.True(t, client.IsNotFound(err))

	upstream = &fakeUpstream{
		user:    &client.User{Id: "u1"},
		runsErr: &client.ClientError{StatusCode: 500, Kind: client.TransientUpstreamError},
	}
	_, err = newTestAggregator(upstream, &fakeScorer{}).Aggregate(context.Background(), "u1")
	assert.True(t, client.IsKind(err, client.TransientUpstreamError))
}

func TestAggregateOrderIsDeterministic(t *testing.T) {
	upstream := &fakeUpstream{user: &client.User{Id: "u1"}}
	outcomes := map[string]scoreOutcome{}
	expected := make([]string, 0)
	for i := 0; i < 40; i++ {
		id := fmt.Sprintf("r%02d", i)
		upstream.runs = append(upstream.runs, qualifyingRun(id, "c"+id))
		points := float64(5 + 5*(i%2))
		outcomes[id] = scoreOutcome{scored: scoredRun(id, "c"+id, points, false)}
	}
	// ties keep input order: all 10s first, then all 5s
	for i := 1; i < 40; i += 2 {
		expected = append(expected, fmt.Sprintf("r%02d", i))
	}
	for i := 0; i < 40; i += 2 {
		expected = append(expected, fmt.Sprintf("r%02d", i))
	}

	for attempt := 0; attempt < 5; attempt++ {
		scorer := &fakeScorer{outcomes: outcomes, jitter: true}
		result, err := newTestAggregator(upstream, scorer, WithWorkers(8)).Aggregate(context.Background(), "u1")
		require.NoError(t, err)

		ids := make([]string, len(result.Runs))
		for i, run := range result.Runs {
			ids[i] = run.RunId
		}
		assert.Equal(t, expected, ids)
		assert.Equal(t, 300.0, result.Total)
	}
}

type stalledSink struct {
	calls atomic.Int32
}

func (s *stalledSink) RecordGameValue(ctx context.Context, value GameValue) error {
	s.calls.Add(1)
	<-ctx.Done()
	return ctx.Err()
}

func TestAggregateBoundsSlowSink(t *testing.T) {
	upstream := &fakeUpstream{
		user: &client.User{Id: "u1"},
		runs: []client.Run{qualifyingRun("a", "c1"), qualifyingRun("b", "c2")},
	}
	scorer := &fakeScorer{outcomes: map[string]scoreOutcome{
		"a": {scored: scoredRun("a", "c1", 60, true)},
		"b": {scored: scoredRun("b", "c2", 40, true)},
	}}
	sink := &stalledSink{}

	start := time.Now()
	result, err := newTestAggregator(upstream, scorer,
		WithGameValueSink(sink),
		WithSinkTimeout(20*time.Millisecond),
	).Aggregate(context.Background(), "u1")
	require.NoError(t, err)

	assert.InDelta(t, 100.0, result.Total, 1e-9)
	assert.Equal(t, int32(2), sink.calls.Load())
	assert.Less(t, time.Since(start), time.Second)
}
