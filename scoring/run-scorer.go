package scoring

import (
	"context"
	"fmt"
	"scoreboard/client"
	"scoreboard/metrics"
)

// RunKey is the slot a run occupies in a player's score. Runs in different
// subcategories of the same category share a slot.
type RunKey struct {
	Category string `json:"category"`
	Level    string `json:"level,omitempty"`
}

type ScoredRun struct {
	Key             RunKey  `json:"key"`
	RunId           string  `json:"runId"`
	GameId          string  `json:"gameId"`
	PlatformId      string  `json:"platformId"`
	Time            float64 `json:"time"`
	Points          float64 `json:"points"`
	MeanTime        float64 `json:"meanTime"`
	WorldRecordTime float64 `json:"worldRecordTime"`
	GameName        string  `json:"gameName"`
	CategoryName    string  `json:"categoryName"`
	LevelName       string  `json:"levelName,omitempty"`
	IsWorldRecord   bool    `json:"isWorldRecord"`
	// OwnerBanned is set when the leaderboard lists the scored player as banned.
	OwnerBanned bool       `json:"-"`
	SkipReason  SkipReason `json:"skipReason,omitempty"`
}

func (r *ScoredRun) IsLevel() bool {
	return r.Key.Level != ""
}

func (r *ScoredRun) Label() string {
	label := r.GameName + " - " + r.CategoryName
	if r.LevelName != "" {
		label += " (" + r.LevelName + ")"
	}
	return label
}

// RunScorer scores one personal best of userId.
type RunScorer interface {
	ScoreRun(ctx context.Context, userId string, run client.Run) (*ScoredRun, error)
}

type LeaderboardFetcher interface {
	GetLeaderboard(ctx context.Context, query client.LeaderboardQuery) (*client.Leaderboard, error)
}

// LeaderboardRunScorer fetches the leaderboard the run sits on and scores the run against it.
type LeaderboardRunScorer struct {
	Upstream LeaderboardFetcher
}

func NewLeaderboardRunScorer(upstream LeaderboardFetcher) *LeaderboardRunScorer {
	return &LeaderboardRunScorer{Upstream: upstream}
}

func (s *LeaderboardRunScorer) ScoreRun(ctx context.Context, userId string, run client.Run) (*ScoredRun, error) {
	query := client.LeaderboardQuery{
		GameId:     run.GameId(),
		CategoryId: run.Category,
		LevelId:    run.LevelId(),
		Variables:  run.SubcategoryValues(),
	}
	leaderboard, err := s.Upstream.GetLeaderboard(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("leaderboard of run %s: %w", run.Id, err)
	}

	levelCount := 0
	if run.Game.Data != nil {
		levelCount = len(run.Game.Data.Levels.Data)
	}
	result := ScoreLeaderboard(Input{
		RunId:      run.Id,
		PlayerTime: run.Times.PrimaryT,
		PlatformId: run.System.Platform,
		IsLevel:    run.IsLevel(),
		LevelCount: levelCount,
	}, leaderboard)
	if result.Skipped() {
		metrics.LeaderboardsScoredCounter.WithLabelValues(string(result.SkipReason)).Inc()
	} else {
		metrics.LeaderboardsScoredCounter.WithLabelValues("scored").Inc()
	}

	scored := &ScoredRun{
		Key:             RunKey{Category: run.Category, Level: run.LevelId()},
		RunId:           run.Id,
		GameId:          run.GameId(),
		PlatformId:      result.PlatformId,
		Time:            run.Times.PrimaryT,
		Points:          result.Points,
		MeanTime:        result.MeanTime,
		WorldRecordTime: result.WorldRecordTime,
		GameName:        result.GameName,
		CategoryName:    result.CategoryName,
		IsWorldRecord:   result.IsWorldRecord,
		OwnerBanned:     result.BannedPlayers[userId],
		SkipReason:      result.SkipReason,
	}
	if run.IsLevel() {
		scored.LevelName = result.LevelName
		if scored.LevelName == "" && run.Level.Data != nil {
			scored.LevelName = run.Level.Data.Name
		}
	}
	return scored, nil
}
