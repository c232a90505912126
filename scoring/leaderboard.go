package scoring

import (
	"math"
	"scoreboard/client"
	"slices"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	MinLeaderboardSize = 3
	// TimeBonusDivisor is the world record length, in seconds, that doubles the points.
	TimeBonusDivisor = 43200.0
	MaxPoints        = 999.99

	shortRunSeconds      = 60.0
	tailTrimRatio        = 0.95
	softCutoffPercentile = 0.8
)

type SkipReason string

const (
	SkipTooFewEntries        SkipReason = "too_few_entries"
	SkipScoreBased           SkipReason = "score_based"
	SkipNotSpeedrun          SkipReason = "not_a_speedrun"
	SkipTooFewValidRuns      SkipReason = "too_few_valid_runs"
	SkipShortFullGame        SkipReason = "short_full_game"
	SkipTooFewAfterCutoff    SkipReason = "too_few_after_cutoff"
	SkipNoSpread             SkipReason = "no_spread"
	SkipNotFasterThanWorst   SkipReason = "not_faster_than_worst"
	SkipShortIndividualLevel SkipReason = "short_individual_level"
)

// Input is the personal best being scored against its leaderboard.
type Input struct {
	RunId      string
	PlayerTime float64
	PlatformId string
	IsLevel    bool
	// LevelCount is the number of individual levels the game has.
	LevelCount int
}

type SideData struct {
	MeanTime        float64
	WorldRecordTime float64
	// IsBestTime is set when the player's time equals the best valid time.
	IsBestTime bool
	// IsWorldRecord is set when the player's run holds place 1 on the fetched board.
	IsWorldRecord bool
	PlatformId    string
	GameName      string
	CategoryName  string
	LevelName     string
	BannedPlayers map[string]bool
}

type Result struct {
	Points     float64
	SkipReason SkipReason
	SideData
}

func (r Result) Skipped() bool {
	return r.SkipReason != ""
}

// ScoreLeaderboard turns a player's time into points relative to the rest of
// the leaderboard. It does no I/O; a board that cannot be scored yields 0 and
// the reason in SkipReason.
func ScoreLeaderboard(in Input, lb *client.Leaderboard) Result {
	result := Result{SideData: describe(in, lb)}
	result.Points, result.SkipReason = computePoints(in, lb, &result.SideData)
	return result
}

func computePoints(in Input, lb *client.Leaderboard, side *SideData) (float64, SkipReason) {
	if len(lb.Runs) < MinLeaderboardSize {
		return 0, SkipTooFewEntries
	}
	valid, reason := collectValidTimes(lb.Runs, side.BannedPlayers)
	if reason != "" {
		return 0, reason
	}
	if len(valid) < MinLeaderboardSize {
		return 0, SkipTooFewValidRuns
	}

	times := trimTail(valid)
	worldRecord := times[0]
	side.WorldRecordTime = worldRecord
	side.IsBestTime = in.PlayerTime == worldRecord
	if !in.IsLevel && worldRecord < shortRunSeconds {
		return 0, SkipShortFullGame
	}

	preCutoffWorst := times[len(times)-1]
	times = softCutoff(times)
	mean, deviation := meanAndDeviation(times)
	side.MeanTime = mean
	population := len(times)
	// certainty below is undefined for two runs and negative for fewer
	if population < MinLeaderboardSize {
		return 0, SkipTooFewAfterCutoff
	}
	if deviation <= 0 {
		return 0, SkipNoSpread
	}

	worst := times[len(times)-1]
	adjusted := (mean - in.PlayerTime) + (worst - mean)
	if adjusted <= 0 {
		return 0, SkipNotFasterThanWorst
	}
	normalized := adjusted / (preCutoffWorst - mean)
	certainty := 1 - 1/float64(population-2)
	exponent := math.Min(normalized, math.Pi) * certainty
	lengthBonus := 1 + worldRecord/TimeBonusDivisor
	points := math.Min(math.Exp(exponent)*10*lengthBonus, MaxPoints)

	if in.IsLevel {
		divisor := float64(in.LevelCount + 1)
		if worldRecord*divisor < shortRunSeconds {
			return 0, SkipShortIndividualLevel
		}
		points /= divisor
	}
	return points, ""
}

// collectValidTimes keeps the ranked runs without a banned participant, in
// board order. The board is checked to be ascending by time: until a time
// larger than the first one shows up, a smaller one marks a score board.
func collectValidTimes(entries []client.LeaderboardEntry, banned map[string]bool) ([]float64, SkipReason) {
	first := entries[0].Run.Times.PrimaryT
	isSpeedrun := false
	valid := make([]float64, 0, len(entries))
	for _, entry := range entries {
		value := entry.Run.Times.PrimaryT
		if !isSpeedrun {
			if value < first {
				return nil, SkipScoreBased
			}
			isSpeedrun = value > first
		}
		if entry.Place > 0 && !hasBannedPlayer(entry.Run, banned) {
			valid = append(valid, value)
		}
	}
	if !isSpeedrun {
		return nil, SkipNotSpeedrun
	}
	return valid, ""
}

func hasBannedPlayer(run client.Run, banned map[string]bool) bool {
	for _, player := range run.Players {
		if player.Id != "" && banned[player.Id] {
			return true
		}
	}
	return false
}

// trimTail drops the slowest 5% by board position and sorts what is left.
func trimTail(valid []float64) []float64 {
	keep := int(float64(len(valid)) * tailTrimRatio)
	if keep == 0 {
		keep = len(valid)
	}
	times := slices.Clone(valid[:keep])
	slices.Sort(times)
	return times
}

// softCutoff looks for the longest streak of identical times at or above the
// 80th percentile time. When that time repeats more than MinLeaderboardSize
// times after its first occurrence, the streak is cut down to a single
// element, which stays as the zero point of the board.
func softCutoff(times []float64) []float64 {
	cutoff := times[int(float64(len(times))*softCutoffPercentile)]
	count, mostRepeatedCount, mostRepeatedPos := 0, 0, 0
	last := 0.0
	i := len(times)
	for j := len(times) - 1; j >= 0; j-- {
		value := times[j]
		if value == last {
			count++
		} else {
			if count >= mostRepeatedCount {
				mostRepeatedCount = count
				mostRepeatedPos = i
			}
			count = 0
		}
		last = value

		// the cutoff time itself is still part of the scan
		if value < cutoff {
			if mostRepeatedCount > MinLeaderboardSize {
				return times[:mostRepeatedPos+1]
			}
			break
		}
		i--
	}
	return times
}

// meanAndDeviation is Welford's online mean and population standard deviation.
func meanAndDeviation(times []float64) (float64, float64) {
	mean, sigma := 0.0, 0.0
	for i, value := range times {
		previous := mean
		mean += (value - previous) / float64(i+1)
		sigma += (value - previous) * (value - mean)
	}
	if len(times) == 0 {
		return 0, 0
	}
	return mean, math.Sqrt(sigma / float64(len(times)))
}

func describe(in Input, lb *client.Leaderboard) SideData {
	side := SideData{
		PlatformId:    in.PlatformId,
		BannedPlayers: lb.BannedPlayerIds(),
	}
	for _, entry := range lb.Runs {
		if entry.Run.Id == in.RunId {
			side.IsWorldRecord = entry.Place == 1
			if entry.Run.System.Platform != "" {
				side.PlatformId = entry.Run.System.Platform
			}
			break
		}
	}
	side.GameName, side.CategoryName, side.LevelName = DisplayNames(lb.Weblink)
	return side
}

// DisplayNames reads the game, category and level names out of a leaderboard
// weblink such as https://www.speedrun.com/super_mario_64#120_Star. Full game
// links only have two parts, level links have game/level#category.
func DisplayNames(weblink string) (game string, category string, level string) {
	index := strings.LastIndex(weblink, "com/")
	if index < 0 {
		return "", "", ""
	}
	// a Caser keeps state, so each call gets its own
	path := cases.Title(language.Und).String(strings.ReplaceAll(weblink[index+len("com/"):], "_", " "))
	parts := strings.FieldsFunc(path, func(r rune) bool {
		return r == '/' || r == '#'
	})
	if len(parts) == 0 {
		return "", "", ""
	}
	game = parts[0]
	category = parts[len(parts)-1]
	if len(parts) > 2 {
		level = parts[1]
	}
	return game, category, level
}
