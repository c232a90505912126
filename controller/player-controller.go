package controller

import (
	"scoreboard/app_error"
	"scoreboard/scoring"
	"scoreboard/service"
	"scoreboard/utils"

	"github.com/gin-gonic/gin"
)

type PlayerController struct {
	playerService *service.PlayerService
}

func NewPlayerController(playerService *service.PlayerService) *PlayerController {
	return &PlayerController{playerService: playerService}
}

func setupPlayerController(playerService *service.PlayerService) []RouteInfo {
	e := NewPlayerController(playerService)
	basePath := "/players"
	routes := []RouteInfo{
		{Method: "POST", Path: "/:player_id/update", HandlerFunc: e.updatePlayerHandler()},
	}
	for i, route := range routes {
		routes[i].Path = basePath + route.Path
	}
	return routes
}

type ScoredRunResponse struct {
	RunId         string  `json:"runId" binding:"required"`
	Label         string  `json:"label" binding:"required"`
	GameId        string  `json:"gameId" binding:"required"`
	CategoryId    string  `json:"categoryId" binding:"required"`
	LevelId       string  `json:"levelId,omitempty"`
	Time          float64 `json:"time" binding:"required"`
	Points        float64 `json:"points" binding:"required"`
	IsWorldRecord bool    `json:"isWorldRecord" binding:"required"`
}

type PlayerScoreResponse struct {
	Player    scoring.Player         `json:"player" binding:"required"`
	Total     float64                `json:"total" binding:"required"`
	Runs      []ScoredRunResponse    `json:"runs" binding:"required"`
	Breakdown []scoring.BreakdownRow `json:"breakdown" binding:"required"`
	Table     string                 `json:"table" binding:"required"`
	Errors    []*scoring.TaskFailure `json:"errors" binding:"required"`
	Notices   []string               `json:"notices" binding:"required"`
}

func toScoredRunResponse(run *scoring.ScoredRun) ScoredRunResponse {
	return ScoredRunResponse{
		RunId:         run.RunId,
		Label:         run.Label(),
		GameId:        run.GameId,
		CategoryId:    run.Key.Category,
		LevelId:       run.Key.Level,
		Time:          run.Time,
		Points:        run.Points,
		IsWorldRecord: run.IsWorldRecord,
	}
}

func toPlayerScoreResponse(result *scoring.AggregateResult) *PlayerScoreResponse {
	return &PlayerScoreResponse{
		Player:    result.Player,
		Total:     result.Total,
		Runs:      utils.Map(result.Runs, toScoredRunResponse),
		Breakdown: result.Breakdown,
		Table:     result.Table,
		Errors:    result.Errors,
		Notices:   result.Notices,
	}
}

// @id UpdatePlayer
// @Description Recomputes the score of a speedrun.com user from their verified runs
// @Tags player
// @Produce json
// @Param player_id path string true "speedrun.com user id or name"
// @Success 200 {object} PlayerScoreResponse
// @Router /players/{player_id}/update [post]
func (e *PlayerController) updatePlayerHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		result, err := e.playerService.UpdatePlayer(c.Request.Context(), c.Param("player_id"))
		if err != nil {
			app_error.Respond(c, err)
			return
		}
		c.JSON(200, toPlayerScoreResponse(result))
	}
}
