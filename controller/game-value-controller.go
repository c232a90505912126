package controller

import (
	"fmt"
	"net/http"
	"scoreboard/app_error"
	"scoreboard/repository"
	"scoreboard/service"
	"scoreboard/utils"
	"strconv"

	"github.com/gin-gonic/gin"
)

const maxGameValuesLimit = 500

type GameValueController struct {
	gameValueService *service.GameValueService
}

func NewGameValueController(gameValueService *service.GameValueService) *GameValueController {
	return &GameValueController{gameValueService: gameValueService}
}

func setupGameValueController(gameValueService *service.GameValueService) []RouteInfo {
	e := NewGameValueController(gameValueService)
	basePath := "/game-values"
	routes := []RouteInfo{
		{Method: "GET", Path: "", HandlerFunc: e.getTopGameValuesHandler()},
	}
	for i, route := range routes {
		routes[i].Path = basePath + route.Path
	}
	return routes
}

type GameValueResponse struct {
	GameId            string `json:"gameId" binding:"required"`
	CategoryId        string `json:"categoryId" binding:"required"`
	RunId             string `json:"runId" binding:"required"`
	PlatformId        string `json:"platformId" binding:"required"`
	WorldRecordTime   int    `json:"worldRecordTime" binding:"required"`
	WorldRecordPoints int    `json:"worldRecordPoints" binding:"required"`
	MeanTime          int    `json:"meanTime" binding:"required"`
}

func toGameValueResponse(value *repository.GameValue) GameValueResponse {
	return GameValueResponse{
		GameId:            value.GameId,
		CategoryId:        value.CategoryId,
		RunId:             value.RunId,
		PlatformId:        value.PlatformId,
		WorldRecordTime:   value.WorldRecordTime,
		WorldRecordPoints: value.WorldRecordPoints,
		MeanTime:          value.MeanTime,
	}
}

// @id GetTopGameValues
// @Description Lists the full game categories whose world records are worth the most points
// @Tags game-values
// @Produce json
// @Param platform query string false "Platform id"
// @Param limit query int false "Maximum number of entries (default 50)"
// @Success 200 {array} GameValueResponse
// @Router /game-values [get]
func (e *GameValueController) getTopGameValuesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
		if err != nil || limit <= 0 || limit > maxGameValuesLimit {
			app_error.Respond(c, app_error.New(fmt.Errorf("limit must be between 1 and %d", maxGameValuesLimit), http.StatusBadRequest))
			return
		}
		values, err := e.gameValueService.ListTopGameValues(c.Request.Context(), c.Query("platform"), limit)
		if err != nil {
			app_error.Respond(c, err)
			return
		}
		c.JSON(200, utils.Map(values, toGameValueResponse))
	}
}
