package controller

import (
	"net/http"
	"scoreboard/service"

	"github.com/gin-gonic/gin"
)

type RouteInfo struct {
	Method      string
	Path        string
	HandlerFunc gin.HandlerFunc
}

func SetRoutes(r *gin.Engine, playerService *service.PlayerService, gameValueService *service.GameValueService) {
	routes := make([]RouteInfo, 0)
	routes = append(routes, setupPlayerController(playerService)...)
	routes = append(routes, setupGameValueController(gameValueService)...)
	routes = append(routes, RouteInfo{Method: "GET", Path: "/health", HandlerFunc: healthHandler})
	api := r.Group("/api")
	for _, route := range routes {
		api.Handle(route.Method, route.Path, route.HandlerFunc)
	}
}

// @id Health
// @Description Reports that the service is up
// @Tags health
// @Produce json
// @Success 200 {object} map[string]string
// @Router /health [get]
func healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
