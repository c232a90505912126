package main

import (
	"fmt"
	"regexp"
	"scoreboard/client"
	"scoreboard/config"
	"scoreboard/controller"
	"scoreboard/repository"
	"scoreboard/scoring"
	"scoreboard/service"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	ginprometheus "github.com/zsais/go-gin-prometheus"
	"go.uber.org/zap"
)

// @title           Global Scoreboard API
// @version         2.0
// @description     Scores speedrun.com players across all their personal bests.
func main() {
	t := time.Now()

	cfg := config.Env()
	zapLogger, err := config.NewLogger(cfg)
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer zapLogger.Sync()
	logger := zapLogger.Sugar()

	cacheStore, err := config.NewCacheStore(cfg)
	if err != nil {
		logger.Fatalw("Failed to initialize cache", "error", err)
	}
	httpClient, err := client.NewSpeedrunHttpClient(cfg.SrcBaseURL, cfg.SrcUserAgent, cfg.SrcRequestsPerMinute, cfg.SrcTimeoutSeconds)
	if err != nil {
		logger.Fatalw("Failed to initialize speedrun.com client", "error", err)
	}
	srcClient := client.NewSpeedrunClient(
		httpClient,
		cacheStore,
		cfg.CacheFreshnessDays,
		[]client.Option{
			client.WithPageSize(cfg.SrcPageSize),
			client.WithMinPageSize(cfg.SrcMinPageSize),
			client.WithLogger(logger.Named("src")),
		},
		client.WithCacheLogger(logger.Named("cache")),
	)

	gameValueService := initGameValueService(cfg, logger)
	aggregator := scoring.NewAggregator(
		srcClient,
		scoring.NewLeaderboardRunScorer(srcClient),
		logger.Named("scoring"),
		scoring.WithWorkers(cfg.ScoringWorkers),
		scoring.WithMaxRuns(cfg.MaxRuns),
		scoring.WithGameValueSink(gameValueService),
	)
	playerService := service.NewPlayerService(aggregator)

	r := gin.New()
	r.Use(gin.Recovery())
	err = r.SetTrustedProxies(nil)
	if err != nil {
		logger.Errorw("Failed to set trusted proxies", "error", err)
		return
	}
	addLogger(r)
	addMetrics(r)
	setCors(r)
	controller.SetRoutes(r, playerService, gameValueService)
	logger.Infow("Server started", "duration", time.Since(t), "port", cfg.Port)
	err = r.Run(":" + cfg.Port)
	if err != nil {
		logger.Errorw("Failed to start server", "error", err)
	}
}

// initGameValueService wires the optional database and kafka destinations.
// A destination that cannot be reached is left out and logged.
func initGameValueService(cfg *config.Config, logger *zap.SugaredLogger) *service.GameValueService {
	var repo *repository.GameValueRepository
	if cfg.DatabaseHost != "" {
		db, err := config.InitDB(config.DatabaseDSN(cfg), &repository.GameValue{})
		if err != nil {
			logger.Errorw("Failed to initialize database, game values will not be stored", "error", err)
		} else {
			repo = repository.NewGameValueRepository(db)
		}
	}

	var writer service.MessageWriter
	if cfg.KafkaBroker != "" {
		if err := config.CreateTopic(cfg.KafkaBroker, cfg.GameValuesTopic); err != nil {
			logger.Warnw("Failed to create game values topic", "topic", cfg.GameValuesTopic, "error", err)
		}
		kafkaWriter, err := config.GetWriter(cfg.KafkaBroker, cfg.GameValuesTopic)
		if err != nil {
			logger.Errorw("Failed to initialize kafka writer", "error", err)
		} else {
			writer = kafkaWriter
		}
	}
	return service.NewGameValueService(repo, writer, logger.Named("game-values"))
}

func addLogger(r *gin.Engine) {
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/api/metrics", "/api/health"},
	}))
}

func addMetrics(r *gin.Engine) {
	p := ginprometheus.NewPrometheus("gin")
	playerRe := regexp.MustCompile(`players/[^/]+(/|$)`)
	p.ReqCntURLLabelMappingFn = func(c *gin.Context) string {
		url := strings.Split(c.Request.URL.String(), "?")[0]
		url = playerRe.ReplaceAllString(url, "players/?$1")
		return strings.TrimPrefix(url, "/api")
	}
	p.MetricsPath = "/api/metrics"
	p.Use(r)
}

func setCors(r *gin.Engine) {
	corsConfigGetOptions := cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	corsConfigOtherMethods := cors.Config{
		AllowOrigins: []string{
			"https://www.speedrun.com",
			"http://localhost",
			"http://localhost:3000",
		},
		AllowMethods:     []string{"POST"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}

	r.Use(func(c *gin.Context) {
		if c.Request.Method == "OPTIONS" {
			// preflights are answered with the config of the method they ask for
			requestedMethod := c.GetHeader("Access-Control-Request-Method")
			if requestedMethod == "GET" || requestedMethod == "OPTIONS" {
				cors.New(corsConfigGetOptions)(c)
			} else {
				cors.New(corsConfigOtherMethods)(c)
			}
			c.AbortWithStatus(204)
			return
		}

		if c.Request.Method == "GET" {
			cors.New(corsConfigGetOptions)(c)
		} else {
			cors.New(corsConfigOtherMethods)(c)
		}
	})
}
