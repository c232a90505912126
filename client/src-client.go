package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"scoreboard/metrics"
	"time"

	"github.com/gin-contrib/cache/persistence"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const (
	// MultiGameGametype marks games whose runs span several games at once.
	MultiGameGametype = "rj1dy1o8"

	defaultPageSize    = 200
	defaultMinPageSize = 20
	runsEmbeds         = "level,game.levels,game.variables"
)

type SpeedrunClient struct {
	Client      *AsyncHttpClient
	Cache       *RemoteCache
	pageSize    int
	minPageSize int
	logger      *zap.SugaredLogger
}

type Option func(*SpeedrunClient)

func WithPageSize(pageSize int) Option {
	return func(c *SpeedrunClient) {
		c.pageSize = pageSize
	}
}

// WithMinPageSize sets the page size below which a failing page is no longer halved.
func WithMinPageSize(minPageSize int) Option {
	return func(c *SpeedrunClient) {
		c.minPageSize = minPageSize
	}
}

func WithLogger(logger *zap.SugaredLogger) Option {
	return func(c *SpeedrunClient) {
		c.logger = logger
	}
}

func NewSpeedrunClient(httpClient *AsyncHttpClient, store persistence.CacheStore, freshnessDays int, opts []Option, cacheOpts ...CacheOption) *SpeedrunClient {
	client := &SpeedrunClient{
		Client:      httpClient,
		pageSize:    defaultPageSize,
		minPageSize: defaultMinPageSize,
		logger:      zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(client)
	}
	cacheOpts = append([]CacheOption{WithCacheLogger(client.logger)}, cacheOpts...)
	client.Cache = NewRemoteCache(store, freshnessDays, client.fetchRaw, cacheOpts...)
	return client
}

// fetchRaw is the live fetch behind the cache.
func (c *SpeedrunClient) fetchRaw(ctx context.Context, requestUrl string) ([]byte, error) {
	response, err := c.Client.Get(ctx, requestUrl)
	if err != nil {
		return nil, &ClientError{
			Kind:        ConnectionError,
			Description: err.Error(),
			URL:         requestUrl,
		}
	}
	metrics.SrcResponseCounter.WithLabelValues(fmt.Sprintf("%d", response.StatusCode)).Inc()
	defer response.Body.Close()
	respBody, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, &ClientError{
			Kind:            ConnectionError,
			Description:     err.Error(),
			URL:             requestUrl,
			ResponseHeaders: response.Header,
		}
	}

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		description := http.StatusText(response.StatusCode)
		errorBody := &ErrorResponse{}
		if err := json.Unmarshal(respBody, errorBody); err == nil && errorBody.Message != "" {
			description = errorBody.Message
		}
		c.logger.Debugw("upstream returned an error", "url", requestUrl, "status", response.StatusCode, "message", description)
		return nil, &ClientError{
			StatusCode:      response.StatusCode,
			Kind:            kindForStatus(response.StatusCode),
			Description:     description,
			URL:             requestUrl,
			ResponseHeaders: response.Header,
		}
	}
	return respBody, nil
}

func getJSON[T any](ctx context.Context, client *SpeedrunClient, requestUrl string) (*T, error) {
	payload, err := client.Cache.GetOrFetch(ctx, requestUrl)
	if err != nil {
		return nil, err
	}
	result := new(T)
	if err := json.Unmarshal(payload, result); err != nil {
		return nil, &ClientError{
			Kind:        DecodeError,
			Description: err.Error(),
			URL:         requestUrl,
		}
	}
	return result, nil
}

// LeaderboardQuery identifies the sub-leaderboard a run belongs to.
type LeaderboardQuery struct {
	GameId     string
	CategoryId string
	LevelId    string
	Variables  map[string]string
}

func (c *SpeedrunClient) LeaderboardURL(query LeaderboardQuery) (string, error) {
	args := RequestArgs{
		QueryParams: map[string]string{
			"video-only": "true",
			"embed":      "players",
		},
	}
	if query.LevelId != "" {
		args.Endpoint = "leaderboards/%s/level/%s/%s"
		args.PathParams = []string{query.GameId, query.LevelId, query.CategoryId}
	} else {
		args.Endpoint = "leaderboards/%s/category/%s"
		args.PathParams = []string{query.GameId, query.CategoryId}
	}
	for variable, value := range query.Variables {
		args.QueryParams["var-"+variable] = value
	}
	requestUrl, err := c.Client.BuildURL(args)
	if err != nil {
		return "", err
	}
	return requestUrl.String(), nil
}

func (c *SpeedrunClient) GetLeaderboard(ctx context.Context, query LeaderboardQuery) (*Leaderboard, error) {
	timer := prometheus.NewTimer(metrics.SrcRequestDuration.WithLabelValues("GetLeaderboard"))
	defer timer.ObserveDuration()
	metrics.SrcRequestCounter.WithLabelValues("GetLeaderboard").Inc()
	requestUrl, err := c.LeaderboardURL(query)
	if err != nil {
		return nil, err
	}
	response, err := getJSON[LeaderboardResponse](ctx, c, requestUrl)
	if err != nil {
		return nil, err
	}
	return &response.Data, nil
}

func (c *SpeedrunClient) GetUser(ctx context.Context, userId string) (*User, error) {
	timer := prometheus.NewTimer(metrics.SrcRequestDuration.WithLabelValues("GetUser"))
	defer timer.ObserveDuration()
	metrics.SrcRequestCounter.WithLabelValues("GetUser").Inc()
	requestUrl, err := c.Client.BuildURL(RequestArgs{
		Endpoint:   "users/%s",
		PathParams: []string{userId},
	})
	if err != nil {
		return nil, err
	}
	response, err := getJSON[UserResponse](ctx, c, requestUrl.String())
	if err != nil {
		return nil, err
	}
	return &response.Data, nil
}

func (c *SpeedrunClient) RunsURL(userId string) (string, error) {
	requestUrl, err := c.Client.BuildURL(RequestArgs{
		Endpoint: "runs",
		QueryParams: map[string]string{
			"user":   userId,
			"status": "verified",
			"embed":  runsEmbeds,
			"max":    fmt.Sprintf("%d", c.pageSize),
		},
	})
	if err != nil {
		return "", err
	}
	return requestUrl.String(), nil
}

// GetUserRuns returns every verified run of the user with its level and game
// (including the game's levels and variables) embedded.
func (c *SpeedrunClient) GetUserRuns(ctx context.Context, userId string) ([]Run, error) {
	timer := prometheus.NewTimer(metrics.SrcRequestDuration.WithLabelValues("GetUserRuns"))
	defer timer.ObserveDuration()
	metrics.SrcRequestCounter.WithLabelValues("GetUserRuns").Inc()
	requestUrl, err := c.RunsURL(userId)
	if err != nil {
		return nil, err
	}
	items, err := c.FetchAll(ctx, requestUrl)
	if err != nil {
		return nil, err
	}
	runs := make([]Run, len(items))
	for i, item := range items {
		if err := json.Unmarshal(item, &runs[i]); err != nil {
			return nil, &ClientError{
				Kind:        DecodeError,
				Description: fmt.Sprintf("run %d: %s", i, err),
				URL:         requestUrl,
			}
		}
	}
	return runs, nil
}

func NewSpeedrunHttpClient(baseURL string, userAgent string, requestsPerMinute float64, timeoutSeconds int) (*AsyncHttpClient, error) {
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}
	return NewAsyncHttpClient(parsed, userAgent, requestsPerMinute, time.Duration(timeoutSeconds)*time.Second), nil
}
