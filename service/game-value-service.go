package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"scoreboard/metrics"
	"scoreboard/repository"
	"scoreboard/scoring"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// MessageWriter is the part of *kafka.Writer the service needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// GameValueService records world record values in the database and publishes
// them on kafka. Either destination may be nil, in which case it is skipped.
type GameValueService struct {
	repository *repository.GameValueRepository
	writer     MessageWriter
	logger     *zap.SugaredLogger
}

func NewGameValueService(repository *repository.GameValueRepository, writer MessageWriter, logger *zap.SugaredLogger) *GameValueService {
	return &GameValueService{
		repository: repository,
		writer:     writer,
		logger:     logger,
	}
}

func (s *GameValueService) RecordGameValue(ctx context.Context, value scoring.GameValue) error {
	var errs []error
	if s.repository != nil {
		err := s.repository.Upsert(ctx, &repository.GameValue{
			GameId:            value.GameId,
			CategoryId:        value.CategoryId,
			RunId:             value.RunId,
			PlatformId:        value.PlatformId,
			WorldRecordTime:   value.WorldRecordTime,
			WorldRecordPoints: value.WorldRecordPoints,
			MeanTime:          value.MeanTime,
		})
		countRecorded("database", err)
		if err != nil {
			errs = append(errs, fmt.Errorf("saving game value: %w", err))
		}
	}
	if s.writer != nil {
		err := s.publish(ctx, value)
		countRecorded("kafka", err)
		if err != nil {
			errs = append(errs, fmt.Errorf("publishing game value: %w", err))
		}
	}
	s.logger.Debugw("recorded game value", "game", value.GameId, "category", value.CategoryId, "run", value.RunId)
	return errors.Join(errs...)
}

func (s *GameValueService) publish(ctx context.Context, value scoring.GameValue) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return s.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(value.GameId + "/" + value.CategoryId),
		Value: data,
	})
}

func (s *GameValueService) ListTopGameValues(ctx context.Context, platformId string, limit int) ([]*repository.GameValue, error) {
	if s.repository == nil {
		return []*repository.GameValue{}, nil
	}
	return s.repository.ListTopGameValues(ctx, platformId, limit)
}

func countRecorded(sink string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metrics.GameValuesRecordedCounter.WithLabelValues(sink, outcome).Inc()
}
