// Package kafka consumes operator commands from a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"dispatch-watch/internal/logging"
	"dispatch-watch/internal/models"
)

const (
	CommandRefresh = "refresh"
	CommandAction  = "action"
)

type Config struct {
	Broker  string
	Topic   string
	GroupID string
}

// Refresher schedules a snapshot refresh.
type Refresher interface {
	TriggerAsync(reason string)
}

// Performer runs an operator action.
type Performer interface {
	Perform(ctx context.Context, kind models.ActionKind, ids []string) (models.ActionResult, error)
}

type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// Command is one operator message.
type Command struct {
	Type    string   `json:"type"`
	Action  string   `json:"action,omitempty"`
	TaskIDs []string `json:"taskIds,omitempty"`
}

type Consumer struct {
	reader    messageReader
	refresher Refresher
	performer Performer
	logger    *logging.Logger
}

func NewConsumer(cfg Config, refresher Refresher, performer Performer, logger *logging.Logger) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     []string{cfg.Broker},
		Topic:       cfg.Topic,
		GroupID:     cfg.GroupID,
		StartOffset: kafka.LastOffset,
		MaxWait:     time.Second,
	})
	return &Consumer{reader: r, refresher: refresher, performer: performer, logger: logger}
}

// Run reads commands until ctx is done.
func (s *Consumer) Run(ctx context.Context) {
	s.logger.Infof("Kafka consumer started")
	for {
		msg, err := s.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				s.logger.Infof("Kafka consumer stopped")
				return
			}
			s.logger.Errorf("Read message failed: %v", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		if err := s.handle(ctx, msg.Value); err != nil {
			s.logger.Errorf("Command at offset %d rejected: %v", msg.Offset, err)
			continue
		}
		s.logger.Infof("Processed Kafka message at offset %d", msg.Offset)
	}
}

func (s *Consumer) handle(ctx context.Context, value []byte) error {
	var cmd Command
	if err := json.Unmarshal(value, &cmd); err != nil {
		return fmt.Errorf("%w: unmarshal command: %w", models.ErrInvalidRequest, err)
	}

	switch cmd.Type {
	case CommandRefresh:
		s.refresher.TriggerAsync("kafka command")
		return nil
	case CommandAction:
		kind, err := models.ParseActionKind(cmd.Action)
		if err != nil {
			return err
		}
		_, err = s.performer.Perform(ctx, kind, cmd.TaskIDs)
		return err
	default:
		return fmt.Errorf("%w: unknown command type %q", models.ErrInvalidRequest, cmd.Type)
	}
}

func (s *Consumer) Close() {
	if err := s.reader.Close(); err != nil {
		s.logger.Errorf("Failed to close Kafka reader: %v", err)
	}
}
