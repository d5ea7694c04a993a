package subscriber

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"

	"mappls-navigation/internal/navigation"
)

// RouteListener is told when the stored route of a session changes.
type RouteListener interface {
	RouteUpdated(sessionID string, available bool)
}

type Subscriber struct {
	logger   *slog.Logger
	client   *redis.Client
	topic    string
	routes   navigation.RouteStore
	listener RouteListener
	validate *validator.Validate
}

func NewSubscriber(logger *slog.Logger, client *redis.Client, topic string, routes navigation.RouteStore, listener RouteListener) *Subscriber {
	return &Subscriber{
		logger:   logger,
		client:   client,
		topic:    topic,
		routes:   routes,
		listener: listener,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (s *Subscriber) Start(ctx context.Context) error {
	s.logger.Info("Redis subscriber is running", "topic", s.topic)
	pubsub := s.client.Subscribe(ctx, s.topic)
	defer func() {
		if err := pubsub.Close(); err != nil {
			s.logger.Warn("failed to close pubsub", "error", err)
		}
	}()

	msgCh := pubsub.Channel()

	for {
		select {
		case msg, ok := <-msgCh:
			if !ok {
				s.logger.Warn("pubsub channel closed by Redis")
				return nil
			}
			if err := s.handleMessage(ctx, msg); err != nil {
				s.logger.Error("error handling message", "error", err)
			}
		case <-ctx.Done():
			s.logger.Info("shutting down Redis subscriber")
			return nil
		}
	}
}

func (s *Subscriber) handleMessage(ctx context.Context, msg *redis.Message) error {
	var rm RouteMessage
	if err := json.Unmarshal([]byte(msg.Payload), &rm); err != nil {
		return fmt.Errorf("unmarshalling route message: %w", err)
	}
	if err := s.validate.Struct(rm); err != nil {
		return fmt.Errorf("invalid route message: %w", err)
	}

	if rm.Action.IsClear() {
		if err := s.routes.ClearLastRoute(ctx, rm.SessionID); err != nil {
			return fmt.Errorf("clearing route for session %q: %w", rm.SessionID, err)
		}
	} else if err := s.routes.SetLastRoute(ctx, rm.SessionID, rm.Result); err != nil {
		return fmt.Errorf("storing route for session %q: %w", rm.SessionID, err)
	}

	s.logger.Debug("route message applied", "sessionID", rm.SessionID, "action", rm.Action)
	if s.listener != nil {
		s.listener.RouteUpdated(rm.SessionID, !rm.Action.IsClear())
	}
	return nil
}
