package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"github.com/warp/recognition-engine/points"
)

// =============================================================================
// FAN-OUT
// =============================================================================

// Multi delivers to every sink and joins their errors.
type Multi []points.NotificationSink

func (m Multi) Send(ctx context.Context, n points.Notification) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Send(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Discard drops everything.
var Discard points.NotificationSink = points.NotificationSinkFunc(func(context.Context, points.Notification) error { return nil })

// =============================================================================
// LOG SINK
// =============================================================================

type LogSink struct {
	log logrus.FieldLogger
}

func NewLogSink(log logrus.FieldLogger) *LogSink {
	return &LogSink{log: log.WithField("component", "notifications")}
}

func (s *LogSink) Send(_ context.Context, n points.Notification) error {
	s.log.WithFields(logrus.Fields{
		"notification_id": n.ID,
		"user_id":         n.UserID,
		"kind":            n.Kind,
	}).Info(n.Title)
	return nil
}

// =============================================================================
// REDIS SINK - Publishes JSON events for out-of-process consumers
// =============================================================================

type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

type RedisSink struct {
	client  Publisher
	channel string
}

// NewRedisSink publishes to channel. Per-user channels are channel:<userID>.
func NewRedisSink(client Publisher, channel string) *RedisSink {
	return &RedisSink{client: client, channel: channel}
}

func (s *RedisSink) Send(ctx context.Context, n points.Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	if err := s.client.Publish(ctx, s.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", s.channel, err)
	}
	if err := s.client.Publish(ctx, s.channel+":"+string(n.UserID), payload).Err(); err != nil {
		return fmt.Errorf("publish user channel: %w", err)
	}
	return nil
}
